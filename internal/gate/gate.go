package gate

import (
	"time"

	"github.com/patrickmn/go-cache"

	"vms-service/internal/domain/vms"
	"vms-service/internal/keyed"
)

// Gate suppresses repeated alerts for the same visitor, camera and event type
// inside a fixed window. Time is taken from the candidate, not the wall clock.
type Gate struct {
	window time.Duration
	store  *cache.Cache
	locks  *keyed.Locks
}

// New creates a gate. Entries are kept for retention (never less than the
// window); retention <= 0 keeps them for the life of the process.
func New(window, retention, cleanupInterval time.Duration) *Gate {
	expiration := cache.NoExpiration
	if retention > 0 {
		if retention < window {
			retention = window
		}
		expiration = retention
	}
	return &Gate{
		window: window,
		store:  cache.New(expiration, cleanupInterval),
		locks:  keyed.NewLocks(0),
	}
}

func (g *Gate) Admit(c vms.AlertCandidate) bool {
	key := gateKey(c.Key())

	admitted := false
	g.locks.With(key, func() {
		if v, ok := g.store.Get(key); ok {
			last := v.(time.Time)
			if c.Timestamp.Sub(last) < g.window {
				return
			}
		}
		g.store.Set(key, c.Timestamp, cache.DefaultExpiration)
		admitted = true
	})
	return admitted
}

func gateKey(k vms.SuppressionKey) string {
	return keyed.Key(k.VisitorID, k.CameraID, string(k.EventType))
}
