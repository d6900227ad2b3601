package gate

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vms-service/internal/domain/vms"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func candidate(visitor, camera string, et vms.EventType, ts time.Time) vms.AlertCandidate {
	return vms.AlertCandidate{VisitorID: visitor, CameraID: camera, EventType: et, Timestamp: ts}
}

func TestAdmitWindow(t *testing.T) {
	g := New(30*time.Second, 0, 0)

	assert.True(t, g.Admit(candidate("V001", "cam2", vms.EventRestrictedZoneEntry, t0)))
	assert.False(t, g.Admit(candidate("V001", "cam2", vms.EventRestrictedZoneEntry, t0.Add(29*time.Second))))
	assert.True(t, g.Admit(candidate("V001", "cam2", vms.EventRestrictedZoneEntry, t0.Add(30*time.Second))))

	last, ok := g.store.Get(gateKey(vms.SuppressionKey{VisitorID: "V001", CameraID: "cam2", EventType: vms.EventRestrictedZoneEntry}))
	require.True(t, ok)
	assert.Equal(t, t0.Add(30*time.Second), last)
}

func TestAdmitKeysAreIndependent(t *testing.T) {
	g := New(30*time.Second, 0, 0)

	assert.True(t, g.Admit(candidate("V001", "cam1", vms.EventRestrictedZoneEntry, t0)))
	assert.True(t, g.Admit(candidate("V001", "cam2", vms.EventRestrictedZoneEntry, t0)))
	assert.True(t, g.Admit(candidate("V002", "cam1", vms.EventRestrictedZoneEntry, t0)))
	assert.True(t, g.Admit(candidate("V001", "cam1", vms.EventGeofenceViolation, t0)))
	assert.Equal(t, 4, g.store.ItemCount())
}

func TestAdmitNeverDoublesWithinWindow(t *testing.T) {
	window := 30 * time.Second
	g := New(window, 0, 0)
	rng := rand.New(rand.NewSource(7))

	admitted := make(map[vms.SuppressionKey][]time.Time)
	ts := t0
	for i := 0; i < 5000; i++ {
		ts = ts.Add(time.Duration(rng.Intn(4000)) * time.Millisecond)
		c := candidate(
			[]string{"V001", "V002", vms.UnknownVisitor}[rng.Intn(3)],
			[]string{"cam1", "cam2"}[rng.Intn(2)],
			vms.AlertTypes[rng.Intn(len(vms.AlertTypes))],
			ts,
		)
		first := len(admitted[c.Key()]) == 0
		ok := g.Admit(c)
		if first {
			assert.True(t, ok, "first candidate for a key is always admitted")
		}
		if ok {
			admitted[c.Key()] = append(admitted[c.Key()], ts)
		}
	}

	for key, times := range admitted {
		for i := 1; i < len(times); i++ {
			assert.GreaterOrEqual(t, times[i].Sub(times[i-1]), window, "key %+v", key)
		}
	}
}

func TestAdmitConcurrentSameKey(t *testing.T) {
	g := New(30*time.Second, time.Minute, 0)

	var admitted int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Admit(candidate("V001", "cam1", vms.EventUnknownPerson, t0)) {
				atomic.AddInt32(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), admitted)
}
