package tracker

import (
	"sync"
	"time"

	"vms-service/internal/domain/vms"
)

// Departure is recorded when a presence expires or its camera is released.
type Departure struct {
	CameraID     string
	VisitorID    string
	FirstSeen    time.Time
	LastSeen     time.Time
	LastLocation string
}

type Observation struct {
	Presence vms.PresenceState
	// NewPresence is set on the first frame of a presence.
	NewPresence bool
	// Entry is set when a new presence starts at an entry-labelled location.
	Entry bool
	// ReEntry is set when a resolved visitor enters again after departing
	// without being seen at an exit.
	ReEntry bool
	// Notified lists the once-per-presence alerts already raised.
	Notified   map[vms.EventType]bool
	Departures []Departure
}

type presence struct {
	state    vms.PresenceState
	notified map[vms.EventType]bool
}

type bucket struct {
	mu        sync.Mutex
	presences map[string]*presence
}

// ledger follows one visitor across cameras between entry and exit.
type ledger struct {
	mu       sync.Mutex
	entered  bool
	departed bool
}

type Tracker struct {
	mu      sync.RWMutex
	cameras map[string]*bucket

	ledgerMu sync.RWMutex
	ledgers  map[string]*ledger
}

func New() *Tracker {
	return &Tracker{
		cameras: make(map[string]*bucket),
		ledgers: make(map[string]*ledger),
	}
}

// Timeout derives the presence timeout for a camera. A positive fixed value
// wins; otherwise it is missedFrames frame intervals at fps.
func Timeout(fps float64, missedFrames int, fixed time.Duration) time.Duration {
	if fixed > 0 {
		return fixed
	}
	if fps <= 0 || missedFrames <= 0 {
		return 0
	}
	return time.Duration(float64(missedFrames) / fps * float64(time.Second))
}

// Observe records visitorID on cameraID at ts. Presences of the camera that
// have been silent for longer than timeout are expired first.
func (t *Tracker) Observe(cameraID, visitorID, location string, ts time.Time, timeout time.Duration) Observation {
	b := t.bucket(cameraID, true)

	b.mu.Lock()
	defer b.mu.Unlock()

	obs := Observation{Departures: t.sweepLocked(cameraID, b, ts, timeout)}

	p, ok := b.presences[visitorID]
	if !ok {
		p = &presence{
			state: vms.PresenceState{
				CameraID:  cameraID,
				VisitorID: visitorID,
				FirstSeen: ts,
			},
			notified: make(map[vms.EventType]bool),
		}
		b.presences[visitorID] = p
		obs.NewPresence = true
		obs.Entry = IsEntryLabel(location)
	}
	if ts.After(p.state.LastSeen) {
		p.state.LastSeen = ts
	}
	p.state.LastLocation = location
	p.state.Present = true

	if visitorID != vms.UnknownVisitor {
		obs.ReEntry = t.updateLedger(visitorID, location, obs.Entry)
	}

	obs.Presence = p.state
	obs.Notified = make(map[vms.EventType]bool, len(p.notified))
	for k, v := range p.notified {
		obs.Notified[k] = v
	}
	return obs
}

// Sweep expires silent presences of a camera without observing anyone.
func (t *Tracker) Sweep(cameraID string, now time.Time, timeout time.Duration) []Departure {
	b := t.bucket(cameraID, false)
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return t.sweepLocked(cameraID, b, now, timeout)
}

// MarkNotified records that a once-per-presence alert was raised for the
// current presence of visitorID on cameraID.
func (t *Tracker) MarkNotified(cameraID, visitorID string, eventType vms.EventType) {
	b := t.bucket(cameraID, false)
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.presences[visitorID]; ok {
		p.notified[eventType] = true
	}
}

// Release departs every presence on the camera and drops its bucket.
func (t *Tracker) Release(cameraID string) []Departure {
	t.mu.Lock()
	b, ok := t.cameras[cameraID]
	delete(t.cameras, cameraID)
	t.mu.Unlock()
	if !ok {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	departures := make([]Departure, 0, len(b.presences))
	for visitorID, p := range b.presences {
		departures = append(departures, t.departLocked(cameraID, visitorID, p))
	}
	b.presences = make(map[string]*presence)
	return departures
}

func (t *Tracker) sweepLocked(cameraID string, b *bucket, now time.Time, timeout time.Duration) []Departure {
	if timeout <= 0 {
		return nil
	}
	var departures []Departure
	for visitorID, p := range b.presences {
		if now.Sub(p.state.LastSeen) > timeout {
			departures = append(departures, t.departLocked(cameraID, visitorID, p))
			delete(b.presences, visitorID)
		}
	}
	return departures
}

func (t *Tracker) departLocked(cameraID, visitorID string, p *presence) Departure {
	p.state.Present = false
	if visitorID != vms.UnknownVisitor {
		l := t.ledger(visitorID)
		l.mu.Lock()
		if IsExitLabel(p.state.LastLocation) {
			l.entered, l.departed = false, false
		} else if l.entered {
			l.departed = true
		}
		l.mu.Unlock()
	}
	return Departure{
		CameraID:     cameraID,
		VisitorID:    visitorID,
		FirstSeen:    p.state.FirstSeen,
		LastSeen:     p.state.LastSeen,
		LastLocation: p.state.LastLocation,
	}
}

func (t *Tracker) updateLedger(visitorID, location string, entry bool) bool {
	l := t.ledger(visitorID)
	l.mu.Lock()
	defer l.mu.Unlock()

	if IsExitLabel(location) {
		l.entered, l.departed = false, false
		return false
	}
	if !entry {
		return false
	}
	reEntry := l.entered && l.departed
	l.entered, l.departed = true, false
	return reEntry
}

func (t *Tracker) bucket(cameraID string, create bool) *bucket {
	t.mu.RLock()
	b, ok := t.cameras[cameraID]
	t.mu.RUnlock()
	if ok || !create {
		return b
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok = t.cameras[cameraID]; ok {
		return b
	}
	b = &bucket{presences: make(map[string]*presence)}
	t.cameras[cameraID] = b
	return b
}

func (t *Tracker) ledger(visitorID string) *ledger {
	t.ledgerMu.RLock()
	l, ok := t.ledgers[visitorID]
	t.ledgerMu.RUnlock()
	if ok {
		return l
	}

	t.ledgerMu.Lock()
	defer t.ledgerMu.Unlock()
	if l, ok = t.ledgers[visitorID]; ok {
		return l
	}
	l = &ledger{}
	t.ledgers[visitorID] = l
	return l
}
