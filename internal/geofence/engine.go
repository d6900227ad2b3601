package geofence

import (
	"sync"
	"time"

	"vms-service/internal/domain/vms"
)

// State tracks one visitor's current excursion outside a camera boundary.
type State struct {
	OutsideSince   time.Time
	LastPosition   vms.Point
	LastSignaledAt time.Time
}

type Signal struct {
	Duration time.Duration
	Position vms.Point
}

type cameraFence struct {
	mu       sync.Mutex
	boundary []vms.Point
	states   map[string]*State
}

type Engine struct {
	mu      sync.RWMutex
	cameras map[string]*cameraFence

	violationAfter time.Duration
	rearm          time.Duration
}

// NewEngine creates an engine that signals once an excursion lasts at least
// violationAfter. A continuing excursion signals again every rearm interval;
// rearm <= 0 limits each excursion to a single signal.
func NewEngine(violationAfter, rearm time.Duration) *Engine {
	return &Engine{
		cameras:        make(map[string]*cameraFence),
		violationAfter: violationAfter,
		rearm:          rearm,
	}
}

// SetBoundary replaces the camera boundary and resets its excursions.
// An empty boundary disables geofencing for the camera.
func (e *Engine) SetBoundary(cameraID string, points []vms.Point) error {
	if len(points) == 0 {
		e.mu.Lock()
		delete(e.cameras, cameraID)
		e.mu.Unlock()
		return nil
	}
	if err := Validate(points); err != nil {
		return err
	}

	boundary := make([]vms.Point, len(points))
	copy(boundary, points)

	e.mu.Lock()
	e.cameras[cameraID] = &cameraFence{
		boundary: boundary,
		states:   make(map[string]*State),
	}
	e.mu.Unlock()
	return nil
}

// Check evaluates one observation of visitorID at pos. It reports a Signal
// when the visitor has been outside for at least the violation threshold.
func (e *Engine) Check(cameraID, visitorID string, pos vms.Point, ts time.Time) (Signal, bool) {
	fence := e.fence(cameraID)
	if fence == nil {
		return Signal{}, false
	}

	fence.mu.Lock()
	defer fence.mu.Unlock()

	if Contains(fence.boundary, pos) {
		delete(fence.states, visitorID)
		return Signal{}, false
	}

	st, ok := fence.states[visitorID]
	if !ok {
		st = &State{OutsideSince: ts}
		fence.states[visitorID] = st
	}
	st.LastPosition = pos

	duration := ts.Sub(st.OutsideSince)
	if duration < e.violationAfter || duration < 0 {
		return Signal{}, false
	}
	if !st.LastSignaledAt.IsZero() {
		if e.rearm <= 0 || ts.Sub(st.LastSignaledAt) < e.rearm {
			return Signal{}, false
		}
	}

	st.LastSignaledAt = ts
	return Signal{Duration: duration, Position: pos}, true
}

// Release drops every excursion for the camera but keeps its boundary.
func (e *Engine) Release(cameraID string) {
	fence := e.fence(cameraID)
	if fence == nil {
		return
	}
	fence.mu.Lock()
	fence.states = make(map[string]*State)
	fence.mu.Unlock()
}

func (e *Engine) Forget(cameraID string) {
	e.mu.Lock()
	delete(e.cameras, cameraID)
	e.mu.Unlock()
}

func (e *Engine) fence(cameraID string) *cameraFence {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cameras[cameraID]
}
