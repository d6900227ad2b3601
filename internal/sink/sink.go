package sink

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"vms-service/internal/domain/vms"
	"vms-service/internal/metrics"
	"vms-service/internal/retry"
)

var errPersistQueueFull = errors.New("persist queue full")

type Store interface {
	CreateEvent(ctx context.Context, event vms.Event) error
}

// Forwarder delivers admitted alerts to an external system. Implementations
// apply their own retry policy.
type Forwarder interface {
	Name() string
	Forward(ctx context.Context, event vms.Event) error
	Close() error
}

type Config struct {
	QueueSize      int
	PersistPolicy  retry.Policy
	PersistTimeout time.Duration
	// PersistEnqueueTimeout bounds how long a caller waits for room in a
	// full persist queue before the event is dropped.
	PersistEnqueueTimeout time.Duration
	ForwardQueueSize      int
	ForwardEnqueueTimeout time.Duration
}

// Sink persists events and forwards alerts off the capture path. Failures are
// logged and counted, never returned to callers.
type Sink struct {
	store      Store
	forwarders []Forwarder
	cfg        Config
	metrics    *metrics.Metrics
	log        zerolog.Logger

	persistQ chan vms.Event
	forwardQ chan vms.Event

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func New(store Store, forwarders []Forwarder, cfg Config, m *metrics.Metrics, log zerolog.Logger) *Sink {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.ForwardQueueSize < 1 {
		cfg.ForwardQueueSize = 1
	}
	s := &Sink{
		store:      store,
		forwarders: forwarders,
		cfg:        cfg,
		metrics:    m,
		log:        log.With().Str("component", "sink").Logger(),
		persistQ:   make(chan vms.Event, cfg.QueueSize),
	}

	s.wg.Add(1)
	go s.persistLoop()

	if len(forwarders) > 0 {
		s.forwardQ = make(chan vms.Event, cfg.ForwardQueueSize)
		s.wg.Add(1)
		go s.forwardLoop()
	}
	return s
}

// Emit persists an alert and offers it to the forwarders.
func (s *Sink) Emit(ctx context.Context, event vms.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.log.Warn().Str("event_id", event.EventID).Msg("sink closed, dropping event")
		return
	}

	s.enqueuePersist(ctx, event)

	if s.forwardQ == nil {
		return
	}
	timer := time.NewTimer(s.cfg.ForwardEnqueueTimeout)
	defer timer.Stop()
	select {
	case s.forwardQ <- event:
	case <-timer.C:
		s.metrics.ForwardDropped()
		s.log.Warn().
			Str("event_id", event.EventID).
			Str("event_type", string(event.EventType)).
			Msg("forward queue full, alert not forwarded")
	}
}

// Record persists a raw tracking record.
func (s *Sink) Record(ctx context.Context, event vms.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	s.enqueuePersist(ctx, event)
}

func (s *Sink) enqueuePersist(ctx context.Context, event vms.Event) {
	select {
	case s.persistQ <- event:
		return
	default:
	}

	timer := time.NewTimer(s.cfg.PersistEnqueueTimeout)
	defer timer.Stop()
	var err error
	select {
	case s.persistQ <- event:
		return
	case <-timer.C:
		err = errPersistQueueFull
	case <-ctx.Done():
		err = ctx.Err()
	}

	s.metrics.PersistFailed()
	s.log.Error().
		Err(err).
		Str("event_id", event.EventID).
		Str("event_type", string(event.EventType)).
		Msg("event dropped before persistence")
}

// Close stops accepting events, drains both queues and closes forwarders.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.persistQ)
	if s.forwardQ != nil {
		close(s.forwardQ)
	}
	s.mu.Unlock()

	s.wg.Wait()

	for _, f := range s.forwarders {
		if err := f.Close(); err != nil {
			s.log.Warn().Err(err).Str("forwarder", f.Name()).Msg("failed to close forwarder")
		}
	}
}

func (s *Sink) persistLoop() {
	defer s.wg.Done()
	for event := range s.persistQ {
		s.persist(event)
	}
}

func (s *Sink) persist(event vms.Event) {
	err := retry.Do(context.Background(), s.cfg.PersistPolicy, func(ctx context.Context) error {
		if s.cfg.PersistTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.PersistTimeout)
			defer cancel()
		}
		return s.store.CreateEvent(ctx, event)
	}, func(attempt int, delay time.Duration, err error) {
		s.log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Str("event_id", event.EventID).
			Msg("persist failed, retrying")
	})
	if err != nil {
		s.metrics.PersistFailed()
		s.log.Error().
			Err(err).
			Str("event_id", event.EventID).
			Str("visitor_id", event.VisitorID).
			Str("camera_id", event.CameraID).
			Str("event_type", string(event.EventType)).
			Msg("event delivery failed")
	}
}

func (s *Sink) forwardLoop() {
	defer s.wg.Done()
	for event := range s.forwardQ {
		var g errgroup.Group
		for _, f := range s.forwarders {
			f := f
			g.Go(func() error {
				if err := f.Forward(context.Background(), event); err != nil {
					s.metrics.ForwardFailed(f.Name())
					s.log.Error().
						Err(err).
						Str("forwarder", f.Name()).
						Str("event_id", event.EventID).
						Msg("alert forwarding failed")
				}
				return nil
			})
		}
		_ = g.Wait()
	}
}
