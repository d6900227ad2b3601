package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"vms-service/internal/capture"
	"vms-service/internal/domain/vms"
	"vms-service/internal/metrics"
	"vms-service/internal/retry"
)

// Processor consumes frames and owns per-camera analysis state.
type Processor interface {
	ProcessFrame(ctx context.Context, cam vms.CameraConfig, frame vms.Frame) error
	SetBoundary(cameraID string, points []vms.Point) error
	Release(cameraID string)
	Forget(cameraID string)
}

type CameraStore interface {
	SaveCamera(ctx context.Context, cam vms.CameraConfig) error
	DeleteCamera(ctx context.Context, cameraID string) error
	ListCameras(ctx context.Context) ([]vms.CameraConfig, error)
}

type Config struct {
	DefaultFPS float64
	Reconnect  retry.Policy
}

type camera struct {
	// op serialises lifecycle transitions of this camera.
	op sync.Mutex

	cfg       vms.CameraConfig
	active    bool
	cancel    context.CancelFunc
	done      chan struct{}
	lastFault string
	faultedAt *time.Time
}

// Ingestor is the camera registry. Each started camera runs one capture
// goroutine that paces, reads and hands frames to the Processor in order.
type Ingestor struct {
	mu      sync.Mutex
	cameras map[string]*camera

	opener  capture.Opener
	proc    Processor
	store   CameraStore
	cfg     Config
	metrics *metrics.Metrics
	log     zerolog.Logger
	now     func() time.Time
}

func New(opener capture.Opener, proc Processor, store CameraStore, cfg Config, m *metrics.Metrics, log zerolog.Logger) *Ingestor {
	return &Ingestor{
		cameras: make(map[string]*camera),
		opener:  opener,
		proc:    proc,
		store:   store,
		cfg:     cfg,
		metrics: m,
		log:     log.With().Str("component", "ingest").Logger(),
		now:     time.Now,
	}
}

func (i *Ingestor) normalize(cfg vms.CameraConfig) (vms.CameraConfig, error) {
	cfg.CameraID = strings.TrimSpace(cfg.CameraID)
	cfg.SourceDescriptor = strings.TrimSpace(cfg.SourceDescriptor)
	if cfg.CameraID == "" {
		return cfg, fmt.Errorf("%w: camera_id is required", vms.ErrInvalidInput)
	}
	if cfg.SourceDescriptor == "" {
		return cfg, fmt.Errorf("%w: source is required", vms.ErrInvalidInput)
	}
	if cfg.ZoneType == "" {
		cfg.ZoneType = vms.ZoneGeneral
	}
	if !cfg.ZoneType.Valid() {
		return cfg, fmt.Errorf("%w: zone_type must be general or restricted", vms.ErrInvalidInput)
	}
	if cfg.TargetFPS == 0 {
		cfg.TargetFPS = i.cfg.DefaultFPS
	}
	if cfg.TargetFPS <= 0 {
		return cfg, fmt.Errorf("%w: target_fps must be positive", vms.ErrInvalidInput)
	}
	return cfg, nil
}

// Register adds a camera in stopped state and persists its configuration.
func (i *Ingestor) Register(ctx context.Context, cfg vms.CameraConfig) (vms.CameraStatus, error) {
	return i.register(ctx, cfg, true)
}

func (i *Ingestor) register(ctx context.Context, cfg vms.CameraConfig, persist bool) (vms.CameraStatus, error) {
	cfg, err := i.normalize(cfg)
	if err != nil {
		return vms.CameraStatus{}, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if existing, ok := i.cameras[cfg.CameraID]; ok {
		state := "stopped"
		if existing.active {
			state = "active"
		}
		return vms.CameraStatus{}, fmt.Errorf("%w: camera %s already registered (%s)", vms.ErrConflict, cfg.CameraID, state)
	}

	if err := i.proc.SetBoundary(cfg.CameraID, cfg.Boundary); err != nil {
		return vms.CameraStatus{}, err
	}
	if persist && i.store != nil {
		if err := i.store.SaveCamera(ctx, cfg); err != nil {
			i.proc.Forget(cfg.CameraID)
			return vms.CameraStatus{}, fmt.Errorf("failed to save camera %s: %w", cfg.CameraID, err)
		}
	}

	cam := &camera{cfg: cfg}
	i.cameras[cfg.CameraID] = cam
	i.log.Info().
		Str("camera_id", cfg.CameraID).
		Str("location", cfg.Location).
		Str("zone_type", string(cfg.ZoneType)).
		Float64("target_fps", cfg.TargetFPS).
		Msg("camera registered")
	return cam.status(), nil
}

// Restore registers every persisted camera in stopped state.
func (i *Ingestor) Restore(ctx context.Context) (int, error) {
	if i.store == nil {
		return 0, nil
	}
	cams, err := i.store.ListCameras(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load cameras: %w", err)
	}

	restored := 0
	for _, cfg := range cams {
		if _, err := i.register(ctx, cfg, false); err != nil {
			i.log.Warn().Err(err).Str("camera_id", cfg.CameraID).Msg("skipping stored camera")
			continue
		}
		restored++
	}
	return restored, nil
}

// Start launches the capture task. Starting a running camera is a no-op.
func (i *Ingestor) Start(cameraID string) error {
	cam, err := i.acquire(cameraID)
	if err != nil {
		return err
	}
	defer cam.op.Unlock()

	i.mu.Lock()
	if cam.cancel != nil {
		i.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	cam.cancel = cancel
	cam.done = done
	cam.active = true
	cam.lastFault = ""
	cam.faultedAt = nil
	cfg := cam.cfg
	i.updateActiveLocked()
	i.mu.Unlock()

	go i.run(ctx, cfg, done)

	i.log.Info().Str("camera_id", cameraID).Msg("camera started")
	return nil
}

// Stop cancels the capture task and returns once it has exited, including
// any frame that was being processed.
func (i *Ingestor) Stop(cameraID string) error {
	cam, err := i.acquire(cameraID)
	if err != nil {
		return err
	}
	defer cam.op.Unlock()
	i.stopLocked(cam)
	return nil
}

func (i *Ingestor) stopLocked(cam *camera) {
	i.mu.Lock()
	cancel, done := cam.cancel, cam.done
	cam.cancel, cam.done = nil, nil
	cam.active = false
	cameraID := cam.cfg.CameraID
	i.updateActiveLocked()
	i.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	i.proc.Release(cameraID)
	i.log.Info().Str("camera_id", cameraID).Msg("camera stopped")
}

// StopAll stops every camera concurrently.
func (i *Ingestor) StopAll() {
	i.mu.Lock()
	ids := make([]string, 0, len(i.cameras))
	for id := range i.cameras {
		ids = append(ids, id)
	}
	i.mu.Unlock()

	var g errgroup.Group
	for _, id := range ids {
		id := id
		g.Go(func() error {
			err := i.Stop(id)
			if errors.Is(err, vms.ErrNotFound) {
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		i.log.Error().Err(err).Msg("failed to stop cameras")
	}
}

// Remove stops the camera, drops its state and deletes its configuration.
func (i *Ingestor) Remove(ctx context.Context, cameraID string) error {
	cam, err := i.acquire(cameraID)
	if err != nil {
		return err
	}
	defer cam.op.Unlock()
	i.stopLocked(cam)

	i.mu.Lock()
	delete(i.cameras, cameraID)
	i.mu.Unlock()
	i.proc.Forget(cameraID)

	if i.store != nil {
		if err := i.store.DeleteCamera(ctx, cameraID); err != nil && !errors.Is(err, vms.ErrNotFound) {
			return fmt.Errorf("failed to delete camera %s: %w", cameraID, err)
		}
	}
	i.log.Info().Str("camera_id", cameraID).Msg("camera removed")
	return nil
}

// SetBoundary validates and replaces the camera's geofence. An empty list
// clears it.
func (i *Ingestor) SetBoundary(ctx context.Context, cameraID string, points []vms.Point) (vms.CameraStatus, error) {
	cam, err := i.acquire(cameraID)
	if err != nil {
		return vms.CameraStatus{}, err
	}
	defer cam.op.Unlock()

	if err := i.proc.SetBoundary(cameraID, points); err != nil {
		return vms.CameraStatus{}, err
	}

	i.mu.Lock()
	cam.cfg.Boundary = append([]vms.Point(nil), points...)
	cfg := cam.cfg
	i.mu.Unlock()

	if i.store != nil {
		if err := i.store.SaveCamera(ctx, cfg); err != nil {
			return vms.CameraStatus{}, fmt.Errorf("failed to save boundary for %s: %w", cameraID, err)
		}
	}

	i.log.Info().Str("camera_id", cameraID).Int("points", len(points)).Msg("boundary updated")
	return i.Status(cameraID)
}

func (i *Ingestor) Status(cameraID string) (vms.CameraStatus, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	cam, ok := i.cameras[cameraID]
	if !ok {
		return vms.CameraStatus{}, fmt.Errorf("%w: camera %s", vms.ErrNotFound, cameraID)
	}
	return cam.status(), nil
}

func (i *Ingestor) List() []vms.CameraStatus {
	i.mu.Lock()
	out := make([]vms.CameraStatus, 0, len(i.cameras))
	for _, cam := range i.cameras {
		out = append(out, cam.status())
	}
	i.mu.Unlock()

	sort.Slice(out, func(a, b int) bool { return out[a].CameraID < out[b].CameraID })
	return out
}

func (i *Ingestor) lookup(cameraID string) (*camera, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	cam, ok := i.cameras[cameraID]
	if !ok {
		return nil, fmt.Errorf("%w: camera %s", vms.ErrNotFound, cameraID)
	}
	return cam, nil
}

// acquire returns the camera with its op lock held. A camera removed while the
// caller waited for the lock is reported as not found.
func (i *Ingestor) acquire(cameraID string) (*camera, error) {
	cam, err := i.lookup(cameraID)
	if err != nil {
		return nil, err
	}
	cam.op.Lock()

	i.mu.Lock()
	current := i.cameras[cameraID]
	i.mu.Unlock()
	if current != cam {
		cam.op.Unlock()
		return nil, fmt.Errorf("%w: camera %s", vms.ErrNotFound, cameraID)
	}
	return cam, nil
}

func (i *Ingestor) updateActiveLocked() {
	n := 0
	for _, cam := range i.cameras {
		if cam.active {
			n++
		}
	}
	i.metrics.SetActiveCameras(n)
}

// fault marks the camera inactive if done still belongs to its current task.
// It runs on the exiting capture goroutine, so no other frame of the camera
// is in flight.
func (i *Ingestor) fault(cameraID string, done chan struct{}, err error) {
	i.mu.Lock()
	cam, ok := i.cameras[cameraID]
	if ok && cam.done == done {
		now := i.now()
		cam.cancel()
		cam.cancel, cam.done = nil, nil
		cam.active = false
		cam.lastFault = err.Error()
		cam.faultedAt = &now
		i.proc.Release(cameraID)
		i.updateActiveLocked()
	}
	i.mu.Unlock()

	i.metrics.CameraFault(cameraID)
	i.log.Error().Err(err).Str("camera_id", cameraID).Msg("camera ingestion failed, camera deactivated")
}

func (c *camera) status() vms.CameraStatus {
	cfg := c.cfg
	cfg.Boundary = append([]vms.Point(nil), c.cfg.Boundary...)
	return vms.CameraStatus{
		CameraConfig: cfg,
		Active:       c.active,
		LastFault:    c.lastFault,
		FaultedAt:    c.faultedAt,
	}
}
