package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vms-service/internal/domain/vms"
	"vms-service/internal/ingest"
	"vms-service/internal/repository"
)

const defaultActivityWindow = 24 * time.Hour

type MonitorService struct {
	cameras *ingest.Ingestor
	repo    *repository.EventRepository
	log     zerolog.Logger
	now     func() time.Time
}

func NewMonitorService(cameras *ingest.Ingestor, repo *repository.EventRepository, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		cameras: cameras,
		repo:    repo,
		log:     log,
		now:     time.Now,
	}
}

// CameraRequest is the body of camera registration.
type CameraRequest struct {
	CameraID  string       `json:"camera_id"`
	Source    string       `json:"source"`
	Location  string       `json:"location"`
	ZoneType  string       `json:"zone_type"`
	TargetFPS float64      `json:"target_fps"`
	Boundary  [][2]float64 `json:"boundary"`
	Autostart bool         `json:"autostart"`
}

func (s *MonitorService) RegisterCamera(ctx context.Context, req CameraRequest) (vms.CameraStatus, error) {
	cfg := vms.CameraConfig{
		CameraID:         req.CameraID,
		SourceDescriptor: req.Source,
		Location:         req.Location,
		ZoneType:         vms.ZoneType(strings.ToLower(strings.TrimSpace(req.ZoneType))),
		TargetFPS:        req.TargetFPS,
		Boundary:         PointsFromPairs(req.Boundary),
	}

	status, err := s.cameras.Register(ctx, cfg)
	if err != nil {
		return vms.CameraStatus{}, err
	}
	if !req.Autostart {
		return status, nil
	}
	if err := s.cameras.Start(status.CameraID); err != nil {
		s.log.Error().Err(err).Str("camera_id", status.CameraID).Msg("failed to autostart camera")
		return vms.CameraStatus{}, fmt.Errorf("failed to start camera: %w", err)
	}
	return s.cameras.Status(status.CameraID)
}

func (s *MonitorService) ListCameras() []vms.CameraStatus {
	return s.cameras.List()
}

func (s *MonitorService) StartCamera(cameraID string) (vms.CameraStatus, error) {
	if err := s.cameras.Start(cameraID); err != nil {
		return vms.CameraStatus{}, err
	}
	return s.cameras.Status(cameraID)
}

func (s *MonitorService) StopCamera(cameraID string) (vms.CameraStatus, error) {
	if err := s.cameras.Stop(cameraID); err != nil {
		return vms.CameraStatus{}, err
	}
	return s.cameras.Status(cameraID)
}

func (s *MonitorService) RemoveCamera(ctx context.Context, cameraID string) error {
	return s.cameras.Remove(ctx, cameraID)
}

func (s *MonitorService) SetBoundary(ctx context.Context, cameraID string, pairs [][2]float64) (vms.CameraStatus, error) {
	return s.cameras.SetBoundary(ctx, cameraID, PointsFromPairs(pairs))
}

// EventQuery carries raw query parameters; times are RFC3339.
type EventQuery struct {
	VisitorID string
	CameraID  string
	EventType string
	From      string
	To        string
	Limit     int
	Offset    int
}

func (s *MonitorService) ListAlerts(ctx context.Context, q EventQuery) ([]vms.Event, error) {
	filter, err := s.filter(q)
	if err != nil {
		return nil, err
	}
	if filter.EventType != "" && !filter.EventType.IsAlert() {
		return nil, fmt.Errorf("%w: %s is not an alert type", vms.ErrInvalidInput, filter.EventType)
	}
	filter.AlertsOnly = true
	return s.find(ctx, filter)
}

func (s *MonitorService) ListEvents(ctx context.Context, q EventQuery) ([]vms.Event, error) {
	filter, err := s.filter(q)
	if err != nil {
		return nil, err
	}
	return s.find(ctx, filter)
}

func (s *MonitorService) VisitorHistory(ctx context.Context, visitorID string, q EventQuery) ([]vms.Event, error) {
	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" {
		return nil, fmt.Errorf("%w: visitor id is required", vms.ErrInvalidInput)
	}
	q.VisitorID = visitorID
	return s.ListEvents(ctx, q)
}

type CameraActivity struct {
	CameraID string                 `json:"camera_id"`
	Since    time.Time              `json:"since"`
	Counts   []repository.TypeCount `json:"counts"`
	Recent   []vms.Event            `json:"recent_alerts"`
}

// CameraActivity summarises events recorded by a camera since the given
// RFC3339 time, or over the last 24 hours when since is empty.
func (s *MonitorService) CameraActivity(ctx context.Context, cameraID, since string, limit int) (*CameraActivity, error) {
	cameraID = strings.TrimSpace(cameraID)
	if cameraID == "" {
		return nil, fmt.Errorf("%w: camera id is required", vms.ErrInvalidInput)
	}

	from := s.now().UTC().Add(-defaultActivityWindow)
	if since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid since time format", vms.ErrInvalidInput)
		}
		from = t
	}

	counts, err := s.repo.CountByType(ctx, cameraID, from)
	if err != nil {
		s.log.Error().Err(err).Str("camera_id", cameraID).Msg("failed to count camera events")
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	recent, err := s.find(ctx, repository.EventFilter{
		CameraID:   cameraID,
		AlertsOnly: true,
		From:       &from,
		Limit:      clampLimit(limit),
	})
	if err != nil {
		return nil, err
	}

	if counts == nil {
		counts = []repository.TypeCount{}
	}
	return &CameraActivity{CameraID: cameraID, Since: from, Counts: counts, Recent: recent}, nil
}

func (s *MonitorService) filter(q EventQuery) (repository.EventFilter, error) {
	f := repository.EventFilter{
		VisitorID: strings.TrimSpace(q.VisitorID),
		CameraID:  strings.TrimSpace(q.CameraID),
		Limit:     clampLimit(q.Limit),
		Offset:    q.Offset,
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	if et := strings.TrimSpace(q.EventType); et != "" {
		f.EventType = vms.EventType(et)
		if !f.EventType.Valid() {
			return f, fmt.Errorf("%w: unknown event_type %q", vms.ErrInvalidInput, et)
		}
	}
	if q.From != "" {
		t, err := time.Parse(time.RFC3339, q.From)
		if err != nil {
			return f, fmt.Errorf("%w: invalid from time format", vms.ErrInvalidInput)
		}
		f.From = &t
	}
	if q.To != "" {
		t, err := time.Parse(time.RFC3339, q.To)
		if err != nil {
			return f, fmt.Errorf("%w: invalid to time format", vms.ErrInvalidInput)
		}
		f.To = &t
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return f, fmt.Errorf("%w: to must not be before from", vms.ErrInvalidInput)
	}
	return f, nil
}

func (s *MonitorService) find(ctx context.Context, f repository.EventFilter) ([]vms.Event, error) {
	events, err := s.repo.FindEvents(ctx, f)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to find events")
		return nil, fmt.Errorf("failed to find events: %w", err)
	}
	return events, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return repository.DefaultLimit
	}
	if limit > repository.MaxLimit {
		return repository.MaxLimit
	}
	return limit
}

// PointsFromPairs converts [[x,y],...] into polygon vertices.
func PointsFromPairs(pairs [][2]float64) []vms.Point {
	if len(pairs) == 0 {
		return nil
	}
	out := make([]vms.Point, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, vms.Point{X: p[0], Y: p[1]})
	}
	return out
}
