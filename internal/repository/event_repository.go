package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vms-service/internal/domain/vms"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

type EventRecord struct {
	ID         int64  `gorm:"primaryKey"`
	EventID    string `gorm:"not null;uniqueIndex:ux_events_event_id"`
	VisitorID  string `gorm:"not null;index:idx_events_visitor_ts,priority:1"`
	Name       *string
	CameraID   string `gorm:"not null;index:idx_events_camera_ts,priority:1"`
	Location   string
	ZoneType   string
	EventType  string `gorm:"not null;index:idx_events_type_ts,priority:1"`
	Confidence float64
	Extra      datatypes.JSON
	Timestamp  time.Time `gorm:"not null;index:idx_events_timestamp;index:idx_events_visitor_ts,priority:2;index:idx_events_camera_ts,priority:2;index:idx_events_type_ts,priority:2"`
	CreatedAt  time.Time
}

func (EventRecord) TableName() string { return "events" }

type CameraRecord struct {
	ID        int64  `gorm:"primaryKey"`
	CameraID  string `gorm:"not null;uniqueIndex:ux_cameras_camera_id"`
	Source    string `gorm:"not null"`
	Location  string
	ZoneType  string  `gorm:"not null"`
	TargetFPS float64 `gorm:"not null"`
	Boundary  datatypes.JSON
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (CameraRecord) TableName() string { return "cameras" }

type EventFilter struct {
	VisitorID  string
	CameraID   string
	EventType  vms.EventType
	AlertsOnly bool
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

func (r *EventRepository) CreateEvent(ctx context.Context, event vms.Event) error {
	extra, err := json.Marshal(event.Extra)
	if err != nil {
		return fmt.Errorf("failed to encode extra: %w", err)
	}

	rec := EventRecord{
		EventID:    event.EventID,
		VisitorID:  event.VisitorID,
		CameraID:   event.CameraID,
		Location:   event.Location,
		ZoneType:   string(event.ZoneType),
		EventType:  string(event.EventType),
		Confidence: event.Confidence,
		Extra:      datatypes.JSON(extra),
		Timestamp:  event.Timestamp,
		CreatedAt:  time.Now(),
	}
	if event.Name != "" {
		rec.Name = &event.Name
	}

	// Retried writes of the same event must not create duplicates.
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(&rec).Error
}

func (r *EventRepository) FindEvents(ctx context.Context, f EventFilter) ([]vms.Event, error) {
	query := r.db.WithContext(ctx).Model(&EventRecord{})

	if f.VisitorID != "" {
		query = query.Where("visitor_id = ?", f.VisitorID)
	}
	if f.CameraID != "" {
		query = query.Where("camera_id = ?", f.CameraID)
	}
	if f.EventType != "" {
		query = query.Where("event_type = ?", string(f.EventType))
	} else if f.AlertsOnly {
		query = query.Where("event_type <> ?", string(vms.EventIdentityTracking))
	}
	if f.From != nil {
		query = query.Where("timestamp >= ?", *f.From)
	}
	if f.To != nil {
		query = query.Where("timestamp <= ?", *f.To)
	}

	query = query.Order("timestamp DESC").Order("id DESC")

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	query = query.Limit(limit)
	if f.Offset > 0 {
		query = query.Offset(f.Offset)
	}

	var records []EventRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}

	events := make([]vms.Event, 0, len(records))
	for _, rec := range records {
		ev, err := rec.toEvent()
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

type TypeCount struct {
	EventType string `json:"event_type"`
	Count     int64  `json:"count"`
}

// CountByType summarises a camera's events since from.
func (r *EventRepository) CountByType(ctx context.Context, cameraID string, from time.Time) ([]TypeCount, error) {
	var counts []TypeCount
	err := r.db.WithContext(ctx).
		Model(&EventRecord{}).
		Select("event_type, COUNT(*) AS count").
		Where("camera_id = ? AND timestamp >= ?", cameraID, from).
		Group("event_type").
		Order("event_type").
		Scan(&counts).Error
	return counts, err
}

func (r *EventRepository) SaveCamera(ctx context.Context, cam vms.CameraConfig) error {
	rec := CameraRecord{
		CameraID:  cam.CameraID,
		Source:    cam.SourceDescriptor,
		Location:  cam.Location,
		ZoneType:  string(cam.ZoneType),
		TargetFPS: cam.TargetFPS,
	}
	if len(cam.Boundary) > 0 {
		b, err := json.Marshal(cam.Boundary)
		if err != nil {
			return fmt.Errorf("failed to encode boundary: %w", err)
		}
		rec.Boundary = datatypes.JSON(b)
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "camera_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"source", "location", "zone_type", "target_fps", "boundary", "updated_at"}),
		}).
		Create(&rec).Error
}

func (r *EventRepository) ListCameras(ctx context.Context) ([]vms.CameraConfig, error) {
	var records []CameraRecord
	if err := r.db.WithContext(ctx).Order("camera_id").Find(&records).Error; err != nil {
		return nil, err
	}

	cams := make([]vms.CameraConfig, 0, len(records))
	for _, rec := range records {
		cam := vms.CameraConfig{
			CameraID:         rec.CameraID,
			SourceDescriptor: rec.Source,
			Location:         rec.Location,
			ZoneType:         vms.ZoneType(rec.ZoneType),
			TargetFPS:        rec.TargetFPS,
		}
		if len(rec.Boundary) > 0 {
			if err := json.Unmarshal(rec.Boundary, &cam.Boundary); err != nil {
				return nil, fmt.Errorf("failed to decode boundary of %s: %w", rec.CameraID, err)
			}
		}
		cams = append(cams, cam)
	}
	return cams, nil
}

func (r *EventRepository) DeleteCamera(ctx context.Context, cameraID string) error {
	res := r.db.WithContext(ctx).Where("camera_id = ?", cameraID).Delete(&CameraRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: camera %s", vms.ErrNotFound, cameraID)
	}
	return nil
}

func (rec EventRecord) toEvent() (vms.Event, error) {
	ev := vms.Event{
		EventID:    rec.EventID,
		VisitorID:  rec.VisitorID,
		CameraID:   rec.CameraID,
		Location:   rec.Location,
		ZoneType:   vms.ZoneType(rec.ZoneType),
		EventType:  vms.EventType(rec.EventType),
		Confidence: rec.Confidence,
		Timestamp:  rec.Timestamp,
	}
	if rec.Name != nil {
		ev.Name = *rec.Name
	}
	if len(rec.Extra) > 0 {
		if err := json.Unmarshal(rec.Extra, &ev.Extra); err != nil {
			return vms.Event{}, fmt.Errorf("failed to decode extra of %s: %w", rec.EventID, err)
		}
	}
	return ev, nil
}
