package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vms-service/internal/domain/vms"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&EventRecord{}, &CameraRecord{}))
	return db
}

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func event(visitor, camera string, et vms.EventType, ts time.Time) vms.Event {
	return vms.Event{
		EventID:    uuid.New().String(),
		VisitorID:  visitor,
		CameraID:   camera,
		Location:   "Lobby",
		ZoneType:   vms.ZoneGeneral,
		EventType:  et,
		Confidence: 0.87,
		Timestamp:  ts,
	}
}

func TestCreateAndFindEvents(t *testing.T) {
	repo := NewEventRepository(setupTestDB(t))
	ctx := context.Background()

	geo := event("V001", "cam1", vms.EventGeofenceViolation, t0.Add(2*time.Second))
	geo.Name = "Alice"
	geo.Extra = vms.Extra{
		DurationSeconds: vms.Float(75),
		PositionX:       vms.Float(50),
		PositionY:       vms.Float(50),
	}
	require.NoError(t, repo.CreateEvent(ctx, event("V001", "cam1", vms.EventIdentityTracking, t0)))
	require.NoError(t, repo.CreateEvent(ctx, event("V002", "cam2", vms.EventRestrictedZoneEntry, t0.Add(time.Second))))
	require.NoError(t, repo.CreateEvent(ctx, geo))

	all, err := repo.FindEvents(ctx, EventFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, geo.EventID, all[0].EventID, "newest first")
	assert.Equal(t, "Alice", all[0].Name)
	require.NotNil(t, all[0].Extra.DurationSeconds)
	assert.Equal(t, 75.0, *all[0].Extra.DurationSeconds)
	assert.True(t, all[0].Timestamp.Equal(geo.Timestamp))

	alerts, err := repo.FindEvents(ctx, EventFilter{AlertsOnly: true})
	require.NoError(t, err)
	assert.Len(t, alerts, 2)

	byVisitor, err := repo.FindEvents(ctx, EventFilter{VisitorID: "V001"})
	require.NoError(t, err)
	assert.Len(t, byVisitor, 2)

	byType, err := repo.FindEvents(ctx, EventFilter{EventType: vms.EventRestrictedZoneEntry})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, "cam2", byType[0].CameraID)

	from := t0.Add(time.Second)
	ranged, err := repo.FindEvents(ctx, EventFilter{CameraID: "cam1", From: &from})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, vms.EventGeofenceViolation, ranged[0].EventType)
}

func TestCreateEventIsIdempotent(t *testing.T) {
	repo := NewEventRepository(setupTestDB(t))
	ctx := context.Background()

	ev := event("V001", "cam1", vms.EventUnknownPerson, t0)
	require.NoError(t, repo.CreateEvent(ctx, ev))
	require.NoError(t, repo.CreateEvent(ctx, ev))

	all, err := repo.FindEvents(ctx, EventFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestFindEventsLimitAndOffset(t *testing.T) {
	repo := NewEventRepository(setupTestDB(t))
	ctx := context.Background()

	for i := 0; i < 120; i++ {
		require.NoError(t, repo.CreateEvent(ctx, event(fmt.Sprintf("V%03d", i), "cam1", vms.EventIdentityTracking, t0.Add(time.Duration(i)*time.Second))))
	}

	page, err := repo.FindEvents(ctx, EventFilter{})
	require.NoError(t, err)
	assert.Len(t, page, DefaultLimit)

	page, err = repo.FindEvents(ctx, EventFilter{Limit: 500})
	require.NoError(t, err)
	assert.Len(t, page, MaxLimit)

	page, err = repo.FindEvents(ctx, EventFilter{Limit: 10, Offset: 115})
	require.NoError(t, err)
	require.Len(t, page, 5)
	assert.Equal(t, "V004", page[0].VisitorID)
}

func TestCountByType(t *testing.T) {
	repo := NewEventRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.CreateEvent(ctx, event("V001", "cam1", vms.EventIdentityTracking, t0)))
	require.NoError(t, repo.CreateEvent(ctx, event("V001", "cam1", vms.EventIdentityTracking, t0.Add(time.Second))))
	require.NoError(t, repo.CreateEvent(ctx, event("V001", "cam1", vms.EventLoitering, t0.Add(time.Minute))))
	require.NoError(t, repo.CreateEvent(ctx, event("V001", "cam2", vms.EventLoitering, t0)))

	counts, err := repo.CountByType(ctx, "cam1", t0)
	require.NoError(t, err)
	assert.Equal(t, []TypeCount{
		{EventType: "identity_tracking", Count: 2},
		{EventType: "loitering", Count: 1},
	}, counts)
}

func TestCameraCRUD(t *testing.T) {
	repo := NewEventRepository(setupTestDB(t))
	ctx := context.Background()

	cam := vms.CameraConfig{
		CameraID:         "cam1",
		SourceDescriptor: "rtsp://10.0.0.5/stream",
		Location:         "Entrance",
		ZoneType:         vms.ZoneGeneral,
		TargetFPS:        5,
	}
	require.NoError(t, repo.SaveCamera(ctx, cam))

	cam.Boundary = []vms.Point{{X: 100, Y: 100}, {X: 500, Y: 100}, {X: 500, Y: 400}}
	cam.Location = "Main Entrance"
	require.NoError(t, repo.SaveCamera(ctx, cam))

	cams, err := repo.ListCameras(ctx)
	require.NoError(t, err)
	require.Len(t, cams, 1)
	assert.Equal(t, "Main Entrance", cams[0].Location)
	assert.Equal(t, cam.Boundary, cams[0].Boundary)
	assert.Equal(t, "rtsp://10.0.0.5/stream", cams[0].SourceDescriptor)

	require.NoError(t, repo.DeleteCamera(ctx, "cam1"))
	assert.ErrorIs(t, repo.DeleteCamera(ctx, "cam1"), vms.ErrNotFound)
	cams, err = repo.ListCameras(ctx)
	require.NoError(t, err)
	assert.Empty(t, cams)
}
