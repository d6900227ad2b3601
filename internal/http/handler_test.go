package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vms-service/internal/capture"
	"vms-service/internal/config"
	"vms-service/internal/db"
	"vms-service/internal/domain/vms"
	"vms-service/internal/geofence"
	"vms-service/internal/ingest"
	"vms-service/internal/metrics"
	"vms-service/internal/repository"
	"vms-service/internal/retry"
	"vms-service/internal/service"
)

type offlineOpener struct{}

func (offlineOpener) Open(context.Context, vms.CameraConfig) (capture.Source, error) {
	return nil, errors.New("offline")
}

type fenceOnly struct {
	*geofence.Engine
}

func (fenceOnly) ProcessFrame(context.Context, vms.CameraConfig, vms.Frame) error { return nil }

type testServer struct {
	router *gin.Engine
	repo   *repository.EventRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := db.Open(config.DatabaseConfig{Driver: "sqlite", DSN: "file::memory:"}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb, "sqlite"))
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := repository.NewEventRepository(gdb)
	m, err := metrics.New()
	require.NoError(t, err)

	ing := ingest.New(
		offlineOpener{},
		fenceOnly{geofence.NewEngine(time.Minute, 0)},
		repo,
		ingest.Config{DefaultFPS: 5, Reconnect: retry.Policy{MaxAttempts: 1, InitialDelay: time.Millisecond}},
		m,
		zerolog.Nop(),
	)
	t.Cleanup(ing.StopAll)

	r := gin.New()
	NewHandler(service.NewMonitorService(ing, repo, zerolog.Nop()), zerolog.Nop()).Register(r, "/metrics", m.Handler())
	return &testServer{router: r, repo: repo}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out.Data
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/v1/cameras", `{"camera_id":"cam1","source":"rtsp://x"}`)

	w := s.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "vms_active_cameras")
}

func TestCameraLifecycle(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/cameras", `{"camera_id":"cam2","source":"rtsp://10.0.0.9/live","location":"Server Room","zone_type":"restricted","target_fps":5}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[vms.CameraStatus](t, w)
	assert.Equal(t, "cam2", created.CameraID)
	assert.Equal(t, vms.ZoneRestricted, created.ZoneType)
	assert.False(t, created.Active)

	w = s.do(t, http.MethodPost, "/api/v1/cameras", `{"camera_id":"cam2","source":"rtsp://10.0.0.9/live"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPut, "/api/v1/cameras/cam2/boundary", `{"boundary":[[100,100],[500,100],[500,400],[100,400]]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode[vms.CameraStatus](t, w).Boundary, 4)

	w = s.do(t, http.MethodPut, "/api/v1/cameras/cam2/boundary", `{"boundary":[[0,0],[10,10]]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/cameras", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]vms.CameraStatus](t, w)
	require.Len(t, list, 1)
	assert.Len(t, list[0].Boundary, 4)

	w = s.do(t, http.MethodPost, "/api/v1/cameras/cam2/start", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/cameras/cam2/stop", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[vms.CameraStatus](t, w).Active)

	w = s.do(t, http.MethodDelete, "/api/v1/cameras/cam2", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodDelete, "/api/v1/cameras/cam2", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCameraValidation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/cameras", `{"camera_id":"","source":"rtsp://x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/cameras", `{"camera_id":"cam1","source":"rtsp://x","zone_type":"vault"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/cameras", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/cameras/ghost/start", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func seedEvent(t *testing.T, repo *repository.EventRepository, visitor, camera string, et vms.EventType, ts time.Time) {
	t.Helper()
	require.NoError(t, repo.CreateEvent(context.Background(), vms.Event{
		EventID:    uuid.New().String(),
		VisitorID:  visitor,
		CameraID:   camera,
		Location:   "Lobby",
		ZoneType:   vms.ZoneGeneral,
		EventType:  et,
		Confidence: 0.9,
		Timestamp:  ts,
	}))
}

func TestQueries(t *testing.T) {
	s := newTestServer(t)
	now := time.Now().UTC().Truncate(time.Second)

	seedEvent(t, s.repo, "V001", "cam2", vms.EventRestrictedZoneEntry, now.Add(-3*time.Minute))
	seedEvent(t, s.repo, "V001", "cam2", vms.EventIdentityTracking, now.Add(-2*time.Minute))
	seedEvent(t, s.repo, "unknown", "cam3", vms.EventUnknownPerson, now.Add(-time.Minute))

	w := s.do(t, http.MethodGet, "/api/v1/alerts", "")
	require.Equal(t, http.StatusOK, w.Code)
	alerts := decode[[]vms.Event](t, w)
	require.Len(t, alerts, 2)
	assert.Equal(t, vms.EventUnknownPerson, alerts[0].EventType, "newest first")

	w = s.do(t, http.MethodGet, "/api/v1/alerts?event_type=identity_tracking", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/events?event_type=identity_tracking", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]vms.Event](t, w), 1)

	w = s.do(t, http.MethodGet, "/api/v1/events?event_type=bogus", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/events?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/events?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]vms.Event](t, w), 1)

	w = s.do(t, http.MethodGet, "/api/v1/visitors/V001/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[[]vms.Event](t, w)
	require.Len(t, history, 2)
	for _, ev := range history {
		assert.Equal(t, "V001", ev.VisitorID)
	}

	w = s.do(t, http.MethodGet, "/api/v1/cameras/cam2/activity", "")
	require.Equal(t, http.StatusOK, w.Code)
	activity := decode[service.CameraActivity](t, w)
	assert.Equal(t, "cam2", activity.CameraID)
	assert.Equal(t, []repository.TypeCount{
		{EventType: string(vms.EventIdentityTracking), Count: 1},
		{EventType: string(vms.EventRestrictedZoneEntry), Count: 1},
	}, activity.Counts)
	require.Len(t, activity.Recent, 1)
	assert.Equal(t, vms.EventRestrictedZoneEntry, activity.Recent[0].EventType)
}
