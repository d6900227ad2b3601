package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	m.FrameProcessed("cam1")
	m.FrameProcessed("cam1")
	m.Admitted("geofence_violation")
	m.Suppressed("geofence_violation")
	m.SetActiveCameras(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.framesProcessed.WithLabelValues("cam1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alertsAdmitted.WithLabelValues("geofence_violation")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.activeCameras))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.FrameProcessed("cam1")
		m.CameraFault("cam1")
		m.SetActiveCameras(1)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m, err := New()
	require.NoError(t, err)
	m.CameraFault("cam9")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `vms_camera_faults_total{camera_id="cam9"} 1`)
}
