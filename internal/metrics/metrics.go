package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vms"

// Metrics holds the service collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	framesProcessed  *prometheus.CounterVec
	framesFailed     *prometheus.CounterVec
	facesDetected    *prometheus.CounterVec
	candidates       *prometheus.CounterVec
	alertsAdmitted   *prometheus.CounterVec
	alertsSuppressed *prometheus.CounterVec
	persistFailures  prometheus.Counter
	forwardFailures  *prometheus.CounterVec
	forwardDropped   prometheus.Counter
	cameraFaults     *prometheus.CounterVec
	activeCameras    prometheus.Gauge
}

func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		framesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_processed_total",
			Help:      "Frames that completed the analysis pipeline.",
		}, []string{"camera_id"}),
		framesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_failed_total",
			Help:      "Frames skipped because capture or recognition failed.",
		}, []string{"camera_id", "stage"}),
		facesDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faces_detected_total",
			Help:      "Faces returned by recognition, by identity kind.",
		}, []string{"camera_id", "kind"}),
		candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_candidates_total",
			Help:      "Alert candidates produced by the analyzer.",
		}, []string{"event_type"}),
		alertsAdmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_admitted_total",
			Help:      "Alerts admitted by the suppression gate.",
		}, []string{"event_type"}),
		alertsSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_suppressed_total",
			Help:      "Alerts dropped as duplicates.",
		}, []string{"event_type"}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_persist_failures_total",
			Help:      "Records dropped without being persisted.",
		}),
		forwardFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_forward_failures_total",
			Help:      "Forward deliveries that failed after retries.",
		}, []string{"forwarder"}),
		forwardDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_forward_dropped_total",
			Help:      "Alerts not forwarded because the forward queue was full.",
		}),
		cameraFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "camera_faults_total",
			Help:      "Cameras deactivated after reconnect attempts were exhausted.",
		}, []string{"camera_id"}),
		activeCameras: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_cameras",
			Help:      "Cameras with a running capture task.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.framesProcessed, m.framesFailed, m.facesDetected, m.candidates,
		m.alertsAdmitted, m.alertsSuppressed, m.persistFailures,
		m.forwardFailures, m.forwardDropped, m.cameraFaults, m.activeCameras,
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) FrameProcessed(cameraID string) {
	if m == nil {
		return
	}
	m.framesProcessed.WithLabelValues(cameraID).Inc()
}

func (m *Metrics) FrameFailed(cameraID, stage string) {
	if m == nil {
		return
	}
	m.framesFailed.WithLabelValues(cameraID, stage).Inc()
}

func (m *Metrics) FaceDetected(cameraID string, known bool) {
	if m == nil {
		return
	}
	kind := "unknown"
	if known {
		kind = "known"
	}
	m.facesDetected.WithLabelValues(cameraID, kind).Inc()
}

func (m *Metrics) Candidate(eventType string) {
	if m == nil {
		return
	}
	m.candidates.WithLabelValues(eventType).Inc()
}

func (m *Metrics) Admitted(eventType string) {
	if m == nil {
		return
	}
	m.alertsAdmitted.WithLabelValues(eventType).Inc()
}

func (m *Metrics) Suppressed(eventType string) {
	if m == nil {
		return
	}
	m.alertsSuppressed.WithLabelValues(eventType).Inc()
}

func (m *Metrics) PersistFailed() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

func (m *Metrics) ForwardFailed(forwarder string) {
	if m == nil {
		return
	}
	m.forwardFailures.WithLabelValues(forwarder).Inc()
}

func (m *Metrics) ForwardDropped() {
	if m == nil {
		return
	}
	m.forwardDropped.Inc()
}

func (m *Metrics) CameraFault(cameraID string) {
	if m == nil {
		return
	}
	m.cameraFaults.WithLabelValues(cameraID).Inc()
}

func (m *Metrics) SetActiveCameras(n int) {
	if m == nil {
		return
	}
	m.activeCameras.Set(float64(n))
}
