package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vms-service/internal/analyzer"
	"vms-service/internal/domain/vms"
	"vms-service/internal/gate"
	"vms-service/internal/geofence"
	"vms-service/internal/metrics"
	"vms-service/internal/recognition"
	"vms-service/internal/tracker"
)

type Emitter interface {
	Emit(ctx context.Context, event vms.Event)
	Record(ctx context.Context, event vms.Event)
}

type Config struct {
	MissedFrames    int
	PresenceTimeout time.Duration
}

// Pipeline runs one captured frame through recognition, tracking, geofencing,
// rule evaluation and the suppression gate.
type Pipeline struct {
	recognizer recognition.Recognizer
	tracker    *tracker.Tracker
	fence      *geofence.Engine
	analyzer   *analyzer.Analyzer
	gate       *gate.Gate
	emitter    Emitter
	metrics    *metrics.Metrics
	cfg        Config
	log        zerolog.Logger
}

func New(
	recognizer recognition.Recognizer,
	tr *tracker.Tracker,
	fence *geofence.Engine,
	an *analyzer.Analyzer,
	g *gate.Gate,
	emitter Emitter,
	m *metrics.Metrics,
	cfg Config,
	log zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		recognizer: recognizer,
		tracker:    tr,
		fence:      fence,
		analyzer:   an,
		gate:       g,
		emitter:    emitter,
		metrics:    m,
		cfg:        cfg,
		log:        log.With().Str("component", "pipeline").Logger(),
	}
}

// ProcessFrame returns an error only when recognition fails; the frame is
// then skipped. Once faces are known, all state updates for the frame run to
// completion even if ctx is cancelled.
func (p *Pipeline) ProcessFrame(ctx context.Context, cam vms.CameraConfig, frame vms.Frame) error {
	faces, err := p.recognizer.Recognize(ctx, frame)
	if err != nil {
		p.metrics.FrameFailed(cam.CameraID, "recognition")
		return fmt.Errorf("recognition failed for frame %d: %w", frame.Seq, err)
	}

	ctx = context.WithoutCancel(ctx)
	ts := frame.Timestamp
	timeout := tracker.Timeout(cam.TargetFPS, p.cfg.MissedFrames, p.cfg.PresenceTimeout)

	for _, d := range p.tracker.Sweep(cam.CameraID, ts, timeout) {
		p.logDeparture(d)
	}

	for _, face := range faces {
		p.processFace(ctx, cam, face, ts, timeout)
	}

	p.metrics.FrameProcessed(cam.CameraID)
	return nil
}

func (p *Pipeline) processFace(ctx context.Context, cam vms.CameraConfig, face vms.DetectedFace, ts time.Time, timeout time.Duration) {
	visitorID := face.Identity()
	p.metrics.FaceDetected(cam.CameraID, !face.Unknown())

	obs := p.tracker.Observe(cam.CameraID, visitorID, cam.Location, ts, timeout)
	for _, d := range obs.Departures {
		p.logDeparture(d)
	}

	centroid := face.BoundingBox.Centroid()
	in := analyzer.Input{
		Camera:      cam,
		Face:        face,
		Observation: obs,
		Timestamp:   ts,
	}
	if sig, ok := p.fence.Check(cam.CameraID, visitorID, centroid, ts); ok {
		in.Geofence = &sig
	}

	p.emitter.Record(ctx, vms.Event{
		EventID:    uuid.New().String(),
		VisitorID:  visitorID,
		Name:       face.Name,
		CameraID:   cam.CameraID,
		Location:   cam.Location,
		ZoneType:   cam.ZoneType,
		EventType:  vms.EventIdentityTracking,
		Confidence: vms.RoundConfidence(face.Confidence),
		Extra:      vms.Extra{PositionX: vms.Float(centroid.X), PositionY: vms.Float(centroid.Y)},
		Timestamp:  ts,
	})

	for _, c := range p.analyzer.Analyze(in) {
		p.tracker.MarkNotified(cam.CameraID, visitorID, c.EventType)
		p.metrics.Candidate(string(c.EventType))

		if !p.gate.Admit(c) {
			p.metrics.Suppressed(string(c.EventType))
			p.log.Debug().
				Str("camera_id", c.CameraID).
				Str("visitor_id", c.VisitorID).
				Str("event_type", string(c.EventType)).
				Msg("duplicate alert suppressed")
			continue
		}

		ev := toEvent(c)
		p.metrics.Admitted(string(c.EventType))
		p.log.Info().
			Str("event_id", ev.EventID).
			Str("camera_id", ev.CameraID).
			Str("visitor_id", ev.VisitorID).
			Str("event_type", string(ev.EventType)).
			Time("timestamp", ev.Timestamp).
			Msg("alert raised")
		p.emitter.Emit(ctx, ev)
	}
}

func (p *Pipeline) logDeparture(d tracker.Departure) {
	p.log.Debug().
		Str("camera_id", d.CameraID).
		Str("visitor_id", d.VisitorID).
		Str("last_location", d.LastLocation).
		Dur("dwell", d.LastSeen.Sub(d.FirstSeen)).
		Msg("presence expired")
}

// Release drops tracker and geofence state held for a camera.
func (p *Pipeline) Release(cameraID string) {
	for _, d := range p.tracker.Release(cameraID) {
		p.logDeparture(d)
	}
	p.fence.Release(cameraID)
}

func (p *Pipeline) SetBoundary(cameraID string, points []vms.Point) error {
	return p.fence.SetBoundary(cameraID, points)
}

// Forget drops all state for a removed camera, including its boundary.
func (p *Pipeline) Forget(cameraID string) {
	p.Release(cameraID)
	p.fence.Forget(cameraID)
}

func toEvent(c vms.AlertCandidate) vms.Event {
	return vms.Event{
		EventID:    uuid.New().String(),
		VisitorID:  c.VisitorID,
		Name:       c.Name,
		CameraID:   c.CameraID,
		Location:   c.Location,
		ZoneType:   c.ZoneType,
		EventType:  c.EventType,
		Confidence: vms.RoundConfidence(c.Confidence),
		Extra:      c.Extra,
		Timestamp:  c.Timestamp,
	}
}
