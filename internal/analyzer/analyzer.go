package analyzer

import (
	"time"

	"github.com/rs/zerolog"

	"vms-service/internal/domain/vms"
	"vms-service/internal/geofence"
	"vms-service/internal/tracker"
)

// Input is everything known about one detection after the tracker and the
// geofence engine have processed it.
type Input struct {
	Camera      vms.CameraConfig
	Face        vms.DetectedFace
	Observation tracker.Observation
	Geofence    *geofence.Signal
	Timestamp   time.Time
}

// Rule produces at most one candidate of its event type per detection.
type Rule interface {
	Type() vms.EventType
	Evaluate(in Input) (vms.AlertCandidate, bool)
}

type Config struct {
	UnknownAlertAfter time.Duration
	// LoiteringAfter <= 0 disables the loitering rule.
	LoiteringAfter time.Duration
}

type Analyzer struct {
	rules []Rule
	log   zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) *Analyzer {
	a := &Analyzer{log: log.With().Str("component", "analyzer").Logger()}
	for _, t := range vms.AlertTypes {
		switch t {
		case vms.EventRestrictedZoneEntry:
			a.rules = append(a.rules, restrictedZoneRule{})
		case vms.EventUnknownPerson:
			a.rules = append(a.rules, unknownPersonRule{after: cfg.UnknownAlertAfter})
		case vms.EventReEntryWithoutExit:
			a.rules = append(a.rules, reEntryRule{})
		case vms.EventGeofenceViolation:
			a.rules = append(a.rules, geofenceRule{})
		case vms.EventLoitering:
			if cfg.LoiteringAfter > 0 {
				a.rules = append(a.rules, loiteringRule{after: cfg.LoiteringAfter})
			}
		}
	}
	return a
}

func (a *Analyzer) Rules() []vms.EventType {
	out := make([]vms.EventType, 0, len(a.rules))
	for _, r := range a.rules {
		out = append(out, r.Type())
	}
	return out
}

// Analyze runs every rule independently; any combination may fire for the
// same detection.
func (a *Analyzer) Analyze(in Input) []vms.AlertCandidate {
	var out []vms.AlertCandidate
	for _, r := range a.rules {
		c, ok := r.Evaluate(in)
		if !ok {
			continue
		}
		a.log.Debug().
			Str("camera_id", c.CameraID).
			Str("visitor_id", c.VisitorID).
			Str("event_type", string(c.EventType)).
			Msg("rule matched")
		out = append(out, c)
	}
	return out
}

func newCandidate(in Input, t vms.EventType) vms.AlertCandidate {
	return vms.AlertCandidate{
		VisitorID:  in.Face.Identity(),
		Name:       in.Face.Name,
		CameraID:   in.Camera.CameraID,
		Location:   in.Camera.Location,
		ZoneType:   in.Camera.ZoneType,
		EventType:  t,
		Confidence: in.Face.Confidence,
		Timestamp:  in.Timestamp,
	}
}
