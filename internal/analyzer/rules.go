package analyzer

import (
	"time"

	"vms-service/internal/domain/vms"
)

type restrictedZoneRule struct{}

func (restrictedZoneRule) Type() vms.EventType { return vms.EventRestrictedZoneEntry }

func (r restrictedZoneRule) Evaluate(in Input) (vms.AlertCandidate, bool) {
	if in.Camera.ZoneType != vms.ZoneRestricted || in.Face.Unknown() {
		return vms.AlertCandidate{}, false
	}
	return newCandidate(in, r.Type()), true
}

// unknownPersonRule fires once per continuous unknown presence.
type unknownPersonRule struct {
	after time.Duration
}

func (unknownPersonRule) Type() vms.EventType { return vms.EventUnknownPerson }

func (r unknownPersonRule) Evaluate(in Input) (vms.AlertCandidate, bool) {
	if !in.Face.Unknown() || in.Observation.Notified[r.Type()] {
		return vms.AlertCandidate{}, false
	}
	dwell := in.Timestamp.Sub(in.Observation.Presence.FirstSeen)
	if dwell < r.after {
		return vms.AlertCandidate{}, false
	}
	c := newCandidate(in, r.Type())
	c.Extra.DurationSeconds = vms.Float(dwell.Seconds())
	return c, true
}

type reEntryRule struct{}

func (reEntryRule) Type() vms.EventType { return vms.EventReEntryWithoutExit }

func (r reEntryRule) Evaluate(in Input) (vms.AlertCandidate, bool) {
	if in.Face.Unknown() || !in.Observation.ReEntry {
		return vms.AlertCandidate{}, false
	}
	return newCandidate(in, r.Type()), true
}

type geofenceRule struct{}

func (geofenceRule) Type() vms.EventType { return vms.EventGeofenceViolation }

func (r geofenceRule) Evaluate(in Input) (vms.AlertCandidate, bool) {
	if in.Geofence == nil {
		return vms.AlertCandidate{}, false
	}
	c := newCandidate(in, r.Type())
	c.Extra.DurationSeconds = vms.Float(in.Geofence.Duration.Seconds())
	c.Extra.PositionX = vms.Float(in.Geofence.Position.X)
	c.Extra.PositionY = vms.Float(in.Geofence.Position.Y)
	return c, true
}

type loiteringRule struct {
	after time.Duration
}

func (loiteringRule) Type() vms.EventType { return vms.EventLoitering }

func (r loiteringRule) Evaluate(in Input) (vms.AlertCandidate, bool) {
	if in.Face.Unknown() || in.Observation.Notified[r.Type()] {
		return vms.AlertCandidate{}, false
	}
	dwell := in.Observation.Presence.Dwell()
	if dwell < r.after {
		return vms.AlertCandidate{}, false
	}
	c := newCandidate(in, r.Type())
	c.Extra.DwellSeconds = vms.Float(dwell.Seconds())
	return c, true
}
