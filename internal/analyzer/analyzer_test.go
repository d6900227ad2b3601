package analyzer

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vms-service/internal/domain/vms"
	"vms-service/internal/geofence"
	"vms-service/internal/tracker"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newAnalyzer(loiter time.Duration) *Analyzer {
	return New(Config{UnknownAlertAfter: 45 * time.Second, LoiteringAfter: loiter}, zerolog.Nop())
}

func types(cs []vms.AlertCandidate) []vms.EventType {
	out := make([]vms.EventType, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.EventType)
	}
	return out
}

func TestRulesSkipDisabledLoitering(t *testing.T) {
	assert.NotContains(t, newAnalyzer(0).Rules(), vms.EventLoitering)
	assert.Contains(t, newAnalyzer(time.Minute).Rules(), vms.EventLoitering)
}

func TestRestrictedZoneEntry(t *testing.T) {
	a := newAnalyzer(0)
	in := Input{
		Camera:      vms.CameraConfig{CameraID: "cam2", Location: "Server Room", ZoneType: vms.ZoneRestricted},
		Face:        vms.DetectedFace{VisitorID: "V001", Name: "Alice", Confidence: 0.91},
		Observation: tracker.Observation{Presence: vms.PresenceState{FirstSeen: t0, LastSeen: t0}},
		Timestamp:   t0,
	}

	got := a.Analyze(in)
	require.Len(t, got, 1)
	assert.Equal(t, vms.EventRestrictedZoneEntry, got[0].EventType)
	assert.Equal(t, "V001", got[0].VisitorID)
	assert.Equal(t, "cam2", got[0].CameraID)
	assert.Equal(t, vms.ZoneRestricted, got[0].ZoneType)

	in.Camera.ZoneType = vms.ZoneGeneral
	assert.Empty(t, a.Analyze(in))
}

func TestUnknownPersonThreshold(t *testing.T) {
	a := newAnalyzer(0)
	in := Input{
		Camera:      vms.CameraConfig{CameraID: "cam1", ZoneType: vms.ZoneRestricted},
		Face:        vms.DetectedFace{VisitorID: vms.UnknownVisitor, Confidence: 0.3},
		Observation: tracker.Observation{Presence: vms.PresenceState{FirstSeen: t0}},
		Timestamp:   t0.Add(44 * time.Second),
	}
	assert.Empty(t, a.Analyze(in), "unknown faces never raise restricted zone entry")

	in.Timestamp = t0.Add(45 * time.Second)
	got := a.Analyze(in)
	require.Len(t, got, 1)
	assert.Equal(t, vms.EventUnknownPerson, got[0].EventType)
	assert.Equal(t, vms.UnknownVisitor, got[0].VisitorID)
	assert.InDelta(t, 45.0, *got[0].Extra.DurationSeconds, 1e-9)

	in.Observation.Notified = map[vms.EventType]bool{vms.EventUnknownPerson: true}
	assert.Empty(t, a.Analyze(in))
}

func TestReEntryAndGeofenceCoOccur(t *testing.T) {
	a := newAnalyzer(0)
	in := Input{
		Camera: vms.CameraConfig{CameraID: "cam1", Location: "Entrance", ZoneType: vms.ZoneRestricted},
		Face:   vms.DetectedFace{VisitorID: "V002", Confidence: 0.8},
		Observation: tracker.Observation{
			Presence: vms.PresenceState{FirstSeen: t0},
			ReEntry:  true,
		},
		Geofence:  &geofence.Signal{Duration: 75 * time.Second, Position: vms.Point{X: 50, Y: 50}},
		Timestamp: t0,
	}

	got := a.Analyze(in)
	assert.ElementsMatch(t, []vms.EventType{
		vms.EventRestrictedZoneEntry,
		vms.EventReEntryWithoutExit,
		vms.EventGeofenceViolation,
	}, types(got))

	for _, c := range got {
		if c.EventType == vms.EventGeofenceViolation {
			assert.InDelta(t, 75.0, *c.Extra.DurationSeconds, 1e-9)
			assert.Equal(t, 50.0, *c.Extra.PositionX)
			assert.Equal(t, 50.0, *c.Extra.PositionY)
		}
	}
}

func TestLoitering(t *testing.T) {
	a := newAnalyzer(60 * time.Second)
	in := Input{
		Camera: vms.CameraConfig{CameraID: "cam1", ZoneType: vms.ZoneGeneral},
		Face:   vms.DetectedFace{VisitorID: "V003"},
		Observation: tracker.Observation{
			Presence: vms.PresenceState{FirstSeen: t0, LastSeen: t0.Add(61 * time.Second)},
		},
		Timestamp: t0.Add(61 * time.Second),
	}

	got := a.Analyze(in)
	require.Len(t, got, 1)
	assert.Equal(t, vms.EventLoitering, got[0].EventType)
	assert.InDelta(t, 61.0, *got[0].Extra.DwellSeconds, 1e-9)
}
