package vms

import (
	"errors"
	"math"
	"time"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

// UnknownVisitor is the identity assigned to faces the recognition
// subsystem could not resolve.
const UnknownVisitor = "unknown"

type ZoneType string

const (
	ZoneGeneral    ZoneType = "general"
	ZoneRestricted ZoneType = "restricted"
)

func (z ZoneType) Valid() bool {
	return z == ZoneGeneral || z == ZoneRestricted
}

type EventType string

const (
	EventRestrictedZoneEntry EventType = "restricted_zone_entry"
	EventUnknownPerson       EventType = "unknown_person"
	EventReEntryWithoutExit  EventType = "re_entry_without_exit"
	EventGeofenceViolation   EventType = "geofence_violation"
	EventLoitering           EventType = "loitering"

	// EventIdentityTracking marks raw per-face tracking records. It is never
	// produced as an alert.
	EventIdentityTracking EventType = "identity_tracking"
)

// AlertTypes lists every event type the analyzer can raise.
var AlertTypes = []EventType{
	EventRestrictedZoneEntry,
	EventUnknownPerson,
	EventReEntryWithoutExit,
	EventGeofenceViolation,
	EventLoitering,
}

func (t EventType) IsAlert() bool {
	switch t {
	case EventRestrictedZoneEntry, EventUnknownPerson, EventReEntryWithoutExit,
		EventGeofenceViolation, EventLoitering:
		return true
	}
	return false
}

func (t EventType) Valid() bool {
	return t.IsAlert() || t == EventIdentityTracking
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type BoundingBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

func (b BoundingBox) Centroid() Point {
	return Point{X: b.X + b.W/2, Y: b.Y + b.H/2}
}

type CameraConfig struct {
	CameraID         string   `json:"camera_id"`
	SourceDescriptor string   `json:"source"`
	Location         string   `json:"location"`
	ZoneType         ZoneType `json:"zone_type"`
	TargetFPS        float64  `json:"target_fps"`
	Boundary         []Point  `json:"boundary,omitempty"`
}

// CameraStatus is a registry snapshot of one camera.
type CameraStatus struct {
	CameraConfig
	Active    bool       `json:"active"`
	LastFault string     `json:"last_fault,omitempty"`
	FaultedAt *time.Time `json:"faulted_at,omitempty"`
}

type DetectedFace struct {
	VisitorID   string      `json:"visitor_id"`
	Name        string      `json:"name,omitempty"`
	Confidence  float64     `json:"confidence"`
	BoundingBox BoundingBox `json:"bbox"`
}

func (f DetectedFace) Unknown() bool {
	return f.VisitorID == "" || f.VisitorID == UnknownVisitor
}

// Identity returns the visitor id, mapping unresolved faces to UnknownVisitor.
func (f DetectedFace) Identity() string {
	if f.Unknown() {
		return UnknownVisitor
	}
	return f.VisitorID
}

type Frame struct {
	CameraID  string
	Seq       uint64
	Data      []byte
	Timestamp time.Time
}

type PresenceState struct {
	CameraID     string    `json:"camera_id"`
	VisitorID    string    `json:"visitor_id"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	LastLocation string    `json:"last_location"`
	Present      bool      `json:"present"`
}

func (p PresenceState) Dwell() time.Duration {
	return p.LastSeen.Sub(p.FirstSeen)
}

type Extra struct {
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	DwellSeconds    *float64 `json:"dwell_seconds,omitempty"`
	PositionX       *float64 `json:"position_x,omitempty"`
	PositionY       *float64 `json:"position_y,omitempty"`
}

type AlertCandidate struct {
	VisitorID  string
	Name       string
	CameraID   string
	Location   string
	ZoneType   ZoneType
	EventType  EventType
	Confidence float64
	Extra      Extra
	Timestamp  time.Time
}

type SuppressionKey struct {
	VisitorID string
	CameraID  string
	EventType EventType
}

func (c AlertCandidate) Key() SuppressionKey {
	return SuppressionKey{VisitorID: c.VisitorID, CameraID: c.CameraID, EventType: c.EventType}
}

type Event struct {
	EventID    string    `json:"event_id"`
	VisitorID  string    `json:"visitor_id"`
	Name       string    `json:"name,omitempty"`
	CameraID   string    `json:"camera_id"`
	Location   string    `json:"location"`
	ZoneType   ZoneType  `json:"zone_type"`
	EventType  EventType `json:"event_type"`
	Confidence float64   `json:"confidence"`
	Extra      Extra     `json:"extra"`
	Timestamp  time.Time `json:"timestamp"`
}

// RoundConfidence rounds to four decimal places.
func RoundConfidence(c float64) float64 {
	return math.Round(c*10000) / 10000
}

func Float(v float64) *float64 {
	return &v
}
