package domain

import "time"

type MovementKind string

const (
	MovementEntry      MovementKind = "entry"
	MovementExit       MovementKind = "exit"
	MovementZoneChange MovementKind = "zone_change"
	// MovementDetection is a camera re-read of a vehicle already in the
	// same zone: no location change, only a liveness ping on the record.
	MovementDetection MovementKind = "detection"
)

type EventSource string

const (
	SourceManual EventSource = "manual"
	SourceCamera EventSource = "camera"
)

// Event is a normalized movement request after ingest validation. The
// tracker may still reclassify Kind against the vehicle's current state
// (an entry while on premises becomes a zone change, and vice versa).
type Event struct {
	VehicleID string
	Kind      MovementKind
	ToZone    string
	Timestamp time.Time
	Source    EventSource

	// Camera-sourced fields.
	SensorCode string
	Confidence float64
	PlateRead  string

	Note string
}

// Movement is the immutable, append-only record of one accepted event.
type Movement struct {
	ID        string       `json:"id"`
	VehicleID string       `json:"vehicle_id"`
	Kind      MovementKind `json:"kind"`

	// FromZone/ToZone are zone IDs; empty means off premises.
	FromZone string `json:"from_zone,omitempty"`
	ToZone   string `json:"to_zone,omitempty"`

	RecordedAt time.Time   `json:"recorded_at"`
	Source     EventSource `json:"source"`

	SensorCode string  `json:"sensor_code,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	PlateRead  string  `json:"plate_read,omitempty"`

	Note string `json:"note,omitempty"`
}

// StateChange is emitted after every successful state transition, carrying
// the prior and new state for differencing by the alert rule engine and
// the persistence pipeline.
type StateChange struct {
	Movement Movement
	Prior    VehicleState
	Current  VehicleState
}
