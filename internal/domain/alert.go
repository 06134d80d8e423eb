package domain

import "time"

type AlertKind string

const (
	AlertInactivity        AlertKind = "inactivity"
	AlertDeliveryReady     AlertKind = "possible_delivery_ready"
	AlertUnregisteredEntry AlertKind = "unregistered_entry"
	AlertUnauthorizedExit  AlertKind = "unauthorized_exit"
	AlertCustom            AlertKind = "custom"
)

type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is created by the rule engine and mutated only through the
// mark-read and resolve operations. Alerts are never deleted.
type Alert struct {
	ID   string    `json:"id"`
	Kind AlertKind `json:"kind"`

	// VehicleID is empty for unregistered-entry alerts, which are keyed
	// by the raw plate text instead.
	VehicleID string `json:"vehicle_id,omitempty"`
	Plate     string `json:"plate,omitempty"`

	Title    string        `json:"title"`
	Message  string        `json:"message"`
	Severity AlertSeverity `json:"severity"`

	// SensorCode is set for alerts triggered by a camera detection.
	SensorCode string `json:"sensor_code,omitempty"`

	Read     bool `json:"read"`
	Resolved bool `json:"resolved"`

	CreatedAt   time.Time `json:"created_at"`
	RefreshedAt time.Time `json:"refreshed_at"`
	ReadAt      time.Time `json:"read_at,omitzero"`
	ResolvedAt  time.Time `json:"resolved_at,omitzero"`

	ResolutionNote string `json:"resolution_note,omitempty"`
}

// SubjectKey identifies the entity an alert is about. The rule engine
// allows at most one unresolved alert per (subject, kind) pair.
func (a Alert) SubjectKey() string {
	if a.VehicleID != "" {
		return "vehicle:" + a.VehicleID
	}
	return "plate:" + a.Plate
}

// AlertCounters is the dashboard counter split over unresolved alerts.
type AlertCounters struct {
	Total      int                   `json:"total"`
	Unread     int                   `json:"unread"`
	BySeverity map[AlertSeverity]int `json:"by_severity"`
	ByKind     map[AlertKind]int     `json:"by_kind"`
}
