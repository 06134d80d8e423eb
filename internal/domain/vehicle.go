package domain

import "time"

// Vehicle holds the descriptive attributes owned by the external vehicle
// directory. The tracker never mutates these; it only keys its state on ID.
type Vehicle struct {
	ID    string
	Plate string

	Make  string
	Model string
	Color string

	OwnerName  string
	OwnerPhone string
	OwnerEmail string

	Notes string
	Tags  []string

	// Active is false once a vehicle has been delivered or retired.
	Active bool
}

// VehicleState is the tracker-owned location state of a single vehicle.
// Zero-value timestamps mean "never happened".
type VehicleState struct {
	VehicleID string

	// CurrentZone is the zone ID, empty when the vehicle is off premises.
	CurrentZone string

	FirstEntryAt   time.Time
	LastEntryAt    time.Time
	LastExitAt     time.Time
	LastMovementAt time.Time
}

// OnPremises is true iff the vehicle is currently assigned to a zone.
func (s VehicleState) OnPremises() bool {
	return s.CurrentZone != ""
}
