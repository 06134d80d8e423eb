package domain

// ZoneKind classifies the physical areas of the facility.
type ZoneKind string

const (
	ZoneEntrance ZoneKind = "entrance"
	ZoneYard     ZoneKind = "yard"
	ZoneWorkshop ZoneKind = "workshop"
)

// Zone is a physical area of the facility. Zones are loaded once from the
// catalog file and never mutated while the service runs.
type Zone struct {
	ID          string
	Code        string
	Name        string
	Kind        ZoneKind
	Description string

	// Layout of the zone on the facility map, in relative coordinates.
	X      float64
	Y      float64
	Width  float64
	Height float64
	Color  string

	Order  int
	Active bool
}

type SensorKind string

const (
	SensorLPR      SensorKind = "lpr"
	SensorOverview SensorKind = "overview"
)

// SensorDirection is the traffic direction an entrance LPR camera watches.
// Interior sensors carry no direction.
type SensorDirection string

const (
	DirectionIn   SensorDirection = "in"
	DirectionOut  SensorDirection = "out"
	DirectionBoth SensorDirection = "both"
)

// Sensor is a camera associated with a zone. LPR sensors produce
// plate detections; overview sensors exist only as catalog entries.
type Sensor struct {
	Code      string
	Name      string
	Kind      SensorKind
	ZoneID    string
	Direction SensorDirection
	Active    bool
}
