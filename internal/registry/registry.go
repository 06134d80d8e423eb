// Package registry holds the static catalog of zones and their sensors.
// The catalog is loaded once at startup and is read-only afterwards; every
// other component resolves zones and sensors through it.
package registry

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"yard-monitor/tracking/internal/domain"
)

type zoneEntry struct {
	ID          string  `yaml:"id" validate:"required"`
	Code        string  `yaml:"code" validate:"required"`
	Name        string  `yaml:"name" validate:"required"`
	Kind        string  `yaml:"kind" validate:"required,oneof=entrance yard workshop"`
	Description string  `yaml:"description"`
	X           float64 `yaml:"x"`
	Y           float64 `yaml:"y"`
	Width       float64 `yaml:"width"`
	Height      float64 `yaml:"height"`
	Color       string  `yaml:"color"`
	Order       int     `yaml:"order"`
	Inactive    bool    `yaml:"inactive"`
}

type sensorEntry struct {
	Code      string `yaml:"code" validate:"required"`
	Name      string `yaml:"name"`
	Kind      string `yaml:"kind" validate:"required,oneof=lpr overview"`
	Zone      string `yaml:"zone" validate:"required"`
	Direction string `yaml:"direction" validate:"omitempty,oneof=in out both"`
	Inactive  bool   `yaml:"inactive"`
}

type catalogFile struct {
	Zones   []zoneEntry   `yaml:"zones" validate:"required,min=1,dive"`
	Sensors []sensorEntry `yaml:"sensors" validate:"dive"`
}

// Registry resolves zones by ID or code and sensors by code.
type Registry struct {
	zones   map[string]domain.Zone
	byCode  map[string]string
	sensors map[string]domain.Sensor
	ordered []domain.Zone
}

// LoadFile reads and validates a YAML zone catalog.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read zone catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse zone catalog: %w", err)
	}
	if err := validator.New().Struct(file); err != nil {
		return nil, fmt.Errorf("validate zone catalog: %w", err)
	}

	zones := make([]domain.Zone, 0, len(file.Zones))
	for _, z := range file.Zones {
		zones = append(zones, domain.Zone{
			ID:          z.ID,
			Code:        strings.ToUpper(z.Code),
			Name:        z.Name,
			Kind:        domain.ZoneKind(z.Kind),
			Description: z.Description,
			X:           z.X,
			Y:           z.Y,
			Width:       z.Width,
			Height:      z.Height,
			Color:       z.Color,
			Order:       z.Order,
			Active:      !z.Inactive,
		})
	}
	sensors := make([]domain.Sensor, 0, len(file.Sensors))
	for _, s := range file.Sensors {
		sensors = append(sensors, domain.Sensor{
			Code:      strings.ToUpper(s.Code),
			Name:      s.Name,
			Kind:      domain.SensorKind(s.Kind),
			ZoneID:    s.Zone,
			Direction: domain.SensorDirection(s.Direction),
			Active:    !s.Inactive,
		})
	}
	return New(zones, sensors)
}

// New builds a registry from already-parsed entries, enforcing referential
// integrity and the entrance-direction uniqueness invariant.
func New(zones []domain.Zone, sensors []domain.Sensor) (*Registry, error) {
	r := &Registry{
		zones:   make(map[string]domain.Zone, len(zones)),
		byCode:  make(map[string]string, len(zones)),
		sensors: make(map[string]domain.Sensor, len(sensors)),
	}

	for _, z := range zones {
		if _, dup := r.zones[z.ID]; dup {
			return nil, fmt.Errorf("duplicate zone id %q", z.ID)
		}
		if _, dup := r.byCode[z.Code]; dup {
			return nil, fmt.Errorf("duplicate zone code %q", z.Code)
		}
		r.zones[z.ID] = z
		r.byCode[z.Code] = z.ID
		r.ordered = append(r.ordered, z)
	}
	sort.SliceStable(r.ordered, func(i, j int) bool { return r.ordered[i].Order < r.ordered[j].Order })

	// One entrance zone at most per LPR direction; a second would make the
	// implied direction of a detection ambiguous.
	entranceFor := map[domain.SensorDirection]string{}
	for _, s := range sensors {
		if _, dup := r.sensors[s.Code]; dup {
			return nil, fmt.Errorf("duplicate sensor code %q", s.Code)
		}
		zone, ok := r.zones[s.ZoneID]
		if !ok {
			return nil, fmt.Errorf("sensor %q references unknown zone %q", s.Code, s.ZoneID)
		}
		if s.Kind == domain.SensorLPR && zone.Kind == domain.ZoneEntrance {
			if s.Direction == "" {
				return nil, fmt.Errorf("entrance sensor %q has no direction", s.Code)
			}
			for _, dir := range expandDirections(s.Direction) {
				if prev, seen := entranceFor[dir]; seen && prev != zone.ID {
					return nil, fmt.Errorf("zones %q and %q both map entrance direction %q", prev, zone.ID, dir)
				}
				entranceFor[dir] = zone.ID
			}
		}
		r.sensors[s.Code] = s
	}

	return r, nil
}

func expandDirections(d domain.SensorDirection) []domain.SensorDirection {
	if d == domain.DirectionBoth {
		return []domain.SensorDirection{domain.DirectionIn, domain.DirectionOut}
	}
	return []domain.SensorDirection{d}
}

// Zone resolves a zone by ID.
func (r *Registry) Zone(id string) (domain.Zone, error) {
	z, ok := r.zones[id]
	if !ok || !z.Active {
		return domain.Zone{}, fmt.Errorf("%w: %s", domain.ErrUnknownZone, id)
	}
	return z, nil
}

// ZoneByCode resolves a zone by its display code.
func (r *Registry) ZoneByCode(code string) (domain.Zone, error) {
	id, ok := r.byCode[strings.ToUpper(code)]
	if !ok {
		return domain.Zone{}, fmt.Errorf("%w: %s", domain.ErrUnknownZone, code)
	}
	return r.Zone(id)
}

// Sensor resolves a sensor by code. Inactive sensors resolve as unknown so
// a decommissioned camera cannot keep feeding events.
func (r *Registry) Sensor(code string) (domain.Sensor, error) {
	s, ok := r.sensors[strings.ToUpper(code)]
	if !ok || !s.Active {
		return domain.Sensor{}, fmt.Errorf("%w: %s", domain.ErrUnknownSensor, code)
	}
	return s, nil
}

// ResolveSensor returns a sensor together with the zone it watches.
func (r *Registry) ResolveSensor(code string) (domain.Sensor, domain.Zone, error) {
	s, err := r.Sensor(code)
	if err != nil {
		return domain.Sensor{}, domain.Zone{}, err
	}
	z, err := r.Zone(s.ZoneID)
	if err != nil {
		return domain.Sensor{}, domain.Zone{}, err
	}
	return s, z, nil
}

// Zones lists active zones in display order.
func (r *Registry) Zones() []domain.Zone {
	out := make([]domain.Zone, 0, len(r.ordered))
	for _, z := range r.ordered {
		if z.Active {
			out = append(out, z)
		}
	}
	return out
}
