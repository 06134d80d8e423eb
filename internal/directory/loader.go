package directory

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"yard-monitor/tracking/internal/domain"
)

type vehicleEntry struct {
	ID         string   `yaml:"id" validate:"required"`
	Plate      string   `yaml:"plate" validate:"required"`
	Make       string   `yaml:"make"`
	Model      string   `yaml:"model"`
	Color      string   `yaml:"color"`
	OwnerName  string   `yaml:"owner_name"`
	OwnerPhone string   `yaml:"owner_phone"`
	OwnerEmail string   `yaml:"owner_email"`
	Notes      string   `yaml:"notes"`
	Tags       []string `yaml:"tags"`
	Inactive   bool     `yaml:"inactive"`
}

type vehiclesFile struct {
	Vehicles []vehicleEntry `yaml:"vehicles" validate:"dive"`
}

// LoadFile seeds an in-memory directory from a YAML vehicle list. The
// production deployment replaces this with a sync from the registration
// system; the contract is the same either way.
func LoadFile(path, readyTag string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vehicle directory: %w", err)
	}
	var file vehiclesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse vehicle directory: %w", err)
	}
	if err := validator.New().Struct(file); err != nil {
		return nil, fmt.Errorf("validate vehicle directory: %w", err)
	}

	m := NewMemory(readyTag)
	for _, e := range file.Vehicles {
		m.Put(domain.Vehicle{
			ID:         e.ID,
			Plate:      e.Plate,
			Make:       e.Make,
			Model:      e.Model,
			Color:      e.Color,
			OwnerName:  e.OwnerName,
			OwnerPhone: e.OwnerPhone,
			OwnerEmail: e.OwnerEmail,
			Notes:      e.Notes,
			Tags:       e.Tags,
			Active:     !e.Inactive,
		})
	}
	return m, nil
}
