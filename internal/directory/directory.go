// Package directory is the read contract the core needs from the external
// vehicle registration collaborator: plate resolution, active flags and the
// exit-authorization tag check.
package directory

import (
	"sort"
	"strings"
	"sync"

	"yard-monitor/tracking/internal/domain"
)

// Directory resolves vehicles for the ingestor, rule engine and facade.
type Directory interface {
	ByID(id string) (domain.Vehicle, bool)
	// ByPlate expects an already-normalized plate (see NormalizePlate).
	ByPlate(plate string) (domain.Vehicle, bool)
	// ExitAuthorized reports whether the vehicle carries the tag that
	// allows it to leave through an exit camera.
	ExitAuthorized(vehicleID string) bool
	// Vehicles lists all registered vehicles, active first come order.
	Vehicles() []domain.Vehicle
}

// NormalizePlate uppercases a plate read and strips separators, matching
// what LPR cameras tend to mangle.
func NormalizePlate(plate string) string {
	p := strings.ToUpper(plate)
	p = strings.ReplaceAll(p, " ", "")
	p = strings.ReplaceAll(p, "-", "")
	return p
}

// Memory is an in-memory Directory used standalone and in tests. The real
// deployment syncs it from the registration system.
type Memory struct {
	mu       sync.RWMutex
	byID     map[string]domain.Vehicle
	byPlate  map[string]string
	readyTag string
}

func NewMemory(readyTag string) *Memory {
	if readyTag == "" {
		readyTag = "ready"
	}
	return &Memory{
		byID:     make(map[string]domain.Vehicle),
		byPlate:  make(map[string]string),
		readyTag: readyTag,
	}
}

// Put registers or replaces a vehicle. The plate index always stores the
// normalized form.
func (m *Memory) Put(v domain.Vehicle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v.Plate = NormalizePlate(v.Plate)
	if old, ok := m.byID[v.ID]; ok {
		delete(m.byPlate, old.Plate)
	}
	m.byID[v.ID] = v
	m.byPlate[v.Plate] = v.ID
}

// Deactivate soft-deletes a vehicle; it stays resolvable by ID for history
// but no longer matches plate lookups.
func (m *Memory) Deactivate(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.byID[id]
	if !ok {
		return
	}
	v.Active = false
	m.byID[id] = v
}

func (m *Memory) SetTags(id string, tags []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.byID[id]
	if !ok {
		return
	}
	v.Tags = tags
	m.byID[id] = v
}

func (m *Memory) ByID(id string) (domain.Vehicle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.byID[id]
	return v, ok
}

func (m *Memory) ByPlate(plate string) (domain.Vehicle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byPlate[plate]
	if !ok {
		return domain.Vehicle{}, false
	}
	v := m.byID[id]
	if !v.Active {
		return domain.Vehicle{}, false
	}
	return v, true
}

func (m *Memory) ExitAuthorized(vehicleID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.byID[vehicleID]
	if !ok {
		return false
	}
	for _, t := range v.Tags {
		if strings.EqualFold(t, m.readyTag) {
			return true
		}
	}
	return false
}

func (m *Memory) Vehicles() []domain.Vehicle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Vehicle, 0, len(m.byID))
	for _, v := range m.byID {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
