package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"yard-monitor/tracking/internal/alerts"
	"yard-monitor/tracking/internal/domain"
)

// MemoryMovementLog is the authoritative in-process movement log. The
// Postgres writer mirrors it asynchronously for durable history.
type MemoryMovementLog struct {
	mu        sync.RWMutex
	all       []domain.Movement
	byVehicle map[string][]domain.Movement
}

func NewMemoryMovementLog() *MemoryMovementLog {
	return &MemoryMovementLog{byVehicle: make(map[string][]domain.Movement)}
}

func (l *MemoryMovementLog) Append(ctx context.Context, m domain.Movement) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.all = append(l.all, m)
	l.byVehicle[m.VehicleID] = append(l.byVehicle[m.VehicleID], m)
	return nil
}

func (l *MemoryMovementLog) ListByVehicle(ctx context.Context, vehicleID string, limit, offset int) ([]domain.Movement, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	history := l.byVehicle[vehicleID]

	// Stored oldest first; serve most recent first.
	out := make([]domain.Movement, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		out = append(out, history[i])
	}
	return window(out, limit, offset), nil
}

func (l *MemoryMovementLog) Recent(ctx context.Context, limit int) ([]domain.Movement, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Movement, 0, len(l.all))
	for i := len(l.all) - 1; i >= 0; i-- {
		out = append(out, l.all[i])
	}
	return window(out, limit, 0), nil
}

func (l *MemoryMovementLog) CountKindSince(ctx context.Context, kind domain.MovementKind, since time.Time) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, m := range l.all {
		if m.Kind == kind && !m.RecordedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func window(ms []domain.Movement, limit, offset int) []domain.Movement {
	if offset > 0 {
		if offset >= len(ms) {
			return nil
		}
		ms = ms[offset:]
	}
	if limit > 0 && len(ms) > limit {
		ms = ms[:limit]
	}
	return ms
}

// MemoryAlertStore holds alerts in insertion order. Alerts are never
// deleted, matching the append-only audit contract.
type MemoryAlertStore struct {
	mu    sync.RWMutex
	byID  map[string]domain.Alert
	order []string
}

func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{byID: make(map[string]domain.Alert)}
}

func (s *MemoryAlertStore) Insert(ctx context.Context, a domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[a.ID]; exists {
		return fmt.Errorf("alert %s already exists", a.ID)
	}
	s.byID[a.ID] = a
	s.order = append(s.order, a.ID)
	return nil
}

func (s *MemoryAlertStore) Update(ctx context.Context, a domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[a.ID]; !exists {
		return fmt.Errorf("%w: %s", domain.ErrUnknownAlert, a.ID)
	}
	s.byID[a.ID] = a
	return nil
}

func (s *MemoryAlertStore) Get(ctx context.Context, id string) (domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return domain.Alert{}, fmt.Errorf("%w: %s", domain.ErrUnknownAlert, id)
	}
	return a, nil
}

func (s *MemoryAlertStore) FindOpen(ctx context.Context, subjectKey string, kind domain.AlertKind) (domain.Alert, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		a := s.byID[id]
		if !a.Resolved && a.Kind == kind && a.SubjectKey() == subjectKey {
			return a, true, nil
		}
	}
	return domain.Alert{}, false, nil
}

func (s *MemoryAlertStore) List(ctx context.Context, f alerts.Filter) ([]domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Alert, 0, len(s.order))
	for _, id := range s.order {
		a := s.byID[id]
		if f.Resolved != nil && a.Resolved != *f.Resolved {
			continue
		}
		if f.Read != nil && a.Read != *f.Read {
			continue
		}
		if f.Kind != "" && a.Kind != f.Kind {
			continue
		}
		if f.Severity != "" && a.Severity != f.Severity {
			continue
		}
		if f.VehicleID != "" && a.VehicleID != f.VehicleID {
			continue
		}
		out = append(out, a)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryAlertStore) MarkAllRead(ctx context.Context, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, a := range s.byID {
		if !a.Read {
			a.Read = true
			a.ReadAt = at
			s.byID[id] = a
			n++
		}
	}
	return n, nil
}
