// Package tracker owns the authoritative per-vehicle location state. All
// mutation goes through Apply; nothing else in the process touches the
// state map.
package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"yard-monitor/tracking/internal/domain"
)

// MovementLog is the append-only record of accepted events. Append must be
// atomic: either the movement is durably recorded or an error is returned
// and the tracker leaves the vehicle's state untouched.
type MovementLog interface {
	Append(ctx context.Context, m domain.Movement) error
	// ListByVehicle returns movements most recent first. limit <= 0 means
	// no limit; offset supports cursor-style restarts.
	ListByVehicle(ctx context.Context, vehicleID string, limit, offset int) ([]domain.Movement, error)
	Recent(ctx context.Context, limit int) ([]domain.Movement, error)
	CountKindSince(ctx context.Context, kind domain.MovementKind, since time.Time) (int, error)
}

// Listener receives a state-change record after each successful
// transition, while the per-vehicle lock is still held.
type Listener func(ctx context.Context, sc domain.StateChange)

type Tracker struct {
	log    MovementLog
	logger *zap.Logger
	now    func() time.Time

	mu     sync.RWMutex
	states map[string]domain.VehicleState
	locks  map[string]*sync.Mutex

	listenerMu sync.RWMutex
	listeners  []Listener
}

type Option func(*Tracker)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func New(log MovementLog, logger *zap.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		log:    log,
		logger: logger,
		now:    time.Now,
		states: make(map[string]domain.VehicleState),
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Subscribe registers a listener for state changes. Listeners run
// synchronously inside the vehicle's transition, so they must be quick.
func (t *Tracker) Subscribe(l Listener) {
	t.listenerMu.Lock()
	defer t.listenerMu.Unlock()
	t.listeners = append(t.listeners, l)
}

func (t *Tracker) vehicleLock(vehicleID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[vehicleID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[vehicleID] = l
	}
	return l
}

// Apply runs one normalized event through the vehicle's state machine,
// appends the Movement record and commits the new state. At most one
// transition is in flight per vehicle; different vehicles proceed in
// parallel.
func (t *Tracker) Apply(ctx context.Context, ev domain.Event) (domain.Movement, error) {
	lock := t.vehicleLock(ev.VehicleID)
	lock.Lock()
	defer lock.Unlock()

	t.mu.RLock()
	prior, ok := t.states[ev.VehicleID]
	t.mu.RUnlock()
	if !ok {
		prior = domain.VehicleState{VehicleID: ev.VehicleID}
	}

	kind, err := reclassify(ev.Kind, prior)
	if err != nil {
		return domain.Movement{}, err
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = t.now()
	}

	movement := domain.Movement{
		ID:         uuid.NewString(),
		VehicleID:  ev.VehicleID,
		Kind:       kind,
		FromZone:   prior.CurrentZone,
		ToZone:     destinationZone(kind, prior, ev),
		RecordedAt: ts,
		Source:     ev.Source,
		SensorCode: ev.SensorCode,
		Confidence: ev.Confidence,
		PlateRead:  ev.PlateRead,
		Note:       ev.Note,
	}

	next := transition(prior, movement)

	// Persist before committing: a failed append leaves no trace.
	if err := t.log.Append(ctx, movement); err != nil {
		return domain.Movement{}, fmt.Errorf("%w: append movement: %v", domain.ErrPersistence, err)
	}

	t.mu.Lock()
	t.states[ev.VehicleID] = next
	t.mu.Unlock()

	t.logger.Debug("movement applied",
		zap.String("vehicle_id", ev.VehicleID),
		zap.String("kind", string(kind)),
		zap.String("from_zone", movement.FromZone),
		zap.String("to_zone", movement.ToZone),
		zap.String("source", string(ev.Source)))

	sc := domain.StateChange{Movement: movement, Prior: prior, Current: next}
	t.listenerMu.RLock()
	listeners := t.listeners
	t.listenerMu.RUnlock()
	for _, l := range listeners {
		l(ctx, sc)
	}

	return movement, nil
}

// reclassify maps the requested kind onto the vehicle's actual state. An
// entry while on premises is a zone change (re-detection is normal); a
// zone change or detection while off premises is an implicit entry,
// recovering from a missed entry event. A second exit is corruption and
// is rejected.
func reclassify(kind domain.MovementKind, prior domain.VehicleState) (domain.MovementKind, error) {
	switch kind {
	case domain.MovementEntry:
		if prior.OnPremises() {
			return domain.MovementZoneChange, nil
		}
		return domain.MovementEntry, nil
	case domain.MovementExit:
		if !prior.OnPremises() {
			return "", fmt.Errorf("%w: vehicle %s is off premises", domain.ErrInvalidTransition, prior.VehicleID)
		}
		return domain.MovementExit, nil
	case domain.MovementZoneChange, domain.MovementDetection:
		if !prior.OnPremises() {
			return domain.MovementEntry, nil
		}
		return kind, nil
	default:
		return "", fmt.Errorf("%w: unknown movement kind %q", domain.ErrInvalidTransition, kind)
	}
}

func destinationZone(kind domain.MovementKind, prior domain.VehicleState, ev domain.Event) string {
	switch kind {
	case domain.MovementExit:
		return ""
	case domain.MovementDetection:
		return prior.CurrentZone
	default:
		return ev.ToZone
	}
}

// transition is the pure state function shared by Apply and Replay, so a
// replay of the log reproduces live state exactly.
func transition(prior domain.VehicleState, m domain.Movement) domain.VehicleState {
	next := prior
	next.VehicleID = m.VehicleID

	switch m.Kind {
	case domain.MovementEntry:
		next.CurrentZone = m.ToZone
		if next.FirstEntryAt.IsZero() {
			next.FirstEntryAt = m.RecordedAt
		}
		next.LastEntryAt = m.RecordedAt
	case domain.MovementExit:
		next.CurrentZone = ""
		next.LastExitAt = m.RecordedAt
	case domain.MovementZoneChange:
		next.CurrentZone = m.ToZone
	case domain.MovementDetection:
		// No location change.
	}

	next.LastMovementAt = m.RecordedAt
	return next
}

// State returns a copy of a vehicle's current state.
func (t *Tracker) State(vehicleID string) (domain.VehicleState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.states[vehicleID]
	return s, ok
}

// Snapshot returns a copy of every tracked vehicle state.
func (t *Tracker) Snapshot() []domain.VehicleState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.VehicleState, 0, len(t.states))
	for _, s := range t.states {
		out = append(out, s)
	}
	return out
}

// Replay rebuilds a vehicle's state from its ordered movement log. Used by
// the replay-determinism tests and as a recovery path after a cold start.
func (t *Tracker) Replay(ctx context.Context, vehicleID string) (domain.VehicleState, error) {
	movements, err := t.log.ListByVehicle(ctx, vehicleID, 0, 0)
	if err != nil {
		return domain.VehicleState{}, fmt.Errorf("%w: replay %s: %v", domain.ErrPersistence, vehicleID, err)
	}

	state := domain.VehicleState{VehicleID: vehicleID}
	// The log lists most recent first; replay applies oldest first.
	for i := len(movements) - 1; i >= 0; i-- {
		state = transition(state, movements[i])
	}
	return state, nil
}

// Restore primes the in-memory state map from the movement log at startup.
func (t *Tracker) Restore(ctx context.Context, vehicleIDs []string) error {
	for _, id := range vehicleIDs {
		state, err := t.Replay(ctx, id)
		if err != nil {
			return err
		}
		if state.LastMovementAt.IsZero() {
			continue
		}
		t.mu.Lock()
		t.states[id] = state
		t.mu.Unlock()
	}
	return nil
}
