// Package alerts derives operational alerts from tracker state: four
// built-in rules plus manual read/resolve handling. The engine enforces
// the invariant that at most one unresolved alert exists per (subject,
// kind) pair; re-triggering refreshes the open alert in place.
package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"yard-monitor/tracking/internal/directory"
	"yard-monitor/tracking/internal/domain"
	"yard-monitor/tracking/internal/metrics"
	"yard-monitor/tracking/internal/registry"
)

// Filter narrows alert listings.
type Filter struct {
	Resolved  *bool
	Read      *bool
	Kind      domain.AlertKind
	Severity  domain.AlertSeverity
	VehicleID string
	Limit     int
	Offset    int
}

// Store persists alerts. FindOpen and the following Insert/Update are
// guarded by the engine's per-(subject, kind) lock; implementations only
// need each single call to be atomic.
type Store interface {
	Insert(ctx context.Context, a domain.Alert) error
	Update(ctx context.Context, a domain.Alert) error
	Get(ctx context.Context, id string) (domain.Alert, error)
	FindOpen(ctx context.Context, subjectKey string, kind domain.AlertKind) (domain.Alert, bool, error)
	List(ctx context.Context, f Filter) ([]domain.Alert, error)
	MarkAllRead(ctx context.Context, at time.Time) (int, error)
}

// Notifier is the outbound hook invoked when a new critical or high
// severity alert is created (not on refreshes).
type Notifier interface {
	Notify(ctx context.Context, a domain.Alert)
}

// StateSource is the slice of the tracker the sweep needs.
type StateSource interface {
	Snapshot() []domain.VehicleState
}

type Engine struct {
	store     Store
	states    StateSource
	registry  *registry.Registry
	directory directory.Directory
	notifier  Notifier
	logger    *zap.Logger
	now       func() time.Time

	inactivityAfter time.Duration
	deliveryAfter   time.Duration

	keyMu   sync.Mutex
	keys    map[string]*sync.Mutex
	sweepMu sync.Mutex
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func New(
	store Store,
	states StateSource,
	reg *registry.Registry,
	dir directory.Directory,
	inactivityAfter time.Duration,
	deliveryAfter time.Duration,
	logger *zap.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		store:           store,
		states:          states,
		registry:        reg,
		directory:       dir,
		logger:          logger,
		now:             time.Now,
		inactivityAfter: inactivityAfter,
		deliveryAfter:   deliveryAfter,
		keys:            make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) keyLock(subjectKey string, kind domain.AlertKind) *sync.Mutex {
	e.keyMu.Lock()
	defer e.keyMu.Unlock()
	k := subjectKey + "|" + string(kind)
	l, ok := e.keys[k]
	if !ok {
		l = &sync.Mutex{}
		e.keys[k] = l
	}
	return l
}

// upsert creates the alert or refreshes the open one for the same
// (subject, kind). Returns whether a new alert was created.
func (e *Engine) upsert(ctx context.Context, a domain.Alert) (bool, error) {
	lock := e.keyLock(a.SubjectKey(), a.Kind)
	lock.Lock()
	defer lock.Unlock()

	open, found, err := e.store.FindOpen(ctx, a.SubjectKey(), a.Kind)
	if err != nil {
		return false, fmt.Errorf("%w: find open alert: %v", domain.ErrPersistence, err)
	}
	if found {
		open.Title = a.Title
		open.Message = a.Message
		open.RefreshedAt = e.now()
		if err := e.store.Update(ctx, open); err != nil {
			return false, fmt.Errorf("%w: refresh alert: %v", domain.ErrPersistence, err)
		}
		metrics.AlertsRefreshed.Add(1)
		return false, nil
	}

	a.ID = uuid.NewString()
	a.CreatedAt = e.now()
	a.RefreshedAt = a.CreatedAt
	if err := e.store.Insert(ctx, a); err != nil {
		return false, fmt.Errorf("%w: insert alert: %v", domain.ErrPersistence, err)
	}
	metrics.AlertsCreated.Add(1)
	e.logger.Info("alert created",
		zap.String("kind", string(a.Kind)),
		zap.String("severity", string(a.Severity)),
		zap.String("subject", a.SubjectKey()))

	if e.notifier != nil && (a.Severity == domain.SeverityCritical || a.Severity == domain.SeverityHigh) {
		e.notifier.Notify(ctx, a)
	}
	return true, nil
}

// ReportUnregisteredEntry is called by the ingestor when a detection's
// plate matches no registered vehicle. Keyed by the raw plate text since
// there is no vehicle to reference.
func (e *Engine) ReportUnregisteredEntry(ctx context.Context, plate, sensorCode string) {
	_, err := e.upsert(ctx, domain.Alert{
		Kind:       domain.AlertUnregisteredEntry,
		Plate:      plate,
		Severity:   domain.SeverityCritical,
		SensorCode: sensorCode,
		Title:      fmt.Sprintf("Unregistered plate: %s", plate),
		Message:    fmt.Sprintf("Plate %s was detected by sensor %s but is not registered.", plate, sensorCode),
	})
	if err != nil {
		e.logger.Error("unregistered-entry alert failed", zap.String("plate", plate), zap.Error(err))
	}
}

// RaiseCustom records an operator-defined alert. Custom alerts follow the
// same uniqueness rule as the built-in kinds: re-raising for the same
// vehicle refreshes the open alert.
func (e *Engine) RaiseCustom(ctx context.Context, vehicleID, title, message string, severity domain.AlertSeverity) (domain.Alert, error) {
	v, ok := e.directory.ByID(vehicleID)
	if !ok {
		return domain.Alert{}, fmt.Errorf("%w: %s", domain.ErrUnknownVehicle, vehicleID)
	}
	if severity == "" {
		severity = domain.SeverityMedium
	}

	a := domain.Alert{
		Kind:      domain.AlertCustom,
		VehicleID: v.ID,
		Plate:     v.Plate,
		Severity:  severity,
		Title:     title,
		Message:   message,
	}
	if _, err := e.upsert(ctx, a); err != nil {
		return domain.Alert{}, err
	}

	open, _, err := e.store.FindOpen(ctx, a.SubjectKey(), domain.AlertCustom)
	if err != nil {
		return domain.Alert{}, fmt.Errorf("%w: read back custom alert: %v", domain.ErrPersistence, err)
	}
	return open, nil
}

// HandleStateChange is subscribed to the tracker and evaluates the
// synchronous, event-driven rules.
func (e *Engine) HandleStateChange(ctx context.Context, sc domain.StateChange) {
	m := sc.Movement
	if m.Kind == domain.MovementExit && m.Source == domain.SourceCamera && !e.directory.ExitAuthorized(m.VehicleID) {
		plate := m.PlateRead
		if v, ok := e.directory.ByID(m.VehicleID); ok {
			plate = v.Plate
		}
		_, err := e.upsert(ctx, domain.Alert{
			Kind:       domain.AlertUnauthorizedExit,
			VehicleID:  m.VehicleID,
			Plate:      plate,
			Severity:   domain.SeverityHigh,
			SensorCode: m.SensorCode,
			Title:      fmt.Sprintf("Unauthorized exit: %s", plate),
			Message:    fmt.Sprintf("Vehicle %s left through sensor %s without the release tag.", plate, m.SensorCode),
		})
		if err != nil {
			e.logger.Error("unauthorized-exit alert failed", zap.String("vehicle_id", m.VehicleID), zap.Error(err))
		}
	}
}

// Sweep runs the time-based rules over all tracked vehicles. Overlapping
// runs are skipped rather than queued; a single failing vehicle does not
// abort the rest of the pass. Returns the number of alerts created or
// refreshed.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	if !e.sweepMu.TryLock() {
		metrics.SweepSkips.Add(1)
		e.logger.Warn("sweep skipped, previous run still in progress")
		return 0, nil
	}
	defer e.sweepMu.Unlock()
	metrics.SweepRuns.Add(1)

	now := e.now()
	touched := 0

	for _, state := range e.states.Snapshot() {
		if err := ctx.Err(); err != nil {
			// Cancelled between vehicles; everything applied so far is
			// complete, the rest is picked up by the next sweep.
			return touched, err
		}
		n, err := e.sweepVehicle(ctx, state, now)
		if err != nil {
			e.logger.Error("sweep failed for vehicle", zap.String("vehicle_id", state.VehicleID), zap.Error(err))
			continue
		}
		touched += n
	}
	return touched, nil
}

func (e *Engine) sweepVehicle(ctx context.Context, state domain.VehicleState, now time.Time) (int, error) {
	idle := now.Sub(state.LastMovementAt)
	subject := domain.Alert{VehicleID: state.VehicleID}.SubjectKey()

	// A movement since the alert opened clears the inactivity condition.
	if idle <= e.inactivityAfter || !state.OnPremises() {
		if err := e.autoResolveInactivity(ctx, subject, state.VehicleID); err != nil {
			return 0, err
		}
	}

	if !state.OnPremises() {
		return 0, nil
	}

	touched := 0
	plate := state.VehicleID
	if v, ok := e.directory.ByID(state.VehicleID); ok {
		plate = v.Plate
	}

	if idle > e.inactivityAfter {
		days := int(idle.Hours() / 24)
		_, err := e.upsert(ctx, domain.Alert{
			Kind:      domain.AlertInactivity,
			VehicleID: state.VehicleID,
			Plate:     plate,
			Severity:  domain.SeverityMedium,
			Title:     fmt.Sprintf("Inactive vehicle: %s", plate),
			Message: fmt.Sprintf("Vehicle %s has not moved in %d days (last movement %s).",
				plate, days, state.LastMovementAt.Format("2006-01-02 15:04")),
		})
		if err != nil {
			return touched, err
		}
		touched++
	}

	if zone, err := e.registry.Zone(state.CurrentZone); err == nil && zone.Kind == domain.ZoneWorkshop {
		if idle > e.deliveryAfter {
			minutes := int(idle.Minutes())
			_, err := e.upsert(ctx, domain.Alert{
				Kind:      domain.AlertDeliveryReady,
				VehicleID: state.VehicleID,
				Plate:     plate,
				Severity:  domain.SeverityLow,
				Title:     fmt.Sprintf("Possibly ready for pickup: %s", plate),
				Message: fmt.Sprintf("Vehicle %s has been idle in %s for %d minutes; it may be ready for delivery.",
					plate, zone.Name, minutes),
			})
			if err != nil {
				return touched, err
			}
			touched++
		}
	}

	return touched, nil
}

func (e *Engine) autoResolveInactivity(ctx context.Context, subject, vehicleID string) error {
	lock := e.keyLock(subject, domain.AlertInactivity)
	lock.Lock()
	defer lock.Unlock()

	open, found, err := e.store.FindOpen(ctx, subject, domain.AlertInactivity)
	if err != nil || !found {
		return err
	}
	open.Resolved = true
	open.ResolvedAt = e.now()
	open.ResolutionNote = "movement recorded"
	if err := e.store.Update(ctx, open); err != nil {
		return fmt.Errorf("%w: auto-resolve inactivity: %v", domain.ErrPersistence, err)
	}
	metrics.AlertsResolved.Add(1)
	e.logger.Info("inactivity alert auto-resolved", zap.String("vehicle_id", vehicleID))
	return nil
}

// MarkRead flags an alert as read.
func (e *Engine) MarkRead(ctx context.Context, id string) (domain.Alert, error) {
	a, err := e.store.Get(ctx, id)
	if err != nil {
		return domain.Alert{}, err
	}
	if !a.Read {
		a.Read = true
		a.ReadAt = e.now()
		if err := e.store.Update(ctx, a); err != nil {
			return domain.Alert{}, fmt.Errorf("%w: mark read: %v", domain.ErrPersistence, err)
		}
	}
	return a, nil
}

// MarkAllRead flags every unread alert as read and returns the count.
func (e *Engine) MarkAllRead(ctx context.Context) (int, error) {
	return e.store.MarkAllRead(ctx, e.now())
}

// Resolve closes an alert with an optional operator note. Resolution is
// always a manual action; a resolved condition that recurs opens a fresh
// alert.
func (e *Engine) Resolve(ctx context.Context, id, note string) (domain.Alert, error) {
	a, err := e.store.Get(ctx, id)
	if err != nil {
		return domain.Alert{}, err
	}

	lock := e.keyLock(a.SubjectKey(), a.Kind)
	lock.Lock()
	defer lock.Unlock()

	if a.Resolved {
		return a, nil
	}
	a.Resolved = true
	a.ResolvedAt = e.now()
	a.ResolutionNote = note
	if err := e.store.Update(ctx, a); err != nil {
		return domain.Alert{}, fmt.Errorf("%w: resolve: %v", domain.ErrPersistence, err)
	}
	metrics.AlertsResolved.Add(1)
	return a, nil
}

// List returns alerts matching the filter, most recent first.
func (e *Engine) List(ctx context.Context, f Filter) ([]domain.Alert, error) {
	return e.store.List(ctx, f)
}
