package alerts_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"yard-monitor/tracking/internal/alerts"
	"yard-monitor/tracking/internal/directory"
	"yard-monitor/tracking/internal/domain"
	"yard-monitor/tracking/internal/metrics"
	"yard-monitor/tracking/internal/registry"
	"yard-monitor/tracking/internal/store"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

const (
	inactivityAfter = 20 * 24 * time.Hour
	deliveryAfter   = 60 * time.Minute
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeStates struct {
	mu      sync.Mutex
	states  []domain.VehicleState
	entered chan struct{}
	release chan struct{}
}

func (f *fakeStates) Snapshot() []domain.VehicleState {
	if f.entered != nil {
		close(f.entered)
		f.entered = nil
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.VehicleState(nil), f.states...)
}

func (f *fakeStates) set(states ...domain.VehicleState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = states
}

type fakeNotifier struct {
	mu   sync.Mutex
	seen []domain.Alert
}

func (n *fakeNotifier) Notify(_ context.Context, a domain.Alert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, a)
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.seen)
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r, err := registry.New([]domain.Zone{
		{ID: "zone-gate", Code: "GATE", Name: "Gate", Kind: domain.ZoneEntrance, Active: true},
		{ID: "zone-yard", Code: "YARD", Name: "Yard", Kind: domain.ZoneYard, Active: true},
		{ID: "zone-workshop", Code: "WKS", Name: "Workshop", Kind: domain.ZoneWorkshop, Active: true},
	}, nil)
	require.NoError(t, err)
	return r
}

func testDirectory() *directory.Memory {
	dir := directory.NewMemory("ready")
	dir.Put(domain.Vehicle{ID: "veh-1", Plate: "ABC123", Active: true})
	dir.Put(domain.Vehicle{ID: "veh-2", Plate: "XYZ789", Active: true, Tags: []string{"ready"}})
	return dir
}

type fixture struct {
	engine   *alerts.Engine
	store    *store.MemoryAlertStore
	states   *fakeStates
	notifier *fakeNotifier
	clock    *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    store.NewMemoryAlertStore(),
		states:   &fakeStates{},
		notifier: &fakeNotifier{},
		clock:    &fakeClock{t: t0},
	}
	f.engine = alerts.New(
		f.store,
		f.states,
		testRegistry(t),
		testDirectory(),
		inactivityAfter,
		deliveryAfter,
		zap.NewNop(),
		alerts.WithClock(f.clock.Now),
		alerts.WithNotifier(f.notifier),
	)
	return f
}

func (f *fixture) openAlerts(t *testing.T, kind domain.AlertKind) []domain.Alert {
	t.Helper()
	unresolved := false
	as, err := f.store.List(context.Background(), alerts.Filter{Resolved: &unresolved, Kind: kind})
	require.NoError(t, err)
	return as
}

func TestUnregisteredEntryIsUniquePerPlate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.engine.ReportUnregisteredEntry(ctx, "GHOST1", "CAM-GATE-IN")
	f.clock.Advance(time.Minute)
	f.engine.ReportUnregisteredEntry(ctx, "GHOST1", "CAM-GATE-IN")
	f.engine.ReportUnregisteredEntry(ctx, "GHOST2", "CAM-GATE-IN")

	open := f.openAlerts(t, domain.AlertUnregisteredEntry)
	require.Len(t, open, 2, "one open alert per plate")

	var ghost1 domain.Alert
	for _, a := range open {
		if a.Plate == "GHOST1" {
			ghost1 = a
		}
	}
	assert.Equal(t, domain.SeverityCritical, ghost1.Severity)
	assert.Empty(t, ghost1.VehicleID)
	assert.Equal(t, t0, ghost1.CreatedAt)
	assert.Equal(t, t0.Add(time.Minute), ghost1.RefreshedAt, "re-trigger refreshes in place")

	// Notified once per created alert, never on refresh.
	assert.Equal(t, 2, f.notifier.count())
}

func TestUnauthorizedExitRule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	exit := func(vehicleID string, source domain.EventSource) domain.StateChange {
		return domain.StateChange{
			Movement: domain.Movement{
				VehicleID:  vehicleID,
				Kind:       domain.MovementExit,
				Source:     source,
				SensorCode: "CAM-GATE-OUT",
			},
		}
	}

	// Camera exit without the release tag raises the alert.
	f.engine.HandleStateChange(ctx, exit("veh-1", domain.SourceCamera))
	open := f.openAlerts(t, domain.AlertUnauthorizedExit)
	require.Len(t, open, 1)
	assert.Equal(t, domain.SeverityHigh, open[0].Severity)
	assert.Equal(t, "ABC123", open[0].Plate)
	assert.Equal(t, 1, f.notifier.count())

	// Tagged vehicle and manual exits pass silently. A manual exit is an
	// operator action, authorized by definition.
	f.engine.HandleStateChange(ctx, exit("veh-2", domain.SourceCamera))
	f.engine.HandleStateChange(ctx, exit("veh-1", domain.SourceManual))
	assert.Len(t, f.openAlerts(t, domain.AlertUnauthorizedExit), 1)
}

func TestSweepInactivityThreshold(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()

	f.states.set(
		// Just past the threshold.
		domain.VehicleState{VehicleID: "veh-1", CurrentZone: "zone-yard", LastMovementAt: now.Add(-inactivityAfter - time.Second)},
		// Idle but under the threshold.
		domain.VehicleState{VehicleID: "veh-2", CurrentZone: "zone-yard", LastMovementAt: now.Add(-19 * 24 * time.Hour)},
	)

	n, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	open := f.openAlerts(t, domain.AlertInactivity)
	require.Len(t, open, 1)
	assert.Equal(t, "veh-1", open[0].VehicleID)
	assert.Equal(t, domain.SeverityMedium, open[0].Severity)

	// Medium severity does not page anyone.
	assert.Equal(t, 0, f.notifier.count())
}

func TestSweepRefreshesInsteadOfDuplicating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.states.set(domain.VehicleState{
		VehicleID: "veh-1", CurrentZone: "zone-yard",
		LastMovementAt: f.clock.Now().Add(-25 * 24 * time.Hour),
	})

	_, err := f.engine.Sweep(ctx)
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	_, err = f.engine.Sweep(ctx)
	require.NoError(t, err)

	open := f.openAlerts(t, domain.AlertInactivity)
	require.Len(t, open, 1)
	assert.Equal(t, t0.Add(time.Hour), open[0].RefreshedAt)
	assert.Equal(t, t0, open[0].CreatedAt)
}

func TestSweepAutoResolvesInactivityOnMovement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.states.set(domain.VehicleState{
		VehicleID: "veh-1", CurrentZone: "zone-yard",
		LastMovementAt: f.clock.Now().Add(-25 * 24 * time.Hour),
	})
	_, err := f.engine.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, f.openAlerts(t, domain.AlertInactivity), 1)

	// The vehicle moved; the next sweep closes the alert.
	f.states.set(domain.VehicleState{
		VehicleID: "veh-1", CurrentZone: "zone-workshop",
		LastMovementAt: f.clock.Now(),
	})
	_, err = f.engine.Sweep(ctx)
	require.NoError(t, err)

	assert.Empty(t, f.openAlerts(t, domain.AlertInactivity))
	all, err := f.store.List(ctx, alerts.Filter{Kind: domain.AlertInactivity})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Resolved)
	assert.Equal(t, "movement recorded", all[0].ResolutionNote)
}

func TestSweepDeliveryReady(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()

	f.states.set(
		// Idle in the workshop past the threshold.
		domain.VehicleState{VehicleID: "veh-1", CurrentZone: "zone-workshop", LastMovementAt: now.Add(-deliveryAfter - time.Minute)},
		// Same idle time in a storage yard: not a delivery candidate.
		domain.VehicleState{VehicleID: "veh-2", CurrentZone: "zone-yard", LastMovementAt: now.Add(-deliveryAfter - time.Minute)},
	)

	_, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)

	open := f.openAlerts(t, domain.AlertDeliveryReady)
	require.Len(t, open, 1)
	assert.Equal(t, "veh-1", open[0].VehicleID)
	assert.Equal(t, domain.SeverityLow, open[0].Severity)
	assert.Equal(t, 0, f.notifier.count())
}

func TestResolvedConditionReopensAsNewAlert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.states.set(domain.VehicleState{
		VehicleID: "veh-1", CurrentZone: "zone-yard",
		LastMovementAt: f.clock.Now().Add(-25 * 24 * time.Hour),
	})
	_, err := f.engine.Sweep(ctx)
	require.NoError(t, err)

	open := f.openAlerts(t, domain.AlertInactivity)
	require.Len(t, open, 1)
	resolved, err := f.engine.Resolve(ctx, open[0].ID, "checked, still stored")
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)
	assert.Equal(t, "checked, still stored", resolved.ResolutionNote)

	// Condition persists, so the next sweep opens a fresh alert rather
	// than resurrecting the resolved one.
	_, err = f.engine.Sweep(ctx)
	require.NoError(t, err)

	open = f.openAlerts(t, domain.AlertInactivity)
	require.Len(t, open, 1)
	assert.NotEqual(t, resolved.ID, open[0].ID)
}

func TestResolveIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.engine.ReportUnregisteredEntry(ctx, "GHOST1", "CAM-GATE-IN")
	open := f.openAlerts(t, domain.AlertUnregisteredEntry)
	require.Len(t, open, 1)

	first, err := f.engine.Resolve(ctx, open[0].ID, "gate visitor")
	require.NoError(t, err)
	second, err := f.engine.Resolve(ctx, open[0].ID, "different note")
	require.NoError(t, err)
	assert.Equal(t, first.ResolutionNote, second.ResolutionNote, "second resolve is a no-op")

	_, err = f.engine.Resolve(ctx, "ghost-id", "")
	assert.ErrorIs(t, err, domain.ErrUnknownAlert)
}

func TestRaiseCustom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.engine.RaiseCustom(ctx, "veh-1", "Paperwork missing", "Owner must sign release form", "")
	require.NoError(t, err)
	assert.Equal(t, domain.AlertCustom, a.Kind)
	assert.Equal(t, domain.SeverityMedium, a.Severity, "severity defaults to medium")
	assert.Equal(t, "ABC123", a.Plate)
	assert.NotEmpty(t, a.ID)

	// Re-raising refreshes the open alert instead of stacking a second one.
	f.clock.Advance(time.Minute)
	again, err := f.engine.RaiseCustom(ctx, "veh-1", "Paperwork still missing", "", domain.SeverityHigh)
	require.NoError(t, err)
	assert.Equal(t, a.ID, again.ID)
	assert.Equal(t, "Paperwork still missing", again.Title)
	require.Len(t, f.openAlerts(t, domain.AlertCustom), 1)

	_, err = f.engine.RaiseCustom(ctx, "veh-nope", "x", "", "")
	assert.ErrorIs(t, err, domain.ErrUnknownVehicle)
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.engine.ReportUnregisteredEntry(ctx, "GHOST1", "CAM-GATE-IN")
	f.engine.ReportUnregisteredEntry(ctx, "GHOST2", "CAM-GATE-IN")
	open := f.openAlerts(t, domain.AlertUnregisteredEntry)
	require.Len(t, open, 2)

	a, err := f.engine.MarkRead(ctx, open[0].ID)
	require.NoError(t, err)
	assert.True(t, a.Read)

	n, err := f.engine.MarkAllRead(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the remaining unread alert")
}

func TestOverlappingSweepIsSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	f.states.entered = entered
	f.states.release = release

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.engine.Sweep(ctx)
	}()

	<-entered // first sweep is now inside Snapshot, holding the sweep lock
	before := metrics.SweepSkips.Load()
	n, err := f.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, before+1, metrics.SweepSkips.Load())

	close(release)
	<-done
}

func TestSweepStopsOnCancelledContext(t *testing.T) {
	f := newFixture(t)
	f.states.set(domain.VehicleState{
		VehicleID: "veh-1", CurrentZone: "zone-yard",
		LastMovementAt: f.clock.Now().Add(-25 * 24 * time.Hour),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := f.engine.Sweep(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, n)
	assert.Empty(t, f.openAlerts(t, domain.AlertInactivity))
}
