package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"yard-monitor/tracking/internal/directory"
	"yard-monitor/tracking/internal/domain"
	"yard-monitor/tracking/internal/registry"
	"yard-monitor/tracking/internal/store"
	"yard-monitor/tracking/internal/tracker"
)

// 09:00 local, so "today" starts nine hours earlier.
var now = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	facade  *Facade
	tracker *tracker.Tracker
	alerts  *store.MemoryAlertStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	reg, err := registry.New([]domain.Zone{
		{ID: "zone-gate", Code: "GATE", Name: "Gate", Kind: domain.ZoneEntrance, Order: 1, Active: true},
		{ID: "zone-yard", Code: "YARD", Name: "Yard", Kind: domain.ZoneYard, Order: 2, Active: true},
		{ID: "zone-workshop", Code: "WKS", Name: "Workshop", Kind: domain.ZoneWorkshop, Order: 3, Active: true},
	}, nil)
	require.NoError(t, err)

	dir := directory.NewMemory("ready")
	dir.Put(domain.Vehicle{ID: "veh-1", Plate: "AAA111", Active: true, Tags: []string{"storage"}})
	dir.Put(domain.Vehicle{ID: "veh-2", Plate: "BBB222", Active: true, Tags: []string{"client", "ready"}, Make: "Ford"})
	dir.Put(domain.Vehicle{ID: "veh-3", Plate: "CCC333", Active: true})
	dir.Put(domain.Vehicle{ID: "veh-4", Plate: "DDD444", Active: false})

	log := store.NewMemoryMovementLog()
	trk := tracker.New(log, zap.NewNop(), tracker.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	apply := func(ev domain.Event) {
		_, err := trk.Apply(ctx, ev)
		require.NoError(t, err)
	}
	// veh-1 has been sitting in the yard for two days.
	apply(domain.Event{VehicleID: "veh-1", Kind: domain.MovementEntry, ToZone: "zone-yard", Timestamp: now.Add(-48 * time.Hour), Source: domain.SourceManual})
	// veh-2 arrived this morning and is in the workshop.
	apply(domain.Event{VehicleID: "veh-2", Kind: domain.MovementEntry, ToZone: "zone-workshop", Timestamp: now.Add(-time.Hour), Source: domain.SourceCamera})
	// veh-3 left earlier today.
	apply(domain.Event{VehicleID: "veh-3", Kind: domain.MovementEntry, ToZone: "zone-yard", Timestamp: now.Add(-30 * time.Hour), Source: domain.SourceManual})
	apply(domain.Event{VehicleID: "veh-3", Kind: domain.MovementExit, Timestamp: now.Add(-2 * time.Hour), Source: domain.SourceManual})

	alertStore := store.NewMemoryAlertStore()
	f := New(trk, log, alertStore, reg, dir, WithClock(func() time.Time { return now }))
	return &fixture{facade: f, tracker: trk, alerts: alertStore}
}

func TestAggregates(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.alerts.Insert(ctx, domain.Alert{
		ID: "a-1", Kind: domain.AlertInactivity, VehicleID: "veh-1",
		Severity: domain.SeverityMedium, Title: "t", Message: "m", CreatedAt: now,
	}))
	require.NoError(t, fx.alerts.Insert(ctx, domain.Alert{
		ID: "a-2", Kind: domain.AlertUnregisteredEntry, Plate: "GHOST1",
		Severity: domain.SeverityCritical, Title: "t", Message: "m",
		CreatedAt: now.Add(-time.Hour), Resolved: true,
	}))

	agg, err := fx.facade.Aggregates(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, agg.Vehicles.Total, "inactive vehicles are not counted")
	assert.Equal(t, 2, agg.Vehicles.OnPremises)
	assert.Equal(t, 1, agg.Vehicles.Off)

	require.Len(t, agg.ByZone, 3)
	byID := map[string]ZoneOccupancy{}
	for _, z := range agg.ByZone {
		byID[z.ZoneID] = z
	}
	assert.Equal(t, 0, byID["zone-gate"].Count)
	assert.Equal(t, 1, byID["zone-yard"].Count)
	assert.Equal(t, 1, byID["zone-workshop"].Count)

	// Tags count on-premises vehicles only, sorted by tag.
	assert.Equal(t, []TagCount{{"client", 1}, {"ready", 1}, {"storage", 1}}, agg.ByTag)

	assert.Equal(t, 1, agg.TodayEntries, "only veh-2 entered after midnight")
	assert.Equal(t, 1, agg.TodayExits)

	assert.Equal(t, 1, agg.AlertCounters.Total, "resolved alerts are not counted")
	assert.Equal(t, 1, agg.AlertCounters.Unread)
	assert.Equal(t, 1, agg.AlertCounters.BySeverity[domain.SeverityMedium])
	assert.Equal(t, 1, agg.AlertCounters.ByKind[domain.AlertInactivity])
}

func TestVehicleState(t *testing.T) {
	fx := newFixture(t)

	st, err := fx.facade.VehicleState("veh-1")
	require.NoError(t, err)
	assert.Equal(t, "zone-yard", st.CurrentZone)

	// Registered but never moved: an empty state, not an error.
	dirOnly, err := fx.facade.VehicleState("veh-4")
	require.NoError(t, err)
	assert.False(t, dirOnly.OnPremises())
	assert.True(t, dirOnly.LastMovementAt.IsZero())

	_, err = fx.facade.VehicleState("veh-nope")
	assert.ErrorIs(t, err, domain.ErrUnknownVehicle)
}

func TestMovements(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	ms, err := fx.facade.Movements(ctx, "veh-3", 0, 0)
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, domain.MovementExit, ms[0].Kind, "most recent first")

	_, err = fx.facade.Movements(ctx, "veh-nope", 0, 0)
	assert.ErrorIs(t, err, domain.ErrUnknownVehicle)

	recent, err := fx.facade.RecentMovements(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestInactiveVehicles(t *testing.T) {
	fx := newFixture(t)

	previews := fx.facade.InactiveVehicles(24*time.Hour, 10)
	require.Len(t, previews, 1, "veh-2 is under the threshold, veh-3 is off premises")
	assert.Equal(t, "veh-1", previews[0].VehicleID)
	assert.Equal(t, "AAA111", previews[0].Plate)
	assert.Equal(t, 2, previews[0].IdleDays)

	assert.Empty(t, fx.facade.InactiveVehicles(72*time.Hour, 10))
}

func TestLongestStays(t *testing.T) {
	fx := newFixture(t)

	stays := fx.facade.LongestStays(10)
	require.Len(t, stays, 2)
	assert.Equal(t, "veh-1", stays[0].VehicleID, "oldest first entry first")
	assert.Equal(t, "veh-2", stays[1].VehicleID)
	assert.Equal(t, 2, stays[0].StayDays)

	assert.Len(t, fx.facade.LongestStays(1), 1)
}

func TestMapView(t *testing.T) {
	fx := newFixture(t)

	view := fx.facade.MapView()
	require.Len(t, view, 3, "every active zone appears, occupied or not")

	byID := map[string]ZoneMapEntry{}
	for _, e := range view {
		byID[e.Zone.ZoneID] = e
	}
	assert.Empty(t, byID["zone-gate"].Vehicles)
	require.Len(t, byID["zone-workshop"].Vehicles, 1)
	occupant := byID["zone-workshop"].Vehicles[0]
	assert.Equal(t, "BBB222", occupant.Plate)
	assert.Equal(t, "Ford", occupant.Make)
}
