// Package query serves the read-only projections the presentation layer
// renders: dashboard aggregates, the facility map, movement history and
// alert counters. Everything is computed from tracker state and the
// immutable movement/alert logs; no mutable state lives here.
package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"yard-monitor/tracking/internal/alerts"
	"yard-monitor/tracking/internal/directory"
	"yard-monitor/tracking/internal/domain"
	"yard-monitor/tracking/internal/registry"
	"yard-monitor/tracking/internal/tracker"
)

type Facade struct {
	tracker   *tracker.Tracker
	movements tracker.MovementLog
	alerts    alerts.Store
	registry  *registry.Registry
	directory directory.Directory
	now       func() time.Time
}

type Option func(*Facade)

func WithClock(now func() time.Time) Option {
	return func(f *Facade) { f.now = now }
}

func New(
	trk *tracker.Tracker,
	movements tracker.MovementLog,
	alertStore alerts.Store,
	reg *registry.Registry,
	dir directory.Directory,
	opts ...Option,
) *Facade {
	f := &Facade{
		tracker:   trk,
		movements: movements,
		alerts:    alertStore,
		registry:  reg,
		directory: dir,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type VehicleTotals struct {
	Total      int `json:"total"`
	OnPremises int `json:"on_premises"`
	Off        int `json:"off_premises"`
}

type ZoneOccupancy struct {
	ZoneID   string  `json:"zone_id"`
	ZoneCode string  `json:"zone_code"`
	ZoneName string  `json:"zone_name"`
	Color    string  `json:"color"`
	Kind     string  `json:"kind"`
	Count    int     `json:"count"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
}

type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

type Aggregates struct {
	Vehicles      VehicleTotals        `json:"vehicles"`
	ByZone        []ZoneOccupancy      `json:"by_zone"`
	ByTag         []TagCount           `json:"by_tag"`
	TodayEntries  int                  `json:"today_entries"`
	TodayExits    int                  `json:"today_exits"`
	AlertCounters domain.AlertCounters `json:"alert_counters"`
}

// Aggregates computes the dashboard snapshot.
func (f *Facade) Aggregates(ctx context.Context) (Aggregates, error) {
	var agg Aggregates

	states := f.stateIndex()
	vehicles := f.directory.Vehicles()

	byZone := make(map[string]int)
	byTag := make(map[string]int)
	for _, v := range vehicles {
		if !v.Active {
			continue
		}
		agg.Vehicles.Total++
		st, ok := states[v.ID]
		if !ok || !st.OnPremises() {
			continue
		}
		agg.Vehicles.OnPremises++
		byZone[st.CurrentZone]++
		for _, tag := range v.Tags {
			byTag[tag]++
		}
	}
	agg.Vehicles.Off = agg.Vehicles.Total - agg.Vehicles.OnPremises

	for _, z := range f.registry.Zones() {
		agg.ByZone = append(agg.ByZone, ZoneOccupancy{
			ZoneID:   z.ID,
			ZoneCode: z.Code,
			ZoneName: z.Name,
			Color:    z.Color,
			Kind:     string(z.Kind),
			Count:    byZone[z.ID],
			X:        z.X,
			Y:        z.Y,
			Width:    z.Width,
			Height:   z.Height,
		})
	}
	for tag, n := range byTag {
		agg.ByTag = append(agg.ByTag, TagCount{Tag: tag, Count: n})
	}
	sort.Slice(agg.ByTag, func(i, j int) bool { return agg.ByTag[i].Tag < agg.ByTag[j].Tag })

	midnight := startOfDay(f.now())
	entries, err := f.movements.CountKindSince(ctx, domain.MovementEntry, midnight)
	if err != nil {
		return Aggregates{}, fmt.Errorf("count entries: %w", err)
	}
	exits, err := f.movements.CountKindSince(ctx, domain.MovementExit, midnight)
	if err != nil {
		return Aggregates{}, fmt.Errorf("count exits: %w", err)
	}
	agg.TodayEntries = entries
	agg.TodayExits = exits

	counters, err := f.alertCounters(ctx)
	if err != nil {
		return Aggregates{}, err
	}
	agg.AlertCounters = counters
	return agg, nil
}

func (f *Facade) alertCounters(ctx context.Context) (domain.AlertCounters, error) {
	unresolved := false
	open, err := f.alerts.List(ctx, alerts.Filter{Resolved: &unresolved})
	if err != nil {
		return domain.AlertCounters{}, fmt.Errorf("list alerts: %w", err)
	}
	counters := domain.AlertCounters{
		BySeverity: make(map[domain.AlertSeverity]int),
		ByKind:     make(map[domain.AlertKind]int),
	}
	for _, a := range open {
		counters.Total++
		if !a.Read {
			counters.Unread++
		}
		counters.BySeverity[a.Severity]++
		counters.ByKind[a.Kind]++
	}
	return counters, nil
}

// VehicleState returns a vehicle's current tracking state. Vehicles with
// no recorded movement yet report an empty state.
func (f *Facade) VehicleState(vehicleID string) (domain.VehicleState, error) {
	if _, ok := f.directory.ByID(vehicleID); !ok {
		return domain.VehicleState{}, fmt.Errorf("%w: %s", domain.ErrUnknownVehicle, vehicleID)
	}
	st, ok := f.tracker.State(vehicleID)
	if !ok {
		return domain.VehicleState{VehicleID: vehicleID}, nil
	}
	return st, nil
}

// Movements lists a vehicle's history, most recent first.
func (f *Facade) Movements(ctx context.Context, vehicleID string, limit, offset int) ([]domain.Movement, error) {
	if _, ok := f.directory.ByID(vehicleID); !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownVehicle, vehicleID)
	}
	return f.movements.ListByVehicle(ctx, vehicleID, limit, offset)
}

// RecentMovements lists the latest movements across all vehicles.
func (f *Facade) RecentMovements(ctx context.Context, limit int) ([]domain.Movement, error) {
	return f.movements.Recent(ctx, limit)
}

type VehiclePreview struct {
	VehicleID   string    `json:"vehicle_id"`
	Plate       string    `json:"plate"`
	Make        string    `json:"make,omitempty"`
	Model       string    `json:"model,omitempty"`
	OwnerName   string    `json:"owner_name,omitempty"`
	ZoneID      string    `json:"zone_id"`
	IdleDays    int       `json:"idle_days"`
	LastMovedAt time.Time `json:"last_moved_at"`
}

// InactiveVehicles previews on-premises vehicles idle longer than the
// given threshold, oldest first — shown on the dashboard before any alert
// object is materialized.
func (f *Facade) InactiveVehicles(olderThan time.Duration, limit int) []VehiclePreview {
	now := f.now()
	var out []VehiclePreview
	for _, st := range f.tracker.Snapshot() {
		if !st.OnPremises() {
			continue
		}
		idle := now.Sub(st.LastMovementAt)
		if idle <= olderThan {
			continue
		}
		p := VehiclePreview{
			VehicleID:   st.VehicleID,
			ZoneID:      st.CurrentZone,
			IdleDays:    int(idle.Hours() / 24),
			LastMovedAt: st.LastMovementAt,
		}
		if v, ok := f.directory.ByID(st.VehicleID); ok {
			p.Plate = v.Plate
			p.Make = v.Make
			p.Model = v.Model
			p.OwnerName = v.OwnerName
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMovedAt.Before(out[j].LastMovedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

type StayPreview struct {
	VehicleID    string    `json:"vehicle_id"`
	Plate        string    `json:"plate"`
	ZoneID       string    `json:"zone_id"`
	StayDays     int       `json:"stay_days"`
	FirstEntryAt time.Time `json:"first_entry_at"`
}

// LongestStays lists on-premises vehicles ordered by first entry, oldest
// first.
func (f *Facade) LongestStays(limit int) []StayPreview {
	now := f.now()
	var out []StayPreview
	for _, st := range f.tracker.Snapshot() {
		if !st.OnPremises() || st.FirstEntryAt.IsZero() {
			continue
		}
		p := StayPreview{
			VehicleID:    st.VehicleID,
			ZoneID:       st.CurrentZone,
			StayDays:     int(now.Sub(st.FirstEntryAt).Hours() / 24),
			FirstEntryAt: st.FirstEntryAt,
		}
		if v, ok := f.directory.ByID(st.VehicleID); ok {
			p.Plate = v.Plate
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FirstEntryAt.Before(out[j].FirstEntryAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

type ZoneMapEntry struct {
	Zone     ZoneOccupancy    `json:"zone"`
	Vehicles []VehiclePreview `json:"vehicles"`
}

// MapView returns every active zone with its layout and current
// occupants, for the interactive facility map.
func (f *Facade) MapView() []ZoneMapEntry {
	states := f.tracker.Snapshot()
	byZone := make(map[string][]domain.VehicleState)
	for _, st := range states {
		if st.OnPremises() {
			byZone[st.CurrentZone] = append(byZone[st.CurrentZone], st)
		}
	}

	now := f.now()
	var out []ZoneMapEntry
	for _, z := range f.registry.Zones() {
		entry := ZoneMapEntry{
			Zone: ZoneOccupancy{
				ZoneID:   z.ID,
				ZoneCode: z.Code,
				ZoneName: z.Name,
				Color:    z.Color,
				Kind:     string(z.Kind),
				Count:    len(byZone[z.ID]),
				X:        z.X,
				Y:        z.Y,
				Width:    z.Width,
				Height:   z.Height,
			},
		}
		occupants := byZone[z.ID]
		sort.Slice(occupants, func(i, j int) bool { return occupants[i].VehicleID < occupants[j].VehicleID })
		for _, st := range occupants {
			p := VehiclePreview{
				VehicleID:   st.VehicleID,
				ZoneID:      st.CurrentZone,
				IdleDays:    int(now.Sub(st.LastMovementAt).Hours() / 24),
				LastMovedAt: st.LastMovementAt,
			}
			if v, ok := f.directory.ByID(st.VehicleID); ok {
				p.Plate = v.Plate
				p.Make = v.Make
				p.Model = v.Model
			}
			entry.Vehicles = append(entry.Vehicles, p)
		}
		out = append(out, entry)
	}
	return out
}

func (f *Facade) stateIndex() map[string]domain.VehicleState {
	idx := make(map[string]domain.VehicleState)
	for _, st := range f.tracker.Snapshot() {
		idx[st.VehicleID] = st
	}
	return idx
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
