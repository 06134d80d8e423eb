// Package pipeline fans accepted movements out to the durable and
// live-view sinks. The in-memory tracker state is authoritative; these
// channels only mirror it, so overflow drops are counted rather than
// blocking ingestion.
package pipeline

import (
	"context"

	"yard-monitor/tracking/internal/domain"
	"yard-monitor/tracking/internal/metrics"
)

type Dispatcher struct {
	MovementChan chan domain.Movement
	StateChan    chan domain.VehicleState
	AlertChan    chan domain.Alert
}

func NewDispatcher(movementSize, stateSize, alertSize int) *Dispatcher {
	return &Dispatcher{
		MovementChan: make(chan domain.Movement, movementSize),
		StateChan:    make(chan domain.VehicleState, stateSize),
		AlertChan:    make(chan domain.Alert, alertSize),
	}
}

// HandleStateChange is subscribed to the tracker.
func (d *Dispatcher) HandleStateChange(_ context.Context, sc domain.StateChange) {
	select {
	case d.MovementChan <- sc.Movement:
	default:
		metrics.MovementChannelDrops.Add(1)
	}

	select {
	case d.StateChan <- sc.Current:
	default:
		metrics.StateChannelDrops.Add(1)
	}
}

// Notify implements the alert notification hook; the alert writer
// consuming AlertChan archives and publishes it.
func (d *Dispatcher) Notify(_ context.Context, a domain.Alert) {
	select {
	case d.AlertChan <- a:
	default:
		metrics.AlertChannelDrops.Add(1)
	}
}

// Close shuts the channels so the writers drain and exit.
func (d *Dispatcher) Close() {
	close(d.MovementChan)
	close(d.StateChan)
	close(d.AlertChan)
}
