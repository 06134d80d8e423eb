// Package ingest validates raw movement requests from operators and LPR
// cameras and normalizes them into tracker events.
package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"yard-monitor/tracking/internal/directory"
	"yard-monitor/tracking/internal/domain"
	"yard-monitor/tracking/internal/metrics"
	"yard-monitor/tracking/internal/registry"
	"yard-monitor/tracking/internal/tracker"
)

// AlertSink receives the unregistered-entry trigger. A failed plate lookup
// is alert input, not an ingestion failure.
type AlertSink interface {
	ReportUnregisteredEntry(ctx context.Context, plate, sensorCode string)
}

type Ingestor struct {
	registry      *registry.Registry
	directory     directory.Directory
	tracker       *tracker.Tracker
	alerts        AlertSink
	minConfidence float64
	logger        *zap.Logger
	now           func() time.Time
}

type Option func(*Ingestor)

func WithClock(now func() time.Time) Option {
	return func(i *Ingestor) { i.now = now }
}

func New(
	reg *registry.Registry,
	dir directory.Directory,
	trk *tracker.Tracker,
	alertSink AlertSink,
	minConfidence float64,
	logger *zap.Logger,
	opts ...Option,
) *Ingestor {
	ing := &Ingestor{
		registry:      reg,
		directory:     dir,
		tracker:       trk,
		alerts:        alertSink,
		minConfidence: minConfidence,
		logger:        logger,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// IngestManual records an operator-entered entry or exit. Entries require
// a destination zone; exits are validated against the vehicle's current
// state by the tracker.
func (i *Ingestor) IngestManual(ctx context.Context, vehicleID string, kind domain.MovementKind, destZoneID, note string) (domain.Movement, error) {
	metrics.ManualEventsReceived.Add(1)

	v, ok := i.directory.ByID(vehicleID)
	if !ok || !v.Active {
		return domain.Movement{}, fmt.Errorf("%w: %s", domain.ErrUnknownVehicle, vehicleID)
	}

	ev := domain.Event{
		VehicleID: v.ID,
		Kind:      kind,
		Timestamp: i.now(),
		Source:    domain.SourceManual,
		Note:      note,
	}

	switch kind {
	case domain.MovementEntry, domain.MovementZoneChange:
		zone, err := i.registry.Zone(destZoneID)
		if err != nil {
			return domain.Movement{}, err
		}
		ev.ToZone = zone.ID
	case domain.MovementExit:
		// Destination stays empty; the tracker rejects a duplicate exit.
	default:
		return domain.Movement{}, fmt.Errorf("%w: manual events must be entry, exit or zone_change", domain.ErrInvalidTransition)
	}

	m, err := i.tracker.Apply(ctx, ev)
	if err != nil {
		return domain.Movement{}, err
	}
	metrics.MovementsRecorded.Add(1)
	return m, nil
}

// IngestDetection processes a camera plate read. The sensor's configured
// direction implies the movement kind; interior sensors imply a zone
// change (or a same-zone detection ping).
func (i *Ingestor) IngestDetection(ctx context.Context, plateText, sensorCode string, confidence float64, ts time.Time) (domain.Movement, error) {
	metrics.DetectionsReceived.Add(1)

	sensor, zone, err := i.registry.ResolveSensor(sensorCode)
	if err != nil {
		return domain.Movement{}, err
	}
	if sensor.Kind != domain.SensorLPR {
		return domain.Movement{}, fmt.Errorf("%w: sensor %s does not read plates", domain.ErrUnknownSensor, sensor.Code)
	}

	plate := directory.NormalizePlate(plateText)
	v, ok := i.directory.ByPlate(plate)
	if !ok {
		metrics.UnknownPlates.Add(1)
		i.logger.Warn("detection for unregistered plate",
			zap.String("plate", plate),
			zap.String("sensor", sensor.Code))
		i.alerts.ReportUnregisteredEntry(ctx, plate, sensor.Code)
		return domain.Movement{}, fmt.Errorf("%w: plate %s", domain.ErrUnknownVehicle, plate)
	}

	if confidence < i.minConfidence {
		metrics.LowConfidenceDiscards.Add(1)
		i.logger.Info("low-confidence detection discarded",
			zap.String("plate", plate),
			zap.String("sensor", sensor.Code),
			zap.Float64("confidence", confidence))
		return domain.Movement{}, fmt.Errorf("%w: %.2f < %.2f", domain.ErrLowConfidence, confidence, i.minConfidence)
	}

	if ts.IsZero() {
		ts = i.now()
	}

	state, _ := i.tracker.State(v.ID)
	ev := domain.Event{
		VehicleID:  v.ID,
		Kind:       detectionKind(sensor, zone, state),
		ToZone:     zone.ID,
		Timestamp:  ts,
		Source:     domain.SourceCamera,
		SensorCode: sensor.Code,
		Confidence: confidence,
		PlateRead:  plate,
	}

	m, err := i.tracker.Apply(ctx, ev)
	if err != nil {
		return domain.Movement{}, err
	}
	metrics.MovementsRecorded.Add(1)
	return m, nil
}

// detectionKind maps a sensor's configured direction and the vehicle's
// current state onto a movement kind. Bidirectional entrance cameras
// alternate on the on-premises flag; interior cameras report a zone
// change, or a plain detection ping when the vehicle is already there.
func detectionKind(sensor domain.Sensor, zone domain.Zone, state domain.VehicleState) domain.MovementKind {
	switch sensor.Direction {
	case domain.DirectionIn:
		return domain.MovementEntry
	case domain.DirectionOut:
		return domain.MovementExit
	case domain.DirectionBoth:
		if state.OnPremises() {
			return domain.MovementExit
		}
		return domain.MovementEntry
	default:
		if state.OnPremises() && state.CurrentZone == zone.ID {
			return domain.MovementDetection
		}
		return domain.MovementZoneChange
	}
}
