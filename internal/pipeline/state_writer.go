package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"yard-monitor/tracking/internal/domain"
	"yard-monitor/tracking/internal/store"
)

// StateWriter publishes current vehicle states to Redis so the dashboard
// map refreshes without polling the core.
type StateWriter struct {
	ch     <-chan domain.VehicleState
	redis  *store.RedisStore
	logger *zap.Logger
}

func NewStateWriter(ch <-chan domain.VehicleState, redis *store.RedisStore, logger *zap.Logger) *StateWriter {
	return &StateWriter{ch: ch, redis: redis, logger: logger}
}

func (w *StateWriter) Run(ctx context.Context) {
	batch := make([]domain.VehicleState, 0, 100) // Redis is fast, fixed batch fine
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case st, ok := <-w.ch:
			if !ok {
				w.flushBatch(ctx, batch)
				return
			}
			batch = append(batch, st)
			if len(batch) >= 100 {
				w.flushBatch(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flushBatch(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			w.flushBatch(ctx, batch)
			return
		}
	}
}

func (w *StateWriter) flushBatch(ctx context.Context, batch []domain.VehicleState) {
	for _, st := range batch {
		if err := w.redis.PublishVehicleState(ctx, st); err != nil {
			w.logger.Warn("live state publish failed",
				zap.String("vehicle_id", st.VehicleID), zap.Error(err))
		}
	}
}
