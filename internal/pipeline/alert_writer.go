package pipeline

import (
	"context"

	"go.uber.org/zap"

	"yard-monitor/tracking/internal/domain"
	"yard-monitor/tracking/internal/store"
)

// AlertWriter consumes notified alerts, archives them in Postgres and
// publishes them on the Redis notification channel for downstream
// dispatch (mail, push, whatever listens).
type AlertWriter struct {
	ch     <-chan domain.Alert
	db     *store.PostgresStore
	redis  *store.RedisStore
	logger *zap.Logger
}

func NewAlertWriter(
	ch <-chan domain.Alert,
	db *store.PostgresStore,
	redis *store.RedisStore,
	logger *zap.Logger,
) *AlertWriter {
	return &AlertWriter{ch: ch, db: db, redis: redis, logger: logger}
}

func (w *AlertWriter) Run(ctx context.Context) {
	for {
		select {
		case a, ok := <-w.ch:
			if !ok {
				return
			}
			w.write(context.Background(), a)

		case <-ctx.Done():
			return
		}
	}
}

func (w *AlertWriter) write(ctx context.Context, a domain.Alert) {
	if w.db != nil {
		if err := w.db.InsertAlert(ctx, a); err != nil {
			w.logger.Error("alert archive insert failed",
				zap.String("alert_id", a.ID), zap.Error(err))
		}
	}
	if w.redis != nil {
		if err := w.redis.PublishAlert(ctx, a); err != nil {
			w.logger.Error("alert notification publish failed",
				zap.String("alert_id", a.ID), zap.Error(err))
		}
	}
}
