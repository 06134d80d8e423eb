package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"yard-monitor/tracking/internal/domain"
	"yard-monitor/tracking/internal/metrics"
	"yard-monitor/tracking/internal/store"
)

// DBWriter batches movements into the Postgres archive.
type DBWriter struct {
	ch        <-chan domain.Movement
	db        *store.PostgresStore
	batchSize int
	flushMS   int
	logger    *zap.Logger
}

func NewDBWriter(
	ch <-chan domain.Movement,
	db *store.PostgresStore,
	batchSize int,
	flushMS int,
	logger *zap.Logger,
) *DBWriter {
	return &DBWriter{
		ch:        ch,
		db:        db,
		batchSize: batchSize,
		flushMS:   flushMS,
		logger:    logger,
	}
}

func (w *DBWriter) Run(ctx context.Context) {
	batch := make([]domain.Movement, 0, w.batchSize)
	ticker := time.NewTicker(time.Duration(w.flushMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case m, ok := <-w.ch:
			if !ok {
				if len(batch) > 0 {
					w.flush(ctx, batch)
				}
				return
			}
			batch = append(batch, m)
			if len(batch) >= w.batchSize {
				w.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			if len(batch) > 0 {
				w.flush(ctx, batch)
			}
			return
		}
	}
}

func (w *DBWriter) flush(ctx context.Context, batch []domain.Movement) {
	err := w.db.BatchInsertMovements(ctx, batch)
	if err != nil {
		w.logger.Warn("movement archive write failed, retrying",
			zap.Int("batch", len(batch)), zap.Error(err))
		time.Sleep(500 * time.Millisecond)
		err = w.db.BatchInsertMovements(ctx, batch)
		if err != nil {
			w.logger.Error("movement archive write permanently failed",
				zap.Int("batch", len(batch)), zap.Error(err))
			metrics.MovementWriteFailures.Add(int64(len(batch)))
			return
		}
	}
	metrics.MovementWriteSuccess.Add(int64(len(batch)))
}
