package alerts

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper drives the engine's periodic sweep. The engine itself refuses
// overlapping runs, so a manual trigger racing the timer is safe.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
	logger   *zap.Logger
}

func NewSweeper(engine *Engine, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{engine: engine, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled, sweeping once per interval. An
// initial sweep runs immediately so alerts surface right after a restart.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	n, err := s.engine.Sweep(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("sweep run failed", zap.Error(err))
		return
	}
	s.logger.Debug("sweep complete", zap.Int("created_or_refreshed", n))
}
