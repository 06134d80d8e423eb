package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"yard-monitor/tracking/internal/alerts"
	"yard-monitor/tracking/internal/auth"
	"yard-monitor/tracking/internal/config"
	"yard-monitor/tracking/internal/directory"
	"yard-monitor/tracking/internal/ingest"
	"yard-monitor/tracking/internal/pipeline"
	"yard-monitor/tracking/internal/query"
	"yard-monitor/tracking/internal/registry"
	"yard-monitor/tracking/internal/store"
	"yard-monitor/tracking/internal/tracker"
	transporthttp "yard-monitor/tracking/internal/transport/http"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg, err := registry.LoadFile(cfg.ZonesFile)
	if err != nil {
		logger.Fatal("zone catalog load failed", zap.String("file", cfg.ZonesFile), zap.Error(err))
	}

	var dir *directory.Memory
	if _, statErr := os.Stat(cfg.VehiclesFile); statErr == nil {
		dir, err = directory.LoadFile(cfg.VehiclesFile, cfg.ExitReadyTag)
		if err != nil {
			logger.Fatal("vehicle directory load failed", zap.String("file", cfg.VehiclesFile), zap.Error(err))
		}
	} else {
		logger.Warn("vehicle directory seed not found, starting empty", zap.String("file", cfg.VehiclesFile))
		dir = directory.NewMemory(cfg.ExitReadyTag)
	}

	movementLog := store.NewMemoryMovementLog()
	alertStore := store.NewMemoryAlertStore()

	trk := tracker.New(movementLog, logger)

	dispatcher := pipeline.NewDispatcher(cfg.MovementChannelSize, cfg.StateChannelSize, cfg.AlertChannelSize)

	engine := alerts.New(
		alertStore,
		trk,
		reg,
		dir,
		cfg.InactivityThreshold(),
		cfg.DeliveryReadyThreshold(),
		logger,
		alerts.WithNotifier(dispatcher),
	)

	// Rule evaluation runs before the fan-out so a rejected write can never
	// reach the sinks ahead of its alert.
	trk.Subscribe(engine.HandleStateChange)
	trk.Subscribe(dispatcher.HandleStateChange)

	ingestor := ingest.New(reg, dir, trk, engine, cfg.MinDetectionConfidence, logger)
	facade := query.New(trk, movementLog, alertStore, reg, dir)

	// The archive and live-view sinks are optional mirrors; the service
	// stays up on in-memory state if either backend is unreachable.
	var db *store.PostgresStore
	if db, err = store.NewPostgresStore(ctx, cfg); err != nil {
		logger.Warn("movement archive unavailable", zap.Error(err))
		db = nil
	}

	var rds *store.RedisStore
	if rds, err = store.NewRedisStore(ctx, cfg); err != nil {
		logger.Warn("live state store unavailable", zap.Error(err))
		rds = nil
	}

	authenticator := auth.NewAuthenticator(cfg, rds)
	server := transporthttp.NewServer(
		":"+cfg.HTTPPort,
		ingestor,
		engine,
		facade,
		transporthttp.NewAuthMiddleware(authenticator),
		logger,
	)

	g, gctx := errgroup.WithContext(ctx)

	if db != nil {
		defer db.Close()
		g.Go(func() error {
			pipeline.NewDBWriter(dispatcher.MovementChan, db, cfg.DBBatchSize, cfg.DBFlushIntervalMS, logger).Run(gctx)
			return nil
		})
	}
	if rds != nil {
		defer rds.Close()
		g.Go(func() error {
			pipeline.NewStateWriter(dispatcher.StateChan, rds, logger).Run(gctx)
			return nil
		})
	}
	if db != nil || rds != nil {
		g.Go(func() error {
			pipeline.NewAlertWriter(dispatcher.AlertChan, db, rds, logger).Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		return alerts.NewSweeper(engine, cfg.SweepInterval(), logger).Run(gctx)
	})
	g.Go(func() error {
		return server.Start(gctx)
	})

	logger.Info("yard tracker started",
		zap.String("http_port", cfg.HTTPPort),
		zap.Int("zones", len(reg.Zones())),
		zap.Bool("archive", db != nil),
		zap.Bool("live_state", rds != nil))

	if err := g.Wait(); err != nil {
		logger.Error("shutdown with error", zap.Error(err))
	}
	logger.Info("yard tracker stopped")
}
