package http

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"yard-monitor/tracking/internal/alerts"
	"yard-monitor/tracking/internal/ingest"
	"yard-monitor/tracking/internal/metrics"
	"yard-monitor/tracking/internal/query"
)

// Server exposes the core's operations to the presentation layer and to
// the LPR cameras.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

func NewServer(
	addr string,
	ingestor *ingest.Ingestor,
	engine *alerts.Engine,
	facade *query.Facade,
	authMW *AuthMiddleware,
	logger *zap.Logger,
) *Server {
	h := &handlers{
		ingestor: ingestor,
		engine:   engine,
		facade:   facade,
		logger:   logger,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /metrics", metrics.HandleMetrics)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/lpr/detect", h.handleDetection)
	api.HandleFunc("POST /api/movements/manual", h.handleManualMovement)
	api.HandleFunc("GET /api/movements/recent", h.handleRecentMovements)
	api.HandleFunc("GET /api/vehicles/{id}/state", h.handleVehicleState)
	api.HandleFunc("GET /api/vehicles/{id}/movements", h.handleVehicleMovements)
	api.HandleFunc("GET /api/alerts", h.handleListAlerts)
	api.HandleFunc("POST /api/alerts", h.handleCreateAlert)
	api.HandleFunc("POST /api/alerts/read-all", h.handleMarkAllRead)
	api.HandleFunc("POST /api/alerts/sweep", h.handleSweep)
	api.HandleFunc("POST /api/alerts/{id}/read", h.handleMarkRead)
	api.HandleFunc("POST /api/alerts/{id}/resolve", h.handleResolve)
	api.HandleFunc("GET /api/dashboard/aggregates", h.handleAggregates)
	api.HandleFunc("GET /api/dashboard/map", h.handleMap)
	api.HandleFunc("GET /api/dashboard/inactive", h.handleInactive)
	api.HandleFunc("GET /api/dashboard/longest-stay", h.handleLongestStay)
	mux.Handle("/api/", authMW.Wrap(api))

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger,
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}
