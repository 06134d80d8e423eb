package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"yard-monitor/tracking/internal/alerts"
	"yard-monitor/tracking/internal/domain"
	"yard-monitor/tracking/internal/ingest"
	"yard-monitor/tracking/internal/query"
)

var validate = validator.New()

type handlers struct {
	ingestor *ingest.Ingestor
	engine   *alerts.Engine
	facade   *query.Facade
	logger   *zap.Logger
}

type detectionRequest struct {
	Plate      string  `json:"plate" validate:"required"`
	SensorCode string  `json:"sensor_code" validate:"required"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
	Timestamp  int64   `json:"timestamp"`
}

func (h *handlers) handleDetection(w http.ResponseWriter, r *http.Request) {
	var req detectionRequest
	if !decode(w, r, &req) {
		return
	}

	var ts time.Time
	if req.Timestamp > 0 {
		ts = time.Unix(req.Timestamp, 0)
	}

	m, err := h.ingestor.IngestDetection(r.Context(), req.Plate, req.SensorCode, req.Confidence, ts)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, map[string]interface{}{"status": "recorded", "movement": m})
	case errors.Is(err, domain.ErrUnknownVehicle):
		// Alert path, not a failure: the unregistered-entry alert is
		// already raised by the time we get here.
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "unregistered_entry"})
	case errors.Is(err, domain.ErrLowConfidence):
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "low_confidence_discarded"})
	default:
		h.writeError(w, err)
	}
}

type manualMovementRequest struct {
	VehicleID string `json:"vehicle_id" validate:"required"`
	Kind      string `json:"kind" validate:"required,oneof=entry exit zone_change"`
	ZoneID    string `json:"zone_id"`
	Note      string `json:"note"`
}

func (h *handlers) handleManualMovement(w http.ResponseWriter, r *http.Request) {
	var req manualMovementRequest
	if !decode(w, r, &req) {
		return
	}

	m, err := h.ingestor.IngestManual(r.Context(), req.VehicleID, domain.MovementKind(req.Kind), req.ZoneID, req.Note)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"status": "recorded", "movement": m})
}

func (h *handlers) handleVehicleState(w http.ResponseWriter, r *http.Request) {
	st, err := h.facade.VehicleState(r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"vehicle_id":       st.VehicleID,
		"current_zone":     st.CurrentZone,
		"on_premises":      st.OnPremises(),
		"first_entry_at":   timeOrNil(st.FirstEntryAt),
		"last_entry_at":    timeOrNil(st.LastEntryAt),
		"last_exit_at":     timeOrNil(st.LastExitAt),
		"last_movement_at": timeOrNil(st.LastMovementAt),
	})
}

func (h *handlers) handleVehicleMovements(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 50)
	offset := intQuery(r, "offset", 0)
	ms, err := h.facade.Movements(r.Context(), r.PathValue("id"), limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ms)
}

func (h *handlers) handleRecentMovements(w http.ResponseWriter, r *http.Request) {
	ms, err := h.facade.RecentMovements(r.Context(), intQuery(r, "limit", 50))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ms)
}

func (h *handlers) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	f := alerts.Filter{
		Kind:      domain.AlertKind(r.URL.Query().Get("kind")),
		Severity:  domain.AlertSeverity(r.URL.Query().Get("severity")),
		VehicleID: r.URL.Query().Get("vehicle_id"),
		Limit:     intQuery(r, "limit", 50),
		Offset:    intQuery(r, "offset", 0),
	}
	if v := r.URL.Query().Get("resolved"); v != "" {
		b := v == "true"
		f.Resolved = &b
	}
	if v := r.URL.Query().Get("read"); v != "" {
		b := v == "true"
		f.Read = &b
	}

	as, err := h.engine.List(r.Context(), f)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, as)
}

type createAlertRequest struct {
	VehicleID string `json:"vehicle_id" validate:"required"`
	Title     string `json:"title" validate:"required"`
	Message   string `json:"message"`
	Severity  string `json:"severity" validate:"omitempty,oneof=low medium high critical"`
}

func (h *handlers) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req createAlertRequest
	if !decode(w, r, &req) {
		return
	}
	a, err := h.engine.RaiseCustom(r.Context(), req.VehicleID, req.Title, req.Message, domain.AlertSeverity(req.Severity))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *handlers) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	a, err := h.engine.MarkRead(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *handlers) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.engine.MarkAllRead(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked_read": n})
}

type resolveRequest struct {
	Note string `json:"note"`
}

func (h *handlers) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if r.ContentLength > 0 && !decode(w, r, &req) {
		return
	}
	a, err := h.engine.Resolve(r.Context(), r.PathValue("id"), req.Note)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *handlers) handleSweep(w http.ResponseWriter, r *http.Request) {
	n, err := h.engine.Sweep(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"created_or_refreshed": n})
}

func (h *handlers) handleAggregates(w http.ResponseWriter, r *http.Request) {
	agg, err := h.facade.Aggregates(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func (h *handlers) handleMap(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.facade.MapView())
}

func (h *handlers) handleInactive(w http.ResponseWriter, r *http.Request) {
	days := intQuery(r, "days", 20)
	limit := intQuery(r, "limit", 20)
	writeJSON(w, http.StatusOK, h.facade.InactiveVehicles(time.Duration(days)*24*time.Hour, limit))
}

func (h *handlers) handleLongestStay(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.facade.LongestStays(intQuery(r, "limit", 20)))
}

func (h *handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrUnknownVehicle),
		errors.Is(err, domain.ErrUnknownZone),
		errors.Is(err, domain.ErrUnknownSensor),
		errors.Is(err, domain.ErrUnknownAlert):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrPersistence):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed JSON body"})
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func intQuery(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func timeOrNil(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
