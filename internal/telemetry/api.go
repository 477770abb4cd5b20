package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/biostream/sentinel/internal/shared/errors"
)

const (
	defaultAnomalyLimit  = 20
	contextTelemetryRows = 10
	contextAlertRows     = 5
)

// Repository is the read side of the hot store consumed by the HTTP layer.
type Repository interface {
	RecentAnomalies(ctx context.Context, limit int) ([]AlertRecord, error)
	RecentTelemetry(ctx context.Context, deviceID string, n int) ([]HotRecord, error)
	RecentAlerts(ctx context.Context, deviceID string, m int) ([]AlertRecord, error)
}

// Handler provides HTTP handlers for the telemetry module
type Handler struct {
	svc  *Service
	repo Repository
}

// NewHandler creates a new telemetry handler
func NewHandler(svc *Service, repo Repository) *Handler {
	return &Handler{svc: svc, repo: repo}
}

// Routes registers the telemetry routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/telemetry", h.IngestTelemetry)
	r.Post("/telemetry/flush", h.TriggerFlush)
	r.Get("/anomalies", h.ListAnomalies)
	r.Get("/devices/{deviceID}/context", h.DeviceContext)

	return r
}

// --- Request/Response types ---

type IngestionResponse struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id"`
	RiskLevel     string `json:"risk_assessment"`
}

// --- Handlers ---

// IngestTelemetry accepts one wearable reading and runs it through the
// ingestion pipeline.
func (h *Handler) IngestTelemetry(w http.ResponseWriter, r *http.Request) {
	var reading Reading
	if err := json.NewDecoder(r.Body).Decode(&reading); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	res, err := h.svc.Ingest(r.Context(), reading)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, IngestionResponse{
		Status:        "accepted",
		Message:       "telemetry stored",
		CorrelationID: middleware.GetReqID(r.Context()),
		RiskLevel:     string(res.RiskLevel),
	})
}

// TriggerFlush forces an archive flush of the current buffer regardless of
// the batch threshold.
func (h *Handler) TriggerFlush(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.FlushNow(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}

// ListAnomalies returns the latest high-risk alerts.
func (h *Handler) ListAnomalies(w http.ResponseWriter, r *http.Request) {
	limit := defaultAnomalyLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	alerts, err := h.repo.RecentAnomalies(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if alerts == nil {
		alerts = []AlertRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": alerts})
}

// DeviceContext returns recent vitals and alerts for one device, formatted
// for the conversational assistant collaborator.
func (h *Handler) DeviceContext(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	records, err := h.repo.RecentTelemetry(r.Context(), deviceID, contextTelemetryRows)
	if err != nil {
		writeError(w, err)
		return
	}
	alerts, err := h.repo.RecentAlerts(r.Context(), deviceID, contextAlertRows)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"device_id": deviceID,
		"context":   BuildDeviceContext(deviceID, records, alerts),
	})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
