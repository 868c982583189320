package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"pricewatch/models"
	"pricewatch/scheduler"
)

// Checker is the part of the price checker the API needs.
type Checker interface {
	Status() scheduler.Status
	Trigger(trigger models.RunTrigger) (*models.RunRecord, error)
}

type Handlers struct {
	checker Checker
	logger  *zap.Logger
	started time.Time
}

func NewHandlers(checker Checker, logger *zap.Logger) *Handlers {
	return &Handlers{checker: checker, logger: logger, started: time.Now()}
}

// Register adds the routes to r.
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/status", h.GetStatus).Methods(http.MethodGet)
	apiV1.HandleFunc("/check", h.TriggerCheck).Methods(http.MethodPost)
}

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   "pricewatch",
		"timestamp": time.Now(),
	})
}

// GetStatus returns the schedule, whether a pass is running and the last
// pass with its summary.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"checker":   h.checker.Status(),
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"timestamp": time.Now(),
	})
}

// TriggerCheck starts a pass in the background.
func (h *Handlers) TriggerCheck(w http.ResponseWriter, r *http.Request) {
	record, err := h.checker.Trigger(models.TriggerManual)
	if errors.Is(err, scheduler.ErrRunInProgress) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("failed to start manual pass", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "price checker unavailable")
		return
	}

	h.logger.Info("manual pass started", zap.String("run_id", record.ID))
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"run_id":  record.ID,
		"status":  record.Status,
		"message": "Price check started",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
