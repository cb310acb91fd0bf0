package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/shcallaway/gmail-mcp-server/internal/logging"
	"github.com/shcallaway/gmail-mcp-server/internal/store"
)

// Health status constants for health check responses.
const (
	healthStatusOK       = "ok"
	healthStatusDegraded = "degraded"
	healthStatusNotReady = "not ready"
)

// HealthChecker provides health check endpoints for Kubernetes probes.
// The liveness check doubles as the expired-state janitor: every probe
// sweeps the OAuth state ledger, so no separate cleanup timer is needed.
type HealthChecker struct {
	ready     atomic.Bool
	store     store.TokenStore
	startTime time.Time
	logger    *slog.Logger
}

// NewHealthChecker creates a new HealthChecker.
func NewHealthChecker(st store.TokenStore, logger *slog.Logger) *HealthChecker {
	if logger == nil {
		logger = slog.Default()
	}
	h := &HealthChecker{
		store:     st,
		startTime: time.Now(),
		logger:    logging.WithComponent(logger, "health"),
	}
	h.ready.Store(true)
	return h
}

// SetReady sets the readiness state of the server.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the server is ready to receive traffic.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// HealthResponse represents the JSON response for health endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LivenessHandler returns an HTTP handler for the /healthz endpoint.
// A probe sweeps expired OAuth states; a store failure reports the service
// as degraded with a 503 so orchestrators can restart it.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		response := HealthResponse{
			Status: healthStatusOK,
			Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
		}

		if h.store != nil {
			if _, err := h.store.CleanupExpiredStates(r.Context()); err != nil {
				h.logger.Error("state cleanup failed during health check", logging.Err(err))
				response.Status = healthStatusDegraded
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(response)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	})
}

// ReadinessHandler returns an HTTP handler for the /readyz endpoint.
// Readiness probes indicate whether the server is ready to receive traffic.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		checks := make(map[string]string)
		allOk := true

		if !h.ready.Load() {
			checks["ready"] = healthStatusNotReady
			allOk = false
		} else {
			checks["ready"] = healthStatusOK
		}

		response := HealthResponse{Checks: checks}

		if allOk {
			response.Status = healthStatusOK
			w.WriteHeader(http.StatusOK)
		} else {
			response.Status = healthStatusNotReady
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		_ = json.NewEncoder(w).Encode(response)
	})
}

// RegisterHealthEndpoints registers health check endpoints on the given mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
}
