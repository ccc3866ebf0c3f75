// Package api provides the HTTP handlers of the wastemap API.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// HealthChecker defines the interface for components that can be health checked.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandlers provides health and readiness check endpoints for Kubernetes probes.
type HealthHandlers struct {
	dbChecker    HealthChecker
	cacheChecker HealthChecker
	now          func() time.Time
}

// HealthHandlersConfig configures the health check handlers. A nil checker
// is reported as "disabled" and does not fail readiness.
type HealthHandlersConfig struct {
	DBChecker    HealthChecker
	CacheChecker HealthChecker
}

// NewHealthHandlers creates a new health check handler.
func NewHealthHandlers(config HealthHandlersConfig) *HealthHandlers {
	return &HealthHandlers{
		dbChecker:    config.DBChecker,
		cacheChecker: config.CacheChecker,
		now:          time.Now,
	}
}

// HealthResponse represents the JSON response for health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles GET /health (liveness probe).
// Returns 200 whenever the process can serve requests.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	h.write(w, http.StatusOK, HealthResponse{
		Status: "healthy",
		Checks: map[string]string{"runtime": "ok"},
	})
}

// Ready handles GET /ready (readiness probe).
// Returns 503 when the database is unreachable. The report cache is
// best-effort, so a failing Redis is reported as degraded but stays ready.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{"metrics": "ok"}
	status := "healthy"
	statusCode := http.StatusOK

	if h.dbChecker == nil {
		checks["database"] = "disabled"
	} else if err := h.dbChecker.HealthCheck(ctx); err != nil {
		slog.WarnContext(ctx, "database health check failed", "error", err)
		checks["database"] = "error"
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.cacheChecker == nil {
		checks["cache"] = "disabled"
	} else if err := h.cacheChecker.HealthCheck(ctx); err != nil {
		slog.WarnContext(ctx, "report cache health check failed", "error", err)
		checks["cache"] = "error"
		if status == "healthy" {
			status = "degraded"
		}
	} else {
		checks["cache"] = "ok"
	}

	h.write(w, statusCode, HealthResponse{Status: status, Checks: checks})
}

func (h *HealthHandlers) write(w http.ResponseWriter, statusCode int, response HealthResponse) {
	response.Timestamp = h.now().UTC().Format(time.RFC3339)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to encode health response", "error", err)
	}
}
