package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"
)

// CheckFunc reports whether a dependency is usable
type CheckFunc func(ctx context.Context) error

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	checks  map[string]CheckFunc
	timeout time.Duration
	logger  *zap.Logger
}

func NewHealthHandler(checks map[string]CheckFunc, timeout time.Duration, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		timeout: timeout,
		logger:  logger,
	}
}

// Live handles GET /health
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Ready handles GET /health/ready and runs every registered check
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]interface{})
	allHealthy := true
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Error("Health check failed", zap.String("check", name), zap.Error(err))
			checks[name] = map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
			}
			allHealthy = false
			continue
		}
		checks[name] = map[string]interface{}{
			"status": "healthy",
		}
	}

	if allHealthy {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"checks": checks,
		})
		return
	}
	respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
		"status": "unhealthy",
		"checks": checks,
	})
}
