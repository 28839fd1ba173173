package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/samber/lo"

	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
)

const readinessCheckTimeout = 2 * time.Second

// DependencyCheck reports a dependency status; a non-nil error marks it down.
type DependencyCheck struct {
	Name  string
	Check func(ctx context.Context) (status string, err error)
}

// ReadinessResponse is the body of GET /ready.
type ReadinessResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
}

// HealthHandler answers liveness probes.
func HealthHandler(logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Debug(r.Context(), "Health check endpoint hit")
		writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
	}
}

// ReadyHandler runs every check and answers 503 when any fails.
func ReadyHandler(logger domain.Logger, checks ...DependencyCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessCheckTimeout)
		defer cancel()

		resp := ReadinessResponse{Status: "READY", Dependencies: make(map[string]string, len(checks))}
		failed := lo.Filter(checks, func(c DependencyCheck, _ int) bool {
			status, err := c.Check(ctx)
			resp.Dependencies[c.Name] = status
			if err != nil {
				logger.Warn(r.Context(), "Readiness check failed", "dependency", c.Name, "status", status, "error", err.Error())
				return true
			}
			return false
		})

		code := http.StatusOK
		if len(failed) > 0 {
			resp.Status = "NOT_READY"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Error(r.Context(), "Failed to encode readiness response", "error", err)
		}
	}
}
