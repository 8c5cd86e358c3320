package gateway

import (
	"context"
	"net/http"
	"time"
)

const healthCheckTimeout = 10 * time.Second

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status   string `json:"status"` // "ok" or "degraded"
	Provider string `json:"provider"`
	Error    string `json:"error,omitempty"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
// Returns 200 if the provider answers its health check, 503 otherwise.
// Providers without a health check are reported healthy.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Provider: g.config.Provider,
		}

		if g.checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := g.checker.HealthCheck(ctx); err != nil {
				resp.Status = "degraded"
				resp.Error = err.Error()
			}
		}

		status := http.StatusOK
		if resp.Status == "degraded" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}
