package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const pingTimeout = 2 * time.Second

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status       string `json:"status"` // "ok" or "degraded"
	Downstream   string `json:"downstream"`
	PendingTasks int    `json:"pending_tasks"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
// Returns 200 while the downstream connection answers pings, 503 once it
// stops. A failed ping is reported, never acted on; the connector does not
// reconnect.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:     "ok",
			Downstream: "not_connected",
		}

		if g.tasks != nil {
			resp.PendingTasks = g.tasks.PendingCount()
		}

		if g.down != nil {
			pingCtx, cancel := context.WithTimeout(r.Context(), pingTimeout)
			if err := g.down.Ping(pingCtx); err != nil {
				resp.Status = "degraded"
				resp.Downstream = "unreachable"
			} else {
				resp.Downstream = "ok"
			}
			cancel()
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status == "degraded" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
