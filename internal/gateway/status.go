package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime           time.Duration   `json:"uptime_ns"`
	Server           string          `json:"server,omitempty"`
	Metrics          MetricsSnapshot `json:"metrics"`
	PendingTasks     int             `json:"pending_tasks"`
	EventSubscribers int             `json:"event_subscribers"`
	AuditWriteErrors int64           `json:"audit_write_errors"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime:  time.Since(g.startedAt).Truncate(time.Second),
			Metrics: g.metrics.Snapshot(),
		}

		if g.highRisk != nil {
			resp.Server = g.highRisk.ServerID()
		}
		if g.tasks != nil {
			resp.PendingTasks = g.tasks.PendingCount()
		}
		if g.hub != nil {
			resp.EventSubscribers = g.hub.SubscriberCount()
		}
		if g.audit != nil {
			resp.AuditWriteErrors = g.audit.WriteErrors()
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
