// Package gateway provides the ops HTTP server: health, status, metrics,
// admin inspection, webhooks, and the live event stream. It binds to
// loopback by default and follows the module system pattern.
package gateway

import (
	"encoding/json"
	"net/http"
	"os"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/tollgate/internal/ledger"
	"github.com/flemzord/tollgate/internal/security"
)

const defaultDecisionLimit = 50

// taskJSON is a serializable pending-task snapshot. Argument values stay
// out of the ops surface; only the key names are shown.
type taskJSON struct {
	ID           string   `json:"id"`
	Tool         string   `json:"tool"`
	CreatedAt    string   `json:"created_at"`
	ArgumentKeys []string `json:"argument_keys,omitempty"`
}

// handleListTasks returns the live pending tasks as JSON, oldest first.
func (g *Gateway) handleListTasks() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		tasks := []taskJSON{}

		if g.tasks != nil {
			for _, t := range g.tasks.Pending() {
				keys := make([]string, 0, len(t.Arguments))
				for k := range t.Arguments {
					keys = append(keys, k)
				}
				slices.Sort(keys)
				tasks = append(tasks, taskJSON{
					ID:           t.ID,
					Tool:         t.Tool,
					CreatedAt:    t.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
					ArgumentKeys: keys,
				})
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tasks)
	}
}

// handleListDecisions returns recent ledger decisions, newest first.
// ?limit=N caps the count; the default is 50.
func (g *Gateway) handleListDecisions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultDecisionLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}

		decisions := []ledger.Decision{}
		if g.decisions != nil {
			got, err := g.decisions.Recent(r.Context(), limit)
			if err != nil {
				g.logger.Error("ledger read failed", "error", err)
				http.Error(w, "ledger unavailable", http.StatusInternalServerError)
				return
			}
			if got != nil {
				decisions = got
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(decisions)
	}
}

// highRiskJSON is the /api/high-risk response.
type highRiskJSON struct {
	Server string   `json:"server"`
	Tools  []string `json:"tools"`
}

// handleGetConfig serves the on-disk configuration with secret-shaped
// values redacted. The raw file is parsed rather than the resolved config
// so ${VAR} references stay references and expanded secrets never enter
// the response.
func (g *Gateway) handleGetConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if g.configPath == "" {
			http.Error(w, "config path not available", http.StatusServiceUnavailable)
			return
		}

		raw, err := os.ReadFile(g.configPath)
		if err != nil {
			g.logger.Error("config read failed", "error", err)
			http.Error(w, "config unavailable", http.StatusInternalServerError)
			return
		}

		var generic map[string]any
		if err := yaml.Unmarshal(raw, &generic); err != nil {
			g.logger.Error("config parse failed", "error", err)
			http.Error(w, "config unavailable", http.StatusInternalServerError)
			return
		}

		redactor := g.redactor
		if redactor == nil {
			redactor = security.NewRedactor()
		}
		redactor.RedactMap(generic)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(generic)
	}
}

// handleListHighRisk returns the approval-gated tool names for the proxied
// server.
func (g *Gateway) handleListHighRisk() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if g.highRisk == nil {
			http.Error(w, "proxy not running", http.StatusServiceUnavailable)
			return
		}

		tools, err := g.highRisk.HighRiskTools()
		if err != nil {
			g.logger.Error("high-risk lookup failed", "error", err)
			http.Error(w, "policy unavailable", http.StatusInternalServerError)
			return
		}
		if tools == nil {
			tools = []string{}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(highRiskJSON{
			Server: g.highRisk.ServerID(),
			Tools:  tools,
		})
	}
}
