package gateway

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flemzord/tollgate/internal/ledger"
)

// Gate call outcomes recorded by the wiring layer.
const (
	CallForwarded    = "forwarded"
	CallForwardError = "forward_error"
	CallBlocked      = "blocked"
	CallGated        = "gated"
)

// Metrics exposes the proxy's prometheus instruments and mirrors the
// counters for the JSON status snapshot.
type Metrics struct {
	registry *prometheus.Registry

	toolCalls       *prometheus.CounterVec
	decisions       *prometheus.CounterVec
	decisionSeconds prometheus.Histogram
	webhooks        *prometheus.CounterVec

	pendingOnce sync.Once

	forwarded     atomic.Int64
	forwardErrors atomic.Int64
	blocked       atomic.Int64
	gated         atomic.Int64
	approved      atomic.Int64
	denied        atomic.Int64
}

// NewMetrics builds a private registry with the tollgate instruments plus
// the standard go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		toolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tollgate",
			Name:      "tool_calls_total",
			Help:      "Tool calls by gate outcome.",
		}, []string{"outcome"}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tollgate",
			Name:      "task_decisions_total",
			Help:      "Terminal approval task outcomes.",
		}, []string{"outcome"}),
		decisionSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tollgate",
			Name:      "decision_duration_seconds",
			Help:      "Time from task creation to terminal decision.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		webhooks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tollgate",
			Name:      "webhook_requests_total",
			Help:      "Webhook deliveries by source and response code.",
		}, []string{"source", "code"}),
	}
}

// RecordCall records one gate dispatch outcome.
func (m *Metrics) RecordCall(outcome string) {
	m.toolCalls.WithLabelValues(outcome).Inc()
	switch outcome {
	case CallForwarded:
		m.forwarded.Add(1)
	case CallForwardError:
		m.forwardErrors.Add(1)
	case CallBlocked:
		m.blocked.Add(1)
	case CallGated:
		m.gated.Add(1)
	}
}

// RecordDecision records a terminal task outcome and its latency.
func (m *Metrics) RecordDecision(outcome string, elapsed time.Duration) {
	m.decisions.WithLabelValues(outcome).Inc()
	if elapsed > 0 {
		m.decisionSeconds.Observe(elapsed.Seconds())
	}
	switch outcome {
	case ledger.OutcomeApproved:
		m.approved.Add(1)
	case ledger.OutcomeDenied:
		m.denied.Add(1)
	}
}

// RecordWebhook records one webhook delivery attempt.
func (m *Metrics) RecordWebhook(source string, code int) {
	m.webhooks.WithLabelValues(source, strconv.Itoa(code)).Inc()
}

// ObservePending registers a gauge fed by f. Later calls are no-ops, so the
// gauge binds to the first task source that starts.
func (m *Metrics) ObservePending(f func() float64) {
	m.pendingOnce.Do(func() {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "tollgate",
			Name:      "pending_tasks",
			Help:      "Approval tasks currently awaiting a decision.",
		}, f))
	})
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Snapshot returns a consistent point-in-time view of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Forwarded:     m.forwarded.Load(),
		ForwardErrors: m.forwardErrors.Load(),
		Blocked:       m.blocked.Load(),
		Gated:         m.gated.Load(),
		Approved:      m.approved.Load(),
		Denied:        m.denied.Load(),
	}
}

// MetricsSnapshot is a serializable point-in-time metrics view.
type MetricsSnapshot struct {
	Forwarded     int64 `json:"forwarded"`
	ForwardErrors int64 `json:"forward_errors"`
	Blocked       int64 `json:"blocked"`
	Gated         int64 `json:"gated"`
	Approved      int64 `json:"approved"`
	Denied        int64 `json:"denied"`
}
