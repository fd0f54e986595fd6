package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/tollgate/internal/core"
	"github.com/flemzord/tollgate/internal/events"
	"github.com/flemzord/tollgate/internal/ledger"
	"github.com/flemzord/tollgate/internal/security"
	"github.com/flemzord/tollgate/internal/task"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// TaskSource is the view of the live task table the ops surface needs.
// *task.Manager satisfies it.
type TaskSource interface {
	Pending() []task.Task
	PendingCount() int
}

// Pinger reports downstream connection health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HighRiskSource reports which downstream tools require approval.
// *proxy.Gate satisfies it.
type HighRiskSource interface {
	ServerID() string
	HighRiskTools() ([]string, error)
}

// Gateway is the ops HTTP module. It exposes health, status, metrics,
// admin, webhook, and event-stream endpoints. It is a leaf module next to
// the MCP stdio surface; the proxied call path never goes through it.
type Gateway struct {
	config     Config
	appCtx     *core.AppContext
	logger     *slog.Logger
	server     *http.Server
	metrics    *Metrics
	dispatcher *WebhookDispatcher
	limiter    *security.RateLimiter
	startedAt  time.Time

	// Resolved lazily at Start() via service registry.
	tasks      TaskSource
	decisions  ledger.Store
	down       Pinger
	highRisk   HighRiskSource
	hub        *events.Hub
	audit      *security.AuditLogger
	redactor   *security.Redactor
	configPath string
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.metrics = NewMetrics()
	g.limiter = security.NewRateLimiter(g.config.RateLimit)

	g.dispatcher = NewWebhookDispatcher(g.logger)
	g.dispatcher.limiter = g.limiter
	g.dispatcher.metrics = g.metrics
	g.dispatcher.maxBody = g.config.MaxBodySize
	for source, cfg := range g.config.Webhooks {
		g.dispatcher.SetSecret(source, cfg.Secret)
	}

	// Register services for cross-module discovery. Approver modules attach
	// their webhook handlers through the dispatcher; the wiring layer records
	// gate events through the metrics.
	ctx.RegisterService("gateway.metrics", g.metrics)
	ctx.RegisterService("gateway.webhook_dispatcher", g.dispatcher)

	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	return nil
}

// Start implements core.Starter. It resolves dependencies from the service
// registry (lazy binding) and starts the HTTP server.
func (g *Gateway) Start() error {
	// Resolve optional services — the surface degrades gracefully when a
	// producer is not configured.
	if svc, ok := g.appCtx.Service("proxy.tasks"); ok {
		if src, ok := svc.(TaskSource); ok {
			g.tasks = src
		}
	}
	if svc, ok := g.appCtx.Service("ledger.store"); ok {
		if store, ok := svc.(ledger.Store); ok {
			g.decisions = store
		}
	}
	if svc, ok := g.appCtx.Service("proxy.downstream"); ok {
		if p, ok := svc.(Pinger); ok {
			g.down = p
		}
	}
	if svc, ok := g.appCtx.Service("proxy.gate"); ok {
		if hr, ok := svc.(HighRiskSource); ok {
			g.highRisk = hr
		}
	}
	if svc, ok := g.appCtx.Service("events.hub"); ok {
		if hub, ok := svc.(*events.Hub); ok {
			g.hub = hub
		}
	}
	if svc, ok := g.appCtx.Service("security.audit"); ok {
		if al, ok := svc.(*security.AuditLogger); ok {
			g.audit = al
		}
	}
	if svc, ok := g.appCtx.Service("security.redactor"); ok {
		if r, ok := svc.(*security.Redactor); ok {
			g.redactor = r
		}
	}
	if svc, ok := g.appCtx.Service("config.path"); ok {
		if path, ok := svc.(string); ok {
			g.configPath = path
		}
	}

	if g.tasks != nil {
		g.metrics.ObservePending(func() float64 {
			return float64(g.tasks.PendingCount())
		})
	}

	g.startedAt = time.Now()

	mux := g.buildRouter()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      mux,
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.config.Bind)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
