package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/tollgate/internal/config"
	"github.com/flemzord/tollgate/internal/core"
	"github.com/flemzord/tollgate/internal/cron"
	"github.com/flemzord/tollgate/internal/downstream"
	"github.com/flemzord/tollgate/internal/events"
	"github.com/flemzord/tollgate/internal/gateway"
	"github.com/flemzord/tollgate/internal/heartbeat"
	"github.com/flemzord/tollgate/internal/ledger"
	"github.com/flemzord/tollgate/internal/policy"
	"github.com/flemzord/tollgate/internal/proxy"
	"github.com/flemzord/tollgate/internal/security"
	"github.com/flemzord/tollgate/internal/task"
	"github.com/flemzord/tollgate/pkg/approval"
)

// defaultLedgerRetention is how long decisions stay in the ledger before the
// prune job removes them.
const defaultLedgerRetention = 30 * 24 * time.Hour

// runtime holds the proxy core assembled in code after module loading.
type runtime struct {
	serverID  string
	conn      *downstream.Connector
	manager   *task.Manager
	gate      *proxy.Gate
	server    *proxy.Server
	hub       *events.Hub
	store     ledger.Store
	scheduler *cron.Scheduler
	reporter  *heartbeat.Reporter // nil when the heartbeat is disabled
}

// close releases wiring-owned resources. Module-owned resources (the sqlite
// ledger database, the gateway listener) are closed by their modules.
func (rt *runtime) close(logger *slog.Logger) {
	if rt.hub != nil {
		rt.hub.Close()
	}
	if rt.conn != nil {
		if err := rt.conn.Close(); err != nil {
			logger.Error("downstream close failed", "error", err)
		}
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			logger.Error("ledger close failed", "error", err)
		}
	}
}

// wireProxy assembles the proxy core between LoadModules and Start: it
// resolves the approver module's service, launches the downstream server,
// builds the task manager, gate, and MCP server, and registers the services
// the gateway module binds to when it starts.
func wireProxy(
	ctx context.Context,
	appCtx *core.AppContext,
	cfg *config.Config,
	params RunParams,
	credStore *security.CredentialStore,
	auditLogger *security.AuditLogger,
	logger *slog.Logger,
) (*runtime, error) {
	serverID, serverCfg, err := config.ResolveServer(cfg, params.Server)
	if err != nil {
		return nil, err
	}

	approver, err := resolveApprover(appCtx)
	if err != nil {
		return nil, err
	}

	rt := &runtime{serverID: serverID}
	wired := false
	defer func() {
		if !wired {
			rt.close(logger)
		}
	}()

	// The downstream subprocess never sees the host's credential-bearing
	// environment; it gets the scrubbed base plus its own entries.
	conn, err := downstream.Connect(ctx, downstream.Config{
		ServerID:      serverID,
		Command:       serverCfg.Command,
		Args:          serverCfg.Args,
		Env:           serverCfg.Env,
		BearerToken:   serverCfg.BearerToken,
		BearerEnv:     serverCfg.BearerEnvName(),
		BaseEnv:       security.SanitizedEnv(credStore),
		ClientVersion: params.Version,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	rt.conn = conn

	rt.hub = events.NewHub(logger)
	appCtx.RegisterService("events.hub", rt.hub)

	// A ledger module (ledger.sqlite) registers its store during Provision;
	// without one the bounded in-memory ring serves the same surface.
	if svc, ok := appCtx.Service("ledger.store"); ok {
		if store, ok := svc.(ledger.Store); ok {
			rt.store = store
		}
	}
	if rt.store == nil {
		rt.store = ledger.NewRing(0)
		appCtx.RegisterService("ledger.store", rt.store)
	}

	manager, err := task.NewManager(task.Config{
		Approver:         approver,
		Executor:         conn,
		ApproverIdentity: cfg.Approval.Approver,
		ServerID:         serverID,
		MaxPending:       cfg.Approval.MaxPending,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}
	rt.manager = manager
	appCtx.RegisterService("proxy.tasks", manager)
	appCtx.RegisterService("proxy.downstream", conn)

	policies := make(map[string]policy.ServerPolicy, len(cfg.Servers))
	for id, s := range cfg.Servers {
		policies[id] = policy.ServerPolicy{HighRisk: s.HighRiskTools, Blocked: s.BlockedTools}
	}

	gate, err := proxy.NewGate(proxy.Config{
		ServerID:   serverID,
		Policy:     policy.NewRegistry(policies),
		Downstream: conn,
		Tasks:      manager,
		Waiter: task.Waiter{
			Interval: cfg.Approval.StatusCheck.Interval,
			Window:   cfg.Approval.StatusCheck.Window,
		},
		Logger:   logger,
		Observer: newFanout(appCtx, rt.store, rt.hub, auditLogger, logger),
	})
	if err != nil {
		return nil, err
	}
	rt.gate = gate
	appCtx.RegisterService("proxy.gate", gate)

	srv, err := proxy.NewServer(ctx, proxy.ServerConfig{
		Name:    "tollgate",
		Version: params.Version,
		Gate:    gate,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	rt.server = srv

	rt.scheduler = cron.NewScheduler(logger)
	jobs := []cron.Job{
		&cron.CatalogRefreshJob{Refresher: srv, Logger: logger, ServerID: serverID},
		&cron.LedgerPruneJob{Store: rt.store, Retention: defaultLedgerRetention, Logger: logger},
	}
	for _, j := range jobs {
		if err := rt.scheduler.RegisterJob(j); err != nil {
			return nil, err
		}
	}

	if cfg.Heartbeat != nil && cfg.Heartbeat.URL != "" {
		hcfg := heartbeat.Config{
			URL:      cfg.Heartbeat.URL,
			Secret:   cfg.Heartbeat.Secret,
			ServerID: serverID,
			Version:  params.Version,
			Interval: cfg.Heartbeat.Interval,
			Logger:   logger,
		}
		if cfg.Heartbeat.QuietHours != "" {
			qh, err := heartbeat.ParseQuietHours(cfg.Heartbeat.QuietHours)
			if err != nil {
				return nil, err
			}
			hcfg.QuietHours = &qh
		}
		reporter, err := heartbeat.New(hcfg, manager, conn)
		if err != nil {
			return nil, err
		}
		rt.reporter = reporter
	}

	wired = true
	return rt, nil
}

// resolveApprover returns the approver registered by the configured
// approver.* module.
func resolveApprover(appCtx *core.AppContext) (approval.Approver, error) {
	svc, ok := appCtx.Service("approver.channel")
	if !ok {
		return nil, errors.New("app: no approver module registered an approver.channel service")
	}
	approver, ok := svc.(approval.Approver)
	if !ok {
		return nil, fmt.Errorf("app: approver.channel service has type %T, which is not an approver", svc)
	}
	return approver, nil
}

// fanout dispatches gate events to every configured sink: prometheus
// metrics, the decision ledger, the websocket hub, and the audit log. Sinks
// are called inline on the request path and must stay non-blocking.
type fanout struct {
	metrics *gateway.Metrics // nil without the gateway module
	store   ledger.Store
	hub     *events.Hub
	audit   *security.AuditLogger
	logger  *slog.Logger
}

// Compile-time interface check.
var _ proxy.Observer = (*fanout)(nil)

func newFanout(appCtx *core.AppContext, store ledger.Store, hub *events.Hub, audit *security.AuditLogger, logger *slog.Logger) *fanout {
	f := &fanout{store: store, hub: hub, audit: audit, logger: logger}
	if svc, ok := appCtx.Service("gateway.metrics"); ok {
		if m, ok := svc.(*gateway.Metrics); ok {
			f.metrics = m
		}
	}
	return f
}

// GateEvent implements proxy.Observer.
func (f *fanout) GateEvent(ctx context.Context, evt proxy.Event) {
	f.record(evt)
	f.append(ctx, evt)
	f.publish(evt)
	f.auditLog(evt)
}

func (f *fanout) record(evt proxy.Event) {
	if f.metrics == nil {
		return
	}
	switch evt.Kind {
	case proxy.EventBlocked:
		f.metrics.RecordCall(gateway.CallBlocked)
	case proxy.EventForwarded:
		if evt.Detail != "" {
			f.metrics.RecordCall(gateway.CallForwardError)
		} else {
			f.metrics.RecordCall(gateway.CallForwarded)
		}
	case proxy.EventCreated:
		f.metrics.RecordCall(gateway.CallGated)
	case proxy.EventCompleted:
		f.metrics.RecordDecision(ledger.OutcomeApproved, evt.Elapsed)
	case proxy.EventDenied:
		f.metrics.RecordDecision(ledger.OutcomeDenied, evt.Elapsed)
	}
}

// append records terminal outcomes only; the ledger stamps DecidedAt.
func (f *fanout) append(ctx context.Context, evt proxy.Event) {
	if f.store == nil {
		return
	}

	var outcome string
	switch evt.Kind {
	case proxy.EventCompleted:
		outcome = ledger.OutcomeApproved
	case proxy.EventDenied:
		outcome = ledger.OutcomeDenied
	default:
		return
	}

	err := f.store.Append(ctx, ledger.Decision{
		TaskID:  evt.TaskID,
		Server:  evt.Server,
		Tool:    evt.Tool,
		Outcome: outcome,
		Detail:  evt.Detail,
		Elapsed: evt.Elapsed,
	})
	if err != nil {
		f.logger.Error("ledger append failed", "task", evt.TaskID, "error", err)
	}
}

func (f *fanout) publish(evt proxy.Event) {
	if f.hub == nil {
		return
	}
	f.hub.Publish(events.Event{
		Kind:   string(evt.Kind),
		Server: evt.Server,
		Tool:   evt.Tool,
		TaskID: evt.TaskID,
		Detail: evt.Detail,
	})
}

func (f *fanout) auditLog(evt proxy.Event) {
	if f.audit == nil {
		return
	}

	var typ security.EventType
	switch evt.Kind {
	case proxy.EventBlocked:
		typ = security.EventToolBlocked
	case proxy.EventForwarded:
		typ = security.EventToolCall
	case proxy.EventCreated:
		typ = security.EventTaskCreated
	case proxy.EventCompleted:
		typ = security.EventTaskCompleted
	case proxy.EventDenied:
		typ = security.EventTaskDenied
	default:
		return
	}

	f.audit.Log(security.AuditEvent{
		Type:     typ,
		Server:   evt.Server,
		ToolName: evt.Tool,
		TaskID:   evt.TaskID,
		Detail:   evt.Detail,
	})
}
