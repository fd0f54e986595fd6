// Package proxy is the caller-facing MCP surface. The gate classifies every
// tool call against the server's policy, rejects blocked names outright,
// detours high-risk names through the approval task manager, and forwards
// everything else to the downstream server untouched.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/flemzord/tollgate/internal/policy"
	"github.com/flemzord/tollgate/internal/task"
	"github.com/flemzord/tollgate/internal/tracing"
)

// Downstream is the forwarding surface of the downstream connector.
type Downstream interface {
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	Call(ctx context.Context, toolName string, args map[string]any) (*mcp.CallToolResult, error)
}

// Tasks is the slice of the task manager the gate drives.
type Tasks interface {
	Create(ctx context.Context, toolName string, args map[string]any) (*task.Task, error)
	Query(ctx context.Context, taskID string) task.Resolution
}

// Notifier emits the single progress notification for a gated call. The
// server layer binds it to the caller's progress token; nil means the
// request carried none.
type Notifier func(ctx context.Context, taskID string)

// EventKind labels gate lifecycle events.
type EventKind string

const (
	EventBlocked   EventKind = "blocked"
	EventCreated   EventKind = "task_created"
	EventCompleted EventKind = "task_completed"
	EventDenied    EventKind = "task_denied"
	EventForwarded EventKind = "forwarded"
)

// Event is one gate observation.
type Event struct {
	Kind   EventKind
	Server string
	Tool   string
	TaskID string

	// Detail carries a denial reason or a failure message.
	Detail string

	// Elapsed is the creation-to-terminal latency for task events.
	Elapsed time.Duration
}

// Observer receives gate events. Implementations must not block; the gate
// calls them inline on the request path.
type Observer interface {
	GateEvent(ctx context.Context, evt Event)
}

// Config assembles a Gate.
type Config struct {
	// ServerID selects the policy row used for classification.
	ServerID string

	Policy     *policy.Registry
	Downstream Downstream
	Tasks      Tasks

	// Waiter bounds the server-side status-check wait.
	Waiter task.Waiter

	Logger *slog.Logger

	// Observer receives lifecycle events. Optional.
	Observer Observer
}

// Gate dispatches inbound tool calls.
type Gate struct {
	serverID   string
	policy     *policy.Registry
	downstream Downstream
	tasks      Tasks
	waiter     task.Waiter
	logger     *slog.Logger
	observer   Observer
}

func NewGate(cfg Config) (*Gate, error) {
	if cfg.Policy == nil {
		return nil, errors.New("proxy: policy registry is required")
	}
	if cfg.Downstream == nil {
		return nil, errors.New("proxy: downstream connector is required")
	}
	if cfg.Tasks == nil {
		return nil, errors.New("proxy: task manager is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		serverID:   cfg.ServerID,
		policy:     cfg.Policy,
		downstream: cfg.Downstream,
		tasks:      cfg.Tasks,
		waiter:     cfg.Waiter,
		logger:     logger,
		observer:   cfg.Observer,
	}, nil
}

// ServerID returns the downstream server identifier the gate serves.
func (g *Gate) ServerID() string { return g.serverID }

// CallTool dispatches one invocation request per its policy tier. Every
// failure is rendered as a caller-visible error result; nothing escapes
// this boundary as a protocol error.
func (g *Gate) CallTool(ctx context.Context, toolName string, args map[string]any, notify Notifier) *mcp.CallToolResult {
	ctx, span := tracing.Start(ctx, "gate.call_tool",
		attribute.String("mcp.server", g.serverID),
		attribute.String("mcp.tool", toolName))
	defer span.End()

	tier, err := g.policy.Classify(g.serverID, toolName)
	if err != nil {
		g.logger.Error("classification failed", "tool", toolName, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Configuration error: %v", err))
	}

	switch tier {
	case policy.TierBlocked:
		g.logger.Info("tool call blocked", "server", g.serverID, "tool", toolName)
		g.publish(ctx, Event{Kind: EventBlocked, Server: g.serverID, Tool: toolName})
		return blockedResult(toolName)

	case policy.TierHighRisk:
		return g.gateCall(ctx, toolName, args, notify)

	default:
		res, err := g.downstream.Call(ctx, toolName, args)
		if err != nil {
			g.logger.Warn("forwarding failed", "tool", toolName, "error", err)
			g.publish(ctx, Event{Kind: EventForwarded, Server: g.serverID, Tool: toolName, Detail: err.Error()})
			return mcp.NewToolResultError(err.Error())
		}
		g.publish(ctx, Event{Kind: EventForwarded, Server: g.serverID, Tool: toolName})
		return res
	}
}

// gateCall opens an approval task for a high-risk invocation and answers
// with the poll instruction instead of a result.
func (g *Gate) gateCall(ctx context.Context, toolName string, args map[string]any, notify Notifier) *mcp.CallToolResult {
	created, err := g.tasks.Create(ctx, toolName, args)
	if err != nil {
		g.logger.Error("approval setup failed", "tool", toolName, "error", err)
		return mcp.NewToolResultError(err.Error())
	}

	g.logger.Info("approval task created", "task", created.ID, "tool", toolName)
	g.publish(ctx, Event{Kind: EventCreated, Server: g.serverID, Tool: toolName, TaskID: created.ID})

	if notify != nil {
		notify(ctx, created.ID)
	}
	return pendingResult(created.ID)
}

// CheckTaskStatus runs the bounded status wait for one task and renders the
// final observation. A still-pending task yields the poll payload again.
func (g *Gate) CheckTaskStatus(ctx context.Context, taskID string) *mcp.CallToolResult {
	ctx, span := tracing.Start(ctx, "gate.check_task_status",
		attribute.String("mcp.server", g.serverID),
		attribute.String("tollgate.task_id", taskID))
	defer span.End()

	res := g.waiter.Await(ctx, g.tasks, taskID)
	switch res.Status {
	case task.StatusPending:
		return pendingResult(taskID)
	case task.StatusResolved:
		return g.renderResolved(ctx, res)
	default:
		return notFoundResult(taskID)
	}
}

func (g *Gate) renderResolved(ctx context.Context, res task.Resolution) *mcp.CallToolResult {
	var elapsed time.Duration
	if !res.CreatedAt.IsZero() {
		elapsed = time.Since(res.CreatedAt)
	}

	if res.Outcome == task.OutcomeApproved {
		var detail string
		if res.CallErr != nil {
			detail = res.CallErr.Error()
		}
		g.publish(ctx, Event{
			Kind:    EventCompleted,
			Server:  g.serverID,
			Tool:    res.Tool,
			TaskID:  res.TaskID,
			Detail:  detail,
			Elapsed: elapsed,
		})
		if res.CallErr != nil {
			return executionFailedResult(res)
		}
		return completedResult(res)
	}

	g.publish(ctx, Event{
		Kind:    EventDenied,
		Server:  g.serverID,
		Tool:    res.Tool,
		TaskID:  res.TaskID,
		Detail:  res.Detail,
		Elapsed: elapsed,
	})
	return deniedResult(res)
}

// HighRiskListing renders the names that require approval on this server.
func (g *Gate) HighRiskListing() *mcp.CallToolResult {
	names, err := g.policy.HighRiskTools(g.serverID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Configuration error: %v", err))
	}
	return highRiskListing(g.serverID, names)
}

// HighRiskTools returns the approval-gated names for this server, sorted.
func (g *Gate) HighRiskTools() ([]string, error) {
	return g.policy.HighRiskTools(g.serverID)
}

// DownstreamTools returns the downstream catalog, sorted by the connector.
func (g *Gate) DownstreamTools(ctx context.Context) ([]mcp.Tool, error) {
	return g.downstream.ListTools(ctx)
}

// Catalog is the caller-visible tool list: the downstream catalog plus the
// two synthetic entries.
func (g *Gate) Catalog(ctx context.Context) ([]mcp.Tool, error) {
	tools, err := g.downstream.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	return append(tools, syntheticTools()...), nil
}

func (g *Gate) publish(ctx context.Context, evt Event) {
	if g.observer == nil {
		return
	}
	g.observer.GateEvent(ctx, evt)
}
