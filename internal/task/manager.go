package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/flemzord/tollgate/internal/tracing"
	"github.com/flemzord/tollgate/pkg/approval"
)

const defaultMaxPending = 16

// Executor runs an approved invocation downstream.
type Executor interface {
	Call(ctx context.Context, toolName string, args map[string]any) (*mcp.CallToolResult, error)
}

// Config assembles a Manager.
type Config struct {
	// Approver is the out-of-band channel decisions come from.
	Approver approval.Approver

	// Executor runs approved invocations.
	Executor Executor

	// ApproverIdentity is the fixed identity requests are delivered to.
	ApproverIdentity string

	// ServerID names the downstream server, for approver display.
	ServerID string

	// MaxPending caps simultaneously live tasks. 0 uses the default.
	MaxPending int

	// Logger receives task lifecycle events. Nil uses slog.Default.
	Logger *slog.Logger

	// Now is the clock. Nil uses time.Now.
	Now func() time.Time
}

// Manager owns the live task store. All mutation is keyed by task id and
// atomic with respect to concurrent queries: a task reaches a terminal state
// at most once, and is removed in the same critical section that decides it.
type Manager struct {
	approver   approval.Approver
	executor   Executor
	identity   string
	serverID   string
	maxPending int
	logger     *slog.Logger
	now        func() time.Time

	mu    sync.Mutex
	tasks map[string]*Task
	// minted holds every id ever issued, so ids stay unique for the process
	// lifetime even after their task is removed.
	minted map[string]struct{}
}

// NewManager creates a Manager. Approver and Executor are required.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Approver == nil {
		return nil, errors.New("task: approver is required")
	}
	if cfg.Executor == nil {
		return nil, errors.New("task: executor is required")
	}

	maxPending := cfg.MaxPending
	if maxPending <= 0 {
		maxPending = defaultMaxPending
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Manager{
		approver:   cfg.Approver,
		executor:   cfg.Executor,
		identity:   cfg.ApproverIdentity,
		serverID:   cfg.ServerID,
		maxPending: maxPending,
		logger:     logger,
		now:        now,
		tasks:      make(map[string]*Task),
		minted:     make(map[string]struct{}),
	}, nil
}

// Create requests out-of-band approval for the invocation and stores a
// pending task. If the approval request cannot be delivered, nothing is
// created and the error wraps ErrApprovalSetup. The pending cap is checked
// before the channel is contacted.
func (m *Manager) Create(ctx context.Context, toolName string, args map[string]any) (*Task, error) {
	ctx, span := tracing.Start(ctx, "task.create",
		attribute.String("mcp.tool", toolName))
	defer span.End()

	toolName = strings.TrimSpace(toolName)
	if toolName == "" {
		return nil, ErrEmptyToolName
	}

	createdAt := m.now()
	id, err := m.mintID(createdAt)
	if err != nil {
		return nil, err
	}

	captured := maps.Clone(args)
	rawArgs, err := json.Marshal(captured)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding arguments: %s", ErrApprovalSetup, err)
	}

	code, err := m.approver.RequestApproval(ctx, approval.Request{
		TaskID:    id,
		Tool:      toolName,
		Arguments: rawArgs,
		Approver:  m.identity,
		Server:    m.serverID,
		CreatedAt: createdAt,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrApprovalSetup, err)
	}

	t := &Task{
		ID:        id,
		Tool:      toolName,
		Arguments: captured,
		Code:      code,
		CreatedAt: createdAt,
	}

	m.mu.Lock()
	m.tasks[id] = t
	m.mu.Unlock()

	m.logger.Info("approval task created", "task", id, "tool", toolName)
	return t, nil
}

// mintID reserves a fresh task id, enforcing the pending cap first.
func (m *Manager) mintID(createdAt time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.tasks) >= m.maxPending {
		return "", fmt.Errorf("%w: %d pending", ErrTooManyPending, len(m.tasks))
	}

	for {
		id, err := newTaskID(createdAt)
		if err != nil {
			return "", err
		}
		if _, used := m.minted[id]; !used {
			m.minted[id] = struct{}{}
			return id, nil
		}
	}
}

// Query reports the current state of a task. An unknown id answers not-found
// without contacting the approval channel. A pending task is checked against
// the channel; on a terminal verdict the task is claimed and removed
// atomically, and for an approval the downstream execution happens exactly
// once, performed by the claiming query.
func (m *Manager) Query(ctx context.Context, taskID string) Resolution {
	m.mu.Lock()
	t, ok := m.tasks[taskID]
	m.mu.Unlock()
	if !ok {
		return Resolution{Status: StatusNotFound, TaskID: taskID}
	}

	decision, err := m.approver.CheckApproval(ctx, t.Code)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// The caller gave up, not the channel. The task stays live.
			return Resolution{Status: StatusPending, TaskID: t.ID, Tool: t.Tool}
		}
		decision = approval.Decision{Verdict: approval.VerdictDenied, Reason: err.Error()}
	}

	switch decision.Verdict {
	case approval.VerdictApproved:
		if !m.claim(t.ID) {
			return Resolution{Status: StatusNotFound, TaskID: taskID}
		}
		return m.execute(ctx, t)

	case approval.VerdictPending:
		return Resolution{Status: StatusPending, TaskID: t.ID, Tool: t.Tool}

	default:
		if !m.claim(t.ID) {
			return Resolution{Status: StatusNotFound, TaskID: taskID}
		}
		detail := decision.Reason
		if detail == "" {
			detail = "approval was denied or expired"
		}
		m.logger.Info("approval task denied", "task", t.ID, "tool", t.Tool, "detail", detail)
		return Resolution{
			Status:    StatusResolved,
			TaskID:    t.ID,
			Tool:      t.Tool,
			Outcome:   OutcomeDenied,
			Detail:    detail,
			CreatedAt: t.CreatedAt,
		}
	}
}

// claim removes the task from the live set. Only the caller that observes
// the removal proceeds with terminal work; every later query answers
// not-found.
func (m *Manager) claim(taskID string) bool {
	m.mu.Lock()
	_, ok := m.tasks[taskID]
	if ok {
		delete(m.tasks, taskID)
	}
	m.mu.Unlock()
	return ok
}

func (m *Manager) execute(ctx context.Context, t *Task) Resolution {
	result, err := m.executor.Call(ctx, t.Tool, t.Arguments)
	if err != nil {
		m.logger.Warn("approved execution failed", "task", t.ID, "tool", t.Tool, "error", err)
		return Resolution{
			Status:    StatusResolved,
			TaskID:    t.ID,
			Tool:      t.Tool,
			Outcome:   OutcomeApproved,
			CallErr:   err,
			CreatedAt: t.CreatedAt,
		}
	}

	m.logger.Info("approved execution completed", "task", t.ID, "tool", t.Tool)
	return Resolution{
		Status:    StatusResolved,
		TaskID:    t.ID,
		Tool:      t.Tool,
		Outcome:   OutcomeApproved,
		Result:    result,
		CreatedAt: t.CreatedAt,
	}
}

// Pending returns copies of the live tasks, oldest first.
func (m *Manager) Pending() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		cp := *t
		cp.Arguments = maps.Clone(t.Arguments)
		cp.Code = ""
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b Task) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// PendingCount returns the number of live tasks.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}
