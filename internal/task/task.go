// Package task owns the approval task state machine: creation of pending
// tasks, taskId minting, resolution through the out-of-band approver, and
// the bounded status-check wait.
package task

import (
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// Status is the observable state of a task at query time.
type Status string

const (
	// StatusNotFound means no live task exists under the queried id.
	StatusNotFound Status = "not_found"

	// StatusPending means the task exists and no decision has been made.
	StatusPending Status = "pending"

	// StatusResolved means the task reached a terminal outcome during this
	// query. The task no longer exists afterwards.
	StatusResolved Status = "resolved"
)

// Outcome is the terminal result of a resolved task.
type Outcome string

const (
	// OutcomeApproved means the invocation was approved and executed.
	OutcomeApproved Outcome = "approved"

	// OutcomeDenied means the request was denied, expired, or the approval
	// channel failed definitively.
	OutcomeDenied Outcome = "denied"
)

// Task is one tool invocation awaiting approval. Arguments are captured at
// creation and owned by the task; later caller-side mutations have no effect.
type Task struct {
	// ID is the unique task identifier ("task-<millis>-<suffix>").
	ID string

	// Tool is the gated tool name.
	Tool string

	// Arguments are the invocation arguments captured at creation.
	Arguments map[string]any

	// Code is the opaque tracking code the approver channel returned.
	Code string

	// CreatedAt is when the task was stored.
	CreatedAt time.Time
}

// Resolution is the answer to one status query.
type Resolution struct {
	// Status discriminates the variant.
	Status Status

	// TaskID echoes the queried id.
	TaskID string

	// Tool is the task's tool name. Empty when Status is StatusNotFound.
	Tool string

	// Outcome is set when Status is StatusResolved.
	Outcome Outcome

	// Detail explains a denial or expiry.
	Detail string

	// Result is the downstream result of an approved execution.
	Result *mcp.CallToolResult

	// CallErr is set when the approved execution failed downstream. The
	// task is consumed either way.
	CallErr error

	// CreatedAt carries the task's creation time on terminal resolutions,
	// so callers can derive the decision latency after removal.
	CreatedAt time.Time
}
