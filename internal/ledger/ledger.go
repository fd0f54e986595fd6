// Package ledger records terminal approval outcomes. Decisions are written
// after a task resolves and are never read back into live state: a restart
// starts with an empty task table regardless of what the ledger holds.
package ledger

import (
	"context"
	"time"
)

// Decision outcomes.
const (
	OutcomeApproved = "approved"
	OutcomeDenied   = "denied"
)

// Decision is one terminal approval outcome.
type Decision struct {
	// TaskID is the approval task the decision belongs to.
	TaskID string `json:"task_id"`

	// Server is the downstream server the gated tool lives on.
	Server string `json:"server,omitempty"`

	// Tool is the gated tool name.
	Tool string `json:"tool"`

	// Outcome is OutcomeApproved or OutcomeDenied.
	Outcome string `json:"outcome"`

	// Detail explains a denial or a failed approved execution.
	Detail string `json:"detail,omitempty"`

	// DecidedAt is when the task reached its terminal state.
	DecidedAt time.Time `json:"decided_at"`

	// Elapsed is the time from task creation to the decision.
	Elapsed time.Duration `json:"elapsed_ns"`
}

// Store is an append-only record of decisions.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append records a decision. A zero DecidedAt is stamped with the
	// current time.
	Append(ctx context.Context, d Decision) error

	// Recent returns decisions newest first. A limit <= 0 returns all.
	Recent(ctx context.Context, limit int) ([]Decision, error)

	// Prune removes decisions older than the retention window and returns
	// how many were removed.
	Prune(ctx context.Context, keep time.Duration) (int, error)

	// Close releases any underlying resources.
	Close() error
}
