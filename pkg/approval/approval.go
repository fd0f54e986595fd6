// Package approval defines the contract between the proxy core and
// out-of-band approver channels. A channel delivers an approval request to a
// human (or to an automated stand-in), hands back an opaque tracking code,
// and later reports the decision associated with that code.
package approval

import (
	"context"
	"encoding/json"
	"time"
)

// Verdict is the internal three-way state of an approval request. Concrete
// channels usually expose a narrower success-or-failure surface; implementations
// fold that surface into one of these values.
type Verdict string

const (
	// VerdictPending means no decision has been made yet.
	VerdictPending Verdict = "pending"
	// VerdictApproved means the approver explicitly approved the request.
	VerdictApproved Verdict = "approved"
	// VerdictDenied means the request was denied, expired, or otherwise
	// reached a definitive negative outcome.
	VerdictDenied Verdict = "denied"
)

// Terminal reports whether the verdict ends the approval workflow.
func (v Verdict) Terminal() bool {
	return v == VerdictApproved || v == VerdictDenied
}

// Request describes one tool invocation awaiting approval.
type Request struct {
	// TaskID is the unique identifier of the approval task.
	TaskID string

	// Tool is the name of the tool whose execution is being gated.
	Tool string

	// Arguments are the raw JSON arguments the tool will run with if approved.
	Arguments json.RawMessage

	// Approver is the identity the request must be delivered to.
	Approver string

	// Server identifies the downstream server the tool belongs to.
	Server string

	// CreatedAt is when the task was created.
	CreatedAt time.Time
}

// Decision is the outcome reported for a tracked approval request.
type Decision struct {
	// Verdict is the three-way state of the request.
	Verdict Verdict

	// Reason is an optional human-readable explanation, set on denials and
	// expiries.
	Reason string
}

// Approver is implemented by approver channel modules.
//
// RequestApproval delivers the request out of band and returns an opaque code
// used to track it. A non-nil error means delivery failed and nothing is
// tracked.
//
// CheckApproval reports the current decision for a previously returned code.
// An undecided request yields {VerdictPending} with a nil error. A non-nil
// error means the channel can no longer produce a decision (expired, revoked,
// unreachable) and callers treat it as a definitive negative.
type Approver interface {
	RequestApproval(ctx context.Context, req Request) (string, error)
	CheckApproval(ctx context.Context, code string) (Decision, error)
}
