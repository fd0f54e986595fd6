package task

import "errors"

var (
	// ErrApprovalSetup is returned when the out-of-band approval request
	// could not be delivered. No task exists afterwards.
	ErrApprovalSetup = errors.New("approval request could not be delivered")

	// ErrTooManyPending is returned when the live task cap is reached.
	// The approval channel is not contacted.
	ErrTooManyPending = errors.New("too many pending approval tasks")

	// ErrEmptyToolName is returned when a task is created without a tool name.
	ErrEmptyToolName = errors.New("tool name must not be empty")
)
