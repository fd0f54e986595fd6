// Package cron runs the proxy's periodic maintenance: catalog refresh
// against the downstream server and retention pruning of the decision
// ledger.
package cron

import "context"

// Job is one periodic maintenance task.
type Job interface {
	// Name identifies the job in logs and must be unique per scheduler.
	Name() string

	// Schedule returns the 5-field cron expression the job runs on
	// (e.g. "*/5 * * * *").
	Schedule() string

	// Run executes one tick. Long-running work should honor ctx.Done().
	Run(ctx context.Context) error
}
