package task

import (
	"context"
	"time"
)

// Default status-check cadence.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollWindow   = 20 * time.Second
)

// Querier answers status queries. *Manager satisfies it.
type Querier interface {
	Query(ctx context.Context, taskID string) Resolution
}

// Waiter performs the bounded server-side wait behind a status check: query
// immediately, then re-query on a fixed interval until the task leaves the
// pending state or the window elapses. The wait is a timed sleep between
// queries; it holds no locks and suspends only its own request.
type Waiter struct {
	// Interval between queries. Zero uses DefaultPollInterval.
	Interval time.Duration

	// Window is the maximum wall-clock wait. Zero uses DefaultPollWindow.
	Window time.Duration
}

// Await runs the bounded wait and returns the final observation. If the
// window elapses with the task still pending, the last pending resolution is
// returned; the caller re-polls with a fresh request. Context cancellation
// also ends the wait with the last observation.
func (w Waiter) Await(ctx context.Context, q Querier, taskID string) Resolution {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	window := w.Window
	if window <= 0 {
		window = DefaultPollWindow
	}

	deadline := time.NewTimer(window)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		res := q.Query(ctx, taskID)
		if res.Status != StatusPending {
			return res
		}

		select {
		case <-ctx.Done():
			return res
		case <-deadline.C:
			return res
		case <-ticker.C:
		}
	}
}
