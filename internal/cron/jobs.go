package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// CatalogRefresher is the subset of proxy.Server needed by cron jobs.
// Defined here to avoid a circular dependency on the proxy package.
type CatalogRefresher interface {
	RefreshCatalog(ctx context.Context) error
}

// CatalogRefreshJob re-lists the downstream server's tools and reconciles
// the proxied catalog so renamed or removed tools do not go stale.
type CatalogRefreshJob struct {
	Refresher    CatalogRefresher
	Logger       *slog.Logger
	ServerID     string // empty = unnamed downstream
	ScheduleExpr string // empty = default "*/5 * * * *"
}

// Compile-time interface check.
var _ Job = (*CatalogRefreshJob)(nil)

// Name implements Job.
func (j *CatalogRefreshJob) Name() string {
	if j.ServerID != "" {
		return "catalog_refresh:" + j.ServerID
	}
	return "catalog_refresh"
}

// Schedule implements Job.
func (j *CatalogRefreshJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/5 * * * *"
}

// Run re-lists downstream tools and applies the delta.
func (j *CatalogRefreshJob) Run(ctx context.Context) error {
	if err := j.Refresher.RefreshCatalog(ctx); err != nil {
		return fmt.Errorf("cron: catalog refresh: %w", err)
	}
	j.Logger.Debug("cron: catalog refreshed", "server", j.ServerID)
	return nil
}

// DecisionPruner is the subset of ledger.Store needed by cron jobs.
// Defined here to avoid a circular dependency on the ledger package.
type DecisionPruner interface {
	Prune(ctx context.Context, keep time.Duration) (int, error)
}

// LedgerPruneJob removes decisions older than the retention window.
type LedgerPruneJob struct {
	Store        DecisionPruner
	Retention    time.Duration
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "0 3 * * *"
}

// Compile-time interface check.
var _ Job = (*LedgerPruneJob)(nil)

// Name implements Job.
func (j *LedgerPruneJob) Name() string { return "ledger_prune" }

// Schedule implements Job.
func (j *LedgerPruneJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 3 * * *"
}

// Run prunes decisions older than Retention.
func (j *LedgerPruneJob) Run(ctx context.Context) error {
	pruned, err := j.Store.Prune(ctx, j.Retention)
	if err != nil {
		return fmt.Errorf("cron: ledger prune: %w", err)
	}
	if pruned > 0 {
		j.Logger.Info("cron: pruned ledger decisions", "count", pruned)
	}
	return nil
}
