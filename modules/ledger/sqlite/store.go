package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/flemzord/tollgate/internal/ledger"
)

// decisionStore implements ledger.Store backed by SQLite.
type decisionStore struct {
	db  *sql.DB
	now func() time.Time
}

// Append records a decision. A zero DecidedAt is stamped with the current
// time.
func (s *decisionStore) Append(ctx context.Context, d ledger.Decision) error {
	if d.DecidedAt.IsZero() {
		d.DecidedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions (task_id, server, tool, outcome, detail, decided_at, elapsed_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.TaskID, d.Server, d.Tool, d.Outcome, d.Detail, d.DecidedAt.UnixNano(), int64(d.Elapsed),
	)
	if err != nil {
		return fmt.Errorf("sqlite: append decision: %w", err)
	}
	return nil
}

// Recent returns decisions newest first. A limit <= 0 returns all.
func (s *decisionStore) Recent(ctx context.Context, limit int) ([]ledger.Decision, error) {
	if limit <= 0 {
		// SQLite treats a negative LIMIT as unbounded.
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, server, tool, outcome, detail, decided_at, elapsed_ns
		FROM decisions
		ORDER BY decided_at DESC, id DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ledger.Decision
	for rows.Next() {
		var d ledger.Decision
		var decidedAt, elapsed int64
		if err := rows.Scan(&d.TaskID, &d.Server, &d.Tool, &d.Outcome, &d.Detail, &decidedAt, &elapsed); err != nil {
			return nil, fmt.Errorf("sqlite: scan decision: %w", err)
		}
		d.DecidedAt = time.Unix(0, decidedAt).UTC()
		d.Elapsed = time.Duration(elapsed)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: recent decision rows: %w", err)
	}
	return out, nil
}

// Prune removes decisions older than the retention window.
func (s *decisionStore) Prune(ctx context.Context, keep time.Duration) (int, error) {
	cutoff := s.now().Add(-keep).UnixNano()

	res, err := s.db.ExecContext(ctx, "DELETE FROM decisions WHERE decided_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune decisions: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune row count: %w", err)
	}
	return int(n), nil
}

// Close implements ledger.Store. The module owns the database handle and
// closes it on Stop.
func (s *decisionStore) Close() error {
	return nil
}
