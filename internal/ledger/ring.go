package ledger

import (
	"context"
	"sync"
	"time"
)

// DefaultRingSize bounds the in-memory ledger.
const DefaultRingSize = 1024

// Ring is a bounded in-memory Store. When full, the oldest decision is
// evicted. It is the default ledger when no storage module is configured.
type Ring struct {
	mu  sync.RWMutex
	buf []Decision
	max int
	now func() time.Time
}

// NewRing creates a ring holding at most size decisions.
// A size <= 0 uses DefaultRingSize.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{
		max: size,
		now: time.Now,
	}
}

// Compile-time interface check.
var _ Store = (*Ring)(nil)

// Append records a decision, evicting the oldest when the ring is full.
func (r *Ring) Append(_ context.Context, d Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d.DecidedAt.IsZero() {
		d.DecidedAt = r.now()
	}

	r.buf = append(r.buf, d)
	if len(r.buf) > r.max {
		// Copy down so the backing array does not pin evicted decisions.
		n := copy(r.buf, r.buf[len(r.buf)-r.max:])
		r.buf = r.buf[:n]
	}
	return nil
}

// Recent returns decisions newest first. A limit <= 0 returns all.
func (r *Ring) Recent(_ context.Context, limit int) ([]Decision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.buf)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]Decision, limit)
	for i := range out {
		out[i] = r.buf[n-1-i]
	}
	return out, nil
}

// Prune removes decisions whose DecidedAt is older than the retention
// window.
func (r *Ring) Prune(_ context.Context, keep time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-keep)
	kept := r.buf[:0]
	removed := 0
	for _, d := range r.buf {
		if d.DecidedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, d)
	}
	r.buf = kept
	return removed, nil
}

// Close implements Store. The ring holds no external resources.
func (r *Ring) Close() error {
	return nil
}

// Len returns the number of stored decisions.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buf)
}
