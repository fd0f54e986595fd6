package terminal

import (
	"sync"
	"time"

	"github.com/flemzord/tollgate/pkg/approval"
)

const reasonExpired = "approval request expired"

// sweepGrace is how long a record outlives its expiry before track() garbage
// collects it.
const sweepGrace = 24 * time.Hour

type record struct {
	verdict   approval.Verdict
	reason    string
	expiresAt time.Time
}

// store tracks prompt outcomes by code until the proxy core collects them.
type store struct {
	mu      sync.Mutex
	records map[string]*record
}

func newStore() *store {
	return &store{records: make(map[string]*record)}
}

// track registers a delivered approval request under its code.
func (s *store) track(code string, now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for c, rec := range s.records {
		if now.After(rec.expiresAt.Add(sweepGrace)) {
			delete(s.records, c)
		}
	}

	s.records[code] = &record{
		verdict:   approval.VerdictPending,
		expiresAt: now.Add(ttl),
	}
}

// resolve records the verdict for code. It reports false when the code is
// unknown, already decided, or past its expiry; an expired pending record
// flips to denied on the way.
func (s *store) resolve(code string, verdict approval.Verdict, reason string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[code]
	if !ok || rec.verdict != approval.VerdictPending {
		return false
	}
	if now.After(rec.expiresAt) {
		rec.verdict = approval.VerdictDenied
		rec.reason = reasonExpired
		return false
	}

	rec.verdict = verdict
	rec.reason = reason
	return true
}

// status reports the current decision for code. A pending record past its
// expiry flips to denied with an expiry reason; the flip is sticky.
func (s *store) status(code string, now time.Time) (approval.Decision, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[code]
	if !ok {
		return approval.Decision{}, false
	}
	if rec.verdict == approval.VerdictPending && now.After(rec.expiresAt) {
		rec.verdict = approval.VerdictDenied
		rec.reason = reasonExpired
	}
	return approval.Decision{Verdict: rec.verdict, Reason: rec.reason}, true
}
