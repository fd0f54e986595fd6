package telegram

import (
	"sync"
	"time"

	"github.com/flemzord/tollgate/pkg/approval"
)

const reasonExpired = "approval request expired"

// sweepGrace is how long a record outlives its expiry before track() garbage
// collects it. Late status checks inside the grace window still answer
// "expired" instead of "unknown".
const sweepGrace = 24 * time.Hour

// resolveResult reports what a resolve call did with a callback decision.
type resolveResult int

const (
	resolveApplied resolveResult = iota
	resolveAlreadyDecided
	resolveExpired
	resolveUnknown
)

type record struct {
	chatID    int64
	messageID int
	verdict   approval.Verdict
	reason    string
	expiresAt time.Time
}

// decisionStore tracks delivered approval requests by their code (the
// Telegram message id) until the proxy core collects a terminal verdict.
type decisionStore struct {
	mu      sync.Mutex
	records map[string]*record
}

func newDecisionStore() *decisionStore {
	return &decisionStore{records: make(map[string]*record)}
}

// track registers a delivered approval request under its code. Records whose
// grace window has passed are dropped on the way.
func (s *decisionStore) track(code string, chatID int64, messageID int, now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for c, rec := range s.records {
		if now.After(rec.expiresAt.Add(sweepGrace)) {
			delete(s.records, c)
		}
	}

	s.records[code] = &record{
		chatID:    chatID,
		messageID: messageID,
		verdict:   approval.VerdictPending,
		expiresAt: now.Add(ttl),
	}
}

// resolve records the verdict for code. The first terminal verdict wins;
// later calls leave the stored decision unchanged.
func (s *decisionStore) resolve(code string, verdict approval.Verdict, reason string, now time.Time) resolveResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[code]
	if !ok {
		return resolveUnknown
	}
	if rec.verdict != approval.VerdictPending {
		return resolveAlreadyDecided
	}
	if now.After(rec.expiresAt) {
		rec.verdict = approval.VerdictDenied
		rec.reason = reasonExpired
		return resolveExpired
	}

	rec.verdict = verdict
	rec.reason = reason
	return resolveApplied
}

// status reports the current decision for code. A pending record past its
// expiry flips to denied with an expiry reason; the flip is sticky so a late
// button tap cannot overturn it.
func (s *decisionStore) status(code string, now time.Time) (approval.Decision, bool) {
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
