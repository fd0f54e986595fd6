package security

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRateLimiter_AllowWithinLimit(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{AuthPerMin: 5})

	for i := range 5 {
		if err := rl.Allow(LimitAuth); err != nil {
			t.Fatalf("Allow(%d) returned error: %v", i, err)
		}
	}

	// 6th should be denied.
	if err := rl.Allow(LimitAuth); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestRateLimiter_BucketsAreIndependent(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{AuthPerMin: 1, WebhookPerMin: 1})

	if err := rl.Allow(LimitAuth); err != nil {
		t.Fatalf("auth: %v", err)
	}
	if err := rl.Allow(LimitAuth); !errors.Is(err, ErrRateLimited) {
		t.Fatal("expected auth bucket to be full")
	}
	// The webhook bucket is unaffected.
	if err := rl.Allow(LimitWebhook); err != nil {
		t.Fatalf("webhook: %v", err)
	}
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimitConfig{WebhookPerMin: 2})
	rl.now = func() time.Time { return now }

	// Fill the bucket.
	_ = rl.Allow(LimitWebhook)
	_ = rl.Allow(LimitWebhook)

	if err := rl.Allow(LimitWebhook); !errors.Is(err, ErrRateLimited) {
		t.Fatal("expected rate limit")
	}

	// Advance past the window.
	now = now.Add(61 * time.Second)

	if err := rl.Allow(LimitWebhook); err != nil {
		t.Fatalf("expected allow after window, got %v", err)
	}
}

func TestRateLimiter_UnknownKind(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})

	// Unknown kind = no limit configured.
	if err := rl.Allow("unknown_kind"); err != nil {
		t.Fatalf("expected nil for unknown kind, got %v", err)
	}
}

func TestRateLimiter_Defaults(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})

	if got := rl.buckets[LimitAuth].limit; got != 30 {
		t.Errorf("auth limit = %d, want default 30", got)
	}
	if got := rl.buckets[LimitWebhook].limit; got != 120 {
		t.Errorf("webhook limit = %d, want default 120", got)
	}
}

func TestRateLimiter_ConcurrentAllow(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{AuthPerMin: 100})

	var wg sync.WaitGroup
	denied := make(chan struct{}, 200)
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rl.Allow(LimitAuth); err != nil {
				denied <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(denied)

	var deniedCount int
	for range denied {
		deniedCount++
	}
	if deniedCount != 100 {
		t.Errorf("denied = %d, want exactly 100 of 200", deniedCount)
	}
}
