package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// Rate limit bucket kinds on the ops surface.
const (
	LimitAuth    = "auth"
	LimitWebhook = "webhook"
)

// RateLimitConfig holds the per-minute limits for the ops HTTP surface.
// The MCP call path itself is never rate limited; pending-task flooding is
// capped by the task manager instead.
type RateLimitConfig struct {
	AuthPerMin    int `yaml:"auth_per_min"`
	WebhookPerMin int `yaml:"webhook_per_min"`
}

func rateLimitConfigDefaults() RateLimitConfig {
	return RateLimitConfig{
		AuthPerMin:    30,
		WebhookPerMin: 120,
	}
}

// RateLimiter implements sliding window rate limiting using stdlib only.
// Each bucket tracks timestamps of recent events within its window.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	window time.Duration
	limit  int
	events []time.Time
}

// NewRateLimiter creates a rate limiter with the given config.
// Zero-value fields in cfg are replaced with defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	defaults := rateLimitConfigDefaults()
	if cfg.AuthPerMin <= 0 {
		cfg.AuthPerMin = defaults.AuthPerMin
	}
	if cfg.WebhookPerMin <= 0 {
		cfg.WebhookPerMin = defaults.WebhookPerMin
	}

	return &RateLimiter{
		now: time.Now,
		buckets: map[string]*bucket{
			LimitAuth: {
				window: time.Minute,
				limit:  cfg.AuthPerMin,
			},
			LimitWebhook: {
				window: time.Minute,
				limit:  cfg.WebhookPerMin,
			},
		},
	}
}

// Allow checks whether an event of the given kind is allowed.
// Returns nil if allowed, ErrRateLimited if the limit is exceeded.
func (rl *RateLimiter) Allow(kind string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[kind]
	if !ok {
		// Unknown kind = no limit configured.
		return nil
	}

	now := rl.now()
	b.evict(now)

	if len(b.events) >= b.limit {
		return ErrRateLimited
	}

	b.events = append(b.events, now)
	return nil
}

// evict removes events outside the sliding window.
func (b *bucket) evict(now time.Time) {
	cutoff := now.Add(-b.window)
	// Events are chronologically ordered; find the first inside the window.
	i := 0
	for i < len(b.events) && b.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}
