// Package heartbeat posts periodic signed status reports to a monitoring
// endpoint so an operator can tell a quiet gateway from a dead one.
package heartbeat

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Sentinel errors for heartbeat operations.
var (
	ErrAlreadyStarted = errors.New("heartbeat: already started")
	ErrNotStarted     = errors.New("heartbeat: not started")
	ErrInvalidQuiet   = errors.New("heartbeat: invalid quiet hours format")
)

// signatureHeader carries the HMAC-SHA256 of the report body.
const signatureHeader = "X-Tollgate-Signature-256"

// pingTimeout bounds the downstream health probe inside a tick.
const pingTimeout = 2 * time.Second

// QuietHours defines a blackout window during which no reports are sent.
// Format: "HH:MM-HH:MM" (24-hour). Supports midnight wrap (e.g., "23:00-07:00").
type QuietHours struct {
	Start time.Duration // offset from midnight
	End   time.Duration
}

// ParseQuietHours parses a "HH:MM-HH:MM" string into QuietHours.
func ParseQuietHours(s string) (QuietHours, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return QuietHours{}, fmt.Errorf("%w: expected HH:MM-HH:MM, got %q", ErrInvalidQuiet, s)
	}

	start, err := parseTimeOffset(strings.TrimSpace(parts[0]))
	if err != nil {
		return QuietHours{}, fmt.Errorf("%w: start: %w", ErrInvalidQuiet, err)
	}

	end, err := parseTimeOffset(strings.TrimSpace(parts[1]))
	if err != nil {
		return QuietHours{}, fmt.Errorf("%w: end: %w", ErrInvalidQuiet, err)
	}

	return QuietHours{Start: start, End: end}, nil
}

// parseTimeOffset parses "HH:MM" into a Duration from midnight.
func parseTimeOffset(s string) (time.Duration, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}

	var h, m int
	if _, err := fmt.Sscanf(parts[0], "%d", &h); err != nil {
		return 0, fmt.Errorf("invalid hour: %q", parts[0])
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &m); err != nil {
		return 0, fmt.Errorf("invalid minute: %q", parts[1])
	}

	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("out of range: %02d:%02d", h, m)
	}

	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// IsQuiet reports whether t falls within the quiet window.
// The caller is responsible for converting t to the desired timezone.
func (q QuietHours) IsQuiet(t time.Time) bool {
	offset := time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second

	if q.Start <= q.End {
		// Normal range: e.g., 02:00-06:00
		return offset >= q.Start && offset < q.End
	}
	// Midnight wrap: e.g., 23:00-07:00
	return offset >= q.Start || offset < q.End
}

// PendingCounter reports how many approval tasks are waiting (breaks task dependency).
type PendingCounter interface {
	PendingCount() int
}

// Pinger probes the downstream connection (breaks downstream dependency).
type Pinger interface {
	Ping(ctx context.Context) error
}

// Status is the report payload.
type Status struct {
	Server        string    `json:"server"`
	Version       string    `json:"version,omitempty"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Pending       int       `json:"pending"`
	DownstreamOK  bool      `json:"downstream_ok"`
	At            time.Time `json:"at"`
}

// Config holds reporter configuration.
type Config struct {
	URL        string         // report destination, required
	Secret     string         // optional HMAC-SHA256 signing secret
	ServerID   string         // downstream server id included in reports
	Version    string         // binary version included in reports
	Interval   time.Duration  // default 30m
	QuietHours *QuietHours    // nil = no quiet hours
	Timezone   *time.Location // nil = UTC
	HTTPClient *http.Client   // default 10s timeout client
	Logger     *slog.Logger
	Now        func() time.Time // injectable for testing
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Minute
	}
	if c.Timezone == nil {
		c.Timezone = time.UTC
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Reporter runs a dedicated goroutine that periodically posts status reports.
type Reporter struct {
	cfg     Config
	pending PendingCounter
	pinger  Pinger

	mu        sync.Mutex
	cancel    context.CancelFunc
	startedAt time.Time
}

// New creates a Reporter with the given configuration.
func New(cfg Config, pending PendingCounter, pinger Pinger) (*Reporter, error) {
	if cfg.URL == "" {
		return nil, errors.New("heartbeat: empty report URL")
	}
	if pending == nil {
		return nil, errors.New("heartbeat: nil PendingCounter")
	}
	if pinger == nil {
		return nil, errors.New("heartbeat: nil Pinger")
	}

	return &Reporter{
		cfg:     cfg.withDefaults(),
		pending: pending,
		pinger:  pinger,
	}, nil
}

// Start begins the report ticker loop. Returns ErrAlreadyStarted if called twice.
func (r *Reporter) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return ErrAlreadyStarted
	}

	r.startedAt = r.cfg.Now()
	ctx, r.cancel = context.WithCancel(ctx)
	go r.run(ctx)
	return nil
}

// Stop gracefully stops the report loop. Returns ErrNotStarted if not running.
func (r *Reporter) Stop(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel == nil {
		return ErrNotStarted
	}

	r.cancel()
	r.cancel = nil
	return nil
}

// run is the main ticker loop.
func (r *Reporter) run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick builds a status snapshot and posts it unless quiet hours apply.
func (r *Reporter) tick(ctx context.Context) {
	now := r.cfg.Now().In(r.cfg.Timezone)

	// Check quiet hours.
	if r.cfg.QuietHours != nil && r.cfg.QuietHours.IsQuiet(now) {
		r.cfg.Logger.Debug("heartbeat skipped: quiet hours")
		return
	}

	if err := r.report(ctx, r.status(ctx, now)); err != nil {
		r.cfg.Logger.Warn("heartbeat report failed", "error", err)
	}
}

// status collects the current snapshot.
func (r *Reporter) status(ctx context.Context, now time.Time) Status {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	r.mu.Lock()
	started := r.startedAt
	r.mu.Unlock()

	return Status{
		Server:        r.cfg.ServerID,
		Version:       r.cfg.Version,
		UptimeSeconds: int64(now.Sub(started).Seconds()),
		Pending:       r.pending.PendingCount(),
		DownstreamOK:  r.pinger.Ping(pingCtx) == nil,
		At:            now,
	}
}

// report posts the snapshot, signing the body when a secret is configured.
func (r *Reporter) report(ctx context.Context, st Status) error {
	body, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.Secret != "" {
		req.Header.Set(signatureHeader, Sign(r.cfg.Secret, body))
	}

	resp, err := r.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("post status: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the "sha256=<hex>" HMAC-SHA256 of body, the same shape the
// gateway validates on inbound webhooks.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
