package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/tollgate/internal/security"
)

// WebhookHandler processes a validated webhook payload.
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, source string, body []byte, headers http.Header) error
}

type webhookEntry struct {
	handler WebhookHandler
	secret  string
}

// WebhookDispatcher routes incoming webhooks to registered handlers with
// HMAC validation. Approver modules register here when they run in webhook
// mode instead of polling.
type WebhookDispatcher struct {
	mu       sync.RWMutex
	handlers map[string]webhookEntry
	logger   *slog.Logger

	// Wired by the gateway module during provisioning.
	limiter *security.RateLimiter
	metrics *Metrics
	maxBody int
}

// NewWebhookDispatcher creates a ready-to-use dispatcher.
func NewWebhookDispatcher(logger *slog.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		handlers: make(map[string]webhookEntry),
		logger:   logger,
	}
}

// SetSecret configures the HMAC secret for a source before any handler is
// registered. Register keeps a configured secret when called with an empty
// one.
func (d *WebhookDispatcher) SetSecret(source, secret string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry := d.handlers[source]
	entry.secret = secret
	d.handlers[source] = entry
}

// Register adds a handler for the given source with an optional HMAC secret.
func (d *WebhookDispatcher) Register(source string, h WebhookHandler, secret string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry := d.handlers[source]
	entry.handler = h
	if secret != "" {
		entry.secret = secret
	}
	d.handlers[source] = entry
}

// ServeHTTP implements http.Handler. It extracts the source from the chi URL
// param, validates size, JSON shape, and HMAC, then dispatches to the
// registered handler.
func (d *WebhookDispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	source := chi.URLParam(r, "source")
	if source == "" {
		d.finish(w, source, http.StatusBadRequest, "missing source")
		return
	}

	if d.limiter != nil {
		if err := d.limiter.Allow(security.LimitWebhook); err != nil {
			d.finish(w, source, http.StatusTooManyRequests, "too many requests")
			return
		}
	}

	maxBody := d.maxBody
	if maxBody <= 0 {
		maxBody = security.DefaultMaxBodySize
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, int64(maxBody)+1))
	if err != nil {
		d.finish(w, source, http.StatusBadRequest, "failed to read body")
		return
	}
	if err := security.ValidateBodySize(body, maxBody); err != nil {
		d.finish(w, source, http.StatusRequestEntityTooLarge, "body too large")
		return
	}

	if strings.Contains(r.Header.Get("Content-Type"), "json") {
		if err := security.ValidateJSONDepth(body, 0); err != nil {
			d.finish(w, source, http.StatusBadRequest, "invalid JSON payload")
			return
		}
	}

	d.mu.RLock()
	entry, ok := d.handlers[source]
	d.mu.RUnlock()

	if !ok || entry.handler == nil {
		d.logger.Warn("webhook received for unregistered source", "source", source)
		d.finish(w, source, http.StatusNotFound, "unknown source")
		return
	}

	// Validate HMAC if secret is configured.
	if entry.secret != "" {
		sig := r.Header.Get("X-Signature-256")
		if !validateHMAC(body, sig, entry.secret) {
			d.finish(w, source, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	if err := entry.handler.HandleWebhook(r.Context(), source, body, r.Header); err != nil {
		d.logger.Error("webhook handler failed", "source", source, "error", err)
		d.finish(w, source, http.StatusInternalServerError, "internal error")
		return
	}

	if d.metrics != nil {
		d.metrics.RecordWebhook(source, http.StatusOK)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func (d *WebhookDispatcher) finish(w http.ResponseWriter, source string, code int, msg string) {
	if d.metrics != nil && source != "" {
		d.metrics.RecordWebhook(source, code)
	}
	http.Error(w, msg, code)
}

// validateHMAC checks HMAC-SHA256 signature in constant time.
func validateHMAC(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
