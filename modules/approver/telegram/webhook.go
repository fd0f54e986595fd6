package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// WebhookReceiver processes incoming Telegram webhook payloads.
// It implements gateway.WebhookHandler.
type WebhookReceiver struct {
	handle func(ctx context.Context, cb *CallbackQuery)
	logger *slog.Logger
	secret string
}

// NewWebhookReceiver creates a new WebhookReceiver.
func NewWebhookReceiver(handle func(ctx context.Context, cb *CallbackQuery), logger *slog.Logger, secret string) *WebhookReceiver {
	return &WebhookReceiver{
		handle: handle,
		logger: logger,
		secret: secret,
	}
}

// HandleWebhook processes a webhook payload routed by the gateway dispatcher.
// It validates the Telegram-specific secret token header, parses the update,
// and hands any callback query to the decision path.
func (w *WebhookReceiver) HandleWebhook(ctx context.Context, _ string, body []byte, headers http.Header) error {
	// Validate Telegram's secret token header if configured.
	if w.secret != "" {
		token := headers.Get("X-Telegram-Bot-Api-Secret-Token")
		if subtle.ConstantTimeCompare([]byte(w.secret), []byte(token)) != 1 {
			return errors.New("telegram: invalid webhook secret token")
		}
	}

	var update Update
	if err := json.Unmarshal(body, &update); err != nil {
		return errors.New("telegram: invalid update JSON: " + err.Error())
	}

	if update.CallbackQuery == nil {
		w.logger.Debug("skipping webhook update without callback query", "update_id", update.UpdateID)
		return nil
	}

	w.handle(ctx, update.CallbackQuery)
	return nil
}
