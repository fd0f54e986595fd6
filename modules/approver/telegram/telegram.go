package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/tollgate/internal/core"
	"github.com/flemzord/tollgate/internal/gateway"
	"github.com/flemzord/tollgate/internal/security"
	"github.com/flemzord/tollgate/pkg/approval"
)

func init() {
	core.RegisterModule(&Telegram{})
}

// Compile-time interface guards.
var (
	_ approval.Approver = (*Telegram)(nil)
	_ core.Configurable = (*Telegram)(nil)
	_ core.Provisioner  = (*Telegram)(nil)
	_ core.Validator    = (*Telegram)(nil)
	_ core.Starter      = (*Telegram)(nil)
	_ core.Stopper      = (*Telegram)(nil)
)

// Callback data carried by the inline keyboard buttons.
const (
	callbackApprove = "approve"
	callbackDeny    = "deny"
)

// argsPreviewLimit caps the serialized arguments shown in the approval
// message; Telegram messages max out at 4096 characters.
const argsPreviewLimit = 2048

// Telegram implements the Telegram approver channel for tollgate.
type Telegram struct {
	config    Config
	client    *Client
	logger    *slog.Logger
	decisions *decisionStore
	botUser   *User
	appCtx    *core.AppContext
	now       func() time.Time

	// Set during Start() depending on mode.
	poller          *Poller
	webhookReceiver *WebhookReceiver
}

// ModuleInfo implements core.Module.
func (t *Telegram) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "approver.telegram",
		New: func() core.Module { return &Telegram{} },
	}
}

// Configure implements core.Configurable.
func (t *Telegram) Configure(node *yaml.Node) error {
	if err := node.Decode(&t.config); err != nil {
		return fmt.Errorf("telegram: decode config: %w", err)
	}
	t.config.defaults()
	return nil
}

// Provision implements core.Provisioner. The module registers itself as the
// approver channel so the proxy core can resolve it after loading.
func (t *Telegram) Provision(ctx *core.AppContext) error {
	t.appCtx = ctx
	t.logger = ctx.Logger
	t.client = NewClient(t.config.Token, t.config.APIURL)
	t.decisions = newDecisionStore()
	t.now = time.Now
	ctx.RegisterService("approver.channel", t)

	// Hand the channel secrets to the credential store; the run layer
	// re-syncs the redactor from it once all modules are provisioned.
	if svc, ok := ctx.Service("security.credentials"); ok {
		if store, ok := svc.(*security.CredentialStore); ok {
			store.Set("approver.telegram.token", t.config.Token)
			if t.config.WebhookSecret != "" {
				store.Set("approver.telegram.webhook_secret", t.config.WebhookSecret)
			}
		}
	}
	return nil
}

// Validate implements core.Validator.
func (t *Telegram) Validate() error {
	if t.config.Token == "" {
		return errors.New("telegram: token is required")
	}
	if t.config.ChatID == 0 {
		return errors.New("telegram: chat_id is required")
	}
	switch t.config.Mode {
	case "polling", "webhook":
	default:
		return fmt.Errorf("telegram: invalid mode %q (must be \"polling\" or \"webhook\")", t.config.Mode)
	}
	if t.config.Mode == "webhook" && t.config.WebhookURL == "" {
		return errors.New("telegram: webhook_url is required when mode is \"webhook\"")
	}
	return t.config.validate()
}

// Start implements core.Starter. It validates the bot token, then starts
// either polling or webhook mode.
func (t *Telegram) Start() error {
	user, err := t.client.GetMe(context.Background())
	if err != nil {
		return fmt.Errorf("telegram: getMe failed (check token): %w", err)
	}
	t.botUser = user
	t.logger.Info("telegram bot authenticated",
		"id", user.ID,
		"username", user.Username,
	)

	switch t.config.Mode {
	case "polling":
		t.poller = NewPoller(t.client, t.handleCallback, t.logger, t.config)
		t.poller.Start()
		t.logger.Info("telegram polling started",
			"timeout", t.config.PollingTimeout,
		)

	case "webhook":
		if t.config.WebhookSecret == "" {
			t.logger.Warn("telegram webhook running without secret_token; " +
				"set webhook_secret for production deployments")
		}
		t.webhookReceiver = NewWebhookReceiver(t.handleCallback, t.logger, t.config.WebhookSecret)

		// Register with the gateway's dispatcher.
		if err := t.registerWebhook(); err != nil {
			return err
		}

		// Set the webhook URL with Telegram.
		if err := t.client.SetWebhook(context.Background(), SetWebhookRequest{
			URL:            t.config.WebhookURL,
			SecretToken:    t.config.WebhookSecret,
			AllowedUpdates: []string{"callback_query"},
		}); err != nil {
			return fmt.Errorf("telegram: setWebhook failed: %w", err)
		}
		t.logger.Info("telegram webhook configured",
			"url", t.config.WebhookURL,
		)
	}

	return nil
}

// registerWebhook resolves the gateway webhook dispatcher from the service
// registry and registers the WebhookReceiver as a handler.
func (t *Telegram) registerWebhook() error {
	svc, ok := t.appCtx.Service("gateway.webhook_dispatcher")
	if !ok {
		return errors.New("telegram: gateway.webhook_dispatcher service not found (is the gateway module loaded?)")
	}

	dispatcher, ok := svc.(*gateway.WebhookDispatcher)
	if !ok {
		return errors.New("telegram: gateway.webhook_dispatcher is not a *gateway.WebhookDispatcher")
	}

	// Pass empty HMAC secret. Telegram uses its own X-Telegram-Bot-Api-Secret-Token
	// header instead of HMAC-SHA256; validation happens inside WebhookReceiver.HandleWebhook.
	dispatcher.Register("telegram", t.webhookReceiver, "")
	return nil
}

// Stop implements core.Stopper.
func (t *Telegram) Stop(ctx context.Context) error {
	t.logger.Info("telegram approver stopping")

	switch t.config.Mode {
	case "polling":
		if t.poller != nil {
			t.poller.Stop()
		}
	case "webhook":
		if err := t.client.DeleteWebhook(ctx); err != nil {
			t.logger.Warn("telegram: failed to delete webhook on shutdown", "error", err)
		}
	}

	return nil
}

// RequestApproval implements approval.Approver. It posts the request into the
// configured chat with an Approve/Deny keyboard and tracks the sent message
// id as the out-of-band code.
func (t *Telegram) RequestApproval(ctx context.Context, req approval.Request) (string, error) {
	msg, err := t.client.SendMessage(ctx, SendMessageRequest{
		ChatID:      t.config.ChatID,
		Text:        formatRequest(req),
		ReplyMarkup: approvalKeyboard(),
	})
	if err != nil {
		return "", fmt.Errorf("telegram: deliver approval request: %w", err)
	}

	code := strconv.Itoa(msg.MessageID)
	t.decisions.track(code, msg.Chat.ID, msg.MessageID, t.now(), t.config.ApprovalExpiry)
	t.logger.Info("approval request delivered",
		"task", req.TaskID,
		"tool", req.Tool,
		"code", code,
	)
	return code, nil
}

// CheckApproval implements approval.Approver. An unknown code means the
// record already aged out of the store; callers treat the error as a
// definitive negative.
func (t *Telegram) CheckApproval(_ context.Context, code string) (approval.Decision, error) {
	decision, ok := t.decisions.status(code, t.now())
	if !ok {
		return approval.Decision{}, fmt.Errorf("telegram: unknown approval code %q", code)
	}
	return decision, nil
}

// handleCallback processes one inline keyboard tap. It is the shared decision
// path for both polling and webhook modes.
func (t *Telegram) handleCallback(ctx context.Context, cb *CallbackQuery) {
	if cb.Message == nil {
		t.logger.Debug("callback without originating message", "callback", cb.ID)
		return
	}
	if cb.Message.Chat.ID != t.config.ChatID {
		t.logger.Debug("callback from unexpected chat",
			"chat", cb.Message.Chat.ID,
			"sender", cb.From.ID,
		)
		t.answer(ctx, cb.ID, "Not authorized.")
		return
	}

	var verdict approval.Verdict
	switch cb.Data {
	case callbackApprove:
		verdict = approval.VerdictApproved
	case callbackDeny:
		verdict = approval.VerdictDenied
	default:
		t.logger.Debug("unknown callback action", "data", cb.Data)
		t.answer(ctx, cb.ID, "Unknown action.")
		return
	}

	code := strconv.Itoa(cb.Message.MessageID)
	by := displayName(cb.From)
	var reason string
	if verdict == approval.VerdictDenied {
		reason = "denied by " + by
	}

	switch t.decisions.resolve(code, verdict, reason, t.now()) {
	case resolveApplied:
		t.logger.Info("approval decision recorded",
			"code", code,
			"verdict", string(verdict),
			"by", by,
		)
		t.answer(ctx, cb.ID, answerText(verdict))
		t.markDecided(ctx, cb.Message, verdict, by)
	case resolveAlreadyDecided:
		t.answer(ctx, cb.ID, "Already decided.")
	case resolveExpired:
		t.answer(ctx, cb.ID, "This approval request has expired.")
	default:
		t.answer(ctx, cb.ID, "Unknown approval request.")
	}
}

// answer acknowledges a callback query, best effort.
func (t *Telegram) answer(ctx context.Context, callbackID, text string) {
	err := t.client.AnswerCallbackQuery(ctx, AnswerCallbackQueryRequest{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	if err != nil {
		t.logger.Warn("failed to answer callback query", "callback", callbackID, "error", err)
	}
}

// markDecided rewrites the approval message with the outcome. Editing without
// a reply markup also removes the keyboard, so the buttons disappear once a
// decision lands.
func (t *Telegram) markDecided(ctx context.Context, msg *Message, verdict approval.Verdict, by string) {
	line := "❌ Denied by " + by
	if verdict == approval.VerdictApproved {
		line = "✅ Approved by " + by
	}

	_, err := t.client.EditMessageText(ctx, EditMessageTextRequest{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		Text:      msg.Text + "\n\n" + line,
	})
	if err != nil {
		t.logger.Warn("failed to edit approval message", "message", msg.MessageID, "error", err)
	}
}

func answerText(verdict approval.Verdict) string {
	if verdict == approval.VerdictApproved {
		return "Approved."
	}
	return "Denied."
}

func approvalKeyboard() *InlineKeyboardMarkup {
	return &InlineKeyboardMarkup{
		InlineKeyboard: [][]InlineKeyboardButton{{
			{Text: "✅ Approve", CallbackData: callbackApprove},
			{Text: "❌ Deny", CallbackData: callbackDeny},
		}},
	}
}

// formatRequest renders the approval request as plain text. No parse mode is
// used so argument payloads never need Markdown escaping.
func formatRequest(req approval.Request) string {
	var b strings.Builder
	b.WriteString("Approval required\n\n")
	if req.Server != "" {
		fmt.Fprintf(&b, "Server: %s\n", req.Server)
	}
	fmt.Fprintf(&b, "Tool: %s\n", req.Tool)
	fmt.Fprintf(&b, "Task: %s\n", req.TaskID)
	if req.Approver != "" {
		fmt.Fprintf(&b, "Approver: %s\n", req.Approver)
	}
	if preview := argsPreview(req.Arguments); preview != "" {
		fmt.Fprintf(&b, "\nArguments:\n%s\n", preview)
	}
	return b.String()
}

func argsPreview(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return truncate(string(raw), argsPreviewLimit)
	}
	return truncate(buf.String(), argsPreviewLimit)
}

// truncate cuts s at limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + " (truncated)"
}

func displayName(u User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	return strconv.FormatInt(u.ID, 10)
}
