// Package terminal implements a local-development approver that renders a
// confirmation prompt on the controlling TTY. Stdin and stdout belong to the
// MCP stdio stream, so all form I/O goes through /dev/tty; the proxy wire
// never sees a byte of it.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/huh"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/tollgate/internal/core"
	"github.com/flemzord/tollgate/pkg/approval"
)

func init() {
	core.RegisterModule(&Terminal{})
}

// Compile-time interface guards.
var (
	_ approval.Approver = (*Terminal)(nil)
	_ core.Configurable = (*Terminal)(nil)
	_ core.Provisioner  = (*Terminal)(nil)
	_ core.Validator    = (*Terminal)(nil)
)

// argsPreviewLimit caps the serialized arguments shown in the prompt.
const argsPreviewLimit = 512

// promptFunc runs one confirmation prompt and reports whether the request
// was approved. Swapped out in tests.
type promptFunc func(req approval.Request, timeout time.Duration) (bool, error)

// Terminal implements the terminal approver channel.
type Terminal struct {
	config    Config
	logger    *slog.Logger
	decisions *store
	prompt    promptFunc
	now       func() time.Time
	nextCode  atomic.Int64

	// promptMu serializes prompts: one form owns the TTY at a time.
	promptMu sync.Mutex
}

// ModuleInfo implements core.Module.
func (t *Terminal) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "approver.terminal",
		New: func() core.Module { return &Terminal{} },
	}
}

// Configure implements core.Configurable.
func (t *Terminal) Configure(node *yaml.Node) error {
	if err := node.Decode(&t.config); err != nil {
		return fmt.Errorf("terminal: decode config: %w", err)
	}
	t.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (t *Terminal) Provision(ctx *core.AppContext) error {
	t.logger = ctx.Logger
	t.decisions = newStore()
	t.prompt = runPrompt
	t.now = time.Now
	ctx.RegisterService("approver.channel", t)
	return nil
}

// Validate implements core.Validator.
func (t *Terminal) Validate() error {
	return t.config.validate()
}

// RequestApproval implements approval.Approver. The prompt runs in the
// background so the caller can return a pending status immediately; the
// decision lands in the store once the human answers.
func (t *Terminal) RequestApproval(_ context.Context, req approval.Request) (string, error) {
	code := strconv.FormatInt(t.nextCode.Add(1), 10)
	t.decisions.track(code, t.now(), t.config.ApprovalExpiry)
	go t.run(code, req)

	t.logger.Info("approval prompt queued",
		"task", req.TaskID,
		"tool", req.Tool,
		"code", code,
	)
	return code, nil
}

// CheckApproval implements approval.Approver.
func (t *Terminal) CheckApproval(_ context.Context, code string) (approval.Decision, error) {
	decision, ok := t.decisions.status(code, t.now())
	if !ok {
		return approval.Decision{}, fmt.Errorf("terminal: unknown approval code %q", code)
	}
	return decision, nil
}

// run renders one prompt and records its outcome. Requests that expired
// while queued behind another prompt are skipped without rendering.
func (t *Terminal) run(code string, req approval.Request) {
	t.promptMu.Lock()
	defer t.promptMu.Unlock()

	if d, ok := t.decisions.status(code, t.now()); !ok || d.Verdict != approval.VerdictPending {
		return
	}

	approved, err := t.prompt(req, t.config.ApprovalExpiry)
	verdict, reason := foldPrompt(approved, err)
	if !t.decisions.resolve(code, verdict, reason, t.now()) {
		return
	}

	t.logger.Info("approval decision recorded",
		"task", req.TaskID,
		"code", code,
		"verdict", string(verdict),
	)
}

// foldPrompt maps a prompt outcome onto the three-way verdict surface.
func foldPrompt(approved bool, err error) (approval.Verdict, string) {
	switch {
	case errors.Is(err, huh.ErrTimeout):
		return approval.VerdictDenied, reasonExpired
	case errors.Is(err, huh.ErrUserAborted):
		return approval.VerdictDenied, "approval prompt aborted"
	case err != nil:
		return approval.VerdictDenied, "approval prompt failed: " + err.Error()
	case approved:
		return approval.VerdictApproved, ""
	default:
		return approval.VerdictDenied, "denied at the terminal"
	}
}

// runPrompt opens the controlling TTY and renders the confirmation form on
// it. A missing TTY (headless run) folds into a failed prompt.
func runPrompt(req approval.Request, timeout time.Duration) (bool, error) {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return false, fmt.Errorf("open controlling tty: %w", err)
	}
	defer tty.Close()

	approved := false
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Approve %s?", req.Tool)).
			Description(promptDescription(req)).
			Affirmative("Approve").
			Negative("Deny").
			Value(&approved),
	)).WithInput(tty).WithOutput(tty).WithTimeout(timeout)

	if err := form.Run(); err != nil {
		return false, err
	}
	return approved, nil
}

func promptDescription(req approval.Request) string {
	var b strings.Builder
	if req.Server != "" {
		fmt.Fprintf(&b, "Server: %s\n", req.Server)
	}
	fmt.Fprintf(&b, "Task: %s", req.TaskID)
	if len(req.Arguments) > 0 && string(req.Arguments) != "null" {
		args := string(req.Arguments)
		if len(args) > argsPreviewLimit {
			args = args[:argsPreviewLimit] + " (truncated)"
		}
		fmt.Fprintf(&b, "\nArguments: %s", args)
	}
	return b.String()
}
