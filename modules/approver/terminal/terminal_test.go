package terminal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/huh"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/tollgate/internal/core"
	"github.com/flemzord/tollgate/pkg/approval"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustYAMLNode(t *testing.T, text string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(text), &node); err != nil {
		t.Fatalf("YAML parse: %v", err)
	}
	if len(node.Content) > 0 {
		return node.Content[0]
	}
	return &node
}

func newTestApprover(prompt promptFunc) *Terminal {
	cfg := Config{}
	cfg.defaults()
	return &Terminal{
		config:    cfg,
		logger:    discardLogger(),
		decisions: newStore(),
		prompt:    prompt,
		now:       time.Now,
	}
}

// waitVerdict polls CheckApproval until it reports a terminal verdict.
func waitVerdict(t *testing.T, term *Terminal, code string) approval.Decision {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		d, err := term.CheckApproval(context.Background(), code)
		if err != nil {
			t.Fatalf("CheckApproval() error: %v", err)
		}
		if d.Verdict.Terminal() {
			return d
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("no terminal verdict within deadline")
	return approval.Decision{}
}

func TestModuleInfo(t *testing.T) {
	term := &Terminal{}
	info := term.ModuleInfo()
	if info.ID != "approver.terminal" {
		t.Errorf("ID = %q, want %q", info.ID, "approver.terminal")
	}
	if info.New() == term {
		t.Error("New() returned the registered instance, want a fresh one")
	}
}

func TestConfigureDefaults(t *testing.T) {
	term := &Terminal{}
	if err := term.Configure(mustYAMLNode(t, "{}")); err != nil {
		t.Fatalf("Configure() error: %v", err)
	}
	if term.config.ApprovalExpiry != 10*time.Minute {
		t.Errorf("ApprovalExpiry = %v, want 10m", term.config.ApprovalExpiry)
	}
}

func TestValidateBounds(t *testing.T) {
	term := &Terminal{config: Config{ApprovalExpiry: time.Second}}
	if err := term.Validate(); err == nil {
		t.Error("Validate() = nil for 1s expiry, want error")
	}

	term = &Terminal{config: Config{ApprovalExpiry: 48 * time.Hour}}
	if err := term.Validate(); err == nil {
		t.Error("Validate() = nil for 48h expiry, want error")
	}

	term = &Terminal{config: Config{ApprovalExpiry: time.Minute}}
	if err := term.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestProvisionRegistersService(t *testing.T) {
	term := &Terminal{}
	term.config.defaults()

	appCtx := core.NewAppContext(discardLogger(), t.TempDir())
	if err := term.Provision(appCtx); err != nil {
		t.Fatalf("Provision() error: %v", err)
	}

	svc, ok := appCtx.Service("approver.channel")
	if !ok {
		t.Fatal("approver.channel service not registered")
	}
	if svc != term {
		t.Error("approver.channel is not the terminal module")
	}
}

func TestApproveAtPrompt(t *testing.T) {
	term := newTestApprover(func(req approval.Request, _ time.Duration) (bool, error) {
		if req.Tool != "addTodos" {
			t.Errorf("prompt Tool = %q, want addTodos", req.Tool)
		}
		return true, nil
	})

	code, err := term.RequestApproval(context.Background(), approval.Request{
		TaskID:    "task-1-ab12",
		Tool:      "addTodos",
		Arguments: json.RawMessage(`{"title":"x"}`),
	})
	if err != nil {
		t.Fatalf("RequestApproval() error: %v", err)
	}

	d := waitVerdict(t, term, code)
	if d.Verdict != approval.VerdictApproved {
		t.Errorf("Verdict = %q, want approved", d.Verdict)
	}
	if d.Reason != "" {
		t.Errorf("Reason = %q, want empty", d.Reason)
	}
}

func TestDenyAtPrompt(t *testing.T) {
	term := newTestApprover(func(approval.Request, time.Duration) (bool, error) {
		return false, nil
	})

	code, err := term.RequestApproval(context.Background(), approval.Request{TaskID: "t", Tool: "x"})
	if err != nil {
		t.Fatalf("RequestApproval() error: %v", err)
	}

	d := waitVerdict(t, term, code)
	if d.Verdict != approval.VerdictDenied {
		t.Errorf("Verdict = %q, want denied", d.Verdict)
	}
	if d.Reason != "denied at the terminal" {
		t.Errorf("Reason = %q, want %q", d.Reason, "denied at the terminal")
	}
}

func TestPromptTimeout(t *testing.T) {
	term := newTestApprover(func(approval.Request, time.Duration) (bool, error) {
		return false, huh.ErrTimeout
	})

	code, err := term.RequestApproval(context.Background(), approval.Request{TaskID: "t", Tool: "x"})
	if err != nil {
		t.Fatalf("RequestApproval() error: %v", err)
	}

	d := waitVerdict(t, term, code)
	if d.Verdict != approval.VerdictDenied {
		t.Errorf("Verdict = %q, want denied", d.Verdict)
	}
	if d.Reason != "approval request expired" {
		t.Errorf("Reason = %q, want expiry reason", d.Reason)
	}
}

func TestPromptAborted(t *testing.T) {
	term := newTestApprover(func(approval.Request, time.Duration) (bool, error) {
		return false, huh.ErrUserAborted
	})

	code, err := term.RequestApproval(context.Background(), approval.Request{TaskID: "t", Tool: "x"})
	if err != nil {
		t.Fatalf("RequestApproval() error: %v", err)
	}

	d := waitVerdict(t, term, code)
	if d.Reason != "approval prompt aborted" {
		t.Errorf("Reason = %q, want abort reason", d.Reason)
	}
}

func TestPromptsSerialized(t *testing.T) {
	var live atomic.Int32
	var maxLive atomic.Int32

	term := newTestApprover(func(approval.Request, time.Duration) (bool, error) {
		n := live.Add(1)
		if n > maxLive.Load() {
			maxLive.Store(n)
		}
		time.Sleep(50 * time.Millisecond)
		live.Add(-1)
		return true, nil
	})

	var codes []string
	for range 3 {
		code, err := term.RequestApproval(context.Background(), approval.Request{TaskID: "t", Tool: "x"})
		if err != nil {
			t.Fatalf("RequestApproval() error: %v", err)
		}
		codes = append(codes, code)
	}

	var wg sync.WaitGroup
	for _, code := range codes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			waitVerdict(t, term, code)
		}()
	}
	wg.Wait()

	if got := maxLive.Load(); got != 1 {
		t.Errorf("max concurrent prompts = %d, want 1", got)
	}
}

func TestCheckApprovalUnknownCode(t *testing.T) {
	term := newTestApprover(nil)
	if _, err := term.CheckApproval(context.Background(), "404"); err == nil {
		t.Fatal("CheckApproval() = nil error for unknown code, want error")
	}
}

func TestFoldPrompt(t *testing.T) {
	tests := []struct {
		name        string
		approved    bool
		err         error
		wantVerdict approval.Verdict
		wantReason  string
	}{
		{"approved", true, nil, approval.VerdictApproved, ""},
		{"denied", false, nil, approval.VerdictDenied, "denied at the terminal"},
		{"timeout", false, huh.ErrTimeout, approval.VerdictDenied, "approval request expired"},
		{"aborted", false, huh.ErrUserAborted, approval.VerdictDenied, "approval prompt aborted"},
		{"failure", false, errors.New("no tty"), approval.VerdictDenied, "approval prompt failed: no tty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, reason := foldPrompt(tt.approved, tt.err)
			if verdict != tt.wantVerdict {
				t.Errorf("verdict = %q, want %q", verdict, tt.wantVerdict)
			}
			if reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", reason, tt.wantReason)
			}
		})
	}
}
