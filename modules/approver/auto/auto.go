// Package auto implements a development approver that applies a fixed
// decision to every request after a configurable delay. It exists for local
// testing and demos; nothing about it is suitable for production gating.
package auto

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/tollgate/internal/core"
	"github.com/flemzord/tollgate/pkg/approval"
)

func init() {
	core.RegisterModule(&Auto{})
}

// Compile-time interface guards.
var (
	_ approval.Approver = (*Auto)(nil)
	_ core.Configurable = (*Auto)(nil)
	_ core.Provisioner  = (*Auto)(nil)
	_ core.Validator    = (*Auto)(nil)
)

// sweepGrace is how long a decided request stays readable before a later
// RequestApproval garbage collects it.
const sweepGrace = 24 * time.Hour

// Auto implements the auto approver channel.
type Auto struct {
	config Config
	logger *slog.Logger
	now    func() time.Time

	nextCode atomic.Int64

	mu     sync.Mutex
	births map[string]time.Time
}

// ModuleInfo implements core.Module.
func (a *Auto) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "approver.auto",
		New: func() core.Module { return &Auto{} },
	}
}

// Configure implements core.Configurable.
func (a *Auto) Configure(node *yaml.Node) error {
	if err := node.Decode(&a.config); err != nil {
		return fmt.Errorf("auto: decode config: %w", err)
	}
	a.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (a *Auto) Provision(ctx *core.AppContext) error {
	a.logger = ctx.Logger
	a.now = time.Now
	a.births = make(map[string]time.Time)
	ctx.RegisterService("approver.channel", a)
	return nil
}

// Validate implements core.Validator.
func (a *Auto) Validate() error {
	return a.config.validate()
}

// RequestApproval implements approval.Approver. The decision is a pure
// function of time, so nothing runs in the background; the request is
// stamped and the configured verdict becomes visible once the delay passes.
func (a *Auto) RequestApproval(_ context.Context, req approval.Request) (string, error) {
	code := strconv.FormatInt(a.nextCode.Add(1), 10)
	now := a.now()

	a.mu.Lock()
	for c, birth := range a.births {
		if now.After(birth.Add(a.config.Delay + sweepGrace)) {
			delete(a.births, c)
		}
	}
	a.births[code] = now
	a.mu.Unlock()

	a.logger.Info("auto decision scheduled",
		"task", req.TaskID,
		"tool", req.Tool,
		"code", code,
		"decision", a.config.Decision,
		"delay", a.config.Delay,
	)
	return code, nil
}

// CheckApproval implements approval.Approver.
func (a *Auto) CheckApproval(_ context.Context, code string) (approval.Decision, error) {
	a.mu.Lock()
	birth, ok := a.births[code]
	a.mu.Unlock()
	if !ok {
		return approval.Decision{}, fmt.Errorf("auto: unknown approval code %q", code)
	}

	if a.now().Before(birth.Add(a.config.Delay)) {
		return approval.Decision{Verdict: approval.VerdictPending}, nil
	}
	if a.config.Decision == "deny" {
		return approval.Decision{Verdict: approval.VerdictDenied, Reason: a.config.Reason}, nil
	}
	return approval.Decision{Verdict: approval.VerdictApproved}, nil
}
