package httpapprover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/tollgate/internal/core"
	"github.com/flemzord/tollgate/internal/security"
	"github.com/flemzord/tollgate/pkg/approval"
)

func init() {
	core.RegisterModule(&HTTP{})
}

// Compile-time interface guards.
var (
	_ approval.Approver = (*HTTP)(nil)
	_ core.Configurable = (*HTTP)(nil)
	_ core.Provisioner  = (*HTTP)(nil)
	_ core.Validator    = (*HTTP)(nil)
)

// HTTP implements the REST approver channel. It has no background work: the
// remote service owns the decision state, so the module is a stateless client.
type HTTP struct {
	config Config
	client *Client
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (h *HTTP) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "approver.http",
		New: func() core.Module { return &HTTP{} },
	}
}

// Configure implements core.Configurable.
func (h *HTTP) Configure(node *yaml.Node) error {
	if err := node.Decode(&h.config); err != nil {
		return fmt.Errorf("httpapprover: decode config: %w", err)
	}
	h.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (h *HTTP) Provision(ctx *core.AppContext) error {
	h.logger = ctx.Logger
	h.client = NewClient(h.config.URL, h.config.Token, h.config.Timeout)
	ctx.RegisterService("approver.channel", h)

	// The service bearer token must never surface in logs.
	if svc, ok := ctx.Service("security.credentials"); ok {
		if store, ok := svc.(*security.CredentialStore); ok && h.config.Token != "" {
			store.Set("approver.http.token", h.config.Token)
		}
	}
	return nil
}

// Validate implements core.Validator. The endpoint must be https or
// loopback; approval decisions must not travel an interceptable link.
func (h *HTTP) Validate() error {
	if h.config.URL == "" {
		return errors.New("httpapprover: url is required")
	}
	if err := security.ValidateEndpoint(h.config.URL); err != nil {
		return fmt.Errorf("httpapprover: %w", err)
	}
	return h.config.validate()
}

// RequestApproval implements approval.Approver. The id assigned by the
// service becomes the out-of-band code.
func (h *HTTP) RequestApproval(ctx context.Context, req approval.Request) (string, error) {
	id, err := h.client.CreateApproval(ctx, CreateApprovalRequest{
		TaskID:    req.TaskID,
		Tool:      req.Tool,
		Arguments: req.Arguments,
		Approver:  req.Approver,
		Server:    req.Server,
		CreatedAt: req.CreatedAt,
	})
	if err != nil {
		return "", err
	}

	h.logger.Info("approval request delivered",
		"task", req.TaskID,
		"tool", req.Tool,
		"code", id,
	)
	return id, nil
}

// CheckApproval implements approval.Approver. Service-side expiry folds into
// a denied decision; an unknown status is an error the caller treats as a
// definitive negative.
func (h *HTTP) CheckApproval(ctx context.Context, code string) (approval.Decision, error) {
	status, err := h.client.GetApproval(ctx, code)
	if err != nil {
		return approval.Decision{}, err
	}

	switch status.Status {
	case StatusPending:
		return approval.Decision{Verdict: approval.VerdictPending}, nil
	case StatusApproved:
		return approval.Decision{Verdict: approval.VerdictApproved}, nil
	case StatusDenied:
		reason := status.Reason
		if reason == "" {
			reason = "denied by approval service"
		}
		return approval.Decision{Verdict: approval.VerdictDenied, Reason: reason}, nil
	case StatusExpired:
		reason := status.Reason
		if reason == "" {
			reason = "approval request expired"
		}
		return approval.Decision{Verdict: approval.VerdictDenied, Reason: reason}, nil
	default:
		return approval.Decision{}, fmt.Errorf("httpapprover: unknown status %q for code %q", status.Status, code)
	}
}
