package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/flemzord/tollgate/internal/core"
	"gopkg.in/yaml.v3"
)

// approverNamespace is the module namespace approver channels register under.
const approverNamespace = "approver."

var envNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks the structural validity of a Config.
// It verifies the version field, the downstream server table, the approval
// settings, and that all referenced module IDs exist in the registry.
// Exactly one approver module must be configured.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	errs = append(errs, validateServers(cfg)...)
	errs = append(errs, validateApproval(cfg.Approval)...)
	errs = append(errs, validateProxy(cfg.Proxy)...)
	errs = append(errs, validateHeartbeat(cfg.Heartbeat)...)
	errs = append(errs, validateModules(cfg.Modules)...)
	errs = append(errs, validatePlugins(cfg.Plugins)...)
	errs = append(errs, validateSecurity(cfg.Security)...)

	return errors.Join(errs...)
}

func validateServers(cfg *Config) []error {
	var errs []error

	if len(cfg.Servers) == 0 {
		errs = append(errs, errors.New("config: at least one server must be defined"))
		return errs
	}

	if cfg.Server != "" {
		if _, ok := cfg.Servers[cfg.Server]; !ok {
			errs = append(errs, fmt.Errorf("config: default server %q is not defined in servers", cfg.Server))
		}
	} else if len(cfg.Servers) > 1 {
		errs = append(errs, errors.New("config: server field is required when multiple servers are defined"))
	}

	ids := make([]string, 0, len(cfg.Servers))
	for id := range cfg.Servers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		srv := cfg.Servers[id]
		if srv.Command == "" {
			errs = append(errs, fmt.Errorf("config: server %q: command is required", id))
		}
		if srv.BearerEnv != "" && !envNamePattern.MatchString(srv.BearerEnv) {
			errs = append(errs, fmt.Errorf("config: server %q: bearer_env %q is not a valid environment variable name", id, srv.BearerEnv))
		}
	}

	return errs
}

func validateApproval(a ApprovalConfig) []error {
	var errs []error

	if a.Approver == "" {
		errs = append(errs, errors.New("config: approval.approver is required"))
	}
	if a.MaxPending < 0 {
		errs = append(errs, fmt.Errorf("config: approval.max_pending must not be negative, got %d", a.MaxPending))
	}
	if a.StatusCheck.Interval < 0 {
		errs = append(errs, errors.New("config: approval.status_check.interval must not be negative"))
	}
	if a.StatusCheck.Window < 0 {
		errs = append(errs, errors.New("config: approval.status_check.window must not be negative"))
	}
	if a.StatusCheck.Interval > 0 && a.StatusCheck.Window > 0 && a.StatusCheck.Interval > a.StatusCheck.Window {
		errs = append(errs, errors.New("config: approval.status_check.interval must not exceed the window"))
	}

	return errs
}

func validateProxy(p ProxyConfig) []error {
	var errs []error

	switch p.Transport {
	case "", "stdio":
	case "http":
		if p.Listen == "" {
			errs = append(errs, errors.New("config: proxy.listen is required for the http transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: proxy.transport %q is not supported (stdio, http)", p.Transport))
	}

	return errs
}

func validateHeartbeat(h *HeartbeatConfig) []error {
	if h == nil || h.URL == "" {
		return nil
	}
	var errs []error

	if !strings.HasPrefix(h.URL, "https://") && !strings.HasPrefix(h.URL, "http://") {
		errs = append(errs, fmt.Errorf("config: heartbeat.url %q must be an http(s) URL", h.URL))
	}
	if h.Interval < 0 {
		errs = append(errs, errors.New("config: heartbeat.interval must not be negative"))
	}

	return errs
}

func validateModules(modules map[string]yaml.Node) []error {
	var errs []error

	var approvers []string
	for id := range modules {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
			continue
		}
		if strings.HasPrefix(id, approverNamespace) {
			approvers = append(approvers, id)
		}
	}

	switch len(approvers) {
	case 0:
		errs = append(errs, errors.New("config: exactly one approver module must be configured, got none"))
	case 1:
	default:
		sort.Strings(approvers)
		errs = append(errs, fmt.Errorf("config: exactly one approver module must be configured, got %s", strings.Join(approvers, ", ")))
	}

	return errs
}

func validatePlugins(plugins []PluginEntry) []error {
	var errs []error
	for i, p := range plugins {
		if p.Module == "" {
			errs = append(errs, fmt.Errorf("config: plugins[%d]: module path is required", i))
		}
	}
	return errs
}

func validateSecurity(sec *SecurityConfig) []error {
	if sec == nil {
		return nil
	}
	var errs []error

	if sec.Plugins.RequireCertified && len(sec.Plugins.TrustedKeys) == 0 {
		errs = append(errs, errors.New("config: security.plugins.require_certified is true but no trusted_keys provided"))
	}

	for i, hexKey := range sec.Plugins.TrustedKeys {
		raw, err := hex.DecodeString(hexKey)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: security.plugins.trusted_keys[%d]: invalid hex: %w", i, err))
			continue
		}
		if len(raw) != 32 { // ed25519.PublicKeySize
			errs = append(errs, fmt.Errorf("config: security.plugins.trusted_keys[%d]: invalid key size: got %d, want 32", i, len(raw)))
		}
	}

	return errs
}
