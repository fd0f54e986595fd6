// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for tollgate.
package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Server is the identifier of the downstream server to proxy when the
	// serve command is given no argument. May be omitted when exactly one
	// server is defined.
	Server string `yaml:"server,omitempty"`

	// Servers maps server identifiers to their launch and gating settings.
	Servers map[string]ServerConfig `yaml:"servers"`

	// Approval configures the out-of-band approval workflow.
	Approval ApprovalConfig `yaml:"approval"`

	// Proxy configures the inbound transport the proxy serves callers on.
	Proxy ProxyConfig `yaml:"proxy,omitempty"`

	// Tracing holds optional OpenTelemetry export settings.
	Tracing *TracingConfig `yaml:"tracing,omitempty"`

	// Heartbeat holds optional status-reporting settings.
	Heartbeat *HeartbeatConfig `yaml:"heartbeat,omitempty"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "approver.telegram").
	Modules map[string]yaml.Node `yaml:"modules"`

	// Plugins lists third-party Go module plugins to compile into the binary.
	// Used by xtollgate for build-time composition and by the bootstrapper
	// for hot plugin reload detection.
	Plugins []PluginEntry `yaml:"plugins,omitempty"`

	// Security holds optional security settings for plugin certification.
	Security *SecurityConfig `yaml:"security,omitempty"`
}

// ServerConfig describes one downstream tool server: how to launch it and
// which of its tools are gated or blocked.
type ServerConfig struct {
	// Command is the executable that serves tools over stdio.
	Command string `yaml:"command"`

	// Args are passed to the command verbatim.
	Args []string `yaml:"args,omitempty"`

	// Env is added to the scrubbed launch environment of the command.
	Env map[string]string `yaml:"env,omitempty"`

	// BearerToken is a credential injected into the launch environment.
	// It never appears in logs.
	BearerToken string `yaml:"bearer_token,omitempty"`

	// BearerEnv is the environment variable name the bearer token is
	// injected as. Defaults to BEARER_TOKEN.
	BearerEnv string `yaml:"bearer_env,omitempty"`

	// HighRiskTools lists tool names that require approval before execution.
	HighRiskTools []string `yaml:"high_risk_tools,omitempty"`

	// BlockedTools lists tool names that are always refused. A name present
	// in both lists is blocked.
	BlockedTools []string `yaml:"blocked_tools,omitempty"`
}

// BearerEnvName returns the environment variable name the bearer credential
// is injected as.
func (s ServerConfig) BearerEnvName() string {
	if s.BearerEnv != "" {
		return s.BearerEnv
	}
	return "BEARER_TOKEN"
}

// ApprovalConfig configures the approval task workflow.
type ApprovalConfig struct {
	// Approver is the fixed identity approval requests are delivered to.
	// Its interpretation belongs to the configured approver module (a chat
	// user id, an account name, ...).
	Approver string `yaml:"approver"`

	// StatusCheck bounds the server-side wait performed by checkTaskStatus.
	StatusCheck StatusCheckConfig `yaml:"status_check,omitempty"`

	// MaxPending caps the number of simultaneously pending tasks.
	// 0 uses the default.
	MaxPending int `yaml:"max_pending,omitempty"`
}

// StatusCheckConfig holds the polling cadence for status checks.
type StatusCheckConfig struct {
	// Interval is the pause between successive approval-state queries.
	Interval time.Duration `yaml:"interval,omitempty"`

	// Window is the maximum wall-clock time one status check may wait
	// before reporting the task still pending.
	Window time.Duration `yaml:"window,omitempty"`
}

// ProxyConfig selects the transport the proxy serves callers on.
type ProxyConfig struct {
	// Transport is "stdio" (default) or "http".
	Transport string `yaml:"transport,omitempty"`

	// Listen is the bind address for the http transport.
	Listen string `yaml:"listen,omitempty"`
}

// TracingConfig holds OpenTelemetry export settings.
type TracingConfig struct {
	// Enabled turns span export on.
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP/HTTP collector endpoint (host:port). Empty uses
	// the exporter default.
	Endpoint string `yaml:"endpoint,omitempty"`

	// ServiceName overrides the reported service name. Defaults to tollgate.
	ServiceName string `yaml:"service_name,omitempty"`

	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure,omitempty"`
}

// HeartbeatConfig holds periodic status-reporting settings.
type HeartbeatConfig struct {
	// URL receives the signed status POST. Empty disables the heartbeat.
	URL string `yaml:"url,omitempty"`

	// Secret signs the payload (HMAC-SHA256). Optional.
	Secret string `yaml:"secret,omitempty"`

	// Interval between reports. Defaults to 30m.
	Interval time.Duration `yaml:"interval,omitempty"`

	// QuietHours suppresses reports during a daily window ("22:00-07:00").
	QuietHours string `yaml:"quiet_hours,omitempty"`
}

// PluginEntry identifies a third-party Go module to include in the build.
type PluginEntry struct {
	// Module is the Go module path (e.g. "github.com/example/tollgate-plugin").
	Module string `yaml:"module"`

	// Version is the Go module version (e.g. "v1.0.0").
	Version string `yaml:"version"`
}

// String renders the entry in module@version form, matching the plugin
// identifiers xtollgate compiles into the build hash.
func (p PluginEntry) String() string {
	if p.Version != "" {
		return p.Module + "@" + p.Version
	}
	return p.Module
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	Plugins PluginSecurityConfig `yaml:"plugins"`
}

// PluginSecurityConfig controls plugin certification requirements.
type PluginSecurityConfig struct {
	// RequireCertified rejects uncertified plugins at build time.
	RequireCertified bool `yaml:"require_certified"`

	// TrustedKeys is a list of hex-encoded Ed25519 public keys
	// that are allowed to sign plugins.
	TrustedKeys []string `yaml:"trusted_keys,omitempty"`
}
