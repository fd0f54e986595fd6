package gateway

import (
	"time"

	"github.com/flemzord/tollgate/internal/security"
)

// Config shapes the ops HTTP surface: bind address, auth, webhook intake,
// and the request limits in front of it.
type Config struct {
	Bind            string                      `yaml:"bind"`
	Auth            AuthConfig                  `yaml:"auth"`
	Webhooks        map[string]WebhookSourceCfg `yaml:"webhooks"`
	RateLimit       security.RateLimitConfig    `yaml:"rate_limit"`
	MaxBodySize     int                         `yaml:"max_body_size"`
	ReadTimeout     time.Duration               `yaml:"read_timeout"`
	WriteTimeout    time.Duration               `yaml:"write_timeout"`
	ShutdownTimeout time.Duration               `yaml:"shutdown_timeout"`
}

// defaults fills in unset fields. The bind default is loopback only; an
// operator exposes the surface deliberately.
func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8080"
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = security.DefaultMaxBodySize
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

// AuthConfig guards the approvals and admin endpoints. Bearer and basic
// credentials may both be set; either one admits a request.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

// IsConfigured reports whether any usable credential is present.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}

// WebhookSourceCfg carries per-source webhook settings; today just the
// HMAC secret.
type WebhookSourceCfg struct {
	Secret string `yaml:"secret"`
}
