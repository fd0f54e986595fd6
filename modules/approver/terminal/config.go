package terminal

import (
	"fmt"
	"time"
)

// Config holds the terminal approver configuration.
type Config struct {
	ApprovalExpiry time.Duration `yaml:"approval_expiry"`
}

// defaults applies default values to unset fields.
func (c *Config) defaults() {
	if c.ApprovalExpiry == 0 {
		c.ApprovalExpiry = 10 * time.Minute
	}
}

// validate checks configuration field constraints.
func (c *Config) validate() error {
	if c.ApprovalExpiry < 10*time.Second || c.ApprovalExpiry > 24*time.Hour {
		return fmt.Errorf("terminal: approval_expiry must be 10s-24h, got %s", c.ApprovalExpiry)
	}
	return nil
}
