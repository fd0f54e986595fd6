package httpapprover

import (
	"fmt"
	"time"
)

// Config holds the REST approver configuration.
type Config struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// defaults applies default values to unset fields.
func (c *Config) defaults() {
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

// validate checks configuration field constraints beyond basic presence checks.
func (c *Config) validate() error {
	if c.Timeout < time.Second || c.Timeout > time.Minute {
		return fmt.Errorf("httpapprover: timeout must be 1s-1m, got %s", c.Timeout)
	}
	return nil
}
