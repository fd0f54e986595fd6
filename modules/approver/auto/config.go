package auto

import (
	"fmt"
	"time"
)

// Config holds the auto approver settings.
type Config struct {
	// Decision applied to every request: "approve" or "deny".
	Decision string `yaml:"decision"`

	// Delay before the decision becomes visible. Zero decides immediately.
	Delay time.Duration `yaml:"delay"`

	// Reason reported with denials. Ignored when Decision is "approve".
	Reason string `yaml:"reason"`
}

func (c *Config) defaults() {
	if c.Decision == "" {
		c.Decision = "approve"
	}
	if c.Reason == "" {
		c.Reason = "denied by auto approver"
	}
}

func (c *Config) validate() error {
	if c.Decision != "approve" && c.Decision != "deny" {
		return fmt.Errorf("decision must be \"approve\" or \"deny\", got %q", c.Decision)
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay must not be negative, got %s", c.Delay)
	}
	if c.Delay > time.Hour {
		return fmt.Errorf("delay must be at most 1h, got %s", c.Delay)
	}
	return nil
}
