package engine

import (
	"fmt"
	"time"

	"veridian-hq/attune/pkg/policy"
)

// Config configures the rule engine.
type Config struct {
	// DefaultAction is the baseline applied when no policy matches.
	DefaultAction policy.Action

	// DwellDecisions is how many consecutive Decide calls a less verbose
	// raw match must persist before it replaces the current decision.
	// Default: 3.
	DwellDecisions int

	// DwellPeriod, when non-zero, additionally requires the less verbose
	// raw match to have been continuous for at least this duration. Zero
	// means count-only dwell.
	DwellPeriod time.Duration
}

// DefaultConfig returns the engine defaults: an INFO baseline with low
// sampling and a dwell of three decisions.
func DefaultConfig() Config {
	return Config{
		DefaultAction: policy.Action{
			LogLevel:              policy.LevelInfo,
			TraceSampleRate:       0.1,
			MetricIntervalSeconds: 60,
		},
		DwellDecisions: 3,
	}
}

// Validate checks the engine configuration.
func (c Config) Validate() error {
	if err := c.DefaultAction.Validate(); err != nil {
		return fmt.Errorf("default action invalid: %w", err)
	}
	if c.DwellDecisions < 1 {
		return fmt.Errorf("dwell_decisions must be at least 1, got %d", c.DwellDecisions)
	}
	if c.DwellPeriod < 0 {
		return fmt.Errorf("dwell_period cannot be negative")
	}
	return nil
}
