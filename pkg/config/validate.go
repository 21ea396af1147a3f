package config

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"veridian-hq/attune/pkg/policy"
)

// Validate checks the configuration for inconsistencies. Called by Load
// after defaults and overrides are applied.
func (c *Config) Validate() error {
	if c.Server.ListenAddress == "" {
		return fmt.Errorf("server.listen_address cannot be empty")
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}
	if c.Server.IngestRatePerSecond < 0 {
		return fmt.Errorf("server.ingest_rate_per_second cannot be negative")
	}

	if c.Signals.Retention <= 0 {
		return fmt.Errorf("signals.retention must be positive")
	}
	if c.Signals.SweepSchedule != "" {
		if _, err := cron.ParseStandard(c.Signals.SweepSchedule); err != nil {
			return fmt.Errorf("signals.sweep_schedule: %w", err)
		}
	}

	switch c.Policies.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("policies.backend must be \"memory\" or \"sqlite\", got %q", c.Policies.Backend)
	}
	if c.Policies.Backend == "sqlite" && c.Policies.SQLitePath == "" {
		return fmt.Errorf("policies.sqlite_path required for the sqlite backend")
	}
	if c.Policies.Watch && c.Policies.FilePath == "" {
		return fmt.Errorf("policies.watch requires policies.file_path")
	}

	if _, err := policy.ParseLogLevel(c.Engine.DefaultLogLevel); err != nil {
		return fmt.Errorf("engine.default_log_level: %w", err)
	}
	if c.Engine.DefaultTraceSampleRate < 0 || c.Engine.DefaultTraceSampleRate > 1 {
		return fmt.Errorf("engine.default_trace_sample_rate %v out of range [0, 1]", c.Engine.DefaultTraceSampleRate)
	}
	if c.Engine.DefaultMetricIntervalSeconds <= 0 {
		return fmt.Errorf("engine.default_metric_interval_seconds must be positive")
	}
	if c.Engine.DwellDecisions < 1 {
		return fmt.Errorf("engine.dwell_decisions must be at least 1")
	}
	if c.Engine.DwellPeriod < 0 {
		return fmt.Errorf("engine.dwell_period cannot be negative")
	}

	if c.Audit.Enabled {
		if c.Audit.SQLitePath == "" {
			return fmt.Errorf("audit.sqlite_path required when audit is enabled")
		}
		if c.Audit.RetentionSchedule != "" {
			if _, err := cron.ParseStandard(c.Audit.RetentionSchedule); err != nil {
				return fmt.Errorf("audit.retention_schedule: %w", err)
			}
		}
		if c.Audit.KeepFor <= 0 {
			return fmt.Errorf("audit.keep_for must be positive")
		}
	}

	return nil
}
