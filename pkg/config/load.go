package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the configuration file at path, applies defaults and
// environment overrides, and validates the result. An empty path loads
// defaults plus environment overrides.
//
// Environment variables use the convention ATTUNE_SECTION_FIELD
// (e.g., ATTUNE_SERVER_LISTEN_ADDRESS) and take precedence over the
// file.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
		}
	}

	ApplyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides in the
// ATTUNE_SECTION_FIELD format.
func applyEnvOverrides(cfg *Config) {
	// Server
	setString("ATTUNE_SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	setDuration("ATTUNE_SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	setDuration("ATTUNE_SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	setDuration("ATTUNE_SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	setDuration("ATTUNE_SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	setInt64("ATTUNE_SERVER_MAX_BODY_BYTES", &cfg.Server.MaxBodyBytes)
	setFloat("ATTUNE_SERVER_INGEST_RATE_PER_SECOND", &cfg.Server.IngestRatePerSecond)
	setInt("ATTUNE_SERVER_INGEST_BURST", &cfg.Server.IngestBurst)

	// Signals
	setDuration("ATTUNE_SIGNALS_RETENTION", &cfg.Signals.Retention)
	setString("ATTUNE_SIGNALS_SWEEP_SCHEDULE", &cfg.Signals.SweepSchedule)
	setDuration("ATTUNE_SIGNALS_SWEEP_IDLE_FOR", &cfg.Signals.SweepIdleFor)
	if val := os.Getenv("ATTUNE_SIGNALS_METRIC_CATALOG"); val != "" {
		catalog := strings.Split(val, ",")
		for i := range catalog {
			catalog[i] = strings.TrimSpace(catalog[i])
		}
		cfg.Signals.MetricCatalog = catalog
	}

	// Policies
	setString("ATTUNE_POLICIES_FILE_PATH", &cfg.Policies.FilePath)
	setBool("ATTUNE_POLICIES_WATCH", &cfg.Policies.Watch)
	setString("ATTUNE_POLICIES_BACKEND", &cfg.Policies.Backend)
	setString("ATTUNE_POLICIES_SQLITE_PATH", &cfg.Policies.SQLitePath)

	// Engine
	setString("ATTUNE_ENGINE_DEFAULT_LOG_LEVEL", &cfg.Engine.DefaultLogLevel)
	setFloat("ATTUNE_ENGINE_DEFAULT_TRACE_SAMPLE_RATE", &cfg.Engine.DefaultTraceSampleRate)
	setInt("ATTUNE_ENGINE_DEFAULT_METRIC_INTERVAL_SECONDS", &cfg.Engine.DefaultMetricIntervalSeconds)
	setInt("ATTUNE_ENGINE_DWELL_DECISIONS", &cfg.Engine.DwellDecisions)
	setDuration("ATTUNE_ENGINE_DWELL_PERIOD", &cfg.Engine.DwellPeriod)

	// Audit
	setBool("ATTUNE_AUDIT_ENABLED", &cfg.Audit.Enabled)
	setString("ATTUNE_AUDIT_SQLITE_PATH", &cfg.Audit.SQLitePath)
	setString("ATTUNE_AUDIT_RETENTION_SCHEDULE", &cfg.Audit.RetentionSchedule)
	setDuration("ATTUNE_AUDIT_KEEP_FOR", &cfg.Audit.KeepFor)

	// Telemetry
	setString("ATTUNE_TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	setString("ATTUNE_TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	setBool("ATTUNE_TELEMETRY_LOGGING_ADD_SOURCE", &cfg.Telemetry.Logging.AddSource)
	setBool("ATTUNE_TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	setString("ATTUNE_TELEMETRY_METRICS_NAMESPACE", &cfg.Telemetry.Metrics.Namespace)
	setString("ATTUNE_TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
}

func setString(key string, dst *string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setBool(key string, dst *bool) {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			*dst = parsed
		}
	}
}

func setInt(key string, dst *int) {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			*dst = parsed
		}
	}
}

func setInt64(key string, dst *int64) {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			*dst = parsed
		}
	}
}

func setFloat(key string, dst *float64) {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = parsed
		}
	}
}

func setDuration(key string, dst *time.Duration) {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			*dst = parsed
		}
	}
}
