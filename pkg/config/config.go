// Package config defines the control plane configuration, its defaults,
// loading, and validation.
package config

import "time"

// Config is the root configuration for the attune control plane.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Signals   SignalsConfig   `yaml:"signals"`
	Policies  PoliciesConfig  `yaml:"policies"`
	Engine    EngineConfig    `yaml:"engine"`
	Audit     AuditConfig     `yaml:"audit"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// ListenAddress is the host:port to bind.
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle limit.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes caps request body size.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// IngestRatePerSecond limits signal submissions per second.
	// Zero disables the limiter.
	IngestRatePerSecond float64 `yaml:"ingest_rate_per_second"`

	// IngestBurst is the limiter burst size.
	IngestBurst int `yaml:"ingest_burst"`
}

// SignalsConfig configures the signal store.
type SignalsConfig struct {
	// Retention is the upper bound on how long observations are kept.
	// Condition windows longer than this never see complete data.
	Retention time.Duration `yaml:"retention"`

	// SweepSchedule is the cron expression for idle window sweeping.
	// Empty disables the janitor.
	SweepSchedule string `yaml:"sweep_schedule"`

	// SweepIdleFor is how long a window must be untouched before the
	// janitor drops it.
	SweepIdleFor time.Duration `yaml:"sweep_idle_for"`

	// MetricCatalog, when non-empty, restricts accepted metric names.
	MetricCatalog []string `yaml:"metric_catalog"`
}

// PoliciesConfig configures policy sourcing and persistence.
type PoliciesConfig struct {
	// FilePath is an optional YAML policy file or directory loaded at
	// startup.
	FilePath string `yaml:"file_path"`

	// Watch enables hot reload of FilePath.
	Watch bool `yaml:"watch"`

	// Backend selects API-managed policy persistence: "memory" or
	// "sqlite".
	Backend string `yaml:"backend"`

	// SQLitePath is the database path for the sqlite backend.
	SQLitePath string `yaml:"sqlite_path"`
}

// EngineConfig configures the rule engine.
type EngineConfig struct {
	// Default* define the baseline action applied when no policy matches.
	DefaultLogLevel              string  `yaml:"default_log_level"`
	DefaultTraceSampleRate       float64 `yaml:"default_trace_sample_rate"`
	DefaultMetricIntervalSeconds int     `yaml:"default_metric_interval_seconds"`

	// DwellDecisions is the consecutive-call threshold for de-escalation.
	DwellDecisions int `yaml:"dwell_decisions"`

	// DwellPeriod optionally also requires this much elapsed time.
	DwellPeriod time.Duration `yaml:"dwell_period"`
}

// AuditConfig configures the decision change log.
type AuditConfig struct {
	// Enabled turns on decision change recording.
	Enabled bool `yaml:"enabled"`

	// SQLitePath is the audit database path.
	SQLitePath string `yaml:"sqlite_path"`

	// RetentionSchedule is the cron expression for pruning old records.
	RetentionSchedule string `yaml:"retention_schedule"`

	// KeepFor is how long records are retained.
	KeepFor time.Duration `yaml:"keep_for"`
}

// TelemetryConfig configures logging and metrics.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is "json" or "text".
	Format string `yaml:"format"`

	// AddSource includes file and line number in logs.
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled serves /metrics when true.
	Enabled bool `yaml:"enabled"`

	// Namespace prefixes metric names.
	Namespace string `yaml:"namespace"`

	// Path is the metrics endpoint path.
	Path string `yaml:"path"`
}
