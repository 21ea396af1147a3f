package config

import "time"

// Default returns the default configuration.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20 // 1 MiB
	}
	if cfg.Server.IngestBurst == 0 {
		cfg.Server.IngestBurst = 100
	}

	if cfg.Signals.Retention == 0 {
		cfg.Signals.Retention = 5 * time.Minute
	}
	if cfg.Signals.SweepSchedule == "" {
		cfg.Signals.SweepSchedule = "*/10 * * * *"
	}
	if cfg.Signals.SweepIdleFor == 0 {
		cfg.Signals.SweepIdleFor = 30 * time.Minute
	}

	if cfg.Policies.Backend == "" {
		cfg.Policies.Backend = "memory"
	}
	if cfg.Policies.SQLitePath == "" {
		cfg.Policies.SQLitePath = "data/policies.db"
	}

	if cfg.Engine.DefaultLogLevel == "" {
		cfg.Engine.DefaultLogLevel = "INFO"
	}
	if cfg.Engine.DefaultTraceSampleRate == 0 {
		cfg.Engine.DefaultTraceSampleRate = 0.1
	}
	if cfg.Engine.DefaultMetricIntervalSeconds == 0 {
		cfg.Engine.DefaultMetricIntervalSeconds = 60
	}
	if cfg.Engine.DwellDecisions == 0 {
		cfg.Engine.DwellDecisions = 3
	}

	if cfg.Audit.SQLitePath == "" {
		cfg.Audit.SQLitePath = "data/audit.db"
	}
	if cfg.Audit.RetentionSchedule == "" {
		cfg.Audit.RetentionSchedule = "0 3 * * *"
	}
	if cfg.Audit.KeepFor == 0 {
		cfg.Audit.KeepFor = 30 * 24 * time.Hour
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = "info"
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = "json"
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = "attune"
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = "/metrics"
	}
}
