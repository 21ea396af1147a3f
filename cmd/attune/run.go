package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"veridian-hq/attune/pkg/audit"
	"veridian-hq/attune/pkg/config"
	"veridian-hq/attune/pkg/engine"
	"veridian-hq/attune/pkg/policy"
	"veridian-hq/attune/pkg/policy/source"
	"veridian-hq/attune/pkg/policy/storage"
	"veridian-hq/attune/pkg/server"
	"veridian-hq/attune/pkg/signal"
	"veridian-hq/attune/pkg/telemetry/health"
	"veridian-hq/attune/pkg/telemetry/logging"
	"veridian-hq/attune/pkg/telemetry/metrics"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the control plane server",
	Long: `Start the control plane server with the specified configuration.

The server ingests signal observations, serves effective observability
decisions, and manages policies.

Examples:
  # Start with default config
  attune run

  # Start with custom config
  attune run --config /etc/attune/config.yaml

  # Override listen address
  attune run --listen 0.0.0.0:8080

  # Validate config without starting server
  attune run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	// Local .env files supplement the environment for ATTUNE_* overrides.
	_ = godotenv.Load()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.Config{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Println("configuration valid")
		return nil
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	m := metrics.New(metrics.Config{Namespace: cfg.Telemetry.Metrics.Namespace}, prometheus.NewRegistry())

	// Signal store and idle-window janitor.
	store := signal.NewStore(signal.StoreConfig{Retention: cfg.Signals.Retention}, logger)
	janitor := signal.NewJanitor(store, signal.JanitorConfig{
		Schedule: cfg.Signals.SweepSchedule,
		IdleFor:  cfg.Signals.SweepIdleFor,
	}, logger)
	if err := janitor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start signal janitor: %w", err)
	}
	defer janitor.Stop()

	// Policy registry, persistence backend, and optional file source.
	registry := policy.NewRegistry()

	var backend storage.Backend
	switch cfg.Policies.Backend {
	case "sqlite":
		backend, err = storage.NewSQLiteBackend(cfg.Policies.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open policy storage: %w", err)
		}
	default:
		backend = storage.NewMemoryBackend()
	}
	defer backend.Close()

	persisted, err := backend.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load persisted policies: %w", err)
	}
	for _, p := range persisted {
		if err := registry.Upsert(p); err != nil {
			logger.Warn("skipping invalid persisted policy", "policy_id", p.ID, "error", err)
		}
	}

	var fileSource *source.FileSource
	if cfg.Policies.FilePath != "" {
		fileSource, err = source.NewFileSource(source.FileSourceConfig{Path: cfg.Policies.FilePath}, logger)
		if err != nil {
			return fmt.Errorf("failed to create policy file source: %w", err)
		}
		reload := func() error {
			policies, err := fileSource.Load(ctx)
			if err != nil {
				return err
			}
			if err := registry.Replace(policies); err != nil {
				return err
			}
			m.SetPoliciesRegistered(registry.Count())
			return nil
		}
		if err := reload(); err != nil {
			return fmt.Errorf("failed to load policy file: %w", err)
		}
		if cfg.Policies.Watch {
			go func() {
				if err := fileSource.Watch(ctx, reload); err != nil {
					logger.Error("policy file watcher exited", "error", err)
				}
			}()
			defer fileSource.Stop()
		}
	}
	m.SetPoliciesRegistered(registry.Count())

	// Rule engine.
	eng, err := engine.New(engine.Config{
		DefaultAction: policy.Action{
			LogLevel:              policy.LogLevel(cfg.Engine.DefaultLogLevel),
			TraceSampleRate:       cfg.Engine.DefaultTraceSampleRate,
			MetricIntervalSeconds: cfg.Engine.DefaultMetricIntervalSeconds,
		},
		DwellDecisions: cfg.Engine.DwellDecisions,
		DwellPeriod:    cfg.Engine.DwellPeriod,
	}, registry, store, logger)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	eng.SetMetrics(m)

	// Decision change audit log.
	var recorder audit.Recorder = audit.NopRecorder{}
	if cfg.Audit.Enabled {
		sqliteRecorder, err := audit.NewSQLiteRecorder(audit.SQLiteConfig{Path: cfg.Audit.SQLitePath}, logger)
		if err != nil {
			return fmt.Errorf("failed to open audit storage: %w", err)
		}
		defer sqliteRecorder.Close()
		recorder = sqliteRecorder
		eng.SetChangeListener(audit.ListenerFor(sqliteRecorder, logger))

		retention := audit.NewRetentionScheduler(sqliteRecorder, audit.RetentionConfig{
			Schedule: cfg.Audit.RetentionSchedule,
			KeepFor:  cfg.Audit.KeepFor,
		}, logger)
		if err := retention.Start(ctx); err != nil {
			return fmt.Errorf("failed to start audit retention: %w", err)
		}
		defer retention.Stop()
	}

	// Readiness checks: the registry must have completed its first load
	// and the audit store must answer.
	checker := health.NewChecker()
	checker.Register("policies", func() error {
		if cfg.Policies.FilePath != "" && registry.Count() == 0 {
			return fmt.Errorf("policy set empty after configured file load")
		}
		return nil
	})
	checker.Register("audit", func() error {
		_, err := recorder.Recent(ctx, "", "", 1)
		return err
	})

	srv, err := server.New(cfg, server.Deps{
		Store:    store,
		Registry: registry,
		Engine:   eng,
		Backend:  backend,
		Recorder: recorder,
		Metrics:  m,
		Checker:  checker,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("control plane starting",
		"listen_address", cfg.Server.ListenAddress,
		"policy_count", registry.Count(),
		"policy_backend", cfg.Policies.Backend,
		"audit_enabled", cfg.Audit.Enabled,
	)
	return srv.Start(ctx)
}
