// Package server exposes the control plane over HTTP: signal ingest,
// effective policy retrieval, policy management, and the operational
// endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	ossignal "os/signal"
	"sync"
	"syscall"

	"veridian-hq/attune/pkg/audit"
	"veridian-hq/attune/pkg/config"
	"veridian-hq/attune/pkg/engine"
	"veridian-hq/attune/pkg/policy"
	"veridian-hq/attune/pkg/policy/storage"
	"veridian-hq/attune/pkg/signal"
	"veridian-hq/attune/pkg/telemetry/health"
	"veridian-hq/attune/pkg/telemetry/metrics"
)

// Server is the control plane HTTP server.
type Server struct {
	cfg      *config.Config
	store    *signal.Store
	registry *policy.Registry
	eng      *engine.Engine
	backend  storage.Backend
	recorder audit.Recorder
	metrics  *metrics.Metrics
	checker  *health.Checker
	logger   *slog.Logger

	schema  *policySchema
	catalog map[string]struct{}

	httpServer   *http.Server
	shutdownChan chan struct{}
	requestOnce  sync.Once
	shutdownOnce sync.Once
	mu           sync.Mutex
	isRunning    bool
}

// Deps are the collaborators the server exposes. Metrics and Recorder
// may be nil; Backend may be nil when policy persistence is disabled.
type Deps struct {
	Store    *signal.Store
	Registry *policy.Registry
	Engine   *engine.Engine
	Backend  storage.Backend
	Recorder audit.Recorder
	Metrics  *metrics.Metrics
	Checker  *health.Checker
	Logger   *slog.Logger
}

// New creates the HTTP server.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if deps.Store == nil || deps.Registry == nil || deps.Engine == nil {
		return nil, fmt.Errorf("store, registry and engine are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Checker == nil {
		deps.Checker = health.NewChecker()
	}

	schema, err := newPolicySchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile policy schema: %w", err)
	}

	var catalog map[string]struct{}
	if len(cfg.Signals.MetricCatalog) > 0 {
		catalog = make(map[string]struct{}, len(cfg.Signals.MetricCatalog))
		for _, name := range cfg.Signals.MetricCatalog {
			catalog[name] = struct{}{}
		}
	}

	return &Server{
		cfg:          cfg,
		store:        deps.Store,
		registry:     deps.Registry,
		eng:          deps.Engine,
		backend:      deps.Backend,
		recorder:     deps.Recorder,
		metrics:      deps.Metrics,
		checker:      deps.Checker,
		logger:       deps.Logger.With("component", "server"),
		schema:       schema,
		catalog:      catalog,
		shutdownChan: make(chan struct{}),
	}, nil
}

// Handler builds the full route table with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/signals", s.handleSubmitSignal)
	mux.HandleFunc("GET /v1/effective-policy/{service}/{environment}", s.handleEffectivePolicy)

	mux.HandleFunc("GET /v1/policies", s.handleListPolicies)
	mux.HandleFunc("POST /v1/policies", s.handleUpsertPolicy)
	mux.HandleFunc("GET /v1/policies/{id}", s.handleGetPolicy)
	mux.HandleFunc("PUT /v1/policies/{id}", s.handlePutPolicy)
	mux.HandleFunc("DELETE /v1/policies/{id}", s.handleDeletePolicy)

	mux.HandleFunc("GET /v1/decision-changes", s.handleDecisionChanges)

	mux.HandleFunc("GET /healthz", s.checker.LivenessHandler())
	mux.HandleFunc("GET /readyz", s.checker.ReadinessHandler())
	if s.metrics != nil && s.cfg.Telemetry.Metrics.Enabled {
		mux.Handle("GET "+s.cfg.Telemetry.Metrics.Path, s.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = s.ingestLimitMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)
	handler = s.recoveryMiddleware(handler)
	return handler
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:         s.cfg.Server.ListenAddress,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting control plane server", "address", s.cfg.Server.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer ossignal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server, draining in-flight requests
// up to the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		running := s.isRunning
		s.isRunning = false
		s.mu.Unlock()
		if !running || s.httpServer == nil {
			return
		}

		s.logger.Info("initiating graceful shutdown", "timeout", s.cfg.Server.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			shutdownErr = fmt.Errorf("graceful shutdown failed: %w", err)
			if closeErr := s.httpServer.Close(); closeErr != nil {
				s.logger.Error("forced close failed", "error", closeErr)
			}
			return
		}
		s.logger.Info("server shut down cleanly")
	})
	return shutdownErr
}

// RequestShutdown asks a running Start to shut down.
func (s *Server) RequestShutdown() {
	s.requestOnce.Do(func() { close(s.shutdownChan) })
}
