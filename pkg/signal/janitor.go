package signal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JanitorConfig configures the idle-window janitor.
type JanitorConfig struct {
	// Schedule is a standard cron expression. Empty disables the janitor.
	Schedule string

	// IdleFor is how long a window may go untouched before it is removed.
	// Default: 30 minutes.
	IdleFor time.Duration
}

// DefaultJanitorConfig returns the default janitor configuration.
func DefaultJanitorConfig() JanitorConfig {
	return JanitorConfig{
		Schedule: "*/10 * * * *",
		IdleFor:  30 * time.Minute,
	}
}

// Janitor periodically removes windows for keys that stopped reporting.
// Opportunistic pruning on Record and Aggregate keeps active windows
// bounded; the janitor covers keys nothing touches anymore.
type Janitor struct {
	store  *Store
	config JanitorConfig
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewJanitor creates a janitor for the given store.
func NewJanitor(store *Store, cfg JanitorConfig, logger *slog.Logger) *Janitor {
	if cfg.IdleFor <= 0 {
		cfg.IdleFor = DefaultJanitorConfig().IdleFor
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Janitor{
		store:  store,
		config: cfg,
		cron:   cron.New(),
		logger: logger.With("component", "signal.janitor"),
	}
}

// Start begins scheduled sweeping. It returns immediately; the sweep runs on
// the cron schedule until the context is cancelled or Stop is called. An
// empty schedule disables the janitor.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.config.Schedule == "" {
		j.logger.Info("sweep schedule not configured, janitor disabled")
		return nil
	}

	if _, err := cron.ParseStandard(j.config.Schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", j.config.Schedule, err)
	}

	_, err := j.cron.AddFunc(j.config.Schedule, func() {
		removed := j.store.SweepIdle(time.Now(), j.config.IdleFor)
		if removed > 0 {
			j.logger.Info("idle signal windows removed", "count", removed)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	j.cron.Start()
	j.running = true

	j.logger.Info("signal janitor started",
		"schedule", j.config.Schedule,
		"idle_for", j.config.IdleFor.String(),
	)

	go func() {
		<-ctx.Done()
		j.Stop()
	}()

	return nil
}

// Stop stops the janitor and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		<-j.cron.Stop().Done()
		j.running = false
		j.logger.Info("signal janitor stopped")
	}
}
