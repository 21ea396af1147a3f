package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RetentionConfig configures scheduled pruning of old audit records.
type RetentionConfig struct {
	// Schedule is a standard cron expression. Empty disables pruning.
	// Default: "0 3 * * *" (daily at 3 AM).
	Schedule string

	// KeepFor is how long records are retained. Default: 30 days.
	KeepFor time.Duration
}

// DefaultRetentionConfig returns the retention defaults.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		Schedule: "0 3 * * *",
		KeepFor:  30 * 24 * time.Hour,
	}
}

// RetentionScheduler prunes old records from a SQLiteRecorder on a cron
// schedule.
type RetentionScheduler struct {
	recorder *SQLiteRecorder
	cfg      RetentionConfig
	cron     *cron.Cron
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewRetentionScheduler creates a retention scheduler.
func NewRetentionScheduler(recorder *SQLiteRecorder, cfg RetentionConfig, logger *slog.Logger) *RetentionScheduler {
	if cfg.KeepFor <= 0 {
		cfg.KeepFor = DefaultRetentionConfig().KeepFor
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RetentionScheduler{
		recorder: recorder,
		cfg:      cfg,
		cron:     cron.New(),
		logger:   logger.With("component", "audit.retention"),
	}
}

// Start begins scheduled pruning. If the schedule is empty the scheduler
// does nothing. Pruning stops when the context is cancelled or Stop is
// called.
func (s *RetentionScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Schedule == "" {
		s.logger.Info("audit retention schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(s.cfg.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.cfg.Schedule, err)
	}

	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		s.runPruning(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule audit pruning: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("audit retention scheduler started",
		"schedule", s.cfg.Schedule,
		"keep_for", s.cfg.KeepFor.String(),
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts scheduled pruning and waits for any running job.
func (s *RetentionScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("audit retention scheduler stopped")
}

// runPruning executes one pruning pass.
func (s *RetentionScheduler) runPruning(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.KeepFor)
	removed, err := s.recorder.PruneBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("audit pruning failed", "error", err)
		return
	}
	s.logger.Info("audit pruning completed", "removed", removed, "cutoff", cutoff)
}
