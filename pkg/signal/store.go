package signal

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// StoreConfig configures the signal store.
type StoreConfig struct {
	// Retention is the maximum age of any retained observation, regardless
	// of the windows conditions ask for. Condition windows longer than the
	// retention see truncated data, so deployments must keep retention at
	// least as long as their longest policy window.
	// Default: 5 minutes.
	Retention time.Duration
}

// DefaultStoreConfig returns the default store configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Retention: 5 * time.Minute,
	}
}

// Store is the rolling, per-key signal store.
//
// Store is safe for concurrent use. Record and Aggregate on the same key are
// serialized by the key's window mutex; different keys proceed independently.
type Store struct {
	mu      sync.RWMutex
	windows map[Key]*window

	retention time.Duration
	logger    *slog.Logger
}

// NewStore creates a signal store.
func NewStore(cfg StoreConfig, logger *slog.Logger) *Store {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultStoreConfig().Retention
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		windows:   make(map[Key]*window),
		retention: cfg.Retention,
		logger:    logger.With("component", "signal.store"),
	}
}

// Record appends an observation to its key's window, creating the window on
// first use. Record never fails for a well-formed observation; value-range
// validation is the caller's responsibility.
func (s *Store) Record(obs Observation) {
	ts := obs.Timestamp
	now := time.Now()
	if ts.IsZero() {
		ts = now
	}

	s.windowFor(obs.Key()).record(ts, obs.Value, now, s.retention)
}

// Aggregate computes the requested aggregate over observations younger than
// duration, evaluated at now. ok is false when the window has no data for
// that span; the zero value is never returned as a stand-in.
//
// The error return exists for the engine's source contract; the in-memory
// store never fails.
func (s *Store) Aggregate(ctx context.Context, key Key, kind Aggregate, duration time.Duration, now time.Time) (value float64, ok bool, err error) {
	s.mu.RLock()
	w := s.windows[key]
	s.mu.RUnlock()

	if w == nil {
		return 0, false, nil
	}

	value, ok = w.aggregate(kind, duration, now, s.retention)
	return value, ok, nil
}

// SweepIdle removes windows untouched since before now-idleFor and returns
// how many were removed. The janitor calls this on a schedule; it is also
// safe to call directly.
func (s *Store) SweepIdle(now time.Time, idleFor time.Duration) int {
	cutoff := now.Add(-idleFor)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, w := range s.windows {
		if w.lastTouched().Before(cutoff) {
			delete(s.windows, key)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debug("swept idle signal windows", "removed", removed)
	}
	return removed
}

// Len returns the number of live windows.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.windows)
}

// SampleCount returns the number of retained samples for a key. Intended for
// tests and introspection endpoints.
func (s *Store) SampleCount(key Key) int {
	s.mu.RLock()
	w := s.windows[key]
	s.mu.RUnlock()

	if w == nil {
		return 0
	}
	return w.len()
}

// windowFor returns the window for key, creating it lazily.
func (s *Store) windowFor(key Key) *window {
	s.mu.RLock()
	w := s.windows[key]
	s.mu.RUnlock()
	if w != nil {
		return w
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w = s.windows[key]; w == nil {
		w = newWindow()
		s.windows[key] = w
	}
	return w
}
