package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"veridian-hq/attune/pkg/engine"
)

// Change is one decision transition for a (service, environment) key.
type Change struct {
	// ID uniquely identifies the record.
	ID string `json:"id"`

	Service     string `json:"service"`
	Environment string `json:"environment"`

	// PreviousPolicyID is the matched policy before the change, empty for
	// the first decision of a key.
	PreviousPolicyID string `json:"previous_policy_id,omitempty"`

	// MatchedPolicyID is the matched policy after the change.
	MatchedPolicyID string `json:"matched_policy_id"`

	LogLevel              string  `json:"log_level"`
	TraceSampleRate       float64 `json:"trace_sample_rate"`
	MetricIntervalSeconds int     `json:"metric_interval_seconds"`

	Reason    string    `json:"reason"`
	ChangedAt time.Time `json:"changed_at"`
}

// Recorder persists decision changes. Implementations must be
// thread-safe.
type Recorder interface {
	// Record persists a change.
	Record(ctx context.Context, change Change) error

	// Recent returns up to limit changes, newest first, optionally
	// filtered by service and environment (empty string matches all).
	Recent(ctx context.Context, service, environment string, limit int) ([]Change, error)

	// Close releases resources held by the recorder.
	Close() error
}

// NopRecorder discards all changes. Used when auditing is disabled.
type NopRecorder struct{}

func (NopRecorder) Record(ctx context.Context, change Change) error { return nil }

func (NopRecorder) Recent(ctx context.Context, service, environment string, limit int) ([]Change, error) {
	return nil, nil
}

func (NopRecorder) Close() error { return nil }

// ListenerFor adapts a Recorder into an engine change listener. Recording
// failures are logged, never surfaced to the decision path.
func ListenerFor(recorder Recorder, logger *slog.Logger) engine.ChangeListener {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "audit")

	return func(ctx context.Context, prev *engine.Decision, next engine.Decision) {
		change := Change{
			ID:                    uuid.NewString(),
			Service:               next.Service,
			Environment:           next.Environment,
			MatchedPolicyID:       next.MatchedPolicyID,
			LogLevel:              string(next.Action.LogLevel),
			TraceSampleRate:       next.Action.TraceSampleRate,
			MetricIntervalSeconds: next.Action.MetricIntervalSeconds,
			Reason:                next.Reason,
			ChangedAt:             next.DecidedAt,
		}
		if prev != nil {
			change.PreviousPolicyID = prev.MatchedPolicyID
		}

		if err := recorder.Record(ctx, change); err != nil {
			logger.Error("failed to record decision change",
				"service", change.Service,
				"environment", change.Environment,
				"error", err,
			)
		}
	}
}
