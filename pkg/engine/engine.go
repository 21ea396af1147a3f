package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"veridian-hq/attune/pkg/policy"
	"veridian-hq/attune/pkg/signal"
)

// CandidateSource supplies ordered policy candidates for a key. The
// registry implements it; the ordering contract (priority descending,
// specificity descending, id ascending) is the source's responsibility.
type CandidateSource interface {
	Candidates(service, environment string) []*policy.Policy
}

// AggregateSource supplies windowed signal aggregates. The signal store
// implements it. ok=false means no data in the window, which is distinct
// from an error reaching the source.
type AggregateSource interface {
	Aggregate(ctx context.Context, key signal.Key, kind signal.Aggregate, window time.Duration, now time.Time) (float64, bool, error)
}

// Metrics receives engine instrumentation events. Implementations must be
// thread-safe; a nil Metrics disables instrumentation.
type Metrics interface {
	// DecisionEvaluated is called once per Decide with the outcome
	// ("matched", "default", "held" or "error") and the evaluation time.
	DecisionEvaluated(outcome string, elapsed time.Duration)

	// DecisionChanged is called when the effective action for a key
	// changes.
	DecisionChanged(service, environment string)
}

// ChangeListener is notified after the effective action for a key
// changes. prev is nil for the first decision of a key. Listeners run
// inside the per-key decision lock and must not call back into Decide.
type ChangeListener func(ctx context.Context, prev *Decision, next Decision)

// Engine computes effective decisions. Construct one per process and
// share it; all methods are safe for concurrent use.
type Engine struct {
	cfg        Config
	candidates CandidateSource
	signals    AggregateSource
	cache      *cache
	logger     *slog.Logger

	metrics  Metrics
	onChange ChangeListener
}

// New creates a rule engine.
func New(cfg Config, candidates CandidateSource, signals AggregateSource, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if candidates == nil {
		return nil, fmt.Errorf("candidate source cannot be nil")
	}
	if signals == nil {
		return nil, fmt.Errorf("aggregate source cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		cfg:        cfg,
		candidates: candidates,
		signals:    signals,
		cache:      newCache(),
		logger:     logger.With("component", "engine"),
	}, nil
}

// SetMetrics installs the instrumentation sink. Call before serving.
func (e *Engine) SetMetrics(m Metrics) {
	e.metrics = m
}

// SetChangeListener installs the decision change listener. Call before
// serving.
func (e *Engine) SetChangeListener(fn ChangeListener) {
	e.onChange = fn
}

// Decide computes the effective decision for a key at time now. A zero
// now means time.Now(). Calls for the same key are serialized; the
// returned decision is always the one persisted to the cache.
func (e *Engine) Decide(ctx context.Context, service, environment string, now time.Time) (Decision, error) {
	if now.IsZero() {
		now = time.Now()
	}
	start := time.Now()

	ent := e.cache.entryFor(cacheKey{service: service, environment: environment})
	ent.mu.Lock()
	defer ent.mu.Unlock()

	rawAction, rawID, rawReason, err := e.rawMatch(ctx, service, environment, now)
	if err != nil {
		e.observe("error", start)
		return Decision{}, &UnavailableError{Service: service, Environment: environment, Cause: err}
	}

	decision := e.applyHysteresis(ctx, ent, service, environment, rawAction, rawID, rawReason, now)

	outcome := "matched"
	switch {
	case decision.MatchedPolicyID != rawID:
		outcome = "held"
	case rawID == DefaultPolicyID:
		outcome = "default"
	}
	e.observe(outcome, start)
	return decision, nil
}

// Cached returns the current decision for a key without re-evaluating,
// if one exists.
func (e *Engine) Cached(service, environment string) (Decision, bool) {
	return e.cache.peek(cacheKey{service: service, environment: environment})
}

// CachedKeys returns the number of keys with a cached decision.
func (e *Engine) CachedKeys() int {
	return e.cache.len()
}

// rawMatch walks the ordered candidates and returns the first whose full
// condition set is satisfied, or the default action when none is.
func (e *Engine) rawMatch(ctx context.Context, service, environment string, now time.Time) (policy.Action, string, string, error) {
	for _, p := range e.candidates.Candidates(service, environment) {
		matched, err := e.conditionsHold(ctx, p, service, environment, now)
		if err != nil {
			return policy.Action{}, "", "", err
		}
		if matched {
			return p.Action, p.ID, fmt.Sprintf("policy %s matched", p.ID), nil
		}
	}
	return e.cfg.DefaultAction, DefaultPolicyID, "no policy matched, default action", nil
}

// conditionsHold AND-evaluates a policy's conditions. A condition whose
// metric has no data in its window is not satisfied; missing telemetry
// never triggers a behavior change.
func (e *Engine) conditionsHold(ctx context.Context, p *policy.Policy, service, environment string, now time.Time) (bool, error) {
	for _, c := range p.Conditions {
		key := signal.Key{Service: service, Environment: environment, Metric: c.Metric}
		value, ok, err := e.signals.Aggregate(ctx, key, c.Aggregate, c.Window(), now)
		if err != nil {
			return false, fmt.Errorf("aggregate %s over %s for %s: %w", c.Aggregate, c.Window(), key, err)
		}
		if !ok {
			return false, nil
		}
		if !evaluate(c.Operator, value, c.Threshold) {
			return false, nil
		}
	}
	return true, nil
}

// applyHysteresis turns the raw match into the effective decision for the
// entry, held under the entry lock.
func (e *Engine) applyHysteresis(ctx context.Context, ent *entry, service, environment string, rawAction policy.Action, rawID, rawReason string, now time.Time) Decision {
	prev := ent.current

	switch {
	case prev == nil:
		// First decision for this key.
		return e.commit(ctx, ent, service, environment, rawAction, rawID, rawReason, now)

	case rawAction == prev.Action:
		// Same posture; refresh in place. A different policy id with an
		// identical action is not a behavior change.
		ent.lastRawID = rawID
		ent.dwell = 0
		return e.commit(ctx, ent, service, environment, rawAction, rawID, rawReason, now)

	case moreVerbose(rawAction, prev.Action):
		// Escalation applies on the very next call.
		return e.commit(ctx, ent, service, environment, rawAction, rawID,
			rawReason+" (escalation, applied immediately)", now)

	default:
		// De-escalation is damped until the raw match has been continuous
		// for the configured dwell.
		if ent.lastRawID == rawID {
			ent.dwell++
		} else {
			ent.lastRawID = rawID
			ent.dwell = 1
			ent.dwellSince = now
		}

		elapsed := e.cfg.DwellPeriod == 0 || now.Sub(ent.dwellSince) >= e.cfg.DwellPeriod
		if ent.dwell >= e.cfg.DwellDecisions && elapsed {
			return e.commit(ctx, ent, service, environment, rawAction, rawID,
				fmt.Sprintf("%s (de-escalation after %d consecutive decisions)", rawReason, ent.dwell), now)
		}

		held := Decision{
			Service:         service,
			Environment:     environment,
			Action:          prev.Action,
			MatchedPolicyID: prev.MatchedPolicyID,
			DecidedAt:       now,
			Reason: fmt.Sprintf("holding %s, de-escalation to %s pending dwell (%d/%d)",
				prev.MatchedPolicyID, rawID, ent.dwell, e.cfg.DwellDecisions),
		}
		ent.current = &held
		return held
	}
}

// commit installs a decision as the entry's current one, notifying the
// change listener and metrics when the action actually changed.
func (e *Engine) commit(ctx context.Context, ent *entry, service, environment string, action policy.Action, matchedID, reason string, now time.Time) Decision {
	decision := Decision{
		Service:         service,
		Environment:     environment,
		Action:          action,
		MatchedPolicyID: matchedID,
		DecidedAt:       now,
		Reason:          reason,
	}

	prev := ent.current
	changed := prev == nil || prev.Action != action || prev.MatchedPolicyID != matchedID

	ent.current = &decision
	ent.lastRawID = matchedID
	ent.dwell = 0
	ent.dwellSince = time.Time{}

	if changed {
		ent.lastChange = now

		e.logger.Info("effective decision changed",
			"service", service,
			"environment", environment,
			"matched_policy_id", matchedID,
			"log_level", string(action.LogLevel),
			"trace_sample_rate", action.TraceSampleRate,
			"metric_interval_seconds", action.MetricIntervalSeconds,
			"reason", reason,
		)
		if e.metrics != nil {
			e.metrics.DecisionChanged(service, environment)
		}
		if e.onChange != nil {
			e.onChange(ctx, prev, decision)
		}
	}
	return decision
}

func (e *Engine) observe(outcome string, start time.Time) {
	if e.metrics != nil {
		e.metrics.DecisionEvaluated(outcome, time.Since(start))
	}
}
