package policy

import (
	"fmt"
	"time"

	"veridian-hq/attune/pkg/signal"
)

// Operator is a comparison operator in a condition. The set is closed so
// condition evaluation stays an exhaustive switch.
type Operator string

const (
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpEqual        Operator = "=="
)

// ParseOperator parses an operator symbol.
func ParseOperator(s string) (Operator, error) {
	switch Operator(s) {
	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual, OpEqual:
		return Operator(s), nil
	default:
		return "", fmt.Errorf("unknown operator: %q", s)
	}
}

// LogLevel is the log level an action instructs an agent to emit at.
type LogLevel string

const (
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

// Verbosity ranks a log level by how much it emits. DEBUG is the most
// verbose threshold, ERROR the least. Unknown levels rank below ERROR so
// they never win an escalation comparison.
func (l LogLevel) Verbosity() int {
	switch l {
	case LevelDebug:
		return 3
	case LevelInfo:
		return 2
	case LevelWarn:
		return 1
	case LevelError:
		return 0
	default:
		return -1
	}
}

// ParseLogLevel parses a log level name.
func ParseLogLevel(s string) (LogLevel, error) {
	switch LogLevel(s) {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return LogLevel(s), nil
	default:
		return "", fmt.Errorf("unknown log level: %q", s)
	}
}

// Condition is a single threshold test over an aggregated signal window.
// Conditions are immutable values owned by their policy.
type Condition struct {
	// Metric is the signal metric name the condition reads.
	Metric string `json:"metric" yaml:"metric"`

	// Operator compares the aggregate against Threshold.
	Operator Operator `json:"operator" yaml:"operator"`

	// Threshold is the comparison operand.
	Threshold float64 `json:"threshold" yaml:"threshold"`

	// WindowSeconds is the rolling window the aggregate is computed over.
	WindowSeconds int `json:"window_seconds" yaml:"window_seconds"`

	// Aggregate selects how the window is reduced (avg, max, count, rate, p95).
	Aggregate signal.Aggregate `json:"aggregate" yaml:"aggregate"`
}

// Window returns the condition window as a duration.
func (c Condition) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// Action is the observability posture a matched policy prescribes.
type Action struct {
	// LogLevel is the level the agent should log at.
	LogLevel LogLevel `json:"log_level" yaml:"log_level"`

	// TraceSampleRate is the fraction of traces to sample, in [0, 1].
	TraceSampleRate float64 `json:"trace_sample_rate" yaml:"trace_sample_rate"`

	// MetricIntervalSeconds is how often the agent should emit metrics.
	MetricIntervalSeconds int `json:"metric_interval_seconds" yaml:"metric_interval_seconds"`
}

// Wildcard matches any service or environment in a policy scope.
const Wildcard = "*"

// Policy maps a conjunction of conditions to an action for a scope.
// Policies are immutable once registered; an update replaces by id.
type Policy struct {
	// ID uniquely identifies the policy. Upsert replaces by id.
	ID string `json:"id" yaml:"id"`

	// Description is free-form operator documentation.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Service scopes the policy to one service. Empty or "*" binds to all.
	Service string `json:"service,omitempty" yaml:"service,omitempty"`

	// Environment scopes the policy to one environment. Empty or "*"
	// binds to all.
	Environment string `json:"environment,omitempty" yaml:"environment,omitempty"`

	// Priority orders candidates; higher wins. Ties fall back to
	// specificity, then id.
	Priority int `json:"priority" yaml:"priority"`

	// Conditions must all hold for the policy to match.
	Conditions []Condition `json:"conditions" yaml:"conditions"`

	// Action is applied when the policy matches.
	Action Action `json:"action" yaml:"action"`

	// Disabled policies are never offered as candidates.
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// clone returns a deep copy; conditions are copied so the original slice is
// never shared.
func (p *Policy) clone() *Policy {
	cp := *p
	if p.Conditions != nil {
		cp.Conditions = make([]Condition, len(p.Conditions))
		copy(cp.Conditions, p.Conditions)
	}
	return &cp
}

// Specificity is the number of conditions; more conditions out-rank fewer
// at equal priority.
func (p *Policy) Specificity() int {
	return len(p.Conditions)
}

// AppliesTo reports whether the policy's scope covers the given service and
// environment.
func (p *Policy) AppliesTo(service, environment string) bool {
	if p.Service != "" && p.Service != Wildcard && p.Service != service {
		return false
	}
	if p.Environment != "" && p.Environment != Wildcard && p.Environment != environment {
		return false
	}
	return true
}

// Validate checks the policy invariants: a non-empty id, at least one
// condition, known operators and aggregates, positive windows, and an
// in-range action.
func (p *Policy) Validate() error {
	var errs []string

	if p.ID == "" {
		errs = append(errs, "id cannot be empty")
	}
	if len(p.Conditions) == 0 {
		errs = append(errs, "conditions cannot be empty")
	}
	for i, c := range p.Conditions {
		if c.Metric == "" {
			errs = append(errs, fmt.Sprintf("condition %d: metric cannot be empty", i))
		}
		if _, err := ParseOperator(string(c.Operator)); err != nil {
			errs = append(errs, fmt.Sprintf("condition %d: %v", i, err))
		}
		if _, err := signal.ParseAggregate(string(c.Aggregate)); err != nil {
			errs = append(errs, fmt.Sprintf("condition %d: %v", i, err))
		}
		if c.WindowSeconds <= 0 {
			errs = append(errs, fmt.Sprintf("condition %d: window_seconds must be positive", i))
		}
	}
	if err := p.Action.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return &ValidationError{PolicyID: p.ID, Errors: errs}
	}
	return nil
}

// Validate checks the action field ranges.
func (a Action) Validate() error {
	if _, err := ParseLogLevel(string(a.LogLevel)); err != nil {
		return fmt.Errorf("action: %w", err)
	}
	if a.TraceSampleRate < 0 || a.TraceSampleRate > 1 {
		return fmt.Errorf("action: trace_sample_rate %v out of range [0, 1]", a.TraceSampleRate)
	}
	if a.MetricIntervalSeconds <= 0 {
		return fmt.Errorf("action: metric_interval_seconds must be positive")
	}
	return nil
}
