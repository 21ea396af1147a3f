package policy

import (
	"testing"

	"veridian-hq/attune/pkg/signal"
)

func validPolicy(id string) *Policy {
	return &Policy{
		ID:          id,
		Service:     "checkout",
		Environment: "prod",
		Priority:    10,
		Conditions: []Condition{
			{Metric: "error_rate", Operator: OpGreater, Threshold: 0.05, WindowSeconds: 60, Aggregate: signal.AggregateAvg},
		},
		Action: Action{LogLevel: LevelError, TraceSampleRate: 1.0, MetricIntervalSeconds: 15},
	}
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Policy)
		wantErr bool
	}{
		{"valid", func(p *Policy) {}, false},
		{"empty id", func(p *Policy) { p.ID = "" }, true},
		{"no conditions", func(p *Policy) { p.Conditions = nil }, true},
		{"unknown operator", func(p *Policy) { p.Conditions[0].Operator = "!=" }, true},
		{"unknown aggregate", func(p *Policy) { p.Conditions[0].Aggregate = "median" }, true},
		{"zero window", func(p *Policy) { p.Conditions[0].WindowSeconds = 0 }, true},
		{"empty metric", func(p *Policy) { p.Conditions[0].Metric = "" }, true},
		{"sample rate above one", func(p *Policy) { p.Action.TraceSampleRate = 1.5 }, true},
		{"negative sample rate", func(p *Policy) { p.Action.TraceSampleRate = -0.1 }, true},
		{"zero metric interval", func(p *Policy) { p.Action.MetricIntervalSeconds = 0 }, true},
		{"unknown log level", func(p *Policy) { p.Action.LogLevel = "TRACE" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPolicy("p1")
			tt.mutate(p)
			err := p.Validate()
			if tt.wantErr && err == nil {
				t.Error("Validate did not return an error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate returned error: %v", err)
			}
		})
	}
}

func TestPolicy_AppliesTo(t *testing.T) {
	tests := []struct {
		name        string
		service     string
		environment string
		wantProd    bool
		wantStaging bool
	}{
		{"exact scope", "checkout", "prod", true, false},
		{"wildcard environment", "checkout", "*", true, true},
		{"empty environment", "checkout", "", true, true},
		{"wildcard service", "*", "prod", true, false},
		{"empty service", "", "prod", true, false},
		{"other service", "billing", "prod", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Policy{Service: tt.service, Environment: tt.environment}
			if got := p.AppliesTo("checkout", "prod"); got != tt.wantProd {
				t.Errorf("AppliesTo(checkout, prod) = %v, want %v", got, tt.wantProd)
			}
			if got := p.AppliesTo("checkout", "staging"); got != tt.wantStaging {
				t.Errorf("AppliesTo(checkout, staging) = %v, want %v", got, tt.wantStaging)
			}
		})
	}
}

func TestLogLevel_Verbosity(t *testing.T) {
	if LevelDebug.Verbosity() <= LevelInfo.Verbosity() {
		t.Error("DEBUG should be more verbose than INFO")
	}
	if LevelInfo.Verbosity() <= LevelWarn.Verbosity() {
		t.Error("INFO should be more verbose than WARN")
	}
	if LevelWarn.Verbosity() <= LevelError.Verbosity() {
		t.Error("WARN should be more verbose than ERROR")
	}
	if LogLevel("TRACE").Verbosity() >= LevelError.Verbosity() {
		t.Error("unknown level should rank below ERROR")
	}
}
