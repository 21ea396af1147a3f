// Package metrics exposes Prometheus instrumentation for the control
// plane. Collectors are registered against an injected registry so tests
// can create isolated instances.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config contains configuration for metric registration.
type Config struct {
	// Namespace prefixes all metric names. Default: "attune".
	Namespace string
}

// DefaultConfig returns the metrics defaults.
func DefaultConfig() Config {
	return Config{Namespace: "attune"}
}

// Metrics tracks control plane instrumentation.
//
// Metrics:
//   - attune_signals_ingested_total: Signal observations recorded, by metric
//   - attune_decision_evaluations_total: Decide calls by outcome
//   - attune_decision_evaluation_duration_seconds: Decide latency
//   - attune_decision_changes_total: Effective decision changes by key
//   - attune_signal_windows_active: Signal windows currently held
//   - attune_policies_registered: Policies currently registered
type Metrics struct {
	registry *prometheus.Registry

	signalsIngested    *prometheus.CounterVec
	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	changesTotal       *prometheus.CounterVec
	windowsActive      prometheus.Gauge
	policiesRegistered prometheus.Gauge
}

// New creates and registers the control plane metrics with the provided
// registry. A nil registry gets a fresh one.
func New(cfg Config, registry *prometheus.Registry) *Metrics {
	if cfg.Namespace == "" {
		cfg.Namespace = "attune"
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,

		signalsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "signals_ingested_total",
				Help:      "Total number of signal observations recorded",
			},
			[]string{"metric"},
		),

		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "decision_evaluations_total",
				Help:      "Total number of decision evaluations by outcome",
			},
			[]string{"outcome"},
		),

		evaluationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "decision_evaluation_duration_seconds",
				Help:      "Duration of decision evaluation in seconds",
				// Evaluations are in-memory and should be fast (< 10ms)
				Buckets: prometheus.ExponentialBuckets(0.000001, 2, 15),
			},
		),

		changesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "decision_changes_total",
				Help:      "Total number of effective decision changes",
			},
			[]string{"service", "environment"},
		),

		windowsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "signal_windows_active",
				Help:      "Number of signal windows currently held",
			},
		),

		policiesRegistered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "policies_registered",
				Help:      "Number of policies currently registered",
			},
		),
	}

	registry.MustRegister(
		m.signalsIngested,
		m.evaluationsTotal,
		m.evaluationDuration,
		m.changesTotal,
		m.windowsActive,
		m.policiesRegistered,
	)
	return m
}

// SignalIngested records one accepted observation.
func (m *Metrics) SignalIngested(metric string) {
	m.signalsIngested.WithLabelValues(metric).Inc()
}

// DecisionEvaluated records one Decide call.
func (m *Metrics) DecisionEvaluated(outcome string, elapsed time.Duration) {
	m.evaluationsTotal.WithLabelValues(outcome).Inc()
	m.evaluationDuration.Observe(elapsed.Seconds())
}

// DecisionChanged records an effective decision change.
func (m *Metrics) DecisionChanged(service, environment string) {
	m.changesTotal.WithLabelValues(service, environment).Inc()
}

// SetActiveWindows updates the active window gauge.
func (m *Metrics) SetActiveWindows(n int) {
	m.windowsActive.Set(float64(n))
}

// SetPoliciesRegistered updates the registered policy gauge.
func (m *Metrics) SetPoliciesRegistered(n int) {
	m.policiesRegistered.Set(float64(n))
}

// Handler returns the HTTP handler serving the registry in Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
