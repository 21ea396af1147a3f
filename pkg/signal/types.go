package signal

import (
	"fmt"
	"time"
)

// Key identifies a single signal window.
type Key struct {
	// Service is the reporting service name.
	Service string

	// Environment is the deployment environment (prod, staging, ...).
	Environment string

	// Metric is the metric name (error_rate, latency_ms, ...).
	Metric string
}

// String returns the composite key form used in logs and metrics labels.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Service, k.Environment, k.Metric)
}

// Observation is a single reported metric sample. Observations are immutable
// once recorded and are evicted when they age out of their window.
type Observation struct {
	// Service is the reporting service name.
	Service string

	// Environment is the deployment environment.
	Environment string

	// Metric is the metric name.
	Metric string

	// Value is the observed value.
	Value float64

	// Timestamp is when the observation was taken. The transport defaults
	// it to receipt time when the agent does not supply one.
	Timestamp time.Time
}

// Key returns the window key for this observation.
func (o Observation) Key() Key {
	return Key{Service: o.Service, Environment: o.Environment, Metric: o.Metric}
}

// Aggregate identifies how a window is reduced to a single value.
type Aggregate string

const (
	// AggregateAvg is the arithmetic mean of the windowed values.
	AggregateAvg Aggregate = "avg"

	// AggregateMax is the maximum windowed value.
	AggregateMax Aggregate = "max"

	// AggregateCount is the number of observations in the window.
	AggregateCount Aggregate = "count"

	// AggregateRate is observations per second over the window duration.
	AggregateRate Aggregate = "rate"

	// AggregateP95 is the 95th percentile of the windowed values.
	AggregateP95 Aggregate = "p95"
)

// ParseAggregate parses an aggregate name.
func ParseAggregate(s string) (Aggregate, error) {
	switch Aggregate(s) {
	case AggregateAvg, AggregateMax, AggregateCount, AggregateRate, AggregateP95:
		return Aggregate(s), nil
	default:
		return "", fmt.Errorf("unknown aggregate: %q", s)
	}
}
