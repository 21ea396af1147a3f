package engine

import "veridian-hq/attune/pkg/policy"

// moreVerbose reports whether action a turns observability up relative to
// b in at least one dimension: a more verbose log level, a higher trace
// sample rate, or a shorter metric interval. Escalations along any single
// dimension apply without dwell.
func moreVerbose(a, b policy.Action) bool {
	if a.LogLevel.Verbosity() > b.LogLevel.Verbosity() {
		return true
	}
	if a.TraceSampleRate > b.TraceSampleRate {
		return true
	}
	if a.MetricIntervalSeconds > 0 && b.MetricIntervalSeconds > 0 &&
		a.MetricIntervalSeconds < b.MetricIntervalSeconds {
		return true
	}
	return false
}
