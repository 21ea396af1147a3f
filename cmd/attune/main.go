// Attune is an adaptive observability control plane.
//
// Agents embedded in services push operational signals (latency, error
// rate, feature-flag state) and periodically pull the effective
// observability decision for their service and environment: which log
// level to emit at, what fraction of traces to sample, and how often to
// emit metrics. Policies map signal conditions to those decisions; the
// engine escalates fast and de-escalates slowly to prevent flapping.
//
// Usage:
//
//	# Start the control plane with default configuration
//	attune run
//
//	# Start with a custom configuration file
//	attune run --config /etc/attune/config.yaml
//
//	# Validate a policy file
//	attune validate --policies policies.yaml
//
//	# Show version information
//	attune version
package main

func main() {
	Execute()
}
