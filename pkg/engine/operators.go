package engine

import "veridian-hq/attune/pkg/policy"

// evaluate applies a condition operator to an aggregated value. The
// operator set is closed; Validate rejects anything else before a policy
// reaches the engine, so the default arm is unreachable for registered
// policies and fails closed regardless.
func evaluate(op policy.Operator, value, threshold float64) bool {
	switch op {
	case policy.OpLess:
		return value < threshold
	case policy.OpLessEqual:
		return value <= threshold
	case policy.OpGreater:
		return value > threshold
	case policy.OpGreaterEqual:
		return value >= threshold
	case policy.OpEqual:
		return value == threshold
	default:
		return false
	}
}
