package engine

import (
	"time"

	"veridian-hq/attune/pkg/policy"
)

// DefaultPolicyID is reported as the matched policy id when no candidate
// matched and the configured default action was applied.
const DefaultPolicyID = "default"

// Decision is the effective observability posture for one
// (service, environment) key. One live instance exists per key; each
// Decide call supersedes it in place.
type Decision struct {
	// Service and Environment identify the key the decision applies to.
	Service     string `json:"service"`
	Environment string `json:"environment"`

	// Action is the posture agents should adopt.
	Action policy.Action `json:"action"`

	// MatchedPolicyID is the id of the policy behind the action, or
	// DefaultPolicyID when the baseline applied.
	MatchedPolicyID string `json:"matched_policy_id"`

	// DecidedAt is when this decision was last computed, whether or not
	// the action changed.
	DecidedAt time.Time `json:"decided_at"`

	// Reason explains how the decision was reached, for operators.
	Reason string `json:"reason"`
}
