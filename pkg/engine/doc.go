// Package engine evaluates policies against signal aggregates and
// produces effective observability decisions.
//
// # Overview
//
// The engine joins two injected collaborators at evaluation time: a
// candidate source (the policy registry) and an aggregate source (the
// signal store). Decide walks the ordered candidates, AND-evaluates each
// candidate's conditions over the current window aggregates, and takes
// the first fully satisfied candidate as the raw match. When nothing
// matches, a configured default action is the raw match.
//
// # Hysteresis
//
// The raw match does not become the effective decision unconditionally.
// A raw match more verbose than the current decision in any dimension
// applies immediately. A less verbose raw match must remain the
// continuous raw match for a configured number of consecutive Decide
// calls (and optionally a minimum elapsed duration) before it replaces
// the current decision. The asymmetry escalates fast and de-escalates
// slowly so a metric hovering near a threshold cannot flap the decision.
//
// # Thread Safety
//
// Decisions are cached per (service, environment) key. Each cache entry
// carries its own lock; Decide calls for the same key are serialized,
// calls for different keys proceed independently.
package engine
