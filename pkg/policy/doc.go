// Package policy defines observability policies and the in-memory registry
// that serves them to the rule engine.
//
// A policy scopes a set of conditions over aggregated signals to a service
// and environment and maps them to an action: the log level, trace sample
// rate, and metric reporting interval the matched service should adopt. All
// of a policy's conditions must hold for it to match (AND semantics).
//
// The registry orders candidates by priority (descending), then specificity
// (number of conditions, descending), then id (ascending). The id tie-break
// makes evaluation deterministic when priorities and specificity collide.
package policy
