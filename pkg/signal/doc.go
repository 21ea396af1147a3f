// Package signal implements the rolling signal store for the control plane.
//
// # Overview
//
// Agents report timestamped metric observations (latency, error rate, and so
// on) keyed by service, environment, and metric name. The store keeps each
// key's observations in a time-bounded window and serves derived aggregates
// (average, max, count, rate, p95) to the rule engine. Raw observations never
// leave the store.
//
// # Eviction
//
// Observations are pruned opportunistically on every Record and Aggregate
// call for the touched key, so memory stays bounded to keys actively
// receiving traffic. A cron-driven Janitor reclaims windows for keys that
// have gone idle entirely.
//
// # Thread safety
//
// The store supports concurrent Record and Aggregate calls. Each key's
// window has its own mutex; unrelated keys never contend beyond the
// short-lived lookup lock on the key map.
package signal
