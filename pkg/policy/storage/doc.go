// Package storage provides pluggable persistence for registered policies.
//
// The control plane keeps its working policy set in the in-memory registry;
// a Backend only has to survive restarts. MemoryBackend is the default and
// matches the reference behavior (policies live and die with the process).
// SQLiteBackend persists the set to a local database file for
// single-instance deployments.
package storage
