package storage

import (
	"context"
	"fmt"

	"veridian-hq/attune/pkg/policy"
)

// Backend defines the interface for policy persistence.
// Implementations must be thread-safe.
type Backend interface {
	// SavePolicy persists a policy, replacing any previous version with
	// the same id.
	SavePolicy(ctx context.Context, p *policy.Policy) error

	// DeletePolicy removes a policy by id. No-op if the id is unknown.
	DeletePolicy(ctx context.Context, id string) error

	// LoadAll returns every persisted policy. Returns an empty slice when
	// nothing is stored.
	LoadAll(ctx context.Context) ([]*policy.Policy, error)

	// Close releases any resources held by the backend.
	Close() error
}

// UnavailableError indicates the persistence backend could not be reached.
// Callers are expected to keep serving from the in-memory registry and
// retry.
type UnavailableError struct {
	Op    string
	Cause error
}

// Error returns the error message.
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("policy storage unavailable during %s: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *UnavailableError) Unwrap() error {
	return e.Cause
}
