package engine

import "fmt"

// UnavailableError indicates a decision could not be computed because a
// collaborator (policy or signal source) failed. Clients should keep
// applying their last known decision until the control plane recovers.
type UnavailableError struct {
	Service     string
	Environment string
	Cause       error
}

// Error returns the error message.
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("decision unavailable for %s/%s: %v", e.Service, e.Environment, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *UnavailableError) Unwrap() error {
	return e.Cause
}
