package policy

import "fmt"

// ValidationError indicates a policy failed validation. The policy is never
// partially applied.
type ValidationError struct {
	PolicyID string
	Errors   []string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("policy %q: validation error: %s", e.PolicyID, e.Errors[0])
	}
	return fmt.Sprintf("policy %q: %d validation errors: %v", e.PolicyID, len(e.Errors), e.Errors)
}

// NotFoundError indicates a policy id is not registered.
type NotFoundError struct {
	PolicyID string
}

// Error returns the error message.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("policy not found: %q", e.PolicyID)
}
