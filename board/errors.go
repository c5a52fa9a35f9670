package board

import (
	"errors"
	"fmt"
)

// Error kinds returned by the mutation gateway. The HTTP layer maps each to a
// specific status code; none of them are retried internally.
var (
	ErrNotFound       = errors.New("task not found")
	ErrStaleWrite     = errors.New("task modified since last fetch")
	ErrNoEligibleUser = errors.New("no eligible user for assignment")
)

// ValidationError reports a rejected field on a mutation request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
