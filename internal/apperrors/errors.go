// Package apperrors defines the error kinds shared by the plan pipeline and
// the HTTP layer. Callers classify with errors.Is and errors.As.
package apperrors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrNotFound             = errors.New("not found")
	ErrInvalidState         = errors.New("invalid plan state")
	ErrSubscriptionRequired = errors.New("an active subscription is required")
	ErrUsageLimitExceeded   = errors.New("monthly plan limit reached")
	ErrStructuralGeneration = errors.New("generated plan is missing required sections")
	ErrProviderTransient    = errors.New("generation provider temporarily unavailable")
)

// ValidationError maps a field path to the first message recorded for it.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError returns an empty ValidationError ready for Add.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: map[string]string{}}
}

// Add records msg for field unless the field already has a message.
func (e *ValidationError) Add(field, msg string) {
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

// HasErrors reports whether any field failed.
func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// InvalidState wraps ErrInvalidState with the offending and required statuses.
func InvalidState(action, current, required string) error {
	return fmt.Errorf("%w: cannot %s a plan in status %q (requires %q)", ErrInvalidState, action, current, required)
}

// Transient wraps err as a retryable provider failure.
func Transient(err error) error {
	return fmt.Errorf("%w: %w", ErrProviderTransient, err)
}
