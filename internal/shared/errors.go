package shared

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error categories. Domain packages wrap one of these with %w so callers can
// branch on the category without knowing every sentinel.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks caller-correctable input failures.
	ErrValidation = errors.New("validation failed")
	// ErrPrecondition marks missing configuration or seed data required by an operation.
	ErrPrecondition = errors.New("precondition failed")
	// ErrConcurrency marks transient lock or serialization conflicts; the operation may be retried.
	ErrConcurrency = errors.New("concurrent update conflict")
	// ErrConflict marks state conflicts such as duplicates or invalid transitions.
	ErrConflict = errors.New("conflict")
)

// MissingAccountsError reports required account codes that are not configured for a tenant.
type MissingAccountsError struct {
	Codes []string
}

// NewMissingAccountsError returns nil when codes is empty.
func NewMissingAccountsError(codes []string) error {
	if len(codes) == 0 {
		return nil
	}
	sorted := append([]string(nil), codes...)
	sort.Strings(sorted)
	return &MissingAccountsError{Codes: sorted}
}

func (e *MissingAccountsError) Error() string {
	return fmt.Sprintf("required accounts not configured: %s", strings.Join(e.Codes, ", "))
}

// Unwrap classifies the error as a precondition failure.
func (e *MissingAccountsError) Unwrap() error {
	return ErrPrecondition
}
