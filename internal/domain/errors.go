package domain

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrBookNotFound    = fmt.Errorf("book %w", ErrNotFound)
	ErrLoanNotFound    = fmt.Errorf("loan %w", ErrNotFound)
	ErrStudentNotFound = fmt.Errorf("student %w", ErrNotFound)

	ErrNoCapacity         = errors.New("no copies available")
	ErrDuplicateLoan      = errors.New("student already has an open loan for this book")
	ErrDuplicate          = errors.New("record already exists")
	ErrInvalidTransition  = errors.New("invalid loan transition")
	ErrInvalidRating      = errors.New("rating must be between 1 and 5")
	ErrInventoryInvariant = errors.New("available copies out of range")
	ErrModelUnavailable   = errors.New("embedding model unavailable")
)

// TransitionError reports a state change the loan state machine does not allow.
type TransitionError struct {
	From LoanStatus
	To   LoanStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid loan transition: %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ErrInvalidInput marks request data that failed validation.
var ErrInvalidInput = errors.New("invalid input")

// ValidationError lists the offending fields and why each failed.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + " " + e.Fields[k]
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}
