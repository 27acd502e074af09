package ids

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrReadOnly is returned when mutating a lazy loaded IDS.
	ErrReadOnly = errors.New("lazy loaded IDS is read-only")
	// ErrUnknownField is returned for names that the DD does not define.
	ErrUnknownField = errors.New("unknown field")
	// ErrCoordinate is returned when a coordinate or path cannot be resolved.
	ErrCoordinate = errors.New("coordinate error")
	// ErrType is returned when a value cannot be cast to the node's data type.
	ErrType = errors.New("incompatible value")
	// ErrIndex is returned for out of range array-of-structure indices.
	ErrIndex = errors.New("index out of range")
)

// ValidationError reports the first validation problem found in an IDS.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation of %s failed: %s", e.Path, e.Reason)
}

// LoadErrors aggregates lazy loading failures of a toplevel.
type LoadErrors []error

func (e LoadErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return "lazy loading failed: " + strings.Join(msgs, "; ")
}

// Unwrap lets errors.Is/As inspect the individual failures.
func (e LoadErrors) Unwrap() []error { return e }
