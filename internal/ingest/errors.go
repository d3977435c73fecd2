package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks empty or malformed input.
	ErrValidation = errors.New("ingest: invalid input")
	// ErrShape marks a payload whose structure matches none of the known shapes.
	ErrShape = errors.New("ingest: unrecognized payload shape")
	// ErrMapping marks a record that cannot be canonicalized.
	ErrMapping = errors.New("ingest: mapping failed")
)

// MappingError describes the record and field that failed canonicalization.
type MappingError struct {
	Index  int
	Field  string
	Reason string
}

func (e *MappingError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("record %d: field %q: %s", e.Index, e.Field, e.Reason)
	}
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

// Unwrap lets callers match with errors.Is(err, ErrMapping).
func (e *MappingError) Unwrap() error {
	return ErrMapping
}

func mappingErr(field, format string, args ...any) *MappingError {
	return &MappingError{Index: -1, Field: field, Reason: fmt.Sprintf(format, args...)}
}
