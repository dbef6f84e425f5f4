/*
errors.go - Centralized error types for the engine and its stores

PURPOSE:
  All error types in one place for consistency and discoverability.
  The core pipeline never fails on gating or missing joins (those produce
  defaults or undefined values); errors here belong to the surfaces around
  it: loading datasets, persisting runs, and looking results up.

ERROR CATEGORIES:
  1. Input errors - A record failed typing or validation at ingest
  2. Lookup errors - A run or project does not exist
  3. State errors - No dataset has been stored yet

SEE ALSO:
  - store.go: Uses the lookup and state errors
  - dataset/csv.go: Wraps parse failures in RecordError
  - api/handlers.go: Maps these errors to HTTP status codes
*/
package evm

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRecord is returned when an input record cannot be typed or
	// fails validation.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrRunNotFound is returned when a referenced run doesn't exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrProjectNotFound is returned when a project has no rows in a run.
	ErrProjectNotFound = errors.New("project not found")

	// ErrLineNotFound is returned when an SOV line has no rows in a run.
	ErrLineNotFound = errors.New("line not found")

	// ErrNoDataset is returned when a run is requested before any dataset
	// has been stored.
	ErrNoDataset = errors.New("no dataset stored")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RecordError locates a bad input record. Row is 1-based and counts data
// rows, not the header.
type RecordError struct {
	Table string
	Row   int
	Field string
	Err   error
}

func (e *RecordError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s row %d: %v", e.Table, e.Row, e.Err)
	}
	return fmt.Sprintf("%s row %d, field %s: %v", e.Table, e.Row, e.Field, e.Err)
}

func (e *RecordError) Unwrap() []error {
	return []error{ErrInvalidRecord, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRecord) ||
		errors.Is(err, ErrNoDataset)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound) ||
		errors.Is(err, ErrProjectNotFound) ||
		errors.Is(err, ErrLineNotFound)
}
