// Package coreerr defines the error taxonomy surfaced by the dedup core.
//
// The dedup core's storage, matching, merge, backup and import packages
// return (or wrap) a *CoreError on failure so the CLI/RPC boundary can
// branch on a stable Kind. The config loader and the CLI commands
// themselves return plain wrapped errors.
package coreerr

import (
	"errors"
	"fmt"
)

// Kind tags the class of failure. Stable across releases — callers branch on
// Kind, not on the message text.
type Kind string

const (
	// NotInitialized means the Store was used before Open/Migrate.
	NotInitialized Kind = "not_initialized"
	// MigrationRequired means the schema is older than the code and pending
	// migrations exist.
	MigrationRequired Kind = "migration_required"
	// MigrationForward means the stored schema version exceeds what this
	// build knows how to read.
	MigrationForward Kind = "migration_forward"
	// NotFound means a requested group or record does not exist.
	NotFound Kind = "not_found"
	// InvariantViolation means a precondition like "primary is a member" or
	// "at least two matches" failed.
	InvariantViolation Kind = "invariant_violation"
	// Conflict means a status transition was attempted from a terminal
	// state, or would otherwise violate the group state machine.
	Conflict Kind = "conflict"
	// External means the CRM client collaborator failed.
	External Kind = "external"
	// Io means a backup file or database file operation failed.
	Io Kind = "io"
	// Cancelled means an analysis run was aborted mid-run by a cancellation
	// signal.
	Cancelled Kind = "cancelled"
)

// CoreError is the error type every core operation returns on failure.
type CoreError struct {
	Kind Kind
	// Message is human-readable and safe to show to an operator.
	Message string
	// StatusCode is the HTTP status code from the external collaborator,
	// when Kind == External and one was available.
	StatusCode int
	// Err is the underlying cause, if any, for %w-style unwrapping.
	Err error
}

func (e *CoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CoreError) Unwrap() error { return e.Err }

// New creates a CoreError with no underlying cause.
func New(kind Kind, message string) *CoreError {
	return &CoreError{Kind: kind, Message: message}
}

// Wrap creates a CoreError wrapping an underlying cause.
func Wrap(kind Kind, message string, err error) *CoreError {
	return &CoreError{Kind: kind, Message: message, Err: err}
}

// WithStatus creates an External CoreError carrying an HTTP status code.
func WithStatus(message string, statusCode int, err error) *CoreError {
	return &CoreError{Kind: External, Message: message, StatusCode: statusCode, Err: err}
}

// Is reports whether err is a *CoreError of the given kind.
func Is(err error, kind Kind) bool {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}
