package trino

import (
	"errors"
	"fmt"
)

// ErrNoActiveQuery is returned by Cancel when no query has been executed or
// the current query has already reached a terminal phase. It is a
// ProgrammingError so callers can detect cancel-after-completion races
// instead of treating cancellation as a silent no-op.
var ErrNoActiveQuery = &ProgrammingError{Message: "no active query to cancel"}

// ProgrammingError indicates the caller misused the API: malformed
// parameters, fetching before Execute, or cancelling with no active query.
type ProgrammingError struct {
	Message string
}

// Error implements the error interface.
func (e *ProgrammingError) Error() string {
	return "trino: " + e.Message
}

// Is allows errors.Is(err, ErrNoActiveQuery) to match by message so the
// sentinel survives wrapping.
func (e *ProgrammingError) Is(target error) bool {
	var pe *ProgrammingError
	if errors.As(target, &pe) {
		return e.Message == pe.Message
	}
	return false
}

// TransportError indicates a network-level failure that survived retries.
// It carries the last classified outcome, the HTTP status (if any response
// was received) and the number of attempts made.
type TransportError struct {
	Outcome    Outcome
	Attempts   int
	StatusCode int
	Body       string
	Err        error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("trino: transport failure after %d attempts (status %d): %s", e.Attempts, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("trino: transport failure after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap exposes the underlying network error, when there is one.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError indicates the server response could not be parsed as a
// well-formed statement-protocol payload.
type ProtocolError struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("trino: protocol error: %s: %v", e.Message, e.Err)
	}
	return "trino: protocol error: " + e.Message
}

// Unwrap exposes the underlying decode error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// UnsupportedParameterTypeError indicates the parameter encoder cannot
// represent a native Go value as a SQL literal. It is raised before any
// network call is made.
type UnsupportedParameterTypeError struct {
	Value any
}

// Error implements the error interface.
func (e *UnsupportedParameterTypeError) Error() string {
	return fmt.Sprintf("trino: unsupported parameter type %T", e.Value)
}
