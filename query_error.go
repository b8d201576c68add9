package trino

import "fmt"

// QueryError is the structured failure payload the server embeds in a
// response body. It is the FATAL_QUERY outcome of the retry taxonomy:
// surfaced to the caller verbatim, never retried. Message, code and name
// are preserved so callers can distinguish, say, a syntax error from a
// missing-object error.
type QueryError struct {
	// Message is the human-readable error message.
	Message string `json:"message"`

	// ErrorCode is a numeric code identifying the error type.
	ErrorCode int `json:"errorCode"`

	// ErrorName is a string identifier for the error type.
	ErrorName string `json:"errorName"`

	// ErrorType categorizes the error (e.g. "USER_ERROR", "INTERNAL_ERROR").
	ErrorType string `json:"errorType"`

	// Retriable is the server's own opinion on whether resubmitting the
	// whole statement could succeed. The client never acts on it within a
	// query; it is informational for the caller.
	Retriable bool `json:"retriable"`

	// ErrorLocation carries line/column positions for syntax errors.
	ErrorLocation *ErrorLocation `json:"errorLocation,omitempty"`

	// FailureInfo holds the server-side failure detail tree.
	FailureInfo *FailureInfo `json:"failureInfo,omitempty"`
}

// Error implements the error interface.
func (q *QueryError) Error() string {
	if q == nil {
		return "nil QueryError"
	}
	if q.ErrorName == "" {
		return q.Message
	}
	return fmt.Sprintf("%s: %s", q.ErrorName, q.Message)
}

// ErrorLocation is the position in the SQL text where an error occurred.
type ErrorLocation struct {
	// LineNumber is the 1-based line number in the SQL query.
	LineNumber int `json:"lineNumber"`

	// ColumnNumber is the 1-based column number in the SQL query.
	ColumnNumber int `json:"columnNumber"`
}

// String returns "line LineNumber:ColumnNumber".
func (e *ErrorLocation) String() string {
	return fmt.Sprintf("line %d:%d", e.LineNumber, e.ColumnNumber)
}

// FailureInfo is the server-side exception detail, with nested causes.
type FailureInfo struct {
	// Type is the server-side exception class name.
	Type string `json:"type"`

	// Message is the exception message.
	Message string `json:"message,omitempty"`

	// Cause is the nested failure that caused this one.
	Cause *FailureInfo `json:"cause,omitempty"`

	// Suppressed contains any suppressed failures.
	Suppressed []FailureInfo `json:"suppressed,omitempty"`

	// Stack contains the stack trace elements.
	Stack []string `json:"stack,omitempty"`

	// ErrorLocation carries line/column positions for syntax errors.
	ErrorLocation *ErrorLocation `json:"errorLocation,omitempty"`
}
