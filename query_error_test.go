package trino

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryError_Error(t *testing.T) {
	t.Run("With error name", func(t *testing.T) {
		qe := &QueryError{Message: "mismatched input 'FRMO'", ErrorName: "SYNTAX_ERROR"}
		assert.Equal(t, "SYNTAX_ERROR: mismatched input 'FRMO'", qe.Error())
	})

	t.Run("Message only", func(t *testing.T) {
		qe := &QueryError{Message: "something failed"}
		assert.Equal(t, "something failed", qe.Error())
	})

	t.Run("Nil receiver", func(t *testing.T) {
		var qe *QueryError
		assert.Equal(t, "nil QueryError", qe.Error())
	})
}

func TestQueryError_Unmarshal(t *testing.T) {
	payload := `{
		"message": "line 1:1: mismatched input 'FRMO'. Expecting: 'FROM'",
		"errorCode": 1,
		"errorName": "SYNTAX_ERROR",
		"errorType": "USER_ERROR",
		"retriable": false,
		"errorLocation": {"lineNumber": 1, "columnNumber": 1},
		"failureInfo": {
			"type": "io.trino.sql.parser.ParsingException",
			"message": "line 1:1: mismatched input 'FRMO'",
			"cause": {"type": "org.antlr.v4.runtime.InputMismatchException"}
		}
	}`

	var qe QueryError
	require.NoError(t, json.Unmarshal([]byte(payload), &qe))

	assert.Equal(t, 1, qe.ErrorCode)
	assert.Equal(t, "SYNTAX_ERROR", qe.ErrorName)
	assert.Equal(t, "USER_ERROR", qe.ErrorType)
	assert.False(t, qe.Retriable)
	require.NotNil(t, qe.ErrorLocation)
	assert.Equal(t, "line 1:1", qe.ErrorLocation.String())
	require.NotNil(t, qe.FailureInfo)
	assert.Equal(t, "io.trino.sql.parser.ParsingException", qe.FailureInfo.Type)
	require.NotNil(t, qe.FailureInfo.Cause)
}

func TestProgrammingError_Sentinel(t *testing.T) {
	assert.True(t, errors.Is(ErrNoActiveQuery, ErrNoActiveQuery))
	assert.False(t, errors.Is(&ProgrammingError{Message: "other"}, ErrNoActiveQuery))
	assert.Contains(t, ErrNoActiveQuery.Error(), "no active query")
}

func TestTransportError_Formatting(t *testing.T) {
	t.Run("With status", func(t *testing.T) {
		te := &TransportError{Outcome: OutcomeFatalTransport, Attempts: 1, StatusCode: 401, Body: "Unauthorized"}
		assert.Contains(t, te.Error(), "status 401")
		assert.Contains(t, te.Error(), "1 attempts")
	})

	t.Run("Wrapped cause survives", func(t *testing.T) {
		cause := errors.New("connection refused")
		te := &TransportError{Outcome: OutcomeRetryableTransport, Attempts: 3, Err: cause}
		assert.True(t, errors.Is(te, cause))
	})
}

func TestProtocolError_Formatting(t *testing.T) {
	cause := errors.New("unexpected EOF")
	pe := &ProtocolError{Message: "malformed statement response", Err: cause}
	assert.Contains(t, pe.Error(), "protocol error")
	assert.True(t, errors.Is(pe, cause))

	bare := &ProtocolError{Message: "server sent data before column metadata"}
	assert.Contains(t, bare.Error(), "column metadata")
}
