package trino

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func respWithStatus(code int) *http.Response {
	return &http.Response{StatusCode: code}
}

func dialFailure() error {
	return &url.Error{
		Op:  "Post",
		URL: "http://localhost:8080/v1/statement",
		Err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
	}
}

func readFailure() error {
	return &url.Error{
		Op:  "Post",
		URL: "http://localhost:8080/v1/statement",
		Err: &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")},
	}
}

func TestClassify_StatusCodes(t *testing.T) {
	p := DefaultRetryPolicy()

	cases := map[int]Outcome{
		http.StatusOK:                  OutcomeSuccess,
		http.StatusNoContent:           OutcomeSuccess,
		http.StatusServiceUnavailable:  OutcomeRetryableServerBusy,
		http.StatusBadGateway:          OutcomeRetryableTransport,
		http.StatusGatewayTimeout:      OutcomeRetryableTransport,
		http.StatusUnauthorized:        OutcomeFatalTransport,
		http.StatusNotFound:            OutcomeFatalTransport,
		http.StatusInternalServerError: OutcomeFatalTransport,
	}
	for code, want := range cases {
		assert.Equal(t, want, p.Classify(exchangeSubmit, respWithStatus(code), nil), "status %d", code)
		assert.Equal(t, want, p.Classify(exchangeAdvance, respWithStatus(code), nil), "status %d", code)
	}
}

func TestClassify_TransportErrors(t *testing.T) {
	p := DefaultRetryPolicy()

	t.Run("Dial failure is retryable for every exchange", func(t *testing.T) {
		assert.Equal(t, OutcomeRetryableTransport, p.Classify(exchangeSubmit, nil, dialFailure()))
		assert.Equal(t, OutcomeRetryableTransport, p.Classify(exchangeAdvance, nil, dialFailure()))
		assert.Equal(t, OutcomeRetryableTransport, p.Classify(exchangeCancel, nil, dialFailure()))
	})

	t.Run("Post-connect failure on submit is fatal", func(t *testing.T) {
		// The statement may already be executing; resubmitting could run
		// it twice.
		assert.Equal(t, OutcomeFatalTransport, p.Classify(exchangeSubmit, nil, readFailure()))
	})

	t.Run("Post-connect failure while polling is retryable", func(t *testing.T) {
		assert.Equal(t, OutcomeRetryableTransport, p.Classify(exchangeAdvance, nil, readFailure()))
		assert.Equal(t, OutcomeRetryableTransport, p.Classify(exchangeCancel, nil, readFailure()))
	})

	t.Run("Caller cancellation is never retried", func(t *testing.T) {
		assert.Equal(t, OutcomeFatalTransport, p.Classify(exchangeAdvance, nil, context.Canceled))
		assert.Equal(t, OutcomeFatalTransport, p.Classify(exchangeAdvance, nil, context.DeadlineExceeded))
		wrapped := &url.Error{Op: "Get", URL: "http://x", Err: context.DeadlineExceeded}
		assert.Equal(t, OutcomeFatalTransport, p.Classify(exchangeAdvance, nil, wrapped))
	})

	t.Run("Unrecognized error is fatal", func(t *testing.T) {
		assert.Equal(t, OutcomeFatalTransport, p.Classify(exchangeAdvance, nil, errors.New("boom")))
	})
}

func TestOutcome_Names(t *testing.T) {
	assert.Equal(t, "SUCCESS", OutcomeSuccess.String())
	assert.Equal(t, "RETRYABLE_TRANSPORT", OutcomeRetryableTransport.String())
	assert.Equal(t, "RETRYABLE_SERVER_BUSY", OutcomeRetryableServerBusy.String())
	assert.Equal(t, "FATAL_TRANSPORT", OutcomeFatalTransport.String())
	assert.Equal(t, "FATAL_PROTOCOL", OutcomeFatalProtocol.String())
	assert.Equal(t, "FATAL_QUERY", OutcomeFatalQuery.String())
	assert.Equal(t, "UNKNOWN", Outcome(42).String())
}

func TestOutcome_Retryable(t *testing.T) {
	assert.True(t, OutcomeRetryableTransport.Retryable())
	assert.True(t, OutcomeRetryableServerBusy.Retryable())
	assert.False(t, OutcomeSuccess.Retryable())
	assert.False(t, OutcomeFatalTransport.Retryable())
	assert.False(t, OutcomeFatalQuery.Retryable())
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, p.BaseDelay)
	assert.Equal(t, 2*time.Second, p.MaxDelay)
}

func TestRetryPolicy_BackOffIsCappedAndJittered(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}
	bo := p.newBackOff()

	for i := 0; i < 20; i++ {
		d := bo.NextBackOff()
		require.Greater(t, d, time.Duration(0))
		// The implementation's randomization factor keeps delays within
		// 1.5x of the configured cap.
		assert.LessOrEqual(t, d, 75*time.Millisecond)
	}
}
