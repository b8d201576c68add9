package trino

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/71nn/trino-go-client/utils"
)

// Outcome classifies the result of one HTTP exchange with the server.
type Outcome int8

const (
	// OutcomeSuccess is a 200 or 204 response; the body still has to parse.
	OutcomeSuccess Outcome = iota
	// OutcomeRetryableTransport is a transient network or gateway failure
	// (connection reset, dial timeout, 502/504).
	OutcomeRetryableTransport
	// OutcomeRetryableServerBusy is the coordinator's overload signal (503).
	OutcomeRetryableServerBusy
	// OutcomeFatalTransport is a network failure that must not be retried,
	// such as a timeout after a submission may have reached the server.
	OutcomeFatalTransport
	// OutcomeFatalProtocol is a response body that failed to parse.
	OutcomeFatalProtocol
	// OutcomeFatalQuery is a structured error payload from the server.
	OutcomeFatalQuery
)

var outcomeNames = utils.NewBiMap(map[Outcome]string{
	OutcomeSuccess:             "SUCCESS",
	OutcomeRetryableTransport:  "RETRYABLE_TRANSPORT",
	OutcomeRetryableServerBusy: "RETRYABLE_SERVER_BUSY",
	OutcomeFatalTransport:      "FATAL_TRANSPORT",
	OutcomeFatalProtocol:       "FATAL_PROTOCOL",
	OutcomeFatalQuery:          "FATAL_QUERY",
})

// String returns the outcome's wire-style name.
func (o Outcome) String() string {
	if name, ok := outcomeNames.Lookup(o); ok {
		return name
	}
	return "UNKNOWN"
}

// Retryable reports whether the outcome permits another attempt of the
// same exchange.
func (o Outcome) Retryable() bool {
	return o == OutcomeRetryableTransport || o == OutcomeRetryableServerBusy
}

// exchangeKind distinguishes the initial statement submission from
// follow-up polling. Submission is the only exchange the server may have
// started executing with side effects, so its retry rules are stricter.
type exchangeKind int8

const (
	exchangeSubmit exchangeKind = iota
	exchangeAdvance
	exchangeCancel
)

// RetryPolicy classifies exchange outcomes and computes backoff delays.
// The attempt counter resets per logical exchange: the submit and each
// advance are counted independently.
type RetryPolicy struct {
	// MaxAttempts is the hard ceiling on exchanges per submit/advance.
	MaxAttempts int

	// BaseDelay is the first backoff interval.
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration
}

// DefaultRetryPolicy mirrors the protocol defaults: three attempts,
// 100ms base delay, 2s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// newBackOff builds the jittered capped exponential delay source for one
// logical exchange.
func (p RetryPolicy) newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.BaseDelay
	bo.MaxInterval = p.MaxDelay
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// Classify maps one exchange result onto the outcome taxonomy. Exactly one
// of resp/err is meaningful: err is the transport error from the HTTP
// round trip, resp the received response (its body is not consumed here).
func (p RetryPolicy) Classify(kind exchangeKind, resp *http.Response, err error) Outcome {
	if err != nil {
		// Caller-driven cancellation is never retried.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return OutcomeFatalTransport
		}
		if isDialError(err) {
			// The connection was never established, so the server cannot
			// have seen the statement. Safe for every exchange kind.
			return OutcomeRetryableTransport
		}
		if kind == exchangeSubmit {
			// The request may have reached the server before the failure.
			// Resubmitting could execute the statement twice, so the
			// ambiguity is surfaced instead of retried.
			return OutcomeFatalTransport
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			return OutcomeRetryableTransport
		}
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return OutcomeRetryableTransport
		}
		return OutcomeFatalTransport
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return OutcomeSuccess
	case http.StatusServiceUnavailable:
		return OutcomeRetryableServerBusy
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		return OutcomeRetryableTransport
	default:
		return OutcomeFatalTransport
	}
}

// isDialError reports whether the failure happened while establishing the
// connection, strictly before the server could have acknowledged receipt.
func isDialError(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
