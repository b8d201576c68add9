package trino

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/71nn/trino-go-client/utils"
)

// QueryPhase is the client-side life-cycle phase of one query. Phases
// advance strictly forward; FINISHED, FAILED and CANCELLED are terminal.
type QueryPhase int8

const (
	PhaseInitial QueryPhase = iota
	PhaseQueued
	PhaseRunning
	PhaseFinished
	PhaseFailed
	PhaseCancelled
)

var phaseNames = utils.NewBiMap(map[QueryPhase]string{
	PhaseInitial:   "INITIAL",
	PhaseQueued:    "QUEUED",
	PhaseRunning:   "RUNNING",
	PhaseFinished:  "FINISHED",
	PhaseFailed:    "FAILED",
	PhaseCancelled: "CANCELLED",
})

// String returns the phase name.
func (p QueryPhase) String() string {
	if name, ok := phaseNames.Lookup(p); ok {
		return name
	}
	return "UNKNOWN"
}

// Terminal reports whether the phase is final.
func (p QueryPhase) Terminal() bool {
	return p == PhaseFinished || p == PhaseFailed || p == PhaseCancelled
}

// parsePhase maps a server state string onto a phase. Server-side
// intermediate states (PLANNING, STARTING, FINISHING, ...) that have no
// client-side phase count as RUNNING.
func parsePhase(state string) QueryPhase {
	if phase, ok := phaseNames.RLookup(state); ok {
		return phase
	}
	return PhaseRunning
}

// ResultPage is one parsed, decoded slice of query results. It is
// immutable once built and consumed exactly once by the cursor.
type ResultPage struct {
	QueryID     string
	Columns     []Column
	Rows        [][]any
	Stats       StatementStats
	Warnings    []Warning
	UpdateType  string
	UpdateCount *int64

	// Final marks the last page of the query.
	Final bool
}

// QueryExecutor drives one query through the statement protocol:
// submit, poll, paginate, terminate. It owns the Query state (id, phase,
// next-uri, stats) and folds response headers into the shared
// TransactionContext before each page is handed out. One executor runs
// one query at a time; a new Execute replaces the previous query.
type QueryExecutor struct {
	client *Client
	tc     *TransactionContext
	policy RetryPolicy

	mu      sync.Mutex
	queryID string
	phase   QueryPhase
	nextURI string
	stats   StatementStats
	columns []Column
	sigs    []TypeSignature
	lastErr error
}

// NewQueryExecutor binds an executor to a transport client and the
// connection's transaction context.
func NewQueryExecutor(client *Client, tc *TransactionContext, policy RetryPolicy) *QueryExecutor {
	return &QueryExecutor{
		client: client,
		tc:     tc,
		policy: policy,
		phase:  PhaseInitial,
	}
}

// QueryID returns the server-assigned query identifier, "" before the
// first response arrives.
func (e *QueryExecutor) QueryID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queryID
}

// Phase returns the current life-cycle phase.
func (e *QueryExecutor) Phase() QueryPhase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Stats returns the last-known statistics snapshot. Counters never
// decrease across pages of one query.
func (e *QueryExecutor) Stats() StatementStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Execute submits a statement, replacing any previous query on this
// executor. When params are present the statement is wrapped as
// EXECUTE <name> USING <literals> with the prepared-statement header
// carrying the original SQL, so the server performs the substitution.
// Parameter encoding failures surface before any network call.
func (e *QueryExecutor) Execute(ctx context.Context, sql string, params []any) (*ResultPage, error) {
	body := sql
	preparedName, preparedSQL := "", ""
	if len(params) > 0 {
		literals := make([]string, len(params))
		for i, p := range params {
			lit, err := EncodeValue(p)
			if err != nil {
				return nil, err
			}
			literals[i] = lit
		}
		preparedName = "st_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		preparedSQL = sql
		body = "EXECUTE " + preparedName + " USING " + strings.Join(literals, ", ")
	}

	e.mu.Lock()
	e.queryID = ""
	e.phase = PhaseInitial
	e.nextURI = ""
	e.stats = StatementStats{}
	e.columns = nil
	e.sigs = nil
	e.lastErr = nil
	e.mu.Unlock()

	builder := statementRequest{client: e.client, tc: e.tc}
	qr, err := e.exchange(ctx, exchangeSubmit, func() (*http.Request, error) {
		return builder.submit(body, preparedName, preparedSQL)
	})
	if err != nil {
		e.fail(err)
		return nil, err
	}
	return e.absorbPage(qr)
}

// Advance follows the current next-uri and returns the next page. It
// returns (nil, nil) once the query is terminal. A retried advance
// re-requests the same unconsumed next-uri, which the protocol guarantees
// to be idempotent, so no rows are dropped by mid-pagination retries.
func (e *QueryExecutor) Advance(ctx context.Context) (*ResultPage, error) {
	e.mu.Lock()
	if e.phase == PhaseInitial {
		e.mu.Unlock()
		return nil, &ProgrammingError{Message: "no query has been executed"}
	}
	if e.phase.Terminal() || e.nextURI == "" {
		err := e.lastErr
		e.mu.Unlock()
		return nil, err
	}
	nextURI := e.nextURI
	e.mu.Unlock()

	builder := statementRequest{client: e.client, tc: e.tc}
	qr, err := e.exchange(ctx, exchangeAdvance, func() (*http.Request, error) {
		return builder.page(nextURI)
	})
	if err != nil {
		e.fail(err)
		return nil, err
	}
	return e.absorbPage(qr)
}

// Cancel issues a DELETE to the current next-uri and transitions the
// query to CANCELLED. It returns ErrNoActiveQuery when nothing has been
// executed or the query is already terminal, so cancel-after-completion
// races are observable instead of silently succeeding. Safe to call from
// a goroutine other than the one driving fetches.
func (e *QueryExecutor) Cancel(ctx context.Context) error {
	e.mu.Lock()
	if e.phase == PhaseInitial || e.phase.Terminal() || e.nextURI == "" {
		e.mu.Unlock()
		return ErrNoActiveQuery
	}
	nextURI := e.nextURI
	queryID := e.queryID
	e.phase = PhaseCancelled
	e.nextURI = ""
	e.mu.Unlock()

	builder := statementRequest{client: e.client, tc: e.tc}
	_, err := e.exchange(ctx, exchangeCancel, func() (*http.Request, error) {
		return builder.cancel(nextURI)
	})
	if err != nil {
		log.Debug().Err(err).Str("query_id", queryID).Msg("query cancellation request failed")
		return err
	}
	log.Debug().Str("query_id", queryID).Msg("query cancelled")
	return nil
}

// fail records a terminal failure.
func (e *QueryExecutor) fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.phase.Terminal() {
		e.phase = PhaseFailed
	}
	e.lastErr = err
	e.nextURI = ""
}

// absorbPage folds one parsed response into the executor's Query state
// and decodes its rows. Column signatures are parsed once, on the first
// page that carries column metadata, and reused for every later page.
func (e *QueryExecutor) absorbPage(qr *QueryResults) (*ResultPage, error) {
	e.mu.Lock()

	if e.queryID == "" {
		e.queryID = qr.ID
	}
	e.stats.mergeMax(qr.Stats)

	if len(qr.Columns) > 0 && e.columns == nil {
		sigs := make([]TypeSignature, len(qr.Columns))
		for i, col := range qr.Columns {
			sig, err := ParseTypeSignature(col.Type)
			if err != nil {
				e.mu.Unlock()
				perr := &ProtocolError{Message: fmt.Sprintf("invalid column type signature %q", col.Type), Err: err}
				e.fail(perr)
				return nil, perr
			}
			sigs[i] = sig
		}
		e.columns = qr.Columns
		e.sigs = sigs
	}

	final := qr.NextURI == nil
	switch {
	case e.phase == PhaseCancelled:
		// A cancel raced this page. Deliver the page in hand; pagination
		// stops because nextURI stays cleared.
		final = true
	case final:
		e.phase = PhaseFinished
		e.nextURI = ""
	default:
		next := parsePhase(qr.Stats.State)
		// Phases only move forward.
		if next > e.phase && !next.Terminal() {
			e.phase = next
		} else if e.phase == PhaseInitial {
			e.phase = PhaseQueued
		}
		e.nextURI = *qr.NextURI
	}

	columns := e.columns
	sigs := e.sigs
	stats := e.stats
	queryID := e.queryID
	e.mu.Unlock()

	rows, err := decodeRows(qr.Data, sigs)
	if err != nil {
		e.fail(err)
		return nil, err
	}

	page := &ResultPage{
		QueryID:     queryID,
		Columns:     columns,
		Rows:        rows,
		Stats:       stats,
		Warnings:    qr.Warnings,
		UpdateCount: qr.UpdateCount,
		Final:       final,
	}
	if qr.UpdateType != nil {
		page.UpdateType = *qr.UpdateType
	}
	return page, nil
}

// decodeRows decodes the raw wire rows against the parsed column
// signatures. No suspension happens here; pages decode synchronously once
// received.
func decodeRows(data []json.RawMessage, sigs []TypeSignature) ([][]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if sigs == nil {
		return nil, &ProtocolError{Message: "server sent data before column metadata"}
	}

	rows := make([][]any, len(data))
	for i, raw := range data {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var wire []any
		if err := dec.Decode(&wire); err != nil {
			return nil, &ProtocolError{Message: "malformed data row", Err: err}
		}
		if len(wire) != len(sigs) {
			return nil, &ProtocolError{Message: fmt.Sprintf("row has %d values for %d columns", len(wire), len(sigs))}
		}
		row := make([]any, len(wire))
		for j, val := range wire {
			decoded, err := DecodeValue(sigs[j], val)
			if err != nil {
				return nil, &ProtocolError{Message: "undecodable column value", Err: err}
			}
			row[j] = decoded
		}
		rows[i] = row
	}
	return rows, nil
}

// exchange performs one logical HTTP exchange with retries. Each attempt
// rebuilds the request so headers reflect the current TransactionContext.
// Retryable outcomes back off with jitter up to the policy ceiling;
// exceeding it surfaces a TransportError carrying the last outcome.
func (e *QueryExecutor) exchange(ctx context.Context, kind exchangeKind, build func() (*http.Request, error)) (*QueryResults, error) {
	bo := e.policy.newBackOff()
	lastOutcome := OutcomeRetryableTransport

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		req, err := build()
		if err != nil {
			return nil, err
		}

		attemptCtx, cancelAttempt := ctx, context.CancelFunc(func() {})
		if e.client.requestTimeout > 0 {
			attemptCtx, cancelAttempt = context.WithTimeout(ctx, e.client.requestTimeout)
		}
		resp, err := e.client.roundTrip(req.WithContext(attemptCtx))

		switch outcome := e.policy.Classify(kind, resp, err); outcome {
		case OutcomeSuccess:
			e.tc.absorb(resp)
			qr := new(QueryResults)
			if derr := e.client.decodeResponseBody(resp, qr); derr != nil {
				cancelAttempt()
				perr := &ProtocolError{Message: "malformed statement response", Err: derr}
				return nil, perr
			}
			cancelAttempt()
			if qr.Error != nil {
				// FATAL_QUERY: never retried, surfaced verbatim.
				return nil, qr.Error
			}
			return qr, nil

		case OutcomeRetryableTransport, OutcomeRetryableServerBusy:
			lastOutcome = outcome
			drainResponse(resp)
			cancelAttempt()
			if attempt == e.policy.MaxAttempts {
				break
			}
			delay := bo.NextBackOff()
			log.Debug().
				Err(err).
				Int("attempt", attempt).
				Stringer("outcome", outcome).
				Dur("delay", delay).
				Msg("retrying statement exchange")
			select {
			case <-ctx.Done():
				return nil, &TransportError{Outcome: outcome, Attempts: attempt, Err: ctx.Err()}
			case <-time.After(delay):
			}

		default:
			cancelAttempt()
			if resp != nil {
				body, _ := io.ReadAll(resp.Body)
				resp.Body.Close()
				return nil, &TransportError{Outcome: outcome, Attempts: attempt, StatusCode: resp.StatusCode, Body: string(body)}
			}
			return nil, &TransportError{Outcome: outcome, Attempts: attempt, Err: err}
		}
	}

	return nil, &TransportError{
		Outcome:  lastOutcome,
		Attempts: e.policy.MaxAttempts,
		Err:      errors.New("max attempts exceeded"),
	}
}

// drainResponse discards and closes a response body so the connection can
// be reused by the next attempt.
func drainResponse(resp *http.Response) {
	if resp == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	if err := resp.Body.Close(); err != nil {
		log.Debug().Err(err).Msg("failed to close response body")
	}
}
