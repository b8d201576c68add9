// Package trinotest provides a mock Trino coordinator for integration
// testing the statement protocol client.
package trinotest

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/71nn/trino-go-client"
)

// QueryState represents the life-cycle stages reported by the mock.
type QueryState string

const (
	// QueryStateQueued indicates the query is waiting for coordinator resources.
	QueryStateQueued QueryState = "QUEUED"
	// QueryStateRunning indicates the query is actively being processed.
	QueryStateRunning QueryState = "RUNNING"
	// QueryStateCancelled indicates execution was terminated by the client.
	QueryStateCancelled QueryState = "CANCELLED"
	// QueryStateFinished indicates successful completion.
	QueryStateFinished QueryState = "FINISHED"
	// QueryStateFailed indicates a planning or execution error occurred.
	QueryStateFailed QueryState = "FAILED"
)

// String returns the string representation of the QueryState.
func (qs QueryState) String() string {
	return string(qs)
}

// generateMockSlug creates a random string to simulate the coordinator's
// security slug on next URIs.
func generateMockSlug() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// MockQueryTemplate defines the static result set and life-cycle shape for
// a specific statement body. It acts as an immutable blueprint from which
// MockActiveQuery instances are created.
//
// Batching and Data Distribution:
// The mock divides the static 'Data' slice into sequential windows
// (batches) based on the 'DataBatches' field.
//
//  1. Pre-calculated Batch Count:
//     DataBatches is adjusted during registration in AddQuery. If
//     DataBatches is 10 but there are only 3 rows, it is capped at 3 to
//     prevent empty polls.
//
//  2. Rows Per Batch Calculation:
//     The server uses a ceiling division formula to determine the batch
//     size: rowsPerBatch = (totalRows + DataBatches - 1) / DataBatches.
//
//  3. Sequential Paging:
//     Each request (batchID > 0) returns a specific slice of data:
//     - start = (batchID - 1) * rowsPerBatch
//     - end = start + rowsPerBatch.
type MockQueryTemplate struct {
	SQL          string              // The statement body used for template matching.
	DataBatches  int                 // The number of data pages, capped by row count.
	QueueBatches int                 // The number of QUEUED polls before RUNNING. At least 1.
	Columns      []trino.Column      // Metadata describing the result set columns.
	Data         [][]any             // The full result set partitioned across batches.
	Error        *trino.QueryError   // Optional error to simulate a query failure.
	Warnings     []trino.Warning     // Optional warnings attached to every page.
	UpdateType   string              // Optional DML operation name (e.g. "INSERT").
	UpdateCount  *int64              // Optional affected-row count for DML.
	Latency      time.Duration       // Total latency spread across the query's requests.

	// Response headers applied to the submit response, modelling the
	// coordinator's session and transaction directives.
	SetSession           map[string]string // X-Trino-Set-Session entries.
	ClearSession         []string          // X-Trino-Clear-Session entries.
	StartedTransactionID string            // X-Trino-Started-Transaction-Id value.
	ClearTransaction     bool              // Emit X-Trino-Clear-Transaction-Id.
	AddedPrepare         map[string]string // X-Trino-Added-Prepare entries.
	DeallocatedPrepare   []string          // X-Trino-Deallocated-Prepare entries.
}

// MockActiveQuery represents a live execution instance of a template.
type MockActiveQuery struct {
	ID        string
	Template  *MockQueryTemplate
	State     QueryState
	QueuedFor int // How many polls it has stayed in the QUEUED state.
}

// RecordedRequest captures one request the mock received, for asserting
// on protocol headers in tests.
type RecordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   string
}

// MockTrinoServer simulates a Trino coordinator for integration testing.
type MockTrinoServer struct {
	server *httptest.Server

	// templates maps statement bodies to their pre-validated blueprints.
	templates map[string]*MockQueryTemplate

	// activeQueries maps execution IDs to their current state.
	activeQueries map[string]*MockActiveQuery

	queriesMutex sync.RWMutex // Protects maps during concurrent test execution.

	// defaultLatency is the fallback latency when a template defines none.
	defaultLatency time.Duration

	// failures holds injected responses served before normal handling,
	// consumed front to back.
	failures     []int
	failuresMu   sync.Mutex
	requests     []RecordedRequest
	requestsMu   sync.Mutex
	cancelCount  atomic.Int64
	requestCount atomic.Int64

	queryIDCounter atomic.Int64
	today          string // Cached date string for optimized ID generation.
}

// NewMockTrinoServer initializes a new mock server using the standard library.
func NewMockTrinoServer() *MockTrinoServer {
	mock := &MockTrinoServer{
		templates:     make(map[string]*MockQueryTemplate),
		activeQueries: make(map[string]*MockActiveQuery),
		today:         time.Now().Format("20060102"),
	}

	mux := http.NewServeMux()

	// POST /v1/statement: Initiates a new query with a server-generated ID.
	mux.HandleFunc("POST /v1/statement", mock.handleNewQuery)

	// GET /v1/statement/{status}/{queryId}/{batchId}: Polls for the next page.
	mux.HandleFunc("GET /v1/statement/{status}/{queryId}/{batchId}", mock.handleFetchNextBatch)

	// DELETE /v1/statement/{status}/{queryId}/{batchId}: Cancels a running query.
	mux.HandleFunc("DELETE /v1/statement/{status}/{queryId}/{batchId}", mock.handleCancelQuery)

	mock.server = httptest.NewServer(mock.intercept(mux))

	return mock
}

// AddQuery registers a statement template and pre-calculates the valid
// DataBatches.
func (m *MockTrinoServer) AddQuery(tmpl *MockQueryTemplate) {
	m.queriesMutex.Lock()
	defer m.queriesMutex.Unlock()

	if totalRows := len(tmpl.Data); totalRows < tmpl.DataBatches {
		tmpl.DataBatches = totalRows
	}
	if tmpl.QueueBatches < 1 {
		tmpl.QueueBatches = 1
	}

	m.templates[tmpl.SQL] = tmpl
}

// SetDefaultLatency configures the fallback query latency.
func (m *MockTrinoServer) SetDefaultLatency(latency time.Duration) {
	m.defaultLatency = latency
}

// FailNextWith queues n responses with the given status code ahead of
// normal handling, simulating overload (503) or gateway failures (502,
// 504). Injected responses are consumed in order across all endpoints.
func (m *MockTrinoServer) FailNextWith(statusCode int, n int) {
	m.failuresMu.Lock()
	defer m.failuresMu.Unlock()
	for i := 0; i < n; i++ {
		m.failures = append(m.failures, statusCode)
	}
}

// Requests returns a copy of every request the mock has received.
func (m *MockTrinoServer) Requests() []RecordedRequest {
	m.requestsMu.Lock()
	defer m.requestsMu.Unlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// RequestCount returns the total number of requests received, including
// injected failures.
func (m *MockTrinoServer) RequestCount() int64 {
	return m.requestCount.Load()
}

// CancelCount returns how many DELETE requests the mock has received.
func (m *MockTrinoServer) CancelCount() int64 {
	return m.cancelCount.Load()
}

// intercept records every request and serves injected failures before
// delegating to the real handlers.
func (m *MockTrinoServer) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.requestCount.Add(1)

		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))

		m.requestsMu.Lock()
		m.requests = append(m.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Header: r.Header.Clone(),
			Body:   string(body),
		})
		m.requestsMu.Unlock()

		m.failuresMu.Lock()
		if len(m.failures) > 0 {
			code := m.failures[0]
			m.failures = m.failures[1:]
			m.failuresMu.Unlock()
			http.Error(w, http.StatusText(code), code)
			return
		}
		m.failuresMu.Unlock()

		next.ServeHTTP(w, r)
	})
}

// --- Request Handlers ---

func (m *MockTrinoServer) handleNewQuery(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	sql := string(body)

	m.queriesMutex.RLock()
	template, exists := m.templates[sql]
	if !exists {
		// Parameterized statements arrive as EXECUTE wrappers with the
		// underlying SQL declared in the prepared-statement header, the
		// way a real coordinator resolves them.
		for _, raw := range r.Header.Values("X-Trino-Prepared-Statement") {
			_, escaped, found := strings.Cut(raw, "=")
			if !found {
				continue
			}
			decoded, err := url.QueryUnescape(escaped)
			if err != nil {
				continue
			}
			if tmpl, ok := m.templates[decoded]; ok {
				template, exists = tmpl, true
				break
			}
		}
	}
	m.queriesMutex.RUnlock()

	if !exists {
		template = &MockQueryTemplate{
			SQL:          sql,
			DataBatches:  1,
			QueueBatches: 1,
			Columns:      []trino.Column{{Name: "result", Type: "varchar"}},
			Data:         [][]any{{"Query template not found; default success"}},
		}
	}

	queryID := m.newQueryID()
	m.queriesMutex.Lock()
	m.activeQueries[queryID] = &MockActiveQuery{
		ID:       queryID,
		Template: template,
		State:    QueryStateQueued,
	}
	m.queriesMutex.Unlock()

	m.applyDirectiveHeaders(w, template)
	m.sendQueryResponse(w, queryID, 0)
}

func (m *MockTrinoServer) handleFetchNextBatch(w http.ResponseWriter, r *http.Request) {
	batchID, _ := strconv.Atoi(r.PathValue("batchId"))
	m.sendQueryResponse(w, r.PathValue("queryId"), batchID)
}

func (m *MockTrinoServer) handleCancelQuery(w http.ResponseWriter, r *http.Request) {
	m.cancelCount.Add(1)
	id := r.PathValue("queryId")
	m.queriesMutex.Lock()
	if q, ok := m.activeQueries[id]; ok {
		q.State = QueryStateCancelled
	}
	m.queriesMutex.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

// applyDirectiveHeaders writes the template's session and transaction
// directives on the submit response.
func (m *MockTrinoServer) applyDirectiveHeaders(w http.ResponseWriter, tmpl *MockQueryTemplate) {
	h := w.Header()
	for name, value := range tmpl.SetSession {
		h.Add("X-Trino-Set-Session", name+"="+url.QueryEscape(value))
	}
	for _, name := range tmpl.ClearSession {
		h.Add("X-Trino-Clear-Session", name)
	}
	if tmpl.StartedTransactionID != "" {
		h.Set("X-Trino-Started-Transaction-Id", tmpl.StartedTransactionID)
	}
	if tmpl.ClearTransaction {
		h.Set("X-Trino-Clear-Transaction-Id", "true")
	}
	for name, sql := range tmpl.AddedPrepare {
		h.Add("X-Trino-Added-Prepare", name+"="+url.QueryEscape(sql))
	}
	for _, name := range tmpl.DeallocatedPrepare {
		h.Add("X-Trino-Deallocated-Prepare", name)
	}
}

// --- Protocol Response Logic ---

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// sendQueryResponse prepares a JSON payload and applies hierarchical latency.
func (m *MockTrinoServer) sendQueryResponse(w http.ResponseWriter, queryID string, batchID int) {
	m.queriesMutex.RLock()
	query, exists := m.activeQueries[queryID]
	if !exists {
		m.queriesMutex.RUnlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Query not found"})
		return
	}

	totalLatency := m.defaultLatency
	if query.Template.Latency > 0 {
		totalLatency = query.Template.Latency
	}

	// Calculate total lifecycle requests to distribute latency evenly.
	dataBatchCount := query.Template.DataBatches
	queueBatchCount := query.Template.QueueBatches
	totalRequests := dataBatchCount + queueBatchCount

	sleepDuration := totalLatency / time.Duration(totalRequests)
	m.queriesMutex.RUnlock()

	if sleepDuration > 0 {
		time.Sleep(sleepDuration)
	}

	m.queriesMutex.Lock()
	query, exists = m.activeQueries[queryID]
	if !exists {
		m.queriesMutex.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Query removed during processing"})
		return
	}
	defer m.queriesMutex.Unlock()

	// Logic for managing the "Queued" phase loop.
	if batchID == 0 {
		query.QueuedFor++
	}

	// Transition to RUNNING only after exiting the queue loop.
	if query.QueuedFor >= queueBatchCount && query.State == QueryStateQueued {
		query.State = QueryStateRunning
	}

	if query.Template.Error != nil {
		query.State = QueryStateFailed
	}

	// Determine if more batches (either queue polls or data) are expected.
	hasMore := query.QueuedFor < queueBatchCount || batchID < dataBatchCount
	if query.State == QueryStateFailed {
		hasMore = false
	}
	if !hasMore && query.State == QueryStateRunning {
		query.State = QueryStateFinished
	}

	resp := trino.QueryResults{
		ID:          queryID,
		InfoURI:     fmt.Sprintf("%s/ui/query.html?%s", m.server.URL, queryID),
		Columns:     query.Template.Columns,
		Error:       query.Template.Error,
		Warnings:    query.Template.Warnings,
		UpdateCount: query.Template.UpdateCount,
		Stats: trino.StatementStats{
			State:           string(query.State),
			QueryID:         queryID,
			Queued:          query.State == QueryStateQueued,
			Scheduled:       query.State != QueryStateQueued,
			TotalSplits:     int64(dataBatchCount),
			CompletedSplits: int64(batchID),
		},
	}
	if query.Template.UpdateType != "" {
		ut := query.Template.UpdateType
		resp.UpdateType = &ut
	}

	if hasMore {
		nextBatch := batchID + 1
		// If still in the queue loop, keep the client polling batch 0.
		if query.QueuedFor < queueBatchCount {
			nextBatch = 0
		}
		nextURI := fmt.Sprintf("%s/v1/statement/%s/%s/%d?slug=%s",
			m.server.URL, query.State, queryID, nextBatch, generateMockSlug())
		resp.NextURI = &nextURI
	}

	// Data is delivered sequentially across DataBatches.
	if batchID > 0 && dataBatchCount > 0 && len(query.Template.Data) > 0 {
		rowsPerBatch := (len(query.Template.Data) + dataBatchCount - 1) / dataBatchCount
		start := (batchID - 1) * rowsPerBatch
		if start < len(query.Template.Data) {
			end := start + rowsPerBatch
			if end > len(query.Template.Data) {
				end = len(query.Template.Data)
			}
			batchRows := query.Template.Data[start:end]
			resp.Data = make([]json.RawMessage, len(batchRows))
			for i, row := range batchRows {
				resp.Data[i], _ = json.Marshal(row)
			}
		}
	}

	if query.State == QueryStateFinished || query.State == QueryStateCancelled || query.State == QueryStateFailed {
		delete(m.activeQueries, queryID)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (m *MockTrinoServer) newQueryID() string {
	return fmt.Sprintf("%s_%d", m.today, m.queryIDCounter.Add(1))
}

// URL returns the base URL of the mock server.
func (m *MockTrinoServer) URL() string { return m.server.URL }

// Close shuts down the mock server.
func (m *MockTrinoServer) Close() { m.server.Close() }

