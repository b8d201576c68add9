package trino

import "encoding/json"

// Column describes one result column: name plus the raw wire type
// signature the server attached to it.
type Column struct {
	// Name is the column name.
	Name string `json:"name"`

	// Type is the full textual type signature, e.g. "array(integer)".
	Type string `json:"type"`

	// TypeSignature carries the structured form when the server sends one.
	TypeSignature ClientTypeSignature `json:"typeSignature"`
}

// ClientTypeSignature is the structured type description attached to a
// column. Only the raw base type is needed by this client; the textual
// Column.Type string is the authoritative signature.
type ClientTypeSignature struct {
	// RawType is the base type name (e.g. "varchar", "bigint", "array").
	RawType string `json:"rawType"`
}

// StatementStats is the per-page execution statistics snapshot. The
// counters advance monotonically across the pages of one query; the
// executor enforces that invariant on absorption so callers never observe
// a stale snapshot shrinking.
type StatementStats struct {
	State             string `json:"state"`
	QueryID           string `json:"queryId,omitempty"`
	Queued            bool   `json:"queued"`
	Scheduled         bool   `json:"scheduled"`
	Nodes             int64  `json:"nodes"`
	TotalSplits       int64  `json:"totalSplits"`
	QueuedSplits      int64  `json:"queuedSplits"`
	RunningSplits     int64  `json:"runningSplits"`
	CompletedSplits   int64  `json:"completedSplits"`
	CPUTimeMillis     int64  `json:"cpuTimeMillis"`
	WallTimeMillis    int64  `json:"wallTimeMillis"`
	QueuedTimeMillis  int64  `json:"queuedTimeMillis"`
	ElapsedTimeMillis int64  `json:"elapsedTimeMillis"`
	ProcessedRows     int64  `json:"processedRows"`
	ProcessedBytes    int64  `json:"processedBytes"`
	PeakMemoryBytes   int64  `json:"peakMemoryBytes"`
}

// mergeMax folds a newer snapshot into s, keeping the elementwise maximum
// of every counter while adopting the newer state string.
func (s *StatementStats) mergeMax(newer StatementStats) {
	state, queryID := newer.State, newer.QueryID
	if queryID == "" {
		queryID = s.QueryID
	}
	maxed := StatementStats{
		State:             state,
		QueryID:           queryID,
		Queued:            newer.Queued,
		Scheduled:         s.Scheduled || newer.Scheduled,
		Nodes:             max(s.Nodes, newer.Nodes),
		TotalSplits:       max(s.TotalSplits, newer.TotalSplits),
		QueuedSplits:      newer.QueuedSplits,
		RunningSplits:     newer.RunningSplits,
		CompletedSplits:   max(s.CompletedSplits, newer.CompletedSplits),
		CPUTimeMillis:     max(s.CPUTimeMillis, newer.CPUTimeMillis),
		WallTimeMillis:    max(s.WallTimeMillis, newer.WallTimeMillis),
		QueuedTimeMillis:  max(s.QueuedTimeMillis, newer.QueuedTimeMillis),
		ElapsedTimeMillis: max(s.ElapsedTimeMillis, newer.ElapsedTimeMillis),
		ProcessedRows:     max(s.ProcessedRows, newer.ProcessedRows),
		ProcessedBytes:    max(s.ProcessedBytes, newer.ProcessedBytes),
		PeakMemoryBytes:   max(s.PeakMemoryBytes, newer.PeakMemoryBytes),
	}
	*s = maxed
}

// Warning is a non-fatal diagnostic generated during query execution.
type Warning struct {
	WarningCode WarningCode `json:"warningCode"`
	Message     string      `json:"message"`
}

// WarningCode identifies the warning category.
type WarningCode struct {
	Code int    `json:"code"`
	Name string `json:"name"`
}

// QueryResults is one statement-protocol response body: a slice of query
// results plus continuation metadata. Data rows stay raw until the
// executor decodes them against the column signatures.
type QueryResults struct {
	// ID is the server-assigned query identifier.
	ID string `json:"id"`

	// InfoURI points at the server's query detail page.
	InfoURI string `json:"infoUri"`

	// PartialCancelURI can cancel parts of the query.
	PartialCancelURI *string `json:"partialCancelUri,omitempty"`

	// NextURI is the follow-up URL for the next page. Nil means this is
	// the terminal page.
	NextURI *string `json:"nextUri,omitempty"`

	// Columns is present only on pages that carry column metadata.
	Columns []Column `json:"columns,omitempty"`

	// Data holds the page's rows, each a JSON array of wire values.
	Data []json.RawMessage `json:"data,omitempty"`

	// Stats is the execution statistics snapshot for this page.
	Stats StatementStats `json:"stats"`

	// Error is the structured failure payload. A populated Error is never
	// retried regardless of the retry policy.
	Error *QueryError `json:"error,omitempty"`

	// Warnings generated so far.
	Warnings []Warning `json:"warnings,omitempty"`

	// UpdateType names the DML operation for non-select statements.
	UpdateType *string `json:"updateType,omitempty"`

	// UpdateCount is the number of rows affected by a DML statement.
	UpdateCount *int64 `json:"updateCount,omitempty"`
}
