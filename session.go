package trino

import (
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// IsolationLevel is the transaction isolation intent declared at
// connection creation and sent on the first statement of a transaction.
type IsolationLevel string

const (
	IsolationDefault         IsolationLevel = ""
	IsolationReadUncommitted IsolationLevel = "READ UNCOMMITTED"
	IsolationReadCommitted   IsolationLevel = "READ COMMITTED"
	IsolationRepeatableRead  IsolationLevel = "REPEATABLE READ"
	IsolationSerializable    IsolationLevel = "SERIALIZABLE"
)

// TransactionContext tracks the per-connection state carried in protocol
// headers: the active transaction id, session properties, and prepared
// statements. It is mutated only by the QueryExecutor when a response is
// absorbed and read at request-build time; one mutex serializes both for
// the lifetime of the connection, so concurrent cursors cannot interleave
// updates.
type TransactionContext struct {
	mu sync.Mutex

	user       string
	source     string
	catalog    string
	schema     string
	clientInfo string
	timezone   string

	isolation IsolationLevel
	readOnly  bool

	// transactional is set between Begin and Commit/Rollback. While set
	// and no transaction id is active, requests carry the start marker.
	transactional bool
	transactionID string

	sessionProperties  map[string]string
	preparedStatements map[string]string
}

// NewTransactionContext builds the context from connection-level settings.
func NewTransactionContext(user, source, catalog, schema string, sessionProperties map[string]string) *TransactionContext {
	props := make(map[string]string, len(sessionProperties))
	maps.Copy(props, sessionProperties)
	return &TransactionContext{
		user:               user,
		source:             source,
		catalog:            catalog,
		schema:             schema,
		sessionProperties:  props,
		preparedStatements: make(map[string]string),
	}
}

// ClientInfo sets the free-form client info string sent with every request.
func (tc *TransactionContext) ClientInfo(info string) *TransactionContext {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.clientInfo = info
	return tc
}

// TimeZone sets the session time zone sent with every request.
func (tc *TransactionContext) TimeZone(tz string) *TransactionContext {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.timezone = tz
	return tc
}

// Isolation records the isolation/read-only intent declared at connection
// creation.
func (tc *TransactionContext) Isolation(level IsolationLevel, readOnly bool) *TransactionContext {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.isolation = level
	tc.readOnly = readOnly
	return tc
}

// SessionProperty sets a session property locally. Properties changed by
// the server arrive through absorb instead.
func (tc *TransactionContext) SessionProperty(name, value string) *TransactionContext {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.sessionProperties[name] = value
	return tc
}

// SessionProperties returns a copy of the current session property map.
func (tc *TransactionContext) SessionProperties() map[string]string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	out := make(map[string]string, len(tc.sessionProperties))
	maps.Copy(out, tc.sessionProperties)
	return out
}

// TransactionID returns the active transaction id, or "" when none.
func (tc *TransactionContext) TransactionID() string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.transactionID
}

// beginTransaction marks the context transactional so the next statement
// carries the start marker.
func (tc *TransactionContext) beginTransaction() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.transactional = true
}

// endTransaction clears the transactional intent after commit/rollback.
func (tc *TransactionContext) endTransaction() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.transactional = false
	tc.transactionID = ""
}

// isolationIntent returns the declared isolation level and read-only flag.
func (tc *TransactionContext) isolationIntent() (IsolationLevel, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.isolation, tc.readOnly
}

// inTransaction reports whether a server transaction is active.
func (tc *TransactionContext) inTransaction() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.transactionID != ""
}

// PreparedStatement looks up the SQL text registered under name.
func (tc *TransactionContext) PreparedStatement(name string) (string, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	sql, ok := tc.preparedStatements[name]
	return sql, ok
}

// applyHeaders writes the full header set for one statement request:
// identity, catalog/schema, every current session property, transaction
// state, and prepared statements. Called under one lock so a request sees
// a consistent snapshot.
func (tc *TransactionContext) applyHeaders(req *http.Request) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.user != "" {
		req.Header.Set(UserHeader, tc.user)
	}
	if tc.source != "" {
		req.Header.Set(SourceHeader, tc.source)
	}
	if tc.catalog != "" {
		req.Header.Set(CatalogHeader, tc.catalog)
	}
	if tc.schema != "" {
		req.Header.Set(SchemaHeader, tc.schema)
	}
	if tc.clientInfo != "" {
		req.Header.Set(ClientInfoHeader, tc.clientInfo)
	}
	if tc.timezone != "" {
		req.Header.Set(TimeZoneHeader, tc.timezone)
	}

	if len(tc.sessionProperties) > 0 {
		pairs := make([]string, 0, len(tc.sessionProperties))
		for k, v := range tc.sessionProperties {
			pairs = append(pairs, fmt.Sprintf("%s=%s", k, url.QueryEscape(v)))
		}
		req.Header.Set(SessionHeader, strings.Join(pairs, ","))
	}

	switch {
	case tc.transactionID != "":
		req.Header.Set(TransactionHeader, tc.transactionID)
	case tc.transactional:
		req.Header.Set(TransactionHeader, startTransactionMarker)
	}

	for name, sql := range tc.preparedStatements {
		req.Header.Add(PreparedStatementHeader, fmt.Sprintf("%s=%s", name, url.QueryEscape(sql)))
	}
}

// absorb folds one response's state-change headers into the context:
// started/cleared transaction ids, set/clear session properties, and
// added/deallocated prepared statements. The executor calls this before a
// page is handed to the caller, so a reader of row N always observes
// transaction state consistent with that page.
func (tc *TransactionContext) absorb(resp *http.Response) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if id := resp.Header.Get(StartedTransactionHeader); id != "" && id != startTransactionMarker {
		tc.transactionID = id
	}
	if resp.Header.Get(ClearTransactionHeader) != "" {
		tc.transactionID = ""
	}

	for _, raw := range resp.Header.Values(SetSessionHeader) {
		name, value, found := strings.Cut(raw, "=")
		if !found {
			continue
		}
		if decoded, err := url.QueryUnescape(value); err == nil {
			value = decoded
		}
		tc.sessionProperties[name] = value
	}
	for _, name := range resp.Header.Values(ClearSessionHeader) {
		delete(tc.sessionProperties, name)
	}

	for _, raw := range resp.Header.Values(AddedPrepareHeader) {
		name, sql, found := strings.Cut(raw, "=")
		if !found {
			continue
		}
		if decoded, err := url.QueryUnescape(sql); err == nil {
			sql = decoded
		}
		tc.preparedStatements[name] = sql
	}
	for _, name := range resp.Header.Values(DeallocatedPrepareHeader) {
		delete(tc.preparedStatements, name)
	}
}
