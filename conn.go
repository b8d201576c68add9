package trino

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Defaults mirroring the protocol's conventional values.
const (
	DefaultPort           = 8080
	DefaultMaxAttempts    = 3
	DefaultRequestTimeout = 30 * time.Second
)

// Config is the connection-level configuration. Zero values fall back to
// the defaults above; only Host and User are required.
type Config struct {
	Host   string
	Port   int
	User   string
	Source string

	Catalog string
	Schema  string

	// SessionProperties seeds the session property map sent with every
	// request; the server may add or clear entries via headers.
	SessionProperties map[string]string

	// IsolationLevel and ReadOnly declare the transactional intent used
	// by Begin. Leaving IsolationLevel empty keeps the engine default.
	IsolationLevel IsolationLevel
	ReadOnly       bool

	// MaxAttempts caps the exchanges per submit/advance (retry ceiling).
	MaxAttempts int

	// RequestTimeout bounds each individual HTTP exchange.
	RequestTimeout time.Duration

	// CredentialApplier decorates every outbound request with
	// authentication material.
	CredentialApplier CredentialApplier

	// HTTPClient supplies transport/TLS/pooling configuration. Nil means
	// a default client.
	HTTPClient *http.Client

	ClientInfo string
	TimeZone   string
}

// Conn is one logical connection: a shared transport client plus the
// TransactionContext every cursor on the connection reads and the
// executor mutates. Cursors execute independently and concurrently; the
// context serializes their state updates.
type Conn struct {
	client *Client
	tc     *TransactionContext
	policy RetryPolicy
	closed bool
}

// NewConn validates the configuration and builds a connection. No network
// traffic happens until the first statement executes.
func NewConn(cfg Config) (*Conn, error) {
	if cfg.Host == "" {
		return nil, &ProgrammingError{Message: "config: Host is required"}
	}
	if cfg.User == "" {
		return nil, &ProgrammingError{Message: "config: User is required"}
	}
	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}
	source := cfg.Source
	if source == "" {
		source = DefaultSource
	}

	client, err := NewClient(fmt.Sprintf("http://%s:%d", cfg.Host, port), cfg.HTTPClient)
	if err != nil {
		return nil, err
	}
	if cfg.CredentialApplier != nil {
		client.Credential(cfg.CredentialApplier)
	}
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}
	client.RequestTimeout(timeout)

	policy := DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}

	tc := NewTransactionContext(cfg.User, source, cfg.Catalog, cfg.Schema, cfg.SessionProperties)
	tc.Isolation(cfg.IsolationLevel, cfg.ReadOnly)
	if cfg.ClientInfo != "" {
		tc.ClientInfo(cfg.ClientInfo)
	}
	if cfg.TimeZone != "" {
		tc.TimeZone(cfg.TimeZone)
	}

	return &Conn{client: client, tc: tc, policy: policy}, nil
}

// Cursor creates a new independent cursor sharing this connection's
// transaction context.
func (c *Conn) Cursor() *ResultCursor {
	return newResultCursor(NewQueryExecutor(c.client, c.tc, c.policy))
}

// TransactionContext exposes the connection's shared session state.
func (c *Conn) TransactionContext() *TransactionContext {
	return c.tc
}

// run executes a statement to completion and discards its rows.
func (c *Conn) run(ctx context.Context, sql string) error {
	cur := c.Cursor()
	if err := cur.Execute(ctx, sql, nil); err != nil {
		return err
	}
	_, err := cur.FetchAll(ctx)
	return err
}

// Begin opens a server-side transaction using the connection's declared
// isolation intent. The first statement carries the start-transaction
// marker; the server's started-transaction header supplies the id that
// subsequent statements echo back.
func (c *Conn) Begin(ctx context.Context) error {
	if c.closed {
		return &ProgrammingError{Message: "connection is closed"}
	}
	if c.tc.inTransaction() {
		return &ProgrammingError{Message: "transaction already in progress"}
	}
	c.tc.beginTransaction()

	sql := "START TRANSACTION"
	level, readOnly := c.tc.isolationIntent()
	var clauses []string
	if level != IsolationDefault {
		clauses = append(clauses, "ISOLATION LEVEL "+string(level))
	}
	if readOnly {
		clauses = append(clauses, "READ ONLY")
	}
	for i, clause := range clauses {
		if i == 0 {
			sql += " " + clause
		} else {
			sql += ", " + clause
		}
	}

	if err := c.run(ctx, sql); err != nil {
		c.tc.endTransaction()
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	return nil
}

// Commit commits the active transaction and clears the transaction id.
func (c *Conn) Commit(ctx context.Context) error {
	if !c.tc.inTransaction() {
		c.tc.endTransaction()
		return nil
	}
	if err := c.run(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	c.tc.endTransaction()
	return nil
}

// Rollback aborts the active transaction. Rolling back with no
// transaction in progress is a ProgrammingError.
func (c *Conn) Rollback(ctx context.Context) error {
	if !c.tc.inTransaction() {
		return &ProgrammingError{Message: "no transaction to roll back"}
	}
	if err := c.run(ctx, "ROLLBACK"); err != nil {
		c.tc.endTransaction()
		return fmt.Errorf("rollback failed: %w", err)
	}
	c.tc.endTransaction()
	return nil
}

// WithTx runs fn inside a transaction and guarantees commit-or-rollback
// on exit: commit when fn returns nil, rollback otherwise.
func (c *Conn) WithTx(ctx context.Context, fn func(cur *ResultCursor) error) error {
	if err := c.Begin(ctx); err != nil {
		return err
	}
	if err := fn(c.Cursor()); err != nil {
		if rbErr := c.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	return c.Commit(ctx)
}

// Prepare registers a named prepared statement on the session. The
// server's added-prepare header is absorbed into the TransactionContext,
// and every subsequent request re-declares the statement.
func (c *Conn) Prepare(ctx context.Context, name, sql string) error {
	return c.run(ctx, fmt.Sprintf("PREPARE %s FROM %s", name, sql))
}

// Deallocate removes a prepared statement from the session.
func (c *Conn) Deallocate(ctx context.Context, name string) error {
	return c.run(ctx, "DEALLOCATE PREPARE "+name)
}

// Close releases the connection. An active transaction is rolled back
// first so server-side state is not leaked.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.tc.inTransaction() {
		if err := c.Rollback(context.Background()); err != nil {
			return err
		}
	}
	return nil
}
