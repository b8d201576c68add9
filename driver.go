package trino

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	sql.Register("trino", &sqlDriver{})
}

// --- DSN Parsing ---

// parseDSN parses a DSN of the form
//
//	trino://[user[:password]@]host[:port][/catalog[/schema]][?key=value&...]
//
// Recognized query params: source, client_info, timezone. Unrecognized
// params become session properties.
func parseDSN(dsn string) (Config, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return Config{}, fmt.Errorf("invalid DSN: %w", err)
	}
	if u.Scheme != "trino" {
		return Config{}, fmt.Errorf("unsupported scheme %q: must be trino", u.Scheme)
	}

	cfg := Config{
		Host:              u.Hostname(),
		SessionProperties: make(map[string]string),
	}
	if cfg.Host == "" {
		return Config{}, fmt.Errorf("missing host in DSN")
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return Config{}, fmt.Errorf("invalid port %q in DSN", p)
		}
		cfg.Port = port
	}

	var password string
	if u.User != nil {
		cfg.User = u.User.Username()
		password, _ = u.User.Password()
	}
	if password != "" {
		user, pass := cfg.User, password
		cfg.CredentialApplier = func(req *http.Request) {
			req.SetBasicAuth(user, pass)
		}
	}

	if path := strings.TrimPrefix(u.Path, "/"); path != "" {
		parts := strings.SplitN(path, "/", 2)
		cfg.Catalog = parts[0]
		if len(parts) > 1 {
			cfg.Schema = parts[1]
		}
	}

	for key, values := range u.Query() {
		val := values[0]
		switch key {
		case "source":
			cfg.Source = val
		case "client_info":
			cfg.ClientInfo = val
		case "timezone":
			cfg.TimeZone = val
		default:
			cfg.SessionProperties[key] = val
		}
	}

	return cfg, nil
}

// --- Driver & Connector ---

// sqlDriver implements driver.Driver and driver.DriverContext.
type sqlDriver struct{}

var _ driver.Driver = (*sqlDriver)(nil)
var _ driver.DriverContext = (*sqlDriver)(nil)

// Open implements driver.Driver.
func (d *sqlDriver) Open(dsn string) (driver.Conn, error) {
	connector, err := NewConnector(dsn)
	if err != nil {
		return nil, err
	}
	return connector.Connect(context.Background())
}

// OpenConnector implements driver.DriverContext.
func (d *sqlDriver) OpenConnector(dsn string) (driver.Connector, error) {
	return NewConnector(dsn)
}

// sqlConnector implements driver.Connector over a parsed Config.
type sqlConnector struct {
	cfg Config
}

var _ driver.Connector = (*sqlConnector)(nil)

// NewConnector creates a driver.Connector from a DSN string. Use it with
// sql.OpenDB for connection pool management.
func NewConnector(dsn string) (driver.Connector, error) {
	cfg, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	return &sqlConnector{cfg: cfg}, nil
}

// Connect implements driver.Connector. Each database/sql connection gets
// its own TransactionContext.
func (c *sqlConnector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := NewConn(c.cfg)
	if err != nil {
		return nil, err
	}
	return &sqlConn{conn: conn}, nil
}

// Driver implements driver.Connector.
func (c *sqlConnector) Driver() driver.Driver {
	return &sqlDriver{}
}

// --- Connection ---

// sqlConn adapts a Conn to driver.Conn, driver.QueryerContext,
// driver.ExecerContext and driver.ConnBeginTx.
type sqlConn struct {
	conn *Conn
}

var _ driver.Conn = (*sqlConn)(nil)
var _ driver.QueryerContext = (*sqlConn)(nil)
var _ driver.ExecerContext = (*sqlConn)(nil)
var _ driver.ConnBeginTx = (*sqlConn)(nil)

// Prepare implements driver.Conn.
func (c *sqlConn) Prepare(query string) (driver.Stmt, error) {
	return &sqlStmt{conn: c, query: query}, nil
}

// Close implements driver.Conn.
func (c *sqlConn) Close() error {
	return c.conn.Close()
}

// Begin implements driver.Conn. Use BeginTx instead.
func (c *sqlConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx implements driver.ConnBeginTx.
func (c *sqlConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if err := c.conn.Begin(ctx); err != nil {
		return nil, err
	}
	return &sqlTx{conn: c.conn}, nil
}

// QueryContext implements driver.QueryerContext.
func (c *sqlConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	cur := c.conn.Cursor()
	if err := cur.Execute(ctx, query, namedToParams(args)); err != nil {
		return nil, err
	}
	return &sqlRows{cur: cur, ctx: ctx}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *sqlConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	cur := c.conn.Cursor()
	if err := cur.Execute(ctx, query, namedToParams(args)); err != nil {
		return nil, err
	}
	if _, err := cur.FetchAll(ctx); err != nil {
		return nil, err
	}
	return &sqlResult{rowsAffected: cur.RowCount()}, nil
}

// namedToParams converts database/sql named values into the cursor's
// ordered parameter sequence. A nil slice keeps the no-parameter path.
func namedToParams(args []driver.NamedValue) any {
	if len(args) == 0 {
		return nil
	}
	params := make([]any, len(args))
	for i, arg := range args {
		params[i] = arg.Value
	}
	return params
}

// --- Result ---

// sqlResult implements driver.Result.
type sqlResult struct {
	rowsAffected int64
}

var _ driver.Result = (*sqlResult)(nil)

// LastInsertId implements driver.Result; the engine has no equivalent.
func (r *sqlResult) LastInsertId() (int64, error) {
	return 0, fmt.Errorf("trino: LastInsertId is not supported")
}

// RowsAffected implements driver.Result.
func (r *sqlResult) RowsAffected() (int64, error) {
	if r.rowsAffected < 0 {
		return 0, nil
	}
	return r.rowsAffected, nil
}

// --- Rows ---

// sqlRows adapts a ResultCursor to driver.Rows plus the column type
// introspection interfaces.
type sqlRows struct {
	cur    *ResultCursor
	ctx    context.Context
	closed bool
	sigs   []TypeSignature
}

var _ driver.Rows = (*sqlRows)(nil)
var _ driver.RowsColumnTypeDatabaseTypeName = (*sqlRows)(nil)
var _ driver.RowsColumnTypeScanType = (*sqlRows)(nil)
var _ driver.RowsColumnTypePrecisionScale = (*sqlRows)(nil)
var _ driver.RowsColumnTypeLength = (*sqlRows)(nil)

// Columns implements driver.Rows.
func (r *sqlRows) Columns() []string {
	descs := r.cur.Description()
	names := make([]string, len(descs))
	for i, d := range descs {
		names[i] = d.Name
	}
	return names
}

// Close implements driver.Rows. A still-running query is cancelled so
// server resources are released.
func (r *sqlRows) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.cur.Cancel(context.Background()); err != nil && err != ErrNoActiveQuery {
		return err
	}
	return nil
}

// Next implements driver.Rows.
func (r *sqlRows) Next(dest []driver.Value) error {
	if r.closed {
		return io.EOF
	}
	row, ok, err := r.cur.FetchOne(r.ctx)
	if err != nil {
		return err
	}
	if !ok {
		return io.EOF
	}
	sigs := r.signatures()
	for i := range dest {
		if i >= len(row) {
			dest[i] = nil
			continue
		}
		val := row[i]
		if i < len(sigs) {
			val = rowsAsObjects(sigs[i], val)
		}
		v, err := nativeToDriverValue(val)
		if err != nil {
			return err
		}
		dest[i] = v
	}
	return nil
}

// signatures parses the column type signatures once, from the cursor's
// description. An unparseable signature yields the zero signature, which
// rowsAsObjects passes through untouched.
func (r *sqlRows) signatures() []TypeSignature {
	if r.sigs != nil {
		return r.sigs
	}
	descs := r.cur.Description()
	sigs := make([]TypeSignature, len(descs))
	for i, d := range descs {
		if sig, err := ParseTypeSignature(d.DatabaseType); err == nil {
			sigs[i] = sig
		}
	}
	r.sigs = sigs
	return sigs
}

// rowsAsObjects converts decoded row tuples into maps keyed by field name,
// so the JSON form handed to NullRow scanners matches struct tags instead
// of losing the names to a positional array. Anonymous fields get
// positional field<N> keys. Arrays and maps are walked so nested rows
// convert too.
func rowsAsObjects(sig TypeSignature, v any) any {
	if v == nil {
		return nil
	}
	switch sig.Base {
	case "row":
		tuple, ok := v.([]any)
		if !ok || len(tuple) != len(sig.Fields) {
			return v
		}
		out := make(map[string]any, len(tuple))
		for i, field := range sig.Fields {
			name := field.Name
			if name == "" {
				name = "field" + strconv.Itoa(i)
			}
			out[name] = rowsAsObjects(field.Type, tuple[i])
		}
		return out
	case "array":
		items, ok := v.([]any)
		if !ok || len(sig.Arguments) == 0 {
			return v
		}
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = rowsAsObjects(sig.Arguments[0], item)
		}
		return out
	case "map":
		entries, ok := v.(map[string]any)
		if !ok || len(sig.Arguments) < 2 {
			return v
		}
		out := make(map[string]any, len(entries))
		for k, val := range entries {
			out[k] = rowsAsObjects(sig.Arguments[1], val)
		}
		return out
	}
	return v
}

// nativeToDriverValue maps the codec's native values onto the restricted
// driver.Value set. Composite values travel as JSON strings, the scanner
// types in types.go on the consuming side.
func nativeToDriverValue(v any) (driver.Value, error) {
	switch val := v.(type) {
	case nil, bool, int64, float64, string, []byte:
		return val, nil
	case time.Time:
		return val, nil
	case Date:
		return time.Time(val), nil
	case Time:
		return time.Time(val), nil
	case decimal.Decimal:
		return val.String(), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("trino: cannot convert %T to driver value: %w", v, err)
		}
		return string(b), nil
	}
}

// ColumnTypeDatabaseTypeName implements the introspection interface.
func (r *sqlRows) ColumnTypeDatabaseTypeName(index int) string {
	descs := r.cur.Description()
	if index < 0 || index >= len(descs) {
		return ""
	}
	base := descs[index].DatabaseType
	if idx := strings.IndexByte(base, '('); idx >= 0 {
		suffix := ""
		if end := strings.IndexByte(base[idx:], ')'); end >= 0 {
			suffix = base[idx+end+1:]
		}
		base = base[:idx] + suffix
	}
	return strings.ToUpper(strings.TrimSpace(base))
}

// ColumnTypeScanType implements the introspection interface.
func (r *sqlRows) ColumnTypeScanType(index int) reflect.Type {
	descs := r.cur.Description()
	if index < 0 || index >= len(descs) {
		return reflect.TypeOf("")
	}
	switch descs[index].TypeCategory {
	case CategoryNumber:
		if strings.HasPrefix(descs[index].DatabaseType, "double") || strings.HasPrefix(descs[index].DatabaseType, "real") {
			return reflect.TypeOf(float64(0))
		}
		return reflect.TypeOf(int64(0))
	case CategoryBoolean:
		return reflect.TypeOf(false)
	case CategoryDate, CategoryTime, CategoryTimestamp:
		return reflect.TypeOf(time.Time{})
	case CategoryBinary:
		return reflect.TypeOf([]byte(nil))
	default:
		return reflect.TypeOf("")
	}
}

// ColumnTypePrecisionScale implements the introspection interface.
func (r *sqlRows) ColumnTypePrecisionScale(index int) (int64, int64, bool) {
	descs := r.cur.Description()
	if index < 0 || index >= len(descs) {
		return 0, 0, false
	}
	d := descs[index]
	if d.Precision == nil || d.Scale == nil {
		return 0, 0, false
	}
	return *d.Precision, *d.Scale, true
}

// ColumnTypeLength implements the introspection interface.
func (r *sqlRows) ColumnTypeLength(index int) (int64, bool) {
	descs := r.cur.Description()
	if index < 0 || index >= len(descs) {
		return 0, false
	}
	if descs[index].DisplaySize == nil {
		return 0, false
	}
	return *descs[index].DisplaySize, true
}

// --- Statement ---

// sqlStmt implements driver.Stmt and the context-aware variants.
type sqlStmt struct {
	conn  *sqlConn
	query string
}

var _ driver.Stmt = (*sqlStmt)(nil)
var _ driver.StmtQueryContext = (*sqlStmt)(nil)
var _ driver.StmtExecContext = (*sqlStmt)(nil)

// Close implements driver.Stmt.
func (s *sqlStmt) Close() error {
	return nil
}

// NumInput implements driver.Stmt. -1 disables driver-side validation.
func (s *sqlStmt) NumInput() int {
	return -1
}

// Exec implements driver.Stmt.
func (s *sqlStmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), namedValues(args))
}

// Query implements driver.Stmt.
func (s *sqlStmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), namedValues(args))
}

// ExecContext implements driver.StmtExecContext.
func (s *sqlStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	return s.conn.ExecContext(ctx, s.query, args)
}

// QueryContext implements driver.StmtQueryContext.
func (s *sqlStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	return s.conn.QueryContext(ctx, s.query, args)
}

// namedValues converts positional args to NamedValue slices.
func namedValues(args []driver.Value) []driver.NamedValue {
	named := make([]driver.NamedValue, len(args))
	for i, v := range args {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return named
}

// --- Transaction ---

// sqlTx implements driver.Tx.
type sqlTx struct {
	conn *Conn
}

var _ driver.Tx = (*sqlTx)(nil)

// Commit implements driver.Tx.
func (tx *sqlTx) Commit() error {
	return tx.conn.Commit(context.Background())
}

// Rollback implements driver.Tx.
func (tx *sqlTx) Rollback() error {
	return tx.conn.Rollback(context.Background())
}
