package trino

import (
	"context"
	"iter"
	"reflect"
)

// Row is one decoded result row.
type Row []any

// ColumnDescription is the DB-API style introspection record for one
// result column.
type ColumnDescription struct {
	// Name is the column name.
	Name string

	// TypeCategory is the derived type grouping.
	TypeCategory TypeCategory

	// DatabaseType is the raw wire type signature.
	DatabaseType string

	// DisplaySize is the declared length for varchar/char columns.
	DisplaySize *int64

	// InternalSize mirrors DisplaySize for fixed-width text types.
	InternalSize *int64

	// Precision and Scale are set for decimal columns and the sub-second
	// precision of temporal columns.
	Precision *int64
	Scale     *int64

	// Nullable is nil: the protocol does not report column nullability.
	Nullable *bool
}

// ResultCursor is the consumer-facing iteration surface over one query at
// a time. Rows are produced lazily: at most the page in hand is buffered,
// and the next page is requested only when the buffer runs out. A cursor
// is not restartable once exhausted; a new Execute replaces the query.
//
// Fetch methods must be driven from one goroutine; Cancel is safe to call
// from another.
type ResultCursor struct {
	exec *QueryExecutor

	executed    bool
	noMorePages bool
	buffer      [][]any
	pos         int
	description []ColumnDescription
	stats       StatementStats
	warnings    []Warning
	updateCount *int64
}

// newResultCursor binds a cursor to an executor.
func newResultCursor(exec *QueryExecutor) *ResultCursor {
	return &ResultCursor{exec: exec}
}

// Execute runs a statement, discarding any previous result. Parameters
// must be supplied as an ordered sequence (a slice); a map, a scalar, or
// a bare []byte is a ProgrammingError raised before any network call.
func (c *ResultCursor) Execute(ctx context.Context, sql string, params any) error {
	ordered, err := orderedParams(params)
	if err != nil {
		return err
	}

	c.executed = false
	c.noMorePages = false
	c.buffer = nil
	c.pos = 0
	c.description = nil
	c.stats = StatementStats{}
	c.warnings = nil
	c.updateCount = nil

	page, err := c.exec.Execute(ctx, sql, ordered)
	if err != nil {
		return err
	}
	c.executed = true
	c.absorbPage(page)
	return nil
}

// orderedParams validates the parameter shape. Any slice or array is
// accepted and flattened to []any; everything else fails fast.
func orderedParams(params any) ([]any, error) {
	if params == nil {
		return nil, nil
	}
	if ordered, ok := params.([]any); ok {
		return ordered, nil
	}
	if _, ok := params.([]byte); ok {
		return nil, &ProgrammingError{Message: "parameters must be an ordered sequence, not a scalar []byte (wrap it: []any{value})"}
	}
	rv := reflect.ValueOf(params)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, &ProgrammingError{Message: "parameters must be an ordered sequence, not " + rv.Kind().String()}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

// absorbPage folds one page into the cursor's buffer and metadata.
func (c *ResultCursor) absorbPage(page *ResultPage) {
	c.stats = page.Stats
	c.warnings = append(c.warnings, page.Warnings...)
	if page.UpdateCount != nil {
		c.updateCount = page.UpdateCount
	}
	if c.description == nil && len(page.Columns) > 0 {
		c.description = describeColumns(page.Columns)
	}
	if len(page.Rows) > 0 {
		c.buffer = page.Rows
		c.pos = 0
	} else {
		c.buffer = nil
		c.pos = 0
	}
	if page.Final {
		c.noMorePages = true
	}
}

// FetchOne returns the next row. The second return is false once the
// result is exhausted; exhaustion is not an error, and re-fetching after
// exhaustion keeps returning the sentinel.
func (c *ResultCursor) FetchOne(ctx context.Context) (Row, bool, error) {
	if !c.executed {
		return nil, false, &ProgrammingError{Message: "fetch called before Execute"}
	}

	for c.pos >= len(c.buffer) {
		if c.noMorePages {
			return nil, false, nil
		}
		page, err := c.exec.Advance(ctx)
		if err != nil {
			return nil, false, err
		}
		if page == nil {
			// The executor went terminal between pages (cancellation).
			c.noMorePages = true
			return nil, false, nil
		}
		c.absorbPage(page)
	}

	row := c.buffer[c.pos]
	c.pos++
	return row, true, nil
}

// Rows returns a single-use iterator over the remaining rows, pulling
// pages lazily as the loop advances. A fetch error is yielded as the
// final element. The iterator is not restartable: once exhausted, a
// second range yields nothing.
func (c *ResultCursor) Rows(ctx context.Context) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for {
			row, ok, err := c.FetchOne(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok {
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// FetchMany returns up to n rows, fewer only at the end of the result.
func (c *ResultCursor) FetchMany(ctx context.Context, n int) ([]Row, error) {
	rows := make([]Row, 0, n)
	for len(rows) < n {
		row, ok, err := c.FetchOne(ctx)
		if err != nil {
			return rows, err
		}
		if !ok {
			break
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// FetchAll drains the remaining rows, driving pagination in server order.
func (c *ResultCursor) FetchAll(ctx context.Context) ([]Row, error) {
	var rows []Row
	for {
		row, ok, err := c.FetchOne(ctx)
		if err != nil {
			return rows, err
		}
		if !ok {
			return rows, nil
		}
		rows = append(rows, row)
	}
}

// Cancel terminates the running query on the server. It returns
// ErrNoActiveQuery when no query was executed or the query already
// finished.
func (c *ResultCursor) Cancel(ctx context.Context) error {
	if c.exec == nil {
		return ErrNoActiveQuery
	}
	return c.exec.Cancel(ctx)
}

// Stats returns the statistics snapshot of the most recently consumed
// page.
func (c *ResultCursor) Stats() StatementStats {
	return c.stats
}

// Warnings returns the warnings accumulated so far for the current query.
func (c *ResultCursor) Warnings() []Warning {
	return c.warnings
}

// Description returns the column introspection records. It is nil until
// the first page carrying column metadata has been consumed.
func (c *ResultCursor) Description() []ColumnDescription {
	return c.description
}

// RowCount returns the affected-row count for DML statements and -1 for
// row-returning statements.
func (c *ResultCursor) RowCount() int64 {
	if c.updateCount != nil {
		return *c.updateCount
	}
	return -1
}

// QueryID returns the server-assigned id of the current query.
func (c *ResultCursor) QueryID() string {
	return c.exec.QueryID()
}

// describeColumns derives the DB-API description from column metadata.
func describeColumns(columns []Column) []ColumnDescription {
	descs := make([]ColumnDescription, len(columns))
	for i, col := range columns {
		desc := ColumnDescription{
			Name:         col.Name,
			DatabaseType: col.Type,
			TypeCategory: CategoryOther,
		}
		if sig, err := ParseTypeSignature(col.Type); err == nil {
			desc.TypeCategory = CategoryForType(sig)
			if sig.HasPrecision {
				p := int64(sig.Precision)
				switch sig.Base {
				case "varchar", "char":
					desc.DisplaySize = &p
					desc.InternalSize = &p
				default:
					desc.Precision = &p
				}
			}
			if sig.HasScale {
				s := int64(sig.Scale)
				desc.Scale = &s
			}
		}
		descs[i] = desc
	}
	return descs
}
