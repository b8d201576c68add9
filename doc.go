// Package trino is a client for the Trino/Presto HTTP statement protocol.
//
// A statement is submitted with a single POST and its results arrive
// across multiple responses ("pages"), each pointing at the next via a
// follow-up URI. The client drives that protocol end to end: it polls for
// completion, paginates pages into decoded rows, retries transient
// failures with capped jittered backoff, and tracks the transaction and
// session state the server communicates through response headers.
//
// # Getting Started
//
// Open a connection and run a query through a cursor:
//
//	conn, err := trino.NewConn(trino.Config{
//	    Host:    "coordinator.example.com",
//	    User:    "etl",
//	    Catalog: "hive",
//	    Schema:  "default",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
//
//	cur := conn.Cursor()
//	if err := cur.Execute(ctx, "SELECT id, name FROM users WHERE id >= ?", []any{int64(3)}); err != nil {
//	    log.Fatal(err)
//	}
//	rows, err := cur.FetchAll(ctx)
//
// Parameters are encoded as SQL literals and executed through an
// EXECUTE ... USING wrapper; the supported native types cover text,
// booleans, the full 64-bit integer range, exact decimals
// (shopspring/decimal), dates, times and timestamps with and without
// time zones, byte slices, and nested slices and maps.
//
// # Transactions
//
// A connection hosts many independent cursors sharing one transaction
// context. Transaction ids and session properties arrive via response
// headers and are echoed back on every subsequent request:
//
//	err = conn.WithTx(ctx, func(cur *trino.ResultCursor) error {
//	    return cur.Execute(ctx, "INSERT INTO audit VALUES (1)", nil)
//	})
//
// # database/sql
//
// The package also registers a database/sql driver:
//
//	db, err := sql.Open("trino", "trino://etl@coordinator.example.com:8080/hive/default")
package trino
