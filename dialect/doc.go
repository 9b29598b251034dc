// Package dialect defines the database dialect names and the interfaces
// statements are executed through.
//
// # Supported Dialects
//
//   - SQLServer: Microsoft SQL Server, bracket-quoted identifiers and @p0 placeholders
//   - Postgres: PostgreSQL, double-quoted identifiers and $1 placeholders
//   - MySQL: MySQL/MariaDB, backquoted identifiers and ? placeholders
//   - SQLite: SQLite, double-quoted identifiers and ? placeholders
//
// The formatting rules of each dialect live in package dialect/sql.
//
// # Driver Interface
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// Both Driver and Tx implement ExecQuerier, so a batch statement runs the
// same way inside and outside a transaction:
//
//	drv, err := sql.Open(dialect.Postgres, "postgres://...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//	client, err := batch.New(drv)
package dialect
