package dialect

import (
	"context"
)

// Dialect names.
const (
	Postgres  = "postgres"
	MySQL     = "mysql"
	SQLite    = "sqlite"
	SQLServer = "sqlserver"
)

// ExecQuerier wraps the two database operations.
type ExecQuerier interface {
	// Exec executes a statement that returns no rows. When v is a *sql.Result
	// it receives the result of the statement.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a query that returns rows into v, a *sql.Rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the interface that wraps all necessary operations for database
// connections.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	Tx(context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx wraps the Exec and Query operations in a transaction.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}
