package sql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/syssam/batchql/dialect"
)

// Driver executes batch statements over a database/sql connection.
type Driver struct {
	Conn
	dialect string
}

// NewDriver returns a Driver for the named dialect or database/sql driver.
func NewDriver(name string, c Conn) *Driver {
	return &Driver{dialect: name, Conn: c}
}

// Open opens a database/sql handle with the registered driver name and
// wraps it in a Driver.
//
//	drv, err := sql.Open("pgx", "postgres://localhost/app")
func Open(name, source string) (*Driver, error) {
	db, err := sql.Open(name, source)
	if err != nil {
		return nil, err
	}
	return OpenDB(name, db), nil
}

// OpenDB wraps an open *sql.DB.
func OpenDB(name string, db *sql.DB) *Driver {
	return NewDriver(name, Conn{db, name})
}

// DB returns the wrapped *sql.DB.
func (d Driver) DB() *sql.DB {
	return d.ExecQuerier.(*sql.DB)
}

// driverDialects maps database/sql driver names to dialects.
var driverDialects = map[string]string{
	"pgx":     dialect.Postgres,
	"mssql":   dialect.SQLServer,
	"sqlite3": dialect.SQLite,
}

// Dialect returns the dialect of the driver. Driver names that only prefix
// a dialect, such as wrapped "postgres-otel" drivers, are reduced to it.
func (d Driver) Dialect() string {
	return dialectOf(d.dialect)
}

func dialectOf(name string) string {
	if n, ok := driverDialects[name]; ok {
		return n
	}
	for _, n := range []string{dialect.MySQL, dialect.SQLite, dialect.Postgres, dialect.SQLServer} {
		if strings.HasPrefix(name, n) {
			return n
		}
	}
	return name
}

// Tx starts a transaction.
func (d *Driver) Tx(ctx context.Context) (dialect.Tx, error) {
	return d.BeginTx(ctx, nil)
}

// BeginTx starts a transaction with options.
func (d *Driver) BeginTx(ctx context.Context, opts *TxOptions) (dialect.Tx, error) {
	tx, err := d.DB().BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{Conn: Conn{tx, d.dialect}, Tx: tx}, nil
}

// Close closes the database handle.
func (d *Driver) Close() error { return d.DB().Close() }

// Tx is a transaction opened by a Driver.
type Tx struct {
	Conn
	driver.Tx
}

// ExecQuerier is implemented by *sql.DB, *sql.Tx and *sql.Conn.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Conn adapts an ExecQuerier to dialect.ExecQuerier.
type Conn struct {
	ExecQuerier
	dialect string
}

// Exec executes query. Driver errors are returned as they are so callers
// can classify them.
func (c Conn) Exec(ctx context.Context, query string, args, v any) (rerr error) {
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect []any for args", args)
	}
	ex, cf, err := c.maySetVars(ctx)
	if err != nil {
		return err
	}
	if cf != nil {
		defer func() { rerr = errors.Join(rerr, cf()) }()
	}
	switch v := v.(type) {
	case nil:
		_, err = ex.ExecContext(ctx, query, argv...)
		return err
	case *sql.Result:
		res, err := ex.ExecContext(ctx, query, argv...)
		if err != nil {
			return err
		}
		*v = res
		return nil
	default:
		return fmt.Errorf("dialect/sql: invalid type %T. expect *sql.Result", v)
	}
}

// Query executes query and stores the rows in v, a *Rows.
func (c Conn) Query(ctx context.Context, query string, args, v any) error {
	vr, ok := v.(*Rows)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect *sql.Rows", v)
	}
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect []any for args", args)
	}
	ex, cf, err := c.maySetVars(ctx)
	if err != nil {
		return err
	}
	rows, err := ex.QueryContext(ctx, query, argv...)
	if err != nil {
		if cf != nil {
			err = errors.Join(err, cf())
		}
		return err
	}
	*vr = Rows{rows}
	if cf != nil {
		vr.ColumnScanner = rowsWithCloser{rows, cf}
	}
	return nil
}

type ctxVarsKey struct{}

type sessionVar struct{ name, value string }

// WithVar returns a context carrying a session variable that is set on the
// connection before each statement executed with it. On a *sql.DB the
// statement runs on a dedicated connection, and the variable is reset
// before the connection returns to the pool.
func WithVar(ctx context.Context, name, value string) context.Context {
	vars, _ := ctx.Value(ctxVarsKey{}).([]sessionVar)
	vars = append(vars[:len(vars):len(vars)], sessionVar{name, value})
	return context.WithValue(ctx, ctxVarsKey{}, vars)
}

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

func isValidIdentifier(s string) bool {
	return len(s) <= 128 && identRe.MatchString(s)
}

// quoteValue renders s as a single-quoted SQL string literal body.
func quoteValue(s string) string {
	if !strings.ContainsAny(s, `'\`) {
		return s
	}
	return strings.NewReplacer(`\`, `\\`, "'", "''").Replace(s)
}

// maySetVars returns the ExecQuerier the statement runs on, with session
// variables set, and a release func when a connection was taken.
func (c Conn) maySetVars(ctx context.Context) (ExecQuerier, func() error, error) {
	vars, _ := ctx.Value(ctxVarsKey{}).([]sessionVar)
	if len(vars) == 0 {
		return c, nil, nil
	}
	var (
		ex      ExecQuerier
		release func() error
		reset   []string
		seen    = make(map[string]bool, len(vars))
	)
	switch e := c.ExecQuerier.(type) {
	case *sql.Tx:
		ex = e
	case *sql.DB:
		conn, err := e.Conn(ctx)
		if err != nil {
			return nil, nil, err
		}
		ex, release = conn, conn.Close
	default:
		return nil, nil, fmt.Errorf("dialect/sql: session variables need *sql.DB or *sql.Tx, got %T", c.ExecQuerier)
	}
	fail := func(err error) (ExecQuerier, func() error, error) {
		if release != nil {
			err = errors.Join(err, release())
		}
		return nil, nil, err
	}
	for _, v := range vars {
		if !isValidIdentifier(v.name) {
			return fail(fmt.Errorf("dialect/sql: invalid session variable name: %q", v.name))
		}
		if !seen[v.name] {
			seen[v.name] = true
			switch dialectOf(c.dialect) {
			case dialect.Postgres:
				reset = append(reset, "RESET "+v.name)
			case dialect.MySQL:
				reset = append(reset, "SET "+v.name+" = NULL")
			}
		}
		if _, err := ex.ExecContext(ctx, fmt.Sprintf("SET %s = '%s'", v.name, quoteValue(v.value))); err != nil {
			return fail(err)
		}
	}
	if release != nil && len(reset) > 0 {
		closeConn := release
		// The caller's context may be done by the time the connection is
		// released; the reset runs on its own deadline.
		release = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for _, q := range reset {
				if _, err := ex.ExecContext(ctx, q); err != nil {
					return errors.Join(err, closeConn())
				}
			}
			return closeConn()
		}
	}
	return ex, release, nil
}

type (
	// Rows wraps sql.Rows to avoid copying its locks.
	Rows struct{ ColumnScanner }
	// Result is an alias to sql.Result.
	Result = sql.Result
	// TxOptions is an alias to sql.TxOptions.
	TxOptions = sql.TxOptions
)

// ColumnScanner is the subset of *sql.Rows used to read results.
type ColumnScanner interface {
	Close() error
	ColumnTypes() ([]*sql.ColumnType, error)
	Columns() ([]string, error)
	Err() error
	Next() bool
	NextResultSet() bool
	Scan(dest ...any) error
}

type rowsWithCloser struct {
	ColumnScanner
	closer func() error
}

func (r rowsWithCloser) Close() error {
	return errors.Join(r.ColumnScanner.Close(), r.closer())
}

var _ dialect.Driver = (*Driver)(nil)
