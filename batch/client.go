// Package batch deletes and updates sets of rows with one statement.
//
// A Client compiles a filter and an update description over a mapped
// entity into a single DELETE or UPDATE statement and executes it without
// loading any row:
//
//	client, err := batch.Open("sqlite", "file:app.db", batch.WithRegistry(reg))
//	n, err := client.Delete(ctx, Item{}, ql.FieldGT("Quantity", 10))
//	n, err = client.UpdateFunc(ctx, Item{},
//		ql.Object(ql.Bind("Quantity", ql.Add(ql.F("Quantity"), ql.V(1)))),
//		ql.FieldEQ("Active", true),
//	)
//
// The Compile methods return the statement instead of executing it.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/syssam/batchql/compiler/translate"
	"github.com/syssam/batchql/dialect"
	"github.com/syssam/batchql/dialect/sql"
	"github.com/syssam/batchql/schema"
)

// Client compiles and executes batch statements. It is safe for concurrent
// use.
type Client struct {
	config
}

type config struct {
	// driver executes statements. Within a transaction it is the txDriver.
	driver   dialect.Driver
	registry *schema.Registry
	dialect  *sql.Dialect
	name     string
	policy   translate.TokenPolicy
	log      *slog.Logger
	debug    bool
}

// Option configures a Client.
type Option func(*config)

// WithRegistry sets the registry entities are resolved from. A Client
// without one resolves tagged struct types from a private registry.
func WithRegistry(r *schema.Registry) Option {
	return func(c *config) { c.registry = r }
}

// WithDialect renders statements for the named dialect instead of the
// dialect of the driver.
func WithDialect(name string) Option {
	return func(c *config) { c.name = name }
}

// WithTokenPolicy sets how updates treat concurrency tokens.
func WithTokenPolicy(p translate.TokenPolicy) Option {
	return func(c *config) { c.policy = p }
}

// WithLogger sets the logger of compiled statements.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.log = l }
}

// Debug logs every statement sent to the driver.
func Debug() Option {
	return func(c *config) { c.debug = true }
}

// New returns a Client executing statements with drv. A nil driver gives
// a Client that only compiles statements; it requires WithDialect.
func New(drv dialect.Driver, opts ...Option) (*Client, error) {
	cfg := config{driver: drv, log: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.name == "" {
		if cfg.driver == nil {
			return nil, fmt.Errorf("batchql: missing driver or dialect")
		}
		cfg.name = cfg.driver.Dialect()
	}
	d, err := sql.LookupDialect(cfg.name)
	if err != nil {
		return nil, err
	}
	cfg.dialect = d
	if cfg.registry == nil {
		cfg.registry = schema.NewRegistry(schema.WithLogger(cfg.log))
	}
	if cfg.debug && cfg.driver != nil {
		cfg.driver = sql.NewDebugDriver(cfg.driver, cfg.log)
	}
	return &Client{config: cfg}, nil
}

// Open opens a connection with the database/sql driver name and returns a
// Client over it.
func Open(driverName, dataSourceName string, opts ...Option) (*Client, error) {
	drv, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	c, err := New(drv, opts...)
	if err != nil {
		drv.Close()
		return nil, err
	}
	return c, nil
}

// Registry returns the registry entities are resolved from.
func (c *Client) Registry() *schema.Registry { return c.registry }

// Dialect returns the dialect statements are rendered for.
func (c *Client) Dialect() *sql.Dialect { return c.dialect }

// Close closes the database connection.
func (c *Client) Close() error {
	if c.driver == nil {
		return nil
	}
	return c.driver.Close()
}

// Tx starts a transaction. Statements of the returned Tx run inside it.
func (c *Client) Tx(ctx context.Context) (*Tx, error) {
	if c.driver == nil {
		return nil, errNoDriver
	}
	if _, ok := c.driver.(*txDriver); ok {
		return nil, fmt.Errorf("batchql: cannot start a transaction within a transaction")
	}
	tx, err := c.driver.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("batchql: starting a transaction: %w", err)
	}
	cfg := c.config
	cfg.driver = &txDriver{drv: c.driver, tx: tx}
	return &Tx{Client: &Client{config: cfg}, tx: tx}, nil
}

var errNoDriver = errors.New("batchql: client has no driver")

// Tx is a Client bound to a transaction.
type Tx struct {
	*Client
	tx dialect.Tx
}

// Commit commits the transaction.
func (tx *Tx) Commit() error {
	return tx.tx.Commit()
}

// Rollback rolls back the transaction.
func (tx *Tx) Rollback() error {
	return tx.tx.Rollback()
}

// txDriver runs the statements of a Tx on its transaction.
type txDriver struct {
	drv dialect.Driver
	tx  dialect.Tx
}

func (d *txDriver) Exec(ctx context.Context, query string, args, v any) error {
	return d.tx.Exec(ctx, query, args, v)
}

func (d *txDriver) Query(ctx context.Context, query string, args, v any) error {
	return d.tx.Query(ctx, query, args, v)
}

func (d *txDriver) Tx(context.Context) (dialect.Tx, error) { return d.tx, nil }

func (d *txDriver) Close() error { return nil }

func (d *txDriver) Dialect() string { return d.drv.Dialect() }
