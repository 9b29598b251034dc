package batch

import (
	"context"

	"github.com/syssam/batchql/compiler/analyze"
	"github.com/syssam/batchql/compiler/ir"
	"github.com/syssam/batchql/compiler/translate"
	"github.com/syssam/batchql/dialect/sql"
	ql "github.com/syssam/batchql/querylanguage"
	"github.com/syssam/batchql/schema"
)

// QueryOption configures a single statement.
type QueryOption func(*query)

type query struct {
	args          []any
	ignoreFilters bool
	columns       []string
	vars          [][2]string
}

// Args supplies the values of ql.Arg references in the filter and the
// update description.
func Args(args ...any) QueryOption {
	return func(q *query) { q.args = append(q.args, args...) }
}

// IgnoreQueryFilters leaves the query filters of the entity out of the
// statement.
func IgnoreQueryFilters() QueryOption {
	return func(q *query) { q.ignoreFilters = true }
}

// Columns restricts value updates to the listed members. Entries of a
// value map outside the list are skipped; members of a struct value in the
// list are assigned even when they hold zero values.
func Columns(members ...string) QueryOption {
	return func(q *query) { q.columns = append(q.columns, members...) }
}

// SessionVar sets a session variable on the connection before the statement
// runs, such as the tenant read by a row-level security policy. Outside a
// transaction the variable is reset before the connection is reused.
//
//	client.Delete(ctx, Item{}, where, batch.SessionVar("app.tenant", "acme"))
func SessionVar(name, value string) QueryOption {
	return func(q *query) { q.vars = append(q.vars, [2]string{name, value}) }
}

// withVars returns ctx carrying the session variables of opts.
func withVars(ctx context.Context, opts []QueryOption) context.Context {
	for _, v := range newQuery(opts).vars {
		ctx = sql.WithVar(ctx, v[0], v[1])
	}
	return ctx
}

func newQuery(opts []QueryOption) *query {
	q := &query{}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Delete deletes the rows of model matching where and returns their
// number. A nil where deletes every row that passes the query filters.
// The model is a value or pointer of a mapped type, or an entity name.
func (c *Client) Delete(ctx context.Context, model any, where ql.P, opts ...QueryOption) (int, error) {
	g, err := c.CompileDelete(model, where, opts...)
	if err != nil {
		return 0, err
	}
	return c.Exec(withVars(ctx, opts), g)
}

// Update assigns values to the rows of model matching where. Keys of
// values are member paths or shadow column names; a value may be an
// expression over the row, such as ql.Add(ql.F("Quantity"), ql.V(1)).
func (c *Client) Update(ctx context.Context, model any, values map[string]any, where ql.P, opts ...QueryOption) (int, error) {
	g, err := c.CompileUpdate(model, values, where, opts...)
	if err != nil {
		return 0, err
	}
	return c.Exec(withVars(ctx, opts), g)
}

// UpdateFunc applies the bindings of set to the rows of model matching
// where. Unbound members keep their values.
func (c *Client) UpdateFunc(ctx context.Context, model any, set *ql.ObjectExpr, where ql.P, opts ...QueryOption) (int, error) {
	g, err := c.CompileUpdateFunc(model, set, where, opts...)
	if err != nil {
		return 0, err
	}
	return c.Exec(withVars(ctx, opts), g)
}

// UpdateValues assigns the members of v, a value of a mapped type, to the
// rows matching where. Without Columns, members holding non-zero values
// are assigned except key and computed ones.
func (c *Client) UpdateValues(ctx context.Context, v any, where ql.P, opts ...QueryOption) (int, error) {
	g, err := c.CompileUpdateValues(v, where, opts...)
	if err != nil {
		return 0, err
	}
	return c.Exec(withVars(ctx, opts), g)
}

// CompileDelete returns the statement Delete would execute.
func (c *Client) CompileDelete(model any, where ql.P, opts ...QueryOption) (*sql.Generated, error) {
	q := newQuery(opts)
	d, err := c.registry.ResolveValue(model)
	if err != nil {
		return nil, err
	}
	w, err := analyze.New(d, q.args...).Predicate(where)
	if err != nil {
		return nil, err
	}
	stmt, err := translate.Delete(d, w, c.translateOptions(q)...)
	if err != nil {
		return nil, err
	}
	return c.render(d, stmt)
}

// CompileUpdate returns the statement Update would execute.
func (c *Client) CompileUpdate(model any, values map[string]any, where ql.P, opts ...QueryOption) (*sql.Generated, error) {
	return c.compileUpdate(model, where, opts, func(a *analyze.Analyzer, q *query) ([]*ir.Assignment, error) {
		return a.Values(values, q.columns...)
	})
}

// CompileUpdateFunc returns the statement UpdateFunc would execute.
func (c *Client) CompileUpdateFunc(model any, set *ql.ObjectExpr, where ql.P, opts ...QueryOption) (*sql.Generated, error) {
	return c.compileUpdate(model, where, opts, func(a *analyze.Analyzer, _ *query) ([]*ir.Assignment, error) {
		return a.Selector(set)
	})
}

// CompileUpdateValues returns the statement UpdateValues would execute.
func (c *Client) CompileUpdateValues(v any, where ql.P, opts ...QueryOption) (*sql.Generated, error) {
	return c.compileUpdate(v, where, opts, func(a *analyze.Analyzer, q *query) ([]*ir.Assignment, error) {
		return a.Struct(v, q.columns...)
	})
}

func (c *Client) compileUpdate(model any, where ql.P, opts []QueryOption, assign func(*analyze.Analyzer, *query) ([]*ir.Assignment, error)) (*sql.Generated, error) {
	q := newQuery(opts)
	d, err := c.registry.ResolveValue(model)
	if err != nil {
		return nil, err
	}
	a := analyze.New(d, q.args...)
	assigns, err := assign(a, q)
	if err != nil {
		return nil, err
	}
	w, err := a.Predicate(where)
	if err != nil {
		return nil, err
	}
	stmt, err := translate.Update(d, assigns, w, c.translateOptions(q)...)
	if err != nil {
		return nil, err
	}
	return c.render(d, stmt)
}

func (c *Client) translateOptions(q *query) []translate.Option {
	opts := []translate.Option{translate.WithTokenPolicy(c.policy)}
	if q.ignoreFilters {
		opts = append(opts, translate.IgnoreFilters())
	}
	return opts
}

func (c *Client) render(d *schema.Descriptor, stmt *sql.Statement) (*sql.Generated, error) {
	g, err := sql.Render(stmt, c.dialect)
	if err != nil {
		return nil, err
	}
	c.log.Debug("batchql: compiled statement",
		"entity", d.Name,
		"version", d.Version,
		"op", g.Op.String(),
		"dialect", g.Dialect,
		"query", g.Query,
		"args", len(g.Args),
	)
	return g, nil
}

// Exec executes a compiled statement and returns the number of affected
// rows.
func (c *Client) Exec(ctx context.Context, g *sql.Generated) (int, error) {
	if c.driver == nil {
		return 0, errNoDriver
	}
	n, err := sql.ExecStatement(ctx, c.driver, g)
	return int(n), err
}
