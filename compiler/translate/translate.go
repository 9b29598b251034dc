// Package translate turns analyzed expressions into dialect-neutral batch
// statements.
//
// Predicates become WHERE fragments and assignments become SET lists.
// Every constant and parameter is bound as an argument, in the order the
// fragment is read. The entity filter of the descriptor is joined to the
// caller's predicate with AND unless filters are ignored.
package translate

import (
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/syssam/batchql"
	"github.com/syssam/batchql/compiler/analyze"
	"github.com/syssam/batchql/compiler/ir"
	"github.com/syssam/batchql/dialect/sql"
	ql "github.com/syssam/batchql/querylanguage"
	"github.com/syssam/batchql/schema"
)

// Option configures a translation.
type Option func(*config)

type config struct {
	policy        TokenPolicy
	ignoreFilters bool
}

// WithTokenPolicy sets the concurrency token policy of updates.
func WithTokenPolicy(p TokenPolicy) Option {
	return func(c *config) { c.policy = p }
}

// IgnoreFilters leaves the entity filter out of the statement.
func IgnoreFilters() Option {
	return func(c *config) { c.ignoreFilters = true }
}

func newConfig(opts []Option) *config {
	c := &config{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Delete returns the DELETE statement of the rows of d matching where.
// A nil predicate matches all rows that pass the entity filter.
func Delete(d *schema.Descriptor, where ir.Pred, opts ...Option) (*sql.Statement, error) {
	cfg := newConfig(opts)
	w, err := Where(d, where, cfg.ignoreFilters)
	if err != nil {
		return nil, err
	}
	return &sql.Statement{Op: sql.OpDelete, Table: table(d), Where: w}, nil
}

// Update returns the UPDATE statement applying assigns to the rows of d
// matching where.
func Update(d *schema.Descriptor, assigns []*ir.Assignment, where ir.Pred, opts ...Option) (*sql.Statement, error) {
	cfg := newConfig(opts)
	assigns, err := checkAssignments(d, assigns, cfg.policy)
	if err != nil {
		return nil, err
	}
	set := make([]sql.Assignment, 0, len(assigns))
	for _, a := range assigns {
		b := sql.B()
		if err := value(b, a.X); err != nil {
			return nil, err
		}
		set = append(set, sql.Assignment{Column: a.Column.Name, Value: b})
	}
	w, err := Where(d, where, cfg.ignoreFilters)
	if err != nil {
		return nil, err
	}
	return &sql.Statement{Op: sql.OpUpdate, Table: table(d), Set: set, Where: w}, nil
}

// Where returns the WHERE fragment of p joined with the entity filter of d.
// The caller's predicate comes first. It returns an empty fragment when
// there is nothing to filter on.
func Where(d *schema.Descriptor, p ir.Pred, ignoreFilters bool) (*sql.Builder, error) {
	if !ignoreFilters && d.Filter != nil {
		f, err := analyze.New(d).Predicate(d.Filter)
		if err != nil {
			return nil, fmt.Errorf("batchql: filter of %s: %w", d.Name, err)
		}
		if p == nil {
			p = f
		} else {
			p = &ir.Logic{Op: ql.OpAnd, Xs: []ir.Pred{p, f}}
		}
	}
	return Predicate(p)
}

// Predicate returns the fragment of p, or an empty fragment for nil.
func Predicate(p ir.Pred) (*sql.Builder, error) {
	b := sql.B()
	if p == nil {
		return b, nil
	}
	if err := pred(b, p); err != nil {
		return nil, err
	}
	return b, nil
}

func table(d *schema.Descriptor) sql.Table {
	return sql.Table{Schema: d.Table.Schema, Name: d.Table.Name}
}

var comparisonOps = map[ql.Op]string{
	ql.OpEQ:  " = ",
	ql.OpNEQ: " <> ",
	ql.OpGT:  " > ",
	ql.OpGTE: " >= ",
	ql.OpLT:  " < ",
	ql.OpLTE: " <= ",
}

var arithOps = map[ql.Op]string{
	ql.OpAdd: " + ",
	ql.OpSub: " - ",
	ql.OpMul: " * ",
	ql.OpDiv: " / ",
	ql.OpMod: " % ",
}

func pred(b *sql.Builder, p ir.Pred) error {
	switch p := p.(type) {
	case *ir.Logic:
		return logic(b, p)
	case *ir.Not:
		var err error
		b.Keyword("NOT").Pad().Nested(func(b *sql.Builder) { err = pred(b, p.X) })
		return err
	case *ir.Comparison:
		op, ok := comparisonOps[p.Op]
		if !ok {
			return unsupported(p.Op.String(), "not a comparison")
		}
		if err := value(b, p.X); err != nil {
			return err
		}
		b.WriteString(op)
		return value(b, p.Y)
	case *ir.IsNull:
		if err := value(b, p.X); err != nil {
			return err
		}
		b.Pad().Keyword("IS")
		if p.Negated {
			b.Pad().Keyword("NOT")
		}
		b.Pad().Keyword("NULL")
		return nil
	case *ir.In:
		return in(b, p)
	case *ir.MethodCall:
		return call(b, p)
	}
	return unsupported(fmt.Sprintf("%T", p), "unknown predicate")
}

// logic joins the operands with the operator. Operands of the other
// operator are parenthesized; those of the same operator are not, as
// AND and OR are associative.
func logic(b *sql.Builder, p *ir.Logic) error {
	var kw string
	switch p.Op {
	case ql.OpAnd:
		kw = "AND"
	case ql.OpOr:
		kw = "OR"
	default:
		return unsupported(p.Op.String(), "not a logical operator")
	}
	// An empty OR matches no rows and an empty AND matches every row.
	if len(p.Xs) == 0 {
		if p.Op == ql.OpOr {
			b.WriteString("1 = 0")
		} else {
			b.WriteString("1 = 1")
		}
		return nil
	}
	for i, x := range p.Xs {
		if i > 0 {
			b.Pad().Keyword(kw).Pad()
		}
		var err error
		if l, ok := x.(*ir.Logic); ok && l.Op != p.Op {
			b.Nested(func(b *sql.Builder) { err = logic(b, l) })
		} else {
			err = pred(b, x)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// in renders membership tests. An empty list matches no rows, or every
// row when negated.
func in(b *sql.Builder, p *ir.In) error {
	if len(p.List) == 0 {
		if p.Negated {
			b.WriteString("1 = 1")
		} else {
			b.WriteString("1 = 0")
		}
		return nil
	}
	if err := value(b, p.X); err != nil {
		return err
	}
	if p.Negated {
		b.Pad().Keyword("NOT")
	}
	b.Pad().Keyword("IN").WriteString(" (")
	for i, v := range p.List {
		if i > 0 {
			b.Comma()
		}
		if err := value(b, v); err != nil {
			return err
		}
	}
	b.WriteString(")")
	return nil
}

func call(b *sql.Builder, p *ir.MethodCall) error {
	v, _ := ir.BoundValue(p.Arg)
	s, ok := v.(string)
	if !ok {
		return unsupported(string(p.Func), fmt.Sprintf("argument must be a string value, got %T", v))
	}
	var match sql.LikeMatch
	switch p.Func {
	case ql.FuncContains:
		match = sql.LikeContains
	case ql.FuncHasPrefix:
		match = sql.LikePrefix
	case ql.FuncHasSuffix:
		match = sql.LikeSuffix
	case ql.FuncContainsFold, ql.FuncEqualFold:
		b.Keyword("LOWER").WriteString("(")
		if err := value(b, p.Target); err != nil {
			return err
		}
		b.WriteString(")")
		lower := cases.Lower(language.Und).String(s)
		if p.Func == ql.FuncEqualFold {
			b.WriteString(" = ").Arg(lower)
		} else {
			b.Pad().Keyword("LIKE").Pad().Like(lower, sql.LikeContains)
		}
		return nil
	case ql.FuncMatches:
		x := sql.B()
		if err := value(x, p.Target); err != nil {
			return err
		}
		b.Regexp(x, sql.B().Arg(s))
		return nil
	default:
		return unsupported(string(p.Func), "not a predicate")
	}
	if err := value(b, p.Target); err != nil {
		return err
	}
	b.Pad().Keyword("LIKE").Pad().Like(s, match)
	return nil
}

func value(b *sql.Builder, v ir.Value) error {
	switch v := v.(type) {
	case *ir.Column:
		b.Ident(v.Column.Name)
	case *ir.Const:
		b.Arg(v.V)
	case *ir.Param:
		b.Arg(v.V)
	case *ir.Arith:
		op, ok := arithOps[v.Op]
		if !ok {
			return unsupported(v.Op.String(), "not an arithmetic operator")
		}
		if err := operand(b, v.X); err != nil {
			return err
		}
		b.WriteString(op)
		return operand(b, v.Y)
	case *ir.Negate:
		b.WriteString("-")
		return operand(b, v.X)
	case *ir.Conditional:
		b.Keyword("CASE WHEN").Pad()
		if err := pred(b, v.Cond); err != nil {
			return err
		}
		b.Pad().Keyword("THEN").Pad()
		if err := value(b, v.Then); err != nil {
			return err
		}
		b.Pad().Keyword("ELSE").Pad()
		if err := value(b, v.Else); err != nil {
			return err
		}
		b.Pad().Keyword("END")
	case *ir.Concat:
		xs := make([]*sql.Builder, len(v.Xs))
		for i, x := range v.Xs {
			xs[i] = sql.B()
			if err := value(xs[i], x); err != nil {
				return err
			}
		}
		b.Concat(xs...)
	case *ir.Coalesce:
		b.Keyword("COALESCE").WriteString("(")
		for i, x := range v.Xs {
			if i > 0 {
				b.Comma()
			}
			if err := value(b, x); err != nil {
				return err
			}
		}
		b.WriteString(")")
	default:
		return unsupported(fmt.Sprintf("%T", v), "unknown value")
	}
	return nil
}

// operand renders an operand of an arithmetic operator, parenthesizing
// nested operations.
func operand(b *sql.Builder, v ir.Value) error {
	switch v.(type) {
	case *ir.Arith, *ir.Negate:
		var err error
		b.Nested(func(b *sql.Builder) { err = value(b, v) })
		return err
	}
	return value(b, v)
}

func unsupported(construct, reason string) error {
	return batchql.NewUnsupportedExpressionError(construct, reason)
}
