// Package ir holds the typed intermediate form of analyzed expressions.
//
// Analysis resolves every member access of a querylanguage expression to a
// mapped column, folds constants and converts values to their stored form.
// The translator renders the result without consulting the mapping again,
// except for the table and column names carried by the nodes.
package ir

import (
	"strconv"
	"strings"

	"github.com/syssam/batchql/querylanguage"
	"github.com/syssam/batchql/schema"
)

type (
	// Node is implemented by all nodes.
	Node interface {
		node()
		String() string
	}

	// Pred is a node producing a boolean.
	Pred interface {
		Node
		pred()
	}

	// Value is a node producing a scalar.
	Value interface {
		Node
		value()
	}
)

type (
	// Column references a mapped column.
	Column struct {
		Column *schema.Column
	}

	// Const is a literal of the expression. It is bound as a parameter,
	// never inlined.
	Const struct {
		V any
	}

	// Param is a value supplied by index at compile time.
	Param struct {
		Index int
		V     any
	}

	// Arith is a binary arithmetic operation.
	Arith struct {
		Op   querylanguage.Op
		X, Y Value
	}

	// Negate is a unary minus.
	Negate struct {
		X Value
	}

	// Conditional yields Then when Cond holds, and Else otherwise.
	Conditional struct {
		Cond       Pred
		Then, Else Value
	}

	// Concat concatenates text values.
	Concat struct {
		Xs []Value
	}

	// Coalesce yields its first non-null argument.
	Coalesce struct {
		Xs []Value
	}
)

type (
	// Comparison compares two values.
	Comparison struct {
		Op   querylanguage.Op
		X, Y Value
	}

	// In tests membership of X in List.
	In struct {
		X       Value
		List    []Value
		Negated bool
	}

	// IsNull tests X for NULL.
	IsNull struct {
		X       Value
		Negated bool
	}

	// Logic combines predicates with AND or OR. Nested logic of the same
	// operator is flattened by analysis.
	Logic struct {
		Op querylanguage.Op
		Xs []Pred
	}

	// Not negates a predicate.
	Not struct {
		X Pred
	}

	// MethodCall applies a string function to Target. Arg is a Const or a
	// Param holding a string.
	MethodCall struct {
		Func   querylanguage.Func
		Target Value
		Arg    Value
	}
)

// Assignment sets Column to the value of X.
type Assignment struct {
	Column *schema.Column
	X      Value
}

func (a *Assignment) String() string {
	return a.Column.Name + " = " + a.X.String()
}

func (c *Column) String() string { return c.Column.Name }

func (c *Const) String() string { return querylanguage.V(c.V).String() }

func (p *Param) String() string { return "param(" + strconv.Itoa(p.Index) + ")" }

func (a *Arith) String() string {
	return "(" + a.X.String() + " " + a.Op.String() + " " + a.Y.String() + ")"
}

func (n *Negate) String() string { return "-" + n.X.String() }

func (c *Conditional) String() string {
	return "cond(" + c.Cond.String() + ", " + c.Then.String() + ", " + c.Else.String() + ")"
}

func (c *Concat) String() string { return "concat(" + join(c.Xs, ", ") + ")" }

func (c *Coalesce) String() string { return "coalesce(" + join(c.Xs, ", ") + ")" }

func (c *Comparison) String() string {
	return c.X.String() + " " + c.Op.String() + " " + c.Y.String()
}

func (i *In) String() string {
	op := " in "
	if i.Negated {
		op = " not in "
	}
	return i.X.String() + op + "[" + join(i.List, ", ") + "]"
}

func (n *IsNull) String() string {
	if n.Negated {
		return n.X.String() + " != nil"
	}
	return n.X.String() + " == nil"
}

func (l *Logic) String() string {
	s := make([]string, len(l.Xs))
	for i, x := range l.Xs {
		s[i] = x.String()
	}
	return "(" + strings.Join(s, " "+l.Op.String()+" ") + ")"
}

func (n *Not) String() string { return "!(" + n.X.String() + ")" }

func (m *MethodCall) String() string {
	return string(m.Func) + "(" + m.Target.String() + ", " + m.Arg.String() + ")"
}

func join[T Node](xs []T, sep string) string {
	s := make([]string, len(xs))
	for i, x := range xs {
		s[i] = x.String()
	}
	return strings.Join(s, sep)
}

// Walk calls fn for n and its descendants in rendering order: left operand
// first, and the condition of a Conditional before its branches. Walk stops
// descending below a node when fn returns false.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch n := n.(type) {
	case *Arith:
		Walk(n.X, fn)
		Walk(n.Y, fn)
	case *Negate:
		Walk(n.X, fn)
	case *Conditional:
		Walk(n.Cond, fn)
		Walk(n.Then, fn)
		Walk(n.Else, fn)
	case *Concat:
		for _, x := range n.Xs {
			Walk(x, fn)
		}
	case *Coalesce:
		for _, x := range n.Xs {
			Walk(x, fn)
		}
	case *Comparison:
		Walk(n.X, fn)
		Walk(n.Y, fn)
	case *In:
		Walk(n.X, fn)
		for _, x := range n.List {
			Walk(x, fn)
		}
	case *IsNull:
		Walk(n.X, fn)
	case *Logic:
		for _, x := range n.Xs {
			Walk(x, fn)
		}
	case *Not:
		Walk(n.X, fn)
	case *MethodCall:
		Walk(n.Target, fn)
		Walk(n.Arg, fn)
	}
}

// Bound returns the number of values bound as parameters under n.
func Bound(n Node) int {
	count := 0
	Walk(n, func(n Node) bool {
		switch n.(type) {
		case *Const, *Param:
			count++
		}
		return true
	})
	return count
}

// Columns returns the columns referenced under n, in rendering order.
func Columns(n Node) []*schema.Column {
	var cols []*schema.Column
	Walk(n, func(n Node) bool {
		if c, ok := n.(*Column); ok {
			cols = append(cols, c.Column)
		}
		return true
	})
	return cols
}

// IsBound reports whether v is bound as a parameter.
func IsBound(v Value) bool {
	switch v.(type) {
	case *Const, *Param:
		return true
	}
	return false
}

// BoundValue returns the value bound for a Const or Param.
func BoundValue(v Value) (any, bool) {
	switch v := v.(type) {
	case *Const:
		return v.V, true
	case *Param:
		return v.V, true
	}
	return nil, false
}

func (*Column) node()      {}
func (*Const) node()       {}
func (*Param) node()       {}
func (*Arith) node()       {}
func (*Negate) node()      {}
func (*Conditional) node() {}
func (*Concat) node()      {}
func (*Coalesce) node()    {}
func (*Comparison) node()  {}
func (*In) node()          {}
func (*IsNull) node()      {}
func (*Logic) node()       {}
func (*Not) node()         {}
func (*MethodCall) node()  {}

func (*Column) value()      {}
func (*Const) value()       {}
func (*Param) value()       {}
func (*Arith) value()       {}
func (*Negate) value()      {}
func (*Conditional) value() {}
func (*Concat) value()      {}
func (*Coalesce) value()    {}

func (*Comparison) pred() {}
func (*In) pred()         {}
func (*IsNull) pred()     {}
func (*Logic) pred()      {}
func (*Not) pred()        {}
func (*MethodCall) pred() {}
