package querylanguage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// An Op represents an operator.
type Op int

// Operators.
const (
	OpAnd   Op = iota // logical and
	OpOr              // logical or
	OpNot             // logical negation
	OpEQ              // ==
	OpNEQ             // !=
	OpGT              // >
	OpGTE             // >=
	OpLT              // <
	OpLTE             // <=
	OpIn              // IN
	OpNotIn           // NOT IN
	OpAdd             // +
	OpSub             // -
	OpMul             // *
	OpDiv             // /
	OpMod             // %
	OpNeg             // unary minus
)

var ops = [...]string{
	OpAnd:   "&&",
	OpOr:    "||",
	OpNot:   "!",
	OpEQ:    "==",
	OpNEQ:   "!=",
	OpGT:    ">",
	OpGTE:   ">=",
	OpLT:    "<",
	OpLTE:   "<=",
	OpIn:    "in",
	OpNotIn: "not in",
	OpAdd:   "+",
	OpSub:   "-",
	OpMul:   "*",
	OpDiv:   "/",
	OpMod:   "%",
	OpNeg:   "-",
}

// String returns the text representation of an operator.
func (o Op) String() string {
	if o >= 0 && int(o) < len(ops) {
		return ops[o]
	}
	return "op(" + strconv.Itoa(int(o)) + ")"
}

// Comparison reports whether the operator compares two values.
func (o Op) Comparison() bool {
	return o >= OpEQ && o <= OpNotIn
}

// Arithmetic reports whether the operator is a binary arithmetic operator.
func (o Op) Arithmetic() bool {
	return o >= OpAdd && o <= OpMod
}

// precedence of binary operators; higher binds tighter.
func (o Op) precedence() int {
	switch {
	case o == OpOr:
		return 1
	case o == OpAnd:
		return 2
	case o.Comparison():
		return 3
	case o == OpAdd, o == OpSub:
		return 4
	case o == OpMul, o == OpDiv, o == OpMod:
		return 5
	}
	return 6
}

// A Func represents a function expression.
type Func string

// Supported functions.
const (
	FuncEqualFold    Func = "equal_fold"    // case-insensitive equality
	FuncContains     Func = "contains"      // substring
	FuncContainsFold Func = "contains_fold" // case-insensitive substring
	FuncHasPrefix    Func = "has_prefix"    // prefix
	FuncHasSuffix    Func = "has_suffix"    // suffix
	FuncMatches      Func = "matches"       // regular expression
	FuncHasEdge      Func = "has_edge"      // edge traversal
	FuncConcat       Func = "concat"        // string concatenation
	FuncCoalesce     Func = "coalesce"      // first non-null argument
)

type (
	// Expr represents a query expression. All expressions implement the Expr interface.
	Expr interface {
		expr()
		fmt.Stringer
	}

	// P represents an expression that returns a boolean value.
	P interface {
		Expr
		Negate() P
	}

	// UnaryExpr represents a unary expression: !x or -x.
	UnaryExpr struct {
		Op Op
		X  Expr
	}

	// BinaryExpr represents a binary expression.
	BinaryExpr struct {
		Op   Op
		X, Y Expr
	}

	// NaryExpr represents a logical expression over more than two operands.
	NaryExpr struct {
		Op Op
		Xs []Expr
	}

	// CallExpr represents a function call with its arguments.
	CallExpr struct {
		Func Func
		Args []Expr
	}

	// CondExpr represents a conditional value: cond(p, then, else).
	CondExpr struct {
		Cond P
		Then Expr
		Else Expr
	}

	// ListExpr represents a list literal.
	ListExpr struct {
		X []Expr
	}

	// Field represents a member of the entity. Nested members of owned
	// types are addressed with a dotted path, for example "Audit.ChangedBy".
	Field struct {
		Name string
	}

	// Shadow represents a storage column that has no member on the entity.
	Shadow struct {
		Name string
	}

	// Edge represents an edge in the graph.
	Edge struct {
		Name string
	}

	// Value represents an arbitrary constant value.
	Value struct {
		V any
	}

	// Param represents a value supplied by index at compile time.
	Param struct {
		Index int
	}

	// Binding assigns the value of X to the member Name.
	Binding struct {
		Name string
		X    Expr
	}

	// ObjectExpr represents the new shape of an updated row. Members that
	// are not bound keep their value.
	ObjectExpr struct {
		Bindings []Binding
	}
)

// Not returns a new predicate that negates the given predicate.
func Not(x P) P {
	return &UnaryExpr{Op: OpNot, X: x}
}

// And returns a composed predicate that represents the logical AND of all
// the given predicates.
func And(x, y P, z ...P) P {
	if len(z) == 0 {
		return &BinaryExpr{Op: OpAnd, X: x, Y: y}
	}
	return &NaryExpr{Op: OpAnd, Xs: append([]Expr{x, y}, p2expr(z)...)}
}

// Or returns a composed predicate that represents the logical OR of all the
// given predicates.
func Or(x, y P, z ...P) P {
	if len(z) == 0 {
		return &BinaryExpr{Op: OpOr, X: x, Y: y}
	}
	return &NaryExpr{Op: OpOr, Xs: append([]Expr{x, y}, p2expr(z)...)}
}

// F returns a field expression for the given member path.
func F(name string) *Field {
	return &Field{Name: name}
}

// S returns a shadow column expression.
func S(name string) *Shadow {
	return &Shadow{Name: name}
}

// V returns a constant value expression.
func V(v any) *Value {
	return &Value{V: v}
}

// Arg returns an expression that refers to the argument at index i.
func Arg(i int) *Param {
	return &Param{Index: i}
}

// EQ returns a predicate to check if the expressions are equal.
func EQ(x, y Expr) P {
	return &BinaryExpr{Op: OpEQ, X: x, Y: y}
}

// NEQ returns a predicate to check if the expressions are not equal.
func NEQ(x, y Expr) P {
	return &BinaryExpr{Op: OpNEQ, X: x, Y: y}
}

// GT returns a predicate to check if the expression x > than expression y.
func GT(x, y Expr) P {
	return &BinaryExpr{Op: OpGT, X: x, Y: y}
}

// GTE returns a predicate to check if the expression x >= than expression y.
func GTE(x, y Expr) P {
	return &BinaryExpr{Op: OpGTE, X: x, Y: y}
}

// LT returns a predicate to check if the expression x < than expression y.
func LT(x, y Expr) P {
	return &BinaryExpr{Op: OpLT, X: x, Y: y}
}

// LTE returns a predicate to check if the expression x <= than expression y.
func LTE(x, y Expr) P {
	return &BinaryExpr{Op: OpLTE, X: x, Y: y}
}

// In returns a predicate to check if x is one of the list members.
func In(x Expr, list ...Expr) P {
	return &BinaryExpr{Op: OpIn, X: x, Y: &ListExpr{X: list}}
}

// NotIn returns a predicate to check if x is none of the list members.
func NotIn(x Expr, list ...Expr) P {
	return &BinaryExpr{Op: OpNotIn, X: x, Y: &ListExpr{X: list}}
}

// Add returns the expression x + y.
func Add(x, y Expr) Expr { return &BinaryExpr{Op: OpAdd, X: x, Y: y} }

// Sub returns the expression x - y.
func Sub(x, y Expr) Expr { return &BinaryExpr{Op: OpSub, X: x, Y: y} }

// Mul returns the expression x * y.
func Mul(x, y Expr) Expr { return &BinaryExpr{Op: OpMul, X: x, Y: y} }

// Div returns the expression x / y.
func Div(x, y Expr) Expr { return &BinaryExpr{Op: OpDiv, X: x, Y: y} }

// Mod returns the expression x % y.
func Mod(x, y Expr) Expr { return &BinaryExpr{Op: OpMod, X: x, Y: y} }

// Neg returns the expression -x.
func Neg(x Expr) Expr { return &UnaryExpr{Op: OpNeg, X: x} }

// Concat returns the string concatenation of the given expressions.
func Concat(x Expr, xs ...Expr) Expr {
	return &CallExpr{Func: FuncConcat, Args: append([]Expr{x}, xs...)}
}

// Coalesce returns the first non-null of the given expressions.
func Coalesce(x Expr, xs ...Expr) Expr {
	return &CallExpr{Func: FuncCoalesce, Args: append([]Expr{x}, xs...)}
}

// Cond returns then if p holds, and otherwise els.
func Cond(p P, then, els Expr) Expr {
	return &CondExpr{Cond: p, Then: then, Else: els}
}

// Bind returns a binding of member name to x.
func Bind(name string, x Expr) Binding {
	return Binding{Name: name, X: x}
}

// Object returns a selector over the given bindings.
func Object(bs ...Binding) *ObjectExpr {
	return &ObjectExpr{Bindings: bs}
}

// HasEdge returns a predicate to check if an edge exists (not null).
func HasEdge(name string) P {
	return &CallExpr{
		Func: FuncHasEdge,
		Args: []Expr{&Edge{Name: name}},
	}
}

// HasEdgeWith returns a predicate to check if the "other nodes" that are connected to the
// edge returns true on the provided predicate.
func HasEdgeWith(name string, p ...P) P {
	return &CallExpr{
		Func: FuncHasEdge,
		Args: append([]Expr{&Edge{Name: name}}, p2expr(p)...),
	}
}

// FieldEQ returns a predicate to check if a field is equivalent to a given value.
func FieldEQ(name string, v any) P {
	return &BinaryExpr{Op: OpEQ, X: &Field{Name: name}, Y: &Value{V: v}}
}

// FieldNEQ returns a predicate to check if a field is not equivalent to a given value.
func FieldNEQ(name string, v any) P {
	return &BinaryExpr{Op: OpNEQ, X: &Field{Name: name}, Y: &Value{V: v}}
}

// FieldGT returns a predicate to check if a field is > than the given value.
func FieldGT(name string, v any) P {
	return &BinaryExpr{Op: OpGT, X: &Field{Name: name}, Y: &Value{V: v}}
}

// FieldGTE returns a predicate to check if a field is >= than the given value.
func FieldGTE(name string, v any) P {
	return &BinaryExpr{Op: OpGTE, X: &Field{Name: name}, Y: &Value{V: v}}
}

// FieldLT returns a predicate to check if a field is < than the given value.
func FieldLT(name string, v any) P {
	return &BinaryExpr{Op: OpLT, X: &Field{Name: name}, Y: &Value{V: v}}
}

// FieldLTE returns a predicate to check if a field is <= than the given value.
func FieldLTE(name string, v any) P {
	return &BinaryExpr{Op: OpLTE, X: &Field{Name: name}, Y: &Value{V: v}}
}

// FieldIn returns a predicate to check if the field value matches any value in the given list.
func FieldIn(name string, vs ...any) P {
	return &BinaryExpr{Op: OpIn, X: &Field{Name: name}, Y: values(vs)}
}

// FieldNotIn returns a predicate to check if the field value doesn't match any value in the given list.
func FieldNotIn(name string, vs ...any) P {
	return &BinaryExpr{Op: OpNotIn, X: &Field{Name: name}, Y: values(vs)}
}

// FieldNil returns a predicate to check if a field is nil (null in databases).
func FieldNil(name string) P {
	return &BinaryExpr{Op: OpEQ, X: &Field{Name: name}, Y: (*Value)(nil)}
}

// FieldNotNil returns a predicate to check if a field is not nil (not null in databases).
func FieldNotNil(name string) P {
	return &BinaryExpr{Op: OpNEQ, X: &Field{Name: name}, Y: (*Value)(nil)}
}

// FieldEqualFold returns a predicate to check if a field is equal to the given string under case-folding.
func FieldEqualFold(name string, v string) P {
	return fieldCall(FuncEqualFold, name, v)
}

// FieldContains returns a predicate to check if the field value contains a substr.
// Whether case matters depends on the column collation of the database; use
// FieldContainsFold to ignore case everywhere.
func FieldContains(name string, substr string) P {
	return fieldCall(FuncContains, name, substr)
}

// FieldContainsFold returns a predicate to check if the field value contains a substr under case-folding.
func FieldContainsFold(name string, substr string) P {
	return fieldCall(FuncContainsFold, name, substr)
}

// FieldHasPrefix returns a predicate to check if the field starts with the given prefix.
func FieldHasPrefix(name string, prefix string) P {
	return fieldCall(FuncHasPrefix, name, prefix)
}

// FieldHasSuffix returns a predicate to check if the field ends with the given suffix.
func FieldHasSuffix(name string, suffix string) P {
	return fieldCall(FuncHasSuffix, name, suffix)
}

// FieldMatches returns a predicate to check if the field matches the given regular expression.
func FieldMatches(name string, pattern string) P {
	return fieldCall(FuncMatches, name, pattern)
}

func fieldCall(fn Func, name, v string) P {
	return &CallExpr{Func: fn, Args: []Expr{&Field{Name: name}, &Value{V: v}}}
}

// Negate negates the predicate.
func (e *BinaryExpr) Negate() P { return Not(e) }

// Negate negates the predicate.
func (e *UnaryExpr) Negate() P { return Not(e) }

// Negate negates the predicate.
func (e *NaryExpr) Negate() P { return Not(e) }

// Negate negates the predicate.
func (e *CallExpr) Negate() P { return Not(e) }

// String returns the text representation of a binary expression.
func (e *BinaryExpr) String() string {
	return operand(e.X, e.Op, false) + " " + e.Op.String() + " " + operand(e.Y, e.Op, true)
}

// String returns the text representation of a unary expression.
func (e *UnaryExpr) String() string {
	if e.Op == OpNeg {
		if _, ok := e.X.(*BinaryExpr); ok {
			return "-(" + e.X.String() + ")"
		}
		return "-" + e.X.String()
	}
	return e.Op.String() + "(" + e.X.String() + ")"
}

// String returns the text representation of an n-ary expression.
func (e *NaryExpr) String() string {
	var s strings.Builder
	s.WriteByte('(')
	for i, x := range e.Xs {
		if i > 0 {
			s.WriteString(" " + e.Op.String() + " ")
		}
		s.WriteString(operand(x, e.Op, false))
	}
	s.WriteByte(')')
	return s.String()
}

// String returns the text representation of a call expression.
func (e *CallExpr) String() string {
	return string(e.Func) + "(" + join(e.Args, ", ") + ")"
}

// String returns the text representation of a conditional expression.
func (e *CondExpr) String() string {
	return "cond(" + join([]Expr{e.Cond, e.Then, e.Else}, ", ") + ")"
}

// String returns the text representation of a list.
func (l *ListExpr) String() string {
	return "[" + join(l.X, ",") + "]"
}

// String returns the text representation of a field.
func (f *Field) String() string { return f.Name }

// String returns the text representation of a shadow column.
func (s *Shadow) String() string { return "shadow(" + s.Name + ")" }

// String returns the text representation of an edge.
func (e *Edge) String() string { return e.Name }

// String returns the text representation of a parameter.
func (p *Param) String() string { return "param(" + strconv.Itoa(p.Index) + ")" }

// String returns the text representation of a value.
func (v *Value) String() string {
	if v == nil || v.V == nil {
		return "nil"
	}
	buf, err := json.Marshal(v.V)
	if err != nil {
		return fmt.Sprint(v.V)
	}
	return string(buf)
}

// String returns the text representation of a selector.
func (o *ObjectExpr) String() string {
	var s strings.Builder
	s.WriteByte('{')
	for i, b := range o.Bindings {
		if i > 0 {
			s.WriteString(", ")
		}
		s.WriteString(b.Name + ": " + b.X.String())
	}
	s.WriteByte('}')
	return s.String()
}

// Nil reports whether v represents the nil value.
func (v *Value) Nil() bool { return v == nil || v.V == nil }

// operand prints x as an operand of op, adding parentheses when x binds
// looser than op, or equally on the right of a non-associative operator.
func operand(x Expr, op Op, right bool) string {
	b, ok := x.(*BinaryExpr)
	if !ok {
		return x.String()
	}
	outer, inner := op.precedence(), b.Op.precedence()
	if inner < outer || (right && inner == outer && op != OpAnd && op != OpOr) {
		return "(" + b.String() + ")"
	}
	return b.String()
}

func join(xs []Expr, sep string) string {
	s := make([]string, len(xs))
	for i, x := range xs {
		s[i] = x.String()
	}
	return strings.Join(s, sep)
}

func values(vs []any) *ListExpr {
	list := &ListExpr{X: make([]Expr, len(vs))}
	for i, v := range vs {
		list.X[i] = &Value{V: v}
	}
	return list
}

func p2expr(ps []P) []Expr {
	expr := make([]Expr, len(ps))
	for i := range ps {
		expr[i] = ps[i]
	}
	return expr
}

func (*Field) expr()      {}
func (*Shadow) expr()     {}
func (*Edge) expr()       {}
func (*Value) expr()      {}
func (*Param) expr()      {}
func (*CallExpr) expr()   {}
func (*CondExpr) expr()   {}
func (*ListExpr) expr()   {}
func (*UnaryExpr) expr()  {}
func (*BinaryExpr) expr() {}
func (*NaryExpr) expr()   {}
func (*ObjectExpr) expr() {}
