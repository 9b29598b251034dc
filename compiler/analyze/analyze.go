// Package analyze resolves querylanguage expressions against an entity
// descriptor and produces their typed intermediate form.
//
// Every member access is resolved to a mapped column before anything is
// rendered. Operations on constants are folded, and values compared with,
// assigned to or listed against a column are converted to the column's
// stored form. Constructs outside the supported grammar fail with an
// UnsupportedExpressionError naming the construct.
package analyze

import (
	"fmt"
	"reflect"

	"github.com/syssam/batchql"
	"github.com/syssam/batchql/compiler/ir"
	ql "github.com/syssam/batchql/querylanguage"
	"github.com/syssam/batchql/schema"
	"github.com/syssam/batchql/schema/field"
)

// Analyzer analyzes expressions over one entity. It holds no state beyond
// its inputs and may be shared between goroutines.
type Analyzer struct {
	desc *schema.Descriptor
	args []any
}

// New returns an Analyzer for expressions over d. Args supply the values
// of param(i) references.
func New(d *schema.Descriptor, args ...any) *Analyzer {
	return &Analyzer{desc: d, args: args}
}

// Predicate analyzes a filter.
func (a *Analyzer) Predicate(p ql.P) (ir.Pred, error) {
	if p == nil {
		return nil, nil
	}
	return a.pred(p)
}

// Value analyzes a scalar expression.
func (a *Analyzer) Value(x ql.Expr) (ir.Value, error) {
	return a.value(x)
}

func (a *Analyzer) pred(x ql.Expr) (ir.Pred, error) {
	switch x := x.(type) {
	case *ql.BinaryExpr:
		switch {
		case x.Op == ql.OpAnd, x.Op == ql.OpOr:
			return a.logic(x.Op, x.X, x.Y)
		case x.Op == ql.OpIn, x.Op == ql.OpNotIn:
			return a.in(x)
		case x.Op.Comparison():
			return a.comparison(x)
		}
		return nil, unsupported(x.Op.String(), "arithmetic is not a predicate")
	case *ql.NaryExpr:
		if x.Op != ql.OpAnd && x.Op != ql.OpOr {
			return nil, unsupported(x.Op.String(), "not a logical operator")
		}
		return a.logic(x.Op, x.Xs...)
	case *ql.UnaryExpr:
		if x.Op != ql.OpNot {
			return nil, unsupported(x.Op.String(), "arithmetic is not a predicate")
		}
		p, err := a.pred(x.X)
		if err != nil {
			return nil, err
		}
		return &ir.Not{X: p}, nil
	case *ql.CallExpr:
		return a.call(x)
	case nil:
		return nil, unsupported("predicate", "missing operand")
	}
	return nil, unsupported(describe(x), "not a predicate")
}

func (a *Analyzer) logic(op ql.Op, xs ...ql.Expr) (ir.Pred, error) {
	l := &ir.Logic{Op: op}
	for _, x := range xs {
		p, err := a.pred(x)
		if err != nil {
			return nil, err
		}
		if inner, ok := p.(*ir.Logic); ok && inner.Op == op {
			l.Xs = append(l.Xs, inner.Xs...)
			continue
		}
		l.Xs = append(l.Xs, p)
	}
	return l, nil
}

func (a *Analyzer) comparison(x *ql.BinaryExpr) (ir.Pred, error) {
	l, err := a.value(x.X)
	if err != nil {
		return nil, err
	}
	r, err := a.value(x.Y)
	if err != nil {
		return nil, err
	}
	if isNil(r) || isNil(l) {
		other := l
		if isNil(l) {
			other = r
		}
		switch x.Op {
		case ql.OpEQ:
			return &ir.IsNull{X: other}, nil
		case ql.OpNEQ:
			return &ir.IsNull{X: other, Negated: true}, nil
		}
		return nil, unsupported(x.Op.String(), "nil can only be compared with == or !=")
	}
	if l, r, err = a.pair(l, r); err != nil {
		return nil, err
	}
	return &ir.Comparison{Op: x.Op, X: l, Y: r}, nil
}

// pair converts a bound value compared with a column to the column's
// stored form.
func (a *Analyzer) pair(l, r ir.Value) (ir.Value, ir.Value, error) {
	var err error
	switch {
	case isColumn(l):
		r, err = a.bind(l.(*ir.Column).Column, r)
	case isColumn(r):
		l, err = a.bind(r.(*ir.Column).Column, l)
	default:
		if err = a.plain(l); err == nil {
			err = a.plain(r)
		}
	}
	return l, r, err
}

func (a *Analyzer) in(x *ql.BinaryExpr) (ir.Pred, error) {
	target, err := a.value(x.X)
	if err != nil {
		return nil, err
	}
	elems, err := a.list(x.Y)
	if err != nil {
		return nil, err
	}
	n := &ir.In{X: target, Negated: x.Op == ql.OpNotIn}
	for _, e := range elems {
		if isColumn(target) {
			e, err = a.bind(target.(*ir.Column).Column, e)
		} else {
			err = a.plain(e)
		}
		if err != nil {
			return nil, err
		}
		n.List = append(n.List, e)
	}
	if !isColumn(target) {
		if err := a.plain(target); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// list returns the elements on the right of an in operator. A value or
// parameter holding a slice contributes one element per slice element.
func (a *Analyzer) list(x ql.Expr) ([]ir.Value, error) {
	var xs []ql.Expr
	switch x := x.(type) {
	case *ql.ListExpr:
		xs = x.X
	case *ql.Value, *ql.Param:
		xs = []ql.Expr{x}
	default:
		return nil, unsupported("in", "right operand must be a list")
	}
	var elems []ir.Value
	for _, e := range xs {
		v, err := a.value(e)
		if err != nil {
			return nil, err
		}
		bv, bound := ir.BoundValue(v)
		rv := reflect.ValueOf(bv)
		if !bound || !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) || isBytes(bv) {
			if _, isList := x.(*ql.ListExpr); !isList {
				return nil, unsupported("in", "right operand must be a list")
			}
			elems = append(elems, v)
			continue
		}
		for i := 0; i < rv.Len(); i++ {
			ev := rv.Index(i).Interface()
			if p, ok := v.(*ir.Param); ok {
				elems = append(elems, &ir.Param{Index: p.Index, V: ev})
			} else {
				elems = append(elems, &ir.Const{V: ev})
			}
		}
	}
	return elems, nil
}

func (a *Analyzer) call(x *ql.CallExpr) (ir.Pred, error) {
	switch x.Func {
	case ql.FuncHasEdge:
		return nil, unsupported(string(x.Func), "navigation predicates are not supported")
	case ql.FuncEqualFold, ql.FuncContains, ql.FuncContainsFold, ql.FuncHasPrefix, ql.FuncHasSuffix, ql.FuncMatches:
	default:
		return nil, unsupported(string(x.Func), "not a predicate")
	}
	if len(x.Args) != 2 {
		return nil, unsupported(string(x.Func), fmt.Sprintf("expects 2 arguments, got %d", len(x.Args)))
	}
	target, err := a.value(x.Args[0])
	if err != nil {
		return nil, err
	}
	if c, ok := target.(*ir.Column); ok {
		if c.Column.HasConverter() {
			return nil, unsupported(string(x.Func), fmt.Sprintf("%s has a value converter", c.Column.Ref()))
		}
		if !c.Column.Type.Textual() {
			return nil, unsupported(string(x.Func), fmt.Sprintf("%s is not a text column", c.Column.Ref()))
		}
	}
	arg, err := a.value(x.Args[1])
	if err != nil {
		return nil, err
	}
	if v, ok := ir.BoundValue(arg); !ok {
		return nil, unsupported(string(x.Func), "argument must be a string value")
	} else if _, ok := v.(string); !ok {
		return nil, unsupported(string(x.Func), fmt.Sprintf("argument must be a string value, got %T", v))
	}
	return &ir.MethodCall{Func: x.Func, Target: target, Arg: arg}, nil
}

func (a *Analyzer) value(x ql.Expr) (ir.Value, error) {
	switch x := x.(type) {
	case *ql.Field, *ql.Shadow:
		c, err := a.column(x)
		if err != nil {
			return nil, err
		}
		return &ir.Column{Column: c}, nil
	case *ql.Value:
		if x.Nil() {
			return &ir.Const{}, nil
		}
		return &ir.Const{V: deref(x.V)}, nil
	case *ql.Param:
		if x.Index < 0 || x.Index >= len(a.args) {
			return nil, unsupported("param", fmt.Sprintf("index %d out of range with %d arguments", x.Index, len(a.args)))
		}
		return &ir.Param{Index: x.Index, V: deref(a.args[x.Index])}, nil
	case *ql.BinaryExpr:
		if x.Op.Arithmetic() {
			return a.arith(x)
		}
		return a.predValue(x)
	case *ql.UnaryExpr:
		if x.Op == ql.OpNeg {
			return a.negate(x)
		}
		return a.predValue(x)
	case *ql.NaryExpr:
		return a.predValue(x)
	case *ql.CallExpr:
		switch x.Func {
		case ql.FuncConcat:
			return a.concat(x)
		case ql.FuncCoalesce:
			return a.coalesce(x)
		}
		return a.predValue(x)
	case *ql.CondExpr:
		return a.cond(x)
	case *ql.Edge:
		return nil, unsupported("edge "+x.Name, "navigation members are not supported")
	case *ql.ListExpr:
		return nil, unsupported("list", "lists are only valid on the right of in")
	case nil:
		return nil, unsupported("value", "missing operand")
	}
	return nil, unsupported(describe(x), "not a value")
}

// predValue analyzes a predicate used as a value.
func (a *Analyzer) predValue(x ql.Expr) (ir.Value, error) {
	p, err := a.pred(x)
	if err != nil {
		return nil, err
	}
	return &ir.Conditional{Cond: p, Then: &ir.Const{V: true}, Else: &ir.Const{V: false}}, nil
}

func (a *Analyzer) arith(x *ql.BinaryExpr) (ir.Value, error) {
	l, err := a.operand(x.X, x.Op.String())
	if err != nil {
		return nil, err
	}
	r, err := a.operand(x.Y, x.Op.String())
	if err != nil {
		return nil, err
	}
	if lv, ok := ir.BoundValue(l); ok {
		if rv, ok := ir.BoundValue(r); ok {
			v, folded, err := fold(x.Op, lv, rv)
			if err != nil {
				return nil, err
			}
			if folded {
				return &ir.Const{V: v}, nil
			}
		}
	}
	return &ir.Arith{Op: x.Op, X: l, Y: r}, nil
}

func (a *Analyzer) negate(x *ql.UnaryExpr) (ir.Value, error) {
	v, err := a.operand(x.X, "-")
	if err != nil {
		return nil, err
	}
	if bv, ok := ir.BoundValue(v); ok {
		n, folded, err := negate(bv)
		if err != nil {
			return nil, err
		}
		if folded {
			return &ir.Const{V: n}, nil
		}
	}
	return &ir.Negate{X: v}, nil
}

// operand analyzes an operand of an arithmetic operator. Converted columns
// have no arithmetic in their stored form.
func (a *Analyzer) operand(x ql.Expr, construct string) (ir.Value, error) {
	v, err := a.value(x)
	if err != nil {
		return nil, err
	}
	if c, ok := v.(*ir.Column); ok && c.Column.HasConverter() {
		return nil, unsupported(construct, fmt.Sprintf("%s has a value converter", c.Column.Ref()))
	}
	return v, nil
}

func (a *Analyzer) concat(x *ql.CallExpr) (ir.Value, error) {
	n := &ir.Concat{}
	folded := true
	for _, arg := range x.Args {
		v, err := a.operand(arg, string(x.Func))
		if err != nil {
			return nil, err
		}
		bv, _ := ir.BoundValue(v)
		_, isString := bv.(string)
		folded = folded && isString
		n.Xs = append(n.Xs, v)
	}
	if folded {
		var s string
		for _, v := range n.Xs {
			bv, _ := ir.BoundValue(v)
			s += bv.(string)
		}
		return &ir.Const{V: s}, nil
	}
	return n, nil
}

func (a *Analyzer) coalesce(x *ql.CallExpr) (ir.Value, error) {
	n := &ir.Coalesce{}
	var target *schema.Column
	for _, arg := range x.Args {
		v, err := a.value(arg)
		if err != nil {
			return nil, err
		}
		if c, ok := v.(*ir.Column); ok && target == nil {
			target = c.Column
		}
		n.Xs = append(n.Xs, v)
	}
	if target != nil {
		for i, v := range n.Xs {
			if c, ok := v.(*ir.Column); ok && c.Column == target {
				continue
			}
			bound, err := a.bind(target, v)
			if err != nil {
				return nil, err
			}
			n.Xs[i] = bound
		}
	}
	return n, nil
}

func (a *Analyzer) cond(x *ql.CondExpr) (ir.Value, error) {
	p, err := a.pred(x.Cond)
	if err != nil {
		return nil, err
	}
	then, err := a.value(x.Then)
	if err != nil {
		return nil, err
	}
	els, err := a.value(x.Else)
	if err != nil {
		return nil, err
	}
	return &ir.Conditional{Cond: p, Then: then, Else: els}, nil
}

// column resolves a member access. Member paths never resolve to shadow
// columns; those are addressed with shadow(name).
func (a *Analyzer) column(x ql.Expr) (*schema.Column, error) {
	var (
		c  *schema.Column
		ok bool
	)
	switch x := x.(type) {
	case *ql.Field:
		if c, ok = a.desc.Member(x.Name); !ok {
			if a.desc.HasOwned(x.Name) {
				return nil, unsupported("member "+x.Name, "owned members are accessed through their own members")
			}
			return nil, batchql.NewUnmappedMemberError(a.desc.Name, x.Name)
		}
	case *ql.Shadow:
		if c, ok = a.desc.Shadow(x.Name); !ok {
			return nil, batchql.NewUnmappedMemberError(a.desc.Name, x.String())
		}
	}
	if err := a.sameTable(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (a *Analyzer) sameTable(c *schema.Column) error {
	if c.Table != a.desc.Table {
		return unsupported("member "+c.Ref(), fmt.Sprintf("stored in table %s, not %s", c.Table, a.desc.Table))
	}
	return nil
}

// bind prepares v for use against column c.
func (a *Analyzer) bind(c *schema.Column, v ir.Value) (ir.Value, error) {
	switch v := v.(type) {
	case *ir.Const:
		s, err := a.store(c, v.V)
		if err != nil {
			return nil, err
		}
		return &ir.Const{V: s}, nil
	case *ir.Param:
		s, err := a.store(c, v.V)
		if err != nil {
			return nil, err
		}
		return &ir.Param{Index: v.Index, V: s}, nil
	case *ir.Column:
		if !sameConverter(c, v.Column) {
			return nil, unsupported("member "+c.Ref(), fmt.Sprintf("cannot be used with %s, their value converters differ", v.Column.Ref()))
		}
		return v, nil
	}
	if c.HasConverter() {
		return nil, unsupported("member "+c.Ref(), "a converted column can only be used with values")
	}
	return v, a.plain(v)
}

// store converts a member value to the stored form of c.
func (a *Analyzer) store(c *schema.Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if c.HasConverter() {
		s, err := c.ToStore(v)
		if err != nil {
			return nil, unsupported("value for "+c.Ref(), err.Error())
		}
		return s, nil
	}
	s, err := field.Coerce(c.Type, v)
	if err != nil {
		return nil, unsupported("value for "+c.Ref(), err.Error())
	}
	return s, nil
}

// plain fails if v refers to a converted column directly.
func (a *Analyzer) plain(v ir.Value) error {
	if c, ok := v.(*ir.Column); ok && c.Column.HasConverter() {
		return unsupported("member "+c.Column.Ref(), "a converted column can only be compared with values")
	}
	return nil
}

func sameConverter(a, b *schema.Column) bool {
	switch {
	case a.Converter == nil && b.Converter == nil:
		return true
	case a.Converter == nil || b.Converter == nil:
		return false
	}
	return a.Converter.Name() == b.Converter.Name()
}

func isColumn(v ir.Value) bool {
	_, ok := v.(*ir.Column)
	return ok
}

func isNil(v ir.Value) bool {
	bv, ok := ir.BoundValue(v)
	return ok && bv == nil
}

// deref returns the value a non-nil pointer points to, and nil for nil
// pointers.
func deref(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer {
		return v
	}
	if rv.IsNil() {
		return nil
	}
	return rv.Elem().Interface()
}

func isBytes(v any) bool {
	_, ok := v.([]byte)
	return ok
}

func describe(x ql.Expr) string {
	switch x := x.(type) {
	case *ql.Field:
		return "member " + x.Name
	case *ql.Value:
		return "value " + x.String()
	case *ql.Param:
		return x.String()
	case *ql.ObjectExpr:
		return "object"
	case *ql.CondExpr:
		return "cond"
	}
	return fmt.Sprintf("%T", x)
}

func unsupported(construct, reason string) error {
	return batchql.NewUnsupportedExpressionError(construct, reason)
}
