package analyze

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/syssam/batchql"
	"github.com/syssam/batchql/compiler/ir"
	ql "github.com/syssam/batchql/querylanguage"
	"github.com/syssam/batchql/schema"
)

// Selector analyzes the bindings of an update selector. Assignments keep
// the order of the bindings; a binding to an owned member may hold an
// object binding its members.
//
//	Object(Bind("Quantity", Add(F("Quantity"), V(1))))
func (a *Analyzer) Selector(o *ql.ObjectExpr) ([]*ir.Assignment, error) {
	if o == nil {
		return nil, nil
	}
	var (
		assigns []*ir.Assignment
		seen    = make(map[*schema.Column]bool)
	)
	if err := a.bindings("", o, seen, &assigns); err != nil {
		return nil, err
	}
	return assigns, nil
}

func (a *Analyzer) bindings(prefix string, o *ql.ObjectExpr, seen map[*schema.Column]bool, assigns *[]*ir.Assignment) error {
	for _, b := range o.Bindings {
		name := prefix + b.Name
		if nested, ok := b.X.(*ql.ObjectExpr); ok {
			if !a.desc.HasOwned(name) {
				return batchql.NewUnmappedMemberError(a.desc.Name, name)
			}
			if err := a.bindings(name+".", nested, seen, assigns); err != nil {
				return err
			}
			continue
		}
		c, ok := a.desc.Lookup(name)
		if !ok {
			return batchql.NewUnmappedMemberError(a.desc.Name, name)
		}
		if seen[c] {
			return unsupported("member "+name, "assigned more than once")
		}
		seen[c] = true
		as, err := a.assign(c, b.X)
		if err != nil {
			return err
		}
		*assigns = append(*assigns, as)
	}
	return nil
}

// Values analyzes a map from member paths or shadow column names to new
// values. A value may be an expression, such as Add(F("Quantity"), V(1)).
// A struct value for an owned member assigns each of its members. When
// columns is not empty, entries it does not list are skipped; listing an
// owned member lists all of its members. Assignments follow the column
// order of the descriptor.
func (a *Analyzer) Values(values map[string]any, columns ...string) ([]*ir.Assignment, error) {
	exprs := make(map[*schema.Column]ql.Expr, len(values))
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	slices.Sort(names)
	set := func(name string, v any) error {
		c, ok := a.desc.Lookup(name)
		if !ok {
			return batchql.NewUnmappedMemberError(a.desc.Name, name)
		}
		if !listed(columns, name) {
			return nil
		}
		if _, dup := exprs[c]; dup {
			return unsupported("member "+name, "assigned more than once")
		}
		exprs[c] = toExpr(v)
		return nil
	}
	for _, name := range names {
		v := values[name]
		if _, ok := a.desc.Lookup(name); !ok && a.desc.HasOwned(name) {
			members, err := a.owned(name, v)
			if err != nil {
				return nil, err
			}
			for _, m := range members {
				if err := set(m.name, m.value); err != nil {
					return nil, err
				}
			}
			continue
		}
		if err := set(name, v); err != nil {
			return nil, err
		}
	}
	if err := a.checkListed(columns); err != nil {
		return nil, err
	}
	var assigns []*ir.Assignment
	for _, c := range a.desc.Columns {
		x, ok := exprs[c]
		if !ok {
			continue
		}
		as, err := a.assign(c, x)
		if err != nil {
			return nil, err
		}
		assigns = append(assigns, as)
	}
	return assigns, nil
}

// Struct analyzes the members of v, a value of the entity's Go type. When
// columns is empty, members holding non-zero values are assigned, except
// key and computed members. Otherwise exactly the listed members are
// assigned, zero values included.
func (a *Analyzer) Struct(v any, columns ...string) ([]*ir.Assignment, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, unsupported(fmt.Sprintf("value of type %T", v), "not a struct")
	}
	if err := a.checkListed(columns); err != nil {
		return nil, err
	}
	var assigns []*ir.Assignment
	for _, c := range a.desc.Columns {
		if c.Shadow {
			continue
		}
		mv, ok := memberValue(rv, c.Member)
		switch {
		case len(columns) > 0:
			if !listed(columns, c.Member) {
				continue
			}
		case c.Key || c.Computed || !ok || mv.IsZero():
			continue
		}
		var x any
		if ok {
			x = mv.Interface()
		}
		as, err := a.assign(c, &ql.Value{V: x})
		if err != nil {
			return nil, err
		}
		assigns = append(assigns, as)
	}
	return assigns, nil
}

// checkListed fails on names in columns that are neither mapped nor the
// prefix of an owned member.
func (a *Analyzer) checkListed(columns []string) error {
	for _, name := range columns {
		if _, ok := a.desc.Lookup(name); !ok && !a.desc.HasOwned(name) {
			return batchql.NewUnmappedMemberError(a.desc.Name, name)
		}
	}
	return nil
}

func (a *Analyzer) assign(c *schema.Column, x ql.Expr) (*ir.Assignment, error) {
	if err := a.sameTable(c); err != nil {
		return nil, err
	}
	v, err := a.value(x)
	if err != nil {
		return nil, err
	}
	if v, err = a.bind(c, v); err != nil {
		return nil, err
	}
	return &ir.Assignment{Column: c, X: v}, nil
}

type member struct {
	name  string
	value any
}

// owned expands the struct value of an owned member into its members.
func (a *Analyzer) owned(name string, v any) ([]member, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, unsupported("member "+name, "an owned member is assigned a struct value")
	}
	var members []member
	prefix := name + "."
	for _, c := range a.desc.Columns {
		if c.Shadow || !strings.HasPrefix(c.Member, prefix) {
			continue
		}
		mv, ok := memberValue(rv, strings.TrimPrefix(c.Member, prefix))
		var x any
		if ok {
			x = mv.Interface()
		}
		members = append(members, member{name: c.Member, value: x})
	}
	return members, nil
}

// memberValue returns the value at the dotted member path. It reports false
// when a nil pointer lies on the path.
func memberValue(rv reflect.Value, path string) (reflect.Value, bool) {
	for _, name := range strings.Split(path, ".") {
		for rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				return reflect.Value{}, false
			}
			rv = rv.Elem()
		}
		sf, ok := rv.Type().FieldByName(name)
		if !ok {
			return reflect.Value{}, false
		}
		f, err := rv.FieldByIndexErr(sf.Index)
		if err != nil {
			return reflect.Value{}, false
		}
		rv = f
	}
	return rv, true
}

func listed(columns []string, name string) bool {
	if len(columns) == 0 {
		return true
	}
	for _, c := range columns {
		if c == name || strings.HasPrefix(name, c+".") {
			return true
		}
	}
	return false
}

func toExpr(v any) ql.Expr {
	if x, ok := v.(ql.Expr); ok {
		return x
	}
	return &ql.Value{V: v}
}
