package schema

import (
	"fmt"
	"strings"

	"github.com/syssam/batchql/querylanguage"
	"github.com/syssam/batchql/schema/field"
)

// Inheritance is the mapping strategy of a derived entity.
type Inheritance uint8

// Inheritance strategies.
const (
	// InheritNone marks an entity without a mapped base.
	InheritNone Inheritance = iota
	// InheritSingleTable stores the derived entity in its base table and
	// tells rows apart with a discriminator column.
	InheritSingleTable
	// InheritSplitTable stores the derived members in a table of their own,
	// joined to the base table on the key columns.
	InheritSplitTable
)

var inheritanceNames = [...]string{
	InheritNone:        "none",
	InheritSingleTable: "single_table",
	InheritSplitTable:  "split_table",
}

// String returns the mapping-file name of the strategy.
func (i Inheritance) String() string {
	if int(i) < len(inheritanceNames) {
		return inheritanceNames[i]
	}
	return "inheritance(" + fmt.Sprint(uint8(i)) + ")"
}

// ParseInheritance parses a strategy name.
func ParseInheritance(s string) (Inheritance, error) {
	for i, n := range inheritanceNames {
		if n == s {
			return Inheritance(i), nil
		}
	}
	if s == "" {
		return InheritNone, nil
	}
	return InheritNone, fmt.Errorf("schema: unknown inheritance %q", s)
}

// Table identifies a physical table.
type Table struct {
	Schema string
	Name   string
}

// String returns the dotted form of the table.
func (t Table) String() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// Column describes a mapped column.
type Column struct {
	// Name of the column in the table.
	Name string
	// Member is the dotted member path, or empty for shadow columns.
	Member string
	// Type is the member type. Columns with a converter store
	// Converter.StoreType() instead.
	Type field.Type
	// Table holds the column. For split-table hierarchies the base members
	// live in the base table and the key columns in both.
	Table    Table
	Nullable bool
	Key      bool
	Computed bool
	Shadow   bool
	// ConcurrencyToken marks the column for optimistic concurrency checks.
	ConcurrencyToken bool
	Converter        field.Converter
}

// HasConverter reports whether values are converted before they are stored.
func (c *Column) HasConverter() bool { return c.Converter != nil }

// StoreType returns the type of the stored value.
func (c *Column) StoreType() field.Type {
	if c.Converter != nil {
		return c.Converter.StoreType()
	}
	return c.Type
}

// ToStore converts a member value to the value bound for this column.
func (c *Column) ToStore(v any) (any, error) {
	if c.Converter == nil || v == nil {
		return v, nil
	}
	return c.Converter.ToStore(v)
}

// Ref returns the name used to reference the column in expressions.
func (c *Column) Ref() string {
	if c.Shadow {
		return "shadow(" + c.Name + ")"
	}
	return c.Member
}

// Descriptor is the resolved mapping of an entity. It is immutable once
// returned by a Registry.
type Descriptor struct {
	Name string
	// Table is the statement target.
	Table   Table
	Columns []*Column
	// Keys and Tokens hold column names in column order.
	Keys   []string
	Tokens []string
	// Filter is the row filter applied to every statement unless ignored,
	// including the discriminator check of single-table hierarchies.
	Filter      querylanguage.P
	Inheritance Inheritance
	Base        string
	// Discriminator is the column telling single-table rows apart.
	Discriminator      string
	DiscriminatorValue any
	// Version fingerprints the descriptor. Statements compiled against
	// equal versions are byte-identical.
	Version string

	members map[string]*Column
	shadows map[string]*Column
	columns map[string]*Column
}

// Member returns the column mapped by a member path.
func (d *Descriptor) Member(path string) (*Column, bool) {
	c, ok := d.members[path]
	return c, ok
}

// Shadow returns the shadow column with the given name.
func (d *Descriptor) Shadow(name string) (*Column, bool) {
	c, ok := d.shadows[name]
	return c, ok
}

// Column returns the column with the given column name.
func (d *Descriptor) Column(name string) (*Column, bool) {
	c, ok := d.columns[name]
	return c, ok
}

// Lookup resolves a member path first, and a shadow column name second.
func (d *Descriptor) Lookup(name string) (*Column, bool) {
	if c, ok := d.members[name]; ok {
		return c, true
	}
	return d.Shadow(name)
}

// HasOwned reports whether path is the prefix of an owned member.
func (d *Descriptor) HasOwned(path string) bool {
	prefix := path + "."
	for m := range d.members {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

// KeyColumns returns the key columns.
func (d *Descriptor) KeyColumns() []*Column {
	return d.pick(d.Keys)
}

// TokenColumns returns the concurrency token columns.
func (d *Descriptor) TokenColumns() []*Column {
	return d.pick(d.Tokens)
}

// Tables returns the distinct tables the columns live in, target first.
func (d *Descriptor) Tables() []Table {
	tables := []Table{d.Table}
	for _, c := range d.Columns {
		seen := false
		for _, t := range tables {
			seen = seen || t == c.Table
		}
		if !seen {
			tables = append(tables, c.Table)
		}
	}
	return tables
}

func (d *Descriptor) pick(names []string) []*Column {
	cols := make([]*Column, 0, len(names))
	for _, n := range names {
		cols = append(cols, d.columns[n])
	}
	return cols
}

// index builds the lookup maps. It must be called once all columns are set.
func (d *Descriptor) index() {
	d.members = make(map[string]*Column, len(d.Columns))
	d.shadows = make(map[string]*Column)
	d.columns = make(map[string]*Column, len(d.Columns))
	d.Keys, d.Tokens = nil, nil
	for _, c := range d.Columns {
		d.columns[c.Name] = c
		if c.Shadow {
			d.shadows[c.Name] = c
		} else {
			d.members[c.Member] = c
		}
		if c.Key {
			d.Keys = append(d.Keys, c.Name)
		}
		if c.ConcurrencyToken {
			d.Tokens = append(d.Tokens, c.Name)
		}
	}
}
