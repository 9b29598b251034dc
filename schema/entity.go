package schema

import (
	"reflect"
	"strings"

	"github.com/syssam/batchql"
	"github.com/syssam/batchql/querylanguage"
	"github.com/syssam/batchql/schema/field"
)

// TagName is the struct tag read when defining entities from Go types.
//
//	type Item struct {
//		ItemId      int    `batchql:",key"`
//		Name        string `batchql:"name"`
//		Audit       Audit  `batchql:",owned"`
//		Description string `batchql:"-"`
//	}
//
// The first element names the column; flags follow: key, computed, token,
// owned and nullable. A tag of "-" excludes the member.
const TagName = "batchql"

// Entity is the mapping definition of an entity before resolution.
type Entity struct {
	Name   string
	Table  string
	Schema string
	Fields []*Field
	// Filter is the query filter of the entity.
	Filter querylanguage.P
	// Base names the base entity of a derived entity.
	Base        string
	Inheritance Inheritance
	// Discriminator is declared on the root of a single-table hierarchy.
	Discriminator      string
	DiscriminatorValue any
	// Type is the Go type the entity was defined from, if any.
	Type reflect.Type
}

// Field is a mapped member or shadow column of an Entity.
type Field struct {
	Member    string
	Column    string
	Type      field.Type
	Nullable  bool
	Key       bool
	Computed  bool
	Shadow    bool
	Token     bool
	Ignored   bool
	Converter field.Converter
}

// ref is the name options use to address the field.
func (f *Field) ref() string {
	if f.Shadow {
		return f.Column
	}
	return f.Member
}

// Field returns the field addressed by a member path or shadow column name.
func (e *Entity) Field(name string) *Field {
	for _, f := range e.Fields {
		if f.ref() == name {
			return f
		}
	}
	return nil
}

// Mixin is implemented by embedded structs that contribute options to the
// entities embedding them.
type Mixin interface {
	Options() []Option
}

// Option configures an Entity while it is defined.
type Option func(*builder)

type builder struct {
	ent    *Entity
	naming Naming
	owned  map[string]bool
	base   reflect.Type
	// shadows follow the member columns.
	shadows []*Field
	// deferred run once all fields are known.
	deferred []func() error
	errs     []error
}

func (b *builder) fieldOption(name string, fn func(*Field)) {
	b.deferred = append(b.deferred, func() error {
		f := b.ent.Field(name)
		if f == nil {
			return batchql.NewUnmappedMemberError(b.ent.Name, name)
		}
		fn(f)
		return nil
	})
}

// Named sets the entity name. It defaults to the Go type name.
func Named(name string) Option {
	return func(b *builder) { b.ent.Name = name }
}

// ToTable sets the table name.
func ToTable(name string) Option {
	return func(b *builder) { b.ent.Table = name }
}

// InSchema sets the database schema of the table.
func InSchema(name string) Option {
	return func(b *builder) { b.ent.Schema = name }
}

// Key marks the key members. Without it, a member named ID, Id, or the
// entity name followed by Id is the key.
func Key(members ...string) Option {
	return func(b *builder) {
		for _, m := range members {
			b.fieldOption(m, func(f *Field) { f.Key = true })
		}
	}
}

// ColumnName renames the column of a member.
func ColumnName(member, name string) Option {
	return func(b *builder) {
		b.fieldOption(member, func(f *Field) { f.Column = name })
	}
}

// Computed marks members whose values are produced by the database.
func Computed(members ...string) Option {
	return func(b *builder) {
		for _, m := range members {
			b.fieldOption(m, func(f *Field) { f.Computed = true })
		}
	}
}

// ConcurrencyToken marks a member as a concurrency token.
func ConcurrencyToken(member string) Option {
	return func(b *builder) {
		b.fieldOption(member, func(f *Field) { f.Token = true })
	}
}

// RowVersion marks a member as a database-maintained concurrency token.
func RowVersion(member string) Option {
	return func(b *builder) {
		b.fieldOption(member, func(f *Field) { f.Token, f.Computed = true, true })
	}
}

// Ignore excludes members from the mapping.
func Ignore(members ...string) Option {
	return func(b *builder) {
		for _, m := range members {
			b.fieldOption(m, func(f *Field) { f.Ignored = true })
		}
	}
}

// Nullable marks members whose columns accept NULL.
func Nullable(members ...string) Option {
	return func(b *builder) {
		for _, m := range members {
			b.fieldOption(m, func(f *Field) { f.Nullable = true })
		}
	}
}

// Converter sets the value converter of a member.
func Converter(member string, c field.Converter) Option {
	return func(b *builder) {
		b.fieldOption(member, func(f *Field) { f.Converter = c })
	}
}

// ShadowColumn adds a column that has no member on the Go type. Shadow
// columns are addressed by name; other options may refer to them.
func ShadowColumn(name string, t field.Type) Option {
	return func(b *builder) {
		b.shadows = append(b.shadows, &Field{Column: name, Type: t, Shadow: true, Nullable: true})
	}
}

// QueryFilter adds a filter applied to every statement against the entity.
// Multiple filters are combined with AND.
func QueryFilter(p querylanguage.P) Option {
	return func(b *builder) {
		if b.ent.Filter != nil {
			p = querylanguage.And(b.ent.Filter, p)
		}
		b.ent.Filter = p
	}
}

// Owned marks struct members whose fields are stored in the owner's table.
// Columns default to the member path joined with underscores, such as
// Audit_ChangedBy.
func Owned(members ...string) Option {
	return func(b *builder) {
		for _, m := range members {
			b.owned[m] = true
		}
	}
}

// Discriminator declares the discriminator column of a single-table
// hierarchy root. The column is a shadow column.
func Discriminator(column string) Option {
	return func(b *builder) {
		b.ent.Discriminator = column
		ShadowColumn(column, field.TypeString)(b)
		b.fieldOption(column, func(f *Field) { f.Nullable = false })
	}
}

// SingleTable derives the entity from base, sharing its table. Rows of the
// derived entity carry value in the base's discriminator column; a nil
// value defaults to the entity name. The base is a model or an entity name.
func SingleTable(base any, value any) Option {
	return func(b *builder) {
		b.ent.Inheritance = InheritSingleTable
		b.ent.DiscriminatorValue = value
		b.derive(base)
	}
}

// SplitTable derives the entity from base, storing the derived members in
// a table of their own.
func SplitTable(base any) Option {
	return func(b *builder) {
		b.ent.Inheritance = InheritSplitTable
		b.derive(base)
	}
}

func (b *builder) derive(base any) {
	if name, ok := base.(string); ok {
		b.ent.Base = name
		return
	}
	rt := indirect(reflect.TypeOf(base))
	b.base = rt
	b.ent.Base = rt.Name()
}

// Define returns the Entity described by the Go value model and the options.
func Define(model any, naming Naming, opts ...Option) (*Entity, error) {
	rt := indirect(reflect.TypeOf(model))
	if rt == nil {
		return nil, batchql.NewUnmappedTypeError("<nil>")
	}
	if rt.Kind() != reflect.Struct {
		return nil, batchql.NewUnmappedTypeError(rt.String())
	}
	if naming == nil {
		naming = DefaultNaming()
	}
	b := &builder{
		ent:    &Entity{Name: rt.Name(), Type: rt},
		naming: naming,
		owned:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.walk(rt, nil)
	b.ent.Fields = append(b.ent.Fields, b.shadows...)
	for _, fn := range b.deferred {
		if err := fn(); err != nil {
			b.errs = append(b.errs, err)
		}
	}
	if err := batchql.NewAggregateError(b.errs...); err != nil {
		return nil, err
	}
	fields := b.ent.Fields[:0]
	for _, f := range b.ent.Fields {
		if !f.Ignored {
			fields = append(fields, f)
		}
	}
	b.ent.Fields = fields
	conventionKey(b.ent)
	return b.ent, nil
}

// walk collects the fields of rt. path is the member path of an owned struct.
func (b *builder) walk(rt reflect.Type, path []string) {
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		name, flags := parseTag(sf.Tag.Get(TagName))
		if name == "-" {
			continue
		}
		ft := sf.Type
		info, scalar := field.TypeOf(ft)
		if sf.Anonymous && !scalar {
			if b.base != nil && indirect(ft) == b.base {
				continue
			}
			if m, ok := mixinOf(ft); ok {
				for _, opt := range m.Options() {
					opt(b)
				}
			}
			if indirect(ft).Kind() == reflect.Struct {
				b.walk(indirect(ft), path)
			}
			continue
		}
		member := strings.Join(append(path[:len(path):len(path)], sf.Name), ".")
		if !scalar {
			if indirect(ft).Kind() == reflect.Struct && (flags["owned"] || b.owned[member]) {
				b.walk(indirect(ft), append(path[:len(path):len(path)], sf.Name))
			}
			// Other structs and collections are navigations, which are not mapped.
			continue
		}
		f := &Field{
			Member:   member,
			Column:   name,
			Type:     info.Type,
			Nullable: info.Nullable || flags["nullable"],
			Key:      flags["key"],
			Computed: flags["computed"],
			Token:    flags["token"],
		}
		if f.Column == "" {
			f.Column = b.naming.Column(member)
		}
		b.ent.Fields = append(b.ent.Fields, f)
	}
}

func parseTag(tag string) (string, map[string]bool) {
	if tag == "" {
		return "", nil
	}
	parts := strings.Split(tag, ",")
	flags := make(map[string]bool, len(parts)-1)
	for _, p := range parts[1:] {
		flags[strings.TrimSpace(p)] = true
	}
	return strings.TrimSpace(parts[0]), flags
}

func mixinOf(rt reflect.Type) (Mixin, bool) {
	if rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	v := reflect.New(rt)
	if m, ok := v.Elem().Interface().(Mixin); ok {
		return m, true
	}
	m, ok := v.Interface().(Mixin)
	return m, ok
}

// conventionKey marks the conventional key member when none is declared.
func conventionKey(e *Entity) {
	if e.Base != "" {
		return
	}
	for _, f := range e.Fields {
		if f.Key {
			return
		}
	}
	for _, name := range []string{"ID", "Id", e.Name + "ID", e.Name + "Id"} {
		if f := e.Field(name); f != nil && !f.Shadow {
			f.Key = true
			return
		}
	}
}

// hasTags reports whether any field of the struct type carries a TagName tag.
func hasTags(rt reflect.Type) bool {
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if _, ok := sf.Tag.Lookup(TagName); ok {
			return true
		}
		if sf.Anonymous && indirect(sf.Type).Kind() == reflect.Struct && hasTags(indirect(sf.Type)) {
			return true
		}
	}
	return false
}

func indirect(rt reflect.Type) reflect.Type {
	for rt != nil && rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	return rt
}
