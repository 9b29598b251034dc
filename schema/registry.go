package schema

import (
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/syssam/batchql"
	"github.com/syssam/batchql/querylanguage"
)

// Registry holds entity definitions and resolves them to descriptors.
// Descriptors are built on first use and cached; concurrent first
// resolutions of the same entity share one build.
type Registry struct {
	naming Naming
	log    *slog.Logger

	mu       sync.RWMutex
	entities map[string]*Entity
	types    map[reflect.Type]string
	gen      uint64 // bumped under mu on every invalidation

	cache  sync.Map // entity name -> *Descriptor
	group  singleflight.Group
	builds atomic.Int64
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithNaming sets the naming strategy for tables and columns that are not
// named explicitly.
func WithNaming(n Naming) RegistryOption {
	return func(r *Registry) { r.naming = n }
}

// WithLogger sets the logger used to report mapping warnings.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.log = l }
}

// NewRegistry returns an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		naming:   DefaultNaming(),
		log:      slog.Default(),
		entities: make(map[string]*Entity),
		types:    make(map[reflect.Type]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register defines an entity from the Go value model and adds it.
//
//	reg.Register(Item{}, schema.ToTable("Item"), schema.Computed("ContentLength"))
func (r *Registry) Register(model any, opts ...Option) error {
	e, err := Define(model, r.naming, opts...)
	if err != nil {
		return err
	}
	return r.RegisterEntity(e)
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(model any, opts ...Option) {
	if err := r.Register(model, opts...); err != nil {
		panic(err)
	}
}

// RegisterEntity adds an entity definition, replacing any entity with the
// same name, and drops all cached descriptors.
func (r *Registry) RegisterEntity(e *Entity) error {
	if e.Name == "" {
		return batchql.NewMappingError("", "entity without a name")
	}
	if e.Base != "" && e.Inheritance == InheritNone {
		return batchql.NewMappingError(e.Name, "base %s given without an inheritance strategy", e.Base)
	}
	for _, f := range e.Fields {
		if f.Column == "" {
			f.Column = r.naming.Column(f.Member)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities[e.Name] = e
	if e.Type != nil {
		r.types[e.Type] = e.Name
	}
	r.invalidate()
	return nil
}

// Entities returns the names of the registered entities, sorted.
func (r *Registry) Entities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entities))
	for n := range r.entities {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Invalidate drops all cached descriptors. Builds in flight when it is
// called are not cached; their callers rebuild.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidate()
}

// invalidate must be called with mu held.
func (r *Registry) invalidate() {
	r.gen++
	r.cache.Range(func(k, _ any) bool {
		r.cache.Delete(k)
		return true
	})
	for name := range r.entities {
		r.group.Forget(name)
	}
}

func (r *Registry) generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gen
}

// store caches d unless the registry was invalidated since gen.
func (r *Registry) store(name string, d *Descriptor, gen uint64) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.gen != gen {
		return nil, false
	}
	actual, _ := r.cache.LoadOrStore(name, d)
	return actual.(*Descriptor), true
}

// Builds returns the number of descriptors built so far.
func (r *Registry) Builds() int64 {
	return r.builds.Load()
}

// ResolveValue resolves an entity by Go value, pointer, reflect.Type, or
// entity name.
func (r *Registry) ResolveValue(v any) (*Descriptor, error) {
	switch v := v.(type) {
	case string:
		return r.Resolve(v)
	case reflect.Type:
		return r.ResolveType(v)
	case nil:
		return nil, batchql.NewUnmappedTypeError("<nil>")
	}
	return r.ResolveType(reflect.TypeOf(v))
}

// ResolveType resolves the entity defined from rt. Struct types that carry
// batchql tags are registered on first use; other unregistered types fail
// with an UnmappedTypeError.
func (r *Registry) ResolveType(rt reflect.Type) (*Descriptor, error) {
	rt = indirect(rt)
	r.mu.RLock()
	name, ok := r.types[rt]
	r.mu.RUnlock()
	if ok {
		return r.Resolve(name)
	}
	if rt == nil || rt.Kind() != reflect.Struct || !hasTags(rt) {
		return nil, batchql.NewUnmappedTypeError(typeName(rt))
	}
	name, err := r.autoRegister(rt)
	if err != nil {
		return nil, err
	}
	return r.Resolve(name)
}

// autoRegister defines rt from its tags unless a concurrent caller did.
func (r *Registry) autoRegister(rt reflect.Type) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name, ok := r.types[rt]; ok {
		return name, nil
	}
	e, err := Define(reflect.New(rt).Interface(), r.naming)
	if err != nil {
		return "", err
	}
	if _, ok := r.entities[e.Name]; ok {
		return "", batchql.NewMappingError(e.Name, "entity name already registered for another type")
	}
	r.entities[e.Name] = e
	r.types[rt] = e.Name
	return e.Name, nil
}

// Resolve returns the descriptor of the named entity.
func (r *Registry) Resolve(name string) (*Descriptor, error) {
	if d, ok := r.cache.Load(name); ok {
		return d.(*Descriptor), nil
	}
	v, err, _ := r.group.Do(name, func() (any, error) {
		for {
			if d, ok := r.cache.Load(name); ok {
				return d, nil
			}
			gen := r.generation()
			if err := r.checkHierarchy(name); err != nil {
				return nil, err
			}
			d, err := r.build(name)
			if err != nil {
				return nil, err
			}
			if actual, ok := r.store(name, d, gen); ok {
				return actual, nil
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return v.(*Descriptor), nil
}

func (r *Registry) entity(name string) (*Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[name]
	return e, ok
}

// checkHierarchy walks the base chain of name and fails on cycles, before
// any nested resolution could wait on itself.
func (r *Registry) checkHierarchy(name string) error {
	seen := map[string]bool{}
	for n := name; n != ""; {
		if seen[n] {
			return batchql.NewMappingError(name, "inheritance cycle through %s", n)
		}
		seen[n] = true
		e, ok := r.entity(n)
		if !ok {
			return batchql.NewUnmappedTypeError(n)
		}
		n = e.Base
	}
	return nil
}

func (r *Registry) build(name string) (*Descriptor, error) {
	e, ok := r.entity(name)
	if !ok {
		return nil, batchql.NewUnmappedTypeError(name)
	}
	r.builds.Add(1)
	own := Table{Schema: e.Schema, Name: e.Table}
	if own.Name == "" {
		own.Name = r.naming.Table(e.Name)
	}
	d := &Descriptor{
		Name:          e.Name,
		Table:         own,
		Inheritance:   e.Inheritance,
		Base:          e.Base,
		Discriminator: e.Discriminator,
		Filter:        e.Filter,
	}
	if e.Base != "" {
		base, err := r.Resolve(e.Base)
		if err != nil {
			return nil, err
		}
		if err := derive(d, base, e); err != nil {
			return nil, err
		}
	}
	for _, f := range e.Fields {
		d.Columns = append(d.Columns, &Column{
			Name:             f.Column,
			Member:           f.Member,
			Type:             f.Type,
			Table:            d.Table,
			Nullable:         f.Nullable,
			Key:              f.Key,
			Computed:         f.Computed,
			Shadow:           f.Shadow,
			ConcurrencyToken: f.Token,
			Converter:        f.Converter,
		})
	}
	d.index()
	res := ValidateDescriptor(d)
	if res.HasErrors() {
		errs := make([]error, len(res.Errors))
		for i, verr := range res.Errors {
			errs[i] = batchql.NewMappingError(e.Name, "%s", verr.Error())
		}
		return nil, batchql.NewAggregateError(errs...)
	}
	for _, w := range res.Warnings {
		r.log.Warn("batchql: mapping warning", "entity", e.Name, "warning", w.Error())
	}
	v, err := Fingerprint(d)
	if err != nil {
		return nil, err
	}
	d.Version = v
	r.log.Debug("batchql: resolved entity", "entity", d.Name, "table", d.Table.String(), "columns", len(d.Columns), "version", d.Version)
	return d, nil
}

// derive merges the base descriptor into d according to the strategy of e.
func derive(d, base *Descriptor, e *Entity) error {
	switch e.Inheritance {
	case InheritSingleTable:
		if base.Discriminator == "" {
			return batchql.NewMappingError(e.Name, "single-table base %s declares no discriminator", base.Name)
		}
		d.Table = base.Table
		d.Discriminator = base.Discriminator
		d.DiscriminatorValue = e.DiscriminatorValue
		if d.DiscriminatorValue == nil {
			d.DiscriminatorValue = e.Name
		}
		for _, c := range base.Columns {
			cc := *c
			d.Columns = append(d.Columns, &cc)
		}
		d.Filter = conjoin(base.Filter,
			querylanguage.EQ(querylanguage.S(d.Discriminator), querylanguage.V(d.DiscriminatorValue)),
			e.Filter,
		)
	case InheritSplitTable:
		for _, c := range base.Columns {
			cc := *c
			if cc.Key {
				cc.Table = d.Table
			}
			d.Columns = append(d.Columns, &cc)
		}
		d.Filter = conjoin(base.Filter, e.Filter)
	default:
		return batchql.NewMappingError(e.Name, "unknown inheritance %s", e.Inheritance)
	}
	return nil
}

func conjoin(ps ...querylanguage.P) querylanguage.P {
	var nonNil []querylanguage.P
	for _, p := range ps {
		if p != nil {
			nonNil = append(nonNil, p)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	}
	return querylanguage.And(nonNil[0], nonNil[1], nonNil[2:]...)
}

func typeName(rt reflect.Type) string {
	if rt == nil {
		return "<nil>"
	}
	return rt.String()
}
