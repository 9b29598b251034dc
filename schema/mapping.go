package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/syssam/batchql"
	"github.com/syssam/batchql/querylanguage"
	"github.com/syssam/batchql/schema/field"
)

// Mapping is the content of a mapping file. It describes entities that
// have no Go type, or overrides types registered in code.
//
//	naming: snake_case
//	entities:
//	  - name: Item
//	    columns:
//	      - {member: ItemId, type: int, key: true}
//	      - {member: Name, type: string}
//	      - {member: Quantity, type: int}
type Mapping struct {
	// Naming is "default" or "snake_case".
	Naming       string          `yaml:"naming"`
	PluralTables bool            `yaml:"plural_tables"`
	Entities     []EntityMapping `yaml:"entities"`
}

// EntityMapping describes one entity of a mapping file.
type EntityMapping struct {
	Name               string          `yaml:"name"`
	Table              string          `yaml:"table"`
	Schema             string          `yaml:"schema"`
	Filter             string          `yaml:"filter"`
	Base               string          `yaml:"base"`
	Inheritance        string          `yaml:"inheritance"`
	Discriminator      string          `yaml:"discriminator"`
	DiscriminatorValue any             `yaml:"discriminator_value"`
	Columns            []ColumnMapping `yaml:"columns"`
}

// ColumnMapping describes one column of an entity. Either Member or, for
// shadow columns, Column must be set.
type ColumnMapping struct {
	Member        string   `yaml:"member"`
	Column        string   `yaml:"column"`
	Type          string   `yaml:"type"`
	Key           bool     `yaml:"key"`
	Computed      bool     `yaml:"computed"`
	Shadow        bool     `yaml:"shadow"`
	Token         bool     `yaml:"token"`
	Nullable      bool     `yaml:"nullable"`
	Converter     string   `yaml:"converter"`
	ConverterArgs []string `yaml:"converter_args"`
}

// ParseMapping decodes a YAML mapping document.
func ParseMapping(data []byte) (*Mapping, error) {
	var m Mapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("schema: parsing mapping: %w", err)
	}
	return &m, nil
}

// LoadMapping reads and decodes a mapping file.
func LoadMapping(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: reading mapping: %w", err)
	}
	return ParseMapping(data)
}

// NamingStrategy returns the naming strategy the file selects.
func (m *Mapping) NamingStrategy() (Naming, error) {
	var n Naming
	switch m.Naming {
	case "", "default":
		n = DefaultNaming()
	case "snake_case":
		n = SnakeCase()
	default:
		return nil, fmt.Errorf("schema: unknown naming %q", m.Naming)
	}
	if m.PluralTables {
		n = PluralTables(n)
	}
	return n, nil
}

// Definitions converts the mapping to entity definitions.
func (m *Mapping) Definitions() ([]*Entity, error) {
	var (
		ents []*Entity
		errs []error
	)
	for _, em := range m.Entities {
		e, err := em.definition()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ents = append(ents, e)
	}
	if err := batchql.NewAggregateError(errs...); err != nil {
		return nil, err
	}
	return ents, nil
}

func (em *EntityMapping) definition() (*Entity, error) {
	if em.Name == "" {
		return nil, batchql.NewMappingError("", "entity without a name")
	}
	inh, err := ParseInheritance(em.Inheritance)
	if err != nil {
		return nil, batchql.NewMappingError(em.Name, "%v", err)
	}
	e := &Entity{
		Name:               em.Name,
		Table:              em.Table,
		Schema:             em.Schema,
		Base:               em.Base,
		Inheritance:        inh,
		Discriminator:      em.Discriminator,
		DiscriminatorValue: em.DiscriminatorValue,
	}
	if em.Filter != "" {
		if e.Filter, err = querylanguage.Parse(em.Filter); err != nil {
			return nil, batchql.NewMappingError(em.Name, "filter: %v", err)
		}
	}
	for _, cm := range em.Columns {
		f := &Field{
			Member:   cm.Member,
			Column:   cm.Column,
			Key:      cm.Key,
			Computed: cm.Computed,
			Shadow:   cm.Shadow,
			Token:    cm.Token,
			Nullable: cm.Nullable,
		}
		if f.Shadow && f.Column == "" {
			f.Column = f.Member
			f.Member = ""
		}
		if !f.Shadow && f.Member == "" {
			return nil, batchql.NewMappingError(em.Name, "column %q has no member", cm.Column)
		}
		if f.Type, err = field.ParseType(cm.Type); err != nil {
			return nil, batchql.NewMappingError(em.Name, "%s: %v", f.ref(), err)
		}
		if cm.Converter != "" {
			if f.Converter, err = field.LookupConverter(cm.Converter, cm.ConverterArgs...); err != nil {
				return nil, batchql.NewMappingError(em.Name, "%s: %v", f.ref(), err)
			}
		}
		e.Fields = append(e.Fields, f)
	}
	if e.Discriminator != "" && e.Field(e.Discriminator) == nil {
		e.Fields = append(e.Fields, &Field{Column: e.Discriminator, Type: field.TypeString, Shadow: true})
	}
	conventionKey(e)
	return e, nil
}

// Load registers the entities of m.
func (r *Registry) Load(m *Mapping) error {
	ents, err := m.Definitions()
	if err != nil {
		return err
	}
	for _, e := range ents {
		if err := r.RegisterEntity(e); err != nil {
			return err
		}
	}
	return nil
}

// LoadRegistry returns a Registry holding the entities of the mapping file
// at path, using the naming strategy the file selects.
func LoadRegistry(path string, opts ...RegistryOption) (*Registry, error) {
	m, err := LoadMapping(path)
	if err != nil {
		return nil, err
	}
	n, err := m.NamingStrategy()
	if err != nil {
		return nil, err
	}
	r := NewRegistry(append([]RegistryOption{WithNaming(n)}, opts...)...)
	if err := r.Load(m); err != nil {
		return nil, err
	}
	return r, nil
}
