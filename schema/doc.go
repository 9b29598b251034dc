// Package schema resolves entity mappings into descriptors.
//
// An entity is defined from a Go struct, optionally refined with options,
// or from a YAML mapping file. A Registry resolves entities by Go type or
// by name into immutable Descriptors: the target table, the ordered
// columns with their flags, the key and concurrency token columns, and the
// row filter every statement against the entity carries.
//
//	type Item struct {
//		ItemId   int
//		Name     string
//		Quantity int
//		Audit    Audit `batchql:",owned"`
//	}
//
//	reg := schema.NewRegistry()
//	reg.MustRegister(Item{}, schema.QueryFilter(querylanguage.FieldNEQ("Name", "")))
//	desc, err := reg.ResolveValue(Item{})
//
// # Inheritance
//
// A derived entity either shares its base table and is told apart by a
// discriminator column (SingleTable), or stores its own members in a table
// of its own (SplitTable). In both cases statements against the derived
// entity target exactly one table: the shared table with a discriminator
// filter, or the derived table. Members of the base that live in the base
// table of a split hierarchy cannot be referenced by such statements.
//
// # Owned types
//
// Struct members marked owned are flattened into the owner's table. Their
// members are addressed with dotted paths, such as Audit.ChangedBy.
package schema
