package schema

import (
	"strings"

	"github.com/go-openapi/inflect"
)

// Naming derives table and column names that are not set explicitly.
type Naming interface {
	// Table returns the table name of an entity.
	Table(entity string) string
	// Column returns the column name of a member path, such as
	// "Audit.ChangedBy".
	Column(member string) string
}

// DefaultNaming uses entity names as table names, and member paths joined
// with underscores as column names.
func DefaultNaming() Naming { return identity{} }

// SnakeCase uses snake_case for table and column names: ItemHistory becomes
// item_history and Audit.ChangedBy becomes audit_changed_by.
func SnakeCase() Naming { return snake{} }

// PluralTables wraps n to pluralize its table names.
func PluralTables(n Naming) Naming { return plural{n} }

type identity struct{}

func (identity) Table(entity string) string { return entity }

func (identity) Column(member string) string {
	return strings.ReplaceAll(member, ".", "_")
}

type snake struct{}

func (snake) Table(entity string) string { return inflect.Underscore(entity) }

func (snake) Column(member string) string {
	parts := strings.Split(member, ".")
	for i, p := range parts {
		parts[i] = inflect.Underscore(p)
	}
	return strings.Join(parts, "_")
}

type plural struct{ Naming }

func (p plural) Table(entity string) string {
	return inflect.Pluralize(p.Naming.Table(entity))
}
