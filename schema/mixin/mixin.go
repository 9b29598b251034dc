// Package mixin provides structs that entities embed to share columns and
// the options that come with them.
//
//	type Document struct {
//		DocumentId int
//		Title      string
//		mixin.Time
//		mixin.SoftDelete
//	}
//
// Embedding SoftDelete adds the DeletedAt column and a query filter that
// hides deleted rows from every statement, unless the statement ignores
// query filters.
package mixin

import (
	"time"

	"github.com/syssam/batchql/querylanguage"
	"github.com/syssam/batchql/schema"
)

// Time adds CreatedAt and UpdatedAt columns.
type Time struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Options implements schema.Mixin.
func (Time) Options() []schema.Option { return nil }

// CreateTime adds a CreatedAt column maintained by the database.
type CreateTime struct {
	CreatedAt time.Time
}

// Options implements schema.Mixin.
func (CreateTime) Options() []schema.Option {
	return []schema.Option{schema.Computed("CreatedAt")}
}

// UpdateTime adds an UpdatedAt column.
type UpdateTime struct {
	UpdatedAt time.Time
}

// Options implements schema.Mixin.
func (UpdateTime) Options() []schema.Option { return nil }

// SoftDelete adds a nullable DeletedAt column and filters out rows where it
// is set.
type SoftDelete struct {
	DeletedAt *time.Time
}

// Options implements schema.Mixin.
func (SoftDelete) Options() []schema.Option {
	return []schema.Option{schema.QueryFilter(querylanguage.FieldNil("DeletedAt"))}
}

// TimeSoftDelete combines Time and SoftDelete.
type TimeSoftDelete struct {
	Time
	SoftDelete
}

// Options implements schema.Mixin.
func (TimeSoftDelete) Options() []schema.Option { return nil }

// RowVersion adds a RowVersion column the database advances on every write,
// such as a SQL Server rowversion.
type RowVersion struct {
	RowVersion []byte
}

// Options implements schema.Mixin.
func (RowVersion) Options() []schema.Option {
	return []schema.Option{schema.RowVersion("RowVersion")}
}

// Version adds an application-managed integer concurrency token. Updates
// that do not assign it advance it by one.
type Version struct {
	Version int64
}

// Options implements schema.Mixin.
func (Version) Options() []schema.Option {
	return []schema.Option{schema.ConcurrencyToken("Version")}
}
