package mixin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/batchql/schema"
	"github.com/syssam/batchql/schema/mixin"
)

type File struct {
	FileId int
	Name   string
	mixin.CreateTime
	mixin.UpdateTime
	mixin.RowVersion
}

type Order struct {
	OrderId int
	Total   float64
	mixin.Version
	mixin.SoftDelete
}

func TestMixins(t *testing.T) {
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(File{}))
	require.NoError(t, reg.Register(Order{}))

	file, err := reg.ResolveValue(File{})
	require.NoError(t, err)
	created, ok := file.Member("CreatedAt")
	require.True(t, ok)
	assert.True(t, created.Computed)
	updated, ok := file.Member("UpdatedAt")
	require.True(t, ok)
	assert.False(t, updated.Computed)
	assert.Equal(t, []string{"RowVersion"}, file.Tokens)
	rv, _ := file.Column("RowVersion")
	assert.True(t, rv.Computed)
	assert.Nil(t, file.Filter)

	order, err := reg.ResolveValue(&Order{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Version"}, order.Tokens)
	v, _ := order.Column("Version")
	assert.False(t, v.Computed)
	assert.True(t, v.Type.Integer())
	require.NotNil(t, order.Filter)
	assert.Equal(t, "DeletedAt == nil", order.Filter.String())
}
