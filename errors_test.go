package batchql_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/batchql"
)

func TestUnmappedTypeError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := batchql.NewUnmappedTypeError("main.Order")
		assert.Equal(t, "batchql: type main.Order is not mapped", err.Error())
	})

	t.Run("IsUnmappedType", func(t *testing.T) {
		err := batchql.NewUnmappedTypeError("Order")
		assert.True(t, errors.Is(err, batchql.ErrUnmappedType))
		assert.True(t, batchql.IsUnmappedType(fmt.Errorf("resolve: %w", err)))
		assert.False(t, batchql.IsUnmappedType(errors.New("other error")))
		assert.False(t, batchql.IsUnmappedType(nil))
	})
}

func TestUnsupportedExpressionError(t *testing.T) {
	err := batchql.NewUnsupportedExpressionError("has_edge(owner)", "edge traversal")
	assert.Equal(t, "batchql: unsupported expression has_edge(owner): edge traversal", err.Error())
	assert.True(t, batchql.IsUnsupportedExpression(err))

	err = batchql.NewUnsupportedExpressionError("x", "")
	assert.Equal(t, "batchql: unsupported expression x", err.Error())
}

func TestWriteErrors(t *testing.T) {
	computed := batchql.NewComputedColumnWriteError("Document", "ContentLength")
	assert.Equal(t, `batchql: column "ContentLength" of Document is computed and cannot be assigned`, computed.Error())
	assert.True(t, batchql.IsComputedColumnWrite(computed))
	assert.False(t, batchql.IsKeyColumnWrite(computed))

	key := batchql.NewKeyColumnWriteError("Item", "ItemId")
	assert.Equal(t, `batchql: column "ItemId" of Item is part of the key and cannot be assigned`, key.Error())
	assert.True(t, batchql.IsKeyColumnWrite(key))
	assert.False(t, batchql.IsComputedColumnWrite(key))
}

func TestOperationCanceledError(t *testing.T) {
	driverErr := errors.New("canceling query due to user request")
	err := batchql.NewOperationCanceledError(context.Canceled, driverErr)
	assert.True(t, batchql.IsCanceled(err))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, errors.Is(err, driverErr))
	assert.Equal(t, "batchql: operation canceled: context canceled: canceling query due to user request", err.Error())

	err = batchql.NewOperationCanceledError(context.DeadlineExceeded, context.DeadlineExceeded)
	assert.Equal(t, "batchql: operation canceled: context deadline exceeded", err.Error())
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestExecutionError(t *testing.T) {
	driverErr := errors.New(`pq: relation "Item" does not exist`)
	err := batchql.NewExecutionError("delete", "", driverErr)
	assert.Equal(t, driverErr.Error(), err.Error())
	assert.ErrorIs(t, err, driverErr)
	assert.True(t, batchql.IsExecutionError(fmt.Errorf("wrap: %w", err)))
	assert.False(t, batchql.IsConstraintError(err))

	err = batchql.NewExecutionError("update", batchql.ConstraintUnique, driverErr)
	assert.True(t, batchql.IsConstraintError(err))
	assert.False(t, batchql.IsTranslationError(err))
}

func TestIsTranslationError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unmapped type", batchql.NewUnmappedTypeError("T"), true},
		{"unsupported", batchql.NewUnsupportedExpressionError("x", ""), true},
		{"unmapped member", batchql.NewUnmappedMemberError("Item", "Price"), true},
		{"computed", batchql.NewComputedColumnWriteError("D", "C"), true},
		{"key", batchql.NewKeyColumnWriteError("I", "K"), true},
		{"dialect", batchql.NewDialectUnsupportedFeatureError("sqlite", "regular expressions"), true},
		{"token", batchql.NewConcurrencyTokenError("F", "V", "not assigned"), true},
		{"mapping", batchql.NewMappingError("F", "duplicate column %q", "V"), true},
		{"canceled", batchql.NewOperationCanceledError(context.Canceled, nil), false},
		{"execution", batchql.NewExecutionError("delete", "", errors.New("x")), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, batchql.IsTranslationError(tt.err))
		})
	}
}

func TestMappingError(t *testing.T) {
	err := batchql.NewMappingError("Person", "inheritance cycle through %s", "Student")
	assert.Equal(t, "batchql: invalid mapping for Person: inheritance cycle through Student", err.Error())
	assert.Equal(t, "batchql: invalid mapping: empty", (&batchql.MappingError{Msg: "empty"}).Error())
	assert.True(t, batchql.IsMappingError(fmt.Errorf("load: %w", err)))
}

func TestAggregateError(t *testing.T) {
	t.Run("NoErrors", func(t *testing.T) {
		require.NoError(t, batchql.NewAggregateError())
		require.NoError(t, batchql.NewAggregateError(nil, nil))
	})

	t.Run("SingleError", func(t *testing.T) {
		single := errors.New("single")
		assert.Equal(t, single, batchql.NewAggregateError(nil, single, nil))
	})

	t.Run("MultipleErrors", func(t *testing.T) {
		err1 := batchql.NewMappingError("A", "one")
		err2 := errors.New("two")
		err := batchql.NewAggregateError(err1, err2)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "batchql: multiple errors:")
		assert.Contains(t, err.Error(), "[2] two")
		assert.ErrorIs(t, err, err2)
		assert.True(t, batchql.IsMappingError(err))
	})
}
