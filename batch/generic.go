package batch

import (
	"context"

	ql "github.com/syssam/batchql/querylanguage"
)

// Delete deletes the rows of the entity mapped by T matching where.
//
//	n, err := batch.Delete[Item](ctx, client, ql.FieldGT("Quantity", 10))
func Delete[T any](ctx context.Context, c *Client, where ql.P, opts ...QueryOption) (int, error) {
	return c.Delete(ctx, new(T), where, opts...)
}

// Update assigns values to the rows of the entity mapped by T matching
// where.
func Update[T any](ctx context.Context, c *Client, values map[string]any, where ql.P, opts ...QueryOption) (int, error) {
	return c.Update(ctx, new(T), values, where, opts...)
}

// UpdateFunc applies set to the rows of the entity mapped by T matching
// where.
func UpdateFunc[T any](ctx context.Context, c *Client, set *ql.ObjectExpr, where ql.P, opts ...QueryOption) (int, error) {
	return c.UpdateFunc(ctx, new(T), set, where, opts...)
}

// UpdateValues assigns the members of v to the rows matching where.
func UpdateValues[T any](ctx context.Context, c *Client, v T, where ql.P, opts ...QueryOption) (int, error) {
	return c.UpdateValues(ctx, v, where, opts...)
}
