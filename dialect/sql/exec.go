package sql

import (
	"context"
	"database/sql"

	"github.com/syssam/batchql"
	"github.com/syssam/batchql/dialect"
)

// ExecStatement runs g on ex in a single round trip and returns the number
// of affected rows. Nothing is sent when ctx is already done. Failures
// observed after ctx ended are reported as OperationCanceledError; other
// failures as ExecutionError carrying the driver error unchanged.
func ExecStatement(ctx context.Context, ex dialect.ExecQuerier, g *Generated) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, batchql.NewOperationCanceledError(err, nil)
	}
	var res sql.Result
	if err := ex.Exec(ctx, g.Query, g.Args, &res); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return 0, batchql.NewOperationCanceledError(cerr, err)
		}
		return 0, batchql.NewExecutionError(g.Op.String(), ConstraintKind(err), err)
	}
	if res == nil {
		return 0, nil
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, batchql.NewExecutionError(g.Op.String(), "", err)
	}
	return n, nil
}
