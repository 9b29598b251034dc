// Package sql renders and executes batch statements on SQL databases.
//
// Statements are assembled from dialect-neutral fragments (Builder) and
// rendered for a Dialect. A Dialect is a table of formatting rules:
// identifier quotes, placeholder style, string concatenation, regular
// expression support and LIKE escaping. Four dialects are built in:
//
//	sqlserver  [Item]   @p0, @p1, ...
//	postgres   "Item"   $1, $2, ...
//	mysql      `Item`   ?
//	sqlite     "Item"   ?
//
// Others are added with RegisterDialect.
//
// # Rendering
//
//	stmt := &sql.Statement{
//		Op:    sql.OpDelete,
//		Table: sql.Table{Name: "Item"},
//		Where: sql.B().Ident("Quantity").WriteString(" > ").Arg(10),
//	}
//	g, err := sql.Render(stmt, sql.MustLookupDialect(dialect.SQLServer))
//	// g.Query: DELETE FROM [Item] WHERE [Quantity] > @p0
//	// g.Args:  [10]
//
// Placeholders are numbered left to right over the whole statement, so the
// arguments of an UPDATE list the SET values before the WHERE values.
//
// # Pattern matching
//
// Builder.Like renders the substring, prefix and suffix tests as LIKE with
// the pattern escaped. LIKE follows the collation of the column: it ignores
// case on sqlite for ASCII letters and under the default collations of
// mysql and sqlserver, and is case-sensitive on postgres. Callers that need
// the same result everywhere compare LOWER of the column with a lowered
// argument, as the case-folding predicates do.
//
// # Execution
//
// ExecStatement sends a rendered statement in a single round trip and
// returns the number of affected rows. Driver failures are returned as
// *batchql.ExecutionError with the driver message unchanged and constraint
// violations classified; failures caused by the caller's context are
// returned as *batchql.OperationCanceledError.
//
//	drv, err := sql.Open("pgx", dsn)
//	n, err := sql.ExecStatement(ctx, drv, g)
//
// # Observability
//
// StatsDriver counts statements, reports slow ones and updates prometheus
// collectors created with NewMetrics. DebugDriver logs every statement
// with log/slog.
package sql
