package batch_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/batchql"
	"github.com/syssam/batchql/batch"
	"github.com/syssam/batchql/compiler/translate"
	"github.com/syssam/batchql/dialect"
	"github.com/syssam/batchql/dialect/sql"
	ql "github.com/syssam/batchql/querylanguage"
	"github.com/syssam/batchql/schema"
	"github.com/syssam/batchql/schema/field"
)

type Item struct {
	ItemId      int
	Name        string
	Description *string
	Quantity    int
	Price       float64
	Active      bool
}

type Order struct {
	OrderId int    `batchql:",key"`
	Status  string `batchql:"status"`
	Version int    `batchql:",token"`
}

func newRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(Item{},
		schema.ShadowColumn("Tenant", field.TypeString),
		schema.QueryFilter(ql.EQ(ql.S("Tenant"), ql.V("acme"))),
	))
	return reg
}

func mockClient(t *testing.T, name string, opts ...batch.Option) (*batch.Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	client, err := batch.New(sql.OpenDB(name, db), append([]batch.Option{batch.WithRegistry(newRegistry(t))}, opts...)...)
	require.NoError(t, err)
	return client, mock
}

func TestClientDelete(t *testing.T) {
	client, mock := mockClient(t, dialect.SQLServer)
	mock.ExpectExec("DELETE FROM [Item] WHERE [Quantity] > @p0 AND [Tenant] = @p1").
		WithArgs(10, "acme").
		WillReturnResult(sqlmock.NewResult(0, 3))
	n, err := client.Delete(context.Background(), Item{}, ql.FieldGT("Quantity", 10))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	mock.ExpectExec("DELETE FROM [Item] WHERE [Quantity] > @p0").
		WithArgs(10).
		WillReturnResult(sqlmock.NewResult(0, 5))
	n, err = client.Delete(context.Background(), &Item{}, ql.FieldGT("Quantity", 10), batch.IgnoreQueryFilters())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClientUpdate(t *testing.T) {
	client, mock := mockClient(t, dialect.SQLServer)
	mock.ExpectExec("UPDATE [Item] SET [Name] = @p0 WHERE [ItemId] = @p1").
		WithArgs("X", 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	n, err := client.Update(context.Background(), "Item", map[string]any{"Name": "X"}, ql.FieldEQ("ItemId", 5), batch.IgnoreQueryFilters())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	mock.ExpectExec("UPDATE [Item] SET [Quantity] = [Quantity] + @p0").
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 7))
	n, err = client.UpdateFunc(context.Background(), Item{},
		ql.Object(ql.Bind("Quantity", ql.Add(ql.F("Quantity"), ql.V(1)))),
		nil, batch.IgnoreQueryFilters(),
	)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClientUpdateColumns(t *testing.T) {
	client, _ := mockClient(t, dialect.Postgres)
	g, err := client.CompileUpdate(Item{}, map[string]any{"Name": "n", "Price": 2}, nil, batch.Columns("Price"))
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "Item" SET "Price" = $1 WHERE "Tenant" = $2`, g.Query)
	assert.Equal(t, []any{float64(2), "acme"}, g.Args)
}

func TestClientUpdateValues(t *testing.T) {
	client, _ := mockClient(t, dialect.SQLServer)
	g, err := client.CompileUpdateValues(Item{ItemId: 1, Name: "n", Quantity: 3}, ql.FieldEQ("ItemId", 1), batch.IgnoreQueryFilters())
	require.NoError(t, err)
	assert.Equal(t, "UPDATE [Item] SET [Name] = @p0, [Quantity] = @p1 WHERE [ItemId] = @p2", g.Query)
	assert.Equal(t, []any{"n", 3, 1}, g.Args)

	g, err = client.CompileUpdateValues(&Item{Name: "n"}, nil, batch.Columns("Quantity", "Active"), batch.IgnoreQueryFilters())
	require.NoError(t, err)
	assert.Equal(t, "UPDATE [Item] SET [Quantity] = @p0, [Active] = @p1", g.Query)
	assert.Equal(t, []any{0, false}, g.Args)
}

func TestClientArgs(t *testing.T) {
	client, _ := mockClient(t, dialect.MySQL)
	g, err := client.CompileUpdateFunc(Item{},
		ql.Object(ql.Bind("Price", ql.Mul(ql.F("Price"), ql.Arg(0)))),
		ql.In(ql.F("ItemId"), ql.Arg(1)),
		batch.Args(1.1, []int{1, 2}),
	)
	require.NoError(t, err)
	assert.Equal(t, "UPDATE `Item` SET `Price` = `Price` * ? WHERE `ItemId` IN (?, ?) AND `Tenant` = ?", g.Query)
	assert.Equal(t, []any{1.1, 1, 2, "acme"}, g.Args)
}

func TestClientTranslationErrors(t *testing.T) {
	client, mock := mockClient(t, dialect.SQLServer)
	ctx := context.Background()
	tests := []struct {
		name  string
		run   func() error
		check func(error) bool
	}{
		{
			name: "UnknownMember",
			run: func() error {
				_, err := client.Delete(ctx, Item{}, ql.FieldEQ("Color", "red"))
				return err
			},
			check: batchql.IsUnmappedMember,
		},
		{
			name: "UnknownValue",
			run: func() error {
				_, err := client.Update(ctx, Item{}, map[string]any{"Color": "red"}, nil)
				return err
			},
			check: batchql.IsUnmappedMember,
		},
		{
			name: "KeyWrite",
			run: func() error {
				_, err := client.Update(ctx, Item{}, map[string]any{"ItemId": 2}, nil)
				return err
			},
			check: batchql.IsKeyColumnWrite,
		},
		{
			name: "UnmappedType",
			run: func() error {
				_, err := client.Delete(ctx, struct{ A int }{}, nil)
				return err
			},
			check: batchql.IsUnmappedType,
		},
		{
			name: "Navigation",
			run: func() error {
				_, err := client.Delete(ctx, Item{}, ql.HasEdge("Orders"))
				return err
			},
			check: batchql.IsUnsupportedExpression,
		},
		{
			name: "Regexp",
			run: func() error {
				_, err := client.Delete(ctx, Item{}, ql.FieldMatches("Name", "^a"))
				return err
			},
			check: batchql.IsDialectUnsupported,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
			assert.True(t, batchql.IsTranslationError(err))
		})
	}
	require.NoError(t, mock.ExpectationsWereMet(), "no statement reaches the database")
}

func TestClientExecutionError(t *testing.T) {
	client, mock := mockClient(t, dialect.SQLite)
	mock.ExpectExec(`DELETE FROM "Item" WHERE "Tenant" = ?`).
		WithArgs("acme").
		WillReturnError(errors.New("FOREIGN KEY constraint failed"))
	_, err := client.Delete(context.Background(), Item{}, nil)
	require.Error(t, err)
	assert.EqualError(t, err, "FOREIGN KEY constraint failed")
	assert.True(t, batchql.IsConstraintError(err))
	var ee *batchql.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "delete", ee.Op)
	assert.Equal(t, batchql.ConstraintForeignKey, ee.Constraint)
}

func TestClientCanceled(t *testing.T) {
	client, mock := mockClient(t, dialect.SQLite)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Delete(ctx, Item{}, nil)
	require.True(t, batchql.IsCanceled(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClientTx(t *testing.T) {
	client, mock := mockClient(t, dialect.SQLServer)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE [Order] SET [status] = @p0, [Version] = [Version] + @p1 WHERE [OrderId] = @p2").
		WithArgs("paid", 1, 4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM [Order] WHERE [status] = @p0").
		WithArgs("void").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := client.Tx(ctx)
	require.NoError(t, err)
	n, err := batch.Update[Order](ctx, tx.Client, map[string]any{"Status": "paid"}, ql.FieldEQ("OrderId", 4))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = batch.Delete[Order](ctx, tx.Client, ql.FieldEQ("Status", "void"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = tx.Tx(ctx)
	require.Error(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClientSessionVar(t *testing.T) {
	tests := []struct {
		dialect string
		reset   string
	}{
		{dialect: dialect.Postgres, reset: "RESET app.tenant"},
		{dialect: dialect.MySQL, reset: "SET app.tenant = NULL"},
	}
	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			client, mock := mockClient(t, tt.dialect)
			where := ql.FieldGT("Quantity", 10)
			g, err := client.CompileDelete(Item{}, where)
			require.NoError(t, err)

			mock.ExpectExec("SET app.tenant = 'o''brien'").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec(g.Query).WithArgs(10, "acme").WillReturnResult(sqlmock.NewResult(0, 2))
			mock.ExpectExec(tt.reset).WillReturnResult(sqlmock.NewResult(0, 0))
			n, err := client.Delete(context.Background(), Item{}, where, batch.SessionVar("app.tenant", "o'brien"))
			require.NoError(t, err)
			assert.Equal(t, 2, n)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}

	t.Run("Tx", func(t *testing.T) {
		client, mock := mockClient(t, dialect.Postgres)
		mock.ExpectBegin()
		mock.ExpectExec("SET app.tenant = 'acme'").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`UPDATE "Order" SET "status" = $1, "Version" = "Version" + $2`).
			WithArgs("paid", 1).
			WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectCommit()
		ctx := context.Background()
		tx, err := client.Tx(ctx)
		require.NoError(t, err)
		n, err := batch.Update[Order](ctx, tx.Client, map[string]any{"Status": "paid"}, nil, batch.SessionVar("app.tenant", "acme"))
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		require.NoError(t, tx.Commit())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("InvalidName", func(t *testing.T) {
		client, mock := mockClient(t, dialect.Postgres)
		_, err := client.Delete(context.Background(), Item{}, nil, batch.SessionVar("x; DROP TABLE t", "1"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid session variable name")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestClientTokenPolicy(t *testing.T) {
	client, _ := mockClient(t, dialect.SQLServer, batch.WithTokenPolicy(translate.TokenExplicit))
	_, err := client.CompileUpdate(Order{}, map[string]any{"Status": "paid"}, nil)
	require.Error(t, err)
	assert.True(t, batchql.IsConcurrencyToken(err))

	g, err := client.CompileUpdate(Order{}, map[string]any{"Status": "paid", "Version": 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, "UPDATE [Order] SET [status] = @p0, [Version] = @p1", g.Query)
}

// normalize replaces the identifier quotes and placeholders of a dialect.
var (
	quoteRe       = regexp.MustCompile("[\\[\\]\"`]")
	placeholderRe = regexp.MustCompile(`@p\d+|\$\d+|\?`)
)

func normalize(q string) string {
	return placeholderRe.ReplaceAllString(quoteRe.ReplaceAllString(q, ""), "?")
}

func TestClientDialects(t *testing.T) {
	set := ql.Object(
		ql.Bind("Quantity", ql.Sub(ql.F("Quantity"), ql.Arg(0))),
		ql.Bind("Description", ql.Coalesce(ql.F("Description"), ql.V("none"))),
	)
	where := ql.And(ql.FieldIn("ItemId", 1, 2, 3), ql.Not(ql.FieldNil("Description")), ql.FieldHasPrefix("Name", "a"))
	var (
		queries []string
		args    [][]any
	)
	for _, name := range []string{dialect.SQLServer, dialect.Postgres, dialect.MySQL, dialect.SQLite} {
		client, _ := mockClient(t, dialect.SQLServer, batch.WithDialect(name))
		assert.Equal(t, name, client.Dialect().Name)
		g, err := client.CompileUpdateFunc(Item{}, set, where, batch.Args(2))
		require.NoError(t, err)
		again, err := client.CompileUpdateFunc(Item{}, set, where, batch.Args(2))
		require.NoError(t, err)
		if diff := cmp.Diff(g, again); diff != "" {
			t.Fatalf("%s: compiling twice differs (-first +second):\n%s", name, diff)
		}
		queries = append(queries, normalize(strings.ReplaceAll(g.Query, ` ESCAPE '\'`, "")))
		args = append(args, g.Args)
	}
	for i := 1; i < len(queries); i++ {
		assert.Equal(t, queries[0], queries[i])
		assert.Equal(t, args[0], args[i])
	}
	assert.Equal(t, "UPDATE Item SET Quantity = Quantity - ?, Description = COALESCE(Description, ?) WHERE ItemId IN (?, ?, ?) AND NOT (Description IS NULL) AND Name LIKE ? AND Tenant = ?", queries[0])
	assert.Equal(t, []any{2, "none", 1, 2, 3, "a%", "acme"}, args[0])
}

func TestClientDebugLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client, mock := mockClient(t, dialect.SQLite, batch.WithLogger(logger), batch.Debug())
	mock.ExpectExec(`DELETE FROM "Item" WHERE "Tenant" = ?`).
		WithArgs("acme").
		WillReturnResult(sqlmock.NewResult(0, 0))
	_, err := client.Delete(context.Background(), Item{}, nil)
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "batchql: compiled statement")
	assert.Contains(t, out, "entity=Item")
	assert.Contains(t, out, "batchql: exec")
}

func TestNew(t *testing.T) {
	_, err := batch.New(nil)
	require.Error(t, err)

	offline, err := batch.New(nil, batch.WithDialect(dialect.SQLServer))
	require.NoError(t, err)
	g, err := offline.CompileDelete(Order{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM [Order]", g.Query)
	_, err = offline.Delete(context.Background(), Order{}, nil)
	require.EqualError(t, err, "batchql: client has no driver")
	require.NoError(t, offline.Close())

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	_, err = batch.New(sql.OpenDB("oracle", db))
	require.Error(t, err, "no dialect named oracle")

	client, err := batch.New(sql.OpenDB("oracle", db), batch.WithDialect(dialect.Postgres))
	require.NoError(t, err)
	assert.NotNil(t, client.Registry())
}
