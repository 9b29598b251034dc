package sql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/batchql/dialect"
)

func TestWithVars(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	drv := OpenDB(dialect.Postgres, db)

	mock.ExpectExec("SET app.tenant = 'acme'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM items").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("RESET app.tenant").WillReturnResult(sqlmock.NewResult(0, 0))
	var res sql.Result
	err = drv.Exec(WithVar(context.Background(), "app.tenant", "acme"), "DELETE FROM items", []any{}, &res)
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())

	// The same variable set twice is reset once.
	mock.ExpectExec("SET app.tenant = 'a'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SET app.tenant = 'b'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectExec("RESET app.tenant").WillReturnResult(sqlmock.NewResult(0, 0))
	rows := &Rows{}
	ctx := WithVar(WithVar(context.Background(), "app.tenant", "a"), "app.tenant", "b")
	require.NoError(t, drv.Query(ctx, "SELECT 1", []any{}, rows))
	require.NoError(t, rows.Close(), "closing the rows releases the connection")
	require.NoError(t, mock.ExpectationsWereMet())

	// Transactions own their connection; nothing is reset.
	mock.ExpectBegin()
	mock.ExpectExec("SET app.tenant = 'acme'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE items").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	tx, err := drv.Tx(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Exec(WithVar(context.Background(), "app.tenant", "acme"), "UPDATE items SET x = 1", []any{}, nil))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithVarsMySQLReset(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	drv := OpenDB(dialect.MySQL, db)
	mock.ExpectExec("SET foo = 'bar'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM t").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SET foo = NULL").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, drv.Exec(WithVar(context.Background(), "foo", "bar"), "DELETE FROM t", []any{}, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithVarsInvalidIdentifier(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	drv := OpenDB(dialect.Postgres, db)
	err = drv.Exec(WithVar(context.Background(), "foo; DROP TABLE users; --", "bar"), "DELETE FROM t", []any{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid session variable name")
}

func TestWithVarsEscapedValue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	drv := OpenDB(dialect.Postgres, db)
	mock.ExpectExec("SET foo = 'it''s escaped'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM t").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("RESET foo").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, drv.Exec(WithVar(context.Background(), "foo", "it's escaped"), "DELETE FROM t", []any{}, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverDialect(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{dialect.Postgres, dialect.Postgres},
		{dialect.MySQL, dialect.MySQL},
		{dialect.SQLite, dialect.SQLite},
		{dialect.SQLServer, dialect.SQLServer},
		{"pgx", dialect.Postgres},
		{"sqlite3", dialect.SQLite},
		{"mssql", dialect.SQLServer},
		{"postgres-traced", dialect.Postgres},
		{"oracle", "oracle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, _, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			assert.Equal(t, tt.want, OpenDB(tt.name, db).Dialect())
		})
	}
}

func TestDriverExec(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.Postgres, db)

	t.Run("Result", func(t *testing.T) {
		mock.ExpectExec(`UPDATE "Item" SET "Name" = \$1 WHERE "ItemId" = \$2`).
			WithArgs("X", 5).
			WillReturnResult(sqlmock.NewResult(0, 1))
		var res sql.Result
		err := drv.Exec(context.Background(), `UPDATE "Item" SET "Name" = $1 WHERE "ItemId" = $2`, []any{"X", 5}, &res)
		require.NoError(t, err)
		n, err := res.RowsAffected()
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DriverErrorUnchanged", func(t *testing.T) {
		driverErr := errors.New(`pq: duplicate key value violates unique constraint "item_name"`)
		mock.ExpectExec("DELETE").WillReturnError(driverErr)
		err := drv.Exec(context.Background(), `DELETE FROM "Item"`, []any{}, nil)
		require.ErrorIs(t, err, driverErr)
		assert.Equal(t, driverErr.Error(), err.Error())
	})

	t.Run("InvalidArgs", func(t *testing.T) {
		err := drv.Exec(context.Background(), "DELETE FROM t", "args", nil)
		require.Error(t, err)
		assert.True(t, strings.HasPrefix(err.Error(), "dialect/sql: invalid type"))
		err = drv.Exec(context.Background(), "DELETE FROM t", []any{}, new(int))
		require.Error(t, err)
	})
}

func TestDriverQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.SQLite, db)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "Item"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	rows := &Rows{}
	require.NoError(t, drv.Query(context.Background(), `SELECT count(*) FROM "Item"`, []any{}, rows))
	require.True(t, rows.Next())
	var n int
	require.NoError(t, rows.Scan(&n))
	assert.Equal(t, 7, n)
	require.NoError(t, rows.Close())

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("boom"))
	require.EqualError(t, drv.Query(context.Background(), "SELECT 1", []any{}, rows), "boom")
	require.Error(t, drv.Query(context.Background(), "SELECT 1", []any{}, new(int)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.SQLite, db)

	t.Run("Commit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM").WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()
		tx, err := drv.Tx(context.Background())
		require.NoError(t, err)
		require.NoError(t, tx.Exec(context.Background(), `DELETE FROM "Item"`, []any{}, nil))
		require.NoError(t, tx.Commit())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Rollback", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE").WillReturnError(errors.New("locked"))
		mock.ExpectRollback()
		tx, err := drv.Tx(context.Background())
		require.NoError(t, err)
		require.Error(t, tx.Exec(context.Background(), `UPDATE "Item" SET "Name" = ?`, []any{"x"}, nil))
		require.NoError(t, tx.Rollback())
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestIsValidIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"foo", true},
		{"foo_bar", true},
		{"app.tenant", true},
		{"_private", true},
		{"", false},
		{"123foo", false},
		{"foo bar", false},
		{"foo'bar", false},
		{"foo;DROP TABLE", false},
		{string(make([]byte, 129)), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isValidIdentifier(tt.in), "%q", tt.in)
	}
}

func TestQuoteValue(t *testing.T) {
	tests := []struct{ in, want string }{
		{"hello", "hello"},
		{"it's", "it''s"},
		{`path\to`, `path\\to`},
		{`it's \x`, `it''s \\x`},
		{"'; DROP TABLE users; --", "''; DROP TABLE users; --"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, quoteValue(tt.in))
	}
}
