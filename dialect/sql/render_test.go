package sql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/batchql"
	"github.com/syssam/batchql/dialect"
)

func TestRender(t *testing.T) {
	item := Table{Name: "Item"}
	tests := []struct {
		name    string
		stmt    *Statement
		dialect string
		query   string
		args    []any
	}{
		{
			name:    "DeleteWhere",
			stmt:    &Statement{Op: OpDelete, Table: item, Where: B().Ident("Quantity").WriteString(" > ").Arg(10)},
			dialect: dialect.SQLServer,
			query:   "DELETE FROM [Item] WHERE [Quantity] > @p0",
			args:    []any{10},
		},
		{
			name:    "DeleteAll",
			stmt:    &Statement{Op: OpDelete, Table: item},
			dialect: dialect.Postgres,
			query:   `DELETE FROM "Item"`,
		},
		{
			name: "UpdateSetBeforeWhere",
			stmt: &Statement{
				Op:    OpUpdate,
				Table: item,
				Set:   []Assignment{{Column: "Name", Value: B().Arg("X")}},
				Where: B().Ident("ItemId").WriteString(" = ").Arg(5),
			},
			dialect: dialect.SQLServer,
			query:   "UPDATE [Item] SET [Name] = @p0 WHERE [ItemId] = @p1",
			args:    []any{"X", 5},
		},
		{
			name: "UpdateSelfReference",
			stmt: &Statement{
				Op:    OpUpdate,
				Table: item,
				Set:   []Assignment{{Column: "Quantity", Value: B().Ident("Quantity").WriteString(" + ").Arg(1)}},
			},
			dialect: dialect.SQLServer,
			query:   "UPDATE [Item] SET [Quantity] = [Quantity] + @p0",
			args:    []any{1},
		},
		{
			name: "PostgresNumbering",
			stmt: &Statement{
				Op:    OpUpdate,
				Table: Table{Schema: "his", Name: "ItemHistory"},
				Set: []Assignment{
					{Column: "Remark", Value: B().Arg("a")},
					{Column: "Seen", Value: B().Arg(true)},
				},
				Where: B().Ident("ItemId").WriteString(" IN (").Arg(1).Comma().Arg(2).WriteString(")"),
			},
			dialect: dialect.Postgres,
			query:   `UPDATE "his"."ItemHistory" SET "Remark" = $1, "Seen" = $2 WHERE "ItemId" IN ($3, $4)`,
			args:    []any{"a", true, 1, 2},
		},
		{
			name:    "MySQL",
			stmt:    &Statement{Op: OpDelete, Table: Table{Schema: "shop", Name: "Item"}, Where: B().Ident("Name").WriteString(" = ").Arg("x")},
			dialect: dialect.MySQL,
			query:   "DELETE FROM `shop`.`Item` WHERE `Name` = ?",
			args:    []any{"x"},
		},
		{
			name:    "QuotedQuote",
			stmt:    &Statement{Op: OpDelete, Table: Table{Name: `we"ird`}},
			dialect: dialect.SQLite,
			query:   `DELETE FROM "we""ird"`,
		},
		{
			name:    "QuotedBracket",
			stmt:    &Statement{Op: OpDelete, Table: Table{Name: "a]b"}},
			dialect: dialect.SQLServer,
			query:   "DELETE FROM [a]]b]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Render(tt.stmt, MustLookupDialect(tt.dialect))
			require.NoError(t, err)
			assert.Equal(t, tt.query, g.Query)
			assert.Equal(t, tt.args, g.Args)
			assert.Equal(t, tt.stmt.Op, g.Op)
			assert.Equal(t, tt.dialect, g.Dialect)
		})
	}
}

func TestRenderErrors(t *testing.T) {
	d := MustLookupDialect(dialect.SQLite)
	_, err := Render(&Statement{Op: OpUpdate, Table: Table{Name: "Item"}}, d)
	require.EqualError(t, err, "dialect/sql: update without assignments")
	_, err = Render(&Statement{Op: OpDelete}, d)
	require.EqualError(t, err, "dialect/sql: delete without a table")
	_, err = Render(&Statement{Op: OpDelete, Table: Table{Name: "Item"}, Set: []Assignment{{Column: "a", Value: B().Arg(1)}}}, d)
	require.Error(t, err)
	_, err = Render(&Statement{Table: Table{Name: "Item"}}, d)
	require.EqualError(t, err, "dialect/sql: unknown statement op(0)")
}

func TestRenderAcrossDialects(t *testing.T) {
	stmt := &Statement{
		Op:    OpUpdate,
		Table: Table{Name: "Item"},
		Set: []Assignment{
			{Column: "Quantity", Value: B().Ident("Quantity").WriteString(" + ").Arg(1)},
			{Column: "Name", Value: B().Arg("X")},
		},
		Where: B().Nested(func(b *Builder) {
			b.Ident("ItemId").WriteString(" = ").Arg(5).Pad().Keyword("OR").Pad().Ident("ItemId").WriteString(" = ").Arg(6)
		}).Pad().Keyword("AND").Pad().Ident("Price").WriteString(" > ").Arg(1.5),
	}
	var want []any
	normalize := strings.NewReplacer(
		"[", "", "]", "", `"`, "", "`", "",
		"@p0", "?", "@p1", "?", "@p2", "?", "@p3", "?", "@p4", "?",
		"$1", "?", "$2", "?", "$3", "?", "$4", "?", "$5", "?",
	)
	var shape string
	for _, name := range []string{dialect.SQLServer, dialect.Postgres, dialect.MySQL, dialect.SQLite} {
		g, err := Render(stmt, MustLookupDialect(name))
		require.NoError(t, err)
		if want == nil {
			want, shape = g.Args, normalize.Replace(g.Query)
			continue
		}
		assert.Equal(t, want, g.Args, name)
		assert.Equal(t, shape, normalize.Replace(g.Query), name)
	}
	assert.Equal(t, "UPDATE Item SET Quantity = Quantity + ?, Name = ? WHERE (ItemId = ? OR ItemId = ?) AND Price > ?", shape)
	assert.Equal(t, []any{1, "X", 5, 6, 1.5}, want)
}

func TestRenderLike(t *testing.T) {
	where := func(m LikeMatch) *Statement {
		return &Statement{Op: OpDelete, Table: Table{Name: "Item"}, Where: B().Ident("Name").Pad().Keyword("LIKE").Pad().Like(`50%_o\ff[x]`, m)}
	}
	tests := []struct {
		dialect string
		match   LikeMatch
		query   string
		arg     string
	}{
		{dialect.SQLServer, LikeContains, `DELETE FROM [Item] WHERE [Name] LIKE @p0 ESCAPE '\'`, `%50\%\_o\\ff\[x]%`},
		{dialect.Postgres, LikePrefix, `DELETE FROM "Item" WHERE "Name" LIKE $1`, `50\%\_o\\ff[x]%`},
		{dialect.MySQL, LikeSuffix, "DELETE FROM `Item` WHERE `Name` LIKE ?", `%50\%\_o\\ff[x]`},
		{dialect.SQLite, LikeExact, `DELETE FROM "Item" WHERE "Name" LIKE ? ESCAPE '\'`, `50\%\_o\\ff[x]`},
	}
	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			g, err := Render(where(tt.match), MustLookupDialect(tt.dialect))
			require.NoError(t, err)
			assert.Equal(t, tt.query, g.Query)
			assert.Equal(t, []any{tt.arg}, g.Args)
		})
	}
}

func TestRenderConcatAndRegexp(t *testing.T) {
	concat := &Statement{
		Op:    OpUpdate,
		Table: Table{Name: "Item"},
		Set:   []Assignment{{Column: "Name", Value: B().Concat(B().Ident("Name"), B().Arg("!"))}},
	}
	tests := map[string]string{
		dialect.SQLServer: "UPDATE [Item] SET [Name] = ([Name] + @p0)",
		dialect.Postgres:  `UPDATE "Item" SET "Name" = ("Name" || $1)`,
		dialect.MySQL:     "UPDATE `Item` SET `Name` = CONCAT(`Name`, ?)",
		dialect.SQLite:    `UPDATE "Item" SET "Name" = ("Name" || ?)`,
	}
	for name, want := range tests {
		g, err := Render(concat, MustLookupDialect(name))
		require.NoError(t, err)
		assert.Equal(t, want, g.Query, name)
	}

	match := &Statement{Op: OpDelete, Table: Table{Name: "Item"}, Where: B().Regexp(B().Ident("Name"), B().Arg("^a+$"))}
	g, err := Render(match, MustLookupDialect(dialect.Postgres))
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "Item" WHERE "Name" ~ $1`, g.Query)
	g, err = Render(match, MustLookupDialect(dialect.MySQL))
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM `Item` WHERE `Name` REGEXP ?", g.Query)
	for _, name := range []string{dialect.SQLServer, dialect.SQLite} {
		_, err := Render(match, MustLookupDialect(name))
		require.Error(t, err)
		assert.True(t, batchql.IsDialectUnsupported(err), name)
	}
}

func TestRegisterDialect(t *testing.T) {
	require.Error(t, RegisterDialect(nil))
	require.Error(t, RegisterDialect(&Dialect{Name: "x"}))
	require.Error(t, RegisterDialect(&Dialect{Name: "x", Quote: [2]string{`"`, `"`}}))
	require.Error(t, RegisterDialect(&Dialect{Name: "x", Quote: [2]string{`"`, `"`}, Placeholder: func(int) string { return "?" }, LikeSpecial: "%_"}))

	require.NoError(t, RegisterDialect(&Dialect{
		Name:          "oracle",
		Quote:         [2]string{`"`, `"`},
		Placeholder:   func(i int) string { return ":" + string(rune('1'+i)) },
		ConcatOp:      "||",
		RegexpOp:      "REGEXP_LIKE",
		LikeSpecial:   `\%_`,
		LowerKeywords: true,
	}))
	assert.Contains(t, Dialects(), "oracle")
	g, err := Render(&Statement{
		Op:    OpUpdate,
		Table: Table{Name: "Item"},
		Set:   []Assignment{{Column: "Name", Value: B().Arg("X")}},
		Where: B().Ident("ItemId").WriteString(" = ").Arg(5),
	}, MustLookupDialect("oracle"))
	require.NoError(t, err)
	assert.Equal(t, `update "Item" set "Name" = :1 where "ItemId" = :2`, g.Query)
}

func TestLookupDialect(t *testing.T) {
	d, err := LookupDialect("pgx")
	require.NoError(t, err)
	assert.Equal(t, dialect.Postgres, d.Name)
	_, err = LookupDialect("db2")
	require.EqualError(t, err, `dialect/sql: unknown dialect "db2"`)
	assert.Panics(t, func() { MustLookupDialect("db2") })
	assert.Subset(t, Dialects(), []string{dialect.MySQL, dialect.Postgres, dialect.SQLite, dialect.SQLServer})
}

func TestBuilder(t *testing.T) {
	b := B().WriteString("a").WriteString("b").Arg(1).Like("x", LikeContains).
		Concat(B().Arg(2), B().Arg(3)).Regexp(B().Ident("c"), B().Arg(4))
	assert.Equal(t, 5, b.Args())
	assert.False(t, b.Empty())
	assert.True(t, B().Empty())
	var nilb *Builder
	assert.True(t, nilb.Empty())
	assert.Zero(t, nilb.Args())
	assert.Len(t, b.parts, 5, "adjacent text is merged")
}
