package querylanguage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/batchql/querylanguage"
)

func TestParseRoundTrip(t *testing.T) {
	tests := []string{
		`name == "a8m" && org in ["fb","ent"]`,
		`!(name == "mashraki") || org in ["fb","ent"]`,
		`age > 30 && contains(workplace, "fb")`,
		`!(score < 32.23)`,
		`active == nil && name != nil`,
		`id not in [1,2,3] || has_suffix(name, "admin")`,
		`(a == 1 && b == 2 && c == 3)`,
		`(a == 1 || b == 2) && c == 3`,
		`Quantity > 10`,
		`Quantity == Quantity + 1`,
		`Price * 2 > (Cost + 1) * 3`,
		`shadow(LogData) == param(0)`,
		`Audit.ChangedBy == "admin"`,
		`matches(Name, "^a.*z$")`,
		`has_edge(groups, has_edge(admins, !(name == "a8m")))`,
		`concat(FirstName, " ", LastName) == "John Doe"`,
		`cond(Quantity > 100, "bulk", Description) == "bulk"`,
		`coalesce(Description, "") != ""`,
		`Delta == -5`,
	}
	for _, s := range tests {
		t.Run(s, func(t *testing.T) {
			p, err := querylanguage.Parse(s)
			require.NoError(t, err)
			assert.Equal(t, s, p.String())
		})
	}
}

func TestParseValues(t *testing.T) {
	p, err := querylanguage.Parse(`Quantity > 10`)
	require.NoError(t, err)
	b, ok := p.(*querylanguage.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, querylanguage.OpGT, b.Op)
	assert.Equal(t, &querylanguage.Field{Name: "Quantity"}, b.X)
	assert.Equal(t, &querylanguage.Value{V: 10}, b.Y)

	v, err := querylanguage.ParseValue(`"a\"b"`)
	require.NoError(t, err)
	assert.Equal(t, `a"b`, v)

	v, err = querylanguage.ParseValue(`1.5`)
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)

	v, err = querylanguage.ParseValue(`nil`)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = querylanguage.ParseValue(`false`)
	require.NoError(t, err)
	assert.Equal(t, false, v)

	_, err = querylanguage.ParseValue(`Name`)
	require.Error(t, err)
}

func TestParseObject(t *testing.T) {
	o, err := querylanguage.ParseObject(`{Quantity: Quantity + 1, Name: "X"}`)
	require.NoError(t, err)
	require.Len(t, o.Bindings, 2)
	assert.Equal(t, "Quantity", o.Bindings[0].Name)
	assert.Equal(t, "Quantity + 1", o.Bindings[0].X.String())
	assert.Equal(t, `{Quantity: Quantity + 1, Name: "X"}`, o.String())

	o, err = querylanguage.ParseObject(`{}`)
	require.NoError(t, err)
	assert.Empty(t, o.Bindings)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		in  string
		msg string
	}{
		{in: `Quantity >`, msg: "unexpected end of expression"},
		{in: `Name == "abc`, msg: "unterminated string"},
		{in: `Quantity + 1`, msg: "is not a predicate"},
		{in: `a == 1 && b`, msg: "is not a predicate"},
		{in: `Name ~ "x"`, msg: "unexpected character"},
		{in: `lower(Name) == "x"`, msg: "unknown function"},
		{in: `param(-1) == 1`, msg: "non-negative index"},
		{in: `Id not [1]`, msg: `expected "in"`},
		{in: `(a == 1`, msg: `expected ")"`},
		{in: `a == 1 b`, msg: `unexpected "b"`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := querylanguage.Parse(tt.in)
			require.Error(t, err)
			var serr *querylanguage.SyntaxError
			require.ErrorAs(t, err, &serr)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	_, err := querylanguage.ParseObject(`Quantity: 1`)
	require.Error(t, err)
}
