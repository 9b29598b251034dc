package sql

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/syssam/batchql/dialect"
)

// Dialect holds the formatting rules of a database. Statements are rendered
// from these rules only; adding a database means adding a Dialect.
type Dialect struct {
	// Name is the dialect name, such as "postgres".
	Name string
	// Quote holds the opening and closing identifier quotes. A closing quote
	// inside a name is doubled.
	Quote [2]string
	// Placeholder returns the placeholder of the i-th argument, counted
	// from 0 in statement order.
	Placeholder func(i int) string
	// ConcatOp is the string concatenation operator. When empty, the
	// CONCAT function is used.
	ConcatOp string
	// RegexpOp is the regular expression match operator. When empty,
	// regular expression matches are not supported.
	RegexpOp string
	// LikeSpecial lists the characters that are escaped with a backslash in
	// LIKE patterns, the backslash included.
	LikeSpecial string
	// LikeEscapeClause states the backslash escape with ESCAPE '\' for
	// databases that have no default LIKE escape character.
	LikeEscapeClause bool
	// LowerKeywords renders keywords in lower case.
	LowerKeywords bool
}

// QuoteIdent quotes a single identifier.
func (d *Dialect) QuoteIdent(name string) string {
	open, closing := d.Quote[0], d.Quote[1]
	if closing != "" {
		name = strings.ReplaceAll(name, closing, closing+closing)
	}
	return open + name + closing
}

// EscapeLike escapes the LIKE wildcards of s.
func (d *Dialect) EscapeLike(s string) string {
	if !strings.ContainsAny(s, d.LikeSpecial) {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s) + 4)
	for _, r := range s {
		if strings.ContainsRune(d.LikeSpecial, r) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (d *Dialect) validate() error {
	switch {
	case d.Name == "":
		return fmt.Errorf("dialect/sql: dialect without a name")
	case d.Quote[0] == "" || d.Quote[1] == "":
		return fmt.Errorf("dialect/sql: dialect %s: missing identifier quotes", d.Name)
	case d.Placeholder == nil:
		return fmt.Errorf("dialect/sql: dialect %s: missing placeholder format", d.Name)
	case d.LikeSpecial != "" && !strings.Contains(d.LikeSpecial, `\`):
		return fmt.Errorf("dialect/sql: dialect %s: LIKE specials must include the backslash", d.Name)
	}
	return nil
}

var (
	dialectsMu sync.RWMutex
	dialects   = map[string]*Dialect{
		dialect.SQLServer: {
			Name:             dialect.SQLServer,
			Quote:            [2]string{"[", "]"},
			Placeholder:      func(i int) string { return "@p" + strconv.Itoa(i) },
			ConcatOp:         "+",
			LikeSpecial:      `\%_[`,
			LikeEscapeClause: true,
		},
		dialect.Postgres: {
			Name:        dialect.Postgres,
			Quote:       [2]string{`"`, `"`},
			Placeholder: func(i int) string { return "$" + strconv.Itoa(i+1) },
			ConcatOp:    "||",
			RegexpOp:    "~",
			LikeSpecial: `\%_`,
		},
		dialect.MySQL: {
			Name:        dialect.MySQL,
			Quote:       [2]string{"`", "`"},
			Placeholder: func(int) string { return "?" },
			RegexpOp:    "REGEXP",
			LikeSpecial: `\%_`,
		},
		dialect.SQLite: {
			Name:             dialect.SQLite,
			Quote:            [2]string{`"`, `"`},
			Placeholder:      func(int) string { return "?" },
			ConcatOp:         "||",
			LikeSpecial:      `\%_`,
			LikeEscapeClause: true,
		},
	}
)

// RegisterDialect adds d, replacing any dialect with the same name.
// It is meant to be called from init functions.
func RegisterDialect(d *Dialect) error {
	if d == nil {
		return fmt.Errorf("dialect/sql: nil dialect")
	}
	if err := d.validate(); err != nil {
		return err
	}
	dialectsMu.Lock()
	defer dialectsMu.Unlock()
	dialects[d.Name] = d
	return nil
}

// LookupDialect returns the dialect with the given name. Driver names are
// accepted too: "pgx" resolves to postgres.
func LookupDialect(name string) (*Dialect, error) {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	if d, ok := dialects[name]; ok {
		return d, nil
	}
	if d, ok := dialects[dialectOf(name)]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("dialect/sql: unknown dialect %q", name)
}

// MustLookupDialect is like LookupDialect but panics on unknown names.
func MustLookupDialect(name string) *Dialect {
	d, err := LookupDialect(name)
	if err != nil {
		panic(err)
	}
	return d
}

// Dialects returns the names of the registered dialects, sorted.
func Dialects() []string {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	names := make([]string, 0, len(dialects))
	for n := range dialects {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
