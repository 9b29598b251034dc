package sql

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/syssam/batchql"
)

// Op is the kind of a batch statement.
type Op uint8

// Statement kinds.
const (
	OpDelete Op = iota + 1
	OpUpdate
)

// String returns the lower-case name of the operation.
func (o Op) String() string {
	switch o {
	case OpDelete:
		return "delete"
	case OpUpdate:
		return "update"
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Table names the target of a statement.
type Table struct {
	Schema string
	Name   string
}

func (t Table) names() []string {
	if t.Schema == "" {
		return []string{t.Name}
	}
	return []string{t.Schema, t.Name}
}

// Assignment is an item of the SET list of an update.
type Assignment struct {
	Column string
	Value  *Builder
}

// Statement is a batch statement before it is rendered for a dialect.
type Statement struct {
	Op    Op
	Table Table
	// Set is used by updates only.
	Set []Assignment
	// Where is the optional row filter.
	Where *Builder
}

// Generated is a statement rendered for a dialect. Args follow the
// placeholders of Query from left to right.
type Generated struct {
	Op      Op
	Dialect string
	Query   string
	Args    []any
}

// String returns the query and its arguments.
func (g *Generated) String() string {
	return fmt.Sprintf("%s %v", g.Query, g.Args)
}

// Render formats s for the dialect d:
//
//	DELETE FROM <table> [WHERE <predicate>]
//	UPDATE <table> SET <col> = <expr> [, ...] [WHERE <predicate>]
//
// Placeholders are numbered over the whole statement, the SET list first.
func Render(s *Statement, d *Dialect) (*Generated, error) {
	if s.Table.Name == "" {
		return nil, fmt.Errorf("dialect/sql: %s without a table", s.Op)
	}
	b := B()
	switch s.Op {
	case OpDelete:
		if len(s.Set) > 0 {
			return nil, fmt.Errorf("dialect/sql: delete with assignments")
		}
		b.Keyword("DELETE FROM").Pad().Ident(s.Table.names()...)
	case OpUpdate:
		if len(s.Set) == 0 {
			return nil, fmt.Errorf("dialect/sql: update without assignments")
		}
		b.Keyword("UPDATE").Pad().Ident(s.Table.names()...).Pad().Keyword("SET").Pad()
		for i, a := range s.Set {
			if i > 0 {
				b.Comma()
			}
			b.Ident(a.Column).WriteString(" = ").Join(a.Value)
		}
	default:
		return nil, fmt.Errorf("dialect/sql: unknown statement %s", s.Op)
	}
	if !s.Where.Empty() {
		b.Pad().Keyword("WHERE").Pad().Join(s.Where)
	}
	query, args, err := d.Format(b)
	if err != nil {
		return nil, err
	}
	return &Generated{Op: s.Op, Dialect: d.Name, Query: query, Args: args}, nil
}

// Format renders the fragment b and returns its text and arguments.
func (d *Dialect) Format(b *Builder) (string, []any, error) {
	r := &renderer{d: d}
	if d.LowerKeywords {
		r.keywords = cases.Lower(language.Und)
	}
	r.build(b)
	if r.err != nil {
		return "", nil, r.err
	}
	return r.sb.String(), r.args, nil
}

type renderer struct {
	d        *Dialect
	sb       strings.Builder
	args     []any
	keywords cases.Caser
	err      error
}

func (r *renderer) build(b *Builder) {
	if b == nil {
		return
	}
	for _, p := range b.parts {
		if r.err != nil {
			return
		}
		switch p.kind {
		case partText:
			r.sb.WriteString(p.text)
		case partKeyword:
			r.sb.WriteString(r.keyword(p.text))
		case partIdent:
			for i, n := range p.names {
				if i > 0 {
					r.sb.WriteByte('.')
				}
				r.sb.WriteString(r.d.QuoteIdent(n))
			}
		case partArg:
			r.arg(p.value)
		case partLike:
			r.like(p.text, p.match)
		case partConcat:
			r.concat(p.subs)
		case partRegexp:
			if r.d.RegexpOp == "" {
				r.err = batchql.NewDialectUnsupportedFeatureError(r.d.Name, "regular expression matching")
				return
			}
			r.build(p.subs[0])
			r.sb.WriteString(" " + r.keyword(r.d.RegexpOp) + " ")
			r.build(p.subs[1])
		}
	}
}

func (r *renderer) keyword(s string) string {
	if r.d.LowerKeywords {
		return r.keywords.String(s)
	}
	return s
}

func (r *renderer) arg(v any) {
	r.sb.WriteString(r.d.Placeholder(len(r.args)))
	r.args = append(r.args, v)
}

func (r *renderer) like(s string, m LikeMatch) {
	pattern := r.d.EscapeLike(s)
	if m == LikeSuffix || m == LikeContains {
		pattern = "%" + pattern
	}
	if m == LikePrefix || m == LikeContains {
		pattern += "%"
	}
	r.arg(pattern)
	if r.d.LikeEscapeClause {
		r.sb.WriteString(" " + r.keyword("ESCAPE") + ` '\'`)
	}
}

func (r *renderer) concat(xs []*Builder) {
	if r.d.ConcatOp == "" {
		r.sb.WriteString(r.keyword("CONCAT") + "(")
		for i, x := range xs {
			if i > 0 {
				r.sb.WriteString(", ")
			}
			r.build(x)
		}
		r.sb.WriteString(")")
		return
	}
	r.sb.WriteString("(")
	for i, x := range xs {
		if i > 0 {
			r.sb.WriteString(" " + r.d.ConcatOp + " ")
		}
		r.build(x)
	}
	r.sb.WriteString(")")
}
