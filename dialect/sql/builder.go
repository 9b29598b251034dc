package sql

// Builder accumulates a SQL fragment without committing to a dialect.
// Identifiers, arguments and a few dialect-specific constructs are kept as
// parts and formatted when the fragment is rendered, so one fragment can be
// rendered for several dialects.
//
//	b := sql.B().Ident("Quantity").WriteString(" > ").Arg(10)
//
// The zero value is ready to use.
type Builder struct {
	parts []part
}

// LikeMatch selects where a LIKE pattern may match.
type LikeMatch uint8

// LIKE match positions.
const (
	LikeExact LikeMatch = iota
	LikePrefix
	LikeSuffix
	LikeContains
)

type partKind uint8

const (
	partText partKind = iota
	partKeyword
	partIdent
	partArg
	partLike
	partConcat
	partRegexp
)

type part struct {
	kind  partKind
	text  string
	names []string
	value any
	match LikeMatch
	subs  []*Builder
}

// B returns a new Builder.
func B() *Builder { return &Builder{} }

// WriteString appends raw SQL text.
func (b *Builder) WriteString(s string) *Builder {
	if n := len(b.parts); n > 0 && b.parts[n-1].kind == partText {
		b.parts[n-1].text += s
		return b
	}
	b.parts = append(b.parts, part{kind: partText, text: s})
	return b
}

// Keyword appends a SQL keyword, written in upper case. Dialects may
// render keywords in a different case.
func (b *Builder) Keyword(kw string) *Builder {
	b.parts = append(b.parts, part{kind: partKeyword, text: kw})
	return b
}

// Pad appends a space.
func (b *Builder) Pad() *Builder { return b.WriteString(" ") }

// Comma appends a comma and a space.
func (b *Builder) Comma() *Builder { return b.WriteString(", ") }

// Ident appends a quoted identifier. Several names form a qualified
// identifier, such as schema and table.
func (b *Builder) Ident(names ...string) *Builder {
	b.parts = append(b.parts, part{kind: partIdent, names: names})
	return b
}

// Arg appends a placeholder bound to v.
func (b *Builder) Arg(v any) *Builder {
	b.parts = append(b.parts, part{kind: partArg, value: v})
	return b
}

// Like appends a placeholder bound to a LIKE pattern matching s literally
// at the given position. The pattern is escaped for the dialect, and an
// ESCAPE clause follows where the dialect has no default escape character.
func (b *Builder) Like(s string, m LikeMatch) *Builder {
	b.parts = append(b.parts, part{kind: partLike, text: s, match: m})
	return b
}

// Concat appends the string concatenation of xs.
func (b *Builder) Concat(xs ...*Builder) *Builder {
	b.parts = append(b.parts, part{kind: partConcat, subs: xs})
	return b
}

// Regexp appends a regular expression match of x against pattern.
func (b *Builder) Regexp(x, pattern *Builder) *Builder {
	b.parts = append(b.parts, part{kind: partRegexp, subs: []*Builder{x, pattern}})
	return b
}

// Join appends the parts of other.
func (b *Builder) Join(other *Builder) *Builder {
	if other != nil {
		for _, p := range other.parts {
			if p.kind == partText {
				b.WriteString(p.text)
				continue
			}
			b.parts = append(b.parts, p)
		}
	}
	return b
}

// Nested appends the fragment built by fn wrapped in parentheses.
func (b *Builder) Nested(fn func(*Builder)) *Builder {
	nb := &Builder{}
	fn(nb)
	return b.WriteString("(").Join(nb).WriteString(")")
}

// Empty reports whether nothing was appended.
func (b *Builder) Empty() bool { return b == nil || len(b.parts) == 0 }

// Args returns the number of placeholders in the fragment.
func (b *Builder) Args() int {
	if b == nil {
		return 0
	}
	n := 0
	for _, p := range b.parts {
		switch p.kind {
		case partArg, partLike:
			n++
		case partConcat, partRegexp:
			for _, s := range p.subs {
				n += s.Args()
			}
		}
	}
	return n
}
