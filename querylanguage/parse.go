package querylanguage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// SyntaxError reports a malformed expression.
type SyntaxError struct {
	Offset int
	Msg    string
}

// Error returns the error string.
func (e *SyntaxError) Error() string {
	return fmt.Sprintf("querylanguage: %s at offset %d", e.Msg, e.Offset)
}

// Parse parses the text form of a predicate, as produced by P.String.
func Parse(s string) (P, error) {
	p, err := newParser(s)
	if err != nil {
		return nil, err
	}
	x, err := p.expr()
	if err != nil {
		return nil, err
	}
	if err := p.done(); err != nil {
		return nil, err
	}
	pred, ok := x.(P)
	if !ok || !boolean(pred) {
		return nil, &SyntaxError{Offset: 0, Msg: fmt.Sprintf("%s is not a predicate", x)}
	}
	return pred, nil
}

// ParseExpr parses the text form of a value expression.
func ParseExpr(s string) (Expr, error) {
	p, err := newParser(s)
	if err != nil {
		return nil, err
	}
	x, err := p.expr()
	if err != nil {
		return nil, err
	}
	return x, p.done()
}

// ParseObject parses a selector of the form {Member: expr, ...}.
func ParseObject(s string) (*ObjectExpr, error) {
	p, err := newParser(s)
	if err != nil {
		return nil, err
	}
	if !p.is(tokPunct, "{") {
		return nil, p.errorf("expected '{'")
	}
	o, err := p.object()
	if err != nil {
		return nil, err
	}
	return o, p.done()
}

// ParseValue parses a single literal: a number, a string, true, false or nil.
func ParseValue(s string) (any, error) {
	x, err := ParseExpr(s)
	if err != nil {
		return nil, err
	}
	v, ok := x.(*Value)
	if !ok {
		return nil, &SyntaxError{Msg: fmt.Sprintf("%s is not a literal", x)}
	}
	if v == nil {
		return nil, nil
	}
	return v.V, nil
}

// boolean reports whether the predicate node evaluates to a boolean.
func boolean(p P) bool {
	switch p := p.(type) {
	case *BinaryExpr:
		return p.Op.Comparison() || p.Op == OpAnd || p.Op == OpOr
	case *UnaryExpr:
		return p.Op == OpNot
	case *CallExpr:
		return p.Func != FuncConcat && p.Func != FuncCoalesce
	}
	return true
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokNumber
	tokString
	tokPunct
)

type token struct {
	kind tokKind
	text string
	pos  int
}

type parser struct {
	toks []token
	i    int
}

func newParser(s string) (*parser, error) {
	toks, err := lex(s)
	if err != nil {
		return nil, err
	}
	return &parser{toks: toks}, nil
}

// punctuation sorted longest first.
var puncts = []string{"==", "!=", ">=", "<=", "&&", "||", ">", "<", "!", "+", "-", "*", "/", "%", "(", ")", "[", "]", "{", "}", ",", ":"}

func lex(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		c := rune(s[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '"':
			j := i + 1
			for j < len(s) && s[j] != '"' {
				if s[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(s) {
				return nil, &SyntaxError{Offset: i, Msg: "unterminated string"}
			}
			toks = append(toks, token{kind: tokString, text: s[i : j+1], pos: i})
			i = j + 1
		case c >= '0' && c <= '9':
			j := i
			for j < len(s) && (s[j] >= '0' && s[j] <= '9' || s[j] == '.' || s[j] == 'e' || s[j] == 'E' ||
				(s[j] == '-' || s[j] == '+') && (s[j-1] == 'e' || s[j-1] == 'E')) {
				j++
			}
			toks = append(toks, token{kind: tokNumber, text: s[i:j], pos: i})
			i = j
		case c == '_' || unicode.IsLetter(c):
			j := i
			for j < len(s) && (s[j] == '_' || s[j] == '.' || unicode.IsLetter(rune(s[j])) || unicode.IsDigit(rune(s[j]))) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: s[i:j], pos: i})
			i = j
		default:
			var matched string
			for _, p := range puncts {
				if strings.HasPrefix(s[i:], p) {
					matched = p
					break
				}
			}
			if matched == "" {
				return nil, &SyntaxError{Offset: i, Msg: fmt.Sprintf("unexpected character %q", c)}
			}
			toks = append(toks, token{kind: tokPunct, text: matched, pos: i})
			i += len(matched)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(s)}), nil
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) is(kind tokKind, text string) bool {
	t := p.peek()
	return t.kind == kind && t.text == text
}

func (p *parser) accept(kind tokKind, text string) bool {
	if p.is(kind, text) {
		p.i++
		return true
	}
	return false
}

func (p *parser) expect(text string) error {
	if !p.accept(tokPunct, text) {
		return p.errorf("expected %q", text)
	}
	return nil
}

func (p *parser) done() error {
	if t := p.peek(); t.kind != tokEOF {
		return p.errorf("unexpected %q", t.text)
	}
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Offset: p.peek().pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) expr() (Expr, error) {
	return p.logical(OpOr, p.and)
}

func (p *parser) and() (Expr, error) {
	return p.logical(OpAnd, p.comparison)
}

// logical parses a chain of op; two operands yield a BinaryExpr, more yield
// a NaryExpr.
func (p *parser) logical(op Op, operand func() (Expr, error)) (Expr, error) {
	x, err := operand()
	if err != nil {
		return nil, err
	}
	xs := []Expr{x}
	for p.accept(tokPunct, op.String()) {
		y, err := operand()
		if err != nil {
			return nil, err
		}
		xs = append(xs, y)
	}
	for _, x := range xs {
		if pred, ok := x.(P); len(xs) > 1 && (!ok || !boolean(pred)) {
			return nil, &SyntaxError{Msg: fmt.Sprintf("operand %s of %s is not a predicate", x, op)}
		}
	}
	switch len(xs) {
	case 1:
		return x, nil
	case 2:
		return &BinaryExpr{Op: op, X: xs[0], Y: xs[1]}, nil
	}
	return &NaryExpr{Op: op, Xs: xs}, nil
}

var comparisons = map[string]Op{"==": OpEQ, "!=": OpNEQ, ">": OpGT, ">=": OpGTE, "<": OpLT, "<=": OpLTE}

func (p *parser) comparison() (Expr, error) {
	x, err := p.additive()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	op, isCmp := comparisons[t.text]
	switch {
	case t.kind == tokPunct && isCmp:
		p.next()
		y, err := p.additive()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Op: op, X: x, Y: y}, nil
	case t.kind == tokIdent && t.text == "in":
		p.next()
		l, err := p.list()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Op: OpIn, X: x, Y: l}, nil
	case t.kind == tokIdent && t.text == "not":
		p.next()
		if !p.accept(tokIdent, "in") {
			return nil, p.errorf("expected \"in\" after \"not\"")
		}
		l, err := p.list()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Op: OpNotIn, X: x, Y: l}, nil
	}
	return x, nil
}

var additiveOps = map[string]Op{"+": OpAdd, "-": OpSub}

var multiplicativeOps = map[string]Op{"*": OpMul, "/": OpDiv, "%": OpMod}

func (p *parser) additive() (Expr, error) {
	return p.arith(additiveOps, p.multiplicative)
}

func (p *parser) multiplicative() (Expr, error) {
	return p.arith(multiplicativeOps, p.unary)
}

func (p *parser) arith(table map[string]Op, operand func() (Expr, error)) (Expr, error) {
	x, err := operand()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		op, ok := table[t.text]
		if t.kind != tokPunct || !ok {
			return x, nil
		}
		p.next()
		y, err := operand()
		if err != nil {
			return nil, err
		}
		x = &BinaryExpr{Op: op, X: x, Y: y}
	}
}

func (p *parser) unary() (Expr, error) {
	switch {
	case p.accept(tokPunct, "!"):
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		pred, ok := x.(P)
		if !ok || !boolean(pred) {
			return nil, &SyntaxError{Msg: fmt.Sprintf("operand %s of ! is not a predicate", x)}
		}
		return &UnaryExpr{Op: OpNot, X: pred}, nil
	case p.accept(tokPunct, "-"):
		if t := p.peek(); t.kind == tokNumber {
			p.next()
			return number("-"+t.text, t.pos)
		}
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: OpNeg, X: x}, nil
	}
	return p.primary()
}

func (p *parser) primary() (Expr, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.next()
		return number(t.text, t.pos)
	case tokString:
		p.next()
		var s string
		if err := json.Unmarshal([]byte(t.text), &s); err != nil {
			return nil, &SyntaxError{Offset: t.pos, Msg: "invalid string literal"}
		}
		return &Value{V: s}, nil
	case tokIdent:
		p.next()
		switch t.text {
		case "nil":
			return (*Value)(nil), nil
		case "true":
			return &Value{V: true}, nil
		case "false":
			return &Value{V: false}, nil
		}
		if p.is(tokPunct, "(") {
			return p.call(t)
		}
		return &Field{Name: t.text}, nil
	case tokPunct:
		switch t.text {
		case "(":
			p.next()
			x, err := p.expr()
			if err != nil {
				return nil, err
			}
			return x, p.expect(")")
		case "[":
			return p.list()
		case "{":
			return p.object()
		}
	case tokEOF:
		return nil, p.errorf("unexpected end of expression")
	}
	return nil, p.errorf("unexpected %q", t.text)
}

func (p *parser) list() (*ListExpr, error) {
	if err := p.expect("["); err != nil {
		return nil, err
	}
	l := &ListExpr{}
	if p.accept(tokPunct, "]") {
		return l, nil
	}
	for {
		x, err := p.additive()
		if err != nil {
			return nil, err
		}
		l.X = append(l.X, x)
		if p.accept(tokPunct, "]") {
			return l, nil
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
	}
}

func (p *parser) object() (*ObjectExpr, error) {
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	o := &ObjectExpr{}
	if p.accept(tokPunct, "}") {
		return o, nil
	}
	for {
		t := p.next()
		if t.kind != tokIdent {
			return nil, &SyntaxError{Offset: t.pos, Msg: "expected member name"}
		}
		if err := p.expect(":"); err != nil {
			return nil, err
		}
		x, err := p.expr()
		if err != nil {
			return nil, err
		}
		o.Bindings = append(o.Bindings, Binding{Name: t.text, X: x})
		if p.accept(tokPunct, "}") {
			return o, nil
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
	}
}

func (p *parser) call(name token) (Expr, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	var args []Expr
	if !p.accept(tokPunct, ")") {
		for {
			x, err := p.expr()
			if err != nil {
				return nil, err
			}
			args = append(args, x)
			if p.accept(tokPunct, ")") {
				break
			}
			if err := p.expect(","); err != nil {
				return nil, err
			}
		}
	}
	bad := func(msg string) error {
		return &SyntaxError{Offset: name.pos, Msg: fmt.Sprintf("%s: %s", name.text, msg)}
	}
	switch fn := Func(name.text); fn {
	case "shadow", "param":
		if len(args) != 1 {
			return nil, bad("expects one argument")
		}
		if name.text == "shadow" {
			f, ok := args[0].(*Field)
			if !ok {
				return nil, bad("expects a column name")
			}
			return &Shadow{Name: f.Name}, nil
		}
		if v, ok := args[0].(*Value); ok && !v.Nil() {
			if i, ok := v.V.(int); ok && i >= 0 {
				return &Param{Index: i}, nil
			}
		}
		return nil, bad("expects a non-negative index")
	case "cond":
		if len(args) != 3 {
			return nil, bad("expects three arguments")
		}
		c, ok := args[0].(P)
		if !ok || !boolean(c) {
			return nil, bad("first argument must be a predicate")
		}
		return &CondExpr{Cond: c, Then: args[1], Else: args[2]}, nil
	case FuncHasEdge:
		if len(args) == 0 {
			return nil, bad("expects an edge name")
		}
		f, ok := args[0].(*Field)
		if !ok {
			return nil, bad("expects an edge name")
		}
		args[0] = &Edge{Name: f.Name}
		return &CallExpr{Func: fn, Args: args}, nil
	case FuncEqualFold, FuncContains, FuncContainsFold, FuncHasPrefix, FuncHasSuffix, FuncMatches:
		if len(args) != 2 {
			return nil, bad("expects two arguments")
		}
		return &CallExpr{Func: fn, Args: args}, nil
	case FuncConcat, FuncCoalesce:
		if len(args) == 0 {
			return nil, bad("expects at least one argument")
		}
		return &CallExpr{Func: fn, Args: args}, nil
	}
	return nil, bad("unknown function")
}

func number(s string, pos int) (Expr, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &Value{V: int(i)}, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, &SyntaxError{Offset: pos, Msg: fmt.Sprintf("invalid number %q", s)}
	}
	return &Value{V: f}, nil
}
