package queryir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ordokr/LMS/internal/ir"
)

// ParseError reports a syntax error in query text.
type ParseError struct {
	Offset  int    // byte offset into the query text
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse query at offset %d: %s", e.Offset, e.Message)
}

// Parse parses query text into a Query.
//
// Grammar:
//
//	query := "from" ident [ "join" ident "on" field [ "==" field ] ]
//	         [ "where" pred { "and" pred } ]
//	         [ "select" field [ "as" ident ] { "," field [ "as" ident ] } ]
//	pred  := field op literal | field "==" "bound." ident | field "prefix" string
//	op    := "==" | "<" | "<=" | ">" | ">="
//	field := ident | source "." ident
//
// Keywords are case insensitive. Strings use single or double quotes with
// backslash escapes. Parse checks syntax only; see Validate for source and
// field checks.
func Parse(text string) (Query, error) {
	toks, err := lex(text)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	return p.parseQuery()
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokInt
	tokOp
	tokComma
)

type token struct {
	kind tokenKind
	text string // ident/op text, or decoded string literal
	pos  int
}

func (t token) keyword(kw string) bool {
	return t.kind == tokIdent && strings.EqualFold(t.text, kw)
}

func (t token) describe() string {
	switch t.kind {
	case tokEOF:
		return "end of query"
	case tokString:
		return strconv.Quote(t.text)
	}
	return fmt.Sprintf("%q", t.text)
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || c == '.' || (c >= '0' && c <= '9')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func lex(s string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == ',':
			toks = append(toks, token{kind: tokComma, text: ",", pos: i})
			i++

		case c == '=' || c == '<' || c == '>':
			start := i
			i++
			if i < len(s) && s[i] == '=' {
				i++
			}
			op := s[start:i]
			if op == "=" {
				op = "==" // tolerate single '='
			}
			toks = append(toks, token{kind: tokOp, text: op, pos: start})

		case c == '\'' || c == '"':
			start := i
			quote := c
			i++
			var b strings.Builder
			closed := false
			for i < len(s) {
				ch := s[i]
				if ch == '\\' && i+1 < len(s) {
					b.WriteByte(s[i+1])
					i += 2
					continue
				}
				if ch == quote {
					closed = true
					i++
					break
				}
				b.WriteByte(ch)
				i++
			}
			if !closed {
				return nil, &ParseError{Offset: start, Message: "unterminated string"}
			}
			toks = append(toks, token{kind: tokString, text: b.String(), pos: start})

		case isDigit(c) || (c == '-' && i+1 < len(s) && isDigit(s[i+1])):
			start := i
			i++
			for i < len(s) && isDigit(s[i]) {
				i++
			}
			toks = append(toks, token{kind: tokInt, text: s[start:i], pos: start})

		case isIdentStart(c):
			start := i
			for i < len(s) && isIdentChar(s[i]) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: s[start:i], pos: start})

		default:
			return nil, &ParseError{Offset: i, Message: fmt.Sprintf("unexpected character %q", c)}
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(s)})
	return toks, nil
}

type parser struct {
	toks []token
	pos  int

	left, right string // source names; right is "" outside joins
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &ParseError{Offset: t.pos, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) expectKeyword(kw string) error {
	t := p.next()
	if !t.keyword(kw) {
		return p.errorf(t, "expected %q, got %s", kw, t.describe())
	}
	return nil
}

func (p *parser) expectName(what string) (token, error) {
	t := p.next()
	if t.kind != tokIdent || strings.Contains(t.text, ".") || isKeyword(t.text) {
		return t, p.errorf(t, "expected %s, got %s", what, t.describe())
	}
	return t, nil
}

var keywords = map[string]bool{
	"from": true, "join": true, "on": true, "where": true, "and": true,
	"select": true, "as": true, "prefix": true, "true": true, "false": true,
}

func isKeyword(s string) bool {
	return keywords[strings.ToLower(s)]
}

func (p *parser) parseQuery() (Query, error) {
	if err := p.expectKeyword("from"); err != nil {
		return nil, err
	}
	src, err := p.expectName("source name")
	if err != nil {
		return nil, err
	}
	p.left = src.text

	var on Predicate
	if p.peek().keyword("join") {
		p.next()
		right, err := p.expectName("source name")
		if err != nil {
			return nil, err
		}
		if right.text == p.left {
			return nil, p.errorf(right, "cannot join %q with itself", right.text)
		}
		p.right = right.text
		if on, err = p.parseOn(); err != nil {
			return nil, err
		}
	}

	leftFilter, rightFilter := []Predicate{}, []Predicate{}
	if p.peek().keyword("where") {
		p.next()
		for {
			side, pred, err := p.parsePredicate()
			if err != nil {
				return nil, err
			}
			if side == sideRight {
				rightFilter = append(rightFilter, pred)
			} else {
				leftFilter = append(leftFilter, pred)
			}
			if !p.peek().keyword("and") {
				break
			}
			p.next()
		}
	}

	leftBind, rightBind := map[string]string{}, map[string]string{}
	if p.peek().keyword("select") {
		p.next()
		seen := map[string]bool{}
		for {
			ft := p.peek()
			side, field, err := p.parseField()
			if err != nil {
				return nil, err
			}
			alias := field
			if p.peek().keyword("as") {
				p.next()
				at, err := p.expectName("output name")
				if err != nil {
					return nil, err
				}
				alias = at.text
			}
			if seen[alias] {
				return nil, p.errorf(ft, "duplicate output name %q", alias)
			}
			seen[alias] = true
			if side == sideRight {
				rightBind[field] = alias
			} else {
				leftBind[field] = alias
			}
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}

	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected %s", t.describe())
	}

	left := Select{From: p.left, Filter: conjunction(leftFilter), Bindings: leftBind}
	if p.right == "" {
		return left, nil
	}
	right := Select{From: p.right, Filter: conjunction(rightFilter), Bindings: rightBind}
	return Join{Left: left, Right: right, On: on}, nil
}

func conjunction(preds []Predicate) Predicate {
	switch len(preds) {
	case 0:
		return nil
	case 1:
		return preds[0]
	}
	return And{Predicates: preds}
}

type side int

const (
	sideLeft side = iota
	sideRight
)

// parseField reads field or source.field and resolves the join side.
func (p *parser) parseField() (side, string, error) {
	t := p.next()
	if t.kind != tokIdent || isKeyword(t.text) {
		return sideLeft, "", p.errorf(t, "expected field, got %s", t.describe())
	}
	qual, field, qualified := strings.Cut(t.text, ".")
	if !qualified {
		return sideLeft, t.text, nil
	}
	if field == "" || strings.Contains(field, ".") {
		return sideLeft, "", p.errorf(t, "malformed field %q", t.text)
	}
	switch qual {
	case p.left:
		return sideLeft, field, nil
	case p.right:
		if p.right != "" {
			return sideRight, field, nil
		}
	}
	return sideLeft, "", p.errorf(t, "unknown source %q in field %q", qual, t.text)
}

func (p *parser) parseOn() (Predicate, error) {
	if err := p.expectKeyword("on"); err != nil {
		return nil, err
	}
	ls, lf, err := p.parseField()
	if err != nil {
		return nil, err
	}
	if ls != sideLeft {
		return ColumnEquals{Left: lf, Right: lf}, nil
	}
	rf := lf
	if t := p.peek(); t.kind == tokOp && t.text == "==" {
		p.next()
		ft := p.peek()
		rs, f, err := p.parseField()
		if err != nil {
			return nil, err
		}
		if rs != sideRight && strings.Contains(ft.text, ".") {
			return nil, p.errorf(ft, "join condition must reference %q on the right", p.right)
		}
		rf = f
	}
	return ColumnEquals{Left: lf, Right: rf}, nil
}

func (p *parser) parsePredicate() (side, Predicate, error) {
	s, field, err := p.parseField()
	if err != nil {
		return s, nil, err
	}

	t := p.next()
	if t.keyword("prefix") {
		lit := p.next()
		if lit.kind != tokString {
			return s, nil, p.errorf(lit, "prefix needs a string, got %s", lit.describe())
		}
		return s, Prefix{Field: field, Prefix: lit.text}, nil
	}
	if t.kind != tokOp {
		return s, nil, p.errorf(t, "expected operator after %q, got %s", field, t.describe())
	}

	lit := p.next()
	if t.text == "==" && lit.kind == tokIdent && strings.HasPrefix(lit.text, "bound.") {
		if len(lit.text) == len("bound.") || strings.Contains(lit.text[len("bound."):], ".") {
			return s, nil, p.errorf(lit, "malformed bound variable %q", lit.text)
		}
		return s, BoundEquals{Field: field, BoundVar: lit.text}, nil
	}

	value, err := p.literal(lit)
	if err != nil {
		return s, nil, err
	}
	if t.text == "==" {
		return s, Equals{Field: field, Value: value}, nil
	}
	return s, Compare{Field: field, Op: CompareOp(t.text), Value: value}, nil
}

func (p *parser) literal(t token) (ir.Value, error) {
	switch {
	case t.kind == tokString:
		return ir.String(t.text), nil
	case t.kind == tokInt:
		n, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, p.errorf(t, "integer out of range: %s", t.text)
		}
		return ir.Int(n), nil
	case t.keyword("true"):
		return ir.Bool(true), nil
	case t.keyword("false"):
		return ir.Bool(false), nil
	}
	return nil, p.errorf(t, "expected literal, got %s", t.describe())
}
