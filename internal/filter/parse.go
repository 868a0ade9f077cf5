package filter

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/queryir"
)

// ParseClause reads the text form produced by queryir.Render:
//
//	email BEGINSWITH[c] "a"
//	age IN {1, 2, nil}
//	(active == true AND NOT (role == "guest"))
//
// AND binds tighter than OR. "!=" is accepted as NOT (a == b).
func ParseClause(s string) (queryir.Predicate, error) {
	toks, err := lex(s)
	if err != nil {
		return nil, err
	}
	p := &parser{src: s, toks: toks}
	pred, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.done() {
		return nil, p.errorf("unexpected %q", p.peek().text)
	}
	return pred, nil
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokInt
	tokPunct
)

type token struct {
	kind tokenKind
	text string // identifier, punctuation, or unquoted string
	tag  string // option tag directly after an identifier, e.g. "[cd]"
	pos  int
}

func lex(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '"':
			quoted, err := strconv.QuotedPrefix(s[i:])
			if err != nil {
				return nil, fmt.Errorf("parse clause: unterminated string at %d", i)
			}
			text, err := strconv.Unquote(quoted)
			if err != nil {
				return nil, fmt.Errorf("parse clause: bad string at %d: %w", i, err)
			}
			toks = append(toks, token{kind: tokString, text: text, pos: i})
			i += len(quoted)
		case c == '=' || c == '!':
			if i+1 >= len(s) || s[i+1] != '=' {
				return nil, fmt.Errorf("parse clause: unexpected %q at %d", c, i)
			}
			toks = append(toks, token{kind: tokPunct, text: s[i : i+2], pos: i})
			i += 2
		case strings.IndexByte("(){},", c) >= 0:
			toks = append(toks, token{kind: tokPunct, text: string(c), pos: i})
			i++
		case c == '-' || (c >= '0' && c <= '9'):
			j := i + 1
			for j < len(s) && s[j] >= '0' && s[j] <= '9' {
				j++
			}
			toks = append(toks, token{kind: tokInt, text: s[i:j], pos: i})
			i = j
		case c == '_' || c < 0x80 && unicode.IsLetter(rune(c)):
			j := i + 1
			for j < len(s) && (s[j] == '_' || s[j] < 0x80 && (unicode.IsLetter(rune(s[j])) || unicode.IsDigit(rune(s[j])))) {
				j++
			}
			tok := token{kind: tokIdent, text: s[i:j], pos: i}
			if j < len(s) && s[j] == '[' {
				end := strings.IndexByte(s[j:], ']')
				if end < 0 {
					return nil, fmt.Errorf("parse clause: unterminated option tag at %d", j)
				}
				tok.tag = s[j : j+end+1]
				j += end + 1
			}
			toks = append(toks, tok)
			i = j
		default:
			return nil, fmt.Errorf("parse clause: unexpected %q at %d", c, i)
		}
	}
	return toks, nil
}

type parser struct {
	src  string
	toks []token
	pos  int
}

func (p *parser) done() bool { return p.pos >= len(p.toks) }

func (p *parser) peek() token {
	if p.done() {
		return token{kind: tokPunct, text: "", pos: len(p.src)}
	}
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.peek()
	p.pos++
	return t
}

func (p *parser) keyword(word string) bool {
	t := p.peek()
	if t.kind == tokIdent && t.tag == "" && strings.EqualFold(t.text, word) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) punct(text string) bool {
	t := p.peek()
	if t.kind == tokPunct && t.text == text && !p.done() {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(text string) error {
	if !p.punct(text) {
		return p.errorf("expected %q", text)
	}
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("parse clause %q at %d: %s", p.src, p.peek().pos, fmt.Sprintf(format, args...))
}

func (p *parser) parseOr() (queryir.Predicate, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []queryir.Predicate{first}
	for p.keyword("OR") {
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return first, nil
	}
	return queryir.Or{Predicates: children}, nil
}

func (p *parser) parseAnd() (queryir.Predicate, error) {
	first, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	children := []queryir.Predicate{first}
	for p.keyword("AND") {
		next, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return first, nil
	}
	return queryir.And{Predicates: children}, nil
}

func (p *parser) parseFactor() (queryir.Predicate, error) {
	switch {
	case p.keyword("NOT"):
		inner, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return queryir.Not{Predicate: inner}, nil
	case p.punct("("):
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return inner, nil
	case p.keyword("TRUEPREDICATE"):
		return queryir.True{}, nil
	case p.keyword("FALSEPREDICATE"):
		return queryir.Or{}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (queryir.Predicate, error) {
	field := p.next()
	if field.kind != tokIdent || field.tag != "" || !queryir.ValidField(field.text) {
		return nil, p.errorf("expected attribute name")
	}

	switch {
	case p.punct("=="):
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return queryir.Equals{Field: field.text, Value: v}, nil
	case p.punct("!="):
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return queryir.Not{Predicate: queryir.Equals{Field: field.text, Value: v}}, nil
	case p.keyword("IN"):
		return p.parseMembership(field.text)
	}

	opTok := p.next()
	if opTok.kind != tokIdent {
		return nil, p.errorf("expected operator after %s", field.text)
	}
	op, err := queryir.ParseStringOp(opTok.text)
	if err != nil {
		return nil, err
	}
	opts, err := queryir.ParseStringOptions(opTok.tag)
	if err != nil {
		return nil, err
	}
	value := p.next()
	if value.kind != tokString {
		return nil, p.errorf("%s requires a quoted string", op)
	}
	return queryir.StringMatch{Field: field.text, Op: op, Value: value.text, Options: opts}, nil
}

func (p *parser) parseMembership(field string) (queryir.Predicate, error) {
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	values := []ir.IRValue{}
	if p.punct("}") {
		return queryir.In{Field: field, Values: values}, nil
	}
	for {
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		if p.punct("}") {
			return queryir.In{Field: field, Values: values}, nil
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
	}
}

func (p *parser) parseLiteral() (ir.IRValue, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return ir.IRString(t.text), nil
	case tokInt:
		n, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse clause: bad integer %q: %w", t.text, err)
		}
		return ir.IRInt(n), nil
	case tokIdent:
		switch strings.ToLower(t.text) {
		case "true":
			return ir.IRBool(true), nil
		case "false":
			return ir.IRBool(false), nil
		case "nil", "null":
			return ir.IRNull{}, nil
		}
	}
	p.pos--
	return nil, p.errorf("expected literal")
}
