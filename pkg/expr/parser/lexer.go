package parser

import (
	"strconv"
	"unicode/utf8"

	"mercator-hq/ascent/pkg/expr/ast"
	exprerrors "mercator-hq/ascent/pkg/expr/errors"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind  tokenKind
	text  string
	value float64
	pos   ast.Position
}

func (t token) describe() string {
	if t.kind == tokEOF {
		return "end of expression"
	}
	return strconv.Quote(t.text)
}

// keyword spellings fold onto their canonical operator.
var keywords = map[string]ast.Op{
	"and": ast.OpAnd,
	"or":  ast.OpOr,
	"not": ast.OpNot,
}

type lexer struct {
	src string
	off int
}

func (l *lexer) pos(off int) ast.Position {
	return ast.Position{Offset: off, Column: off + 1}
}

// tokens scans the whole input up front; expressions are short.
func (l *lexer) tokens() ([]token, error) {
	var out []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.kind == tokEOF {
			return out, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	for l.off < len(l.src) && isSpace(l.src[l.off]) {
		l.off++
	}
	start := l.off
	if start >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos(start)}, nil
	}

	c := l.src[start]
	switch {
	case isDigit(c):
		return l.number()
	case c == '.' && start+1 < len(l.src) && isDigit(l.src[start+1]):
		return l.number()
	case isIdentStart(c):
		for l.off < len(l.src) && isIdentPart(l.src[l.off]) {
			l.off++
		}
		text := l.src[start:l.off]
		if op, ok := keywords[text]; ok {
			return token{kind: tokOp, text: string(op), pos: l.pos(start)}, nil
		}
		return token{kind: tokIdent, text: text, pos: l.pos(start)}, nil
	case c == '(':
		l.off++
		return token{kind: tokLParen, text: "(", pos: l.pos(start)}, nil
	case c == ')':
		l.off++
		return token{kind: tokRParen, text: ")", pos: l.pos(start)}, nil
	}

	if l.off+1 < len(l.src) {
		two := l.src[l.off : l.off+2]
		switch two {
		case ">=", "<=", "==", "!=":
			l.off += 2
			return token{kind: tokOp, text: two, pos: l.pos(start)}, nil
		case "&&":
			l.off += 2
			return token{kind: tokOp, text: string(ast.OpAnd), pos: l.pos(start)}, nil
		case "||":
			l.off += 2
			return token{kind: tokOp, text: string(ast.OpOr), pos: l.pos(start)}, nil
		}
	}

	switch c {
	case '>', '<', '+', '-', '*', '/':
		l.off++
		return token{kind: tokOp, text: string(c), pos: l.pos(start)}, nil
	case '!':
		l.off++
		return token{kind: tokOp, text: string(ast.OpNot), pos: l.pos(start)}, nil
	case '=':
		return token{}, exprerrors.NewSyntaxError(l.pos(start), "unexpected '=', use '==' for equality")
	case '.':
		return token{}, exprerrors.NewSyntaxError(l.pos(start), "member access is not supported")
	case '"', '\'':
		return token{}, exprerrors.NewSyntaxError(l.pos(start), "string literals are not supported")
	}
	r, _ := utf8.DecodeRuneInString(l.src[start:])
	return token{}, exprerrors.NewSyntaxError(l.pos(start), "unexpected character %q", r)
}

func (l *lexer) number() (token, error) {
	start := l.off
	seenDot := false
	for l.off < len(l.src) {
		c := l.src[l.off]
		if c == '.' {
			if seenDot {
				break
			}
			seenDot = true
		} else if !isDigit(c) {
			break
		}
		l.off++
	}
	text := l.src[start:l.off]
	if l.off < len(l.src) && isIdentStart(l.src[l.off]) {
		return token{}, exprerrors.NewSyntaxError(l.pos(start), "malformed number %q", text+string(l.src[l.off]))
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, exprerrors.NewSyntaxError(l.pos(start), "malformed number %q", text)
	}
	return token{kind: tokNumber, text: text, value: v, pos: l.pos(start)}, nil
}

func isSpace(c byte) bool      { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }
func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isIdentPart(c byte) bool  { return isIdentStart(c) || isDigit(c) }
