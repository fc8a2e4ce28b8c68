package parser

import (
	"strings"

	"mercator-hq/ascent/pkg/expr/ast"
	exprerrors "mercator-hq/ascent/pkg/expr/errors"
)

// maxDepth bounds nesting so hostile input cannot exhaust the stack.
const maxDepth = 64

// Parse parses src into a syntax tree.
// Errors are *exprerrors.Error of kind KindEmpty or KindSyntax.
func Parse(src string) (ast.Node, error) {
	if strings.TrimSpace(src) == "" {
		return nil, exprerrors.NewEmptyError()
	}

	lx := &lexer{src: src}
	toks, err := lx.tokens()
	if err != nil {
		return nil, err
	}

	p := &parser{toks: toks}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, exprerrors.NewSyntaxError(tok.pos, "unexpected %s after complete expression", tok.describe())
	}
	return node, nil
}

type parser struct {
	toks  []token
	pos   int
	depth int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) advance() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) isOp(op ast.Op) bool {
	tok := p.peek()
	return tok.kind == tokOp && tok.text == string(op)
}

func (p *parser) enter(pos ast.Position) error {
	p.depth++
	if p.depth > maxDepth {
		return exprerrors.NewSyntaxError(pos, "expression nested deeper than %d levels", maxDepth)
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) parseOr() (ast.Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isOp(ast.OpOr) {
		tok := p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Op: ast.OpOr, Left: left, Right: right, Position: tok.pos}
	}
	return left, nil
}

func (p *parser) parseAnd() (ast.Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isOp(ast.OpAnd) {
		tok := p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Op: ast.OpAnd, Left: left, Right: right, Position: tok.pos}
	}
	return left, nil
}

func (p *parser) parseNot() (ast.Node, error) {
	if !p.isOp(ast.OpNot) {
		return p.parseComparison()
	}
	tok := p.advance()
	if err := p.enter(tok.pos); err != nil {
		return nil, err
	}
	defer p.leave()

	operand, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	return &ast.Unary{Op: ast.OpNot, Operand: operand, Position: tok.pos}, nil
}

func (p *parser) parseComparison() (ast.Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	op, ok := p.comparisonOp()
	if !ok {
		return left, nil
	}
	tok := p.advance()
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if _, chained := p.comparisonOp(); chained {
		return nil, exprerrors.NewSyntaxError(p.peek().pos, "comparison operators cannot be chained")
	}
	return &ast.Binary{Op: op, Left: left, Right: right, Position: tok.pos}, nil
}

func (p *parser) comparisonOp() (ast.Op, bool) {
	tok := p.peek()
	if tok.kind != tokOp {
		return "", false
	}
	op := ast.Op(tok.text)
	return op, op.IsComparison()
}

func (p *parser) parseAdditive() (ast.Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.isOp(ast.OpAdd) || p.isOp(ast.OpSub) {
		tok := p.advance()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Op: ast.Op(tok.text), Left: left, Right: right, Position: tok.pos}
	}
	return left, nil
}

func (p *parser) parseTerm() (ast.Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp(ast.OpMul) || p.isOp(ast.OpDiv) {
		tok := p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Op: ast.Op(tok.text), Left: left, Right: right, Position: tok.pos}
	}
	return left, nil
}

func (p *parser) parseUnary() (ast.Node, error) {
	if !p.isOp(ast.OpSub) {
		return p.parsePrimary()
	}
	tok := p.advance()
	if err := p.enter(tok.pos); err != nil {
		return nil, err
	}
	defer p.leave()

	operand, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &ast.Unary{Op: ast.OpNeg, Operand: operand, Position: tok.pos}, nil
}

func (p *parser) parsePrimary() (ast.Node, error) {
	tok := p.advance()
	switch tok.kind {
	case tokNumber:
		return &ast.NumberLit{Value: tok.value, Raw: tok.text, Position: tok.pos}, nil

	case tokIdent:
		if p.peek().kind == tokLParen {
			return nil, exprerrors.NewSyntaxError(tok.pos, "function calls are not supported: %s(...)", tok.text)
		}
		return &ast.Ident{Name: tok.text, Position: tok.pos}, nil

	case tokLParen:
		if err := p.enter(tok.pos); err != nil {
			return nil, err
		}
		defer p.leave()

		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.advance(); closing.kind != tokRParen {
			return nil, exprerrors.NewSyntaxError(closing.pos, "expected ')' to close '(' at %s, found %s", tok.pos, closing.describe())
		}
		return inner, nil
	}
	return nil, exprerrors.NewSyntaxError(tok.pos, "expected a number, variable or '(', found %s", tok.describe())
}
