package allocation

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Program is a parsed allocation expression. Expressions combine category
// totals with decimal constants using +, -, *, / and parentheses, e.g.
// "hours * 1.5 + purchases". A category absent from a member's totals
// evaluates to zero, mirroring how the weighted formula treats it.
type Program struct {
	root node
	src  string
}

// Parse compiles an expression. The same program is evaluated once per
// member against that member's category totals.
func Parse(src string) (*Program, error) {
	p := &parser{input: src}
	p.next()
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokenEOF {
		return nil, fmt.Errorf("unexpected %q at position %d", p.tok.text, p.tok.pos)
	}
	return &Program{root: root, src: src}, nil
}

// String returns the source the program was parsed from.
func (p *Program) String() string { return p.src }

// Eval computes the expression against one member's category totals.
func (p *Program) Eval(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	return p.root.eval(vars)
}

type node interface {
	eval(vars map[string]decimal.Decimal) (decimal.Decimal, error)
}

type literal struct{ v decimal.Decimal }

func (l literal) eval(map[string]decimal.Decimal) (decimal.Decimal, error) { return l.v, nil }

type variable struct{ name string }

func (v variable) eval(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	return vars[v.name], nil
}

type negate struct{ operand node }

func (n negate) eval(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	v, err := n.operand.eval(vars)
	if err != nil {
		return decimal.Zero, err
	}
	return v.Neg(), nil
}

type binary struct {
	op          byte
	left, right node
}

func (b binary) eval(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	l, err := b.left.eval(vars)
	if err != nil {
		return decimal.Zero, err
	}
	r, err := b.right.eval(vars)
	if err != nil {
		return decimal.Zero, err
	}
	switch b.op {
	case '+':
		return l.Add(r), nil
	case '-':
		return l.Sub(r), nil
	case '*':
		return l.Mul(r), nil
	case '/':
		if r.IsZero() {
			return decimal.Zero, errors.New("division by zero")
		}
		return l.Div(r), nil
	}
	return decimal.Zero, fmt.Errorf("unknown operator %q", b.op)
}

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenNumber
	tokenIdent
	tokenOp
	tokenLParen
	tokenRParen
	tokenIllegal
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type parser struct {
	input string
	pos   int
	tok   token
}

func (p *parser) next() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
	start := p.pos
	if p.pos >= len(p.input) {
		p.tok = token{kind: tokenEOF, pos: start}
		return
	}
	c := p.input[p.pos]
	switch {
	case c == '(':
		p.pos++
		p.tok = token{kind: tokenLParen, text: "(", pos: start}
	case c == ')':
		p.pos++
		p.tok = token{kind: tokenRParen, text: ")", pos: start}
	case c == '+' || c == '-' || c == '*' || c == '/':
		p.pos++
		p.tok = token{kind: tokenOp, text: string(c), pos: start}
	case c >= '0' && c <= '9':
		for p.pos < len(p.input) && (isDigit(p.input[p.pos]) || p.input[p.pos] == '.') {
			p.pos++
		}
		p.tok = token{kind: tokenNumber, text: p.input[start:p.pos], pos: start}
	case isIdentStart(c):
		for p.pos < len(p.input) && isIdentPart(p.input[p.pos]) {
			p.pos++
		}
		p.tok = token{kind: tokenIdent, text: p.input[start:p.pos], pos: start}
	default:
		p.tok = token{kind: tokenIllegal, text: string(c), pos: start}
		p.pos = len(p.input)
	}
}

func (p *parser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokenOp && (p.tok.text == "+" || p.tok.text == "-") {
		op := p.tok.text[0]
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = binary{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseTerm() (node, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokenOp && (p.tok.text == "*" || p.tok.text == "/") {
		op := p.tok.text[0]
		p.next()
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = binary{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseFactor() (node, error) {
	switch {
	case p.tok.kind == tokenOp && p.tok.text == "-":
		p.next()
		operand, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return negate{operand: operand}, nil
	case p.tok.kind == tokenNumber:
		v, err := decimal.NewFromString(p.tok.text)
		if err != nil {
			return nil, fmt.Errorf("bad number %q at position %d", p.tok.text, p.tok.pos)
		}
		p.next()
		return literal{v: v}, nil
	case p.tok.kind == tokenIdent:
		name := p.tok.text
		p.next()
		return variable{name: name}, nil
	case p.tok.kind == tokenLParen:
		p.next()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokenRParen {
			return nil, fmt.Errorf("missing closing parenthesis at position %d", p.tok.pos)
		}
		p.next()
		return inner, nil
	case p.tok.kind == tokenIllegal:
		return nil, fmt.Errorf("unexpected character %q at position %d", p.tok.text, p.tok.pos)
	}
	return nil, fmt.Errorf("unexpected end of expression at position %d", p.tok.pos)
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool { return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') }
func isIdentPart(c byte) bool  { return isIdentStart(c) || isDigit(c) }

// Categories returns the distinct category names the expression references,
// in source order. Useful for validating an expression against configured
// patronage categories.
func (p *Program) Categories() []string {
	var names []string
	seen := make(map[string]bool)
	var walk func(n node)
	walk = func(n node) {
		switch t := n.(type) {
		case variable:
			if !seen[t.name] {
				seen[t.name] = true
				names = append(names, t.name)
			}
		case negate:
			walk(t.operand)
		case binary:
			walk(t.left)
			walk(t.right)
		}
	}
	walk(p.root)
	if len(names) == 0 {
		return nil
	}
	return names
}
