// Package parser turns Python expression source into an ast.Expr.
//
// Only the numeric subset is modelled precisely. Calls, attribute access,
// subscripts, containers and string literals parse into ast.Opaque nodes
// whose value is never known.
package parser

import (
	"fmt"

	"github.com/rendis/pyconst/internal/ast"
	"github.com/rendis/pyconst/internal/value"
	"github.com/rendis/pyconst/pkg/schema"
)

// Binary operator levels from loosest to tightest.
var binaryLevels = []map[string]ast.BinaryOp{
	{"|": ast.BitOr},
	{"^": ast.BitXor},
	{"&": ast.BitAnd},
	{"<<": ast.Shl, ">>": ast.Shr},
	{"+": ast.Add, "-": ast.Sub},
	{"*": ast.Mul, "/": ast.Div, "//": ast.FloorDiv, "%": ast.Mod},
}

var compareOps = map[string]ast.CompareOp{
	"<": ast.Lt, "<=": ast.Le, ">": ast.Gt, ">=": ast.Ge,
	"==": ast.Eq, "!=": ast.Ne, "<>": ast.Ne,
}

var unaryOps = map[string]ast.UnaryOp{"+": ast.Plus, "-": ast.Minus, "~": ast.Invert}

var reserved = map[string]bool{
	"and": true, "or": true, "not": true, "in": true, "is": true,
	"if": true, "elif": true, "else": true, "lambda": true, "for": true,
	"while": true, "def": true, "class": true, "return": true, "yield": true,
	"await": true, "async": true, "import": true, "from": true, "as": true,
	"with": true, "try": true, "except": true, "finally": true, "raise": true,
	"pass": true, "break": true, "continue": true, "del": true, "global": true,
	"nonlocal": true, "assert": true,
}

type parser struct {
	src     string
	toks    []Token
	i       int
	prevEnd ast.Pos
}

// Parse parses src as a single Python expression. Errors are
// *schema.PyconstError values with code PARSE_ERROR whose details carry
// the line and column of the offending token.
func Parse(src string) (expr ast.Expr, err error) {
	toks, err := Lex(src)
	if err != nil {
		return nil, err
	}

	p := &parser{src: src, toks: toks}
	defer func() {
		if r := recover(); r != nil {
			pe, ok := r.(*schema.PyconstError)
			if !ok {
				panic(r)
			}
			expr, err = nil, pe
		}
	}()

	expr = p.expression()
	if t := p.cur(); t.Kind != TokEOF {
		p.fail(t, "unexpected %s", describe(t))
	}
	return expr, nil
}

func (p *parser) cur() Token { return p.toks[p.i] }

func (p *parser) peek(n int) Token {
	if p.i+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.i+n]
}

func (p *parser) advance() Token {
	t := p.toks[p.i]
	if t.Kind != TokEOF {
		p.i++
		p.prevEnd = t.End
	}
	return t
}

func (p *parser) fail(t Token, format string, args ...any) {
	panic(parseError(t.Pos, format, args...))
}

func (p *parser) expect(kind TokenKind, text string) Token {
	t := p.cur()
	if t.Kind != kind {
		p.fail(t, "expected %q, found %s", text, describe(t))
	}
	return p.advance()
}

func isKeyword(t Token, word string) bool {
	return t.Kind == TokName && t.Text == word
}

func describe(t Token) string {
	if t.Kind == TokEOF {
		return "end of input"
	}
	return fmt.Sprintf("%q", t.Text)
}

func span(start, stop ast.Pos) ast.Span {
	return ast.Span{Start: start, Stop: stop}
}

func (p *parser) opaque(start ast.Pos) ast.Expr {
	return &ast.Opaque{Span: span(start, p.prevEnd), Text: p.src[start.Offset:p.prevEnd.Offset]}
}

func (p *parser) expression() ast.Expr {
	if t := p.cur(); isKeyword(t, "lambda") {
		p.fail(t, "unsupported syntax: lambda")
	}
	x := p.disjunction()
	if t := p.cur(); isKeyword(t, "if") {
		p.fail(t, "unsupported syntax: conditional expression")
	}
	return x
}

func (p *parser) disjunction() ast.Expr {
	x := p.conjunction()
	for isKeyword(p.cur(), "or") {
		p.advance()
		y := p.conjunction()
		x = &ast.Logical{Span: span(x.Pos(), y.End()), Op: ast.Or, X: x, Y: y}
	}
	return x
}

func (p *parser) conjunction() ast.Expr {
	x := p.inversion()
	for isKeyword(p.cur(), "and") {
		p.advance()
		y := p.inversion()
		x = &ast.Logical{Span: span(x.Pos(), y.End()), Op: ast.And, X: x, Y: y}
	}
	return x
}

func (p *parser) inversion() ast.Expr {
	if t := p.cur(); isKeyword(t, "not") {
		p.advance()
		x := p.inversion()
		return &ast.Not{Span: span(t.Pos, x.End()), X: x}
	}
	return p.comparison()
}

// comparison parses a chain. Membership and identity tests make the whole
// chain opaque.
func (p *parser) comparison() ast.Expr {
	start := p.cur().Pos
	left := p.binary(0)

	var (
		ops    []ast.CompareOp
		rights []ast.Expr
		opaque bool
	)
	for {
		t := p.cur()
		switch {
		case t.Kind == TokOp && compareOps[t.Text] != 0:
			p.advance()
			ops = append(ops, compareOps[t.Text])
			rights = append(rights, p.binary(0))
			continue
		case isKeyword(t, "in"):
			p.advance()
		case isKeyword(t, "is"):
			p.advance()
			if isKeyword(p.cur(), "not") {
				p.advance()
			}
		case isKeyword(t, "not") && isKeyword(p.peek(1), "in"):
			p.advance()
			p.advance()
		default:
			if opaque {
				return p.opaque(start)
			}
			if len(ops) == 0 {
				return left
			}
			return &ast.Compare{Span: span(left.Pos(), rights[len(rights)-1].End()), Left: left, Ops: ops, Rights: rights}
		}
		opaque = true
		p.binary(0)
	}
}

func (p *parser) binary(level int) ast.Expr {
	if level == len(binaryLevels) {
		return p.factor()
	}
	x := p.binary(level + 1)
	for {
		t := p.cur()
		if t.Kind != TokOp {
			return x
		}
		op, ok := binaryLevels[level][t.Text]
		if !ok {
			if t.Text == "@" {
				p.fail(t, "unsupported operator %q", t.Text)
			}
			return x
		}
		p.advance()
		y := p.binary(level + 1)
		x = &ast.Binary{Span: span(x.Pos(), y.End()), Op: op, X: x, Y: y}
	}
}

func (p *parser) factor() ast.Expr {
	t := p.cur()
	if op, ok := unaryOps[t.Text]; ok && t.Kind == TokOp {
		p.advance()
		x := p.factor()
		return &ast.Unary{Span: span(t.Pos, x.End()), Op: op, X: x}
	}
	return p.power()
}

// power binds tighter than a unary operator on its left and looser than
// one on its right, so -2 ** -1 is -(2 ** (-1)).
func (p *parser) power() ast.Expr {
	x := p.primary()
	if t := p.cur(); t.Kind == TokOp && t.Text == "**" {
		p.advance()
		y := p.factor()
		return &ast.Binary{Span: span(x.Pos(), y.End()), Op: ast.Pow, X: x, Y: y}
	}
	return x
}

func (p *parser) primary() ast.Expr {
	start := p.cur().Pos
	x := p.atom()
	trailed := false
	for {
		switch p.cur().Kind {
		case TokLParen, TokLBracket:
			p.skipGroup()
		case TokDot:
			p.advance()
			p.expect(TokName, "attribute name")
		default:
			if trailed {
				return p.opaque(start)
			}
			return x
		}
		trailed = true
	}
}

func (p *parser) atom() ast.Expr {
	t := p.cur()
	switch t.Kind {
	case TokInt:
		p.advance()
		i, ok := value.ParseInt(t.Text)
		if !ok {
			p.fail(t, "invalid integer literal %q", t.Text)
		}
		return &ast.IntLit{Span: span(t.Pos, t.End), Value: i, Raw: t.Text}
	case TokFloat:
		p.advance()
		v, err := value.Parse(t.Text)
		if err != nil || !v.IsFloat() {
			p.fail(t, "invalid float literal %q", t.Text)
		}
		f, _ := v.Float64()
		return &ast.FloatLit{Span: span(t.Pos, t.End), Value: f, Raw: t.Text}
	case TokImag:
		p.advance()
		return p.opaque(t.Pos)
	case TokString:
		for p.cur().Kind == TokString {
			p.advance()
		}
		return p.opaque(t.Pos)
	case TokName:
		switch {
		case t.Text == "True" || t.Text == "False":
			p.advance()
			return &ast.BoolLit{Span: span(t.Pos, t.End), Value: t.Text == "True"}
		case t.Text == "None":
			p.advance()
			return p.opaque(t.Pos)
		case reserved[t.Text]:
			p.fail(t, "unexpected keyword %q", t.Text)
		}
		p.advance()
		return &ast.Name{Span: span(t.Pos, t.End), Name: t.Text}
	case TokLParen:
		return p.parenthesized()
	case TokLBracket, TokLBrace:
		p.skipGroup()
		return p.opaque(t.Pos)
	}
	p.fail(t, "unexpected %s", describe(t))
	return nil
}

// parenthesized parses (x). Tuples, generator expressions and assignment
// expressions inside the parentheses make the group opaque.
func (p *parser) parenthesized() ast.Expr {
	open := p.i
	t := p.advance()
	if p.cur().Kind == TokRParen {
		p.advance()
		return p.opaque(t.Pos)
	}

	x := p.expression()
	if p.cur().Kind == TokRParen {
		p.advance()
		return &ast.Paren{Span: span(t.Pos, p.prevEnd), X: x}
	}

	p.i = open
	p.skipGroup()
	return p.opaque(t.Pos)
}

// skipGroup consumes a bracketed group starting at the current opening
// token, including nested groups.
func (p *parser) skipGroup() {
	open := p.advance()
	depth := 1
	for depth > 0 {
		t := p.cur()
		switch t.Kind {
		case TokEOF:
			p.fail(open, "unclosed %q", open.Text)
		case TokLParen, TokLBracket, TokLBrace:
			depth++
		case TokRParen, TokRBracket, TokRBrace:
			depth--
		}
		p.advance()
	}
}
