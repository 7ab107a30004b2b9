package parser

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rendis/pyconst/internal/ast"
	"github.com/rendis/pyconst/pkg/schema"
)

// TokenKind classifies a lexical token.
type TokenKind uint8

const (
	TokEOF TokenKind = iota
	TokInt
	TokFloat
	TokImag
	TokName
	TokString
	TokOp
	TokLParen
	TokRParen
	TokLBracket
	TokRBracket
	TokLBrace
	TokRBrace
	TokComma
	TokDot
	TokColon
)

// Token is one lexeme with its source extent.
type Token struct {
	Kind TokenKind
	Text string
	Pos  ast.Pos
	End  ast.Pos
}

// Two-character operators come first so the longest match wins.
var operators = []string{
	"**", "//", "<<", ">>", "<=", ">=", "==", "!=", "<>", ":=", "->",
	"+", "-", "*", "/", "%", "&", "|", "^", "~", "<", ">", "@", "=",
}

var stringPrefixes = map[string]bool{
	"r": true, "u": true, "b": true, "f": true,
	"rb": true, "br": true, "fr": true, "rf": true,
}

type lexer struct {
	src  string
	off  int
	line int
	col  int
	toks []Token
}

// Lex splits a Python expression into tokens. Newlines, line
// continuations and comments are treated as whitespace since the input is
// always a single logical expression.
func Lex(src string) ([]Token, error) {
	lx := &lexer{src: src, line: 1, col: 1}
	for {
		lx.skipSpace()
		if lx.off >= len(lx.src) {
			lx.toks = append(lx.toks, Token{Kind: TokEOF, Pos: lx.pos(), End: lx.pos()})
			return lx.toks, nil
		}
		if err := lx.next(); err != nil {
			return nil, err
		}
	}
}

func (lx *lexer) pos() ast.Pos {
	return ast.Pos{Offset: lx.off, Line: lx.line, Column: lx.col}
}

func (lx *lexer) peek(n int) byte {
	if lx.off+n >= len(lx.src) {
		return 0
	}
	return lx.src[lx.off+n]
}

func (lx *lexer) advance(n int) {
	for ; n > 0 && lx.off < len(lx.src); n-- {
		if lx.src[lx.off] == '\n' {
			lx.line++
			lx.col = 1
		} else {
			lx.col++
		}
		lx.off++
	}
}

func (lx *lexer) skipSpace() {
	for lx.off < len(lx.src) {
		switch c := lx.src[lx.off]; {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f':
			lx.advance(1)
		case c == '\\' && (lx.peek(1) == '\n' || lx.peek(1) == '\r'):
			lx.advance(2)
		case c == '#':
			for lx.off < len(lx.src) && lx.src[lx.off] != '\n' {
				lx.advance(1)
			}
		default:
			return
		}
	}
}

func (lx *lexer) emit(kind TokenKind, start ast.Pos) {
	lx.toks = append(lx.toks, Token{Kind: kind, Text: lx.src[start.Offset:lx.off], Pos: start, End: lx.pos()})
}

func (lx *lexer) errorf(at ast.Pos, format string, args ...any) error {
	return parseError(at, format, args...)
}

func (lx *lexer) next() error {
	start := lx.pos()
	c := lx.src[lx.off]

	switch {
	case isDigit(c) || (c == '.' && isDigit(lx.peek(1))):
		return lx.number(start)
	case lx.identLen(true) > 0:
		for n := lx.identLen(true); n > 0; n = lx.identLen(false) {
			lx.advance(n)
		}
		word := lx.src[start.Offset:lx.off]
		if q := lx.peek(0); (q == '\'' || q == '"') && stringPrefixes[strings.ToLower(word)] {
			return lx.str(start)
		}
		lx.emit(TokName, start)
		return nil
	case c == '\'' || c == '"':
		return lx.str(start)
	}

	single := map[byte]TokenKind{
		'(': TokLParen, ')': TokRParen, '[': TokLBracket, ']': TokRBracket,
		'{': TokLBrace, '}': TokRBrace, ',': TokComma, '.': TokDot,
	}
	if k, ok := single[c]; ok {
		lx.advance(1)
		lx.emit(k, start)
		return nil
	}

	for _, op := range operators {
		if strings.HasPrefix(lx.src[lx.off:], op) {
			lx.advance(len(op))
			lx.emit(TokOp, start)
			return nil
		}
	}
	if c == ':' {
		lx.advance(1)
		lx.emit(TokColon, start)
		return nil
	}
	r, _ := utf8.DecodeRuneInString(lx.src[lx.off:])
	return lx.errorf(start, "unexpected character %q", r)
}

// identLen returns the byte length of the identifier character at the
// current offset, or 0 when there is none. Non-ASCII letters and digits
// count; other symbols do not.
func (lx *lexer) identLen(first bool) int {
	if lx.off >= len(lx.src) {
		return 0
	}
	c := lx.src[lx.off]
	if c < utf8.RuneSelf {
		if isIdentStart(c) || (!first && isDigit(c)) {
			return 1
		}
		return 0
	}
	r, size := utf8.DecodeRuneInString(lx.src[lx.off:])
	switch {
	case r == utf8.RuneError:
		return 0
	case unicode.IsLetter(r):
		return size
	case !first && (unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r)):
		return size
	}
	return 0
}

func (lx *lexer) number(start ast.Pos) error {
	if lx.peek(0) == '0' && strings.ContainsRune("xXoObB", rune(lx.peek(1))) {
		lx.advance(2)
		for lx.off < len(lx.src) && (isHexDigit(lx.src[lx.off]) || lx.src[lx.off] == '_') {
			lx.advance(1)
		}
		return lx.finishNumber(start, TokInt)
	}

	kind := TokInt
	lx.digits()
	if lx.peek(0) == '.' {
		kind = TokFloat
		lx.advance(1)
		lx.digits()
	}
	if e := lx.peek(0); e == 'e' || e == 'E' {
		sign := lx.peek(1) == '+' || lx.peek(1) == '-'
		next := lx.peek(1)
		if sign {
			next = lx.peek(2)
		}
		if isDigit(next) {
			kind = TokFloat
			lx.advance(1)
			if sign {
				lx.advance(1)
			}
			lx.digits()
		}
	}
	if j := lx.peek(0); j == 'j' || j == 'J' {
		lx.advance(1)
		kind = TokImag
	}
	return lx.finishNumber(start, kind)
}

func (lx *lexer) digits() {
	for lx.off < len(lx.src) && (isDigit(lx.src[lx.off]) || lx.src[lx.off] == '_') {
		lx.advance(1)
	}
}

func (lx *lexer) finishNumber(start ast.Pos, kind TokenKind) error {
	if lx.off < len(lx.src) && isIdentPart(lx.src[lx.off]) {
		lx.advance(1)
		return lx.errorf(start, "invalid numeric literal %q", lx.src[start.Offset:lx.off])
	}
	text := lx.src[start.Offset:lx.off]
	if !underscoresOK(text) {
		return lx.errorf(start, "invalid numeric literal %q", text)
	}
	lx.emit(kind, start)
	return nil
}

// underscoresOK requires every underscore to sit between two digits, or
// directly after a base prefix.
func underscoresOK(text string) bool {
	digit := isDigit
	if len(text) > 1 && text[0] == '0' && (text[1] == 'x' || text[1] == 'X') {
		digit = isHexDigit
	}
	for i := 0; i < len(text); i++ {
		if text[i] != '_' {
			continue
		}
		if i == 0 || i == len(text)-1 || !digit(text[i+1]) {
			return false
		}
		prev := text[i-1]
		prefix := i == 2 && text[0] == '0' && strings.ContainsRune("xXoObB", rune(prev))
		if !digit(prev) && !prefix {
			return false
		}
	}
	return true
}

func (lx *lexer) str(start ast.Pos) error {
	quote := lx.src[lx.off]
	triple := strings.Repeat(string(quote), 3)

	if strings.HasPrefix(lx.src[lx.off:], triple) {
		lx.advance(3)
		for lx.off < len(lx.src) {
			if lx.src[lx.off] == '\\' {
				lx.advance(2)
				continue
			}
			if strings.HasPrefix(lx.src[lx.off:], triple) {
				lx.advance(3)
				lx.emit(TokString, start)
				return nil
			}
			lx.advance(1)
		}
		return lx.errorf(start, "unterminated triple-quoted string")
	}

	lx.advance(1)
	for lx.off < len(lx.src) {
		switch lx.src[lx.off] {
		case '\\':
			lx.advance(2)
			continue
		case '\n':
			return lx.errorf(start, "unterminated string literal")
		case quote:
			lx.advance(1)
			lx.emit(TokString, start)
			return nil
		}
		lx.advance(1)
	}
	return lx.errorf(start, "unterminated string literal")
}

func parseError(at ast.Pos, format string, args ...any) *schema.PyconstError {
	return schema.NewErrorf(schema.ErrCodeParse, format, args...).WithDetails(map[string]any{
		"line":   at.Line,
		"column": at.Column,
		"offset": at.Offset,
	})
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }
