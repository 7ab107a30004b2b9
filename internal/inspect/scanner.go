package inspect

import (
	"strings"
)

// Condition is the test expression of one if/elif header.
type Condition struct {
	Keyword string `json:"keyword"`
	// Text is the exact source between the keyword and the header colon,
	// trailing whitespace trimmed. It may span several physical lines.
	Text   string `json:"text"`
	Offset int    `json:"offset"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
	// Comments holds a trailing comment on the header line followed by the
	// comment lines directly below it, without the leading '#'.
	Comments []string `json:"comments,omitempty"`
}

type scanner struct {
	src  string
	off  int
	line int
	col  int
}

func (s *scanner) eof() bool { return s.off >= len(s.src) }

func (s *scanner) peek(n int) byte {
	if s.off+n >= len(s.src) {
		return 0
	}
	return s.src[s.off+n]
}

func (s *scanner) advance(n int) {
	for ; n > 0 && s.off < len(s.src); n-- {
		if s.src[s.off] == '\n' {
			s.line++
			s.col = 1
		} else {
			s.col++
		}
		s.off++
	}
}

// Scan finds every if/elif header in Python source. Headers inside string
// literals and comments are ignored; bracketed and backslash-continued
// headers are joined into one condition.
func Scan(src string) []Condition {
	s := &scanner{src: src, line: 1, col: 1}
	var conds []Condition

	for !s.eof() {
		for s.peek(0) == ' ' || s.peek(0) == '\t' || s.peek(0) == '\f' {
			s.advance(1)
		}
		if s.eof() {
			break
		}
		if c := s.peek(0); c == '\n' || c == '\r' || c == '#' {
			s.skipLine()
			continue
		}

		kw := s.keyword()
		if kw == "" {
			s.logicalLine(false)
			continue
		}

		s.advance(len(kw))
		for s.peek(0) == ' ' || s.peek(0) == '\t' {
			s.advance(1)
		}
		cond := Condition{Keyword: kw, Offset: s.off, Line: s.line, Column: s.col}
		colon, trailing := s.logicalLine(true)
		if colon < 0 {
			continue
		}
		cond.Text = strings.TrimRight(src[cond.Offset:colon], " \t\r\n\\")
		if trailing != "" {
			cond.Comments = append(cond.Comments, trailing)
		}
		cond.Comments = append(cond.Comments, s.followingComments()...)
		conds = append(conds, cond)
	}
	return conds
}

func (s *scanner) keyword() string {
	for _, kw := range []string{"elif", "if"} {
		if strings.HasPrefix(s.src[s.off:], kw) {
			next := s.peek(len(kw))
			if !isIdentByte(next) {
				return kw
			}
		}
	}
	return ""
}

// logicalLine consumes one logical line. With header set it returns the
// offset of the first top-level ':' and the comment that follows it on the
// same physical line.
func (s *scanner) logicalLine(header bool) (colon int, trailing string) {
	colon = -1
	depth := 0
	for !s.eof() {
		c := s.peek(0)
		switch {
		case c == '\\' && (s.peek(1) == '\n' || s.peek(1) == '\r'):
			s.advance(2)
			if s.peek(0) == '\n' {
				s.advance(1)
			}
			continue
		case c == '\'' || c == '"':
			s.skipString()
			continue
		case c == '#':
			start := s.off
			s.skipComment()
			if header && colon >= 0 && trailing == "" {
				trailing = commentText(s.src[start:s.off])
			}
			continue
		case c == '\n':
			if depth == 0 {
				s.advance(1)
				return colon, trailing
			}
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			if depth > 0 {
				depth--
			}
		case c == ':' && depth == 0 && colon < 0 && s.peek(1) != '=':
			colon = s.off
		}
		s.advance(1)
	}
	return colon, trailing
}

func (s *scanner) skipString() {
	quote := s.peek(0)
	triple := strings.Repeat(string(quote), 3)
	if strings.HasPrefix(s.src[s.off:], triple) {
		s.advance(3)
		for !s.eof() {
			if s.peek(0) == '\\' {
				s.advance(2)
				continue
			}
			if strings.HasPrefix(s.src[s.off:], triple) {
				s.advance(3)
				return
			}
			s.advance(1)
		}
		return
	}

	s.advance(1)
	for !s.eof() {
		switch s.peek(0) {
		case '\\':
			s.advance(2)
			continue
		case '\n':
			return
		case quote:
			s.advance(1)
			return
		}
		s.advance(1)
	}
}

func (s *scanner) skipComment() {
	for !s.eof() && s.peek(0) != '\n' {
		s.advance(1)
	}
}

func (s *scanner) skipLine() {
	s.skipComment()
	s.advance(1)
}

// followingComments collects the comment-only lines directly below the
// current position. It does not consume them, so nested headers still scan.
func (s *scanner) followingComments() []string {
	var out []string
	rest := s.src[s.off:]
	for rest != "" {
		line, tail, _ := strings.Cut(rest, "\n")
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			break
		}
		out = append(out, commentText(trimmed))
		rest = tail
	}
	return out
}

func commentText(c string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(c), "#"))
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c >= 0x80
}
