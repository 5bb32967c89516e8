// Package scanner tokenizes source text for the compiler's single-pass
// Pratt parser. It advances/peeks over a byte slice, tracking the rune
// currently under the cursor, over a small token set (no long strings, no
// hashbang, no byte-order mark).
package scanner

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/loxlang/loxvm/lang/token"
)

// Tok is a single scanned token: its kind, source text, and 1-based source
// line. Err is set only when Kind is ILLEGAL, to a message more specific
// than the compiler's default "Unexpected character."
type Tok struct {
	Kind   token.Token
	Lexeme string
	Line   int
	Err    string
}

// Scanner tokenizes a single source buffer.
type Scanner struct {
	src  []byte
	cur  rune
	off  int // byte offset of cur
	roff int // byte offset just after cur
	line int
}

// New returns a Scanner ready to tokenize src.
func New(src []byte) *Scanner {
	s := &Scanner{src: src, line: 1}
	s.advance()
	return s
}

func (s *Scanner) advance() {
	if s.roff >= len(s.src) {
		s.off = len(s.src)
		s.cur = -1
		return
	}
	if s.cur == '\n' {
		s.line++
	}
	s.off = s.roff
	r, w := rune(s.src[s.roff]), 1
	if r >= utf8.RuneSelf {
		r, w = utf8.DecodeRune(s.src[s.roff:])
	}
	s.roff += w
	s.cur = r
}

func (s *Scanner) peek() byte {
	if s.roff < len(s.src) {
		return s.src[s.roff]
	}
	return 0
}

func (s *Scanner) advanceIf(b byte) bool {
	if s.cur == rune(b) {
		s.advance()
		return true
	}
	return false
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isAlpha(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isAlphaNumeric(r rune) bool { return isAlpha(r) || isDigit(r) }

func (s *Scanner) skipWhitespaceAndComments() {
	for {
		switch s.cur {
		case ' ', '\t', '\r', '\n':
			s.advance()
		case '?':
			for s.cur != '\n' && s.cur != -1 {
				s.advance()
			}
		default:
			return
		}
	}
}

// Scan returns the next token in the source. Once EOF has been returned,
// every subsequent call returns EOF again.
func (s *Scanner) Scan() Tok {
	s.skipWhitespaceAndComments()

	line := s.line
	start := s.off

	if s.cur == -1 {
		return Tok{Kind: token.EOF, Line: line}
	}

	switch {
	case isAlpha(s.cur):
		for isAlphaNumeric(s.cur) {
			s.advance()
		}
		lexeme := string(s.src[start:s.off])
		return Tok{Kind: token.Lookup(lexeme), Lexeme: lexeme, Line: line}

	case isDigit(s.cur):
		for isDigit(s.cur) {
			s.advance()
		}
		if s.cur == '.' && isDigit(rune(s.peek())) {
			s.advance()
			for isDigit(s.cur) {
				s.advance()
			}
		}
		return Tok{Kind: token.NUMBER, Lexeme: string(s.src[start:s.off]), Line: line}

	case s.cur == '"':
		return s.scanString(line)
	}

	r := s.cur
	s.advance()
	switch r {
	case '(':
		return Tok{Kind: token.LPAREN, Lexeme: "(", Line: line}
	case ')':
		return Tok{Kind: token.RPAREN, Lexeme: ")", Line: line}
	case '{':
		return Tok{Kind: token.LBRACE, Lexeme: "{", Line: line}
	case '}':
		return Tok{Kind: token.RBRACE, Lexeme: "}", Line: line}
	case ',':
		return Tok{Kind: token.COMMA, Lexeme: ",", Line: line}
	case '.':
		return Tok{Kind: token.DOT, Lexeme: ".", Line: line}
	case ';':
		return Tok{Kind: token.SEMI, Lexeme: ";", Line: line}
	case '*':
		if s.advanceIf('=') {
			return Tok{Kind: token.STAR_EQ, Lexeme: "*=", Line: line}
		}
		return Tok{Kind: token.STAR, Lexeme: "*", Line: line}
	case '/':
		if s.advanceIf('=') {
			return Tok{Kind: token.SLASH_EQ, Lexeme: "/=", Line: line}
		}
		return Tok{Kind: token.SLASH, Lexeme: "/", Line: line}
	case '+':
		if s.advanceIf('=') {
			return Tok{Kind: token.PLUS_EQ, Lexeme: "+=", Line: line}
		}
		return Tok{Kind: token.PLUS, Lexeme: "+", Line: line}
	case '-':
		if s.advanceIf('=') {
			return Tok{Kind: token.MINUS_EQ, Lexeme: "-=", Line: line}
		}
		return Tok{Kind: token.MINUS, Lexeme: "-", Line: line}
	case '=':
		return Tok{Kind: token.EQ, Lexeme: "=", Line: line}
	case '<':
		if s.advanceIf('=') {
			return Tok{Kind: token.LE, Lexeme: "<=", Line: line}
		}
		return Tok{Kind: token.LT, Lexeme: "<", Line: line}
	case '>':
		if s.advanceIf('=') {
			return Tok{Kind: token.GE, Lexeme: ">=", Line: line}
		}
		return Tok{Kind: token.GT, Lexeme: ">", Line: line}
	default:
		return Tok{Kind: token.ILLEGAL, Lexeme: string(r), Line: line}
	}
}

// scanString scans a double-quoted string literal, processing the common
// backslash escapes, and returns a STRING token whose Lexeme is the
// unescaped string content (not including the surrounding quotes). If EOF
// is reached before the closing quote, it returns an ILLEGAL token instead
// of fabricating a STRING.
func (s *Scanner) scanString(line int) Tok {
	s.advance() // opening quote
	var sb strings.Builder
	for s.cur != '"' && s.cur != -1 {
		if s.cur == '\\' {
			s.advance()
			switch s.cur {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '"':
				sb.WriteByte('"')
			case '\\':
				sb.WriteByte('\\')
			default:
				sb.WriteRune(s.cur)
			}
			s.advance()
			continue
		}
		sb.WriteRune(s.cur)
		s.advance()
	}
	if s.cur != '"' {
		return Tok{Kind: token.ILLEGAL, Lexeme: sb.String(), Line: line, Err: "Unterminated string."}
	}
	s.advance()
	return Tok{Kind: token.STRING, Lexeme: sb.String(), Line: line}
}
