package scanner_test

import (
	"testing"

	"github.com/loxlang/loxvm/lang/scanner"
	"github.com/loxlang/loxvm/lang/token"
	"github.com/stretchr/testify/require"
)

func kinds(t *testing.T, src string) []token.Token {
	t.Helper()
	s := scanner.New([]byte(src))
	var got []token.Token
	for {
		tok := s.Scan()
		got = append(got, tok.Kind)
		if tok.Kind == token.EOF {
			return got
		}
	}
}

func TestScanPunctuationAndOperators(t *testing.T) {
	got := kinds(t, "+ - * / = += -= *= /= < <= > >= ( ) { } , . ;")
	want := []token.Token{
		token.PLUS, token.MINUS, token.STAR, token.SLASH, token.EQ,
		token.PLUS_EQ, token.MINUS_EQ, token.STAR_EQ, token.SLASH_EQ,
		token.LT, token.LE, token.GT, token.GE,
		token.LPAREN, token.RPAREN, token.LBRACE, token.RBRACE,
		token.COMMA, token.DOT, token.SEMI, token.EOF,
	}
	require.Equal(t, want, got)
}

func TestScanKeywordsAndIdents(t *testing.T) {
	got := kinds(t, "let x = fn while for if else is not none true false return class super this and or continue break")
	want := []token.Token{
		token.LET, token.IDENT, token.EQ, token.FN, token.WHILE, token.FOR,
		token.IF, token.ELSE, token.IS, token.NOT, token.NONE, token.TRUE,
		token.FALSE, token.RETURN, token.CLASS, token.SUPER, token.THIS,
		token.AND, token.OR, token.CONTINUE, token.BREAK, token.EOF,
	}
	require.Equal(t, want, got)
}

func TestScanNumbers(t *testing.T) {
	s := scanner.New([]byte("123 4.5"))
	tok := s.Scan()
	require.Equal(t, token.NUMBER, tok.Kind)
	require.Equal(t, "123", tok.Lexeme)

	tok = s.Scan()
	require.Equal(t, token.NUMBER, tok.Kind)
	require.Equal(t, "4.5", tok.Lexeme)
}

func TestScanString(t *testing.T) {
	s := scanner.New([]byte(`"hello\nworld"`))
	tok := s.Scan()
	require.Equal(t, token.STRING, tok.Kind)
	require.Equal(t, "hello\nworld", tok.Lexeme)
}

func TestScanLineTracking(t *testing.T) {
	s := scanner.New([]byte("let x\n= 1"))
	require.Equal(t, 1, s.Scan().Line) // let
	require.Equal(t, 1, s.Scan().Line) // x
	require.Equal(t, 2, s.Scan().Line) // =
	require.Equal(t, 2, s.Scan().Line) // 1
}

func TestScanSkipsLineComments(t *testing.T) {
	got := kinds(t, "let x = 1 ? trailing comment\nlet y = 2")
	want := []token.Token{
		token.LET, token.IDENT, token.EQ, token.NUMBER,
		token.LET, token.IDENT, token.EQ, token.NUMBER,
		token.EOF,
	}
	require.Equal(t, want, got)
}

func TestScanIllegalCharacter(t *testing.T) {
	s := scanner.New([]byte("$"))
	tok := s.Scan()
	require.Equal(t, token.ILLEGAL, tok.Kind)
}

func TestScanUnterminatedStringIsIllegal(t *testing.T) {
	s := scanner.New([]byte(`"unterminated`))
	tok := s.Scan()
	require.Equal(t, token.ILLEGAL, tok.Kind)
	require.NotEmpty(t, tok.Err)
}
