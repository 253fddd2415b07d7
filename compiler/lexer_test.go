package compiler

import (
	"testing"
)

func TestLexerBasicTokens(t *testing.T) {
	input := `( ) { } , . - + ; / * ! != = == > >= < <=`
	expected := []struct {
		typ TokenType
		lex string
	}{
		{TokenLParen, "("},
		{TokenRParen, ")"},
		{TokenLBrace, "{"},
		{TokenRBrace, "}"},
		{TokenComma, ","},
		{TokenDot, "."},
		{TokenMinus, "-"},
		{TokenPlus, "+"},
		{TokenSemicolon, ";"},
		{TokenSlash, "/"},
		{TokenStar, "*"},
		{TokenBang, "!"},
		{TokenBangEqual, "!="},
		{TokenEqual, "="},
		{TokenEqualEqual, "=="},
		{TokenGreater, ">"},
		{TokenGreaterEqual, ">="},
		{TokenLess, "<"},
		{TokenLessEqual, "<="},
		{TokenEOF, ""},
	}

	l := NewLexer(input)
	for i, exp := range expected {
		tok := l.NextToken()
		if tok.Type != exp.typ {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, exp.typ)
		}
		if tok.Lexeme != exp.lex {
			t.Errorf("token[%d] lexeme = %q, want %q", i, tok.Lexeme, exp.lex)
		}
	}
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"42", "42"},
		{"0", "0"},
		{"3.14", "3.14"},
		{"123.456", "123.456"},
	}

	for _, tc := range tests {
		l := NewLexer(tc.input)
		tok := l.NextToken()
		if tok.Type != TokenNumber {
			t.Errorf("Lexer(%q): type = %v, want NUMBER", tc.input, tok.Type)
		}
		if tok.Lexeme != tc.want {
			t.Errorf("Lexer(%q): lexeme = %q, want %q", tc.input, tok.Lexeme, tc.want)
		}
	}
}

func TestLexerNumberTrailingDot(t *testing.T) {
	// "1." is a number followed by a dot, not a fractional number.
	l := NewLexer("1.foo")
	tok := l.NextToken()
	if tok.Type != TokenNumber || tok.Lexeme != "1" {
		t.Errorf("first token = %v %q, want NUMBER \"1\"", tok.Type, tok.Lexeme)
	}
	tok = l.NextToken()
	if tok.Type != TokenDot {
		t.Errorf("second token = %v, want '.'", tok.Type)
	}
}

func TestLexerStrings(t *testing.T) {
	l := NewLexer(`"hello world"`)
	tok := l.NextToken()
	if tok.Type != TokenString {
		t.Fatalf("type = %v, want STRING", tok.Type)
	}
	if tok.Lexeme != `"hello world"` {
		t.Errorf("lexeme = %q, want %q", tok.Lexeme, `"hello world"`)
	}
}

func TestLexerUnterminatedString(t *testing.T) {
	l := NewLexer(`"no closing quote`)
	tok := l.NextToken()
	if tok.Type != TokenError {
		t.Fatalf("type = %v, want ERROR", tok.Type)
	}
	if tok.Lexeme != "Unterminated string." {
		t.Errorf("message = %q, want %q", tok.Lexeme, "Unterminated string.")
	}
}

func TestLexerMultilineStringTracksLines(t *testing.T) {
	l := NewLexer("\"a\nb\"\nx")
	tok := l.NextToken()
	if tok.Type != TokenString || tok.Line != 1 {
		t.Errorf("string token = %v line %d, want STRING line 1", tok.Type, tok.Line)
	}
	tok = l.NextToken()
	if tok.Type != TokenIdentifier || tok.Line != 3 {
		t.Errorf("identifier token = %v line %d, want IDENTIFIER line 3", tok.Type, tok.Line)
	}
}

func TestLexerKeywords(t *testing.T) {
	tests := []struct {
		input string
		want  TokenType
	}{
		{"and", TokenAnd},
		{"class", TokenClass},
		{"else", TokenElse},
		{"false", TokenFalse},
		{"for", TokenFor},
		{"fun", TokenFun},
		{"if", TokenIf},
		{"nil", TokenNil},
		{"or", TokenOr},
		{"print", TokenPrint},
		{"return", TokenReturn},
		{"super", TokenSuper},
		{"this", TokenThis},
		{"true", TokenTrue},
		{"var", TokenVar},
		{"while", TokenWhile},
	}

	for _, tc := range tests {
		l := NewLexer(tc.input)
		tok := l.NextToken()
		if tok.Type != tc.want {
			t.Errorf("Lexer(%q): type = %v, want %v", tc.input, tok.Type, tc.want)
		}
	}
}

func TestLexerKeywordPrefixesAreIdentifiers(t *testing.T) {
	// Identifiers that share a prefix with keywords must not be classified
	// as keywords by the decision tree.
	for _, input := range []string{"an", "android", "classy", "forest", "funny", "thistle", "truest", "variable", "whiles", "superb", "print1"} {
		l := NewLexer(input)
		tok := l.NextToken()
		if tok.Type != TokenIdentifier {
			t.Errorf("Lexer(%q): type = %v, want IDENTIFIER", input, tok.Type)
		}
	}
}

func TestLexerCommentsAndWhitespace(t *testing.T) {
	input := "// a comment\nfoo // trailing\n// only comments\nbar"
	l := NewLexer(input)

	tok := l.NextToken()
	if tok.Type != TokenIdentifier || tok.Lexeme != "foo" || tok.Line != 2 {
		t.Errorf("first token = %v %q line %d, want foo at line 2", tok.Type, tok.Lexeme, tok.Line)
	}
	tok = l.NextToken()
	if tok.Type != TokenIdentifier || tok.Lexeme != "bar" || tok.Line != 4 {
		t.Errorf("second token = %v %q line %d, want bar at line 4", tok.Type, tok.Lexeme, tok.Line)
	}
	tok = l.NextToken()
	if tok.Type != TokenEOF {
		t.Errorf("third token = %v, want EOF", tok.Type)
	}
}

func TestLexerUnexpectedCharacter(t *testing.T) {
	l := NewLexer("@")
	tok := l.NextToken()
	if tok.Type != TokenError {
		t.Fatalf("type = %v, want ERROR", tok.Type)
	}
	if tok.Lexeme != "Unexpected character." {
		t.Errorf("message = %q", tok.Lexeme)
	}
}

func TestLexerEOFIsSticky(t *testing.T) {
	l := NewLexer("x")
	l.NextToken()
	for i := 0; i < 3; i++ {
		if tok := l.NextToken(); tok.Type != TokenEOF {
			t.Fatalf("NextToken after end = %v, want EOF", tok.Type)
		}
	}
}
