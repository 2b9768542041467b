package lexer

import (
	"testing"
)

func TestNextToken(t *testing.T) {
	input := `FOR u IN users
  FILTER u.age >= 18 && u.name =~ "^a" || !u.x
  LET r = 1..10
  RETURN { id: u._key, v: @value, c: @@coll, f: 1.5e3, s: 'it\'s' }`

	tests := []struct {
		expectedType    TokenType
		expectedLiteral string
	}{
		{FOR, "FOR"},
		{IDENT, "u"},
		{IN, "IN"},
		{IDENT, "users"},
		{FILTER, "FILTER"},
		{IDENT, "u"},
		{DOT, "."},
		{IDENT, "age"},
		{GTE, ">="},
		{INT, "18"},
		{AND, "&&"},
		{IDENT, "u"},
		{DOT, "."},
		{IDENT, "name"},
		{REGEX_MATCH, "=~"},
		{STRING, "^a"},
		{OR, "||"},
		{BANG, "!"},
		{IDENT, "u"},
		{DOT, "."},
		{IDENT, "x"},
		{LET, "LET"},
		{IDENT, "r"},
		{ASSIGN, "="},
		{INT, "1"},
		{RANGE, ".."},
		{INT, "10"},
		{RETURN, "RETURN"},
		{LBRACE, "{"},
		{IDENT, "id"},
		{COLON, ":"},
		{IDENT, "u"},
		{DOT, "."},
		{IDENT, "_key"},
		{COMMA, ","},
		{IDENT, "v"},
		{COLON, ":"},
		{PARAM, "value"},
		{COMMA, ","},
		{IDENT, "c"},
		{COLON, ":"},
		{COLLECTION_PARAM, "coll"},
		{COMMA, ","},
		{IDENT, "f"},
		{COLON, ":"},
		{FLOAT, "1.5e3"},
		{COMMA, ","},
		{IDENT, "s"},
		{COLON, ":"},
		{STRING, "it's"},
		{RBRACE, "}"},
		{EOF, ""},
	}

	l := New(input)
	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - tokentype wrong. expected=%q, got=%q (%q)",
				i, tt.expectedType, tok.Type, tok.Literal)
		}
		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - literal wrong. expected=%q, got=%q",
				i, tt.expectedLiteral, tok.Literal)
		}
	}
}

func TestKeywordsAreCaseInsensitive(t *testing.T) {
	l := New("for x In y return x")
	want := []TokenType{FOR, IDENT, IN, IDENT, RETURN, IDENT, EOF}
	for i, tt := range want {
		if tok := l.NextToken(); tok.Type != tt {
			t.Fatalf("token %d: expected %s, got %s", i, tt, tok.Type)
		}
	}
}

func TestPositions(t *testing.T) {
	l := New("FOR x\n  IN y")
	tests := []struct {
		typ    TokenType
		line   int
		column int
		offset int
	}{
		{FOR, 1, 0, 0},
		{IDENT, 1, 4, 4},
		{IN, 2, 2, 8},
		{IDENT, 2, 5, 11},
		{EOF, 2, 6, 12},
	}

	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.typ || tok.Line != tt.line || tok.Column != tt.column || tok.Offset != tt.offset {
			t.Errorf("token %d: got %s at %d:%d (offset %d), want %s at %d:%d (offset %d)",
				i, tok.Type, tok.Line, tok.Column, tok.Offset, tt.typ, tt.line, tt.column, tt.offset)
		}
	}
}

func TestEOFPositionAfterIncompleteQuery(t *testing.T) {
	l := New("FOR x IN")
	var tok Token
	for tok = l.NextToken(); tok.Type != EOF; tok = l.NextToken() {
	}
	if tok.Line != 1 || tok.Column != 8 {
		t.Errorf("EOF at %d:%d, want 1:8", tok.Line, tok.Column)
	}
}

func TestComments(t *testing.T) {
	l := New("RETURN /* block\ncomment */ 1 // trailing")
	if tok := l.NextToken(); tok.Type != RETURN {
		t.Fatalf("expected RETURN, got %s", tok.Type)
	}
	tok := l.NextToken()
	if tok.Type != INT || tok.Line != 2 || tok.Column != 11 {
		t.Fatalf("expected INT at 2:11, got %s at %d:%d", tok.Type, tok.Line, tok.Column)
	}
	if tok := l.NextToken(); tok.Type != EOF {
		t.Fatalf("expected EOF, got %s", tok.Type)
	}
}

func TestIllegalTokens(t *testing.T) {
	tests := []struct {
		input  string
		reason string
		column int
	}{
		{`RETURN "abc`, "unterminated string literal", 7},
		{"RETURN /* abc", "unterminated comment", 7},
		{"RETURN `abc", "unterminated quoted identifier", 7},
		{"RETURN & 2", "unexpected character '&'", 7},
		{"RETURN | 2", "unexpected character '|'", 7},
		{"RETURN 12abc", "invalid number literal '12abc'", 7},
		{"RETURN @ x", "bind parameter name expected after '@'", 7},
		{"RETURN #", "unexpected character '#'", 7},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			l := New(tt.input)
			l.NextToken()
			tok := l.NextToken()
			if tok.Type != ILLEGAL {
				t.Fatalf("expected ILLEGAL, got %s", tok.Type)
			}
			if tok.Err != tt.reason {
				t.Errorf("Err = %q, want %q", tok.Err, tt.reason)
			}
			if tok.Column != tt.column {
				t.Errorf("Column = %d, want %d", tok.Column, tt.column)
			}
			if next := l.NextToken(); next.Type != EOF {
				t.Errorf("expected EOF after ILLEGAL, got %s", next.Type)
			}
		})
	}
}

func TestQuotedIdentifierIsNotKeyword(t *testing.T) {
	l := New("`FOR`")
	tok := l.NextToken()
	if tok.Type != IDENT || tok.Literal != "FOR" {
		t.Errorf("got %s %q, want IDENT \"FOR\"", tok.Type, tok.Literal)
	}
}

func TestIdentifiersAreNFCNormalized(t *testing.T) {
	decomposed := "cafe\u0301"
	composed := "caf\u00e9"

	tok := New(decomposed).NextToken()
	if tok.Type != IDENT {
		t.Fatalf("expected IDENT, got %s", tok.Type)
	}
	if tok.Literal != composed {
		t.Errorf("Literal = %q, want %q", tok.Literal, composed)
	}
}

func TestExtractRegion(t *testing.T) {
	l := New("FOR doc IN collection\nFILTER doc.value == 1 RETURN doc")

	tests := []struct {
		line     int
		column   int
		expected string
	}{
		{1, 0, "FOR doc IN collection\nFILTER doc"},
		{1, 11, "collection\nFILTER doc.value == 1"},
		{2, 22, "RETURN doc"},
		{2, 32, ""},
		{5, 0, ""},
	}

	for _, tt := range tests {
		if got := l.ExtractRegion(tt.line, tt.column); got != tt.expected {
			t.Errorf("ExtractRegion(%d, %d) = %q, want %q", tt.line, tt.column, got, tt.expected)
		}
	}
}

func TestTokenTypeString(t *testing.T) {
	if FOR.String() != "FOR" {
		t.Errorf("FOR.String() = %q", FOR.String())
	}
	if COLLECTION_PARAM.String() != "COLLECTION_PARAM" {
		t.Errorf("COLLECTION_PARAM.String() = %q", COLLECTION_PARAM.String())
	}
	if !UPSERT.IsKeyword() || IDENT.IsKeyword() {
		t.Error("IsKeyword mismatch")
	}
}
