package lexer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// TokenType represents different types of tokens
type TokenType int

const (
	// Special tokens
	ILLEGAL TokenType = iota
	EOF

	// Identifiers and literals
	IDENT            // users, doc, `quoted name`
	INT              // 1343456
	FLOAT            // 3.14159, 1e10
	STRING           // "foo", 'bar'
	PARAM            // @value
	COLLECTION_PARAM // @@collection

	// Operators
	ASSIGN          // =
	EQ              // ==
	NOT_EQ          // !=
	LT              // <
	LTE             // <=
	GT              // >
	GTE             // >=
	REGEX_MATCH     // =~
	REGEX_NOT_MATCH // !~
	PLUS            // +
	MINUS           // -
	ASTERISK        // *
	SLASH           // /
	PERCENT         // %
	AND             // && or AND
	OR              // || or OR
	BANG            // !
	QUESTION        // ?
	COLON           // :
	RANGE           // ..

	// Delimiters
	DOT      // .
	COMMA    // ,
	LPAREN   // (
	RPAREN   // )
	LBRACKET // [
	RBRACKET // ]
	LBRACE   // {
	RBRACE   // }

	// Keywords
	FOR
	IN
	FILTER
	LET
	SORT
	ASC
	DESC
	LIMIT
	COLLECT
	INTO
	WITH
	RETURN
	DISTINCT
	INSERT
	UPDATE
	REPLACE
	REMOVE
	UPSERT
	OPTIONS
	NOT
	LIKE
	NULL
	TRUE
	FALSE
)

// Token represents a single token
type Token struct {
	Type    TokenType
	Literal string
	Line    int    // 1-based
	Column  int    // 0-based, in characters
	Offset  int    // byte offset into the input
	Err     string // reason for ILLEGAL tokens
}

// String returns a string representation of the token
func (t Token) String() string {
	return fmt.Sprintf("{Type: %s, Literal: %s, Line: %d, Column: %d}",
		t.Type.String(), t.Literal, t.Line, t.Column)
}

var tokenNames = map[TokenType]string{
	ILLEGAL:          "ILLEGAL",
	EOF:              "EOF",
	IDENT:            "IDENT",
	INT:              "INT",
	FLOAT:            "FLOAT",
	STRING:           "STRING",
	PARAM:            "PARAM",
	COLLECTION_PARAM: "COLLECTION_PARAM",
	ASSIGN:           "ASSIGN",
	EQ:               "EQ",
	NOT_EQ:           "NOT_EQ",
	LT:               "LT",
	LTE:              "LTE",
	GT:               "GT",
	GTE:              "GTE",
	REGEX_MATCH:      "REGEX_MATCH",
	REGEX_NOT_MATCH:  "REGEX_NOT_MATCH",
	PLUS:             "PLUS",
	MINUS:            "MINUS",
	ASTERISK:         "ASTERISK",
	SLASH:            "SLASH",
	PERCENT:          "PERCENT",
	AND:              "AND",
	OR:               "OR",
	BANG:             "BANG",
	QUESTION:         "QUESTION",
	COLON:            "COLON",
	RANGE:            "RANGE",
	DOT:              "DOT",
	COMMA:            "COMMA",
	LPAREN:           "LPAREN",
	RPAREN:           "RPAREN",
	LBRACKET:         "LBRACKET",
	RBRACKET:         "RBRACKET",
	LBRACE:           "LBRACE",
	RBRACE:           "RBRACE",
}

// String returns a string representation of the token type
func (tt TokenType) String() string {
	if name, ok := tokenNames[tt]; ok {
		return name
	}
	for word, kw := range keywords {
		if kw == tt {
			return word
		}
	}
	return "UNKNOWN"
}

// IsKeyword reports whether the token type is a reserved word.
func (tt TokenType) IsKeyword() bool {
	return tt >= FOR && tt <= FALSE
}

// keywords maps upper-cased reserved words to token types. Matching is
// case-insensitive.
var keywords = map[string]TokenType{
	"FOR":      FOR,
	"IN":       IN,
	"FILTER":   FILTER,
	"LET":      LET,
	"SORT":     SORT,
	"ASC":      ASC,
	"DESC":     DESC,
	"LIMIT":    LIMIT,
	"COLLECT":  COLLECT,
	"INTO":     INTO,
	"WITH":     WITH,
	"RETURN":   RETURN,
	"DISTINCT": DISTINCT,
	"INSERT":   INSERT,
	"UPDATE":   UPDATE,
	"REPLACE":  REPLACE,
	"REMOVE":   REMOVE,
	"UPSERT":   UPSERT,
	"OPTIONS":  OPTIONS,
	"AND":      AND,
	"OR":       OR,
	"NOT":      NOT,
	"LIKE":     LIKE,
	"NULL":     NULL,
	"TRUE":     TRUE,
	"FALSE":    FALSE,
}

// LookupIdent checks if an identifier is a keyword
func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[strings.ToUpper(ident)]; ok {
		return tok
	}
	return IDENT
}

// regionLength is the number of bytes ExtractRegion returns at most.
const regionLength = 32

// Lexer represents the lexical analyzer
type Lexer struct {
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           rune // current char under examination, 0 at end of input
	chSize       int  // byte size of current char
	line         int  // line of the current char, 1-based
	column       int  // column of the current char, 0-based
	nextLine     int  // line of the char after the current one
	nextColumn   int  // column of the char after the current one
}

// New creates a new lexer instance
func New(input string) *Lexer {
	l := &Lexer{
		input:    input,
		nextLine: 1,
	}
	l.readChar()
	return l
}

// Input returns the text being tokenized.
func (l *Lexer) Input() string {
	return l.input
}

// readChar reads the next character and advances position.
// ASCII takes a fast path; other input is decoded as UTF-8.
func (l *Lexer) readChar() {
	l.line = l.nextLine
	l.column = l.nextColumn
	l.position = l.readPosition

	if l.readPosition >= len(l.input) {
		l.ch = 0
		l.chSize = 0
		return
	}

	b := l.input[l.readPosition]
	if b < utf8.RuneSelf {
		l.ch = rune(b)
		l.chSize = 1
	} else {
		l.ch, l.chSize = utf8.DecodeRuneInString(l.input[l.readPosition:])
	}
	l.readPosition += l.chSize

	if l.ch == '\n' {
		l.nextLine++
		l.nextColumn = 0
	} else {
		l.nextColumn++
	}
}

// atEnd reports whether the whole input has been consumed.
func (l *Lexer) atEnd() bool {
	return l.position >= len(l.input)
}

// peekChar returns the next character without advancing position
func (l *Lexer) peekChar() rune {
	if l.readPosition >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPosition:])
	return r
}

// NextToken scans the input and returns the next token
func (l *Lexer) NextToken() Token {
	if tok, ok := l.skipWhitespaceAndComments(); !ok {
		return tok
	}

	line, col, start := l.line, l.column, l.position
	tok := Token{Line: line, Column: col, Offset: start}

	if l.atEnd() {
		tok.Type = EOF
		return tok
	}

	single := func(tt TokenType) Token {
		tok.Type = tt
		tok.Literal = string(l.ch)
		l.readChar()
		return tok
	}
	double := func(tt TokenType) Token {
		l.readChar()
		l.readChar()
		tok.Type = tt
		tok.Literal = l.input[start:l.position]
		return tok
	}

	switch l.ch {
	case '=':
		switch l.peekChar() {
		case '=':
			return double(EQ)
		case '~':
			return double(REGEX_MATCH)
		}
		return single(ASSIGN)
	case '!':
		switch l.peekChar() {
		case '=':
			return double(NOT_EQ)
		case '~':
			return double(REGEX_NOT_MATCH)
		}
		return single(BANG)
	case '<':
		if l.peekChar() == '=' {
			return double(LTE)
		}
		return single(LT)
	case '>':
		if l.peekChar() == '=' {
			return double(GTE)
		}
		return single(GT)
	case '&':
		if l.peekChar() == '&' {
			return double(AND)
		}
		return l.illegal(tok, "unexpected character '&'")
	case '|':
		if l.peekChar() == '|' {
			return double(OR)
		}
		return l.illegal(tok, "unexpected character '|'")
	case '.':
		if l.peekChar() == '.' {
			return double(RANGE)
		}
		return single(DOT)
	case '+':
		return single(PLUS)
	case '-':
		return single(MINUS)
	case '*':
		return single(ASTERISK)
	case '/':
		return single(SLASH)
	case '%':
		return single(PERCENT)
	case '?':
		return single(QUESTION)
	case ':':
		return single(COLON)
	case ',':
		return single(COMMA)
	case '(':
		return single(LPAREN)
	case ')':
		return single(RPAREN)
	case '[':
		return single(LBRACKET)
	case ']':
		return single(RBRACKET)
	case '{':
		return single(LBRACE)
	case '}':
		return single(RBRACE)
	case '"', '\'':
		value, ok := l.readString(l.ch)
		if !ok {
			return l.illegal(tok, "unterminated string literal")
		}
		tok.Type = STRING
		tok.Literal = value
		return tok
	case '`':
		value, ok := l.readQuotedIdentifier()
		if !ok {
			return l.illegal(tok, "unterminated quoted identifier")
		}
		tok.Type = IDENT
		tok.Literal = norm.NFC.String(value)
		return tok
	case '@':
		return l.readParameter(tok)
	}

	if isDigit(l.ch) {
		literal, isFloat, ok := l.readNumber()
		if !ok {
			return l.illegal(tok, fmt.Sprintf("invalid number literal '%s'", literal))
		}
		tok.Literal = literal
		tok.Type = INT
		if isFloat {
			tok.Type = FLOAT
		}
		return tok
	}

	if isLetter(l.ch) {
		ident := l.readIdentifier()
		tok.Type = LookupIdent(ident)
		if tok.Type == IDENT {
			tok.Literal = norm.NFC.String(ident)
		} else {
			tok.Literal = ident
		}
		return tok
	}

	return l.illegal(tok, fmt.Sprintf("unexpected character '%c'", l.ch))
}

// illegal finishes an ILLEGAL token. The lexer is moved to the end of the
// input so that no further tokens are produced after a lexical error.
func (l *Lexer) illegal(tok Token, reason string) Token {
	tok.Type = ILLEGAL
	tok.Err = reason
	if tok.Literal == "" && tok.Offset < len(l.input) {
		r, _ := utf8.DecodeRuneInString(l.input[tok.Offset:])
		tok.Literal = string(r)
	}
	for !l.atEnd() {
		l.readChar()
	}
	return tok
}

// skipWhitespaceAndComments advances past blanks and comments. It returns
// an ILLEGAL token and false if a block comment is not terminated.
func (l *Lexer) skipWhitespaceAndComments() (Token, bool) {
	for {
		switch {
		case unicode.IsSpace(l.ch) && !l.atEnd():
			l.readChar()
		case l.ch == '/' && l.peekChar() == '/':
			for l.ch != '\n' && !l.atEnd() {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '*':
			tok := Token{Line: l.line, Column: l.column, Offset: l.position, Literal: "/*"}
			l.readChar()
			l.readChar()
			for !(l.ch == '*' && l.peekChar() == '/') {
				if l.atEnd() {
					return l.illegal(tok, "unterminated comment"), false
				}
				l.readChar()
			}
			l.readChar()
			l.readChar()
		default:
			return Token{}, true
		}
	}
}

// readIdentifier reads letters, combining marks, digits and underscores.
func (l *Lexer) readIdentifier() string {
	start := l.position
	for isIdentChar(l.ch) {
		l.readChar()
	}
	return l.input[start:l.position]
}

// readQuotedIdentifier reads a backtick-quoted identifier, without quotes.
func (l *Lexer) readQuotedIdentifier() (string, bool) {
	l.readChar() // consume opening backtick
	start := l.position
	for l.ch != '`' {
		if l.atEnd() {
			return "", false
		}
		l.readChar()
	}
	value := l.input[start:l.position]
	l.readChar() // consume closing backtick
	return value, true
}

// readNumber reads an integer or a decimal with optional exponent.
func (l *Lexer) readNumber() (string, bool, bool) {
	start := l.position
	isFloat := false

	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		isFloat = true
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		isFloat = true
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		if !isDigit(l.ch) {
			return l.input[start:l.position], true, false
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if isLetter(l.ch) {
		for isLetter(l.ch) || isDigit(l.ch) {
			l.readChar()
		}
		return l.input[start:l.position], isFloat, false
	}
	return l.input[start:l.position], isFloat, true
}

// readString reads a string delimited by quote and resolves escapes.
func (l *Lexer) readString(quote rune) (string, bool) {
	var sb strings.Builder
	l.readChar() // consume opening quote
	for l.ch != quote {
		if l.atEnd() {
			return "", false
		}
		if l.ch == '\\' {
			l.readChar()
			if l.atEnd() {
				return "", false
			}
			switch l.ch {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case 'b':
				sb.WriteByte('\b')
			case 'f':
				sb.WriteByte('\f')
			default:
				sb.WriteRune(l.ch)
			}
			l.readChar()
			continue
		}
		sb.WriteRune(l.ch)
		l.readChar()
	}
	l.readChar() // consume closing quote
	return sb.String(), true
}

// readParameter reads @name or @@name.
func (l *Lexer) readParameter(tok Token) Token {
	l.readChar() // consume '@'
	tok.Type = PARAM
	if l.ch == '@' {
		tok.Type = COLLECTION_PARAM
		l.readChar()
	}
	if !isLetter(l.ch) && !isDigit(l.ch) {
		return l.illegal(tok, "bind parameter name expected after '@'")
	}
	tok.Literal = norm.NFC.String(l.readIdentifier())
	return tok
}

// ExtractRegion returns up to 32 bytes of input starting at the given
// 1-based line and 0-based column. The result is empty at end of input.
func (l *Lexer) ExtractRegion(line, column int) string {
	offset := OffsetOf(l.input, line, column)
	if offset >= len(l.input) {
		return ""
	}
	end := offset + regionLength
	if end >= len(l.input) {
		return l.input[offset:]
	}
	for end > offset && !utf8.RuneStart(l.input[end]) {
		end--
	}
	return l.input[offset:end]
}

// OffsetOf converts a 1-based line and 0-based column into a byte offset.
// Positions past the end map to len(input).
func OffsetOf(input string, line, column int) int {
	curLine, curCol := 1, 0
	for i, r := range input {
		if curLine == line && curCol == column {
			return i
		}
		if curLine > line {
			return i
		}
		if r == '\n' {
			curLine++
			curCol = 0
		} else {
			curCol++
		}
	}
	return len(input)
}

func isLetter(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch)
}

func isIdentChar(ch rune) bool {
	return isLetter(ch) || isDigit(ch) || unicode.IsMark(ch)
}

func isDigit(ch rune) bool {
	return '0' <= ch && ch <= '9'
}
