package main

import "strconv"

// TokenType is the type of token (identifier, operator, literal, etc.).
type TokenType string

// Definition of token types
const (
	// Special tokens
	ILLEGAL = "ILLEGAL"
	EOF     = "EOF"

	// Identifiers + literals
	IDENT  = "IDENT"  // main, foo, _bar
	INT    = "INT"    // 12345, 7L, 3u
	FLOAT  = "FLOAT"  // 1.5
	CHAR   = "CHAR"   // 'a'
	STRING = "STRING" // "hello"

	// Operators
	ASSIGN    = "="
	PLUS      = "+"
	MINUS     = "-"
	BANG      = "!"
	TILDE     = "~"
	ASTERISK  = "*"
	SLASH     = "/"
	PERCENT   = "%"
	AMPERSAND = "&"
	QUESTION  = "?"

	LT     = "<"
	GT     = ">"
	EQ     = "=="
	NOT_EQ = "!="
	LE     = "<="
	GE     = ">="

	AND = "&&"
	OR  = "||"

	ARROW      = "->"
	DECLARE    = ":="
	COLONCOLON = "::"

	// Delimiters
	COMMA     = ","
	SEMICOLON = ";"
	COLON     = ":"
	LPAREN    = "("
	RPAREN    = ")"
	LBRACE    = "{"
	RBRACE    = "}"
	LBRACKET  = "["
	RBRACKET  = "]"
	DOT       = "."

	// Keywords
	RETURN   = "RETURN"
	IF       = "IF"
	ELSE     = "ELSE"
	WHILE    = "WHILE"
	DO       = "DO"
	FOR      = "FOR"
	BREAK    = "BREAK"
	CONTINUE = "CONTINUE"
	STRUCT   = "STRUCT"
	STATIC   = "STATIC"
	EXTERN   = "EXTERN"

	// Type keywords
	INT_T    = "INT_T"
	CHAR_T   = "CHAR_T"
	SIGNED   = "SIGNED"
	UNSIGNED = "UNSIGNED"
	LONG     = "LONG"
	DOUBLE   = "DOUBLE"
	VOID     = "VOID"
)

var keywords = map[string]TokenType{
	"return":   RETURN,
	"if":       IF,
	"else":     ELSE,
	"while":    WHILE,
	"do":       DO,
	"for":      FOR,
	"break":    BREAK,
	"continue": CONTINUE,
	"struct":   STRUCT,
	"static":   STATIC,
	"extern":   EXTERN,
	"int":      INT_T,
	"char":     CHAR_T,
	"signed":   SIGNED,
	"unsigned": UNSIGNED,
	"long":     LONG,
	"double":   DOUBLE,
	"void":     VOID,
}

// Token is a single classified lexeme together with the position of its
// first character.
type Token struct {
	Type    TokenType
	Literal string
	Line    int
	Column  int
}

// String describes the token for diagnostics.
func (t Token) String() string {
	switch t.Type {
	case EOF:
		return "end of input"
	case IDENT:
		return "identifier " + strconv.Quote(t.Literal)
	case INT, FLOAT:
		return "number " + t.Literal
	case CHAR:
		return "character literal " + strconv.QuoteRune(rune(t.Literal[0]))
	case STRING:
		return "string literal " + strconv.Quote(t.Literal)
	case ILLEGAL:
		return t.Literal
	default:
		return "'" + t.Literal + "'"
	}
}

// Lexer is a pull-based scanner. Each call to NextToken produces one token;
// once the input is exhausted it returns EOF forever.
type Lexer struct {
	input []byte // always terminated by a 0 byte
	pos   int
	line  int
	col   int
}

// lexerState is a saved cursor used by the parser for lookahead.
type lexerState struct {
	pos, line, col int
}

// NewLexer creates a lexer over input. A trailing 0 byte is added when the
// input does not already end with one.
func NewLexer(input []byte) *Lexer {
	if len(input) == 0 || input[len(input)-1] != 0 {
		buf := make([]byte, len(input)+1)
		copy(buf, input)
		input = buf
	}
	return &Lexer{input: input, line: 1, col: 1}
}

// CurrentLine returns the 1-based line of the scanner cursor.
func (l *Lexer) CurrentLine() int {
	return l.line
}

// CurrentPosition returns the 1-based column of the scanner cursor.
func (l *Lexer) CurrentPosition() int {
	return l.col
}

func (l *Lexer) save() lexerState {
	return lexerState{pos: l.pos, line: l.line, col: l.col}
}

func (l *Lexer) restore(s lexerState) {
	l.pos, l.line, l.col = s.pos, s.line, s.col
}

func (l *Lexer) peekByte(offset int) byte {
	if l.pos+offset >= len(l.input) {
		return 0
	}
	return l.input[l.pos+offset]
}

func (l *Lexer) advance() {
	if l.input[l.pos] == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	l.pos++
}

// NextToken scans and returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()

	tok := Token{Line: l.line, Column: l.col}
	c := l.input[l.pos]

	switch {
	case c == 0:
		tok.Type = EOF
		return tok
	case isLetter(c):
		tok.Literal = l.readIdentifier()
		if kw, ok := keywords[tok.Literal]; ok {
			tok.Type = kw
		} else {
			tok.Type = IDENT
		}
		return tok
	case isDigit(c):
		tok.Type, tok.Literal = l.readNumber()
		return tok
	case c == '\'':
		tok.Type, tok.Literal = l.readCharLiteral()
		return tok
	case c == '"':
		tok.Type, tok.Literal = l.readString()
		return tok
	}

	// Two-character operators take priority (maximal munch).
	if two, ok := twoCharTokens[string(c)+string(l.peekByte(1))]; ok {
		tok.Type = two
		tok.Literal = string(two)
		l.advance()
		l.advance()
		return tok
	}
	if one, ok := oneCharTokens[c]; ok {
		tok.Type = one
		tok.Literal = string(one)
		l.advance()
		return tok
	}

	tok.Type = ILLEGAL
	tok.Literal = "unexpected character " + strconv.QuoteRune(rune(c))
	l.advance()
	return tok
}

var twoCharTokens = map[string]TokenType{
	"==": EQ,
	"!=": NOT_EQ,
	"<=": LE,
	">=": GE,
	"&&": AND,
	"||": OR,
	"->": ARROW,
	":=": DECLARE,
	"::": COLONCOLON,
}

var oneCharTokens = map[byte]TokenType{
	'=': ASSIGN,
	'+': PLUS,
	'-': MINUS,
	'!': BANG,
	'~': TILDE,
	'*': ASTERISK,
	'/': SLASH,
	'%': PERCENT,
	'&': AMPERSAND,
	'?': QUESTION,
	'<': LT,
	'>': GT,
	',': COMMA,
	';': SEMICOLON,
	':': COLON,
	'(': LPAREN,
	')': RPAREN,
	'{': LBRACE,
	'}': RBRACE,
	'[': LBRACKET,
	']': RBRACKET,
	'.': DOT,
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		c := l.input[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.advance()
		case c == '/' && l.peekByte(1) == '/':
			for l.input[l.pos] != '\n' && l.input[l.pos] != 0 {
				l.advance()
			}
		case c == '/' && l.peekByte(1) == '*':
			l.advance()
			l.advance()
			for l.input[l.pos] != 0 && !(l.input[l.pos] == '*' && l.peekByte(1) == '/') {
				l.advance()
			}
			if l.input[l.pos] != 0 {
				l.advance()
				l.advance()
			}
		default:
			return
		}
	}
}

func isLetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || c == '_'
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func (l *Lexer) readIdentifier() string {
	start := l.pos
	for isLetter(l.input[l.pos]) || isDigit(l.input[l.pos]) {
		l.advance()
	}
	return string(l.input[start:l.pos])
}

// readNumber reads an integer with optional u/l suffixes, or a decimal
// floating-point literal.
func (l *Lexer) readNumber() (TokenType, string) {
	start := l.pos
	for isDigit(l.input[l.pos]) {
		l.advance()
	}
	if l.input[l.pos] == '.' && isDigit(l.peekByte(1)) {
		l.advance()
		for isDigit(l.input[l.pos]) {
			l.advance()
		}
		return FLOAT, string(l.input[start:l.pos])
	}
	for {
		c := l.input[l.pos]
		if c != 'u' && c != 'U' && c != 'l' && c != 'L' {
			break
		}
		l.advance()
	}
	return INT, string(l.input[start:l.pos])
}

// readEscape decodes the character after a backslash.
func (l *Lexer) readEscape() (byte, bool) {
	c := l.input[l.pos]
	if c == 0 {
		return 0, false
	}
	l.advance()
	switch c {
	case 'n':
		return '\n', true
	case 't':
		return '\t', true
	case 'r':
		return '\r', true
	case '0':
		return 0, true
	case '\\', '\'', '"':
		return c, true
	default:
		return c, false
	}
}

func (l *Lexer) readCharLiteral() (TokenType, string) {
	l.advance() // Skip opening '.
	c := l.input[l.pos]
	if c == 0 || c == '\n' || c == '\'' {
		return ILLEGAL, "malformed character literal"
	}
	l.advance()
	if c == '\\' {
		var ok bool
		if c, ok = l.readEscape(); !ok {
			return ILLEGAL, "unknown escape sequence in character literal"
		}
	}
	if l.input[l.pos] != '\'' {
		return ILLEGAL, "unterminated character literal"
	}
	l.advance() // Skip closing '.
	return CHAR, string([]byte{c})
}

func (l *Lexer) readString() (TokenType, string) {
	l.advance() // skip opening "
	var buf []byte
	for {
		c := l.input[l.pos]
		switch c {
		case 0, '\n':
			return ILLEGAL, "unterminated string literal"
		case '"':
			l.advance()
			return STRING, string(buf)
		case '\\':
			l.advance()
			decoded, ok := l.readEscape()
			if !ok {
				return ILLEGAL, "unknown escape sequence in string literal"
			}
			buf = append(buf, decoded)
		default:
			buf = append(buf, c)
			l.advance()
		}
	}
}
