// Package sexy reads the s-expressions used as expectations in the
// markdown test suites, and matches them against compiler output.
package sexy

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// NodeType represents the type of a Node
type NodeType int

const (
	NodeSymbol NodeType = iota
	NodeString
	NodeInteger
	NodeEllipsis
	NodeWildcard
	NodeList
)

// Node is one parsed datum.
type Node struct {
	Type NodeType

	// Text holds the symbol name, the decoded string, or the integer as
	// written.
	Text string

	// Items holds the elements of a NodeList.
	Items []*Node
}

func (n *Node) String() string {
	switch n.Type {
	case NodeSymbol, NodeInteger:
		return n.Text
	case NodeString:
		return strconv.Quote(n.Text)
	case NodeEllipsis:
		return "..."
	case NodeWildcard:
		return "_"
	case NodeList:
		parts := make([]string, len(n.Items))
		for i, item := range n.Items {
			parts[i] = item.String()
		}
		return "(" + strings.Join(parts, " ") + ")"
	default:
		return fmt.Sprintf("UNKNOWN_NODE_TYPE_%d", n.Type)
	}
}

func NewSymbol(name string) *Node {
	return &Node{Type: NodeSymbol, Text: name}
}

func NewString(value string) *Node {
	return &Node{Type: NodeString, Text: value}
}

func NewInteger(text string) *Node {
	return &Node{Type: NodeInteger, Text: text}
}

func NewList(items []*Node) *Node {
	return &Node{Type: NodeList, Items: items}
}

// IsAtom checks if the node is an atomic value
func (n *Node) IsAtom() bool {
	return n.Type != NodeList
}

// Match reports whether actual has the shape of pattern. In a pattern, `_`
// matches any single datum and `...` inside a list matches any run of
// items, including none. Integers compare by value, so +5 matches 5.
func Match(pattern, actual *Node) bool {
	switch pattern.Type {
	case NodeWildcard:
		return true
	case NodeEllipsis:
		return false
	case NodeList:
		return actual.Type == NodeList && matchItems(pattern.Items, actual.Items)
	case NodeInteger:
		if actual.Type != NodeInteger {
			return false
		}
		p, perr := strconv.ParseInt(pattern.Text, 10, 64)
		a, aerr := strconv.ParseInt(actual.Text, 10, 64)
		return perr == nil && aerr == nil && p == a
	default:
		return pattern.Type == actual.Type && pattern.Text == actual.Text
	}
}

func matchItems(patterns, actuals []*Node) bool {
	if len(patterns) == 0 {
		return len(actuals) == 0
	}
	if patterns[0].Type == NodeEllipsis {
		for skip := 0; skip <= len(actuals); skip++ {
			if matchItems(patterns[1:], actuals[skip:]) {
				return true
			}
		}
		return false
	}
	return len(actuals) > 0 && Match(patterns[0], actuals[0]) && matchItems(patterns[1:], actuals[1:])
}

// MatchString parses both sides and matches them.
func MatchString(pattern, actual string) (bool, error) {
	p, err := Parse(pattern)
	if err != nil {
		return false, fmt.Errorf("pattern: %w", err)
	}
	a, err := Parse(actual)
	if err != nil {
		return false, fmt.Errorf("actual: %w", err)
	}
	return Match(p, a), nil
}

type parser struct {
	lexer        *lexer
	currentToken token
}

// Parse parses the entire input and returns the top-level datum
func Parse(input string) (*Node, error) {
	p := &parser{lexer: newLexer(input)}
	p.nextToken()

	result, err := p.parseDatum()
	if p.lexer.err != nil {
		// Lexer errors take priority because they might cause confusing parser errors.
		return nil, p.lexer.err
	}
	if err != nil {
		return nil, err
	}
	if p.currentToken.Type != tokenEOF {
		return nil, fmt.Errorf("expected EOF but got %s", p.currentToken.Type)
	}
	return result, nil
}

// ParseAll parses a sequence of data, such as one frame per line.
func ParseAll(input string) ([]*Node, error) {
	p := &parser{lexer: newLexer(input)}
	p.nextToken()

	var nodes []*Node
	for p.currentToken.Type != tokenEOF {
		node, err := p.parseDatum()
		if p.lexer.err != nil {
			return nil, p.lexer.err
		}
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	if p.lexer.err != nil {
		return nil, p.lexer.err
	}
	return nodes, nil
}

func (p *parser) nextToken() {
	p.currentToken = p.lexer.nextToken()
}

func (p *parser) parseDatum() (*Node, error) {
	tok := p.currentToken
	switch tok.Type {
	case tokenSymbol:
		p.nextToken()
		if tok.Value == "_" {
			return &Node{Type: NodeWildcard}, nil
		}
		return NewSymbol(tok.Value), nil
	case tokenString:
		p.nextToken()
		return NewString(tok.Value), nil
	case tokenInteger:
		p.nextToken()
		return NewInteger(tok.Value), nil
	case tokenEllipsis:
		p.nextToken()
		return &Node{Type: NodeEllipsis}, nil
	case tokenLParen:
		return p.parseList()
	default:
		return nil, fmt.Errorf("unexpected token: %s", tok.Type)
	}
}

func (p *parser) parseList() (*Node, error) {
	items := []*Node{}
	p.nextToken() // consume '('

	for p.currentToken.Type != tokenRParen && p.currentToken.Type != tokenEOF {
		item, err := p.parseDatum()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if p.currentToken.Type != tokenRParen {
		return nil, fmt.Errorf("expected ')' but got %s", p.currentToken.Type)
	}
	p.nextToken() // consume ')'
	return NewList(items), nil
}

type tokenType int

const (
	tokenEOF tokenType = iota
	tokenSymbol
	tokenString
	tokenInteger
	tokenEllipsis
	tokenLParen
	tokenRParen
)

func (t tokenType) String() string {
	switch t {
	case tokenEOF:
		return "EOF"
	case tokenSymbol:
		return "symbol"
	case tokenString:
		return "string"
	case tokenInteger:
		return "integer"
	case tokenEllipsis:
		return "ellipsis"
	case tokenLParen:
		return "'('"
	case tokenRParen:
		return "')'"
	default:
		return fmt.Sprintf("unknown token %d", int(t))
	}
}

type token struct {
	Type  tokenType
	Value string
}

type lexer struct {
	input    string
	position int
	err      error
}

func newLexer(input string) *lexer {
	return &lexer{input: input}
}

func (l *lexer) peek(offset int) byte {
	if l.position+offset >= len(l.input) {
		return 0
	}
	return l.input[l.position+offset]
}

func (l *lexer) fail(format string, args ...any) token {
	if l.err == nil {
		l.err = fmt.Errorf(format, args...)
	}
	return token{Type: tokenEOF}
}

func (l *lexer) nextToken() token {
	for {
		c := l.peek(0)
		switch {
		case c == 0:
			return token{Type: tokenEOF}
		case unicode.IsSpace(rune(c)):
			l.position++
		case c == ';':
			for l.peek(0) != '\n' && l.peek(0) != 0 {
				l.position++
			}
		case c == '(':
			l.position++
			return token{Type: tokenLParen, Value: "("}
		case c == ')':
			l.position++
			return token{Type: tokenRParen, Value: ")"}
		case c == '"':
			return l.readString()
		case c == '.':
			if l.peek(1) == '.' && l.peek(2) == '.' {
				l.position += 3
				return token{Type: tokenEllipsis, Value: "..."}
			}
			return l.fail("unexpected character '.'")
		case isDigit(c) || ((c == '-' || c == '+') && isDigit(l.peek(1))):
			start := l.position
			l.position++
			for isDigit(l.peek(0)) {
				l.position++
			}
			return token{Type: tokenInteger, Value: l.input[start:l.position]}
		case isSymbolChar(c):
			start := l.position
			for isSymbolChar(l.peek(0)) {
				l.position++
			}
			return token{Type: tokenSymbol, Value: l.input[start:l.position]}
		default:
			return l.fail("unexpected character '%c'", c)
		}
	}
}

// readString decodes a double-quoted string with the escapes strconv.Quote
// produces.
func (l *lexer) readString() token {
	var sb strings.Builder
	l.position++ // skip opening quote
	for {
		c := l.peek(0)
		switch c {
		case 0:
			return l.fail("unterminated string")
		case '"':
			l.position++
			return token{Type: tokenString, Value: sb.String()}
		case '\\':
			value, width, err := decodeEscape(l.input[l.position:])
			if err != nil {
				return l.fail("%v", err)
			}
			sb.WriteString(value)
			l.position += width
		default:
			sb.WriteByte(c)
			l.position++
		}
	}
}

// decodeEscape decodes the escape at the start of s, which begins with a
// backslash, and returns the decoded text and the bytes consumed.
func decodeEscape(s string) (string, int, error) {
	if len(s) < 2 {
		return "", 0, fmt.Errorf("unterminated string")
	}
	switch s[1] {
	case '"', '\\':
		return s[1:2], 2, nil
	case 'n':
		return "\n", 2, nil
	case 't':
		return "\t", 2, nil
	case 'r':
		return "\r", 2, nil
	case 'a':
		return "\a", 2, nil
	case 'b':
		return "\b", 2, nil
	case 'f':
		return "\f", 2, nil
	case 'v':
		return "\v", 2, nil
	case 'x':
		if len(s) < 4 {
			return "", 0, fmt.Errorf("invalid escape sequence: %s", s)
		}
		b, err := strconv.ParseUint(s[2:4], 16, 8)
		if err != nil {
			return "", 0, fmt.Errorf("invalid escape sequence: \\x%s", s[2:4])
		}
		return string([]byte{byte(b)}), 4, nil
	default:
		return "", 0, fmt.Errorf("invalid escape sequence: \\%c", s[1])
	}
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func isSymbolChar(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || isDigit(c) ||
		c == '-' || c == '_' || c == '+' || c == '*' || c == '/' || c == '!' || c == '=' || c == '<' || c == '>'
}
