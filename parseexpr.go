package main

import (
	"math"
	"strconv"
	"strings"
)

// precedence returns the binding power of a binary operator token, or 0
// when the token is not a binary operator. Higher binds tighter.
func precedence(tokenType TokenType) int {
	switch tokenType {
	case OR:
		return 1
	case AND:
		return 2
	case EQ, NOT_EQ:
		return 3
	case LT, GT, LE, GE:
		return 4
	case PLUS, MINUS:
		return 5
	case ASTERISK, SLASH, PERCENT:
		return 6
	default:
		return 0
	}
}

var binaryOps = map[TokenType]BinaryOp{
	OR:       Or,
	AND:      And,
	EQ:       Eq,
	NOT_EQ:   Ne,
	LT:       Lt,
	GT:       Gt,
	LE:       Le,
	GE:       Ge,
	PLUS:     Add,
	MINUS:    Sub,
	ASTERISK: Mul,
	SLASH:    Div,
	PERCENT:  Rem,
}

// parseExpression is the entry point for a full expression.
func (p *Parser) parseExpression() Expr {
	return p.parseAssignment()
}

// parseAssignment handles `lhs = rhs`, which is right-associative.
func (p *Parser) parseAssignment() Expr {
	lhs := p.parseConditional()
	if p.cur.Type != ASSIGN {
		return lhs
	}
	if !isAssignable(lhs) {
		p.fail("assignable expression before '='")
	}
	p.next()
	return &AssignExpr{Pos: lhs.Position(), LHS: lhs, RHS: p.parseAssignment()}
}

func isAssignable(e Expr) bool {
	switch e.(type) {
	case *VarExpr, *DerefExpr, *SubscriptExpr, *DotExpr, *ArrowExpr:
		return true
	}
	return false
}

// parseConditional handles `c ? a : b`, which is right-associative.
func (p *Parser) parseConditional() Expr {
	cond := p.parseBinary(1)
	if p.cur.Type != QUESTION {
		return cond
	}
	p.next()
	then := p.parseExpression()
	p.expect(COLON)
	return &ConditionalExpr{Pos: cond.Position(), Cond: cond, Then: then, Else: p.parseConditional()}
}

// parseBinary implements precedence climbing over the left-associative
// binary operators.
func (p *Parser) parseBinary(minPrec int) Expr {
	left := p.parseUnary()
	for {
		prec := precedence(p.cur.Type)
		if prec == 0 || prec < minPrec {
			return left
		}
		op := binaryOps[p.cur.Type]
		p.next()
		right := p.parseBinary(prec + 1)
		left = &BinaryExpr{Pos: left.Position(), Op: op, LHS: left, RHS: right}
	}
}

func (p *Parser) parseUnary() Expr {
	tok := p.cur
	pos := tokPos(tok)

	switch tok.Type {
	case MINUS:
		p.next()
		return &UnaryExpr{Pos: pos, Op: Negate, Operand: p.parseUnary()}
	case TILDE:
		p.next()
		return &UnaryExpr{Pos: pos, Op: Complement, Operand: p.parseUnary()}
	case BANG:
		p.next()
		return &UnaryExpr{Pos: pos, Op: Not, Operand: p.parseUnary()}
	case PLUS:
		p.next()
		return p.parseUnary()
	case ASTERISK:
		p.next()
		return &DerefExpr{Pos: pos, Expr: p.parseUnary()}
	case AMPERSAND:
		p.next()
		return &AddrOfExpr{Pos: pos, Expr: p.parseUnary()}
	case LPAREN:
		if cast := p.tryParseCast(); cast != nil {
			return cast
		}
	}
	return p.parsePostfix()
}

// tryParseCast speculatively parses `(T) expr`. When the parenthesized
// tokens do not form a type the parser is rewound and nil is returned.
func (p *Parser) tryParseCast() Expr {
	cp := p.checkpoint()
	pos := tokPos(p.cur)
	p.next()
	if !p.isTypeStart() {
		p.restore(cp)
		return nil
	}

	var target Type
	err := p.try(func() {
		target = p.parseType()
		p.expect(RPAREN)
	})
	if err != nil {
		p.restore(cp)
		return nil
	}
	return &CastExpr{Pos: pos, Target: target, Expr: p.parseUnary()}
}

func (p *Parser) parsePostfix() Expr {
	expr := p.parsePrimary()
	for {
		switch p.cur.Type {
		case LBRACKET:
			p.next()
			index := p.parseExpression()
			p.expect(RBRACKET)
			expr = &SubscriptExpr{Pos: expr.Position(), Array: expr, Index: index}
		case LPAREN:
			callee, ok := expr.(*VarExpr)
			if !ok {
				p.fail("function name before '('")
			}
			p.next()
			call := &CallExpr{Pos: callee.Pos, Name: callee.Name}
			if p.cur.Type != RPAREN {
				for {
					call.Args = append(call.Args, p.parseAssignment())
					if p.cur.Type != COMMA {
						break
					}
					p.next()
				}
			}
			p.expect(RPAREN)
			expr = call
		case DOT:
			p.next()
			member := p.expect(IDENT)
			expr = &DotExpr{Pos: expr.Position(), Base: expr, Member: member.Literal}
		case ARROW:
			p.next()
			member := p.expect(IDENT)
			expr = &ArrowExpr{Pos: expr.Position(), Base: expr, Member: member.Literal}
		default:
			return expr
		}
	}
}

func (p *Parser) parsePrimary() Expr {
	tok := p.cur
	pos := tokPos(tok)

	switch tok.Type {
	case INT:
		kind, value, ok := parseIntLiteral(tok.Literal)
		if !ok {
			p.fail("integer literal in range")
		}
		p.next()
		return &ConstantExpr{Pos: pos, Kind: kind, Int: value}

	case FLOAT:
		value, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.fail("floating-point literal in range")
		}
		p.next()
		return &ConstantExpr{Pos: pos, Kind: Double, Float: value}

	case CHAR:
		p.next()
		// Character constants have type int.
		return &ConstantExpr{Pos: pos, Kind: Int, Int: int64(tok.Literal[0])}

	case STRING:
		// Adjacent string literals are concatenated.
		var sb strings.Builder
		for p.cur.Type == STRING {
			sb.WriteString(p.cur.Literal)
			p.next()
		}
		return &StringLiteral{Pos: pos, Value: sb.String()}

	case IDENT:
		p.next()
		return &VarExpr{Pos: pos, Name: tok.Literal}

	case LPAREN:
		p.next()
		expr := p.parseExpression()
		p.expect(RPAREN)
		return expr
	}

	p.fail("expression")
	return nil
}

// parseIntLiteral splits the digits from their u/l suffixes and picks the
// constant's kind. An unsuffixed literal that does not fit in 32 bits
// becomes a long.
func parseIntLiteral(lit string) (PrimitiveKind, int64, bool) {
	digits := strings.TrimRight(lit, "uUlL")
	suffix := strings.ToLower(lit[len(digits):])

	value, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return Int, 0, false
	}

	var kind PrimitiveKind
	switch suffix {
	case "":
		kind = Int
		if value > math.MaxInt32 {
			kind = Long
		}
	case "u":
		kind = UInt
		if value > math.MaxUint32 {
			kind = ULong
		}
	case "l":
		kind = Long
	case "ul", "lu":
		kind = ULong
	default:
		return Int, 0, false
	}
	if kind != ULong && value > math.MaxInt64 {
		return Int, 0, false
	}
	return kind, int64(value), true
}
