package main

import "strconv"

// Parser builds an AST from the tokens of one Lexer. It keeps a single
// token of lookahead in cur; further lookahead goes through checkpoints.
type Parser struct {
	l   *Lexer
	cur Token

	// Mode selects fail-fast parsing (the default) or error recovery at
	// declaration and statement boundaries.
	Mode   DiagnosticMode
	Errors ErrorCollection
}

// checkpoint captures the full cursor so a speculative parse can be undone.
type checkpoint struct {
	lex lexerState
	cur Token
}

// NewParser creates a parser and primes it with the first token.
func NewParser(l *Lexer) *Parser {
	p := &Parser{l: l}
	p.next()
	return p
}

// ParseProgram parses a complete source file, stopping at the first
// syntax error.
func ParseProgram(l *Lexer) (*Program, error) {
	return NewParser(l).ParseProgram()
}

// ParseExpression parses input that consists of exactly one expression.
func ParseExpression(l *Lexer) (expr Expr, err error) {
	p := NewParser(l)
	defer p.recoverSyntaxError(&err)
	expr = p.parseExpression()
	p.expect(EOF)
	return expr, nil
}

func (p *Parser) next() {
	p.cur = p.l.NextToken()
}

// peek returns the token after cur without consuming anything.
func (p *Parser) peek() Token {
	saved := p.l.save()
	tok := p.l.NextToken()
	p.l.restore(saved)
	return tok
}

func (p *Parser) checkpoint() checkpoint {
	return checkpoint{lex: p.l.save(), cur: p.cur}
}

func (p *Parser) restore(cp checkpoint) {
	p.l.restore(cp.lex)
	p.cur = cp.cur
}

// fail aborts the current parse with a SyntaxError at the current token.
func (p *Parser) fail(expected string) {
	panic(&SyntaxError{
		Expected: expected,
		Actual:   p.cur,
		Line:     p.cur.Line,
		Column:   p.cur.Column,
	})
}

// expect consumes the current token if it has type tt and fails otherwise.
func (p *Parser) expect(tt TokenType) Token {
	if p.cur.Type != tt {
		p.fail(describeTokenType(tt))
	}
	tok := p.cur
	p.next()
	return tok
}

// recoverSyntaxError turns a SyntaxError panic into an error return. Any
// other panic is re-raised.
func (p *Parser) recoverSyntaxError(err *error) {
	if r := recover(); r != nil {
		syntaxErr, ok := r.(*SyntaxError)
		if !ok {
			panic(r)
		}
		*err = syntaxErr
	}
}

// try runs fn and reports whether it completed without a syntax error.
func (p *Parser) try(fn func()) (err error) {
	defer p.recoverSyntaxError(&err)
	fn()
	return nil
}

var keywordSpelling = func() map[TokenType]string {
	m := make(map[TokenType]string, len(keywords))
	for spelling, tt := range keywords {
		m[tt] = spelling
	}
	return m
}()

func describeTokenType(tt TokenType) string {
	switch tt {
	case IDENT:
		return "identifier"
	case INT:
		return "integer literal"
	case EOF:
		return "end of input"
	}
	if spelling, ok := keywordSpelling[tt]; ok {
		return "'" + spelling + "'"
	}
	return "'" + string(tt) + "'"
}

func tokPos(tok Token) Pos {
	return Pos{Line: tok.Line, Column: tok.Column}
}

// =============================================================================
// DECLARATIONS
// =============================================================================

// ParseProgram parses declarations until end of input. In Accumulate mode
// it skips past each malformed declaration and keeps going; the returned
// error then joins every SyntaxError found.
func (p *Parser) ParseProgram() (*Program, error) {
	prog := &Program{}
	for p.cur.Type != EOF {
		var decl Decl
		err := p.try(func() { decl = p.parseTopLevelDecl() })
		if err != nil {
			p.Errors.Add(err)
			if p.Mode == FailFast {
				return nil, err
			}
			p.synchronize(true)
			continue
		}
		prog.Decls = append(prog.Decls, decl)
	}
	if p.Errors.HasErrors() {
		return prog, p.Errors.Err()
	}
	return prog, nil
}

// synchronize skips to just past the next ';', or to the next '}'. At top
// level the '}' is consumed too.
func (p *Parser) synchronize(topLevel bool) {
	for p.cur.Type != EOF {
		switch p.cur.Type {
		case SEMICOLON:
			p.next()
			return
		case RBRACE:
			if topLevel {
				p.next()
			}
			return
		}
		p.next()
	}
}

func (p *Parser) parseStorageClass() StorageClass {
	switch p.cur.Type {
	case STATIC:
		p.next()
		return StorageStatic
	case EXTERN:
		p.next()
		return StorageExtern
	}
	return StorageNone
}

func (p *Parser) parseTopLevelDecl() Decl {
	storage := p.parseStorageClass()
	if p.cur.Type == STRUCT && storage == StorageNone {
		return p.parseStructDecl()
	}
	if p.cur.Type == IDENT {
		switch p.peek().Type {
		case COLONCOLON:
			return p.parseFunctionDecl(storage, true)
		case COLON, DECLARE:
			return p.parseVarDecl(storage)
		}
	}
	p.fail("declaration")
	return nil
}

// isLocalDeclStart reports whether the current token begins a declaration
// inside a block.
func (p *Parser) isLocalDeclStart() bool {
	switch p.cur.Type {
	case STATIC, EXTERN, STRUCT:
		return true
	case IDENT:
		switch p.peek().Type {
		case COLON, DECLARE, COLONCOLON:
			return true
		}
	}
	return false
}

// parseLocalDecl parses a declaration inside a block. Functions may be
// declared there but not defined.
func (p *Parser) parseLocalDecl() Decl {
	storage := p.parseStorageClass()
	if p.cur.Type == STRUCT && storage == StorageNone {
		return p.parseStructDecl()
	}
	if p.cur.Type == IDENT && p.peek().Type == COLONCOLON {
		return p.parseFunctionDecl(storage, false)
	}
	if p.cur.Type != IDENT {
		p.fail("identifier")
	}
	return p.parseVarDecl(storage)
}

// parseFunctionDecl parses `name :: (p: T, ...) R` followed by a body or ';'.
func (p *Parser) parseFunctionDecl(storage StorageClass, allowBody bool) *FuncDecl {
	nameTok := p.expect(IDENT)
	p.expect(COLONCOLON)
	p.expect(LPAREN)

	var params []*Param
	if p.cur.Type != RPAREN {
		for {
			paramTok := p.expect(IDENT)
			p.expect(COLON)
			params = append(params, &Param{
				Pos:  tokPos(paramTok),
				Name: paramTok.Literal,
				Type: p.parseType(),
			})
			if p.cur.Type != COMMA {
				break
			}
			p.next()
		}
	}
	p.expect(RPAREN)

	fnType := &FunctionType{Returns: p.parseType()}
	for _, param := range params {
		fnType.Params = append(fnType.Params, param.Type)
	}

	decl := &FuncDecl{
		Pos:     tokPos(nameTok),
		Name:    nameTok.Literal,
		Params:  params,
		Type:    fnType,
		Storage: storage,
	}
	if allowBody && p.cur.Type == LBRACE {
		decl.Body = p.parseBlock()
	} else {
		p.expect(SEMICOLON)
	}
	return decl
}

// parseVarDecl parses `name: T;`, `name: T = init;` or `name := expr;`.
func (p *Parser) parseVarDecl(storage StorageClass) *VarDecl {
	nameTok := p.expect(IDENT)
	decl := &VarDecl{Pos: tokPos(nameTok), Name: nameTok.Literal, Storage: storage}

	if p.cur.Type == DECLARE {
		p.next()
		expr := p.parseAssignment()
		decl.Type = inferType(expr)
		decl.Init = &SingleInit{Expr: expr}
	} else {
		p.expect(COLON)
		decl.Type = p.parseType()
		if p.cur.Type == ASSIGN {
			p.next()
			decl.Init = p.parseInitializer()
		}
	}
	p.expect(SEMICOLON)
	return decl
}

// inferType picks the declared type for `name := expr`. Anything that is
// not obviously typed from its syntax is an int.
func inferType(expr Expr) Type {
	switch e := expr.(type) {
	case *ConstantExpr:
		return &PrimitiveType{Kind: e.Kind}
	case *StringLiteral:
		return &PointerType{To: &PrimitiveType{Kind: Char}}
	case *CastExpr:
		return e.Target
	default:
		return &PrimitiveType{Kind: Int}
	}
}

func (p *Parser) parseInitializer() Initializer {
	if p.cur.Type != LBRACE {
		return &SingleInit{Expr: p.parseAssignment()}
	}
	init := &CompoundInit{Pos: tokPos(p.expect(LBRACE))}
	for p.cur.Type != RBRACE {
		init.Items = append(init.Items, p.parseInitializer())
		if p.cur.Type != COMMA {
			break
		}
		p.next()
	}
	p.expect(RBRACE)
	return init
}

// parseStructDecl parses `struct Tag { m: T; ... }` with an optional
// trailing ';'.
func (p *Parser) parseStructDecl() *StructDecl {
	structTok := p.expect(STRUCT)
	tagTok := p.expect(IDENT)
	decl := &StructDecl{Pos: tokPos(structTok), Tag: tagTok.Literal}

	p.expect(LBRACE)
	for p.cur.Type != RBRACE {
		memberTok := p.expect(IDENT)
		p.expect(COLON)
		decl.Members = append(decl.Members, &MemberDecl{
			Pos:  tokPos(memberTok),
			Name: memberTok.Literal,
			Type: p.parseType(),
		})
		p.expect(SEMICOLON)
	}
	p.expect(RBRACE)
	if p.cur.Type == SEMICOLON {
		p.next()
	}
	return decl
}

// =============================================================================
// TYPES
// =============================================================================

// isTypeStart reports whether the current token can begin a type.
func (p *Parser) isTypeStart() bool {
	switch p.cur.Type {
	case INT_T, CHAR_T, SIGNED, UNSIGNED, LONG, DOUBLE, VOID, STRUCT, ASTERISK, LBRACKET:
		return true
	}
	return false
}

// parseType parses the prefix type grammar: `*T`, `[N]T`, `struct Tag` and
// the primitive type keywords.
func (p *Parser) parseType() Type {
	switch p.cur.Type {
	case ASTERISK:
		p.next()
		return &PointerType{To: p.parseType()}
	case LBRACKET:
		p.next()
		size, err := strconv.Atoi(p.cur.Literal)
		if p.cur.Type != INT || err != nil || size <= 0 {
			p.fail("positive array size")
		}
		p.next()
		p.expect(RBRACKET)
		return &ArrayType{Of: p.parseType(), Size: size}
	case STRUCT:
		p.next()
		return &StructType{Tag: p.expect(IDENT).Literal}
	case VOID:
		p.next()
		return &PrimitiveType{Kind: Void}
	case CHAR_T:
		p.next()
		return &PrimitiveType{Kind: Char}
	case INT_T:
		p.next()
		return &PrimitiveType{Kind: Int}
	case DOUBLE:
		p.next()
		return &PrimitiveType{Kind: Double}
	case LONG:
		p.next()
		p.skipOptional(INT_T)
		return &PrimitiveType{Kind: Long}
	case SIGNED:
		p.next()
		switch p.cur.Type {
		case CHAR_T:
			p.next()
			return &PrimitiveType{Kind: SChar}
		case LONG:
			p.next()
			p.skipOptional(INT_T)
			return &PrimitiveType{Kind: Long}
		}
		p.skipOptional(INT_T)
		return &PrimitiveType{Kind: Int}
	case UNSIGNED:
		p.next()
		switch p.cur.Type {
		case CHAR_T:
			p.next()
			return &PrimitiveType{Kind: UChar}
		case LONG:
			p.next()
			p.skipOptional(INT_T)
			return &PrimitiveType{Kind: ULong}
		}
		p.skipOptional(INT_T)
		return &PrimitiveType{Kind: UInt}
	}
	p.fail("type")
	return nil
}

func (p *Parser) skipOptional(tt TokenType) {
	if p.cur.Type == tt {
		p.next()
	}
}

// =============================================================================
// STATEMENTS
// =============================================================================

func (p *Parser) parseBlock() *Block {
	block := &Block{Pos: tokPos(p.expect(LBRACE))}
	for p.cur.Type != RBRACE && p.cur.Type != EOF {
		var item BlockItem
		if p.Mode == FailFast {
			item = p.parseBlockItem()
		} else if err := p.try(func() { item = p.parseBlockItem() }); err != nil {
			p.Errors.Add(err)
			p.synchronize(false)
			continue
		}
		block.Items = append(block.Items, item)
	}
	p.expect(RBRACE)
	return block
}

func (p *Parser) parseBlockItem() BlockItem {
	if p.isLocalDeclStart() {
		return p.parseLocalDecl()
	}
	return p.parseStatement()
}

func (p *Parser) parseStatement() Stmt {
	tok := p.cur
	pos := tokPos(tok)

	switch tok.Type {
	case RETURN:
		p.next()
		stmt := &ReturnStmt{Pos: pos}
		if p.cur.Type != SEMICOLON {
			stmt.Expr = p.parseExpression()
		}
		p.expect(SEMICOLON)
		return stmt

	case IF:
		p.next()
		p.expect(LPAREN)
		stmt := &IfStmt{Pos: pos, Cond: p.parseExpression()}
		p.expect(RPAREN)
		stmt.Then = p.parseStatement()
		if p.cur.Type == ELSE {
			p.next()
			stmt.Else = p.parseStatement()
		}
		return stmt

	case WHILE:
		p.next()
		p.expect(LPAREN)
		stmt := &WhileStmt{Pos: pos, Cond: p.parseExpression()}
		p.expect(RPAREN)
		stmt.Body = p.parseStatement()
		return stmt

	case DO:
		p.next()
		stmt := &DoWhileStmt{Pos: pos, Body: p.parseStatement()}
		p.expect(WHILE)
		p.expect(LPAREN)
		stmt.Cond = p.parseExpression()
		p.expect(RPAREN)
		p.expect(SEMICOLON)
		return stmt

	case FOR:
		return p.parseForStatement()

	case BREAK:
		p.next()
		p.expect(SEMICOLON)
		return &BreakStmt{Pos: pos}

	case CONTINUE:
		p.next()
		p.expect(SEMICOLON)
		return &ContinueStmt{Pos: pos}

	case LBRACE:
		return &CompoundStmt{Pos: pos, Block: p.parseBlock()}

	case SEMICOLON:
		p.next()
		return &NullStmt{Pos: pos}

	default:
		stmt := &ExprStmt{Pos: pos, Expr: p.parseExpression()}
		p.expect(SEMICOLON)
		return stmt
	}
}

func (p *Parser) parseForStatement() Stmt {
	stmt := &ForStmt{Pos: tokPos(p.expect(FOR))}
	p.expect(LPAREN)

	if p.cur.Type == IDENT && (p.peek().Type == COLON || p.peek().Type == DECLARE) {
		stmt.Init = &InitDecl{Decl: p.parseVarDecl(StorageNone)}
	} else {
		init := &InitExpr{}
		if p.cur.Type != SEMICOLON {
			init.Expr = p.parseExpression()
		}
		p.expect(SEMICOLON)
		stmt.Init = init
	}

	if p.cur.Type != SEMICOLON {
		stmt.Cond = p.parseExpression()
	}
	p.expect(SEMICOLON)
	if p.cur.Type != RPAREN {
		stmt.Post = p.parseExpression()
	}
	p.expect(RPAREN)
	stmt.Body = p.parseStatement()
	return stmt
}
