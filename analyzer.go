package main

import "fmt"

// Analysis is the result of semantic analysis. The AST itself is never
// modified; everything the analyzer learns lives in side tables.
type Analysis struct {
	// Resolutions maps every *VarExpr and *CallExpr to its symbol.
	Resolutions map[Expr]*Symbol

	// Structs maps every struct type annotation to the declaration its tag
	// resolved to.
	Structs map[*StructType]*StructDecl

	Errors ErrorCollection
}

// Symbol returns the symbol a variable reference or call resolved to.
func (a *Analysis) Symbol(e Expr) *Symbol {
	return a.Resolutions[e]
}

// Analyzer checks that every name is declared exactly once per scope and
// that every reference resolves to a visible declaration of the right kind.
// It performs no type checking.
type Analyzer struct {
	Mode DiagnosticMode

	symbols  *SymbolTable
	analysis *Analysis
}

// stopAnalysis unwinds the walk after the first error in FailFast mode.
type stopAnalysis struct{}

// Analyze runs a fail-fast analysis of prog.
func Analyze(prog *Program) (*Analysis, error) {
	return (&Analyzer{}).Analyze(prog)
}

// Analyze walks prog. The returned Analysis is non-nil even when err is
// not, so callers can inspect every collected diagnostic.
func (a *Analyzer) Analyze(prog *Program) (analysis *Analysis, err error) {
	a.symbols = NewSymbolTable()
	a.analysis = &Analysis{
		Resolutions: make(map[Expr]*Symbol),
		Structs:     make(map[*StructType]*StructDecl),
	}

	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(stopAnalysis); !ok {
				panic(r)
			}
		}
		analysis = a.analysis
		err = a.analysis.Errors.Err()
	}()

	for _, decl := range prog.Decls {
		a.analyzeDecl(decl)
	}
	return a.analysis, nil
}

func (a *Analyzer) errorf(pos Pos, name, format string, args ...any) {
	a.analysis.Errors.Add(&NameError{
		Name:    name,
		Line:    pos.Line,
		Column:  pos.Column,
		Message: fmt.Sprintf(format, args...),
	})
	if a.Mode == FailFast {
		panic(stopAnalysis{})
	}
}

// =============================================================================
// DECLARATIONS
// =============================================================================

func (a *Analyzer) analyzeDecl(decl Decl) {
	switch d := decl.(type) {
	case *VarDecl:
		a.analyzeVarDecl(d)
	case *FuncDecl:
		a.analyzeFuncDecl(d)
	case *StructDecl:
		a.analyzeStructDecl(d)
	}
}

// analyzeVarDecl resolves the initializer before the name is declared, so
// `x: int = x;` in an inner scope refers to the outer x.
func (a *Analyzer) analyzeVarDecl(d *VarDecl) {
	a.resolveType(d.Type, d.Pos, false)
	if d.Init != nil {
		a.analyzeInit(d.Init)
	}

	if prev := a.symbols.LookupCurrent(d.Name); prev != nil {
		// extern declarations may be repeated and completed by one
		// definition, at file scope or inside a block. An extern with an
		// initializer is itself the definition.
		if prevDecl, ok := prev.Decl.(*VarDecl); ok && prev.Kind == VariableSymbol &&
			(prevDecl.Storage == StorageExtern || d.Storage == StorageExtern) &&
			!(isDefinition(prevDecl) && isDefinition(d)) {
			if isDefinition(d) {
				prev.Decl = d
				prev.Type = d.Type
			}
			return
		}
		a.redeclared(d.Pos, d.Name, prev)
		return
	}
	a.symbols.Declare(&Symbol{Name: d.Name, Kind: VariableSymbol, Type: d.Type, Decl: d})
}

func (a *Analyzer) analyzeFuncDecl(d *FuncDecl) {
	for _, param := range d.Params {
		a.resolveType(param.Type, param.Pos, false)
	}
	a.resolveType(d.Type.Returns, d.Pos, false)

	sym := a.symbols.LookupCurrent(d.Name)
	switch {
	case sym == nil:
		sym = &Symbol{Name: d.Name, Kind: FunctionSymbol, Type: d.Type, Decl: d}
		a.symbols.Declare(sym)
	case sym.Kind != FunctionSymbol:
		a.redeclared(d.Pos, d.Name, sym)
		return
	case sym.Defined && d.Body != nil:
		a.errorf(d.Pos, d.Name, "function '%s' is already defined", d.Name)
		return
	case len(sym.Type.(*FunctionType).Params) != len(d.Params):
		a.errorf(d.Pos, d.Name, "conflicting declarations of function '%s'", d.Name)
		return
	}
	if d.Body == nil {
		return
	}
	sym.Defined = true
	sym.Decl = d
	sym.Type = d.Type

	// Parameters and the body's top-level items share one scope.
	a.symbols.EnterScope()
	defer a.symbols.ExitScope()
	for _, param := range d.Params {
		if prev := a.symbols.LookupCurrent(param.Name); prev != nil {
			a.redeclared(param.Pos, param.Name, prev)
			continue
		}
		a.symbols.Declare(&Symbol{Name: param.Name, Kind: VariableSymbol, Type: param.Type, Decl: param})
	}
	a.analyzeItems(d.Body.Items)
}

func (a *Analyzer) analyzeStructDecl(d *StructDecl) {
	if prev := a.symbols.LookupCurrent(d.Tag); prev != nil {
		a.redeclared(d.Pos, d.Tag, prev)
		return
	}
	sym := &Symbol{Name: d.Tag, Kind: StructSymbol, Decl: d}
	a.symbols.Declare(sym)

	seen := make(map[string]bool, len(d.Members))
	for _, m := range d.Members {
		if seen[m.Name] {
			a.errorf(m.Pos, m.Name, "duplicate member '%s' in struct '%s'", m.Name, d.Tag)
			continue
		}
		seen[m.Name] = true
		a.resolveType(m.Type, m.Pos, false)
	}
	// Members may point to the struct being declared, but not contain it.
	sym.Defined = true
}

// isDefinition reports whether d allocates storage.
func isDefinition(d *VarDecl) bool {
	return d.Storage != StorageExtern || d.Init != nil
}

func (a *Analyzer) redeclared(pos Pos, name string, prev *Symbol) {
	a.errorf(pos, name, "'%s' is already declared in this scope as a %s", name, prev.Kind)
}

// resolveType binds every struct tag inside t. Behind a pointer the struct
// may still be incomplete.
func (a *Analyzer) resolveType(t Type, pos Pos, behindPointer bool) {
	switch t := t.(type) {
	case *PointerType:
		a.resolveType(t.To, pos, true)
	case *ArrayType:
		a.resolveType(t.Of, pos, behindPointer)
	case *FunctionType:
		for _, param := range t.Params {
			a.resolveType(param, pos, behindPointer)
		}
		a.resolveType(t.Returns, pos, behindPointer)
	case *StructType:
		sym := a.symbols.Lookup(t.Tag)
		if sym == nil || sym.Kind != StructSymbol {
			a.errorf(pos, t.Tag, "undefined struct '%s'", t.Tag)
			return
		}
		if !sym.Defined && !behindPointer {
			a.errorf(pos, t.Tag, "struct '%s' is incomplete here", t.Tag)
			return
		}
		a.analysis.Structs[t] = sym.Decl.(*StructDecl)
	}
}

func (a *Analyzer) analyzeInit(init Initializer) {
	switch i := init.(type) {
	case *SingleInit:
		a.analyzeExpr(i.Expr)
	case *CompoundInit:
		for _, item := range i.Items {
			a.analyzeInit(item)
		}
	}
}

// =============================================================================
// STATEMENTS
// =============================================================================

func (a *Analyzer) analyzeBlock(b *Block) {
	a.symbols.EnterScope()
	defer a.symbols.ExitScope()
	a.analyzeItems(b.Items)
}

func (a *Analyzer) analyzeItems(items []BlockItem) {
	for _, item := range items {
		switch it := item.(type) {
		case Decl:
			a.analyzeDecl(it)
		case Stmt:
			a.analyzeStmt(it)
		}
	}
}

func (a *Analyzer) analyzeStmt(stmt Stmt) {
	switch s := stmt.(type) {
	case *ReturnStmt:
		a.analyzeOptionalExpr(s.Expr)
	case *ExprStmt:
		a.analyzeExpr(s.Expr)
	case *IfStmt:
		a.analyzeExpr(s.Cond)
		a.analyzeStmt(s.Then)
		if s.Else != nil {
			a.analyzeStmt(s.Else)
		}
	case *CompoundStmt:
		a.analyzeBlock(s.Block)
	case *WhileStmt:
		a.analyzeExpr(s.Cond)
		a.analyzeStmt(s.Body)
	case *DoWhileStmt:
		a.analyzeStmt(s.Body)
		a.analyzeExpr(s.Cond)
	case *ForStmt:
		a.symbols.EnterScope()
		switch init := s.Init.(type) {
		case *InitDecl:
			a.analyzeVarDecl(init.Decl)
		case *InitExpr:
			a.analyzeOptionalExpr(init.Expr)
		}
		a.analyzeOptionalExpr(s.Cond)
		a.analyzeOptionalExpr(s.Post)
		a.analyzeStmt(s.Body)
		a.symbols.ExitScope()
	case *BreakStmt, *ContinueStmt, *NullStmt:
	}
}

// =============================================================================
// EXPRESSIONS
// =============================================================================

func (a *Analyzer) analyzeOptionalExpr(e Expr) {
	if e != nil {
		a.analyzeExpr(e)
	}
}

func (a *Analyzer) analyzeExpr(expr Expr) {
	switch e := expr.(type) {
	case *ConstantExpr, *StringLiteral:
	case *VarExpr:
		sym := a.symbols.Lookup(e.Name)
		switch {
		case sym == nil:
			a.errorf(e.Pos, e.Name, "undefined variable '%s'", e.Name)
		case sym.Kind != VariableSymbol:
			a.errorf(e.Pos, e.Name, "'%s' is a %s, not a variable", e.Name, sym.Kind)
		default:
			a.analysis.Resolutions[e] = sym
		}
	case *CallExpr:
		sym := a.symbols.Lookup(e.Name)
		switch {
		case sym == nil:
			a.errorf(e.Pos, e.Name, "undefined function '%s'", e.Name)
		case sym.Kind != FunctionSymbol:
			a.errorf(e.Pos, e.Name, "'%s' is a %s, not a function", e.Name, sym.Kind)
		default:
			a.analysis.Resolutions[e] = sym
		}
		for _, arg := range e.Args {
			a.analyzeExpr(arg)
		}
	case *UnaryExpr:
		a.analyzeExpr(e.Operand)
	case *BinaryExpr:
		a.analyzeExpr(e.LHS)
		a.analyzeExpr(e.RHS)
	case *AssignExpr:
		a.analyzeExpr(e.LHS)
		a.analyzeExpr(e.RHS)
	case *ConditionalExpr:
		a.analyzeExpr(e.Cond)
		a.analyzeExpr(e.Then)
		a.analyzeExpr(e.Else)
	case *CastExpr:
		a.resolveType(e.Target, e.Pos, false)
		a.analyzeExpr(e.Expr)
	case *DerefExpr:
		a.analyzeExpr(e.Expr)
	case *AddrOfExpr:
		a.analyzeExpr(e.Expr)
	case *SubscriptExpr:
		a.analyzeExpr(e.Array)
		a.analyzeExpr(e.Index)
	case *DotExpr:
		a.analyzeExpr(e.Base)
	case *ArrowExpr:
		a.analyzeExpr(e.Base)
	}
}
