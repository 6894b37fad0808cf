package main

// stack is a LIFO used for nested scopes by both the analyzer and the
// code generator.
type stack[T any] struct {
	values []T
}

func (s *stack[T]) Push(value T) {
	s.values = append(s.values, value)
}

func (s *stack[T]) Pop() T {
	var zero T
	if len(s.values) == 0 {
		return zero
	}
	value := s.values[len(s.values)-1]
	s.values[len(s.values)-1] = zero
	s.values = s.values[:len(s.values)-1]
	return value
}

func (s *stack[T]) Peek() T {
	if len(s.values) == 0 {
		var zero T
		return zero
	}
	return s.values[len(s.values)-1]
}

func (s *stack[T]) Count() int {
	return len(s.values)
}

// Each walks the stack from the top (innermost) down and stops when fn
// returns false.
func (s *stack[T]) Each(fn func(T) bool) {
	for i := len(s.values) - 1; i >= 0; i-- {
		if !fn(s.values[i]) {
			return
		}
	}
}

// SymbolKind says what a name refers to.
type SymbolKind int

const (
	VariableSymbol SymbolKind = iota
	FunctionSymbol
	StructSymbol
)

func (k SymbolKind) String() string {
	switch k {
	case FunctionSymbol:
		return "function"
	case StructSymbol:
		return "struct"
	default:
		return "variable"
	}
}

// Symbol is one declared name.
type Symbol struct {
	Name string
	Kind SymbolKind
	Type Type

	// Decl is the declaring node: *VarDecl, *Param, *FuncDecl or *StructDecl.
	Decl any

	// Defined is set for functions once a body has been seen.
	Defined bool

	// Global is set for symbols declared at file scope.
	Global bool
}

type scope struct {
	symbols map[string]*Symbol
}

// SymbolTable is a stack of scopes. Variables, functions and struct tags
// share one namespace per scope. The outermost scope is the global scope
// and is never popped.
type SymbolTable struct {
	scopes stack[*scope]
}

func NewSymbolTable() *SymbolTable {
	st := &SymbolTable{}
	st.EnterScope()
	return st
}

func (st *SymbolTable) EnterScope() {
	st.scopes.Push(&scope{symbols: make(map[string]*Symbol)})
}

func (st *SymbolTable) ExitScope() {
	if st.scopes.Count() <= 1 {
		panic("symbol table: cannot exit the global scope")
	}
	st.scopes.Pop()
}

// Depth returns the number of open scopes, 1 for the global scope alone.
func (st *SymbolTable) Depth() int {
	return st.scopes.Count()
}

// Declare adds sym to the innermost scope. It reports false, leaving the
// table unchanged, when that scope already has a symbol with the same name.
func (st *SymbolTable) Declare(sym *Symbol) bool {
	current := st.scopes.Peek()
	if _, exists := current.symbols[sym.Name]; exists {
		return false
	}
	sym.Global = st.scopes.Count() == 1
	current.symbols[sym.Name] = sym
	return true
}

// Lookup finds name in the innermost scope that declares it.
func (st *SymbolTable) Lookup(name string) *Symbol {
	var found *Symbol
	st.scopes.Each(func(s *scope) bool {
		found = s.symbols[name]
		return found == nil
	})
	return found
}

// LookupCurrent finds name in the innermost scope only.
func (st *SymbolTable) LookupCurrent(name string) *Symbol {
	return st.scopes.Peek().symbols[name]
}
