package main

import (
	"strconv"
	"strings"
)

// Pos is the source position of a node's first token.
type Pos struct {
	Line   int
	Column int
}

// Position returns the node position. Embedding Pos gives every node this
// method.
func (p Pos) Position() Pos { return p }

// =============================================================================
// TYPES
// =============================================================================

// Type is one of *PrimitiveType, *PointerType, *ArrayType, *StructType or
// *FunctionType.
type Type interface {
	isType()
	String() string
}

// PrimitiveKind enumerates the built-in scalar types.
type PrimitiveKind int

const (
	Char PrimitiveKind = iota
	SChar
	UChar
	Int
	UInt
	Long
	ULong
	Double
	Void
)

var primitiveNames = [...]string{
	Char:   "char",
	SChar:  "schar",
	UChar:  "uchar",
	Int:    "int",
	UInt:   "uint",
	Long:   "long",
	ULong:  "ulong",
	Double: "double",
	Void:   "void",
}

func (k PrimitiveKind) String() string { return primitiveNames[k] }

type PrimitiveType struct {
	Kind PrimitiveKind
}

type PointerType struct {
	To Type
}

type ArrayType struct {
	Of   Type
	Size int
}

type StructType struct {
	Tag string
}

type FunctionType struct {
	Params  []Type
	Returns Type
}

func (*PrimitiveType) isType() {}
func (*PointerType) isType()   {}
func (*ArrayType) isType()     {}
func (*StructType) isType()    {}
func (*FunctionType) isType()  {}

func (t *PrimitiveType) String() string { return t.Kind.String() }
func (t *PointerType) String() string   { return "(ptr " + t.To.String() + ")" }
func (t *ArrayType) String() string {
	return "(array " + strconv.Itoa(t.Size) + " " + t.Of.String() + ")"
}
func (t *StructType) String() string { return "(struct " + strconv.Quote(t.Tag) + ")" }
func (t *FunctionType) String() string {
	parts := make([]string, len(t.Params))
	for i, p := range t.Params {
		parts[i] = p.String()
	}
	return "(fn (" + strings.Join(parts, " ") + ") " + t.Returns.String() + ")"
}

// Shared instances for the common primitive types.
var (
	TypeInt  = &PrimitiveType{Kind: Int}
	TypeChar = &PrimitiveType{Kind: Char}
	TypeLong = &PrimitiveType{Kind: Long}
	TypeVoid = &PrimitiveType{Kind: Void}
)

// =============================================================================
// DECLARATIONS
// =============================================================================

// StorageClass is the optional static/extern prefix of a declaration.
type StorageClass int

const (
	StorageNone StorageClass = iota
	StorageStatic
	StorageExtern
)

func (s StorageClass) String() string {
	switch s {
	case StorageStatic:
		return "static"
	case StorageExtern:
		return "extern"
	default:
		return ""
	}
}

// Program is the root of the AST: the top-level declarations of one source
// file, in source order.
type Program struct {
	Decls []Decl
}

// Decl is one of *VarDecl, *FuncDecl or *StructDecl.
type Decl interface {
	BlockItem
	isDecl()
	DeclName() string
}

type VarDecl struct {
	Pos
	Name    string
	Type    Type
	Init    Initializer // nil when absent
	Storage StorageClass
}

type Param struct {
	Pos
	Name string
	Type Type
}

type FuncDecl struct {
	Pos
	Name    string
	Params  []*Param
	Body    *Block // nil for a declaration without definition
	Type    *FunctionType
	Storage StorageClass
}

type MemberDecl struct {
	Pos
	Name string
	Type Type
}

type StructDecl struct {
	Pos
	Tag     string
	Members []*MemberDecl
}

func (*VarDecl) isDecl()    {}
func (*FuncDecl) isDecl()   {}
func (*StructDecl) isDecl() {}

func (d *VarDecl) DeclName() string    { return d.Name }
func (d *FuncDecl) DeclName() string   { return d.Name }
func (d *StructDecl) DeclName() string { return d.Tag }

// Initializer is *SingleInit or *CompoundInit.
type Initializer interface {
	isInitializer()
}

type SingleInit struct {
	Expr Expr
}

type CompoundInit struct {
	Pos
	Items []Initializer
}

func (*SingleInit) isInitializer()   {}
func (*CompoundInit) isInitializer() {}

// =============================================================================
// STATEMENTS
// =============================================================================

// BlockItem is either a Stmt or a Decl.
type BlockItem interface {
	Position() Pos
	isBlockItem()
}

// Block is an ordered sequence of block items forming one lexical scope.
type Block struct {
	Pos
	Items []BlockItem
}

type Stmt interface {
	BlockItem
	isStmt()
}

type ReturnStmt struct {
	Pos
	Expr Expr // nil for a bare return
}

type ExprStmt struct {
	Pos
	Expr Expr
}

type IfStmt struct {
	Pos
	Cond Expr
	Then Stmt
	Else Stmt // nil when absent
}

type CompoundStmt struct {
	Pos
	Block *Block
}

type WhileStmt struct {
	Pos
	Cond Expr
	Body Stmt
}

type DoWhileStmt struct {
	Pos
	Body Stmt
	Cond Expr
}

type ForStmt struct {
	Pos
	Init ForInit
	Cond Expr // nil when absent
	Post Expr // nil when absent
	Body Stmt
}

type BreakStmt struct{ Pos }
type ContinueStmt struct{ Pos }
type NullStmt struct{ Pos }

func (*ReturnStmt) isStmt()   {}
func (*ExprStmt) isStmt()     {}
func (*IfStmt) isStmt()       {}
func (*CompoundStmt) isStmt() {}
func (*WhileStmt) isStmt()    {}
func (*DoWhileStmt) isStmt()  {}
func (*ForStmt) isStmt()      {}
func (*BreakStmt) isStmt()    {}
func (*ContinueStmt) isStmt() {}
func (*NullStmt) isStmt()     {}

func (*ReturnStmt) isBlockItem()   {}
func (*ExprStmt) isBlockItem()     {}
func (*IfStmt) isBlockItem()       {}
func (*CompoundStmt) isBlockItem() {}
func (*WhileStmt) isBlockItem()    {}
func (*DoWhileStmt) isBlockItem()  {}
func (*ForStmt) isBlockItem()      {}
func (*BreakStmt) isBlockItem()    {}
func (*ContinueStmt) isBlockItem() {}
func (*NullStmt) isBlockItem()     {}
func (*VarDecl) isBlockItem()      {}
func (*FuncDecl) isBlockItem()     {}
func (*StructDecl) isBlockItem()   {}

// ForInit is *InitDecl or *InitExpr.
type ForInit interface {
	isForInit()
}

type InitDecl struct {
	Decl *VarDecl
}

type InitExpr struct {
	Expr Expr // nil when the clause is empty
}

func (*InitDecl) isForInit() {}
func (*InitExpr) isForInit() {}

// =============================================================================
// EXPRESSIONS
// =============================================================================

type Expr interface {
	Position() Pos
	isExpr()
}

type UnaryOp int

const (
	Negate UnaryOp = iota
	Complement
	Not
)

var unaryOpSymbols = [...]string{Negate: "-", Complement: "~", Not: "!"}

func (op UnaryOp) String() string { return unaryOpSymbols[op] }

type BinaryOp int

const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	Rem
	And
	Or
	Eq
	Ne
	Lt
	Le
	Gt
	Ge
)

var binaryOpSymbols = [...]string{
	Add: "+", Sub: "-", Mul: "*", Div: "/", Rem: "%",
	And: "&&", Or: "||",
	Eq: "==", Ne: "!=", Lt: "<", Le: "<=", Gt: ">", Ge: ">=",
}

func (op BinaryOp) String() string { return binaryOpSymbols[op] }

// ConstantExpr is a typed numeric or character literal. Integer kinds use
// Int; Double uses Float.
type ConstantExpr struct {
	Pos
	Kind  PrimitiveKind
	Int   int64
	Float float64
}

type StringLiteral struct {
	Pos
	Value string
}

type VarExpr struct {
	Pos
	Name string
}

type UnaryExpr struct {
	Pos
	Op      UnaryOp
	Operand Expr
}

type BinaryExpr struct {
	Pos
	Op  BinaryOp
	LHS Expr
	RHS Expr
}

type AssignExpr struct {
	Pos
	LHS Expr
	RHS Expr
}

type ConditionalExpr struct {
	Pos
	Cond Expr
	Then Expr
	Else Expr
}

type CastExpr struct {
	Pos
	Target Type
	Expr   Expr
}

type CallExpr struct {
	Pos
	Name string
	Args []Expr
}

type DerefExpr struct {
	Pos
	Expr Expr
}

type AddrOfExpr struct {
	Pos
	Expr Expr
}

type SubscriptExpr struct {
	Pos
	Array Expr
	Index Expr
}

type DotExpr struct {
	Pos
	Base   Expr
	Member string
}

type ArrowExpr struct {
	Pos
	Base   Expr
	Member string
}

func (*ConstantExpr) isExpr()    {}
func (*StringLiteral) isExpr()   {}
func (*VarExpr) isExpr()         {}
func (*UnaryExpr) isExpr()       {}
func (*BinaryExpr) isExpr()      {}
func (*AssignExpr) isExpr()      {}
func (*ConditionalExpr) isExpr() {}
func (*CastExpr) isExpr()        {}
func (*CallExpr) isExpr()        {}
func (*DerefExpr) isExpr()       {}
func (*AddrOfExpr) isExpr()      {}
func (*SubscriptExpr) isExpr()   {}
func (*DotExpr) isExpr()         {}
func (*ArrowExpr) isExpr()       {}
