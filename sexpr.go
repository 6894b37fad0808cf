package main

import (
	"strconv"
	"strings"
)

func list(head string, parts ...string) string {
	if len(parts) == 0 {
		return "(" + head + ")"
	}
	return "(" + head + " " + strings.Join(parts, " ") + ")"
}

// ProgramToSExpr renders a whole program as an s-expression.
func ProgramToSExpr(prog *Program) string {
	parts := make([]string, len(prog.Decls))
	for i, d := range prog.Decls {
		parts[i] = ToSExpr(d)
	}
	return list("program", parts...)
}

// ToSExpr converts an AST node (declaration, statement, expression,
// initializer or block) to its s-expression representation.
func ToSExpr(node any) string {
	switch n := node.(type) {
	case *VarDecl:
		var parts []string
		if n.Storage != StorageNone {
			parts = append(parts, n.Storage.String())
		}
		parts = append(parts, strconv.Quote(n.Name), n.Type.String())
		if n.Init != nil {
			parts = append(parts, ToSExpr(n.Init))
		}
		return list("decl", parts...)
	case *FuncDecl:
		var parts []string
		if n.Storage != StorageNone {
			parts = append(parts, n.Storage.String())
		}
		params := make([]string, len(n.Params))
		for i, p := range n.Params {
			params[i] = list("param", strconv.Quote(p.Name), p.Type.String())
		}
		parts = append(parts, strconv.Quote(n.Name), "("+strings.Join(params, " ")+")", n.Type.Returns.String())
		if n.Body != nil {
			parts = append(parts, ToSExpr(n.Body))
		}
		return list("func", parts...)
	case *StructDecl:
		parts := []string{strconv.Quote(n.Tag)}
		for _, m := range n.Members {
			parts = append(parts, list("member", strconv.Quote(m.Name), m.Type.String()))
		}
		return list("struct", parts...)

	case *SingleInit:
		return ToSExpr(n.Expr)
	case *CompoundInit:
		parts := make([]string, len(n.Items))
		for i, item := range n.Items {
			parts[i] = ToSExpr(item)
		}
		return list("init", parts...)

	case *Block:
		parts := make([]string, len(n.Items))
		for i, item := range n.Items {
			parts[i] = ToSExpr(item)
		}
		return list("block", parts...)
	case *ReturnStmt:
		if n.Expr == nil {
			return "(return)"
		}
		return list("return", ToSExpr(n.Expr))
	case *ExprStmt:
		return ToSExpr(n.Expr)
	case *IfStmt:
		if n.Else == nil {
			return list("if", ToSExpr(n.Cond), ToSExpr(n.Then))
		}
		return list("if", ToSExpr(n.Cond), ToSExpr(n.Then), ToSExpr(n.Else))
	case *CompoundStmt:
		return ToSExpr(n.Block)
	case *WhileStmt:
		return list("while", ToSExpr(n.Cond), ToSExpr(n.Body))
	case *DoWhileStmt:
		return list("do", ToSExpr(n.Body), ToSExpr(n.Cond))
	case *ForStmt:
		init := "_"
		switch fi := n.Init.(type) {
		case *InitDecl:
			init = ToSExpr(fi.Decl)
		case *InitExpr:
			if fi.Expr != nil {
				init = ToSExpr(fi.Expr)
			}
		}
		return list("for", init, optionalSExpr(n.Cond), optionalSExpr(n.Post), ToSExpr(n.Body))
	case *BreakStmt:
		return "(break)"
	case *ContinueStmt:
		return "(continue)"
	case *NullStmt:
		return "(null)"

	case *ConstantExpr:
		switch n.Kind {
		case Int:
			return strconv.FormatInt(n.Int, 10)
		case Double:
			return list("double", strconv.Quote(strconv.FormatFloat(n.Float, 'g', -1, 64)))
		default:
			return list(n.Kind.String(), strconv.FormatInt(n.Int, 10))
		}
	case *StringLiteral:
		return list("string", strconv.Quote(n.Value))
	case *VarExpr:
		return list("var", strconv.Quote(n.Name))
	case *UnaryExpr:
		return list("unary", strconv.Quote(n.Op.String()), ToSExpr(n.Operand))
	case *BinaryExpr:
		return list("binary", strconv.Quote(n.Op.String()), ToSExpr(n.LHS), ToSExpr(n.RHS))
	case *AssignExpr:
		return list("assign", ToSExpr(n.LHS), ToSExpr(n.RHS))
	case *ConditionalExpr:
		return list("cond", ToSExpr(n.Cond), ToSExpr(n.Then), ToSExpr(n.Else))
	case *CastExpr:
		return list("cast", n.Target.String(), ToSExpr(n.Expr))
	case *CallExpr:
		parts := []string{strconv.Quote(n.Name)}
		for _, a := range n.Args {
			parts = append(parts, ToSExpr(a))
		}
		return list("call", parts...)
	case *DerefExpr:
		return list("deref", ToSExpr(n.Expr))
	case *AddrOfExpr:
		return list("addr", ToSExpr(n.Expr))
	case *SubscriptExpr:
		return list("idx", ToSExpr(n.Array), ToSExpr(n.Index))
	case *DotExpr:
		return list("dot", ToSExpr(n.Base), strconv.Quote(n.Member))
	case *ArrowExpr:
		return list("arrow", ToSExpr(n.Base), strconv.Quote(n.Member))
	default:
		return ""
	}
}

func optionalSExpr(e Expr) string {
	if e == nil {
		return "_"
	}
	return ToSExpr(e)
}
