package main

import (
	"fmt"
	"strings"
)

// Generator emits AArch64 assembly for Mach-O. Expressions are evaluated
// with a fixed accumulator scheme: x0 is the primary register, x1 the
// secondary, and x9 a scratch register for addresses and large constants.
// Temporaries spill to the stack in 16-byte slots.
type Generator struct {
	analysis *Analysis
	layout   *typeLayout

	text    strings.Builder
	data    strings.Builder
	cstring strings.Builder

	stringCount int
	staticCount int

	// statics maps block-scope static variables to their data labels.
	statics map[*VarDecl]string
}

// GeneratorContext is the per-function state. A fresh one is created for
// every function so nothing leaks between them.
type GeneratorContext struct {
	fn       *FuncDecl
	frame    *Frame
	labels   int
	loops    stack[loopLabels]
	epilogue string
}

type loopLabels struct {
	breakLabel    string
	continueLabel string
}

func (ctx *GeneratorContext) newLabel(kind string) string {
	label := fmt.Sprintf("L%s_%s%d", ctx.fn.Name, kind, ctx.labels)
	ctx.labels++
	return label
}

// Generate produces the assembly for prog. It refuses to run unless
// analysis is present and free of errors.
func Generate(prog *Program, analysis *Analysis) (asm string, err error) {
	if analysis == nil || analysis.Errors.HasErrors() {
		return "", ErrUnanalyzed
	}
	g := &Generator{
		analysis: analysis,
		layout:   newTypeLayout(analysis),
		statics:  make(map[*VarDecl]string),
	}
	defer recoverCodegenError(&err)
	return g.generateProgram(prog), nil
}

func (g *Generator) fail(ctx *GeneratorContext, format string, args ...any) {
	name := ""
	if ctx != nil {
		name = ctx.fn.Name
	}
	panic(&CodegenError{Function: name, Message: fmt.Sprintf(format, args...)})
}

func (g *Generator) emit(format string, args ...any) {
	g.text.WriteByte('\t')
	fmt.Fprintf(&g.text, format, args...)
	g.text.WriteByte('\n')
}

func (g *Generator) label(name string) {
	g.text.WriteString(name)
	g.text.WriteString(":\n")
}

func (g *Generator) generateProgram(prog *Program) string {
	g.text.WriteString("\t.text\n")
	for _, decl := range prog.Decls {
		switch d := decl.(type) {
		case *FuncDecl:
			if d.Body != nil {
				g.generateFunction(d)
			}
		case *VarDecl:
			if isDefinition(d) {
				g.generateGlobal(d, "_"+d.Name, d.Storage != StorageStatic)
			}
		}
	}

	var out strings.Builder
	out.WriteString(g.text.String())
	if g.data.Len() > 0 {
		out.WriteString("\n\t.data\n")
		out.WriteString(g.data.String())
	}
	if g.cstring.Len() > 0 {
		out.WriteString("\n\t.section __TEXT,__cstring,cstring_literals\n")
		out.WriteString(g.cstring.String())
	}
	return out.String()
}

// =============================================================================
// FUNCTIONS
// =============================================================================

func (g *Generator) generateFunction(fn *FuncDecl) {
	frame, statics := g.layout.layoutFrame(fn)
	ctx := &GeneratorContext{fn: fn, frame: frame}
	ctx.epilogue = fmt.Sprintf("L%s_epilogue", fn.Name)

	for _, d := range statics {
		g.statics[d] = fmt.Sprintf("L%s_%s_static%d", fn.Name, d.Name, g.staticCount)
		g.staticCount++
	}

	g.text.WriteByte('\n')
	if fn.Storage != StorageStatic {
		g.emit(".globl _%s", fn.Name)
	}
	g.emit(".p2align 2")
	g.label("_" + fn.Name)
	g.emit("stp x29, x30, [sp, #-16]!")
	g.emit("mov x29, sp")
	if frame.StackSize > 0 {
		g.adjustSP("sub", alignTo(frame.StackSize, 16))
	}

	// Arguments were pushed left to right, so the last one sits just above
	// the saved frame pointer and link register.
	n := len(fn.Params)
	for i, param := range fn.Params {
		if !isScalar(param.Type) {
			g.fail(ctx, "parameter '%s' of type %s is not supported", param.Name, param.Type)
		}
		g.emit("ldr x0, [x29, #%d]", slotSize*(n-i))
		g.storeFrame(frame.Slots[param], param.Type)
	}

	g.generateItems(ctx, fn.Body.Items)

	// Falling off the end of main returns 0.
	if fn.Name == "main" && !blockReturns(fn.Body) {
		g.emit("mov x0, #0")
	}

	g.label(ctx.epilogue)
	g.emit("mov sp, x29")
	g.emit("ldp x29, x30, [sp], #16")
	if fn.Name == "main" {
		g.emit("mov x16, #1")
		g.emit("svc #0x80")
		return
	}
	// The callee owns its argument slots, padding included.
	if argSlots := n + n%2; argSlots > 0 {
		g.adjustSP("add", argSlots*slotSize)
	}
	g.emit("ret")
}

// blockReturns reports whether control can never reach the end of b.
// Loops are treated as falling through.
func blockReturns(b *Block) bool {
	if len(b.Items) == 0 {
		return false
	}
	return alwaysReturns(b.Items[len(b.Items)-1])
}

func alwaysReturns(item BlockItem) bool {
	switch s := item.(type) {
	case *ReturnStmt:
		return true
	case *IfStmt:
		return s.Else != nil && alwaysReturns(s.Then) && alwaysReturns(s.Else)
	case *CompoundStmt:
		return blockReturns(s.Block)
	}
	return false
}

// adjustSP emits `op sp, sp, #bytes`, going through x9 when the immediate
// does not fit.
func (g *Generator) adjustSP(op string, bytes int) {
	if bytes <= 4095 {
		g.emit("%s sp, sp, #%d", op, bytes)
		return
	}
	g.moveImmediate("x9", int64(bytes))
	g.emit("%s sp, sp, x9", op)
}

// =============================================================================
// STATEMENTS
// =============================================================================

func (g *Generator) generateItems(ctx *GeneratorContext, items []BlockItem) {
	for _, item := range items {
		switch it := item.(type) {
		case *VarDecl:
			g.generateLocal(ctx, it)
		case Stmt:
			g.generateStmt(ctx, it)
		}
	}
}

func (g *Generator) generateStmt(ctx *GeneratorContext, stmt Stmt) {
	switch s := stmt.(type) {
	case *ReturnStmt:
		if s.Expr != nil {
			g.generateExpr(ctx, s.Expr)
		}
		g.emit("b %s", ctx.epilogue)

	case *ExprStmt:
		g.generateExpr(ctx, s.Expr)

	case *IfStmt:
		elseLabel := ctx.newLabel("else")
		g.generateExpr(ctx, s.Cond)
		g.emit("cbz x0, %s", elseLabel)
		g.generateStmt(ctx, s.Then)
		if s.Else == nil {
			g.label(elseLabel)
			return
		}
		endLabel := ctx.newLabel("endif")
		g.emit("b %s", endLabel)
		g.label(elseLabel)
		g.generateStmt(ctx, s.Else)
		g.label(endLabel)

	case *CompoundStmt:
		g.generateItems(ctx, s.Block.Items)

	case *WhileStmt:
		condLabel := ctx.newLabel("while")
		endLabel := ctx.newLabel("endwhile")
		g.label(condLabel)
		g.generateExpr(ctx, s.Cond)
		g.emit("cbz x0, %s", endLabel)
		g.generateLoopBody(ctx, s.Body, endLabel, condLabel)
		g.emit("b %s", condLabel)
		g.label(endLabel)

	case *DoWhileStmt:
		bodyLabel := ctx.newLabel("do")
		condLabel := ctx.newLabel("docond")
		endLabel := ctx.newLabel("enddo")
		g.label(bodyLabel)
		g.generateLoopBody(ctx, s.Body, endLabel, condLabel)
		g.label(condLabel)
		g.generateExpr(ctx, s.Cond)
		g.emit("cbnz x0, %s", bodyLabel)
		g.label(endLabel)

	case *ForStmt:
		switch init := s.Init.(type) {
		case *InitDecl:
			g.generateLocal(ctx, init.Decl)
		case *InitExpr:
			if init.Expr != nil {
				g.generateExpr(ctx, init.Expr)
			}
		}
		condLabel := ctx.newLabel("for")
		postLabel := ctx.newLabel("forpost")
		endLabel := ctx.newLabel("endfor")
		g.label(condLabel)
		if s.Cond != nil {
			g.generateExpr(ctx, s.Cond)
			g.emit("cbz x0, %s", endLabel)
		}
		g.generateLoopBody(ctx, s.Body, endLabel, postLabel)
		g.label(postLabel)
		if s.Post != nil {
			g.generateExpr(ctx, s.Post)
		}
		g.emit("b %s", condLabel)
		g.label(endLabel)

	case *BreakStmt:
		if ctx.loops.Count() == 0 {
			g.fail(ctx, "break outside of a loop at %d:%d", s.Line, s.Column)
		}
		g.emit("b %s", ctx.loops.Peek().breakLabel)

	case *ContinueStmt:
		if ctx.loops.Count() == 0 {
			g.fail(ctx, "continue outside of a loop at %d:%d", s.Line, s.Column)
		}
		g.emit("b %s", ctx.loops.Peek().continueLabel)

	case *NullStmt:
	}
}

func (g *Generator) generateLoopBody(ctx *GeneratorContext, body Stmt, breakLabel, continueLabel string) {
	ctx.loops.Push(loopLabels{breakLabel: breakLabel, continueLabel: continueLabel})
	g.generateStmt(ctx, body)
	ctx.loops.Pop()
}

// generateLocal initializes an automatic variable in its frame slot.
// Static locals are emitted with the globals; extern locals need nothing.
func (g *Generator) generateLocal(ctx *GeneratorContext, d *VarDecl) {
	switch d.Storage {
	case StorageStatic:
		g.generateGlobal(d, g.statics[d], false)
		return
	case StorageExtern:
		if d.Init != nil {
			g.fail(ctx, "block-scope extern '%s' cannot have an initializer", d.Name)
		}
		return
	}
	if d.Init == nil {
		return
	}
	offset, ok := ctx.frame.Slots[d]
	if !ok {
		g.fail(ctx, "no stack slot for '%s'", d.Name)
	}

	if single, ok := d.Init.(*SingleInit); ok && isScalar(d.Type) {
		g.generateExpr(ctx, single.Expr)
		g.storeFrame(offset, d.Type)
		return
	}

	// Aggregates: clear the whole object, then store each initialized
	// element at its offset.
	g.frameAddress("x1", offset)
	for i := 0; i < g.layout.slotsFor(d.Type); i++ {
		g.emit("stp xzr, xzr, [x1], #16")
	}
	g.initializeAt(ctx, offset, d.Type, d.Init)
}

// initializeAt stores init into the object of type t at frame offset base.
func (g *Generator) initializeAt(ctx *GeneratorContext, base int, t Type, init Initializer) {
	switch init := init.(type) {
	case *SingleInit:
		if str, ok := init.Expr.(*StringLiteral); ok {
			if arr, ok := t.(*ArrayType); ok && isCharType(arr.Of) {
				for i := 0; i < len(str.Value) && i < arr.Size; i++ {
					g.moveImmediate("x0", int64(str.Value[i]))
					g.emit("strb w0, %s", g.frameOperand(base+i))
				}
				return
			}
		}
		if _, ok := t.(*StructType); ok {
			g.generateExpr(ctx, init.Expr)
			g.frameAddress("x1", base)
			g.copyBytes(g.layout.sizeOf(t))
			return
		}
		if !isScalar(t) {
			g.fail(ctx, "cannot initialize %s from a single expression", t)
		}
		g.generateExpr(ctx, init.Expr)
		g.storeFrame(base, t)

	case *CompoundInit:
		switch t := t.(type) {
		case *ArrayType:
			if len(init.Items) > t.Size {
				g.fail(ctx, "too many initializers for %s", t)
			}
			elem := g.layout.sizeOf(t.Of)
			for i, item := range init.Items {
				g.initializeAt(ctx, base+i*elem, t.Of, item)
			}
		case *StructType:
			decl := g.analysis.Structs[t]
			if len(init.Items) > len(decl.Members) {
				g.fail(ctx, "too many initializers for %s", t)
			}
			for i, item := range init.Items {
				offset, memberType, _ := g.layout.member(t, decl.Members[i].Name)
				g.initializeAt(ctx, base+offset, memberType, item)
			}
		default:
			g.fail(ctx, "compound initializer for scalar type %s", t)
		}
	}
}

// =============================================================================
// GLOBALS
// =============================================================================

func (g *Generator) generateGlobal(d *VarDecl, label string, exported bool) {
	if exported {
		fmt.Fprintf(&g.data, "\t.globl %s\n", label)
	}
	fmt.Fprintf(&g.data, "\t.p2align %d\n", log2(g.layout.alignOf(d.Type)))
	fmt.Fprintf(&g.data, "%s:\n", label)

	size := g.layout.sizeOf(d.Type)
	if d.Init == nil {
		fmt.Fprintf(&g.data, "\t.zero %d\n", size)
		return
	}
	written := g.staticInit(d, d.Type, d.Init)
	if written < size {
		fmt.Fprintf(&g.data, "\t.zero %d\n", size-written)
	}
}

func log2(n int) int {
	shift := 0
	for n > 1 {
		n >>= 1
		shift++
	}
	return shift
}

// staticInit writes the data directives for init and returns how many
// bytes it wrote.
func (g *Generator) staticInit(d *VarDecl, t Type, init Initializer) int {
	switch init := init.(type) {
	case *SingleInit:
		if str, ok := init.Expr.(*StringLiteral); ok {
			switch t := t.(type) {
			case *ArrayType:
				n := min(len(str.Value), t.Size)
				fmt.Fprintf(&g.data, "\t.ascii %s\n", asmQuote(str.Value[:n]))
				return n
			case *PointerType:
				fmt.Fprintf(&g.data, "\t.quad %s\n", g.stringLabel(str.Value))
				return 8
			}
		}
		value, ok := constantValue(init.Expr)
		if !ok || !isScalar(t) {
			panic(&CodegenError{Message: fmt.Sprintf("initializer for global '%s' is not a constant", d.Name)})
		}
		if g.layout.sizeOf(t) == 1 {
			fmt.Fprintf(&g.data, "\t.byte %d\n", uint8(value))
			return 1
		}
		fmt.Fprintf(&g.data, "\t.quad %d\n", value)
		return 8

	case *CompoundInit:
		switch t := t.(type) {
		case *ArrayType:
			if len(init.Items) > t.Size {
				panic(&CodegenError{Message: fmt.Sprintf("too many initializers for global '%s' of type %s", d.Name, t)})
			}
			elem := g.layout.sizeOf(t.Of)
			written := 0
			for _, item := range init.Items {
				n := g.staticInit(d, t.Of, item)
				if n < elem {
					fmt.Fprintf(&g.data, "\t.zero %d\n", elem-n)
				}
				written += elem
			}
			return written
		case *StructType:
			decl := g.analysis.Structs[t]
			if len(init.Items) > len(decl.Members) {
				panic(&CodegenError{Message: fmt.Sprintf("too many initializers for global '%s' of type %s", d.Name, t)})
			}
			written := 0
			for i, item := range init.Items {
				offset, memberType, _ := g.layout.member(t, decl.Members[i].Name)
				if offset > written {
					fmt.Fprintf(&g.data, "\t.zero %d\n", offset-written)
				}
				written = offset + g.staticInit(d, memberType, item)
			}
			return written
		}
		panic(&CodegenError{Message: fmt.Sprintf("compound initializer for scalar global '%s'", d.Name)})
	}
	return 0
}

// constantValue folds the constant expressions a global may be initialized
// with.
func constantValue(e Expr) (int64, bool) {
	switch e := e.(type) {
	case *ConstantExpr:
		if e.Kind == Double {
			return 0, false
		}
		return e.Int, true
	case *UnaryExpr:
		v, ok := constantValue(e.Operand)
		if !ok {
			return 0, false
		}
		switch e.Op {
		case Negate:
			return -v, true
		case Complement:
			return ^v, true
		default:
			if v == 0 {
				return 1, true
			}
			return 0, true
		}
	case *CastExpr:
		v, ok := constantValue(e.Expr)
		if !ok {
			return 0, false
		}
		if prim, isPrim := e.Target.(*PrimitiveType); isPrim {
			return truncate(v, prim.Kind), true
		}
		return v, true
	}
	return 0, false
}

func truncate(v int64, kind PrimitiveKind) int64 {
	switch kind {
	case Char, SChar:
		return int64(int8(v))
	case UChar:
		return int64(uint8(v))
	case Int:
		return int64(int32(v))
	case UInt:
		return int64(uint32(v))
	}
	return v
}

func (g *Generator) stringLabel(s string) string {
	label := fmt.Sprintf("Lstr%d", g.stringCount)
	g.stringCount++
	fmt.Fprintf(&g.cstring, "%s:\n\t.asciz %s\n", label, asmQuote(s))
	return label
}

// asmQuote renders s as an assembler string literal.
func asmQuote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c == '\n':
			sb.WriteString(`\n`)
		case c == '\t':
			sb.WriteString(`\t`)
		case c < 0x20 || c >= 0x7f:
			fmt.Fprintf(&sb, "\\%03o", c)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// =============================================================================
// EXPRESSIONS
// =============================================================================

// isSimple reports whether e can be loaded into a register directly, with
// no evaluation of its own and no stack traffic.
func (g *Generator) isSimple(e Expr) bool {
	switch e := e.(type) {
	case *ConstantExpr:
		return e.Kind != Double
	case *VarExpr:
		return true
	}
	return false
}

// loadSimple loads a simple operand into reg.
func (g *Generator) loadSimple(ctx *GeneratorContext, e Expr, reg string) {
	switch e := e.(type) {
	case *ConstantExpr:
		g.moveImmediate(reg, e.Int)
	case *VarExpr:
		g.loadVar(ctx, e, reg)
	}
}

// generateExpr evaluates e into x0.
func (g *Generator) generateExpr(ctx *GeneratorContext, expr Expr) {
	switch e := expr.(type) {
	case *ConstantExpr:
		if e.Kind == Double {
			g.fail(ctx, "floating-point constants are not supported")
		}
		g.moveImmediate("x0", e.Int)

	case *StringLiteral:
		label := g.stringLabel(e.Value)
		g.emit("adrp x0, %s@PAGE", label)
		g.emit("add x0, x0, %s@PAGEOFF", label)

	case *VarExpr:
		g.loadVar(ctx, e, "x0")

	case *UnaryExpr:
		g.generateExpr(ctx, e.Operand)
		switch e.Op {
		case Negate:
			g.emit("neg x0, x0")
		case Complement:
			g.emit("mvn x0, x0")
		case Not:
			g.emit("cmp x0, #0")
			g.emit("cset x0, eq")
		}

	case *BinaryExpr:
		g.generateBinary(ctx, e)

	case *AssignExpr:
		g.generateAssign(ctx, e)

	case *ConditionalExpr:
		elseLabel := ctx.newLabel("condelse")
		endLabel := ctx.newLabel("condend")
		g.generateExpr(ctx, e.Cond)
		g.emit("cbz x0, %s", elseLabel)
		g.generateExpr(ctx, e.Then)
		g.emit("b %s", endLabel)
		g.label(elseLabel)
		g.generateExpr(ctx, e.Else)
		g.label(endLabel)

	case *CastExpr:
		g.generateExpr(ctx, e.Expr)
		g.generateCast(ctx, e.Target)

	case *CallExpr:
		g.generateCall(ctx, e)

	case *DerefExpr, *SubscriptExpr, *DotExpr, *ArrowExpr:
		g.generateAddress(ctx, e)
		g.load(g.typeOf(ctx, e), "x0", "[x0]")

	case *AddrOfExpr:
		g.generateAddress(ctx, e.Expr)
	}
}

// generateBinary follows the accumulator scheme. Two simple operands go
// straight into x0 and x1. With one compound operand, it is evaluated first
// and the simple one is loaded into x1. With two compound operands the
// right one is evaluated first and spilled, then the left one, then the
// spill is popped into x1.
func (g *Generator) generateBinary(ctx *GeneratorContext, e *BinaryExpr) {
	if e.Op == And || e.Op == Or {
		g.generateLogical(ctx, e)
		return
	}

	lhs, rhs := "x0", "x1"
	switch lhsSimple, rhsSimple := g.isSimple(e.LHS), g.isSimple(e.RHS); {
	case lhsSimple && rhsSimple:
		g.loadSimple(ctx, e.LHS, "x0")
		g.loadSimple(ctx, e.RHS, "x1")
	case rhsSimple:
		g.generateExpr(ctx, e.LHS)
		g.loadSimple(ctx, e.RHS, "x1")
	case lhsSimple:
		g.generateExpr(ctx, e.RHS)
		g.loadSimple(ctx, e.LHS, "x1")
		lhs, rhs = "x1", "x0"
	default:
		g.generateExpr(ctx, e.RHS)
		g.push("x0")
		g.generateExpr(ctx, e.LHS)
		g.pop("x1")
	}

	lt, rt := g.typeOf(ctx, e.LHS), g.typeOf(ctx, e.RHS)
	unsigned := isUnsigned(lt) || isUnsigned(rt)

	switch e.Op {
	case Add, Sub:
		op := "add"
		if e.Op == Sub {
			op = "sub"
		}
		lelem, lptr := g.pointee(lt)
		relem, rptr := g.pointee(rt)
		switch {
		case lptr && rptr && e.Op == Sub:
			g.emit("sub x0, %s, %s", lhs, rhs)
			if size := g.layout.sizeOf(lelem); size > 1 {
				g.moveImmediate("x9", int64(size))
				g.emit("sdiv x0, x0, x9")
			}
			return
		case lptr:
			g.scale(rhs, lelem)
		case rptr:
			g.scale(lhs, relem)
		}
		g.emit("%s x0, %s, %s", op, lhs, rhs)
	case Mul:
		g.emit("mul x0, %s, %s", lhs, rhs)
	case Div:
		if unsigned {
			g.emit("udiv x0, %s, %s", lhs, rhs)
		} else {
			g.emit("sdiv x0, %s, %s", lhs, rhs)
		}
	case Rem:
		if unsigned {
			g.emit("udiv x9, %s, %s", lhs, rhs)
		} else {
			g.emit("sdiv x9, %s, %s", lhs, rhs)
		}
		g.emit("msub x0, x9, %s, %s", rhs, lhs)
	default:
		g.emit("cmp %s, %s", lhs, rhs)
		g.emit("cset x0, %s", conditionCode(e.Op, unsigned))
	}
}

// scale multiplies an index register by the pointee size.
func (g *Generator) scale(reg string, elem Type) {
	size := g.layout.sizeOf(elem)
	if size <= 1 {
		return
	}
	g.moveImmediate("x9", int64(size))
	g.emit("mul %s, %s, x9", reg, reg)
}

func conditionCode(op BinaryOp, unsigned bool) string {
	switch op {
	case Eq:
		return "eq"
	case Ne:
		return "ne"
	}
	if unsigned {
		return map[BinaryOp]string{Lt: "lo", Le: "ls", Gt: "hi", Ge: "hs"}[op]
	}
	return map[BinaryOp]string{Lt: "lt", Le: "le", Gt: "gt", Ge: "ge"}[op]
}

// generateLogical short-circuits && and ||, producing 0 or 1.
func (g *Generator) generateLogical(ctx *GeneratorContext, e *BinaryExpr) {
	shortLabel := ctx.newLabel("short")
	endLabel := ctx.newLabel("logicend")
	branch, shortValue, fallValue := "cbz", 0, 1
	if e.Op == Or {
		branch, shortValue, fallValue = "cbnz", 1, 0
	}

	g.generateExpr(ctx, e.LHS)
	g.emit("%s x0, %s", branch, shortLabel)
	g.generateExpr(ctx, e.RHS)
	g.emit("%s x0, %s", branch, shortLabel)
	g.emit("mov x0, #%d", fallValue)
	g.emit("b %s", endLabel)
	g.label(shortLabel)
	g.emit("mov x0, #%d", shortValue)
	g.label(endLabel)
}

func (g *Generator) generateCast(ctx *GeneratorContext, target Type) {
	prim, ok := target.(*PrimitiveType)
	if !ok {
		return
	}
	switch prim.Kind {
	case Char, SChar:
		g.emit("sxtb x0, w0")
	case UChar:
		g.emit("and x0, x0, #0xff")
	case Int:
		g.emit("sxtw x0, w0")
	case UInt:
		g.emit("mov w0, w0")
	case Double:
		g.fail(ctx, "conversion to double is not supported")
	}
}

// generateAssign stores the right-hand side into the left-hand object and
// leaves the stored value in x0.
func (g *Generator) generateAssign(ctx *GeneratorContext, e *AssignExpr) {
	t := g.typeOf(ctx, e.LHS)

	if v, ok := e.LHS.(*VarExpr); ok && isScalar(t) {
		g.generateExpr(ctx, e.RHS)
		if offset, local := g.localSlot(ctx, v); local {
			g.storeFrame(offset, t)
			return
		}
		g.globalAddress(ctx, v, "x9")
		g.store(t, "x0", "[x9]")
		return
	}

	g.generateExpr(ctx, e.RHS)
	g.push("x0")
	g.generateAddress(ctx, e.LHS)
	g.emit("mov x1, x0")
	g.pop("x0")
	if _, ok := t.(*StructType); ok {
		g.copyBytes(g.layout.sizeOf(t))
		g.emit("mov x0, x1")
		return
	}
	g.store(t, "x0", "[x1]")
}

// copyBytes copies size bytes from [x0] to [x1] through x9.
func (g *Generator) copyBytes(size int) {
	offset := 0
	for ; offset+8 <= size; offset += 8 {
		g.emit("ldr x9, [x0, #%d]", offset)
		g.emit("str x9, [x1, #%d]", offset)
	}
	for ; offset < size; offset++ {
		g.emit("ldrb w9, [x0, #%d]", offset)
		g.emit("strb w9, [x1, #%d]", offset)
	}
}

// generateCall pushes a padding slot when the arity is odd, then each
// argument left to right, so the call site always pushes an even number of
// slots. The callee pops them.
func (g *Generator) generateCall(ctx *GeneratorContext, e *CallExpr) {
	sym := g.analysis.Symbol(e)
	if sym == nil {
		g.fail(ctx, "unresolved call to '%s'", e.Name)
	}
	fnType := sym.Type.(*FunctionType)
	if len(e.Args) != len(fnType.Params) {
		g.fail(ctx, "call to '%s' with %d arguments, want %d", e.Name, len(e.Args), len(fnType.Params))
	}

	if len(e.Args)%2 == 1 {
		g.emit("sub sp, sp, #16")
	}
	for _, arg := range e.Args {
		if _, ok := g.typeOf(ctx, arg).(*StructType); ok {
			g.fail(ctx, "struct argument to '%s' is not supported", e.Name)
		}
		g.generateExpr(ctx, arg)
		g.push("x0")
	}
	g.emit("bl _%s", e.Name)
}

// generateAddress computes the address of an lvalue into x0.
func (g *Generator) generateAddress(ctx *GeneratorContext, expr Expr) {
	switch e := expr.(type) {
	case *VarExpr:
		if offset, local := g.localSlot(ctx, e); local {
			g.frameAddress("x0", offset)
			return
		}
		g.globalAddress(ctx, e, "x0")

	case *DerefExpr:
		g.generateExpr(ctx, e.Expr)

	case *SubscriptExpr:
		elem, ok := g.pointee(g.typeOf(ctx, e.Array))
		if !ok {
			g.fail(ctx, "subscript of a non-array value")
		}
		if g.isSimple(e.Index) {
			g.generateExpr(ctx, e.Array)
			g.loadSimple(ctx, e.Index, "x1")
		} else {
			g.generateExpr(ctx, e.Index)
			g.push("x0")
			g.generateExpr(ctx, e.Array)
			g.pop("x1")
		}
		g.moveImmediate("x9", int64(g.layout.sizeOf(elem)))
		g.emit("madd x0, x1, x9, x0")

	case *DotExpr:
		st, ok := g.typeOf(ctx, e.Base).(*StructType)
		if !ok {
			g.fail(ctx, "member access '.%s' on a non-struct value", e.Member)
		}
		g.generateAddress(ctx, e.Base)
		g.addMemberOffset(ctx, st, e.Member)

	case *ArrowExpr:
		ptr, ok := g.typeOf(ctx, e.Base).(*PointerType)
		if !ok {
			g.fail(ctx, "member access '->%s' on a non-pointer value", e.Member)
		}
		st, ok := ptr.To.(*StructType)
		if !ok {
			g.fail(ctx, "member access '->%s' on a pointer to non-struct", e.Member)
		}
		g.generateExpr(ctx, e.Base)
		g.addMemberOffset(ctx, st, e.Member)

	case *StringLiteral:
		g.generateExpr(ctx, e)

	default:
		g.fail(ctx, "expression at %d:%d is not addressable", expr.Position().Line, expr.Position().Column)
	}
}

func (g *Generator) addMemberOffset(ctx *GeneratorContext, st *StructType, member string) {
	offset, _, ok := g.layout.member(st, member)
	if !ok {
		g.fail(ctx, "struct '%s' has no member '%s'", st.Tag, member)
	}
	if offset > 0 {
		g.emit("add x0, x0, #%d", offset)
	}
}

// =============================================================================
// VARIABLES AND MEMORY
// =============================================================================

// localSlot returns the frame offset of the variable v refers to, if it
// lives in the current frame.
func (g *Generator) localSlot(ctx *GeneratorContext, v *VarExpr) (int, bool) {
	sym := g.analysis.Symbol(v)
	if sym == nil {
		g.fail(ctx, "unresolved variable '%s'", v.Name)
	}
	offset, ok := ctx.frame.Slots[sym.Decl]
	return offset, ok
}

// globalAddress loads the address of a file-scope, static or extern
// variable into reg.
func (g *Generator) globalAddress(ctx *GeneratorContext, v *VarExpr, reg string) {
	sym := g.analysis.Symbol(v)
	decl, ok := sym.Decl.(*VarDecl)
	if !ok {
		g.fail(ctx, "no storage for '%s'", v.Name)
	}
	if label, ok := g.statics[decl]; ok {
		g.emit("adrp %s, %s@PAGE", reg, label)
		g.emit("add %s, %s, %s@PAGEOFF", reg, reg, label)
		return
	}
	if !isDefinition(decl) {
		g.emit("adrp %s, _%s@GOTPAGE", reg, v.Name)
		g.emit("ldr %s, [%s, _%s@GOTPAGEOFF]", reg, reg, v.Name)
		return
	}
	g.emit("adrp %s, _%s@PAGE", reg, v.Name)
	g.emit("add %s, %s, _%s@PAGEOFF", reg, reg, v.Name)
}

// loadVar loads the value of v into reg. Arrays and structs evaluate to
// their address.
func (g *Generator) loadVar(ctx *GeneratorContext, v *VarExpr, reg string) {
	t := g.typeOf(ctx, v)
	offset, local := g.localSlot(ctx, v)
	if local {
		if !isScalar(t) {
			g.frameAddress(reg, offset)
			return
		}
		g.load(t, reg, g.frameOperand(offset))
		return
	}
	if !isScalar(t) {
		g.globalAddress(ctx, v, reg)
		return
	}
	g.globalAddress(ctx, v, "x9")
	g.load(t, reg, "[x9]")
}

// frameOperand returns a memory operand for x29+offset, materializing the
// address in x9 when the offset is out of range for a single instruction.
func (g *Generator) frameOperand(offset int) string {
	if offset >= -256 && offset <= 255 {
		return fmt.Sprintf("[x29, #%d]", offset)
	}
	g.frameAddress("x9", offset)
	return "[x9]"
}

func (g *Generator) frameAddress(reg string, offset int) {
	switch {
	case offset < 0 && -offset <= 4095:
		g.emit("sub %s, x29, #%d", reg, -offset)
	case offset >= 0 && offset <= 4095:
		g.emit("add %s, x29, #%d", reg, offset)
	default:
		g.moveImmediate("x9", int64(offset))
		g.emit("add %s, x29, x9", reg)
	}
}

func (g *Generator) storeFrame(offset int, t Type) {
	g.store(t, "x0", g.frameOperand(offset))
}

// load reads a scalar of type t from mem into reg. Aggregates are left as
// addresses.
func (g *Generator) load(t Type, reg, mem string) {
	if !isScalar(t) {
		return
	}
	w := "w" + reg[1:]
	if prim, ok := t.(*PrimitiveType); ok {
		switch prim.Kind {
		case Char, SChar:
			g.emit("ldrsb %s, %s", reg, mem)
			return
		case UChar:
			g.emit("ldrb %s, %s", w, mem)
			return
		}
	}
	g.emit("ldr %s, %s", reg, mem)
}

func (g *Generator) store(t Type, reg, mem string) {
	if isCharType(t) {
		g.emit("strb w%s, %s", reg[1:], mem)
		return
	}
	g.emit("str %s, %s", reg, mem)
}

func (g *Generator) push(reg string) {
	g.emit("str %s, [sp, #-16]!", reg)
}

func (g *Generator) pop(reg string) {
	g.emit("ldr %s, [sp], #16", reg)
}

// moveImmediate loads a 64-bit constant, using movz/movk when it does not
// fit a single mov.
func (g *Generator) moveImmediate(reg string, v int64) {
	if v >= -65536 && v <= 65535 {
		g.emit("mov %s, #%d", reg, v)
		return
	}
	u := uint64(v)
	g.emit("movz %s, #%d", reg, u&0xffff)
	for shift := 16; shift < 64; shift += 16 {
		if chunk := (u >> shift) & 0xffff; chunk != 0 {
			g.emit("movk %s, #%d, lsl #%d", reg, chunk, shift)
		}
	}
}

// =============================================================================
// TYPES
// =============================================================================

func isScalar(t Type) bool {
	switch t.(type) {
	case *ArrayType, *StructType:
		return false
	}
	return true
}

func isCharType(t Type) bool {
	prim, ok := t.(*PrimitiveType)
	return ok && isCharKind(prim.Kind)
}

func isUnsigned(t Type) bool {
	switch t := t.(type) {
	case *PrimitiveType:
		return t.Kind == UChar || t.Kind == UInt || t.Kind == ULong
	case *PointerType:
		return true
	}
	return false
}

// pointee returns the element type of a pointer or array.
func (g *Generator) pointee(t Type) (Type, bool) {
	switch t := t.(type) {
	case *PointerType:
		if prim, ok := t.To.(*PrimitiveType); ok && prim.Kind == Void {
			return TypeChar, true
		}
		return t.To, true
	case *ArrayType:
		return t.Of, true
	}
	return nil, false
}

// rank orders the integer kinds for the result type of arithmetic.
func rank(t Type) int {
	if prim, ok := t.(*PrimitiveType); ok {
		switch prim.Kind {
		case ULong:
			return 4
		case Long:
			return 3
		case UInt:
			return 2
		}
	}
	return 1
}

// typeOf infers the type of an expression. It only does as much as code
// generation needs: member offsets, element sizes, load widths and
// signedness.
func (g *Generator) typeOf(ctx *GeneratorContext, expr Expr) Type {
	switch e := expr.(type) {
	case *ConstantExpr:
		return &PrimitiveType{Kind: e.Kind}
	case *StringLiteral:
		return &PointerType{To: TypeChar}
	case *VarExpr:
		sym := g.analysis.Symbol(e)
		if sym == nil {
			g.fail(ctx, "unresolved variable '%s'", e.Name)
		}
		return sym.Type
	case *UnaryExpr:
		if e.Op == Not {
			return TypeInt
		}
		return g.typeOf(ctx, e.Operand)
	case *BinaryExpr:
		switch e.Op {
		case Add, Sub:
			lt, rt := g.typeOf(ctx, e.LHS), g.typeOf(ctx, e.RHS)
			lelem, lptr := g.pointee(lt)
			_, rptr := g.pointee(rt)
			switch {
			case lptr && rptr:
				return TypeLong
			case lptr:
				return &PointerType{To: lelem}
			case rptr:
				return g.typeOf(ctx, &BinaryExpr{Op: e.Op, LHS: e.RHS, RHS: e.LHS})
			}
			if rank(rt) > rank(lt) {
				return rt
			}
			return lt
		case Mul, Div, Rem:
			lt, rt := g.typeOf(ctx, e.LHS), g.typeOf(ctx, e.RHS)
			if rank(rt) > rank(lt) {
				return rt
			}
			return lt
		default:
			return TypeInt
		}
	case *AssignExpr:
		return g.typeOf(ctx, e.LHS)
	case *ConditionalExpr:
		return g.typeOf(ctx, e.Then)
	case *CastExpr:
		return e.Target
	case *CallExpr:
		sym := g.analysis.Symbol(e)
		if sym == nil {
			g.fail(ctx, "unresolved call to '%s'", e.Name)
		}
		return sym.Type.(*FunctionType).Returns
	case *DerefExpr:
		elem, ok := g.pointee(g.typeOf(ctx, e.Expr))
		if !ok {
			g.fail(ctx, "dereference of a non-pointer value")
		}
		return elem
	case *AddrOfExpr:
		return &PointerType{To: g.typeOf(ctx, e.Expr)}
	case *SubscriptExpr:
		elem, ok := g.pointee(g.typeOf(ctx, e.Array))
		if !ok {
			g.fail(ctx, "subscript of a non-array value")
		}
		return elem
	case *DotExpr:
		if st, ok := g.typeOf(ctx, e.Base).(*StructType); ok {
			if _, t, found := g.layout.member(st, e.Member); found {
				return t
			}
		}
		g.fail(ctx, "no member '%s'", e.Member)
	case *ArrowExpr:
		if ptr, ok := g.typeOf(ctx, e.Base).(*PointerType); ok {
			if st, ok := ptr.To.(*StructType); ok {
				if _, t, found := g.layout.member(st, e.Member); found {
					return t
				}
			}
		}
		g.fail(ctx, "no member '%s'", e.Member)
	}
	return TypeInt
}
