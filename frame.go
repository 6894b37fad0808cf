package main

import (
	"fmt"
	"strconv"
	"strings"
)

// slotSize is the granularity of the stack frame. Every parameter and local
// occupies at least one slot; arrays and structs take as many as they need.
const slotSize = 16

func alignTo(n, align int) int {
	return (n + align - 1) / align * align
}

// typeLayout computes sizes and member offsets. Scalars other than the char
// types are 8 bytes wide.
type typeLayout struct {
	structs map[*StructType]*StructDecl
	cache   map[*StructDecl]*structLayout
}

type structLayout struct {
	size    int
	align   int
	offsets map[string]int
	types   map[string]Type
}

func newTypeLayout(analysis *Analysis) *typeLayout {
	return &typeLayout{
		structs: analysis.Structs,
		cache:   make(map[*StructDecl]*structLayout),
	}
}

func isCharKind(k PrimitiveKind) bool {
	return k == Char || k == SChar || k == UChar
}

func (tl *typeLayout) sizeOf(t Type) int {
	switch t := t.(type) {
	case *PrimitiveType:
		switch {
		case isCharKind(t.Kind):
			return 1
		case t.Kind == Void:
			return 0
		default:
			return 8
		}
	case *PointerType:
		return 8
	case *ArrayType:
		return t.Size * tl.sizeOf(t.Of)
	case *StructType:
		return tl.structOf(t).size
	default:
		return 8
	}
}

func (tl *typeLayout) alignOf(t Type) int {
	switch t := t.(type) {
	case *PrimitiveType:
		if isCharKind(t.Kind) || t.Kind == Void {
			return 1
		}
		return 8
	case *ArrayType:
		return tl.alignOf(t.Of)
	case *StructType:
		return tl.structOf(t).align
	default:
		return 8
	}
}

// structOf lays out the struct a type annotation refers to.
func (tl *typeLayout) structOf(t *StructType) *structLayout {
	decl, ok := tl.structs[t]
	if !ok {
		panic(&CodegenError{Message: fmt.Sprintf("struct '%s' was not resolved", t.Tag)})
	}
	if sl, ok := tl.cache[decl]; ok {
		return sl
	}

	sl := &structLayout{
		align:   1,
		offsets: make(map[string]int, len(decl.Members)),
		types:   make(map[string]Type, len(decl.Members)),
	}
	offset := 0
	for _, m := range decl.Members {
		align := tl.alignOf(m.Type)
		offset = alignTo(offset, align)
		sl.offsets[m.Name] = offset
		sl.types[m.Name] = m.Type
		offset += tl.sizeOf(m.Type)
		sl.align = max(sl.align, align)
	}
	sl.size = alignTo(offset, sl.align)
	tl.cache[decl] = sl
	return sl
}

// member returns the offset and type of a struct member.
func (tl *typeLayout) member(t *StructType, name string) (int, Type, bool) {
	sl := tl.structOf(t)
	offset, ok := sl.offsets[name]
	return offset, sl.types[name], ok
}

// slotsFor returns how many 16-byte slots a value of type t occupies.
func (tl *typeLayout) slotsFor(t Type) int {
	return max(1, (tl.sizeOf(t)+slotSize-1)/slotSize)
}

// =============================================================================
// FRAME LAYOUT
// =============================================================================

// Frame is the stack layout of one function. Offsets are relative to the
// frame pointer and negative; the first slot is at -16.
type Frame struct {
	Function string

	// Slots maps each *Param and automatic *VarDecl to its offset.
	Slots map[any]int

	// StackSize is the byte size of all slots. It is always a multiple
	// of 16.
	StackSize int

	order []frameSlot
}

type frameSlot struct {
	name   string
	offset int
}

// Size returns the total frame size: the slots plus the 16-byte area that
// holds the saved frame pointer and link register.
func (f *Frame) Size() int {
	return alignTo(f.StackSize, 16) + 16
}

// String renders the frame as
// `(frame "main" 64 (slot "a" -16) (slot "b" -32))`.
func (f *Frame) String() string {
	parts := []string{strconv.Quote(f.Function), strconv.Itoa(f.Size())}
	for _, s := range f.order {
		parts = append(parts, list("slot", strconv.Quote(s.name), strconv.Itoa(s.offset)))
	}
	return list("frame", parts...)
}

// frameBuilder is the layout pre-pass. It is the only place slot offsets
// are decided.
type frameBuilder struct {
	layout *typeLayout
	frame  *Frame

	// statics collects block-scope static variables, which live in the
	// data section instead of the frame.
	statics []*VarDecl
}

func (tl *typeLayout) layoutFrame(fn *FuncDecl) (*Frame, []*VarDecl) {
	fb := &frameBuilder{
		layout: tl,
		frame:  &Frame{Function: fn.Name, Slots: make(map[any]int)},
	}
	for _, param := range fn.Params {
		fb.allocate(param, param.Name, param.Type)
	}
	if fn.Body != nil {
		fb.items(fn.Body.Items)
	}
	return fb.frame, fb.statics
}

func (fb *frameBuilder) allocate(decl any, name string, t Type) {
	if prim, ok := t.(*PrimitiveType); ok && prim.Kind == Void {
		panic(&CodegenError{Function: fb.frame.Function, Message: fmt.Sprintf("variable '%s' has type void", name)})
	}
	fb.frame.StackSize += fb.layout.slotsFor(t) * slotSize
	offset := -fb.frame.StackSize
	fb.frame.Slots[decl] = offset
	fb.frame.order = append(fb.frame.order, frameSlot{name: name, offset: offset})
}

func (fb *frameBuilder) varDecl(d *VarDecl) {
	switch d.Storage {
	case StorageNone:
		fb.allocate(d, d.Name, d.Type)
	case StorageStatic:
		fb.statics = append(fb.statics, d)
	}
}

func (fb *frameBuilder) items(items []BlockItem) {
	for _, item := range items {
		switch it := item.(type) {
		case *VarDecl:
			fb.varDecl(it)
		case Stmt:
			fb.stmt(it)
		}
	}
}

func (fb *frameBuilder) stmt(stmt Stmt) {
	switch s := stmt.(type) {
	case *IfStmt:
		fb.stmt(s.Then)
		if s.Else != nil {
			fb.stmt(s.Else)
		}
	case *CompoundStmt:
		fb.items(s.Block.Items)
	case *WhileStmt:
		fb.stmt(s.Body)
	case *DoWhileStmt:
		fb.stmt(s.Body)
	case *ForStmt:
		if init, ok := s.Init.(*InitDecl); ok {
			fb.varDecl(init.Decl)
		}
		fb.stmt(s.Body)
	}
}

// LayoutFrames runs the layout pre-pass for every defined function. It is
// what the generator uses, exposed for diagnostics and tests.
func LayoutFrames(prog *Program, analysis *Analysis) (frames []*Frame, err error) {
	if analysis == nil || analysis.Errors.HasErrors() {
		return nil, ErrUnanalyzed
	}
	defer recoverCodegenError(&err)

	tl := newTypeLayout(analysis)
	for _, decl := range prog.Decls {
		if fn, ok := decl.(*FuncDecl); ok && fn.Body != nil {
			frame, _ := tl.layoutFrame(fn)
			frames = append(frames, frame)
		}
	}
	return frames, nil
}

// FramesString renders frames one per line.
func FramesString(frames []*Frame) string {
	lines := make([]string, len(frames))
	for i, f := range frames {
		lines[i] = f.String()
	}
	return strings.Join(lines, "\n")
}

func recoverCodegenError(err *error) {
	if r := recover(); r != nil {
		codegenErr, ok := r.(*CodegenError)
		if !ok {
			panic(r)
		}
		*err = codegenErr
	}
}
