package main

import (
	"strings"
	"testing"

	"github.com/cejlang/cej/sexy"
	"github.com/nalgeon/be"
)

func assertAsmContains(t *testing.T, asm string, lines ...string) {
	t.Helper()
	want := strings.Join(lines, "\n")
	if !sexy.ContainsLines(asm, want) {
		t.Errorf("assembly does not contain\n%s\n\ngot:\n%s", want, asm)
	}
}

func TestVariableShadowingEndToEnd(t *testing.T) {
	src := `
main :: () int {
    x: int = 1;
    {
        x: int = 2;
    }
    return x;
}`
	be.Equal(t, frameStrings(t, src), []string{`(frame "main" 48 (slot "x" -16) (slot "x" -32))`})

	asm := compileAsm(t, src)
	assertAsmContains(t, asm,
		"mov x0, #1",
		"str x0, [x29, #-16]",
		"mov x0, #2",
		"str x0, [x29, #-32]",
		"ldr x0, [x29, #-16]",
		"b Lmain_epilogue",
	)
}

func TestFunctionParameterShadowingEndToEnd(t *testing.T) {
	src := `
x: int = 5;
f :: (x: int) int { return x; }
main :: () int { return f(x); }
`
	asm := compileAsm(t, src)
	assertAsmContains(t, asm,
		"_f:",
		"stp x29, x30, [sp, #-16]!",
		"mov x29, sp",
		"sub sp, sp, #16",
		"ldr x0, [x29, #16]",
		"str x0, [x29, #-16]",
		"ldr x0, [x29, #-16]",
		"b Lf_epilogue",
	)
	// main reads the global, f only ever reads its parameter.
	assertAsmContains(t, asm,
		"adrp x9, _x@PAGE",
		"add x9, x9, _x@PAGEOFF",
		"ldr x0, [x9]",
		"str x0, [sp, #-16]!",
		"bl _f",
	)
	fBody := asm[strings.Index(asm, "_f:"):strings.Index(asm, "_main:")]
	be.True(t, !strings.Contains(fBody, "_x@PAGE"))
}

func TestDeepNestedShadowingEndToEnd(t *testing.T) {
	src := `
main :: () int {
    x: int = 1;
    {
        x: int = 2;
        {
            x: int = 3;
            return x;
        }
    }
}`
	be.Equal(t, frameStrings(t, src), []string{
		`(frame "main" 64 (slot "x" -16) (slot "x" -32) (slot "x" -48))`,
	})
	assertAsmContains(t, compileAsm(t, src),
		"mov x0, #3",
		"str x0, [x29, #-48]",
		"ldr x0, [x29, #-48]",
		"b Lmain_epilogue",
	)
}

func TestShadowingWithDifferentTypes(t *testing.T) {
	src := `
main :: () int {
    x: long = 300;
    {
        x: char = 'a';
        return x;
    }
}`
	assertAsmContains(t, compileAsm(t, src),
		"mov x0, #97",
		"strb w0, [x29, #-32]",
		"ldrsb x0, [x29, #-32]",
	)
}

func TestSiblingBlocksGetDistinctSlots(t *testing.T) {
	src := `
main :: () int {
    { a: int = 1; }
    { a: int = 2; }
    return 0;
}`
	be.Equal(t, frameStrings(t, src), []string{`(frame "main" 48 (slot "a" -16) (slot "a" -32))`})
}
