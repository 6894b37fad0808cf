package main

import (
	"errors"
	"testing"

	"github.com/nalgeon/be"
)

func TestFrameSingleLocal(t *testing.T) {
	frames := frameStrings(t, "main :: () int { x: int; return 0; }")
	be.Equal(t, frames, []string{`(frame "main" 32 (slot "x" -16))`})
}

func TestFrameParamsBeforeLocals(t *testing.T) {
	frames := frameStrings(t, "f :: (a: int, b: int) int { c: int = a; return c; }")
	be.Equal(t, frames, []string{`(frame "f" 64 (slot "a" -16) (slot "b" -32) (slot "c" -48))`})
}

func TestFrameNestedBlockVariables(t *testing.T) {
	frames := frameStrings(t, `
main :: () int {
    a: int;
    if (a) {
        b: int;
    } else {
        c: int;
    }
    while (a) { d: int; }
    do { e: int; } while (a);
    for (f: int = 0; f; ) { g: int; }
    return 0;
}`)
	be.Equal(t, frames, []string{
		`(frame "main" 128 (slot "a" -16) (slot "b" -32) (slot "c" -48) (slot "d" -64) (slot "e" -80) (slot "f" -96) (slot "g" -112))`,
	})
}

func TestFrameNoVariables(t *testing.T) {
	frames := frameStrings(t, "main :: () int { return 0; }")
	be.Equal(t, frames, []string{`(frame "main" 16)`})

	asm := compileAsm(t, "main :: () int { return 0; }")
	assertAsmContains(t, asm,
		"mov x29, sp",
		"mov x0, #0",
	)
}

func TestFrameAggregatesTakeWholeSlots(t *testing.T) {
	frames := frameStrings(t, `
struct Pair { a: long; b: long; };
struct Triple { a: long; b: long; c: char; };
main :: () int {
    small: [3]char;
    ints: [3]int;
    p: struct Pair;
    q: struct Triple;
    n: int;
    return 0;
}`)
	be.Equal(t, frames, []string{
		`(frame "main" 128 (slot "small" -16) (slot "ints" -48) (slot "p" -64) (slot "q" -96) (slot "n" -112))`,
	})
}

func TestFrameSkipsStaticAndExternLocals(t *testing.T) {
	frames := frameStrings(t, `
main :: () int {
    static count: int = 0;
    extern shared: int;
    x: int;
    return count;
}
shared: int;
`)
	be.Equal(t, frames, []string{`(frame "main" 32 (slot "x" -16))`})
}

func TestFrameSizeIsMultipleOf16(t *testing.T) {
	sources := []string{
		"main :: () int { return 0; }",
		"main :: () int { c: char; return 0; }",
		"main :: () int { a: [17]char; return 0; }",
		"main :: () int { a: [5]long; b: char; return 0; }",
		"f :: (a: int, b: int, c: int) int { return a; }",
	}

	for _, src := range sources {
		c, err := CheckSource([]byte(src), CompileOptions{})
		be.Err(t, err, nil)
		frames, err := LayoutFrames(c.Program, c.Analysis)
		be.Err(t, err, nil)
		for _, f := range frames {
			be.Equal(t, f.StackSize%16, 0)
			be.Equal(t, f.Size()%16, 0)
		}
	}
}

func TestFrameOnlyForDefinedFunctions(t *testing.T) {
	frames := frameStrings(t, `
extern puts :: (s: *char) int;
f :: (x: int) int;
main :: () int { return 0; }
`)
	be.Equal(t, len(frames), 1)
}

func TestFramesString(t *testing.T) {
	c, err := CheckSource([]byte("f :: () void { }\nmain :: () int { x: int; return 0; }"), CompileOptions{})
	be.Err(t, err, nil)
	frames, err := LayoutFrames(c.Program, c.Analysis)
	be.Err(t, err, nil)
	be.Equal(t, FramesString(frames), "(frame \"f\" 16)\n(frame \"main\" 32 (slot \"x\" -16))")
}

func TestFrameVoidVariable(t *testing.T) {
	c, err := CheckSource([]byte("main :: () int { v: void; return 0; }"), CompileOptions{})
	be.Err(t, err, nil)
	_, err = LayoutFrames(c.Program, c.Analysis)
	be.Err(t, err, "codegen error in main: variable 'v' has type void")

	var codegenErr *CodegenError
	be.True(t, errors.As(err, &codegenErr))
	be.Equal(t, codegenErr.Function, "main")
}

func TestLayoutRequiresCleanAnalysis(t *testing.T) {
	prog := parseProgram(t, "main :: () int { return missing; }")
	analysis, err := (&Analyzer{Mode: Accumulate}).Analyze(prog)
	be.True(t, err != nil)

	_, err = LayoutFrames(prog, analysis)
	be.Err(t, err, ErrUnanalyzed)
	_, err = LayoutFrames(prog, nil)
	be.Err(t, err, ErrUnanalyzed)
}

func TestLargeFrameOffsets(t *testing.T) {
	asm := compileAsm(t, `
main :: () int {
    big: [40]long;
    x: int = 9;
    return x;
}`)
	// big fills 20 slots, so x sits at -336 which is out of range for
	// an immediate offset.
	assertAsmContains(t, asm,
		"sub sp, sp, #336",
		"mov x0, #9",
		"sub x9, x29, #336",
		"str x0, [x9]",
		"sub x9, x29, #336",
		"ldr x0, [x9]",
	)
}
