package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

func TestFunctionPrologueAndEpilogue(t *testing.T) {
	asm := compileAsm(t, "f :: () void { }\nmain :: () int { f(); return 0; }")
	assertAsmContains(t, asm,
		".globl _f",
		".p2align 2",
		"_f:",
		"stp x29, x30, [sp, #-16]!",
		"mov x29, sp",
		"Lf_epilogue:",
		"mov sp, x29",
		"ldp x29, x30, [sp], #16",
		"ret",
	)
}

func TestFunctionWithParameters(t *testing.T) {
	asm := compileAsm(t, `
sub :: (a: int, b: int) int { return a - b; }
main :: () int { return sub(5, 3); }
`)
	// Arguments are pushed left to right, so the first sits furthest up.
	assertAsmContains(t, asm,
		"sub sp, sp, #32",
		"ldr x0, [x29, #32]",
		"str x0, [x29, #-16]",
		"ldr x0, [x29, #16]",
		"str x0, [x29, #-32]",
		"ldr x0, [x29, #-16]",
		"ldr x1, [x29, #-32]",
		"sub x0, x0, x1",
	)
	assertAsmContains(t, asm,
		"mov sp, x29",
		"ldp x29, x30, [sp], #16",
		"add sp, sp, #32",
		"ret",
	)
	assertAsmContains(t, asm,
		"mov x0, #5",
		"str x0, [sp, #-16]!",
		"mov x0, #3",
		"str x0, [sp, #-16]!",
		"bl _sub",
	)
}

func TestOddArityPadsArgumentArea(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		caller  []string
		cleanup string
	}{
		{
			name: "one argument",
			src:  "id :: (a: long) long { return a; }\nmain :: () int { return id(7); }",
			caller: []string{
				"sub sp, sp, #16",
				"mov x0, #7",
				"str x0, [sp, #-16]!",
				"bl _id",
			},
			cleanup: "add sp, sp, #32",
		},
		{
			name: "three arguments",
			src:  "f :: (a: int, b: int, c: int) int { return c; }\nmain :: () int { return f(1, 2, 3); }",
			caller: []string{
				"sub sp, sp, #16",
				"mov x0, #1",
				"str x0, [sp, #-16]!",
				"mov x0, #2",
				"str x0, [sp, #-16]!",
				"mov x0, #3",
				"str x0, [sp, #-16]!",
				"bl _f",
			},
			cleanup: "add sp, sp, #64",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asm := compileAsm(t, tt.src)
			assertAsmContains(t, asm, tt.caller...)
			assertAsmContains(t, asm, "ldp x29, x30, [sp], #16", tt.cleanup, "ret")
		})
	}
}

func TestArgumentSlotsAlwaysEven(t *testing.T) {
	for arity := 0; arity <= 5; arity++ {
		var params, args []string
		for i := 0; i < arity; i++ {
			params = append(params, "p"+string(rune('a'+i))+": int")
			args = append(args, "1")
		}
		src := "f :: (" + strings.Join(params, ", ") + ") int { return 0; }\n" +
			"main :: () int { return f(" + strings.Join(args, ", ") + "); }"
		asm := compileAsm(t, src)

		mainBody := asm[strings.Index(asm, "_main:"):]
		slots := strings.Count(mainBody, "str x0, [sp, #-16]!")
		if strings.Contains(mainBody, "sub sp, sp, #16\n") {
			slots++
		}
		be.Equal(t, slots%2, 0)
		be.Equal(t, slots, arity+arity%2)
	}
}

func TestNestedFunctionCalls(t *testing.T) {
	asm := compileAsm(t, `
g :: (x: int) int { return x; }
f :: (x: int) int { return x; }
main :: () int { return f(g(1)); }
`)
	assertAsmContains(t, asm,
		"sub sp, sp, #16",
		"sub sp, sp, #16",
		"mov x0, #1",
		"str x0, [sp, #-16]!",
		"bl _g",
		"str x0, [sp, #-16]!",
		"bl _f",
	)
}

func TestCallAsCompoundOperand(t *testing.T) {
	asm := compileAsm(t, `
two :: () int { return 2; }
main :: () int { return 40 + two(); }
`)
	// The compound right operand is evaluated first, then the simple left
	// one is loaded and the operands are swapped.
	assertAsmContains(t, asm,
		"bl _two",
		"mov x1, #40",
		"add x0, x1, x0",
	)
}

func TestStaticFunctionIsNotExported(t *testing.T) {
	asm := compileAsm(t, `
static helper :: () int { return 1; }
main :: () int { return helper(); }
`)
	be.True(t, strings.Contains(asm, "_helper:"))
	be.True(t, !strings.Contains(asm, ".globl _helper"))
	be.True(t, strings.Contains(asm, ".globl _main"))
}

func TestExternFunctionIsOnlyCalled(t *testing.T) {
	asm := compileAsm(t, `
extern putchar :: (c: int) int;
main :: () int { putchar(65); return 0; }
`)
	be.True(t, strings.Contains(asm, "bl _putchar"))
	be.True(t, !strings.Contains(asm, "_putchar:"))
}

func TestForwardDeclaredFunctionEmittedOnce(t *testing.T) {
	asm := compileAsm(t, `
f :: () int;
main :: () int { return f(); }
f :: () int { return 3; }
`)
	be.Equal(t, strings.Count(asm, "_f:"), 1)
	be.True(t, strings.Index(asm, "_main:") < strings.Index(asm, "_f:"))
}

func TestMainWithoutReturnExitsZero(t *testing.T) {
	asm := compileAsm(t, "main :: () int { x: int = 4; }")
	assertAsmContains(t, asm,
		"str x0, [x29, #-16]",
		"mov x0, #0",
		"Lmain_epilogue:",
		"mov sp, x29",
		"ldp x29, x30, [sp], #16",
		"mov x16, #1",
		"svc #0x80",
	)
	be.True(t, !strings.Contains(asm, "ret"))
}

func TestMainReturnsOnEveryPath(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		fallback bool
	}{
		{"if else", "if (1) return 1; else return 2;", false},
		{"nested blocks", "{ if (1) { return 1; } else { { return 2; } } }", false},
		{"if without else", "if (1) return 1;", true},
		{"one branch falls through", "if (1) return 1; else { x: int = 2; }", true},
		{"loop", "while (1) return 1;", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asm := compileAsm(t, "main :: () int { "+tt.body+" }")
			be.Equal(t, strings.Contains(asm, "mov x0, #0\nLmain_epilogue:"), tt.fallback)
		})
	}
}

func TestCallErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{
			name: "too few arguments",
			src:  "f :: (a: int) int { return a; }\nmain :: () int { return f(); }",
			msg:  "codegen error in main: call to 'f' with 0 arguments, want 1",
		},
		{
			name: "too many arguments",
			src:  "f :: () int { return 0; }\nmain :: () int { return f(1, 2); }",
			msg:  "call to 'f' with 2 arguments, want 0",
		},
		{
			name: "struct parameter",
			src:  "struct S { a: int; };\nf :: (s: struct S) int { return 0; }",
			msg:  "codegen error in f: parameter 's' of type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileSource([]byte(tt.src), CompileOptions{})
			be.Err(t, err, tt.msg)

			var codegenErr *CodegenError
			be.True(t, errors.As(err, &codegenErr))
		})
	}
}
