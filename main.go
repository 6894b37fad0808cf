package main

// CompileOptions configure one run of the pipeline.
type CompileOptions struct {
	// Mode selects fail-fast diagnostics or accumulation of every parser
	// and analyzer error.
	Mode DiagnosticMode

	// Logf, when set, receives progress lines.
	Logf func(format string, args ...any)
}

func (o CompileOptions) logf(format string, args ...any) {
	if o.Logf != nil {
		o.Logf(format, args...)
	}
}

// Compilation holds the products of each pipeline stage.
type Compilation struct {
	Program  *Program
	Analysis *Analysis
	Assembly string
}

// ParseSource tokenizes and parses src.
func ParseSource(src []byte, opts CompileOptions) (*Program, error) {
	p := NewParser(NewLexer(src))
	p.Mode = opts.Mode
	prog, err := p.ParseProgram()
	if err != nil {
		return nil, err
	}
	opts.logf("parsed %d top-level declarations", len(prog.Decls))
	return prog, nil
}

// CheckSource parses and analyzes src without generating code.
func CheckSource(src []byte, opts CompileOptions) (*Compilation, error) {
	prog, err := ParseSource(src, opts)
	if err != nil {
		return nil, err
	}
	analysis, err := (&Analyzer{Mode: opts.Mode}).Analyze(prog)
	if err != nil {
		return nil, err
	}
	opts.logf("resolved %d references", len(analysis.Resolutions))
	return &Compilation{Program: prog, Analysis: analysis}, nil
}

// CompileSource runs the whole pipeline on src and returns the assembly.
func CompileSource(src []byte, opts CompileOptions) (*Compilation, error) {
	c, err := CheckSource(src, opts)
	if err != nil {
		return nil, err
	}
	c.Assembly, err = Generate(c.Program, c.Analysis)
	if err != nil {
		return nil, err
	}
	opts.logf("generated %d bytes of assembly", len(c.Assembly))
	return c, nil
}

// ExpressionProgram wraps a standalone expression into a main function
// that returns it.
func ExpressionProgram(expr string) []byte {
	return []byte("main :: () int { return " + expr + "; }")
}
