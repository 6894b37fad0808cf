package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
)

const version = "0.3.0"

func showUsage() {
	fmt.Fprintf(os.Stderr, `cej - an ahead-of-time compiler for a small C-like language, targeting AArch64

Usage:
    cej <command> [arguments]

Commands:
    compile <file>      Compile a .cej file to assembly
    check <file>        Parse and analyze a .cej file
    ast <file>          Print the syntax tree of a .cej file
    build <buildfile>   Compile, assemble and link the targets of a build file
    eval <expr>         Print the syntax tree and assembly of an expression
    version             Print the compiler version
    help                Show this help message

Examples:
    cej compile -o prog.s prog.cej
    cej check -all prog.cej
    cej build -j 4 project.build
    cej eval '(1 + 2) * 3'

Use "cej <command> -h" for more information about a command.
`)
}

// verboseLogf prints progress lines to stderr when verbose is set.
func verboseLogf(verbose bool) func(format string, args ...any) {
	if !verbose {
		return nil
	}
	return func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

func diagnosticMode(all bool) DiagnosticMode {
	if all {
		return Accumulate
	}
	return FailFast
}

// singleArg parses args and returns the one positional argument.
func singleArg(fs *flag.FlagSet, args []string, what string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Error: expected exactly one %s argument\n", what)
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func readSource(filename string) []byte {
	src, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file %s: %v\n", filename, err)
		os.Exit(1)
	}
	return src
}

func compileCommand(args []string) {
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	output := fs.String("o", "", "Output file path (default: <filename>.s, - for stdout)")
	all := fs.Bool("all", false, "Report every syntax and name error instead of stopping at the first")
	verbose := fs.Bool("v", false, "Show verbose compilation details")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cej compile [-o output] [-all] [-v] <file>\n")
		fmt.Fprintf(os.Stderr, "Compile a .cej file to AArch64 assembly\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	filename := singleArg(fs, args, "file")

	outputFile := *output
	if outputFile == "" {
		outputFile = strings.TrimSuffix(filename, ".cej") + ".s"
	}
	if *verbose {
		fmt.Fprintf(os.Stderr, "Compiling %s to %s...\n", filename, outputFile)
	}

	c, err := CompileSource(readSource(filename), CompileOptions{
		Mode: diagnosticMode(*all),
		Logf: verboseLogf(*verbose),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: compilation failed:\n%v\n", filename, err)
		os.Exit(1)
	}

	if outputFile == "-" {
		fmt.Print(c.Assembly)
		return
	}
	if err := os.WriteFile(outputFile, []byte(c.Assembly), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", outputFile, err)
		os.Exit(1)
	}
	if *verbose {
		fmt.Fprintf(os.Stderr, "Generated %s (%d bytes)\n", outputFile, len(c.Assembly))
	}
}

func checkCommand(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	all := fs.Bool("all", false, "Report every syntax and name error instead of stopping at the first")
	verbose := fs.Bool("v", false, "Show verbose checking details")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cej check [-all] [-v] <file>\n")
		fmt.Fprintf(os.Stderr, "Parse and analyze a .cej file\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	filename := singleArg(fs, args, "file")

	if *verbose {
		fmt.Fprintf(os.Stderr, "Checking %s...\n", filename)
	}
	c, err := CheckSource(readSource(filename), CompileOptions{
		Mode: diagnosticMode(*all),
		Logf: verboseLogf(*verbose),
	})
	if err != nil {
		fmt.Printf("Errors in %s:\n%v\n", filename, err)
		os.Exit(1)
	}
	fmt.Printf("%s: no errors found\n", filename)

	if *verbose {
		frames, err := LayoutFrames(c.Program, c.Analysis)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Frame layout failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(FramesString(frames))
	}
}

func astCommand(args []string) {
	fs := flag.NewFlagSet("ast", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cej ast <file>\n")
		fmt.Fprintf(os.Stderr, "Print the syntax tree of a .cej file as an s-expression\n")
	}
	filename := singleArg(fs, args, "file")

	prog, err := ParseSource(readSource(filename), CompileOptions{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", filename, err)
		os.Exit(1)
	}
	fmt.Println(ProgramToSExpr(prog))
}

func evalCommand(args []string) {
	fs := flag.NewFlagSet("eval", flag.ExitOnError)
	verbose := fs.Bool("v", false, "Show verbose compilation details")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cej eval [-v] <expr>\n")
		fmt.Fprintf(os.Stderr, "Compile `main :: () int { return <expr>; }` and print the result\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	code := singleArg(fs, args, "expression")

	if *verbose {
		fmt.Fprintf(os.Stderr, "Evaluating: %s\n", code)
	}
	expr, err := ParseExpression(NewLexer([]byte(code)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	fmt.Println(ToSExpr(expr))

	c, err := CompileSource(ExpressionProgram(code), CompileOptions{Logf: verboseLogf(*verbose)})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Compilation failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(c.Assembly)
}

func buildCommand(args []string) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	buildDir := fs.String("o", "build", "Build directory for assembly, objects and artifacts")
	jobs := fs.Int("j", 0, "Number of files to compile in parallel (default: number of CPUs)")
	asmOnly := fs.Bool("S", false, "Stop after writing assembly; do not assemble or link")
	all := fs.Bool("all", false, "Report every syntax and name error instead of stopping at the first")
	verbose := fs.Bool("v", false, "Show verbose build details")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cej build [-o dir] [-j n] [-S] [-all] [-v] <buildfile>\n")
		fmt.Fprintf(os.Stderr, "Compile, assemble and link the targets of a build file\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	filename := singleArg(fs, args, "build file")

	f, err := os.Open(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening build file %s: %v\n", filename, err)
		os.Exit(1)
	}
	bf, err := ParseBuildFile(f)
	f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", filename, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	outputs, err := Build(ctx, bf, NewSystemToolchain(), BuildOptions{
		BuildDir: *buildDir,
		Jobs:     *jobs,
		SkipLink: *asmOnly,
		Compile: CompileOptions{
			Mode: diagnosticMode(*all),
			Logf: verboseLogf(*verbose),
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Build failed: %v\n", err)
		os.Exit(1)
	}
	for _, out := range outputs {
		fmt.Printf("Generated %s\n", out)
	}
}

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "compile":
		compileCommand(args)
	case "check":
		checkCommand(args)
	case "ast":
		astCommand(args)
	case "build":
		buildCommand(args)
	case "eval":
		evalCommand(args)
	case "version", "-version", "--version":
		fmt.Printf("cej %s\n", version)
	case "help", "-h", "--help":
		showUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		showUsage()
		os.Exit(1)
	}
}
