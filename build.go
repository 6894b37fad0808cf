package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
)

// TargetKind is the kind of artifact a build target produces.
type TargetKind int

const (
	Executable TargetKind = iota
	Library
)

func (k TargetKind) String() string {
	if k == Library {
		return "Library"
	}
	return "Executable"
}

// BuildTarget is one `[Kind:name]` section of a build file.
type BuildTarget struct {
	Kind          TargetKind
	Name          string
	Sources       []string
	IncludeDirs   []string
	Libs          []string
	LibDirs       []string
	OutputDir     string
	CompilerFlags string
}

// Output returns the path of the linked artifact.
func (t *BuildTarget) Output(buildDir string) string {
	dir := t.OutputDir
	if dir == "" {
		dir = buildDir
	}
	if t.Kind == Library {
		return filepath.Join(dir, "lib"+t.Name+".a")
	}
	return filepath.Join(dir, t.Name)
}

// BuildFile is a parsed build description.
type BuildFile struct {
	Targets []*BuildTarget
}

// BuildFileError reports a malformed line in a build file.
type BuildFileError struct {
	Line    int
	Message string
}

func (e *BuildFileError) Error() string {
	return fmt.Sprintf("build file line %d: %s", e.Line, e.Message)
}

// ParseBuildFile reads a build description of the form
//
//	# comment
//	[Library:util]
//	sources = util.cej, strings.cej
//
//	[Executable:app]
//	sources = main.cej
//	libs = util
//	lib_dirs = build
func ParseBuildFile(r io.Reader) (*BuildFile, error) {
	bf := &BuildFile{}
	var current *BuildTarget

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}

		if line[0] == '[' && line[len(line)-1] == ']' {
			kind, name, ok := strings.Cut(line[1:len(line)-1], ":")
			if !ok || strings.TrimSpace(name) == "" {
				return nil, &BuildFileError{Line: lineNo, Message: fmt.Sprintf("invalid section header %q", line)}
			}
			current = &BuildTarget{Name: strings.TrimSpace(name)}
			switch strings.TrimSpace(kind) {
			case "Executable":
				current.Kind = Executable
			case "Library":
				current.Kind = Library
			default:
				return nil, &BuildFileError{Line: lineNo, Message: fmt.Sprintf("unknown target type %q", kind)}
			}
			bf.Targets = append(bf.Targets, current)
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, &BuildFileError{Line: lineNo, Message: fmt.Sprintf("expected key = value, got %q", line)}
		}
		if current == nil {
			return nil, &BuildFileError{Line: lineNo, Message: "property outside of a target section"}
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		switch key {
		case "sources":
			current.Sources = splitList(value)
		case "include_dirs":
			current.IncludeDirs = splitList(value)
		case "libs":
			current.Libs = splitList(value)
		case "lib_dirs":
			current.LibDirs = splitList(value)
		case "output_dir":
			current.OutputDir = value
		case "compiler_flags":
			current.CompilerFlags = value
		default:
			return nil, &BuildFileError{Line: lineNo, Message: fmt.Sprintf("unknown key %q", key)}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading build file: %w", err)
	}
	for _, t := range bf.Targets {
		if len(t.Sources) == 0 {
			return nil, fmt.Errorf("target %s has no sources", t.Name)
		}
	}
	return bf, nil
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// Toolchain assembles and links generated assembly.
type Toolchain interface {
	Assemble(ctx context.Context, asmFile, objFile string) error
	LinkExecutable(ctx context.Context, output string, objects, libDirs, libs []string) error
	Archive(ctx context.Context, output string, objects []string) error
}

// SystemToolchain runs the host as, ld and ar.
type SystemToolchain struct {
	AS, LD, AR string

	// SysLibRoot is passed to ld as -syslibroot. When empty it is asked
	// from xcrun.
	SysLibRoot string
}

func NewSystemToolchain() *SystemToolchain {
	return &SystemToolchain{AS: "as", LD: "ld", AR: "ar"}
}

func (tc *SystemToolchain) run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w\n%s", name, strings.Join(args, " "), err, stderr.String())
	}
	return nil
}

func (tc *SystemToolchain) Assemble(ctx context.Context, asmFile, objFile string) error {
	return tc.run(ctx, tc.AS, "-arch", "arm64", "-o", objFile, asmFile)
}

func (tc *SystemToolchain) LinkExecutable(ctx context.Context, output string, objects, libDirs, libs []string) error {
	args := []string{"-arch", "arm64", "-o", output}
	args = append(args, objects...)
	for _, dir := range libDirs {
		args = append(args, "-L"+dir)
	}
	for _, lib := range libs {
		args = append(args, "-l"+lib)
	}
	args = append(args, "-lSystem")
	if root := tc.sysLibRoot(ctx); root != "" {
		args = append(args, "-syslibroot", root)
	}
	return tc.run(ctx, tc.LD, args...)
}

func (tc *SystemToolchain) Archive(ctx context.Context, output string, objects []string) error {
	return tc.run(ctx, tc.AR, append([]string{"rcs", output}, objects...)...)
}

func (tc *SystemToolchain) sysLibRoot(ctx context.Context) string {
	if tc.SysLibRoot != "" {
		return tc.SysLibRoot
	}
	out, err := exec.CommandContext(ctx, "xcrun", "-sdk", "macosx", "--show-sdk-path").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// BuildOptions configure Build.
type BuildOptions struct {
	// BuildDir receives the .s and .o files and, unless a target sets
	// output_dir, the linked artifacts.
	BuildDir string

	// Jobs bounds how many files compile at once. Zero means one per CPU.
	Jobs int

	// SkipLink stops after writing assembly.
	SkipLink bool

	Compile CompileOptions
}

// Build compiles every target of bf. Libraries are built before
// executables so executables can link against them. It returns the paths
// of the artifacts it produced.
func Build(ctx context.Context, bf *BuildFile, tc Toolchain, opts BuildOptions) ([]string, error) {
	if opts.BuildDir == "" {
		opts.BuildDir = "build"
	}
	if opts.Jobs <= 0 {
		opts.Jobs = runtime.NumCPU()
	}
	if err := os.MkdirAll(opts.BuildDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating build directory: %w", err)
	}

	var outputs []string
	for _, kind := range []TargetKind{Library, Executable} {
		for _, t := range bf.Targets {
			if t.Kind != kind {
				continue
			}
			out, err := buildTarget(ctx, t, tc, opts)
			if err != nil {
				return outputs, fmt.Errorf("target %s: %w", t.Name, err)
			}
			outputs = append(outputs, out...)
		}
	}
	return outputs, nil
}

// objectStems names the output files of each source after its base name.
// Sources sharing a base name get a numeric suffix so that no two write
// to the same file.
func objectStems(sources []string) []string {
	stems := make([]string, len(sources))
	taken := make(map[string]bool, len(sources))
	for i, source := range sources {
		base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
		stem := base
		for n := 1; taken[stem]; n++ {
			stem = fmt.Sprintf("%s_%d", base, n)
		}
		taken[stem] = true
		stems[i] = stem
	}
	return stems
}

// buildTarget compiles and assembles each source of t in parallel, then
// links or archives the objects.
func buildTarget(ctx context.Context, t *BuildTarget, tc Toolchain, opts BuildOptions) ([]string, error) {
	dir := filepath.Join(opts.BuildDir, t.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating target directory: %w", err)
	}

	// compiler_flags may select the accumulating diagnostic mode.
	compile := opts.Compile
	if slices.Contains(strings.Fields(t.CompilerFlags), "-all") {
		compile.Mode = Accumulate
	}

	asmFiles := make([]string, len(t.Sources))
	objects := make([]string, len(t.Sources))

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(opts.Jobs)
	stems := objectStems(t.Sources)
	for i, source := range t.Sources {
		stem := stems[i]
		asmFiles[i] = filepath.Join(dir, stem+".s")
		objects[i] = filepath.Join(dir, stem+".o")

		group.Go(func() error {
			compile.logf("Compiling %s...", source)
			src, err := os.ReadFile(source)
			if err != nil {
				return fmt.Errorf("reading %s: %w", source, err)
			}
			c, err := CompileSource(src, compile)
			if err != nil {
				return fmt.Errorf("%s: %w", source, err)
			}
			if err := os.WriteFile(asmFiles[i], []byte(c.Assembly), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", asmFiles[i], err)
			}
			if opts.SkipLink {
				return nil
			}
			return tc.Assemble(gctx, asmFiles[i], objects[i])
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	if opts.SkipLink {
		return asmFiles, nil
	}

	output := t.Output(opts.BuildDir)
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	opts.Compile.logf("Linking %s...", output)
	var err error
	if t.Kind == Library {
		err = tc.Archive(ctx, output, objects)
	} else {
		err = tc.LinkExecutable(ctx, output, objects, t.LibDirs, t.Libs)
	}
	if err != nil {
		return nil, err
	}
	return []string{output}, nil
}
