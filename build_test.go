package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/nalgeon/be"
)

func TestParseBuildFile(t *testing.T) {
	bf, err := ParseBuildFile(strings.NewReader(`
# utilities first
[Library:util]
sources = util.cej, strings.cej
output_dir = lib

[Executable:app]
sources = main.cej
include_dirs = include
libs = util, m
lib_dirs = lib
compiler_flags = -all
`))
	be.Err(t, err, nil)
	be.Equal(t, len(bf.Targets), 2)

	util := bf.Targets[0]
	be.Equal(t, util.Kind, Library)
	be.Equal(t, util.Name, "util")
	be.Equal(t, util.Sources, []string{"util.cej", "strings.cej"})
	be.Equal(t, util.OutputDir, "lib")

	app := bf.Targets[1]
	be.Equal(t, app.Kind, Executable)
	be.Equal(t, app.Name, "app")
	be.Equal(t, app.Sources, []string{"main.cej"})
	be.Equal(t, app.IncludeDirs, []string{"include"})
	be.Equal(t, app.Libs, []string{"util", "m"})
	be.Equal(t, app.LibDirs, []string{"lib"})
	be.Equal(t, app.CompilerFlags, "-all")
}

func TestParseBuildFileErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		msg   string
	}{
		{"bad header", "[Executable]\nsources = a.cej", `build file line 1: invalid section header "[Executable]"`},
		{"unknown kind", "[Plugin:p]\nsources = a.cej", `build file line 1: unknown target type "Plugin"`},
		{"orphan property", "sources = a.cej", "build file line 1: property outside of a target section"},
		{"missing equals", "[Executable:a]\nsources a.cej", `build file line 2: expected key = value, got "sources a.cej"`},
		{"unknown key", "[Executable:a]\nsources = a.cej\nflavor = mild", `build file line 3: unknown key "flavor"`},
		{"no sources", "[Library:empty]\noutput_dir = out", "target empty has no sources"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBuildFile(strings.NewReader(tt.input))
			be.Err(t, err, tt.msg)
		})
	}
}

func TestBuildFileLineNumbers(t *testing.T) {
	_, err := ParseBuildFile(strings.NewReader("# comment\n\n[Executable:a]\nsources = a.cej\n\nbogus\n"))
	var bfErr *BuildFileError
	be.True(t, errors.As(err, &bfErr))
	be.Equal(t, bfErr.Line, 6)
}

func TestTargetOutput(t *testing.T) {
	tests := []struct {
		target BuildTarget
		want   string
	}{
		{BuildTarget{Kind: Executable, Name: "app"}, filepath.Join("build", "app")},
		{BuildTarget{Kind: Library, Name: "util"}, filepath.Join("build", "libutil.a")},
		{BuildTarget{Kind: Library, Name: "util", OutputDir: "lib"}, filepath.Join("lib", "libutil.a")},
	}

	for _, tt := range tests {
		be.Equal(t, tt.target.Output("build"), tt.want)
	}
	be.Equal(t, Executable.String(), "Executable")
	be.Equal(t, Library.String(), "Library")
}

// recordingToolchain records every command instead of running it.
type recordingToolchain struct {
	mu       sync.Mutex
	commands []string
	failOn   string
}

func (tc *recordingToolchain) record(cmd string) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.commands = append(tc.commands, cmd)
	if tc.failOn != "" && strings.Contains(cmd, tc.failOn) {
		return errors.New("tool failed")
	}
	return nil
}

func (tc *recordingToolchain) Assemble(ctx context.Context, asmFile, objFile string) error {
	return tc.record("as " + filepath.Base(objFile))
}

func (tc *recordingToolchain) LinkExecutable(ctx context.Context, output string, objects, libDirs, libs []string) error {
	parts := []string{"ld", filepath.Base(output)}
	for _, obj := range objects {
		parts = append(parts, filepath.Base(obj))
	}
	for _, lib := range libs {
		parts = append(parts, "-l"+lib)
	}
	return tc.record(strings.Join(parts, " "))
}

func (tc *recordingToolchain) Archive(ctx context.Context, output string, objects []string) error {
	parts := []string{"ar", filepath.Base(output)}
	for _, obj := range objects {
		parts = append(parts, filepath.Base(obj))
	}
	return tc.record(strings.Join(parts, " "))
}

func writeSources(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		be.Err(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644), nil)
	}
	return dir
}

func TestBuildLibrariesBeforeExecutables(t *testing.T) {
	dir := writeSources(t, map[string]string{
		"main.cej": "extern twice :: (n: int) int;\nmain :: () int { return twice(21); }",
		"util.cej": "twice :: (n: int) int { return n + n; }",
	})
	bf := &BuildFile{Targets: []*BuildTarget{
		{Kind: Executable, Name: "app", Sources: []string{filepath.Join(dir, "main.cej")}, Libs: []string{"util"}},
		{Kind: Library, Name: "util", Sources: []string{filepath.Join(dir, "util.cej")}},
	}}

	tc := &recordingToolchain{}
	buildDir := filepath.Join(dir, "build")
	outputs, err := Build(context.Background(), bf, tc, BuildOptions{BuildDir: buildDir, Jobs: 2})
	be.Err(t, err, nil)

	be.Equal(t, outputs, []string{
		filepath.Join(buildDir, "libutil.a"),
		filepath.Join(buildDir, "app"),
	})
	be.Equal(t, tc.commands, []string{
		"as util.o",
		"ar libutil.a util.o",
		"as main.o",
		"ld app main.o -lutil",
	})

	asm, err := os.ReadFile(filepath.Join(buildDir, "app", "main.s"))
	be.Err(t, err, nil)
	be.True(t, strings.Contains(string(asm), "bl _twice"))
}

func TestObjectStems(t *testing.T) {
	tests := []struct {
		name    string
		sources []string
		want    []string
	}{
		{"distinct", []string{"main.cej", "src/util.cej"}, []string{"main", "util"}},
		{"same base name", []string{"a/util.cej", "b/util.cej", "c/util.cej"}, []string{"util", "util_1", "util_2"}},
		{"suffix already taken", []string{"util_1.cej", "a/util.cej", "b/util.cej"}, []string{"util_1", "util", "util_2"}},
		{"no extension", []string{"a/prog", "b/prog.cej"}, []string{"prog", "prog_1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be.Equal(t, objectStems(tt.sources), tt.want)
		})
	}
}

func TestBuildSameBaseNameInDifferentDirectories(t *testing.T) {
	dir := t.TempDir()
	for name, src := range map[string]string{
		"a": "first :: () int { return 1; }",
		"b": "second :: () int { return 2; }",
	} {
		be.Err(t, os.MkdirAll(filepath.Join(dir, name), 0o755), nil)
		be.Err(t, os.WriteFile(filepath.Join(dir, name, "util.cej"), []byte(src), 0o644), nil)
	}
	bf := &BuildFile{Targets: []*BuildTarget{{
		Kind:    Library,
		Name:    "util",
		Sources: []string{filepath.Join(dir, "a", "util.cej"), filepath.Join(dir, "b", "util.cej")},
	}}}

	tc := &recordingToolchain{}
	buildDir := filepath.Join(dir, "build")
	_, err := Build(context.Background(), bf, tc, BuildOptions{BuildDir: buildDir, Jobs: 2})
	be.Err(t, err, nil)

	be.Equal(t, len(tc.commands), 3)
	assembled := slices.Clone(tc.commands[:2])
	slices.Sort(assembled)
	be.Equal(t, assembled, []string{"as util.o", "as util_1.o"})
	be.Equal(t, tc.commands[2], "ar libutil.a util.o util_1.o")

	first, err := os.ReadFile(filepath.Join(buildDir, "util", "util.s"))
	be.Err(t, err, nil)
	be.True(t, strings.Contains(string(first), "_first:"))
	second, err := os.ReadFile(filepath.Join(buildDir, "util", "util_1.s"))
	be.Err(t, err, nil)
	be.True(t, strings.Contains(string(second), "_second:"))
}

func TestBuildCompilesSourcesInParallel(t *testing.T) {
	files := map[string]string{}
	var sources []string
	for _, name := range []string{"a", "b", "c", "d"} {
		files[name+".cej"] = name + " :: () int { return 1; }"
		sources = append(sources, name+".cej")
	}
	files["main.cej"] = "main :: () int { return 0; }"
	sources = append(sources, "main.cej")
	dir := writeSources(t, files)
	for i := range sources {
		sources[i] = filepath.Join(dir, sources[i])
	}

	tc := &recordingToolchain{}
	bf := &BuildFile{Targets: []*BuildTarget{{Kind: Executable, Name: "many", Sources: sources}}}
	_, err := Build(context.Background(), bf, tc, BuildOptions{BuildDir: filepath.Join(dir, "out"), Jobs: 3})
	be.Err(t, err, nil)

	// Assembly order depends on scheduling; linking always comes last and
	// keeps the source order.
	be.Equal(t, len(tc.commands), 6)
	assembled := slices.Clone(tc.commands[:5])
	slices.Sort(assembled)
	be.Equal(t, assembled, []string{"as a.o", "as b.o", "as c.o", "as d.o", "as main.o"})
	be.Equal(t, tc.commands[5], "ld many a.o b.o c.o d.o main.o")
}

func TestBuildSkipLink(t *testing.T) {
	dir := writeSources(t, map[string]string{"main.cej": "main :: () int { return 3; }"})
	bf := &BuildFile{Targets: []*BuildTarget{{Kind: Executable, Name: "app", Sources: []string{filepath.Join(dir, "main.cej")}}}}

	tc := &recordingToolchain{}
	buildDir := filepath.Join(dir, "build")
	outputs, err := Build(context.Background(), bf, tc, BuildOptions{BuildDir: buildDir, SkipLink: true})
	be.Err(t, err, nil)

	be.Equal(t, outputs, []string{filepath.Join(buildDir, "app", "main.s")})
	be.Equal(t, len(tc.commands), 0)
}

func TestBuildReportsCompileErrors(t *testing.T) {
	dir := writeSources(t, map[string]string{"bad.cej": "main :: () int { return nope; }"})
	bf := &BuildFile{Targets: []*BuildTarget{{Kind: Executable, Name: "app", Sources: []string{filepath.Join(dir, "bad.cej")}}}}

	tc := &recordingToolchain{}
	_, err := Build(context.Background(), bf, tc, BuildOptions{BuildDir: filepath.Join(dir, "build")})
	be.Err(t, err, "target app:")
	be.Err(t, err, "bad.cej: 1:25: name error: undefined variable 'nope'")

	var nameErr *NameError
	be.True(t, errors.As(err, &nameErr))
	be.Equal(t, len(tc.commands), 0)
}

func TestBuildReportsToolchainErrors(t *testing.T) {
	dir := writeSources(t, map[string]string{"main.cej": "main :: () int { return 0; }"})
	bf := &BuildFile{Targets: []*BuildTarget{{Kind: Executable, Name: "app", Sources: []string{filepath.Join(dir, "main.cej")}}}}

	tc := &recordingToolchain{failOn: "ld"}
	outputs, err := Build(context.Background(), bf, tc, BuildOptions{BuildDir: filepath.Join(dir, "build")})
	be.Err(t, err, "target app: tool failed")
	be.Equal(t, len(outputs), 0)
}

func TestBuildMissingSource(t *testing.T) {
	dir := t.TempDir()
	bf := &BuildFile{Targets: []*BuildTarget{{Kind: Executable, Name: "app", Sources: []string{filepath.Join(dir, "gone.cej")}}}}
	_, err := Build(context.Background(), bf, &recordingToolchain{}, BuildOptions{BuildDir: filepath.Join(dir, "build")})
	be.Err(t, err, "reading ")
	be.Err(t, err, os.ErrNotExist)
}

func TestBuildCompilerFlagsSelectAccumulate(t *testing.T) {
	dir := writeSources(t, map[string]string{"bad.cej": "main :: () int { return a + b; }"})
	source := filepath.Join(dir, "bad.cej")

	bf := &BuildFile{Targets: []*BuildTarget{{Kind: Executable, Name: "app", Sources: []string{source}}}}
	_, err := Build(context.Background(), bf, &recordingToolchain{}, BuildOptions{BuildDir: filepath.Join(dir, "b1")})
	be.Err(t, err, "undefined variable 'a'")
	be.True(t, !strings.Contains(err.Error(), "undefined variable 'b'"))

	bf.Targets[0].CompilerFlags = "-all"
	_, err = Build(context.Background(), bf, &recordingToolchain{}, BuildOptions{BuildDir: filepath.Join(dir, "b2")})
	be.Err(t, err, "undefined variable 'a'")
	be.Err(t, err, "undefined variable 'b'")
}
