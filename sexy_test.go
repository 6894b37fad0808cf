package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cejlang/cej/sexy"
	"github.com/nalgeon/be"
)

// TestSexyAllTests runs every markdown suite under test/. Each test case
// compiles its input as far as its assertions need and checks the result.
func TestSexyAllTests(t *testing.T) {
	testFiles, err := filepath.Glob("test/*_test.md")
	be.Err(t, err, nil)
	be.True(t, len(testFiles) > 0)

	for _, testFile := range testFiles {
		testName := strings.TrimSuffix(filepath.Base(testFile), ".md")

		t.Run(testName, func(t *testing.T) {
			content, err := os.ReadFile(testFile)
			be.Err(t, err, nil)

			testCases, err := sexy.ExtractTestCases(string(content))
			be.Err(t, err, nil)

			for _, tc := range testCases {
				t.Run(tc.Name, func(t *testing.T) {
					runSexyTestCase(t, tc)
				})
			}
		})
	}
}

func runSexyTestCase(t *testing.T, tc sexy.TestCase) {
	var tree string
	var source []byte
	switch tc.InputType {
	case sexy.InputTypeExpr:
		expr, err := ParseExpression(NewLexer([]byte(tc.Input)))
		if err == nil {
			tree = ToSExpr(expr)
		}
		source = ExpressionProgram(tc.Input)
		if hasAssertion(tc, sexy.AssertionTypeAST) {
			be.Err(t, err, nil)
		}
	case sexy.InputTypeProgram:
		source = []byte(tc.Input)
		if prog, err := ParseSource(source, CompileOptions{}); err == nil {
			tree = ProgramToSExpr(prog)
		}
	default:
		t.Fatalf("unknown input type: %s", tc.InputType)
	}

	for _, assertion := range tc.Assertions {
		switch assertion.Type {
		case sexy.AssertionTypeAST:
			assertSexyMatch(t, assertion, tree)

		case sexy.AssertionTypeFrame:
			c, err := CheckSource(source, CompileOptions{})
			be.Err(t, err, nil)
			frames, err := LayoutFrames(c.Program, c.Analysis)
			be.Err(t, err, nil)

			var lines []string
			for _, f := range frames {
				lines = append(lines, f.String())
			}
			// Each pattern matches the frame of the same function.
			for _, pattern := range assertion.ParsedSexy {
				name := pattern.Items[1].Text
				got := ""
				for _, f := range frames {
					if f.Function == name {
						got = f.String()
					}
				}
				if got == "" {
					t.Errorf("line %d: no frame for %q in\n%s", assertion.Line, name, strings.Join(lines, "\n"))
					continue
				}
				actual, err := sexy.Parse(got)
				be.Err(t, err, nil)
				if !sexy.Match(pattern, actual) {
					t.Errorf("line %d: frame mismatch\nwant: %s\n got: %s", assertion.Line, pattern, got)
				}
			}

		case sexy.AssertionTypeAsm:
			c, err := CompileSource(source, CompileOptions{})
			be.Err(t, err, nil)
			if !sexy.ContainsLines(c.Assembly, assertion.Content) {
				t.Errorf("line %d: assembly does not contain\n%s\n\ngot:\n%s", assertion.Line, assertion.Content, c.Assembly)
			}

		case sexy.AssertionTypeCompileError:
			_, err := CompileSource(source, CompileOptions{})
			be.Err(t, err, strings.TrimSpace(assertion.Content))
		}
	}
}

func hasAssertion(tc sexy.TestCase, at sexy.AssertionType) bool {
	for _, a := range tc.Assertions {
		if a.Type == at {
			return true
		}
	}
	return false
}

func assertSexyMatch(t *testing.T, assertion sexy.Assertion, tree string) {
	t.Helper()
	if tree == "" {
		t.Errorf("line %d: input did not parse", assertion.Line)
		return
	}
	actual, err := sexy.Parse(tree)
	be.Err(t, err, nil)
	if len(assertion.ParsedSexy) != 1 {
		t.Fatalf("line %d: ast fence must hold exactly one s-expression", assertion.Line)
	}
	if !sexy.Match(assertion.ParsedSexy[0], actual) {
		t.Errorf("line %d: ast mismatch\nwant: %s\n got: %s", assertion.Line, assertion.ParsedSexy[0], tree)
	}
}
