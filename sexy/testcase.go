package sexy

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// InputType represents the type of input code fence in a test
type InputType string

const (
	InputTypeExpr    InputType = "cej-expr"
	InputTypeProgram InputType = "cej-program"
)

// AssertionType represents the type of assertion code fence in a test
type AssertionType string

const (
	// AssertionTypeAST compares the syntax tree with an s-expression
	// pattern.
	AssertionTypeAST AssertionType = "ast"

	// AssertionTypeFrame compares the stack frames, one (frame ...) per
	// function.
	AssertionTypeFrame AssertionType = "frame"

	// AssertionTypeAsm requires the listed instructions to appear as a
	// contiguous run in the generated assembly.
	AssertionTypeAsm AssertionType = "asm"

	// AssertionTypeCompileError requires compilation to fail with an
	// error containing the fence text.
	AssertionTypeCompileError AssertionType = "compile-error"
)

// Assertion represents a single assertion in a test
type Assertion struct {
	Type       AssertionType
	Content    string  // The raw content of the assertion code fence
	ParsedSexy []*Node // The parsed s-expressions for ast and frame fences
	Line       int     // Line of the fence in the markdown source
}

// TestCase represents a complete test case extracted from Markdown
type TestCase struct {
	Name       string    // The test name from the heading (after "Test: ")
	Input      string    // The raw input code from the input fence
	InputType  InputType // The type of input fence
	Assertions []Assertion
}

// ExtractTestCases parses a Markdown document and extracts all test cases.
// A test starts at a heading "Test: <name>" and owns the fences up to the
// next such heading.
func ExtractTestCases(markdownContent string) ([]TestCase, error) {
	md := goldmark.New()
	source := []byte(markdownContent)
	doc := md.Parser().Parse(text.NewReader(source))

	var testCases []TestCase
	var currentTestCase *TestCase

	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch n := node.(type) {
		case *ast.Heading:
			headingText := extractTextFromNode(n, source)
			if !strings.HasPrefix(headingText, "Test: ") {
				return ast.WalkContinue, nil
			}
			if currentTestCase != nil {
				if err := validateTestCase(currentTestCase); err != nil {
					return ast.WalkStop, err
				}
				testCases = append(testCases, *currentTestCase)
			}
			currentTestCase = &TestCase{
				Name:       strings.TrimPrefix(headingText, "Test: "),
				Assertions: []Assertion{},
			}

		case *ast.FencedCodeBlock:
			language := string(n.Language(source))
			content := strings.TrimRight(extractCodeBlockContent(n, source), "\n")
			lineNum := getLineNumber(n, source)

			if currentTestCase == nil {
				if language != "" {
					return ast.WalkStop, fmt.Errorf("line %d: %s fence found outside of test case", lineNum, language)
				}
				// Plain code blocks are documentation.
				return ast.WalkContinue, nil
			}

			switch {
			case isInputFence(language):
				if currentTestCase.Input != "" {
					return ast.WalkStop, fmt.Errorf("line %d: multiple input fences found in test '%s'", lineNum, currentTestCase.Name)
				}
				currentTestCase.Input = content
				currentTestCase.InputType = InputType(language)

			case isAssertionFence(language):
				assertion := Assertion{Type: AssertionType(language), Content: content, Line: lineNum}
				if assertion.Type == AssertionTypeAST || assertion.Type == AssertionTypeFrame {
					parsed, err := ParseAll(content)
					if err != nil {
						return ast.WalkStop, fmt.Errorf("line %d: failed to parse assertion in test '%s': %w", lineNum, currentTestCase.Name, err)
					}
					assertion.ParsedSexy = parsed
				}
				currentTestCase.Assertions = append(currentTestCase.Assertions, assertion)

			case language != "":
				return ast.WalkStop, fmt.Errorf("line %d: unknown fence language '%s' in test '%s'", lineNum, language, currentTestCase.Name)
			}
		}

		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking markdown AST: %w", err)
	}

	if currentTestCase != nil {
		if err := validateTestCase(currentTestCase); err != nil {
			return nil, err
		}
		testCases = append(testCases, *currentTestCase)
	}
	return testCases, nil
}

// extractTextFromNode extracts plain text content from a markdown node
func extractTextFromNode(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if t, ok := n.(*ast.Text); ok {
				buf.Write(t.Segment.Value(source))
			}
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

// extractCodeBlockContent extracts the content from a fenced code block
func extractCodeBlockContent(codeBlock *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	for i := 0; i < codeBlock.Lines().Len(); i++ {
		line := codeBlock.Lines().At(i)
		buf.Write(line.Value(source))
	}
	return buf.String()
}

func isInputFence(language string) bool {
	return language == string(InputTypeExpr) || language == string(InputTypeProgram)
}

func isAssertionFence(language string) bool {
	switch AssertionType(language) {
	case AssertionTypeAST, AssertionTypeFrame, AssertionTypeAsm, AssertionTypeCompileError:
		return true
	}
	return false
}

// validateTestCase ensures a test case has both input and at least one assertion
func validateTestCase(testCase *TestCase) error {
	if testCase.Input == "" {
		return fmt.Errorf("test '%s' has no input fence", testCase.Name)
	}
	if len(testCase.Assertions) == 0 {
		return fmt.Errorf("test '%s' has no assertion fences", testCase.Name)
	}
	return nil
}

// getLineNumber calculates the line number of a given AST node
func getLineNumber(node ast.Node, source []byte) int {
	if node.Lines().Len() == 0 {
		return 1
	}
	startPos := node.Lines().At(0).Start
	return bytes.Count(source[:min(startPos, len(source))], []byte("\n")) + 1
}

// ContainsLines reports whether the lines of want appear consecutively in
// got. Lines are compared with surrounding whitespace trimmed and blank
// lines in want are ignored.
func ContainsLines(got, want string) bool {
	gotLines := trimmedLines(got)
	wantLines := trimmedLines(want)
	if len(wantLines) == 0 {
		return true
	}
	for start := 0; start+len(wantLines) <= len(gotLines); start++ {
		match := true
		for i, line := range wantLines {
			if gotLines[start+i] != line {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func trimmedLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
