package main

import (
	"errors"
	"fmt"
	"strings"
)

// SyntaxError reports a malformed token sequence.
type SyntaxError struct {
	Expected string
	Actual   Token
	Line     int
	Column   int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%d:%d: syntax error: expected %s but got %s", e.Line, e.Column, e.Expected, e.Actual)
}

// NameError reports a redeclaration or an unresolved reference.
type NameError struct {
	Name    string
	Line    int
	Column  int
	Message string
}

func (e *NameError) Error() string {
	return fmt.Sprintf("%d:%d: name error: %s", e.Line, e.Column, e.Message)
}

// CodegenError reports an internal invariant violation in the generator.
// Programs accepted by the analyzer should never produce one except for
// constructs the backend does not support.
type CodegenError struct {
	Function string
	Message  string
}

func (e *CodegenError) Error() string {
	if e.Function == "" {
		return "codegen error: " + e.Message
	}
	return fmt.Sprintf("codegen error in %s: %s", e.Function, e.Message)
}

// ErrUnanalyzed is returned by Generate when it is handed an analysis that
// is missing or contains errors.
var ErrUnanalyzed = errors.New("code generation requires an error-free analysis")

// DiagnosticMode selects between stopping at the first error and collecting
// every error a stage can find.
type DiagnosticMode int

const (
	FailFast DiagnosticMode = iota
	Accumulate
)

// ErrorCollection accumulates diagnostics from one stage.
type ErrorCollection struct {
	errs []error
}

func (c *ErrorCollection) Add(err error) {
	c.errs = append(c.errs, err)
}

func (c *ErrorCollection) HasErrors() bool {
	return len(c.errs) > 0
}

func (c *ErrorCollection) Len() int {
	return len(c.errs)
}

// Errors returns the collected errors in the order they were reported.
func (c *ErrorCollection) Errors() []error {
	return c.errs
}

// String renders one error per line.
func (c *ErrorCollection) String() string {
	lines := make([]string, len(c.errs))
	for i, err := range c.errs {
		lines[i] = err.Error()
	}
	return strings.Join(lines, "\n")
}

// Err returns nil when the collection is empty, the single error when there
// is exactly one, and a joined error otherwise. The result still unwraps to
// each collected error with errors.As.
func (c *ErrorCollection) Err() error {
	switch len(c.errs) {
	case 0:
		return nil
	case 1:
		return c.errs[0]
	default:
		return errors.Join(c.errs...)
	}
}
