// Package syntax runs the tree-sitter Verilog grammar over a source file and
// reports the regions the grammar could not parse.
package syntax

import (
	"context"
	"fmt"
	"os"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/verilog"
)

// maxDiagnostics caps the report for badly broken files.
const maxDiagnostics = 20

// Diagnostic is a syntax problem found by the grammar.
type Diagnostic struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Missing bool   `json:"missing,omitempty"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%d:%d: %s", d.Line, d.Column, d.Message)
}

// Checker wraps a tree-sitter parser loaded with the Verilog grammar.
// A Checker is not safe for concurrent use; create one per goroutine.
type Checker struct {
	parser *sitter.Parser
}

// New creates a Checker
func New() *Checker {
	parser := sitter.NewParser()
	parser.SetLanguage(verilog.GetLanguage())
	return &Checker{parser: parser}
}

// Close releases the underlying parser
func (c *Checker) Close() {
	c.parser.Close()
}

// CheckFile reads and checks a file
func (c *Checker) CheckFile(ctx context.Context, path string) ([]Diagnostic, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return c.Check(ctx, content)
}

// Check parses src and returns one diagnostic per ERROR or MISSING node, in
// source order. A nil slice means the grammar accepted the whole file.
func (c *Checker) Check(ctx context.Context, src []byte) ([]Diagnostic, error) {
	tree, err := c.parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil, nil
	}

	var diags []Diagnostic
	walkTree(root, src, &diags)
	return diags, nil
}

// walkTree collects error nodes. Subtrees without errors are skipped and an
// ERROR node is reported once, without descending into it.
func walkTree(node *sitter.Node, source []byte, diags *[]Diagnostic) {
	if node == nil || len(*diags) >= maxDiagnostics {
		return
	}

	switch {
	case node.IsMissing():
		*diags = append(*diags, newDiagnostic(node, true, fmt.Sprintf("missing %q", node.Type())))
		return
	case node.IsError():
		*diags = append(*diags, newDiagnostic(node, false, fmt.Sprintf("unexpected %q", snippet(node.Content(source)))))
		return
	case !node.HasError():
		return
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		walkTree(node.Child(i), source, diags)
	}
}

func newDiagnostic(node *sitter.Node, missing bool, msg string) Diagnostic {
	pt := node.StartPoint()
	return Diagnostic{
		Line:    int(pt.Row) + 1,
		Column:  int(pt.Column) + 1,
		Missing: missing,
		Message: msg,
	}
}

func snippet(s string) string {
	const max = 40
	for i, r := range s {
		if r == '\n' {
			s = s[:i]
			break
		}
	}
	// Cut on a rune boundary so messages stay valid UTF-8.
	for i := range s {
		if i >= max {
			return s[:i] + "..."
		}
	}
	return s
}
