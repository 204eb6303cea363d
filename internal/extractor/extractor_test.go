package extractor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const counterSrc = `module counter(input clk, input rst, input [3:0] inc, output [3:0] count); endmodule`

func TestParseCounter(t *testing.T) {
	iface, err := Parse([]byte(counterSrc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if iface.Name != "counter" {
		t.Fatalf("expected module counter, got %q", iface.Name)
	}
	if len(iface.Parameters) != 0 {
		t.Fatalf("expected no parameters, got %+v", iface.Parameters)
	}

	want := []Port{
		{Name: "clk", Direction: Input, Width: 1, WidthSource: WidthDefaulted},
		{Name: "rst", Direction: Input, Width: 1, WidthSource: WidthDefaulted},
		{Name: "inc", Direction: Input, Width: 4, Range: "3", WidthSource: WidthLiteral},
		{Name: "count", Direction: Output, Width: 4, Range: "3", WidthSource: WidthLiteral},
	}
	if diff := cmp.Diff(want, iface.Ports, cmpopts.IgnoreFields(Port{}, "Line")); diff != "" {
		t.Fatalf("ports mismatch (-want +got):\n%s", diff)
	}
	if len(iface.Diagnostics) != 0 {
		t.Fatalf("expected no diagnostics, got %v", iface.Diagnostics)
	}
}

func TestParseWidthResolution(t *testing.T) {
	src := `
module top #(parameter W = 8) (
    input  wire [W-1:0] data,
    input  [3:0]        addr,
    input               clk,
    output reg  [N-1:0] q,
    output [7:0]        r,
    output [W:0]        s,
    input  []           e
);
endmodule
`
	iface, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	tests := []struct {
		name   string
		width  int
		source WidthSource
		rng    string
	}{
		{"data", 8, WidthParameter, "W"},
		{"addr", 4, WidthLiteral, "3"},
		{"clk", 1, WidthDefaulted, ""},
		{"q", 1, WidthDefaulted, "N"},
		{"r", 8, WidthLiteral, "7"},
		{"s", 8, WidthParameter, "W"},
		{"e", 1, WidthDefaulted, ""},
	}
	for _, tt := range tests {
		p := mustFindPort(t, iface, tt.name)
		if p.Width != tt.width || p.WidthSource != tt.source || p.Range != tt.rng {
			t.Fatalf("port %s: got width=%d source=%s range=%q, want width=%d source=%s range=%q",
				tt.name, p.Width, p.WidthSource, p.Range, tt.width, tt.source, tt.rng)
		}
	}

	if !hasDiagnostic(iface, UnresolvedRange) {
		t.Fatalf("expected unresolved range diagnostic for q, got %v", iface.Diagnostics)
	}
}

func TestParseParameterLastWins(t *testing.T) {
	src := `
module m;
parameter W = 4;
parameter D = 2;
parameter W = 8;
input [W-1:0] a;
endmodule
`
	iface, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := []Parameter{{Name: "W", Value: 8}, {Name: "D", Value: 2}}
	if diff := cmp.Diff(want, iface.Parameters); diff != "" {
		t.Fatalf("parameters mismatch (-want +got):\n%s", diff)
	}
	if p := mustFindPort(t, iface, "a"); p.Width != 8 {
		t.Fatalf("expected a to use last W value 8, got %d", p.Width)
	}
}

func TestParseParameterDeclaredAfterPort(t *testing.T) {
	src := `module m(input [W-1:0] a); parameter W = 16; endmodule`
	iface, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p := mustFindPort(t, iface, "a"); p.Width != 16 || p.WidthSource != WidthParameter {
		t.Fatalf("expected width 16 from parameter, got %+v", p)
	}
}

func TestParseMalformedParameterIsSkipped(t *testing.T) {
	src := `
module m;
parameter A = 8'hFF;
parameter B = -1;
parameter C = 3 + 4;
parameter D = 5;
endmodule
`
	iface, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(iface.Parameters) != 1 || iface.Parameters[0].Name != "D" || iface.Parameters[0].Value != 5 {
		t.Fatalf("expected only D=5, got %+v", iface.Parameters)
	}

	count := 0
	for _, d := range iface.Diagnostics {
		if d.Kind == MalformedParameterValue {
			count++
		}
	}
	if count != 3 {
		t.Fatalf("expected 3 malformed parameter diagnostics, got %v", iface.Diagnostics)
	}
}

func TestParseMissingModule(t *testing.T) {
	_, err := Parse([]byte("input clk;\noutput q;\n"))
	if !errors.Is(err, ErrMissingModuleDeclaration) {
		t.Fatalf("expected ErrMissingModuleDeclaration, got %v", err)
	}

	_, err = Parse([]byte("endmodule"))
	if !errors.Is(err, ErrMissingModuleDeclaration) {
		t.Fatalf("endmodule alone must not count as a module header, got %v", err)
	}
}

func TestParseFirstModuleWins(t *testing.T) {
	iface, err := Parse([]byte("module first(input a); endmodule\nmodule second(input b); endmodule\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if iface.Name != "first" {
		t.Fatalf("expected first, got %q", iface.Name)
	}
	if len(iface.Ports) != 2 {
		t.Fatalf("ports are scanned over the whole text, got %+v", iface.Ports)
	}
}

func TestParseNonANSIAndLists(t *testing.T) {
	src := `// adder with a header comment: input fake
module adder(a, b, cin, sum, cout);
  /* output ignored_in_comment; */
  input [7:0] a, b;
  input cin;
  output reg [7:0] sum;
  output cout;
endmodule
`
	iface, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	got := portNames(iface)
	want := []string{"a", "b", "cin", "sum", "cout"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("port order mismatch (-want +got):\n%s", diff)
	}
	if p := mustFindPort(t, iface, "b"); p.Width != 8 {
		t.Fatalf("expected b to share [7:0], got width %d", p.Width)
	}
	if p := mustFindPort(t, iface, "cin"); p.Line != 5 {
		t.Fatalf("expected cin on line 5, got %d", p.Line)
	}
}

func TestParseANSIListStopsAtNextDirection(t *testing.T) {
	iface, err := Parse([]byte("module m(input clk, rst, output [1:0] q, r); endmodule"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := []Port{
		{Name: "clk", Direction: Input, Width: 1, WidthSource: WidthDefaulted},
		{Name: "rst", Direction: Input, Width: 1, WidthSource: WidthDefaulted},
		{Name: "q", Direction: Output, Width: 2, Range: "1", WidthSource: WidthLiteral},
		{Name: "r", Direction: Output, Width: 2, Range: "1", WidthSource: WidthLiteral},
	}
	if diff := cmp.Diff(want, iface.Ports, cmpopts.IgnoreFields(Port{}, "Line")); diff != "" {
		t.Fatalf("ports mismatch (-want +got):\n%s", diff)
	}
}

func TestParseUnsupportedRange(t *testing.T) {
	iface, err := Parse([]byte("module m(input [7:4] nib, input signed [W*2-1:0] p); endmodule"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	nib := mustFindPort(t, iface, "nib")
	if nib.Width != 1 || nib.WidthSource != WidthDefaulted || nib.Range != "7:4" {
		t.Fatalf("expected defaulted nib with raw range, got %+v", nib)
	}
	if p := mustFindPort(t, iface, "p"); p.Width != 1 {
		t.Fatalf("expected p to default to width 1, got %+v", p)
	}
	if !hasDiagnostic(iface, UnsupportedRange) {
		t.Fatalf("expected unsupported range diagnostic, got %v", iface.Diagnostics)
	}
}

func TestParseOversizedWidthDefaults(t *testing.T) {
	src := `module m #(parameter W = 99999999999999, parameter MAX = 16777216) (
    input [W-1:0] huge,
    input [99999999:0] lit,
    input [MAX-1:0] edge
); endmodule`
	iface, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	for _, name := range []string{"huge", "lit"} {
		p := mustFindPort(t, iface, name)
		if p.Width != 1 || p.WidthSource != WidthDefaulted {
			t.Fatalf("expected %s to default to width 1, got %+v", name, p)
		}
	}
	if p := mustFindPort(t, iface, "edge"); p.Width != MaxWidth || p.WidthSource != WidthParameter {
		t.Fatalf("expected edge to resolve to MaxWidth, got %+v", p)
	}

	unresolved := 0
	for _, d := range iface.Diagnostics {
		if d.Kind == UnresolvedRange {
			unresolved++
		}
	}
	if unresolved != 2 {
		t.Fatalf("expected 2 unresolved range diagnostics, got %v", iface.Diagnostics)
	}
}

func TestParseIgnoresInout(t *testing.T) {
	iface, err := Parse([]byte("module m(inout sda, input scl); endmodule"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := portNames(iface); len(got) != 1 || got[0] != "scl" {
		t.Fatalf("expected only scl, got %v", got)
	}
}

func TestExtractReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "counter.v")
	if err := os.WriteFile(path, []byte(counterSrc), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	iface, err := New().Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if iface.Name != "counter" {
		t.Fatalf("expected counter, got %q", iface.Name)
	}

	empty := filepath.Join(dir, "empty.v")
	if err := os.WriteFile(empty, []byte("// nothing here\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	_, err = New().Extract(empty)
	var extractErr *ExtractError
	if !errors.As(err, &extractErr) || extractErr.File != empty {
		t.Fatalf("expected ExtractError for %s, got %v", empty, err)
	}
	if !errors.Is(err, ErrMissingModuleDeclaration) {
		t.Fatalf("expected wrapped ErrMissingModuleDeclaration, got %v", err)
	}

	if _, err := New().Extract(filepath.Join(dir, "missing.v")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func mustFindPort(t *testing.T, iface *ModuleInterface, name string) Port {
	t.Helper()
	for _, p := range iface.Ports {
		if p.Name == name {
			return p
		}
	}
	t.Fatalf("port %s not found in %v", name, portNames(iface))
	return Port{}
}

func portNames(iface *ModuleInterface) []string {
	var names []string
	for _, p := range iface.Ports {
		names = append(names, p.Name)
	}
	return names
}

func hasDiagnostic(iface *ModuleInterface, kind DiagnosticKind) bool {
	for _, d := range iface.Diagnostics {
		if d.Kind == kind {
			return true
		}
	}
	return false
}
