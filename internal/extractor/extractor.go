package extractor

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Version identifies the extraction rules. Cached interfaces produced by a
// different version are discarded.
const Version = "scan-2"

// Extractor reads Verilog files and extracts their module interface.
// It holds no state and is safe for concurrent use.
type Extractor struct{}

// New creates a new Extractor
func New() *Extractor {
	return &Extractor{}
}

// Extract reads a Verilog file and extracts its module interface
func (e *Extractor) Extract(filePath string) (*ModuleInterface, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	iface, err := Parse(content)
	if err != nil {
		return nil, &ExtractError{File: filePath, Err: err}
	}
	return iface, nil
}

// Parse extracts the module interface from Verilog source text.
//
// The token stream is walked once. Three declaration shapes are recognised
// anywhere in the text:
//
//	parameter <name> = <integer>
//	module <name>                        (first occurrence only)
//	input|output [reg|wire] [<range>] <name>{, <name>}
//
// ErrMissingModuleDeclaration is returned when no module header exists.
func Parse(src []byte) (*ModuleInterface, error) {
	s := &scanner{
		toks:   tokenize(src),
		params: make(map[string]int),
	}
	s.scan()
	if !s.haveModule {
		return nil, ErrMissingModuleDeclaration
	}
	return s.build(), nil
}

type rawPort struct {
	name      string
	dir       Direction
	line      int
	hasRange  bool
	rangeText string
	rangeTok  token
	supported bool
}

type scanner struct {
	toks []token

	moduleName string
	haveModule bool

	params     map[string]int
	paramOrder []string

	ports []rawPort
	diags []Diagnostic
}

func (s *scanner) at(i int) token {
	if i < len(s.toks) {
		return s.toks[i]
	}
	return s.toks[len(s.toks)-1] // EOF
}

func (s *scanner) scan() {
	for i, t := range s.toks {
		if t.kind != tokIdent {
			continue
		}
		switch t.text {
		case "parameter":
			s.parameter(i)
		case "module":
			if name := s.at(i + 1); !s.haveModule && name.kind == tokIdent && !isKeyword(name.text) {
				s.moduleName = name.text
				s.haveModule = true
			}
		case "input":
			s.port(i, Input)
		case "output":
			s.port(i, Output)
		}
	}
}

func (s *scanner) parameter(i int) {
	name, eq, val := s.at(i+1), s.at(i+2), s.at(i+3)
	if name.kind != tokIdent || isKeyword(name.text) || !eq.isPunct("=") {
		return
	}

	var n int
	ok := val.kind == tokNumber && endsValue(s.at(i+4))
	if ok {
		var err error
		n, err = strconv.Atoi(val.text)
		ok = err == nil
	}
	if !ok {
		s.diags = append(s.diags, Diagnostic{
			Kind:    MalformedParameterValue,
			Line:    val.line,
			Message: fmt.Sprintf("parameter %s: value %s is not a non-negative integer", name.text, s.valueText(i+3)),
		})
		return
	}

	if _, seen := s.params[name.text]; !seen {
		s.paramOrder = append(s.paramOrder, name.text)
	}
	s.params[name.text] = n
}

// valueText renders the tokens of a parameter value up to its terminator.
func (s *scanner) valueText(i int) string {
	var b strings.Builder
	for j := i; ; j++ {
		t := s.at(j)
		if t.kind == tokEOF || endsValue(t) {
			break
		}
		b.WriteString(t.text)
	}
	if b.Len() == 0 {
		return "(empty)"
	}
	return strconv.Quote(b.String())
}

func endsValue(t token) bool {
	return t.kind == tokEOF || t.isPunct(";") || t.isPunct(",") || t.isPunct(")")
}

func (s *scanner) port(i int, dir Direction) {
	j := i + 1
	if t := s.at(j); t.kind == tokIdent && (t.text == "reg" || t.text == "wire" || t.text == "logic") {
		j++
	}
	if t := s.at(j); t.kind == tokIdent && (t.text == "signed" || t.text == "unsigned") {
		j++
	}

	proto := rawPort{dir: dir, line: s.at(i).line}
	if s.at(j).isPunct("[") {
		end := j + 1
		for !s.at(end).isPunct("]") {
			if s.at(end).kind == tokEOF {
				return
			}
			end++
		}
		inner := s.toks[j+1 : end]
		proto.hasRange = true
		proto.rangeText = joinTokens(inner)
		proto.rangeTok, proto.supported = rangeToken(inner)
		j = end + 1
	}

	name := s.at(j)
	if name.kind != tokIdent || isKeyword(name.text) {
		return
	}
	s.addPort(proto, name)

	// input [3:0] a, b, c
	for s.at(j+1).isPunct(",") {
		next := s.at(j + 2)
		if next.kind != tokIdent || isKeyword(next.text) {
			break
		}
		s.addPort(proto, next)
		j += 2
	}
}

func (s *scanner) addPort(proto rawPort, name token) {
	proto.name = name.text
	s.ports = append(s.ports, proto)
}

// rangeToken picks the width token out of a bracketed range. Accepted
// shapes are [], [T], [T:0] and [T-1:0] where T is a number or identifier.
func rangeToken(inner []token) (token, bool) {
	if len(inner) == 0 {
		return token{}, true
	}
	head := inner[0]
	if head.kind != tokIdent && head.kind != tokNumber {
		return token{}, false
	}
	rest := inner[1:]
	switch {
	case len(rest) == 0:
		return head, true
	case len(rest) == 2 && rest[0].isPunct(":") && rest[1].is(tokNumber, "0"):
		return head, true
	case len(rest) == 4 && rest[0].isPunct("-") && rest[1].is(tokNumber, "1") &&
		rest[2].isPunct(":") && rest[3].is(tokNumber, "0"):
		return head, true
	}
	return token{}, false
}

func (s *scanner) build() *ModuleInterface {
	iface := &ModuleInterface{
		Name:       s.moduleName,
		Parameters: make([]Parameter, 0, len(s.paramOrder)),
		Ports:      make([]Port, 0, len(s.ports)),
	}
	for _, name := range s.paramOrder {
		iface.Parameters = append(iface.Parameters, Parameter{Name: name, Value: s.params[name]})
	}
	for _, rp := range s.ports {
		iface.Ports = append(iface.Ports, s.resolve(rp))
	}

	sort.SliceStable(s.diags, func(a, b int) bool {
		return s.diags[a].Line < s.diags[b].Line
	})
	iface.Diagnostics = s.diags
	return iface
}

// resolve applies the width rules: parameter value, else literal+1, else 1.
func (s *scanner) resolve(rp rawPort) Port {
	p := Port{
		Name:        rp.name,
		Direction:   rp.dir,
		Width:       1,
		WidthSource: WidthDefaulted,
		Line:        rp.line,
	}
	if !rp.hasRange {
		return p
	}
	if !rp.supported {
		p.Range = rp.rangeText
		s.diags = append(s.diags, Diagnostic{
			Kind:    UnsupportedRange,
			Line:    rp.line,
			Message: fmt.Sprintf("port %s: range [%s] is not [N], [N:0] or [N-1:0]; width defaults to 1", rp.name, rp.rangeText),
		})
		return p
	}

	tok := rp.rangeTok
	if tok.text == "" {
		return p
	}
	p.Range = tok.text

	if v, ok := s.params[tok.text]; ok && v > 0 && v <= MaxWidth {
		p.Width = v
		p.WidthSource = WidthParameter
		return p
	}
	if tok.kind == tokNumber {
		if n, err := strconv.Atoi(tok.text); err == nil && n < MaxWidth {
			p.Width = n + 1
			p.WidthSource = WidthLiteral
			return p
		}
	}

	s.diags = append(s.diags, Diagnostic{
		Kind:    UnresolvedRange,
		Line:    rp.line,
		Message: fmt.Sprintf("port %s: range token %s does not resolve to a width; width defaults to 1", rp.name, tok.text),
	})
	return p
}

// MaxWidth is the widest port the extractor resolves. Wider ranges, by
// literal or by parameter, default to 1 bit with an UnresolvedRange
// diagnostic.
const MaxWidth = 1 << 24

func joinTokens(toks []token) string {
	var b strings.Builder
	for _, t := range toks {
		b.WriteString(t.text)
	}
	return b.String()
}

var keywords = map[string]bool{
	"module": true, "endmodule": true, "parameter": true, "localparam": true,
	"input": true, "output": true, "inout": true,
	"reg": true, "wire": true, "logic": true, "signed": true, "unsigned": true,
	"begin": true, "end": true, "always": true, "assign": true, "initial": true,
}

func isKeyword(s string) bool {
	return keywords[s]
}
