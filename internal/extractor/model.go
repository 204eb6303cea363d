package extractor

// Direction is the declared direction of a module port.
type Direction string

const (
	Input  Direction = "input"
	Output Direction = "output"
)

// WidthSource records which rule produced a port's bit width.
type WidthSource string

const (
	// WidthParameter: the range token named a parameter, width = parameter value.
	WidthParameter WidthSource = "parameter"
	// WidthLiteral: the range token was a decimal literal N, width = N+1.
	WidthLiteral WidthSource = "literal"
	// WidthDefaulted: no range, an empty range, or an unresolvable token. Width is 1.
	WidthDefaulted WidthSource = "default"
)

// Parameter is a named integer constant declared in the module text.
type Parameter struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// Port is a single input or output of the module under test.
type Port struct {
	Name        string      `json:"name"`
	Direction   Direction   `json:"direction"`
	Width       int         `json:"width"`
	Range       string      `json:"range,omitempty"` // range token as written, e.g. "W" or "3"
	WidthSource WidthSource `json:"width_source"`
	Line        int         `json:"line"`
}

// ModuleInterface is the extracted port/parameter model of one module.
// It is built once by Parse and not modified afterwards.
type ModuleInterface struct {
	Name string `json:"name"`

	// Parameters holds one entry per distinct name in first-declaration
	// order. When a name is declared twice the later value wins.
	Parameters []Parameter `json:"parameters"`

	// Ports in declaration order.
	Ports []Port `json:"ports"`

	// Diagnostics are non-fatal findings (skipped or defaulted matches).
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Parameter returns the value of the named parameter.
func (m *ModuleInterface) Parameter(name string) (int, bool) {
	for _, p := range m.Parameters {
		if p.Name == name {
			return p.Value, true
		}
	}
	return 0, false
}

// Inputs returns the input ports in declaration order.
func (m *ModuleInterface) Inputs() []Port {
	var in []Port
	for _, p := range m.Ports {
		if p.Direction == Input {
			in = append(in, p)
		}
	}
	return in
}

// HasInput reports whether an input port with the given name exists.
func (m *ModuleInterface) HasInput(name string) bool {
	for _, p := range m.Ports {
		if p.Direction == Input && p.Name == name {
			return true
		}
	}
	return false
}
