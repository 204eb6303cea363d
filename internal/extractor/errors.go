package extractor

import (
	"errors"
	"fmt"
)

// ErrMissingModuleDeclaration is returned when the text has no `module <name>`.
var ErrMissingModuleDeclaration = errors.New("missing module declaration")

// ExtractError ties an extraction failure to the file it came from.
type ExtractError struct {
	File string
	Err  error
}

func (e *ExtractError) Error() string {
	if e.File == "" {
		return e.Err.Error()
	}
	return e.File + ": " + e.Err.Error()
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// DiagnosticKind classifies a non-fatal extraction finding.
type DiagnosticKind string

const (
	// MalformedParameterValue: `parameter X = <value>` where value is not a
	// plain non-negative decimal integer. The declaration is skipped.
	MalformedParameterValue DiagnosticKind = "malformed_parameter_value"

	// UnresolvedRange: the range token is an identifier that is not a
	// known parameter. The port width defaults to 1.
	UnresolvedRange DiagnosticKind = "unresolved_range"

	// UnsupportedRange: the range is not one of `[N]`, `[N:0]`, `[N-1:0]`.
	// The port width defaults to 1.
	UnsupportedRange DiagnosticKind = "unsupported_range"
)

// Diagnostic is a non-fatal finding with its source line.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	Line    int            `json:"line"`
	Message string         `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("line %d: %s: %s", d.Line, d.Kind, d.Message)
}
