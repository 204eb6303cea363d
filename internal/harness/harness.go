// Package harness synthesizes a Verilog testbench for an extracted module
// interface.
//
// The generated testbench instantiates the module, declares one local
// signal per port, toggles `clk` when present, pulses `rst` when present and
// then drives every other input with uniform random values before calling
// $finish. Everything except the random literals is a pure function of the
// interface and Options.
package harness

import (
	"fmt"
	"io"
	"math/rand/v2"
	"strings"

	"github.com/robert-at-pretension-io/tbgen/internal/extractor"
)

const (
	// Prefix is prepended to the module name to name the testbench.
	Prefix = "tb_"

	// InstanceSuffix is appended to the module name to name the instance.
	InstanceSuffix = "0"

	DefaultClockPeriod    = 2
	DefaultStimulusRounds = 10

	// stepDelay is the #delay before each stimulus assignment, each reset
	// edge and $finish.
	stepDelay = 10

	clockPort = "clk"
	resetPort = "rst"
	indent    = "    "
)

// Source supplies random bits. *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	Uint64() uint64
}

// Options controls synthesis. Zero values select the defaults.
type Options struct {
	ClockPeriod    int
	StimulusRounds int

	// Rand supplies stimulus values. When nil a fresh, randomly seeded
	// generator is used for this call only.
	Rand Source
}

func (o Options) withDefaults() Options {
	if o.ClockPeriod <= 0 {
		o.ClockPeriod = DefaultClockPeriod
	}
	if o.StimulusRounds <= 0 {
		o.StimulusRounds = DefaultStimulusRounds
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return o
}

// Lines is a synthesized testbench, one element per output line without
// the line terminator.
type Lines []string

// String renders the lines with a trailing newline.
func (l Lines) String() string {
	if len(l) == 0 {
		return ""
	}
	return strings.Join(l, "\n") + "\n"
}

// WriteTo writes the rendered testbench to w.
func (l Lines) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, l.String())
	return int64(n), err
}

// Name returns the testbench module name for a module.
func Name(module string) string {
	return Prefix + module
}

// FileName returns the conventional file name for a module's testbench.
func FileName(module string) string {
	return Name(module) + ".v"
}

// Synthesize builds the testbench for iface. It never fails: a module
// without ports yields a structurally valid, if empty, testbench.
func Synthesize(iface *extractor.ModuleInterface, opts Options) Lines {
	opts = opts.withDefaults()
	s := &synth{iface: iface, opts: opts}

	s.header()
	s.parameters()
	s.instance()
	s.signals()
	if iface.HasInput(clockPort) {
		s.clock()
	}
	s.stimulus()
	s.footer()
	return s.out
}

type synth struct {
	iface *extractor.ModuleInterface
	opts  Options
	out   Lines
}

func (s *synth) emit(format string, args ...any) {
	s.out = append(s.out, fmt.Sprintf(format, args...))
}

func (s *synth) blank() {
	s.out = append(s.out, "")
}

func (s *synth) header() {
	s.emit("module %s();", Name(s.iface.Name))
	s.blank()
}

func (s *synth) parameters() {
	for _, p := range s.iface.Parameters {
		s.emit("parameter %s = %d;", p.Name, p.Value)
	}
	if len(s.iface.Parameters) > 0 {
		s.blank()
	}
	s.emit("parameter CLK_PERIOD = %d;", s.opts.ClockPeriod)
	s.blank()
}

func (s *synth) instance() {
	name := s.iface.Name
	s.emit("%s %s%s(", name, name, InstanceSuffix)
	for i, p := range s.iface.Ports {
		sep := ","
		if i == len(s.iface.Ports)-1 {
			sep = ""
		}
		s.emit("%s.%s(%s)%s", indent, p.Name, p.Name, sep)
	}
	s.emit(");")
	s.blank()
}

func (s *synth) signals() {
	for _, p := range s.iface.Ports {
		kind := "wire"
		if p.Direction == extractor.Input {
			kind = "reg"
		}
		if p.Width > 1 {
			s.emit("%s [%d:0] %s;", kind, p.Width-1, p.Name)
		} else {
			s.emit("%s %s;", kind, p.Name)
		}
	}
}

func (s *synth) clock() {
	s.blank()
	s.emit("initial begin")
	s.emit("%s%s = 0;", indent, clockPort)
	s.emit("%sforever #(CLK_PERIOD/2) %s = ~%s;", indent, clockPort, clockPort)
	s.emit("end")
}

// stimulus emits the single initial block driving reset and the free
// inputs. The reset sequence is rst=1, then rst=0, then rst=1 again; this
// shape is kept as-is for compatibility with existing testbenches.
func (s *synth) stimulus() {
	free := s.freeInputs()
	hasReset := s.iface.HasInput(resetPort)

	s.blank()
	s.emit("initial begin")
	if hasReset {
		s.emit("%s%s = 1;", indent, resetPort)
	}
	for _, p := range free {
		s.emit("%s%s = 0;", indent, p.Name)
	}
	if hasReset {
		s.blank()
		s.emit("%s#%d %s = 0;", indent, stepDelay, resetPort)
		s.emit("%s#%d %s = 1;", indent, stepDelay, resetPort)
	}
	for round := 0; round < s.opts.StimulusRounds; round++ {
		for _, p := range free {
			s.emit("%s#%d %s = %s;", indent, stepDelay, p.Name, RandomLiteral(p.Width, s.opts.Rand))
		}
	}
	s.emit("%s#%d $finish();", indent, stepDelay)
}

func (s *synth) footer() {
	s.emit("end")
	s.emit("endmodule")
}

// freeInputs returns the inputs other than clk and rst in port order.
func (s *synth) freeInputs() []extractor.Port {
	var free []extractor.Port
	for _, p := range s.iface.Inputs() {
		if p.Name == clockPort || p.Name == resetPort {
			continue
		}
		free = append(free, p)
	}
	return free
}

// RandomLiteral draws a value uniformly from [0, 2^width-1] and renders it
// as a sized binary literal with exactly width digits, e.g. 4'b0110.
// Widths below 1 are treated as 1 and widths above extractor.MaxWidth are
// clamped to it.
func RandomLiteral(width int, src Source) string {
	if width < 1 {
		width = 1
	}
	if width > extractor.MaxWidth {
		width = extractor.MaxWidth
	}
	digits := make([]byte, width)
	for base := 0; base < width; base += 64 {
		word := src.Uint64()
		for bit := 0; bit < 64 && base+bit < width; bit++ {
			digits[width-1-(base+bit)] = '0' + byte(word>>bit&1)
		}
	}
	return fmt.Sprintf("%d'b%s", width, digits)
}
