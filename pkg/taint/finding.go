package taint

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrRecursionLimit is recorded when a callee is already being
	// resolved or the call depth budget is exhausted.
	ErrRecursionLimit = errors.New("recursion limit reached")
	// ErrNotFound is returned when a callee body cannot be resolved.
	ErrNotFound = errors.New("function not found")
)

// Finding is one dangerous argument at one sink call site.
type Finding struct {
	Path     string `json:"path"`
	Line     int    `json:"line"`
	Sink     string `json:"sink"`
	SinkType string `json:"sink_type"`
	// Argument is the 1-based argument position.
	Argument int      `json:"argument"`
	ArgName  string   `json:"arg_name,omitempty"`
	Origins  []Origin `json:"origins"`
	Safe     bool     `json:"safe"`
	// FromSource is set when an origin is a request input such as $_GET.
	FromSource bool `json:"from_source"`
	// UserDefined is set when the sink is a function proven to forward an
	// argument into a built-in sink.
	UserDefined bool `json:"user_defined"`
}

// Reportable reports whether the finding names at least one tainted origin.
func (f Finding) Reportable() bool {
	return !f.Safe && len(f.Origins) > 0
}

// OriginNames returns the origin names in order.
func (f Finding) OriginNames() []string {
	return Result{Origins: f.Origins}.Names()
}

// Status is "safe" for a sanitized argument, "constant" for one built only
// from literals and constants, and "tainted" otherwise.
func (f Finding) Status() string {
	switch {
	case f.Safe:
		return "safe"
	case len(f.Origins) == 0:
		return "constant"
	}
	return "tainted"
}

func (f Finding) String() string {
	head := fmt.Sprintf("%s:%d %s arg %d [%s] %s", f.Path, f.Line, f.Sink, f.Argument, f.SinkType, f.Status())
	if !f.Reportable() {
		return head
	}
	return head + " <- " + strings.Join(f.OriginNames(), ", ")
}

type findingKey struct {
	path     string
	line     int
	sink     string
	argument int
}

func (f Finding) key() findingKey {
	return findingKey{path: f.Path, line: f.Line, sink: strings.ToLower(f.Sink), argument: f.Argument}
}

// SortFindings orders findings by path, line, sink and argument.
func SortFindings(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Sink != b.Sink {
			return a.Sink < b.Sink
		}
		return a.Argument < b.Argument
	})
}

// DedupeFindings drops repeated reports of the same sink argument, keeping
// the first. Callee bodies analyzed from several files report their own
// sinks once per analysis.
func DedupeFindings(findings []Finding) []Finding {
	seen := make(map[findingKey]bool, len(findings))
	out := findings[:0]
	for _, f := range findings {
		k := f.key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, f)
	}
	return out
}

// Diagnostic is a non-fatal analysis problem, such as a cut-off recursion.
type Diagnostic struct {
	Path     string `json:"path"`
	Line     int    `json:"line"`
	Function string `json:"function,omitempty"`
	Message  string `json:"message"`
	Err      error  `json:"-"`
}

func (d Diagnostic) Error() string {
	if d.Function != "" {
		return fmt.Sprintf("%s:%d: %s: %s", d.Path, d.Line, d.Function, d.Message)
	}
	return fmt.Sprintf("%s:%d: %s", d.Path, d.Line, d.Message)
}

func (d Diagnostic) Unwrap() error {
	return d.Err
}
