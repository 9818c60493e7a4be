// Package dfg defines the per-block data-flow summary: the assignments,
// constants, global declarations, register-global items and return values
// observed in one basic block.
package dfg

import (
	"fmt"
	"strings"

	"github.com/l3aro/go-vulhunter/pkg/symbol"
)

// DataFlow is one assignment fact: Location receives Value. Name is the
// canonical name of the location used by the tracer.
type DataFlow struct {
	Name     string
	Location *symbol.Symbol
	Value    *symbol.Symbol
	Line     int
}

// String renders the record as "name <- value".
func (f *DataFlow) String() string {
	var b strings.Builder
	b.WriteString(f.Name)
	b.WriteString(" <- ")
	b.WriteString(describe(f.Value))
	if tags := f.Location.Sanitization(); len(tags) > 0 {
		fmt.Fprintf(&b, " [sanitized: %s]", strings.Join(tags, ","))
	}
	if tags := f.Location.Encoding(); len(tags) > 0 {
		fmt.Fprintf(&b, " [encoded: %s]", strings.Join(tags, ","))
	}
	return b.String()
}

func describe(s *symbol.Symbol) string {
	switch s.Kind() {
	case symbol.Concat, symbol.Multiple:
		parts := make([]string, 0, len(s.Items()))
		for _, item := range s.Items() {
			parts = append(parts, describe(item))
		}
		sep := " . "
		if s.Kind() == symbol.Multiple {
			sep = " | "
		}
		return "(" + strings.Join(parts, sep) + ")"
	case symbol.Value:
		return fmt.Sprintf("%q", s.Name())
	case symbol.Unknown:
		return "?"
	}
	return s.Name()
}

// Constant is a define() call or const declaration.
type Constant struct {
	Name  string
	Value *symbol.Symbol
	Line  int
}

// GlobalDefine is a variable named in a global statement.
type GlobalDefine struct {
	Name string
	Line int
}

// RegisterGlobal is a variable whose value request data can influence
// through bulk extraction or a $GLOBALS write. URLOverwrite is set when
// request data may overwrite an existing variable.
type RegisterGlobal struct {
	Name         string
	URLOverwrite bool
	Line         int
}

// ReturnValue is the expression of a return statement.
type ReturnValue struct {
	Value *symbol.Symbol
	Line  int
}

// Summary aggregates the data-flow facts of one basic block. Records are kept
// in insertion order.
type Summary struct {
	DataFlows       []*DataFlow
	Constants       []Constant
	GlobalDefines   []GlobalDefine
	RegisterGlobals []RegisterGlobal
	ReturnValues    []ReturnValue
}

// NewSummary creates an empty summary.
func NewSummary() *Summary {
	return &Summary{}
}

func (s *Summary) AddDataFlow(f *DataFlow) {
	s.DataFlows = append(s.DataFlows, f)
}

func (s *Summary) AddConstant(c Constant) {
	s.Constants = append(s.Constants, c)
}

func (s *Summary) AddGlobalDefine(g GlobalDefine) {
	s.GlobalDefines = append(s.GlobalDefines, g)
}

func (s *Summary) AddRegisterGlobal(r RegisterGlobal) {
	s.RegisterGlobals = append(s.RegisterGlobals, r)
}

func (s *Summary) AddReturnValue(r ReturnValue) {
	s.ReturnValues = append(s.ReturnValues, r)
}

// Reset clears every record.
func (s *Summary) Reset() {
	*s = Summary{}
}

// Constant returns the most recent definition of a constant.
func (s *Summary) Constant(name string) (Constant, bool) {
	for i := len(s.Constants) - 1; i >= 0; i-- {
		if s.Constants[i].Name == name {
			return s.Constants[i], true
		}
	}
	return Constant{}, false
}

// IsRegisterGlobal reports whether name was registered as request-influenced.
func (s *Summary) IsRegisterGlobal(name string) (RegisterGlobal, bool) {
	for _, r := range s.RegisterGlobals {
		if r.Name == name {
			return r, true
		}
	}
	return RegisterGlobal{}, false
}

// Empty reports whether the summary holds no records.
func (s *Summary) Empty() bool {
	return len(s.DataFlows) == 0 && len(s.Constants) == 0 && len(s.GlobalDefines) == 0 &&
		len(s.RegisterGlobals) == 0 && len(s.ReturnValues) == 0
}

// Lines renders the summary as human-readable lines, one per record.
func (s *Summary) Lines() []string {
	var out []string
	for _, f := range s.DataFlows {
		out = append(out, "flow "+f.String())
	}
	for _, c := range s.Constants {
		out = append(out, fmt.Sprintf("const %s = %s", c.Name, describe(c.Value)))
	}
	for _, g := range s.GlobalDefines {
		out = append(out, "global "+g.Name)
	}
	for _, r := range s.RegisterGlobals {
		out = append(out, fmt.Sprintf("register_global %s (overwrite=%t)", r.Name, r.URLOverwrite))
	}
	for _, r := range s.ReturnValues {
		out = append(out, "return "+describe(r.Value))
	}
	return out
}
