// Package symbol classifies PHP expression nodes into the symbolic values
// tracked by data-flow summaries: literal values, variables, array accesses,
// concatenations, constants and multi-operand values.
package symbol

import (
	"strings"

	"github.com/l3aro/go-vulhunter/pkg/phpast"
)

// Kind is the classification of a symbol.
type Kind int

const (
	Unknown Kind = iota
	Value
	Variable
	ArrayDimFetch
	Concat
	Constant
	// Multiple is a value derived from several operands without being a
	// string concatenation, such as a pass-through call or a ternary.
	Multiple
)

var kindNames = map[Kind]string{
	Unknown:       "unknown",
	Value:         "value",
	Variable:      "variable",
	ArrayDimFetch: "array_dim_fetch",
	Concat:        "concat",
	Constant:      "constant",
	Multiple:      "multiple",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// IsConstant reports whether the kind can never carry external data.
func (k Kind) IsConstant() bool {
	return k == Value || k == Constant
}

// Symbol is a classified expression.
type Symbol struct {
	kind         Kind
	name         string
	node         phpast.Node
	items        []*Symbol
	sanitization []string
	encoding     []string
}

// New creates a symbol directly. Used for synthetic symbols.
func New(kind Kind, name string, node phpast.Node, items ...*Symbol) *Symbol {
	return &Symbol{kind: kind, name: name, node: node, items: items}
}

// Kind returns the classification.
func (s *Symbol) Kind() Kind {
	if s == nil {
		return Unknown
	}
	return s.kind
}

// Name returns the canonical textual name ("id", "_GET[id]", "this->db").
func (s *Symbol) Name() string {
	if s == nil {
		return ""
	}
	return s.name
}

// Node returns the underlying AST node; nil for synthetic symbols.
func (s *Symbol) Node() phpast.Node {
	if s == nil {
		return nil
	}
	return s.node
}

// Items returns the operands of a Concat or Multiple symbol.
func (s *Symbol) Items() []*Symbol {
	if s == nil {
		return nil
	}
	return s.items
}

// Sanitization returns the sanitizer names applied to the symbol.
func (s *Symbol) Sanitization() []string {
	if s == nil {
		return nil
	}
	return s.sanitization
}

// Encoding returns the encoder names applied to the symbol.
func (s *Symbol) Encoding() []string {
	if s == nil {
		return nil
	}
	return s.encoding
}

// IsSanitized reports whether at least one sanitizer was applied.
func (s *Symbol) IsSanitized() bool {
	return s != nil && len(s.sanitization) > 0
}

// AddSanitization tags the symbol with a sanitizer name.
func (s *Symbol) AddSanitization(tag string) {
	s.sanitization = appendUnique(s.sanitization, tag)
}

// AddEncoding tags the symbol with an encoder name.
func (s *Symbol) AddEncoding(tag string) {
	s.encoding = appendUnique(s.encoding, tag)
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// Classify wraps an expression node in a symbol. It never returns nil.
func Classify(node phpast.Node) *Symbol {
	switch n := node.(type) {
	case *phpast.Literal:
		return &Symbol{kind: Value, name: n.Value, node: n}
	case *phpast.Variable:
		if n.Dynamic {
			return &Symbol{kind: Unknown, node: n}
		}
		return &Symbol{kind: Variable, name: n.Name, node: n}
	case *phpast.PropertyFetch:
		return &Symbol{kind: Variable, name: NameOf(n), node: n}
	case *phpast.ArrayDimFetch:
		return &Symbol{kind: ArrayDimFetch, name: NameOf(n), node: n}
	case *phpast.ConstFetch:
		return &Symbol{kind: Constant, name: n.Name, node: n}
	case *phpast.Concat:
		s := &Symbol{kind: Concat, node: n}
		for _, operand := range concatOperands(n) {
			s.items = append(s.items, Classify(operand))
		}
		return s
	case *phpast.Cast:
		inner := Classify(n.Expr)
		inner.node = n
		return inner
	case *phpast.Assign:
		return Classify(n.Expr)
	case *phpast.Ternary:
		s := &Symbol{kind: Multiple, node: n}
		if n.Then != nil {
			s.items = append(s.items, Classify(n.Then))
		} else {
			s.items = append(s.items, Classify(n.Cond))
		}
		s.items = append(s.items, Classify(n.Else))
		return s
	case *phpast.BinaryOp:
		if n.Op == "??" {
			return &Symbol{kind: Multiple, node: n, items: []*Symbol{Classify(n.Left), Classify(n.Right)}}
		}
		// arithmetic and comparison results carry no string data
		return &Symbol{kind: Value, node: n}
	case *phpast.Call:
		s := &Symbol{kind: Multiple, name: n.Name, node: n}
		for _, arg := range n.Args {
			s.items = append(s.items, Classify(arg))
		}
		return s
	}
	return &Symbol{kind: Unknown, node: node}
}

// concatOperands flattens a concatenation tree into its leaf operands in
// source order.
func concatOperands(n *phpast.Concat) []phpast.Node {
	var out []phpast.Node
	for _, side := range []phpast.Node{n.Left, n.Right} {
		if inner, ok := side.(*phpast.Concat); ok {
			out = append(out, concatOperands(inner)...)
			continue
		}
		if side != nil {
			out = append(out, side)
		}
	}
	return out
}

// NameOf returns the canonical textual name of an expression, or "" when the
// node has no stable name. $GLOBALS['x'] is named as the bare variable x.
func NameOf(node phpast.Node) string {
	switch n := node.(type) {
	case *phpast.Variable:
		return n.Name
	case *phpast.ArrayDimFetch:
		if name, ok := GlobalsName(n); ok {
			return name
		}
		return NameOf(n.Var) + "[" + NameOf(n.Dim) + "]"
	case *phpast.PropertyFetch:
		return NameOf(n.Var) + "->" + n.Name
	case *phpast.Literal:
		return n.Value
	case *phpast.ConstFetch:
		return n.Name
	case *phpast.Call:
		return n.Name
	case *phpast.Cast:
		return NameOf(n.Expr)
	case *phpast.Assign:
		return NameOf(n.Var)
	}
	return ""
}

// GlobalsName returns x for $GLOBALS['x'].
func GlobalsName(n *phpast.ArrayDimFetch) (string, bool) {
	base, ok := n.Var.(*phpast.Variable)
	if !ok || base.Name != "GLOBALS" || n.Dim == nil {
		return "", false
	}
	name := NameOf(n.Dim)
	if name == "" {
		return "", false
	}
	return name, true
}

// Base returns the root variable of a name: "_GET[id]" -> "_GET",
// "this->db" -> "this".
func Base(name string) string {
	if idx := strings.IndexAny(name, "[-"); idx > 0 {
		return name[:idx]
	}
	return name
}
