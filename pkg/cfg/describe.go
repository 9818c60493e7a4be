package cfg

import (
	"fmt"
	"strings"

	"github.com/l3aro/go-vulhunter/pkg/phpast"
	"github.com/l3aro/go-vulhunter/pkg/symbol"
)

// Describe renders a one-line label for a node, e.g. "assign $sql" or
// "call mysql_query($sql)".
func Describe(n phpast.Node) string {
	label := describe(n)
	if line := n.Position().StartLine; line > 0 {
		return fmt.Sprintf("%d: %s", line, label)
	}
	return label
}

func describe(n phpast.Node) string {
	switch n := n.(type) {
	case *phpast.Marker:
		return n.Label
	case *phpast.Assign:
		return fmt.Sprintf("assign %s = %s", expr(n.Var), expr(n.Expr))
	case *phpast.AssignOp:
		return fmt.Sprintf("assign %s %s= %s", expr(n.Var), n.Op, expr(n.Expr))
	case *phpast.Call:
		return "call " + expr(n)
	case *phpast.Return:
		if n.Expr == nil {
			return "return"
		}
		return "return " + expr(n.Expr)
	case *phpast.Global:
		parts := make([]string, 0, len(n.Vars))
		for _, v := range n.Vars {
			parts = append(parts, expr(v))
		}
		return "global " + strings.Join(parts, ", ")
	case *phpast.ConstDecl:
		parts := make([]string, 0, len(n.Consts))
		for _, c := range n.Consts {
			parts = append(parts, c.Name)
		}
		return "const " + strings.Join(parts, ", ")
	}
	return expr(n)
}

// expr renders an expression compactly. Unmodelled expressions collapse to
// their kind.
func expr(n phpast.Node) string {
	switch n := n.(type) {
	case nil:
		return ""
	case *phpast.Variable:
		if n.Dynamic {
			return "$$?"
		}
		return "$" + n.Name
	case *phpast.ArrayDimFetch, *phpast.PropertyFetch:
		return "$" + symbol.NameOf(n)
	case *phpast.Literal:
		if n.Kind == phpast.LiteralString {
			return fmt.Sprintf("%q", n.Value)
		}
		return n.Value
	case *phpast.ConstFetch:
		return n.Name
	case *phpast.Concat:
		return expr(n.Left) + " . " + expr(n.Right)
	case *phpast.LogicalOr:
		return expr(n.Left) + " or " + expr(n.Right)
	case *phpast.BinaryOp:
		return expr(n.Left) + " " + n.Op + " " + expr(n.Right)
	case *phpast.Ternary:
		return expr(n.Cond) + " ? " + expr(n.Then) + " : " + expr(n.Else)
	case *phpast.Cast:
		return "(" + n.Type + ")" + expr(n.Expr)
	case *phpast.Call:
		args := make([]string, 0, len(n.Args))
		for _, a := range n.Args {
			args = append(args, expr(a))
		}
		name := n.Name
		if name == "" {
			name = "{dynamic}"
		}
		return name + "(" + strings.Join(args, ", ") + ")"
	case *phpast.Assign:
		return expr(n.Var) + " = " + expr(n.Expr)
	case *phpast.AssignOp:
		return expr(n.Var) + " " + n.Op + "= " + expr(n.Expr)
	case *phpast.Marker:
		return n.Label
	case *phpast.Unknown:
		return "<" + n.Kind + ">"
	}
	return fmt.Sprintf("<%T>", n)
}

func describeCond(cond []phpast.Node) string {
	parts := make([]string, 0, len(cond))
	for _, c := range cond {
		if c != nil {
			parts = append(parts, expr(c))
		}
	}
	return strings.Join(parts, " == ")
}
