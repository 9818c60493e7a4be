package cfg

import "github.com/l3aro/go-vulhunter/pkg/phpast"

// ElseMarker is the condition of an else, default or false-arm branch.
var ElseMarker = &phpast.Marker{Label: "else"}

// Branch is one alternative execution path of a jump statement. The
// condition nodes are placed at the front of Nodes so they are summarized
// with the branch body.
type Branch struct {
	Cond  []phpast.Node
	Nodes []phpast.Node
}

func newBranch(cond []phpast.Node, body []phpast.Node) Branch {
	nodes := make([]phpast.Node, 0, len(cond)+len(body))
	for _, c := range cond {
		if c != nil {
			nodes = append(nodes, c)
		}
	}
	nodes = append(nodes, body...)
	return Branch{Cond: cond, Nodes: nodes}
}

// Decompose splits a jump statement into its branches. Switch cases are
// independent paths; fallthrough is not modelled. A finally body is appended
// to the try branch and to every catch branch. Other node kinds yield nil.
func Decompose(n phpast.Node) []Branch {
	var branches []Branch

	switch n := n.(type) {
	case *phpast.If:
		branches = append(branches, newBranch([]phpast.Node{n.Cond}, n.Body))
		for _, ei := range n.ElseIfs {
			branches = append(branches, newBranch([]phpast.Node{ei.Cond}, ei.Body))
		}
		if n.Else != nil {
			branches = append(branches, newBranch([]phpast.Node{ElseMarker}, n.Else.Body))
		}

	case *phpast.Switch:
		for _, c := range n.Cases {
			label := c.Cond
			if label == nil {
				label = ElseMarker
			}
			branches = append(branches, newBranch([]phpast.Node{n.Cond, label}, c.Body))
		}

	case *phpast.TryCatch:
		branches = append(branches, newBranch(nil, withFinally(n.Body, n.Finally)))
		for _, c := range n.Catches {
			var cond []phpast.Node
			if c.Type != nil {
				cond = []phpast.Node{c.Type}
			}
			branches = append(branches, newBranch(cond, withFinally(c.Body, n.Finally)))
		}

	case *phpast.Ternary:
		var then []phpast.Node
		if n.Then != nil {
			then = []phpast.Node{n.Then}
		}
		branches = append(branches, newBranch([]phpast.Node{n.Cond}, then))
		branches = append(branches, newBranch([]phpast.Node{ElseMarker}, []phpast.Node{n.Else}))

	case *phpast.LogicalOr:
		for _, leaf := range orLeaves(n) {
			branches = append(branches, newBranch([]phpast.Node{leaf}, nil))
		}
	}

	return branches
}

func withFinally(body, finally []phpast.Node) []phpast.Node {
	if len(finally) == 0 {
		return body
	}
	out := make([]phpast.Node, 0, len(body)+len(finally))
	out = append(out, body...)
	return append(out, finally...)
}

// orLeaves flattens a tree of "or" operators into its non-or operands,
// left to right.
func orLeaves(n phpast.Node) []phpast.Node {
	or, ok := n.(*phpast.LogicalOr)
	if !ok {
		if n == nil {
			return nil
		}
		return []phpast.Node{n}
	}
	return append(orLeaves(or.Left), orLeaves(or.Right)...)
}
