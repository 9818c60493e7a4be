package cfg

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/multi"
)

type dotNode struct {
	id    int64
	label string
	shape string
}

func (n dotNode) ID() int64 { return n.id }
func (n dotNode) DOTID() string { return fmt.Sprintf("b%d", n.id) }
func (n dotNode) Attributes() []encoding.Attribute {
	return []encoding.Attribute{
		{Key: "label", Value: n.label},
		{Key: "shape", Value: n.shape},
	}
}

// dotLine is one CFG edge. Parallel edges between the same blocks are kept.
type dotLine struct {
	id       int64
	from, to dotNode
	label    string
	style    string
}

func (l dotLine) ID() int64 { return l.id }
func (l dotLine) From() graph.Node { return l.from }
func (l dotLine) To() graph.Node { return l.to }
func (l dotLine) ReversedLine() graph.Line {
	l.from, l.to = l.to, l.from
	return l
}
func (l dotLine) Attributes() []encoding.Attribute {
	var attrs []encoding.Attribute
	if l.label != "" {
		attrs = append(attrs, encoding.Attribute{Key: "label", Value: l.label})
	}
	if l.style != "" {
		attrs = append(attrs, encoding.Attribute{Key: "style", Value: l.style})
	}
	return attrs
}

// DOT renders the graph in Graphviz format. Each node lists its statements
// one per line; exit blocks are drawn as octagons and else edges dashed.
// Labels are raw text, quoted by the encoder.
func (g *Graph) DOT(name string) ([]byte, error) {
	dg := multi.NewDirectedGraph()
	nodes := make([]dotNode, len(g.Blocks))
	for i, b := range g.Blocks {
		lines := []string{fmt.Sprintf("#%d %s", b.ID, b.Type())}
		for _, n := range b.Nodes {
			lines = append(lines, Describe(n))
		}
		if b.LoopVar != nil {
			lines = append(lines, "loop: "+expr(b.LoopVar))
		}
		shape := "box"
		if b.Exit {
			shape = "octagon"
		}
		nodes[i] = dotNode{id: int64(b.ID), label: strings.Join(lines, "\n"), shape: shape}
		dg.AddNode(nodes[i])
	}
	for _, e := range g.Edges {
		l := dotLine{id: int64(e.ID), from: nodes[e.From], to: nodes[e.To], label: describeCond(e.Cond)}
		if e.Type() == EdgeTypeElse {
			l.style = "dashed"
		}
		dg.SetLine(l)
	}
	data, err := dot.MarshalMulti(dg, name, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding cfg %s as dot: %w", name, err)
	}
	return data, nil
}
