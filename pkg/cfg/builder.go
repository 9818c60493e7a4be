package cfg

import (
	"strings"

	"github.com/l3aro/go-vulhunter/pkg/phpast"
)

// Summarizer populates a block's data-flow summary once its statements are
// final. The builder calls it exactly once per finished block.
type Summarizer interface {
	Summarize(g *Graph, b *Block)
}

// SummarizerFunc adapts a function to the Summarizer interface.
type SummarizerFunc func(g *Graph, b *Block)

// Summarize calls f(g, b).
func (f SummarizerFunc) Summarize(g *Graph, b *Block) { f(g, b) }

// Builder constructs a Graph from statement lists.
type Builder struct {
	graph      *Graph
	summarizer Summarizer
	includes   []string
	seen       map[string]bool
}

// NewBuilder creates a builder. A nil summarizer leaves summaries empty.
func NewBuilder(s Summarizer) *Builder {
	return &Builder{
		graph:      NewGraph(),
		summarizer: s,
		seen:       make(map[string]bool),
	}
}

// Graph returns the graph under construction.
func (b *Builder) Graph() *Graph {
	return b.graph
}

// Includes returns the literal include/require targets seen so far, in
// source order.
func (b *Builder) Includes() []string {
	return b.includes
}

// Build turns stmts into blocks. A fresh block is linked from pred with
// cond; once stmts are exhausted the last block is linked to join unless it
// is an exit block. Either of pred and join may be NoBlock. Build returns
// the last block produced.
func (b *Builder) Build(stmts []phpast.Node, cond []phpast.Node, pred, join BlockID) BlockID {
	g := b.graph
	curr := g.NewBlock()
	if pred != NoBlock {
		g.AddEdge(pred, curr.ID, cond)
	} else if len(g.Blocks) == 1 {
		curr.Entry = true
	}

	for _, stmt := range stmts {
		if stmt == nil {
			continue
		}
		b.collectIncludes(stmt)

		switch s := stmt.(type) {
		case *phpast.FunctionDecl, *phpast.ClassDecl:
			continue

		case *phpast.If, *phpast.Switch, *phpast.TryCatch, *phpast.Ternary, *phpast.LogicalOr:
			b.summarize(curr)
			next := g.NewBlock()
			for _, br := range Decompose(s) {
				b.Build(br.Nodes, br.Cond, curr.ID, next.ID)
			}
			curr = next

		case *phpast.For, *phpast.While, *phpast.DoWhile, *phpast.Foreach:
			loopVar, body := loopParts(s)
			curr.LoopVar = loopVar
			g.place(loopVar, curr.ID)
			b.summarize(curr)
			next := g.NewBlock()
			b.Build(body, nil, curr.ID, next.ID)
			curr = next

		case *phpast.Throw, *phpast.Break, *phpast.Continue:
			curr.Exit = true
			b.summarize(curr)
			return curr.ID

		case *phpast.Return:
			b.appendNode(curr, s)
			b.summarize(curr)
			return curr.ID

		default:
			b.appendNode(curr, s)
		}
	}

	b.summarize(curr)
	if join != NoBlock && !curr.Exit {
		g.AddEdge(curr.ID, join, nil)
	}
	return curr.ID
}

func (b *Builder) appendNode(blk *Block, n phpast.Node) {
	blk.Nodes = append(blk.Nodes, n)
	b.graph.place(n, blk.ID)
}

func (b *Builder) summarize(blk *Block) {
	if b.summarizer != nil {
		b.summarizer.Summarize(b.graph, blk)
	}
}

// loopParts returns the loop-control expression and body of a loop: the
// first init expression of a for, the guard of while/do-while, the iterable
// of a foreach.
func loopParts(n phpast.Node) (phpast.Node, []phpast.Node) {
	switch n := n.(type) {
	case *phpast.For:
		var init phpast.Node
		if len(n.Init) > 0 {
			init = n.Init[0]
		}
		return init, n.Body
	case *phpast.While:
		return n.Cond, n.Body
	case *phpast.DoWhile:
		return n.Cond, n.Body
	case *phpast.Foreach:
		return n.Expr, n.Body
	}
	return nil, nil
}

func (b *Builder) collectIncludes(stmt phpast.Node) {
	for _, call := range phpast.Calls(stmt) {
		target, ok := IncludeTarget(call)
		if !ok || b.seen[target] {
			continue
		}
		b.seen[target] = true
		b.includes = append(b.includes, target)
	}
}

// IncludeTarget returns the file named by an include/require construct. Only
// the literal parts of the path expression are kept, so
// dirname(__FILE__) . '/lib.php' yields "/lib.php".
func IncludeTarget(call *phpast.Call) (string, bool) {
	if call.Kind != phpast.CallConstruct || len(call.Args) == 0 {
		return "", false
	}
	switch call.Name {
	case "include", "include_once", "require", "require_once":
	default:
		return "", false
	}
	var sb strings.Builder
	literalParts(call.Args[0], &sb)
	target := strings.TrimSpace(sb.String())
	if target == "" {
		return "", false
	}
	return target, true
}

func literalParts(n phpast.Node, sb *strings.Builder) {
	switch n := n.(type) {
	case *phpast.Literal:
		if n.Kind == phpast.LiteralString {
			sb.WriteString(n.Value)
		}
	case *phpast.Concat:
		literalParts(n.Left, sb)
		literalParts(n.Right, sb)
	}
}
