// Package cfg builds control flow graphs over PHP statement lists. Blocks and
// edges live in index-addressed slices of a Graph; edges refer to blocks by
// BlockID.
package cfg

import (
	"github.com/l3aro/go-vulhunter/pkg/dfg"
	"github.com/l3aro/go-vulhunter/pkg/phpast"
)

// BlockID indexes Graph.Blocks.
type BlockID int

// EdgeID indexes Graph.Edges.
type EdgeID int

// NoBlock marks an absent predecessor or join block.
const NoBlock BlockID = -1

// BlockType represents the type of a CFG block.
type BlockType string

const (
	BlockTypeEntry      BlockType = "entry"       // First block of a graph
	BlockTypeLoopHeader BlockType = "loop_header" // Block holding a loop-control expression
	BlockTypeReturn     BlockType = "return"      // Block ending in a return
	BlockTypeExit       BlockType = "exit"        // Block ending in throw/break/continue
	BlockTypePlain      BlockType = "plain"       // Regular statements
)

// EdgeType represents the type of a CFG edge.
type EdgeType string

const (
	EdgeTypeUnconditional EdgeType = "unconditional" // Fallthrough or loop entry
	EdgeTypeConditional   EdgeType = "conditional"   // Guarded by a branch condition
	EdgeTypeElse          EdgeType = "else"          // Taken when no other branch matched
)

// Block is a basic block: a straight-line run of statements.
type Block struct {
	ID    BlockID
	Nodes []phpast.Node
	Entry bool
	// Exit is set when the block ends in throw, break or continue. The
	// builder never adds an outgoing edge to an exit block.
	Exit bool
	// LoopVar is the loop-control expression captured before a loop body.
	LoopVar phpast.Node
	In      []EdgeID
	Out     []EdgeID
	Summary *dfg.Summary
}

// Type classifies the block for display.
func (b *Block) Type() BlockType {
	switch {
	case b.Entry:
		return BlockTypeEntry
	case b.Exit:
		return BlockTypeExit
	case b.endsInReturn():
		return BlockTypeReturn
	case b.LoopVar != nil:
		return BlockTypeLoopHeader
	}
	return BlockTypePlain
}

func (b *Block) endsInReturn() bool {
	if len(b.Nodes) == 0 {
		return false
	}
	_, ok := b.Nodes[len(b.Nodes)-1].(*phpast.Return)
	return ok
}

// Lines returns the source line span of the block's statements, or zeros for
// an empty block.
func (b *Block) Lines() (start, end int) {
	for _, n := range b.Nodes {
		p := n.Position()
		if p.StartLine == 0 {
			continue
		}
		if start == 0 || p.StartLine < start {
			start = p.StartLine
		}
		if p.EndLine > end {
			end = p.EndLine
		}
	}
	return start, end
}

// Edge is a directed link between two blocks. Cond holds the branch
// condition nodes; it is empty for fallthrough and loop entry.
type Edge struct {
	ID   EdgeID
	From BlockID
	To   BlockID
	Cond []phpast.Node
}

// Type classifies the edge by its condition.
func (e *Edge) Type() EdgeType {
	if len(e.Cond) == 0 {
		return EdgeTypeUnconditional
	}
	if len(e.Cond) == 1 && e.Cond[0] == ElseMarker {
		return EdgeTypeElse
	}
	return EdgeTypeConditional
}

// Graph owns every block and edge of one CFG.
type Graph struct {
	Blocks []*Block
	Edges  []*Edge

	blockOf map[phpast.Node]BlockID
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{blockOf: make(map[phpast.Node]BlockID)}
}

// NewBlock allocates an empty block.
func (g *Graph) NewBlock() *Block {
	b := &Block{ID: BlockID(len(g.Blocks)), Summary: dfg.NewSummary()}
	g.Blocks = append(g.Blocks, b)
	return b
}

// Block returns the block with the given id, or nil.
func (g *Graph) Block(id BlockID) *Block {
	if id < 0 || int(id) >= len(g.Blocks) {
		return nil
	}
	return g.Blocks[id]
}

// AddEdge links from to to and registers the edge on both endpoints.
func (g *Graph) AddEdge(from, to BlockID, cond []phpast.Node) EdgeID {
	e := &Edge{ID: EdgeID(len(g.Edges)), From: from, To: to, Cond: cond}
	g.Edges = append(g.Edges, e)
	g.Blocks[from].Out = append(g.Blocks[from].Out, e.ID)
	g.Blocks[to].In = append(g.Blocks[to].In, e.ID)
	return e.ID
}

// Successors returns the targets of a block's outgoing edges.
func (g *Graph) Successors(id BlockID) []BlockID {
	var out []BlockID
	for _, eid := range g.Blocks[id].Out {
		out = append(out, g.Edges[eid].To)
	}
	return out
}

// Predecessors returns the sources of a block's incoming edges.
func (g *Graph) Predecessors(id BlockID) []BlockID {
	var out []BlockID
	for _, eid := range g.Blocks[id].In {
		out = append(out, g.Edges[eid].From)
	}
	return out
}

// BlockOf returns the block a statement or call expression was placed in.
func (g *Graph) BlockOf(n phpast.Node) (*Block, bool) {
	id, ok := g.blockOf[n]
	if !ok {
		return nil, false
	}
	return g.Blocks[id], true
}

// place records n and every call inside it as belonging to block id.
func (g *Graph) place(n phpast.Node, id BlockID) {
	if n == nil {
		return
	}
	if _, ok := n.(*phpast.Marker); ok {
		return
	}
	g.blockOf[n] = id
	for _, call := range phpast.Calls(n) {
		g.blockOf[call] = id
	}
}

// CFGBlock is the serializable view of a block.
type CFGBlock struct {
	ID           int       `json:"id"`
	Type         BlockType `json:"type"`
	StartLine    int       `json:"start_line"`
	EndLine      int       `json:"end_line"`
	Statements   []string  `json:"statements"`
	Summary      []string  `json:"summary,omitempty"`
	Predecessors []int     `json:"predecessors"`
}

// CFGEdge is the serializable view of an edge.
type CFGEdge struct {
	SourceID  int      `json:"source_id"`
	TargetID  int      `json:"target_id"`
	EdgeType  EdgeType `json:"edge_type"`
	Condition string   `json:"condition,omitempty"`
}

// CFGInfo is the serializable view of a whole graph.
type CFGInfo struct {
	Name                 string     `json:"name"`
	Blocks               []CFGBlock `json:"blocks"`
	Edges                []CFGEdge  `json:"edges"`
	EntryBlockID         int        `json:"entry_block_id"`
	ExitBlockIDs         []int      `json:"exit_block_ids"`
	Includes             []string   `json:"includes,omitempty"`
	CyclomaticComplexity int        `json:"cyclomatic_complexity"`
	Acyclic              bool       `json:"acyclic"`
	Unreachable          []int      `json:"unreachable,omitempty"`
}

// Info builds the serializable view of g.
func (g *Graph) Info(name string) *CFGInfo {
	info := &CFGInfo{
		Name:         name,
		Blocks:       make([]CFGBlock, 0, len(g.Blocks)),
		Edges:        make([]CFGEdge, 0, len(g.Edges)),
		EntryBlockID: int(g.Entry()),
		ExitBlockIDs: make([]int, 0),
	}
	for _, b := range g.Blocks {
		start, end := b.Lines()
		view := CFGBlock{
			ID:           int(b.ID),
			Type:         b.Type(),
			StartLine:    start,
			EndLine:      end,
			Statements:   make([]string, 0, len(b.Nodes)),
			Summary:      b.Summary.Lines(),
			Predecessors: make([]int, 0, len(b.In)),
		}
		for _, n := range b.Nodes {
			view.Statements = append(view.Statements, Describe(n))
		}
		for _, p := range g.Predecessors(b.ID) {
			view.Predecessors = append(view.Predecessors, int(p))
		}
		if len(b.Out) == 0 {
			info.ExitBlockIDs = append(info.ExitBlockIDs, int(b.ID))
		}
		info.Blocks = append(info.Blocks, view)
	}
	for _, e := range g.Edges {
		info.Edges = append(info.Edges, CFGEdge{
			SourceID:  int(e.From),
			TargetID:  int(e.To),
			EdgeType:  e.Type(),
			Condition: describeCond(e.Cond),
		})
	}
	stats := g.Stats()
	info.CyclomaticComplexity = stats.Cyclomatic
	info.Acyclic = stats.Acyclic
	for _, id := range stats.Unreachable {
		info.Unreachable = append(info.Unreachable, int(id))
	}
	return info
}

// Entry returns the entry block, or NoBlock for an empty graph.
func (g *Graph) Entry() BlockID {
	for _, b := range g.Blocks {
		if b.Entry {
			return b.ID
		}
	}
	if len(g.Blocks) > 0 {
		return 0
	}
	return NoBlock
}
