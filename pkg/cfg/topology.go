package cfg

import (
	"github.com/yourbasic/graph"
)

// Order implements graph.Iterator from github.com/yourbasic/graph.
func (g *Graph) Order() int {
	return len(g.Blocks)
}

// Visit implements graph.Iterator: it calls do for every successor of v.
func (g *Graph) Visit(v int, do func(w int, c int64) (skip bool)) (aborted bool) {
	if v < 0 || v >= len(g.Blocks) {
		return false
	}
	for _, eid := range g.Blocks[v].Out {
		if do(int(g.Edges[eid].To), 1) {
			return true
		}
	}
	return false
}

// Stats summarizes the shape of a graph.
type Stats struct {
	Blocks      int
	Edges       int
	Cyclomatic  int
	Acyclic     bool
	Unreachable []BlockID
}

// Stats computes block/edge counts, the cyclomatic number E - N + 2, and
// the blocks not reachable from the entry block. Join blocks whose every
// branch exits show up as unreachable.
func (g *Graph) Stats() Stats {
	s := Stats{
		Blocks:  len(g.Blocks),
		Edges:   len(g.Edges),
		Acyclic: graph.Acyclic(g),
	}
	if s.Blocks == 0 {
		s.Cyclomatic = 1
		return s
	}
	s.Cyclomatic = s.Edges - s.Blocks + 2

	entry := int(g.Entry())
	reached := make([]bool, len(g.Blocks))
	reached[entry] = true
	graph.BFS(g, entry, func(_, w int, _ int64) {
		reached[w] = true
	})
	for id, ok := range reached {
		if !ok {
			s.Unreachable = append(s.Unreachable, BlockID(id))
		}
	}
	return s
}

// TopologicalOrder returns the block ids in an order where every block comes
// after its predecessors. ok is false if the graph has a cycle.
func (g *Graph) TopologicalOrder() (order []BlockID, ok bool) {
	ids, ok := graph.TopSort(g)
	if !ok {
		return nil, false
	}
	order = make([]BlockID, 0, len(ids))
	for _, id := range ids {
		order = append(order, BlockID(id))
	}
	return order, true
}
