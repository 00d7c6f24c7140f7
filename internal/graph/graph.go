package graph

import "rowjit/internal/layout"

// Graph is a build-time, single-writer structure: a set of Nodes addressed
// by NodeId, plus the LayoutCache shared by every IR function reachable
// from those nodes.
type Graph struct {
	cache *layout.LayoutCache
	nodes []Node
}

// NewGraph starts an empty graph backed by cache. cache's lifetime must
// outlive the Graph.
func NewGraph(cache *layout.LayoutCache) *Graph {
	return &Graph{cache: cache}
}

// AddNode appends node and returns its freshly minted, monotonically
// increasing NodeId.
func (g *Graph) AddNode(node Node) NodeId {
	id := NodeId(len(g.nodes))
	g.nodes = append(g.nodes, node)
	return id
}

// Node returns the node registered under id.
func (g *Graph) Node(id NodeId) Node { return g.nodes[id] }

// Nodes returns the ordered mapping of NodeId -> Node, in insertion order.
// Insertion order is NOT a topological order; callers that need one must
// derive it from each node's explicit input edges.
func (g *Graph) Nodes() []Node { return g.nodes }

// NumNodes returns the number of nodes registered so far.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// LayoutCache returns the graph's shared LayoutCache.
func (g *Graph) LayoutCache() *layout.LayoutCache { return g.cache }

// Inputs returns the input NodeIds of node, in operator-defined order (the
// order codegen and the runtime must preserve when wiring ABI pointers).
func Inputs(n Node) []NodeId {
	switch t := n.(type) {
	case *Source:
		return nil
	case *Sink:
		return []NodeId{t.Input}
	case *Map:
		return []NodeId{t.Input}
	case *Filter:
		return []NodeId{t.Input}
	case *IndexWith:
		return []NodeId{t.Input}
	case *Fold:
		return []NodeId{t.Input}
	case *Neg:
		return []NodeId{t.Input}
	case *Sum:
		return t.Inputs
	case *Differentiate:
		return []NodeId{t.Input}
	default:
		return nil
	}
}
