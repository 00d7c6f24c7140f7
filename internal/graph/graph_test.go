package graph

import (
	"testing"

	"rowjit/internal/coltype"
	"rowjit/internal/layout"
)

func u32Layout() layout.RowLayout {
	return layout.NewRowLayoutBuilder().WithRow(coltype.U32, false).Build()
}

func TestAddNodeIdsAreMonotonic(t *testing.T) {
	cache := layout.NewLayoutCache(layout.SigilOneIsNull)
	l := cache.Add(u32Layout())
	g := NewGraph(cache)

	src := g.AddNode(&Source{Layout: l})
	sink := g.AddNode(&Sink{Input: src})

	if src != 0 {
		t.Fatalf("first node id = %d, want 0", src)
	}
	if sink != 1 {
		t.Fatalf("second node id = %d, want 1", sink)
	}
	if g.NumNodes() != 2 {
		t.Fatalf("NumNodes = %d, want 2", g.NumNodes())
	}
}

func TestNodesReturnsInsertionOrder(t *testing.T) {
	cache := layout.NewLayoutCache(layout.SigilOneIsNull)
	l := cache.Add(u32Layout())
	g := NewGraph(cache)

	a := g.AddNode(&Source{Layout: l})
	b := g.AddNode(&Neg{Input: a, Layout: l})
	c := g.AddNode(&Sink{Input: b})

	nodes := g.Nodes()
	if len(nodes) != 3 {
		t.Fatalf("want 3 nodes, got %d", len(nodes))
	}
	if _, ok := nodes[a].(*Source); !ok {
		t.Fatalf("nodes[0] = %T, want *Source", nodes[a])
	}
	if _, ok := nodes[b].(*Neg); !ok {
		t.Fatalf("nodes[1] = %T, want *Neg", nodes[b])
	}
	if _, ok := nodes[c].(*Sink); !ok {
		t.Fatalf("nodes[2] = %T, want *Sink", nodes[c])
	}
}

func TestSumInputsReturnsAllEdges(t *testing.T) {
	cache := layout.NewLayoutCache(layout.SigilOneIsNull)
	l := cache.Add(u32Layout())
	g := NewGraph(cache)

	a := g.AddNode(&Source{Layout: l})
	b := g.AddNode(&Source{Layout: l})
	sum := g.AddNode(&Sum{Inputs: []NodeId{a, b}})

	ins := Inputs(g.Node(sum))
	if len(ins) != 2 || ins[0] != a || ins[1] != b {
		t.Fatalf("Sum inputs = %v, want [%d %d]", ins, a, b)
	}
}

func TestSourceHasNoInputs(t *testing.T) {
	cache := layout.NewLayoutCache(layout.SigilOneIsNull)
	l := cache.Add(u32Layout())
	g := NewGraph(cache)
	src := g.AddNode(&Source{Layout: l})

	if ins := Inputs(g.Node(src)); ins != nil {
		t.Fatalf("Source inputs = %v, want nil", ins)
	}
}

func TestGraphSharesLayoutCache(t *testing.T) {
	cache := layout.NewLayoutCache(layout.SigilOneIsNull)
	g := NewGraph(cache)
	if g.LayoutCache() != cache {
		t.Fatal("Graph.LayoutCache() should return the exact cache it was built with")
	}
}
