// Package graph describes the dataflow Graph: a set of streaming operator
// Nodes wired by explicit input edges, each carrying the typed IR functions
// that define its per-row behavior.
package graph

import (
	"fmt"

	"rowjit/internal/ir"
	"rowjit/internal/layout"
)

// NodeId is an opaque, monotonically increasing handle minted by
// Graph.AddNode. NodeId order reflects insertion order only, not a
// topological order; the optimizer/runtime must follow each Node's
// explicit input edges instead.
type NodeId uint32

func (id NodeId) String() string { return fmt.Sprintf("node#%d", uint32(id)) }

// Node is the tagged union of dataflow operators.
type Node interface {
	isNode()
}

// Source is an external producer of rows of the given layout with integer
// weights.
type Source struct {
	Layout layout.LayoutId
}

func (*Source) isNode() {}

// Sink is a terminal observer of a stream.
type Sink struct {
	Input NodeId
}

func (*Sink) isNode() {}

// Map runs Func(in_row, out_row) for each (row, w) in Input, allocating the
// output row at OutputLayout. Func is a unit-returning ir.Function with one
// read-only input (Input's layout) and one mutable input (OutputLayout).
type Map struct {
	Input        NodeId
	Func         *ir.Function
	OutputLayout layout.LayoutId
}

func (*Map) isNode() {}

// Filter emits (row, w) unchanged iff Func(row) == true. Func is a
// Bool-returning ir.Function with one read-only input.
type Filter struct {
	Input NodeId
	Func  *ir.Function
}

func (*Filter) isNode() {}

// IndexWith runs Func(in_row, out_key, out_val) and emits ((key, val), w).
// Func has one read-only input and two mutable inputs (KeyLayout then
// ValueLayout, in that order).
type IndexWith struct {
	Input       NodeId
	Func        *ir.Function
	KeyLayout   layout.LayoutId
	ValueLayout layout.LayoutId
}

func (*IndexWith) isNode() {}

// Fold maintains a single running accumulator of AccLayout for the whole
// node (not one per key: there is no KeyLayout to group by), seeded once
// by SeedLayout's NullRow on the first delta it ever sees, updated by
// Step(acc, v, w) for every (value, weight) pair in arrival order, and
// emitting Finish(acc) -> OutputLayout once per epoch that carried input.
type Fold struct {
	Input        NodeId
	SeedLayout   layout.LayoutId
	Step         *ir.Function
	Finish       *ir.Function
	AccLayout    layout.LayoutId
	OutputLayout layout.LayoutId
}

func (*Fold) isNode() {}

// Neg negates the weight of every row flowing through Input.
type Neg struct {
	Input  NodeId
	Layout layout.LayoutId
}

func (*Neg) isNode() {}

// Sum consolidates (sums weights of) rows across Inputs, all of which must
// share a single layout.
type Sum struct {
	Inputs []NodeId
}

func (*Sum) isNode() {}

// Differentiate emits s - z⁻¹(s): the delta of Input's cumulative stream.
type Differentiate struct {
	Input NodeId
}

func (*Differentiate) isNode() {}
