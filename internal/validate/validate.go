// Package validate walks a Graph and every IR function it contains,
// checking the invariants required before codegen may run: definition
// before use (in block-list order; control-flow dominance is not
// computed), block termination, layout/column bounds, type agreement,
// nullable-only operations, and the per-operator structural rules (Sum
// layout agreement, Map/IndexWith output-layout matching, Fold
// accumulator layout matching).
package validate

import (
	"fmt"

	"rowjit/internal/coltype"
	rjerrors "rowjit/internal/errors"
	"rowjit/internal/graph"
	"rowjit/internal/ir"
	"rowjit/internal/layout"
)

// Graph validates every node in g, returning the first ValidationError
// encountered, coordinate-tagged to where it occurred, or nil if g is
// well-formed.
func Graph(g *graph.Graph) error {
	cache := g.LayoutCache()
	for id, n := range g.Nodes() {
		nodeID := graph.NodeId(id)
		if err := validateNode(nodeID, n, g, cache); err != nil {
			return err
		}
	}
	return nil
}

func validateNode(id graph.NodeId, n graph.Node, g *graph.Graph, cache *layout.LayoutCache) error {
	where := func() rjerrors.Coordinate { return rjerrors.Coordinate{Node: id.String()} }

	for _, in := range graph.Inputs(n) {
		if int(in) >= g.NumNodes() {
			return rjerrors.At(rjerrors.Validation, where(), "dangling edge to %s", in)
		}
	}

	switch t := n.(type) {
	case *graph.Source:
		if !layoutExists(cache, t.Layout) {
			return rjerrors.At(rjerrors.Validation, where(), "undefined layout %s", t.Layout)
		}
	case *graph.Sink:
		// no further structure to check
	case *graph.Map:
		if err := validateFunction(id, "map", t.Func, cache); err != nil {
			return err
		}
		if err := requireUnitReturn(id, "map", t.Func); err != nil {
			return err
		}
		if err := mutOutputMatches(id, "map", t.Func, t.OutputLayout); err != nil {
			return err
		}
	case *graph.Filter:
		if err := validateFunction(id, "filter", t.Func, cache); err != nil {
			return err
		}
		if t.Func.RetType == nil || *t.Func.RetType != coltype.Bool {
			return rjerrors.At(rjerrors.Validation, where(), "filter function must return Bool")
		}
	case *graph.IndexWith:
		if err := validateFunction(id, "index_with", t.Func, cache); err != nil {
			return err
		}
		if err := requireUnitReturn(id, "index_with", t.Func); err != nil {
			return err
		}
		if err := twoMutOutputsMatch(id, "index_with", t.Func, t.KeyLayout, t.ValueLayout); err != nil {
			return err
		}
	case *graph.Fold:
		if err := validateFunction(id, "step", t.Step, cache); err != nil {
			return err
		}
		if err := validateFunction(id, "finish", t.Finish, cache); err != nil {
			return err
		}
		if err := requireUnitReturn(id, "step", t.Step); err != nil {
			return err
		}
		if err := mutOutputMatches(id, "step", t.Step, t.AccLayout); err != nil {
			return err
		}
		if err := mutOutputMatches(id, "finish", t.Finish, t.OutputLayout); err != nil {
			return err
		}
		if !layoutExists(cache, t.SeedLayout) {
			return rjerrors.At(rjerrors.Validation, where(), "undefined seed layout %s", t.SeedLayout)
		}
		if t.SeedLayout != t.AccLayout {
			return rjerrors.At(rjerrors.Validation, where(), "fold seed layout %s does not match accumulator layout %s", t.SeedLayout, t.AccLayout)
		}
	case *graph.Neg:
		if !layoutExists(cache, t.Layout) {
			return rjerrors.At(rjerrors.Validation, where(), "undefined layout %s", t.Layout)
		}
	case *graph.Sum:
		if len(t.Inputs) == 0 {
			return rjerrors.At(rjerrors.Validation, where(), "sum has no inputs")
		}
		var first layout.RowLayout
		for i, in := range t.Inputs {
			l, err := inputLayout(g, in)
			if err != nil {
				return err
			}
			if i == 0 {
				first = l
				continue
			}
			if !l.Equal(first) {
				return rjerrors.At(rjerrors.Validation, where(), "sum inputs do not share a layout")
			}
		}
	case *graph.Differentiate:
		// structurally always valid; the input edge was already checked.
	default:
		return rjerrors.At(rjerrors.Validation, where(), "unknown node type %T", n)
	}
	return nil
}

func inputLayout(g *graph.Graph, id graph.NodeId) (layout.RowLayout, error) {
	n := g.Node(id)
	switch t := n.(type) {
	case *graph.Source:
		return g.LayoutCache().Layout(t.Layout), nil
	case *graph.Map:
		return g.LayoutCache().Layout(t.OutputLayout), nil
	case *graph.Neg:
		return g.LayoutCache().Layout(t.Layout), nil
	case *graph.Filter:
		return inputLayout(g, t.Input)
	case *graph.Differentiate:
		return inputLayout(g, t.Input)
	case *graph.Sum:
		if len(t.Inputs) == 0 {
			return layout.RowLayout{}, rjerrors.At(rjerrors.Validation, rjerrors.Coordinate{Node: id.String()}, "sum has no inputs")
		}
		return inputLayout(g, t.Inputs[0])
	case *graph.Fold:
		return g.LayoutCache().Layout(t.OutputLayout), nil
	case *graph.IndexWith:
		return g.LayoutCache().Layout(t.ValueLayout), nil
	default:
		return layout.RowLayout{}, rjerrors.At(rjerrors.Validation, rjerrors.Coordinate{Node: id.String()}, "node has no row layout")
	}
}

func layoutExists(cache *layout.LayoutCache, id layout.LayoutId) bool {
	return uint32(id) < uint32(cache.Len())
}

func requireUnitReturn(id graph.NodeId, role string, fn *ir.Function) error {
	if fn.RetType != nil {
		return rjerrors.At(rjerrors.Validation, rjerrors.Coordinate{Node: id.String(), Function: fn.Name}, "%s function must return unit", role)
	}
	return nil
}

func mutOutputMatches(id graph.NodeId, role string, fn *ir.Function, want layout.LayoutId) error {
	var mutLayouts []layout.LayoutId
	for _, in := range fn.Inputs {
		if in.Kind == ir.Mutable {
			mutLayouts = append(mutLayouts, in.Layout)
		}
	}
	if len(mutLayouts) != 1 {
		return rjerrors.At(rjerrors.Validation, rjerrors.Coordinate{Node: id.String(), Function: fn.Name}, "%s function must declare exactly one mutable input, has %d", role, len(mutLayouts))
	}
	if mutLayouts[0] != want {
		return rjerrors.At(rjerrors.Validation, rjerrors.Coordinate{Node: id.String(), Function: fn.Name}, "%s output layout %s does not match declared layout %s", role, mutLayouts[0], want)
	}
	return nil
}

func twoMutOutputsMatch(id graph.NodeId, role string, fn *ir.Function, key, val layout.LayoutId) error {
	var mutLayouts []layout.LayoutId
	for _, in := range fn.Inputs {
		if in.Kind == ir.Mutable {
			mutLayouts = append(mutLayouts, in.Layout)
		}
	}
	if len(mutLayouts) != 2 {
		return rjerrors.At(rjerrors.Validation, rjerrors.Coordinate{Node: id.String(), Function: fn.Name}, "%s function must declare two mutable inputs (key, value), has %d", role, len(mutLayouts))
	}
	if mutLayouts[0] != key || mutLayouts[1] != val {
		return rjerrors.At(rjerrors.Validation, rjerrors.Coordinate{Node: id.String(), Function: fn.Name}, "%s key/value output layouts do not match declared layouts", role)
	}
	return nil
}

// validateFunction runs the value-level checks over a single IR function:
// termination, layout/column bounds, type agreement, and that every used
// value is defined by an instruction earlier in block-list order. A value
// defined in an earlier-listed block that does not dominate the use is
// not rejected.
func validateFunction(id graph.NodeId, role string, fn *ir.Function, cache *layout.LayoutCache) error {
	loc := func(blk int, instr int) rjerrors.Coordinate {
		return rjerrors.Coordinate{Node: id.String(), Function: fn.Name, Block: blk, HasBlock: true, Instruction: instr, HasInstr: instr >= 0}
	}

	defined := make(map[ir.Value]bool)

	for bi, blk := range fn.Blocks {
		if !blk.Terminated() {
			return rjerrors.At(rjerrors.Validation, loc(bi, -1), "%s function block %d has no terminator", role, bi)
		}
		for ii, instr := range blk.Instrs {
			if err := checkInstrBounds(fn, cache, instr, defined, loc(bi, ii), role); err != nil {
				return err
			}
			if d := instr.Dst(); d >= 0 {
				defined[d] = true
			}
		}
		if err := checkTermBounds(fn, blk.Term, defined, loc(bi, len(blk.Instrs))); err != nil {
			return err
		}
	}
	return nil
}

func checkTermBounds(fn *ir.Function, t ir.Term, defined map[ir.Value]bool, where rjerrors.Coordinate) error {
	switch term := t.(type) {
	case *ir.Branch:
		if term.Cond >= 0 && !defined[term.Cond] {
			return rjerrors.At(rjerrors.Validation, where, "branch condition v%d used before definition", term.Cond)
		}
		if int(term.TrueBlk) >= len(fn.Blocks) || int(term.FalseBlk) >= len(fn.Blocks) {
			return rjerrors.At(rjerrors.Validation, where, "branch targets an out-of-range block")
		}
	case *ir.Ret:
		if !defined[term.Value] {
			return rjerrors.At(rjerrors.Validation, where, "ret v%d used before definition", term.Value)
		}
		if fn.RetType == nil {
			return rjerrors.At(rjerrors.Validation, where, "ret in a unit-returning function")
		}
	case *ir.RetUnit:
		if fn.RetType != nil {
			return rjerrors.At(rjerrors.Validation, where, "ret_unit in a value-returning function")
		}
	}
	return nil
}

func checkInstrBounds(fn *ir.Function, cache *layout.LayoutCache, instr ir.Instr, defined map[ir.Value]bool, where rjerrors.Coordinate, role string) error {
	useOK := func(v ir.Value) error {
		if !defined[v] {
			return rjerrors.At(rjerrors.Validation, where, "value v%d used before definition", v)
		}
		return nil
	}
	rowOK := func(row ir.RowRef, col int) (layout.Column, error) {
		if int(row) >= len(fn.Inputs) {
			return layout.Column{}, rjerrors.At(rjerrors.Validation, where, "row reference %d out of range", row)
		}
		l := cache.Layout(fn.Inputs[row].Layout)
		if col < 0 || col >= l.NumColumns() {
			return layout.Column{}, rjerrors.At(rjerrors.Validation, where, "column index %d out of range for row %d", col, row)
		}
		return l.Column(col), nil
	}

	switch in := instr.(type) {
	case *ir.Const:
		return nil
	case *ir.Load:
		_, err := rowOK(in.Row, in.Col)
		return err
	case *ir.Store:
		col, err := rowOK(in.Row, in.Col)
		if err != nil {
			return err
		}
		if err := useOK(in.Val); err != nil {
			return err
		}
		if valType, ok := fn.TypeOf(in.Val); ok && valType != col.Type {
			return rjerrors.At(rjerrors.Validation, where, "store value type %s does not match column %d type %s", valType, in.Col, col.Type)
		}
		return nil
	case *ir.IsNull:
		col, err := rowOK(in.Row, in.Col)
		if err != nil {
			return err
		}
		if !col.Nullable {
			return rjerrors.At(rjerrors.Validation, where, "is_null on non-nullable column %d", in.Col)
		}
		return nil
	case *ir.SetNull:
		col, err := rowOK(in.Row, in.Col)
		if err != nil {
			return err
		}
		if !col.Nullable {
			return rjerrors.At(rjerrors.Validation, where, "set_null on non-nullable column %d", in.Col)
		}
		return useOK(in.Val)
	case *ir.Extract:
		_, err := rowOK(in.Row, in.Col)
		return err
	case *ir.Insert:
		col, err := rowOK(in.Row, in.Col)
		if err != nil {
			return err
		}
		if err := useOK(in.Val); err != nil {
			return err
		}
		if valType, ok := fn.TypeOf(in.Val); ok && valType != col.Type {
			return rjerrors.At(rjerrors.Validation, where, "insert value type %s does not match column %d type %s", valType, in.Col, col.Type)
		}
		return nil
	case *ir.Arith:
		if !in.Type.IsNumeric() {
			return rjerrors.At(rjerrors.Validation, where, "arith on non-numeric type %s", in.Type)
		}
		if err := useOK(in.X); err != nil {
			return err
		}
		if err := useOK(in.Y); err != nil {
			return err
		}
		if xt, ok := fn.TypeOf(in.X); ok && xt != in.Type {
			return rjerrors.At(rjerrors.Validation, where, "arith operand X has type %s, want %s", xt, in.Type)
		}
		if yt, ok := fn.TypeOf(in.Y); ok && yt != in.Type {
			return rjerrors.At(rjerrors.Validation, where, "arith operand Y has type %s, want %s", yt, in.Type)
		}
		return nil
	case *ir.Cmp:
		if err := useOK(in.X); err != nil {
			return err
		}
		if err := useOK(in.Y); err != nil {
			return err
		}
		if xt, ok := fn.TypeOf(in.X); ok && xt != in.Type {
			return rjerrors.At(rjerrors.Validation, where, "cmp operand X has type %s, want %s", xt, in.Type)
		}
		if yt, ok := fn.TypeOf(in.Y); ok && yt != in.Type {
			return rjerrors.At(rjerrors.Validation, where, "cmp operand Y has type %s, want %s", yt, in.Type)
		}
		return nil
	case *ir.Logic:
		if err := useOK(in.X); err != nil {
			return err
		}
		return useOK(in.Y)
	case *ir.Not:
		return useOK(in.X)
	case *ir.Cast:
		return useOK(in.X)
	case *ir.CopyRowTo:
		if int(in.Src) >= len(fn.Inputs) || int(in.Dst) >= len(fn.Inputs) {
			return rjerrors.At(rjerrors.Validation, where, "copy_row_to references an out-of-range row")
		}
		if fn.Inputs[in.Dst].Kind != ir.Mutable {
			return rjerrors.At(rjerrors.Validation, where, "copy_row_to destination row %d is not mutable", in.Dst)
		}
		if fn.Inputs[in.Src].Layout != in.Layout || fn.Inputs[in.Dst].Layout != in.Layout {
			return rjerrors.At(rjerrors.Validation, where, "copy_row_to layout mismatch")
		}
		return nil
	default:
		return fmt.Errorf("validate: unknown instruction %T", instr)
	}
}
