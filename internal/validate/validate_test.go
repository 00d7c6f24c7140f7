package validate

import (
	"strings"
	"testing"

	"rowjit/internal/coltype"
	rjerrors "rowjit/internal/errors"
	"rowjit/internal/graph"
	"rowjit/internal/ir"
	"rowjit/internal/layout"
)

func twoI32() layout.RowLayout {
	return layout.NewRowLayoutBuilder().
		WithRow(coltype.I32, false).
		WithRow(coltype.I32, false).
		Build()
}

func oneU32() layout.RowLayout {
	return layout.NewRowLayoutBuilder().WithRow(coltype.U32, false).Build()
}

func buildValidMulGraph(t *testing.T) *graph.Graph {
	t.Helper()
	cache := layout.NewLayoutCache(layout.SigilOneIsNull)
	in := cache.Add(twoI32())
	out := cache.Add(oneU32())

	b := ir.NewBuilder("mul", cache)
	row := b.AddInput(in)
	dst := b.AddMutInput(out)
	a := b.Load(row, 0)
	bb := b.Load(row, 1)
	prod := b.Arith(ir.Mul, coltype.I32, a, bb)
	casted := b.Cast(prod, coltype.I32, coltype.U32)
	b.Store(dst, 0, casted)
	b.RetUnit()
	fn := b.Build()

	g := graph.NewGraph(cache)
	src := g.AddNode(&graph.Source{Layout: in})
	g.AddNode(&graph.Map{Input: src, Func: fn, OutputLayout: out})
	return g
}

func TestValidateAcceptsWellFormedMap(t *testing.T) {
	g := buildValidMulGraph(t)
	if err := Graph(g); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestValidateRejectsDanglingEdge(t *testing.T) {
	cache := layout.NewLayoutCache(layout.SigilOneIsNull)
	l := cache.Add(oneU32())
	g := graph.NewGraph(cache)
	g.AddNode(&graph.Sink{Input: 42})
	_ = l

	err := Graph(g)
	if err == nil {
		t.Fatal("expected a validation error for a dangling edge")
	}
	rjErr, ok := err.(*rjerrors.Error)
	if !ok || rjErr.Kind != rjerrors.Validation {
		t.Fatalf("want *errors.Error{Kind: Validation}, got %#v", err)
	}
	if !strings.Contains(rjErr.Error(), "dangling edge") {
		t.Fatalf("error message = %q, want it to mention a dangling edge", rjErr.Error())
	}
}

func TestValidateRejectsMapOutputLayoutMismatch(t *testing.T) {
	cache := layout.NewLayoutCache(layout.SigilOneIsNull)
	in := cache.Add(twoI32())
	out := cache.Add(oneU32())
	wrongOut := cache.Add(twoI32())

	b := ir.NewBuilder("mul", cache)
	row := b.AddInput(in)
	dst := b.AddMutInput(out)
	a := b.Load(row, 0)
	b.Store(dst, 0, a)
	b.RetUnit()
	fn := b.Build()

	g := graph.NewGraph(cache)
	src := g.AddNode(&graph.Source{Layout: in})
	g.AddNode(&graph.Map{Input: src, Func: fn, OutputLayout: wrongOut})

	if err := Graph(g); err == nil {
		t.Fatal("expected a validation error for a mismatched output layout")
	}
}

func TestValidateRejectsSumLayoutMismatch(t *testing.T) {
	cache := layout.NewLayoutCache(layout.SigilOneIsNull)
	a := cache.Add(oneU32())
	bLayout := cache.Add(twoI32())
	g := graph.NewGraph(cache)

	srcA := g.AddNode(&graph.Source{Layout: a})
	srcB := g.AddNode(&graph.Source{Layout: bLayout})
	g.AddNode(&graph.Sum{Inputs: []graph.NodeId{srcA, srcB}})

	err := Graph(g)
	if err == nil {
		t.Fatal("expected a validation error for mismatched Sum layouts")
	}
	if !strings.Contains(err.Error(), "sum") {
		t.Fatalf("error message = %q, want it to mention sum", err.Error())
	}
}

func TestValidateRejectsUnterminatedBlock(t *testing.T) {
	cache := layout.NewLayoutCache(layout.SigilOneIsNull)
	in := cache.Add(oneU32())
	out := cache.Add(oneU32())

	b := ir.NewBuilder("identity", cache)
	row := b.AddInput(in)
	dst := b.AddMutInput(out)
	v := b.Load(row, 0)
	b.Store(dst, 0, v)
	// deliberately never call RetUnit or Ret: Build seals blocks but does
	// not synthesize a missing terminator.
	badFn := b.Build()

	g := graph.NewGraph(cache)
	src := g.AddNode(&graph.Source{Layout: in})
	g.AddNode(&graph.Map{Input: src, Func: badFn, OutputLayout: out})

	if err := Graph(g); err == nil {
		t.Fatal("expected a validation error for an unterminated block")
	}
}

func TestValidateRejectsIsNullOnNonNullableColumn(t *testing.T) {
	cache := layout.NewLayoutCache(layout.SigilOneIsNull)
	l := cache.Add(oneU32())

	b := ir.NewBuilder("bad_is_null", cache)
	row := b.AddInput(l)
	b.CurrentBlock().Append(&ir.IsNull{D: 0, Row: row, Col: 0})
	b.RetUnit()
	fn := b.Build()

	g := graph.NewGraph(cache)
	src := g.AddNode(&graph.Source{Layout: l})
	g.AddNode(&graph.Filter{Input: src, Func: fn})

	if err := Graph(g); err == nil {
		t.Fatal("expected a validation error for is_null on a non-nullable column")
	}
}
