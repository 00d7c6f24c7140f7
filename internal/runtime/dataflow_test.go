package runtime

import (
	"context"
	"testing"
	"unsafe"

	"rowjit/internal/codegen"
	"rowjit/internal/coltype"
	"rowjit/internal/graph"
	"rowjit/internal/ir"
	"rowjit/internal/layout"
)

func twoU32() layout.RowLayout {
	return layout.NewRowLayoutBuilder().WithRow(coltype.U32, false).WithRow(coltype.U32, false).Build()
}

func oneU32() layout.RowLayout {
	return layout.NewRowLayoutBuilder().WithRow(coltype.U32, false).Build()
}

func pushU32Pair(t *testing.T, d *Dataflow, in *InputHandle, a, b uint32, w int32) {
	t.Helper()
	row := d.AllocRow(in.Layout())
	native := d.Cache().Native(in.Layout())
	*(*uint32)(unsafe.Add(row.Ptr(), uintptr(native.OffsetOf(0)))) = a
	*(*uint32)(unsafe.Add(row.Ptr(), uintptr(native.OffsetOf(1)))) = b
	in.Push(row, w)
}

func pushU32(t *testing.T, d *Dataflow, in *InputHandle, v uint32, w int32) {
	t.Helper()
	row := d.AllocRow(in.Layout())
	*(*uint32)(row.Ptr()) = v
	in.Push(row, w)
}

func drainU32(out *OutputHandle) map[uint32]int64 {
	got := make(map[uint32]int64)
	for _, rw := range out.Drain() {
		got[*(*uint32)(rw.Row.Ptr())] += rw.Weight
	}
	return got
}

func TestMapMultipliesEachRow(t *testing.T) {
	cache := layout.NewLayoutCache(layout.SigilOneIsNull)
	g := graph.NewGraph(cache)
	in := cache.Add(twoU32())
	out := cache.Add(oneU32())

	b := ir.NewBuilder("mul", cache)
	row := b.AddInput(in)
	dst := b.AddMutInput(out)
	a := b.Load(row, 0)
	c := b.Load(row, 1)
	prod := b.Arith(ir.Mul, coltype.U32, a, c)
	b.Store(dst, 0, prod)
	b.RetUnit()
	mulFn := b.Build()

	srcID := g.AddNode(&graph.Source{Layout: in})
	mapID := g.AddNode(&graph.Map{Input: srcID, Func: mulFn, OutputLayout: out})
	sinkID := g.AddNode(&graph.Sink{Input: mapID})

	d, mod, _, err := Construct(g, codegen.Debug())
	if err != nil {
		t.Fatalf("Construct: %v", err)
	}
	defer mod.FreeMemory()

	inputs, outputs := d.Construct(Circuit{Workers: 2})
	srcIn := inputs[srcID]
	sink := outputs[sinkID]

	pushU32Pair(t, d, srcIn, 1, 2, 1)
	pushU32Pair(t, d, srcIn, 0, 0, 1)
	pushU32Pair(t, d, srcIn, 1000, 2000, 1)
	pushU32Pair(t, d, srcIn, 12, 12, 1)

	if err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}

	got := drainU32(sink)
	want := map[uint32]int64{2: 1, 0: 1, 2000000: 1, 144: 1}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("output[%d] = %d, want %d (full: %v)", k, got[k], v, got)
		}
	}
	if len(got) != len(want) {
		t.Errorf("got %d distinct output rows, want %d: %v", len(got), len(want), got)
	}
}

func TestFilterKeepsOnlyMatchingRows(t *testing.T) {
	cache := layout.NewLayoutCache(layout.SigilOneIsNull)
	g := graph.NewGraph(cache)
	l := cache.Add(oneU32())

	b := ir.NewBuilder("gt2", cache)
	b.SetReturnType(coltype.Bool)
	row := b.AddInput(l)
	v := b.Load(row, 0)
	two := b.Const(coltype.U32, int64(2))
	cmp := b.Cmp(ir.Gt, coltype.U32, v, two)
	b.Ret(cmp)
	filterFn := b.Build()

	srcID := g.AddNode(&graph.Source{Layout: l})
	filterID := g.AddNode(&graph.Filter{Input: srcID, Func: filterFn})
	sinkID := g.AddNode(&graph.Sink{Input: filterID})

	d, mod, _, err := Construct(g, codegen.Debug())
	if err != nil {
		t.Fatalf("Construct: %v", err)
	}
	defer mod.FreeMemory()

	inputs, outputs := d.Construct(Circuit{Workers: 4})
	srcIn := inputs[srcID]
	sink := outputs[sinkID]

	for _, v := range []uint32{1, 2, 3, 4} {
		pushU32(t, d, srcIn, v, 1)
	}

	if err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}

	got := drainU32(sink)
	want := map[uint32]int64{3: 1, 4: 1}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("output[%d] = %d, want %d", k, got[k], v)
		}
	}
}

// TestSumCancelsOpposingWeights exercises two inputs sharing a layout,
// with weights cancelling where rows coincide.
func TestSumCancelsOpposingWeights(t *testing.T) {
	cache := layout.NewLayoutCache(layout.SigilOneIsNull)
	g := graph.NewGraph(cache)
	l := cache.Add(layout.NewRowLayoutBuilder().WithRow(coltype.I32, false).Build())

	srcA := g.AddNode(&graph.Source{Layout: l})
	srcB := g.AddNode(&graph.Source{Layout: l})
	sumID := g.AddNode(&graph.Sum{Inputs: []graph.NodeId{srcA, srcB}})
	sinkID := g.AddNode(&graph.Sink{Input: sumID})

	d, mod, _, err := Construct(g, codegen.Debug())
	if err != nil {
		t.Fatalf("Construct: %v", err)
	}
	defer mod.FreeMemory()

	inputs, outputs := d.Construct(Circuit{Workers: 1})
	a, b, sink := inputs[srcA], inputs[srcB], outputs[sinkID]

	pushI32(t, d, a, 1, 1)
	pushI32(t, d, a, 2, 1)
	pushI32(t, d, b, 2, -1)
	pushI32(t, d, b, 3, 1)

	if err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}

	got := drainI32(sink)
	want := map[int32]int64{1: 1, 3: 1}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v (2 should cancel)", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("output[%d] = %d, want %d", k, got[k], v)
		}
	}
}

func TestNegFlipsRowWeight(t *testing.T) {
	cache := layout.NewLayoutCache(layout.SigilOneIsNull)
	g := graph.NewGraph(cache)
	l := cache.Add(layout.NewRowLayoutBuilder().WithRow(coltype.I32, false).Build())

	srcID := g.AddNode(&graph.Source{Layout: l})
	negID := g.AddNode(&graph.Neg{Input: srcID, Layout: l})
	sinkID := g.AddNode(&graph.Sink{Input: negID})

	d, mod, _, err := Construct(g, codegen.Debug())
	if err != nil {
		t.Fatalf("Construct: %v", err)
	}
	defer mod.FreeMemory()

	inputs, outputs := d.Construct(Circuit{Workers: 1})
	src, sink := inputs[srcID], outputs[sinkID]

	pushI32(t, d, src, 1, 1)
	pushI32(t, d, src, 2, 2)

	if err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}

	got := drainI32(sink)
	want := map[int32]int64{1: -1, 2: -2}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("output[%d] = %d, want %d", k, got[k], v)
		}
	}
}

func pushI32(t *testing.T, d *Dataflow, in *InputHandle, v int32, w int32) {
	t.Helper()
	row := d.AllocRow(in.Layout())
	*(*int32)(row.Ptr()) = v
	in.Push(row, w)
}

func drainI32(out *OutputHandle) map[int32]int64 {
	got := make(map[int32]int64)
	for _, rw := range out.Drain() {
		got[*(*int32)(rw.Row.Ptr())] += rw.Weight
	}
	return got
}

// TestFoldSumWithNullAccumulator exercises a nullable I32 accumulator
// with a null-propagating add step, where null is absorbing.
func TestFoldSumWithNullAccumulator(t *testing.T) {
	cache := layout.NewLayoutCache(layout.SigilOneIsNull)
	g := graph.NewGraph(cache)
	valLayout := cache.Add(layout.NewRowLayoutBuilder().WithRow(coltype.I32, true).Build())
	accLayout := cache.Add(layout.NewRowLayoutBuilder().WithRow(coltype.I32, true).Build())
	weightLayout := cache.Weight()

	// step(mut acc, value, weight): acc := null-propagating (acc + value)
	// ignoring weight's magnitude beyond "did a delta arrive" (this
	// harness's Fold does not do retraction bookkeeping; see
	// evalFold's doc comment).
	sb := ir.NewBuilder("fold_step", cache)
	acc := sb.AddMutInput(accLayout)
	val := sb.AddInput(valLayout)
	_ = sb.AddInput(weightLayout)
	accVal := sb.Extract(acc, 0)
	accNull := sb.IsNull(acc, 0)
	valVal := sb.Extract(val, 0)
	valNull := sb.IsNull(val, 0)
	sum := sb.Arith(ir.Add, coltype.I32, accVal, valVal)
	anyNull := sb.Logic(ir.Or, accNull, valNull)
	sb.Insert(acc, 0, sum)
	sb.SetNull(acc, 0, anyNull)
	sb.RetUnit()
	stepFn := sb.Build()

	// finish(acc, mut out): out := acc
	fb := ir.NewBuilder("fold_finish", cache)
	accIn := fb.AddInput(accLayout)
	outRow := fb.AddMutInput(accLayout)
	fb.CopyRowTo(accIn, outRow, accLayout)
	fb.RetUnit()
	finishFn := fb.Build()

	srcID := g.AddNode(&graph.Source{Layout: valLayout})
	foldID := g.AddNode(&graph.Fold{
		Input: srcID, SeedLayout: accLayout, Step: stepFn, Finish: finishFn,
		AccLayout: accLayout, OutputLayout: accLayout,
	})
	sinkID := g.AddNode(&graph.Sink{Input: foldID})

	d, mod, _, err := Construct(g, codegen.Debug())
	if err != nil {
		t.Fatalf("Construct: %v", err)
	}
	defer mod.FreeMemory()

	inputs, outputs := d.Construct(Circuit{Workers: 1})
	src, sink := inputs[srcID], outputs[sinkID]

	pushNullableI32(t, d, src, 5, false, 1)
	pushNullableI32(t, d, src, 0, true, 1)
	pushNullableI32(t, d, src, 7, false, 1)

	if err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}

	rows := sink.Drain()
	if len(rows) != 1 {
		t.Fatalf("expected exactly one finish()-produced row, got %d", len(rows))
	}
	native := cache.Native(accLayout)
	_, off, bit := native.NullabilityOf(0)
	word := *(*uint8)(unsafe.Add(rows[0].Row.Ptr(), uintptr(off)))
	isNull := word&(1<<bit) != 0
	if !isNull {
		t.Fatal("final accumulator should be null (null is absorbing)")
	}
}

func pushNullableI32(t *testing.T, d *Dataflow, in *InputHandle, v int32, null bool, w int32) {
	t.Helper()
	row := d.AllocRow(in.Layout())
	native := d.Cache().Native(in.Layout())
	*(*int32)(row.Ptr()) = v
	if null {
		_, off, bit := native.NullabilityOf(0)
		*(*uint8)(unsafe.Add(row.Ptr(), uintptr(off))) |= 1 << bit
	}
	in.Push(row, w)
}

// TestIndexWithEmitsKeyValuePairs exercises the IndexWith node's two
// mutable outputs (key then value, per twoMutOutputsMatch's declared
// order).
func TestIndexWithEmitsKeyValuePairs(t *testing.T) {
	cache := layout.NewLayoutCache(layout.SigilOneIsNull)
	g := graph.NewGraph(cache)
	in := cache.Add(twoU32())
	keyL := cache.Add(oneU32())
	valL := cache.Add(oneU32())

	b := ir.NewBuilder("index_by_first", cache)
	row := b.AddInput(in)
	key := b.AddMutInput(keyL)
	val := b.AddMutInput(valL)
	k := b.Load(row, 0)
	v := b.Load(row, 1)
	b.Store(key, 0, k)
	b.Store(val, 0, v)
	b.RetUnit()
	fn := b.Build()

	srcID := g.AddNode(&graph.Source{Layout: in})
	idxID := g.AddNode(&graph.IndexWith{Input: srcID, Func: fn, KeyLayout: keyL, ValueLayout: valL})
	sinkID := g.AddNode(&graph.Sink{Input: idxID})

	d, mod, _, err := Construct(g, codegen.Debug())
	if err != nil {
		t.Fatalf("Construct: %v", err)
	}
	defer mod.FreeMemory()

	inputs, outputs := d.Construct(Circuit{Workers: 1})
	src, sink := inputs[srcID], outputs[sinkID]
	pushU32Pair(t, d, src, 1, 100, 1)
	pushU32Pair(t, d, src, 2, 200, 1)

	if err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}

	rows := sink.Drain()
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	seen := make(map[uint32]uint32)
	for _, rw := range rows {
		if !rw.HasKey {
			t.Fatal("IndexWith output should carry a key")
		}
		seen[*(*uint32)(rw.Key.Ptr())] = *(*uint32)(rw.Row.Ptr())
	}
	if seen[1] != 100 || seen[2] != 200 {
		t.Fatalf("got %v, want {1:100, 2:200}", seen)
	}
}

// TestDifferentiateEmitsEpochOverEpochDelta checks Differentiate(in) =
// s - z⁻¹(s): nothing changing between epochs produces an empty output
// delta even though the consolidated input is non-empty both times.
func TestDifferentiateEmitsEpochOverEpochDelta(t *testing.T) {
	cache := layout.NewLayoutCache(layout.SigilOneIsNull)
	g := graph.NewGraph(cache)
	l := cache.Add(layout.NewRowLayoutBuilder().WithRow(coltype.I32, false).Build())

	srcID := g.AddNode(&graph.Source{Layout: l})
	diffID := g.AddNode(&graph.Differentiate{Input: srcID})
	sinkID := g.AddNode(&graph.Sink{Input: diffID})

	d, mod, _, err := Construct(g, codegen.Debug())
	if err != nil {
		t.Fatalf("Construct: %v", err)
	}
	defer mod.FreeMemory()

	inputs, outputs := d.Construct(Circuit{Workers: 1})
	src, sink := inputs[srcID], outputs[sinkID]

	pushI32(t, d, src, 7, 1)
	if err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step 1: %v", err)
	}
	first := drainI32(sink)
	if first[7] != 1 {
		t.Fatalf("epoch 1: got %v, want {7:1}", first)
	}

	pushI32(t, d, src, 7, 1)
	if err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step 2: %v", err)
	}
	second := drainI32(sink)
	if len(second) != 0 {
		t.Fatalf("epoch 2: resubmitting the identical delta should cancel against z^-1(s), got %v", second)
	}
}
