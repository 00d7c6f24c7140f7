// cmd/rowjit-demo/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"unsafe"

	"rowjit/internal/codegen"
	"rowjit/internal/coltype"
	"rowjit/internal/graph"
	"rowjit/internal/ir"
	"rowjit/internal/layout"
	"rowjit/internal/runtime"
)

// This demo wires the engine's pieces together end to end: it builds a
// small row layout, IR functions for a Map and a Filter node, a four-node
// Graph (Source -> Map -> Filter -> Sink), runs it through the optimizer,
// validator and JIT codegen, then drives two epochs of the runtime: it
// prints how many rows the first epoch emitted and the rows of the second.
//
// Circuit: rows of (qty u32, price u32) multiplied into a single u32
// total, with a filter keeping only totals over a threshold.
func main() {
	cache := layout.NewLayoutCache(layout.SigilOneIsNull)
	g := graph.NewGraph(cache)

	orderLayout := cache.Add(layout.NewRowLayoutBuilder().
		WithRow(coltype.U32, false).
		WithRow(coltype.U32, false).
		Build())
	totalLayout := cache.Add(layout.NewRowLayoutBuilder().
		WithRow(coltype.U32, false).
		Build())

	mulFn := buildMultiply(cache, orderLayout, totalLayout)
	keepFn := buildThreshold(cache, totalLayout, 1000)

	srcID := g.AddNode(&graph.Source{Layout: orderLayout})
	mapID := g.AddNode(&graph.Map{Input: srcID, Func: mulFn, OutputLayout: totalLayout})
	filterID := g.AddNode(&graph.Filter{Input: mapID, Func: keepFn})
	sinkID := g.AddNode(&graph.Sink{Input: filterID})

	dataflow, mod, _, err := runtime.Construct(g, codegen.Debug())
	if err != nil {
		log.Fatalf("construct: %v", err)
	}
	defer mod.FreeMemory()

	inputs, outputs := dataflow.Construct(runtime.Circuit{Workers: 4})
	src := inputs[srcID]
	sink := outputs[sinkID]

	orders := []struct{ qty, price uint32 }{
		{2, 50},   // 100, filtered out
		{10, 200}, // 2000, kept
		{5, 300},  // 1500, kept
	}
	for _, o := range orders {
		pushOrder(dataflow, src, o.qty, o.price)
	}

	if err := dataflow.Step(context.Background()); err != nil {
		log.Fatalf("step: %v", err)
	}

	fmt.Printf("module %s, %d rows emitted:\n", mod.ID, len(sink.Drain()))
	// Drain() above already consumed the first epoch's output; the second
	// epoch's drain holds only the order pushed below (total 2000).
	pushOrder(dataflow, src, 10, 200)
	if err := dataflow.Step(context.Background()); err != nil {
		log.Fatalf("step: %v", err)
	}
	for _, rw := range sink.Drain() {
		total := *(*uint32)(rw.Row.Ptr())
		fmt.Printf("  total=%d weight=%d\n", total, rw.Weight)
	}
}

// buildMultiply constructs Map's row function: out.0 = in.0 * in.1.
func buildMultiply(cache *layout.LayoutCache, in, out layout.LayoutId) *ir.Function {
	b := ir.NewBuilder("order_total", cache)
	row := b.AddInput(in)
	dst := b.AddMutInput(out)
	qty := b.Load(row, 0)
	price := b.Load(row, 1)
	total := b.Arith(ir.Mul, coltype.U32, qty, price)
	b.Store(dst, 0, total)
	b.RetUnit()
	return b.Build()
}

// buildThreshold constructs Filter's predicate: in.0 > threshold.
func buildThreshold(cache *layout.LayoutCache, l layout.LayoutId, threshold int64) *ir.Function {
	b := ir.NewBuilder("above_threshold", cache)
	b.SetReturnType(coltype.Bool)
	row := b.AddInput(l)
	v := b.Load(row, 0)
	t := b.Const(coltype.U32, threshold)
	b.Ret(b.Cmp(ir.Gt, coltype.U32, v, t))
	return b.Build()
}

func pushOrder(d *runtime.Dataflow, in *runtime.InputHandle, qty, price uint32) {
	row := d.AllocRow(in.Layout())
	native := d.Cache().Native(in.Layout())
	*(*uint32)(unsafe.Add(row.Ptr(), uintptr(native.OffsetOf(0)))) = qty
	*(*uint32)(unsafe.Add(row.Ptr(), uintptr(native.OffsetOf(1)))) = price
	in.Push(row, 1)
}
