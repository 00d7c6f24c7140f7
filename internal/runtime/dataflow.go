// Package runtime is a small driving harness for the streaming runtime
// collaborator: it turns a validated, optimized graph.Graph into a
// running dataflow that accepts (row, weight) deltas on named inputs and
// yields consolidated (row, weight) deltas on named outputs, dispatching
// the compiled per-row closures across a worker pool between epochs.
//
// This package is deliberately small next to a real streaming runtime —
// circuit construction, multi-worker scheduling and state persistence
// here are minimal — it exists to exercise LayoutCache, the IR, the
// Graph, the Optimizer/Validator and Codegen end to end.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sync/errgroup"

	"rowjit/internal/codegen"
	rjerrors "rowjit/internal/errors"
	"rowjit/internal/graph"
	"rowjit/internal/ir"
	"rowjit/internal/layout"
	"rowjit/internal/optimize"
	"rowjit/internal/validate"
	"rowjit/internal/vtable"
)

// nodeFuncs holds the compiled closures a single node needs at dispatch
// time. Only the fields relevant to the node's operator kind are set.
type nodeFuncs struct {
	mapFn    codegen.Func
	filterFn codegen.Func
	indexFn  codegen.Func
	stepFn   codegen.Func
	finishFn codegen.Func
	seedFn   codegen.Func
}

// Dataflow is the per-process runtime state bound to one compiled Graph:
// the resolved closures, the topological dispatch order, and the
// per-node state Fold/Differentiate carry across epochs.
type Dataflow struct {
	g     *graph.Graph
	cache *layout.LayoutCache
	vtReg *vtable.Registry
	funcs map[graph.NodeId]nodeFuncs
	order []graph.NodeId

	workers   int
	maxWeight int64

	mu        sync.Mutex
	sourceBuf map[graph.NodeId][]delta
	foldAcc   map[graph.NodeId][]byte
	diffPrev  map[graph.NodeId][]delta
	sinkOut   map[graph.NodeId][]delta
	sinkKVOut map[graph.NodeId][]kvDelta
}

// Construct compiles every IR function reachable from g (after running
// the Optimizer and Validator) and finalizes a JITModule from the result,
// returning (dataflow, jit_handle, layout_cache).
func Construct(g *graph.Graph, cfg codegen.Config) (*Dataflow, *codegen.JITModule, *layout.LayoutCache, error) {
	optimize.Graph(g)
	if err := validate.Graph(g); err != nil {
		return nil, nil, nil, err
	}
	cache := g.LayoutCache()

	fns := make(map[codegen.FuncId]*ir.Function)
	for id, n := range g.Nodes() {
		nodeID := graph.NodeId(id)
		switch t := n.(type) {
		case *graph.Map:
			fns[funcID(nodeID, "map")] = t.Func
		case *graph.Filter:
			fns[funcID(nodeID, "filter")] = t.Func
		case *graph.IndexWith:
			fns[funcID(nodeID, "index")] = t.Func
		case *graph.Fold:
			fns[funcID(nodeID, "step")] = t.Step
			fns[funcID(nodeID, "finish")] = t.Finish
			fns[funcID(nodeID, "seed")] = ir.NullRow(cache, t.SeedLayout)
		}
	}

	if cfg.EnableVerifier {
		for id, fn := range fns {
			if _, err := codegen.LowerModule(fn, cache); err != nil {
				return nil, nil, nil, rjerrors.Wrap(err, rjerrors.Codegen, rjerrors.Coordinate{Function: fn.Name}, "verifying lowered module for %s", id)
			}
		}
	}

	mod, err := codegen.FinalizeDefinitions(fns, cache)
	if err != nil {
		return nil, nil, nil, err
	}

	d := &Dataflow{
		g:         g,
		cache:     cache,
		vtReg:     vtable.NewRegistry(cache),
		funcs:     make(map[graph.NodeId]nodeFuncs),
		order:     computeOrder(g),
		workers:   1,
		sourceBuf: make(map[graph.NodeId][]delta),
		foldAcc:   make(map[graph.NodeId][]byte),
		diffPrev:  make(map[graph.NodeId][]delta),
		sinkOut:   make(map[graph.NodeId][]delta),
		sinkKVOut: make(map[graph.NodeId][]kvDelta),
	}

	for id, n := range g.Nodes() {
		nodeID := graph.NodeId(id)
		var nf nodeFuncs
		switch n.(type) {
		case *graph.Map:
			nf.mapFn, _ = mod.Resolve(funcID(nodeID, "map"))
		case *graph.Filter:
			nf.filterFn, _ = mod.Resolve(funcID(nodeID, "filter"))
		case *graph.IndexWith:
			nf.indexFn, _ = mod.Resolve(funcID(nodeID, "index"))
		case *graph.Fold:
			nf.stepFn, _ = mod.Resolve(funcID(nodeID, "step"))
			nf.finishFn, _ = mod.Resolve(funcID(nodeID, "finish"))
			nf.seedFn, _ = mod.Resolve(funcID(nodeID, "seed"))
		}
		d.funcs[nodeID] = nf
	}

	return d, mod, cache, nil
}

func funcID(id graph.NodeId, role string) codegen.FuncId {
	return codegen.FuncId(fmt.Sprintf("%s:%s", id, role))
}

// Circuit carries the parameters the surrounding circuit builder would
// otherwise supply: here, just the worker-pool width this harness fans
// per-epoch row dispatch across, and an optional per-row weight ceiling
// (a RuntimeError is raised once a row's weight exceeds it).
type Circuit struct {
	Workers   int
	MaxWeight int64 // 0 means unlimited
}

// Construct wires an InputHandle for each Source node and an
// OutputHandle for each Sink node, returning (inputs, outputs).
func (d *Dataflow) Construct(circuit Circuit) (map[graph.NodeId]*InputHandle, map[graph.NodeId]*OutputHandle) {
	d.workers = circuit.Workers
	if d.workers <= 0 {
		d.workers = 1
	}
	d.maxWeight = circuit.MaxWeight

	inputs := make(map[graph.NodeId]*InputHandle)
	outputs := make(map[graph.NodeId]*OutputHandle)
	for id, n := range d.g.Nodes() {
		nodeID := graph.NodeId(id)
		switch t := n.(type) {
		case *graph.Source:
			inputs[nodeID] = &InputHandle{d: d, id: nodeID, layoutID: t.Layout}
		case *graph.Sink:
			outputs[nodeID] = &OutputHandle{d: d, id: nodeID}
		}
	}
	return inputs, outputs
}

// Cache returns the LayoutCache backing this dataflow.
func (d *Dataflow) Cache() *layout.LayoutCache { return d.cache }

// AllocRow allocates a zeroed row of the given layout, ready to be
// written into via its NativeLayout offsets and pushed through an
// InputHandle.
func (d *Dataflow) AllocRow(layoutID layout.LayoutId) vtable.Row {
	buf := make([]byte, d.cache.Native(layoutID).Size)
	return vtable.NewRow(layoutID, d.vtReg.For(layoutID), buf)
}

// Step runs one epoch: every Source's buffered pushes since the last
// Step become this epoch's input delta, propagated through the graph in
// topological order, with Sink nodes accumulating a consolidated stream
// of (row, weight) pairs for the next Drain call.
func (d *Dataflow) Step(ctx context.Context) error {
	d.mu.Lock()
	out := make(map[graph.NodeId][]delta, len(d.order))
	for id, buf := range d.sourceBuf {
		if d.maxWeight > 0 {
			for _, dl := range buf {
				if abs64(dl.weight) > d.maxWeight {
					d.mu.Unlock()
					return rjerrors.At(rjerrors.Runtime, rjerrors.Coordinate{Node: id.String()}, "row weight %d exceeds configured maximum %d", dl.weight, d.maxWeight)
				}
			}
		}
		out[id] = buf
		d.sourceBuf[id] = nil
	}
	d.mu.Unlock()

	outKV := make(map[graph.NodeId][]kvDelta, len(d.order))

	for _, id := range d.order {
		n := d.g.Node(id)
		switch t := n.(type) {
		case *graph.Source:
			// seeded above from the buffered pushes.
		case *graph.Sink:
			d.mu.Lock()
			in := out[t.Input]
			inKV := outKV[t.Input]
			if len(in) > 0 {
				d.sinkOut[id] = append(d.sinkOut[id], consolidate(in)...)
			}
			if len(inKV) > 0 {
				d.sinkKVOut[id] = append(d.sinkKVOut[id], consolidateKV(inKV)...)
			}
			d.mu.Unlock()
		case *graph.Map:
			res, err := d.evalMap(ctx, id, t, out[t.Input])
			if err != nil {
				return err
			}
			out[id] = res
		case *graph.Filter:
			res, err := d.evalFilter(ctx, id, t, out[t.Input])
			if err != nil {
				return err
			}
			out[id] = res
		case *graph.IndexWith:
			res, err := d.evalIndexWith(ctx, id, t, out[t.Input])
			if err != nil {
				return err
			}
			outKV[id] = res
		case *graph.Fold:
			out[id] = d.evalFold(id, t, out[t.Input])
		case *graph.Neg:
			out[id] = negate(out[t.Input])
		case *graph.Sum:
			var merged []delta
			for _, in := range t.Inputs {
				merged = append(merged, out[in]...)
			}
			out[id] = consolidate(merged)
		case *graph.Differentiate:
			out[id] = d.evalDifferentiate(id, out[t.Input])
		}
	}
	return nil
}

func (d *Dataflow) evalMap(ctx context.Context, id graph.NodeId, node *graph.Map, in []delta) ([]delta, error) {
	fn := d.funcs[id].mapFn
	outLayout := node.OutputLayout
	outVt := d.vtReg.For(outLayout)
	size := d.cache.Native(outLayout).Size
	results := make([]delta, len(in))

	err := d.dispatch(ctx, len(in), func(i int) error {
		buf := make([]byte, size)
		fn([]unsafe.Pointer{in[i].row.Ptr(), bufPtr(buf)})
		results[i] = delta{row: vtable.NewRow(outLayout, outVt, buf), weight: in[i].weight}
		return nil
	})
	return results, err
}

func (d *Dataflow) evalFilter(ctx context.Context, id graph.NodeId, node *graph.Filter, in []delta) ([]delta, error) {
	fn := d.funcs[id].filterFn
	keep := make([]bool, len(in))

	err := d.dispatch(ctx, len(in), func(i int) error {
		ret := fn([]unsafe.Pointer{in[i].row.Ptr()})
		keep[i] = ret != nil && *ret
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Built as a fresh slice rather than compacted in place: `in` may be
	// the same backing array another downstream consumer of this node's
	// producer reads later in the epoch (a fan-out graph), so Filter
	// must not mutate it.
	out := make([]delta, 0, len(in))
	for i, k := range keep {
		if k {
			out = append(out, in[i])
		}
	}
	return out, nil
}

func (d *Dataflow) evalIndexWith(ctx context.Context, id graph.NodeId, node *graph.IndexWith, in []delta) ([]kvDelta, error) {
	fn := d.funcs[id].indexFn
	keyL, valL := node.KeyLayout, node.ValueLayout
	keyVt, valVt := d.vtReg.For(keyL), d.vtReg.For(valL)
	keySize, valSize := d.cache.Native(keyL).Size, d.cache.Native(valL).Size
	results := make([]kvDelta, len(in))

	err := d.dispatch(ctx, len(in), func(i int) error {
		kbuf := make([]byte, keySize)
		vbuf := make([]byte, valSize)
		fn([]unsafe.Pointer{in[i].row.Ptr(), bufPtr(kbuf), bufPtr(vbuf)})
		results[i] = kvDelta{
			key:    vtable.NewRow(keyL, keyVt, kbuf),
			val:    vtable.NewRow(valL, valVt, vbuf),
			weight: in[i].weight,
		}
		return nil
	})
	return results, err
}

// evalFold maintains a single running accumulator across epochs: graph.Fold
// has no KeyLayout, so there is one accumulator for the whole node rather
// than one per key. On its first delta the accumulator is seeded by the
// all-null/zero row ir.NullRow produces, then Step is invoked once per
// incoming (value, weight) pair, in order, and Finish once per epoch that
// saw activity.
//
// This emits the new accumulator with weight +1 on any epoch that changed
// it rather than computing a retract/insert pair against the previous
// emission; full incremental view maintenance over the output weight
// itself is left to a caller that needs it.
func (d *Dataflow) evalFold(id graph.NodeId, node *graph.Fold, in []delta) []delta {
	if len(in) == 0 {
		return nil
	}
	nf := d.funcs[id]

	d.mu.Lock()
	accBuf, ok := d.foldAcc[id]
	if !ok {
		accBuf = make([]byte, d.cache.Native(node.AccLayout).Size)
		nf.seedFn([]unsafe.Pointer{bufPtr(accBuf)})
		d.foldAcc[id] = accBuf
	}
	d.mu.Unlock()

	weightLayout := d.cache.Weight()
	wbuf := make([]byte, d.cache.Native(weightLayout).Size)
	for _, dl := range in {
		writeWeight(wbuf, dl.weight)
		nf.stepFn([]unsafe.Pointer{bufPtr(accBuf), dl.row.Ptr(), bufPtr(wbuf)})
	}

	outBuf := make([]byte, d.cache.Native(node.OutputLayout).Size)
	nf.finishFn([]unsafe.Pointer{bufPtr(accBuf), bufPtr(outBuf)})
	outVt := d.vtReg.For(node.OutputLayout)
	return []delta{{row: vtable.NewRow(node.OutputLayout, outVt, outBuf), weight: 1}}
}

// evalDifferentiate emits s - z⁻¹(s): this epoch's consolidated input
// minus the previous epoch's.
func (d *Dataflow) evalDifferentiate(id graph.NodeId, in []delta) []delta {
	cur := consolidate(in)

	d.mu.Lock()
	prev := d.diffPrev[id]
	d.diffPrev[id] = cur
	d.mu.Unlock()

	merged := make([]delta, 0, len(cur)+len(prev))
	merged = append(merged, cur...)
	merged = append(merged, negate(prev)...)
	return consolidate(merged)
}

func negate(in []delta) []delta {
	out := make([]delta, len(in))
	for i, d := range in {
		out[i] = delta{row: d.row, weight: -d.weight}
	}
	return out
}

func writeWeight(buf []byte, w int64) {
	*(*int64)(bufPtr(buf)) = w
}

func bufPtr(buf []byte) unsafe.Pointer {
	if len(buf) == 0 {
		return unsafe.Pointer(&struct{}{})
	}
	return unsafe.Pointer(&buf[0])
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// dispatch fans work over [0,n) across d.workers goroutines, each
// handling a contiguous chunk sequentially: two workers never write to
// the same row, per-row invocations within one worker are sequential,
// and across workers they are parallel and unordered.
func (d *Dataflow) dispatch(ctx context.Context, n int, work func(i int) error) error {
	if n == 0 {
		return nil
	}
	workers := d.workers
	if workers <= 0 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	g, _ := errgroup.WithContext(ctx)
	chunk := (n + workers - 1) / workers
	for w := 0; w < workers; w++ {
		start := w * chunk
		if start >= n {
			break
		}
		end := start + chunk
		if end > n {
			end = n
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := work(i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// computeOrder derives a dispatch order from each node's explicit input
// edges via Kahn's algorithm, since NodeId order is not itself a
// topological order. Ties are broken by ascending NodeId for
// determinism, not because insertion order is trusted for correctness.
func computeOrder(g *graph.Graph) []graph.NodeId {
	n := g.NumNodes()
	indegree := make([]int, n)
	adj := make([][]graph.NodeId, n)
	for id := 0; id < n; id++ {
		for _, in := range graph.Inputs(g.Node(graph.NodeId(id))) {
			adj[in] = append(adj[in], graph.NodeId(id))
			indegree[id]++
		}
	}

	var queue []graph.NodeId
	for id := 0; id < n; id++ {
		if indegree[id] == 0 {
			queue = append(queue, graph.NodeId(id))
		}
	}

	order := make([]graph.NodeId, 0, n)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range adj[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	return order
}
