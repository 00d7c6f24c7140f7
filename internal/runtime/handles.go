package runtime

import (
	"rowjit/internal/graph"
	"rowjit/internal/layout"
	"rowjit/internal/vtable"
)

// InputHandle accepts (row, weight: i32) pairs for one Source node.
type InputHandle struct {
	d        *Dataflow
	id       graph.NodeId
	layoutID layout.LayoutId
}

// Layout returns the LayoutId rows pushed through this handle must use.
func (h *InputHandle) Layout() layout.LayoutId { return h.layoutID }

// Push enqueues (row, weight) for the next Step. row must have been
// allocated against h.Layout() (typically via Dataflow.AllocRow).
func (h *InputHandle) Push(row vtable.Row, weight int32) {
	h.d.mu.Lock()
	defer h.d.mu.Unlock()
	h.d.sourceBuf[h.id] = append(h.d.sourceBuf[h.id], delta{row: row, weight: int64(weight)})
}

// RowWeight is one element of an OutputHandle's consolidated stream of
// (row, weight) pairs. Key is only meaningful when HasKey is true, which
// happens for output drawn from an IndexWith node.
type RowWeight struct {
	Row    vtable.Row
	Key    vtable.Row
	HasKey bool
	Weight int64
}

// OutputHandle yields the consolidated output accumulated by one Sink
// node since the last Drain call.
type OutputHandle struct {
	d  *Dataflow
	id graph.NodeId
}

// Drain returns and clears the output accumulated since the last Drain
// (or since construction).
func (h *OutputHandle) Drain() []RowWeight {
	h.d.mu.Lock()
	defer h.d.mu.Unlock()

	var out []RowWeight
	for _, dl := range h.d.sinkOut[h.id] {
		out = append(out, RowWeight{Row: dl.row, Weight: dl.weight})
	}
	for _, kv := range h.d.sinkKVOut[h.id] {
		out = append(out, RowWeight{Row: kv.val, Key: kv.key, HasKey: true, Weight: kv.weight})
	}
	h.d.sinkOut[h.id] = nil
	h.d.sinkKVOut[h.id] = nil
	return out
}
