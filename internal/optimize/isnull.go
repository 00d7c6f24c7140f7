package optimize

import (
	"rowjit/internal/coltype"
	"rowjit/internal/ir"
	"rowjit/internal/layout"
)

// propagateIsNull replaces is_null(load(row, c)) with a constant false when
// column c is not nullable. It only recognizes the pattern where the
// loaded row comes directly from one of the function's declared inputs,
// since that is the only case where the column's nullability is
// statically known.
func propagateIsNull(fn *ir.Function, cache *layout.LayoutCache) bool {
	changed := false
	for _, blk := range fn.Blocks {
		for idx, instr := range blk.Instrs {
			in, ok := instr.(*ir.IsNull)
			if !ok {
				continue
			}
			if int(in.Row) >= len(fn.Inputs) {
				continue
			}
			l := cache.Layout(fn.Inputs[in.Row].Layout)
			if in.Col < 0 || in.Col >= l.NumColumns() {
				continue
			}
			if l.Column(in.Col).Nullable {
				continue
			}
			blk.Instrs[idx] = &ir.Const{D: in.D, Type: coltype.Bool, Val: false}
			changed = true
		}
	}
	return changed
}
