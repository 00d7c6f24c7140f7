package optimize

import "rowjit/internal/ir"

// storeKey names one written slot: a column's value, or (null set) its
// null flag. Store/Insert and SetNull write different slots.
type storeKey struct {
	row  ir.RowRef
	col  int
	null bool
}

// eliminateDeadStores drops a Store/Insert/SetNull that is unconditionally
// overwritten, within the same block, by a later write to the same
// (row, column) with no intervening read of that slot. CopyRowTo touches
// every column of its destination row and invalidates all pending writes
// to that row.
func eliminateDeadStores(fn *ir.Function) bool {
	changed := false
	for _, blk := range fn.Blocks {
		lastWrite := make(map[storeKey]int)
		dead := make(map[int]bool)

		for idx, instr := range blk.Instrs {
			switch in := instr.(type) {
			case *ir.Store:
				k := storeKey{in.Row, in.Col, false}
				if prev, ok := lastWrite[k]; ok {
					dead[prev] = true
				}
				lastWrite[k] = idx
			case *ir.Insert:
				k := storeKey{in.Row, in.Col, false}
				if prev, ok := lastWrite[k]; ok {
					dead[prev] = true
				}
				lastWrite[k] = idx
			case *ir.SetNull:
				k := storeKey{in.Row, in.Col, true}
				if prev, ok := lastWrite[k]; ok {
					dead[prev] = true
				}
				lastWrite[k] = idx
			case *ir.Load:
				delete(lastWrite, storeKey{in.Row, in.Col, false})
			case *ir.Extract:
				delete(lastWrite, storeKey{in.Row, in.Col, false})
			case *ir.IsNull:
				delete(lastWrite, storeKey{in.Row, in.Col, true})
			case *ir.CopyRowTo:
				for k := range lastWrite {
					if k.row == in.Src || k.row == in.Dst {
						delete(lastWrite, k)
					}
				}
			}
		}

		if len(dead) == 0 {
			continue
		}
		kept := blk.Instrs[:0]
		for idx, instr := range blk.Instrs {
			if dead[idx] {
				changed = true
				continue
			}
			kept = append(kept, instr)
		}
		blk.Instrs = kept
	}
	return changed
}
