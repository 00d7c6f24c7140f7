package optimize

import "rowjit/internal/ir"

// removeDeadBlocks drops blocks unreachable from the entry block (bb0) and
// compacts the remaining ones, renumbering BlockIds and fixing up every
// Branch that referenced a surviving block. Block 0 is never removed
// even if nothing branches to it: it is the function's entry point.
func removeDeadBlocks(fn *ir.Function) bool {
	if len(fn.Blocks) == 0 {
		return false
	}

	reachable := make(map[ir.BlockId]bool)
	var walk func(id ir.BlockId)
	walk = func(id ir.BlockId) {
		if reachable[id] {
			return
		}
		reachable[id] = true
		blk := fn.Block(id)
		if br, ok := blk.Term.(*ir.Branch); ok {
			walk(br.TrueBlk)
			walk(br.FalseBlk)
		}
	}
	walk(fn.Blocks[0].ID)

	if len(reachable) == len(fn.Blocks) {
		return false
	}

	remap := make(map[ir.BlockId]ir.BlockId)
	kept := make([]*ir.Block, 0, len(reachable))
	for _, blk := range fn.Blocks {
		if !reachable[blk.ID] {
			continue
		}
		remap[blk.ID] = ir.BlockId(len(kept))
		kept = append(kept, blk)
	}
	for _, blk := range kept {
		blk.ID = remap[blk.ID]
		if br, ok := blk.Term.(*ir.Branch); ok {
			blk.Term = &ir.Branch{
				Cond:     br.Cond,
				TrueBlk:  remap[br.TrueBlk],
				FalseBlk: remap[br.FalseBlk],
			}
		}
	}
	fn.Blocks = kept
	return true
}
