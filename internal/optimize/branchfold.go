package optimize

import "rowjit/internal/ir"

// foldBranches rewrites a Branch whose condition is a known-constant Bool
// into an unconditional jump to the taken target. The untaken target's
// predecessor count is left alone here — removeDeadBlocks cleans up
// blocks that end up with zero live predecessors.
func foldBranches(fn *ir.Function) bool {
	known := make(map[ir.Value]bool)
	changed := false

	for _, blk := range fn.Blocks {
		for _, instr := range blk.Instrs {
			if c, ok := instr.(*ir.Const); ok {
				if b, ok := c.Val.(bool); ok {
					known[c.D] = b
				}
			}
		}
		br, ok := blk.Term.(*ir.Branch)
		if !ok || br.Cond < 0 {
			continue
		}
		cond, ok := known[br.Cond]
		if !ok {
			continue
		}
		target := br.FalseBlk
		if cond {
			target = br.TrueBlk
		}
		blk.Term = &ir.Branch{Cond: -1, TrueBlk: target, FalseBlk: target}
		changed = true
	}
	return changed
}
