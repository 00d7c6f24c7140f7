package ir

// Term is the tagged union of block terminators: branch, ret(value) or
// ret_unit.
type Term interface {
	isTerm()
}

// Branch jumps to TrueBlk if Cond is truthy, otherwise FalseBlk.
type Branch struct {
	Cond            Value
	TrueBlk, FalseBlk BlockId
}

func (*Branch) isTerm() {}

// Ret returns Value from the function.
type Ret struct {
	Value Value
}

func (*Ret) isTerm() {}

// RetUnit returns with no value, for unit-returning (Map/IndexWith/Fold
// step) functions.
type RetUnit struct{}

func (*RetUnit) isTerm() {}

// Block is a basic block: an ordered instruction list followed by exactly
// one terminator once the block is complete.
//
// Sealing discipline: a block is sealed once all of its
// predecessors have been registered. Because this IR carries all mutable
// state through row slots rather than explicit phi nodes, sealing has no
// phi-resolution work to do — it simply locks block membership so the
// optimizer and validator can trust that no further instructions or
// predecessors will appear.
type Block struct {
	ID       BlockId
	Instrs   []Instr
	Term     Term
	sealed   bool
	predCount int
}

// Append adds instr to the end of the block. Panics if the block already
// has a terminator — a block must end in a terminator before another block
// may be moved to.
func (b *Block) Append(instr Instr) {
	if b.sealed {
		panic("ir: cannot append instruction to a sealed block")
	}
	if b.Term != nil {
		panic("ir: cannot append instruction after block terminator")
	}
	b.Instrs = append(b.Instrs, instr)
}

// SetTerm sets the block's terminator. Panics if already set.
func (b *Block) SetTerm(t Term) {
	if b.Term != nil {
		panic("ir: block already has a terminator")
	}
	b.Term = t
}

// AddPred registers one more predecessor edge into this block (called by
// the builder whenever a Branch targeting this block is emitted).
func (b *Block) AddPred() {
	if b.sealed {
		panic("ir: cannot add a predecessor to a sealed block")
	}
	b.predCount++
}

// Seal finalizes block membership: no further predecessors may be
// registered after this call.
func (b *Block) Seal() { b.sealed = true }

// Sealed reports whether the block has been sealed.
func (b *Block) Sealed() bool { return b.sealed }

// PredCount returns the number of predecessor edges registered so far.
func (b *Block) PredCount() int { return b.predCount }

// Terminated reports whether the block has a terminator.
func (b *Block) Terminated() bool { return b.Term != nil }
