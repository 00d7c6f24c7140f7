package ir

import (
	"fmt"

	"rowjit/internal/coltype"
	"rowjit/internal/layout"
)

// Builder constructs a well-typed SSA Function. It tracks the current
// block, the next free Value id and each value's declared type and
// null-awareness, following a FunctionBuilder shape convenient for
// writing function bodies instruction by instruction in tests.
type Builder struct {
	fn       *Function
	cur      *Block
	nextVal  Value
	nextBlk  BlockId
}

// NewBuilder starts building a function named name against the given
// layout cache (for resolving row parameter layouts and CopyRowTo).
func NewBuilder(name string, cache *layout.LayoutCache) *Builder {
	b := &Builder{
		fn: &Function{
			Name:       name,
			Layouts:    cache,
			valueTypes: make(map[Value]valueInfo),
		},
	}
	b.cur = b.NewBlock()
	return b
}

// AddInput declares a new read-only row input of the given layout,
// returning its RowRef.
func (b *Builder) AddInput(l layout.LayoutId) RowRef {
	b.fn.Inputs = append(b.fn.Inputs, Input{Layout: l, Kind: ReadOnly})
	return RowRef(len(b.fn.Inputs) - 1)
}

// AddMutInput declares a new mutable row input (a destination the
// function writes into), returning its RowRef.
func (b *Builder) AddMutInput(l layout.LayoutId) RowRef {
	b.fn.Inputs = append(b.fn.Inputs, Input{Layout: l, Kind: Mutable})
	return RowRef(len(b.fn.Inputs) - 1)
}

// SetReturnType declares the function's scalar return type (for Filter
// bodies: Bool). Functions that never call this return unit.
func (b *Builder) SetReturnType(t coltype.ColumnType) {
	tt := t
	b.fn.RetType = &tt
}

// NewBlock allocates a fresh, empty, unsealed block but does not switch
// the builder's current block to it — callers do that explicitly via
// SetBlock once they are ready to emit into it.
func (b *Builder) NewBlock() *Block {
	blk := &Block{ID: b.nextBlk}
	b.nextBlk++
	b.fn.Blocks = append(b.fn.Blocks, blk)
	return blk
}

// SetBlock switches the builder's insertion point. The previously current
// block must already have a terminator: a block must end in a terminator
// before another block may be moved to.
func (b *Builder) SetBlock(blk *Block) {
	if b.cur != nil && !b.cur.Terminated() {
		panic("ir: moved off a block with no terminator")
	}
	b.cur = blk
}

func (b *Builder) alloc(t coltype.ColumnType, nullAware bool) Value {
	v := b.nextVal
	b.nextVal++
	b.fn.valueTypes[v] = valueInfo{typ: t, nullAware: nullAware}
	return v
}

func (b *Builder) layoutOf(r RowRef) layout.RowLayout {
	return b.fn.Layouts.Layout(b.fn.Inputs[r].Layout)
}

// Const emits a typed constant.
func (b *Builder) Const(t coltype.ColumnType, val interface{}) Value {
	d := b.alloc(t, false)
	b.cur.Append(&Const{D: d, Type: t, Val: val})
	return d
}

// Load reads column col of row row.
func (b *Builder) Load(row RowRef, col int) Value {
	c := b.layoutOf(row).Column(col)
	d := b.alloc(c.Type, c.Nullable)
	b.cur.Append(&Load{D: d, Row: row, Col: col})
	return d
}

// Store writes val into column col of row row.
func (b *Builder) Store(row RowRef, col int, val Value) {
	b.cur.Append(&Store{Row: row, Col: col, Val: val})
}

// IsNull reads the null flag of column col of row row.
func (b *Builder) IsNull(row RowRef, col int) Value {
	if !b.layoutOf(row).Column(col).Nullable {
		panic(fmt.Sprintf("ir: is_null on non-nullable column %d", col))
	}
	d := b.alloc(coltype.Bool, false)
	b.cur.Append(&IsNull{D: d, Row: row, Col: col})
	return d
}

// SetNull writes the null flag of column col of row row.
func (b *Builder) SetNull(row RowRef, col int, val Value) {
	if !b.layoutOf(row).Column(col).Nullable {
		panic(fmt.Sprintf("ir: set_null on non-nullable column %d", col))
	}
	b.cur.Append(&SetNull{Row: row, Col: col, Val: val})
}

// Extract reads column col of row row; on a nullable column the null
// flag is unaffected and must be read separately via IsNull.
func (b *Builder) Extract(row RowRef, col int) Value {
	col2 := b.layoutOf(row).Column(col)
	nullAware := col2.Nullable
	d := b.alloc(col2.Type, nullAware)
	b.cur.Append(&Extract{D: d, Row: row, Col: col})
	return d
}

// Insert writes val into column col of row row; pair with SetNull on
// nullable columns to update the null flag.
func (b *Builder) Insert(row RowRef, col int, val Value) {
	b.cur.Append(&Insert{Row: row, Col: col, Val: val})
}

// Arith emits a typed binary arithmetic instruction.
func (b *Builder) Arith(op ArithOp, t coltype.ColumnType, x, y Value) Value {
	d := b.alloc(t, b.fn.IsNullAware(x) || b.fn.IsNullAware(y))
	b.cur.Append(&Arith{D: d, Op: op, Type: t, X: x, Y: y})
	return d
}

// Cmp emits a typed comparison, yielding Bool.
func (b *Builder) Cmp(op CmpOp, t coltype.ColumnType, x, y Value) Value {
	d := b.alloc(coltype.Bool, b.fn.IsNullAware(x) || b.fn.IsNullAware(y))
	b.cur.Append(&Cmp{D: d, Op: op, Type: t, X: x, Y: y})
	return d
}

// Logic emits a binary logical operator (and/or) over Bool operands. This
// is also how a compound expression combines operand null flags before a
// SetNull, typically by oring the operand nulls together.
func (b *Builder) Logic(op LogicOp, x, y Value) Value {
	d := b.alloc(coltype.Bool, false)
	b.cur.Append(&Logic{D: d, Op: op, X: x, Y: y})
	return d
}

// Not emits a Bool negation.
func (b *Builder) Not(x Value) Value {
	d := b.alloc(coltype.Bool, false)
	b.cur.Append(&Not{D: d, X: x})
	return d
}

// Cast converts x (of type xt) to target. Integer-to-integer narrowing
// truncates (two's-complement wrap); float-to-integer conversion
// saturates at the target's range rather than trapping.
func (b *Builder) Cast(x Value, xt, target coltype.ColumnType) Value {
	d := b.alloc(target, b.fn.IsNullAware(x))
	b.cur.Append(&Cast{D: d, Target: target, X: x, XType: xt})
	return d
}

// CopyRowTo bulk-copies src to dst, both of layout l.
func (b *Builder) CopyRowTo(src, dst RowRef, l layout.LayoutId) {
	b.cur.Append(&CopyRowTo{Src: src, Dst: dst, Layout: l})
}

// Branch terminates the current block with a conditional branch,
// registering a predecessor edge on each target.
func (b *Builder) Branch(cond Value, t, f *Block) {
	b.cur.SetTerm(&Branch{Cond: cond, TrueBlk: t.ID, FalseBlk: f.ID})
	t.AddPred()
	f.AddPred()
}

// Jump is sugar for an unconditional branch: both targets are the same
// block.
func (b *Builder) Jump(target *Block) {
	b.cur.SetTerm(&Branch{Cond: -1, TrueBlk: target.ID, FalseBlk: target.ID})
	target.AddPred()
}

// Ret terminates the current block, returning value.
func (b *Builder) Ret(value Value) {
	b.cur.SetTerm(&Ret{Value: value})
}

// RetUnit terminates the current block with no return value.
func (b *Builder) RetUnit() {
	b.cur.SetTerm(&RetUnit{})
}

// CurrentBlock returns the block the builder is currently appending to.
func (b *Builder) CurrentBlock() *Block { return b.cur }

// Build finalizes and returns the Function, sealing every block that is
// not already sealed. It does not check that blocks are terminated and
// does not add a missing terminator; the validator reports unterminated
// blocks.
func (b *Builder) Build() *Function {
	for _, blk := range b.fn.Blocks {
		if !blk.sealed {
			blk.Seal()
		}
	}
	return b.fn
}
