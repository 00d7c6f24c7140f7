package ir

import (
	"rowjit/internal/coltype"
	"rowjit/internal/layout"
)

// InputKind distinguishes a read-only row pointer parameter from a
// mutable one the function writes into.
type InputKind uint8

const (
	ReadOnly InputKind = iota
	Mutable
)

// Input describes one of a Function's ordered row parameters.
type Input struct {
	Layout layout.LayoutId
	Kind   InputKind
}

// Function is a CFG of basic blocks describing one per-row user closure
// (map/filter/fold/index body). Values are SSA: produced once, by the
// instruction (or input) that defines them.
type Function struct {
	Name   string
	Inputs []Input
	// RetType is the scalar return type, or nil for a unit-returning
	// function (Map/IndexWith/Fold step bodies all return unit; Filter
	// bodies return Bool).
	RetType *coltype.ColumnType

	Blocks []*Block

	// valueTypes records the declared type of every SSA value that
	// carries one (instructions with no Dst, like Store, are absent).
	valueTypes map[Value]valueInfo

	Layouts *layout.LayoutCache
}

type valueInfo struct {
	typ       coltype.ColumnType
	nullAware bool
}

// NumValues returns one past the highest Value id ever allocated —
// callers use this to size dense arrays indexed by Value.
func (f *Function) NumValues() int {
	n := 0
	for v := range f.valueTypes {
		if int(v)+1 > n {
			n = int(v) + 1
		}
	}
	return n
}

// IsNullAware reports whether v was produced from a nullable column or
// propagated from one; the builder tracks this as it emits instructions.
func (f *Function) IsNullAware(v Value) bool {
	return f.valueTypes[v].nullAware
}

// TypeOf returns the declared ColumnType of v. Values with no declared
// type (instructions with no Dst) are not present here.
func (f *Function) TypeOf(v Value) (coltype.ColumnType, bool) {
	info, ok := f.valueTypes[v]
	return info.typ, ok
}

// Block returns the block with the given id.
func (f *Function) Block(id BlockId) *Block { return f.Blocks[id] }
