package ir

import (
	"rowjit/internal/coltype"
	"rowjit/internal/layout"
)

// Instr is the tagged union of non-terminator instructions. Modeled as a
// Go interface over concrete structs rather than an abstract base type:
// the optimizer and codegen switch on the concrete type, and adding an
// instruction touches this file and the two dispatchers.
type Instr interface {
	// Dst returns the value this instruction defines, or -1 if it
	// defines none (e.g. Store, SetNull).
	Dst() Value
	isInstr()
}

// Const materializes a typed constant.
type Const struct {
	D    Value
	Type coltype.ColumnType
	// Val holds the constant payload: bool, int64 (for all integer
	// widths, narrowed/widened by Type), float64 (for F32/F64), or
	// string (for String).
	Val interface{}
}

func (c *Const) Dst() Value { return c.D }
func (*Const) isInstr()     {}

// Load reads column Col of row Row, yielding its column type.
type Load struct {
	D   Value
	Row RowRef
	Col int
}

func (l *Load) Dst() Value { return l.D }
func (*Load) isInstr()     {}

// Store writes Val into column Col of row Row. Requires a matching type.
type Store struct {
	Row RowRef
	Col int
	Val Value
}

func (*Store) Dst() Value { return -1 }
func (*Store) isInstr()   {}

// IsNull reads the null flag of column Col of row Row. Valid only on
// nullable columns (validator error otherwise).
type IsNull struct {
	D   Value
	Row RowRef
	Col int
}

func (n *IsNull) Dst() Value { return n.D }
func (*IsNull) isInstr()     {}

// SetNull writes the null flag of column Col of row Row. Valid only on
// nullable columns.
type SetNull struct {
	Row RowRef
	Col int
	Val Value
}

func (*SetNull) Dst() Value { return -1 }
func (*SetNull) isInstr()   {}

// Extract is the "read me the value" alias: on a non-nullable column it
// behaves exactly like Load; on a nullable column it still just loads the
// underlying value. Pairing it with IsNull is the caller's responsibility.
type Extract struct {
	D   Value
	Row RowRef
	Col int
}

func (e *Extract) Dst() Value { return e.D }
func (*Extract) isInstr()     {}

// Insert is the "write me the value" alias: behaves like Store. Callers
// pair it with SetNull when the column is nullable and the written
// value's null-ness is not implied by the write.
type Insert struct {
	Row RowRef
	Col int
	Val Value
}

func (*Insert) Dst() Value { return -1 }
func (*Insert) isInstr()   {}

// Arith is a typed binary arithmetic instruction.
type Arith struct {
	D    Value
	Op   ArithOp
	Type coltype.ColumnType
	X, Y Value
}

func (a *Arith) Dst() Value { return a.D }
func (*Arith) isInstr()     {}

// Cmp is a typed comparison, always yielding Bool.
type Cmp struct {
	D    Value
	Op   CmpOp
	Type coltype.ColumnType
	X, Y Value
}

func (c *Cmp) Dst() Value { return c.D }
func (*Cmp) isInstr()     {}

// Logic is a binary logical operator over Bool operands.
type Logic struct {
	D    Value
	Op   LogicOp
	X, Y Value
}

func (l *Logic) Dst() Value { return l.D }
func (*Logic) isInstr()     {}

// Not negates a Bool operand.
type Not struct {
	D Value
	X Value
}

func (n *Not) Dst() Value { return n.D }
func (*Not) isInstr()     {}

// Cast converts X to Target, permitting numeric widen/narrow. Integer
// narrowing truncates; out-of-range float-to-integer conversion saturates
// rather than trapping.
type Cast struct {
	D      Value
	Target coltype.ColumnType
	X      Value
	XType  coltype.ColumnType
}

func (c *Cast) Dst() Value { return c.D }
func (*Cast) isInstr()     {}

// CopyRowTo bulk-copies an entire row (all columns, including null bits)
// from Src to Dst, both of the given layout.
type CopyRowTo struct {
	Src, Dst RowRef
	Layout   layout.LayoutId
}

func (*CopyRowTo) Dst() Value { return -1 }
func (*CopyRowTo) isInstr()   {}
