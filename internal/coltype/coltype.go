// Package coltype describes the closed set of scalar column types a row can
// hold and their intrinsic size/alignment on the target machine.
package coltype

import "fmt"

// ColumnType is the closed enum of scalar types a RowLayout column can hold.
type ColumnType uint8

const (
	Unit ColumnType = iota
	Bool
	I8
	I16
	I32
	I64
	U8
	U16
	U32
	U64
	F32
	F64
	String
)

var names = [...]string{
	Unit: "Unit", Bool: "Bool",
	I8: "I8", I16: "I16", I32: "I32", I64: "I64",
	U8: "U8", U16: "U16", U32: "U32", U64: "U64",
	F32: "F32", F64: "F64",
	String: "String",
}

func (c ColumnType) String() string {
	if int(c) < len(names) && names[c] != "" {
		return names[c]
	}
	return fmt.Sprintf("ColumnType(%d)", uint8(c))
}

// intrinsic size/alignment in bytes. String is an owned, pointer-sized
// handle into heap storage (the handle itself, not its contents, lives
// inline in the row).
var sizes = [...]uint32{
	Unit: 0, Bool: 1,
	I8: 1, I16: 2, I32: 4, I64: 8,
	U8: 1, U16: 2, U32: 4, U64: 8,
	F32: 4, F64: 8,
	String: 8,
}

var aligns = [...]uint32{
	Unit: 1, Bool: 1,
	I8: 1, I16: 2, I32: 4, I64: 8,
	U8: 1, U16: 2, U32: 4, U64: 8,
	F32: 4, F64: 8,
	String: 8,
}

// Size returns the intrinsic byte size of the type.
func (c ColumnType) Size() uint32 { return sizes[c] }

// Align returns the intrinsic byte alignment of the type.
func (c ColumnType) Align() uint32 { return aligns[c] }

// IsNumeric reports whether c supports arithmetic (add/sub/mul/div) and
// ordering comparisons. String and Unit are not numeric; Bool is not
// numeric (it has its own logical operators).
func (c ColumnType) IsNumeric() bool {
	switch c {
	case I8, I16, I32, I64, U8, U16, U32, U64, F32, F64:
		return true
	default:
		return false
	}
}

// IsInteger reports whether c is one of the signed/unsigned integer types.
func (c ColumnType) IsInteger() bool {
	switch c {
	case I8, I16, I32, I64, U8, U16, U32, U64:
		return true
	default:
		return false
	}
}

// IsFloat reports whether c is F32 or F64.
func (c ColumnType) IsFloat() bool {
	return c == F32 || c == F64
}

// IsSigned reports whether c is a signed integer type.
func (c ColumnType) IsSigned() bool {
	switch c {
	case I8, I16, I32, I64:
		return true
	default:
		return false
	}
}

// IsHeapBacked reports whether values of this type own heap storage that
// must be dropped via vtable glue when a row leaves the stream.
func (c ColumnType) IsHeapBacked() bool {
	return c == String
}

// Valid reports whether c is one of the closed enum's known values.
func (c ColumnType) Valid() bool {
	return int(c) < len(names) && names[c] != ""
}
