// Package vtable generates, per LayoutId, the row glue routines:
// clone/drop_in_place/eq/cmp/hash. These are what let the surrounding
// streaming runtime treat a Row as a first-class value inside its generic
// Z-set containers without knowing the concrete column types a layout
// holds.
package vtable

import (
	"hash/maphash"
	"unsafe"

	"rowjit/internal/coltype"
	"rowjit/internal/layout"
)

// VTable is the generated per-layout glue table. Instances are cheap to
// build and are cached one per LayoutId by a Registry.
type VTable struct {
	layoutID layout.LayoutId
	native   *layout.NativeLayout
	rowLay   layout.RowLayout
}

// Build generates the vtable for id, deriving the glue directly from the
// NativeLayout the same way codegen/closure.go derives its load/store
// steps, since both walk the same column/offset/null-bit description.
func Build(cache *layout.LayoutCache, id layout.LayoutId) *VTable {
	return &VTable{
		layoutID: id,
		native:   cache.Native(id),
		rowLay:   cache.Layout(id),
	}
}

// Clone copies src into dst, including heap-backed columns (String: src's
// string header is duplicated, not aliased — Go strings are immutable so
// this is a cheap, safe "deep enough" clone; a non-Go backend would heap
// allocate and copy the bytes instead).
func (v *VTable) Clone(src, dst unsafe.Pointer) {
	size := uintptr(v.native.Size)
	srcSlice := unsafe.Slice((*byte)(src), size)
	dstSlice := unsafe.Slice((*byte)(dst), size)
	copy(dstSlice, srcSlice)
}

// DropInPlace releases any heap-backed column storage owned by row. String
// columns own their heap storage; Row.Drop calls this glue. Go's garbage collector reclaims the string backing store once the
// header is cleared; this still matters because it breaks the reference
// from row's bytes, which is the contract callers rely on before reusing
// or deallocating the row buffer.
func (v *VTable) DropInPlace(row unsafe.Pointer) {
	for i, c := range v.rowLay.Columns {
		if c.Type != coltype.String {
			continue
		}
		off := uintptr(v.native.OffsetOf(i))
		p := (*string)(unsafe.Add(row, off))
		*p = ""
	}
}

// Eq reports whether a and b hold bit-for-bit equal rows, honoring null
// bits: two rows are equal only if their null bits match and every
// non-null column compares equal.
func (v *VTable) Eq(a, b unsafe.Pointer) bool {
	for i, c := range v.rowLay.Columns {
		if c.Nullable {
			an, bn := v.isNull(a, i), v.isNull(b, i)
			if an != bn {
				return false
			}
			if an {
				continue
			}
		}
		if !v.columnEqual(a, b, i, c.Type) {
			return false
		}
	}
	return true
}

// Cmp returns -1/0/1 comparing a and b lexicographically over columns in
// declaration order; nulls sort before any non-null value, matching most
// SQL NULLS FIRST conventions.
func (v *VTable) Cmp(a, b unsafe.Pointer) int {
	for i, c := range v.rowLay.Columns {
		if c.Nullable {
			an, bn := v.isNull(a, i), v.isNull(b, i)
			switch {
			case an && bn:
				continue
			case an && !bn:
				return -1
			case !an && bn:
				return 1
			}
		}
		if d := v.columnCompare(a, b, i, c.Type); d != 0 {
			return d
		}
	}
	return 0
}

// Hash writes row's bytes (column values and null bits, skipping padding)
// into h, in column declaration order.
func (v *VTable) Hash(row unsafe.Pointer, h *maphash.Hash) {
	for i, c := range v.rowLay.Columns {
		if c.Nullable {
			var nb [1]byte
			if v.isNull(row, i) {
				nb[0] = 1
			}
			_, _ = h.Write(nb[:])
			if nb[0] == 1 {
				continue
			}
		}
		off := uintptr(v.native.OffsetOf(i))
		size := uintptr(c.Type.Size())
		if c.Type == coltype.String {
			s := *(*string)(unsafe.Add(row, off))
			_, _ = h.WriteString(s)
			continue
		}
		b := unsafe.Slice((*byte)(unsafe.Add(row, off)), size)
		_, _ = h.Write(b)
	}
}

func (v *VTable) isNull(row unsafe.Pointer, col int) bool {
	kind, off, bit := v.native.NullabilityOf(col)
	word := readWord(unsafe.Add(row, uintptr(off)), kind)
	set := word&(uint64(1)<<bit) != 0
	if v.native.Sigil == layout.SigilOneIsNull {
		return set
	}
	return !set
}

func readWord(addr unsafe.Pointer, kind layout.BitSetKind) uint64 {
	switch kind {
	case layout.BitSetU8:
		return uint64(*(*uint8)(addr))
	case layout.BitSetU16:
		return uint64(*(*uint16)(addr))
	case layout.BitSetU32:
		return uint64(*(*uint32)(addr))
	default:
		return *(*uint64)(addr)
	}
}

func (v *VTable) columnEqual(a, b unsafe.Pointer, col int, t coltype.ColumnType) bool {
	off := uintptr(v.native.OffsetOf(col))
	pa, pb := unsafe.Add(a, off), unsafe.Add(b, off)
	if t == coltype.String {
		return *(*string)(pa) == *(*string)(pb)
	}
	size := uintptr(t.Size())
	return string(unsafe.Slice((*byte)(pa), size)) == string(unsafe.Slice((*byte)(pb), size))
}

func (v *VTable) columnCompare(a, b unsafe.Pointer, col int, t coltype.ColumnType) int {
	off := uintptr(v.native.OffsetOf(col))
	pa, pb := unsafe.Add(a, off), unsafe.Add(b, off)
	switch t {
	case coltype.String:
		sa, sb := *(*string)(pa), *(*string)(pb)
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		default:
			return 0
		}
	case coltype.F32:
		return cmpFloat(float64(*(*float32)(pa)), float64(*(*float32)(pb)))
	case coltype.F64:
		return cmpFloat(*(*float64)(pa), *(*float64)(pb))
	case coltype.Bool:
		return cmpInt(b2i(*(*uint8)(pa) != 0), b2i(*(*uint8)(pb) != 0))
	case coltype.U64:
		// U64 can hold values past int64's range, so it needs an unsigned
		// comparison rather than going through signedOf/cmpInt, which
		// would read any value with the high bit set as negative.
		return cmpUint(*(*uint64)(pa), *(*uint64)(pb))
	default:
		return cmpInt(signedOf(pa, t), signedOf(pb, t))
	}
}

func signedOf(p unsafe.Pointer, t coltype.ColumnType) int64 {
	switch t {
	case coltype.I8:
		return int64(*(*int8)(p))
	case coltype.I16:
		return int64(*(*int16)(p))
	case coltype.I32:
		return int64(*(*int32)(p))
	case coltype.I64:
		return *(*int64)(p)
	case coltype.U8:
		return int64(*(*uint8)(p))
	case coltype.U16:
		return int64(*(*uint16)(p))
	case coltype.U32:
		return int64(*(*uint32)(p))
	default:
		return 0
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
