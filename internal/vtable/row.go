package vtable

import (
	"hash/maphash"
	"unsafe"

	"rowjit/internal/layout"
)

// Row is an owning handle carrying (layout, pointer, vtable). Its
// Clone/Drop/Eq/Hash dispatch through the vtable so the runtime's
// generic Z-set containers never need to know a row's concrete column
// types.
type Row struct {
	LayoutID layout.LayoutId
	ptr      unsafe.Pointer
	vt       *VTable
}

// NewRow wraps an already-allocated, zeroed buffer of the layout's
// native size/align. Ownership of buf transfers to the returned Row: the
// caller must not reuse buf directly afterward.
func NewRow(id layout.LayoutId, vt *VTable, buf []byte) Row {
	var p unsafe.Pointer
	if len(buf) > 0 {
		p = unsafe.Pointer(&buf[0])
	} else {
		// The unit layout has zero size; there is no byte to address,
		// but every Row still needs a non-aliasing, stable pointer.
		p = unsafe.Pointer(&struct{}{})
	}
	return Row{LayoutID: id, ptr: p, vt: vt}
}

// Ptr exposes the row's base address for ABI dispatch: the `*const u8`/
// `*mut u8` pointers the row ABI passes to compiled functions.
func (r Row) Ptr() unsafe.Pointer { return r.ptr }

// Clone returns a deep copy: a fresh buffer with Clone-glue-copied bytes,
// so the two Rows never alias heap-backed columns once codegen glue
// performs a real deep copy. Rows crossing workers are cloned via this
// vtable glue.
func (r Row) Clone() Row {
	size := nativeSizeOf(r)
	if size == 0 {
		return Row{LayoutID: r.LayoutID, ptr: unsafe.Pointer(&struct{}{}), vt: r.vt}
	}
	buf := make([]byte, size)
	dst := unsafe.Pointer(&buf[0])
	r.vt.Clone(r.ptr, dst)
	return Row{LayoutID: r.LayoutID, ptr: dst, vt: r.vt}
}

// Drop releases any heap-backed column storage this row owns. Callers must
// not use r after calling Drop. The runtime package does not call Drop;
// its rows are left to the garbage collector.
func (r Row) Drop() {
	r.vt.DropInPlace(r.ptr)
}

// Eq reports bit-for-bit-plus-null-bit equality with other. Both rows
// must share a LayoutId; comparing rows of different layouts is a caller
// bug, not a representable "not equal" result, so it panics rather than
// silently returning false.
func (r Row) Eq(other Row) bool {
	if r.LayoutID != other.LayoutID {
		panic("vtable: Eq across differing layouts")
	}
	return r.vt.Eq(r.ptr, other.ptr)
}

// Cmp orders r against other the way VTable.Cmp does.
func (r Row) Cmp(other Row) int {
	if r.LayoutID != other.LayoutID {
		panic("vtable: Cmp across differing layouts")
	}
	return r.vt.Cmp(r.ptr, other.ptr)
}

// Hash writes r into h.
func (r Row) Hash(h *maphash.Hash) {
	r.vt.Hash(r.ptr, h)
}

func nativeSizeOf(r Row) uintptr {
	return uintptr(r.vt.native.Size)
}
