package vtable

import (
	"hash/maphash"
	"testing"
	"unsafe"

	"rowjit/internal/coltype"
	"rowjit/internal/layout"
)

func allocRow(t *testing.T, cache *layout.LayoutCache, id layout.LayoutId, reg *Registry) Row {
	t.Helper()
	size := cache.Native(id).Size
	buf := make([]byte, size)
	return NewRow(id, reg.For(id), buf)
}

// setNullBit sets the bit marking a column null, honoring SigilOneIsNull
// (the default this package's tests build caches with).
func setNullBit(row unsafe.Pointer, off uint32, bit uint8) {
	p := (*uint8)(unsafe.Add(row, uintptr(off)))
	*p |= 1 << bit
}

func TestCloneDeepCopiesString(t *testing.T) {
	cache := layout.NewLayoutCache(layout.SigilOneIsNull)
	l := layout.NewRowLayoutBuilder().WithRow(coltype.String, false).Build()
	id := cache.Add(l)
	reg := NewRegistry(cache)

	row := allocRow(t, cache, id, reg)
	*(*string)(row.Ptr()) = "hello"

	clone := row.Clone()
	*(*string)(clone.Ptr()) = "world"

	if got := *(*string)(row.Ptr()); got != "hello" {
		t.Fatalf("original row mutated via clone: got %q", got)
	}
}

func TestEqHonorsNullBits(t *testing.T) {
	cache := layout.NewLayoutCache(layout.SigilOneIsNull)
	l := layout.NewRowLayoutBuilder().WithRow(coltype.I32, true).Build()
	id := cache.Add(l)
	reg := NewRegistry(cache)

	a := allocRow(t, cache, id, reg)
	b := allocRow(t, cache, id, reg)

	if !a.Eq(b) {
		t.Fatal("two freshly zeroed (non-null) rows should be equal")
	}

	native := cache.Native(id)
	_, off, bit := native.NullabilityOf(0)
	setNullBit(b.Ptr(), off, bit)

	if a.Eq(b) {
		t.Fatal("rows differing only in null bit should not be equal")
	}
}

func TestCmpNullsSortFirst(t *testing.T) {
	cache := layout.NewLayoutCache(layout.SigilOneIsNull)
	l := layout.NewRowLayoutBuilder().WithRow(coltype.I32, true).Build()
	id := cache.Add(l)
	reg := NewRegistry(cache)

	null := allocRow(t, cache, id, reg)
	notNull := allocRow(t, cache, id, reg)
	native := cache.Native(id)
	_, off, bit := native.NullabilityOf(0)
	setNullBit(null.Ptr(), off, bit)
	*(*int32)(notNull.Ptr()) = -100

	if got := null.Cmp(notNull); got >= 0 {
		t.Fatalf("null row should sort before non-null, got %d", got)
	}
}

func TestHashStableForEqualRows(t *testing.T) {
	cache := layout.NewLayoutCache(layout.SigilOneIsNull)
	l := layout.NewRowLayoutBuilder().WithRow(coltype.I64, false).Build()
	id := cache.Add(l)
	reg := NewRegistry(cache)

	a := allocRow(t, cache, id, reg)
	b := allocRow(t, cache, id, reg)
	*(*int64)(a.Ptr()) = 42
	*(*int64)(b.Ptr()) = 42

	seed := maphash.MakeSeed()
	var ha, hb maphash.Hash
	ha.SetSeed(seed)
	hb.SetSeed(seed)
	a.Hash(&ha)
	b.Hash(&hb)

	if ha.Sum64() != hb.Sum64() {
		t.Fatal("equal rows hashed to different values")
	}
}
