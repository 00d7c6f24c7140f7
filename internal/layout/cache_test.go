package layout

import (
	"testing"

	"rowjit/internal/coltype"
)

func TestAddIsIdempotent(t *testing.T) {
	c := NewLayoutCache(SigilOneIsNull)
	l := NewRowLayoutBuilder().
		WithRow(coltype.U32, false).
		WithRow(coltype.U32, false).
		Build()

	id1 := c.Add(l)
	id2 := c.Add(l)
	if id1 != id2 {
		t.Fatalf("Add not idempotent: %v != %v", id1, id2)
	}
}

func TestEqualLayoutsShareId(t *testing.T) {
	c := NewLayoutCache(SigilOneIsNull)
	a := RowLayout{Columns: []Column{{Type: coltype.I32, Nullable: true}}}
	b := RowLayout{Columns: []Column{{Type: coltype.I32, Nullable: true}}}
	if c.Add(a) != c.Add(b) {
		t.Fatal("equal RowLayouts produced different LayoutIds")
	}
}

func TestUnitAndWeightPreallocated(t *testing.T) {
	c := NewLayoutCache(SigilOneIsNull)
	unit := c.Native(c.Unit())
	if unit.Size != 0 {
		t.Fatalf("unit layout expected size 0, got %d", unit.Size)
	}

	weight := c.Native(c.Weight())
	if weight.Size != 8 || weight.Align != 8 {
		t.Fatalf("weight layout expected size=8 align=8, got size=%d align=%d", weight.Size, weight.Align)
	}
}

func TestNativeLayoutStableAcrossRepeatedAdd(t *testing.T) {
	c := NewLayoutCache(SigilOneIsNull)
	l := NewRowLayoutBuilder().
		WithRow(coltype.Bool, true).
		WithRow(coltype.I64, false).
		Build()

	id := c.Add(l)
	n1 := c.Native(id)
	c.Add(l)
	n2 := c.Native(id)
	if n1 != n2 {
		t.Fatal("NativeLayout pointer changed across repeated Add")
	}
}
