package layout

import (
	"testing"

	"rowjit/internal/coltype"
)

func TestOffsetsAlignedAndSizeMultipleOfAlign(t *testing.T) {
	l := NewRowLayoutBuilder().
		WithRow(coltype.Bool, false).
		WithRow(coltype.I64, false).
		WithRow(coltype.I32, true).
		WithRow(coltype.String, true).
		Build()

	n := computeNativeLayout(l, SigilOneIsNull)

	if n.Size%n.Align != 0 {
		t.Fatalf("size %d not a multiple of align %d", n.Size, n.Align)
	}
	for i, col := range l.Columns {
		off := n.OffsetOf(i)
		a := col.Type.Align()
		if off%a != 0 {
			t.Fatalf("column %d offset %d not aligned to %d", i, off, a)
		}
	}
}

func TestNonNullableColumnsHaveNoBitsetEntry(t *testing.T) {
	l := NewRowLayoutBuilder().
		WithRow(coltype.I32, false).
		WithRow(coltype.I32, true).
		Build()
	n := computeNativeLayout(l, SigilOneIsNull)

	if n.HasNullBit(0) {
		t.Fatal("non-nullable column has a null bit entry")
	}
	if !n.HasNullBit(1) {
		t.Fatal("nullable column is missing its null bit entry")
	}
}

func TestNullBitsDistinctAndStable(t *testing.T) {
	l := NewRowLayoutBuilder().
		WithRow(coltype.I32, true).
		WithRow(coltype.I32, true).
		WithRow(coltype.I32, true).
		Build()
	n := computeNativeLayout(l, SigilOneIsNull)

	seen := map[string]bool{}
	for i := range l.Columns {
		kind, off, bit := n.NullabilityOf(i)
		key := string(rune(kind)) + "|" + string(rune(off)) + "|" + string(rune(bit))
		if seen[key] {
			t.Fatalf("column %d null bit collides with a previous column", i)
		}
		seen[key] = true
	}
}

func TestManyNullableColumnsWidenBitset(t *testing.T) {
	b := NewRowLayoutBuilder()
	for i := 0; i < 40; i++ {
		b.WithRow(coltype.Bool, true)
	}
	n := computeNativeLayout(b.Build(), SigilOneIsNull)
	if n.bitsetKind != BitSetU64 {
		t.Fatalf("expected U64 bitset for 40 nullable columns, got %v", n.bitsetKind)
	}
}
