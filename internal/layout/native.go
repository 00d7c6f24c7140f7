package layout

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"rowjit/internal/coltype"
)

// BitSetKind names the integer width backing a null bitset word.
type BitSetKind uint8

const (
	BitSetU8 BitSetKind = iota
	BitSetU16
	BitSetU32
	BitSetU64
)

func (k BitSetKind) width() uint32 {
	switch k {
	case BitSetU8:
		return 1
	case BitSetU16:
		return 2
	case BitSetU32:
		return 4
	default:
		return 8
	}
}

func (k BitSetKind) bits() uint8 { return uint8(k.width() * 8) }

func (k BitSetKind) String() string {
	switch k {
	case BitSetU8:
		return "U8"
	case BitSetU16:
		return "U16"
	case BitSetU32:
		return "U32"
	case BitSetU64:
		return "U64"
	default:
		return "?"
	}
}

// NullSigil is a cache-wide option selecting whether a set null bit
// represents "null" (1) or "not null" (0). Codegen and row producers must
// agree.
type NullSigil uint8

const (
	// SigilOneIsNull is the default: a set bit (1) means the column is
	// null. Either polarity works equally well; this implementation
	// picks one as the default and documents the choice here rather
	// than leaving it ambiguous.
	SigilOneIsNull NullSigil = iota
	SigilZeroIsNull
)

// NullBit identifies the exact (bitset word, bit index) pair that holds a
// column's null flag. The triple is stable for the lifetime of a
// NativeLayout.
type NullBit struct {
	Kind      BitSetKind
	ByteOffset uint32 // offset of the bitset word containing this bit
	BitIndex  uint8   // bit index (0 = LSB) within that word
}

// NativeLayout is the concrete byte layout derived from a RowLayout: total
// size, alignment, per-column offsets and null-bit placement.
//
// Null bits are packed into a single trailing bitset region using the
// narrowest BitSetKind that holds all nullable columns. This
// implementation chooses the single-trailing-bitset policy over
// per-column packed bits; whichever policy is chosen must stay stable
// for a given layout's lifetime.
type NativeLayout struct {
	Layout RowLayout
	Sigil  NullSigil

	Size  uint32
	Align uint32

	offsets    []uint32
	nullBits   []*NullBit // nil entry means "not nullable"
	bitsetKind BitSetKind
}

// OffsetOf returns the byte offset of column i within the row.
func (n *NativeLayout) OffsetOf(col int) uint32 { return n.offsets[col] }

// NullabilityOf returns the (kind, byte offset, bit index) triple for
// column i's null flag. Panics if the column is not nullable — callers
// must check Layout.Column(i).Nullable first (the validator enforces this
// at the IR level).
func (n *NativeLayout) NullabilityOf(col int) (BitSetKind, uint32, uint8) {
	nb := n.nullBits[col]
	if nb == nil {
		panic(fmt.Sprintf("column %d is not nullable", col))
	}
	return nb.Kind, nb.ByteOffset, nb.BitIndex
}

// HasNullBit reports whether column i carries a null flag.
func (n *NativeLayout) HasNullBit(col int) bool { return n.nullBits[col] != nil }

func alignUp(v, align uint32) uint32 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

// computeNativeLayout lays out columns in declaration order, then appends a
// single trailing null bitset sized to the narrowest word that holds every
// nullable column, per the policy documented on NativeLayout.
func computeNativeLayout(l RowLayout, sigil NullSigil) *NativeLayout {
	n := len(l.Columns)
	offsets := make([]uint32, n)
	nullBits := make([]*NullBit, n)

	var nullableCount int
	var offset uint32
	var maxAlign uint32 = 1

	for i, c := range l.Columns {
		a := c.Type.Align()
		if a > maxAlign {
			maxAlign = a
		}
		offset = alignUp(offset, a)
		offsets[i] = offset
		offset += c.Type.Size()
		if c.Nullable {
			nullableCount++
		}
	}

	kind := BitSetU8
	switch {
	case nullableCount > 32:
		kind = BitSetU64
	case nullableCount > 16:
		kind = BitSetU32
	case nullableCount > 8:
		kind = BitSetU16
	}

	var bitsetOffset uint32
	if nullableCount > 0 {
		bw := kind.width()
		if bw > maxAlign {
			maxAlign = bw
		}
		bitsetOffset = alignUp(offset, bw)

		bit := uint8(0)
		for i, c := range l.Columns {
			if !c.Nullable {
				continue
			}
			if bit >= kind.bits() {
				// Spill into a second consecutive word of the same
				// kind; still "a single trailing bitset region", just
				// wider than one word.
				bitsetOffset += bw
				bit = 0
			}
			nullBits[i] = &NullBit{Kind: kind, ByteOffset: bitsetOffset, BitIndex: bit}
			bit++
		}
		offset = bitsetOffset + bw
		// account for any spillover words already advanced past
		for i := range nullBits {
			if nullBits[i] != nil && nullBits[i].ByteOffset+bw > offset {
				offset = nullBits[i].ByteOffset + bw
			}
		}
	}

	size := alignUp(offset, maxAlign)

	return &NativeLayout{
		Layout:     l,
		Sigil:      sigil,
		Size:       size,
		Align:      maxAlign,
		offsets:    offsets,
		nullBits:   nullBits,
		bitsetKind: kind,
	}
}

// String renders a human-readable summary, using humanize for the byte
// size the way compiler diagnostics typically render sizes for people.
func (n *NativeLayout) String() string {
	return fmt.Sprintf("NativeLayout{size=%s, align=%d, cols=%d, sigil=%v}",
		humanize.Bytes(uint64(n.Size)), n.Align, len(n.offsets), n.Sigil)
}
