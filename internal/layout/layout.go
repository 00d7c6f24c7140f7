// Package layout interns RowLayout descriptors and computes the concrete
// byte layout (NativeLayout) each one maps to: field offsets, alignment and
// null-bitset placement.
package layout

import (
	"fmt"
	"strings"

	"rowjit/internal/coltype"
)

// Column is one field of a RowLayout: its scalar type and whether it may be
// null.
type Column struct {
	Type     coltype.ColumnType
	Nullable bool
}

// RowLayout is an ordered sequence of columns. Two layouts are equal iff
// their column sequences are equal.
type RowLayout struct {
	Columns []Column
}

// Equal reports whether two RowLayouts have identical column sequences.
func (l RowLayout) Equal(o RowLayout) bool {
	if len(l.Columns) != len(o.Columns) {
		return false
	}
	for i, c := range l.Columns {
		if c != o.Columns[i] {
			return false
		}
	}
	return true
}

func (l RowLayout) key() string {
	var b strings.Builder
	for _, c := range l.Columns {
		fmt.Fprintf(&b, "%d:%v,", c.Type, c.Nullable)
	}
	return b.String()
}

// NumColumns returns the number of columns.
func (l RowLayout) NumColumns() int { return len(l.Columns) }

// Column returns the column at index i.
func (l RowLayout) Column(i int) Column { return l.Columns[i] }

// RowLayoutBuilder is the fluent constructor for a RowLayout, following a
// with_row(..).build() shape.
type RowLayoutBuilder struct {
	cols []Column
}

// NewRowLayoutBuilder returns an empty builder.
func NewRowLayoutBuilder() *RowLayoutBuilder {
	return &RowLayoutBuilder{}
}

// WithRow appends a column of the given type and nullability.
func (b *RowLayoutBuilder) WithRow(t coltype.ColumnType, nullable bool) *RowLayoutBuilder {
	b.cols = append(b.cols, Column{Type: t, Nullable: nullable})
	return b
}

// Build finalizes the RowLayout.
func (b *RowLayoutBuilder) Build() RowLayout {
	cols := make([]Column, len(b.cols))
	copy(cols, b.cols)
	return RowLayout{Columns: cols}
}

// LayoutId is an opaque token returned by LayoutCache.Add. Equal layouts
// share an id.
type LayoutId uint32

func (id LayoutId) String() string { return fmt.Sprintf("layout#%d", uint32(id)) }

// WeightLayout returns the distinguished single non-null I64 "weight" row
// layout.
func WeightLayout() RowLayout {
	return RowLayout{Columns: []Column{{Type: coltype.I64, Nullable: false}}}
}

// UnitLayout returns the distinguished empty-column-sequence layout.
func UnitLayout() RowLayout {
	return RowLayout{Columns: nil}
}
