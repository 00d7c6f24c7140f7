package ir

import (
	"rowjit/internal/coltype"
	"rowjit/internal/layout"
)

// NullRow builds a function of the form fn(mut row: l) that sets every
// nullable column of row to null and every non-nullable column to its
// type's zero value, leaving all other columns untouched structurally
// (they are simply never written, which is fine since the destination
// row is assumed freshly zeroed memory). This is used as a Fold
// accumulator seed: a Fold with no rows yet seen still needs a
// well-formed, all-default accumulator to hand to the first step
// invocation.
func NullRow(cache *layout.LayoutCache, l layout.LayoutId) *Function {
	b := NewBuilder("null_row", cache)
	row := b.AddMutInput(l)
	rl := cache.Layout(l)
	for i := 0; i < rl.NumColumns(); i++ {
		col := rl.Column(i)
		if col.Nullable {
			one := b.Const(coltype.Bool, true)
			b.SetNull(row, i, one)
			continue
		}
		b.Insert(row, i, zeroConst(b, col.Type))
	}
	b.RetUnit()
	return b.Build()
}

func zeroConst(b *Builder, t coltype.ColumnType) Value {
	switch {
	case t == coltype.Bool:
		return b.Const(t, false)
	case t == coltype.String:
		return b.Const(t, "")
	case t.IsFloat():
		return b.Const(t, float64(0))
	default:
		return b.Const(t, int64(0))
	}
}
