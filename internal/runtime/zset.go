package runtime

import (
	"hash/maphash"

	"rowjit/internal/vtable"
)

// delta is one (row, weight) pair flowing between nodes in an epoch: on
// each epoch an input delta arrives and an output delta is produced.
// weight follows the usual convention: insert = +1, delete = -1.
type delta struct {
	row    vtable.Row
	weight int64
}

// kvDelta is the pair-shaped delta IndexWith produces: ((key, val), w).
type kvDelta struct {
	key    vtable.Row
	val    vtable.Row
	weight int64
}

var zsetSeed = maphash.MakeSeed()

// consolidate merges rows with equal content, summing weights, and drops
// any row whose net weight lands on zero (the cancellation S5 describes:
// "2 cancels"). Grouping is done by hashing each row's bytes into buckets
// and disambiguating collisions with the vtable's Eq, mirroring the
// hash-then-equality-check shape any Z-set consolidation routine needs
// without requiring rows to be directly usable as Go map keys.
func consolidate(deltas []delta) []delta {
	type bucket struct {
		row    vtable.Row
		weight int64
	}
	buckets := make(map[uint64][]bucket)

	for _, d := range deltas {
		var h maphash.Hash
		h.SetSeed(zsetSeed)
		d.row.Hash(&h)
		key := h.Sum64()

		bs := buckets[key]
		merged := false
		for i := range bs {
			if bs[i].row.Eq(d.row) {
				bs[i].weight += d.weight
				merged = true
				break
			}
		}
		if !merged {
			bs = append(bs, bucket{row: d.row, weight: d.weight})
		}
		buckets[key] = bs
	}

	var out []delta
	for _, bs := range buckets {
		for _, b := range bs {
			if b.weight != 0 {
				out = append(out, delta{row: b.row, weight: b.weight})
			}
		}
	}
	return out
}

// consolidateKV is consolidate's analogue for IndexWith's ((key, val), w)
// output: two pairs merge only if both their key and value rows are
// equal.
func consolidateKV(deltas []kvDelta) []kvDelta {
	buckets := make(map[uint64][]int)
	var out []kvDelta

	for _, d := range deltas {
		var h maphash.Hash
		h.SetSeed(zsetSeed)
		d.key.Hash(&h)
		d.val.Hash(&h)
		hkey := h.Sum64()

		merged := false
		for _, oi := range buckets[hkey] {
			if out[oi].key.Eq(d.key) && out[oi].val.Eq(d.val) {
				out[oi].weight += d.weight
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, d)
			buckets[hkey] = append(buckets[hkey], len(out)-1)
		}
	}

	filtered := out[:0]
	for _, o := range out {
		if o.weight != 0 {
			filtered = append(filtered, o)
		}
	}
	return filtered
}
