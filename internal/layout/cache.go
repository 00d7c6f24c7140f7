package layout

import (
	"fmt"
	"sync"
)

// LayoutCache interns RowLayout -> LayoutId and caches the NativeLayout
// computed for each id. Add is idempotent; lookup is O(1).
//
// LayoutCache is a build-time structure: graph assembly expects exclusive
// access, so the mutex here guards against accidental concurrent use
// rather than enabling it — Graph/Builder callers are still expected to
// drive construction from one goroutine.
type LayoutCache struct {
	mu       sync.Mutex
	sigil    NullSigil
	byKey    map[string]LayoutId
	layouts  []RowLayout
	natives  []*NativeLayout
	unitId   LayoutId
	weightId LayoutId
}

// NewLayoutCache creates a cache using the given NullSigil for every layout
// it mints. The distinguished unit and weight layouts are preallocated.
func NewLayoutCache(sigil NullSigil) *LayoutCache {
	c := &LayoutCache{
		sigil: sigil,
		byKey: make(map[string]LayoutId),
	}
	c.unitId = c.Add(UnitLayout())
	c.weightId = c.Add(WeightLayout())
	return c
}

// Sigil returns the NullSigil this cache was constructed with. Part of the
// published ABI: codegen and row producers must agree on it.
func (c *LayoutCache) Sigil() NullSigil { return c.sigil }

// Unit returns the id of the distinguished empty-column-sequence layout.
func (c *LayoutCache) Unit() LayoutId { return c.unitId }

// Weight returns the id of the distinguished single non-null I64 layout.
func (c *LayoutCache) Weight() LayoutId { return c.weightId }

// Add interns l, returning its LayoutId. Calling Add twice with equal
// layouts returns the same id.
func (c *LayoutCache) Add(l RowLayout) LayoutId {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := l.key()
	if id, ok := c.byKey[k]; ok {
		return id
	}

	for _, col := range l.Columns {
		if !col.Type.Valid() {
			panic(fmt.Sprintf("layout: unsupported column type %v", col.Type))
		}
	}

	id := LayoutId(len(c.layouts))
	c.layouts = append(c.layouts, l)
	c.natives = append(c.natives, computeNativeLayout(l, c.sigil))
	c.byKey[k] = id
	return id
}

// Layout returns the RowLayout registered under id.
func (c *LayoutCache) Layout(id LayoutId) RowLayout {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layouts[id]
}

// Native returns the NativeLayout computed for id. The pointer is stable
// for the cache's lifetime: code generated against a LayoutId always sees
// the same NativeLayout.
func (c *LayoutCache) Native(id LayoutId) *NativeLayout {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.natives[id]
}

// Len returns the number of distinct layouts interned so far.
func (c *LayoutCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.layouts)
}
