package vtable

import (
	"sync"

	"rowjit/internal/layout"
)

// Registry caches one VTable per LayoutId, mirroring LayoutCache's own
// intern-and-reuse discipline so the runtime never rebuilds glue for a
// layout it has already seen.
type Registry struct {
	cache *layout.LayoutCache

	mu      sync.Mutex
	vtables map[layout.LayoutId]*VTable
}

// NewRegistry returns a Registry backed by cache. cache's lifetime must
// outlive the Registry: a LayoutCache outlives everything derived from
// it.
func NewRegistry(cache *layout.LayoutCache) *Registry {
	return &Registry{cache: cache, vtables: make(map[layout.LayoutId]*VTable)}
}

// For returns the (possibly freshly built) VTable for id.
func (r *Registry) For(id layout.LayoutId) *VTable {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.vtables[id]; ok {
		return v
	}
	v := Build(r.cache, id)
	r.vtables[id] = v
	return v
}
