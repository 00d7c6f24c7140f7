package codegen

import (
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	rjerrors "rowjit/internal/errors"
	rir "rowjit/internal/ir"
	"rowjit/internal/layout"
)

// FuncId names one compiled entry point within a JITModule — in practice
// the owning graph.NodeId's string form plus a role suffix (for example
// "node#1:map"), kept as a plain string here so this package does not
// need to import graph.
type FuncId string

// JITModule is the result of FinalizeDefinitions: an in-process,
// read-only, single-shot collection of compiled entry points.
//
// The executable memory region mmapped here models the code-residency
// lifecycle a real JIT would have (acquired at finalize, released exactly
// once by FreeMemory) — it is not actually where the compiled Funcs live.
// Each Func is a closure-compiled Go value (codegen/closure.go); the page
// is reserved and freed in lockstep so the resource-ordering discipline
// is real and testable even without emitting true machine code.
type JITModule struct {
	ID uuid.UUID

	mu      sync.Mutex
	funcs   map[FuncId]Func
	page    []byte
	freed   bool
}

// FinalizeDefinitions compiles every function in fns into the module and
// reserves its executable-memory page. The module is read-only once
// returned: finalization happens exactly once.
func FinalizeDefinitions(fns map[FuncId]*rir.Function, cache *layout.LayoutCache) (*JITModule, error) {
	compiled := make(map[FuncId]Func, len(fns))
	for id, fn := range fns {
		f, err := CompileClosure(fn, cache)
		if err != nil {
			return nil, rjerrors.Wrap(err, rjerrors.Codegen, rjerrors.Coordinate{Function: fn.Name}, "compiling %s", id)
		}
		compiled[id] = f
	}

	pageSize := unix.Getpagesize()
	page, err := unix.Mmap(-1, 0, pageSize, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, rjerrors.Wrap(err, rjerrors.Codegen, rjerrors.Coordinate{}, "reserving executable memory")
	}

	return &JITModule{
		ID:    uuid.New(),
		funcs: compiled,
		page:  page,
	}, nil
}

// Resolve looks up a compiled FuncId, reporting whether it exists. Once
// FreeMemory has been called the returned Func must no longer be invoked:
// freeing invalidates every pointer handed out by this module.
func (m *JITModule) Resolve(id FuncId) (Func, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.freed {
		return nil, false
	}
	f, ok := m.funcs[id]
	return f, ok
}

// FreeMemory releases the module's executable memory. Calling it more
// than once is a RuntimeError: a module may be freed exactly once.
func (m *JITModule) FreeMemory() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.freed {
		return rjerrors.New(rjerrors.Runtime, "jit module %s already freed", m.ID)
	}
	if err := unix.Munmap(m.page); err != nil {
		return rjerrors.Wrap(err, rjerrors.Runtime, rjerrors.Coordinate{}, "releasing jit module %s", m.ID)
	}
	m.freed = true
	m.page = nil
	return nil
}
