package codegen

import (
	"testing"
	"unsafe"

	"rowjit/internal/coltype"
	"rowjit/internal/ir"
	"rowjit/internal/layout"
)

func twoU32Layout() layout.RowLayout {
	return layout.NewRowLayoutBuilder().
		WithRow(coltype.U32, false).
		WithRow(coltype.U32, false).
		Build()
}

func oneU32Layout() layout.RowLayout {
	return layout.NewRowLayoutBuilder().WithRow(coltype.U32, false).Build()
}

func buildMultiplyFn(t *testing.T) (*ir.Function, *layout.LayoutCache, layout.LayoutId, layout.LayoutId) {
	t.Helper()
	cache := layout.NewLayoutCache(layout.SigilOneIsNull)
	in := cache.Add(twoU32Layout())
	out := cache.Add(oneU32Layout())

	b := ir.NewBuilder("mul", cache)
	row := b.AddInput(in)
	dst := b.AddMutInput(out)
	a := b.Load(row, 0)
	c := b.Load(row, 1)
	prod := b.Arith(ir.Mul, coltype.U32, a, c)
	b.Store(dst, 0, prod)
	b.RetUnit()
	return b.Build(), cache, in, out
}

func allocRow(size uint32) unsafe.Pointer {
	buf := make([]byte, size)
	return unsafe.Pointer(&buf[0])
}

func TestCompileClosureMultiplies(t *testing.T) {
	fn, cache, in, out := buildMultiplyFn(t)

	compiled, err := CompileClosure(fn, cache)
	if err != nil {
		t.Fatalf("CompileClosure: %v", err)
	}

	inRow := allocRow(cache.Native(in).Size)
	outRow := allocRow(cache.Native(out).Size)
	*(*uint32)(inRow) = 6
	*(*uint32)(unsafe.Add(inRow, 4)) = 7

	if ret := compiled([]unsafe.Pointer{inRow, outRow}); ret != nil {
		t.Fatalf("map body should return nil, got %v", *ret)
	}

	got := *(*uint32)(outRow)
	if got != 42 {
		t.Fatalf("6*7 = %d, want 42", got)
	}
}

func buildFilterFn(t *testing.T) (*ir.Function, *layout.LayoutCache, layout.LayoutId) {
	t.Helper()
	cache := layout.NewLayoutCache(layout.SigilOneIsNull)
	in := cache.Add(oneU32Layout())

	b := ir.NewBuilder("gt10", cache)
	b.SetReturnType(coltype.Bool)
	row := b.AddInput(in)
	v := b.Load(row, 0)
	ten := b.Const(coltype.U32, int64(10))
	cmp := b.Cmp(ir.Gt, coltype.U32, v, ten)
	b.Ret(cmp)
	return b.Build(), cache, in
}

func TestCompileClosureFilters(t *testing.T) {
	fn, cache, in := buildFilterFn(t)
	compiled, err := CompileClosure(fn, cache)
	if err != nil {
		t.Fatalf("CompileClosure: %v", err)
	}

	row := allocRow(cache.Native(in).Size)
	*(*uint32)(row) = 20
	ret := compiled([]unsafe.Pointer{row})
	if ret == nil || !*ret {
		t.Fatal("20 > 10 should keep the row")
	}

	*(*uint32)(row) = 5
	ret = compiled([]unsafe.Pointer{row})
	if ret == nil || *ret {
		t.Fatal("5 > 10 should drop the row")
	}
}

func TestCompileClosureSetAndReadNullBit(t *testing.T) {
	cache := layout.NewLayoutCache(layout.SigilOneIsNull)
	nullableLayout := layout.NewRowLayoutBuilder().WithRow(coltype.I32, true).Build()
	l := cache.Add(nullableLayout)

	b := ir.NewBuilder("mark_null", cache)
	row := b.AddMutInput(l)
	one := b.Const(coltype.Bool, true)
	b.SetNull(row, 0, one)
	b.RetUnit()
	fn := b.Build()

	compiled, err := CompileClosure(fn, cache)
	if err != nil {
		t.Fatalf("CompileClosure: %v", err)
	}
	row0 := allocRow(cache.Native(l).Size)
	compiled([]unsafe.Pointer{row0})

	if !readNullBit(row0, l, cache, 0) {
		t.Fatal("set_null(true) should leave the column's null bit set")
	}
}

func TestLowerModuleProducesOneFunctionWithMatchingBlockCount(t *testing.T) {
	fn, cache, _, _ := buildMultiplyFn(t)

	m, err := LowerModule(fn, cache)
	if err != nil {
		t.Fatalf("LowerModule: %v", err)
	}
	if len(m.Funcs) != 1 {
		t.Fatalf("want 1 lowered function, got %d", len(m.Funcs))
	}
	llvmFn := m.Funcs[0]
	if llvmFn.Name() != fn.Name {
		t.Fatalf("lowered function name = %q, want %q", llvmFn.Name(), fn.Name)
	}
	if len(llvmFn.Blocks) != len(fn.Blocks) {
		t.Fatalf("lowered block count = %d, want %d", len(llvmFn.Blocks), len(fn.Blocks))
	}
	if len(llvmFn.Params) != len(fn.Inputs) {
		t.Fatalf("lowered param count = %d, want %d", len(llvmFn.Params), len(fn.Inputs))
	}
}

func TestJITModuleFinalizeResolveFree(t *testing.T) {
	fn, cache, _, _ := buildMultiplyFn(t)

	mod, err := FinalizeDefinitions(map[FuncId]*ir.Function{"mul": fn}, cache)
	if err != nil {
		t.Fatalf("FinalizeDefinitions: %v", err)
	}

	if _, ok := mod.Resolve("mul"); !ok {
		t.Fatal("expected to resolve the finalized function")
	}
	if _, ok := mod.Resolve("missing"); ok {
		t.Fatal("resolving an unknown FuncId should fail")
	}

	if err := mod.FreeMemory(); err != nil {
		t.Fatalf("FreeMemory: %v", err)
	}
	if err := mod.FreeMemory(); err == nil {
		t.Fatal("calling FreeMemory twice should error")
	}
	if _, ok := mod.Resolve("mul"); ok {
		t.Fatal("resolving after FreeMemory should fail")
	}
}
