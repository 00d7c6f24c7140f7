package codegen

import (
	"math"
	"unsafe"

	"rowjit/internal/coltype"
	rjerrors "rowjit/internal/errors"
	rir "rowjit/internal/ir"
	"rowjit/internal/layout"
)

// Func is the closure-compiled native entry point: one unsafe.Pointer per
// declared input, in declaration order, matching the row ABI. A
// Map/IndexWith/Fold-step body returns nil; a Filter body returns a
// non-nil *bool (true = keep).
type Func func(rows []unsafe.Pointer) *bool

// register holds one SSA value's runtime payload during interpretation.
// Values are either numeric (stored as the widest representation for
// their class) or bool.
type register struct {
	i   int64
	f   float64
	b   bool
	str string
}

// CompileClosure "closure-compiles" fn: rather than emitting and mmapping
// real machine code, which would need a per-architecture assembler
// backend, it builds a tree of small Go closures, one per instruction,
// chained into a block dispatcher that evaluates fn exactly as the row
// ABI specifies: addressed by base+offset, with the cache's chosen
// NullSigil.
func CompileClosure(fn *rir.Function, cache *layout.LayoutCache) (Func, error) {
	blocks := make([][]step, len(fn.Blocks))
	terms := make([]termStep, len(fn.Blocks))

	for bi, blk := range fn.Blocks {
		var steps []step
		for _, instr := range blk.Instrs {
			s, err := compileInstr(instr, fn, cache)
			if err != nil {
				return nil, err
			}
			steps = append(steps, s)
		}
		blocks[bi] = steps

		t, err := compileTerm(blk.Term)
		if err != nil {
			return nil, err
		}
		terms[bi] = t
	}

	isFilter := fn.RetType != nil && *fn.RetType == coltype.Bool

	return func(rows []unsafe.Pointer) *bool {
		regs := make(map[rir.Value]register)
		bi := 0
		for {
			for _, s := range blocks[bi] {
				s(rows, regs)
			}
			next, retVal, done := terms[bi](regs)
			if done {
				if isFilter {
					v := retVal.b
					return &v
				}
				return nil
			}
			bi = next
		}
	}, nil
}

type step func(rows []unsafe.Pointer, regs map[rir.Value]register)

// termStep evaluates a block terminator: returns (nextBlock, retVal, done).
type termStep func(regs map[rir.Value]register) (int, register, bool)

func compileTerm(t rir.Term) (termStep, error) {
	switch term := t.(type) {
	case *rir.Branch:
		if term.Cond < 0 {
			target := int(term.TrueBlk)
			return func(regs map[rir.Value]register) (int, register, bool) {
				return target, register{}, false
			}, nil
		}
		trueBlk, falseBlk := int(term.TrueBlk), int(term.FalseBlk)
		cond := term.Cond
		return func(regs map[rir.Value]register) (int, register, bool) {
			if regs[cond].b {
				return trueBlk, register{}, false
			}
			return falseBlk, register{}, false
		}, nil
	case *rir.Ret:
		v := term.Value
		return func(regs map[rir.Value]register) (int, register, bool) {
			return 0, regs[v], true
		}, nil
	case *rir.RetUnit:
		return func(regs map[rir.Value]register) (int, register, bool) {
			return 0, register{}, true
		}, nil
	default:
		return nil, rjerrors.New(rjerrors.Codegen, "unterminated block reached codegen")
	}
}

func compileInstr(instr rir.Instr, fn *rir.Function, cache *layout.LayoutCache) (step, error) {
	switch in := instr.(type) {
	case *rir.Const:
		r := constRegister(in.Type, in.Val)
		d := in.D
		return func(rows []unsafe.Pointer, regs map[rir.Value]register) { regs[d] = r }, nil

	case *rir.Load:
		return compileLoad(in.D, in.Row, in.Col, fn, cache), nil
	case *rir.Extract:
		return compileLoad(in.D, in.Row, in.Col, fn, cache), nil

	case *rir.Store:
		return compileStore(in.Row, in.Col, in.Val, fn, cache), nil
	case *rir.Insert:
		return compileStore(in.Row, in.Col, in.Val, fn, cache), nil

	case *rir.IsNull:
		row, col := in.Row, in.Col
		d := in.D
		return func(rows []unsafe.Pointer, regs map[rir.Value]register) {
			regs[d] = register{b: readNullBit(rows[row], fn.Inputs[row].Layout, cache, col)}
		}, nil

	case *rir.SetNull:
		row, col, val := in.Row, in.Col, in.Val
		return func(rows []unsafe.Pointer, regs map[rir.Value]register) {
			writeNullBit(rows[row], fn.Inputs[row].Layout, cache, col, regs[val].b)
		}, nil

	case *rir.Arith:
		return compileArith(in), nil
	case *rir.Cmp:
		return compileCmp(in), nil
	case *rir.Logic:
		op, x, y, d := in.Op, in.X, in.Y, in.D
		return func(rows []unsafe.Pointer, regs map[rir.Value]register) {
			xb, yb := regs[x].b, regs[y].b
			if op == rir.And {
				regs[d] = register{b: xb && yb}
			} else {
				regs[d] = register{b: xb || yb}
			}
		}, nil
	case *rir.Not:
		x, d := in.X, in.D
		return func(rows []unsafe.Pointer, regs map[rir.Value]register) {
			regs[d] = register{b: !regs[x].b}
		}, nil
	case *rir.Cast:
		return compileCast(in), nil
	case *rir.CopyRowTo:
		return compileCopyRowTo(in, cache), nil

	default:
		return nil, rjerrors.New(rjerrors.Codegen, "unsupported instruction %T", instr)
	}
}

func constRegister(t coltype.ColumnType, val interface{}) register {
	switch {
	case t == coltype.Bool:
		return register{b: val.(bool)}
	case t.IsFloat():
		return register{f: val.(float64)}
	case t == coltype.String:
		return register{str: val.(string)}
	default:
		return register{i: val.(int64)}
	}
}

func compileLoad(d rir.Value, row rir.RowRef, col int, fn *rir.Function, cache *layout.LayoutCache) step {
	l := cache.Layout(fn.Inputs[row].Layout)
	ct := l.Column(col).Type
	native := cache.Native(fn.Inputs[row].Layout)
	off := uintptr(native.OffsetOf(col))
	return func(rows []unsafe.Pointer, regs map[rir.Value]register) {
		base := unsafe.Add(rows[row], off)
		regs[d] = readColumn(base, ct)
	}
}

func compileStore(row rir.RowRef, col int, val rir.Value, fn *rir.Function, cache *layout.LayoutCache) step {
	l := cache.Layout(fn.Inputs[row].Layout)
	ct := l.Column(col).Type
	native := cache.Native(fn.Inputs[row].Layout)
	off := uintptr(native.OffsetOf(col))
	return func(rows []unsafe.Pointer, regs map[rir.Value]register) {
		base := unsafe.Add(rows[row], off)
		writeColumn(base, ct, regs[val])
	}
}

func readColumn(base unsafe.Pointer, t coltype.ColumnType) register {
	switch t {
	case coltype.Bool:
		return register{b: *(*uint8)(base) != 0}
	case coltype.I8:
		return register{i: int64(*(*int8)(base))}
	case coltype.I16:
		return register{i: int64(*(*int16)(base))}
	case coltype.I32:
		return register{i: int64(*(*int32)(base))}
	case coltype.I64:
		return register{i: *(*int64)(base)}
	case coltype.U8:
		return register{i: int64(*(*uint8)(base))}
	case coltype.U16:
		return register{i: int64(*(*uint16)(base))}
	case coltype.U32:
		return register{i: int64(*(*uint32)(base))}
	case coltype.U64:
		return register{i: int64(*(*uint64)(base))}
	case coltype.F32:
		return register{f: float64(*(*float32)(base))}
	case coltype.F64:
		return register{f: *(*float64)(base)}
	case coltype.String:
		return register{str: *(*string)(base)}
	default:
		return register{}
	}
}

func writeColumn(base unsafe.Pointer, t coltype.ColumnType, r register) {
	switch t {
	case coltype.Bool:
		if r.b {
			*(*uint8)(base) = 1
		} else {
			*(*uint8)(base) = 0
		}
	case coltype.I8:
		*(*int8)(base) = int8(r.i)
	case coltype.I16:
		*(*int16)(base) = int16(r.i)
	case coltype.I32:
		*(*int32)(base) = int32(r.i)
	case coltype.I64:
		*(*int64)(base) = r.i
	case coltype.U8:
		*(*uint8)(base) = uint8(r.i)
	case coltype.U16:
		*(*uint16)(base) = uint16(r.i)
	case coltype.U32:
		*(*uint32)(base) = uint32(r.i)
	case coltype.U64:
		*(*uint64)(base) = uint64(r.i)
	case coltype.F32:
		*(*float32)(base) = float32(r.f)
	case coltype.F64:
		*(*float64)(base) = r.f
	case coltype.String:
		*(*string)(base) = r.str
	}
}

func readNullBit(row unsafe.Pointer, layoutID layout.LayoutId, cache *layout.LayoutCache, col int) bool {
	native := cache.Native(layoutID)
	kind, byteOffset, bit := native.NullabilityOf(col)
	word := readBitsetWord(unsafe.Add(row, uintptr(byteOffset)), kind)
	set := word&(uint64(1)<<bit) != 0
	if cache.Sigil() == layout.SigilOneIsNull {
		return set
	}
	return !set
}

func writeNullBit(row unsafe.Pointer, layoutID layout.LayoutId, cache *layout.LayoutCache, col int, isNull bool) {
	native := cache.Native(layoutID)
	kind, byteOffset, bit := native.NullabilityOf(col)
	addr := unsafe.Add(row, uintptr(byteOffset))
	word := readBitsetWord(addr, kind)

	set := isNull
	if cache.Sigil() == layout.SigilZeroIsNull {
		set = !isNull
	}
	if set {
		word |= uint64(1) << bit
	} else {
		word &^= uint64(1) << bit
	}
	writeBitsetWord(addr, kind, word)
}

func readBitsetWord(addr unsafe.Pointer, kind layout.BitSetKind) uint64 {
	switch kind {
	case layout.BitSetU8:
		return uint64(*(*uint8)(addr))
	case layout.BitSetU16:
		return uint64(*(*uint16)(addr))
	case layout.BitSetU32:
		return uint64(*(*uint32)(addr))
	default:
		return *(*uint64)(addr)
	}
}

func writeBitsetWord(addr unsafe.Pointer, kind layout.BitSetKind, word uint64) {
	switch kind {
	case layout.BitSetU8:
		*(*uint8)(addr) = uint8(word)
	case layout.BitSetU16:
		*(*uint16)(addr) = uint16(word)
	case layout.BitSetU32:
		*(*uint32)(addr) = uint32(word)
	default:
		*(*uint64)(addr) = word
	}
}

func compileArith(in *rir.Arith) step {
	op, t, x, y, d := in.Op, in.Type, in.X, in.Y, in.D
	if t.IsFloat() {
		return func(rows []unsafe.Pointer, regs map[rir.Value]register) {
			a, b := regs[x].f, regs[y].f
			regs[d] = register{f: evalFloatArith(op, a, b)}
		}
	}
	unsigned := t.IsInteger() && !t.IsSigned()
	return func(rows []unsafe.Pointer, regs map[rir.Value]register) {
		a, b := regs[x].i, regs[y].i
		regs[d] = register{i: wrapInt(evalIntArith(op, a, b, unsigned), t)}
	}
}

func evalFloatArith(op rir.ArithOp, a, b float64) float64 {
	switch op {
	case rir.Add:
		return a + b
	case rir.Sub:
		return a - b
	case rir.Mul:
		return a * b
	default:
		return a / b
	}
}

// evalIntArith operates on the bit pattern regs[x].i/regs[y].i carry for
// the operand type. Add/Sub/Mul give the same result bit-for-bit whether
// that pattern is read as signed or unsigned (two's complement wraps the
// same way either way); division does not, so unsigned selects a uint64
// divide to get the right quotient for operands whose top bit is set
// (register.i for U64 can hold any bit pattern, not just non-negative
// int64 values).
func evalIntArith(op rir.ArithOp, a, b int64, unsigned bool) int64 {
	switch op {
	case rir.Add:
		return a + b
	case rir.Sub:
		return a - b
	case rir.Mul:
		return a * b
	default:
		if unsigned {
			return int64(uint64(a) / uint64(b))
		}
		return a / b
	}
}

func wrapInt(v int64, t coltype.ColumnType) int64 {
	switch t {
	case coltype.I8:
		return int64(int8(v))
	case coltype.I16:
		return int64(int16(v))
	case coltype.I32:
		return int64(int32(v))
	case coltype.U8:
		return int64(uint8(v))
	case coltype.U16:
		return int64(uint16(v))
	case coltype.U32:
		return int64(uint32(v))
	case coltype.U64:
		return int64(uint64(v))
	default:
		return v
	}
}

func compileCmp(in *rir.Cmp) step {
	op, t, x, y, d := in.Op, in.Type, in.X, in.Y, in.D
	if t == coltype.String {
		return func(rows []unsafe.Pointer, regs map[rir.Value]register) {
			regs[d] = register{b: evalStrCmp(op, regs[x].str, regs[y].str)}
		}
	}
	if t.IsFloat() {
		return func(rows []unsafe.Pointer, regs map[rir.Value]register) {
			regs[d] = register{b: evalOrderedCmp(op, cmpFloat(regs[x].f, regs[y].f))}
		}
	}
	if t.IsInteger() && !t.IsSigned() {
		return func(rows []unsafe.Pointer, regs map[rir.Value]register) {
			regs[d] = register{b: evalOrderedCmp(op, cmpUint(uint64(regs[x].i), uint64(regs[y].i)))}
		}
	}
	return func(rows []unsafe.Pointer, regs map[rir.Value]register) {
		regs[d] = register{b: evalOrderedCmp(op, cmpInt(regs[x].i, regs[y].i))}
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// cmpUint orders a and b as unsigned 64-bit values. Needed for U64, whose
// register.i can carry a bit pattern int64 reads as negative.
func cmpUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func evalStrCmp(op rir.CmpOp, a, b string) bool {
	switch {
	case a < b:
		return evalOrderedCmp(op, -1)
	case a > b:
		return evalOrderedCmp(op, 1)
	default:
		return evalOrderedCmp(op, 0)
	}
}

func evalOrderedCmp(op rir.CmpOp, ordering int) bool {
	switch op {
	case rir.Eq:
		return ordering == 0
	case rir.Neq:
		return ordering != 0
	case rir.Lt:
		return ordering < 0
	case rir.Le:
		return ordering <= 0
	case rir.Gt:
		return ordering > 0
	default:
		return ordering >= 0
	}
}

// compileCast converts between numeric representations with saturating
// (not trapping) behavior on out-of-range float->int conversions.
func compileCast(in *rir.Cast) step {
	from, to, x, d := in.XType, in.Target, in.X, in.D
	return func(rows []unsafe.Pointer, regs map[rir.Value]register) {
		regs[d] = evalCast(from, to, regs[x])
	}
}

func evalCast(from, to coltype.ColumnType, r register) register {
	switch {
	case from.IsFloat() && to.IsFloat():
		return register{f: r.f}
	case from.IsFloat() && to.IsInteger():
		return register{i: saturateFloatToInt(r.f, to)}
	case from.IsInteger() && to.IsFloat():
		return register{f: float64(r.i)}
	case from.IsInteger() && to.IsInteger():
		return register{i: wrapInt(r.i, to)}
	default:
		return r
	}
}

func saturateFloatToInt(f float64, to coltype.ColumnType) int64 {
	if math.IsNaN(f) {
		return 0
	}
	// U64's full range doesn't fit in int64: saturate against uint64 and
	// hand back the bit pattern register.i carries for U64 values.
	if to == coltype.U64 {
		return int64(saturateFloatToUint64(f))
	}
	lo, hi := intRange(to)
	if f <= lo {
		return int64(lo)
	}
	if f >= hi {
		// float64(MaxInt64) rounds up to 2^63, which int64() cannot hold.
		if to == coltype.I64 {
			return math.MaxInt64
		}
		return int64(hi)
	}
	return int64(f)
}

func saturateFloatToUint64(f float64) uint64 {
	if f <= 0 {
		return 0
	}
	if f >= float64(uint64(math.MaxUint64)) {
		return math.MaxUint64
	}
	return uint64(f)
}

func intRange(t coltype.ColumnType) (float64, float64) {
	switch t {
	case coltype.I8:
		return -128, 127
	case coltype.I16:
		return -32768, 32767
	case coltype.I32:
		return math.MinInt32, math.MaxInt32
	case coltype.I64:
		return math.MinInt64, math.MaxInt64
	case coltype.U8:
		return 0, 255
	case coltype.U16:
		return 0, 65535
	case coltype.U32:
		return 0, math.MaxUint32
	default:
		return 0, math.MaxInt64
	}
}

func compileCopyRowTo(in *rir.CopyRowTo, cache *layout.LayoutCache) step {
	size := uintptr(cache.Native(in.Layout).Size)
	src, dst := in.Src, in.Dst
	return func(rows []unsafe.Pointer, regs map[rir.Value]register) {
		srcSlice := unsafe.Slice((*byte)(rows[src]), size)
		dstSlice := unsafe.Slice((*byte)(rows[dst]), size)
		copy(dstSlice, srcSlice)
	}
}
