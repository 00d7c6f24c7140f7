package codegen

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"rowjit/internal/coltype"
	rjerrors "rowjit/internal/errors"
	rir "rowjit/internal/ir"
	"rowjit/internal/layout"
)

// llvmType maps a ColumnType onto its LLVM IR representation. Strings are
// represented as the pointer-sized handle that lives inline in the row;
// the owned bytes they reference are manipulated through vtable glue, not
// visible to the arithmetic lowered here.
func llvmType(t coltype.ColumnType) types.Type {
	switch t {
	case coltype.Bool:
		return types.I1
	case coltype.I8, coltype.U8:
		return types.I8
	case coltype.I16, coltype.U16:
		return types.I16
	case coltype.I32, coltype.U32:
		return types.I32
	case coltype.I64, coltype.U64:
		return types.I64
	case coltype.F32:
		return types.Float
	case coltype.F64:
		return types.Double
	case coltype.String:
		return types.I64Ptr
	default:
		return types.Void
	}
}

func llvmBitSetType(kind layout.BitSetKind) *types.IntType {
	switch kind {
	case layout.BitSetU8:
		return types.I8
	case layout.BitSetU16:
		return types.I16
	case layout.BitSetU32:
		return types.I32
	default:
		return types.I64
	}
}

// LowerModule lowers fn into a freshly created LLVM IR module containing a
// single function named fn.Name, using cache to resolve row layouts and
// column offsets. This is the native code artifact: a real, inspectable
// IR module, produced alongside (not instead of) the closure path that
// the runtime actually executes.
func LowerModule(fn *rir.Function, cache *layout.LayoutCache) (*ir.Module, error) {
	m := ir.NewModule()

	params := make([]*ir.Param, len(fn.Inputs))
	for i := range fn.Inputs {
		kind := "ro"
		if fn.Inputs[i].Kind == rir.Mutable {
			kind = "mut"
		}
		params[i] = ir.NewParam(fmt.Sprintf("%s_row%d", kind, i), types.I8Ptr)
	}

	retType := types.Type(types.Void)
	if fn.RetType != nil {
		retType = llvmType(*fn.RetType)
	}

	llvmFn := m.NewFunc(fn.Name, retType, params...)

	blocks := make([]*ir.Block, len(fn.Blocks))
	for i, blk := range fn.Blocks {
		blocks[i] = llvmFn.NewBlock(fmt.Sprintf("bb%d", blk.ID))
	}

	lowering := &moduleLowering{
		fn:     fn,
		cache:  cache,
		params: params,
		blocks: blocks,
		values: make(map[rir.Value]value.Value),
	}

	for bi, blk := range fn.Blocks {
		lb := blocks[bi]
		for _, instr := range blk.Instrs {
			if err := lowering.instr(lb, instr); err != nil {
				return nil, err
			}
		}
		if err := lowering.term(lb, blk.Term); err != nil {
			return nil, err
		}
	}

	return m, nil
}

type moduleLowering struct {
	fn     *rir.Function
	cache  *layout.LayoutCache
	params []*ir.Param
	blocks []*ir.Block
	values map[rir.Value]value.Value
}

func (m *moduleLowering) val(v rir.Value) value.Value { return m.values[v] }

func (m *moduleLowering) columnAddr(b *ir.Block, row rir.RowRef, col int) (value.Value, coltype.ColumnType) {
	native := m.cache.Native(m.fn.Inputs[row].Layout)
	l := m.cache.Layout(m.fn.Inputs[row].Layout)
	off := int64(native.OffsetOf(col))
	addr := b.NewGetElementPtr(types.I8, m.params[row], constant.NewInt(types.I64, off))
	return addr, l.Column(col).Type
}

func (m *moduleLowering) nullWordAddr(b *ir.Block, row rir.RowRef, col int) (value.Value, *types.IntType, uint8) {
	native := m.cache.Native(m.fn.Inputs[row].Layout)
	kind, byteOffset, bitIndex := native.NullabilityOf(col)
	wordTy := llvmBitSetType(kind)
	addr := b.NewGetElementPtr(types.I8, m.params[row], constant.NewInt(types.I64, int64(byteOffset)))
	return addr, wordTy, bitIndex
}

func (m *moduleLowering) instr(b *ir.Block, instr rir.Instr) error {
	switch in := instr.(type) {
	case *rir.Const:
		m.values[in.D] = lowerConst(in.Type, in.Val)

	case *rir.Load:
		addr, t := m.columnAddr(b, in.Row, in.Col)
		m.values[in.D] = b.NewLoad(llvmType(t), addr)
	case *rir.Extract:
		addr, t := m.columnAddr(b, in.Row, in.Col)
		m.values[in.D] = b.NewLoad(llvmType(t), addr)

	case *rir.Store:
		addr, _ := m.columnAddr(b, in.Row, in.Col)
		b.NewStore(m.val(in.Val), addr)
	case *rir.Insert:
		addr, _ := m.columnAddr(b, in.Row, in.Col)
		b.NewStore(m.val(in.Val), addr)

	case *rir.IsNull:
		addr, wordTy, bit := m.nullWordAddr(b, in.Row, in.Col)
		word := b.NewLoad(wordTy, addr)
		masked := b.NewAnd(word, constant.NewInt(wordTy, 1<<bit))
		pred := enum.IPredNE
		if m.cache.Sigil() == layout.SigilZeroIsNull {
			pred = enum.IPredEQ
		}
		m.values[in.D] = b.NewICmp(pred, masked, constant.NewInt(wordTy, 0))

	case *rir.SetNull:
		addr, wordTy, bit := m.nullWordAddr(b, in.Row, in.Col)
		word := b.NewLoad(wordTy, addr)
		setWord := b.NewOr(word, constant.NewInt(wordTy, 1<<bit))
		clearWord := b.NewAnd(word, constant.NewInt(wordTy, ^int64(1<<bit)))
		nullWord, notNullWord := value.Value(setWord), value.Value(clearWord)
		if m.cache.Sigil() == layout.SigilZeroIsNull {
			nullWord, notNullWord = notNullWord, nullWord
		}
		chosen := b.NewSelect(m.val(in.Val), nullWord, notNullWord)
		b.NewStore(chosen, addr)

	case *rir.Arith:
		m.values[in.D] = lowerArith(b, in, m.val(in.X), m.val(in.Y))
	case *rir.Cmp:
		m.values[in.D] = lowerCmp(b, in, m.val(in.X), m.val(in.Y))
	case *rir.Logic:
		if in.Op == rir.And {
			m.values[in.D] = b.NewAnd(m.val(in.X), m.val(in.Y))
		} else {
			m.values[in.D] = b.NewOr(m.val(in.X), m.val(in.Y))
		}
	case *rir.Not:
		m.values[in.D] = b.NewXor(m.val(in.X), constant.True)
	case *rir.Cast:
		m.values[in.D] = lowerCast(b, in, m.val(in.X))

	case *rir.CopyRowTo:
		m.lowerCopyRowTo(b, in)

	default:
		return rjerrors.New(rjerrors.Codegen, "unsupported instruction %T", instr)
	}
	return nil
}

// lowerCopyRowTo copies a row byte-for-byte as a sequence of native i64
// (then i8-remainder) loads/stores, rather than emitting a memcpy
// intrinsic declaration — simple and sufficient for the row sizes this
// engine deals with.
func (m *moduleLowering) lowerCopyRowTo(b *ir.Block, in *rir.CopyRowTo) {
	size := int64(m.cache.Native(in.Layout).Size)
	var off int64
	for off+8 <= size {
		src := b.NewGetElementPtr(types.I8, m.params[in.Src], constant.NewInt(types.I64, off))
		dst := b.NewGetElementPtr(types.I8, m.params[in.Dst], constant.NewInt(types.I64, off))
		b.NewStore(b.NewLoad(types.I64, src), dst)
		off += 8
	}
	for off < size {
		src := b.NewGetElementPtr(types.I8, m.params[in.Src], constant.NewInt(types.I64, off))
		dst := b.NewGetElementPtr(types.I8, m.params[in.Dst], constant.NewInt(types.I64, off))
		b.NewStore(b.NewLoad(types.I8, src), dst)
		off++
	}
}

func lowerConst(t coltype.ColumnType, val interface{}) value.Value {
	switch {
	case t == coltype.Bool:
		if val.(bool) {
			return constant.True
		}
		return constant.False
	case t.IsFloat():
		ft := llvmType(t).(*types.FloatType)
		return constant.NewFloat(ft, val.(float64))
	case t == coltype.String:
		return constant.NewNull(types.I64Ptr)
	default:
		it := llvmType(t).(*types.IntType)
		return constant.NewInt(it, val.(int64))
	}
}

func lowerArith(b *ir.Block, in *rir.Arith, x, y value.Value) value.Value {
	if in.Type.IsFloat() {
		switch in.Op {
		case rir.Add:
			return b.NewFAdd(x, y)
		case rir.Sub:
			return b.NewFSub(x, y)
		case rir.Mul:
			return b.NewFMul(x, y)
		default:
			return b.NewFDiv(x, y)
		}
	}
	if in.Type.IsSigned() {
		switch in.Op {
		case rir.Add:
			return b.NewAdd(x, y)
		case rir.Sub:
			return b.NewSub(x, y)
		case rir.Mul:
			return b.NewMul(x, y)
		default:
			return b.NewSDiv(x, y)
		}
	}
	switch in.Op {
	case rir.Add:
		return b.NewAdd(x, y)
	case rir.Sub:
		return b.NewSub(x, y)
	case rir.Mul:
		return b.NewMul(x, y)
	default:
		return b.NewUDiv(x, y)
	}
}

func lowerCmp(b *ir.Block, in *rir.Cmp, x, y value.Value) value.Value {
	if in.Type.IsFloat() {
		return b.NewFCmp(fpred(in.Op), x, y)
	}
	return b.NewICmp(ipred(in.Op, in.Type.IsSigned()), x, y)
}

func ipred(op rir.CmpOp, signed bool) enum.IPred {
	switch op {
	case rir.Eq:
		return enum.IPredEQ
	case rir.Neq:
		return enum.IPredNE
	case rir.Lt:
		if signed {
			return enum.IPredSLT
		}
		return enum.IPredULT
	case rir.Le:
		if signed {
			return enum.IPredSLE
		}
		return enum.IPredULE
	case rir.Gt:
		if signed {
			return enum.IPredSGT
		}
		return enum.IPredUGT
	default:
		if signed {
			return enum.IPredSGE
		}
		return enum.IPredUGE
	}
}

func fpred(op rir.CmpOp) enum.FPred {
	switch op {
	case rir.Eq:
		return enum.FPredOEQ
	case rir.Neq:
		return enum.FPredONE
	case rir.Lt:
		return enum.FPredOLT
	case rir.Le:
		return enum.FPredOLE
	case rir.Gt:
		return enum.FPredOGT
	default:
		return enum.FPredOGE
	}
}

// lowerCast converts x (declared type in.XType) to in.Target with
// saturating, not trapping, out-of-range behavior. LLVM's plain
// fptosi/fptoui are trapping on overflow in source languages that check
// it, but since neither this engine nor LLVM itself traps on them, the
// saturation policy here is handled at the closure-compiler level (see
// codegen/closure.go) — this lowering emits the canonical conversion
// instruction the backend would otherwise pick.
func lowerCast(b *ir.Block, in *rir.Cast, x value.Value) value.Value {
	from, to := in.XType, in.Target
	toTy := llvmType(to)

	switch {
	case from.IsFloat() && to.IsFloat():
		if from == coltype.F32 && to == coltype.F64 {
			return b.NewFPExt(x, toTy)
		}
		if from == coltype.F64 && to == coltype.F32 {
			return b.NewFPTrunc(x, toTy)
		}
		return x
	case from.IsFloat() && to.IsInteger():
		if to.IsSigned() {
			return b.NewFPToSI(x, toTy)
		}
		return b.NewFPToUI(x, toTy)
	case from.IsInteger() && to.IsFloat():
		if from.IsSigned() {
			return b.NewSIToFP(x, toTy)
		}
		return b.NewUIToFP(x, toTy)
	case from.IsInteger() && to.IsInteger():
		if to.Size() < from.Size() {
			return b.NewTrunc(x, toTy)
		}
		if to.Size() > from.Size() {
			if from.IsSigned() {
				return b.NewSExt(x, toTy)
			}
			return b.NewZExt(x, toTy)
		}
		return x
	default:
		return x
	}
}

func (m *moduleLowering) term(b *ir.Block, t rir.Term) error {
	switch term := t.(type) {
	case *rir.Branch:
		if term.Cond < 0 {
			b.NewBr(m.blocks[term.TrueBlk])
			return nil
		}
		b.NewCondBr(m.val(term.Cond), m.blocks[term.TrueBlk], m.blocks[term.FalseBlk])
	case *rir.Ret:
		b.NewRet(m.val(term.Value))
	case *rir.RetUnit:
		b.NewRet(nil)
	default:
		return rjerrors.New(rjerrors.Codegen, "unterminated block reached codegen")
	}
	return nil
}
