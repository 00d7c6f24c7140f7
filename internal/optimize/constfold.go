package optimize

import (
	"rowjit/internal/coltype"
	"rowjit/internal/ir"
)

// foldConstants evaluates Arith/Cmp/Logic/Not instructions whose operands
// are themselves known Const values, replacing them in place with an
// equivalent Const. Cast instructions are not folded. Reports whether any
// instruction changed.
func foldConstants(fn *ir.Function) bool {
	known := make(map[ir.Value]*ir.Const)
	changed := false

	for _, blk := range fn.Blocks {
		for idx, instr := range blk.Instrs {
			if c, ok := instr.(*ir.Const); ok {
				known[c.D] = c
				continue
			}
			if folded := tryFold(instr, known); folded != nil {
				blk.Instrs[idx] = folded
				known[folded.D] = folded
				changed = true
			}
		}
	}
	return changed
}

func tryFold(instr ir.Instr, known map[ir.Value]*ir.Const) *ir.Const {
	switch in := instr.(type) {
	case *ir.Arith:
		x, xok := known[in.X]
		y, yok := known[in.Y]
		if !xok || !yok {
			return nil
		}
		v, ok := evalArith(in.Op, in.Type, x.Val, y.Val)
		if !ok {
			return nil
		}
		return &ir.Const{D: in.D, Type: in.Type, Val: v}
	case *ir.Cmp:
		x, xok := known[in.X]
		y, yok := known[in.Y]
		if !xok || !yok {
			return nil
		}
		v, ok := evalCmp(in.Op, in.Type, x.Val, y.Val)
		if !ok {
			return nil
		}
		return &ir.Const{D: in.D, Type: coltype.Bool, Val: v}
	case *ir.Logic:
		x, xok := known[in.X]
		y, yok := known[in.Y]
		if !xok || !yok {
			return nil
		}
		xb, xIsBool := x.Val.(bool)
		yb, yIsBool := y.Val.(bool)
		if !xIsBool || !yIsBool {
			return nil
		}
		var v bool
		switch in.Op {
		case ir.And:
			v = xb && yb
		case ir.Or:
			v = xb || yb
		default:
			return nil
		}
		return &ir.Const{D: in.D, Type: coltype.Bool, Val: v}
	case *ir.Not:
		x, ok := known[in.X]
		if !ok {
			return nil
		}
		xb, ok := x.Val.(bool)
		if !ok {
			return nil
		}
		return &ir.Const{D: in.D, Type: coltype.Bool, Val: !xb}
	default:
		return nil
	}
}
