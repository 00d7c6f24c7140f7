package optimize

import (
	"rowjit/internal/coltype"
	"rowjit/internal/ir"
)

// evalArith evaluates a typed binary arithmetic op over two Const payloads,
// matching the saturating/wraparound rules codegen will later emit
// natively: integer overflow wraps (two's complement), division by zero
// is not folded (left for the runtime/backend to fault or trap).
func evalArith(op ir.ArithOp, t coltype.ColumnType, xv, yv interface{}) (interface{}, bool) {
	if t.IsFloat() {
		x, xok := asFloat(xv)
		y, yok := asFloat(yv)
		if !xok || !yok {
			return nil, false
		}
		switch op {
		case ir.Add:
			return x + y, true
		case ir.Sub:
			return x - y, true
		case ir.Mul:
			return x * y, true
		case ir.Div:
			if y == 0 {
				return nil, false
			}
			return x / y, true
		}
		return nil, false
	}

	x, xok := asInt(xv)
	y, yok := asInt(yv)
	if !xok || !yok {
		return nil, false
	}
	switch op {
	case ir.Add:
		return wrap(x+y, t), true
	case ir.Sub:
		return wrap(x-y, t), true
	case ir.Mul:
		return wrap(x*y, t), true
	case ir.Div:
		if y == 0 {
			return nil, false
		}
		if !t.IsSigned() {
			return wrap(int64(uint64(x)/uint64(y)), t), true
		}
		return wrap(x/y, t), true
	}
	return nil, false
}

// evalCmp evaluates a typed comparison over two Const payloads, yielding a
// bool.
func evalCmp(op ir.CmpOp, t coltype.ColumnType, xv, yv interface{}) (bool, bool) {
	if t == coltype.String {
		xs, xok := xv.(string)
		ys, yok := yv.(string)
		if !xok || !yok {
			return false, false
		}
		return cmpOrdered(op, strCompare(xs, ys)), true
	}
	if t.IsFloat() {
		x, xok := asFloat(xv)
		y, yok := asFloat(yv)
		if !xok || !yok {
			return false, false
		}
		switch {
		case x < y:
			return cmpOrdered(op, -1), true
		case x > y:
			return cmpOrdered(op, 1), true
		default:
			return cmpOrdered(op, 0), true
		}
	}
	x, xok := asInt(xv)
	y, yok := asInt(yv)
	if !xok || !yok {
		return false, false
	}
	switch {
	case x < y:
		return cmpOrdered(op, -1), true
	case x > y:
		return cmpOrdered(op, 1), true
	default:
		return cmpOrdered(op, 0), true
	}
}

func cmpOrdered(op ir.CmpOp, ordering int) bool {
	switch op {
	case ir.Eq:
		return ordering == 0
	case ir.Neq:
		return ordering != 0
	case ir.Lt:
		return ordering < 0
	case ir.Le:
		return ordering <= 0
	case ir.Gt:
		return ordering > 0
	case ir.Ge:
		return ordering >= 0
	default:
		return false
	}
}

func strCompare(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func asInt(v interface{}) (int64, bool) {
	i, ok := v.(int64)
	return i, ok
}

func asFloat(v interface{}) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

// wrap truncates x to t's bit width with two's-complement wraparound,
// matching the backend's native integer arithmetic semantics.
func wrap(x int64, t coltype.ColumnType) int64 {
	switch t {
	case coltype.I8:
		return int64(int8(x))
	case coltype.I16:
		return int64(int16(x))
	case coltype.I32:
		return int64(int32(x))
	case coltype.I64:
		return x
	case coltype.U8:
		return int64(uint8(x))
	case coltype.U16:
		return int64(uint16(x))
	case coltype.U32:
		return int64(uint32(x))
	case coltype.U64:
		return int64(uint64(x))
	default:
		return x
	}
}
