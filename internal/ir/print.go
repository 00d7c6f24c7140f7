package ir

import (
	"fmt"
	"strings"

	"github.com/kr/text"
)

// Print renders f as a readable, stable-order text form, useful in tests
// and debug dumps. It does not use kr/pretty's generic struct dumper
// directly on Function — the hand-rolled form below reads closer to a
// conventional textual IR dump — but Instr operands that need a generic
// fallback go through fmt's %v, and the whole block is indented with
// kr/text.
func (f *Function) Print() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fn %s(", f.Name)
	for i, in := range f.Inputs {
		if i > 0 {
			b.WriteString(", ")
		}
		kind := "ro"
		if in.Kind == Mutable {
			kind = "mut"
		}
		fmt.Fprintf(&b, "%s row%d:%s", kind, i, in.Layout)
	}
	b.WriteString(")")
	if f.RetType != nil {
		fmt.Fprintf(&b, " -> %s", f.RetType)
	}
	b.WriteString(" {\n")
	for _, blk := range f.Blocks {
		fmt.Fprintf(&b, "bb%d:\n", blk.ID)
		var body strings.Builder
		for _, instr := range blk.Instrs {
			fmt.Fprintln(&body, printInstr(instr))
		}
		fmt.Fprintln(&body, printTerm(blk.Term))
		b.WriteString(text.Indent(body.String(), "  "))
	}
	b.WriteString("}\n")
	return b.String()
}

func printInstr(instr Instr) string {
	switch i := instr.(type) {
	case *Const:
		return fmt.Sprintf("v%d = const.%s %v", i.D, i.Type, i.Val)
	case *Load:
		return fmt.Sprintf("v%d = load row%d[%d]", i.D, i.Row, i.Col)
	case *Store:
		return fmt.Sprintf("store row%d[%d] = v%d", i.Row, i.Col, i.Val)
	case *IsNull:
		return fmt.Sprintf("v%d = is_null row%d[%d]", i.D, i.Row, i.Col)
	case *SetNull:
		return fmt.Sprintf("set_null row%d[%d] = v%d", i.Row, i.Col, i.Val)
	case *Extract:
		return fmt.Sprintf("v%d = extract row%d[%d]", i.D, i.Row, i.Col)
	case *Insert:
		return fmt.Sprintf("insert row%d[%d] = v%d", i.Row, i.Col, i.Val)
	case *Arith:
		return fmt.Sprintf("v%d = %s.%s v%d, v%d", i.D, i.Op, i.Type, i.X, i.Y)
	case *Cmp:
		return fmt.Sprintf("v%d = %s.%s v%d, v%d", i.D, i.Op, i.Type, i.X, i.Y)
	case *Logic:
		return fmt.Sprintf("v%d = %s v%d, v%d", i.D, i.Op, i.X, i.Y)
	case *Not:
		return fmt.Sprintf("v%d = not v%d", i.D, i.X)
	case *Cast:
		return fmt.Sprintf("v%d = cast.%s->%s v%d", i.D, i.XType, i.Target, i.X)
	case *CopyRowTo:
		return fmt.Sprintf("copy_row_to row%d -> row%d : %s", i.Src, i.Dst, i.Layout)
	default:
		return fmt.Sprintf("<unknown instr %T>", instr)
	}
}

func printTerm(t Term) string {
	switch term := t.(type) {
	case *Branch:
		if term.Cond < 0 {
			return fmt.Sprintf("jump bb%d", term.TrueBlk)
		}
		return fmt.Sprintf("branch v%d, bb%d, bb%d", term.Cond, term.TrueBlk, term.FalseBlk)
	case *Ret:
		return fmt.Sprintf("ret v%d", term.Value)
	case *RetUnit:
		return "ret_unit"
	case nil:
		return "<unterminated>"
	default:
		return fmt.Sprintf("<unknown term %T>", t)
	}
}
