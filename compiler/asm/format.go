package asm

import (
	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"

	"github.com/xmcp/atoz/compiler/ir"
)

const indent = "    "

// Format appends abstract machine text.
func Format(b []byte, r *Root) (_ []byte, err error) {
	for _, g := range r.Globals {
		if g.Array {
			b = hfmt.Appendf(b, "v%d = malloc %d\n", g.Index, 4*g.Words)
		} else {
			b = hfmt.Appendf(b, "v%d = %d\n", g.Index, g.Init)
		}
	}

	for _, f := range r.Funcs {
		if len(b) != 0 {
			b = append(b, '\n')
		}

		b = hfmt.Appendf(b, "f_%s [%d] [%d]\n", f.Name, f.Params, f.Stack)

		for _, x := range f.Body {
			b, err = formatInstr(b, x)
			if err != nil {
				return b, errors.Wrap(err, "func %v", f.Name)
			}
		}

		b = hfmt.Appendf(b, "end f_%s\n", f.Name)
	}

	return b, nil
}

func formatInstr(b []byte, x Instr) ([]byte, error) {
	line := func(format string, args ...any) []byte {
		b = append(b, indent...)
		b = hfmt.Appendf(b, format, args...)

		return append(b, '\n')
	}

	switch x := x.(type) {
	case Binary:
		if x.Op == ir.And || x.Op == ir.Or {
			return b, errors.New("unsupported operator: %v", x.Op)
		}

		return line("%v = %v %v %v", x.Out, x.In[0], x.Op, x.In[1]), nil
	case Unary:
		if x.Op == ir.Pos {
			return formatInstr(b, Mov{Out: x.Out, In: x.In})
		}

		return line("%v = %v %v", x.Out, x.Op, x.In), nil
	case Mov:
		if x.Out == x.In {
			return line("// %v = %v", x.Out, x.In), nil
		}

		return line("%v = %v", x.Out, x.In), nil
	case Imm:
		return line("%v = %d", x.Out, x.Val), nil
	case AddI:
		if x.Val == 0 && x.Out == x.In {
			return line("// %v = %v + 0", x.Out, x.In), nil
		}

		return line("%v = %v + %d", x.Out, x.In, x.Val), nil
	case Shift:
		if x.N == 0 {
			return formatInstr(b, Mov{Out: x.Out, In: x.In})
		}

		switch x.Kind {
		case ShiftLeft:
			return line("%v = %v * %d", x.Out, x.In, int32(uint32(1)<<x.N)), nil
		case ShiftRightArith:
			// exact for non-negative values only
			return line("%v = %v / %d", x.Out, x.In, 1<<x.N), nil
		case ShiftRightLogic:
			return b, errors.New("logical shift in abstract machine text: %v = %v >>> %d", x.Out, x.In, x.N)
		default:
			panic(x)
		}
	case DivPow2:
		return line("%v = %v / %d", x.Out, x.In, 1<<x.N), nil
	case Store:
		return line("%v [%d] = %v", x.Base, x.Off, x.In), nil
	case Load:
		return line("%v = %v [%d]", x.Out, x.Base, x.Off), nil
	case BCond:
		return line("if %v %v %v goto l%d", x.In[0], x.Rel, x.In[1], x.Label), nil
	case B:
		return line("goto l%d", x.Label), nil
	case Label:
		return hfmt.Appendf(b, "l%d:\n", x.ID), nil
	case Call:
		return line("call f_%s", x.Func), nil
	case Ret:
		return line("return"), nil
	case StoreStack:
		return line("store %v %d", x.In, x.Slot), nil
	case LoadStack:
		return line("load %d %v", x.Slot, x.Out), nil
	case LoadGlobal:
		return line("load v%d %v", x.Global, x.Out), nil
	case AddrStack:
		return line("loadaddr %d %v", x.Slot, x.Out), nil
	case AddrGlobal:
		return line("loadaddr v%d %v", x.Global, x.Out), nil
	case Comment:
		return line("// %s", x.Text), nil
	default:
		panic(x)
	}
}
