package riscv

import (
	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"

	"github.com/xmcp/atoz/compiler/asm"
	"github.com/xmcp/atoz/compiler/ir"
	"github.com/xmcp/atoz/compiler/reg"
)

type emitter struct {
	b []byte
	f *asm.Func
}

const indent = "  "

// Format appends RV32 assembly.
func Format(b []byte, r *asm.Root) (_ []byte, err error) {
	e := &emitter{b: b}

	for _, g := range r.Globals {
		e.global(g)
	}

	for _, f := range r.Funcs {
		e.f = f

		err = e.function(f)
		if err != nil {
			return e.b, errors.Wrap(err, "func %v", f.Name)
		}
	}

	return e.b, nil
}

func (e *emitter) global(g asm.Global) {
	if g.Array {
		e.ins(".comm", "v%d, %d, 4", g.Index, 4*g.Words)
		return
	}

	e.ins(".global", "v%d", g.Index)
	e.ins(".section", ".sdata")
	e.ins(".align", "2")
	e.ins(".type", "v%d, @object", g.Index)
	e.ins(".size", "v%d, 4", g.Index)
	e.b = hfmt.Appendf(e.b, "v%d:\n", g.Index)
	e.ins(".word", "%d", g.Init)
}

func (e *emitter) function(f *asm.Func) error {
	e.ins(".text", "")
	e.ins(".align", "2")
	e.ins(".global", "%s", f.Name)
	e.ins(".type", "%s, @function", f.Name)
	e.b = hfmt.Appendf(e.b, "%s:\n", f.Name)

	stk := asm.FrameBytes(f.Stack)

	e.ins("sw", "ra, -4(sp)")
	e.addsp(-stk)

	for _, x := range f.Body {
		if err := e.instr(x); err != nil {
			return err
		}
	}

	e.ins(".size", "%s, .-%s", f.Name, f.Name)

	return nil
}

func (e *emitter) instr(x asm.Instr) error {
	switch x := x.(type) {
	case asm.Binary:
		return e.binary(x)
	case asm.Unary:
		switch x.Op {
		case ir.Pos:
			return e.instr(asm.Mov{Out: x.Out, In: x.In})
		case ir.Neg:
			e.ins("neg", "%v, %v", x.Out, x.In)
		case ir.Not:
			e.ins("seqz", "%v, %v", x.Out, x.In)
		default:
			panic(x)
		}
	case asm.Mov:
		if x.Out == x.In {
			e.comment("mv %v to self", x.Out)
			return nil
		}

		e.ins("mv", "%v, %v", x.Out, x.In)
	case asm.Imm:
		e.ins("li", "%v, %d", x.Out, x.Val)
	case asm.AddI:
		if x.Val == 0 {
			return e.instr(asm.Mov{Out: x.Out, In: x.In})
		}

		if asm.ImmOverflows(x.Val) {
			return errors.New("addi immediate out of range: %d", x.Val)
		}

		e.ins("addi", "%v, %v, %d", x.Out, x.In, x.Val)
	case asm.Shift:
		if x.N == 0 {
			if x.Out == x.In {
				e.comment("shift %v by 0", x.Out)
				return nil
			}

			return e.instr(asm.Mov{Out: x.Out, In: x.In})
		}

		op := [...]string{asm.ShiftLeft: "slli", asm.ShiftRightArith: "srai", asm.ShiftRightLogic: "srli"}[x.Kind]
		e.ins(op, "%v, %v, %d", x.Out, x.In, x.N)
	case asm.DivPow2:
		// bias negative dividends by 2^N-1 so the shift rounds toward zero
		t := reg.Scratch1

		e.ins("srai", "%v, %v, 31", t, x.In)
		e.ins("srli", "%v, %v, %d", t, t, 32-x.N)
		e.ins("add", "%v, %v, %v", t, x.In, t)
		e.ins("srai", "%v, %v, %d", x.Out, t, x.N)
	case asm.Store:
		if asm.ImmOverflows(x.Off) {
			return errors.New("store offset out of range: %d", x.Off)
		}

		e.ins("sw", "%v, %d(%v)", x.In, x.Off, x.Base)
	case asm.Load:
		if asm.ImmOverflows(x.Off) {
			return errors.New("load offset out of range: %d", x.Off)
		}

		e.ins("lw", "%v, %d(%v)", x.Out, x.Off, x.Base)
	case asm.BCond:
		op := [...]string{ir.Less: "blt", ir.Greater: "bgt", ir.LessEq: "ble", ir.GreaterEq: "bge", ir.Equal: "beq", ir.NotEqual: "bne"}[x.Rel]
		e.ins(op, "%v, %v, .l%d", x.In[0], x.In[1], x.Label)
	case asm.B:
		e.ins("j", ".l%d", x.Label)
	case asm.Label:
		e.b = hfmt.Appendf(e.b, ".l%d:\n", x.ID)
	case asm.Call:
		e.ins("call", "%s", x.Func)
	case asm.Ret:
		e.addsp(asm.FrameBytes(e.f.Stack))
		e.ins("lw", "ra, -4(sp)")
		e.ins("ret", "")
	case asm.StoreStack:
		tmp := reg.Scratch0
		if x.In == tmp {
			tmp = reg.Scratch1
		}

		off := 4 * x.Slot
		if asm.ImmOverflows(off) {
			e.ins("li", "%v, %d", tmp, off)
			e.ins("add", "%v, %v, sp", tmp, tmp)
			e.ins("sw", "%v, 0(%v)", x.In, tmp)

			return nil
		}

		e.ins("sw", "%v, %d(sp)", x.In, off)
	case asm.LoadStack:
		off := 4 * x.Slot
		if asm.ImmOverflows(off) {
			e.ins("li", "%v, %d", x.Out, off)
			e.ins("add", "%v, %v, sp", x.Out, x.Out)
			e.ins("lw", "%v, 0(%v)", x.Out, x.Out)

			return nil
		}

		e.ins("lw", "%v, %d(sp)", x.Out, off)
	case asm.LoadGlobal:
		e.ins("lui", "%v, %%hi(v%d)", x.Out, x.Global)
		e.ins("lw", "%v, %%lo(v%d)(%v)", x.Out, x.Global, x.Out)
	case asm.AddrStack:
		off := 4 * x.Slot
		if asm.ImmOverflows(off) {
			e.ins("li", "%v, %d", x.Out, off)
			e.ins("add", "%v, sp, %v", x.Out, x.Out)

			return nil
		}

		e.ins("addi", "%v, sp, %d", x.Out, off)
	case asm.AddrGlobal:
		e.ins("la", "%v, v%d", x.Out, x.Global)
	case asm.Comment:
		e.comment("%s", x.Text)
	default:
		panic(x)
	}

	return nil
}

func (e *emitter) binary(x asm.Binary) error {
	d, l, r := x.Out, x.In[0], x.In[1]

	switch x.Op {
	case ir.Add, ir.Sub, ir.Mul, ir.Div, ir.Mod:
		op := [...]string{ir.Add: "add", ir.Sub: "sub", ir.Mul: "mul", ir.Div: "div", ir.Mod: "rem"}[x.Op]
		e.ins(op, "%v, %v, %v", d, l, r)
	case ir.Lt:
		e.ins("slt", "%v, %v, %v", d, l, r)
	case ir.Gt:
		e.ins("sgt", "%v, %v, %v", d, l, r)
	case ir.Le:
		e.ins("sgt", "%v, %v, %v", d, l, r)
		e.ins("seqz", "%v, %v", d, d)
	case ir.Ge:
		e.ins("slt", "%v, %v, %v", d, l, r)
		e.ins("seqz", "%v, %v", d, d)
	case ir.Eq:
		e.ins("xor", "%v, %v, %v", d, l, r)
		e.ins("seqz", "%v, %v", d, d)
	case ir.Ne:
		e.ins("xor", "%v, %v, %v", d, l, r)
		e.ins("snez", "%v, %v", d, d)
	default:
		return errors.New("unsupported operator: %v", x.Op)
	}

	return nil
}

func (e *emitter) addsp(n int) {
	if !asm.ImmOverflows(n) {
		e.ins("addi", "sp, sp, %d", n)
		return
	}

	e.ins("li", "%v, %d", reg.Scratch0, n)
	e.ins("add", "sp, sp, %v", reg.Scratch0)
}

func (e *emitter) ins(op, format string, args ...any) {
	e.b = append(e.b, indent...)
	e.b = append(e.b, op...)

	if format != "" {
		for i := len(op); i < 8; i++ {
			e.b = append(e.b, ' ')
		}

		e.b = hfmt.Appendf(e.b, format, args...)
	}

	e.b = append(e.b, '\n')
}

func (e *emitter) comment(format string, args ...any) {
	e.b = append(e.b, indent...)
	e.b = append(e.b, "# "...)
	e.b = hfmt.Appendf(e.b, format, args...)
	e.b = append(e.b, '\n')
}
