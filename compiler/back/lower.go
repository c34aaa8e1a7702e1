package back

import (
	"math/bits"

	"github.com/xmcp/atoz/compiler/asm"
	"github.com/xmcp/atoz/compiler/clobber"
	"github.com/xmcp/atoz/compiler/ir"
	"github.com/xmcp/atoz/compiler/reg"
)

type Reg = reg.Reg

// Operands loaded into scratch registers use one per operand index.
var scratch = [2]Reg{reg.Scratch0, reg.Scratch1}

// fill-zero loops are unrolled up to this many words
const unrollZero = 16

func (fc *funContext) add(x ...asm.Instr) { fc.out.Add(x...) }

func (fc *funContext) stmt(i int, s any) (err error) {
	if d, ok := ir.Dst(s); ok && fc.unused(i, d) {
		if _, isCall := s.(*ir.Call); !isCall {
			fc.tr.Printw("warning: value is never used, store elided", "func", fc.Name, "i", i, "dst", d)
			return nil
		}
	}

	switch s := s.(type) {
	case *ir.Binary:
		return fc.binary(s)
	case *ir.Unary:
		x, err := fc.rload(s.X, 1)
		if err != nil {
			return err
		}

		d, err := fc.rstore(s.Dst)
		if err != nil {
			return err
		}

		if s.Op == ir.Pos {
			fc.add(asm.Mov{Out: d, In: x})
		} else {
			fc.add(asm.Unary{Out: d, Op: s.Op, In: x})
		}

		return fc.dostore(s.Dst, d)
	case *ir.Mov:
		d, err := fc.rstore(s.Dst)
		if err != nil {
			return err
		}

		if s.Src.IsConst() {
			fc.add(asm.Imm{Out: d, Val: s.Src.N})
		} else {
			x, err := fc.rload(s.Src, 1)
			if err != nil {
				return err
			}

			fc.add(asm.Mov{Out: d, In: x})
		}

		return fc.dostore(s.Dst, d)
	case *ir.ArraySet:
		base, off, err := fc.address(s.Dst, s.Off)
		if err != nil {
			return err
		}

		x, err := fc.rload(s.Src, 1)
		if err != nil {
			return err
		}

		fc.add(asm.Store{Base: base, Off: off, In: x})

		return nil
	case *ir.ArrayGet:
		base, off, err := fc.address(s.Src, s.Off)
		if err != nil {
			return err
		}

		d, err := fc.rstore(s.Dst)
		if err != nil {
			return err
		}

		fc.add(asm.Load{Out: d, Base: base, Off: off})

		return fc.dostore(s.Dst, d)
	case *ir.CondGoto:
		l, err := fc.rload(s.L, 0)
		if err != nil {
			return err
		}

		r, err := fc.rload(s.R, 1)
		if err != nil {
			return err
		}

		fc.add(asm.BCond{In: [2]Reg{l, r}, Rel: s.Rel, Label: s.Label})

		return nil
	case *ir.Goto:
		fc.add(asm.B{Label: s.Label})
		return nil
	case *ir.Label:
		fc.add(asm.Label{ID: s.ID})
		return nil
	case *ir.CallVoid:
		return fc.call(i, s, nil)
	case *ir.Call:
		return fc.call(i, &s.CallVoid, &s.Ret)
	case *ir.ReturnVoid:
		fc.add(asm.Ret{})
		return nil
	case *ir.Return:
		if s.Val.IsConst() {
			fc.add(asm.Imm{Out: reg.A0, Val: s.Val.N})
		} else {
			x, err := fc.rload(s.Val, 1)
			if err != nil {
				return err
			}

			fc.add(asm.Mov{Out: reg.A0, In: x})
		}

		fc.add(asm.Ret{})

		return nil
	case *ir.FillZero:
		return fc.fillZero(s)
	default:
		panic(s)
	}
}

func (fc *funContext) binary(s *ir.Binary) error {
	d, err := fc.rstore(s.Dst)
	if err != nil {
		return err
	}

	l, r := s.L, s.R

	// keep constant on the right for commutative operators
	if l.IsConst() && !r.IsConst() && (s.Op == ir.Add || s.Op == ir.Mul) {
		l, r = r, l
	}

	var x Reg

	if r.IsConst() && !l.IsConst() {
		x, err = fc.rload(l, 0)
		if err != nil {
			return err
		}

		c := r.N

		switch {
		case s.Op == ir.Add && !asm.ImmOverflows(c):
			fc.add(asm.AddI{Out: d, In: x, Val: c})
			return fc.dostore(s.Dst, d)
		case s.Op == ir.Sub && !asm.ImmOverflows(-c):
			fc.add(asm.AddI{Out: d, In: x, Val: -c})
			return fc.dostore(s.Dst, d)
		}

		if k, ok := log2(c); ok {
			switch s.Op {
			case ir.Mul:
				fc.add(asm.Shift{Out: d, In: x, Kind: asm.ShiftLeft, N: k})
				return fc.dostore(s.Dst, d)
			case ir.Div:
				fc.divPow2(d, x, k)
				return fc.dostore(s.Dst, d)
			}
		}
	} else {
		x, err = fc.rload(l, 0)
		if err != nil {
			return err
		}
	}

	y, err := fc.rload(r, 1)
	if err != nil {
		return err
	}

	fc.add(asm.Binary{Out: d, Op: s.Op, In: [2]Reg{x, y}})

	return fc.dostore(s.Dst, d)
}

func (fc *funContext) divPow2(d, x Reg, k int) {
	if k == 0 {
		fc.add(asm.Mov{Out: d, In: x})
		return
	}

	fc.add(asm.DivPow2{Out: d, In: x, N: k})
}

func log2(c int) (int, bool) {
	if c <= 0 || c&(c-1) != 0 || c > 1<<30 {
		return 0, false
	}

	return bits.TrailingZeros(uint(c)), true
}

func (fc *funContext) call(i int, c *ir.CallVoid, ret *ir.Val) error {
	destroy, ok := fc.p.Clobber[c.Name]
	if !ok {
		return ir.Userf("func "+fc.Name, "call of undefined function %v", c.Name)
	}

	if len(c.Args) > len(reg.Args) {
		return ir.Userf("func "+fc.Name, "too many arguments to %v: %d", c.Name, len(c.Args))
	}

	saved := clobber.Saved(fc.Func, i, destroy)
	base := fc.SpillSize

	for k, r := range saved {
		fc.add(asm.StoreStack{In: r, Slot: base + k})
	}

	for _, p := range c.Args {
		dst := reg.Arg(p.Index)

		if p.Val.IsConst() {
			fc.add(asm.Imm{Out: dst, Val: p.Val.N})
			continue
		}

		if u, ok := fc.Reguid(p.Val); ok {
			l, ok := fc.Locs[u]
			if !ok {
				return ir.Internalf("no location for argument %v", u)
			}

			// argument registers below this one are already overwritten
			if ai, isArg := l.Reg.IsArg(); !l.Stack() && isArg && ai < p.Index {
				k := indexOf(saved, l.Reg)
				if k < 0 {
					return ir.Internalf("argument %v in %v is not saved", u, l.Reg)
				}

				fc.add(asm.LoadStack{Out: dst, Slot: base + k})

				continue
			}
		}

		x, err := fc.rload(p.Val, 1)
		if err != nil {
			return err
		}

		fc.add(asm.Mov{Out: dst, In: x})
	}

	fc.add(asm.Call{Func: c.Name})

	retReg := Reg(-1)

	if ret != nil && !fc.unused(i, *ret) {
		d, err := fc.rstore(*ret)
		if err != nil {
			return err
		}

		fc.add(asm.Mov{Out: d, In: reg.A0})

		err = fc.dostore(*ret, d)
		if err != nil {
			return err
		}

		if u, ok := fc.Reguid(*ret); ok {
			if l := fc.Locs[u]; !l.Stack() {
				retReg = l.Reg
			}
		}
	}

	for k, r := range saved {
		if r == retReg {
			continue
		}

		fc.add(asm.LoadStack{Out: r, Slot: base + k})
	}

	return nil
}

func (fc *funContext) fillZero(s *ir.FillZero) error {
	l, ok := fc.Arrays[s.Dst.Var()]
	if !ok {
		return ir.Internalf("no location for array %v", fc.Var(s.Dst).Text())
	}

	if l.Span <= unrollZero && !asm.ImmOverflows(4*(l.Slot+l.Span)) {
		for k := 0; k < l.Span; k++ {
			fc.add(asm.StoreStack{In: reg.X0, Slot: l.Slot + k})
		}

		return nil
	}

	p, end := reg.Scratch0, reg.Scratch1
	size := 4 * l.Span

	fc.add(asm.AddrStack{Out: p, Slot: l.Slot})

	if asm.ImmOverflows(size) {
		fc.add(
			asm.Imm{Out: end, Val: size},
			asm.Binary{Out: end, Op: ir.Add, In: [2]Reg{p, end}},
		)
	} else {
		fc.add(asm.AddI{Out: end, In: p, Val: size})
	}

	loop := fc.p.NewLabel()

	fc.add(
		asm.Label{ID: loop},
		asm.Store{Base: p, In: reg.X0},
		asm.AddI{Out: p, In: p, Val: 4},
		asm.BCond{In: [2]Reg{p, end}, Rel: ir.Less, Label: loop},
	)

	return nil
}

// rload makes value available in a register.
// Constants, globals and spilled values go to the scratch register idx.
// Arrays yield their address.
func (fc *funContext) rload(v ir.Val, idx int) (Reg, error) {
	t := scratch[idx]

	if v.IsConst() {
		if v.N == 0 {
			return reg.X0, nil
		}

		fc.add(asm.Imm{Out: t, Val: v.N})

		return t, nil
	}

	if u, ok := fc.Reguid(v); ok {
		l, ok := fc.Locs[u]
		if !ok {
			return 0, ir.Internalf("no location for %v", u)
		}

		if l.Stack() {
			fc.add(asm.LoadStack{Out: t, Slot: l.Slot})
			return t, nil
		}

		return l.Reg, nil
	}

	x := fc.Var(v)

	switch {
	case x.Class == ir.Global && x.IsArray():
		fc.add(asm.AddrGlobal{Out: t, Global: x.Index})
	case x.Class == ir.Global:
		fc.add(asm.LoadGlobal{Out: t, Global: x.Index})
	default:
		l, ok := fc.Arrays[v.Var()]
		if !ok {
			return 0, ir.Internalf("no location for array %v", x.Text())
		}

		fc.add(asm.AddrStack{Out: t, Slot: l.Slot})
	}

	return t, nil
}

// rstore returns register to compute destination value into.
// dostore must be called after the value is there.
func (fc *funContext) rstore(v ir.Val) (Reg, error) {
	if u, ok := fc.Reguid(v); ok {
		l, ok := fc.Locs[u]
		if !ok {
			return 0, ir.Internalf("destination %v is not allocated", u)
		}

		if l.Stack() {
			return reg.Scratch0, nil
		}

		return l.Reg, nil
	}

	if v.IsConst() {
		return 0, ir.Internalf("constant destination: %v", v.N)
	}

	if x := fc.Var(v); x.Class != ir.Global || x.IsArray() {
		return 0, ir.Internalf("bad destination: %v", x.Text())
	}

	return reg.Scratch0, nil
}

func (fc *funContext) dostore(v ir.Val, r Reg) error {
	if u, ok := fc.Reguid(v); ok {
		if l := fc.Locs[u]; l.Stack() {
			fc.add(asm.StoreStack{In: r, Slot: l.Slot})
		}

		return nil
	}

	x := fc.Var(v)

	fc.add(
		asm.AddrGlobal{Out: reg.Scratch1, Global: x.Index},
		asm.Store{Base: reg.Scratch1, In: r},
	)

	return nil
}

// address returns base register and offset fitting an instruction.
func (fc *funContext) address(v ir.Val, off int) (Reg, int, error) {
	b, err := fc.rload(v, 0)
	if err != nil {
		return 0, 0, err
	}

	if !asm.ImmOverflows(off) {
		return b, off, nil
	}

	fc.add(
		asm.Imm{Out: reg.Scratch1, Val: off},
		asm.Binary{Out: reg.Scratch0, Op: ir.Add, In: [2]Reg{b, reg.Scratch1}},
	)

	return reg.Scratch0, 0, nil
}

func (fc *funContext) unused(i int, v ir.Val) bool {
	u, ok := fc.Reguid(v)

	return ok && !fc.Meet[i].IsSet(u)
}

func indexOf(rs []Reg, r Reg) int {
	for i, x := range rs {
		if x == r {
			return i
		}
	}

	return -1
}
