package irgen

import (
	"github.com/xmcp/atoz/compiler/ast"
	"github.com/xmcp/atoz/compiler/ir"
	"github.com/xmcp/atoz/compiler/reg"
)

func (fg *funGen) expr(e ast.Expr) (v ir.Val, err error) {
	if c, ok := constValue(e); ok {
		return ir.Const(c), nil
	}

	switch e := e.(type) {
	case *ast.LVal:
		return fg.lval(e)
	case *ast.Call:
		return fg.call(e, true)
	case *ast.Unary:
		x, err := fg.expr(e.X)
		if err != nil {
			return v, err
		}

		if e.Op == ir.Pos {
			return x, nil
		}

		t := fg.f.NewTemp()
		fg.add(&ir.Unary{Dst: t, Op: e.Op, X: x})

		return t, nil
	case *ast.Binary:
		if e.Op == ir.And || e.Op == ir.Or {
			return fg.logical(e)
		}

		if c, ok := constValue(e.R); ok && c == 0 && (e.Op == ir.Div || e.Op == ir.Mod) {
			return v, ir.Userf(fg.where(ast.Pos{}), "division by constant zero")
		}

		l, err := fg.expr(e.L)
		if err != nil {
			return v, err
		}

		r, err := fg.expr(e.R)
		if err != nil {
			return v, err
		}

		t := fg.f.NewTemp()
		fg.add(&ir.Binary{Dst: t, L: l, Op: e.Op, R: r})

		return t, nil
	default:
		panic(e)
	}
}

// logical evaluates && and || to 0 or 1 with short circuit.
func (fg *funGen) logical(e *ast.Binary) (ir.Val, error) {
	or := e.Op == ir.Or
	short, rest := 0, 1

	if or {
		short, rest = 1, 0
	}

	t := fg.f.NewTemp()
	end := fg.r.NewLabel()

	fg.add(&ir.Mov{Dst: t, Src: ir.Const(short)})

	if err := fg.branch(e.L, end, or); err != nil {
		return t, err
	}

	if err := fg.branch(e.R, end, or); err != nil {
		return t, err
	}

	fg.add(&ir.Mov{Dst: t, Src: ir.Const(rest)})
	fg.label(end)

	return t, nil
}

// branch jumps to label if e is truthy == want.
func (fg *funGen) branch(e ast.Expr, label int, want bool) error {
	if c, ok := constValue(e); ok {
		if (c != 0) == want {
			fg.add(&ir.Goto{Label: label})
		}

		return nil
	}

	switch x := e.(type) {
	case *ast.Unary:
		if x.Op == ir.Not {
			return fg.branch(x.X, label, !want)
		}
	case *ast.Binary:
		and := x.Op == ir.And

		if and || x.Op == ir.Or {
			if and == want {
				skip := fg.r.NewLabel()

				if err := fg.branch(x.L, skip, !want); err != nil {
					return err
				}

				if err := fg.branch(x.R, label, want); err != nil {
					return err
				}

				fg.label(skip)

				return nil
			}

			if err := fg.branch(x.L, label, want); err != nil {
				return err
			}

			return fg.branch(x.R, label, want)
		}
	}

	v, err := fg.expr(e)
	if err != nil {
		return err
	}

	rel := ir.Equal
	if want {
		rel = ir.NotEqual
	}

	fg.add(&ir.CondGoto{L: v, Rel: rel, R: ir.Const(0), Label: label})

	return nil
}

func (fg *funGen) call(c *ast.Call, value bool) (ir.Val, error) {
	name := c.Name
	args := c.Args

	if rt, ok := timers[name]; ok {
		name = rt
		args = []ast.Expr{&ast.Num{Val: c.Line}}
	}

	if len(args) > len(reg.Args) {
		return ir.Val{}, ir.Userf(fg.where(c.Pos), "too many arguments to %v: %d", c.Name, len(args))
	}

	if c.Func != nil {
		if len(args) != len(c.Func.Params) {
			return ir.Val{}, ir.Userf(fg.where(c.Pos), "%v expects %d arguments, got %d", c.Name, len(c.Func.Params), len(args))
		}

		if value && c.Func.Void {
			return ir.Val{}, ir.Userf(fg.where(c.Pos), "void function %v used as value", c.Name)
		}
	}

	ps := make([]ir.Param, len(args))

	for i, a := range args {
		v, err := fg.expr(a)
		if err != nil {
			return ir.Val{}, err
		}

		ps[i] = ir.Param{Index: i, Val: v}
	}

	cv := ir.CallVoid{Name: name, Args: ps}

	if !value {
		fg.add(&cv)
		return ir.Val{}, nil
	}

	t := fg.f.NewTemp()
	fg.add(&ir.Call{CallVoid: cv, Ret: t})

	return t, nil
}

func (fg *funGen) lval(e *ast.LVal) (ir.Val, error) {
	id, err := fg.lookup(e)
	if err != nil {
		return ir.Val{}, err
	}

	d := e.Def

	if !d.IsArray() {
		return ir.Ref(id), nil
	}

	if len(e.Index) > len(d.Dims) {
		return ir.Val{}, ir.Userf(fg.where(e.Pos), "too many indexes for %v", d.Name)
	}

	base, off, err := fg.address(id, e)
	if err != nil {
		return ir.Val{}, err
	}

	if len(e.Index) < len(d.Dims) {
		// subarray is passed as a pointer
		if off == 0 {
			return base, nil
		}

		t := fg.f.NewTemp()
		fg.add(&ir.Binary{Dst: t, L: base, Op: ir.Add, R: ir.Const(off)})

		return t, nil
	}

	t := fg.f.NewTemp()
	fg.add(&ir.ArrayGet{Dst: t, Src: base, Off: off})

	return t, nil
}

// address computes array element location as base value and constant byte offset.
func (fg *funGen) address(id ir.VarID, e *ast.LVal) (base ir.Val, off int, err error) {
	d := e.Def
	base = ir.Ref(id)

	var dyn ir.Val
	hasDyn := false

	for i, x := range e.Index {
		stride := 4 * d.Stride(i)

		if c, ok := constValue(x); ok {
			if c < 0 || i != 0 && c >= d.Dims[i] || i == 0 && d.Dims[0] != 0 && c >= d.Dims[0] {
				return base, 0, ir.Userf(fg.where(e.Pos), "index %d out of range for %v", c, d.Name)
			}

			off += c * stride

			continue
		}

		v, err := fg.expr(x)
		if err != nil {
			return base, 0, err
		}

		t := fg.f.NewTemp()
		fg.add(&ir.Binary{Dst: t, L: v, Op: ir.Mul, R: ir.Const(stride)})

		if hasDyn {
			s := fg.f.NewTemp()
			fg.add(&ir.Binary{Dst: s, L: dyn, Op: ir.Add, R: t})
			t = s
		}

		dyn, hasDyn = t, true
	}

	if hasDyn {
		p := fg.f.NewTemp()
		fg.add(&ir.Binary{Dst: p, L: base, Op: ir.Add, R: dyn})
		base = p
	}

	return base, off, nil
}

func (fg *funGen) lookup(e *ast.LVal) (ir.VarID, error) {
	if id, ok := fg.vars[e.Def]; ok {
		return id, nil
	}

	if id, ok := fg.globals[e.Def]; ok {
		return id, nil
	}

	return -1, ir.Userf(fg.where(e.Pos), "undefined variable %v", e.Def.Name)
}

func (fg *funGen) where(p ast.Pos) string {
	return where(p, "func "+fg.fd.Name)
}

// constValue folds constant expressions including constant scalar variables.
func constValue(e ast.Expr) (int, bool) {
	switch e := e.(type) {
	case nil:
		return 0, true
	case *ast.Num:
		return e.Val, true
	case *ast.LVal:
		d := e.Def

		if !d.Const || d.Init == nil {
			return 0, false
		}

		k := 0

		for i, x := range e.Index {
			c, ok := constValue(x)
			if !ok {
				return 0, false
			}

			k += c * d.Stride(i)
		}

		if len(e.Index) != len(d.Dims) || k < 0 || k >= d.Elems() {
			return 0, false
		}

		if k >= len(d.Init) {
			return 0, true
		}

		return constValue(d.Init[k])
	case *ast.Unary:
		x, ok := constValue(e.X)
		if !ok {
			return 0, false
		}

		switch e.Op {
		case ir.Neg:
			return -x, true
		case ir.Not:
			return b2i(x == 0), true
		default:
			return x, true
		}
	case *ast.Binary:
		l, ok := constValue(e.L)
		if !ok {
			return 0, false
		}

		r, ok := constValue(e.R)
		if !ok {
			return 0, false
		}

		return fold(e.Op, l, r)
	}

	return 0, false
}

func fold(op ir.BinOp, l, r int) (int, bool) {
	x, y := int32(l), int32(r)

	switch op {
	case ir.Add:
		return int(x + y), true
	case ir.Sub:
		return int(x - y), true
	case ir.Mul:
		return int(x * y), true
	case ir.Div:
		if y == 0 {
			return 0, false
		}

		return int(x / y), true
	case ir.Mod:
		if y == 0 {
			return 0, false
		}

		return int(x % y), true
	case ir.Lt:
		return b2i(x < y), true
	case ir.Gt:
		return b2i(x > y), true
	case ir.Le:
		return b2i(x <= y), true
	case ir.Ge:
		return b2i(x >= y), true
	case ir.Eq:
		return b2i(x == y), true
	case ir.Ne:
		return b2i(x != y), true
	case ir.And:
		return b2i(x != 0 && y != 0), true
	case ir.Or:
		return b2i(x != 0 || y != 0), true
	}

	return 0, false
}

func b2i(x bool) int {
	if x {
		return 1
	}

	return 0
}
