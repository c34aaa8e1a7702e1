package irgen

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/xmcp/atoz/compiler/ast"
	"github.com/xmcp/atoz/compiler/builtin"
	"github.com/xmcp/atoz/compiler/ir"
	"github.com/xmcp/atoz/compiler/reg"
)

type (
	Options struct {
		NoBuiltins bool
	}

	gen struct {
		r    *ir.Root
		opts Options

		globals map[*ast.Def]ir.VarID
	}

	funGen struct {
		*gen

		fd *ast.FuncDef
		f  *ir.Func
		tr tlog.Span

		vars  map[*ast.Def]ir.VarID
		loops []loop
	}

	loop struct {
		head int
		end  int
	}
)

// Runtime timing functions get the source line as an argument.
var timers = map[string]string{
	"starttime": "_sysy_starttime",
	"stoptime":  "_sysy_stoptime",
}

// Generate walks the tree once and makes IR.
func Generate(ctx context.Context, cu *ast.CompUnit, opts Options) (r *ir.Root, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "irgen", "globals", len(cu.Globals), "funcs", len(cu.Funcs))
	defer tr.Finish("err", &err)

	g := &gen{
		r:       &ir.Root{},
		opts:    opts,
		globals: map[*ast.Def]ir.VarID{},
	}

	for _, d := range cu.Globals {
		err = g.global(d)
		if err != nil {
			return nil, err
		}
	}

	for _, fd := range cu.Funcs {
		err = g.function(ctx, fd)
		if err != nil {
			return nil, err
		}
	}

	return g.r, nil
}

func (g *gen) global(d *ast.Def) error {
	id := g.r.NewVar(ir.Var{Name: d.Name, Class: ir.Global, Dims: dims(d)})

	g.r.Globals = append(g.r.Globals, id)
	g.globals[d] = id

	for k, e := range d.Init {
		if e == nil {
			continue
		}

		c, ok := constValue(e)
		if !ok {
			return ir.Userf(where(d.Pos, "var "+d.Name), "global initializer is not constant")
		}

		if c == 0 {
			continue
		}

		off := 4 * k
		if !d.IsArray() {
			off = -1
		}

		g.r.Inits = append(g.r.Inits, ir.Init{Var: id, Off: off, Val: c})
	}

	return nil
}

func (g *gen) function(ctx context.Context, fd *ast.FuncDef) (err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "irgen: func", "name", fd.Name)
	defer tr.Finish("err", &err)

	if len(fd.Params) > len(reg.Args) {
		return ir.Userf(where(fd.Pos, "func "+fd.Name), "too many parameters: %d", len(fd.Params))
	}

	fg := &funGen{
		gen:  g,
		fd:   fd,
		f:    g.r.NewFunc(fd.Name, fd.Void),
		tr:   tr,
		vars: map[*ast.Def]ir.VarID{},
	}

	for i, p := range fd.Params {
		id := g.r.NewVar(ir.Var{Name: p.Name, Class: ir.Arg, Index: i, Dims: dims(p)})

		fg.f.Params = append(fg.f.Params, id)
		fg.vars[p] = id
	}

	if !g.opts.NoBuiltins {
		if name, ok := builtin.Match(fd); ok {
			fg.f.Builtin = name
			tr.Printw("builtin pattern matched", "func", fd.Name, "pattern", name)
		}
	}

	err = fg.stmt(fd.Body)
	if err != nil {
		return err
	}

	if fd.Void {
		fg.add(&ir.ReturnVoid{})
	} else {
		fg.add(&ir.Return{Val: ir.Const(0)})
	}

	if tr.If("dump_irgen") {
		tr.Printw("generated", "func", fd.Name, "stmts", len(fg.f.Stmts), "temps", len(fg.f.Temps))
	}

	return nil
}

func (fg *funGen) add(s ...any) {
	fg.f.Stmts = append(fg.f.Stmts, s...)
}

func (fg *funGen) label(id int) {
	fg.add(&ir.Label{ID: id})
}

func (fg *funGen) stmt(s any) (err error) {
	switch s := s.(type) {
	case nil:
	case *ast.Block:
		for _, x := range s.Items {
			err = fg.stmt(x)
			if err != nil {
				return err
			}
		}
	case *ast.Def:
		return fg.local(s)
	case *ast.Assign:
		return fg.assign(s)
	case *ast.ExprStmt:
		if c, ok := s.X.(*ast.Call); ok {
			_, err = fg.call(c, false)
			return err
		}

		_, err = fg.expr(s.X)

		return err
	case *ast.If:
		els := fg.r.NewLabel()

		err = fg.branch(s.Cond, els, false)
		if err != nil {
			return err
		}

		err = fg.stmt(s.Then)
		if err != nil {
			return err
		}

		if s.Else == nil {
			fg.label(els)
			return nil
		}

		end := fg.r.NewLabel()

		fg.add(&ir.Goto{Label: end})
		fg.label(els)

		err = fg.stmt(s.Else)
		if err != nil {
			return err
		}

		fg.label(end)
	case *ast.While:
		l := loop{head: fg.r.NewLabel(), end: fg.r.NewLabel()}

		fg.label(l.head)

		err = fg.branch(s.Cond, l.end, false)
		if err != nil {
			return err
		}

		fg.loops = append(fg.loops, l)

		err = fg.stmt(s.Body)
		if err != nil {
			return err
		}

		fg.loops = fg.loops[:len(fg.loops)-1]

		fg.add(&ir.Goto{Label: l.head})
		fg.label(l.end)
	case *ast.Break:
		if len(fg.loops) == 0 {
			return ir.Userf(fg.where(s.Pos), "break outside of loop")
		}

		fg.add(&ir.Goto{Label: fg.loops[len(fg.loops)-1].end})
	case *ast.Continue:
		if len(fg.loops) == 0 {
			return ir.Userf(fg.where(s.Pos), "continue outside of loop")
		}

		fg.add(&ir.Goto{Label: fg.loops[len(fg.loops)-1].head})
	case *ast.Return:
		switch {
		case s.Val == nil && !fg.fd.Void:
			return ir.Userf(fg.where(s.Pos), "return without value in int function")
		case s.Val != nil && fg.fd.Void:
			return ir.Userf(fg.where(s.Pos), "return with value in void function")
		case s.Val == nil:
			fg.add(&ir.ReturnVoid{})
			return nil
		}

		v, err := fg.expr(s.Val)
		if err != nil {
			return err
		}

		fg.add(&ir.Return{Val: v})
	default:
		panic(s)
	}

	return nil
}

func (fg *funGen) local(d *ast.Def) error {
	id := fg.r.NewVar(ir.Var{Name: d.Name, Class: ir.Local, Dims: dims(d)})

	fg.f.Locals = append(fg.f.Locals, id)
	fg.vars[d] = id

	if d.Init == nil {
		return nil
	}

	if !d.IsArray() {
		v, err := fg.expr(d.Init[0])
		if err != nil {
			return err
		}

		fg.add(&ir.Mov{Dst: ir.Ref(id), Src: v})

		return nil
	}

	partial := len(d.Init) < d.Elems()

	for _, e := range d.Init {
		if e == nil {
			partial = true
			break
		}
	}

	if partial {
		fg.add(&ir.FillZero{Dst: ir.Ref(id)})
	}

	for k, e := range d.Init {
		if e == nil {
			continue
		}

		if c, ok := constValue(e); ok && c == 0 && partial {
			continue
		}

		v, err := fg.expr(e)
		if err != nil {
			return err
		}

		fg.add(&ir.ArraySet{Dst: ir.Ref(id), Off: 4 * k, Src: v})
	}

	return nil
}

func (fg *funGen) assign(s *ast.Assign) error {
	if s.LVal.Def.Const {
		return ir.Userf(fg.where(s.Pos), "assignment to constant %v", s.LVal.Def.Name)
	}

	v, err := fg.expr(s.Val)
	if err != nil {
		return err
	}

	id, err := fg.lookup(s.LVal)
	if err != nil {
		return err
	}

	if !s.LVal.Def.IsArray() {
		fg.add(&ir.Mov{Dst: ir.Ref(id), Src: v})
		return nil
	}

	if len(s.LVal.Index) != len(s.LVal.Def.Dims) {
		return ir.Userf(fg.where(s.Pos), "assignment to array %v", s.LVal.Def.Name)
	}

	base, off, err := fg.address(id, s.LVal)
	if err != nil {
		return err
	}

	fg.add(&ir.ArraySet{Dst: base, Off: off, Src: v})

	return nil
}

func dims(d *ast.Def) []int {
	if !d.IsArray() {
		return nil
	}

	return append([]int{}, d.Dims...)
}

func where(p ast.Pos, what string) string {
	if s := p.String(); s != "" {
		return s
	}

	return what
}
