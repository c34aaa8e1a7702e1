package back

import (
	"context"
	"sort"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/xmcp/atoz/compiler/asm"
	"github.com/xmcp/atoz/compiler/builtin"
	"github.com/xmcp/atoz/compiler/ir"
	"github.com/xmcp/atoz/compiler/reg"
)

type (
	Compiler struct{}

	pkgContext struct {
		*ir.Root

		out *asm.Root
	}

	funContext struct {
		*ir.Func
		p *pkgContext

		tr  tlog.Span
		out *asm.Func
	}
)

func New() *Compiler {
	return &Compiler{}
}

// CompilePackage lowers allocated program to abstract machine instructions.
// Registers must be allocated and clobber sets propagated.
func (c *Compiler) CompilePackage(ctx context.Context, r *ir.Root) (_ *asm.Root, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "back: compile package", "funcs", len(r.Funcs))
	defer tr.Finish("err", &err)

	p := &pkgContext{
		Root: r,
		out:  &asm.Root{},
	}

	p.globals()

	prelude := p.initArrays()
	hasMain := false

	for _, f := range r.Funcs {
		var af *asm.Func

		if f.Builtin != "" {
			af, err = builtin.Lower(f.Builtin, r)
		} else {
			af, err = c.compileFunc(ctx, p, f)
		}
		if err != nil {
			return nil, errors.Wrap(err, "func %v", f.Name)
		}

		if f.Name == "main" {
			af.Body = append(prelude, af.Body...)
			hasMain = true
		}

		p.out.Funcs = append(p.out.Funcs, af)
	}

	if len(prelude) != 0 && !hasMain {
		return nil, ir.Userf("", "global array initializers need main function")
	}

	return p.out, nil
}

func (p *pkgContext) globals() {
	for _, id := range p.Globals {
		v := p.Var(id)

		g := asm.Global{
			Index: v.Index,
			Array: v.IsArray(),
			Words: v.Elems(),
		}

		for _, in := range p.Inits {
			if in.Var == id && in.Off < 0 {
				g.Init = in.Val
			}
		}

		p.out.Globals = append(p.out.Globals, g)
	}
}

// initArrays makes code storing global array initializers.
func (p *pkgContext) initArrays() (code []asm.Instr) {
	byVar := map[ir.VarID][]ir.Init{}

	for _, in := range p.Inits {
		if in.Off >= 0 && in.Val != 0 {
			byVar[in.Var] = append(byVar[in.Var], in)
		}
	}

	for _, id := range p.Globals {
		ins := byVar[id]
		if len(ins) == 0 {
			continue
		}

		sort.SliceStable(ins, func(i, j int) bool { return ins[i].Off < ins[j].Off })

		code = append(code, asm.AddrGlobal{Out: reg.Scratch1, Global: p.Var(id).Index})
		base := 0

		for _, in := range ins {
			delta := in.Off - base

			if asm.ImmOverflows(delta) {
				code = append(code,
					asm.Imm{Out: reg.Scratch0, Val: delta},
					asm.Binary{Out: reg.Scratch1, Op: ir.Add, In: [2]reg.Reg{reg.Scratch1, reg.Scratch0}},
				)

				base, delta = in.Off, 0
			}

			code = append(code,
				asm.Imm{Out: reg.Scratch0, Val: in.Val},
				asm.Store{Base: reg.Scratch1, Off: delta, In: reg.Scratch0},
			)
		}
	}

	return code
}

func (c *Compiler) compileFunc(ctx context.Context, p *pkgContext, f *ir.Func) (_ *asm.Func, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "back: compile func", "name", f.Name)
	defer tr.Finish("err", &err)

	fc := &funContext{
		Func: f,
		p:    p,
		tr:   tr,
		out: &asm.Func{
			Name:   f.Name,
			Params: len(f.Params),
			Stack:  f.SpillSize + f.CallerSave,
		},
	}

	for i, s := range f.Stmts {
		err = fc.stmt(i, s)
		if err != nil {
			return nil, errors.Wrap(err, "stmt %d", i)
		}
	}

	if tr.If("dump_func_after") {
		for i, x := range fc.out.Body {
			tr.Printw("instr", "i", i, "typ", tlog.NextAsType, x, "val", x)
		}
	}

	return fc.out, nil
}
