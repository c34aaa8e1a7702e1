package clobber

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/xmcp/atoz/compiler/ir"
	"github.com/xmcp/atoz/compiler/reg"
)

// Runtime functions are provided by the environment and may clobber anything.
var Runtime = []string{
	"getint", "getch", "getarray",
	"putint", "putch", "putarray",
	"_sysy_starttime", "_sysy_stoptime",
}

// Propagate computes registers each function destroys, including through its callees,
// and the caller-save area size of each function.
// Registers must be allocated.
// fixed maps functions with hand-written bodies to their sets.
func Propagate(ctx context.Context, r *ir.Root, fixed map[string]reg.Set) (err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "clobber: propagate")
	defer tr.Finish("err", &err)

	r.Clobber = map[string]reg.Set{}

	for _, name := range Runtime {
		r.Clobber[name] = reg.All
	}

	for _, f := range r.Funcs {
		if s, ok := fixed[f.Name]; ok {
			r.Clobber[f.Name] = s
			continue
		}

		r.Clobber[f.Name] = Direct(f)
	}

	for _, f := range r.Funcs {
		err = forCalls(f, func(i int, c *ir.CallVoid) error {
			if _, ok := r.Clobber[c.Name]; !ok {
				return ir.Userf("func "+f.Name, "call of undefined function %v", c.Name)
			}

			return nil
		})
		if err != nil {
			return err
		}
	}

	for iter := 1; ; iter++ {
		changed := false

		for _, f := range r.Funcs {
			if _, ok := fixed[f.Name]; ok {
				continue
			}

			s := r.Clobber[f.Name]

			_ = forCalls(f, func(i int, c *ir.CallVoid) error {
				s = s.Union(r.Clobber[c.Name])
				return nil
			})

			if s != r.Clobber[f.Name] {
				r.Clobber[f.Name] = s
				changed = true
			}
		}

		if !changed {
			tr.V("clobber_stats").Printw("fixpoint reached", "iterations", iter)
			break
		}
	}

	for _, f := range r.Funcs {
		f.CallerSave = CallerSave(f, r.Clobber)

		tr.V("clobber").Printw("destroy set", "func", f.Name, "set", r.Clobber[f.Name], "caller_save", f.CallerSave)
	}

	return nil
}

// Direct is the set of registers the function body writes itself.
func Direct(f *ir.Func) (s reg.Set) {
	for _, l := range f.Locs {
		if !l.Stack() {
			s = s.Add(l.Reg)
		}
	}

	for i := range f.Params {
		if i < len(reg.Args) {
			s = s.Add(reg.Arg(i))
		}
	}

	if !f.Void {
		s = s.Add(reg.A0)
	}

	return s
}

// CallerSave is the max number of live values held in registers clobbered by a call.
func CallerSave(f *ir.Func, sets map[string]reg.Set) (n int) {
	_ = forCalls(f, func(i int, c *ir.CallVoid) error {
		n = max(n, len(Saved(f, i, sets[c.Name])))
		return nil
	})

	return n
}

// Saved returns registers to preserve around call at statement i in ascending order.
func Saved(f *ir.Func, i int, destroy reg.Set) []reg.Reg {
	var s reg.Set

	f.Live[i].Range(func(u ir.Reguid) bool {
		if l, ok := f.Locs[u]; ok && !l.Stack() && destroy.Has(l.Reg) {
			s = s.Add(l.Reg)
		}

		return true
	})

	return s.Slice()
}

func forCalls(f *ir.Func, fn func(i int, c *ir.CallVoid) error) error {
	for i, s := range f.Stmts {
		c, ok := ir.Calls(s)
		if !ok {
			continue
		}

		if err := fn(i, c); err != nil {
			return err
		}
	}

	return nil
}
