package peephole

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/xmcp/atoz/compiler/ir"
)

// Optimize applies local rewrites until nothing changes.
//
//	t = a op b; x = t            =>  x = a op b
//	t = a rel b; if t != 0 goto L  =>  if a rel b goto L
//	t = a rel b; if t == 0 goto L  =>  if a !rel b goto L
//
// The temporary must have no other uses.
func Optimize(ctx context.Context, f *ir.Func) (n int) {
	tr := tlog.SpanFromContext(ctx)

	for {
		uses := countUses(f)
		changed := 0

		out := f.Stmts[:0]

		for _, s := range f.Stmts {
			if len(out) == 0 {
				out = append(out, s)
				continue
			}

			last := out[len(out)-1]

			if r, ok := fuseMov(last, s, uses); ok {
				out[len(out)-1] = r
				changed++

				continue
			}

			if r, ok := fuseBranch(last, s, uses); ok {
				out[len(out)-1] = r
				changed++

				continue
			}

			out = append(out, s)
		}

		for i := len(out); i < len(f.Stmts); i++ {
			f.Stmts[i] = nil
		}

		f.Stmts = out
		n += changed

		if changed == 0 {
			break
		}
	}

	dropTemps(f)

	tr.V("peephole").Printw("peephole done", "func", f.Name, "rewrites", n)

	return n
}

func fuseMov(last, s any, uses map[int]int) (any, bool) {
	m, ok := s.(*ir.Mov)
	if !ok || !m.Src.IsTemp() || uses[m.Src.N] != 1 {
		return nil, false
	}

	switch last.(type) {
	case *ir.Binary, *ir.Unary, *ir.Mov, *ir.Call:
	default:
		return nil, false
	}

	dst, _ := ir.Dst(last)
	if dst != m.Src {
		return nil, false
	}

	ir.SetDst(last, m.Dst)

	return last, true
}

func fuseBranch(last, s any, uses map[int]int) (any, bool) {
	c, ok := s.(*ir.CondGoto)
	if !ok || !c.L.IsTemp() || c.R != ir.Const(0) || uses[c.L.N] != 1 {
		return nil, false
	}

	if c.Rel != ir.Equal && c.Rel != ir.NotEqual {
		return nil, false
	}

	b, ok := last.(*ir.Binary)
	if !ok || b.Dst != c.L {
		return nil, false
	}

	rel, ok := b.Op.Rel()
	if !ok {
		return nil, false
	}

	if c.Rel == ir.Equal {
		rel = rel.Invert()
	}

	return &ir.CondGoto{L: b.L, Rel: rel, R: b.R, Label: c.Label}, true
}

func countUses(f *ir.Func) map[int]int {
	uses := map[int]int{}

	add := func(v ir.Val) {
		if v.IsTemp() {
			uses[v.N]++
		}
	}

	for _, s := range f.Stmts {
		switch s := s.(type) {
		case *ir.Binary:
			add(s.L)
			add(s.R)
		case *ir.Unary:
			add(s.X)
		case *ir.Mov:
			add(s.Src)
		case *ir.ArraySet:
			add(s.Dst)
			add(s.Src)
		case *ir.ArrayGet:
			add(s.Src)
		case *ir.CondGoto:
			add(s.L)
			add(s.R)
		case *ir.Return:
			add(s.Val)
		}

		if c, ok := ir.Calls(s); ok {
			for _, p := range c.Args {
				add(p.Val)
			}
		}
	}

	return uses
}

// dropTemps removes declarations of temporaries no statement mentions.
func dropTemps(f *ir.Func) {
	seen := map[int]bool{}

	mark := func(v ir.Val) {
		if v.IsTemp() {
			seen[v.N] = true
		}
	}

	for _, s := range f.Stmts {
		if d, ok := ir.Dst(s); ok {
			mark(d)
		}
	}

	for t := range countUses(f) {
		seen[t] = true
	}

	temps := f.Temps[:0]

	for _, t := range f.Temps {
		if seen[t] {
			temps = append(temps, t)
		}
	}

	f.Temps = temps
}
