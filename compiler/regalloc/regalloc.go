package regalloc

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/xmcp/atoz/compiler/cfg"
	"github.com/xmcp/atoz/compiler/graph"
	"github.com/xmcp/atoz/compiler/ir"
	"github.com/xmcp/atoz/compiler/live"
	"github.com/xmcp/atoz/compiler/reg"
)

type (
	Options struct {
		// Regs is the register file in priority order.
		// reg.Allocatable is used if empty.
		Regs []reg.Reg
	}

	Spill struct {
		Node   ir.Reguid
		Degree int
	}

	Stats struct {
		Nodes  int
		Spills []Spill
		Swaps  int
	}
)

// Func analyzes the function and allocates its registers.
// Unreachable statements are removed on the way.
func Func(ctx context.Context, f *ir.Func, opts Options) (st Stats, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "regalloc: func", "func", f.Name)
	defer tr.Finish("err", &err)

	var g *graph.Graph

	for {
		err = cfg.Connect(ctx, f)
		if err != nil {
			return st, errors.Wrap(err, "cfg")
		}

		err = live.Analyze(ctx, f)
		if err != nil {
			return st, errors.Wrap(err, "liveness")
		}

		gr, reach := graph.Build(ctx, f)
		g = gr

		if cfg.Prune(ctx, f, reach) == 0 {
			break
		}
	}

	h := Coalesce(f)

	st, err = Allocate(ctx, f, g, h, opts)
	if err != nil {
		return st, errors.Wrap(err, "allocate")
	}

	err = Verify(f)
	if err != nil {
		return st, errors.Wrap(err, "verify")
	}

	if tr.If("dump_regalloc") {
		for u, l := range f.Locs {
			tr.Printw("location", "node", u, "loc", l)
		}
	}

	return st, nil
}

// Allocate colors the graph. The graph is consumed.
func Allocate(ctx context.Context, f *ir.Func, g *graph.Graph, h *Hints, opts Options) (st Stats, err error) {
	tr := tlog.SpanFromContext(ctx)

	regs := opts.Regs
	if len(regs) == 0 {
		regs = reg.Allocatable
	}

	k := len(regs)

	f.Locs = map[ir.Reguid]reg.Loc{}
	f.Arrays = map[ir.VarID]reg.Loc{}

	var slot int

	for _, id := range f.Locals {
		v := f.Root.Var(id)
		if !v.IsArray() {
			continue
		}

		f.Arrays[id] = reg.InStack(slot, v.Elems())
		slot += v.Elems()
	}

	st.Nodes = g.Len()

	var stack []ir.Reguid

	for g.Len() != 0 {
		u, ok := simplify(g, k)
		if ok {
			g.Remove(u)
			stack = append(stack, u)

			continue
		}

		u, ok = spillCandidate(g)
		if !ok {
			// only parameters are left, they are colored into argument registers
			u, _ = first(g)
			g.Remove(u)
			stack = append(stack, u)

			continue
		}

		tr.Printw("spill", "func", f.Name, "node", u, "degree", g.Degree(u), "slot", slot)

		st.Spills = append(st.Spills, Spill{Node: u, Degree: g.Degree(u)})
		f.Locs[u] = reg.InStack(slot, 1)
		slot++

		g.Remove(u)
	}

	f.SpillSize = slot

	for i := len(stack) - 1; i >= 0; i-- {
		u := stack[i]

		var busy reg.Set

		g.Removed[u].Range(func(v ir.Reguid) bool {
			if l, ok := f.Locs[v]; ok && !l.Stack() {
				busy = busy.Add(l.Reg)
			}

			return true
		})

		r, ok := choose(candidates(regs, u), busy, h.Recommend(u, f.Locs))
		if !ok {
			return st, ir.Internalf("func %v: no register for %v", f.Name, u)
		}

		f.Locs[u] = reg.InReg(r)
	}

	st.Swaps, err = fixArgs(ctx, f)
	if err != nil {
		return st, err
	}

	return st, nil
}

func simplify(g *graph.Graph, k int) (r ir.Reguid, ok bool) {
	g.Nodes.Range(func(u ir.Reguid) bool {
		if g.Degree(u) < k {
			r, ok = u, true
		}

		return !ok
	})

	return
}

// spillCandidate picks a non-parameter node with the highest degree.
func spillCandidate(g *graph.Graph) (r ir.Reguid, ok bool) {
	best := -1

	g.Nodes.Range(func(u ir.Reguid) bool {
		if _, isParam := u.IsParam(); isParam {
			return true
		}

		if d := g.Degree(u); d > best {
			r, ok, best = u, true, d
		}

		return true
	})

	return
}

// candidates adds argument register of a parameter if the register file lacks it.
func candidates(regs []reg.Reg, u ir.Reguid) []reg.Reg {
	i, ok := u.IsParam()
	if !ok || i >= len(reg.Args) {
		return regs
	}

	a := reg.Arg(i)

	for _, r := range regs {
		if r == a {
			return regs
		}
	}

	return append(regs[:len(regs):len(regs)], a)
}

func first(g *graph.Graph) (r ir.Reguid, ok bool) {
	g.Nodes.Range(func(u ir.Reguid) bool {
		r, ok = u, true
		return false
	})

	return
}

func choose(regs []reg.Reg, busy reg.Set, hints []reg.Reg) (reg.Reg, bool) {
	allowed := reg.Of(regs...)

	for _, r := range hints {
		if allowed.Has(r) && !busy.Has(r) {
			return r, true
		}
	}

	for _, r := range regs {
		if !busy.Has(r) {
			return r, true
		}
	}

	return 0, false
}

// fixArgs puts every allocated parameter into its argument register
// by swapping register pairs through the whole function.
func fixArgs(ctx context.Context, f *ir.Func) (swaps int, err error) {
	tr := tlog.SpanFromContext(ctx)

	for i := range f.Params {
		u := ir.ParamReguid(i)

		l, ok := f.Locs[u]
		if !ok {
			tr.Printw("warning: parameter is not used", "func", f.Name, "param", i)
			continue
		}

		if i >= len(reg.Args) {
			return swaps, ir.Internalf("func %v: too many parameters: %d", f.Name, len(f.Params))
		}

		if l.Stack() {
			return swaps, ir.Internalf("func %v: parameter %v spilled", f.Name, u)
		}

		want := reg.Arg(i)
		if l.Reg == want {
			continue
		}

		have := l.Reg

		for v, l := range f.Locs {
			if l.Stack() {
				continue
			}

			switch l.Reg {
			case have:
				f.Locs[v] = reg.InReg(want)
			case want:
				f.Locs[v] = reg.InReg(have)
			}
		}

		tr.V("regalloc_swap").Printw("swap registers", "func", f.Name, "param", i, "a", have, "b", want)

		swaps++
	}

	return swaps, nil
}

// Verify checks that values live together have distinct locations.
func Verify(f *ir.Func) error {
	type key struct {
		stack bool
		n     int
	}

	for i := range f.Stmts {
		seen := map[key]ir.Reguid{}

		var err error

		f.Live[i].Range(func(u ir.Reguid) bool {
			l, ok := f.Locs[u]
			if !ok {
				err = ir.Internalf("func %v: stmt %d: no location for %v", f.Name, i, u)
				return false
			}

			k := key{stack: l.Stack(), n: int(l.Reg)}
			if l.Stack() {
				k.n = l.Slot
			}

			if v, ok := seen[k]; ok {
				err = ir.Internalf("func %v: stmt %d: %v and %v share %v", f.Name, i, v, u, l)
				return false
			}

			seen[k] = u

			return true
		})

		if err != nil {
			return err
		}
	}

	return nil
}
