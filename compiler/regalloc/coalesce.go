package regalloc

import (
	"github.com/xmcp/atoz/compiler/ir"
	"github.com/xmcp/atoz/compiler/reg"
)

// Hints are register recommendations.
// Values connected by moves form groups which prefer the same register.
// Some values prefer fixed registers: parameters, call arguments and results.
// Hints are computed once and never modified.
type Hints struct {
	rep     map[ir.Reguid]ir.Reguid
	members map[ir.Reguid][]ir.Reguid
	fixed   map[ir.Reguid]reg.Reg
}

func Coalesce(f *ir.Func) *Hints {
	parent := map[ir.Reguid]ir.Reguid{}

	var find func(u ir.Reguid) ir.Reguid
	find = func(u ir.Reguid) ir.Reguid {
		p, ok := parent[u]
		if !ok || p == u {
			return u
		}

		r := find(p)
		parent[u] = r

		return r
	}

	union := func(a, b ir.Reguid) {
		a, b = find(a), find(b)
		if a == b {
			return
		}

		if b < a {
			a, b = b, a
		}

		parent[a] = a
		parent[b] = a
	}

	fixed := map[ir.Reguid]reg.Reg{}

	prefer := func(v ir.Val, r reg.Reg) {
		u, ok := f.Reguid(v)
		if !ok {
			return
		}

		if _, ok := fixed[u]; !ok {
			fixed[u] = r
		}
	}

	for i := range f.Params {
		if i < len(reg.Args) {
			fixed[ir.ParamReguid(i)] = reg.Arg(i)
		}
	}

	var order []ir.Reguid

	for _, s := range f.Stmts {
		switch s := s.(type) {
		case *ir.Mov:
			a, aok := f.Reguid(s.Dst)
			b, bok := f.Reguid(s.Src)

			if aok && bok {
				union(a, b)
				order = append(order, a, b)
			}
		case *ir.Call:
			prefer(s.Ret, reg.A0)
		case *ir.Return:
			prefer(s.Val, reg.A0)
		}

		if c, ok := ir.Calls(s); ok {
			for _, p := range c.Args {
				if p.Index < len(reg.Args) {
					prefer(p.Val, reg.Arg(p.Index))
				}
			}
		}
	}

	h := &Hints{
		rep:     map[ir.Reguid]ir.Reguid{},
		members: map[ir.Reguid][]ir.Reguid{},
		fixed:   fixed,
	}

	for _, u := range order {
		if _, ok := h.rep[u]; ok {
			continue
		}

		r := find(u)

		h.rep[u] = r
		h.members[r] = append(h.members[r], u)
	}

	return h
}

// Recommend returns preferred registers for the value in decreasing priority.
// locs is consulted for registers already given to group members.
func (h *Hints) Recommend(u ir.Reguid, locs map[ir.Reguid]reg.Loc) (rs []reg.Reg) {
	if r, ok := h.fixed[u]; ok {
		rs = append(rs, r)
	}

	rep, ok := h.rep[u]
	if !ok {
		return rs
	}

	ms := h.members[rep]

	for _, m := range ms {
		if r, ok := h.fixed[m]; ok && m != u {
			rs = append(rs, r)
		}
	}

	for _, m := range ms {
		if l, ok := locs[m]; ok && !l.Stack() && m != u {
			rs = append(rs, l.Reg)
		}
	}

	return rs
}

// Group returns values coalesced with u including itself.
func (h *Hints) Group(u ir.Reguid) []ir.Reguid {
	rep, ok := h.rep[u]
	if !ok {
		return []ir.Reguid{u}
	}

	return h.members[rep]
}
