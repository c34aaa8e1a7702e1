package cfg

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/xmcp/atoz/compiler/ir"
	"github.com/xmcp/atoz/compiler/set"
)

// Connect fills label table and successor/predecessor lists.
func Connect(ctx context.Context, f *ir.Func) (err error) {
	f.Labels = map[int]int{}

	for i, s := range f.Stmts {
		if l, ok := s.(*ir.Label); ok {
			f.Labels[l.ID] = i
		}
	}

	n := len(f.Stmts)

	f.Next = make([][]int, n)
	f.Prev = make([][]int, n)

	link := func(i, p int) {
		if i >= n {
			return
		}

		f.Next[p] = append(f.Next[p], i)
		f.Prev[i] = append(f.Prev[i], p)
	}

	target := func(l int) (int, error) {
		i, ok := f.Labels[l]
		if !ok {
			return -1, ir.Internalf("func %v: goto to undefined label l%d", f.Name, l)
		}

		return i, nil
	}

	for i, s := range f.Stmts {
		switch s := s.(type) {
		case *ir.Goto:
			j, err := target(s.Label)
			if err != nil {
				return err
			}

			link(j, i)
		case *ir.CondGoto:
			j, err := target(s.Label)
			if err != nil {
				return err
			}

			link(j, i)
			link(i+1, i)
		case *ir.Return, *ir.ReturnVoid:
		default:
			link(i+1, i)
		}
	}

	if tr := tlog.SpanFromContext(ctx); tr.If("dump_cfg") {
		for i := range f.Stmts {
			tr.Printw("cfg", "func", f.Name, "i", i, "typ", tlog.NextAsType, f.Stmts[i], "next", f.Next[i], "prev", f.Prev[i])
		}
	}

	return nil
}

// Reachable returns statements reachable from the entry.
func Reachable(f *ir.Func) (r set.Bits[int]) {
	if len(f.Stmts) == 0 {
		return r
	}

	q := []int{0}
	r.Set(0)

	for len(q) != 0 {
		i := q[0]
		q = q[1:]

		for _, j := range f.Next[i] {
			if r.IsSet(j) {
				continue
			}

			r.Set(j)
			q = append(q, j)
		}
	}

	return r
}

// Prune removes statements not in reachable set.
// Trailing return with no pooled operands is kept.
// Connect must be called again after statements were removed.
func Prune(ctx context.Context, f *ir.Func, reachable set.Bits[int]) (removed int) {
	tr := tlog.SpanFromContext(ctx)

	last := len(f.Stmts) - 1
	keep := f.Stmts[:0]

	for i, s := range f.Stmts {
		if reachable.IsSet(i) || i == last && isReturn(s) && len(f.Uses(s)) == 0 {
			keep = append(keep, s)
			continue
		}

		tr.Printw("unreachable statement removed", "func", f.Name, "i", i, "typ", tlog.NextAsType, s)

		removed++
	}

	for i := len(keep); i < len(f.Stmts); i++ {
		f.Stmts[i] = nil
	}

	f.Stmts = keep

	return removed
}

func isReturn(s any) bool {
	switch s.(type) {
	case *ir.Return, *ir.ReturnVoid:
		return true
	}

	return false
}
