package live

import (
	"context"

	"nikand.dev/go/heap"
	"tlog.app/go/tlog"

	"github.com/xmcp/atoz/compiler/ir"
	"github.com/xmcp/atoz/compiler/set"
)

type Set = set.Bits[ir.Reguid]

// Analyze computes f.Live and f.Meet.
// CFG must be connected.
func Analyze(ctx context.Context, f *ir.Func) (err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "live: analyze", "func", f.Name)
	defer tr.Finish("err", &err)

	n := len(f.Stmts)

	f.Live = make([]Set, n)
	f.Meet = make([]Set, n)

	defs := make([][]ir.Reguid, n)
	uses := make([][]ir.Reguid, n)

	for i, s := range f.Stmts {
		defs[i] = f.Defs(s)
		uses[i] = f.Uses(s)
	}

	// Backward problem converges faster when later statements go first.
	q := heap.Heap[int]{Less: func(d []int, i, j int) bool { return d[i] > d[j] }}
	queued := make([]bool, n)

	for i := 0; i < n; i++ {
		q.Push(i)
		queued[i] = true
	}

	var steps int

	for q.Len() != 0 {
		i := q.Pop()
		queued[i] = false
		steps++

		var meet Set

		for _, j := range f.Next[i] {
			meet.Merge(f.Live[j])
		}

		live := meet.Copy()

		for _, u := range defs[i] {
			live.Clear(u)
		}

		for _, u := range uses[i] {
			live.Set(u)
		}

		f.Meet[i] = meet

		if live.Equal(f.Live[i]) {
			continue
		}

		f.Live[i] = live

		for _, p := range f.Prev[i] {
			if !queued[p] {
				q.Push(p)
				queued[p] = true
			}
		}
	}

	tr.V("live_stats").Printw("liveness done", "stmts", n, "steps", steps)

	if tr.If("dump_live") {
		for i, s := range f.Stmts {
			tr.Printw("live", "i", i, "typ", tlog.NextAsType, s, "live", f.Live[i], "meet", f.Meet[i])
		}
	}

	return nil
}
