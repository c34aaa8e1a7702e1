package graph

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/xmcp/atoz/compiler/cfg"
	"github.com/xmcp/atoz/compiler/ir"
	"github.com/xmcp/atoz/compiler/set"
)

type (
	Set = set.Bits[ir.Reguid]

	// Graph is an interference graph over pooled values.
	// Removed nodes keep their edges in Removed for the select phase.
	Graph struct {
		Nodes Set

		Edges   map[ir.Reguid]*Set
		Removed map[ir.Reguid]*Set

		deg map[ir.Reguid]int
	}
)

func New() *Graph {
	return &Graph{
		Edges:   map[ir.Reguid]*Set{},
		Removed: map[ir.Reguid]*Set{},
		deg:     map[ir.Reguid]int{},
	}
}

// Build makes interference graph from liveness of statements reachable from the entry.
func Build(ctx context.Context, f *ir.Func) (g *Graph, reachable set.Bits[int]) {
	tr := tlog.SpanFromContext(ctx)

	g = New()
	reachable = cfg.Reachable(f)

	var cliques int

	reachable.Range(func(i int) bool {
		g.Clique(f.Live[i])
		cliques++

		return true
	})

	if tr.If("dump_graph") {
		g.Nodes.Range(func(u ir.Reguid) bool {
			tr.Printw("graph node", "func", f.Name, "node", u, "deg", g.Degree(u), "edges", g.Edges[u])
			return true
		})
	}

	tr.V("graph_stats").Printw("interference graph", "func", f.Name, "nodes", g.Len(), "cliques", cliques)

	return g, reachable
}

func (g *Graph) AddNode(u ir.Reguid) {
	if g.Nodes.IsSet(u) {
		return
	}

	g.Nodes.Set(u)
	g.Edges[u] = &Set{}
	g.Removed[u] = &Set{}
}

func (g *Graph) AddEdge(a, b ir.Reguid) {
	if a == b {
		return
	}

	g.AddNode(a)
	g.AddNode(b)

	if g.Edges[a].IsSet(b) {
		return
	}

	g.Edges[a].Set(b)
	g.Edges[b].Set(a)
	g.deg[a]++
	g.deg[b]++
}

// Clique makes every pair of members interfere.
func (g *Graph) Clique(s Set) {
	us := s.Slice()

	for i, a := range us {
		g.AddNode(a)

		for _, b := range us[i+1:] {
			g.AddEdge(a, b)
		}
	}
}

func (g *Graph) Len() int { return g.Nodes.Size() }

func (g *Graph) Degree(u ir.Reguid) int { return g.deg[u] }

// Interfere reports an edge among present or removed ones.
func (g *Graph) Interfere(a, b ir.Reguid) bool {
	if e := g.Edges[a]; e != nil && e.IsSet(b) {
		return true
	}

	if e := g.Removed[a]; e != nil && e.IsSet(b) {
		return true
	}

	return false
}

// Remove takes node out of the graph moving its edges to Removed.
func (g *Graph) Remove(u ir.Reguid) {
	if !g.Nodes.IsSet(u) {
		panic(u)
	}

	e := g.Edges[u]

	e.Range(func(v ir.Reguid) bool {
		g.Edges[v].Clear(u)
		g.Removed[v].Set(u)
		g.deg[v]--

		return true
	})

	g.Removed[u].Merge(*e)
	g.Edges[u] = &Set{}
	g.deg[u] = 0

	g.Nodes.Clear(u)
}
