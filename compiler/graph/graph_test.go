package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmcp/atoz/compiler/cfg"
	"github.com/xmcp/atoz/compiler/ir"
	"github.com/xmcp/atoz/compiler/live"
	"github.com/xmcp/atoz/compiler/set"
)

func TestClique(t *testing.T) {
	g := New()

	g.Clique(set.Of[ir.Reguid](0, 3, 6))
	g.Clique(set.Of[ir.Reguid](6, 9))

	assert.Equal(t, 4, g.Len())
	assert.Equal(t, 2, g.Degree(0))
	assert.Equal(t, 3, g.Degree(6))
	assert.True(t, g.Interfere(3, 0))
	assert.False(t, g.Interfere(0, 9))

	g.Remove(6)

	assert.Equal(t, 3, g.Len())
	assert.Equal(t, 1, g.Degree(0))
	assert.Equal(t, 0, g.Degree(9))
	assert.True(t, g.Interfere(0, 6), "removed edges are kept")
	assert.True(t, g.Interfere(6, 9))
	assert.Equal(t, []ir.Reguid{0, 3, 9}, g.Removed[6].Slice())
}

func TestBuild(t *testing.T) {
	ctx := context.Background()

	r, err := ir.Parse("test.e", []byte(`f_f [2]
    var t0
    var t1
    t0 = p0 + 1
    t1 = t0 * p1
    return t1
    t1 = 5
end f_f
`))
	require.NoError(t, err)

	f := r.Funcs[0]

	require.NoError(t, cfg.Connect(ctx, f))
	require.NoError(t, live.Analyze(ctx, f))

	g, reach := Build(ctx, f)

	assert.Equal(t, []int{0, 1, 2}, reach.Slice())

	p0, p1 := ir.ParamReguid(0), ir.ParamReguid(1)
	t0, t1 := ir.Reguid(0), ir.Reguid(3)

	assert.True(t, g.Interfere(p0, p1), "parameters live on entry together")
	assert.True(t, g.Interfere(t0, p1))
	assert.False(t, g.Interfere(t0, p0), "p0 dies where t0 is born")
	assert.False(t, g.Interfere(t1, t0))
	assert.Equal(t, 4, g.Len())
}
