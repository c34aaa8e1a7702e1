package clobber

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmcp/atoz/compiler/ir"
	"github.com/xmcp/atoz/compiler/reg"
	"github.com/xmcp/atoz/compiler/regalloc"
)

func compile(t *testing.T, text string) *ir.Root {
	t.Helper()

	ctx := context.Background()

	r, err := ir.Parse("test.e", []byte(text))
	require.NoError(t, err)

	for _, f := range r.Funcs {
		_, err = regalloc.Func(ctx, f, regalloc.Options{})
		require.NoError(t, err)
	}

	return r
}

func TestPropagate(t *testing.T) {
	r := compile(t, `f_leaf [1]
    var t0
    t0 = p0 + 1
    return t0
end f_leaf

f_mid [1]
    var t0
    var t1
    t0 = p0 * 2
    param t0
    t1 = call f_leaf
    t1 = t1 + t0
    return t1
end f_mid

f_rec [1]
    var t0
    var t1
    if p0 <= 0 goto l0
    t0 = p0 - 1
    param t0
    t1 = call f_rec
    param t1
    call f_mid
l0:
    return
end f_rec
`)

	err := Propagate(context.Background(), r, nil)
	require.NoError(t, err)

	leaf := r.Clobber["leaf"]
	mid := r.Clobber["mid"]
	rec := r.Clobber["rec"]

	assert.True(t, leaf.Has(reg.A0))
	assert.True(t, mid.Contains(leaf), "caller set covers callee set")
	assert.True(t, rec.Contains(mid))
	assert.True(t, rec.Contains(Direct(r.Func("rec"))))

	// t0 lives across the call in mid in a register leaf destroys or not
	m := r.Func("mid")
	saved := 0

	for i, s := range m.Stmts {
		if c, ok := ir.Calls(s); ok {
			saved = max(saved, len(Saved(m, i, r.Clobber[c.Name])))
		}
	}

	assert.Equal(t, saved, m.CallerSave)
}

func TestRuntime(t *testing.T) {
	r := compile(t, `f_main [0]
    var t0
    var t1
    t0 = call f_getint
    t1 = call f_getint
    t0 = t0 + t1
    param t0
    call f_putint
    return 0
end f_main
`)

	err := Propagate(context.Background(), r, nil)
	require.NoError(t, err)

	assert.Equal(t, reg.All, r.Clobber["main"])
	assert.Equal(t, 1, r.Func("main").CallerSave, "t0 is live across the second getint")
}

func TestFixed(t *testing.T) {
	r := compile(t, `f_fast [2]
    return p0
end f_fast

f_main [0]
    var t0
    var t1
    t0 = 5
    param 1
    param 2
    t1 = call f_fast
    t1 = t1 + t0
    return t1
end f_main
`)

	fixed := map[string]reg.Set{"fast": reg.Range(reg.A0, reg.A1)}

	err := Propagate(context.Background(), r, fixed)
	require.NoError(t, err)

	assert.Equal(t, fixed["fast"], r.Clobber["fast"])
	assert.True(t, r.Clobber["main"].Contains(fixed["fast"]))
}

func TestUndefined(t *testing.T) {
	r := compile(t, `f_main [0]
    call f_nope
    return 0
end f_main
`)

	err := Propagate(context.Background(), r, nil)
	assert.ErrorAs(t, err, &ir.UserError{})
}
