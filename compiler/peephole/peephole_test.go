package peephole

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmcp/atoz/compiler/ir"
)

func run(t *testing.T, text string) (string, int) {
	t.Helper()

	r, err := ir.Parse("test.e", []byte(text))
	require.NoError(t, err)

	n := Optimize(context.Background(), r.Funcs[0])

	return string(ir.Format(nil, r, false)), n
}

func TestFuseBranch(t *testing.T) {
	out, n := run(t, `f_f [2]
    var t0
    t0 = p0 < p1
    if t0 == 0 goto l0
    return 1
l0:
    return 0
end f_f
`)

	assert.Equal(t, 1, n)
	assert.Equal(t, `f_f [2]
    if p0 >= p1 goto l0
    return 1
l0:
    return 0
end f_f
`, out)
}

func TestFuseBranchNotEqual(t *testing.T) {
	out, _ := run(t, `f_f [2]
    var t0
    t0 = p0 == p1
    if t0 != 0 goto l0
    return 1
l0:
    return 0
end f_f
`)

	assert.Contains(t, out, "if p0 == p1 goto l0")
	assert.NotContains(t, out, "t0")
}

func TestFuseMov(t *testing.T) {
	out, n := run(t, `f_f [1]
    var T0
    var t0
    var t1
    t0 = p0 * 3
    T0 = t0
    t1 = call f_g
    T0 = t1
    return T0
end f_f
`)

	assert.Equal(t, 2, n)
	assert.Equal(t, `f_f [1]
    var T0
    T0 = p0 * 3
    T0 = call f_g
    return T0
end f_f
`, out)
}

func TestKeepShared(t *testing.T) {
	text := `f_f [1]
    var T0
    var t0
    t0 = p0 < 3
    T0 = t0
    if t0 == 0 goto l0
    return T0
l0:
    return 0
end f_f
`

	out, n := run(t, text)

	assert.Equal(t, 0, n, "t0 has two uses")
	assert.Equal(t, text, out)
}

func TestKeepLabelBetween(t *testing.T) {
	text := `f_f [1]
    var t0
    t0 = p0 < 3
l0:
    if t0 == 0 goto l0
    return 0
end f_f
`

	out, n := run(t, text)

	assert.Equal(t, 0, n)
	assert.Equal(t, text, out)
}
