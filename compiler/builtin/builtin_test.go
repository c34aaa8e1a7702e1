package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmcp/atoz/compiler/asm"
	"github.com/xmcp/atoz/compiler/asm/sim"
	"github.com/xmcp/atoz/compiler/ast"
	"github.com/xmcp/atoz/compiler/ir"
	"github.com/xmcp/atoz/compiler/reg"
)

func TestMatch(t *testing.T) {
	f := memmoveRef()
	f.Pos = ast.Pos{Line: 10, Col: 1}
	f.Params[0].Name = "to"
	f.Params[3].Name = "n"

	name, ok := Match(f)
	assert.True(t, ok)
	assert.Equal(t, "memmove", name)

	name, ok = Match(multiplyRef())
	assert.True(t, ok)
	assert.Equal(t, "multiply", name)
}

func TestNoMatch(t *testing.T) {
	f := memmoveRef()
	f.Name = "copy"

	_, ok := Match(f)
	assert.False(t, ok, "name differs")

	f = multiplyRef()
	f.Body.Items[1].(*ast.If).Then = &ast.Return{Val: ref(f.Params[0])}

	_, ok = Match(f)
	assert.False(t, ok, "body differs")

	f = multiplyRef()
	f.Params = f.Params[:1]

	_, ok = Match(f)
	assert.False(t, ok, "arity differs")
}

func TestClobbers(t *testing.T) {
	r := &ir.Root{}
	r.NewFunc("main", false)
	r.NewFunc("memmove", false).Builtin = "memmove"

	m := Clobbers(r)
	assert.Equal(t, map[string]reg.Set{"memmove": Find("memmove").Clobber}, m)
}

func TestMemmove(t *testing.T) {
	f, err := Lower("memmove", &ir.Root{})
	require.NoError(t, err)
	assert.Equal(t, 4, f.Params)

	r := &asm.Root{
		Globals: []asm.Global{{Index: 0, Array: true, Words: 10}, {Index: 1, Array: true, Words: 10}},
		Funcs:   []*asm.Func{f},
	}

	m := sim.New(r)

	dst, _ := m.Global(0)
	src, _ := m.Global(1)

	for i := int32(0); i < 10; i++ {
		require.NoError(t, m.Store(src+4*i, 100+i))
	}

	n, err := m.Call("memmove", dst, 2, src, 5)
	require.NoError(t, err)
	assert.Equal(t, int32(5), n)

	for i := int32(0); i < 10; i++ {
		x, err := m.Load(dst + 4*i)
		require.NoError(t, err)

		if i >= 2 && i < 7 {
			assert.Equal(t, 100+i-2, x, "dst[%d]", i)
		} else {
			assert.Equal(t, int32(0), x, "dst[%d]", i)
		}
	}

	n, err = m.Call("memmove", dst, 0, src, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(0), n)
}

func TestMultiply(t *testing.T) {
	f, err := Lower("multiply", &ir.Root{})
	require.NoError(t, err)

	m := sim.New(&asm.Root{Funcs: []*asm.Func{f}})

	for _, tc := range [][2]int32{
		{0, 0}, {5, 0}, {5, 1}, {7, 13}, {123456789, 987654321}, {998244352, 998244352}, {-5, 3},
	} {
		got, err := m.Call("multiply", tc[0], tc[1])
		require.NoError(t, err)

		exp := int64(tc[0]) % Modulus * (int64(tc[1]) % Modulus) % Modulus
		assert.Equal(t, int32(exp), got, "%d * %d", tc[0], tc[1])
	}
}

func TestHashIgnoresPositions(t *testing.T) {
	a := multiplyRef()
	b := multiplyRef()
	b.Body.Items[2].(*ast.Def).Pos = ast.Pos{Line: 4, Col: 5}

	assert.Equal(t, ast.Hash(a), ast.Hash(b))
	assert.Equal(t, string(ast.Dump(nil, a)), string(ast.Dump(nil, b)))
}
