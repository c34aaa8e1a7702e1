package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `var T0
var 40 T1
T0 = 5
T1 [4] = 3

f_add [2]
    var t0
    t0 = p0 + p1
    return t0
end f_add

f_main [0]
    var T2
    var 8 T3
    var t1
    var t2
    T2 = 1
    fillzero T3
    T3 [4] = T2
l0:
    if T2 >= 10 goto l1
    param T2
    param T0
    t1 = call f_add
    T2 = t1
    t2 = T1 [4]
    t2 = - t2
    goto l0
l1:
    param T2
    call f_putint
    return 0
end f_main
`

func TestParseFormat(t *testing.T) {
	r, err := Parse("sample.e", []byte(sample))
	require.NoError(t, err)

	assert.Len(t, r.Globals, 2)
	assert.Len(t, r.Funcs, 2)
	assert.Equal(t, []Init{{Var: r.Globals[0], Off: -1, Val: 5}, {Var: r.Globals[1], Off: 4, Val: 3}}, r.Inits)

	main := r.Func("main")
	require.NotNil(t, main)
	assert.False(t, main.Void)
	assert.Len(t, main.Stmts, 13)

	c, ok := main.Stmts[5].(*Call)
	require.True(t, ok, "%T", main.Stmts[5])
	assert.Equal(t, "add", c.Name)
	assert.Len(t, c.Args, 2)

	assert.Equal(t, sample, string(Format(nil, r, false)))

	// counters continue after parsed names
	assert.Equal(t, 3, r.NewTemp())
	assert.Equal(t, 2, r.NewLabel())
}

func TestParseErrors(t *testing.T) {
	for _, tc := range []string{
		"f_main [0]\n    t0 = T9\nend f_main\n",
		"f_main [0]\n    goto main\nend f_main\n",
		"f_main [0]\n    param 1\n    t0 = 2\nend f_main\n",
		"f_main [0]\n    return\n",
		"f_main [1]\n    t0 = p0 && p0\nend f_main\n",
		"T0 = 1\n",
		"f_main [0]\n    var t0\n    t0 = 4 / 0\nend f_main\n",
		"f_main [1]\n    var t0\n    t0 = p0 % 0\nend f_main\n",
		"f_main [-1]\n    return 0\nend f_main\n",
		"f_main [0]\n    t9 = 1\n    return t9\nend f_main\n",
		"f_main [0]\n    var t0\n    var t0\nend f_main\n",
	} {
		_, err := Parse("bad.e", []byte(tc))
		assert.ErrorAs(t, err, &UserError{}, "%q", tc)
	}
}

func TestReguid(t *testing.T) {
	r := &Root{}

	g := r.NewVar(Var{Name: "g", Class: Global})
	arr := r.NewVar(Var{Name: "a", Class: Local, Dims: []int{4}})
	l := r.NewVar(Var{Name: "x", Class: Local})
	p := r.NewVar(Var{Name: "p", Class: Arg, Index: 1})
	pa := r.NewVar(Var{Name: "pa", Class: Arg, Index: 2, Dims: []int{0, 3}})

	assert.False(t, r.Pooled(Ref(g)))
	assert.False(t, r.Pooled(Ref(arr)))
	assert.False(t, r.Pooled(Const(3)))
	assert.True(t, r.Pooled(Ref(l)))
	assert.True(t, r.Pooled(Ref(pa)), "array parameter is a pointer")

	seen := map[Reguid]bool{}

	for _, v := range []Val{Temp(0), Temp(1), Ref(l), Ref(p), Ref(pa)} {
		u, ok := r.Reguid(v)
		require.True(t, ok)
		assert.False(t, seen[u], "collision %v", u)
		assert.GreaterOrEqual(t, int(u), 0)

		seen[u] = true
	}

	u, _ := r.Reguid(Ref(p))
	assert.Equal(t, ParamReguid(1), u)
	assert.Equal(t, "p1", u.String())

	u, _ = r.Reguid(Ref(l))
	assert.Equal(t, "T2", u.String())
}

func TestDefsUses(t *testing.T) {
	r, err := Parse("sample.e", []byte(sample))
	require.NoError(t, err)

	f := r.Func("main")

	// t1 = call f_add with params T2 T0
	s := f.Stmts[5]
	assert.Equal(t, []Reguid{3}, f.Defs(s))
	assert.Equal(t, []Reguid{3*2 + 1}, f.Uses(s), "globals are not pooled")

	// T3 [4] = T2 uses only scalar T2
	assert.Equal(t, []Reguid{7}, f.Uses(f.Stmts[2]))
	assert.Empty(t, f.Defs(f.Stmts[2]))
}

func TestRelInvert(t *testing.T) {
	for r := Less; r <= NotEqual; r++ {
		assert.Equal(t, r, r.Invert().Invert())
		assert.NotEqual(t, r, r.Invert())

		op := r.BinOp()
		back, ok := op.Rel()
		assert.True(t, ok)
		assert.Equal(t, r, back)
	}

	_, ok := Add.Rel()
	assert.False(t, ok)
}

func TestBuiltinDirective(t *testing.T) {
	text := `f_multiply [2]
    // builtin multiply
    return 0
end f_multiply
`

	r, err := Parse("b.e", []byte(text))
	require.NoError(t, err)

	assert.Equal(t, "multiply", r.Funcs[0].Builtin)
	assert.Equal(t, text, string(Format(nil, r, false)))
}
