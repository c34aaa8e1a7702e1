package compiler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmcp/atoz/compiler/asm"
	"github.com/xmcp/atoz/compiler/asm/sim"
	"github.com/xmcp/atoz/compiler/ast"
	"github.com/xmcp/atoz/compiler/builtin"
	"github.com/xmcp/atoz/compiler/ir"
	"github.com/xmcp/atoz/compiler/irgen"
	"github.com/xmcp/atoz/compiler/reg"
)

func num(x int) *ast.Num { return &ast.Num{Val: x} }

func ref(d *ast.Def, idx ...ast.Expr) *ast.LVal { return &ast.LVal{Def: d, Index: idx} }

func bin(l ast.Expr, op ir.BinOp, r ast.Expr) *ast.Binary { return &ast.Binary{Op: op, L: l, R: r} }

func call(f *ast.FuncDef, args ...ast.Expr) *ast.Call {
	return &ast.Call{Name: f.Name, Func: f, Args: args}
}

func rt(name string, args ...ast.Expr) *ast.Call {
	return &ast.Call{Name: name, Args: args}
}

func do(x ast.Expr) *ast.ExprStmt { return &ast.ExprStmt{X: x} }

func set(l *ast.LVal, x ast.Expr) *ast.Assign { return &ast.Assign{LVal: l, Val: x} }

func ret(x ast.Expr) *ast.Return { return &ast.Return{Val: x} }

func scalar(name string, init ...ast.Expr) *ast.Def {
	d := &ast.Def{Name: name}

	if len(init) != 0 {
		d.Init = init
	}

	return d
}

func fn(name string, params ...*ast.Def) *ast.FuncDef {
	return &ast.FuncDef{Name: name, Params: params}
}

func lower(t *testing.T, cu *ast.CompUnit, opts Options) *asm.Root {
	t.Helper()

	ctx := context.Background()

	r, err := irgen.Generate(ctx, cu, irgen.Options{NoBuiltins: opts.NoBuiltins})
	require.NoError(t, err)

	if !opts.NoPeephole {
		Optimize(ctx, r)
	}

	err = Allocate(ctx, r, opts)
	require.NoError(t, err)

	a, err := Lower(ctx, r)
	require.NoError(t, err)

	return a
}

func run(t *testing.T, cu *ast.CompUnit, opts Options, input ...int32) (int32, string) {
	t.Helper()

	m := sim.New(lower(t, cu, opts))
	m.Input = input

	x, err := m.Call("main")
	require.NoError(t, err)

	return x, string(m.Output)
}

var variants = map[string]Options{
	"default":     {},
	"no_peephole": {NoPeephole: true},
	"no_builtins": {NoBuiltins: true},
	"few_regs":    {Regs: []reg.Reg{reg.T2, reg.T3, reg.T4}},
}

func check(t *testing.T, cu *ast.CompUnit, exp string, input ...int32) {
	t.Helper()

	for name, opts := range variants {
		t.Run(name, func(t *testing.T) {
			_, out := run(t, cu, opts, input...)
			assert.Equal(t, exp, out)
		})
	}
}

func TestFib(t *testing.T) {
	n := scalar("n")
	fib := fn("fib", n)
	fib.Body = ast.NewBlock(
		&ast.If{Cond: bin(ref(n), ir.Lt, num(2)), Then: ret(ref(n))},
		ret(bin(call(fib, bin(ref(n), ir.Sub, num(1))), ir.Add, call(fib, bin(ref(n), ir.Sub, num(2))))),
	)

	main := fn("main")
	main.Body = ast.NewBlock(do(rt("putint", call(fib, num(15)))), ret(num(0)))

	check(t, &ast.CompUnit{Funcs: []*ast.FuncDef{fib, main}}, "610")
}

func TestArrays(t *testing.T) {
	var ginit []ast.Expr
	for k := 0; k < 12; k++ {
		ginit = append(ginit, num(k+1))
	}

	g := &ast.Def{Name: "g", Dims: []int{3, 4}, Init: ginit}

	a := &ast.Def{Name: "a", Dims: []int{0, 4}}
	rows := scalar("rows")
	s, i, j := scalar("s", num(0)), scalar("i", num(0)), scalar("j", num(0))

	sum := fn("sum", a, rows)
	sum.Body = ast.NewBlock(
		s, i,
		&ast.While{
			Cond: bin(ref(i), ir.Lt, ref(rows)),
			Body: ast.NewBlock(
				j,
				&ast.While{
					Cond: bin(ref(j), ir.Lt, num(4)),
					Body: ast.NewBlock(
						set(ref(s), bin(ref(s), ir.Add, ref(a, ref(i), ref(j)))),
						set(ref(j), bin(ref(j), ir.Add, num(1))),
					),
				},
				set(ref(i), bin(ref(i), ir.Add, num(1))),
			),
		},
		ret(ref(s)),
	)

	l := &ast.Def{Name: "l", Dims: []int{10}, Init: []ast.Expr{num(5)}}

	main := fn("main")
	main.Body = ast.NewBlock(
		l,
		do(rt("putint", call(sum, ref(g), num(3)))),
		do(rt("putch", num(' '))),
		do(rt("putint", bin(ref(l, num(0)), ir.Add, ref(l, num(9))))),
		do(rt("putch", num(' '))),
		set(ref(l, num(9)), call(sum, ref(g, num(1)), num(1))),
		do(rt("putint", ref(l, num(9)))),
		ret(ref(l, num(9))),
	)

	check(t, &ast.CompUnit{Globals: []*ast.Def{g}, Funcs: []*ast.FuncDef{sum, main}}, "78 5 26")
}

func TestSpill(t *testing.T) {
	a := scalar("a", rt("getint"))
	defs := []*ast.Def{a}
	items := []any{a}

	for k := 1; k < 8; k++ {
		d := scalar(string(rune('a'+k)), bin(ref(a), ir.Add, num(k)))
		defs = append(defs, d)
		items = append(items, d)
	}

	var total ast.Expr = ref(defs[0])
	for _, d := range defs[1:] {
		total = bin(total, ir.Add, ref(d))
	}

	items = append(items, do(rt("putint", total)), ret(num(0)))

	main := fn("main")
	main.Body = ast.NewBlock(items...)

	// 8*1 + (1+..+7)
	check(t, &ast.CompUnit{Funcs: []*ast.FuncDef{main}}, "36", 1)
}

func TestBuiltins(t *testing.T) {
	mul := builtin.Find("multiply").Ref
	move := builtin.Find("memmove").Ref

	x := &ast.Def{Name: "x", Dims: []int{10}, Init: []ast.Expr{}}
	y := &ast.Def{Name: "y", Dims: []int{10}, Init: []ast.Expr{num(1), num(2), num(3), num(4), num(5), num(6), num(7), num(8), num(9), num(10)}}

	main := fn("main")
	main.Body = ast.NewBlock(
		x, y,
		do(rt("putint", call(mul, num(123456), num(654321)))),
		do(rt("putch", num('\n'))),
		do(call(move, ref(x), num(2), ref(y), num(5))),
		do(rt("putarray", num(10), ref(x))),
		ret(num(0)),
	)

	exp := "920305136\n10: 0 0 1 2 3 4 5 0 0 0\n"
	require.Equal(t, int64(920305136), int64(123456)*654321%builtin.Modulus)

	check(t, &ast.CompUnit{Funcs: []*ast.FuncDef{mul, move, main}}, exp)
}

func TestShortCircuit(t *testing.T) {
	x := scalar("x", rt("getint"))

	main := fn("main")
	main.Body = ast.NewBlock(
		x,
		&ast.If{
			Cond: bin(bin(ref(x), ir.Ne, num(0)), ir.And, bin(bin(num(10), ir.Div, ref(x)), ir.Gt, num(1))),
			Then: do(rt("putint", num(1))),
			Else: do(rt("putint", num(2))),
		},
		&ast.If{
			Cond: bin(bin(ref(x), ir.Eq, num(0)), ir.Or, &ast.Unary{Op: ir.Not, X: bin(bin(num(10), ir.Div, ref(x)), ir.Gt, num(1))}),
			Then: do(rt("putint", num(3))),
		},
		ret(num(0)),
	)

	cu := &ast.CompUnit{Funcs: []*ast.FuncDef{main}}

	check(t, cu, "23", 0)
	check(t, cu, "1", 2)
	check(t, cu, "23", 9)
}

func TestArithmetic(t *testing.T) {
	x := scalar("x", rt("getint"))

	var items []any
	items = append(items, x)

	for k, e := range []ast.Expr{
		bin(ref(x), ir.Div, num(2)),
		bin(ref(x), ir.Div, num(4)),
		bin(ref(x), ir.Mod, num(4)),
		bin(ref(x), ir.Mul, num(8)),
		bin(num(8), ir.Mul, ref(x)),
		bin(ref(x), ir.Add, num(70000)),
		bin(ref(x), ir.Sub, num(-3)),
		bin(ref(x), ir.Div, num(1)),
		&ast.Unary{Op: ir.Neg, X: ref(x)},
		bin(ref(x), ir.Le, num(-7)),
	} {
		if k != 0 {
			items = append(items, do(rt("putch", num(' '))))
		}

		items = append(items, do(rt("putint", e)))
	}

	items = append(items, ret(num(0)))

	main := fn("main")
	main.Body = ast.NewBlock(items...)

	check(t, &ast.CompUnit{Funcs: []*ast.FuncDef{main}}, "-3 -1 -3 -56 -56 69993 -4 -7 7 1", -7)
	check(t, &ast.CompUnit{Funcs: []*ast.FuncDef{main}}, "3 1 3 56 56 70007 10 7 -7 0", 7)
}

func TestLargeOffsets(t *testing.T) {
	big := &ast.Def{Name: "big", Dims: []int{1000}}
	loc := &ast.Def{Name: "loc", Dims: []int{1000}, Init: []ast.Expr{num(1)}}

	main := fn("main")
	main.Body = ast.NewBlock(
		loc,
		set(ref(big, num(900)), num(100000)),
		set(ref(loc, num(999)), num(7)),
		do(rt("putint", bin(ref(big, num(900)), ir.Add, num(70000)))),
		do(rt("putch", num(' '))),
		do(rt("putint", bin(bin(ref(loc, num(999)), ir.Add, ref(loc, num(500))), ir.Add, ref(loc, num(0))))),
		ret(num(0)),
	)

	check(t, &ast.CompUnit{Globals: []*ast.Def{big}, Funcs: []*ast.FuncDef{main}}, "170000 8")
}

func TestArgumentShuffle(t *testing.T) {
	var ps, qs []*ast.Def
	for k := 0; k < 8; k++ {
		ps = append(ps, scalar(string(rune('a'+k))))
		qs = append(qs, scalar(string(rune('a'+k))))
	}

	// w = a + 2b + ... + 8h
	w := fn("w", ps...)

	var sum ast.Expr = num(0)
	for k, p := range ps {
		sum = bin(sum, ir.Add, bin(ref(p), ir.Mul, num(k+1)))
	}

	w.Body = ast.NewBlock(ret(sum))

	perm := fn("perm", qs...)

	var rev []ast.Expr
	for k := range qs {
		rev = append(rev, ref(qs[len(qs)-1-k]))
	}

	perm.Body = ast.NewBlock(ret(call(w, rev...)))

	a, b := scalar("a"), scalar("b")
	sub := fn("sub", a, b)
	sub.Body = ast.NewBlock(ret(bin(ref(a), ir.Sub, ref(b))))

	c, d := scalar("c"), scalar("d")
	swap := fn("swap", c, d)
	swap.Body = ast.NewBlock(ret(call(sub, ref(d), ref(c))))

	main := fn("main")
	main.Body = ast.NewBlock(
		do(rt("putint", call(perm, num(1), num(2), num(3), num(4), num(5), num(6), num(7), num(8)))),
		do(rt("putch", num(' '))),
		do(rt("putint", call(swap, num(10), num(3)))),
		ret(num(0)),
	)

	check(t, &ast.CompUnit{Funcs: []*ast.FuncDef{w, perm, sub, swap, main}}, "120 -7")
}

func TestModes(t *testing.T) {
	text := `var T0
T0 = 3

f_main [0]
    var t0
    t0 = T0 * 4
    param t0
    call f_putint
    return 0
end f_main
`

	dir := t.TempDir()
	name := filepath.Join(dir, "in.e")
	require.NoError(t, os.WriteFile(name, []byte(text), 0o644))

	ctx := context.Background()

	obj, err := CompileFile(ctx, name, Options{Mode: ModeIR})
	require.NoError(t, err)
	assert.Equal(t, text, string(obj))

	obj, err = CompileFile(ctx, name, Options{Mode: ModeAnnotated})
	require.NoError(t, err)
	assert.Contains(t, string(obj), "// DEF:")

	obj, err = CompileFile(ctx, name, Options{Mode: ModeTigger})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(obj), "v0 = 3\n"), "%s", obj)
	assert.Contains(t, string(obj), "f_main [0] [1]", "t0 is saved around the call")
	assert.Contains(t, string(obj), "call f_putint")

	obj, err = CompileFile(ctx, name, Options{})
	require.NoError(t, err)
	assert.Contains(t, string(obj), ".global main")
	assert.Contains(t, string(obj), "slli")
	assert.NotContains(t, string(obj), "mul ")

	_, err = CompileFile(ctx, filepath.Join(dir, "missing.e"), Options{})
	assert.Error(t, err)
}

func TestUndefinedFunction(t *testing.T) {
	main := fn("main")
	main.Body = ast.NewBlock(do(rt("nope")), ret(num(0)))

	_, err := CompileAST(context.Background(), &ast.CompUnit{Funcs: []*ast.FuncDef{main}}, Options{})
	assert.ErrorAs(t, err, &ir.UserError{})
}

func TestBranchFusion(t *testing.T) {
	ctx := context.Background()

	r, err := ir.Parse("fuse.e", []byte(`f_max [2]
    var t0
    t0 = p0 < p1
    if t0 == 0 goto l0
    return p1
l0:
    return p0
end f_max
`))
	require.NoError(t, err)

	Optimize(ctx, r)

	err = Allocate(ctx, r, Options{})
	require.NoError(t, err)

	a, err := Lower(ctx, r)
	require.NoError(t, err)

	var branches, binaries int

	for _, x := range a.Funcs[0].Body {
		switch x.(type) {
		case asm.BCond:
			branches++
		case asm.Binary:
			binaries++
		}
	}

	assert.Equal(t, 1, branches)
	assert.Equal(t, 0, binaries, "comparison is fused into the branch")
}
