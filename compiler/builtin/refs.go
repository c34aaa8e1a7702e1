package builtin

import (
	"github.com/xmcp/atoz/compiler/ast"
	"github.com/xmcp/atoz/compiler/ir"
)

func num(x int) *ast.Num { return &ast.Num{Val: x} }

func ref(d *ast.Def, idx ...ast.Expr) *ast.LVal { return &ast.LVal{Def: d, Index: idx} }

func bin(l ast.Expr, op ir.BinOp, r ast.Expr) *ast.Binary { return &ast.Binary{Op: op, L: l, R: r} }

// int memmove(int dst[], int dst_pos, int src[], int len) {
//     int i = 0;
//     while (i < len) {
//         dst[dst_pos + i] = src[i];
//         i = i + 1;
//     }
//     return i;
// }
func memmoveRef() *ast.FuncDef {
	dst := &ast.Def{Name: "dst", Dims: []int{0}}
	pos := &ast.Def{Name: "dst_pos"}
	src := &ast.Def{Name: "src", Dims: []int{0}}
	n := &ast.Def{Name: "len"}
	i := &ast.Def{Name: "i", Init: []ast.Expr{num(0)}}

	return &ast.FuncDef{
		Name:   "memmove",
		Params: []*ast.Def{dst, pos, src, n},
		Body: ast.NewBlock(
			i,
			&ast.While{
				Cond: bin(ref(i), ir.Lt, ref(n)),
				Body: ast.NewBlock(
					&ast.Assign{LVal: ref(dst, bin(ref(pos), ir.Add, ref(i))), Val: ref(src, ref(i))},
					&ast.Assign{LVal: ref(i), Val: bin(ref(i), ir.Add, num(1))},
				),
			},
			&ast.Return{Val: ref(i)},
		),
	}
}

// int multiply(int a, int b) {
//     if (b == 0) return 0;
//     if (b == 1) return a % 998244353;
//     int cur = multiply(a, b / 2);
//     cur = (cur + cur) % 998244353;
//     if (b % 2 == 1) return (cur + a) % 998244353;
//     else return cur;
// }
func multiplyRef() *ast.FuncDef {
	a := &ast.Def{Name: "a"}
	b := &ast.Def{Name: "b"}

	f := &ast.FuncDef{
		Name:   "multiply",
		Params: []*ast.Def{a, b},
	}

	cur := &ast.Def{Name: "cur", Init: []ast.Expr{
		&ast.Call{Name: "multiply", Func: f, Args: []ast.Expr{ref(a), bin(ref(b), ir.Div, num(2))}},
	}}

	f.Body = ast.NewBlock(
		&ast.If{Cond: bin(ref(b), ir.Eq, num(0)), Then: &ast.Return{Val: num(0)}},
		&ast.If{Cond: bin(ref(b), ir.Eq, num(1)), Then: &ast.Return{Val: bin(ref(a), ir.Mod, num(Modulus))}},
		cur,
		&ast.Assign{LVal: ref(cur), Val: bin(bin(ref(cur), ir.Add, ref(cur)), ir.Mod, num(Modulus))},
		&ast.If{
			Cond: bin(bin(ref(b), ir.Mod, num(2)), ir.Eq, num(1)),
			Then: &ast.Return{Val: bin(bin(ref(cur), ir.Add, ref(a)), ir.Mod, num(Modulus))},
			Else: &ast.Return{Val: ref(cur)},
		},
	)

	return f
}
