package ast

import (
	"hash/fnv"
	"strconv"

	"github.com/nikandfor/hacked/hfmt"
)

type dumper struct {
	b    []byte
	defs map[*Def]int
}

// Hash is a structural hash of the function.
// Positions and local variable names don't affect it.
func Hash(f *FuncDef) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(Dump(nil, f))

	return h.Sum64()
}

// Dump appends canonical s-expression of the function.
// Locals are numbered in declaration order, globals are referenced by name.
func Dump(b []byte, f *FuncDef) []byte {
	d := &dumper{b: b, defs: map[*Def]int{}}

	d.b = hfmt.Appendf(d.b, "(func %s %v (params", f.Name, f.Void)

	for _, p := range f.Params {
		d.b = append(d.b, ' ')
		d.def(p)
	}

	d.b = append(d.b, ") "...)
	d.stmt(f.Body)
	d.b = append(d.b, ')')

	return d.b
}

func (d *dumper) def(x *Def) {
	id := len(d.defs)
	d.defs[x] = id

	d.b = hfmt.Appendf(d.b, "(def %d %v %v", id, x.Const, x.Dims)

	if x.Init != nil {
		d.b = append(d.b, " (init"...)

		for _, e := range x.Init {
			d.b = append(d.b, ' ')
			d.expr(e)
		}

		d.b = append(d.b, ')')
	}

	d.b = append(d.b, ')')
}

func (d *dumper) stmt(s any) {
	switch s := s.(type) {
	case nil:
		d.b = append(d.b, "()"...)
	case *Def:
		d.def(s)
	case *Block:
		d.b = append(d.b, "(block"...)

		for _, x := range s.Items {
			d.b = append(d.b, ' ')
			d.stmt(x)
		}

		d.b = append(d.b, ')')
	case *Assign:
		d.b = append(d.b, "(= "...)
		d.expr(s.LVal)
		d.b = append(d.b, ' ')
		d.expr(s.Val)
		d.b = append(d.b, ')')
	case *ExprStmt:
		d.b = append(d.b, "(expr "...)
		d.expr(s.X)
		d.b = append(d.b, ')')
	case *If:
		d.b = append(d.b, "(if "...)
		d.expr(s.Cond)
		d.b = append(d.b, ' ')
		d.stmt(s.Then)
		d.b = append(d.b, ' ')
		d.stmt(s.Else)
		d.b = append(d.b, ')')
	case *While:
		d.b = append(d.b, "(while "...)
		d.expr(s.Cond)
		d.b = append(d.b, ' ')
		d.stmt(s.Body)
		d.b = append(d.b, ')')
	case *Break:
		d.b = append(d.b, "(break)"...)
	case *Continue:
		d.b = append(d.b, "(continue)"...)
	case *Return:
		d.b = append(d.b, "(return"...)

		if s.Val != nil {
			d.b = append(d.b, ' ')
			d.expr(s.Val)
		}

		d.b = append(d.b, ')')
	default:
		panic(s)
	}
}

func (d *dumper) expr(e Expr) {
	switch e := e.(type) {
	case nil:
		d.b = append(d.b, '0')
	case *Num:
		d.b = strconv.AppendInt(d.b, int64(e.Val), 10)
	case *LVal:
		if id, ok := d.defs[e.Def]; ok {
			d.b = hfmt.Appendf(d.b, "(var %d", id)
		} else {
			d.b = hfmt.Appendf(d.b, "(global %s", e.Def.Name)
		}

		for _, x := range e.Index {
			d.b = append(d.b, ' ')
			d.expr(x)
		}

		d.b = append(d.b, ')')
	case *Call:
		d.b = hfmt.Appendf(d.b, "(call %s", e.Name)

		for _, x := range e.Args {
			d.b = append(d.b, ' ')
			d.expr(x)
		}

		d.b = append(d.b, ')')
	case *Unary:
		d.b = hfmt.Appendf(d.b, "(%v ", e.Op)
		d.expr(e.X)
		d.b = append(d.b, ')')
	case *Binary:
		d.b = hfmt.Appendf(d.b, "(%v ", e.Op)
		d.expr(e.L)
		d.b = append(d.b, ' ')
		d.expr(e.R)
		d.b = append(d.b, ')')
	default:
		panic(e)
	}
}

func itoa(x int) string { return strconv.Itoa(x) }
