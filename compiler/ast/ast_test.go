package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xmcp/atoz/compiler/ir"
)

func inc(param, global string) *FuncDef {
	a := &Def{Pos: Pos{Line: 1, Col: 7}, Name: param}
	g := &Def{Name: global}

	return &FuncDef{
		Pos:    Pos{Line: 1, Col: 1},
		Name:   "f",
		Params: []*Def{a},
		Body: NewBlock(
			&Assign{LVal: &LVal{Def: g}, Val: &LVal{Def: a}},
			&Return{Pos: Pos{Line: 2, Col: 5}, Val: &Binary{Op: ir.Add, L: &LVal{Def: a}, R: &Num{Val: 1}}},
		),
	}
}

func TestDump(t *testing.T) {
	b := Dump(nil, inc("a", "g"))

	assert.Equal(t, "(func f false (params (def 0 false [])) (block (= (global g) (var 0)) (return (+ (var 0) 1))))", string(b))
}

func TestHash(t *testing.T) {
	assert.Equal(t, Hash(inc("a", "g")), Hash(inc("b", "g")), "local names don't matter")
	assert.NotEqual(t, Hash(inc("a", "g")), Hash(inc("a", "h")), "global names do")
}

func TestDef(t *testing.T) {
	d := &Def{Dims: []int{2, 3, 4}}

	assert.True(t, d.IsArray())
	assert.Equal(t, 24, d.Elems())
	assert.Equal(t, 12, d.Stride(0))
	assert.Equal(t, 4, d.Stride(1))
	assert.Equal(t, 1, d.Stride(2))

	assert.False(t, (&Def{}).IsArray())
	assert.Equal(t, 1, (&Def{}).Elems())

	assert.Equal(t, "3:4", Pos{Line: 3, Col: 4}.String())
	assert.Equal(t, "", Pos{}.String())
}
