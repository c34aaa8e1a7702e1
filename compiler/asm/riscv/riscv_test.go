package riscv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmcp/atoz/compiler/asm"
	"github.com/xmcp/atoz/compiler/ir"
	"github.com/xmcp/atoz/compiler/reg"
)

func TestFunction(t *testing.T) {
	r := &asm.Root{Funcs: []*asm.Func{{
		Name:   "add",
		Params: 2,
		Body: []asm.Instr{
			asm.Binary{Out: reg.A0, Op: ir.Add, In: [2]asm.Reg{reg.A0, reg.A1}},
			asm.Ret{},
		},
	}}}

	b, err := Format(nil, r)
	require.NoError(t, err)

	assert.Equal(t, `  .text
  .align  2
  .global add
  .type   add, @function
add:
  sw      ra, -4(sp)
  addi    sp, sp, -16
  add     a0, a0, a1
  addi    sp, sp, 16
  lw      ra, -4(sp)
  ret
  .size   add, .-add
`, string(b))
}

func TestGlobals(t *testing.T) {
	r := &asm.Root{Globals: []asm.Global{
		{Index: 0, Init: 7},
		{Index: 1, Array: true, Words: 3},
	}}

	b, err := Format(nil, r)
	require.NoError(t, err)

	s := string(b)
	assert.Contains(t, s, "v0:\n  .word   7\n")
	assert.Contains(t, s, "  .comm   v1, 12, 4\n")
}

func TestComparisons(t *testing.T) {
	d, l, r := reg.T2, reg.T3, reg.T4

	for op, exp := range map[ir.BinOp]string{
		ir.Lt:  "  slt     t2, t3, t4\n",
		ir.Gt:  "  sgt     t2, t3, t4\n",
		ir.Le:  "  sgt     t2, t3, t4\n  seqz    t2, t2\n",
		ir.Ge:  "  slt     t2, t3, t4\n  seqz    t2, t2\n",
		ir.Eq:  "  xor     t2, t3, t4\n  seqz    t2, t2\n",
		ir.Ne:  "  xor     t2, t3, t4\n  snez    t2, t2\n",
		ir.Mod: "  rem     t2, t3, t4\n",
	} {
		e := &emitter{}

		err := e.instr(asm.Binary{Out: d, Op: op, In: [2]asm.Reg{l, r}})
		require.NoError(t, err)

		assert.Equal(t, exp, string(e.b), "op %v", op)
	}

	e := &emitter{}
	err := e.instr(asm.Binary{Out: d, Op: ir.Or, In: [2]asm.Reg{l, r}})
	assert.Error(t, err)
}

func TestLargeFrame(t *testing.T) {
	f := &asm.Func{
		Name:  "big",
		Stack: 1000,
		Body: []asm.Instr{
			asm.StoreStack{In: reg.T2, Slot: 900},
			asm.LoadStack{Out: reg.T3, Slot: 900},
			asm.AddrStack{Out: reg.T4, Slot: 10},
			asm.Ret{},
		},
	}

	b, err := Format(nil, &asm.Root{Funcs: []*asm.Func{f}})
	require.NoError(t, err)

	s := string(b)
	assert.Contains(t, s, "  li      t0, -4016\n  add     sp, sp, t0\n")
	assert.Contains(t, s, "  li      t0, 3600\n  add     t0, t0, sp\n  sw      t2, 0(t0)\n")
	assert.Contains(t, s, "  li      t3, 3600\n  add     t3, t3, sp\n  lw      t3, 0(t3)\n")
	assert.Contains(t, s, "  addi    t4, sp, 40\n")
	assert.Contains(t, s, "  li      t0, 4016\n  add     sp, sp, t0\n")

	f.Body = []asm.Instr{asm.AddI{Out: reg.T2, In: reg.T2, Val: 5000}}

	_, err = Format(nil, &asm.Root{Funcs: []*asm.Func{f}})
	assert.Error(t, err)
}

func TestDivPow2(t *testing.T) {
	e := &emitter{}

	err := e.instr(asm.DivPow2{Out: reg.T2, In: reg.T3, N: 2})
	require.NoError(t, err)

	assert.Equal(t, `  srai    t1, t3, 31
  srli    t1, t1, 30
  add     t1, t3, t1
  srai    t2, t1, 2
`, string(e.b))
}
