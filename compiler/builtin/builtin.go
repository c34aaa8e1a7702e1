package builtin

import (
	"bytes"

	"tlog.app/go/errors"

	"github.com/xmcp/atoz/compiler/asm"
	"github.com/xmcp/atoz/compiler/ast"
	"github.com/xmcp/atoz/compiler/ir"
	"github.com/xmcp/atoz/compiler/reg"
)

type (
	// Pattern is a function with hand-written code.
	Pattern struct {
		Name string
		Ref  *ast.FuncDef

		Hash uint64
		Dump []byte

		// Clobber is the set of registers the code writes.
		Clobber reg.Set

		lower func(f *asm.Func, label func() int)
	}
)

// Modulus used by the modular multiplication pattern.
const Modulus = 998244353

var Catalog = []*Pattern{
	{
		Name:    "memmove",
		Ref:     memmoveRef(),
		Clobber: reg.Of(reg.A0, reg.A1, reg.A2, reg.A3, reg.T0, reg.T1),
		lower:   memmove,
	},
	{
		Name:    "multiply",
		Ref:     multiplyRef(),
		Clobber: reg.Of(reg.A0, reg.A1, reg.A2, reg.T0, reg.T1),
		lower:   multiply,
	},
}

func init() {
	for _, p := range Catalog {
		p.Hash = ast.Hash(p.Ref)
		p.Dump = ast.Dump(nil, p.Ref)
	}
}

// Find returns catalog pattern by name.
func Find(name string) *Pattern {
	for _, p := range Catalog {
		if p.Name == name {
			return p
		}
	}

	return nil
}

// Match reports which pattern the function implements, if any.
// Name, arity and hash must be equal, then the structure is compared.
func Match(f *ast.FuncDef) (string, bool) {
	p := Find(f.Name)
	if p == nil || len(p.Ref.Params) != len(f.Params) || p.Hash != ast.Hash(f) {
		return "", false
	}

	if !bytes.Equal(p.Dump, ast.Dump(nil, f)) {
		return "", false
	}

	return p.Name, true
}

// Clobbers returns destroy sets of functions replaced by patterns.
func Clobbers(r *ir.Root) map[string]reg.Set {
	m := map[string]reg.Set{}

	for _, f := range r.Funcs {
		if f.Builtin == "" {
			continue
		}

		if p := Find(f.Builtin); p != nil {
			m[f.Name] = p.Clobber
		}
	}

	return m
}

// Lower makes the hand-written function body.
func Lower(name string, r *ir.Root) (*asm.Func, error) {
	p := Find(name)
	if p == nil {
		return nil, errors.New("unknown builtin pattern: %v", name)
	}

	f := &asm.Func{
		Name:   name,
		Params: len(p.Ref.Params),
	}

	p.lower(f, r.NewLabel)

	return f, nil
}

// memmove copies len words from src to dst starting at dst_pos and returns len.
func memmove(f *asm.Func, label func() int) {
	loop, zero := label(), label()

	f.Add(
		asm.Shift{Out: reg.A1, In: reg.A1, Kind: asm.ShiftLeft, N: 2},
		asm.Binary{Out: reg.A1, Op: ir.Add, In: [2]reg.Reg{reg.A0, reg.A1}},
		asm.BCond{In: [2]reg.Reg{reg.A3, reg.X0}, Rel: ir.LessEq, Label: zero},
		asm.Shift{Out: reg.T1, In: reg.A3, Kind: asm.ShiftLeft, N: 2},
		asm.Binary{Out: reg.T1, Op: ir.Add, In: [2]reg.Reg{reg.A2, reg.T1}},
		asm.Label{ID: loop},
		asm.Load{Out: reg.T0, Base: reg.A2},
		asm.Store{Base: reg.A1, In: reg.T0},
		asm.AddI{Out: reg.A2, In: reg.A2, Val: 4},
		asm.AddI{Out: reg.A1, In: reg.A1, Val: 4},
		asm.BCond{In: [2]reg.Reg{reg.A2, reg.T1}, Rel: ir.Less, Label: loop},
		asm.Mov{Out: reg.A0, In: reg.A3},
		asm.Ret{},
		asm.Label{ID: zero},
		asm.Imm{Out: reg.A0, Val: 0},
		asm.Ret{},
	)
}

// multiply is a*b mod Modulus by doubling.
// The recursive source halves b, so b is assumed non-negative.
func multiply(f *asm.Func, label func() int) {
	loop, skip, done := label(), label(), label()

	f.Add(
		asm.Imm{Out: reg.T1, Val: Modulus},
		asm.Binary{Out: reg.A0, Op: ir.Mod, In: [2]reg.Reg{reg.A0, reg.T1}},
		asm.Imm{Out: reg.A2, Val: 0},
		asm.Label{ID: loop},
		asm.BCond{In: [2]reg.Reg{reg.A1, reg.X0}, Rel: ir.Equal, Label: done},
		asm.Shift{Out: reg.T0, In: reg.A1, Kind: asm.ShiftLeft, N: 31},
		asm.BCond{In: [2]reg.Reg{reg.T0, reg.X0}, Rel: ir.Equal, Label: skip},
		asm.Binary{Out: reg.A2, Op: ir.Add, In: [2]reg.Reg{reg.A2, reg.A0}},
		asm.Binary{Out: reg.A2, Op: ir.Mod, In: [2]reg.Reg{reg.A2, reg.T1}},
		asm.Label{ID: skip},
		asm.Binary{Out: reg.A0, Op: ir.Add, In: [2]reg.Reg{reg.A0, reg.A0}},
		asm.Binary{Out: reg.A0, Op: ir.Mod, In: [2]reg.Reg{reg.A0, reg.T1}},
		asm.Shift{Out: reg.A1, In: reg.A1, Kind: asm.ShiftRightArith, N: 1},
		asm.B{Label: loop},
		asm.Label{ID: done},
		asm.Mov{Out: reg.A0, In: reg.A2},
		asm.Ret{},
	)
}
