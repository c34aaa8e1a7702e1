package asm

import (
	"github.com/xmcp/atoz/compiler/ir"
	"github.com/xmcp/atoz/compiler/reg"
)

type (
	Reg = reg.Reg

	ShiftKind int

	Root struct {
		Globals []Global
		Funcs   []*Func
	}

	// Global is a global variable numbered by Index.
	// Arrays are zero-initialized, their initializers are code in main.
	Global struct {
		Index int
		Array bool
		Words int
		Init  int
	}

	Func struct {
		Name   string
		Params int

		// Stack is the frame size in words.
		Stack int

		Body []Instr
	}

	Instr any

	Binary struct {
		Out Reg
		Op  ir.BinOp
		In  [2]Reg
	}

	Unary struct {
		Out Reg
		Op  ir.UnOp
		In  Reg
	}

	Mov struct {
		Out Reg
		In  Reg
	}

	Imm struct {
		Out Reg
		Val int
	}

	AddI struct {
		Out Reg
		In  Reg
		Val int
	}

	Shift struct {
		Out  Reg
		In   Reg
		Kind ShiftKind
		N    int
	}

	// DivPow2 is Out = In / 2^N rounding toward zero.
	DivPow2 struct {
		Out Reg
		In  Reg
		N   int
	}

	// Store is Base[Off] = In.
	Store struct {
		Base Reg
		Off  int
		In   Reg
	}

	// Load is Out = Base[Off].
	Load struct {
		Out  Reg
		Base Reg
		Off  int
	}

	BCond struct {
		In    [2]Reg
		Rel   ir.Rel
		Label int
	}

	B struct {
		Label int
	}

	Label struct {
		ID int
	}

	Call struct {
		Func string
	}

	Ret struct{}

	StoreStack struct {
		In   Reg
		Slot int
	}

	LoadStack struct {
		Out  Reg
		Slot int
	}

	LoadGlobal struct {
		Out    Reg
		Global int
	}

	AddrStack struct {
		Out  Reg
		Slot int
	}

	AddrGlobal struct {
		Out    Reg
		Global int
	}

	Comment struct {
		Text string
	}
)

const (
	ShiftLeft ShiftKind = iota
	ShiftRightArith
	ShiftRightLogic
)

// MaxImm bounds immediates fitting an instruction: -MaxImm < x < MaxImm.
const MaxImm = 2047

func ImmOverflows(x int) bool {
	return x <= -MaxImm || x >= MaxImm
}

// FrameBytes is the stack frame size for the number of words.
// It keeps the stack 16 bytes aligned and leaves a word for ra.
func FrameBytes(words int) int {
	return (words/4 + 1) * 16
}

func (f *Func) Add(x ...Instr) {
	f.Body = append(f.Body, x...)
}
