package reg

import (
	"fmt"
	"math/bits"

	"tlog.app/go/tlog/tlwire"
)

type (
	// Reg is a physical register of the target.
	Reg int8

	// Set is a set of registers.
	Set uint32

	// Loc is an allocated location: a register or a stack slot.
	// Slot and Span are in words. Span is 0 for registers.
	Loc struct {
		Reg  Reg
		Slot int
		Span int
	}
)

const (
	X0 Reg = iota
	T0
	T1
	T2
	T3
	T4
	T5
	T6
	A0
	A1
	A2
	A3
	A4
	A5
	A6
	A7
	S0
	S1
	S2
	S3
	S4
	S5
	S6
	S7
	S8
	S9
	S10
	S11

	NumRegs = iota
)

// Scratch registers are used by lowering and never allocated.
const (
	Scratch0 = T0
	Scratch1 = T1
)

var (
	// Allocatable in priority order.
	Allocatable = []Reg{
		T2, T3, T4, T5, T6,
		A0, A1, A2, A3, A4, A5, A6, A7,
		S0, S1, S2, S3, S4, S5, S6, S7, S8, S9, S10, S11,
	}

	Args = []Reg{A0, A1, A2, A3, A4, A5, A6, A7}

	// All is every register but x0.
	All = Range(T0, S11)
)

func Arg(i int) Reg {
	if i < 0 || i >= len(Args) {
		panic(i)
	}

	return Args[i]
}

// IsArg reports argument register index.
func (r Reg) IsArg() (int, bool) {
	if r >= A0 && r <= A7 {
		return int(r - A0), true
	}

	return -1, false
}

func (r Reg) String() string {
	switch {
	case r == X0:
		return "x0"
	case r >= T0 && r <= T6:
		return fmt.Sprintf("t%d", r-T0)
	case r >= A0 && r <= A7:
		return fmt.Sprintf("a%d", r-A0)
	case r >= S0 && r <= S11:
		return fmt.Sprintf("s%d", r-S0)
	default:
		return fmt.Sprintf("reg(%d)", int(r))
	}
}

func Parse(s string) (Reg, bool) {
	if s == "x0" {
		return X0, true
	}

	var c byte
	var n int

	_, err := fmt.Sscanf(s, "%c%d", &c, &n)
	if err != nil {
		return 0, false
	}

	switch {
	case c == 't' && n >= 0 && n <= 6:
		return T0 + Reg(n), true
	case c == 'a' && n >= 0 && n <= 7:
		return A0 + Reg(n), true
	case c == 's' && n >= 0 && n <= 11:
		return S0 + Reg(n), true
	}

	return 0, false
}

func InReg(r Reg) Loc { return Loc{Reg: r} }

func InStack(slot, span int) Loc {
	if span <= 0 {
		span = 1
	}

	return Loc{Slot: slot, Span: span}
}

func (l Loc) Stack() bool { return l.Span != 0 }

func (l Loc) String() string {
	if l.Stack() {
		return fmt.Sprintf("stk #%d", l.Slot)
	}

	return fmt.Sprintf("reg: %v", l.Reg)
}

func Of(rs ...Reg) (s Set) {
	for _, r := range rs {
		s = s.Add(r)
	}

	return s
}

// Range returns registers from l to r inclusive.
func Range(l, r Reg) (s Set) {
	for x := l; x <= r; x++ {
		s = s.Add(x)
	}

	return s
}

func (s Set) Add(r Reg) Set { return s | 1<<uint(r) }
func (s Set) Has(r Reg) bool { return s&(1<<uint(r)) != 0 }
func (s Set) Union(x Set) Set { return s | x }
func (s Set) Contains(x Set) bool { return s&x == x }
func (s Set) Len() int { return bits.OnesCount32(uint32(s)) }

func (s Set) Slice() []Reg {
	r := make([]Reg, 0, s.Len())

	for x := s; x != 0; x &= x - 1 {
		r = append(r, Reg(bits.TrailingZeros32(uint32(x))))
	}

	return r
}

func (s Set) String() string {
	b := []byte{'{'}

	for i, r := range s.Slice() {
		if i != 0 {
			b = append(b, ' ')
		}

		b = append(b, r.String()...)
	}

	b = append(b, '}')

	return string(b)
}

func (s Set) TlogAppend(b []byte) []byte {
	var e tlwire.LowEncoder

	b = e.AppendTag(b, tlwire.Array, -1)

	for _, r := range s.Slice() {
		b = e.AppendString(b, r.String())
	}

	return e.AppendBreak(b)
}
