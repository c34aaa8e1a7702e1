package ir

import (
	"github.com/xmcp/atoz/compiler/reg"
	"github.com/xmcp/atoz/compiler/set"
)

type (
	VarID  int
	Reguid int

	Class int

	Var struct {
		Name  string
		Class Class
		Index int

		// Dims is nil for scalars.
		// Array parameters have Dims[0] == 0.
		Dims []int
	}

	ValKind uint8

	// Val is an operand: constant, temporary or named variable.
	Val struct {
		Kind ValKind
		N    int
	}

	BinOp int
	UnOp  int
	Rel   int

	// Statements.

	Binary struct {
		Dst Val
		L   Val
		Op  BinOp
		R   Val
	}

	Unary struct {
		Dst Val
		Op  UnOp
		X   Val
	}

	Mov struct {
		Dst Val
		Src Val
	}

	// ArraySet is Dst[Off] = Src. Off is in bytes.
	ArraySet struct {
		Dst Val
		Off int
		Src Val
	}

	// ArrayGet is Dst = Src[Off]. Off is in bytes.
	ArrayGet struct {
		Dst Val
		Src Val
		Off int
	}

	CondGoto struct {
		L     Val
		Rel   Rel
		R     Val
		Label int
	}

	Goto struct {
		Label int
	}

	Label struct {
		ID int
	}

	Param struct {
		Index int
		Val   Val
	}

	CallVoid struct {
		Name string
		Args []Param
	}

	Call struct {
		CallVoid
		Ret Val
	}

	ReturnVoid struct{}

	Return struct {
		Val Val
	}

	// FillZero zeroes whole local array.
	FillZero struct {
		Dst Val
	}

	// Init is a global initializer. Off is -1 for scalars.
	Init struct {
		Var VarID
		Off int
		Val int
	}

	Func struct {
		Root *Root

		Name string
		Void bool

		Params []VarID
		Locals []VarID
		Temps  []int

		Stmts []any

		// Builtin is the name of matched hand-written implementation.
		Builtin string

		Labels map[int]int
		Next   [][]int
		Prev   [][]int

		// Live is the set of values live on entry to each statement.
		// Meet is the set live after it.
		Live []set.Bits[Reguid]
		Meet []set.Bits[Reguid]

		Locs   map[Reguid]reg.Loc
		Arrays map[VarID]reg.Loc

		SpillSize  int
		CallerSave int
	}

	Root struct {
		Vars    []Var
		Globals []VarID
		Inits   []Init

		Funcs []*Func

		Clobber map[string]reg.Set

		vars   int
		temps  int
		labels int
	}
)

const (
	Global Class = iota
	Local
	Arg
)

const (
	ConstVal ValKind = iota
	TempVal
	RefVal
)

const (
	Add BinOp = iota
	Sub
	Mul
	Div
	Mod
	Lt
	Gt
	Le
	Ge
	Eq
	Ne
	And
	Or
)

const (
	Pos UnOp = iota
	Neg
	Not
)

const (
	Less Rel = iota
	Greater
	LessEq
	GreaterEq
	Equal
	NotEqual
)

var (
	binOps = [...]string{"+", "-", "*", "/", "%", "<", ">", "<=", ">=", "==", "!=", "&&", "||"}
	unOps  = [...]string{"+", "-", "!"}
	rels   = [...]string{"<", ">", "<=", ">=", "==", "!="}
)

func (op BinOp) String() string { return binOps[op] }
func (op UnOp) String() string { return unOps[op] }
func (r Rel) String() string { return rels[r] }

// Rel returns relation computed by comparison operator.
func (op BinOp) Rel() (Rel, bool) {
	if op < Lt || op > Ne {
		return 0, false
	}

	return Rel(op - Lt), true
}

func (r Rel) BinOp() BinOp { return Lt + BinOp(r) }

func (r Rel) Invert() Rel {
	switch r {
	case Less:
		return GreaterEq
	case Greater:
		return LessEq
	case LessEq:
		return Greater
	case GreaterEq:
		return Less
	case Equal:
		return NotEqual
	case NotEqual:
		return Equal
	default:
		panic(r)
	}
}

func ParseBinOp(s string) (BinOp, bool) {
	for i, x := range binOps {
		if x == s {
			return BinOp(i), true
		}
	}

	return 0, false
}

func ParseRel(s string) (Rel, bool) {
	for i, x := range rels {
		if x == s {
			return Rel(i), true
		}
	}

	return 0, false
}

func ParseUnOp(s string) (UnOp, bool) {
	for i, x := range unOps {
		if x == s {
			return UnOp(i), true
		}
	}

	return 0, false
}
