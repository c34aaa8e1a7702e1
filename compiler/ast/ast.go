package ast

import "github.com/xmcp/atoz/compiler/ir"

type (
	Pos struct {
		Line int
		Col  int
	}

	CompUnit struct {
		Globals []*Def
		Funcs   []*FuncDef
	}

	FuncDef struct {
		Pos `tlog:",embed"`

		Name   string
		Void   bool
		Params []*Def
		Body   *Block
	}

	// Def is a resolved variable declaration.
	// Array parameters have Dims[0] == 0.
	// Init is nil if there is no initializer, otherwise it's flattened
	// in row-major order with nil elements meaning zero.
	Def struct {
		Pos `tlog:",embed"`

		Name  string
		Const bool
		Dims  []int
		Init  []Expr
	}

	// Block items are *Def or statements.
	Block struct {
		Items []any
	}

	Assign struct {
		Pos `tlog:",embed"`

		LVal *LVal
		Val  Expr
	}

	ExprStmt struct {
		X Expr
	}

	If struct {
		Cond Expr
		Then any
		Else any
	}

	While struct {
		Cond Expr
		Body any
	}

	Break struct {
		Pos `tlog:",embed"`
	}

	Continue struct {
		Pos `tlog:",embed"`
	}

	Return struct {
		Pos `tlog:",embed"`

		Val Expr
	}

	Expr any

	LVal struct {
		Pos `tlog:",embed"`

		Def   *Def
		Index []Expr
	}

	Num struct {
		Val int
	}

	Call struct {
		Pos `tlog:",embed"`

		Name string
		Func *FuncDef // nil for runtime functions
		Args []Expr
	}

	Unary struct {
		Op ir.UnOp
		X  Expr
	}

	Binary struct {
		Op ir.BinOp
		L  Expr
		R  Expr
	}
)

func (d *Def) IsArray() bool { return len(d.Dims) != 0 }

// Elems is the number of words the declaration occupies.
func (d *Def) Elems() int {
	n := 1

	for _, x := range d.Dims {
		n *= x
	}

	return n
}

// Stride is the number of elements between consecutive indexes of dimension i.
func (d *Def) Stride(i int) int {
	n := 1

	for _, x := range d.Dims[i+1:] {
		n *= x
	}

	return n
}

func (p Pos) String() string {
	if p.Line == 0 {
		return ""
	}

	return itoa(p.Line) + ":" + itoa(p.Col)
}

// Block is a convenience constructor.
func NewBlock(items ...any) *Block {
	return &Block{Items: items}
}
