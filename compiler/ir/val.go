package ir

import (
	"fmt"

	"github.com/xmcp/atoz/compiler/reg"
)

func Const(c int) Val { return Val{Kind: ConstVal, N: c} }
func Temp(id int) Val { return Val{Kind: TempVal, N: id} }
func Ref(id VarID) Val { return Val{Kind: RefVal, N: int(id)} }

func (v Val) IsConst() bool { return v.Kind == ConstVal }
func (v Val) IsTemp() bool { return v.Kind == TempVal }
func (v Val) IsRef() bool { return v.Kind == RefVal }

func (v Val) Var() VarID {
	if v.Kind != RefVal {
		panic(v)
	}

	return VarID(v.N)
}

func (v Var) IsArray() bool { return v.Dims != nil }

// Elems is the number of words the variable occupies.
func (v Var) Elems() int {
	n := 1

	for _, d := range v.Dims {
		n *= d
	}

	return n
}

// Text is the name variable has in IR text.
func (v Var) Text() string {
	if v.Class == Arg {
		return fmt.Sprintf("p%d", v.Index)
	}

	return fmt.Sprintf("T%d", v.Index)
}

func (r *Root) Var(id VarID) *Var { return &r.Vars[id] }

// NewVar adds variable to the arena.
// Global and local variables are numbered by a shared counter,
// arguments are numbered by the caller.
func (r *Root) NewVar(v Var) VarID {
	if v.Class != Arg {
		v.Index = r.vars
		r.vars++
	}

	r.Vars = append(r.Vars, v)

	return VarID(len(r.Vars) - 1)
}

func (r *Root) NewTemp() int {
	r.temps++
	return r.temps - 1
}

func (r *Root) NewLabel() int {
	r.labels++
	return r.labels - 1
}

// Reserve makes counters skip already used numbers.
func (r *Root) Reserve(vars, temps, labels int) {
	r.vars = max(r.vars, vars)
	r.temps = max(r.temps, temps)
	r.labels = max(r.labels, labels)
}

func (r *Root) Func(name string) *Func {
	for _, f := range r.Funcs {
		if f.Name == name {
			return f
		}
	}

	return nil
}

func (r *Root) NewFunc(name string, void bool) *Func {
	f := &Func{
		Root: r,
		Name: name,
		Void: void,
	}

	r.Funcs = append(r.Funcs, f)

	return f
}

func (f *Func) NewTemp() Val {
	id := f.Root.NewTemp()
	f.Temps = append(f.Temps, id)

	return Temp(id)
}

func (f *Func) Var(v Val) *Var { return f.Root.Var(v.Var()) }

// Pooled reports whether the value competes for registers:
// temporaries, local scalars and arguments.
func (r *Root) Pooled(v Val) bool {
	switch v.Kind {
	case ConstVal:
		return false
	case TempVal:
		return true
	case RefVal:
		x := r.Var(v.Var())

		switch x.Class {
		case Global:
			return false
		case Local:
			return !x.IsArray()
		case Arg:
			return true
		}
	}

	panic(v)
}

// Reguid is a dense non-negative id of a pooled value.
func (r *Root) Reguid(v Val) (Reguid, bool) {
	if !r.Pooled(v) {
		return -1, false
	}

	if v.Kind == TempVal {
		return Reguid(3 * v.N), true
	}

	x := r.Var(v.Var())

	if x.Class == Local {
		return Reguid(3*x.Index + 1), true
	}

	return Reguid(3*x.Index + 2), true
}

func (f *Func) Reguid(v Val) (Reguid, bool) { return f.Root.Reguid(v) }

// ParamReguid is the reguid of i-th function parameter.
func ParamReguid(i int) Reguid { return Reguid(3*i + 2) }

func (u Reguid) String() string {
	switch u % 3 {
	case 0:
		return fmt.Sprintf("t%d", u/3)
	case 1:
		return fmt.Sprintf("T%d", u/3)
	default:
		return fmt.Sprintf("p%d", u/3)
	}
}

// IsParam reports parameter index.
func (u Reguid) IsParam() (int, bool) {
	if u%3 == 2 {
		return int(u / 3), true
	}

	return -1, false
}

func (f *Func) Loc(u Reguid) (reg.Loc, bool) {
	l, ok := f.Locs[u]
	return l, ok
}
