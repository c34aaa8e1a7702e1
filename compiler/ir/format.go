package ir

import (
	"fmt"
	"strings"

	"github.com/nikandfor/hacked/hfmt"
)

type printer struct {
	f   *Func
	ann bool
}

const indent = "    "

// Format appends program text.
// Annotated form adds allocated locations and liveness to every statement.
func Format(b []byte, r *Root, annotated bool) []byte {
	for _, id := range r.Globals {
		b = appDecl(b, "", r.Var(id))
	}

	for _, in := range r.Inits {
		v := r.Var(in.Var)

		if in.Off < 0 {
			b = hfmt.Appendf(b, "%s = %d\n", v.Text(), in.Val)
		} else {
			b = hfmt.Appendf(b, "%s [%d] = %d\n", v.Text(), in.Off, in.Val)
		}
	}

	for _, f := range r.Funcs {
		if len(b) != 0 {
			b = append(b, '\n')
		}

		b = FormatFunc(b, f, annotated)
	}

	return b
}

func FormatFunc(b []byte, f *Func, annotated bool) []byte {
	p := printer{f: f, ann: annotated}

	b = hfmt.Appendf(b, "f_%s [%d]\n", f.Name, len(f.Params))

	if f.Builtin != "" {
		b = hfmt.Appendf(b, "%s// builtin %s\n", indent, f.Builtin)
	}

	for _, id := range f.Locals {
		b = appDecl(b, indent, f.Root.Var(id))
	}

	for _, t := range f.Temps {
		b = hfmt.Appendf(b, "%svar t%d\n", indent, t)
	}

	for i, s := range f.Stmts {
		b = p.stmt(b, s)

		if annotated {
			b = p.liveness(b, i, s)
		}
	}

	b = hfmt.Appendf(b, "end f_%s\n", f.Name)

	return b
}

func appDecl(b []byte, pref string, v *Var) []byte {
	if v.IsArray() {
		return hfmt.Appendf(b, "%svar %d %s\n", pref, 4*v.Elems(), v.Text())
	}

	return hfmt.Appendf(b, "%svar %s\n", pref, v.Text())
}

func (p printer) stmt(b []byte, s any) []byte {
	switch s := s.(type) {
	case *Binary:
		return p.line(b, "%s = %s %v %s", p.val(s.Dst), p.val(s.L), s.Op, p.val(s.R))
	case *Unary:
		if s.Op == Pos {
			return p.line(b, "%s = %s", p.val(s.Dst), p.val(s.X))
		}

		return p.line(b, "%s = %v %s", p.val(s.Dst), s.Op, p.val(s.X))
	case *Mov:
		return p.line(b, "%s = %s", p.val(s.Dst), p.val(s.Src))
	case *ArraySet:
		return p.line(b, "%s [%d] = %s", p.val(s.Dst), s.Off, p.val(s.Src))
	case *ArrayGet:
		return p.line(b, "%s = %s [%d]", p.val(s.Dst), p.val(s.Src), s.Off)
	case *CondGoto:
		return p.line(b, "if %s %v %s goto l%d", p.val(s.L), s.Rel, p.val(s.R), s.Label)
	case *Goto:
		return p.line(b, "goto l%d", s.Label)
	case *Label:
		return hfmt.Appendf(b, "l%d:\n", s.ID)
	case *CallVoid:
		b = p.params(b, s.Args)
		return p.line(b, "call f_%s", s.Name)
	case *Call:
		b = p.params(b, s.Args)
		return p.line(b, "%s = call f_%s", p.val(s.Ret), s.Name)
	case *ReturnVoid:
		return p.line(b, "return")
	case *Return:
		return p.line(b, "return %s", p.val(s.Val))
	case *FillZero:
		return p.line(b, "fillzero %s", p.val(s.Dst))
	default:
		panic(s)
	}
}

func (p printer) params(b []byte, args []Param) []byte {
	for _, a := range args {
		b = p.line(b, "param %s", p.val(a.Val))
	}

	return b
}

func (p printer) line(b []byte, format string, args ...any) []byte {
	b = append(b, indent...)
	b = hfmt.Appendf(b, format, args...)

	return append(b, '\n')
}

func (p printer) val(v Val) string {
	var name string

	switch v.Kind {
	case ConstVal:
		return fmt.Sprintf("%d", v.N)
	case TempVal:
		name = fmt.Sprintf("t%d", v.N)
	case RefVal:
		name = p.f.Var(v).Text()
	default:
		panic(v)
	}

	if !p.ann {
		return name
	}

	if u, ok := p.f.Reguid(v); ok {
		if l, ok := p.f.Locs[u]; ok {
			return "{" + l.String() + "}" + name
		}

		return "{???}" + name
	}

	x := p.f.Var(v)
	if x.Class == Global {
		return "{global}" + name
	}

	if l, ok := p.f.Arrays[v.Var()]; ok {
		return "{" + l.String() + "}" + name
	}

	return "{???}" + name
}

func (p printer) liveness(b []byte, i int, s any) []byte {
	list := func(us []Reguid) string {
		var w strings.Builder

		for j, u := range us {
			if j != 0 {
				w.WriteByte(' ')
			}

			w.WriteString(u.String())
		}

		return w.String()
	}

	var live, meet []Reguid

	if i < len(p.f.Live) {
		live = p.f.Live[i].Slice()
		meet = p.f.Meet[i].Slice()
	}

	return hfmt.Appendf(b, "%s// DEF: %s | USE: %s | LIVE: %s | MEET: %s\n", indent,
		list(p.f.Defs(s)), list(p.f.Uses(s)), list(live), list(meet))
}
