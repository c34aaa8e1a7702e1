package ir

import (
	"fmt"
	"strconv"
	"strings"
)

type parser struct {
	name string
	line int

	r *Root
	f *Func

	globals map[int]VarID
	locals  map[int]VarID
	temps   map[int]bool

	params []Param

	vars, ntemps, labels int
}

// Parse reads program text in the form Format produces.
// Annotations are comments and are ignored.
func Parse(name string, text []byte) (r *Root, err error) {
	p := &parser{
		name:    name,
		r:       &Root{},
		globals: map[int]VarID{},
	}

	for i, l := range strings.Split(string(text), "\n") {
		p.line = i + 1

		if j := strings.Index(l, "//"); j >= 0 {
			if c := strings.Fields(l[j+2:]); p.f != nil && len(c) == 2 && c[0] == "builtin" {
				p.f.Builtin = c[1]
			}

			l = l[:j]
		}

		tk := strings.Fields(l)
		if len(tk) == 0 {
			continue
		}

		if p.f == nil {
			err = p.top(tk)
		} else {
			err = p.stmt(tk)
		}

		if err != nil {
			return nil, err
		}
	}

	if p.f != nil {
		return nil, p.errorf("function f_%s is not terminated", p.f.Name)
	}

	p.r.Reserve(p.vars, p.ntemps, p.labels)

	return p.r, nil
}

func (p *parser) top(tk []string) error {
	switch {
	case tk[0] == "var":
		id, err := p.decl(tk, Global)
		if err != nil {
			return err
		}

		p.r.Globals = append(p.r.Globals, id)

		return nil
	case strings.HasPrefix(tk[0], "f_"):
		return p.header(tk)
	case len(tk) == 3 && tk[1] == "=":
		id, err := p.global(tk[0])
		if err != nil {
			return err
		}

		c, err := p.int(tk[2])
		if err != nil {
			return err
		}

		p.r.Inits = append(p.r.Inits, Init{Var: id, Off: -1, Val: c})

		return nil
	case len(tk) == 4 && tk[2] == "=":
		id, err := p.global(tk[0])
		if err != nil {
			return err
		}

		off, err := p.index(tk[1])
		if err != nil {
			return err
		}

		c, err := p.int(tk[3])
		if err != nil {
			return err
		}

		p.r.Inits = append(p.r.Inits, Init{Var: id, Off: off, Val: c})

		return nil
	}

	return p.errorf("unexpected %q", strings.Join(tk, " "))
}

func (p *parser) header(tk []string) error {
	if len(tk) != 2 {
		return p.errorf("bad function header")
	}

	argc, err := p.index(tk[1])
	if err != nil {
		return err
	}

	if argc < 0 {
		return p.errorf("negative parameter count: %d", argc)
	}

	f := p.r.NewFunc(strings.TrimPrefix(tk[0], "f_"), true)

	for i := 0; i < argc; i++ {
		id := p.addVar(Var{Name: fmt.Sprintf("p%d", i), Class: Arg, Index: i})
		f.Params = append(f.Params, id)
	}

	p.f = f
	p.locals = map[int]VarID{}
	p.temps = map[int]bool{}

	return nil
}

func (p *parser) decl(tk []string, class Class) (VarID, error) {
	var dims []int

	switch len(tk) {
	case 2:
	case 3:
		n, err := p.int(tk[1])
		if err != nil {
			return -1, err
		}

		if n <= 0 || n%4 != 0 {
			return -1, p.errorf("bad array size: %d", n)
		}

		dims = []int{n / 4}
	default:
		return -1, p.errorf("bad declaration")
	}

	name := tk[len(tk)-1]

	n, ok := number(name, "T")
	if !ok {
		return -1, p.errorf("bad variable name: %q", name)
	}

	id := p.addVar(Var{Name: name, Class: class, Index: n, Dims: dims})
	p.vars = max(p.vars, n+1)

	if class == Global {
		p.globals[n] = id
	} else {
		p.locals[n] = id
	}

	return id, nil
}

func (p *parser) stmt(tk []string) error {
	f := p.f

	add := func(s any) error {
		f.Stmts = append(f.Stmts, s)
		return nil
	}

	if len(p.params) != 0 && tk[0] != "param" && tk[0] != "call" && (len(tk) < 3 || tk[2] != "call") {
		return p.errorf("param not followed by call")
	}

	switch {
	case tk[0] == "end":
		if len(tk) != 2 || tk[1] != "f_"+f.Name {
			return p.errorf("expected end f_%s", f.Name)
		}

		p.f = nil

		return nil
	case tk[0] == "var" && len(tk) == 2 && strings.HasPrefix(tk[1], "t"):
		n, ok := number(tk[1], "t")
		if !ok {
			return p.errorf("bad temp name: %q", tk[1])
		}

		if p.temps[n] {
			return p.errorf("temp redeclared: %v", tk[1])
		}

		f.Temps = append(f.Temps, n)
		p.temps[n] = true
		p.ntemps = max(p.ntemps, n+1)

		return nil
	case tk[0] == "var":
		id, err := p.decl(tk, Local)
		if err != nil {
			return err
		}

		f.Locals = append(f.Locals, id)

		return nil
	case len(tk) == 1 && strings.HasSuffix(tk[0], ":"):
		l, err := p.label(strings.TrimSuffix(tk[0], ":"))
		if err != nil {
			return err
		}

		return add(&Label{ID: l})
	case tk[0] == "goto" && len(tk) == 2:
		l, err := p.label(tk[1])
		if err != nil {
			return err
		}

		return add(&Goto{Label: l})
	case tk[0] == "if":
		return p.condGoto(tk)
	case tk[0] == "param" && len(tk) == 2:
		v, err := p.val(tk[1])
		if err != nil {
			return err
		}

		p.params = append(p.params, Param{Index: len(p.params), Val: v})

		return nil
	case tk[0] == "call" && len(tk) == 2:
		c := CallVoid{Name: strings.TrimPrefix(tk[1], "f_"), Args: p.params}
		p.params = nil

		return add(&c)
	case tk[0] == "return" && len(tk) == 1:
		return add(&ReturnVoid{})
	case tk[0] == "return" && len(tk) == 2:
		v, err := p.val(tk[1])
		if err != nil {
			return err
		}

		f.Void = false

		return add(&Return{Val: v})
	case tk[0] == "fillzero" && len(tk) == 2:
		v, err := p.lval(tk[1])
		if err != nil {
			return err
		}

		if !v.IsRef() || f.Var(v).Class != Local || !f.Var(v).IsArray() {
			return p.errorf("fillzero of not a local array: %v", tk[1])
		}

		return add(&FillZero{Dst: v})
	case len(tk) == 4 && tk[2] == "=" && isIndex(tk[1]):
		dst, err := p.lval(tk[0])
		if err != nil {
			return err
		}

		off, err := p.index(tk[1])
		if err != nil {
			return err
		}

		src, err := p.val(tk[3])
		if err != nil {
			return err
		}

		return add(&ArraySet{Dst: dst, Off: off, Src: src})
	case len(tk) >= 3 && tk[1] == "=":
		return p.assign(tk)
	}

	return p.errorf("unexpected %q", strings.Join(tk, " "))
}

func (p *parser) assign(tk []string) error {
	dst, err := p.lval(tk[0])
	if err != nil {
		return err
	}

	add := func(s any) error {
		p.f.Stmts = append(p.f.Stmts, s)
		return nil
	}

	rhs := tk[2:]

	switch {
	case len(rhs) == 2 && rhs[0] == "call":
		c := &Call{CallVoid: CallVoid{Name: strings.TrimPrefix(rhs[1], "f_"), Args: p.params}, Ret: dst}
		p.params = nil

		return add(c)
	case len(rhs) == 2 && isIndex(rhs[1]):
		src, err := p.val(rhs[0])
		if err != nil {
			return err
		}

		off, err := p.index(rhs[1])
		if err != nil {
			return err
		}

		return add(&ArrayGet{Dst: dst, Src: src, Off: off})
	case len(rhs) == 2:
		op, ok := ParseUnOp(rhs[0])
		if !ok {
			return p.errorf("bad unary operator: %q", rhs[0])
		}

		x, err := p.val(rhs[1])
		if err != nil {
			return err
		}

		if op == Pos {
			return add(&Mov{Dst: dst, Src: x})
		}

		return add(&Unary{Dst: dst, Op: op, X: x})
	case len(rhs) == 1:
		src, err := p.val(rhs[0])
		if err != nil {
			return err
		}

		return add(&Mov{Dst: dst, Src: src})
	case len(rhs) == 3:
		op, ok := ParseBinOp(rhs[1])
		if !ok || op == And || op == Or {
			return p.errorf("unsupported binary operator: %q", rhs[1])
		}

		l, err := p.val(rhs[0])
		if err != nil {
			return err
		}

		r, err := p.val(rhs[2])
		if err != nil {
			return err
		}

		if (op == Div || op == Mod) && r.IsConst() && r.N == 0 {
			return p.errorf("division by zero: %q", strings.Join(tk, " "))
		}

		return add(&Binary{Dst: dst, L: l, Op: op, R: r})
	}

	return p.errorf("unexpected %q", strings.Join(tk, " "))
}

func (p *parser) condGoto(tk []string) error {
	if len(tk) != 6 || tk[4] != "goto" {
		return p.errorf("bad conditional goto")
	}

	rel, ok := ParseRel(tk[2])
	if !ok {
		return p.errorf("bad relation: %q", tk[2])
	}

	l, err := p.val(tk[1])
	if err != nil {
		return err
	}

	r, err := p.val(tk[3])
	if err != nil {
		return err
	}

	lab, err := p.label(tk[5])
	if err != nil {
		return err
	}

	p.f.Stmts = append(p.f.Stmts, &CondGoto{L: l, Rel: rel, R: r, Label: lab})

	return nil
}

func (p *parser) val(s string) (Val, error) {
	if c, err := strconv.ParseInt(s, 10, 32); err == nil {
		return Const(int(c)), nil
	}

	return p.lval(s)
}

func (p *parser) lval(s string) (Val, error) {
	if n, ok := number(s, "t"); ok {
		if !p.temps[n] {
			return Val{}, p.errorf("undeclared temp: %v", s)
		}

		return Temp(n), nil
	}

	if n, ok := number(s, "p"); ok {
		if n >= len(p.f.Params) {
			return Val{}, p.errorf("no such parameter: %v", s)
		}

		return Ref(p.f.Params[n]), nil
	}

	if n, ok := number(s, "T"); ok {
		if id, ok := p.locals[n]; ok {
			return Ref(id), nil
		}

		if id, ok := p.globals[n]; ok {
			return Ref(id), nil
		}
	}

	return Val{}, p.errorf("undefined: %q", s)
}

func (p *parser) global(s string) (VarID, error) {
	n, ok := number(s, "T")
	if ok {
		if id, ok := p.globals[n]; ok {
			return id, nil
		}
	}

	return -1, p.errorf("undefined global: %q", s)
}

func (p *parser) label(s string) (int, error) {
	n, ok := number(s, "l")
	if !ok {
		return -1, p.errorf("bad label: %q", s)
	}

	p.labels = max(p.labels, n+1)

	return n, nil
}

func (p *parser) index(s string) (int, error) {
	if !isIndex(s) {
		return -1, p.errorf("expected [N], got %q", s)
	}

	return p.int(s[1 : len(s)-1])
}

func (p *parser) int(s string) (int, error) {
	c, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, p.errorf("bad integer: %q", s)
	}

	return int(c), nil
}

func (p *parser) addVar(v Var) VarID {
	p.r.Vars = append(p.r.Vars, v)

	return VarID(len(p.r.Vars) - 1)
}

func (p *parser) errorf(format string, args ...any) error {
	return Userf(fmt.Sprintf("%s:%d", p.name, p.line), format, args...)
}

func isIndex(s string) bool {
	return len(s) > 2 && s[0] == '[' && s[len(s)-1] == ']'
}

func number(s, pref string) (int, bool) {
	if !strings.HasPrefix(s, pref) || len(s) == len(pref) {
		return 0, false
	}

	n, err := strconv.Atoi(s[len(pref):])
	if err != nil || n < 0 {
		return 0, false
	}

	return n, true
}
