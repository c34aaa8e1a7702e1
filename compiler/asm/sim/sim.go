package sim

import (
	"strconv"

	"tlog.app/go/errors"

	"github.com/xmcp/atoz/compiler/asm"
	"github.com/xmcp/atoz/compiler/ir"
	"github.com/xmcp/atoz/compiler/reg"
)

type (
	// Machine executes abstract machine code.
	// Memory is word addressed internally, addresses are in bytes.
	Machine struct {
		Regs [reg.NumRegs]int32

		// Input is consumed by getint, getch and getarray.
		Input []int32
		// Output collects putint, putch and putarray.
		Output []byte

		MaxSteps int
		MaxDepth int
		Steps    int

		mem     []int32
		sp      int32
		globals map[int]int32

		funcs  map[string]*asm.Func
		labels map[*asm.Func]map[int]int

		depth int
	}
)

const (
	StackWords = 1 << 18

	// poison is written to registers a runtime call destroys.
	poison = -0x21524111
)

var (
	ErrSteps = errors.New("step limit exceeded")
	ErrDepth = errors.New("call depth limit exceeded")
)

func New(r *asm.Root) *Machine {
	m := &Machine{
		MaxSteps: 10_000_000,
		MaxDepth: 10_000,
		globals:  map[int]int32{},
		funcs:    map[string]*asm.Func{},
		labels:   map[*asm.Func]map[int]int{},
	}

	// address 0 stays unused
	words := 1

	for _, g := range r.Globals {
		m.globals[g.Index] = int32(4 * words)
		words += max(g.Words, 1)
	}

	m.mem = make([]int32, words+StackWords)
	m.sp = int32(4 * len(m.mem))

	for _, g := range r.Globals {
		if !g.Array {
			m.mem[m.globals[g.Index]/4] = int32(g.Init)
		}
	}

	for _, f := range r.Funcs {
		m.funcs[f.Name] = f

		ls := map[int]int{}

		for i, x := range f.Body {
			if l, ok := x.(asm.Label); ok {
				ls[l.ID] = i
			}
		}

		m.labels[f] = ls
	}

	return m
}

// Call runs the function with arguments in argument registers and returns a0.
func (m *Machine) Call(name string, args ...int32) (int32, error) {
	for i, a := range args {
		m.Regs[reg.Arg(i)] = a
	}

	err := m.call(name)
	if err != nil {
		return 0, errors.Wrap(err, "%v", name)
	}

	return m.Regs[reg.A0], nil
}

// Load reads memory word at byte address.
func (m *Machine) Load(addr int32) (int32, error) {
	i, err := m.index(addr)
	if err != nil {
		return 0, err
	}

	return m.mem[i], nil
}

// Store writes memory word at byte address.
func (m *Machine) Store(addr, x int32) error {
	i, err := m.index(addr)
	if err != nil {
		return err
	}

	m.mem[i] = x

	return nil
}

// Global returns byte address of the global variable.
func (m *Machine) Global(index int) (int32, bool) {
	a, ok := m.globals[index]
	return a, ok
}

func (m *Machine) call(name string) (err error) {
	f, ok := m.funcs[name]
	if !ok {
		return m.runtime(name)
	}

	if m.depth >= m.MaxDepth {
		return ErrDepth
	}

	m.depth++
	defer func() { m.depth-- }()

	frame := int32(asm.FrameBytes(f.Stack))

	m.sp -= frame
	if m.sp < int32(4*(len(m.mem)-StackWords)) {
		return errors.New("stack overflow")
	}

	defer func() { m.sp += frame }()

	for pc := 0; pc < len(f.Body); pc++ {
		m.Steps++
		if m.MaxSteps != 0 && m.Steps > m.MaxSteps {
			return ErrSteps
		}

		next, ret, err := m.exec(f, f.Body[pc])
		if err != nil {
			return errors.Wrap(err, "pc %d: %#v", pc, f.Body[pc])
		}

		m.Regs[reg.X0] = 0

		if ret {
			return nil
		}

		if next >= 0 {
			pc = next
		}
	}

	return errors.New("function %v has no return", name)
}

func (m *Machine) exec(f *asm.Func, x asm.Instr) (next int, ret bool, err error) {
	r := &m.Regs
	next = -1

	switch x := x.(type) {
	case asm.Binary:
		r[x.Out], err = binary(x.Op, r[x.In[0]], r[x.In[1]])
	case asm.Unary:
		switch x.Op {
		case ir.Pos:
			r[x.Out] = r[x.In]
		case ir.Neg:
			r[x.Out] = -r[x.In]
		case ir.Not:
			r[x.Out] = b2i(r[x.In] == 0)
		default:
			panic(x)
		}
	case asm.Mov:
		r[x.Out] = r[x.In]
	case asm.Imm:
		r[x.Out] = int32(x.Val)
	case asm.AddI:
		if asm.ImmOverflows(x.Val) {
			return next, false, errors.New("immediate out of range: %d", x.Val)
		}

		r[x.Out] = r[x.In] + int32(x.Val)
	case asm.Shift:
		switch x.Kind {
		case asm.ShiftLeft:
			r[x.Out] = r[x.In] << x.N
		case asm.ShiftRightArith:
			r[x.Out] = r[x.In] >> x.N
		case asm.ShiftRightLogic:
			r[x.Out] = int32(uint32(r[x.In]) >> x.N)
		default:
			panic(x)
		}
	case asm.DivPow2:
		r[x.Out] = r[x.In] / (1 << x.N)
	case asm.Store:
		if asm.ImmOverflows(x.Off) {
			return next, false, errors.New("offset out of range: %d", x.Off)
		}

		err = m.Store(r[x.Base]+int32(x.Off), r[x.In])
	case asm.Load:
		if asm.ImmOverflows(x.Off) {
			return next, false, errors.New("offset out of range: %d", x.Off)
		}

		r[x.Out], err = m.Load(r[x.Base] + int32(x.Off))
	case asm.BCond:
		if !compare(x.Rel, r[x.In[0]], r[x.In[1]]) {
			return next, false, nil
		}

		return m.jump(f, x.Label)
	case asm.B:
		return m.jump(f, x.Label)
	case asm.Label, asm.Comment:
	case asm.Call:
		err = m.call(x.Func)
	case asm.Ret:
		return next, true, nil
	case asm.StoreStack:
		err = m.Store(m.sp+int32(4*x.Slot), r[x.In])
	case asm.LoadStack:
		r[x.Out], err = m.Load(m.sp + int32(4*x.Slot))
	case asm.AddrStack:
		r[x.Out] = m.sp + int32(4*x.Slot)
	case asm.LoadGlobal:
		a, ok := m.globals[x.Global]
		if !ok {
			return next, false, errors.New("no global v%d", x.Global)
		}

		r[x.Out], err = m.Load(a)
	case asm.AddrGlobal:
		a, ok := m.globals[x.Global]
		if !ok {
			return next, false, errors.New("no global v%d", x.Global)
		}

		r[x.Out] = a
	default:
		panic(x)
	}

	return next, false, err
}

func (m *Machine) jump(f *asm.Func, l int) (int, bool, error) {
	i, ok := m.labels[f][l]
	if !ok {
		return -1, false, errors.New("no label l%d", l)
	}

	return i, false, nil
}

func (m *Machine) runtime(name string) (err error) {
	r := &m.Regs
	a0, a1 := r[reg.A0], r[reg.A1]

	var ret int32

	switch name {
	case "getint", "getch":
		ret, err = m.read()
	case "getarray":
		ret, err = m.read()
		if err != nil {
			return err
		}

		for i := int32(0); i < ret && err == nil; i++ {
			var x int32

			x, err = m.read()
			if err == nil {
				err = m.Store(a0+4*i, x)
			}
		}
	case "putint":
		m.Output = strconv.AppendInt(m.Output, int64(a0), 10)
	case "putch":
		m.Output = append(m.Output, byte(a0))
	case "putarray":
		m.Output = strconv.AppendInt(m.Output, int64(a0), 10)
		m.Output = append(m.Output, ':')

		for i := int32(0); i < a0 && err == nil; i++ {
			var x int32

			x, err = m.Load(a1 + 4*i)

			m.Output = append(m.Output, ' ')
			m.Output = strconv.AppendInt(m.Output, int64(x), 10)
		}

		m.Output = append(m.Output, '\n')
	case "_sysy_starttime", "_sysy_stoptime":
	default:
		return errors.New("undefined function: %v", name)
	}

	if err != nil {
		return errors.Wrap(err, "%v", name)
	}

	for _, x := range reg.All.Slice() {
		r[x] = poison
	}

	r[reg.A0] = ret

	return nil
}

func (m *Machine) read() (int32, error) {
	if len(m.Input) == 0 {
		return 0, errors.New("input exhausted")
	}

	x := m.Input[0]
	m.Input = m.Input[1:]

	return x, nil
}

func (m *Machine) index(addr int32) (int, error) {
	if addr%4 != 0 || addr < 4 || int(addr/4) >= len(m.mem) {
		return 0, errors.New("bad address: %#x", addr)
	}

	return int(addr / 4), nil
}

func binary(op ir.BinOp, x, y int32) (int32, error) {
	switch op {
	case ir.Add:
		return x + y, nil
	case ir.Sub:
		return x - y, nil
	case ir.Mul:
		return x * y, nil
	case ir.Div, ir.Mod:
		if y == 0 {
			return 0, errors.New("division by zero")
		}

		if op == ir.Div {
			return x / y, nil
		}

		return x % y, nil
	}

	if rel, ok := op.Rel(); ok {
		return b2i(compare(rel, x, y)), nil
	}

	return 0, errors.New("unsupported operator: %v", op)
}

func compare(rel ir.Rel, x, y int32) bool {
	switch rel {
	case ir.Less:
		return x < y
	case ir.Greater:
		return x > y
	case ir.LessEq:
		return x <= y
	case ir.GreaterEq:
		return x >= y
	case ir.Equal:
		return x == y
	case ir.NotEqual:
		return x != y
	}

	panic(rel)
}

func b2i(x bool) int32 {
	if x {
		return 1
	}

	return 0
}
