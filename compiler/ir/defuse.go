package ir

// Defs returns pooled values written by the statement.
func (f *Func) Defs(s any) (r []Reguid) {
	add := func(v Val) {
		if u, ok := f.Reguid(v); ok {
			r = append(r, u)
		}
	}

	switch s := s.(type) {
	case *Binary:
		add(s.Dst)
	case *Unary:
		add(s.Dst)
	case *Mov:
		add(s.Dst)
	case *ArrayGet:
		add(s.Dst)
	case *Call:
		add(s.Ret)
	case *ArraySet, *CondGoto, *Goto, *Label, *CallVoid, *ReturnVoid, *Return, *FillZero:
	default:
		panic(s)
	}

	return r
}

// Uses returns pooled values read by the statement.
// Array base pointers held in pooled values are uses too.
func (f *Func) Uses(s any) (r []Reguid) {
	add := func(v Val) {
		if u, ok := f.Reguid(v); ok {
			r = append(r, u)
		}
	}

	switch s := s.(type) {
	case *Binary:
		add(s.L)
		add(s.R)
	case *Unary:
		add(s.X)
	case *Mov:
		add(s.Src)
	case *ArraySet:
		add(s.Dst)
		add(s.Src)
	case *ArrayGet:
		add(s.Src)
	case *CondGoto:
		add(s.L)
		add(s.R)
	case *CallVoid:
		for _, p := range s.Args {
			add(p.Val)
		}
	case *Call:
		for _, p := range s.Args {
			add(p.Val)
		}
	case *Return:
		add(s.Val)
	case *Goto, *Label, *ReturnVoid, *FillZero:
	default:
		panic(s)
	}

	return r
}

// Dst returns the value written by the statement, if any.
func Dst(s any) (Val, bool) {
	switch s := s.(type) {
	case *Binary:
		return s.Dst, true
	case *Unary:
		return s.Dst, true
	case *Mov:
		return s.Dst, true
	case *ArrayGet:
		return s.Dst, true
	case *Call:
		return s.Ret, true
	}

	return Val{}, false
}

// SetDst replaces the value written by the statement.
func SetDst(s any, v Val) {
	switch s := s.(type) {
	case *Binary:
		s.Dst = v
	case *Unary:
		s.Dst = v
	case *Mov:
		s.Dst = v
	case *ArrayGet:
		s.Dst = v
	case *Call:
		s.Ret = v
	default:
		panic(s)
	}
}

// Calls returns callee name for call statements.
func Calls(s any) (*CallVoid, bool) {
	switch s := s.(type) {
	case *CallVoid:
		return s, true
	case *Call:
		return &s.CallVoid, true
	}

	return nil, false
}
