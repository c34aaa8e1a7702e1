package compiler

import (
	"context"
	"os"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/xmcp/atoz/compiler/asm"
	"github.com/xmcp/atoz/compiler/asm/riscv"
	"github.com/xmcp/atoz/compiler/ast"
	"github.com/xmcp/atoz/compiler/back"
	"github.com/xmcp/atoz/compiler/builtin"
	"github.com/xmcp/atoz/compiler/clobber"
	"github.com/xmcp/atoz/compiler/ir"
	"github.com/xmcp/atoz/compiler/irgen"
	"github.com/xmcp/atoz/compiler/peephole"
	"github.com/xmcp/atoz/compiler/reg"
	"github.com/xmcp/atoz/compiler/regalloc"
)

type (
	Mode int

	Options struct {
		Mode Mode

		NoPeephole bool
		NoBuiltins bool

		// Regs limits the register file, all allocatable registers if empty.
		Regs []reg.Reg
	}
)

const (
	ModeAsm Mode = iota
	ModeIR
	ModeAnnotated
	ModeTigger
)

// CompileFile reads IR text and compiles it.
func CompileFile(ctx context.Context, name string, opts Options) (obj []byte, err error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	tlog.SpanFromContext(ctx).Printw("read file", "size", len(text), "name", name)

	r, err := ir.Parse(name, text)
	if err != nil {
		return nil, errors.Wrap(err, "parse")
	}

	return Compile(ctx, r, opts)
}

// CompileAST generates IR from the resolved tree and compiles it.
func CompileAST(ctx context.Context, cu *ast.CompUnit, opts Options) (obj []byte, err error) {
	r, err := irgen.Generate(ctx, cu, irgen.Options{NoBuiltins: opts.NoBuiltins})
	if err != nil {
		return nil, errors.Wrap(err, "generate ir")
	}

	return Compile(ctx, r, opts)
}

// Compile runs the pipeline up to the stage the mode asks for and formats the result.
func Compile(ctx context.Context, r *ir.Root, opts Options) (obj []byte, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile", "mode", opts.Mode, "funcs", len(r.Funcs))
	defer tr.Finish("err", &err)

	if !opts.NoPeephole {
		Optimize(ctx, r)
	}

	if opts.Mode == ModeIR {
		return ir.Format(nil, r, false), nil
	}

	err = Allocate(ctx, r, opts)
	if err != nil {
		return nil, err
	}

	if opts.Mode == ModeAnnotated {
		return ir.Format(nil, r, true), nil
	}

	a, err := Lower(ctx, r)
	if err != nil {
		return nil, err
	}

	switch opts.Mode {
	case ModeTigger:
		return asm.Format(nil, a)
	case ModeAsm:
		return riscv.Format(nil, a)
	}

	return nil, errors.New("unsupported mode: %v", opts.Mode)
}

// Optimize applies IR peephole fusions to every function.
func Optimize(ctx context.Context, r *ir.Root) {
	for _, f := range r.Funcs {
		peephole.Optimize(ctx, f)
	}
}

// Allocate assigns locations to every function.
func Allocate(ctx context.Context, r *ir.Root, opts Options) error {
	for _, f := range r.Funcs {
		st, err := regalloc.Func(ctx, f, regalloc.Options{Regs: opts.Regs})
		if err != nil {
			return errors.Wrap(err, "func %v", f.Name)
		}

		tlog.SpanFromContext(ctx).V("regalloc_stats").Printw("allocated", "func", f.Name, "nodes", st.Nodes, "spills", len(st.Spills), "swaps", st.Swaps, "spill_size", f.SpillSize)
	}

	return nil
}

// Lower propagates clobber sets and makes abstract machine code.
// Registers must be allocated.
func Lower(ctx context.Context, r *ir.Root) (*asm.Root, error) {
	err := clobber.Propagate(ctx, r, builtin.Clobbers(r))
	if err != nil {
		return nil, errors.Wrap(err, "clobber")
	}

	a, err := back.New().CompilePackage(ctx, r)
	if err != nil {
		return nil, errors.Wrap(err, "lower")
	}

	return a, nil
}

func (m Mode) String() string {
	switch m {
	case ModeAsm:
		return "asm"
	case ModeIR:
		return "ir"
	case ModeAnnotated:
		return "annotated"
	case ModeTigger:
		return "tigger"
	}

	return "unknown"
}
