package main

import (
	"context"
	"os"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/xmcp/atoz/compiler"
)

func main() {
	app := &cli.Command{
		Name:        "atoz",
		Description: "atoz compiles three address code to RISC-V assembly\n\n\tatoz -S [-e|-a|-t|-m] <input> -o <output>",
		Action:      compileAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("S", false, "compile to text (accepted for compatibility)"),
			cli.NewFlag("e", false, "emit three address code"),
			cli.NewFlag("a", false, "emit three address code annotated with locations and liveness"),
			cli.NewFlag("t", false, "emit abstract machine code"),
			cli.NewFlag("m", false, "emit assembly (default)"),
			cli.NewFlag("o", "", "output file (stdout if empty)"),
			cli.NewFlag("no-peephole", false, "disable peephole optimizations"),
			cli.NewFlag("no-builtins", false, "disable builtin pattern substitution"),
			cli.NewFlag("verbosity,v", "", "logger verbosity topics"),
			cli.HelpFlag,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func compileAct(c *cli.Command) (err error) {
	tlog.SetVerbosity(c.String("verbosity"))

	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	if len(c.Args) != 1 {
		return errors.New("expected one input file, got %d", len(c.Args))
	}

	opts := compiler.Options{
		NoPeephole: c.Bool("no-peephole"),
		NoBuiltins: c.Bool("no-builtins"),
	}

	modes := 0

	for _, m := range []struct {
		flag string
		mode compiler.Mode
	}{
		{"e", compiler.ModeIR},
		{"a", compiler.ModeAnnotated},
		{"t", compiler.ModeTigger},
		{"m", compiler.ModeAsm},
	} {
		if c.Bool(m.flag) {
			opts.Mode = m.mode
			modes++
		}
	}

	if modes > 1 {
		return errors.New("more than one output mode")
	}

	obj, err := compiler.CompileFile(ctx, c.Args[0], opts)
	if err != nil {
		return errors.Wrap(err, "compile %v", c.Args[0])
	}

	out := c.String("o")
	if out == "" {
		_, err = os.Stdout.Write(obj)
		return err
	}

	err = os.WriteFile(out, obj, 0o644)
	if err != nil {
		return errors.Wrap(err, "write output")
	}

	return nil
}
