/*
Package compiler drives the backend pipeline.

	Resolved Tree (ast) ->
		irgen ->
	Three Address Code (ir) <- ir.Parse <- IR Text
		peephole ->
		cfg, live, graph, regalloc ->
	Allocated IR ->
		clobber, back ->
	Abstract Machine Code (asm) ->
		asm.Format -> Abstract Machine Text
		riscv.Format -> Assembly Text

Builtin patterns are recognized on the tree and replace
the body of matched functions with hand-written code.
*/
package compiler
