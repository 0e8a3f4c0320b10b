package pipeline

import (
	"github.com/pkg/errors"

	"github.com/Urethramancer/ncdec/ir"
	"github.com/Urethramancer/ncdec/ir/dflow"
)

// InlineCall replaces call, a Call statement inside caller, with a fresh
// copy of callee's blocks spliced into caller's control flow: the call
// becomes a jump to the cloned entry, and every block dflow recognises as
// callee's return (dflow.IsReturn, evaluated against calleeDataflow, the
// analysis already computed for callee on its own) becomes a jump to the
// statements that used to follow the call.
//
// The caller is responsible for re-running the full per-function analysis
// chain afterwards — InlineCall only rewrites the IR.
func InlineCall(caller *ir.Function, call *ir.Statement, callee *ir.Function, calleeDataflow *dflow.Dataflow, stackDomain int32) error {
	b := call.Block
	if b == nil || b.Function != caller {
		return errors.New("pipeline: call statement does not belong to caller")
	}
	idx := indexOfStatement(b, call)
	if idx < 0 {
		return errors.New("pipeline: call statement not found in its own block")
	}
	if callee.Entry == nil {
		return errors.New("pipeline: callee has no entry block")
	}

	cont, err := ir.SplitBlock(b, idx+1)
	if err != nil {
		return errors.Wrap(err, "pipeline: splitting call site")
	}
	// Drop the call itself and the unconditional jump SplitBlock appended
	// to cont; both are superseded by the inlined control flow below.
	b.Statements = b.Statements[:idx]

	mapping := ir.CloneBlocks(callee.Blocks, caller)
	if caller.Program != nil {
		for _, nb := range mapping {
			caller.Program.ReindexBlock(nb)
		}
	}

	entryClone := mapping[callee.Entry]
	b.Append(ir.NewJump(nil, ir.JumpTarget{Block: entryClone}, ir.JumpTarget{}))

	for _, orig := range callee.Blocks {
		jump := orig.GetJump()
		if jump == nil || !dflow.IsReturn(jump, calleeDataflow, stackDomain) {
			continue
		}
		clone := mapping[orig]
		ir.ReplaceTerminator(clone, ir.NewJump(nil, ir.JumpTarget{Block: cont}, ir.JumpTarget{}))
	}

	return nil
}

func indexOfStatement(b *ir.BasicBlock, s *ir.Statement) int {
	for i, st := range b.Statements {
		if st == s {
			return i
		}
	}
	return -1
}
