package calling

import (
	"github.com/Urethramancer/ncdec/arch"
	"github.com/Urethramancer/ncdec/ir"
	"github.com/Urethramancer/ncdec/ir/dflow"
)

// EntryHook materialises one read-mode term per argument location
// declared by a function's signature, installed at its entry block.
type EntryHook struct {
	Function  *ir.Function
	Arguments map[ir.MemoryLocation]*ir.Term
}

// GetArgumentTerm returns the synthetic read term for loc, or nil.
func (h *EntryHook) GetArgumentTerm(loc ir.MemoryLocation) *ir.Term { return h.Arguments[loc] }

// CallHook emits write-mode terms for arguments and read-mode terms for
// return-value locations at one call site.
type CallHook struct {
	Call      *ir.Statement
	Arguments map[ir.MemoryLocation]*ir.Term
	Returns   map[ir.MemoryLocation]*ir.Term
}

// GetArgumentTerm returns the synthetic write term for loc, or nil.
func (h *CallHook) GetArgumentTerm(loc ir.MemoryLocation) *ir.Term { return h.Arguments[loc] }

// GetReturnTerm returns the synthetic read term for loc, or nil.
func (h *CallHook) GetReturnTerm(loc ir.MemoryLocation) *ir.Term { return h.Returns[loc] }

// ReturnHook emits a read-mode term for the return-value location at one
// return statement.
type ReturnHook struct {
	Jump            *ir.Statement
	ReturnValueTerm *ir.Term
}

// GetReturnValueTerm returns the synthetic read term for loc if it matches
// the hook's return-value location, or nil.
func (h *ReturnHook) GetReturnValueTerm(loc ir.MemoryLocation) *ir.Term {
	if h.ReturnValueTerm != nil && h.ReturnValueTerm.Location.Equals(loc) {
		return h.ReturnValueTerm
	}
	return nil
}

// Hooks is the collection of installed hooks for one function, looked up
// by liveness and variable reconstruction.
type Hooks struct {
	Entry   *EntryHook
	Calls   map[*ir.Statement]*CallHook
	Returns map[*ir.Statement]*ReturnHook
}

// NewHooks creates an empty hook collection.
func NewHooks() *Hooks {
	return &Hooks{Calls: make(map[*ir.Statement]*CallHook), Returns: make(map[*ir.Statement]*ReturnHook)}
}

// GetCallHook returns the hook installed at call, or nil.
func (h *Hooks) GetCallHook(call *ir.Statement) *CallHook { return h.Calls[call] }

// GetReturnHook returns the hook installed at jump, or nil.
func (h *Hooks) GetReturnHook(jump *ir.Statement) *ReturnHook { return h.Returns[jump] }

// InstallEntryHook prepends argument-materialisation statements to fn's
// entry block. If sig is nil, the architecture's default convention is
// used and the hook heuristically keeps only the locations that dataflow
// shows have no definition before their first use anywhere in fn — i.e.
// are genuinely live coming into the function — heuristically inferring
// which argument registers/slots are actually live on entry.
//
// This must run after an initial Dataflow pass has populated d, and the
// caller is expected to re-run Dataflow afterwards so that the synthetic
// argument terms become visible as definitions to the rest of the
// pipeline — hooks observe dataflow's first pass and dataflow observes
// hooks' output on its second, per the Open Question resolution recorded
// in DESIGN.md.
func InstallEntryHook(fn *ir.Function, sig *Signature, conv arch.Convention, d *dflow.Dataflow) *EntryHook {
	hook := &EntryHook{Function: fn, Arguments: make(map[ir.MemoryLocation]*ir.Term)}
	if fn.Entry == nil {
		return hook
	}

	var locations []ir.MemoryLocation
	if sig != nil {
		locations = sig.Arguments
	} else {
		locations = inferLiveInLocations(fn, conv.ArgumentLocations, d)
	}

	var stmts []*ir.Statement
	for _, loc := range locations {
		term := ir.NewMemoryLocationAccess(loc, ir.Read)
		hook.Arguments[loc] = term
		stmts = append(stmts, ir.NewTouch(term))
	}
	prependStatements(fn.Entry, stmts)
	return hook
}

// inferLiveInLocations keeps only the candidate locations that dataflow
// shows reach at least one read with empty reaching definitions anywhere
// in the function — i.e. the value must have flowed in from the caller.
func inferLiveInLocations(fn *ir.Function, candidates []ir.MemoryLocation, d *dflow.Dataflow) []ir.MemoryLocation {
	liveIn := make(map[ir.MemoryLocation]bool)
	for _, b := range fn.Blocks {
		for _, s := range b.Statements {
			s.Terms(func(t *ir.Term) {
				walkReads(t, d, liveIn)
			})
		}
	}

	var result []ir.MemoryLocation
	for _, c := range candidates {
		for loc := range liveIn {
			if loc.Overlaps(c) {
				result = append(result, c)
				break
			}
		}
	}
	return result
}

func walkReads(t *ir.Term, d *dflow.Dataflow, liveIn map[ir.MemoryLocation]bool) {
	if t == nil {
		return
	}
	if t.Kind == ir.MemoryLocationAccess && t.IsRead() {
		if d.GetDefinitions(t).Empty() {
			liveIn[t.Location] = true
		}
	}
	switch t.Kind {
	case ir.Dereference:
		walkReads(t.Address, d, liveIn)
	case ir.UnaryOperator:
		walkReads(t.Operand, d, liveIn)
	case ir.BinaryOperator:
		walkReads(t.Left, d, liveIn)
		walkReads(t.Right, d, liveIn)
	case ir.Choice:
		walkReads(t.Preferred, d, liveIn)
		walkReads(t.Fallback, d, liveIn)
	}
}

func prependStatements(block *ir.BasicBlock, stmts []*ir.Statement) {
	if len(stmts) == 0 {
		return
	}
	for _, s := range stmts {
		s.Block = block
	}
	block.Statements = append(stmts, block.Statements...)
}

// InstallCallHook materialises argument write terms and return-value read
// terms around call, fed by the caller's dataflow. The
// argument write terms are sourced from whatever the call's own argument
// terms (if already lowered from the calling convention) provide; when no
// signature is known, conv.ArgumentLocations is used instead.
func InstallCallHook(call *ir.Statement, sig *Signature, conv arch.Convention) *CallHook {
	hook := &CallHook{Call: call, Arguments: make(map[ir.MemoryLocation]*ir.Term), Returns: make(map[ir.MemoryLocation]*ir.Term)}
	if call.Block == nil {
		return hook
	}

	argLocations := conv.ArgumentLocations
	var retLocation *ir.MemoryLocation
	if sig != nil {
		argLocations = sig.Arguments
		retLocation = sig.ReturnValue
	} else {
		retLocation = conv.ReturnLocation
	}

	var before []*ir.Statement
	for _, loc := range argLocations {
		source := ir.NewMemoryLocationAccess(loc, ir.Read)
		target := ir.NewMemoryLocationAccess(loc, ir.Write)
		before = append(before, ir.NewAssignment(target, source))
		hook.Arguments[loc] = target
	}
	insertBefore(call.Block, call, before)

	if retLocation != nil {
		term := ir.NewMemoryLocationAccess(*retLocation, ir.Read)
		hook.Returns[*retLocation] = term
		insertAfter(call.Block, call, []*ir.Statement{ir.NewTouch(term)})
	}
	return hook
}

// InstallReturnHook materialises a return-value read term at jump, a
// function return, per the function's signature.
func InstallReturnHook(jump *ir.Statement, sig *Signature) *ReturnHook {
	hook := &ReturnHook{Jump: jump}
	if sig == nil || sig.ReturnValue == nil || jump.Block == nil {
		return hook
	}
	term := ir.NewMemoryLocationAccess(*sig.ReturnValue, ir.Read)
	hook.ReturnValueTerm = term
	insertBefore(jump.Block, jump, []*ir.Statement{ir.NewTouch(term)})
	return hook
}

func insertBefore(block *ir.BasicBlock, anchor *ir.Statement, stmts []*ir.Statement) {
	if len(stmts) == 0 {
		return
	}
	idx := indexOf(block, anchor)
	if idx < 0 {
		return
	}
	insertAt(block, idx, stmts)
}

func insertAfter(block *ir.BasicBlock, anchor *ir.Statement, stmts []*ir.Statement) {
	if len(stmts) == 0 {
		return
	}
	idx := indexOf(block, anchor)
	if idx < 0 {
		return
	}
	insertAt(block, idx+1, stmts)
}

func indexOf(block *ir.BasicBlock, s *ir.Statement) int {
	for i, st := range block.Statements {
		if st == s {
			return i
		}
	}
	return -1
}

func insertAt(block *ir.BasicBlock, idx int, stmts []*ir.Statement) {
	for _, s := range stmts {
		s.Block = block
	}
	tail := append([]*ir.Statement{}, block.Statements[idx:]...)
	block.Statements = append(block.Statements[:idx], append(stmts, tail...)...)
}
