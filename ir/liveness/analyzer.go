package liveness

import (
	"github.com/Urethramancer/ncdec/arch"
	"github.com/Urethramancer/ncdec/ir"
	"github.com/Urethramancer/ncdec/ir/calling"
	"github.com/Urethramancer/ncdec/ir/cflow"
	"github.com/Urethramancer/ncdec/ir/dflow"
)

// Analyzer computes which terms of a function contribute to emitted code,
// working backward from a set of roots — terms whose evaluation has an
// effect observable outside the function regardless of who reads their
// result — through reaching definitions and term structure.
type Analyzer struct {
	Function   *ir.Function
	Dataflow   *dflow.Dataflow
	Arch       arch.Architecture
	Hooks      *calling.Hooks
	Signatures *calling.SignatureRepository
	// Structure is the reduced region tree for Function, used to exclude
	// the bounds-check and table-dispatch jumps already expressed by a
	// recognised Switch from being treated as independent generic jump
	// roots — a recognised switch's test and jump-table read are restated
	// structurally, not left as raw conditions.
	Structure *cflow.Node
}

// Analyze runs the two phases (root collection, transitive propagation)
// and returns the resulting live-term set.
func (a *Analyzer) Analyze() *Liveness {
	live := New()
	dead := a.deadJumps()

	for _, b := range a.Function.Blocks {
		for _, s := range b.Statements {
			a.collectRoots(s, dead, live)
		}
	}
	a.collectSwitchRoots(a.Structure, live)

	for i := 0; i < len(live.LiveTerms()); i++ {
		a.propagate(live.LiveTerms()[i], live)
	}
	return live
}

// deadJumps collects the jump statements whose condition is already
// restated as a recognised Switch's dispatch or bounds check, so they are
// not also treated as ordinary conditional-jump roots.
func (a *Analyzer) deadJumps() map[*ir.Statement]bool {
	dead := make(map[*ir.Statement]bool)
	var walk func(n *cflow.Node)
	walk = func(n *cflow.Node) {
		if n == nil {
			return
		}
		switch n.Kind {
		case cflow.Switch:
			if n.Dispatch != nil {
				if j := n.Dispatch.GetJump(); j != nil {
					dead[j] = true
				}
			}
			if n.BoundsCheck != nil {
				if eb := cflow.ExitBlock(n.BoundsCheck); eb != nil {
					if j := eb.GetJump(); j != nil {
						dead[j] = true
					}
				}
			}
			for _, c := range n.Cases {
				walk(c.Target)
			}
			walk(n.Default)
		case cflow.Block, cflow.While, cflow.DoWhile:
			for _, c := range n.Children {
				walk(c)
			}
			if n.Kind == cflow.While {
				walk(n.Condition)
			}
		case cflow.If:
			walk(n.Condition)
			for _, c := range n.Children {
				walk(c)
			}
		case cflow.NaturalLoop:
			for _, m := range n.Members {
				walk(m)
			}
		}
	}
	walk(a.Structure)
	return dead
}

// collectSwitchRoots marks every recognised switch's index expression
// live, since it drives the dispatch even though its governing jump was
// excluded by deadJumps.
func (a *Analyzer) collectSwitchRoots(n *cflow.Node, live *Liveness) {
	if n == nil {
		return
	}
	switch n.Kind {
	case cflow.Switch:
		if n.Index != nil {
			live.MakeLive(n.Index)
		}
		for _, c := range n.Cases {
			a.collectSwitchRoots(c.Target, live)
		}
		a.collectSwitchRoots(n.Default, live)
	case cflow.Block, cflow.While, cflow.DoWhile:
		for _, c := range n.Children {
			a.collectSwitchRoots(c, live)
		}
	case cflow.If:
		for _, c := range n.Children {
			a.collectSwitchRoots(c, live)
		}
	case cflow.NaturalLoop:
		for _, m := range n.Members {
			a.collectSwitchRoots(m, live)
		}
	}
}

func (a *Analyzer) collectRoots(s *ir.Statement, dead map[*ir.Statement]bool, live *Liveness) {
	switch s.Kind {
	case ir.Jump:
		if !dead[s] {
			if s.Condition != nil {
				live.MakeLive(s.Condition)
			}
			if s.ThenTarget.Address != nil {
				live.MakeLive(s.ThenTarget.Address)
			}
			if s.ElseTarget.Address != nil {
				live.MakeLive(s.ElseTarget.Address)
			}
		}
		if rh := a.Hooks.GetReturnHook(s); rh != nil && rh.ReturnValueTerm != nil {
			live.MakeLive(rh.ReturnValueTerm)
		}
	case ir.Call:
		if s.Target != nil {
			live.MakeLive(s.Target)
		}
		if hook := a.Hooks.GetCallHook(s); hook != nil {
			for _, t := range hook.Arguments {
				live.MakeLive(t)
			}
		}
	case ir.Assignment:
		if a.isObservableWrite(s.Left) {
			live.MakeLive(s.Left)
		}
	case ir.Touch:
		if s.TouchTerm != nil && a.isObservableWrite(s.TouchTerm) {
			live.MakeLive(s.TouchTerm)
		}
	case ir.InlineAssembly, ir.Halt, ir.Callback, ir.RememberReachingDefinitions:
		// No terms, or (inline assembly) terms opaque to this analysis.
	}
}

// isObservableWrite reports whether a write-mode term's effect can be
// seen by something other than a later read this function's own
// dataflow already accounts for — global memory stores, writes through a
// dereference whose address dataflow could not resolve, and any write
// location the function's declared signature exposes as its return
// value (stack-local writes with no such consumer are dead unless some
// later read pulls them in via reaching definitions, handled in
// propagate).
func (a *Analyzer) isObservableWrite(t *ir.Term) bool {
	if t == nil || !t.IsWrite() {
		return false
	}
	if t.Kind == ir.MemoryLocationAccess && a.Arch != nil && a.Arch.IsGlobalMemory(t.Location) {
		return true
	}
	if t.Kind == ir.Dereference {
		if _, resolved := a.Dataflow.GetMemoryLocation(t); !resolved {
			return true
		}
	}
	if sig := a.Signatures.GetFunctionSignature(a.Function); sig != nil && sig.ReturnValue != nil {
		if t.Kind == ir.MemoryLocationAccess && t.Location.Equals(*sig.ReturnValue) {
			return true
		}
	}
	return false
}

func (a *Analyzer) propagate(t *ir.Term, live *Liveness) {
	if t == nil {
		return
	}
	switch t.Kind {
	case ir.Dereference:
		if t.IsRead() {
			a.markDefsLive(t, live)
		} else if t.IsWrite() && t.Source != nil {
			live.MakeLive(t.Source)
		}
		if _, resolved := a.Dataflow.GetMemoryLocation(t); !resolved {
			live.MakeLive(t.Address)
		}
	case ir.UnaryOperator:
		live.MakeLive(t.Operand)
	case ir.BinaryOperator:
		live.MakeLive(t.Left)
		live.MakeLive(t.Right)
	case ir.Choice:
		live.MakeLive(t.Preferred)
		live.MakeLive(t.Fallback)
	case ir.MemoryLocationAccess:
		if t.IsRead() {
			a.markDefsLive(t, live)
		} else if t.IsWrite() && t.Source != nil {
			live.MakeLive(t.Source)
		}
	case ir.IntConst, ir.Intrinsic:
		// Leaves.
	}
}

// markDefsLive marks every write term reaching read-mode term t live,
// along with the value each of those writes assigns — the latter via
// Term.Source, the assignment back-pointer populated by ir.NewAssignment.
func (a *Analyzer) markDefsLive(t *ir.Term, live *Liveness) {
	for _, chunk := range a.Dataflow.GetDefinitions(t).Chunks() {
		for _, w := range chunk.Defs {
			live.MakeLive(w)
			if w.Source != nil {
				live.MakeLive(w.Source)
			}
		}
	}
}
