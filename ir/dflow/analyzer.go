package dflow

import (
	"fmt"

	"github.com/willf/bitset"

	"github.com/Urethramancer/ncdec/ir"
)

// Logger is the minimal logging surface the engine needs; satisfied by
// internal/logging.Logger without creating an import cycle.
type Logger interface {
	Warningf(format string, args ...interface{})
}

// CancelChecker is polled between block visits. Satisfied by
// pipeline.CancelToken.
type CancelChecker interface {
	IsCancelled() bool
}

// ErrCancelled is returned by Analyze when the cancellation token fires
// mid-fixpoint; no partial Dataflow is exposed in that case.
var ErrCancelled = fmt.Errorf("dflow: cancelled")

// rangeWrite is one write-mode term and the exact sub-range of a domain it
// last defined.
type rangeWrite struct {
	rng  ir.MemoryLocation
	term *ir.Term
}

type domainState struct {
	writes []rangeWrite
}

func (s *domainState) put(rng ir.MemoryLocation, term *ir.Term) {
	for i, w := range s.writes {
		if w.term == term {
			s.writes[i] = rangeWrite{rng: rng, term: term}
			return
		}
	}
	s.writes = append(s.writes, rangeWrite{rng: rng, term: term})
}

func cloneState(state map[int32]*domainState) map[int32]*domainState {
	out := make(map[int32]*domainState, len(state))
	for k, v := range state {
		writes := make([]rangeWrite, len(v.writes))
		copy(writes, v.writes)
		out[k] = &domainState{writes: writes}
	}
	return out
}

func mergeStates(a, b map[int32]*domainState) map[int32]*domainState {
	out := cloneState(a)
	for domain, bs := range b {
		as, ok := out[domain]
		if !ok {
			writes := make([]rangeWrite, len(bs.writes))
			copy(writes, bs.writes)
			out[domain] = &domainState{writes: writes}
			continue
		}
		seen := make(map[*ir.Term]bool, len(as.writes))
		for _, w := range as.writes {
			seen[w.term] = true
		}
		for _, w := range bs.writes {
			if !seen[w.term] {
				as.writes = append(as.writes, w)
				seen[w.term] = true
			}
		}
	}
	return out
}

func statesEqual(a, b map[int32]*domainState) bool {
	if len(a) != len(b) {
		return false
	}
	for domain, as := range a {
		bs, ok := b[domain]
		if !ok || len(as.writes) != len(bs.writes) {
			return false
		}
		index := make(map[*ir.Term]ir.MemoryLocation, len(as.writes))
		for _, w := range as.writes {
			index[w.term] = w.rng
		}
		for _, w := range bs.writes {
			rng, ok := index[w.term]
			if !ok || !rng.Equals(w.rng) {
				return false
			}
		}
	}
	return true
}

// resolveRead decomposes loc into the chunks reached by writes, most
// recent write in the list taking priority for overlapping bytes, so that
// e.g. a 32-bit read with one write covering its low 16 bits and another
// covering its high 16 bits yields two chunks.
func resolveRead(loc ir.MemoryLocation, writes []rangeWrite) []Chunk {
	type interval struct{ lo, hi int64 }
	uncovered := []interval{{loc.OffsetBits, loc.End()}}
	var chunks []Chunk

	for i := len(writes) - 1; i >= 0 && len(uncovered) > 0; i-- {
		w := writes[i]
		if w.rng.Domain != loc.Domain {
			continue
		}
		var next []interval
		for _, u := range uncovered {
			lo, hi := u.lo, u.hi
			ilo, ihi := w.rng.OffsetBits, w.rng.End()
			if ilo >= hi || ihi <= lo {
				next = append(next, u)
				continue
			}
			clo, chi := max64(lo, ilo), min64(hi, ihi)
			if clo < chi {
				chunks = append(chunks, Chunk{
					Range: ir.MemoryLocation{Domain: loc.Domain, OffsetBits: clo, SizeBits: chi - clo},
					Defs:  []*ir.Term{w.term},
				})
			}
			if lo < clo {
				next = append(next, interval{lo, clo})
			}
			if chi < hi {
				next = append(next, interval{chi, hi})
			}
		}
		uncovered = next
	}
	return chunks
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// Analyzer runs the forward intraprocedural reaching-definitions fixpoint
// over one function.
type Analyzer struct {
	Function      *ir.Function
	StackDomain   int32
	MaxIterations int // per-block cap, default 100
	Cancel        CancelChecker
	Log           Logger
}

// NewAnalyzer builds an Analyzer with the default 100-iteration cap.
func NewAnalyzer(fn *ir.Function, stackDomain int32) *Analyzer {
	return &Analyzer{Function: fn, StackDomain: stackDomain, MaxIterations: 100}
}

// Analyze runs the fixpoint, returning the resulting Dataflow table, or
// ErrCancelled if the cancellation token fired.
func (a *Analyzer) Analyze() (*Dataflow, error) {
	d := NewDataflow()
	if a.Function.Entry == nil {
		return d, nil
	}

	out := make(map[*ir.BasicBlock]map[int32]*domainState, len(a.Function.Blocks))
	visits := make(map[*ir.BasicBlock]int, len(a.Function.Blocks))
	preds := a.Function.Predecessors()

	// blockIndex gives every block a dense slot so the pending-block set
	// below can live in a bitset instead of a map[*ir.BasicBlock]bool.
	blockIndex := make(map[*ir.BasicBlock]uint, len(a.Function.Blocks))
	for i, b := range a.Function.Blocks {
		blockIndex[b] = uint(i)
	}

	worklist := append([]*ir.BasicBlock{}, a.Function.Blocks...)
	inWorklist := bitset.New(uint(len(a.Function.Blocks)))
	for _, b := range worklist {
		inWorklist.Set(blockIndex[b])
	}

	for len(worklist) > 0 {
		if a.Cancel != nil && a.Cancel.IsCancelled() {
			return nil, ErrCancelled
		}

		block := worklist[0]
		worklist = worklist[1:]
		inWorklist.Clear(blockIndex[block])

		in := map[int32]*domainState{}
		if block == a.Function.Entry {
			in[a.StackDomain] = &domainState{}
		}
		for _, p := range preds[block] {
			if ps, ok := out[p]; ok {
				in = mergeStates(in, ps)
			}
		}

		newOut := a.replay(block, in, d)

		visits[block]++
		if visits[block] > a.MaxIterations {
			if a.Log != nil {
				a.Log.Warningf("dflow: block exceeded %d iterations, no longer propagating its out-state", a.MaxIterations)
			}
			out[block] = widenToTop(newOut)
			continue
		}

		prevOut, seen := out[block]
		if seen && statesEqual(prevOut, newOut) {
			continue
		}
		out[block] = newOut

		for _, succ := range block.Successors() {
			idx := blockIndex[succ]
			if !inWorklist.Test(idx) {
				worklist = append(worklist, succ)
				inWorklist.Set(idx)
			}
		}
	}

	return d, nil
}

// widenToTop returns a copy of state holding the same reaching writes. It
// does not set any term's recorded value to top: values already recorded
// for the capped block stay as its last replay computed them.
func widenToTop(state map[int32]*domainState) map[int32]*domainState {
	out := make(map[int32]*domainState, len(state))
	for k, v := range state {
		out[k] = &domainState{writes: v.writes}
	}
	return out
}

// replay re-executes block's statements starting from in, recording every
// visited term's value and every read's reaching definitions into d, and
// returns the resulting out-state.
func (a *Analyzer) replay(block *ir.BasicBlock, in map[int32]*domainState, d *Dataflow) map[int32]*domainState {
	state := cloneState(in)
	for _, s := range block.Statements {
		a.analyzeStatement(s, state, d)
	}
	return state
}

func (a *Analyzer) eval(t *ir.Term, state map[int32]*domainState, d *Dataflow) Value {
	if t == nil {
		return Value{}
	}
	var v Value
	switch t.Kind {
	case ir.IntConst:
		v = Value{Int: NewExact(t.Value, t.Width)}
	case ir.Intrinsic:
		v = Value{Int: NewTop(t.Width)}
	case ir.MemoryLocationAccess:
		if t.IsRead() {
			v = a.evalRead(t, t.Location, state, d)
		} else {
			v = Value{Int: NewTop(t.Width)}
		}
	case ir.Dereference:
		addr := a.eval(t.Address, state, d)
		if t.IsRead() {
			if addr.Offset.Valid {
				loc := ir.MemoryLocation{Domain: a.StackDomain, OffsetBits: addr.Offset.Value * 8, SizeBits: t.Width}
				d.SetMemoryLocation(t, loc)
				v = a.evalRead(t, loc, state, d)
				v.Location = loc
			} else {
				if a.Log != nil {
					a.Log.Warningf("dflow: unresolved dereference address, treating as top")
				}
				v = Value{Int: NewTop(t.Width)}
			}
		} else {
			v = Value{Int: NewTop(t.Width)}
		}
	case ir.UnaryOperator:
		operand := a.eval(t.Operand, state, d)
		v = evalUnary(t.UnaryKind, operand, t.Width)
	case ir.BinaryOperator:
		left := a.eval(t.Left, state, d)
		right := a.eval(t.Right, state, d)
		v = evalBinary(t.BinaryKind, left, right, t.Width)
	case ir.Choice:
		preferred := a.eval(t.Preferred, state, d)
		defs := d.GetDefinitions(t.Preferred)
		if !defs.Empty() {
			v = preferred
		} else {
			v = a.eval(t.Fallback, state, d)
		}
	default:
		if a.Log != nil {
			a.Log.Warningf("dflow: unsupported term kind %v, treating as top", t.Kind)
		}
		v = Value{Int: NewTop(t.Width)}
	}
	d.SetValue(t, v)
	return v
}

func (a *Analyzer) evalRead(t *ir.Term, loc ir.MemoryLocation, state map[int32]*domainState, d *Dataflow) Value {
	ds := state[loc.Domain]
	var writes []rangeWrite
	if ds != nil {
		writes = ds.writes
	}
	chunks := resolveRead(loc, writes)
	d.SetDefinitions(t, chunks)

	if len(chunks) == 1 && chunks[0].Range.Equals(loc) && len(chunks[0].Defs) == 1 {
		def := chunks[0].Defs[0]
		if dv, ok := lookupValue(d, def); ok {
			return Value{Int: dv.Int, Offset: dv.Offset}
		}
	}
	if len(chunks) == 0 && loc.Domain == a.StackDomain {
		// A read of the stack-pointer domain with no reaching write at all
		// is the function's own incoming stack pointer: the engine treats
		// it as a symbolic base, stack_offset=0, built into the lattice
		// rather than something a hook needs to seed.
		return Value{Int: NewTop(loc.SizeBits), Offset: SomeOffset(0)}
	}
	return Value{Int: NewTop(loc.SizeBits)}
}

func lookupValue(d *Dataflow, t *ir.Term) (Value, bool) {
	v := d.GetValue(t)
	return v, true
}

func evalUnary(kind ir.UnaryOp, v Value, width int64) Value {
	switch kind {
	case ir.NOT:
		if v.Int.IsConcrete() {
			if v.Int.AsConcrete() == 0 {
				return Value{Int: NewExact(1, width)}
			}
			return Value{Int: NewExact(0, width)}
		}
	case ir.NEG:
		if v.Int.IsConcrete() {
			return Value{Int: NewExact(uint64(-int64(v.Int.AsConcrete())), width)}
		}
	case ir.ZERO_EXTEND, ir.SIGN_EXTEND, ir.TRUNCATE:
		if v.Int.IsConcrete() {
			return Value{Int: NewExact(v.Int.AsConcrete(), width)}
		}
		if v.Offset.Valid {
			return Value{Offset: v.Offset, Int: NewTop(width)}
		}
	}
	return Value{Int: NewTop(width)}
}

func evalBinary(kind ir.BinaryOp, left, right Value, width int64) Value {
	if kind == ir.ADD || kind == ir.SUB {
		if off, ok := combineOffset(kind, left, right); ok {
			return Value{Offset: off, Int: NewTop(width)}
		}
	}
	return Value{Int: BinaryFold(kind, left.Int, right.Int, width)}
}

func combineOffset(kind ir.BinaryOp, left, right Value) (StackOffset, bool) {
	if left.Offset.Valid && right.Int.IsConcrete() {
		if kind == ir.ADD {
			return SomeOffset(left.Offset.Value + int64(right.Int.AsConcrete())), true
		}
		return SomeOffset(left.Offset.Value - int64(right.Int.AsConcrete())), true
	}
	if kind == ir.ADD && right.Offset.Valid && left.Int.IsConcrete() {
		return SomeOffset(right.Offset.Value + int64(left.Int.AsConcrete())), true
	}
	return StackOffset{}, false
}

func (a *Analyzer) analyzeStatement(s *ir.Statement, state map[int32]*domainState, d *Dataflow) {
	switch s.Kind {
	case ir.Assignment:
		rv := a.eval(s.Right, state, d)
		switch s.Left.Kind {
		case ir.MemoryLocationAccess:
			d.SetValue(s.Left, rv)
			st := state[s.Left.Location.Domain]
			if st == nil {
				st = &domainState{}
				state[s.Left.Location.Domain] = st
			}
			st.put(s.Left.Location, s.Left)
		case ir.Dereference:
			addr := a.eval(s.Left.Address, state, d)
			d.SetValue(s.Left, rv)
			if addr.Offset.Valid {
				loc := ir.MemoryLocation{Domain: a.StackDomain, OffsetBits: addr.Offset.Value * 8, SizeBits: s.Left.Width}
				d.SetMemoryLocation(s.Left, loc)
				d.SetValue(s.Left, Value{Int: rv.Int, Offset: rv.Offset, Location: loc})
				st := state[loc.Domain]
				if st == nil {
					st = &domainState{}
					state[loc.Domain] = st
				}
				st.put(loc, s.Left)
			} else if a.Log != nil {
				a.Log.Warningf("dflow: unresolved write address at instruction, target untracked")
			}
		}
	case ir.Touch:
		if s.TouchTerm == nil {
			return
		}
		if s.TouchTerm.IsRead() {
			a.eval(s.TouchTerm, state, d)
		}
		if s.TouchTerm.IsWrite() && s.TouchTerm.Kind == ir.MemoryLocationAccess {
			d.SetValue(s.TouchTerm, Value{Int: NewTop(s.TouchTerm.Width)})
			st := state[s.TouchTerm.Location.Domain]
			if st == nil {
				st = &domainState{}
				state[s.TouchTerm.Location.Domain] = st
			}
			st.put(s.TouchTerm.Location, s.TouchTerm)
		}
	case ir.Jump:
		a.eval(s.Condition, state, d)
		a.eval(s.ThenTarget.Address, state, d)
		a.eval(s.ElseTarget.Address, state, d)
	case ir.Call:
		a.eval(s.Target, state, d)
	case ir.Halt, ir.Callback, ir.InlineAssembly:
		// No data effects modelled at this level.
	case ir.RememberReachingDefinitions:
		// Deliberately inert: no pass constructs this statement, and the
		// per-block MaxIterations cap above is what actually bounds the
		// fixpoint in the presence of loops. See DESIGN.md.
	}
}
