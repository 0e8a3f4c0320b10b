package dflow

import "github.com/Urethramancer/ncdec/ir"

// Chunk is one (subrange, {defining write terms}) pair of a read term's
// reaching definitions: subrange is a sub-interval of the read's own
// location, and Defs holds every write-mode term whose effect reaches
// that sub-interval.
type Chunk struct {
	Range ir.MemoryLocation
	Defs  []*ir.Term
}

// Definitions is the set of chunks reaching a single read-mode term.
type Definitions struct {
	chunks []Chunk
}

// Chunks returns the definition chunks, in the order they were recorded.
func (d Definitions) Chunks() []Chunk { return d.chunks }

// Empty reports whether no definitions reach the term at all.
func (d Definitions) Empty() bool { return len(d.chunks) == 0 }

// Dataflow is the per-function derived table produced by the fixpoint
// engine: an abstract value per term, reaching definitions per read-mode
// term (split by sub-range), and a resolved memory location per
// dereference term.
type Dataflow struct {
	values      map[*ir.Term]Value
	definitions map[*ir.Term][]Chunk
	locations   map[*ir.Term]ir.MemoryLocation
}

// NewDataflow creates an empty dataflow table.
func NewDataflow() *Dataflow {
	return &Dataflow{
		values:      make(map[*ir.Term]Value),
		definitions: make(map[*ir.Term][]Chunk),
		locations:   make(map[*ir.Term]ir.MemoryLocation),
	}
}

// GetValue returns the abstract value computed for t, or the bottom value
// at t's width if none was ever recorded.
func (d *Dataflow) GetValue(t *ir.Term) Value {
	if v, ok := d.values[t]; ok {
		return v
	}
	return Bottom(t.Width)
}

// SetValue records the abstract value for t.
func (d *Dataflow) SetValue(t *ir.Term, v Value) {
	d.values[t] = v
}

// GetDefinitions returns the reaching-definitions chunks for read-mode
// term t, or an empty set if none were ever recorded.
func (d *Dataflow) GetDefinitions(t *ir.Term) Definitions {
	return Definitions{chunks: d.definitions[t]}
}

// SetDefinitions replaces the reaching-definitions chunks for t.
func (d *Dataflow) SetDefinitions(t *ir.Term, chunks []Chunk) {
	d.definitions[t] = chunks
}

// AddDefinition records that write reaches the sub-range rng of read term
// t, merging with any existing chunk for an identical range.
func (d *Dataflow) AddDefinition(t *ir.Term, rng ir.MemoryLocation, write *ir.Term) {
	chunks := d.definitions[t]
	for i := range chunks {
		if chunks[i].Range.Equals(rng) {
			chunks[i].Defs = append(chunks[i].Defs, write)
			d.definitions[t] = chunks
			return
		}
	}
	d.definitions[t] = append(chunks, Chunk{Range: rng, Defs: []*ir.Term{write}})
}

// GetMemoryLocation returns the location a dereference term's address
// resolved to, if dataflow could determine one.
func (d *Dataflow) GetMemoryLocation(t *ir.Term) (ir.MemoryLocation, bool) {
	loc, ok := d.locations[t]
	return loc, ok
}

// SetMemoryLocation records the resolved location for a dereference term.
func (d *Dataflow) SetMemoryLocation(t *ir.Term, loc ir.MemoryLocation) {
	d.locations[t] = loc
}

// IsReturn reports whether jump is the function's return: an indirect
// jump through a dereference of the stack pointer location with no
// statically known target, which is how a RET/ReturnHook lowering is
// recognised downstream (liveness and calling-convention hooks share
// this helper, grounded on dflow::isReturn in the original source).
func IsReturn(jump *ir.Statement, d *Dataflow, spDomain int32) bool {
	if jump == nil || jump.Kind != ir.Jump {
		return false
	}
	if jump.Condition != nil {
		return false
	}
	if jump.ThenTarget.Address == nil {
		return false
	}
	addr, ok := jump.ThenTarget.Address.AsDereference()
	if !ok {
		return false
	}
	loc, ok := d.GetMemoryLocation(addr)
	return ok && loc.Domain == spDomain
}

// termLocation returns the memory location a read-mode term t observes:
// its own Location for a MemoryLocationAccess, or the resolved location
// recorded by the fixpoint for a Dereference.
func termLocation(t *ir.Term, d *Dataflow) (ir.MemoryLocation, bool) {
	switch t.Kind {
	case ir.MemoryLocationAccess:
		return t.Location, true
	case ir.Dereference:
		return d.GetMemoryLocation(t)
	default:
		return ir.MemoryLocation{}, false
	}
}

// FirstCopy walks zero-width-preserving identity assignments in d to reach
// the earliest semantically identical source term for t — copy-through
// resolution. If t has no single identity-copy definition, t itself is
// returned.
func FirstCopy(t *ir.Term, d *Dataflow) *ir.Term {
	for {
		if t == nil || !t.IsRead() {
			return t
		}
		defs := d.GetDefinitions(t)
		chunks := defs.Chunks()
		if len(chunks) != 1 || len(chunks[0].Defs) != 1 {
			return t
		}
		loc, ok := termLocation(t, d)
		if !ok || !chunks[0].Range.Equals(loc) {
			return t
		}
		write := chunks[0].Defs[0]
		source := write.Source
		if source == nil || source.Width != t.Width {
			return t
		}
		t = source
	}
}
