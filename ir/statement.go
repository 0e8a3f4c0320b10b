package ir

// StatementKind tags the variant of a Statement.
type StatementKind int

const (
	// InlineAssembly is an opaque statement the analyses cannot see into.
	InlineAssembly StatementKind = iota
	// Assignment evaluates Right and stores it through Left.
	Assignment
	// Touch accesses a term with a given mode without any value flowing —
	// used to model implicit effects (e.g. flags clobbered by an opcode).
	Touch
	// Jump transfers control, optionally conditionally.
	Jump
	// Call transfers control to Target, expected to return.
	Call
	// Halt stops execution of the function.
	Halt
	// Callback is an opaque side-effect marker (e.g. a signal/exception).
	Callback
	// RememberReachingDefinitions marks a fixpoint join point at a loop
	// header. No lowering or structural pass currently inserts one — the
	// per-block MaxIterations cap in ir/dflow is what actually guarantees
	// termination — so every analysis that switches on StatementKind
	// treats it as a pure no-op, same as Halt/Callback/InlineAssembly.
	RememberReachingDefinitions
)

func (k StatementKind) String() string {
	switch k {
	case InlineAssembly:
		return "InlineAssembly"
	case Assignment:
		return "Assignment"
	case Touch:
		return "Touch"
	case Jump:
		return "Jump"
	case Call:
		return "Call"
	case Halt:
		return "Halt"
	case Callback:
		return "Callback"
	case RememberReachingDefinitions:
		return "RememberReachingDefinitions"
	default:
		return "Unknown"
	}
}

// JumpTarget is either a direct basic-block successor or an address-valued
// term resolved at runtime (an indirect jump).
type JumpTarget struct {
	Block   *BasicBlock
	Address *Term
}

// IsValid reports whether the target was ever set.
func (j JumpTarget) IsValid() bool { return j.Block != nil || j.Address != nil }

// Statement is a side-effecting IR node, the unit of execution within a
// basic block. Exactly one of the kind-specific field groups is
// meaningful, selected by Kind.
type Statement struct {
	Kind StatementKind

	// Block is the owning basic block, set when the statement is appended.
	Block *BasicBlock

	// InstrAddr/HasInstrAddr carry the address of the machine instruction
	// this statement was lowered from, when known.
	InstrAddr    uint64
	HasInstrAddr bool

	// Assignment
	Left, Right *Term

	// Touch
	TouchTerm *Term

	// Jump
	Condition          *Term
	ThenTarget         JumpTarget
	ElseTarget         JumpTarget

	// Call
	Target *Term

	// Callback / InlineAssembly diagnostic text.
	Text string
}

// WithInstrAddr records the source instruction address on s and returns s.
func (s *Statement) WithInstrAddr(addr uint64) *Statement {
	s.InstrAddr = addr
	s.HasInstrAddr = true
	return s
}

// NewInlineAssembly builds an opaque inline-assembly statement.
func NewInlineAssembly(text string) *Statement {
	return &Statement{Kind: InlineAssembly, Text: text}
}

// NewAssignment builds an assignment target <- source. Left must be a
// write-mode term; its Source back-pointer is set to Right so that
// liveness propagation can find the value flowing into a live write
// without re-walking the owning statement.
func NewAssignment(target, source *Term) *Statement {
	s := &Statement{Kind: Assignment, Left: target, Right: source}
	attachTo(target, s)
	attachTo(source, s)
	if target != nil {
		target.Source = source
	}
	return s
}

// NewTouch builds a statement that accesses term with no value flow.
func NewTouch(term *Term) *Statement {
	s := &Statement{Kind: Touch, TouchTerm: term}
	attachTo(term, s)
	return s
}

// NewJump builds a (possibly conditional) jump. An unconditional jump has
// a nil Condition and a zero ElseTarget.
func NewJump(condition *Term, thenTarget, elseTarget JumpTarget) *Statement {
	s := &Statement{Kind: Jump, Condition: condition, ThenTarget: thenTarget, ElseTarget: elseTarget}
	attachTo(condition, s)
	attachTo(thenTarget.Address, s)
	attachTo(elseTarget.Address, s)
	return s
}

// IsUnconditional reports whether the jump always takes ThenTarget.
func (s *Statement) IsUnconditional() bool { return s.Kind == Jump && s.Condition == nil }

// NewCall builds a call through target, expected to return control to the
// next statement.
func NewCall(target *Term) *Statement {
	s := &Statement{Kind: Call, Target: target}
	attachTo(target, s)
	return s
}

// NewHalt builds a statement that stops execution of the function.
func NewHalt() *Statement { return &Statement{Kind: Halt} }

// NewCallback builds an opaque side-effect marker statement.
func NewCallback(text string) *Statement {
	return &Statement{Kind: Callback, Text: text}
}

// NewRememberReachingDefinitions builds a fixpoint checkpoint statement.
func NewRememberReachingDefinitions() *Statement {
	return &Statement{Kind: RememberReachingDefinitions}
}

// AsJump downcasts s, returning (s, true) if s.Kind == Jump.
func (s *Statement) AsJump() (*Statement, bool) { return s, s != nil && s.Kind == Jump }

// AsAssignment downcasts s, returning (s, true) if s.Kind == Assignment.
func (s *Statement) AsAssignment() (*Statement, bool) { return s, s != nil && s.Kind == Assignment }

// AsCall downcasts s, returning (s, true) if s.Kind == Call.
func (s *Statement) AsCall() (*Statement, bool) { return s, s != nil && s.Kind == Call }

// IsTerminator reports whether s may end a basic block (jump, halt, or a
// call that does not return).
func (s *Statement) IsTerminator(returns bool) bool {
	switch s.Kind {
	case Jump, Halt:
		return true
	case Call:
		return !returns
	default:
		return false
	}
}

// Terms calls visit on every top-level term owned directly by s (not
// recursing into sub-terms), in a stable order.
func (s *Statement) Terms(visit func(*Term)) {
	switch s.Kind {
	case Assignment:
		visit(s.Left)
		visit(s.Right)
	case Touch:
		visit(s.TouchTerm)
	case Jump:
		visit(s.Condition)
		visit(s.ThenTarget.Address)
		visit(s.ElseTarget.Address)
	case Call:
		visit(s.Target)
	}
}
