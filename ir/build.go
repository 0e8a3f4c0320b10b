package ir

import "github.com/pkg/errors"

// SplitBlock splits block at statement index idx: statements [0, idx)
// remain in block, statements [idx, len) move to a new block, and block
// gains an unconditional jump to the new block. Used by inlining to make
// room for a call's replacement jump.
func SplitBlock(block *BasicBlock, idx int) (*BasicBlock, error) {
	if idx < 0 || idx > len(block.Statements) {
		return nil, errors.Errorf("ir: split index %d out of range for block with %d statements", idx, len(block.Statements))
	}
	if t := block.Terminator(); t != nil {
		for i, s := range block.Statements {
			if s == t && i < idx {
				return nil, errors.New("ir: cannot split a block past its terminator")
			}
		}
	}

	tail := block.Statements[idx:]
	block.Statements = block.Statements[:idx:idx]

	newBlock := NewBasicBlock()
	newBlock.Function = block.Function
	for _, s := range tail {
		s.Block = newBlock
	}
	newBlock.Statements = tail

	jump := NewJump(nil, JumpTarget{Block: newBlock}, JumpTarget{})
	jump.Block = block
	block.Statements = append(block.Statements, jump)

	if block.Function != nil {
		block.Function.Blocks = append(block.Function.Blocks, newBlock)
	}
	return newBlock, nil
}

// ReplaceTerminator removes block's last statement, if any, and appends
// replacement in its place. Used by inlining to turn a call statement
// into a jump to the inlined callee's entry block.
func ReplaceTerminator(block *BasicBlock, replacement *Statement) {
	if n := len(block.Statements); n > 0 {
		block.Statements = block.Statements[:n-1]
	}
	replacement.Block = block
	block.Statements = append(block.Statements, replacement)
}

// CloneBlocks deep-clones the statement trees of src into newly allocated
// blocks owned by dst, preserving the Addr/HasAddr metadata for diagnostics
// but not registering the clones in any Program address index (callers
// that want the clones resolvable by address must call Program.ReindexBlock
// themselves, since a cloned block is a duplicate, not a relocation). It
// returns a mapping from each original block to its clone so that callers
// can rewrite jump targets to stay within the cloned subgraph.
func CloneBlocks(src []*BasicBlock, dst *Function) map[*BasicBlock]*BasicBlock {
	mapping := make(map[*BasicBlock]*BasicBlock, len(src))
	for _, b := range src {
		nb := NewBasicBlock()
		nb.Addr = b.Addr
		nb.HasAddr = b.HasAddr
		nb.Function = dst
		mapping[b] = nb
	}

	for _, b := range src {
		nb := mapping[b]
		for _, s := range b.Statements {
			ns := cloneStatement(s, mapping)
			ns.Block = nb
			nb.Statements = append(nb.Statements, ns)
		}
	}

	for _, b := range src {
		dst.Blocks = append(dst.Blocks, mapping[b])
	}
	return mapping
}

func remapTarget(t JumpTarget, mapping map[*BasicBlock]*BasicBlock) JumpTarget {
	if t.Block != nil {
		if nb, ok := mapping[t.Block]; ok {
			return JumpTarget{Block: nb}
		}
		// Target lies outside the cloned subgraph (e.g. the caller's
		// continuation after an inlined call): keep it as-is.
		return t
	}
	if t.Address != nil {
		return JumpTarget{Address: cloneTerm(t.Address)}
	}
	return JumpTarget{}
}

func cloneStatement(s *Statement, mapping map[*BasicBlock]*BasicBlock) *Statement {
	switch s.Kind {
	case InlineAssembly:
		return NewInlineAssembly(s.Text)
	case Assignment:
		ns := NewAssignment(cloneTerm(s.Left), cloneTerm(s.Right))
		copyAddr(s, ns)
		return ns
	case Touch:
		ns := NewTouch(cloneTerm(s.TouchTerm))
		copyAddr(s, ns)
		return ns
	case Jump:
		ns := NewJump(cloneTerm(s.Condition), remapTarget(s.ThenTarget, mapping), remapTarget(s.ElseTarget, mapping))
		copyAddr(s, ns)
		return ns
	case Call:
		ns := NewCall(cloneTerm(s.Target))
		copyAddr(s, ns)
		return ns
	case Halt:
		ns := NewHalt()
		copyAddr(s, ns)
		return ns
	case Callback:
		return NewCallback(s.Text)
	case RememberReachingDefinitions:
		return NewRememberReachingDefinitions()
	default:
		return NewInlineAssembly("<unknown statement kind>")
	}
}

func copyAddr(src, dst *Statement) {
	if src.HasInstrAddr {
		dst.WithInstrAddr(src.InstrAddr)
	}
}

func cloneTerm(t *Term) *Term {
	if t == nil {
		return nil
	}
	clone := &Term{
		Kind:       t.Kind,
		Width:      t.Width,
		Mode:       t.Mode,
		Value:      t.Value,
		Name:       t.Name,
		Location:   t.Location,
		UnaryKind:  t.UnaryKind,
		BinaryKind: t.BinaryKind,
	}
	switch t.Kind {
	case Dereference:
		clone.Address = cloneTerm(t.Address)
	case UnaryOperator:
		clone.Operand = cloneTerm(t.Operand)
	case BinaryOperator:
		clone.Left = cloneTerm(t.Left)
		clone.Right = cloneTerm(t.Right)
	case Choice:
		clone.Preferred = cloneTerm(t.Preferred)
		clone.Fallback = cloneTerm(t.Fallback)
	}
	return clone
}

// Classify reports a term's kind name ("<nil>" for a nil term), used by
// diagnostics instead of a virtual toString().
func Classify(t *Term) string {
	if t == nil {
		return "<nil>"
	}
	return t.Kind.String()
}
