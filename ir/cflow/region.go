// Package cflow reduces a function's control-flow graph to a region tree:
// sequences, if-then-else, pre/post-test loops, natural loops and
// switches with optional bounds checks.
package cflow

import "github.com/Urethramancer/ncdec/ir"

// RegionKind tags the variant of a Node.
type RegionKind int

const (
	// Leaf wraps a single basic block.
	Leaf RegionKind = iota
	// Block is an ordered sequence of children with one entry, one exit.
	Block
	// If is a condition block with a then- and an else-region, either may
	// be empty.
	If
	// While is a pre-test loop: the condition is tested before the body.
	While
	// DoWhile is a post-test loop: the condition is tested after the body.
	DoWhile
	// NaturalLoop is a loop that did not fit a structured pattern and is
	// emitted with a goto-based fallback.
	NaturalLoop
	// Switch is a multi-way branch, optionally guarded by a bounds check.
	Switch
)

func (k RegionKind) String() string {
	switch k {
	case Leaf:
		return "Leaf"
	case Block:
		return "Block"
	case If:
		return "If"
	case While:
		return "While"
	case DoWhile:
		return "DoWhile"
	case NaturalLoop:
		return "NaturalLoop"
	case Switch:
		return "Switch"
	default:
		return "Unknown"
	}
}

// SwitchCase is one (case value, target region) pair of a Switch.
type SwitchCase struct {
	Value  int64
	Target *Node
}

// Node is one region tree node. Exactly one of the kind-specific field
// groups is meaningful, selected by Kind.
type Node struct {
	Kind RegionKind

	// Leaf
	BasicBlock *ir.BasicBlock

	// Block: ordered children.
	// If: Children[0] = then-region (may be nil), Children[1] = else-region (may be nil).
	// While/DoWhile: Children[0] = body.
	Children []*Node

	// If/While/DoWhile: the region holding the condition jump (possibly a
	// multi-block Block region for a compound condition); its final block
	// carries the jump itself. For If this is also reachable through the
	// wrapping Block's first child, so Leaves only walks it for While.
	Condition *Node

	// NaturalLoop
	Header  *Node
	Members []*Node

	// Switch
	BoundsCheck *Node    // optional: Some(node) iff the bounds-check pattern was recognised
	Index       *ir.Term // the recognised index expression, shared by the dispatch and the bounds check
	MaxValue    uint64   // highest in-range index value, valid when BoundsCheck != nil
	Cases       []SwitchCase
	Default     *Node
	Dispatch    *ir.BasicBlock
}

// Leaves appends every leaf basic block under n, in tree order, to out.
func (n *Node) Leaves(out *[]*ir.BasicBlock) {
	if n == nil {
		return
	}
	switch n.Kind {
	case Leaf:
		*out = append(*out, n.BasicBlock)
	case Block:
		for _, c := range n.Children {
			c.Leaves(out)
		}
	case While:
		n.Condition.Leaves(out)
		for _, c := range n.Children {
			c.Leaves(out)
		}
	case DoWhile:
		// Condition aliases the final block of Children[0] (test at the
		// bottom of the body); only walk the body to avoid double-counting.
		for _, c := range n.Children {
			c.Leaves(out)
		}
	case If:
		if len(n.Children) > 0 {
			n.Children[0].Leaves(out)
		}
		if len(n.Children) > 1 {
			n.Children[1].Leaves(out)
		}
	case NaturalLoop:
		for _, m := range n.Members {
			m.Leaves(out)
		}
	case Switch:
		if n.BoundsCheck != nil {
			n.BoundsCheck.Leaves(out)
		}
		for _, c := range n.Cases {
			c.Target.Leaves(out)
		}
		if n.Default != nil {
			n.Default.Leaves(out)
		}
	}
}
