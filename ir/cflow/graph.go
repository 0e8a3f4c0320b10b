package cflow

import (
	"github.com/Urethramancer/ncdec/ir"
	"github.com/Urethramancer/ncdec/ir/dflow"
	"github.com/Urethramancer/ncdec/ir/misc"
)

// SwitchResolver reads a jump table out of the byte image, resolving
// `count` consecutive table entries starting at tableAddr into the
// addresses they jump to, by reading the jump table from the byte image
// via the section interface.
type SwitchResolver interface {
	ReadJumpTable(tableAddr uint64, count int) ([]uint64, bool)
}

// Graph is the mutable region graph the reduction algorithm operates on.
// It starts as one Leaf node per basic block and is collapsed in place
// until a single root region remains or no pattern applies further.
type Graph struct {
	nodes []*Node
	succ  map[*Node][]*Node
	pred  map[*Node][]*Node

	// PassCap bounds the number of reduction passes (default 1000);
	// exceeding it leaves the residual fragment as NaturalLoop + gotos,
	// never fatal.
	PassCap int
}

// BuildGraph creates the initial, fully unreduced region graph for fn.
func BuildGraph(fn *ir.Function) *Graph {
	g := &Graph{succ: make(map[*Node][]*Node), pred: make(map[*Node][]*Node), PassCap: 1000}
	byBlock := make(map[*ir.BasicBlock]*Node, len(fn.Blocks))
	for _, b := range fn.Blocks {
		n := &Node{Kind: Leaf, BasicBlock: b}
		g.nodes = append(g.nodes, n)
		byBlock[b] = n
	}
	for _, b := range fn.Blocks {
		n := byBlock[b]
		for _, sb := range b.Successors() {
			sn := byBlock[sb]
			g.succ[n] = append(g.succ[n], sn)
			g.pred[sn] = append(g.pred[sn], n)
		}
	}
	return g
}

func (g *Graph) removeNode(n *Node) {
	for i, x := range g.nodes {
		if x == n {
			g.nodes = append(g.nodes[:i], g.nodes[i+1:]...)
			break
		}
	}
	delete(g.succ, n)
	delete(g.pred, n)
}

func (g *Graph) replace(olds []*Node, replacement *Node, newSucc, newPred []*Node) {
	oldSet := make(map[*Node]bool, len(olds))
	for _, o := range olds {
		oldSet[o] = true
	}
	// Redirect external predecessors/successors to point at replacement.
	for _, p := range newPred {
		succs := g.succ[p]
		for i, s := range succs {
			if oldSet[s] {
				succs[i] = replacement
			}
		}
		g.succ[p] = dedupe(succs)
	}
	for _, s := range newSucc {
		preds := g.pred[s]
		for i, p := range preds {
			if oldSet[p] {
				preds[i] = replacement
			}
		}
		g.pred[s] = dedupe(preds)
	}
	for _, o := range olds {
		g.removeNode(o)
	}
	g.nodes = append(g.nodes, replacement)
	g.succ[replacement] = dedupe(newSucc)
	g.pred[replacement] = dedupe(newPred)
}

func dedupe(ns []*Node) []*Node {
	seen := make(map[*Node]bool, len(ns))
	var out []*Node
	for _, n := range ns {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func contains(ns []*Node, target *Node) bool {
	for _, n := range ns {
		if n == target {
			return true
		}
	}
	return false
}

func without(ns []*Node, remove map[*Node]bool) []*Node {
	var out []*Node
	for _, n := range ns {
		if !remove[n] {
			out = append(out, n)
		}
	}
	return out
}

// ExitBlock returns the basic block whose terminator governs a node's
// outgoing edges: the node's own block for a Leaf, or the exit block of
// the last child of a Block sequence; nil for every other kind.
func ExitBlock(n *Node) *ir.BasicBlock {
	switch n.Kind {
	case Leaf:
		return n.BasicBlock
	case Block:
		if len(n.Children) == 0 {
			return nil
		}
		return ExitBlock(n.Children[len(n.Children)-1])
	default:
		return nil
	}
}

// Reduce runs the iterative reduction algorithm and returns the root
// region. d and resolver are used for switch recognition; nodeAt
// resolves a jump-table entry's address back to the node representing it.
func (g *Graph) Reduce(d *dflow.Dataflow, resolver SwitchResolver, nodeAt func(addr uint64) *Node) *Node {
	for pass := 0; pass < g.PassCap && len(g.nodes) > 1; pass++ {
		if g.reducePass(d, resolver, nodeAt) {
			continue
		}
		// No structural pattern applied: wrap the residual irreducible
		// component as NaturalLoop via dominator-based back-edge
		// detection, guaranteeing progress.
		if !g.collapseNaturalLoop() {
			break
		}
	}
	if len(g.nodes) == 1 {
		return g.nodes[0]
	}
	// Pass cap exhausted with multiple residual nodes: wrap them all as
	// one NaturalLoop fallback rather than fail.
	return g.forceCollapseAll()
}

func (g *Graph) reducePass(d *dflow.Dataflow, resolver SwitchResolver, nodeAt func(addr uint64) *Node) bool {
	changed := false
	for _, n := range append([]*Node{}, g.nodes...) {
		if !g.nodeExists(n) {
			continue
		}
		if g.trySequence(n) {
			changed = true
			continue
		}
		if g.tryDoWhile(n) {
			changed = true
			continue
		}
		if g.trySwitch(n, d, resolver, nodeAt) {
			changed = true
			continue
		}
		if g.tryIfOrWhile(n) {
			changed = true
			continue
		}
	}
	return changed
}

func (g *Graph) nodeExists(n *Node) bool {
	for _, x := range g.nodes {
		if x == n {
			return true
		}
	}
	return false
}

// trySequence collapses n -> m when n has exactly one successor m and m
// has exactly one predecessor n (the straight-line block-sequence case).
func (g *Graph) trySequence(n *Node) bool {
	succs := g.succ[n]
	if len(succs) != 1 {
		return false
	}
	m := succs[0]
	if m == n || len(g.pred[m]) != 1 {
		return false
	}
	var children []*Node
	if n.Kind == Block {
		children = append(children, n.Children...)
	} else {
		children = append(children, n)
	}
	if m.Kind == Block {
		children = append(children, m.Children...)
	} else {
		children = append(children, m)
	}
	replacement := &Node{Kind: Block, Children: children}
	g.replace([]*Node{n, m}, replacement, g.succ[m], g.pred[n])
	return true
}

// tryDoWhile collapses a self-loop n -> n into a DoWhile whose condition
// is n's own terminator (test at the bottom). DoWhile is preferred over
// While when the only entry to the loop body is the header and the test
// is at the bottom.
func (g *Graph) tryDoWhile(n *Node) bool {
	eb := ExitBlock(n)
	if eb == nil {
		return false
	}
	jump := eb.GetJump()
	if jump == nil || jump.IsUnconditional() {
		return false
	}
	var exit *Node
	switch {
	case jump.ThenTarget.Block != nil && nodeFor(g, jump.ThenTarget.Block) == n:
		exit = firstOther(g.succ[n], n)
	case jump.ElseTarget.Block != nil && nodeFor(g, jump.ElseTarget.Block) == n:
		exit = firstOther(g.succ[n], n)
	default:
		return false
	}
	if exit == nil {
		return false
	}
	body := n
	replacement := &Node{Kind: DoWhile, Children: []*Node{body}, Condition: body}
	g.replace([]*Node{n}, replacement, []*Node{exit}, g.pred[n])
	return true
}

// NodeForBlock returns the current node owning b, walking every node's
// constituent leaves — usable at any point during or after reduction,
// e.g. to resolve a jump table's target addresses to nodes for Reduce's
// nodeAt callback.
func (g *Graph) NodeForBlock(b *ir.BasicBlock) *Node { return nodeFor(g, b) }

func nodeFor(g *Graph, b *ir.BasicBlock) *Node {
	for _, n := range g.nodes {
		var eb *ir.BasicBlock
		switch n.Kind {
		case Leaf:
			eb = n.BasicBlock
		case Block:
			eb = ExitBlock(n)
		}
		if eb == b {
			return n
		}
		var leaves []*ir.BasicBlock
		n.Leaves(&leaves)
		for _, l := range leaves {
			if l == b {
				return n
			}
		}
	}
	return nil
}

func firstOther(ns []*Node, self *Node) *Node {
	for _, n := range ns {
		if n != self {
			return n
		}
	}
	return nil
}

// tryIfOrWhile collapses a two-way branch at n into If or While, preferring
// If over While whenever both templates could apply.
func (g *Graph) tryIfOrWhile(n *Node) bool {
	succs := g.succ[n]
	if len(succs) != 2 {
		return false
	}
	t, e := succs[0], succs[1]

	// While: one arm loops back to n and is otherwise only reached from n.
	if isLoopBody(g, n, t) {
		return g.collapseWhile(n, t, e)
	}
	if isLoopBody(g, n, e) {
		return g.collapseWhile(n, e, t)
	}

	return g.collapseIf(n, t, e)
}

func isLoopBody(g *Graph, header, body *Node) bool {
	if body == header {
		return false
	}
	if len(g.pred[body]) != 1 || g.pred[body][0] != header {
		return false
	}
	bs := g.succ[body]
	return len(bs) == 1 && bs[0] == header
}

func (g *Graph) collapseWhile(header, body, exit *Node) bool {
	replacement := &Node{Kind: While, Children: []*Node{body}, Condition: header}
	g.replace([]*Node{header, body}, replacement, []*Node{exit}, g.pred[header])
	return true
}

func (g *Graph) collapseIf(n, t, e *Node) bool {
	// Determine which arms are private to n (single predecessor n) versus
	// the shared merge point.
	tPrivate := len(g.pred[t]) == 1 && g.pred[t][0] == n
	ePrivate := len(g.pred[e]) == 1 && g.pred[e][0] == n

	switch {
	case tPrivate && ePrivate:
		tSucc, eSucc := g.succ[t], g.succ[e]
		if len(tSucc) == 1 && len(eSucc) == 1 && tSucc[0] == eSucc[0] {
			merge := tSucc[0]
			replacement := &Node{Kind: If, Children: []*Node{t, e}, Condition: n}
			group := &Node{Kind: Block, Children: []*Node{n, replacement}}
			// n must be folded into the sequence ahead of the If for its
			// own predecessors to link correctly; represent as Block(n, If).
			g.replace([]*Node{n, t, e}, group, []*Node{merge}, g.pred[n])
			return true
		}
		if len(tSucc) == 0 && len(eSucc) == 0 {
			// Both arms leave the function: the If has no merge successor.
			replacement := &Node{Kind: If, Children: []*Node{t, e}, Condition: n}
			group := &Node{Kind: Block, Children: []*Node{n, replacement}}
			g.replace([]*Node{n, t, e}, group, nil, g.pred[n])
			return true
		}
		return false
	case tPrivate && !ePrivate:
		// then-only if: t falls through, e is the shared merge.
		replacement := &Node{Kind: If, Children: []*Node{t, nil}, Condition: n}
		group := &Node{Kind: Block, Children: []*Node{n, replacement}}
		g.replace([]*Node{n, t}, group, []*Node{e}, g.pred[n])
		return true
	case ePrivate && !tPrivate:
		replacement := &Node{Kind: If, Children: []*Node{nil, e}, Condition: n}
		group := &Node{Kind: Block, Children: []*Node{n, replacement}}
		g.replace([]*Node{n, e}, group, []*Node{t}, g.pred[n])
		return true
	default:
		return false
	}
}

// trySwitch recognises the bounds-check + indirect-jump pattern: a
// bounds-check node dominating a table-dispatch node, both branching to
// a common default.
func (g *Graph) trySwitch(n *Node, d *dflow.Dataflow, resolver SwitchResolver, nodeAt func(addr uint64) *Node) bool {
	eb := ExitBlock(n)
	if eb == nil || resolver == nil {
		return false
	}
	jump := eb.GetJump()
	if jump == nil || jump.ThenTarget.Address == nil {
		return false
	}
	access := misc.RecognizeArrayAccess(jump.ThenTarget.Address, d)
	if !access.Valid() {
		return false
	}

	var boundsNode *Node
	var boundsCheck misc.BoundsCheck
	for _, p := range g.pred[n] {
		peb := ExitBlock(p)
		if peb == nil {
			continue
		}
		pj := peb.GetJump()
		if pj == nil {
			continue
		}
		if bc := misc.RecognizeBoundsCheck(pj, eb, d); bc.Valid() {
			boundsNode, boundsCheck = p, bc
			break
		}
	}
	if boundsNode == nil {
		return false
	}

	targets, ok := resolver.ReadJumpTable(access.Base, int(boundsCheckCount(boundsCheck)))
	if !ok {
		return false
	}

	var cases []SwitchCase
	olds := []*Node{n}
	for i, addr := range targets {
		tn := nodeAt(addr)
		if tn == nil {
			return false
		}
		cases = append(cases, SwitchCase{Value: int64(i), Target: tn})
		if !contains(olds, tn) {
			olds = append(olds, tn)
		}
	}

	defaultNode := nodeFor(g, boundsCheck.IfFailed)
	olds = append(olds, boundsNode)

	sw := &Node{
		Kind:        Switch,
		Dispatch:    eb,
		Index:       boundsCheck.Index,
		MaxValue:    boundsCheck.MaxValue,
		Cases:       cases,
		Default:     defaultNode,
		BoundsCheck: boundsNode,
	}

	var newSucc []*Node
	for _, c := range cases {
		newSucc = append(newSucc, successorsOutside(g, c.Target, olds)...)
	}
	newPred := g.pred[boundsNode]
	g.replace(olds, sw, newSucc, newPred)
	return true
}

func boundsCheckCount(bc misc.BoundsCheck) uint64 {
	if !bc.Valid() {
		return 0
	}
	return bc.MaxValue + 1
}

func successorsOutside(g *Graph, n *Node, group []*Node) []*Node {
	var out []*Node
	for _, s := range g.succ[n] {
		if !contains(group, s) {
			out = append(out, s)
		}
	}
	return out
}

// collapseNaturalLoop finds one back edge via dominators and wraps its
// natural loop as a NaturalLoop node, guaranteeing reduction progress.
func (g *Graph) collapseNaturalLoop() bool {
	idom := computeDominators(g)
	for _, n := range g.nodes {
		for _, s := range g.succ[n] {
			if dominates(idom, s, n) {
				members := naturalLoopMembers(g, n, s)
				return g.collapseLoopMembers(members, s)
			}
		}
	}
	return false
}

func (g *Graph) collapseLoopMembers(members []*Node, header *Node) bool {
	memberSet := make(map[*Node]bool, len(members))
	for _, m := range members {
		memberSet[m] = true
	}
	var newSucc []*Node
	for _, m := range members {
		for _, s := range g.succ[m] {
			if !memberSet[s] {
				newSucc = append(newSucc, s)
			}
		}
	}
	var newPred []*Node
	for _, p := range g.pred[header] {
		if !memberSet[p] {
			newPred = append(newPred, p)
		}
	}
	nl := &Node{Kind: NaturalLoop, Header: header, Members: members}
	g.replace(members, nl, newSucc, newPred)
	return true
}

func (g *Graph) forceCollapseAll() *Node {
	header := g.nodes[0]
	nl := &Node{Kind: NaturalLoop, Header: header, Members: append([]*Node{}, g.nodes...)}
	return nl
}

func naturalLoopMembers(g *Graph, tail, header *Node) []*Node {
	members := map[*Node]bool{header: true, tail: true}
	var stack []*Node
	if tail != header {
		stack = append(stack, tail)
	}
	for len(stack) > 0 {
		m := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range g.pred[m] {
			if !members[p] {
				members[p] = true
				stack = append(stack, p)
			}
		}
	}
	var out []*Node
	for _, n := range g.nodes {
		if members[n] {
			out = append(out, n)
		}
	}
	return out
}
