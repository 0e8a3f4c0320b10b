package vars

import (
	"github.com/Urethramancer/ncdec/ir"
	"github.com/Urethramancer/ncdec/ir/dflow"
	"github.com/Urethramancer/ncdec/ir/liveness"
)

// Analyzer reconstructs variables for one function from its dataflow
// results, restricted to the terms liveness kept — this runs after
// liveness in the pipeline so dead stores never grow a variable
// needlessly.
type Analyzer struct {
	Function *ir.Function
	Dataflow *dflow.Dataflow
	Liveness *liveness.Liveness
}

// node is one union-find element: every MemoryLocationAccess and
// Dereference term liveness kept gets one.
type node struct {
	parent *node
	rank   int
	term   *ir.Term
}

func (n *node) find() *node {
	root := n
	for root.parent != root {
		root = root.parent
	}
	for n != root {
		next := n.parent
		n.parent = root
		n = next
	}
	return root
}

func union(a, b *node) {
	ra, rb := a.find(), b.find()
	if ra == rb {
		return
	}
	switch {
	case ra.rank < rb.rank:
		ra.parent = rb
	case ra.rank > rb.rank:
		rb.parent = ra
	default:
		rb.parent = ra
		ra.rank++
	}
}

// Analyze runs reconstruction and returns the resulting variable set.
func (a *Analyzer) Analyze() *Variables {
	nodes := make(map[*ir.Term]*node)
	get := func(t *ir.Term) *node {
		n, ok := nodes[t]
		if !ok {
			n = &node{term: t}
			n.parent = n
			nodes[t] = n
		}
		return n
	}

	for _, t := range a.Liveness.LiveTerms() {
		if !isLocationTerm(t) {
			continue
		}
		get(t)
		if !t.IsRead() {
			continue
		}
		for _, chunk := range a.Dataflow.GetDefinitions(t).Chunks() {
			for _, w := range chunk.Defs {
				if !a.Liveness.IsLive(w) {
					continue
				}
				union(get(t), get(w))
			}
		}
	}

	groups := make(map[*node][]*ir.Term)
	var order []*node
	for t, n := range nodes {
		root := n.find()
		if _, seen := groups[root]; !seen {
			order = append(order, root)
		}
		groups[root] = append(groups[root], t)
	}

	vs := &Variables{byTerm: make(map[*ir.Term]*Variable)}
	for i, root := range order {
		terms := groups[root]
		v := &Variable{id: i, Location: widestLocation(terms), Terms: terms}
		vs.list = append(vs.list, v)
		for _, t := range terms {
			vs.byTerm[t] = v
		}
	}
	return vs
}

func isLocationTerm(t *ir.Term) bool {
	return t != nil && (t.Kind == ir.MemoryLocationAccess || t.Kind == ir.Dereference)
}

func widestLocation(terms []*ir.Term) ir.MemoryLocation {
	var best ir.MemoryLocation
	for _, t := range terms {
		if t.Kind != ir.MemoryLocationAccess {
			continue
		}
		if !best.IsValid() || t.Location.SizeBits > best.SizeBits {
			best = t.Location
		}
	}
	return best
}
