package cflow

// dominatorInfo maps each node to its immediate dominator, computed over
// the current (possibly partially reduced) region graph. Used only as a
// fallback to find back edges for NaturalLoop collapsing once no
// structured template applies.
type dominatorInfo struct {
	idom  map[*Node]*Node
	order map[*Node]int
}

// computeDominators runs the standard iterative (Cooper/Harvey/Kennedy)
// dominator algorithm over g, rooted at an arbitrary node with no
// predecessors (the function entry, by construction of the initial
// graph and every reduction step preserving single-entry regions).
func computeDominators(g *Graph) *dominatorInfo {
	entry := findEntry(g)
	if entry == nil {
		return &dominatorInfo{idom: map[*Node]*Node{}, order: map[*Node]int{}}
	}

	postOrder := reversePostorder(g, entry)
	order := make(map[*Node]int, len(postOrder))
	for i, n := range postOrder {
		order[n] = i
	}

	idom := map[*Node]*Node{entry: entry}
	changed := true
	for changed {
		changed = false
		for _, n := range postOrder {
			if n == entry {
				continue
			}
			var newIdom *Node
			for _, p := range g.pred[n] {
				if idom[p] == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
					continue
				}
				newIdom = intersect(idom, order, newIdom, p)
			}
			if newIdom != nil && idom[n] != newIdom {
				idom[n] = newIdom
				changed = true
			}
		}
	}
	return &dominatorInfo{idom: idom, order: order}
}

func intersect(idom map[*Node]*Node, order map[*Node]int, a, b *Node) *Node {
	for a != b {
		for order[a] > order[b] {
			a = idom[a]
		}
		for order[b] > order[a] {
			b = idom[b]
		}
	}
	return a
}

func findEntry(g *Graph) *Node {
	for _, n := range g.nodes {
		if len(g.pred[n]) == 0 {
			return n
		}
	}
	if len(g.nodes) > 0 {
		return g.nodes[0]
	}
	return nil
}

func reversePostorder(g *Graph, entry *Node) []*Node {
	visited := map[*Node]bool{}
	var post []*Node
	var visit func(*Node)
	visit = func(n *Node) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, s := range g.succ[n] {
			visit(s)
		}
		post = append(post, n)
	}
	visit(entry)
	// Nodes unreachable from entry (shouldn't occur for a reducible
	// function graph, but the initial per-block graph can still contain
	// them before reachability pruning) are appended last so every node
	// is handled deterministically.
	for _, n := range g.nodes {
		if !visited[n] {
			visit(n)
		}
	}
	out := make([]*Node, len(post))
	for i, n := range post {
		out[len(post)-1-i] = n
	}
	return out
}

// dominates reports whether a dominates b (strictly or as itself).
func dominates(info *dominatorInfo, a, b *Node) bool {
	if a == b {
		return true
	}
	n := b
	for {
		d, ok := info.idom[n]
		if !ok || d == n {
			return false
		}
		if d == a {
			return true
		}
		n = d
	}
}
