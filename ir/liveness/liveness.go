// Package liveness marks which IR terms contribute to emitted code.
package liveness

import "github.com/Urethramancer/ncdec/ir"

// Liveness is the set of terms producing actual high-level code, in the
// order they were discovered — type-hint propagation downstream depends
// on this order being deterministic.
type Liveness struct {
	set  map[*ir.Term]bool
	list []*ir.Term
}

// New creates an empty liveness set.
func New() *Liveness {
	return &Liveness{set: make(map[*ir.Term]bool)}
}

// IsLive reports whether term is live.
func (l *Liveness) IsLive(term *ir.Term) bool { return l.set[term] }

// MakeLive marks term live, appending it to LiveTerms if newly live.
func (l *Liveness) MakeLive(term *ir.Term) {
	if !l.set[term] {
		l.set[term] = true
		l.list = append(l.list, term)
	}
}

// LiveTerms returns the live terms, sorted by order of discovery.
func (l *Liveness) LiveTerms() []*ir.Term { return l.list }
