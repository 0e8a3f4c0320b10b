// Package vars groups individual memory accesses into the variables a
// human reader would recognise: a write and every read it reaches are the
// same variable, even when they disagree on how many bits of it they
// touch, grounded on the original decompiler's weighted union-find
// variable reconstruction.
package vars

import "github.com/Urethramancer/ncdec/ir"

// Variable is one reconstructed equivalence class of terms that all
// denote the same underlying storage.
type Variable struct {
	id int
	// Location is the representative location for the class: the widest
	// location observed among its members, used to size the emitted
	// declaration.
	Location ir.MemoryLocation
	Terms    []*ir.Term
}

// ID is a stable, analysis-order identity for the variable, used to name
// it deterministically (e.g. "var_3") when no better name is known.
func (v *Variable) ID() int { return v.id }

// Contains reports whether t belongs to this variable's equivalence class.
func (v *Variable) Contains(t *ir.Term) bool {
	for _, m := range v.Terms {
		if m == t {
			return true
		}
	}
	return false
}

// Variables is the output of reconstruction: every variable found, plus a
// lookup from term to its owning variable.
type Variables struct {
	list []*Variable
	byTerm map[*ir.Term]*Variable
}

// List returns every reconstructed variable, in discovery order.
func (vs *Variables) List() []*Variable { return vs.list }

// VariableFor returns the variable owning t, or nil if t was never part
// of reconstruction (e.g. a pure-value term with no location).
func (vs *Variables) VariableFor(t *ir.Term) *Variable { return vs.byTerm[t] }
