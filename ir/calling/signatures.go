// Package calling reconstructs ABI effects at function boundaries: entry,
// call and return hooks that materialise argument and return-value terms.
package calling

import "github.com/Urethramancer/ncdec/ir"

// Signature is (argument_locations, return_location?) for a function or
// call site.
type Signature struct {
	Arguments []ir.MemoryLocation
	ReturnValue *ir.MemoryLocation
}

// SignatureRepository answers signature_for(function_or_call), the
// calling-convention repository interface consumed by the rest of the
// pipeline.
type SignatureRepository struct {
	byFunction map[*ir.Function]*Signature
	byCall     map[*ir.Statement]*Signature
}

// NewSignatureRepository creates an empty repository.
func NewSignatureRepository() *SignatureRepository {
	return &SignatureRepository{
		byFunction: make(map[*ir.Function]*Signature),
		byCall:     make(map[*ir.Statement]*Signature),
	}
}

// SetFunctionSignature records a known signature for fn.
func (r *SignatureRepository) SetFunctionSignature(fn *ir.Function, sig *Signature) {
	r.byFunction[fn] = sig
}

// SetCallSignature records a known signature for a call statement.
func (r *SignatureRepository) SetCallSignature(call *ir.Statement, sig *Signature) {
	r.byCall[call] = sig
}

// GetFunctionSignature returns fn's signature, or nil if unknown.
func (r *SignatureRepository) GetFunctionSignature(fn *ir.Function) *Signature {
	return r.byFunction[fn]
}

// GetCallSignature returns call's signature, or nil if unknown.
func (r *SignatureRepository) GetCallSignature(call *ir.Statement) *Signature {
	return r.byCall[call]
}
