// Package mips describes the MIPS32 architecture for the IR analyses.
// As with arm, no decoder is wired (see arch/arm's package doc and
// DESIGN.md); only register/ABI modelling is exercised.
package mips

import (
	"github.com/Urethramancer/ncdec/arch"
	"github.com/Urethramancer/ncdec/ir"
)

const (
	V0 int32 = iota + 1
	V1
	A0
	A1
	A2
	A3
	T9
	SP
	RA
)

var registers = []arch.Register{
	{Name: "v0", Domain: V0, Width: 32},
	{Name: "v1", Domain: V1, Width: 32},
	{Name: "a0", Domain: A0, Width: 32},
	{Name: "a1", Domain: A1, Width: 32},
	{Name: "a2", Domain: A2, Width: 32},
	{Name: "a3", Domain: A3, Width: 32},
	{Name: "t9", Domain: T9, Width: 32},
	{Name: "sp", Domain: SP, Width: 32},
	{Name: "ra", Domain: RA, Width: 32},
}

type unimplementedDecoder struct{}

func (unimplementedDecoder) Disassemble(uint64, []byte) (arch.Instruction, bool) {
	return arch.Instruction{}, false
}

// Architecture is the MIPS32 arch.Architecture implementation.
type Architecture struct{}

// New builds the MIPS32 descriptor.
func New() *Architecture { return &Architecture{} }

func (a *Architecture) Name() string                   { return "mips32-le" }
func (a *Architecture) Registers() []arch.Register      { return registers }
func (a *Architecture) StackPointer() int32             { return SP }
func (a *Architecture) MaxInstructionSize() int         { return 4 }
func (a *Architecture) Disassembler() arch.Disassembler { return unimplementedDecoder{} }

func (a *Architecture) IsGlobalMemory(loc ir.MemoryLocation) bool {
	return loc.Domain == arch.MemoryDomain
}

// DefaultConvention returns the O32 integer argument registers.
func (a *Architecture) DefaultConvention() arch.Convention {
	retLoc := ir.NewMemoryLocation(V0, 0, 32)
	return arch.Convention{
		Name: "o32",
		ArgumentLocations: []ir.MemoryLocation{
			ir.NewMemoryLocation(A0, 0, 32),
			ir.NewMemoryLocation(A1, 0, 32),
			ir.NewMemoryLocation(A2, 0, 32),
			ir.NewMemoryLocation(A3, 0, 32),
		},
		ReturnLocation: &retLoc,
	}
}
