// Package arm describes the AArch32 architecture for the IR analyses.
// Unlike x86, no arm decoder is wired: the pack's only decoder dependency
// is golang.org/x/arch/x86/x86asm (see DESIGN.md), so Disassembler
// returns a decoder that always reports failure rather than a fabricated
// one — register/ABI modelling is still exercised by every other
// analysis independent of decoding.
package arm

import (
	"github.com/Urethramancer/ncdec/arch"
	"github.com/Urethramancer/ncdec/ir"
)

const (
	R0 int32 = iota + 1
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	SP
	LR
	PC
	CPSR
)

var registers = []arch.Register{
	{Name: "r0", Domain: R0, Width: 32},
	{Name: "r1", Domain: R1, Width: 32},
	{Name: "r2", Domain: R2, Width: 32},
	{Name: "r3", Domain: R3, Width: 32},
	{Name: "r4", Domain: R4, Width: 32},
	{Name: "r5", Domain: R5, Width: 32},
	{Name: "r6", Domain: R6, Width: 32},
	{Name: "r7", Domain: R7, Width: 32},
	{Name: "r8", Domain: R8, Width: 32},
	{Name: "r9", Domain: R9, Width: 32},
	{Name: "r10", Domain: R10, Width: 32},
	{Name: "r11", Domain: R11, Width: 32},
	{Name: "sp", Domain: SP, Width: 32},
	{Name: "lr", Domain: LR, Width: 32},
	{Name: "pc", Domain: PC, Width: 32},
	{Name: "cpsr", Domain: CPSR, Width: 32},
}

// unimplementedDecoder always fails to decode; see the package doc.
type unimplementedDecoder struct{}

func (unimplementedDecoder) Disassemble(uint64, []byte) (arch.Instruction, bool) {
	return arch.Instruction{}, false
}

// Architecture is the AArch32 arch.Architecture implementation.
type Architecture struct{}

// New builds the AArch32 descriptor.
func New() *Architecture { return &Architecture{} }

func (a *Architecture) Name() string                    { return "arm-le" }
func (a *Architecture) Registers() []arch.Register       { return registers }
func (a *Architecture) StackPointer() int32              { return SP }
func (a *Architecture) MaxInstructionSize() int          { return 4 }
func (a *Architecture) Disassembler() arch.Disassembler  { return unimplementedDecoder{} }

func (a *Architecture) IsGlobalMemory(loc ir.MemoryLocation) bool {
	return loc.Domain == arch.MemoryDomain
}

// DefaultConvention returns the AAPCS integer argument registers.
func (a *Architecture) DefaultConvention() arch.Convention {
	retLoc := ir.NewMemoryLocation(R0, 0, 32)
	return arch.Convention{
		Name: "aapcs",
		ArgumentLocations: []ir.MemoryLocation{
			ir.NewMemoryLocation(R0, 0, 32),
			ir.NewMemoryLocation(R1, 0, 32),
			ir.NewMemoryLocation(R2, 0, 32),
			ir.NewMemoryLocation(R3, 0, 32),
		},
		ReturnLocation: &retLoc,
	}
}
