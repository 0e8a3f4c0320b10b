// Package x86 describes the x86-64 architecture for the IR analyses:
// register domains, the stack pointer, global-memory classification and
// the System V AMD64 default calling convention.
package x86

import (
	"github.com/Urethramancer/ncdec/arch"
	"github.com/Urethramancer/ncdec/disasm"
	"github.com/Urethramancer/ncdec/ir"
)

// Register domains. Domain 0 is reserved for machine memory
// (arch.MemoryDomain); every register gets its own domain above it.
const (
	RAX int32 = iota + 1
	RBX
	RCX
	RDX
	RSI
	RDI
	RBP
	RSP
	R8
	R9
	R10
	R11
	Flags
)

var registers = []arch.Register{
	{Name: "rax", Domain: RAX, Width: 64},
	{Name: "rbx", Domain: RBX, Width: 64},
	{Name: "rcx", Domain: RCX, Width: 64},
	{Name: "rdx", Domain: RDX, Width: 64},
	{Name: "rsi", Domain: RSI, Width: 64},
	{Name: "rdi", Domain: RDI, Width: 64},
	{Name: "rbp", Domain: RBP, Width: 64},
	{Name: "rsp", Domain: RSP, Width: 64},
	{Name: "r8", Domain: R8, Width: 64},
	{Name: "r9", Domain: R9, Width: 64},
	{Name: "r10", Domain: R10, Width: 64},
	{Name: "r11", Domain: R11, Width: 64},
	{Name: "flags", Domain: Flags, Width: 64},
}

// Architecture is the x86-64 arch.Architecture implementation.
type Architecture struct {
	decoder disasm.X86
}

// New builds the x86-64 descriptor backed by x86asm in 64-bit mode.
func New() *Architecture {
	return &Architecture{decoder: disasm.X86{Mode: 64}}
}

func (a *Architecture) Name() string              { return "x86-64" }
func (a *Architecture) Registers() []arch.Register { return registers }
func (a *Architecture) StackPointer() int32        { return RSP }
func (a *Architecture) MaxInstructionSize() int    { return 15 }
func (a *Architecture) Disassembler() arch.Disassembler { return &a.decoder }

// IsGlobalMemory classifies loc as global (as opposed to stack-local)
// memory: anything in the shared memory domain that dataflow did not
// resolve as a stack-relative access is, by construction, global.
func (a *Architecture) IsGlobalMemory(loc ir.MemoryLocation) bool {
	return loc.Domain == arch.MemoryDomain
}

// DefaultConvention returns the System V AMD64 integer argument registers.
func (a *Architecture) DefaultConvention() arch.Convention {
	retLoc := ir.NewMemoryLocation(RAX, 0, 64)
	return arch.Convention{
		Name: "sysv-amd64",
		ArgumentLocations: []ir.MemoryLocation{
			ir.NewMemoryLocation(RDI, 0, 64),
			ir.NewMemoryLocation(RSI, 0, 64),
			ir.NewMemoryLocation(RDX, 0, 64),
			ir.NewMemoryLocation(RCX, 0, 64),
			ir.NewMemoryLocation(R8, 0, 64),
			ir.NewMemoryLocation(R9, 0, 64),
		},
		ReturnLocation: &retLoc,
	}
}
