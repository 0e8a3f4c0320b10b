// Package arch defines the "Architecture" collaborator consumed by the IR
// analyses: a register table, the stack pointer domain, global-memory
// classification, the default calling convention and a reference to an
// instruction disassembler. Concrete architectures live in sub-packages
// (x86, arm, mips).
package arch

import "github.com/Urethramancer/ncdec/ir"

// Register describes one architectural register.
type Register struct {
	Name   string
	Domain int32
	Width  uint16
	// Parent is the domain of the register this one is a sub-part of,
	// e.g. AL's parent is EAX. Zero means no parent.
	Parent int32
}

// MemoryDomain is the ir.MemoryLocation domain reserved for machine memory.
// Every architecture shares this single domain for addressable memory;
// per-register domains are architecture-specific and start above it.
const MemoryDomain int32 = 0

// Convention is an architecture's default calling convention, used by
// calling-convention hooks when no signature is known for a function.
type Convention struct {
	Name              string
	ArgumentLocations []ir.MemoryLocation
	ReturnLocation    *ir.MemoryLocation
}

// Disassembler turns a byte sequence at a given address into a decoded
// instruction. It is the "external instruction decoder" of §6.
type Disassembler interface {
	Disassemble(pc uint64, buf []byte) (Instruction, bool)
}

// Instruction is the minimal shape the core needs from a decoded
// instruction: enough to drive lowering and control-flow discovery.
type Instruction struct {
	Addr    uint64
	Bytes   []byte
	Mnemonic string
	// Targets holds statically known branch targets, if any were decoded.
	Targets []uint64
	// Fallthrough is true if control may continue to Addr+len(Bytes).
	Fallthrough bool
}

// Size returns the instruction's encoded length in bytes.
func (i Instruction) Size() int { return len(i.Bytes) }

// Architecture is the contract the core analyses consume for any target ISA.
type Architecture interface {
	// Name identifies the architecture, e.g. "x86-64", "arm-le", "mips".
	Name() string
	// Registers returns the architecture's register table.
	Registers() []Register
	// StackPointer returns the domain of the architectural stack pointer.
	StackPointer() int32
	// IsGlobalMemory classifies a memory location as belonging to the
	// process's global (as opposed to stack-local) memory.
	IsGlobalMemory(loc ir.MemoryLocation) bool
	// DefaultConvention returns the architecture's default ABI.
	DefaultConvention() Convention
	// MaxInstructionSize bounds how many bytes a single instruction can
	// occupy, used to size lookahead buffers for the decoder.
	MaxInstructionSize() int
	// Disassembler returns the instruction decoder for this architecture.
	Disassembler() Disassembler
}
