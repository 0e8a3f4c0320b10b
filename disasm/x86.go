// Package disasm wraps golang.org/x/arch/x86/x86asm as the external
// instruction decoder consumed by the architecture layer.
package disasm

import (
	"github.com/pkg/errors"
	"golang.org/x/arch/x86/x86asm"

	"github.com/Urethramancer/ncdec/arch"
)

// X86 decodes x86/x86-64 machine code via x86asm.Decode.
type X86 struct {
	// Mode is 16, 32 or 64, matching x86asm.Decode's bit-mode parameter.
	Mode int
}

// Disassemble decodes one instruction at pc from buf.
func (d *X86) Disassemble(pc uint64, buf []byte) (arch.Instruction, bool) {
	inst, err := x86asm.Decode(buf, d.Mode)
	if err != nil {
		return arch.Instruction{}, false
	}
	out := arch.Instruction{
		Addr:     pc,
		Bytes:    append([]byte{}, buf[:inst.Len]...),
		Mnemonic: inst.Op.String(),
	}
	if target, ok := branchTarget(inst, pc); ok {
		out.Targets = []uint64{target}
	}
	out.Fallthrough = !isUnconditionalTerminator(inst.Op)
	return out, true
}

// branchTarget extracts a statically known PC-relative branch target from
// a decoded instruction, when one is encoded directly in it.
func branchTarget(inst x86asm.Inst, pc uint64) (uint64, bool) {
	for _, a := range inst.Args {
		if a == nil {
			continue
		}
		if rel, ok := a.(x86asm.Rel); ok {
			return uint64(int64(pc) + int64(inst.Len) + int64(rel)), true
		}
	}
	return 0, false
}

func isUnconditionalTerminator(op x86asm.Op) bool {
	switch op {
	case x86asm.JMP, x86asm.RET, x86asm.RETF:
		return true
	}
	return false
}

// ErrShortBuffer is returned by callers that need at least MaxInstructionSize
// bytes of lookahead and didn't get them.
var ErrShortBuffer = errors.New("disasm: insufficient lookahead for decode")
