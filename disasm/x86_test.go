package disasm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisassembleRetIsAnUnconditionalTerminator(t *testing.T) {
	d := &X86{Mode: 64}
	inst, ok := d.Disassemble(0x1000, []byte{0xC3})
	require.True(t, ok, "expected RET to decode")
	assert.Equal(t, 1, inst.Size())
	assert.False(t, inst.Fallthrough, "RET must not fall through")
	assert.Empty(t, inst.Targets, "RET has no statically known branch target")
}

func TestDisassembleNopFallsThrough(t *testing.T) {
	d := &X86{Mode: 64}
	inst, ok := d.Disassemble(0x1000, []byte{0x90})
	require.True(t, ok, "expected NOP to decode")
	assert.True(t, inst.Fallthrough, "NOP must fall through to the next instruction")
}

func TestDisassembleShortJumpRecordsRelativeTarget(t *testing.T) {
	d := &X86{Mode: 64}
	// EB 05: jmp rel8 +5, target = pc + len(2) + 5
	inst, ok := d.Disassemble(0x1000, []byte{0xEB, 0x05})
	require.True(t, ok, "expected JMP rel8 to decode")
	assert.False(t, inst.Fallthrough, "an unconditional JMP must not fall through")
	require.Len(t, inst.Targets, 1)
	assert.Equal(t, uint64(0x1000+2+5), inst.Targets[0])
}

func TestDisassembleConditionalJumpFallsThroughAndHasTarget(t *testing.T) {
	d := &X86{Mode: 64}
	// 74 05: je rel8 +5
	inst, ok := d.Disassemble(0x1000, []byte{0x74, 0x05})
	require.True(t, ok, "expected JE rel8 to decode")
	assert.True(t, inst.Fallthrough, "a conditional jump can fall through when not taken")
	require.Len(t, inst.Targets, 1)
	assert.Equal(t, uint64(0x1000+2+5), inst.Targets[0])
}

func TestDisassembleRejectsShortBuffer(t *testing.T) {
	d := &X86{Mode: 64}
	_, ok := d.Disassemble(0x1000, nil)
	assert.False(t, ok, "expected decode failure on an empty buffer")
}
