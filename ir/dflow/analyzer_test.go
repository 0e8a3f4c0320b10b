package dflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Urethramancer/ncdec/arch/x86"
	"github.com/Urethramancer/ncdec/ir"
)

// TestAnalyzeMisalignedWritesSplitIntoTwoChunks covers the misaligned-
// argument scenario (original_source's 051_misaligned_arg.c): a 32-bit
// value assembled from two half-width writes is read back as a single
// 32-bit access, and reaching definitions must report both halves as
// separate chunks rather than merging or losing one.
func TestAnalyzeMisalignedWritesSplitIntoTwoChunks(t *testing.T) {
	domain := int32(100)
	lowLoc := ir.NewMemoryLocation(domain, 0, 16)
	highLoc := ir.NewMemoryLocation(domain, 16, 16)
	fullLoc := ir.NewMemoryLocation(domain, 0, 32)

	lowWrite := ir.NewMemoryLocationAccess(lowLoc, ir.Write)
	highWrite := ir.NewMemoryLocationAccess(highLoc, ir.Write)
	fullRead := ir.NewMemoryLocationAccess(fullLoc, ir.Read)

	b := ir.NewBasicBlock().WithAddr(0x1000)
	b.Append(ir.NewAssignment(lowWrite, ir.NewIntConst(0x1234, 16)))
	b.Append(ir.NewAssignment(highWrite, ir.NewIntConst(0x5678, 16)))
	b.Append(ir.NewTouch(fullRead))
	b.Append(ir.NewHalt())

	fn := ir.NewFunction("f", 0x1000)
	fn.AddBlock(b)

	dataflow, err := NewAnalyzer(fn, x86.RSP).Analyze()
	require.NoError(t, err)

	chunks := dataflow.GetDefinitions(fullRead).Chunks()
	require.Len(t, chunks, 2, "expected 2 reaching-definition chunks for the misaligned read")

	var sawLow, sawHigh bool
	for _, c := range chunks {
		if c.Range.Equals(lowLoc) && len(c.Defs) == 1 && c.Defs[0] == lowWrite {
			sawLow = true
		}
		if c.Range.Equals(highLoc) && len(c.Defs) == 1 && c.Defs[0] == highWrite {
			sawHigh = true
		}
	}
	assert.True(t, sawLow && sawHigh, "chunks = %+v, want one chunk per half matching its writer", chunks)
}

// TestEvalReadOfUnwrittenStackPointerYieldsZeroOffset grounds the stack-
// domain zero-reaching-write lattice special case documented in evalRead:
// reading the stack-pointer domain with no reaching write anywhere in the
// function resolves to stack_offset=Some(0), the function's own incoming
// stack pointer.
func TestEvalReadOfUnwrittenStackPointerYieldsZeroOffset(t *testing.T) {
	spDomain := x86.RSP
	spRead := ir.NewMemoryLocationAccess(ir.NewMemoryLocation(spDomain, 0, 64), ir.Read)

	b := ir.NewBasicBlock().WithAddr(0x1000)
	b.Append(ir.NewTouch(spRead))
	b.Append(ir.NewHalt())

	fn := ir.NewFunction("f", 0x1000)
	fn.AddBlock(b)

	dataflow, err := NewAnalyzer(fn, spDomain).Analyze()
	require.NoError(t, err)

	v := dataflow.GetValue(spRead)
	require.True(t, v.Offset.Valid)
	assert.Equal(t, int64(0), v.Offset.Value)
}

func TestAnalyzeConstantFoldsThroughArithmetic(t *testing.T) {
	domain := int32(1)
	loc := ir.NewMemoryLocation(domain, 0, 32)
	write := ir.NewMemoryLocationAccess(loc, ir.Write)

	left := ir.NewIntConst(7, 32)
	right := ir.NewIntConst(3, 32)
	sum, err := ir.NewBinaryOperator(ir.ADD, left, right, 32)
	require.NoError(t, err)

	b := ir.NewBasicBlock().WithAddr(0x1000)
	b.Append(ir.NewAssignment(write, sum))
	b.Append(ir.NewHalt())

	fn := ir.NewFunction("f", 0x1000)
	fn.AddBlock(b)

	dataflow, err := NewAnalyzer(fn, x86.RSP).Analyze()
	require.NoError(t, err)

	v := dataflow.GetValue(sum)
	require.True(t, v.Int.IsConcrete())
	assert.Equal(t, uint64(10), v.Int.AsConcrete())
}

func TestIsReturnRecognisesIndirectJumpThroughStackDereference(t *testing.T) {
	spDomain := x86.RSP
	spRead := ir.NewMemoryLocationAccess(ir.NewMemoryLocation(spDomain, 0, 64), ir.Read)
	addr, err := ir.NewDereference(spRead, 64, ir.Read)
	require.NoError(t, err)
	jump := ir.NewJump(nil, ir.JumpTarget{Address: addr}, ir.JumpTarget{})

	b := ir.NewBasicBlock().WithAddr(0x1000)
	b.Append(jump)
	fn := ir.NewFunction("f", 0x1000)
	fn.AddBlock(b)

	dataflow, err := NewAnalyzer(fn, spDomain).Analyze()
	require.NoError(t, err)

	assert.True(t, IsReturn(jump, dataflow, spDomain),
		"an indirect jump through a stack-domain dereference should be recognised as a return")
}

func TestIsReturnRejectsConditionalJump(t *testing.T) {
	spDomain := x86.RSP
	spRead := ir.NewMemoryLocationAccess(ir.NewMemoryLocation(spDomain, 0, 64), ir.Read)
	addr, err := ir.NewDereference(spRead, 64, ir.Read)
	require.NoError(t, err)
	cond := ir.NewIntConst(1, 1)
	jump := ir.NewJump(cond, ir.JumpTarget{Address: addr}, ir.JumpTarget{})

	assert.False(t, IsReturn(jump, NewDataflow(), spDomain), "a conditional jump must never be recognised as a return")
}
