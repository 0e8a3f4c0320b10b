package misc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Urethramancer/ncdec/ir"
	"github.com/Urethramancer/ncdec/ir/dflow"
)

func TestRecognizeArrayAccessMul(t *testing.T) {
	d := dflow.NewDataflow()

	base := ir.NewIntConst(0x2000, 64)
	d.SetValue(base, dflow.Value{Int: dflow.NewExact(0x2000, 64)})

	stride := ir.NewIntConst(4, 64)
	d.SetValue(stride, dflow.Value{Int: dflow.NewExact(4, 64)})

	index := ir.NewMemoryLocationAccess(ir.NewMemoryLocation(1, 0, 64), ir.Read)

	scaled, err := ir.NewBinaryOperator(ir.MUL, stride, index, 64)
	require.NoError(t, err)
	addr, err := ir.NewBinaryOperator(ir.ADD, base, scaled, 64)
	require.NoError(t, err)
	deref, err := ir.NewDereference(addr, 32, ir.Read)
	require.NoError(t, err)

	access := RecognizeArrayAccess(deref, d)
	require.True(t, access.Valid(), "expected a recognised array access")
	assert.Equal(t, uint64(0x2000), access.Base)
	assert.Equal(t, uint64(4), access.Stride)
	assert.Equal(t, index, access.Index)
}

func TestRecognizeArrayAccessShl(t *testing.T) {
	d := dflow.NewDataflow()

	base := ir.NewIntConst(0x3000, 64)
	d.SetValue(base, dflow.Value{Int: dflow.NewExact(0x3000, 64)})

	shiftAmount := ir.NewIntConst(2, 64)
	d.SetValue(shiftAmount, dflow.Value{Int: dflow.NewExact(2, 64)})

	index := ir.NewMemoryLocationAccess(ir.NewMemoryLocation(1, 0, 64), ir.Read)
	scaled, err := ir.NewBinaryOperator(ir.SHL, index, shiftAmount, 64)
	require.NoError(t, err)
	addr, err := ir.NewBinaryOperator(ir.ADD, scaled, base, 64)
	require.NoError(t, err)
	deref, err := ir.NewDereference(addr, 32, ir.Read)
	require.NoError(t, err)

	access := RecognizeArrayAccess(deref, d)
	require.True(t, access.Valid(), "expected a recognised array access")
	assert.Equal(t, uint64(0x3000), access.Base)
	assert.Equal(t, uint64(4), access.Stride, "1<<2")
}

func TestRecognizeArrayAccessRejectsNonDereference(t *testing.T) {
	d := dflow.NewDataflow()
	assert.False(t, RecognizeArrayAccess(ir.NewIntConst(1, 32), d).Valid(), "a bare constant is not an array access")
}

func buildBoundsCheckJump(t *testing.T, kind ir.BinaryOp, maxValue uint64) (*ir.Statement, *ir.BasicBlock, *ir.BasicBlock, *ir.Term, *dflow.Dataflow) {
	t.Helper()
	d := dflow.NewDataflow()

	index := ir.NewMemoryLocationAccess(ir.NewMemoryLocation(1, 0, 32), ir.Read)
	limit := ir.NewIntConst(maxValue, 32)
	d.SetValue(limit, dflow.Value{Int: dflow.NewExact(maxValue, 32)})

	cond, err := ir.NewBinaryOperator(kind, index, limit, 1)
	require.NoError(t, err)

	passed := ir.NewBasicBlock().WithAddr(0x2000)
	failed := ir.NewBasicBlock().WithAddr(0x3000)
	jump := ir.NewJump(cond, ir.JumpTarget{Block: passed}, ir.JumpTarget{Block: failed})

	b := ir.NewBasicBlock().WithAddr(0x1000)
	b.Append(jump)
	return jump, passed, failed, index, d
}

func TestRecognizeBoundsCheckLessOrEqual(t *testing.T) {
	jump, passed, failed, index, d := buildBoundsCheckJump(t, ir.UNSIGNED_LESS_OR_EQUAL, 9)
	bc := RecognizeBoundsCheck(jump, passed, d)
	require.True(t, bc.Valid(), "expected a recognised bounds check")
	assert.Equal(t, index, bc.Index)
	assert.Equal(t, uint64(9), bc.MaxValue)
	assert.Equal(t, failed, bc.IfFailed)
}

func TestRecognizeBoundsCheckLessThanConvertsToInclusiveMax(t *testing.T) {
	jump, passed, _, _, d := buildBoundsCheckJump(t, ir.UNSIGNED_LESS, 10)
	bc := RecognizeBoundsCheck(jump, passed, d)
	require.True(t, bc.Valid(), "expected a recognised bounds check")
	assert.Equal(t, uint64(9), bc.MaxValue, "index < 10 means max valid index is 9")
}

func TestRecognizeBoundsCheckRejectsUnconditionalJump(t *testing.T) {
	target := ir.NewBasicBlock().WithAddr(0x1000)
	jump := ir.NewJump(nil, ir.JumpTarget{Block: target}, ir.JumpTarget{})
	assert.False(t, RecognizeBoundsCheck(jump, target, dflow.NewDataflow()).Valid(),
		"an unconditional jump can never be a bounds check")
}

func TestRecognizeBoundsCheckUnwrapsNegation(t *testing.T) {
	d := dflow.NewDataflow()
	index := ir.NewMemoryLocationAccess(ir.NewMemoryLocation(1, 0, 32), ir.Read)
	limit := ir.NewIntConst(9, 32)
	d.SetValue(limit, dflow.Value{Int: dflow.NewExact(9, 32)})

	inner, err := ir.NewBinaryOperator(ir.UNSIGNED_LESS, limit, index, 1)
	require.NoError(t, err)
	negated, err := ir.NewUnaryOperator(ir.NOT, inner, 1)
	require.NoError(t, err)

	passed := ir.NewBasicBlock().WithAddr(0x2000)
	failed := ir.NewBasicBlock().WithAddr(0x3000)
	jump := ir.NewJump(negated, ir.JumpTarget{Block: passed}, ir.JumpTarget{Block: failed})
	b := ir.NewBasicBlock().WithAddr(0x1000)
	b.Append(jump)

	bc := RecognizeBoundsCheck(jump, passed, d)
	require.True(t, bc.Valid(), "expected !(limit < index) to be recognised as index <= limit")
	assert.Equal(t, uint64(9), bc.MaxValue)
	assert.Equal(t, index, bc.Index)
}
