package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBinaryOperatorComparisonRequiresOneBitResult(t *testing.T) {
	left := NewIntConst(1, 32)
	right := NewIntConst(2, 32)
	_, err := NewBinaryOperator(EQUAL, left, right, 32)
	assert.Error(t, err, "expected an error building a comparison with a non-1-bit result width")

	cmp, err := NewBinaryOperator(EQUAL, left, right, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cmp.Width)
}

func TestNewBinaryOperatorRejectsMismatchedWidths(t *testing.T) {
	left := NewIntConst(1, 32)
	right := NewIntConst(2, 16)
	_, err := NewBinaryOperator(ADD, left, right, 32)
	assert.Error(t, err, "expected an error adding operands of different widths")
}

func TestNewBinaryOperatorShiftPreservesShiftedWidth(t *testing.T) {
	left := NewIntConst(1, 32)
	shiftAmount := NewIntConst(4, 8)
	shl, err := NewBinaryOperator(SHL, left, shiftAmount, 32)
	require.NoError(t, err)
	assert.Equal(t, int64(32), shl.Width, "the shifted operand's width")

	_, err = NewBinaryOperator(SHL, left, shiftAmount, 16)
	assert.Error(t, err, "expected an error when the result width does not match the shifted operand")
}

func TestNewUnaryOperatorExtensionMustWiden(t *testing.T) {
	operand := NewIntConst(1, 8)
	_, err := NewUnaryOperator(SIGN_EXTEND, operand, 4)
	assert.Error(t, err, "expected an error narrowing via SIGN_EXTEND")

	widened, err := NewUnaryOperator(SIGN_EXTEND, operand, 32)
	require.NoError(t, err)
	assert.Equal(t, int64(32), widened.Width)
}

func TestNewUnaryOperatorTruncateMustNarrow(t *testing.T) {
	operand := NewIntConst(1, 32)
	_, err := NewUnaryOperator(TRUNCATE, operand, 64)
	assert.Error(t, err, "expected an error widening via TRUNCATE")

	_, err = NewUnaryOperator(TRUNCATE, operand, 8)
	assert.NoError(t, err)
}

func TestNewUnaryOperatorDefaultPreservesWidth(t *testing.T) {
	operand := NewIntConst(1, 32)
	_, err := NewUnaryOperator(NOT, operand, 16)
	assert.Error(t, err, "expected an error changing width with a non-extension/truncation operator")
}

func TestNewChoiceRequiresMatchingWidths(t *testing.T) {
	a := NewIntConst(1, 32)
	b := NewIntConst(2, 16)
	_, err := NewChoice(a, b)
	assert.Error(t, err, "expected an error building a choice between mismatched widths")

	c := NewIntConst(2, 32)
	choice, err := NewChoice(a, c)
	require.NoError(t, err)
	assert.Equal(t, Choice, choice.Kind)
	assert.Equal(t, int64(32), choice.Width)
}

func TestAttachToSetsStatementOnWholeTree(t *testing.T) {
	left := NewIntConst(1, 32)
	right := NewIntConst(2, 32)
	sum, err := NewBinaryOperator(ADD, left, right, 32)
	require.NoError(t, err)
	loc := NewMemoryLocation(1, 0, 32)
	target := NewMemoryLocationAccess(loc, Write)
	s := NewAssignment(target, sum)

	assert.Equal(t, s, sum.Statement, "the binary operator term should be attached to the owning assignment")
	assert.Equal(t, s, left.Statement)
	assert.Equal(t, s, right.Statement, "sub-terms of an attached tree should all point to the owning statement")
	assert.Equal(t, sum, target.Source, "the assignment target's Source must point at the right-hand side")
}
