package vars

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Urethramancer/ncdec/arch/x86"
	"github.com/Urethramancer/ncdec/ir"
	"github.com/Urethramancer/ncdec/ir/dflow"
	"github.com/Urethramancer/ncdec/ir/liveness"
)

func TestAnalyzeMergesWriteAndReachingRead(t *testing.T) {
	domain := int32(1)
	loc := ir.NewMemoryLocation(domain, 0, 32)

	write := ir.NewMemoryLocationAccess(loc, ir.Write)
	read := ir.NewMemoryLocationAccess(loc, ir.Read)

	b := ir.NewBasicBlock().WithAddr(0x1000)
	b.Append(ir.NewAssignment(write, ir.NewIntConst(1, 32)))
	b.Append(ir.NewTouch(read))
	b.Append(ir.NewHalt())

	fn := ir.NewFunction("f", 0x1000)
	fn.AddBlock(b)

	df, err := dflow.NewAnalyzer(fn, x86.RSP).Analyze()
	require.NoError(t, err)

	live := liveness.New()
	live.MakeLive(write)
	live.MakeLive(read)

	variables := (&Analyzer{Function: fn, Dataflow: df, Liveness: live}).Analyze()

	writeVar := variables.VariableFor(write)
	readVar := variables.VariableFor(read)
	require.NotNil(t, writeVar, "expected the write to belong to a variable")
	require.NotNil(t, readVar, "expected the read to belong to a variable")
	assert.Same(t, writeVar, readVar, "a write and a read it reaches must belong to the same variable")
	assert.True(t, writeVar.Contains(write))
	assert.True(t, writeVar.Contains(read))
}

func TestAnalyzeKeepsUnrelatedLocationsSeparate(t *testing.T) {
	domain := int32(1)
	locA := ir.NewMemoryLocation(domain, 0, 32)
	locB := ir.NewMemoryLocation(domain, 64, 32)

	writeA := ir.NewMemoryLocationAccess(locA, ir.Write)
	writeB := ir.NewMemoryLocationAccess(locB, ir.Write)

	b := ir.NewBasicBlock().WithAddr(0x1000)
	b.Append(ir.NewAssignment(writeA, ir.NewIntConst(1, 32)))
	b.Append(ir.NewAssignment(writeB, ir.NewIntConst(2, 32)))
	b.Append(ir.NewHalt())

	fn := ir.NewFunction("f", 0x1000)
	fn.AddBlock(b)

	df, err := dflow.NewAnalyzer(fn, x86.RSP).Analyze()
	require.NoError(t, err)

	live := liveness.New()
	live.MakeLive(writeA)
	live.MakeLive(writeB)

	variables := (&Analyzer{Function: fn, Dataflow: df, Liveness: live}).Analyze()

	require.Len(t, variables.List(), 2, "expected 2 independent variables")
	assert.NotSame(t, variables.VariableFor(writeA), variables.VariableFor(writeB),
		"disjoint locations with no reaching relationship must not share a variable")
}

func TestAnalyzeIgnoresDeadWrites(t *testing.T) {
	domain := int32(1)
	loc := ir.NewMemoryLocation(domain, 0, 32)
	write := ir.NewMemoryLocationAccess(loc, ir.Write)

	b := ir.NewBasicBlock().WithAddr(0x1000)
	b.Append(ir.NewAssignment(write, ir.NewIntConst(1, 32)))
	b.Append(ir.NewHalt())
	fn := ir.NewFunction("f", 0x1000)
	fn.AddBlock(b)

	df, err := dflow.NewAnalyzer(fn, x86.RSP).Analyze()
	require.NoError(t, err)

	live := liveness.New() // write never marked live
	variables := (&Analyzer{Function: fn, Dataflow: df, Liveness: live}).Analyze()

	assert.Empty(t, variables.List(), "expected no variables from a dead write")
}
