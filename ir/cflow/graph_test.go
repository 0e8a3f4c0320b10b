package cflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Urethramancer/ncdec/ir"
)

func buildLinearFunction() *ir.Function {
	b1 := ir.NewBasicBlock().WithAddr(0x1000)
	b2 := ir.NewBasicBlock().WithAddr(0x1010)
	b1.Append(ir.NewJump(nil, ir.JumpTarget{Block: b2}, ir.JumpTarget{}))
	b2.Append(ir.NewHalt())
	fn := ir.NewFunction("f", 0x1000)
	fn.AddBlock(b1)
	fn.AddBlock(b2)
	return fn
}

func TestReduceCollapsesStraightLineSequenceIntoBlock(t *testing.T) {
	fn := buildLinearFunction()
	g := BuildGraph(fn)
	root := g.Reduce(nil, nil, func(uint64) *Node { return nil })

	require.Equal(t, Block, root.Kind)
	var leaves []*ir.BasicBlock
	root.Leaves(&leaves)
	require.Len(t, leaves, 2)
	assert.Equal(t, fn.Blocks[0], leaves[0])
	assert.Equal(t, fn.Blocks[1], leaves[1])
}

// buildIfDiamond builds: entry branches to thenB or elseB, both of which
// fall through to a shared merge block.
func buildIfDiamond() *ir.Function {
	entry := ir.NewBasicBlock().WithAddr(0x1000)
	thenB := ir.NewBasicBlock().WithAddr(0x1010)
	elseB := ir.NewBasicBlock().WithAddr(0x1020)
	merge := ir.NewBasicBlock().WithAddr(0x1030)

	entry.Append(ir.NewJump(ir.NewIntConst(1, 1), ir.JumpTarget{Block: thenB}, ir.JumpTarget{Block: elseB}))
	thenB.Append(ir.NewJump(nil, ir.JumpTarget{Block: merge}, ir.JumpTarget{}))
	elseB.Append(ir.NewJump(nil, ir.JumpTarget{Block: merge}, ir.JumpTarget{}))
	merge.Append(ir.NewHalt())

	fn := ir.NewFunction("f", 0x1000)
	fn.AddBlock(entry)
	fn.AddBlock(thenB)
	fn.AddBlock(elseB)
	fn.AddBlock(merge)
	return fn
}

// findKind searches n's tree for the first node of the given kind.
func findKind(n *Node, kind RegionKind) *Node {
	if n == nil {
		return nil
	}
	if n.Kind == kind {
		return n
	}
	for _, c := range n.Children {
		if found := findKind(c, kind); found != nil {
			return found
		}
	}
	for _, m := range n.Members {
		if found := findKind(m, kind); found != nil {
			return found
		}
	}
	return nil
}

func TestReduceRecognisesIfThenElseDiamond(t *testing.T) {
	fn := buildIfDiamond()
	g := BuildGraph(fn)
	root := g.Reduce(nil, nil, func(uint64) *Node { return nil })

	require.Equal(t, Block, root.Kind)
	ifNode := findKind(root, If)
	require.NotNil(t, ifNode, "expected an If region somewhere in %+v", root)
	assert.NotNil(t, ifNode.Condition, "an If node must record its condition region")
	require.Len(t, ifNode.Children, 2, "If should have a then- and an else-child")

	var leaves []*ir.BasicBlock
	root.Leaves(&leaves)
	assert.Len(t, leaves, 4, "expected all 4 blocks to appear as leaves")
}

// buildWhileLoop builds: header tests a condition, looping back to itself
// on one arm and exiting on the other — a pre-test loop whose only entry
// is the header.
func buildWhileLoop() *ir.Function {
	header := ir.NewBasicBlock().WithAddr(0x1000)
	body := ir.NewBasicBlock().WithAddr(0x1010)
	exit := ir.NewBasicBlock().WithAddr(0x1020)

	header.Append(ir.NewJump(ir.NewIntConst(1, 1), ir.JumpTarget{Block: body}, ir.JumpTarget{Block: exit}))
	body.Append(ir.NewJump(nil, ir.JumpTarget{Block: header}, ir.JumpTarget{}))
	exit.Append(ir.NewHalt())

	fn := ir.NewFunction("f", 0x1000)
	fn.AddBlock(header)
	fn.AddBlock(body)
	fn.AddBlock(exit)
	return fn
}

func TestReduceRecognisesWhileLoop(t *testing.T) {
	fn := buildWhileLoop()
	g := BuildGraph(fn)
	root := g.Reduce(nil, nil, func(uint64) *Node { return nil })

	whileNode := findKind(root, While)
	require.NotNil(t, whileNode, "expected a While region somewhere in %+v", root)
	assert.Len(t, whileNode.Children, 1, "While should have exactly one body child")
}

// buildDoWhileLoop builds a block whose own terminator conditionally jumps
// back to itself (test at the bottom).
func buildDoWhileLoop() *ir.Function {
	entry := ir.NewBasicBlock().WithAddr(0x1000)
	loop := ir.NewBasicBlock().WithAddr(0x1010)
	exit := ir.NewBasicBlock().WithAddr(0x1020)

	entry.Append(ir.NewJump(nil, ir.JumpTarget{Block: loop}, ir.JumpTarget{}))
	loop.Append(ir.NewJump(ir.NewIntConst(1, 1), ir.JumpTarget{Block: loop}, ir.JumpTarget{Block: exit}))
	exit.Append(ir.NewHalt())

	fn := ir.NewFunction("f", 0x1000)
	fn.AddBlock(entry)
	fn.AddBlock(loop)
	fn.AddBlock(exit)
	return fn
}

func TestReduceRecognisesDoWhileSelfLoop(t *testing.T) {
	fn := buildDoWhileLoop()
	g := BuildGraph(fn)
	root := g.Reduce(nil, nil, func(uint64) *Node { return nil })

	assert.NotNil(t, findKind(root, DoWhile), "expected a DoWhile region somewhere in %+v", root)
}

func TestNodeForBlockResolvesAfterReduction(t *testing.T) {
	fn := buildLinearFunction()
	g := BuildGraph(fn)
	_ = g.Reduce(nil, nil, func(uint64) *Node { return nil })

	n := g.NodeForBlock(fn.Blocks[1])
	require.NotNil(t, n, "NodeForBlock should still resolve a block after it has been folded into a larger region")

	var leaves []*ir.BasicBlock
	n.Leaves(&leaves)
	assert.Contains(t, leaves, fn.Blocks[1], "the resolved node's leaves should include the requested block")
}

// buildIfWithCompoundCondition builds a diamond whose test is split across
// two blocks: compute evaluates a compound "a AND b" condition with no
// branch of its own, then falls through unconditionally into test, which
// performs the actual conditional jump. trySequence folds compute+test
// into one Block before tryIfOrWhile ever sees the header, so the
// resulting If's Condition region spans both blocks.
func buildIfWithCompoundCondition() (fn *ir.Function, compute, test *ir.BasicBlock) {
	compute = ir.NewBasicBlock().WithAddr(0x1000)
	test = ir.NewBasicBlock().WithAddr(0x1010)
	thenB := ir.NewBasicBlock().WithAddr(0x1020)
	elseB := ir.NewBasicBlock().WithAddr(0x1030)
	merge := ir.NewBasicBlock().WithAddr(0x1040)

	a := ir.NewIntConst(1, 1)
	b := ir.NewIntConst(0, 1)
	and, err := ir.NewBinaryOperator(ir.AND, a, b, 1)
	if err != nil {
		panic(err)
	}

	compute.Append(ir.NewTouch(and))
	compute.Append(ir.NewJump(nil, ir.JumpTarget{Block: test}, ir.JumpTarget{}))
	test.Append(ir.NewJump(and, ir.JumpTarget{Block: thenB}, ir.JumpTarget{Block: elseB}))
	thenB.Append(ir.NewJump(nil, ir.JumpTarget{Block: merge}, ir.JumpTarget{}))
	elseB.Append(ir.NewJump(nil, ir.JumpTarget{Block: merge}, ir.JumpTarget{}))
	merge.Append(ir.NewHalt())

	fn = ir.NewFunction("f", 0x1000)
	for _, blk := range []*ir.BasicBlock{compute, test, thenB, elseB, merge} {
		fn.AddBlock(blk)
	}
	return
}

func TestReduceFoldsCompoundConditionIntoMultiBlockConditionRegion(t *testing.T) {
	fn, compute, test := buildIfWithCompoundCondition()
	g := BuildGraph(fn)
	root := g.Reduce(nil, nil, func(uint64) *Node { return nil })

	ifNode := findKind(root, If)
	require.NotNil(t, ifNode, "expected an If region somewhere in %+v", root)
	require.NotNil(t, ifNode.Condition, "an If node must record its condition region")
	require.Equal(t, Block, ifNode.Condition.Kind, "a compound condition's header must survive as a multi-block region, not be collapsed to just its final block")

	var condLeaves []*ir.BasicBlock
	ifNode.Condition.Leaves(&condLeaves)
	require.Len(t, condLeaves, 2)
	assert.Equal(t, compute, condLeaves[0])
	assert.Equal(t, test, condLeaves[1])

	var leaves []*ir.BasicBlock
	root.Leaves(&leaves)
	assert.Len(t, leaves, 5, "expected all 5 blocks to appear as leaves")
}
