// Package fixtures builds small, hand-assembled ir.Program values for
// exercising the pipeline end to end without a real file-format loader or
// instruction lifter. The reference CLI uses these to demonstrate
// --print-ir/--print-cfg/--print-regions/--print-cxx against something
// real when no serialized program is supplied.
package fixtures

import (
	"github.com/Urethramancer/ncdec/arch/x86"
	"github.com/Urethramancer/ncdec/ir"
)

// GCD builds the classic recursive gcd(a, b) function (grounded on
// original_source's examples/src/003_gcd_m32.c), lowered by hand into the
// IR shape a real x86-64 lifter would produce for:
//
//	int gcd(int a, int b) {
//	    if (b == 0) return a;
//	    return gcd(b, a % b);
//	}
func GCD() *ir.Program {
	a := ir.NewMemoryLocation(x86.RDI, 0, 32)
	b := ir.NewMemoryLocation(x86.RSI, 0, 32)
	ret := ir.NewMemoryLocation(x86.RAX, 0, 32)

	fn := ir.NewFunction("gcd", 0x1000)

	entry := ir.NewBasicBlock().WithAddr(0x1000)
	baseCase := ir.NewBasicBlock().WithAddr(0x1010)
	recurse := ir.NewBasicBlock().WithAddr(0x1020)

	bRead := ir.NewMemoryLocationAccess(b, ir.Read)
	zero := ir.NewIntConst(0, 32)
	cmp, err := ir.NewBinaryOperator(ir.EQUAL, bRead, zero, 1)
	if err != nil {
		panic(err)
	}
	entry.Append(ir.NewJump(cmp, ir.JumpTarget{Block: baseCase}, ir.JumpTarget{Block: recurse}))

	aRead := ir.NewMemoryLocationAccess(a, ir.Read)
	retWrite := ir.NewMemoryLocationAccess(ret, ir.Write)
	baseCase.Append(ir.NewAssignment(retWrite, aRead))
	baseCase.Append(ir.NewHalt())

	aRead2 := ir.NewMemoryLocationAccess(a, ir.Read)
	bRead2 := ir.NewMemoryLocationAccess(b, ir.Read)
	rem, err := ir.NewBinaryOperator(ir.SIGNED_REM, aRead2, bRead2, 32)
	if err != nil {
		panic(err)
	}
	// gcd(b, a % b): b becomes the first argument, a % b the second. The
	// remainder is computed into rdx before either argument slot is
	// overwritten.
	tmp := ir.NewMemoryLocation(x86.RDX, 0, 32)
	argA := ir.NewMemoryLocationAccess(a, ir.Write)
	argB := ir.NewMemoryLocationAccess(b, ir.Write)
	recurse.Append(ir.NewAssignment(ir.NewMemoryLocationAccess(tmp, ir.Write), rem))
	recurse.Append(ir.NewAssignment(argA, ir.NewMemoryLocationAccess(b, ir.Read)))
	recurse.Append(ir.NewAssignment(argB, ir.NewMemoryLocationAccess(tmp, ir.Read)))
	callTarget := ir.NewIntConst(0x1000, 64)
	recurse.Append(ir.NewCall(callTarget))
	retWrite2 := ir.NewMemoryLocationAccess(ret, ir.Write)
	retRead := ir.NewMemoryLocationAccess(ret, ir.Read)
	recurse.Append(ir.NewAssignment(retWrite2, retRead))
	recurse.Append(ir.NewHalt())

	fn.AddBlock(entry)
	fn.AddBlock(baseCase)
	fn.AddBlock(recurse)

	prog := ir.NewProgram()
	prog.AddFunction(fn)
	return prog
}
