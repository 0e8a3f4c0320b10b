// Package misc provides small, pure pattern recognisers over
// (term, dataflow) used by structural analysis and code generation,
// grounded on the original decompiler's PatternRecognition.cpp.
package misc

import (
	"github.com/Urethramancer/ncdec/ir"
	"github.com/Urethramancer/ncdec/ir/dflow"
)

// ArrayAccess describes an indexing expression "base + stride*index".
type ArrayAccess struct {
	valid  bool
	Base   uint64
	Stride uint64
	Index  *ir.Term
}

// Valid reports whether the descriptor names an actual match.
func (a ArrayAccess) Valid() bool { return a.valid }

// BoundsCheck describes "if (index <= maxValue) then goto passed else goto ifFailed".
type BoundsCheck struct {
	valid    bool
	Index    *ir.Term
	MaxValue uint64
	IfFailed *ir.BasicBlock
}

// Valid reports whether the descriptor names an actual match.
func (b BoundsCheck) Valid() bool { return b.valid }

// RecognizeArrayAccess matches "*(base + index*stride)" or
// "*(base + index << shift)" where base and stride/shift resolve, through
// copy-through, to concrete constants.
func RecognizeArrayAccess(t *ir.Term, d *dflow.Dataflow) ArrayAccess {
	if t == nil {
		return ArrayAccess{}
	}
	t = dflow.FirstCopy(t, d)
	deref, ok := t.AsDereference()
	if !ok {
		return ArrayAccess{}
	}
	address := dflow.FirstCopy(deref.Address, d)
	add, ok := address.AsBinaryOperator()
	if !ok || add.BinaryKind != ir.ADD {
		return ArrayAccess{}
	}
	left := dflow.FirstCopy(add.Left, d)
	right := dflow.FirstCopy(add.Right, d)
	if r := recognizeBaseAndIndex(left, right, d); r.Valid() {
		return r
	}
	return recognizeBaseAndIndex(right, left, d)
}

func recognizeBaseAndIndex(base, mult *ir.Term, d *dflow.Dataflow) ArrayAccess {
	baseValue := d.GetValue(base)
	if !baseValue.Int.IsConcrete() {
		return ArrayAccess{}
	}
	binary, ok := mult.AsBinaryOperator()
	if !ok {
		return ArrayAccess{}
	}
	switch binary.BinaryKind {
	case ir.SHL:
		shiftValue := d.GetValue(binary.Right)
		if shiftValue.Int.IsConcrete() {
			return ArrayAccess{valid: true, Base: baseValue.Int.AsConcrete(), Stride: uint64(1) << shiftValue.Int.AsConcrete(), Index: binary.Left}
		}
	case ir.MUL:
		leftValue := d.GetValue(binary.Left)
		if leftValue.Int.IsConcrete() {
			return ArrayAccess{valid: true, Base: baseValue.Int.AsConcrete(), Stride: leftValue.Int.AsConcrete(), Index: binary.Right}
		}
		rightValue := d.GetValue(binary.Right)
		if rightValue.Int.IsConcrete() {
			return ArrayAccess{valid: true, Base: baseValue.Int.AsConcrete(), Stride: rightValue.Int.AsConcrete(), Index: binary.Left}
		}
	}
	return ArrayAccess{}
}

// RecognizeBoundsCheck matches a (possibly negated) "index <= const" /
// "index < const" conditional jump whose passed successor is ifPassed.
// Negation ("!!" idioms) is unwrapped up to ten times — the cap is
// preserved verbatim from the original implementation. It looks like a
// guard against a bug rather than a principled limit, but no caller is
// known to need more than a couple of unwraps.
func RecognizeBoundsCheck(jump *ir.Statement, ifPassed *ir.BasicBlock, d *dflow.Dataflow) BoundsCheck {
	if jump == nil || jump.Kind != ir.Jump || jump.IsUnconditional() {
		return BoundsCheck{}
	}

	var inverse bool
	switch ifPassed {
	case jump.ThenTarget.Block:
		inverse = false
	case jump.ElseTarget.Block:
		inverse = true
	default:
		return BoundsCheck{}
	}

	condition := dflow.FirstCopy(jump.Condition, d)
	for i := 0; i < 10; i++ {
		unary, ok := condition.AsUnaryOperator()
		if !ok || unary.UnaryKind != ir.NOT || unary.Width != 1 {
			break
		}
		condition = dflow.FirstCopy(unary.Operand, d)
		inverse = !inverse
	}

	binary, ok := condition.AsBinaryOperator()
	if !ok {
		return BoundsCheck{}
	}

	if !inverse {
		switch binary.BinaryKind {
		case ir.UNSIGNED_LESS_OR_EQUAL:
			if rv := d.GetValue(binary.Right); rv.Int.IsConcrete() {
				return BoundsCheck{valid: true, Index: binary.Left, MaxValue: rv.Int.AsConcrete(), IfFailed: jump.ElseTarget.Block}
			}
		case ir.UNSIGNED_LESS:
			if rv := d.GetValue(binary.Right); rv.Int.IsConcrete() {
				return BoundsCheck{valid: true, Index: binary.Left, MaxValue: rv.Int.AsConcrete() - 1, IfFailed: jump.ElseTarget.Block}
			}
		}
	} else {
		switch binary.BinaryKind {
		case ir.UNSIGNED_LESS:
			if lv := d.GetValue(binary.Left); lv.Int.IsConcrete() {
				return BoundsCheck{valid: true, Index: binary.Right, MaxValue: lv.Int.AsConcrete(), IfFailed: jump.ThenTarget.Block}
			}
		case ir.UNSIGNED_LESS_OR_EQUAL:
			if lv := d.GetValue(binary.Left); lv.Int.IsConcrete() {
				return BoundsCheck{valid: true, Index: binary.Right, MaxValue: lv.Int.AsConcrete() - 1, IfFailed: jump.ThenTarget.Block}
			}
		}
	}
	return BoundsCheck{}
}
