// Package cgen consumes one function's region tree, variable set,
// liveness set and hook-installed statements and prints a C-like
// rendering, using free-function printers over a sink interface instead
// of a virtual Printable hierarchy.
package cgen

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/Urethramancer/ncdec/ir"
	"github.com/Urethramancer/ncdec/ir/cflow"
	"github.com/Urethramancer/ncdec/ir/liveness"
	"github.com/Urethramancer/ncdec/ir/vars"
	"github.com/Urethramancer/ncdec/mangling"
)

// Printer renders one function's region tree to w.
type Printer struct {
	W          io.Writer
	Live       *liveness.Liveness
	Variables  *vars.Variables
	Demangler  mangling.Demangler
	// Color enables ANSI keyword highlighting via fatih/color; off by
	// default so piped output (--print-cxx=file) stays plain text.
	Color bool
}

func (p *Printer) keyword(s string) string {
	if !p.Color {
		return s
	}
	c := color.New(color.FgBlue, color.Bold)
	c.EnableColor()
	return c.Sprint(s)
}

// PrintFunction renders fn's name and reduced region tree.
func (p *Printer) PrintFunction(fn *ir.Function, root *cflow.Node) {
	name := fn.Name
	if p.Demangler != nil {
		if display, ok := p.Demangler.Demangle(fn.Name); ok {
			name = display
		}
	}
	fmt.Fprintf(p.W, "%s %s() {\n", p.keyword("void"), name)
	p.printNode(root, 1)
	fmt.Fprintln(p.W, "}")
}

func (p *Printer) indent(depth int) string {
	out := ""
	for i := 0; i < depth; i++ {
		out += "    "
	}
	return out
}

func (p *Printer) printNode(n *cflow.Node, depth int) {
	if n == nil {
		return
	}
	ind := p.indent(depth)
	switch n.Kind {
	case cflow.Leaf:
		p.printBlock(n.BasicBlock, depth)
	case cflow.Block:
		for _, c := range n.Children {
			p.printNode(c, depth)
		}
	case cflow.If:
		fmt.Fprintf(p.W, "%s%s (%s) {\n", ind, p.keyword("if"), p.conditionText(n.Condition))
		p.printNode(n.Children[0], depth+1)
		fmt.Fprintf(p.W, "%s} %s {\n", ind, p.keyword("else"))
		p.printNode(n.Children[1], depth+1)
		fmt.Fprintf(p.W, "%s}\n", ind)
	case cflow.While:
		fmt.Fprintf(p.W, "%s%s (%s) {\n", ind, p.keyword("while"), p.conditionText(n.Condition))
		p.printNode(n.Children[0], depth+1)
		fmt.Fprintf(p.W, "%s}\n", ind)
	case cflow.DoWhile:
		fmt.Fprintf(p.W, "%s%s {\n", ind, p.keyword("do"))
		p.printNode(n.Children[0], depth+1)
		fmt.Fprintf(p.W, "%s} %s (%s);\n", ind, p.keyword("while"), p.conditionText(n.Condition))
	case cflow.Switch:
		fmt.Fprintf(p.W, "%s%s (%s) {\n", ind, p.keyword("switch"), p.termText(n.Index))
		for _, c := range n.Cases {
			fmt.Fprintf(p.W, "%s%s %d:\n", ind, p.keyword("case"), c.Value)
			p.printNode(c.Target, depth+1)
		}
		if n.Default != nil {
			fmt.Fprintf(p.W, "%s%s:\n", ind, p.keyword("default"))
			p.printNode(n.Default, depth+1)
		}
		fmt.Fprintf(p.W, "%s}\n", ind)
	case cflow.NaturalLoop:
		fmt.Fprintf(p.W, "%sgoto_loop {\n", ind)
		for _, m := range n.Members {
			p.printNode(m, depth+1)
		}
		fmt.Fprintf(p.W, "%s}\n", ind)
	}
}

func (p *Printer) conditionText(n *cflow.Node) string {
	if n == nil {
		return "?"
	}
	b := n.BasicBlock
	if b == nil {
		leaves := []*ir.BasicBlock{}
		n.Leaves(&leaves)
		if len(leaves) > 0 {
			b = leaves[len(leaves)-1]
		}
	}
	if b == nil {
		return "?"
	}
	if j := b.GetJump(); j != nil {
		return p.termText(j.Condition)
	}
	return "?"
}

// printBlock emits one line per live assignment, per call, and a return
// per halt, kept deliberately terse: touches and jumps are not printed,
// and an assignment is rendered only if liveness kept its target.
func (p *Printer) printBlock(b *ir.BasicBlock, depth int) {
	ind := p.indent(depth)
	for _, s := range b.Statements {
		switch s.Kind {
		case ir.Assignment:
			if p.Live == nil || p.Live.IsLive(s.Left) {
				fmt.Fprintf(p.W, "%s%s = %s;\n", ind, p.termText(s.Left), p.termText(s.Right))
			}
		case ir.Call:
			fmt.Fprintf(p.W, "%s%s();\n", ind, p.termText(s.Target))
		case ir.Halt:
			fmt.Fprintf(p.W, "%s%s;\n", ind, p.keyword("return"))
		}
	}
}

func (p *Printer) termText(t *ir.Term) string {
	if t == nil {
		return ""
	}
	if p.Variables != nil {
		if v := p.Variables.VariableFor(t); v != nil {
			return fmt.Sprintf("var_%d", v.ID())
		}
	}
	switch t.Kind {
	case ir.IntConst:
		return fmt.Sprintf("0x%x", t.Value)
	case ir.Intrinsic:
		return t.Name
	case ir.MemoryLocationAccess:
		return t.Location.String()
	case ir.Dereference:
		return "*(" + p.termText(t.Address) + ")"
	case ir.UnaryOperator:
		return fmt.Sprintf("~%s", p.termText(t.Operand))
	case ir.BinaryOperator:
		return fmt.Sprintf("(%s %s %s)", p.termText(t.Left), binarySymbol(t.BinaryKind), p.termText(t.Right))
	case ir.Choice:
		return p.termText(t.Preferred)
	default:
		return "?"
	}
}

func binarySymbol(k ir.BinaryOp) string {
	switch k {
	case ir.ADD:
		return "+"
	case ir.SUB:
		return "-"
	case ir.MUL:
		return "*"
	case ir.SIGNED_DIV, ir.UNSIGNED_DIV:
		return "/"
	case ir.SIGNED_REM, ir.UNSIGNED_REM:
		return "%"
	case ir.AND:
		return "&"
	case ir.OR:
		return "|"
	case ir.XOR:
		return "^"
	case ir.SHL:
		return "<<"
	case ir.SHR, ir.SAR:
		return ">>"
	case ir.EQUAL:
		return "=="
	case ir.SIGNED_LESS, ir.UNSIGNED_LESS:
		return "<"
	case ir.SIGNED_LESS_OR_EQUAL, ir.UNSIGNED_LESS_OR_EQUAL:
		return "<="
	default:
		return "?"
	}
}
