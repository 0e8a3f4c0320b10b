package ir

import "github.com/pkg/errors"

// Function owns a set of basic blocks reachable, directly or through
// control flow, from Entry. Entry must belong to the function and be
// reachable within it — callers construct functions via NewFunction +
// AddBlock and should validate with CheckReachability once lowering for
// the function is complete.
type Function struct {
	// Program is the owning program, set when the function is added.
	Program *Program

	Name  string
	Addr  uint64
	Entry *BasicBlock

	Blocks []*BasicBlock
}

// NewFunction creates an empty function at the given entry address.
func NewFunction(name string, addr uint64) *Function {
	return &Function{Name: name, Addr: addr}
}

// AddBlock adds block to the function, marking it owned. The first block
// added becomes Entry unless SetEntry is called explicitly afterwards.
func (f *Function) AddBlock(block *BasicBlock) {
	block.Function = f
	f.Blocks = append(f.Blocks, block)
	if f.Entry == nil {
		f.Entry = block
	}
}

// SetEntry designates block, which must already belong to f, as the entry.
func (f *Function) SetEntry(block *BasicBlock) error {
	if block.Function != f {
		return errors.New("ir: entry block does not belong to this function")
	}
	f.Entry = block
	return nil
}

// ErrEntryUnreachable is a FunctionFatal condition: the function's CFG does
// not let control reach every owned block from Entry. On this error the
// function is skipped and analysis of other functions continues.
var ErrEntryUnreachable = errors.New("ir: entry block does not reach all owned blocks")

// CheckReachability walks the CFG from Entry and returns ErrEntryUnreachable
// if any owned block is not reachable — the FunctionFatal malformed-CFG
// check.
func (f *Function) CheckReachability() error {
	if f.Entry == nil {
		return errors.New("ir: function has no entry block")
	}
	seen := make(map[*BasicBlock]bool, len(f.Blocks))
	var stack []*BasicBlock
	stack = append(stack, f.Entry)
	seen[f.Entry] = true
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, succ := range b.Successors() {
			if succ.Function == f && !seen[succ] {
				seen[succ] = true
				stack = append(stack, succ)
			}
		}
	}
	for _, b := range f.Blocks {
		if !seen[b] {
			return ErrEntryUnreachable
		}
	}
	return nil
}

// Predecessors returns the CFG in-edges for every block of f, computed
// fresh each call (structural transforms invalidate any cached copy).
func (f *Function) Predecessors() map[*BasicBlock][]*BasicBlock {
	preds := make(map[*BasicBlock][]*BasicBlock, len(f.Blocks))
	for _, b := range f.Blocks {
		preds[b] = nil
	}
	for _, b := range f.Blocks {
		for _, succ := range b.Successors() {
			preds[succ] = append(preds[succ], b)
		}
	}
	return preds
}
