package compiler

import (
	"github.com/simon-1M/closurec/ir"
	"github.com/simon-1M/closurec/types"
)

// scope maps source locals to the temporaries that hold them. Blocks and
// branch bodies open a child scope so shadowing lets do not leak out.
type scope struct {
	parent *scope
	locals map[string]int
}

func (s *scope) newChild() *scope {
	return &scope{parent: s, locals: map[string]int{}}
}

func (s *scope) lookup(name string) (int, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if t, ok := cur.locals[name]; ok {
			return t, true
		}
	}
	return 0, false
}

// Code is the function under construction: its temporaries, its block arena
// and the block currently being filled.
type Code struct {
	fn      *ir.Function
	current *ir.Block
	symbols *scope

	// dead is set while filling a block that nothing branches to, which
	// happens right after a return or abort.
	dead bool
}

func newCode(fn *ir.Function) *Code {
	c := &Code{fn: fn, symbols: &scope{locals: map[string]int{}}}
	c.setBlock(c.newBlock())
	return c
}

// Function returns the function being built.
func (c *Code) Function() *ir.Function {
	return c.fn
}

func (c *Code) newTemp(t types.Type, name string) int {
	idx := len(c.fn.Temps)
	c.fn.Temps = append(c.fn.Temps, ir.Temp{Index: idx, Type: t, Name: name})
	return idx
}

func (c *Code) isNamed(t int) bool {
	return t < c.fn.NumParams || c.fn.Temps[t].Name != ""
}

func (c *Code) newBlock() ir.Label {
	label := ir.Label(len(c.fn.Blocks))
	c.fn.Blocks = append(c.fn.Blocks, &ir.Block{Label: label})
	return label
}

func (c *Code) setBlock(l ir.Label) {
	c.current = c.fn.Blocks[l]
	c.dead = false
}

func (c *Code) emit(instr ir.Instr) {
	c.current.Instrs = append(c.current.Instrs, instr)
}

// terminate ends the current block. Code emitted afterwards goes into a
// fresh block with no predecessors until setBlock is called.
func (c *Code) terminate(t ir.Terminator) {
	c.emit(t)
	c.setBlock(c.newBlock())
	c.dead = true
}

// branchTo ends the current block with a jump to l, allocating l first if it
// is still -1. Nothing is emitted from dead code.
func (c *Code) branchTo(l *ir.Label) {
	if c.dead {
		return
	}
	if *l < 0 {
		*l = c.newBlock()
	}
	c.terminate(&ir.Branch{Target: *l})
}

func (c *Code) enterScope() {
	c.symbols = c.symbols.newChild()
}

func (c *Code) leaveScope() {
	c.symbols = c.symbols.parent
}

// prune drops blocks unreachable from the entry and renumbers the rest so
// labels match arena positions again. Layout order is preserved.
func (c *Code) prune() {
	blocks := c.fn.Blocks
	reachable := make([]bool, len(blocks))
	reachable[0] = true
	work := []ir.Label{0}
	for len(work) > 0 {
		l := work[len(work)-1]
		work = work[:len(work)-1]
		for _, s := range blocks[l].Successors() {
			if !reachable[s] {
				reachable[s] = true
				work = append(work, s)
			}
		}
	}
	renumber := make([]ir.Label, len(blocks))
	var kept []*ir.Block
	for i, b := range blocks {
		if !reachable[i] {
			continue
		}
		renumber[i] = ir.Label(len(kept))
		kept = append(kept, b)
	}
	for i, b := range kept {
		b.Label = ir.Label(i)
		switch t := b.Terminator().(type) {
		case *ir.Branch:
			t.Target = renumber[t.Target]
		case *ir.CondBranch:
			t.Then = renumber[t.Then]
			t.Else = renumber[t.Else]
		}
	}
	c.fn.Blocks = kept
	c.compactTemps()
}

// compactTemps drops temporaries that only pruned code referred to.
// Parameters always keep their indices.
func (c *Code) compactTemps() {
	used := make([]bool, len(c.fn.Temps))
	for i := 0; i < c.fn.NumParams; i++ {
		used[i] = true
	}
	for _, b := range c.fn.Blocks {
		for _, instr := range b.Instrs {
			for _, t := range instr.Uses() {
				used[t] = true
			}
			for _, t := range instr.Defs() {
				used[t] = true
			}
		}
	}
	renumber := make([]int, len(c.fn.Temps))
	var kept []ir.Temp
	for i, t := range c.fn.Temps {
		if !used[i] {
			continue
		}
		renumber[i] = len(kept)
		t.Index = len(kept)
		kept = append(kept, t)
	}
	if len(kept) == len(c.fn.Temps) {
		return
	}
	for _, b := range c.fn.Blocks {
		for _, instr := range b.Instrs {
			ir.RenameTemps(instr, func(t int) int { return renumber[t] })
		}
	}
	c.fn.Temps = kept
}
