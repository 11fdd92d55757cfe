// Package ir defines the three-address intermediate form produced by the
// lowerer and consumed by liveness analysis and code generation.
//
// A function body is a control-flow graph of basic blocks stored in an
// arena: Blocks[i] has label i and block 0 is the entry. Every block ends in
// exactly one terminator. Values live in typed temporaries; the function's
// parameters occupy temporaries 0 through NumParams-1.
package ir

import (
	"fmt"

	"github.com/simon-1M/closurec/ast"
	"github.com/simon-1M/closurec/types"
)

// Label identifies a block within one function.
type Label int

func (l Label) String() string {
	return fmt.Sprintf("L%d", int(l))
}

// Temp is a typed temporary. Name is the source local it was allocated
// for, if any.
type Temp struct {
	Index int
	Type  types.Type
	Name  string
}

// Function is one lowered function.
type Function struct {
	Module    string
	Name      string
	Kind      ast.FunctionKind
	NumParams int
	Results   []types.Type
	Temps     []Temp
	Blocks    []*Block
}

// Block is a basic block. The last instruction is its terminator.
type Block struct {
	Label  Label
	Instrs []Instr
}

// Terminator returns the block's final instruction, or nil for an empty
// block.
func (b *Block) Terminator() Terminator {
	if len(b.Instrs) == 0 {
		return nil
	}
	t, _ := b.Instrs[len(b.Instrs)-1].(Terminator)
	return t
}

// Successors returns the labels control may flow to from b.
func (b *Block) Successors() []Label {
	if t := b.Terminator(); t != nil {
		return t.Successors()
	}
	return nil
}

// Block returns the block with the given label.
func (f *Function) Block(l Label) *Block {
	return f.Blocks[l]
}

// Params returns the parameter temporaries.
func (f *Function) Params() []Temp {
	return f.Temps[:f.NumParams]
}

// Predecessors returns, for every block, the labels of the blocks that
// branch to it, in ascending order.
func (f *Function) Predecessors() [][]Label {
	preds := make([][]Label, len(f.Blocks))
	for _, b := range f.Blocks {
		for _, s := range b.Successors() {
			if n := len(preds[s]); n > 0 && preds[s][n-1] == b.Label {
				continue
			}
			preds[s] = append(preds[s], b.Label)
		}
	}
	return preds
}

// Validate checks the structural invariants of the block graph: labels
// match arena positions, each block ends in exactly one terminator, branch
// targets exist, and every temporary referenced is declared.
func (f *Function) Validate() error {
	if len(f.Blocks) == 0 {
		return fmt.Errorf("function %s has no blocks", f.Name)
	}
	if f.NumParams > len(f.Temps) {
		return fmt.Errorf("function %s declares %d params but only %d temps", f.Name, f.NumParams, len(f.Temps))
	}
	for i, t := range f.Temps {
		if t.Index != i {
			return fmt.Errorf("temp %d has index %d", i, t.Index)
		}
		if t.Type == nil {
			return fmt.Errorf("temp $t%d has no type", i)
		}
	}
	for i, b := range f.Blocks {
		if b.Label != Label(i) {
			return fmt.Errorf("block %d is labelled %s", i, b.Label)
		}
		if b.Terminator() == nil {
			return fmt.Errorf("block %s does not end in a terminator", b.Label)
		}
		for j, instr := range b.Instrs {
			if _, ok := instr.(Terminator); ok && j != len(b.Instrs)-1 {
				return fmt.Errorf("block %s has a terminator at position %d", b.Label, j)
			}
			temps := append(append([]int{}, instr.Uses()...), instr.Defs()...)
			for _, t := range temps {
				if t < 0 || t >= len(f.Temps) {
					return fmt.Errorf("block %s position %d references undeclared temp $t%d", b.Label, j, t)
				}
			}
		}
		for _, s := range b.Successors() {
			if s < 0 || int(s) >= len(f.Blocks) {
				return fmt.Errorf("block %s branches to undefined label %s", b.Label, s)
			}
		}
	}
	return nil
}

// Instr is a three-address instruction.
type Instr interface {
	// Uses returns the temporaries read, in operand order. A temporary
	// read twice appears twice.
	Uses() []int
	// Defs returns the temporaries written, in result order.
	Defs() []int
	String() string
}

// Terminator is an instruction that ends a block.
type Terminator interface {
	Instr
	Successors() []Label
}

// Const is an immediate value.
type Const struct {
	Type    types.Primitive
	Int     uint64
	Bool    bool
	Address string
}

func (c Const) String() string {
	switch c.Type {
	case types.Bool:
		return fmt.Sprintf("%t", c.Bool)
	case types.Address:
		return "@" + c.Address
	default:
		return fmt.Sprintf("%d", c.Int)
	}
}

// Assign copies or moves Src into Dst.
type Assign struct {
	Dst, Src int
}

// LoadConst loads an immediate into Dst.
type LoadConst struct {
	Dst   int
	Value Const
}

// BorrowLoc takes a reference to the local Src. The borrow counts as a use
// of Src so that it stays live up to its last borrow.
type BorrowLoc struct {
	Dst, Src int
	Mutable  bool
}

// BorrowField takes a reference to field Field of the struct behind Ref.
type BorrowField struct {
	Dst, Ref  int
	Struct    string
	Field     int
	FieldName string
	Mutable   bool
}

// ReadRef copies the value behind Ref into Dst.
type ReadRef struct {
	Dst, Ref int
}

// WriteRef stores Value through the mutable reference Ref.
type WriteRef struct {
	Ref, Value int
}

// Pack constructs a struct from field values in declaration order.
type Pack struct {
	Dst    int
	Struct string
	Fields []int
}

// BinaryOp applies a non short-circuit binary operator.
type BinaryOp struct {
	Op   ast.BinaryOp
	Dst  int
	X, Y int
}

// UnaryOp applies a unary operator.
type UnaryOp struct {
	Op  ast.UnaryOp
	Dst int
	X   int
}

// Call statically calls a function of the same module.
type Call struct {
	Dsts []int
	Func string
	Args []int
}

// Invoke calls the closure held in Closure with the explicit Args. The
// closure's captured values are supplied before Args at dispatch.
type Invoke struct {
	Dsts    []int
	Closure int
	Args    []int
}

// PackClosure builds a closure over Func binding Captured to its leading
// parameters.
type PackClosure struct {
	Dst      int
	Func     string
	Captured []int
	Type     *types.Function
}

// Branch jumps unconditionally.
type Branch struct {
	Target Label
}

// CondBranch jumps to Then when Cond holds and to Else otherwise.
type CondBranch struct {
	Cond       int
	Then, Else Label
}

// Return leaves the function with Values.
type Return struct {
	Values []int
}

// Abort stops execution with the u64 code held in Code.
type Abort struct {
	Code int
}

func (i *Assign) Uses() []int      { return []int{i.Src} }
func (i *LoadConst) Uses() []int   { return nil }
func (i *BorrowLoc) Uses() []int   { return []int{i.Src} }
func (i *BorrowField) Uses() []int { return []int{i.Ref} }
func (i *ReadRef) Uses() []int     { return []int{i.Ref} }
func (i *WriteRef) Uses() []int    { return []int{i.Value, i.Ref} }
func (i *Pack) Uses() []int        { return i.Fields }
func (i *BinaryOp) Uses() []int    { return []int{i.X, i.Y} }
func (i *UnaryOp) Uses() []int     { return []int{i.X} }
func (i *Call) Uses() []int        { return i.Args }
func (i *Invoke) Uses() []int      { return append(append([]int{}, i.Args...), i.Closure) }
func (i *PackClosure) Uses() []int { return i.Captured }
func (i *Branch) Uses() []int      { return nil }
func (i *CondBranch) Uses() []int  { return []int{i.Cond} }
func (i *Return) Uses() []int      { return i.Values }
func (i *Abort) Uses() []int       { return []int{i.Code} }

func (i *Assign) Defs() []int      { return []int{i.Dst} }
func (i *LoadConst) Defs() []int   { return []int{i.Dst} }
func (i *BorrowLoc) Defs() []int   { return []int{i.Dst} }
func (i *BorrowField) Defs() []int { return []int{i.Dst} }
func (i *ReadRef) Defs() []int     { return []int{i.Dst} }
func (i *WriteRef) Defs() []int    { return nil }
func (i *Pack) Defs() []int        { return []int{i.Dst} }
func (i *BinaryOp) Defs() []int    { return []int{i.Dst} }
func (i *UnaryOp) Defs() []int     { return []int{i.Dst} }
func (i *Call) Defs() []int        { return i.Dsts }
func (i *Invoke) Defs() []int      { return i.Dsts }
func (i *PackClosure) Defs() []int { return []int{i.Dst} }
func (i *Branch) Defs() []int      { return nil }
func (i *CondBranch) Defs() []int  { return nil }
func (i *Return) Defs() []int      { return nil }
func (i *Abort) Defs() []int       { return nil }

func (i *Branch) Successors() []Label     { return []Label{i.Target} }
func (i *CondBranch) Successors() []Label { return []Label{i.Then, i.Else} }
func (i *Return) Successors() []Label     { return nil }
func (i *Abort) Successors() []Label      { return nil }

// BorrowedLocal returns the temporary whose address the instruction takes,
// if it is a BorrowLoc.
func BorrowedLocal(i Instr) (int, bool) {
	if b, ok := i.(*BorrowLoc); ok {
		return b.Src, true
	}
	return 0, false
}

// RenameTemps rewrites every temporary operand of instr in place.
func RenameTemps(instr Instr, rename func(int) int) {
	each := func(ts []int) {
		for i, t := range ts {
			ts[i] = rename(t)
		}
	}
	switch i := instr.(type) {
	case *Assign:
		i.Dst, i.Src = rename(i.Dst), rename(i.Src)
	case *LoadConst:
		i.Dst = rename(i.Dst)
	case *BorrowLoc:
		i.Dst, i.Src = rename(i.Dst), rename(i.Src)
	case *BorrowField:
		i.Dst, i.Ref = rename(i.Dst), rename(i.Ref)
	case *ReadRef:
		i.Dst, i.Ref = rename(i.Dst), rename(i.Ref)
	case *WriteRef:
		i.Ref, i.Value = rename(i.Ref), rename(i.Value)
	case *Pack:
		i.Dst = rename(i.Dst)
		each(i.Fields)
	case *BinaryOp:
		i.Dst, i.X, i.Y = rename(i.Dst), rename(i.X), rename(i.Y)
	case *UnaryOp:
		i.Dst, i.X = rename(i.Dst), rename(i.X)
	case *Call:
		each(i.Dsts)
		each(i.Args)
	case *Invoke:
		each(i.Dsts)
		i.Closure = rename(i.Closure)
		each(i.Args)
	case *PackClosure:
		i.Dst = rename(i.Dst)
		each(i.Captured)
	case *CondBranch:
		i.Cond = rename(i.Cond)
	case *Return:
		each(i.Values)
	case *Abort:
		i.Code = rename(i.Code)
	}
}
