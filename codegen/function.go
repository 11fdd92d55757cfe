package codegen

import (
	"math"

	"github.com/simon-1M/closurec/ast"
	"github.com/simon-1M/closurec/bytecode"
	"github.com/simon-1M/closurec/errors"
	"github.com/simon-1M/closurec/ir"
	"github.com/simon-1M/closurec/liveness"
	"github.com/simon-1M/closurec/op"
	"github.com/simon-1M/closurec/types"
)

// MaxLocals is the maximum number of local slots of one function.
const MaxLocals = math.MaxUint16

var binaryOps = map[ast.BinaryOp]op.Code{
	ast.Add:    op.Add,
	ast.Sub:    op.Sub,
	ast.Mul:    op.Mul,
	ast.Div:    op.Div,
	ast.Mod:    op.Mod,
	ast.BitAnd: op.BitAnd,
	ast.BitOr:  op.BitOr,
	ast.Xor:    op.Xor,
	ast.Lt:     op.Lt,
	ast.Le:     op.Le,
	ast.Gt:     op.Gt,
	ast.Ge:     op.Ge,
	ast.Eq:     op.Eq,
	ast.Neq:    op.Neq,
}

type fixup struct {
	at     int
	target ir.Label
}

// function generates the code of one lowered function.
type function struct {
	g          *generator
	fn         *ir.Function
	live       *liveness.Result
	st         *slotTable
	roots      []liveness.Set // reference temp -> locals it may point into
	code       []bytecode.Instruction
	blockStart []int
	fixups     []fixup
	failure    error
}

func (g *generator) function(fn *ir.Function, live *liveness.Result) ([]bytecode.Instruction, []bytecode.Type, error) {
	tags := make([]bytecode.Type, len(fn.Temps))
	for i, t := range fn.Temps {
		tag, err := g.out.TypeTag(t.Type)
		if err != nil {
			return nil, nil, errors.Errorf(errors.E2004, g.module.QualifiedName(), fn.Name,
				"temporary %s: %v", ir.TempName(i), err)
		}
		tags[i] = tag
	}
	f := &function{
		g:          g,
		fn:         fn,
		live:       live,
		st:         allocateSlots(fn, live, tags),
		roots:      referenceRoots(fn),
		blockStart: make([]int, len(fn.Blocks)),
	}
	if len(f.st.locals) > MaxLocals {
		return nil, nil, errors.Errorf(errors.E2009, g.module.QualifiedName(), fn.Name,
			"function needs %d locals (limit %d)", len(f.st.locals), MaxLocals)
	}
	f.releaseUnusedParams()
	for _, b := range fn.Blocks {
		f.blockStart[b.Label] = len(f.code)
		for i, instr := range b.Instrs {
			f.instr(b.Label, i, instr)
		}
	}
	for _, fx := range f.fixups {
		f.code[fx.at].Operands[0] = uint64(f.blockStart[fx.target])
	}
	if f.failure != nil {
		return nil, nil, f.failure
	}
	return f.code, f.st.locals, nil
}

func (f *function) fail(format string, args ...any) {
	if f.failure == nil {
		f.failure = errors.Internalf(errors.E2001, f.g.module.QualifiedName(), f.fn.Name, format, args...)
	}
}

func (f *function) emit(code op.Code, operands ...int) int {
	instr := bytecode.Instruction{Op: code}
	if len(operands) > 0 {
		instr.Operands = make([]uint64, len(operands))
		for i, v := range operands {
			instr.Operands[i] = uint64(v)
		}
	}
	f.code = append(f.code, instr)
	return len(f.code) - 1
}

// branch emits a jump to l, patched once every block has been placed.
func (f *function) branch(code op.Code, l ir.Label) {
	at := f.emit(code, bytecode.Placeholder)
	f.fixups = append(f.fixups, fixup{at: at, target: l})
}

func (f *function) slot(t int) int {
	s := f.st.slots[t]
	if s < 0 {
		f.fail("temporary $t%d has no local slot", t)
		return 0
	}
	return s
}

// push loads the operands of instruction i of block l, moving each one that
// is not needed after the instruction. A local that a live reference or
// another operand points into is copied instead, since moving it would
// invalidate the borrow.
func (f *function) push(l ir.Label, i int, ts []int) {
	after := f.live.LiveAfter(l, i)
	defs := f.fn.Block(l).Instrs[i].Defs()
	for j, t := range ts {
		move := (!after.Has(t) || contains(defs, t)) && !contains(ts[j+1:], t)
		if move && f.borrowed(t, ts, after) {
			if !types.AbilitiesOf(f.fn.Temps[t].Type, f.g.out.StructAbilities).Has(types.Copy) {
				f.fail("move of $t%d while a reference into it is live", t)
			}
			move = false
		}
		if move {
			f.emit(op.MoveLoc, f.slot(t))
		} else {
			f.emit(op.CopyLoc, f.slot(t))
		}
	}
}

// borrowed reports whether a reference among the operands ts, or live in
// after, may point into t.
func (f *function) borrowed(t int, ts []int, after liveness.Set) bool {
	for _, r := range ts {
		if r != t && f.roots[r].Has(t) {
			return true
		}
	}
	for _, r := range after.Slice() {
		if f.roots[r].Has(t) {
			return true
		}
	}
	return false
}

// referenceRoots maps every reference temporary of fn to the set of
// temporaries it may point into. References flow through copies, field
// borrows and call results; the result is a fixed point over all blocks.
func referenceRoots(fn *ir.Function) []liveness.Set {
	roots := make([]liveness.Set, len(fn.Temps))
	for changed := true; changed; {
		changed = false
		for _, b := range fn.Blocks {
			for _, instr := range b.Instrs {
				var from liveness.Set
				switch x := instr.(type) {
				case *ir.BorrowLoc:
					from = liveness.NewSet(x.Src)
				case *ir.BorrowField:
					from = roots[x.Ref]
				case *ir.Assign:
					from = roots[x.Src]
				case *ir.Call, *ir.Invoke:
					for _, u := range instr.Uses() {
						from.UnionWith(roots[u])
					}
				default:
					continue
				}
				for _, d := range instr.Defs() {
					if _, ok := types.IsReference(fn.Temps[d].Type); !ok {
						continue
					}
					n := roots[d].Len()
					roots[d].UnionWith(from)
					changed = changed || roots[d].Len() != n
				}
			}
		}
	}
	return roots
}

// store saves the value on top of the stack into d, or drops it when
// nothing reads d afterwards.
func (f *function) store(l ir.Label, i int, d int) {
	if !f.live.LiveAfter(l, i).Has(d) {
		f.emit(op.Pop)
		return
	}
	f.emit(op.StLoc, f.slot(d))
}

func (f *function) storeAll(l ir.Label, i int, ds []int) {
	for k := len(ds) - 1; k >= 0; k-- {
		f.store(l, i, ds[k])
	}
}

func (f *function) instr(l ir.Label, i int, instr ir.Instr) {
	switch x := instr.(type) {
	case *ir.Assign:
		f.push(l, i, []int{x.Src})
		f.store(l, i, x.Dst)
	case *ir.LoadConst:
		f.loadConst(x.Value)
		f.store(l, i, x.Dst)
	case *ir.BorrowLoc:
		code := op.ImmBorrowLoc
		if x.Mutable {
			code = op.MutBorrowLoc
		}
		f.emit(code, f.slot(x.Src))
		f.store(l, i, x.Dst)
	case *ir.BorrowField:
		f.push(l, i, x.Uses())
		code := op.ImmBorrowField
		if x.Mutable {
			code = op.MutBorrowField
		}
		f.emit(code, f.structIndex(x.Struct), x.Field)
		f.store(l, i, x.Dst)
	case *ir.ReadRef:
		f.push(l, i, x.Uses())
		f.emit(op.ReadRef)
		f.store(l, i, x.Dst)
	case *ir.WriteRef:
		f.push(l, i, x.Uses())
		f.emit(op.WriteRef)
	case *ir.Pack:
		f.push(l, i, x.Fields)
		f.emit(op.Pack, f.structIndex(x.Struct))
		f.store(l, i, x.Dst)
	case *ir.BinaryOp:
		code, ok := binaryOps[x.Op]
		if !ok {
			f.fail("operator %s has no instruction", x.Op)
			return
		}
		f.push(l, i, x.Uses())
		f.emit(code)
		f.store(l, i, x.Dst)
	case *ir.UnaryOp:
		f.push(l, i, x.Uses())
		f.emit(op.Not)
		f.store(l, i, x.Dst)
	case *ir.Call:
		f.push(l, i, x.Args)
		f.emit(op.Call, f.functionIndex(x.Func))
		f.storeAll(l, i, x.Dsts)
	case *ir.Invoke:
		ty, ok := f.fn.Temps[x.Closure].Type.(*types.Function)
		if !ok {
			f.fail("invoke of non-closure $t%d", x.Closure)
			return
		}
		f.push(l, i, x.Uses())
		f.emit(op.CallClosure, f.signature(ty))
		f.storeAll(l, i, x.Dsts)
	case *ir.PackClosure:
		f.push(l, i, x.Captured)
		f.emit(op.PackClosure, f.functionIndex(x.Func), len(x.Captured), f.signature(x.Type))
		f.store(l, i, x.Dst)
	case *ir.Branch:
		if x.Target != l+1 {
			f.branch(op.Branch, x.Target)
		}
	case *ir.CondBranch:
		f.condBranch(l, i, x)
	case *ir.Return:
		f.push(l, i, x.Values)
		f.emit(op.Ret)
	case *ir.Abort:
		f.push(l, i, x.Uses())
		f.emit(op.Abort)
	default:
		f.fail("unsupported instruction %s", instr)
	}
}

// condBranch falls through to the then block when it is next in layout.
// References that die on an edge are released on that edge; for the else
// edge this needs a trampoline placed after the then path.
func (f *function) condBranch(l ir.Label, i int, x *ir.CondBranch) {
	thenRel := f.releases(l, x.Then)
	elseRel := f.releases(l, x.Else)
	f.push(l, i, x.Uses())
	trampoline := -1
	if len(elseRel) == 0 {
		f.branch(op.BrFalse, x.Else)
	} else {
		trampoline = f.emit(op.BrFalse, bytecode.Placeholder)
	}
	f.release(thenRel)
	if x.Then != l+1 || trampoline >= 0 {
		f.branch(op.Branch, x.Then)
	}
	if trampoline < 0 {
		return
	}
	f.code[trampoline].Operands[0] = uint64(len(f.code))
	f.release(elseRel)
	if x.Else != l+1 {
		f.branch(op.Branch, x.Else)
	}
}

// releases returns the references held at the end of from that the edge to
// to no longer needs.
func (f *function) releases(from, to ir.Label) []int {
	var out []int
	in := f.live.LiveIn(to)
	for _, t := range f.live.LiveOut(from).Slice() {
		if in.Has(t) {
			continue
		}
		if _, ok := types.IsReference(f.fn.Temps[t].Type); ok {
			out = append(out, t)
		}
	}
	return out
}

func (f *function) release(ts []int) {
	for _, t := range ts {
		f.emit(op.MoveLoc, f.slot(t))
		f.emit(op.Pop)
	}
}

// releaseUnusedParams drops reference parameters nothing reads.
func (f *function) releaseUnusedParams() {
	if len(f.fn.Blocks) == 0 {
		return
	}
	in := f.live.LiveIn(0)
	var unused []int
	for _, p := range f.fn.Params() {
		if _, ok := types.IsReference(p.Type); ok && !in.Has(p.Index) {
			unused = append(unused, p.Index)
		}
	}
	f.release(unused)
}

func (f *function) loadConst(c ir.Const) {
	switch c.Type {
	case types.U8:
		f.emit(op.LdU8, int(c.Int))
	case types.U64:
		f.code = append(f.code, bytecode.Instruction{Op: op.LdU64, Operands: []uint64{c.Int}})
	case types.Bool:
		if c.Bool {
			f.emit(op.LdTrue)
		} else {
			f.emit(op.LdFalse)
		}
	case types.Address:
		idx := f.g.out.AddConstant(bytecode.Constant{Type: bytecode.Type{Kind: bytecode.KindAddress}, Value: c.Address})
		f.emit(op.LdConst, idx)
	default:
		f.fail("constant of type %s", c.Type)
	}
}

func (f *function) structIndex(name string) int {
	i := f.g.out.StructIndex(name)
	if i < 0 {
		f.fail("undefined struct %q", name)
		return 0
	}
	return i
}

func (f *function) functionIndex(name string) int {
	i, ok := f.g.funcs[name]
	if !ok {
		f.fail("undefined function %q", name)
		return 0
	}
	return i
}

func (f *function) signature(ty *types.Function) int {
	params, err := f.g.out.TypeTags(ty.Params)
	if err != nil {
		f.fail("closure type %s: %v", ty, err)
		return 0
	}
	results, err := f.g.out.TypeTags(ty.Results)
	if err != nil {
		f.fail("closure type %s: %v", ty, err)
		return 0
	}
	return f.g.out.AddSignature(bytecode.Signature{Params: params, Results: results, Abilities: ty.Abilities})
}

func contains(ts []int, t int) bool {
	for _, x := range ts {
		if x == t {
			return true
		}
	}
	return false
}
