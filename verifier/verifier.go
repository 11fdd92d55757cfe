// Package verifier statically checks compiled modules before they may be
// executed.
//
// Each function is checked by abstract interpretation over its basic
// blocks. The abstract state tracks the type of every operand stack entry,
// whether each local slot holds a value, and for every live reference the
// places it may point into. A module is accepted only if every function
// passes; otherwise every rejected function contributes one *Error.
//
// Unreachable blocks are rejected. Stack entries never cross a block
// boundary.
package verifier

import (
	"fmt"

	"github.com/simon-1M/closurec/bytecode"
	"github.com/simon-1M/closurec/errors"
	"github.com/simon-1M/closurec/op"
	"github.com/simon-1M/closurec/types"
)

// Verify checks every function of m. A nil result means verification
// succeeded.
func Verify(m *bytecode.Module) error {
	var result error
	if err := checkStructs(m); err != nil {
		result = errors.Append(result, err)
	}
	for i := range m.Functions {
		if err := verifyFunction(m, i); err != nil {
			result = errors.Append(result, err)
		}
	}
	return result
}

func checkStructs(m *bytecode.Module) error {
	for _, s := range m.Structs {
		for _, f := range s.Fields {
			ty, err := m.TypeOf(f.Type)
			if err != nil {
				return &Error{Module: m.QualifiedName(), Offset: -1, Rule: InvalidIndex,
					Message: fmt.Sprintf("struct %s field %s: %v", s.Name, f.Name, err)}
			}
			if _, ok := types.IsReference(ty); ok {
				return &Error{Module: m.QualifiedName(), Offset: -1, Rule: EscapingReference,
					Message: fmt.Sprintf("struct %s field %s stores a reference", s.Name, f.Name)}
			}
		}
	}
	return nil
}

// block is a basic block of a function: instructions [start, end).
type block struct {
	start, end int
	succs      []int
}

type verifier struct {
	m       *bytecode.Module
	fn      *bytecode.Function
	params  []types.Type
	results []types.Type
	locals  []types.Type
	code    []bytecode.Instruction
	blocks  []block
	// blockAt maps a leader offset to its block index.
	blockAt map[int]int
}

func verifyFunction(m *bytecode.Module, i int) error {
	fn := &m.Functions[i]
	v := &verifier{m: m, fn: fn}
	if err := v.resolve(i); err != nil {
		return err
	}
	if err := v.controlFlow(); err != nil {
		return err
	}
	return v.run()
}

func (v *verifier) errorf(pc int, rule Rule, format string, args ...any) *Error {
	return &Error{
		Module:   v.m.QualifiedName(),
		Function: v.fn.Name,
		Offset:   pc,
		Rule:     rule,
		Message:  fmt.Sprintf(format, args...),
	}
}

func (v *verifier) resolve(i int) error {
	sig, err := v.m.FunctionSignature(i)
	if err != nil {
		return v.errorf(-1, InvalidIndex, "%v", err)
	}
	if v.params, err = v.m.TypesOf(sig.Params); err != nil {
		return v.errorf(-1, InvalidIndex, "parameters: %v", err)
	}
	if v.results, err = v.m.TypesOf(sig.Results); err != nil {
		return v.errorf(-1, InvalidIndex, "results: %v", err)
	}
	if v.locals, err = v.m.TypesOf(v.fn.Locals); err != nil {
		return v.errorf(-1, InvalidIndex, "locals: %v", err)
	}
	if len(v.locals) < len(v.params) {
		return v.errorf(-1, TypeMismatch, "%d locals cannot hold %d parameters", len(v.locals), len(v.params))
	}
	for p, ty := range v.params {
		if !types.Equal(ty, v.locals[p]) {
			return v.errorf(-1, TypeMismatch, "parameter %d has type %s but its slot holds %s", p, ty, v.locals[p])
		}
	}
	if v.code, err = bytecode.DecodeCode(v.fn.Code); err != nil {
		return v.errorf(-1, InvalidIndex, "%v", err)
	}
	return nil
}

// controlFlow validates branch targets, splits the code into blocks and
// rejects blocks the entry cannot reach.
func (v *verifier) controlFlow() error {
	n := len(v.code)
	if n == 0 {
		return v.errorf(0, InvalidBranch, "empty function body")
	}
	for pc, instr := range v.code {
		if op.GetInfo(instr.Op).IsBranch() && instr.Operands[0] >= uint64(n) {
			return v.errorf(pc, InvalidBranch, "branch target %d outside code of length %d", instr.Operands[0], n)
		}
	}
	last := v.code[n-1].Op
	if last != op.Ret && last != op.Abort && last != op.Branch {
		return v.errorf(n-1, InvalidBranch, "control falls off the end of the function")
	}

	leaders := bytecode.Leaders(v.code)
	v.blockAt = make(map[int]int, len(leaders))
	for b, pc := range leaders {
		v.blockAt[pc] = b
	}
	v.blocks = make([]block, len(leaders))
	for b, pc := range leaders {
		end := n
		if b+1 < len(leaders) {
			end = leaders[b+1]
		}
		blk := block{start: pc, end: end}
		instr := v.code[end-1]
		switch instr.Op {
		case op.Ret, op.Abort:
		case op.Branch:
			blk.succs = []int{v.blockAt[int(instr.Operands[0])]}
		case op.BrTrue, op.BrFalse:
			blk.succs = []int{b + 1, v.blockAt[int(instr.Operands[0])]}
		default:
			blk.succs = []int{b + 1}
		}
		v.blocks[b] = blk
	}

	reached := make([]bool, len(v.blocks))
	stack := []int{0}
	reached[0] = true
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range v.blocks[b].succs {
			if !reached[s] {
				reached[s] = true
				stack = append(stack, s)
			}
		}
	}
	for b, ok := range reached {
		if !ok {
			return v.errorf(v.blocks[b].start, UnreachableCode, "block B%d is unreachable", b)
		}
	}
	return nil
}

// run interprets blocks until the entry states reach a fixed point, always
// taking the lowest pending block first.
func (v *verifier) run() error {
	entry := make([]*state, len(v.blocks))
	entry[0] = v.initialState()
	pending := make([]bool, len(v.blocks))
	pending[0] = true
	for {
		b := -1
		for i, p := range pending {
			if p {
				b = i
				break
			}
		}
		if b < 0 {
			return nil
		}
		pending[b] = false
		st := entry[b].clone()
		if err := v.block(b, st); err != nil {
			return err
		}
		for _, s := range v.blocks[b].succs {
			if entry[s] == nil {
				entry[s] = st.clone()
				pending[s] = true
			} else if entry[s].join(st) {
				pending[s] = true
			}
		}
	}
}

func (v *verifier) initialState() *state {
	st := &state{locals: make([]local, len(v.locals))}
	for p, ty := range v.params {
		st.locals[p].avail = available
		if ref, ok := types.IsReference(ty); ok {
			st.locals[p].ref = paramBorrow(p, ref)
		}
	}
	return st
}

func (v *verifier) block(b int, st *state) error {
	blk := v.blocks[b]
	for pc := blk.start; pc < blk.end; pc++ {
		if err := v.instr(pc, v.code[pc], st); err != nil {
			return err
		}
	}
	if len(st.stack) > 0 && len(blk.succs) > 0 {
		return v.errorf(blk.end-1, StackBalance, "%d values left on the stack at the end of block B%d", len(st.stack), b)
	}
	return nil
}

func (v *verifier) abilities(t types.Type) types.AbilitySet {
	return types.AbilitiesOf(t, v.m.StructAbilities)
}
