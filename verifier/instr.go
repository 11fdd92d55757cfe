package verifier

import (
	"github.com/simon-1M/closurec/bytecode"
	"github.com/simon-1M/closurec/op"
	"github.com/simon-1M/closurec/types"
)

func (v *verifier) instr(pc int, instr bytecode.Instruction, st *state) error {
	pop := func() (value, error) {
		val, ok := st.pop()
		if !ok {
			return value{}, v.errorf(pc, StackBalance, "%s on an empty stack", instr.Op)
		}
		return val, nil
	}

	switch instr.Op {
	case op.CopyLoc, op.MoveLoc, op.StLoc, op.ImmBorrowLoc, op.MutBorrowLoc:
		return v.localInstr(pc, instr, st, pop)

	case op.ImmBorrowField, op.MutBorrowField:
		s, f := instr.Operands[0], instr.Operands[1]
		if s >= uint64(len(v.m.Structs)) || f >= uint64(len(v.m.Structs[s].Fields)) {
			return v.errorf(pc, InvalidIndex, "field %d of struct %d does not exist", f, s)
		}
		def := v.m.Structs[s]
		ft, err := v.m.TypeOf(def.Fields[f].Type)
		if err != nil {
			return v.errorf(pc, InvalidIndex, "%v", err)
		}
		r, err := pop()
		if err != nil {
			return err
		}
		ref, ok := types.IsReference(r.ty)
		if !ok || !types.Equal(ref.Elem, types.NewStruct(def.Name)) {
			return v.errorf(pc, TypeMismatch, "%s expects a reference to %s, found %s", instr.Op, def.Name, r.ty)
		}
		if r.ref == nil {
			r.ref = &borrow{mutable: ref.Mutable}
		}
		mutable := instr.Op == op.MutBorrowField
		if mutable && !ref.Mutable {
			return v.errorf(pc, TypeMismatch, "%s through immutable %s", instr.Op, r.ty)
		}
		if c := st.conflicting(r.ref, !mutable); c != nil {
			return v.errorf(pc, BorrowConflict, "borrow of %s.%s conflicts with a live reference", def.Name, def.Fields[f].Name)
		}
		places := make([]place, len(r.ref.places))
		for i, p := range r.ref.places {
			places[i] = p.field(s, f)
		}
		st.push(&types.Reference{Mutable: mutable, Elem: ft}, derive(pc, mutable, places, r.ref))

	case op.ReadRef:
		r, err := pop()
		if err != nil {
			return err
		}
		ref, ok := types.IsReference(r.ty)
		if !ok {
			return v.errorf(pc, TypeMismatch, "ReadRef of non-reference %s", r.ty)
		}
		if !v.abilities(ref.Elem).Has(types.Copy) {
			return v.errorf(pc, TypeMismatch, "ReadRef of %s, which cannot be copied", ref.Elem)
		}
		if c := st.conflicting(r.ref, true); c != nil {
			return v.errorf(pc, BorrowConflict, "read through %s while a mutable borrow is live", r.ty)
		}
		st.push(ref.Elem, nil)

	case op.WriteRef:
		r, err := pop()
		if err != nil {
			return err
		}
		val, err := pop()
		if err != nil {
			return err
		}
		ref, ok := types.IsReference(r.ty)
		if !ok || !ref.Mutable {
			return v.errorf(pc, TypeMismatch, "WriteRef through %s", r.ty)
		}
		if !types.Assignable(val.ty, ref.Elem) {
			return v.errorf(pc, TypeMismatch, "WriteRef of %s into %s", val.ty, r.ty)
		}
		if !v.abilities(ref.Elem).Has(types.Drop) {
			return v.errorf(pc, UnusedResource, "WriteRef would destroy a %s", ref.Elem)
		}
		if c := st.conflicting(r.ref, false); c != nil {
			return v.errorf(pc, BorrowConflict, "write through %s while another borrow is live", r.ty)
		}

	case op.Pop:
		val, err := pop()
		if err != nil {
			return err
		}
		if !v.abilities(val.ty).Has(types.Drop) {
			return v.errorf(pc, UnusedResource, "Pop of %s, which cannot be dropped", val.ty)
		}

	case op.LdU8:
		if instr.Operands[0] > 0xff {
			return v.errorf(pc, TypeMismatch, "LdU8 immediate %d out of range", instr.Operands[0])
		}
		st.push(types.U8, nil)
	case op.LdU64:
		st.push(types.U64, nil)
	case op.LdTrue, op.LdFalse:
		st.push(types.Bool, nil)
	case op.LdConst:
		i := instr.Operands[0]
		if i >= uint64(len(v.m.Constants)) {
			return v.errorf(pc, InvalidIndex, "constant %d does not exist", i)
		}
		ty, err := v.m.TypeOf(v.m.Constants[i].Type)
		if err != nil {
			return v.errorf(pc, InvalidIndex, "%v", err)
		}
		st.push(ty, nil)

	case op.Add, op.Sub, op.Mul, op.Div, op.Mod, op.BitAnd, op.BitOr, op.Xor,
		op.Lt, op.Le, op.Gt, op.Ge:
		y, err := pop()
		if err != nil {
			return err
		}
		x, err := pop()
		if err != nil {
			return err
		}
		if !types.IsInteger(x.ty) || !types.Equal(x.ty, y.ty) {
			return v.errorf(pc, TypeMismatch, "%s of %s and %s", instr.Op, x.ty, y.ty)
		}
		switch instr.Op {
		case op.Lt, op.Le, op.Gt, op.Ge:
			st.push(types.Bool, nil)
		default:
			st.push(x.ty, nil)
		}

	case op.Eq, op.Neq:
		y, err := pop()
		if err != nil {
			return err
		}
		x, err := pop()
		if err != nil {
			return err
		}
		if !types.Equal(x.ty, y.ty) {
			return v.errorf(pc, TypeMismatch, "%s of %s and %s", instr.Op, x.ty, y.ty)
		}
		if !v.abilities(x.ty).Has(types.Drop) {
			return v.errorf(pc, UnusedResource, "%s would destroy a %s", instr.Op, x.ty)
		}
		st.push(types.Bool, nil)

	case op.Not:
		x, err := pop()
		if err != nil {
			return err
		}
		if !types.Equal(x.ty, types.Bool) {
			return v.errorf(pc, TypeMismatch, "Not of %s", x.ty)
		}
		st.push(types.Bool, nil)

	case op.Pack:
		s := instr.Operands[0]
		if s >= uint64(len(v.m.Structs)) {
			return v.errorf(pc, InvalidIndex, "struct %d does not exist", s)
		}
		def := v.m.Structs[s]
		for f := len(def.Fields) - 1; f >= 0; f-- {
			val, err := pop()
			if err != nil {
				return err
			}
			ft, err := v.m.TypeOf(def.Fields[f].Type)
			if err != nil {
				return v.errorf(pc, InvalidIndex, "%v", err)
			}
			if !types.Assignable(val.ty, ft) {
				return v.errorf(pc, TypeMismatch, "field %s.%s expects %s, found %s", def.Name, def.Fields[f].Name, ft, val.ty)
			}
		}
		st.push(types.NewStruct(def.Name), nil)

	case op.Call:
		f := instr.Operands[0]
		if f >= uint64(len(v.m.Functions)) {
			return v.errorf(pc, InvalidIndex, "function %d does not exist", f)
		}
		sig, err := v.m.FunctionSignature(int(f))
		if err != nil {
			return v.errorf(pc, InvalidIndex, "%v", err)
		}
		params, err := v.m.TypesOf(sig.Params)
		if err != nil {
			return v.errorf(pc, InvalidIndex, "%v", err)
		}
		results, err := v.m.TypesOf(sig.Results)
		if err != nil {
			return v.errorf(pc, InvalidIndex, "%v", err)
		}
		return v.call(pc, st, pop, params, results, TypeMismatch, "call of "+v.m.Functions[f].Name)

	case op.PackClosure:
		return v.packClosure(pc, instr, st, pop)

	case op.CallClosure:
		ct, err := v.m.ClosureType(int(instr.Operands[0]))
		if err != nil {
			return v.errorf(pc, InvalidIndex, "%v", err)
		}
		c, err := pop()
		if err != nil {
			return err
		}
		if !types.Assignable(c.ty, ct) {
			return v.errorf(pc, InvokeSignature, "closure of type %s invoked as %s", c.ty, ct)
		}
		return v.call(pc, st, pop, ct.Params, ct.Results, InvokeSignature, "invoke of "+ct.String())

	case op.BrTrue, op.BrFalse:
		c, err := pop()
		if err != nil {
			return err
		}
		if !types.Equal(c.ty, types.Bool) {
			return v.errorf(pc, TypeMismatch, "%s on %s", instr.Op, c.ty)
		}
	case op.Branch:

	case op.Ret:
		return v.ret(pc, st)

	case op.Abort:
		c, err := pop()
		if err != nil {
			return err
		}
		if !types.Equal(c.ty, types.U64) {
			return v.errorf(pc, TypeMismatch, "Abort code of type %s", c.ty)
		}

	default:
		return v.errorf(pc, InvalidIndex, "invalid opcode %d", instr.Op)
	}
	return nil
}

func (v *verifier) localInstr(pc int, instr bytecode.Instruction, st *state, pop func() (value, error)) error {
	slot := instr.Operands[0]
	if slot >= uint64(len(v.locals)) {
		return v.errorf(pc, InvalidIndex, "local %d does not exist", slot)
	}
	l := int(slot)
	ty := v.locals[l]
	_, isRef := types.IsReference(ty)
	loc := &st.locals[l]

	if instr.Op == op.StLoc {
		val, err := pop()
		if err != nil {
			return err
		}
		if !types.Assignable(val.ty, ty) {
			return v.errorf(pc, TypeMismatch, "StLoc of %s into local %d of type %s", val.ty, l, ty)
		}
		if !isRef {
			if st.borrowedLocal(l, false) != nil {
				return v.errorf(pc, BorrowConflict, "assignment to local %d while it is borrowed", l)
			}
		}
		if loc.avail != unavailable && !v.abilities(ty).Has(types.Drop) {
			return v.errorf(pc, UnusedResource, "StLoc overwrites local %d holding a %s", l, ty)
		}
		loc.avail = available
		loc.ref = val.ref
		return nil
	}

	if loc.avail != available {
		return v.errorf(pc, UseAfterMove, "local %d may have been moved", l)
	}
	switch instr.Op {
	case op.CopyLoc:
		if !v.abilities(ty).Has(types.Copy) {
			return v.errorf(pc, TypeMismatch, "CopyLoc of local %d of type %s, which cannot be copied", l, ty)
		}
		if !isRef && st.borrowedLocal(l, true) != nil {
			return v.errorf(pc, BorrowConflict, "copy of local %d while it is mutably borrowed", l)
		}
		st.push(ty, loc.ref)
	case op.MoveLoc:
		if !isRef && st.borrowedLocal(l, false) != nil {
			return v.errorf(pc, BorrowConflict, "move of local %d while it is borrowed", l)
		}
		st.push(ty, loc.ref)
		loc.avail = unavailable
		loc.ref = nil
	case op.ImmBorrowLoc, op.MutBorrowLoc:
		if isRef {
			return v.errorf(pc, TypeMismatch, "%s of local %d, which already holds a reference", instr.Op, l)
		}
		mutable := instr.Op == op.MutBorrowLoc
		if st.borrowedLocal(l, !mutable) != nil {
			return v.errorf(pc, BorrowConflict, "%s of local %d conflicts with a live borrow", instr.Op, l)
		}
		st.push(&types.Reference{Mutable: mutable, Elem: ty}, localBorrow(pc, l, mutable))
	}
	return nil
}

// call checks the arguments of a call or invoke and pushes its results.
// Reference results may point wherever the reference arguments did.
func (v *verifier) call(pc int, st *state, pop func() (value, error), params, results []types.Type, rule Rule, what string) error {
	args := make([]value, len(params))
	for i := len(params) - 1; i >= 0; i-- {
		a, err := pop()
		if err != nil {
			return err
		}
		if !types.Assignable(a.ty, params[i]) {
			return v.errorf(pc, rule, "%s: argument %d has type %s, want %s", what, i, a.ty, params[i])
		}
		args[i] = a
	}
	var refs []*borrow
	for i, a := range args {
		if a.ref == nil {
			continue
		}
		refs = append(refs, a.ref)
		if !a.ref.mutable {
			continue
		}
		if c := st.conflicting(a.ref, false); c != nil {
			return v.errorf(pc, BorrowConflict, "%s: mutable argument %d conflicts with a live borrow", what, i)
		}
		for j, b := range args {
			if j != i && b.ref != nil && b.ref.overlaps(a.ref) {
				return v.errorf(pc, BorrowConflict, "%s: arguments %d and %d alias", what, i, j)
			}
		}
	}
	for _, r := range results {
		ref, ok := types.IsReference(r)
		if !ok {
			st.push(r, nil)
			continue
		}
		if len(refs) == 0 {
			return v.errorf(pc, EscapingReference, "%s returns %s without reference arguments", what, r)
		}
		st.push(r, derive(pc, ref.Mutable, unionPlaces(refs...), refs...))
	}
	return nil
}

func (v *verifier) packClosure(pc int, instr bytecode.Instruction, st *state, pop func() (value, error)) error {
	f, n, s := instr.Operands[0], instr.Operands[1], instr.Operands[2]
	if f >= uint64(len(v.m.Functions)) {
		return v.errorf(pc, InvalidIndex, "function %d does not exist", f)
	}
	ct, err := v.m.ClosureType(int(s))
	if err != nil {
		return v.errorf(pc, InvalidIndex, "%v", err)
	}
	target := v.m.Functions[f].Name
	sig, err := v.m.FunctionSignature(int(f))
	if err != nil {
		return v.errorf(pc, InvalidIndex, "%v", err)
	}
	params, err := v.m.TypesOf(sig.Params)
	if err != nil {
		return v.errorf(pc, InvalidIndex, "%v", err)
	}
	results, err := v.m.TypesOf(sig.Results)
	if err != nil {
		return v.errorf(pc, InvalidIndex, "%v", err)
	}
	if n > uint64(len(params)) {
		return v.errorf(pc, ClosureSignature, "%s takes %d parameters but %d are captured", target, len(params), n)
	}
	if !types.EqualList(params[n:], ct.Params) || !types.EqualList(results, ct.Results) {
		return v.errorf(pc, ClosureSignature, "%s with %d captures does not have type %s", target, n, ct)
	}
	for i := int(n) - 1; i >= 0; i-- {
		c, err := pop()
		if err != nil {
			return err
		}
		if !types.Assignable(c.ty, params[i]) {
			return v.errorf(pc, ClosureSignature, "capture %d of %s has type %s, want %s", i, target, c.ty, params[i])
		}
		if c.ref != nil {
			return v.errorf(pc, EscapingReference, "closure over %s captures a reference", target)
		}
		if !ct.Abilities.IsSubsetOf(v.abilities(c.ty)) {
			return v.errorf(pc, ClosureSignature, "closure declared %s captures %s, which lacks them", ct.Abilities, c.ty)
		}
	}
	st.push(ct, nil)
	return nil
}

func (v *verifier) ret(pc int, st *state) error {
	if len(st.stack) != len(v.results) {
		return v.errorf(pc, StackBalance, "Ret with %d values, function returns %d", len(st.stack), len(v.results))
	}
	for i, val := range st.stack {
		if !types.Assignable(val.ty, v.results[i]) {
			return v.errorf(pc, TypeMismatch, "result %d has type %s, want %s", i, val.ty, v.results[i])
		}
		if val.ref != nil {
			if p, ok := val.ref.local(); ok {
				return v.errorf(pc, EscapingReference, "result %d borrows local %d", i, p.root)
			}
		}
	}
	for l, loc := range st.locals {
		if loc.avail != unavailable && !v.abilities(v.locals[l]).Has(types.Drop) {
			return v.errorf(pc, UnusedResource, "local %d of type %s still holds a value at return", l, v.locals[l])
		}
	}
	st.stack = nil
	return nil
}
