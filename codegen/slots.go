package codegen

import (
	"github.com/simon-1M/closurec/bytecode"
	"github.com/simon-1M/closurec/ir"
	"github.com/simon-1M/closurec/liveness"
)

// slotTable maps temporaries to local slots.
type slotTable struct {
	slots  []int           // temp -> slot, or -1
	locals []bytecode.Type // slot -> type
	owners []liveness.Set  // slot -> temps sharing it
	shared []bool          // slot -> may be reused
	tags   []bytecode.Type // temp -> type
	conf   []liveness.Set  // temp -> interfering temps
}

// allocateSlots assigns slots to every temporary of fn that is ever stored
// or read. Temporaries whose definitions are all dead get none.
func allocateSlots(fn *ir.Function, live *liveness.Result, tags []bytecode.Type) *slotTable {
	n := len(fn.Temps)
	st := &slotTable{
		slots: make([]int, n),
		tags:  tags,
		conf:  make([]liveness.Set, n),
	}
	for i := range st.slots {
		st.slots[i] = -1
	}
	borrowed := make([]bool, n)
	for _, b := range fn.Blocks {
		for i, instr := range b.Instrs {
			if src, ok := ir.BorrowedLocal(instr); ok {
				borrowed[src] = true
			}
			after := live.LiveAfter(b.Label, i)
			for _, d := range instr.Defs() {
				if !after.Has(d) {
					continue
				}
				for _, l := range after.Slice() {
					if l != d {
						st.conf[d].Add(l)
						st.conf[l].Add(d)
					}
				}
			}
		}
	}

	for _, p := range fn.Params() {
		st.newSlot(p.Index, false)
	}
	for _, b := range fn.Blocks {
		for i, instr := range b.Instrs {
			after := live.LiveAfter(b.Label, i)
			for _, d := range instr.Defs() {
				if after.Has(d) && st.slots[d] < 0 {
					st.assign(d, borrowed[d])
				}
			}
		}
	}
	// Reads of temporaries never stored on any path still need storage.
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			for _, u := range instr.Uses() {
				if st.slots[u] < 0 {
					st.assign(u, borrowed[u])
				}
			}
		}
	}
	return st
}

func (st *slotTable) newSlot(t int, shared bool) {
	s := len(st.locals)
	st.slots[t] = s
	st.locals = append(st.locals, st.tags[t])
	st.owners = append(st.owners, liveness.NewSet(t))
	st.shared = append(st.shared, shared)
}

// assign gives t the lowest compatible slot, or a fresh one.
func (st *slotTable) assign(t int, borrowed bool) {
	if !borrowed {
		for s := range st.locals {
			if st.shared[s] && st.locals[s].Equal(st.tags[t]) && !st.interferes(t, st.owners[s]) {
				st.slots[t] = s
				st.owners[s].Add(t)
				return
			}
		}
	}
	st.newSlot(t, !borrowed)
}

func (st *slotTable) interferes(t int, owners liveness.Set) bool {
	for _, o := range owners.Slice() {
		if st.conf[t].Has(o) {
			return true
		}
	}
	return false
}
