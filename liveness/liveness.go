// Package liveness computes which temporaries are live at every instruction
// boundary of a lowered function.
//
// The analysis is the classic backward data-flow problem
//
//	out(b) = union of in(s) for every successor s of b
//	in(b)  = uses(b) + (out(b) - defs(b))
//
// solved with a work list over block labels until nothing changes. Blocks
// ending in return or abort have an empty out set. The lattice is finite and
// the transfer function monotone, so the iteration terminates on any graph,
// including ones with loops.
package liveness

import (
	"github.com/simon-1M/closurec/ir"
)

// Result holds the live sets of one function.
type Result struct {
	fn    *ir.Function
	in    []Set
	out   []Set
	after [][]Set
}

// Analyze computes liveness for fn.
func Analyze(fn *ir.Function) *Result {
	n := len(fn.Blocks)
	r := &Result{
		fn:    fn,
		in:    make([]Set, n),
		out:   make([]Set, n),
		after: make([][]Set, n),
	}
	preds := fn.Predecessors()

	// Seed the work list in reverse layout order so most blocks are
	// visited after their successors.
	work := make([]ir.Label, 0, n)
	queued := make([]bool, n)
	for i := 0; i < n; i++ {
		work = append(work, ir.Label(i))
		queued[i] = true
	}
	for len(work) > 0 {
		l := work[len(work)-1]
		work = work[:len(work)-1]
		queued[l] = false

		var out Set
		for _, s := range fn.Block(l).Successors() {
			out.UnionWith(r.in[s])
		}
		r.out[l] = out
		in, after := transfer(fn.Block(l), out)
		r.after[l] = after
		changed := !in.Equal(r.in[l])
		r.in[l] = in
		if !changed {
			continue
		}
		for _, p := range preds[l] {
			if !queued[p] {
				queued[p] = true
				work = append(work, p)
			}
		}
	}
	return r
}

// transfer walks b backwards from its live-out set, returning the live-in
// set and the set live after each instruction.
func transfer(b *ir.Block, out Set) (Set, []Set) {
	after := make([]Set, len(b.Instrs))
	live := out.Clone()
	for i := len(b.Instrs) - 1; i >= 0; i-- {
		after[i] = live.Clone()
		for _, t := range b.Instrs[i].Defs() {
			live.Remove(t)
		}
		for _, t := range b.Instrs[i].Uses() {
			live.Add(t)
		}
	}
	return live, after
}

// Function returns the analyzed function.
func (r *Result) Function() *ir.Function {
	return r.fn
}

// LiveIn returns the temporaries live on entry to block l.
func (r *Result) LiveIn(l ir.Label) Set {
	return r.in[l]
}

// LiveOut returns the temporaries live on exit from block l.
func (r *Result) LiveOut(l ir.Label) Set {
	return r.out[l]
}

// LiveAfter returns the temporaries live right after instruction i of
// block l.
func (r *Result) LiveAfter(l ir.Label, i int) Set {
	return r.after[l][i]
}

// LiveBefore returns the temporaries live right before instruction i of
// block l.
func (r *Result) LiveBefore(l ir.Label, i int) Set {
	if i == 0 {
		return r.in[l]
	}
	return r.after[l][i-1]
}

// IsLastUse reports whether instruction i of block l reads t for the last
// time: t is an operand and is dead afterwards. The value may be moved
// rather than copied.
func (r *Result) IsLastUse(l ir.Label, i int, t int) bool {
	if r.after[l][i].Has(t) {
		return false
	}
	for _, u := range r.fn.Block(l).Instrs[i].Uses() {
		if u == t {
			return true
		}
	}
	return false
}

// IsDeadDef reports whether instruction i of block l defines t and nothing
// reads that value afterwards.
func (r *Result) IsDeadDef(l ir.Label, i int, t int) bool {
	if r.after[l][i].Has(t) {
		return false
	}
	for _, d := range r.fn.Block(l).Instrs[i].Defs() {
		if d == t {
			return true
		}
	}
	return false
}

// Unused returns the temporaries that are never read anywhere in the
// function. Their definitions only need to discard the value.
func (r *Result) Unused() Set {
	var read Set
	for _, b := range r.fn.Blocks {
		for _, instr := range b.Instrs {
			for _, t := range instr.Uses() {
				read.Add(t)
			}
		}
	}
	var unused Set
	for i := range r.fn.Temps {
		if !read.Has(i) {
			unused.Add(i)
		}
	}
	return unused
}

// Stable reports whether the result is a fixed point of the data-flow
// equations: recomputing every block from its successors' live-in sets
// reproduces the stored sets.
func (r *Result) Stable() bool {
	for _, b := range r.fn.Blocks {
		var out Set
		for _, s := range b.Successors() {
			out.UnionWith(r.in[s])
		}
		if !out.Equal(r.out[b.Label]) {
			return false
		}
		in, after := transfer(b, out)
		if !in.Equal(r.in[b.Label]) {
			return false
		}
		for i := range after {
			if !after[i].Equal(r.after[b.Label][i]) {
				return false
			}
		}
	}
	return true
}
