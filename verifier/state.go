package verifier

import "github.com/simon-1M/closurec/types"

type availability uint8

const (
	unavailable availability = iota
	available
	// maybe means available on some incoming paths only.
	maybe
)

type local struct {
	avail availability
	ref   *borrow
}

// value is an operand stack entry. ref is set for references.
type value struct {
	ty  types.Type
	ref *borrow
}

type state struct {
	locals []local
	stack  []value
}

func (s *state) clone() *state {
	return &state{
		locals: append([]local(nil), s.locals...),
		stack:  append([]value(nil), s.stack...),
	}
}

// join merges o into s and reports whether s changed.
func (s *state) join(o *state) bool {
	changed := false
	for i := range s.locals {
		a, b := &s.locals[i], o.locals[i]
		if a.avail != b.avail && a.avail != maybe {
			a.avail = maybe
			changed = true
		}
		var grew bool
		if a.ref, grew = join(a.ref, b.ref); grew {
			changed = true
		}
	}
	return changed
}

func (s *state) push(ty types.Type, ref *borrow) {
	s.stack = append(s.stack, value{ty: ty, ref: ref})
}

func (s *state) pop() (value, bool) {
	if len(s.stack) == 0 {
		return value{}, false
	}
	v := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return v, true
}

// live returns every reference still reachable from the stack or from a
// local that may hold a value.
func (s *state) live() []*borrow {
	var out []*borrow
	for _, v := range s.stack {
		if v.ref != nil {
			out = append(out, v.ref)
		}
	}
	for _, l := range s.locals {
		if l.avail != unavailable && l.ref != nil {
			out = append(out, l.ref)
		}
	}
	return out
}

// borrowedLocal returns a live reference into local slot, optionally only
// mutable ones.
func (s *state) borrowedLocal(slot int, mutableOnly bool) *borrow {
	for _, r := range s.live() {
		if r.rootedAt(slot) && (r.mutable || !mutableOnly) {
			return r
		}
	}
	return nil
}

// conflicting returns a live reference other than r or its ancestors that
// overlaps r. With mutableOnly, only mutable ones count, which is the rule
// for reads.
func (s *state) conflicting(r *borrow, mutableOnly bool) *borrow {
	if r == nil {
		return nil
	}
	for _, o := range s.live() {
		if o == r || o.same(r) || o.ancestorOf(r) {
			continue
		}
		if mutableOnly && !o.mutable {
			continue
		}
		if o.overlaps(r) {
			return o
		}
	}
	return nil
}
