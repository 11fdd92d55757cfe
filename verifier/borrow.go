package verifier

import (
	"sort"

	"github.com/simon-1M/closurec/types"
)

// place is a location a reference may point into: a local slot of the
// current function, or the data behind a reference parameter when indirect
// is set. path holds (struct, field) index pairs.
type place struct {
	root     int
	indirect bool
	path     []uint64
}

func (p place) equal(q place) bool {
	if p.root != q.root || p.indirect != q.indirect || len(p.path) != len(q.path) {
		return false
	}
	for i := range p.path {
		if p.path[i] != q.path[i] {
			return false
		}
	}
	return true
}

// overlaps reports whether p and q may alias: same root, and one path is a
// prefix of the other.
func (p place) overlaps(q place) bool {
	if p.root != q.root || p.indirect != q.indirect {
		return false
	}
	n := len(p.path)
	if len(q.path) < n {
		n = len(q.path)
	}
	for i := 0; i < n; i++ {
		if p.path[i] != q.path[i] {
			return false
		}
	}
	return true
}

func (p place) field(s, f uint64) place {
	path := make([]uint64, len(p.path), len(p.path)+2)
	copy(path, p.path)
	return place{root: p.root, indirect: p.indirect, path: append(path, s, f)}
}

// borrow describes a reference value. ids identify the borrow (the offset
// that created it, or a negative id for parameters) and are shared by
// copies; lineage lists the ids of every reference it was derived from.
// Descriptors are never mutated once built.
type borrow struct {
	mutable bool
	places  []place
	ids     []int
	lineage []int
}

func paramBorrow(slot int, ref *types.Reference) *borrow {
	return &borrow{
		mutable: ref.Mutable,
		places:  []place{{root: slot, indirect: true}},
		ids:     []int{-(slot + 1)},
	}
}

func localBorrow(pc, slot int, mutable bool) *borrow {
	return &borrow{mutable: mutable, places: []place{{root: slot}}, ids: []int{pc}}
}

// derive builds a reference created at pc from the given parents.
func derive(pc int, mutable bool, places []place, parents ...*borrow) *borrow {
	b := &borrow{mutable: mutable, places: places, ids: []int{pc}}
	for _, p := range parents {
		b.lineage = unionInts(b.lineage, p.ids)
		b.lineage = unionInts(b.lineage, p.lineage)
	}
	return b
}

// same reports whether a and b are copies of one reference.
func (b *borrow) same(o *borrow) bool {
	return intersects(b.ids, o.ids)
}

// ancestorOf reports whether o was derived from b.
func (b *borrow) ancestorOf(o *borrow) bool {
	return intersects(b.ids, o.lineage)
}

func (b *borrow) overlaps(o *borrow) bool {
	for _, p := range b.places {
		for _, q := range o.places {
			if p.overlaps(q) {
				return true
			}
		}
	}
	return false
}

// rootedAt reports whether b may point into local slot.
func (b *borrow) rootedAt(slot int) bool {
	for _, p := range b.places {
		if !p.indirect && p.root == slot {
			return true
		}
	}
	return false
}

// local returns a place of b rooted in a local of the current function.
func (b *borrow) local() (place, bool) {
	for _, p := range b.places {
		if !p.indirect {
			return p, true
		}
	}
	return place{}, false
}

// join merges two descriptors reaching the same local from different
// paths. It returns a and false when b adds nothing.
func join(a, b *borrow) (*borrow, bool) {
	if a == nil {
		return b, b != nil
	}
	if b == nil || a == b {
		return a, false
	}
	out := &borrow{
		mutable: a.mutable || b.mutable,
		places:  append([]place(nil), a.places...),
		ids:     unionInts(a.ids, b.ids),
		lineage: unionInts(a.lineage, b.lineage),
	}
	for _, q := range b.places {
		if !containsPlace(out.places, q) {
			out.places = append(out.places, q)
		}
	}
	changed := out.mutable != a.mutable || len(out.places) != len(a.places) ||
		len(out.ids) != len(a.ids) || len(out.lineage) != len(a.lineage)
	if !changed {
		return a, false
	}
	return out, true
}

func containsPlace(ps []place, p place) bool {
	for _, q := range ps {
		if q.equal(p) {
			return true
		}
	}
	return false
}

func unionPlaces(bs ...*borrow) []place {
	var out []place
	for _, b := range bs {
		for _, p := range b.places {
			if !containsPlace(out, p) {
				out = append(out, p)
			}
		}
	}
	return out
}

// unionInts merges two sorted sets.
func unionInts(a, b []int) []int {
	if len(b) == 0 {
		return a
	}
	if len(a) == 0 {
		return b
	}
	out := append([]int(nil), a...)
	for _, v := range b {
		i := sort.SearchInts(out, v)
		if i < len(out) && out[i] == v {
			continue
		}
		out = append(out, 0)
		copy(out[i+1:], out[i:])
		out[i] = v
	}
	return out
}

func intersects(a, b []int) bool {
	for _, v := range a {
		i := sort.SearchInts(b, v)
		if i < len(b) && b[i] == v {
			return true
		}
	}
	return false
}
