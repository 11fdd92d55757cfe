package liveness

import (
	"strings"

	"github.com/bits-and-blooms/bitset"
	"github.com/simon-1M/closurec/ir"
)

// Set is a set of temporary indices. The zero value is empty. Sets iterate
// in ascending order. Copies share storage; use Clone before mutating a set
// obtained from a Result.
type Set struct {
	b *bitset.BitSet
}

// NewSet returns a set holding ts.
func NewSet(ts ...int) Set {
	var s Set
	for _, t := range ts {
		s.Add(t)
	}
	return s
}

// Add inserts t.
func (s *Set) Add(t int) {
	if s.b == nil {
		s.b = bitset.New(uint(t) + 1)
	}
	s.b.Set(uint(t))
}

// Remove deletes t.
func (s *Set) Remove(t int) {
	if s.b != nil && t >= 0 {
		s.b.Clear(uint(t))
	}
}

// Has reports whether t is in the set.
func (s Set) Has(t int) bool {
	return s.b != nil && t >= 0 && s.b.Test(uint(t))
}

// Len returns the number of members.
func (s Set) Len() int {
	if s.b == nil {
		return 0
	}
	return int(s.b.Count())
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	if s.b == nil {
		return Set{}
	}
	return Set{b: s.b.Clone()}
}

// UnionWith adds every member of o to s.
func (s *Set) UnionWith(o Set) {
	if o.b == nil {
		return
	}
	if s.b == nil {
		s.b = o.b.Clone()
		return
	}
	s.b.InPlaceUnion(o.b)
}

// Equal reports whether s and o have the same members. Trailing capacity
// does not matter.
func (s Set) Equal(o Set) bool {
	if s.Len() != o.Len() {
		return false
	}
	if s.b == nil || o.b == nil {
		return true
	}
	return s.b.SymmetricDifferenceCardinality(o.b) == 0
}

// Slice returns the members in ascending order.
func (s Set) Slice() []int {
	var out []int
	if s.b == nil {
		return out
	}
	for i, ok := s.b.NextSet(0); ok; i, ok = s.b.NextSet(i + 1) {
		out = append(out, int(i))
	}
	return out
}

// String renders the set as "$t0, $t2".
func (s Set) String() string {
	members := s.Slice()
	parts := make([]string, len(members))
	for i, t := range members {
		parts[i] = ir.TempName(t)
	}
	return strings.Join(parts, ", ")
}
