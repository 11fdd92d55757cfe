package types

import "strings"

// Ability is a capability a type may declare.
type Ability uint8

const (
	Copy Ability = 1 << iota
	Drop
	Store
	Key
)

// String returns the source keyword for the ability.
func (a Ability) String() string {
	switch a {
	case Copy:
		return "copy"
	case Drop:
		return "drop"
	case Store:
		return "store"
	case Key:
		return "key"
	default:
		return ""
	}
}

var allAbilities = []Ability{Copy, Drop, Store, Key}

// AbilitySet is a set of abilities.
type AbilitySet uint8

// AllAbilities contains every ability.
const AllAbilities = AbilitySet(Copy | Drop | Store | Key)

// NewAbilitySet builds a set from the given abilities.
func NewAbilitySet(abilities ...Ability) AbilitySet {
	var s AbilitySet
	for _, a := range abilities {
		s |= AbilitySet(a)
	}
	return s
}

// Has reports whether a is in the set.
func (s AbilitySet) Has(a Ability) bool {
	return s&AbilitySet(a) != 0
}

// Intersect returns the abilities present in both sets.
func (s AbilitySet) Intersect(o AbilitySet) AbilitySet {
	return s & o
}

// Union returns the abilities present in either set.
func (s AbilitySet) Union(o AbilitySet) AbilitySet {
	return s | o
}

// IsSubsetOf reports whether every ability in s is also in o.
func (s AbilitySet) IsSubsetOf(o AbilitySet) bool {
	return s&^o == 0
}

// String renders the set as "copy+drop".
func (s AbilitySet) String() string {
	var names []string
	for _, a := range allAbilities {
		if s.Has(a) {
			names = append(names, a.String())
		}
	}
	return strings.Join(names, "+")
}
