// Package types defines the resolved type language shared by every stage of
// the pipeline, from the typed model through lowering, emission and
// verification.
//
// Types are compared structurally with [Equal]. Function types additionally
// carry an ability set, which participates in [Assignable] but not in
// [Equal], so a closure that happens to be copyable can be passed where only
// a droppable closure is declared.
package types

import (
	"strings"
)

// Type is a fully resolved type.
type Type interface {
	String() string
	isType()
}

// Primitive is a builtin scalar type.
type Primitive uint8

const (
	Bool Primitive = iota + 1
	U8
	U64
	Address
)

func (p Primitive) isType() {}

func (p Primitive) String() string {
	switch p {
	case Bool:
		return "bool"
	case U8:
		return "u8"
	case U64:
		return "u64"
	case Address:
		return "address"
	default:
		return "<invalid>"
	}
}

// Struct names a struct declared in the enclosing module.
type Struct struct {
	Name string
}

func (s *Struct) isType() {}

func (s *Struct) String() string {
	return s.Name
}

// Reference is an immutable (&T) or mutable (&mut T) reference.
type Reference struct {
	Mutable bool
	Elem    Type
}

func (r *Reference) isType() {}

func (r *Reference) String() string {
	if r.Mutable {
		return "&mut " + r.Elem.String()
	}
	return "&" + r.Elem.String()
}

// Function is the type of a closure value: |T1,...,Tn| -> R.
type Function struct {
	Params    []Type
	Results   []Type
	Abilities AbilitySet
}

func (f *Function) isType() {}

func (f *Function) String() string {
	var b strings.Builder
	b.WriteString("|")
	b.WriteString(join(f.Params, ","))
	b.WriteString("|")
	switch len(f.Results) {
	case 0:
	case 1:
		b.WriteString(" -> ")
		b.WriteString(f.Results[0].String())
	default:
		b.WriteString(" -> (")
		b.WriteString(join(f.Results, ","))
		b.WriteString(")")
	}
	if f.Abilities != 0 {
		b.WriteString(" has ")
		b.WriteString(f.Abilities.String())
	}
	return b.String()
}

// Tuple is the type of a multi-valued expression. The empty tuple is unit.
type Tuple []Type

func (t Tuple) isType() {}

func (t Tuple) String() string {
	return "(" + join(t, ", ") + ")"
}

// Unit is the type of expressions that produce no value.
var Unit = Tuple{}

// NewStruct returns a struct type with the given name.
func NewStruct(name string) *Struct {
	return &Struct{Name: name}
}

// Ref returns &elem.
func Ref(elem Type) *Reference {
	return &Reference{Elem: elem}
}

// MutRef returns &mut elem.
func MutRef(elem Type) *Reference {
	return &Reference{Mutable: true, Elem: elem}
}

// Func returns a function type. Nil slices are normalized to empty ones.
func Func(params, results []Type, abilities AbilitySet) *Function {
	if params == nil {
		params = []Type{}
	}
	if results == nil {
		results = []Type{}
	}
	return &Function{Params: params, Results: results, Abilities: abilities}
}

// Flatten returns the component types of t: the elements of a tuple, or t
// itself for any other type.
func Flatten(t Type) []Type {
	if tup, ok := t.(Tuple); ok {
		return tup
	}
	return []Type{t}
}

// Of builds the type of a value list: a single type stays as is, anything
// else becomes a tuple.
func Of(ts []Type) Type {
	if len(ts) == 1 {
		return ts[0]
	}
	return Tuple(ts)
}

// IsInteger reports whether t is one of the unsigned integer types.
func IsInteger(t Type) bool {
	p, ok := t.(Primitive)
	return ok && (p == U8 || p == U64)
}

// IsReference returns t as a reference, if it is one.
func IsReference(t Type) (*Reference, bool) {
	r, ok := t.(*Reference)
	return r, ok
}

// Equal reports whether a and b are the same type. Abilities of function
// types are ignored.
func Equal(a, b Type) bool {
	switch a := a.(type) {
	case Primitive:
		b, ok := b.(Primitive)
		return ok && a == b
	case *Struct:
		b, ok := b.(*Struct)
		return ok && a.Name == b.Name
	case *Reference:
		b, ok := b.(*Reference)
		return ok && a.Mutable == b.Mutable && Equal(a.Elem, b.Elem)
	case *Function:
		b, ok := b.(*Function)
		return ok && EqualList(a.Params, b.Params) && EqualList(a.Results, b.Results)
	case Tuple:
		b, ok := b.(Tuple)
		return ok && EqualList(a, b)
	}
	return false
}

// EqualList compares two type lists element-wise.
func EqualList(a, b []Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Assignable reports whether a value of type actual may flow into a slot
// declared with type declared. This is equality, except that a function
// value may carry more abilities than the declaration asks for.
func Assignable(actual, declared Type) bool {
	af, ok := actual.(*Function)
	if !ok {
		return Equal(actual, declared)
	}
	df, ok := declared.(*Function)
	if !ok {
		return false
	}
	return Equal(af, df) && df.Abilities.IsSubsetOf(af.Abilities)
}

// StructLookup resolves the declared abilities of a struct by name.
type StructLookup func(name string) (AbilitySet, bool)

// AbilitiesOf returns the abilities of t. Unknown structs have none.
func AbilitiesOf(t Type, lookup StructLookup) AbilitySet {
	switch t := t.(type) {
	case Primitive:
		return NewAbilitySet(Copy, Drop, Store)
	case *Reference:
		return NewAbilitySet(Copy, Drop)
	case *Struct:
		if lookup == nil {
			return 0
		}
		set, _ := lookup(t.Name)
		return set
	case *Function:
		return t.Abilities
	case Tuple:
		set := AllAbilities
		for _, elem := range t {
			set = set.Intersect(AbilitiesOf(elem, lookup))
		}
		return set
	}
	return 0
}

func join(ts []Type, sep string) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, sep)
}
