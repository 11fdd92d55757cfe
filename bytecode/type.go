package bytecode

import (
	"fmt"

	"github.com/simon-1M/closurec/types"
)

// TypeKind tags the shape of a serialized type.
type TypeKind uint8

const (
	KindBool TypeKind = iota + 1
	KindU8
	KindU64
	KindAddress
	KindStruct
	KindRef
	KindMutRef
	KindFunction
)

// Type is the serialized form of a types.Type. Structs are referenced by
// index into the module's struct table.
type Type struct {
	Kind      TypeKind         `cbor:"1,keyasint"`
	Struct    int              `cbor:"2,keyasint,omitempty"`
	Elem      *Type            `cbor:"3,keyasint,omitempty"`
	Params    []Type           `cbor:"4,keyasint,omitempty"`
	Results   []Type           `cbor:"5,keyasint,omitempty"`
	Abilities types.AbilitySet `cbor:"6,keyasint,omitempty"`
}

// Equal compares two serialized types structurally.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind || t.Struct != o.Struct || t.Abilities != o.Abilities {
		return false
	}
	if (t.Elem == nil) != (o.Elem == nil) {
		return false
	}
	if t.Elem != nil && !t.Elem.Equal(*o.Elem) {
		return false
	}
	return equalTypes(t.Params, o.Params) && equalTypes(t.Results, o.Results)
}

func equalTypes(a, b []Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// TypeTag serializes t against the module's struct table.
func (m *Module) TypeTag(t types.Type) (Type, error) {
	switch t := t.(type) {
	case types.Primitive:
		switch t {
		case types.Bool:
			return Type{Kind: KindBool}, nil
		case types.U8:
			return Type{Kind: KindU8}, nil
		case types.U64:
			return Type{Kind: KindU64}, nil
		case types.Address:
			return Type{Kind: KindAddress}, nil
		}
	case *types.Struct:
		i := m.StructIndex(t.Name)
		if i < 0 {
			return Type{}, fmt.Errorf("undefined struct %q", t.Name)
		}
		return Type{Kind: KindStruct, Struct: i}, nil
	case *types.Reference:
		elem, err := m.TypeTag(t.Elem)
		if err != nil {
			return Type{}, err
		}
		kind := KindRef
		if t.Mutable {
			kind = KindMutRef
		}
		return Type{Kind: kind, Elem: &elem}, nil
	case *types.Function:
		params, err := m.TypeTags(t.Params)
		if err != nil {
			return Type{}, err
		}
		results, err := m.TypeTags(t.Results)
		if err != nil {
			return Type{}, err
		}
		return Type{Kind: KindFunction, Params: params, Results: results, Abilities: t.Abilities}, nil
	}
	return Type{}, fmt.Errorf("type %s has no binary form", t)
}

// TypeTags serializes a type list. An empty list becomes nil.
func (m *Module) TypeTags(ts []types.Type) ([]Type, error) {
	if len(ts) == 0 {
		return nil, nil
	}
	tags := make([]Type, len(ts))
	for i, t := range ts {
		tag, err := m.TypeTag(t)
		if err != nil {
			return nil, err
		}
		tags[i] = tag
	}
	return tags, nil
}

// TypeOf resolves a serialized type.
func (m *Module) TypeOf(t Type) (types.Type, error) {
	switch t.Kind {
	case KindBool:
		return types.Bool, nil
	case KindU8:
		return types.U8, nil
	case KindU64:
		return types.U64, nil
	case KindAddress:
		return types.Address, nil
	case KindStruct:
		if t.Struct < 0 || t.Struct >= len(m.Structs) {
			return nil, fmt.Errorf("struct index %d out of range", t.Struct)
		}
		return types.NewStruct(m.Structs[t.Struct].Name), nil
	case KindRef, KindMutRef:
		if t.Elem == nil {
			return nil, fmt.Errorf("reference type without element")
		}
		elem, err := m.TypeOf(*t.Elem)
		if err != nil {
			return nil, err
		}
		return &types.Reference{Mutable: t.Kind == KindMutRef, Elem: elem}, nil
	case KindFunction:
		params, err := m.TypesOf(t.Params)
		if err != nil {
			return nil, err
		}
		results, err := m.TypesOf(t.Results)
		if err != nil {
			return nil, err
		}
		return types.Func(params, results, t.Abilities), nil
	}
	return nil, fmt.Errorf("invalid type kind %d", t.Kind)
}

// TypesOf resolves a list of serialized types.
func (m *Module) TypesOf(ts []Type) ([]types.Type, error) {
	out := make([]types.Type, len(ts))
	for i, t := range ts {
		r, err := m.TypeOf(t)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}
