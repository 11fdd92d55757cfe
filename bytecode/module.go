package bytecode

import (
	"fmt"

	"github.com/simon-1M/closurec/ast"
	"github.com/simon-1M/closurec/types"
)

// Module is a compiled module. It is produced by codegen and, once encoded,
// treated as immutable.
type Module struct {
	// Version is carried in the binary header, not in the body.
	Version    uint32      `cbor:"-"`
	Address    string      `cbor:"1,keyasint"`
	Name       string      `cbor:"2,keyasint"`
	Structs    []Struct    `cbor:"3,keyasint,omitempty"`
	Signatures []Signature `cbor:"4,keyasint,omitempty"`
	Functions  []Function  `cbor:"5,keyasint,omitempty"`
	Constants  []Constant  `cbor:"6,keyasint,omitempty"`
}

// Struct is a struct definition.
type Struct struct {
	Name      string           `cbor:"1,keyasint"`
	Abilities types.AbilitySet `cbor:"2,keyasint,omitempty"`
	Fields    []Field          `cbor:"3,keyasint,omitempty"`
}

// Field is one member of a struct layout.
type Field struct {
	Name string `cbor:"1,keyasint"`
	Type Type   `cbor:"2,keyasint"`
}

// Signature lists parameter and result types. When it describes a closure
// type, Abilities holds the closure's declared abilities.
type Signature struct {
	Params    []Type           `cbor:"1,keyasint,omitempty"`
	Results   []Type           `cbor:"2,keyasint,omitempty"`
	Abilities types.AbilitySet `cbor:"3,keyasint,omitempty"`
}

// Function is a compiled function.
type Function struct {
	Name      string           `cbor:"1,keyasint"`
	Kind      ast.FunctionKind `cbor:"2,keyasint,omitempty"`
	Signature int              `cbor:"3,keyasint"`
	// Locals holds the type of every local slot, parameters first.
	Locals []Type `cbor:"4,keyasint,omitempty"`
	Code   []byte `cbor:"5,keyasint"`
}

// Constant is a pooled value loaded with LdConst.
type Constant struct {
	Type  Type   `cbor:"1,keyasint"`
	Value string `cbor:"2,keyasint"`
}

// QualifiedName returns "address::name".
func (m *Module) QualifiedName() string {
	return m.Address + "::" + m.Name
}

// StructIndex returns the index of the named struct, or -1.
func (m *Module) StructIndex(name string) int {
	for i, s := range m.Structs {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// FunctionIndex returns the index of the named function, or -1.
func (m *Module) FunctionIndex(name string) int {
	for i, f := range m.Functions {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// StructAbilities implements types.StructLookup over the struct table.
func (m *Module) StructAbilities(name string) (types.AbilitySet, bool) {
	i := m.StructIndex(name)
	if i < 0 {
		return 0, false
	}
	return m.Structs[i].Abilities, true
}

// AddSignature interns s and returns its index.
func (m *Module) AddSignature(s Signature) int {
	return getOrAdd(&m.Signatures, s, Signature.Equal)
}

// AddConstant interns c and returns its index.
func (m *Module) AddConstant(c Constant) int {
	return getOrAdd(&m.Constants, c, func(a, b Constant) bool {
		return a.Value == b.Value && a.Type.Equal(b.Type)
	})
}

// FunctionSignature returns the signature of function index i.
func (m *Module) FunctionSignature(i int) (Signature, error) {
	if i < 0 || i >= len(m.Functions) {
		return Signature{}, fmt.Errorf("function index %d out of range", i)
	}
	return m.SignatureAt(m.Functions[i].Signature)
}

// SignatureAt returns signature index i.
func (m *Module) SignatureAt(i int) (Signature, error) {
	if i < 0 || i >= len(m.Signatures) {
		return Signature{}, fmt.Errorf("signature index %d out of range", i)
	}
	return m.Signatures[i], nil
}

// ClosureType resolves signature index i as a closure type.
func (m *Module) ClosureType(i int) (*types.Function, error) {
	s, err := m.SignatureAt(i)
	if err != nil {
		return nil, err
	}
	params, err := m.TypesOf(s.Params)
	if err != nil {
		return nil, err
	}
	results, err := m.TypesOf(s.Results)
	if err != nil {
		return nil, err
	}
	return types.Func(params, results, s.Abilities), nil
}

// Equal compares two signatures, abilities included.
func (s Signature) Equal(o Signature) bool {
	return s.Abilities == o.Abilities && equalTypes(s.Params, o.Params) && equalTypes(s.Results, o.Results)
}

func getOrAdd[T any](pool *[]T, v T, eq func(a, b T) bool) int {
	for i, existing := range *pool {
		if eq(existing, v) {
			return i
		}
	}
	*pool = append(*pool, v)
	return len(*pool) - 1
}
