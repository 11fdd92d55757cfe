// Package ast defines the typed model consumed by the pipeline: modules,
// struct definitions, functions and fully typed expression trees.
//
// The model is produced upstream by parsing and type checking, so every
// expression already knows its type and every local reference has been
// resolved to a name in scope. Lambda literals carry an explicit, ordered
// capture list.
package ast

import (
	"github.com/simon-1M/closurec/types"
)

// Node represents a portion of the model.
type Node interface {
	// String returns a human friendly, source-like representation of the
	// node.
	String() string
}

// Expr represents an expression node. Expressions evaluate to a value of
// their reported type; statements are expressions of unit type.
type Expr interface {
	Node
	Type() types.Type
	exprNode()
}

// Module is a named collection of structs and functions identified by an
// address and name pair.
type Module struct {
	Address   string
	Name      string
	Structs   []*StructDef
	Functions []*Function
}

// QualifiedName returns "address::name".
func (m *Module) QualifiedName() string {
	return m.Address + "::" + m.Name
}

// Struct looks up a struct definition by name.
func (m *Module) Struct(name string) (*StructDef, bool) {
	for _, s := range m.Structs {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Function looks up a function by name.
func (m *Module) Function(name string) (*Function, bool) {
	for _, f := range m.Functions {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// StructAbilities implements types.StructLookup over the module's structs.
func (m *Module) StructAbilities(name string) (types.AbilitySet, bool) {
	s, ok := m.Struct(name)
	if !ok {
		return 0, false
	}
	return s.Abilities, true
}

// String renders the whole module in the diagnostic model format.
func (m *Module) String() string {
	return Format(m)
}

// StructDef declares a struct with ordered fields and abilities.
type StructDef struct {
	Name      string
	Abilities types.AbilitySet
	Fields    []Field
}

// FieldIndex returns the position of the named field, or -1.
func (s *StructDef) FieldIndex(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Field is a named, typed struct member.
type Field struct {
	Name string
	Type types.Type
}

// FunctionKind distinguishes user functions from synthesized lambdas.
type FunctionKind uint8

const (
	Private FunctionKind = iota
	Public
	LambdaFunction
)

func (k FunctionKind) String() string {
	switch k {
	case Public:
		return "public"
	case LambdaFunction:
		return "lambda"
	default:
		return "private"
	}
}

// Function is a top-level function with a structured body.
type Function struct {
	Name    string
	Kind    FunctionKind
	Params  []Param
	Results []types.Type
	Body    Expr
}

// ParamTypes returns the declared parameter types in order.
func (f *Function) ParamTypes() []types.Type {
	ts := make([]types.Type, len(f.Params))
	for i, p := range f.Params {
		ts[i] = p.Type
	}
	return ts
}

// Signature returns the function's type as a closure signature with no
// captures.
func (f *Function) Signature() *types.Function {
	return types.Func(f.ParamTypes(), f.Results, 0)
}

// Param is a named, typed parameter. Lambda captures use the same shape.
type Param struct {
	Name string
	Type types.Type
}
