package ast

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/simon-1M/closurec/types"
)

// BinaryOp is a binary operator.
type BinaryOp uint8

const (
	Add BinaryOp = iota + 1
	Sub
	Mul
	Div
	Mod
	BitAnd
	BitOr
	Xor
	Lt
	Le
	Gt
	Ge
	Eq
	Neq
	And
	Or
)

var binaryOpNames = map[BinaryOp][2]string{
	Add:    {"Add", "+"},
	Sub:    {"Sub", "-"},
	Mul:    {"Mul", "*"},
	Div:    {"Div", "/"},
	Mod:    {"Mod", "%"},
	BitAnd: {"BitAnd", "&"},
	BitOr:  {"BitOr", "|"},
	Xor:    {"Xor", "^"},
	Lt:     {"Lt", "<"},
	Le:     {"Le", "<="},
	Gt:     {"Gt", ">"},
	Ge:     {"Ge", ">="},
	Eq:     {"Eq", "=="},
	Neq:    {"Neq", "!="},
	And:    {"And", "&&"},
	Or:     {"Or", "||"},
}

// String returns the operator's name, e.g. "Add".
func (op BinaryOp) String() string {
	return binaryOpNames[op][0]
}

// Symbol returns the operator's source symbol, e.g. "+".
func (op BinaryOp) Symbol() string {
	return binaryOpNames[op][1]
}

// IsComparison reports whether the operator produces a bool from two
// operands of the same type.
func (op BinaryOp) IsComparison() bool {
	switch op {
	case Lt, Le, Gt, Ge, Eq, Neq:
		return true
	}
	return false
}

// IsLogical reports whether the operator short-circuits.
func (op BinaryOp) IsLogical() bool {
	return op == And || op == Or
}

// UnaryOp is a unary operator.
type UnaryOp uint8

const (
	Not UnaryOp = iota + 1
)

func (op UnaryOp) String() string {
	if op == Not {
		return "Not"
	}
	return ""
}

// IntLit is an unsigned integer literal.
type IntLit struct {
	Value uint64
	Ty    types.Primitive
}

func (x *IntLit) exprNode()        {}
func (x *IntLit) Type() types.Type { return x.Ty }
func (x *IntLit) String() string   { return fmt.Sprintf("%d%s", x.Value, x.Ty) }

// BoolLit is true or false.
type BoolLit struct {
	Value bool
}

func (x *BoolLit) exprNode()        {}
func (x *BoolLit) Type() types.Type { return types.Bool }
func (x *BoolLit) String() string   { return fmt.Sprintf("%t", x.Value) }

// AddressLit is an account address literal such as 0x42.
type AddressLit struct {
	Value string
}

func (x *AddressLit) exprNode()        {}
func (x *AddressLit) Type() types.Type { return types.Address }
func (x *AddressLit) String() string   { return "@" + x.Value }

// Local reads a local variable or parameter.
type Local struct {
	Name string
	Ty   types.Type
}

func (x *Local) exprNode()        {}
func (x *Local) Type() types.Type { return x.Ty }
func (x *Local) String() string   { return x.Name }

// Let introduces one or more locals. Several names destructure the results
// of a multi-valued expression.
type Let struct {
	Names []string
	Types []types.Type
	Value Expr
}

func (x *Let) exprNode()        {}
func (x *Let) Type() types.Type { return types.Unit }

func (x *Let) String() string {
	names := strings.Join(x.Names, ", ")
	if len(x.Names) != 1 {
		names = "(" + names + ")"
	}
	return fmt.Sprintf("let %s = %s", names, x.Value)
}

// Assign overwrites an existing local.
type Assign struct {
	Name  string
	Value Expr
}

func (x *Assign) exprNode()        {}
func (x *Assign) Type() types.Type { return types.Unit }
func (x *Assign) String() string   { return fmt.Sprintf("%s = %s", x.Name, x.Value) }

// Seq evaluates expressions in order; its value is the last one's.
type Seq struct {
	Exprs []Expr
}

func (x *Seq) exprNode() {}

func (x *Seq) Type() types.Type {
	if len(x.Exprs) == 0 {
		return types.Unit
	}
	return x.Exprs[len(x.Exprs)-1].Type()
}

func (x *Seq) String() string {
	var out bytes.Buffer
	out.WriteString("{ ")
	for i, e := range x.Exprs {
		if i > 0 {
			out.WriteString("; ")
		}
		out.WriteString(e.String())
	}
	out.WriteString(" }")
	return out.String()
}

// If is a conditional. A nil Else means the unit value.
type If struct {
	Cond Expr
	Then Expr
	Else Expr
}

func (x *If) exprNode() {}

func (x *If) Type() types.Type {
	if x.Else == nil {
		return types.Unit
	}
	return x.Then.Type()
}

func (x *If) String() string {
	if x.Else == nil {
		return fmt.Sprintf("if (%s) %s", x.Cond, x.Then)
	}
	return fmt.Sprintf("if (%s) %s else %s", x.Cond, x.Then, x.Else)
}

// While loops while Cond holds.
type While struct {
	Cond Expr
	Body Expr
}

func (x *While) exprNode()        {}
func (x *While) Type() types.Type { return types.Unit }
func (x *While) String() string   { return fmt.Sprintf("while (%s) %s", x.Cond, x.Body) }

// Return leaves the enclosing function with the given values.
type Return struct {
	Values []Expr
}

func (x *Return) exprNode()        {}
func (x *Return) Type() types.Type { return types.Unit }
func (x *Return) String() string   { return "return " + exprList(x.Values) }

// Abort terminates execution with a numeric code.
type Abort struct {
	Code Expr
}

func (x *Abort) exprNode()        {}
func (x *Abort) Type() types.Type { return types.Unit }
func (x *Abort) String() string   { return "abort " + x.Code.String() }

// Binary applies a binary operator. And and Or short-circuit.
type Binary struct {
	Op BinaryOp
	X  Expr
	Y  Expr
}

func (x *Binary) exprNode() {}

func (x *Binary) Type() types.Type {
	if x.Op.IsComparison() || x.Op.IsLogical() {
		return types.Bool
	}
	return x.X.Type()
}

func (x *Binary) String() string {
	return fmt.Sprintf("(%s %s %s)", x.X, x.Op.Symbol(), x.Y)
}

// Unary applies a unary operator.
type Unary struct {
	Op UnaryOp
	X  Expr
}

func (x *Unary) exprNode()        {}
func (x *Unary) Type() types.Type { return types.Bool }
func (x *Unary) String() string   { return fmt.Sprintf("!%s", x.X) }

// Borrow takes a reference to a local (X is *Local) or to a field reached
// through a reference (X is *Select).
type Borrow struct {
	Mutable bool
	X       Expr
}

func (x *Borrow) exprNode() {}

func (x *Borrow) Type() types.Type {
	return &types.Reference{Mutable: x.Mutable, Elem: x.X.Type()}
}

func (x *Borrow) String() string {
	if x.Mutable {
		return "&mut " + x.X.String()
	}
	return "&" + x.X.String()
}

// Select reads a struct field through a reference.
type Select struct {
	Base   Expr
	Struct string
	Field  string
	Ty     types.Type
}

func (x *Select) exprNode()        {}
func (x *Select) Type() types.Type { return x.Ty }
func (x *Select) String() string   { return fmt.Sprintf("%s.%s", x.Base, x.Field) }

// Deref reads the value behind a reference.
type Deref struct {
	X Expr
}

func (x *Deref) exprNode() {}

func (x *Deref) Type() types.Type {
	if r, ok := types.IsReference(x.X.Type()); ok {
		return r.Elem
	}
	return x.X.Type()
}

func (x *Deref) String() string { return "*" + x.X.String() }

// WriteRef stores a value through a mutable reference.
type WriteRef struct {
	Ref   Expr
	Value Expr
}

func (x *WriteRef) exprNode()        {}
func (x *WriteRef) Type() types.Type { return types.Unit }
func (x *WriteRef) String() string   { return fmt.Sprintf("*%s = %s", x.Ref, x.Value) }

// Pack constructs a struct value from its fields in declaration order.
type Pack struct {
	Struct string
	Fields []Expr
}

func (x *Pack) exprNode()        {}
func (x *Pack) Type() types.Type { return types.NewStruct(x.Struct) }
func (x *Pack) String() string   { return x.Struct + "{" + exprList(x.Fields) + "}" }

// Call is a static call to a function of the enclosing module.
type Call struct {
	Func    string
	Args    []Expr
	Results []types.Type
}

func (x *Call) exprNode()        {}
func (x *Call) Type() types.Type { return types.Of(x.Results) }
func (x *Call) String() string   { return x.Func + "(" + exprList(x.Args) + ")" }

// Invoke calls a closure value.
type Invoke struct {
	Closure Expr
	Args    []Expr
}

func (x *Invoke) exprNode() {}

func (x *Invoke) Type() types.Type {
	if f, ok := x.Closure.Type().(*types.Function); ok {
		return types.Of(f.Results)
	}
	return types.Unit
}

func (x *Invoke) String() string {
	return "(" + x.Closure.String() + ")(" + exprList(x.Args) + ")"
}

// Lambda is an anonymous function literal. Captures lists the free
// variables of Body in capture order; each is bound by value when the
// closure is constructed.
type Lambda struct {
	Params    []Param
	Captures  []Param
	Results   []types.Type
	Abilities types.AbilitySet
	Body      Expr
}

func (x *Lambda) exprNode() {}

func (x *Lambda) Type() types.Type {
	ps := make([]types.Type, len(x.Params))
	for i, p := range x.Params {
		ps[i] = p.Type
	}
	return types.Func(ps, x.Results, x.Abilities)
}

func (x *Lambda) String() string {
	names := make([]string, len(x.Params))
	for i, p := range x.Params {
		names[i] = p.Name
	}
	return "|" + strings.Join(names, ", ") + "| " + x.Body.String()
}

// PackClosure builds a closure value from a named function and the values
// bound to its leading parameters. The lifter produces it from a Lambda.
type PackClosure struct {
	Func     string
	Captured []Expr
	Ty       *types.Function
}

func (x *PackClosure) exprNode()        {}
func (x *PackClosure) Type() types.Type { return x.Ty }

func (x *PackClosure) String() string {
	return "closure " + x.Func + "(" + exprList(x.Captured) + ")"
}

func exprList(es []Expr) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}
