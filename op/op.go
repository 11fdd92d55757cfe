// Package op defines the opcodes of the stack bytecode emitted by codegen,
// checked by the verifier and executed by the vm.
package op

// Code is an opcode. It is stored as a single byte in a function's
// instruction stream, followed by its operands as unsigned varints.
type Code uint8

const (
	Invalid Code = 0

	// Locals
	CopyLoc      Code = 1
	MoveLoc      Code = 2
	StLoc        Code = 3
	ImmBorrowLoc Code = 4
	MutBorrowLoc Code = 5

	// References
	ImmBorrowField Code = 10
	MutBorrowField Code = 11
	ReadRef        Code = 12
	WriteRef       Code = 13

	// Stack
	Pop Code = 20

	// Push constants
	LdU8    Code = 30
	LdU64   Code = 31
	LdTrue  Code = 32
	LdFalse Code = 33
	LdConst Code = 34

	// Arithmetic
	Add    Code = 40
	Sub    Code = 41
	Mul    Code = 42
	Div    Code = 43
	Mod    Code = 44
	BitAnd Code = 45
	BitOr  Code = 46
	Xor    Code = 47

	// Comparison
	Lt  Code = 50
	Le  Code = 51
	Gt  Code = 52
	Ge  Code = 53
	Eq  Code = 54
	Neq Code = 55
	Not Code = 56

	// Structs
	Pack Code = 60

	// Calls
	Call        Code = 70
	PackClosure Code = 71
	CallClosure Code = 72

	// Control flow
	Branch  Code = 80
	BrTrue  Code = 81
	BrFalse Code = 82
	Ret     Code = 83
	Abort   Code = 84
)

// OperandKind tells what an operand indexes.
type OperandKind uint8

const (
	Local OperandKind = iota + 1
	Struct
	Field
	Function
	Signature
	Constant
	Offset
	Immediate
	Count
)

func (k OperandKind) String() string {
	switch k {
	case Local:
		return "local"
	case Struct:
		return "struct"
	case Field:
		return "field"
	case Function:
		return "function"
	case Signature:
		return "signature"
	case Constant:
		return "constant"
	case Offset:
		return "offset"
	case Immediate:
		return "immediate"
	case Count:
		return "count"
	}
	return "invalid"
}

// Info contains information about an opcode.
type Info struct {
	Code         Code
	Name         string
	OperandCount int
	Operands     []OperandKind
}

// IsBranch reports whether the opcode transfers control to an offset
// operand.
func (i Info) IsBranch() bool {
	return i.Code == Branch || i.Code == BrTrue || i.Code == BrFalse
}

// IsTerminator reports whether the opcode ends a basic block.
func (i Info) IsTerminator() bool {
	return i.IsBranch() || i.Code == Ret || i.Code == Abort
}

var infos = make([]Info, 256)

func init() {
	type opInfo struct {
		op       Code
		name     string
		operands []OperandKind
	}
	ops := []opInfo{
		{CopyLoc, "CopyLoc", []OperandKind{Local}},
		{MoveLoc, "MoveLoc", []OperandKind{Local}},
		{StLoc, "StLoc", []OperandKind{Local}},
		{ImmBorrowLoc, "ImmBorrowLoc", []OperandKind{Local}},
		{MutBorrowLoc, "MutBorrowLoc", []OperandKind{Local}},
		{ImmBorrowField, "ImmBorrowField", []OperandKind{Struct, Field}},
		{MutBorrowField, "MutBorrowField", []OperandKind{Struct, Field}},
		{ReadRef, "ReadRef", nil},
		{WriteRef, "WriteRef", nil},
		{Pop, "Pop", nil},
		{LdU8, "LdU8", []OperandKind{Immediate}},
		{LdU64, "LdU64", []OperandKind{Immediate}},
		{LdTrue, "LdTrue", nil},
		{LdFalse, "LdFalse", nil},
		{LdConst, "LdConst", []OperandKind{Constant}},
		{Add, "Add", nil},
		{Sub, "Sub", nil},
		{Mul, "Mul", nil},
		{Div, "Div", nil},
		{Mod, "Mod", nil},
		{BitAnd, "BitAnd", nil},
		{BitOr, "BitOr", nil},
		{Xor, "Xor", nil},
		{Lt, "Lt", nil},
		{Le, "Le", nil},
		{Gt, "Gt", nil},
		{Ge, "Ge", nil},
		{Eq, "Eq", nil},
		{Neq, "Neq", nil},
		{Not, "Not", nil},
		{Pack, "Pack", []OperandKind{Struct}},
		{Call, "Call", []OperandKind{Function}},
		{PackClosure, "PackClosure", []OperandKind{Function, Count, Signature}},
		{CallClosure, "CallClosure", []OperandKind{Signature}},
		{Branch, "Branch", []OperandKind{Offset}},
		{BrTrue, "BrTrue", []OperandKind{Offset}},
		{BrFalse, "BrFalse", []OperandKind{Offset}},
		{Ret, "Ret", nil},
		{Abort, "Abort", nil},
	}
	for _, o := range ops {
		infos[o.op] = Info{
			Code:         o.op,
			Name:         o.name,
			OperandCount: len(o.operands),
			Operands:     o.operands,
		}
	}
}

// GetInfo returns information about the given opcode. Unknown opcodes have
// an empty name.
func GetInfo(op Code) Info {
	return infos[op]
}

// IsValid reports whether op is a defined opcode.
func IsValid(op Code) bool {
	return infos[op].Name != ""
}

func (c Code) String() string {
	if name := infos[c].Name; name != "" {
		return name
	}
	return "Invalid"
}
