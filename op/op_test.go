package op

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo(PackClosure)
	require.Equal(t, "PackClosure", info.Name)
	require.Equal(t, 3, info.OperandCount)
	require.Equal(t, PackClosure, info.Code)
	require.Equal(t, []OperandKind{Function, Count, Signature}, info.Operands)
}

func TestGetInfoAllOpcodes(t *testing.T) {
	tests := []struct {
		code     Code
		name     string
		operands int
	}{
		{CopyLoc, "CopyLoc", 1},
		{MoveLoc, "MoveLoc", 1},
		{StLoc, "StLoc", 1},
		{ImmBorrowLoc, "ImmBorrowLoc", 1},
		{MutBorrowLoc, "MutBorrowLoc", 1},
		{ImmBorrowField, "ImmBorrowField", 2},
		{MutBorrowField, "MutBorrowField", 2},
		{ReadRef, "ReadRef", 0},
		{WriteRef, "WriteRef", 0},
		{Pop, "Pop", 0},
		{LdU8, "LdU8", 1},
		{LdU64, "LdU64", 1},
		{LdTrue, "LdTrue", 0},
		{LdFalse, "LdFalse", 0},
		{LdConst, "LdConst", 1},
		{Add, "Add", 0},
		{Eq, "Eq", 0},
		{Not, "Not", 0},
		{Pack, "Pack", 1},
		{Call, "Call", 1},
		{CallClosure, "CallClosure", 1},
		{Branch, "Branch", 1},
		{BrTrue, "BrTrue", 1},
		{BrFalse, "BrFalse", 1},
		{Ret, "Ret", 0},
		{Abort, "Abort", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := GetInfo(tt.code)
			require.Equal(t, tt.name, info.Name)
			require.Equal(t, tt.operands, info.OperandCount)
			require.Equal(t, tt.name, tt.code.String())
		})
	}
}

func TestControlFlowClassification(t *testing.T) {
	require.True(t, GetInfo(BrFalse).IsBranch())
	require.True(t, GetInfo(BrFalse).IsTerminator())
	require.True(t, GetInfo(Abort).IsTerminator())
	require.False(t, GetInfo(Abort).IsBranch())
	require.False(t, GetInfo(Call).IsTerminator())
}

func TestInvalidOpcode(t *testing.T) {
	require.False(t, IsValid(Invalid))
	require.False(t, IsValid(Code(200)))
	require.Equal(t, "Invalid", Code(200).String())
	require.True(t, IsValid(Ret))
}
