package bytecode

import (
	"testing"

	"github.com/simon-1M/closurec/ast"
	"github.com/simon-1M/closurec/op"
	"github.com/simon-1M/closurec/types"
	"github.com/stretchr/testify/require"
)

func sampleModule() *Module {
	m := &Module{
		Address: "0x42",
		Name:    "sample",
		Structs: []Struct{{
			Name:      "Coin",
			Abilities: types.NewAbilitySet(types.Drop),
			Fields:    []Field{{Name: "value", Type: Type{Kind: KindU64}}},
		}},
	}
	u64 := Type{Kind: KindU64}
	sig := m.AddSignature(Signature{Params: []Type{u64}, Results: []Type{u64}})
	closure := m.AddSignature(Signature{Results: []Type{u64}, Abilities: types.NewAbilitySet(types.Drop)})
	m.Functions = []Function{
		{
			Name:      "id",
			Kind:      ast.Public,
			Signature: sig,
			Locals:    []Type{u64},
			Code: EncodeCode([]Instruction{
				{Op: op.MoveLoc, Operands: []uint64{0}},
				{Op: op.Ret},
			}),
		},
		{
			Name:      "make",
			Kind:      ast.LambdaFunction,
			Signature: sig,
			Locals:    []Type{u64},
			Code: EncodeCode([]Instruction{
				{Op: op.MoveLoc, Operands: []uint64{0}},
				{Op: op.PackClosure, Operands: []uint64{0, 1, uint64(closure)}},
				{Op: op.CallClosure, Operands: []uint64{uint64(closure)}},
				{Op: op.Ret},
			}),
		},
	}
	return m
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := sampleModule()
	data, err := Encode(m)
	require.Nil(t, err)
	require.Equal(t, Magic, data[:4])
	require.Equal(t, []byte{8, 0, 0, 0}, data[4:8])

	decoded, err := Decode(data)
	require.Nil(t, err)
	require.Equal(t, DefaultVersion, decoded.Version)
	require.Equal(t, "0x42::sample", decoded.QualifiedName())
	require.Len(t, decoded.Functions, 2)
	require.Equal(t, ast.LambdaFunction, decoded.Functions[1].Kind)

	again, err := Encode(decoded)
	require.Nil(t, err)
	require.Equal(t, data, again)
}

func TestEncodeIsDeterministic(t *testing.T) {
	a, err := Encode(sampleModule())
	require.Nil(t, err)
	b, err := Encode(sampleModule())
	require.Nil(t, err)
	require.Equal(t, a, b)
}

func TestDecodeRejectsBadInput(t *testing.T) {
	data, err := Encode(sampleModule())
	require.Nil(t, err)

	_, err = Decode(data[:5])
	require.ErrorContains(t, err, "module too short")

	bad := append([]byte{}, data...)
	bad[0] = 0
	_, err = Decode(bad)
	require.ErrorContains(t, err, "bad magic")

	future := append([]byte{}, data...)
	future[4] = 9
	_, err = Decode(future)
	require.ErrorContains(t, err, "unsupported format version 9 (want 6..8)")
}

func TestClosuresRequireVersion8(t *testing.T) {
	m := sampleModule()
	m.Version = 7
	_, err := Encode(m)
	require.ErrorContains(t, err, "function make uses PackClosure, which requires format version 8")

	m.Functions = m.Functions[:1]
	data, err := Encode(m)
	require.Nil(t, err)
	decoded, err := Decode(data)
	require.Nil(t, err)
	require.Equal(t, uint32(7), decoded.Version)
}

func TestDecodeCode(t *testing.T) {
	code := []Instruction{
		{Op: op.LdU64, Operands: []uint64{1 << 40}},
		{Op: op.ImmBorrowField, Operands: []uint64{3, 1}},
		{Op: op.Pop},
		{Op: op.Branch, Operands: []uint64{0}},
	}
	decoded, err := DecodeCode(EncodeCode(code))
	require.Nil(t, err)
	require.Equal(t, code, decoded)
	require.Equal(t, "ImmBorrowField 3, 1", decoded[1].String())

	_, err = DecodeCode([]byte{byte(op.LdU64)})
	require.ErrorContains(t, err, "truncated operand 0 of LdU64")

	_, err = DecodeCode([]byte{200})
	require.ErrorContains(t, err, "invalid opcode 200 at byte 0")
}

func TestPoolsAreInterned(t *testing.T) {
	m := &Module{}
	u64 := Type{Kind: KindU64}
	a := m.AddSignature(Signature{Params: []Type{u64}})
	b := m.AddSignature(Signature{Params: []Type{u64}})
	c := m.AddSignature(Signature{Params: []Type{u64}, Abilities: types.NewAbilitySet(types.Copy)})
	require.Equal(t, 0, a)
	require.Equal(t, 0, b)
	require.Equal(t, 1, c)

	x := m.AddConstant(Constant{Type: Type{Kind: KindAddress}, Value: "0x1"})
	y := m.AddConstant(Constant{Type: Type{Kind: KindAddress}, Value: "0x1"})
	require.Equal(t, x, y)
	require.Len(t, m.Constants, 1)
}

func TestTypeTags(t *testing.T) {
	m := sampleModule()
	coin := types.NewStruct("Coin")
	for _, ty := range []types.Type{
		types.Bool,
		types.Address,
		coin,
		types.MutRef(coin),
		types.Func([]types.Type{types.Ref(coin)}, []types.Type{types.U64}, types.NewAbilitySet(types.Drop)),
	} {
		tag, err := m.TypeTag(ty)
		require.Nil(t, err)
		back, err := m.TypeOf(tag)
		require.Nil(t, err)
		require.Equal(t, ty.String(), back.String())
	}

	_, err := m.TypeTag(types.NewStruct("Missing"))
	require.ErrorContains(t, err, `undefined struct "Missing"`)
	_, err = m.TypeOf(Type{Kind: KindStruct, Struct: 4})
	require.ErrorContains(t, err, "struct index 4 out of range")
}

func TestStats(t *testing.T) {
	s := sampleModule().Stats()
	require.Equal(t, 2, s.FunctionCount)
	require.Equal(t, 1, s.LambdaCount)
	require.Equal(t, 6, s.InstructionCount)
	require.Equal(t, 2, s.SignatureCount)
}

func TestLeaders(t *testing.T) {
	require.Nil(t, Leaders(nil))

	code := []Instruction{
		{Op: op.CopyLoc, Operands: []uint64{0}}, // 0
		{Op: op.BrFalse, Operands: []uint64{4}}, // 1
		{Op: op.LdU64, Operands: []uint64{1}},   // 2
		{Op: op.Ret},                            // 3
		{Op: op.LdU64, Operands: []uint64{2}},   // 4
		{Op: op.Branch, Operands: []uint64{3}},  // 5
		{Op: op.Branch, Operands: []uint64{99}}, // 6
	}
	require.Equal(t, []int{0, 2, 3, 4, 6}, Leaders(code))
}
