package dis

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/simon-1M/closurec/ast"
	"github.com/simon-1M/closurec/bytecode"
	"github.com/simon-1M/closurec/codegen"
	"github.com/simon-1M/closurec/compiler"
	"github.com/simon-1M/closurec/internal/fixtures"
	"github.com/simon-1M/closurec/lift"
	"github.com/simon-1M/closurec/op"
	"github.com/simon-1M/closurec/types"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, m *ast.Module) *bytecode.Module {
	t.Helper()
	lifted, err := lift.Lift(m)
	require.Nil(t, err)
	fns, err := compiler.CompileModule(lifted)
	require.Nil(t, err)
	out, err := codegen.Generate(lifted, fns, nil)
	require.Nil(t, err)
	return out
}

func write(t *testing.T, m *bytecode.Module) string {
	t.Helper()
	var buf bytes.Buffer
	require.Nil(t, Write(&buf, m))
	return buf.String()
}

func TestWriteModule(t *testing.T) {
	text := write(t, compile(t, fixtures.MyListModule()))

	expected := strings.TrimLeft(`
module 0x42::test (format v8)

struct MyList has drop {
	len: u64
}

struct MyOtherList has drop {
	len: u64
}

public fun len(Arg0: &MyList): u64 {
	var loc1: &u64
	var loc2: u64
B0:
	0: MoveLoc[0](Arg0: &MyList)
	1: ImmBorrowField(MyList.len: u64)
	2: StLoc[1](loc1: &u64)
	3: MoveLoc[1](loc1: &u64)
	4: ReadRef
	5: StLoc[2](loc2: u64)
	6: MoveLoc[2](loc2: u64)
	7: Ret
}
`, "\n")
	require.True(t, strings.HasPrefix(text, expected), text)

	require.Contains(t, text, `
public fun test(Arg0: u64) {
	var loc1: |MyList,MyOtherList| has drop
B0:
	0: PackClosure#4(__lambda__1__test, 0: |MyList,MyOtherList| has drop)
	1: StLoc[1](loc1: |MyList,MyOtherList| has drop)
	2: MoveLoc[1](loc1: |MyList,MyOtherList| has drop)
	3: MoveLoc[0](Arg0: u64)
	4: Call[2](foo)
	5: Ret
}
`)
	require.Contains(t, text, "\t11: CallClosure(|MyList,MyOtherList| has drop)\n")
}

func TestWriteLambda(t *testing.T) {
	text := write(t, compile(t, fixtures.MyListModule()))
	require.True(t, strings.HasSuffix(text, `
lambda fun __lambda__1__test(Arg0: MyList, Arg1: MyOtherList) {
	var loc2: &MyList
	var loc3: u64
	var loc4: &MyOtherList
	var loc5: u64
	var loc6: bool
B0:
	0: ImmBorrowLoc[0](Arg0: MyList)
	1: StLoc[2](loc2: &MyList)
	2: MoveLoc[2](loc2: &MyList)
	3: Call[0](len)
	4: StLoc[3](loc3: u64)
	5: ImmBorrowLoc[1](Arg1: MyOtherList)
	6: StLoc[4](loc4: &MyOtherList)
	7: MoveLoc[4](loc4: &MyOtherList)
	8: Call[1](other_len)
	9: StLoc[5](loc5: u64)
	10: MoveLoc[3](loc3: u64)
	11: MoveLoc[5](loc5: u64)
	12: Add
	13: StLoc[3](loc3: u64)
	14: LdU64(1)
	15: StLoc[5](loc5: u64)
	16: MoveLoc[3](loc3: u64)
	17: MoveLoc[5](loc5: u64)
	18: Eq
	19: StLoc[6](loc6: bool)
	20: MoveLoc[6](loc6: bool)
	21: BrFalse(B2)
B1:
	22: Branch(B3)
B2:
	23: LdU64(1)
	24: StLoc[3](loc3: u64)
	25: MoveLoc[3](loc3: u64)
	26: Abort
B3:
	27: Ret
}
`), text)
}

func TestDisassembleBlocks(t *testing.T) {
	m := compile(t, fixtures.MyListModule())
	fns, err := Disassemble(m)
	require.Nil(t, err)
	require.Len(t, fns, 5)

	lambda := fns[4]
	require.Equal(t, ast.LambdaFunction, lambda.Kind)
	require.Equal(t, "lambda fun __lambda__1__test(Arg0: MyList, Arg1: MyOtherList)", lambda.Signature())
	var starts []int
	for i, b := range lambda.Blocks {
		require.Equal(t, i, b.Label)
		starts = append(starts, b.Instructions[0].Offset)
	}
	require.Equal(t, []int{0, 22, 23, 27}, starts)
	require.Len(t, lambda.Instructions(), 28)

	foo := fns[2]
	require.Equal(t, "fun foo(Arg0: |MyList,MyOtherList| has drop, Arg1: u64)", foo.Signature())
}

func TestRoundTripDisassembly(t *testing.T) {
	for _, m := range []*ast.Module{
		fixtures.MyListModule(),
		fixtures.CaptureModule(),
		fixtures.NestedModule(),
		fixtures.LoopModule(),
		fixtures.BorrowModule(),
		fixtures.TupleModule(),
	} {
		t.Run(m.Name, func(t *testing.T) {
			original := compile(t, m)
			data, err := bytecode.Encode(original)
			require.Nil(t, err)
			decoded, err := bytecode.Decode(data)
			require.Nil(t, err)
			require.Equal(t, write(t, original), write(t, decoded))
		})
	}
}

func TestMultipleResults(t *testing.T) {
	m := &bytecode.Module{Address: "0x1", Name: "m", Version: bytecode.DefaultVersion}
	u64 := bytecode.Type{Kind: bytecode.KindU64}
	sig := m.AddSignature(bytecode.Signature{Results: []bytecode.Type{u64, u64}})
	m.Functions = []bytecode.Function{{
		Name:      "pair",
		Signature: sig,
		Code: bytecode.EncodeCode([]bytecode.Instruction{
			{Op: op.LdU8, Operands: []uint64{7}},
			{Op: op.LdU64, Operands: []uint64{9}},
			{Op: op.Ret},
		}),
	}}
	fns, err := Disassemble(m)
	require.Nil(t, err)
	require.Equal(t, "fun pair(): (u64, u64)", fns[0].Signature())
	require.Equal(t, "LdU8(7)", fns[0].Blocks[0].Instructions[0].Text)
}

func TestDisassembleRejectsBadOperands(t *testing.T) {
	u64 := bytecode.Type{Kind: bytecode.KindU64}
	tests := []struct {
		name  string
		instr bytecode.Instruction
		err   string
	}{
		{"local", bytecode.Instruction{Op: op.MoveLoc, Operands: []uint64{3}}, "local 3 out of range"},
		{"struct", bytecode.Instruction{Op: op.Pack, Operands: []uint64{0}}, "struct 0 out of range"},
		{"function", bytecode.Instruction{Op: op.Call, Operands: []uint64{9}}, "function 9 out of range"},
		{"constant", bytecode.Instruction{Op: op.LdConst, Operands: []uint64{0}}, "constant 0 out of range"},
		{"branch", bytecode.Instruction{Op: op.Branch, Operands: []uint64{bytecode.Placeholder}}, "branch target 4294967295 out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &bytecode.Module{Address: "0x1", Name: "m"}
			sig := m.AddSignature(bytecode.Signature{Params: []bytecode.Type{u64}})
			m.Functions = []bytecode.Function{{
				Name:      "f",
				Signature: sig,
				Locals:    []bytecode.Type{u64},
				Code:      bytecode.EncodeCode([]bytecode.Instruction{tt.instr, {Op: op.Ret}}),
			}}
			_, err := Disassemble(m)
			require.EqualError(t, err, "function f offset 0: "+tt.err)
		})
	}
}

func TestPrint(t *testing.T) {
	saved := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = saved }()

	m := compile(t, fixtures.MyListModule())
	fn, err := DisassembleFunction(m, m.FunctionIndex("len"))
	require.Nil(t, err)

	var buf bytes.Buffer
	Print(fn, &buf)
	result := buf.String()

	require.True(t, strings.HasPrefix(result, "public fun len(Arg0: &MyList): u64\n"), result)
	require.Contains(t, result, "| BLOCK | OFFSET |     OPCODE     | OPERANDS |      INFO       |\n")
	require.Contains(t, result, "| B0    |      0 | MoveLoc        |        0 | Arg0: &MyList   |\n")
	require.Contains(t, result, "|       |      1 | ImmBorrowField |     0, 0 | MyList.len: u64 |\n")
	require.Equal(t, 13, strings.Count(result, "\n"))
}

func TestPrintColors(t *testing.T) {
	saved := color.NoColor
	color.NoColor = false
	defer func() { color.NoColor = saved }()

	m := compile(t, fixtures.MyListModule())
	fn, err := DisassembleFunction(m, m.FunctionIndex("test"))
	require.Nil(t, err)
	var buf bytes.Buffer
	Print(fn, &buf)
	require.Contains(t, buf.String(), color.New(color.FgMagenta).Sprint("__lambda__1__test, 0: "+
		types.Func([]types.Type{fixtures.MyList, fixtures.MyOtherList}, nil, types.NewAbilitySet(types.Drop)).String()))
}
