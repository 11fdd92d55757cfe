package verifier

import (
	"testing"

	"github.com/simon-1M/closurec/ast"
	"github.com/simon-1M/closurec/bytecode"
	"github.com/simon-1M/closurec/codegen"
	"github.com/simon-1M/closurec/compiler"
	"github.com/simon-1M/closurec/errors"
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

func ins(code op.Code, operands ...uint64) bytecode.Instruction {
	return bytecode.Instruction{Op: code, Operands: operands}
}

// patch rewrites the code of the named function.
func patch(t *testing.T, m *bytecode.Module, name string, edit func([]bytecode.Instruction) []bytecode.Instruction) {
	t.Helper()
	i := m.FunctionIndex(name)
	require.GreaterOrEqual(t, i, 0)
	code, err := m.Instructions(i)
	require.Nil(t, err)
	m.Functions[i].Code = bytecode.EncodeCode(edit(code))
}

// define adds a function whose locals are its parameters followed by
// extra.
func define(t *testing.T, m *bytecode.Module, name string, params, results, extra []types.Type, code ...bytecode.Instruction) {
	t.Helper()
	ps, err := m.TypeTags(params)
	require.Nil(t, err)
	rs, err := m.TypeTags(results)
	require.Nil(t, err)
	locals, err := m.TypeTags(append(append([]types.Type(nil), params...), extra...))
	require.Nil(t, err)
	m.Functions = append(m.Functions, bytecode.Function{
		Name:      name,
		Signature: m.AddSignature(bytecode.Signature{Params: ps, Results: rs}),
		Locals:    locals,
		Code:      bytecode.EncodeCode(code),
	})
}

var (
	myList = types.NewStruct("MyList")
	coin   = types.NewStruct("Coin")
)

// handModule has a droppable MyList and a Coin without abilities.
func handModule() *bytecode.Module {
	u64 := bytecode.Type{Kind: bytecode.KindU64}
	return &bytecode.Module{
		Address: "0x42",
		Name:    "hand",
		Version: bytecode.DefaultVersion,
		Structs: []bytecode.Struct{
			{Name: "MyList", Abilities: types.NewAbilitySet(types.Drop), Fields: []bytecode.Field{{Name: "len", Type: u64}}},
			{Name: "Coin", Fields: []bytecode.Field{{Name: "value", Type: u64}}},
		},
	}
}

func requireRule(t *testing.T, err error, rule Rule, offset int) *Error {
	t.Helper()
	require.NotNil(t, err)
	errs := errors.List(err)
	require.Len(t, errs, 1, err.Error())
	verr, ok := errs[0].(*Error)
	require.True(t, ok, "unexpected error %v", errs[0])
	require.Equal(t, rule, verr.Rule, verr.Error())
	require.Equal(t, offset, verr.Offset, verr.Error())
	return verr
}

func TestVerifyCompiledFixtures(t *testing.T) {
	for _, m := range []*ast.Module{
		fixtures.MyListModule(),
		fixtures.CaptureModule(),
		fixtures.NestedModule(),
		fixtures.LoopModule(),
		fixtures.BorrowModule(),
		fixtures.TupleModule(),
	} {
		t.Run(m.Name, func(t *testing.T) {
			require.Nil(t, Verify(compile(t, m)))
		})
	}
}

func TestUseAfterMove(t *testing.T) {
	m := compile(t, fixtures.MyListModule())
	patch(t, m, "len", func(code []bytecode.Instruction) []bytecode.Instruction {
		return append([]bytecode.Instruction{ins(op.MoveLoc, 0)}, code...)
	})
	err := requireRule(t, Verify(m), UseAfterMove, 1)
	require.Equal(t, "len", err.Function)
	require.Equal(t, "0x42::test", err.Module)
	require.Equal(t, []errors.ErrorCode{errors.E3003}, errors.Codes(Verify(m)))
}

func TestUseAfterMoveOnOnePath(t *testing.T) {
	m := handModule()
	define(t, m, "f", []types.Type{types.Bool, myList}, nil, nil,
		ins(op.MoveLoc, 0),
		ins(op.BrFalse, 4),
		ins(op.MoveLoc, 1),
		ins(op.Pop),
		ins(op.MoveLoc, 1),
		ins(op.Pop),
		ins(op.Ret),
	)
	requireRule(t, Verify(m), UseAfterMove, 4)
}

func TestClosureCaptureCountMismatch(t *testing.T) {
	m := compile(t, fixtures.MyListModule())
	patch(t, m, "test", func(code []bytecode.Instruction) []bytecode.Instruction {
		require.Equal(t, op.PackClosure, code[0].Op)
		code[0].Operands[1] = 1
		return code
	})
	requireRule(t, Verify(m), ClosureSignature, 0)
}

func TestClosureOverWrongFunction(t *testing.T) {
	m := compile(t, fixtures.MyListModule())
	patch(t, m, "test", func(code []bytecode.Instruction) []bytecode.Instruction {
		code[0].Operands[0] = uint64(m.FunctionIndex("len"))
		return code
	})
	requireRule(t, Verify(m), ClosureSignature, 0)

	patch(t, m, "test", func(code []bytecode.Instruction) []bytecode.Instruction {
		code[0].Operands[0] = 99
		return code
	})
	requireRule(t, Verify(m), InvalidIndex, 0)
}

func TestClosureCaptureTypeMismatch(t *testing.T) {
	m := compile(t, fixtures.CaptureModule())
	patch(t, m, "add_offset", func(code []bytecode.Instruction) []bytecode.Instruction {
		for i, instr := range code {
			if instr.Op == op.PackClosure {
				// Capture a bool where the lifted function expects a u64.
				code[i-1] = ins(op.LdTrue)
				return code
			}
		}
		t.Fatal("no PackClosure")
		return nil
	})
	requireRule(t, Verify(m), ClosureSignature, indexOf(t, m, "add_offset", op.PackClosure))
}

func TestInvokeSignatureMismatch(t *testing.T) {
	m := compile(t, fixtures.MyListModule())
	lenSig := uint64(m.Functions[m.FunctionIndex("len")].Signature)
	patch(t, m, "foo", func(code []bytecode.Instruction) []bytecode.Instruction {
		require.Equal(t, op.CallClosure, code[11].Op)
		code[11].Operands[0] = lenSig
		return code
	})
	requireRule(t, Verify(m), InvokeSignature, 11)
}

func TestInvokeArgumentMismatch(t *testing.T) {
	m := handModule()
	closure := types.Func([]types.Type{types.U64}, []types.Type{types.U64}, types.NewAbilitySet(types.Drop))
	tag, err := m.TypeTag(closure)
	require.Nil(t, err)
	sig := m.AddSignature(bytecode.Signature{Params: tag.Params, Results: tag.Results, Abilities: tag.Abilities})
	define(t, m, "g", []types.Type{closure}, []types.Type{types.U64}, nil,
		ins(op.LdTrue),
		ins(op.MoveLoc, 0),
		ins(op.CallClosure, uint64(sig)),
		ins(op.Ret),
	)
	requireRule(t, Verify(m), InvokeSignature, 2)
}

func TestInvalidBranch(t *testing.T) {
	m := compile(t, fixtures.MyListModule())
	patch(t, m, "__lambda__1__test", func(code []bytecode.Instruction) []bytecode.Instruction {
		require.Equal(t, op.BrFalse, code[21].Op)
		code[21].Operands[0] = 100
		return code
	})
	requireRule(t, Verify(m), InvalidBranch, 21)
}

func TestFallsOffTheEnd(t *testing.T) {
	m := handModule()
	define(t, m, "f", nil, nil, nil, ins(op.LdTrue), ins(op.Pop))
	requireRule(t, Verify(m), InvalidBranch, 1)
}

func TestUnreachableCode(t *testing.T) {
	m := handModule()
	define(t, m, "f", nil, []types.Type{types.U64}, nil,
		ins(op.LdU64, 1),
		ins(op.Ret),
		ins(op.LdU64, 2),
		ins(op.Ret),
	)
	err := requireRule(t, Verify(m), UnreachableCode, 2)
	require.Contains(t, err.Message, "B1")
}

func TestStackBalance(t *testing.T) {
	tests := []struct {
		name    string
		results []types.Type
		code    []bytecode.Instruction
		offset  int
	}{
		{"value across branch", nil, []bytecode.Instruction{ins(op.LdU64, 1), ins(op.Branch, 2), ins(op.Ret)}, 1},
		{"extra result", nil, []bytecode.Instruction{ins(op.LdU64, 1), ins(op.Ret)}, 1},
		{"missing result", []types.Type{types.U64}, []bytecode.Instruction{ins(op.Ret)}, 0},
		{"underflow", nil, []bytecode.Instruction{ins(op.Pop), ins(op.Ret)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := handModule()
			define(t, m, "f", nil, tt.results, nil, tt.code...)
			requireRule(t, Verify(m), StackBalance, tt.offset)
		})
	}
}

func TestTypeMismatch(t *testing.T) {
	m := handModule()
	define(t, m, "f", nil, []types.Type{types.U64}, nil,
		ins(op.LdU64, 1),
		ins(op.LdTrue),
		ins(op.Add),
		ins(op.Ret),
	)
	requireRule(t, Verify(m), TypeMismatch, 2)
}

func TestCopyRequiresCopyAbility(t *testing.T) {
	m := handModule()
	define(t, m, "f", []types.Type{coin}, []types.Type{coin}, nil,
		ins(op.CopyLoc, 0),
		ins(op.Ret),
	)
	requireRule(t, Verify(m), TypeMismatch, 0)
}

func TestBorrowConflictOnLocal(t *testing.T) {
	m := handModule()
	define(t, m, "f", nil, nil, []types.Type{types.U64, types.MutRef(types.U64)},
		ins(op.LdU64, 1),
		ins(op.StLoc, 0),
		ins(op.MutBorrowLoc, 0),
		ins(op.StLoc, 1),
		ins(op.CopyLoc, 0),
		ins(op.Pop),
		ins(op.MoveLoc, 1),
		ins(op.Pop),
		ins(op.Ret),
	)
	requireRule(t, Verify(m), BorrowConflict, 4)
}

func TestBorrowReleasedBeforeUse(t *testing.T) {
	m := handModule()
	define(t, m, "f", nil, []types.Type{types.U64}, []types.Type{types.U64, types.MutRef(types.U64)},
		ins(op.LdU64, 1),
		ins(op.StLoc, 0),
		ins(op.MutBorrowLoc, 0),
		ins(op.StLoc, 1),
		ins(op.LdU64, 2),
		ins(op.MoveLoc, 1),
		ins(op.WriteRef),
		ins(op.MoveLoc, 0),
		ins(op.Ret),
	)
	require.Nil(t, Verify(m))
}

func TestBorrowConflictOnField(t *testing.T) {
	m := handModule()
	define(t, m, "f", []types.Type{types.MutRef(myList)}, nil,
		[]types.Type{types.Ref(types.U64), types.MutRef(types.U64)},
		ins(op.CopyLoc, 0),
		ins(op.ImmBorrowField, 0, 0),
		ins(op.StLoc, 1),
		ins(op.MoveLoc, 0),
		ins(op.MutBorrowField, 0, 0),
		ins(op.StLoc, 2),
		ins(op.MoveLoc, 1),
		ins(op.Pop),
		ins(op.MoveLoc, 2),
		ins(op.Pop),
		ins(op.Ret),
	)
	requireRule(t, Verify(m), BorrowConflict, 4)
}

func TestBorrowFromParentWhileChildLive(t *testing.T) {
	m := handModule()
	define(t, m, "f", []types.Type{types.MutRef(myList)}, nil,
		[]types.Type{types.MutRef(types.U64)},
		ins(op.CopyLoc, 0),
		ins(op.MutBorrowField, 0, 0),
		ins(op.StLoc, 1),
		ins(op.MoveLoc, 0),
		ins(op.ImmBorrowField, 0, 0),
		ins(op.Pop),
		ins(op.MoveLoc, 1),
		ins(op.Pop),
		ins(op.Ret),
	)
	requireRule(t, Verify(m), BorrowConflict, 4)
}

func TestUnusedResource(t *testing.T) {
	tests := []struct {
		name   string
		code   []bytecode.Instruction
		offset int
	}{
		{"pop", []bytecode.Instruction{ins(op.MoveLoc, 0), ins(op.Pack, 1), ins(op.Pop), ins(op.Ret)}, 2},
		{"ret", []bytecode.Instruction{ins(op.MoveLoc, 0), ins(op.Pack, 1), ins(op.StLoc, 1), ins(op.Ret)}, 3},
		{"overwrite", []bytecode.Instruction{
			ins(op.CopyLoc, 0), ins(op.Pack, 1), ins(op.StLoc, 1),
			ins(op.MoveLoc, 0), ins(op.Pack, 1), ins(op.StLoc, 1),
			ins(op.Ret),
		}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := handModule()
			define(t, m, "f", []types.Type{types.U64}, nil, []types.Type{coin}, tt.code...)
			requireRule(t, Verify(m), UnusedResource, tt.offset)
		})
	}
}

func TestEscapingReference(t *testing.T) {
	m := handModule()
	define(t, m, "f", []types.Type{types.U64}, []types.Type{types.Ref(types.U64)}, nil,
		ins(op.ImmBorrowLoc, 0),
		ins(op.Ret),
	)
	requireRule(t, Verify(m), EscapingReference, 1)
}

func TestReturnParameterDerivedReference(t *testing.T) {
	m := handModule()
	define(t, m, "f", []types.Type{types.Ref(myList)}, []types.Type{types.Ref(types.U64)}, nil,
		ins(op.MoveLoc, 0),
		ins(op.ImmBorrowField, 0, 0),
		ins(op.Ret),
	)
	require.Nil(t, Verify(m))
}

func TestReportsEveryFunction(t *testing.T) {
	m := handModule()
	define(t, m, "a", nil, nil, nil, ins(op.Pop), ins(op.Ret))
	define(t, m, "b", nil, nil, nil, ins(op.LdU64, 1), ins(op.Ret), ins(op.Ret))
	define(t, m, "c", nil, nil, nil, ins(op.Ret))
	err := Verify(m)
	require.Equal(t, []errors.ErrorCode{errors.E3002, errors.E3010}, errors.Codes(err))
	require.Contains(t, err.Error(), "verification failed: StackBalance")
	require.Contains(t, err.Error(), "0x42::hand::b at offset 2")
}

func TestRuleNames(t *testing.T) {
	require.Equal(t, "UseAfterMove", UseAfterMove.String())
	require.Equal(t, "Rule(99)", Rule(99).String())
	e := &Error{Module: "0x1::m", Function: "f", Offset: -1, Rule: InvalidIndex, Message: "bad"}
	require.Equal(t, "verification failed: InvalidIndex: bad (in 0x1::m::f)", e.Error())
	require.Equal(t, errors.E3011, e.ErrorCode())
}

func indexOf(t *testing.T, m *bytecode.Module, name string, code op.Code) int {
	t.Helper()
	instrs, err := m.Instructions(m.FunctionIndex(name))
	require.Nil(t, err)
	for i, instr := range instrs {
		if instr.Op == code {
			return i
		}
	}
	t.Fatalf("%s has no %s", name, code)
	return -1
}
