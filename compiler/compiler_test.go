package compiler

import (
	"testing"

	"github.com/simon-1M/closurec/ast"
	"github.com/simon-1M/closurec/errors"
	"github.com/simon-1M/closurec/internal/fixtures"
	"github.com/simon-1M/closurec/ir"
	"github.com/simon-1M/closurec/lift"
	"github.com/simon-1M/closurec/types"
	"github.com/stretchr/testify/require"
)

func lowered(t *testing.T, m *ast.Module) map[string]*ir.Function {
	t.Helper()
	lifted, err := lift.Lift(m)
	require.Nil(t, err)
	fns, err := CompileModule(lifted)
	require.Nil(t, err)
	byName := map[string]*ir.Function{}
	for _, fn := range fns {
		require.Nil(t, fn.Validate())
		byName[fn.Name] = fn
	}
	return byName
}

func TestLowerLiftedLambda(t *testing.T) {
	fns := lowered(t, fixtures.MyListModule())
	expected := `[variant baseline]
lambda fun 0x42::test::__lambda__1__test($t0|x: MyList, $t1|y: MyOtherList) {
     var $t2: &MyList
     var $t3: u64
     var $t4: &MyOtherList
     var $t5: u64
     var $t6: u64
     var $t7: u64
     var $t8: bool
     var $t9: u64
  L0:
   0: $t2 := borrow_local($t0)
   1: $t3 := len($t2)
   2: $t4 := borrow_local($t1)
   3: $t5 := other_len($t4)
   4: $t6 := +($t3, $t5)
   5: $t7 := 1
   6: $t8 := ==($t6, $t7)
   7: if ($t8) goto L1 else goto L2
  L1:
   8: goto L3
  L2:
   9: $t9 := 1
  10: abort($t9)
  L3:
  11: return ()
}
`
	require.Equal(t, expected, ir.Format(fns["__lambda__1__test"]))
}

func TestLowerClosureSites(t *testing.T) {
	fns := lowered(t, fixtures.MyListModule())
	require.Equal(t, `[variant baseline]
public fun 0x42::test::test($t0|n: u64) {
     var $t1: |MyList,MyOtherList| has drop
  L0:
   0: $t1 := closure __lambda__1__test()
   1: foo($t1, $t0)
   2: return ()
}
`, ir.Format(fns["test"]))

	require.Equal(t, `[variant baseline]
fun 0x42::test::foo($t0|f: |MyList,MyOtherList| has drop, $t1|n: u64) {
     var $t2: MyList
     var $t3: u64
     var $t4: MyOtherList
  L0:
   0: $t2 := pack MyList($t1)
   1: $t3 := 0
   2: $t4 := pack MyOtherList($t3)
   3: invoke $t0($t2, $t4)
   4: return ()
}
`, ir.Format(fns["foo"]))

	require.Equal(t, `[variant baseline]
public fun 0x42::test::len($t0|self: &MyList): u64 {
     var $t1: &u64
     var $t2: u64
  L0:
   0: $t1 := borrow_field<MyList>.len($t0)
   1: $t2 := read_ref($t1)
   2: return $t2
}
`, ir.Format(fns["len"]))
}

func TestLowerCaptures(t *testing.T) {
	fns := lowered(t, fixtures.CaptureModule())
	addOffset := ir.Format(fns["add_offset"])
	require.Contains(t, addOffset, "$t3 := *($t0, $t2)")
	require.Contains(t, addOffset, "$t4 := closure __lambda__1__add_offset($t3)")
	require.Contains(t, addOffset, "$t5 := apply($t4, $t1)")
	require.Contains(t, addOffset, "var $t3|offset: u64")

	apply := ir.Format(fns["apply"])
	require.Contains(t, apply, "$t2 := invoke $t0($t1)")
}

func TestLowerLoop(t *testing.T) {
	fn := lowered(t, fixtures.LoopModule())["sum_to"]
	require.Len(t, fn.Blocks, 7)

	header := fn.Blocks[1]
	preds := fn.Predecessors()
	require.Equal(t, []ir.Label{0, 5}, preds[header.Label])
	for _, b := range fn.Blocks[1:] {
		require.NotEmpty(t, preds[b.Label], "block %s is unreachable", b.Label)
	}

	listing := ir.Format(fn)
	require.Contains(t, listing, "   9: $t4 := false\n")
	require.Contains(t, listing, "  14: $t1 := $t8\n")
	require.Contains(t, listing, "  17: goto L1\n")
	require.Contains(t, listing, "  18: return $t2\n")
}

func TestLowerTuples(t *testing.T) {
	fns := lowered(t, fixtures.TupleModule())
	check := fns["check"]
	require.Contains(t, ir.Format(check), "($t2, $t3) := divmod($t0, $t1)")
	require.Equal(t, "q", check.Temps[2].Name)
	require.Equal(t, "r", check.Temps[3].Name)

	divmod := ir.Format(fns["divmod"])
	require.Contains(t, divmod, "return ($t2, $t3)")
}

func TestLowerBorrows(t *testing.T) {
	fns := lowered(t, fixtures.BorrowModule())
	bump := ir.Format(fns["bump"])
	require.Contains(t, bump, "$t1 := borrow_field_mut<MyList>.len($t0)")
	require.Contains(t, bump, "write_ref($t1, $t4)")

	bumped := ir.Format(fns["bumped"])
	require.Contains(t, bumped, "$t1 := pack MyList($t0)")
	require.Contains(t, bumped, "$t2 := borrow_local_mut($t1)")
	require.Contains(t, bumped, "bump($t2)")
	require.Contains(t, bumped, "$t3 := borrow_local($t1)")
}

func TestOperandSnapshotsOverwrittenLocal(t *testing.T) {
	fns := lowered(t, fixtures.OperandModule())
	text := ir.Format(fns["later_write"])
	require.Contains(t, text, "   0: $t1 := $t0\n")
	require.Contains(t, text, "$t3 := +($t1, $t0)")

	// Reads with no later write use the local directly.
	text = ir.Format(fns["peek_self"])
	require.Contains(t, text, "peek($t1, $t0)")
}

func TestUnreachableCodeIsPruned(t *testing.T) {
	m := &ast.Module{Address: fixtures.Address, Name: "m"}
	fn := &ast.Function{
		Name:    "early",
		Results: []types.Type{types.U64},
		Body: fixtures.Seq(
			&ast.Return{Values: []ast.Expr{fixtures.U64(1)}},
			fixtures.Bin(ast.Add, fixtures.U64(2), fixtures.U64(3)),
		),
	}
	m.Functions = []*ast.Function{fn}
	out, err := Compile(m, fn, nil)
	require.Nil(t, err)
	require.Len(t, out.Blocks, 1)
	require.Len(t, out.Temps, 1)
	require.Contains(t, ir.Format(out), "  L0:\n   0: $t0 := 1\n   1: return $t0\n}\n")
}

func TestLowerIfWithoutFallthrough(t *testing.T) {
	m := &ast.Module{Address: fixtures.Address, Name: "m"}
	fn := &ast.Function{
		Name:    "pick",
		Params:  []ast.Param{{Name: "c", Type: types.Bool}},
		Results: []types.Type{types.U64},
		Body: &ast.If{
			Cond: fixtures.Local("c", types.Bool),
			Then: &ast.Return{Values: []ast.Expr{fixtures.U64(1)}},
			Else: &ast.Abort{Code: fixtures.U64(2)},
		},
	}
	m.Functions = []*ast.Function{fn}
	out, err := Compile(m, fn, nil)
	require.Nil(t, err)
	require.Len(t, out.Blocks, 3)
	require.IsType(t, &ir.Return{}, out.Blocks[1].Terminator())
	require.IsType(t, &ir.Abort{}, out.Blocks[2].Terminator())
}

func TestCompileErrors(t *testing.T) {
	u64 := types.U64
	tests := []struct {
		name string
		body ast.Expr
		code errors.ErrorCode
		msg  string
	}{
		{
			name: "undefined local",
			body: fixtures.Local("missing", u64),
			code: errors.E2002,
			msg:  "compile error: undefined local \"missing\"\n\nlocation: 0x42::m::f",
		},
		{
			name: "undefined function",
			body: &ast.Call{Func: "nope", Results: []types.Type{u64}},
			code: errors.E2003,
			msg:  "compile error: undefined function \"nope\"\n\nlocation: 0x42::m::f",
		},
		{
			name: "call arity",
			body: &ast.Call{Func: "f", Args: []ast.Expr{fixtures.U64(1)}, Results: []types.Type{u64}},
			code: errors.E2006,
			msg:  "compile error: function f takes 0 arguments but 1 were given\n\nlocation: 0x42::m::f",
		},
		{
			name: "undefined struct",
			body: &ast.Pack{Struct: "Nope"},
			code: errors.E2004,
			msg:  "compile error: undefined struct \"Nope\"\n\nlocation: 0x42::m::f",
		},
		{
			name: "deref of a value",
			body: &ast.Deref{X: fixtures.U64(1)},
			code: errors.E2007,
			msg:  "compile error: expected a reference, found u64\n\nlocation: 0x42::m::f",
		},
		{
			name: "invoke of a value",
			body: &ast.Invoke{Closure: fixtures.U64(1)},
			code: errors.E2008,
			msg:  "compile error: cannot invoke a value of type u64\n\nlocation: 0x42::m::f",
		},
		{
			name: "unlifted lambda",
			body: &ast.Lambda{Results: []types.Type{u64}, Body: fixtures.U64(1)},
			code: errors.E2001,
			msg:  "compile error: lambda literal must be lifted before lowering\n\nlocation: 0x42::m::f",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fn := &ast.Function{Name: "f", Results: []types.Type{u64}, Body: tc.body}
			m := &ast.Module{Address: fixtures.Address, Name: "m", Functions: []*ast.Function{fn}}
			_, err := Compile(m, fn, nil)
			require.NotNil(t, err)
			require.Equal(t, tc.msg, err.Error())
			require.Equal(t, []errors.ErrorCode{tc.code}, errors.Codes(err))
		})
	}
}

func TestCompileModuleCollectsErrors(t *testing.T) {
	m := &ast.Module{
		Address: fixtures.Address,
		Name:    "m",
		Functions: []*ast.Function{
			{Name: "a", Results: []types.Type{types.U64}, Body: fixtures.Local("x", types.U64)},
			{Name: "b", Results: []types.Type{types.U64}, Body: fixtures.U64(1)},
			{Name: "c", Body: &ast.Call{Func: "missing"}},
		},
	}
	fns, err := CompileModule(m)
	require.Nil(t, fns)
	require.Equal(t, []errors.ErrorCode{errors.E2002, errors.E2003}, errors.Codes(err))
}

func TestCompileModuleRequiresLifting(t *testing.T) {
	_, err := CompileModule(fixtures.MyListModule())
	require.Equal(t, []errors.ErrorCode{errors.E2001}, errors.Codes(err))
}
