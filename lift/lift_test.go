package lift

import (
	"testing"

	"github.com/simon-1M/closurec/ast"
	"github.com/simon-1M/closurec/errors"
	"github.com/simon-1M/closurec/internal/fixtures"
	"github.com/simon-1M/closurec/types"
	"github.com/stretchr/testify/require"
)

func functionNames(m *ast.Module) []string {
	names := make([]string, len(m.Functions))
	for i, fn := range m.Functions {
		names[i] = fn.Name
	}
	return names
}

func paramNames(fn *ast.Function) []string {
	names := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		names[i] = p.Name
	}
	return names
}

func countLambdas(m *ast.Module) int {
	count := 0
	for _, fn := range m.Functions {
		ast.Inspect(fn.Body, func(n ast.Node) bool {
			if _, ok := n.(*ast.Lambda); ok {
				count++
			}
			return true
		})
	}
	return count
}

func requireCode(t *testing.T, err error, code errors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.IsFatal(err))
	require.Equal(t, []errors.ErrorCode{code}, errors.Codes(err))
}

func TestLiftMyList(t *testing.T) {
	input := fixtures.MyListModule()
	lifted, err := Lift(input)
	require.NoError(t, err)

	require.Equal(t, []string{"len", "other_len", "foo", "test", "__lambda__1__test"}, functionNames(lifted))
	require.Zero(t, countLambdas(lifted))

	fn, ok := lifted.Function("__lambda__1__test")
	require.True(t, ok)
	require.Equal(t, ast.LambdaFunction, fn.Kind)
	require.Equal(t, []string{"x", "y"}, paramNames(fn))
	require.Empty(t, fn.Results)

	test, _ := lifted.Function("test")
	call, ok := test.Body.(*ast.Call)
	require.True(t, ok)
	pack, ok := call.Args[0].(*ast.PackClosure)
	require.True(t, ok)
	require.Equal(t, "__lambda__1__test", pack.Func)
	require.Empty(t, pack.Captured)
	require.True(t, types.Equal(fixtures.ListClosureType(), pack.Ty))

	// The input keeps its lambda.
	original, _ := input.Function("test")
	_, stillLambda := original.Body.(*ast.Call).Args[0].(*ast.Lambda)
	require.True(t, stillLambda)
	require.Len(t, input.Functions, 4)
}

func TestLiftPrependsCaptures(t *testing.T) {
	lifted, err := Lift(fixtures.CaptureModule())
	require.NoError(t, err)
	require.Equal(t, []string{"apply", "add_offset", "__lambda__1__add_offset"}, functionNames(lifted))

	fn, _ := lifted.Function("__lambda__1__add_offset")
	require.Equal(t, []string{"offset", "x"}, paramNames(fn))
	require.Equal(t, []types.Type{types.U64}, fn.Results)

	addOffset, _ := lifted.Function("add_offset")
	call := addOffset.Body.(*ast.Seq).Exprs[1].(*ast.Call)
	pack := call.Args[0].(*ast.PackClosure)
	require.Len(t, pack.Captured, 1)
	require.Equal(t, "offset", pack.Captured[0].(*ast.Local).Name)
}

func TestLiftNestedLambdas(t *testing.T) {
	lifted, err := Lift(fixtures.NestedModule())
	require.NoError(t, err)
	require.Equal(t, []string{"nested", "__lambda__1__nested", "__lambda__2__nested"}, functionNames(lifted))
	require.Zero(t, countLambdas(lifted))

	outer, _ := lifted.Function("__lambda__1__nested")
	require.Equal(t, []string{"k", "a"}, paramNames(outer))
	var packs []string
	ast.Inspect(outer.Body, func(n ast.Node) bool {
		if p, ok := n.(*ast.PackClosure); ok {
			packs = append(packs, p.Func)
		}
		return true
	})
	require.Equal(t, []string{"__lambda__2__nested"}, packs)

	inner, _ := lifted.Function("__lambda__2__nested")
	require.Equal(t, []string{"k", "b"}, paramNames(inner))
}

func TestLiftIsDeterministic(t *testing.T) {
	first, err := Lift(fixtures.NestedModule())
	require.NoError(t, err)
	second, err := Lift(fixtures.NestedModule())
	require.NoError(t, err)
	require.Equal(t, ast.Format(first), ast.Format(second))
}

func TestLiftWithoutLambdas(t *testing.T) {
	input := fixtures.LoopModule()
	lifted, err := Lift(input)
	require.NoError(t, err)
	require.Equal(t, ast.Format(input), ast.Format(lifted))
}

func lambdaModule(lambda *ast.Lambda, params ...ast.Param) *ast.Module {
	return &ast.Module{
		Address: fixtures.Address,
		Name:    "bad",
		Functions: []*ast.Function{{
			Name:   "f",
			Params: params,
			Body:   fixtures.Let("c", lambda),
		}},
	}
}

func TestLiftRejectsMalformedCaptures(t *testing.T) {
	u64 := types.U64
	tests := []struct {
		name   string
		lambda *ast.Lambda
		code   errors.ErrorCode
	}{
		{
			name: "duplicate capture",
			lambda: &ast.Lambda{
				Captures: []ast.Param{{Name: "a", Type: u64}, {Name: "a", Type: u64}},
				Results:  []types.Type{u64},
				Body:     fixtures.Local("a", u64),
			},
			code: errors.E1001,
		},
		{
			name: "capture shadows parameter",
			lambda: &ast.Lambda{
				Params:   []ast.Param{{Name: "a", Type: u64}},
				Captures: []ast.Param{{Name: "a", Type: u64}},
				Results:  []types.Type{u64},
				Body:     fixtures.Local("a", u64),
			},
			code: errors.E1002,
		},
		{
			name: "free variable",
			lambda: &ast.Lambda{
				Results: []types.Type{u64},
				Body:    fixtures.Local("a", u64),
			},
			code: errors.E1003,
		},
		{
			name: "use before let",
			lambda: &ast.Lambda{
				Results: []types.Type{u64},
				Body: fixtures.Seq(
					fixtures.Let("z", fixtures.Local("y", u64)),
					fixtures.Let("y", fixtures.U64(1)),
					fixtures.Local("y", u64),
				),
			},
			code: errors.E1003,
		},
		{
			name: "let out of scope",
			lambda: &ast.Lambda{
				Results: []types.Type{u64},
				Body: fixtures.Seq(
					&ast.If{
						Cond: &ast.BoolLit{Value: true},
						Then: fixtures.Seq(fixtures.Let("y", fixtures.U64(1)), fixtures.Local("y", u64)),
						Else: fixtures.U64(0),
					},
					fixtures.Local("y", u64),
				),
			},
			code: errors.E1003,
		},
		{
			name: "captured reference",
			lambda: &ast.Lambda{
				Captures: []ast.Param{{Name: "r", Type: types.Ref(u64)}},
				Results:  []types.Type{u64},
				Body:     &ast.Deref{X: fixtures.Local("r", types.Ref(u64))},
			},
			code: errors.E1005,
		},
		{
			name: "assignment to capture",
			lambda: &ast.Lambda{
				Captures: []ast.Param{{Name: "a", Type: u64}},
				Body:     &ast.Assign{Name: "a", Value: fixtures.U64(1)},
			},
			code: errors.E1006,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Lift(lambdaModule(tc.lambda, ast.Param{Name: "a", Type: u64}))
			requireCode(t, err, tc.code)
		})
	}
}

func TestLiftRejectsNameCollision(t *testing.T) {
	m := lambdaModule(&ast.Lambda{Body: fixtures.Seq()})
	m.Functions = append(m.Functions, &ast.Function{Name: Name(1, "f"), Body: fixtures.Seq()})
	_, err := Lift(m)
	requireCode(t, err, errors.E1004)
}

func TestName(t *testing.T) {
	require.Equal(t, "__lambda__3__test", Name(3, "test"))
}
