// Package fixtures builds typed models shared by tests across the
// pipeline's packages.
package fixtures

import (
	"github.com/simon-1M/closurec/ast"
	"github.com/simon-1M/closurec/types"
)

// Address is the account address every fixture module lives at.
const Address = "0x42"

var (
	MyList      = types.NewStruct("MyList")
	MyOtherList = types.NewStruct("MyOtherList")
	dropOnly    = types.NewAbilitySet(types.Drop)
)

func U64(v uint64) *ast.IntLit {
	return &ast.IntLit{Value: v, Ty: types.U64}
}

func Local(name string, ty types.Type) *ast.Local {
	return &ast.Local{Name: name, Ty: ty}
}

func Let(name string, value ast.Expr) *ast.Let {
	return &ast.Let{Names: []string{name}, Types: []types.Type{value.Type()}, Value: value}
}

func Bin(op ast.BinaryOp, x, y ast.Expr) *ast.Binary {
	return &ast.Binary{Op: op, X: x, Y: y}
}

func Seq(exprs ...ast.Expr) *ast.Seq {
	return &ast.Seq{Exprs: exprs}
}

func listStructs() []*ast.StructDef {
	return []*ast.StructDef{
		{Name: "MyList", Abilities: dropOnly, Fields: []ast.Field{{Name: "len", Type: types.U64}}},
		{Name: "MyOtherList", Abilities: dropOnly, Fields: []ast.Field{{Name: "len", Type: types.U64}}},
	}
}

// accessor returns `public fun name(self: &S): u64 { self.len }`.
func accessor(name string, s *types.Struct) *ast.Function {
	self := Local("self", types.Ref(s))
	return &ast.Function{
		Name:    name,
		Kind:    ast.Public,
		Params:  []ast.Param{{Name: "self", Type: types.Ref(s)}},
		Results: []types.Type{types.U64},
		Body:    &ast.Select{Base: self, Struct: s.Name, Field: "len", Ty: types.U64},
	}
}

// ListClosureType is |MyList,MyOtherList| has drop.
func ListClosureType() *types.Function {
	return types.Func([]types.Type{MyList, MyOtherList}, nil, dropOnly)
}

// MyListModule is the canonical lambda scenario:
//
//	module 0x42::test {
//	    struct MyList has drop { len: u64 }
//	    struct MyOtherList has drop { len: u64 }
//	    public fun len(self: &MyList): u64 { self.len }
//	    public fun other_len(self: &MyOtherList): u64 { self.len }
//	    fun foo(f: |MyList,MyOtherList| has drop, n: u64) {
//	        f(MyList { len: n }, MyOtherList { len: 0 })
//	    }
//	    public fun test(n: u64) {
//	        foo(|x, y| assert!(x.len() + y.len() == 1, 1), n)
//	    }
//	}
func MyListModule() *ast.Module {
	fType := ListClosureType()
	foo := &ast.Function{
		Name:   "foo",
		Kind:   ast.Private,
		Params: []ast.Param{{Name: "f", Type: fType}, {Name: "n", Type: types.U64}},
		Body: &ast.Invoke{
			Closure: Local("f", fType),
			Args: []ast.Expr{
				&ast.Pack{Struct: "MyList", Fields: []ast.Expr{Local("n", types.U64)}},
				&ast.Pack{Struct: "MyOtherList", Fields: []ast.Expr{U64(0)}},
			},
		},
	}
	x := Local("x", MyList)
	y := Local("y", MyOtherList)
	sum := Bin(ast.Add,
		&ast.Call{Func: "len", Args: []ast.Expr{&ast.Borrow{X: x}}, Results: []types.Type{types.U64}},
		&ast.Call{Func: "other_len", Args: []ast.Expr{&ast.Borrow{X: y}}, Results: []types.Type{types.U64}},
	)
	lambda := &ast.Lambda{
		Params:    []ast.Param{{Name: "x", Type: MyList}, {Name: "y", Type: MyOtherList}},
		Abilities: dropOnly,
		Body: &ast.If{
			Cond: Bin(ast.Eq, sum, U64(1)),
			Then: Seq(),
			Else: &ast.Abort{Code: U64(1)},
		},
	}
	test := &ast.Function{
		Name:   "test",
		Kind:   ast.Public,
		Params: []ast.Param{{Name: "n", Type: types.U64}},
		Body: &ast.Call{
			Func: "foo",
			Args: []ast.Expr{lambda, Local("n", types.U64)},
		},
	}
	return &ast.Module{
		Address: Address,
		Name:    "test",
		Structs: listStructs(),
		Functions: []*ast.Function{
			accessor("len", MyList),
			accessor("other_len", MyOtherList),
			foo,
			test,
		},
	}
}

// OffsetClosureType is |u64| -> u64 has drop.
func OffsetClosureType() *types.Function {
	return types.Func([]types.Type{types.U64}, []types.Type{types.U64}, dropOnly)
}

// CaptureModule exercises captured locals:
//
//	module 0x42::capture {
//	    fun apply(f: |u64| -> u64 has drop, v: u64): u64 { f(v) }
//	    public fun add_offset(base: u64, v: u64): u64 {
//	        let offset = base * 2;
//	        apply(|x| x + offset, v)
//	    }
//	}
func CaptureModule() *ast.Module {
	fType := OffsetClosureType()
	apply := &ast.Function{
		Name:    "apply",
		Params:  []ast.Param{{Name: "f", Type: fType}, {Name: "v", Type: types.U64}},
		Results: []types.Type{types.U64},
		Body:    &ast.Invoke{Closure: Local("f", fType), Args: []ast.Expr{Local("v", types.U64)}},
	}
	lambda := &ast.Lambda{
		Params:    []ast.Param{{Name: "x", Type: types.U64}},
		Captures:  []ast.Param{{Name: "offset", Type: types.U64}},
		Results:   []types.Type{types.U64},
		Abilities: dropOnly,
		Body:      Bin(ast.Add, Local("x", types.U64), Local("offset", types.U64)),
	}
	addOffset := &ast.Function{
		Name:    "add_offset",
		Kind:    ast.Public,
		Params:  []ast.Param{{Name: "base", Type: types.U64}, {Name: "v", Type: types.U64}},
		Results: []types.Type{types.U64},
		Body: Seq(
			Let("offset", Bin(ast.Mul, Local("base", types.U64), U64(2))),
			&ast.Call{
				Func:    "apply",
				Args:    []ast.Expr{lambda, Local("v", types.U64)},
				Results: []types.Type{types.U64},
			},
		),
	}
	return &ast.Module{
		Address:   Address,
		Name:      "capture",
		Functions: []*ast.Function{apply, addOffset},
	}
}

// NestedModule holds a lambda whose body contains another lambda:
//
//	module 0x42::nested {
//	    public fun nested(k: u64): u64 {
//	        let outer = |a| { let inner = |b| b + k; inner(a) + k };
//	        outer(1)
//	    }
//	}
func NestedModule() *ast.Module {
	fType := OffsetClosureType()
	k := Local("k", types.U64)
	inner := &ast.Lambda{
		Params:    []ast.Param{{Name: "b", Type: types.U64}},
		Captures:  []ast.Param{{Name: "k", Type: types.U64}},
		Results:   []types.Type{types.U64},
		Abilities: dropOnly,
		Body:      Bin(ast.Add, Local("b", types.U64), k),
	}
	outer := &ast.Lambda{
		Params:    []ast.Param{{Name: "a", Type: types.U64}},
		Captures:  []ast.Param{{Name: "k", Type: types.U64}},
		Results:   []types.Type{types.U64},
		Abilities: dropOnly,
		Body: Seq(
			Let("inner", inner),
			Bin(ast.Add,
				&ast.Invoke{Closure: Local("inner", fType), Args: []ast.Expr{Local("a", types.U64)}},
				k,
			),
		),
	}
	fn := &ast.Function{
		Name:    "nested",
		Kind:    ast.Public,
		Params:  []ast.Param{{Name: "k", Type: types.U64}},
		Results: []types.Type{types.U64},
		Body: Seq(
			Let("outer", outer),
			&ast.Invoke{Closure: Local("outer", fType), Args: []ast.Expr{U64(1)}},
		),
	}
	return &ast.Module{Address: Address, Name: "nested", Functions: []*ast.Function{fn}}
}

// LoopModule has a back edge and short-circuit conditions:
//
//	module 0x42::loops {
//	    public fun sum_to(n: u64): u64 {
//	        let i = 0; let s = 0;
//	        while (i < n && s < 1000) { i = i + 1; s = s + i };
//	        s
//	    }
//	}
func LoopModule() *ast.Module {
	i := Local("i", types.U64)
	s := Local("s", types.U64)
	n := Local("n", types.U64)
	fn := &ast.Function{
		Name:    "sum_to",
		Kind:    ast.Public,
		Params:  []ast.Param{{Name: "n", Type: types.U64}},
		Results: []types.Type{types.U64},
		Body: Seq(
			Let("i", U64(0)),
			Let("s", U64(0)),
			&ast.While{
				Cond: Bin(ast.And, Bin(ast.Lt, i, n), Bin(ast.Lt, s, U64(1000))),
				Body: Seq(
					&ast.Assign{Name: "i", Value: Bin(ast.Add, i, U64(1))},
					&ast.Assign{Name: "s", Value: Bin(ast.Add, s, i)},
				),
			},
			s,
		),
	}
	return &ast.Module{Address: Address, Name: "loops", Functions: []*ast.Function{fn}}
}

// BorrowModule mutates a struct through a mutable reference:
//
//	module 0x42::borrow {
//	    struct MyList has drop { len: u64 }
//	    struct MyOtherList has drop { len: u64 }
//	    fun bump(l: &mut MyList) { let r = &mut l.len; *r = *r + 1 }
//	    public fun bumped(v: u64): u64 {
//	        let l = MyList { len: v };
//	        bump(&mut l);
//	        let r = &l;
//	        r.len
//	    }
//	}
func BorrowModule() *ast.Module {
	mutList := types.MutRef(MyList)
	l := Local("l", mutList)
	r := Local("r", types.MutRef(types.U64))
	bump := &ast.Function{
		Name:   "bump",
		Params: []ast.Param{{Name: "l", Type: mutList}},
		Body: Seq(
			Let("r", &ast.Borrow{Mutable: true, X: &ast.Select{Base: l, Struct: "MyList", Field: "len", Ty: types.U64}}),
			&ast.WriteRef{Ref: r, Value: Bin(ast.Add, &ast.Deref{X: r}, U64(1))},
		),
	}
	list := Local("l", MyList)
	ref := Local("r", types.Ref(MyList))
	bumped := &ast.Function{
		Name:    "bumped",
		Kind:    ast.Public,
		Params:  []ast.Param{{Name: "v", Type: types.U64}},
		Results: []types.Type{types.U64},
		Body: Seq(
			Let("l", &ast.Pack{Struct: "MyList", Fields: []ast.Expr{Local("v", types.U64)}}),
			&ast.Call{Func: "bump", Args: []ast.Expr{&ast.Borrow{Mutable: true, X: list}}},
			Let("r", &ast.Borrow{X: list}),
			&ast.Select{Base: ref, Struct: "MyList", Field: "len", Ty: types.U64},
		),
	}
	return &ast.Module{
		Address:   Address,
		Name:      "borrow",
		Structs:   listStructs(),
		Functions: []*ast.Function{bump, bumped},
	}
}

// TupleModule returns and destructures multiple values:
//
//	module 0x42::tuples {
//	    fun divmod(a: u64, b: u64): (u64, u64) { return (a / b, a % b) }
//	    public fun check(a: u64, b: u64): bool {
//	        let (q, r) = divmod(a, b);
//	        q * b + r == a || !(b > 0)
//	    }
//	}
func TupleModule() *ast.Module {
	a := Local("a", types.U64)
	b := Local("b", types.U64)
	divmod := &ast.Function{
		Name:    "divmod",
		Params:  []ast.Param{{Name: "a", Type: types.U64}, {Name: "b", Type: types.U64}},
		Results: []types.Type{types.U64, types.U64},
		Body:    &ast.Return{Values: []ast.Expr{Bin(ast.Div, a, b), Bin(ast.Mod, a, b)}},
	}
	check := &ast.Function{
		Name:    "check",
		Kind:    ast.Public,
		Params:  []ast.Param{{Name: "a", Type: types.U64}, {Name: "b", Type: types.U64}},
		Results: []types.Type{types.Bool},
		Body: Seq(
			&ast.Let{
				Names: []string{"q", "r"},
				Types: []types.Type{types.U64, types.U64},
				Value: &ast.Call{Func: "divmod", Args: []ast.Expr{a, b}, Results: []types.Type{types.U64, types.U64}},
			},
			Bin(ast.Or,
				Bin(ast.Eq, Bin(ast.Add, Bin(ast.Mul, Local("q", types.U64), b), Local("r", types.U64)), a),
				&ast.Unary{Op: ast.Not, X: Bin(ast.Gt, b, U64(0))},
			),
		),
	}
	return &ast.Module{Address: Address, Name: "tuples", Functions: []*ast.Function{divmod, check}}
}

// OperandModule reads locals next to writes and borrows of them:
//
//	module 0x42::operands {
//	    public fun later_write(a: u64): u64 { a + { a = 5; a } }
//	    public fun twice(a: u64): u64 { let r = &a; let b = a; let c = *r; b + c }
//	    fun peek(r: &u64, v: u64): u64 { *r + v }
//	    public fun peek_self(a: u64): u64 { peek(&a, a) }
//	}
func OperandModule() *ast.Module {
	a := Local("a", types.U64)
	r := Local("r", types.Ref(types.U64))
	laterWrite := &ast.Function{
		Name:    "later_write",
		Kind:    ast.Public,
		Params:  []ast.Param{{Name: "a", Type: types.U64}},
		Results: []types.Type{types.U64},
		Body:    Bin(ast.Add, a, Seq(&ast.Assign{Name: "a", Value: U64(5)}, a)),
	}
	twice := &ast.Function{
		Name:    "twice",
		Kind:    ast.Public,
		Params:  []ast.Param{{Name: "a", Type: types.U64}},
		Results: []types.Type{types.U64},
		Body: Seq(
			Let("r", &ast.Borrow{X: a}),
			Let("b", a),
			Let("c", &ast.Deref{X: r}),
			Bin(ast.Add, Local("b", types.U64), Local("c", types.U64)),
		),
	}
	peek := &ast.Function{
		Name:    "peek",
		Params:  []ast.Param{{Name: "r", Type: types.Ref(types.U64)}, {Name: "v", Type: types.U64}},
		Results: []types.Type{types.U64},
		Body:    Bin(ast.Add, &ast.Deref{X: r}, Local("v", types.U64)),
	}
	peekSelf := &ast.Function{
		Name:    "peek_self",
		Kind:    ast.Public,
		Params:  []ast.Param{{Name: "a", Type: types.U64}},
		Results: []types.Type{types.U64},
		Body: &ast.Call{
			Func:    "peek",
			Args:    []ast.Expr{&ast.Borrow{X: a}, a},
			Results: []types.Type{types.U64},
		},
	}
	return &ast.Module{
		Address:   Address,
		Name:      "operands",
		Functions: []*ast.Function{laterWrite, twice, peek, peekSelf},
	}
}
