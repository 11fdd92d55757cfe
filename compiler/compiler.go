// Package compiler lowers typed function bodies into the three-address form
// defined by package ir.
//
// # Lowering Strategy
//
// Each expression is compiled into the temporaries that hold its value(s):
// none for unit, one for ordinary values, several for calls returning
// tuples. Locals and parameters are already temporaries, so reading one
// emits nothing; every other intermediate value is materialized into a fresh
// temporary exactly once.
//
// Structured control flow becomes explicit blocks:
//
//	if (c) a else b     CondBranch c -> then, else; both jump to a join block
//	while (c) body      header: CondBranch c -> body, exit; body jumps back
//	a && b              CondBranch a -> rhs, short; short loads false
//	return / abort      terminate the block; following code is unreachable
//
// Blocks that end up unreachable from the entry are pruned once the body is
// complete, so every block of the result is reachable and terminated.
//
// # Signatures
//
// Functions of a module are lowered independently. The only shared state is
// a read-only SignatureTable describing every function of the module,
// including the lifted lambdas, which lets callers lower functions in
// parallel.
package compiler

import (
	"math"

	"github.com/simon-1M/closurec/ast"
	"github.com/simon-1M/closurec/errors"
	"github.com/simon-1M/closurec/ir"
	"github.com/simon-1M/closurec/types"
)

// MaxTemps is the maximum number of temporaries a function may declare.
const MaxTemps = math.MaxUint16

// SignatureTable maps function names to their signatures.
type SignatureTable map[string]*types.Function

// Signatures returns the signature table of every function in m.
func Signatures(m *ast.Module) SignatureTable {
	sigs := make(SignatureTable, len(m.Functions))
	for _, fn := range m.Functions {
		sigs[fn.Name] = fn.Signature()
	}
	return sigs
}

// Compiler lowers a single function. A Compiler is not reusable.
type Compiler struct {
	module *ast.Module
	fn     *ast.Function
	sigs   SignatureTable
	code   *Code

	// Set on an error raised where propagation would be awkward.
	failure error
}

// Compile lowers fn, a function of m. Pass nil for sigs to derive the
// signature table from m. Calls to lambdas are lowered only after lifting;
// a remaining lambda literal is reported as an error.
func Compile(m *ast.Module, fn *ast.Function, sigs SignatureTable) (*ir.Function, error) {
	if sigs == nil {
		sigs = Signatures(m)
	}
	c := &Compiler{module: m, fn: fn, sigs: sigs}
	return c.compileFunction()
}

// CompileModule lowers every function of m. All failures are collected into
// a single report; no functions are returned when any of them failed.
func CompileModule(m *ast.Module) ([]*ir.Function, error) {
	sigs := Signatures(m)
	var report error
	fns := make([]*ir.Function, 0, len(m.Functions))
	for _, fn := range m.Functions {
		out, err := Compile(m, fn, sigs)
		if err != nil {
			report = errors.Append(report, err)
			continue
		}
		fns = append(fns, out)
	}
	if report != nil {
		return nil, report
	}
	return fns, nil
}

func (c *Compiler) compileFunction() (*ir.Function, error) {
	out := &ir.Function{
		Module:    c.module.QualifiedName(),
		Name:      c.fn.Name,
		Kind:      c.fn.Kind,
		NumParams: len(c.fn.Params),
		Results:   c.fn.Results,
	}
	c.code = newCode(out)
	for _, p := range c.fn.Params {
		t := c.code.newTemp(p.Type, p.Name)
		c.code.symbols.locals[p.Name] = t
	}
	values, err := c.compile(c.fn.Body)
	if err != nil {
		return nil, err
	}
	if !c.code.dead {
		if len(values) != len(c.fn.Results) {
			return nil, c.errorf(errors.E2006, "body produces %d values but %d results are declared",
				len(values), len(c.fn.Results))
		}
		c.code.terminate(&ir.Return{Values: append([]int(nil), values...)})
	}
	if c.failure != nil {
		return nil, c.failure
	}
	c.code.prune()
	if err := out.Validate(); err != nil {
		return nil, errors.Internalf(errors.E2001, c.module.QualifiedName(), c.fn.Name, "%s", err.Error())
	}
	return out, nil
}

func (c *Compiler) errorf(code errors.ErrorCode, format string, args ...any) error {
	return errors.Errorf(code, c.module.QualifiedName(), c.fn.Name, format, args...)
}

func (c *Compiler) newTemp(t types.Type) int {
	if len(c.code.fn.Temps) >= MaxTemps && c.failure == nil {
		c.failure = c.errorf(errors.E2009, "function declares more than %d temporaries", MaxTemps)
	}
	return c.code.newTemp(t, "")
}

func (c *Compiler) newTemps(ts []types.Type) []int {
	out := make([]int, len(ts))
	for i, t := range ts {
		out[i] = c.newTemp(t)
	}
	return out
}

// compile lowers e and returns the temporaries holding its values.
func (c *Compiler) compile(e ast.Expr) ([]int, error) {
	switch e := e.(type) {
	case *ast.IntLit:
		return c.compileConst(ir.Const{Type: e.Ty, Int: e.Value})
	case *ast.BoolLit:
		return c.compileConst(ir.Const{Type: types.Bool, Bool: e.Value})
	case *ast.AddressLit:
		return c.compileConst(ir.Const{Type: types.Address, Address: e.Value})
	case *ast.Local:
		t, ok := c.code.symbols.lookup(e.Name)
		if !ok {
			return nil, c.errorf(errors.E2002, "undefined local %q", e.Name)
		}
		return []int{t}, nil
	case *ast.Let:
		return nil, c.compileLet(e)
	case *ast.Assign:
		return nil, c.compileAssign(e)
	case *ast.Seq:
		return c.compileSeq(e)
	case *ast.If:
		return c.compileIf(e)
	case *ast.While:
		return nil, c.compileWhile(e)
	case *ast.Return:
		return nil, c.compileReturn(e)
	case *ast.Abort:
		code, err := c.value(e.Code)
		if err != nil {
			return nil, err
		}
		c.code.terminate(&ir.Abort{Code: code})
		return nil, nil
	case *ast.Binary:
		return c.compileBinary(e)
	case *ast.Unary:
		x, err := c.value(e.X)
		if err != nil {
			return nil, err
		}
		dst := c.newTemp(types.Bool)
		c.code.emit(&ir.UnaryOp{Op: e.Op, Dst: dst, X: x})
		return []int{dst}, nil
	case *ast.Borrow:
		return c.compileBorrow(e)
	case *ast.Select:
		return c.compileSelect(e)
	case *ast.Deref:
		ref, err := c.reference(e.X, false)
		if err != nil {
			return nil, err
		}
		dst := c.newTemp(e.Type())
		c.code.emit(&ir.ReadRef{Dst: dst, Ref: ref})
		return []int{dst}, nil
	case *ast.WriteRef:
		ref, err := c.reference(e.Ref, true)
		if err != nil {
			return nil, err
		}
		ref = c.snapshot(ref, e.Value)
		value, err := c.value(e.Value)
		if err != nil {
			return nil, err
		}
		c.code.emit(&ir.WriteRef{Ref: ref, Value: value})
		return nil, nil
	case *ast.Pack:
		return c.compilePack(e)
	case *ast.Call:
		return c.compileCall(e)
	case *ast.Invoke:
		return c.compileInvoke(e)
	case *ast.PackClosure:
		return c.compilePackClosure(e)
	case *ast.Lambda:
		return nil, c.errorf(errors.E2001, "lambda literal must be lifted before lowering")
	}
	return nil, c.errorf(errors.E2001, "unsupported expression %T", e)
}

// value lowers an expression that must produce exactly one value. In dead
// code a placeholder temporary stands in; the block will be pruned.
func (c *Compiler) value(e ast.Expr) (int, error) {
	vs, err := c.values(e, 1)
	if err != nil {
		return 0, err
	}
	return vs[0], nil
}

func (c *Compiler) values(e ast.Expr, n int) ([]int, error) {
	vs, err := c.compile(e)
	if err != nil {
		return nil, err
	}
	if len(vs) == n {
		return vs, nil
	}
	if c.code.dead {
		ts := types.Flatten(e.Type())
		if len(ts) != n {
			ts = make([]types.Type, n)
			for i := range ts {
				ts[i] = types.U64
			}
		}
		return c.newTemps(ts), nil
	}
	return nil, c.errorf(errors.E2006, "expected %d values from %s, got %d", n, e, len(vs))
}

// list lowers es left to right, one value each. A local read by an earlier
// operand is snapshotted when a later operand may overwrite it, so every
// operand sees the value current at its own evaluation.
func (c *Compiler) list(es []ast.Expr) ([]int, error) {
	out := make([]int, 0, len(es))
	for i, e := range es {
		v, err := c.value(e)
		if err != nil {
			return nil, err
		}
		out = append(out, c.snapshot(v, es[i+1:]...))
	}
	return out, nil
}

// snapshot returns v, or a copy of it when v is a local that one of later
// writes or borrows mutably.
func (c *Compiler) snapshot(v int, later ...ast.Expr) int {
	if c.code.dead || !c.code.isNamed(v) || !writesLocal(c.code.fn.Temps[v].Name, later) {
		return v
	}
	dst := c.newTemp(c.code.fn.Temps[v].Type)
	c.code.emit(&ir.Assign{Dst: dst, Src: v})
	return dst
}

// writesLocal reports whether any of es assigns name or takes a mutable
// reference into it.
func writesLocal(name string, es []ast.Expr) bool {
	found := false
	for _, e := range es {
		ast.Inspect(e, func(n ast.Node) bool {
			switch n := n.(type) {
			case *ast.Assign:
				found = found || n.Name == name
			case *ast.Borrow:
				found = found || n.Mutable && rootLocal(n.X) == name
			}
			return !found
		})
	}
	return found
}

// rootLocal returns the local a borrow path starts from, or "".
func rootLocal(e ast.Expr) string {
	for {
		switch x := e.(type) {
		case *ast.Local:
			return x.Name
		case *ast.Select:
			e = x.Base
		default:
			return ""
		}
	}
}

func (c *Compiler) compileConst(k ir.Const) ([]int, error) {
	dst := c.newTemp(k.Type)
	c.code.emit(&ir.LoadConst{Dst: dst, Value: k})
	return []int{dst}, nil
}

func (c *Compiler) compileLet(e *ast.Let) error {
	if len(e.Names) != len(e.Types) {
		return c.errorf(errors.E2006, "let binds %d names with %d types", len(e.Names), len(e.Types))
	}
	vs, err := c.values(e.Value, len(e.Names))
	if err != nil {
		return err
	}
	for i, name := range e.Names {
		v := vs[i]
		if !c.code.isNamed(v) {
			// A fresh temporary simply takes the local's name.
			c.code.fn.Temps[v].Name = name
			c.code.symbols.locals[name] = v
			continue
		}
		dst := c.code.newTemp(e.Types[i], name)
		c.code.emit(&ir.Assign{Dst: dst, Src: v})
		c.code.symbols.locals[name] = dst
	}
	return nil
}

func (c *Compiler) compileAssign(e *ast.Assign) error {
	dst, ok := c.code.symbols.lookup(e.Name)
	if !ok {
		return c.errorf(errors.E2002, "assignment to undefined local %q", e.Name)
	}
	v, err := c.value(e.Value)
	if err != nil {
		return err
	}
	c.code.emit(&ir.Assign{Dst: dst, Src: v})
	return nil
}

func (c *Compiler) compileSeq(e *ast.Seq) ([]int, error) {
	c.code.enterScope()
	defer c.code.leaveScope()
	var last []int
	for i, x := range e.Exprs {
		vs, err := c.compile(x)
		if err != nil {
			return nil, err
		}
		if c.code.dead && i < len(e.Exprs)-1 {
			// The rest of the sequence can never run.
			return nil, nil
		}
		last = vs
	}
	return last, nil
}

// branchResults moves vs into the shared result temporaries of a
// conditional and jumps to join.
func (c *Compiler) branchResults(vs, results []int, join *ir.Label) error {
	if c.code.dead {
		return nil
	}
	if len(vs) != len(results) {
		return c.errorf(errors.E2006, "branch produces %d values but %d are expected", len(vs), len(results))
	}
	for i, v := range vs {
		c.code.emit(&ir.Assign{Dst: results[i], Src: v})
	}
	c.code.branchTo(join)
	return nil
}

func (c *Compiler) enterBranch(l ir.Label) {
	c.code.setBlock(l)
	c.code.enterScope()
}

func (c *Compiler) compileIf(e *ast.If) ([]int, error) {
	cond, err := c.value(e.Cond)
	if err != nil {
		return nil, err
	}
	var results []int
	if e.Else != nil {
		results = c.newTemps(types.Flatten(e.Type()))
	}
	join := ir.Label(-1)
	thenL := c.code.newBlock()
	var elseL ir.Label
	if e.Else != nil {
		elseL = c.code.newBlock()
	} else {
		join = c.code.newBlock()
		elseL = join
	}
	c.code.terminate(&ir.CondBranch{Cond: cond, Then: thenL, Else: elseL})

	c.enterBranch(thenL)
	vs, err := c.compile(e.Then)
	c.code.leaveScope()
	if err != nil {
		return nil, err
	}
	if e.Else == nil {
		vs = nil
	}
	if err := c.branchResults(vs, results, &join); err != nil {
		return nil, err
	}
	if e.Else != nil {
		c.enterBranch(elseL)
		vs, err := c.compile(e.Else)
		c.code.leaveScope()
		if err != nil {
			return nil, err
		}
		if err := c.branchResults(vs, results, &join); err != nil {
			return nil, err
		}
	}
	if join < 0 {
		// Neither branch falls through.
		return nil, nil
	}
	c.code.setBlock(join)
	return results, nil
}

func (c *Compiler) compileWhile(e *ast.While) error {
	header := ir.Label(-1)
	c.code.branchTo(&header)
	if header < 0 {
		return nil
	}
	c.code.setBlock(header)
	cond, err := c.value(e.Cond)
	if err != nil {
		return err
	}
	body := c.code.newBlock()
	exit := c.code.newBlock()
	c.code.terminate(&ir.CondBranch{Cond: cond, Then: body, Else: exit})

	c.enterBranch(body)
	_, err = c.compile(e.Body)
	c.code.leaveScope()
	if err != nil {
		return err
	}
	c.code.branchTo(&header)
	c.code.setBlock(exit)
	return nil
}

func (c *Compiler) compileReturn(e *ast.Return) error {
	var vs []int
	for _, x := range e.Values {
		xs, err := c.compile(x)
		if err != nil {
			return err
		}
		vs = append(vs, xs...)
	}
	if c.code.dead {
		return nil
	}
	if len(vs) != len(c.fn.Results) {
		return c.errorf(errors.E2006, "return of %d values from a function declaring %d results",
			len(vs), len(c.fn.Results))
	}
	c.code.terminate(&ir.Return{Values: vs})
	return nil
}

func (c *Compiler) compileBinary(e *ast.Binary) ([]int, error) {
	if e.Op.IsLogical() {
		return c.compileShortCircuit(e)
	}
	xy, err := c.list([]ast.Expr{e.X, e.Y})
	if err != nil {
		return nil, err
	}
	x, y := xy[0], xy[1]
	dst := c.newTemp(e.Type())
	c.code.emit(&ir.BinaryOp{Op: e.Op, Dst: dst, X: x, Y: y})
	return []int{dst}, nil
}

// compileShortCircuit lowers a && b as `if (a) b else false` and a || b as
// `if (a) true else b`.
func (c *Compiler) compileShortCircuit(e *ast.Binary) ([]int, error) {
	x, err := c.value(e.X)
	if err != nil {
		return nil, err
	}
	result := c.newTemp(types.Bool)
	rhs := c.code.newBlock()
	short := c.code.newBlock()
	join := ir.Label(-1)
	if e.Op == ast.And {
		c.code.terminate(&ir.CondBranch{Cond: x, Then: rhs, Else: short})
	} else {
		c.code.terminate(&ir.CondBranch{Cond: x, Then: short, Else: rhs})
	}

	c.code.setBlock(rhs)
	y, err := c.value(e.Y)
	if err != nil {
		return nil, err
	}
	if err := c.branchResults([]int{y}, []int{result}, &join); err != nil {
		return nil, err
	}

	c.code.setBlock(short)
	c.code.emit(&ir.LoadConst{Dst: result, Value: ir.Const{Type: types.Bool, Bool: e.Op == ast.Or}})
	c.code.branchTo(&join)

	c.code.setBlock(join)
	return []int{result}, nil
}

// reference lowers e and checks that it yields a reference, mutable if
// requested.
func (c *Compiler) reference(e ast.Expr, mutable bool) (int, error) {
	t, err := c.value(e)
	if err != nil {
		return 0, err
	}
	r, ok := types.IsReference(c.code.fn.Temps[t].Type)
	if !ok {
		if c.code.dead {
			return t, nil
		}
		return 0, c.errorf(errors.E2007, "expected a reference, found %s", c.code.fn.Temps[t].Type)
	}
	if mutable && !r.Mutable {
		return 0, c.errorf(errors.E2007, "expected a mutable reference, found %s", r)
	}
	return t, nil
}

func (c *Compiler) field(structName, fieldName string) (int, types.Type, error) {
	def, ok := c.module.Struct(structName)
	if !ok {
		return 0, nil, c.errorf(errors.E2004, "undefined struct %q", structName)
	}
	idx := def.FieldIndex(fieldName)
	if idx < 0 {
		return 0, nil, c.errorf(errors.E2005, "struct %s has no field %q", structName, fieldName)
	}
	return idx, def.Fields[idx].Type, nil
}

// selectBase lowers the base of a field access to a reference. A struct
// value is borrowed first.
func (c *Compiler) selectBase(base ast.Expr, mutable bool) (int, error) {
	if _, ok := base.Type().(*types.Struct); ok {
		t, err := c.value(base)
		if err != nil {
			return 0, err
		}
		ref := c.newTemp(&types.Reference{Mutable: mutable, Elem: base.Type()})
		c.code.emit(&ir.BorrowLoc{Dst: ref, Src: t, Mutable: mutable})
		return ref, nil
	}
	return c.reference(base, mutable)
}

func (c *Compiler) borrowField(s *ast.Select, mutable bool) (int, error) {
	base, err := c.selectBase(s.Base, mutable)
	if err != nil {
		return 0, err
	}
	idx, ty, err := c.field(s.Struct, s.Field)
	if err != nil {
		return 0, err
	}
	dst := c.newTemp(&types.Reference{Mutable: mutable, Elem: ty})
	c.code.emit(&ir.BorrowField{
		Dst:       dst,
		Ref:       base,
		Struct:    s.Struct,
		Field:     idx,
		FieldName: s.Field,
		Mutable:   mutable,
	})
	return dst, nil
}

func (c *Compiler) compileBorrow(e *ast.Borrow) ([]int, error) {
	switch x := e.X.(type) {
	case *ast.Local:
		src, ok := c.code.symbols.lookup(x.Name)
		if !ok {
			return nil, c.errorf(errors.E2002, "undefined local %q", x.Name)
		}
		dst := c.newTemp(e.Type())
		c.code.emit(&ir.BorrowLoc{Dst: dst, Src: src, Mutable: e.Mutable})
		return []int{dst}, nil
	case *ast.Select:
		dst, err := c.borrowField(x, e.Mutable)
		if err != nil {
			return nil, err
		}
		return []int{dst}, nil
	}
	return nil, c.errorf(errors.E2001, "cannot borrow %s", e.X)
}

// compileSelect reads a field by borrowing it and reading through the
// borrow.
func (c *Compiler) compileSelect(e *ast.Select) ([]int, error) {
	ref, err := c.borrowField(e, false)
	if err != nil {
		return nil, err
	}
	dst := c.newTemp(e.Ty)
	c.code.emit(&ir.ReadRef{Dst: dst, Ref: ref})
	return []int{dst}, nil
}

func (c *Compiler) compilePack(e *ast.Pack) ([]int, error) {
	def, ok := c.module.Struct(e.Struct)
	if !ok {
		return nil, c.errorf(errors.E2004, "undefined struct %q", e.Struct)
	}
	if len(e.Fields) != len(def.Fields) {
		return nil, c.errorf(errors.E2006, "struct %s has %d fields but %d values were given",
			e.Struct, len(def.Fields), len(e.Fields))
	}
	fields, err := c.list(e.Fields)
	if err != nil {
		return nil, err
	}
	dst := c.newTemp(e.Type())
	c.code.emit(&ir.Pack{Dst: dst, Struct: e.Struct, Fields: fields})
	return []int{dst}, nil
}

func (c *Compiler) compileCall(e *ast.Call) ([]int, error) {
	sig, ok := c.sigs[e.Func]
	if !ok {
		return nil, c.errorf(errors.E2003, "undefined function %q", e.Func)
	}
	if len(e.Args) != len(sig.Params) {
		return nil, c.errorf(errors.E2006, "function %s takes %d arguments but %d were given",
			e.Func, len(sig.Params), len(e.Args))
	}
	args, err := c.list(e.Args)
	if err != nil {
		return nil, err
	}
	dsts := c.newTemps(sig.Results)
	c.code.emit(&ir.Call{Dsts: dsts, Func: e.Func, Args: args})
	return dsts, nil
}

func (c *Compiler) compileInvoke(e *ast.Invoke) ([]int, error) {
	fnType, ok := e.Closure.Type().(*types.Function)
	if !ok {
		return nil, c.errorf(errors.E2008, "cannot invoke a value of type %s", e.Closure.Type())
	}
	if len(e.Args) != len(fnType.Params) {
		return nil, c.errorf(errors.E2006, "closure of type %s takes %d arguments but %d were given",
			fnType, len(fnType.Params), len(e.Args))
	}
	operands, err := c.list(append([]ast.Expr{e.Closure}, e.Args...))
	if err != nil {
		return nil, err
	}
	closure, args := operands[0], operands[1:]
	dsts := c.newTemps(fnType.Results)
	c.code.emit(&ir.Invoke{Dsts: dsts, Closure: closure, Args: args})
	return dsts, nil
}

func (c *Compiler) compilePackClosure(e *ast.PackClosure) ([]int, error) {
	sig, ok := c.sigs[e.Func]
	if !ok {
		return nil, c.errorf(errors.E2003, "undefined function %q", e.Func)
	}
	if len(e.Captured) > len(sig.Params) {
		return nil, c.errorf(errors.E2006, "closure over %s binds %d values but it takes %d parameters",
			e.Func, len(e.Captured), len(sig.Params))
	}
	captured, err := c.list(e.Captured)
	if err != nil {
		return nil, err
	}
	dst := c.newTemp(e.Ty)
	c.code.emit(&ir.PackClosure{Dst: dst, Func: e.Func, Captured: captured, Type: e.Ty})
	return []int{dst}, nil
}
