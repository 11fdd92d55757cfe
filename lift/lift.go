// Package lift rewrites lambda literals into top-level functions.
//
// Every lambda becomes a function named __lambda__<ordinal>__<enclosing>,
// whose parameters are the lambda's captures followed by its declared
// parameters. The literal is replaced with a PackClosure expression that
// binds the captured locals at the original site.
//
// Ordinals count lambdas of one enclosing top-level function in source
// pre-order, starting at 1, and are reset for every function. Inner lambdas
// are lifted before the body of their enclosing lambda is extracted, so no
// lifted function contains a lambda literal.
package lift

import (
	"fmt"
	"sort"

	"github.com/simon-1M/closurec/ast"
	"github.com/simon-1M/closurec/errors"
	"github.com/simon-1M/closurec/types"
)

// Name returns the deterministic name of the ordinal-th lambda of the
// function called enclosing.
func Name(ordinal int, enclosing string) string {
	return fmt.Sprintf("__lambda__%d__%s", ordinal, enclosing)
}

// Lift returns a copy of m in which every lambda literal has been lifted.
// Lifted functions are placed right after the function they came from. The
// input module is not modified.
//
// Any error returned is an *errors.InternalError: a malformed capture list
// or an unresolved free variable means the upstream model is inconsistent.
func Lift(m *ast.Module) (*ast.Module, error) {
	l := &lifter{module: m, names: map[string]bool{}}
	for _, fn := range m.Functions {
		l.names[fn.Name] = true
	}
	out := &ast.Module{
		Address: m.Address,
		Name:    m.Name,
		Structs: m.Structs,
	}
	for _, fn := range m.Functions {
		lifted, err := l.liftFunction(fn)
		if err != nil {
			return nil, err
		}
		out.Functions = append(out.Functions, lifted...)
	}
	return out, nil
}

type liftedFunction struct {
	ordinal int
	fn      *ast.Function
}

type lifter struct {
	module    *ast.Module
	names     map[string]bool
	enclosing string
	ordinal   int
	lifted    []liftedFunction
}

// liftFunction returns the rewritten function followed by the functions
// lifted out of it, in ordinal order.
func (l *lifter) liftFunction(fn *ast.Function) ([]*ast.Function, error) {
	l.enclosing = fn.Name
	l.ordinal = 0
	l.lifted = nil
	body, err := l.rewrite(fn.Body)
	if err != nil {
		return nil, err
	}
	rewritten := *fn
	rewritten.Body = body
	sort.Slice(l.lifted, func(i, j int) bool {
		return l.lifted[i].ordinal < l.lifted[j].ordinal
	})
	result := []*ast.Function{&rewritten}
	for _, lf := range l.lifted {
		result = append(result, lf.fn)
	}
	return result, nil
}

func (l *lifter) fail(code errors.ErrorCode, format string, args ...any) error {
	return errors.Internalf(code, l.module.QualifiedName(), l.enclosing, format, args...)
}

func (l *lifter) liftLambda(x *ast.Lambda) (ast.Expr, error) {
	// Claim the ordinal before descending so outer lambdas number first.
	l.ordinal++
	ordinal := l.ordinal
	body, err := l.rewrite(x.Body)
	if err != nil {
		return nil, err
	}

	params := map[string]bool{}
	for _, p := range x.Params {
		params[p.Name] = true
	}
	captured := map[string]bool{}
	for _, c := range x.Captures {
		if captured[c.Name] {
			return nil, l.fail(errors.E1001, "lambda %d captures %q more than once", ordinal, c.Name)
		}
		if params[c.Name] {
			return nil, l.fail(errors.E1002, "capture %q of lambda %d shadows a parameter", c.Name, ordinal)
		}
		if _, ok := types.IsReference(c.Type); ok {
			return nil, l.fail(errors.E1005, "lambda %d captures reference %q", ordinal, c.Name)
		}
		captured[c.Name] = true
	}
	if err := l.checkFreeVariables(ordinal, body, params, captured); err != nil {
		return nil, err
	}

	name := Name(ordinal, l.enclosing)
	if l.names[name] {
		return nil, l.fail(errors.E1004, "lifted function %q already exists", name)
	}
	l.names[name] = true

	fnParams := make([]ast.Param, 0, len(x.Captures)+len(x.Params))
	fnParams = append(fnParams, x.Captures...)
	fnParams = append(fnParams, x.Params...)
	l.lifted = append(l.lifted, liftedFunction{
		ordinal: ordinal,
		fn: &ast.Function{
			Name:    name,
			Kind:    ast.LambdaFunction,
			Params:  fnParams,
			Results: x.Results,
			Body:    body,
		},
	})

	bindings := make([]ast.Expr, len(x.Captures))
	for i, c := range x.Captures {
		bindings[i] = &ast.Local{Name: c.Name, Ty: c.Type}
	}
	return &ast.PackClosure{
		Func:     name,
		Captured: bindings,
		Ty:       x.Type().(*types.Function),
	}, nil
}

// checkFreeVariables ensures every local read or written in body is a
// parameter, a capture, or bound by an enclosing let earlier in body.
// Captured variables are bound by value, so assigning to one is rejected.
func (l *lifter) checkFreeVariables(ordinal int, body ast.Expr, params, captured map[string]bool) error {
	fv := &freeVars{l: l, ordinal: ordinal, params: params, captured: captured}
	fv.block(body)
	return fv.err
}

// freeVars walks a lambda body in evaluation order with the same block
// scopes the lowering uses: sequences, if branches and loop bodies.
type freeVars struct {
	l                *lifter
	ordinal          int
	params, captured map[string]bool
	scopes           []map[string]bool
	err              error
}

func (fv *freeVars) bound(name string) bool {
	for _, s := range fv.scopes {
		if s[name] {
			return true
		}
	}
	return false
}

func (fv *freeVars) block(e ast.Expr) {
	fv.scopes = append(fv.scopes, map[string]bool{})
	fv.walk(e)
	fv.scopes = fv.scopes[:len(fv.scopes)-1]
}

func (fv *freeVars) walk(e ast.Expr) {
	if e == nil || fv.err != nil {
		return
	}
	switch n := e.(type) {
	case *ast.Local:
		if !fv.params[n.Name] && !fv.captured[n.Name] && !fv.bound(n.Name) {
			fv.err = fv.l.fail(errors.E1003, "lambda %d uses %q which is not in its capture list", fv.ordinal, n.Name)
		}
		return
	case *ast.Let:
		fv.walk(n.Value)
		for _, name := range n.Names {
			fv.scopes[len(fv.scopes)-1][name] = true
		}
		return
	case *ast.Assign:
		fv.walk(n.Value)
		if fv.err != nil {
			return
		}
		switch {
		case fv.captured[n.Name] && !fv.bound(n.Name):
			fv.err = fv.l.fail(errors.E1006, "lambda %d assigns to captured variable %q", fv.ordinal, n.Name)
		case !fv.params[n.Name] && !fv.bound(n.Name):
			fv.err = fv.l.fail(errors.E1003, "lambda %d assigns to %q which is not in scope", fv.ordinal, n.Name)
		}
		return
	case *ast.Seq:
		fv.scopes = append(fv.scopes, map[string]bool{})
		for _, x := range n.Exprs {
			fv.walk(x)
		}
		fv.scopes = fv.scopes[:len(fv.scopes)-1]
		return
	case *ast.If:
		fv.walk(n.Cond)
		fv.block(n.Then)
		fv.block(n.Else)
		return
	case *ast.While:
		fv.walk(n.Cond)
		fv.block(n.Body)
		return
	}
	for _, child := range ast.Children(e) {
		fv.walk(child)
	}
}

// rewrite returns e with every lambda replaced by a closure construction.
// Nodes without lambdas beneath them are still copied so the input tree is
// never shared with the output.
func (l *lifter) rewrite(e ast.Expr) (ast.Expr, error) {
	if e == nil {
		return nil, nil
	}
	switch x := e.(type) {
	case *ast.Lambda:
		return l.liftLambda(x)
	case *ast.IntLit:
		c := *x
		return &c, nil
	case *ast.BoolLit:
		c := *x
		return &c, nil
	case *ast.AddressLit:
		c := *x
		return &c, nil
	case *ast.Local:
		c := *x
		return &c, nil
	case *ast.Let:
		value, err := l.rewrite(x.Value)
		if err != nil {
			return nil, err
		}
		return &ast.Let{Names: x.Names, Types: x.Types, Value: value}, nil
	case *ast.Assign:
		value, err := l.rewrite(x.Value)
		if err != nil {
			return nil, err
		}
		return &ast.Assign{Name: x.Name, Value: value}, nil
	case *ast.Seq:
		exprs, err := l.rewriteList(x.Exprs)
		if err != nil {
			return nil, err
		}
		return &ast.Seq{Exprs: exprs}, nil
	case *ast.If:
		parts, err := l.rewriteList([]ast.Expr{x.Cond, x.Then, x.Else})
		if err != nil {
			return nil, err
		}
		return &ast.If{Cond: parts[0], Then: parts[1], Else: parts[2]}, nil
	case *ast.While:
		parts, err := l.rewriteList([]ast.Expr{x.Cond, x.Body})
		if err != nil {
			return nil, err
		}
		return &ast.While{Cond: parts[0], Body: parts[1]}, nil
	case *ast.Return:
		values, err := l.rewriteList(x.Values)
		if err != nil {
			return nil, err
		}
		return &ast.Return{Values: values}, nil
	case *ast.Abort:
		code, err := l.rewrite(x.Code)
		if err != nil {
			return nil, err
		}
		return &ast.Abort{Code: code}, nil
	case *ast.Binary:
		parts, err := l.rewriteList([]ast.Expr{x.X, x.Y})
		if err != nil {
			return nil, err
		}
		return &ast.Binary{Op: x.Op, X: parts[0], Y: parts[1]}, nil
	case *ast.Unary:
		operand, err := l.rewrite(x.X)
		if err != nil {
			return nil, err
		}
		return &ast.Unary{Op: x.Op, X: operand}, nil
	case *ast.Borrow:
		target, err := l.rewrite(x.X)
		if err != nil {
			return nil, err
		}
		return &ast.Borrow{Mutable: x.Mutable, X: target}, nil
	case *ast.Select:
		base, err := l.rewrite(x.Base)
		if err != nil {
			return nil, err
		}
		return &ast.Select{Base: base, Struct: x.Struct, Field: x.Field, Ty: x.Ty}, nil
	case *ast.Deref:
		ref, err := l.rewrite(x.X)
		if err != nil {
			return nil, err
		}
		return &ast.Deref{X: ref}, nil
	case *ast.WriteRef:
		parts, err := l.rewriteList([]ast.Expr{x.Ref, x.Value})
		if err != nil {
			return nil, err
		}
		return &ast.WriteRef{Ref: parts[0], Value: parts[1]}, nil
	case *ast.Pack:
		fields, err := l.rewriteList(x.Fields)
		if err != nil {
			return nil, err
		}
		return &ast.Pack{Struct: x.Struct, Fields: fields}, nil
	case *ast.Call:
		args, err := l.rewriteList(x.Args)
		if err != nil {
			return nil, err
		}
		return &ast.Call{Func: x.Func, Args: args, Results: x.Results}, nil
	case *ast.Invoke:
		closure, err := l.rewrite(x.Closure)
		if err != nil {
			return nil, err
		}
		args, err := l.rewriteList(x.Args)
		if err != nil {
			return nil, err
		}
		return &ast.Invoke{Closure: closure, Args: args}, nil
	case *ast.PackClosure:
		captured, err := l.rewriteList(x.Captured)
		if err != nil {
			return nil, err
		}
		return &ast.PackClosure{Func: x.Func, Captured: captured, Ty: x.Ty}, nil
	}
	return nil, l.fail(errors.E1003, "unexpected expression %T", e)
}

func (l *lifter) rewriteList(es []ast.Expr) ([]ast.Expr, error) {
	if es == nil {
		return nil, nil
	}
	out := make([]ast.Expr, len(es))
	for i, e := range es {
		r, err := l.rewrite(e)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}
