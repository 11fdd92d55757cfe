// Package codegen selects stack instructions for lowered functions and
// assembles them into a bytecode.Module.
//
// Temporaries become local slots. Parameters keep slots 0..n-1; every other
// temporary that is ever stored gets a slot on its first stored definition,
// walking blocks in layout order. A slot is shared only by temporaries of
// the same type that are never borrowed and never live at the same time.
//
// Operands are pushed with MoveLoc at their last use and CopyLoc otherwise.
// A value whose definition is dead is popped instead of stored. References
// that die on a control-flow edge are released on that edge, so no borrow
// outlives its last use.
package codegen

import (
	"github.com/simon-1M/closurec/ast"
	"github.com/simon-1M/closurec/bytecode"
	"github.com/simon-1M/closurec/errors"
	"github.com/simon-1M/closurec/ir"
	"github.com/simon-1M/closurec/liveness"
)

// Generate assembles fns, the lowered functions of m in module order, into
// a binary module. Liveness results are looked up by function name and
// computed for functions missing from live.
func Generate(m *ast.Module, fns []*ir.Function, live map[string]*liveness.Result) (*bytecode.Module, error) {
	g := &generator{
		module: m,
		out: &bytecode.Module{
			Version: bytecode.DefaultVersion,
			Address: m.Address,
			Name:    m.Name,
		},
		funcs: make(map[string]int, len(fns)),
	}
	if err := g.structs(); err != nil {
		return nil, err
	}
	if err := g.declare(fns); err != nil {
		return nil, err
	}
	var result error
	for i, fn := range fns {
		res := live[fn.Name]
		if res == nil {
			res = liveness.Analyze(fn)
		}
		code, locals, err := g.function(fn, res)
		if err != nil {
			result = errors.Append(result, err)
			continue
		}
		g.out.Functions[i].Locals = locals
		g.out.Functions[i].Code = bytecode.EncodeCode(code)
	}
	if result != nil {
		return nil, result
	}
	return g.out, nil
}

type generator struct {
	module *ast.Module
	out    *bytecode.Module
	funcs  map[string]int
}

// structs fills the struct table. Names are registered first so fields may
// refer to any struct of the module.
func (g *generator) structs() error {
	for _, s := range g.module.Structs {
		g.out.Structs = append(g.out.Structs, bytecode.Struct{Name: s.Name, Abilities: s.Abilities})
	}
	for i, s := range g.module.Structs {
		for _, f := range s.Fields {
			tag, err := g.out.TypeTag(f.Type)
			if err != nil {
				return errors.Errorf(errors.E2004, g.module.QualifiedName(), "",
					"struct %s field %s: %v", s.Name, f.Name, err)
			}
			g.out.Structs[i].Fields = append(g.out.Structs[i].Fields, bytecode.Field{Name: f.Name, Type: tag})
		}
	}
	return nil
}

// declare fills the function table with names and signatures so calls and
// closures can refer to functions not generated yet.
func (g *generator) declare(fns []*ir.Function) error {
	for _, fn := range fns {
		if _, ok := g.funcs[fn.Name]; ok {
			return errors.Internalf(errors.E2001, g.module.QualifiedName(), fn.Name, "duplicate function")
		}
		params := make([]bytecode.Type, 0, fn.NumParams)
		for _, p := range fn.Params() {
			tag, err := g.out.TypeTag(p.Type)
			if err != nil {
				return errors.Errorf(errors.E2004, g.module.QualifiedName(), fn.Name, "%v", err)
			}
			params = append(params, tag)
		}
		if len(params) == 0 {
			params = nil
		}
		results, err := g.out.TypeTags(fn.Results)
		if err != nil {
			return errors.Errorf(errors.E2004, g.module.QualifiedName(), fn.Name, "%v", err)
		}
		g.funcs[fn.Name] = len(g.out.Functions)
		g.out.Functions = append(g.out.Functions, bytecode.Function{
			Name:      fn.Name,
			Kind:      fn.Kind,
			Signature: g.out.AddSignature(bytecode.Signature{Params: params, Results: results}),
		})
	}
	return nil
}
