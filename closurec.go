// Package closurec compiles typed modules with first-class lambdas into
// verified binary bytecode.
//
// Compile runs the whole pipeline for one module:
//
//	lift -> lower -> liveness -> codegen -> encode -> decode -> verify
//
// and returns a [Result] that keeps every intermediate form, so callers
// can render any of the diagnostic listings or execute the module.
// CompileAll compiles independent modules in parallel.
package closurec

import (
	"context"
	"fmt"

	"github.com/simon-1M/closurec/ast"
	"github.com/simon-1M/closurec/bytecode"
	"github.com/simon-1M/closurec/codegen"
	"github.com/simon-1M/closurec/compiler"
	"github.com/simon-1M/closurec/errors"
	"github.com/simon-1M/closurec/lift"
	"github.com/simon-1M/closurec/liveness"
	"github.com/simon-1M/closurec/verifier"
	"golang.org/x/sync/errgroup"
)

// Compile runs the pipeline on m. Lifting failures are returned at once;
// lowering and verification failures carry every diagnostic of the module.
func Compile(ctx context.Context, m *ast.Module, opts ...Option) (*Result, error) {
	return compile(ctx, m, collectOptions(opts...))
}

func compile(ctx context.Context, m *ast.Module, o *options) (*Result, error) {
	logger := o.logger.With().Str("module", m.QualifiedName()).Logger()
	r := &Result{Source: m, vmOptions: o.vmOptions}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lifted, err := lift.Lift(m)
	if err != nil {
		logger.Warn().Str("stage", "lift").Err(err).Msg("module rejected")
		return nil, err
	}
	r.Lifted = lifted
	logger.Debug().Str("stage", "lift").Int("functions", len(lifted.Functions)).Msg("lifted")

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fns, err := compiler.CompileModule(lifted)
	if err != nil {
		logger.Warn().Str("stage", "lower").Err(err).Msg("module rejected")
		return nil, err
	}
	r.Functions = fns

	r.Liveness = make(map[string]*liveness.Result, len(fns))
	for _, fn := range fns {
		res := liveness.Analyze(fn)
		r.Liveness[fn.Name] = res
		logger.Debug().Str("stage", "liveness").Str("function", fn.Name).
			Int("blocks", len(fn.Blocks)).Int("unused", res.Unused().Len()).Msg("analyzed")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := codegen.Generate(lifted, fns, r.Liveness)
	if err != nil {
		logger.Warn().Str("stage", "codegen").Err(err).Msg("module rejected")
		return nil, err
	}
	out.Version = o.version
	if r.Binary, err = bytecode.Encode(out); err != nil {
		logger.Warn().Str("stage", "encode").Err(err).Msg("module rejected")
		return nil, fmt.Errorf("encode %s: %w", m.QualifiedName(), err)
	}
	if r.Module, err = bytecode.Decode(r.Binary); err != nil {
		return nil, fmt.Errorf("decode %s: %w", m.QualifiedName(), err)
	}
	logger.Debug().Str("stage", "emit").Int("bytes", len(r.Binary)).
		Uint32("version", r.Module.Version).Msg("encoded")

	if o.verify {
		if err := verifier.Verify(r.Module); err != nil {
			logger.Warn().Str("stage", "verify").Err(err).Msg("module rejected")
			return nil, err
		}
		logger.Debug().Str("stage", "verify").Msg("bytecode verification succeeded")
	}
	return r, nil
}

// CompileAll compiles mods concurrently. Results keep the input order; a
// module that fails has a nil result and contributes its diagnostics to
// the returned error without affecting the others.
func CompileAll(ctx context.Context, mods []*ast.Module, opts ...Option) ([]*Result, error) {
	o := collectOptions(opts...)
	results := make([]*Result, len(mods))
	errs := make([]error, len(mods))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallelism)
	for i, m := range mods {
		i, m := i, m
		g.Go(func() error {
			results[i], errs[i] = compile(gctx, m, o)
			return nil
		})
	}
	_ = g.Wait()

	var result error
	for _, err := range errs {
		result = errors.Append(result, err)
	}
	return results, result
}
