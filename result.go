package closurec

import (
	"context"
	"strings"

	"github.com/simon-1M/closurec/ast"
	"github.com/simon-1M/closurec/bytecode"
	"github.com/simon-1M/closurec/dis"
	"github.com/simon-1M/closurec/ir"
	"github.com/simon-1M/closurec/liveness"
	"github.com/simon-1M/closurec/vm"
)

// Result holds every form a module passes through during compilation.
type Result struct {
	// Source is the module as given to Compile.
	Source *ast.Module
	// Lifted is Source with every lambda lifted into a function.
	Lifted *ast.Module
	// Functions are the lowered functions, in the order of Lifted.
	Functions []*ir.Function
	// Liveness maps function names to their analysis.
	Liveness map[string]*liveness.Result
	// Binary is the encoded module.
	Binary []byte
	// Module is Binary decoded again.
	Module *bytecode.Module

	vmOptions []vm.Option
}

// Model renders the lifted model with qualified operator and field names.
func (r *Result) Model() string {
	return ast.Format(r.Lifted)
}

// Baseline renders every lowered function: declared locals, block labels
// and one instruction per line.
func (r *Result) Baseline() string {
	var parts []string
	for _, fn := range r.Functions {
		parts = append(parts, ir.Format(fn))
	}
	return strings.Join(parts, "\n")
}

// LiveVars renders the baseline listing with a "# live vars:" line after
// each instruction.
func (r *Result) LiveVars() string {
	var parts []string
	for _, fn := range r.Functions {
		parts = append(parts, liveness.Annotate(r.Liveness[fn.Name]))
	}
	return strings.Join(parts, "\n")
}

// Disassembly renders the binary module in mnemonic form.
func (r *Result) Disassembly() (string, error) {
	var b strings.Builder
	if err := dis.Write(&b, r.Module); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Call executes the named function of the compiled module in a fresh VM.
func (r *Result) Call(ctx context.Context, name string, args ...vm.Value) ([]vm.Value, error) {
	return vm.Run(ctx, r.Module, name, args, r.vmOptions...)
}
