package vm

import (
	"context"

	"github.com/simon-1M/closurec/bytecode"
)

// Run calls the named function of m in a new Virtual Machine and returns
// its results.
func Run(ctx context.Context, m *bytecode.Module, name string, args []Value, options ...Option) ([]Value, error) {
	machine, err := New(m, options...)
	if err != nil {
		return nil, err
	}
	return machine.Call(ctx, name, args...)
}
