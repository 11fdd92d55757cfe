package vm

import (
	"fmt"
	"strconv"

	"github.com/simon-1M/closurec/bytecode"
	"github.com/simon-1M/closurec/types"
)

// loadedFunction is a function with its code decoded once, ahead of
// execution.
type loadedFunction struct {
	name         string
	instructions []bytecode.Instruction
	params       []types.Type
	results      int
	localsCount  int
}

func loadFunction(m *bytecode.Module, i int) (*loadedFunction, error) {
	fn := &m.Functions[i]
	instructions, err := bytecode.DecodeCode(fn.Code)
	if err != nil {
		return nil, fmt.Errorf("function %s: %w", fn.Name, err)
	}
	sig, err := m.FunctionSignature(i)
	if err != nil {
		return nil, fmt.Errorf("function %s: %w", fn.Name, err)
	}
	params, err := m.TypesOf(sig.Params)
	if err != nil {
		return nil, fmt.Errorf("function %s: %w", fn.Name, err)
	}
	if len(fn.Locals) < len(params) {
		return nil, fmt.Errorf("function %s: %d locals cannot hold %d parameters", fn.Name, len(fn.Locals), len(params))
	}
	return &loadedFunction{
		name:         fn.Name,
		instructions: instructions,
		params:       params,
		results:      len(sig.Results),
		localsCount:  len(fn.Locals),
	}, nil
}

func loadConstant(c bytecode.Constant) (Value, error) {
	switch c.Type.Kind {
	case bytecode.KindAddress:
		return Address(c.Value), nil
	case bytecode.KindU64:
		return strconv.ParseUint(c.Value, 0, 64)
	case bytecode.KindU8:
		v, err := strconv.ParseUint(c.Value, 0, 8)
		return uint8(v), err
	case bytecode.KindBool:
		return strconv.ParseBool(c.Value)
	}
	return nil, fmt.Errorf("constant %q has unsupported type kind %d", c.Value, c.Type.Kind)
}

// signatureArity returns the parameter and result counts of signature i.
func signatureArity(m *bytecode.Module, i int) (int, int, error) {
	sig, err := m.SignatureAt(i)
	if err != nil {
		return 0, 0, err
	}
	return len(sig.Params), len(sig.Results), nil
}
