package vm

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/simon-1M/closurec/errz"
	"github.com/simon-1M/closurec/op"
	"github.com/simon-1M/closurec/types"
)

func checkCallArgs(fn *loadedFunction, args []Value) error {
	if len(args) != len(fn.params) {
		msg := fmt.Sprintf("args error: function %q", fn.name)
		switch len(fn.params) {
		case 0:
			msg = fmt.Sprintf("%s takes 0 arguments (%d given)", msg, len(args))
		case 1:
			msg = fmt.Sprintf("%s takes 1 argument (%d given)", msg, len(args))
		default:
			msg = fmt.Sprintf("%s takes %d arguments (%d given)", msg, len(fn.params), len(args))
		}
		return errz.NewStructuredError(errz.ErrType, msg, errz.Location{}, nil)
	}
	for i, a := range args {
		if !conforms(a, fn.params[i]) {
			return errz.NewStructuredErrorf(errz.ErrType, errz.Location{}, nil,
				"args error: argument %d of %q must be %s, found %s", i, fn.name, fn.params[i], Format(a))
		}
	}
	return nil
}

// conforms reports whether v has the shape of type t.
func conforms(v Value, t types.Type) bool {
	switch t := t.(type) {
	case types.Primitive:
		switch t {
		case types.U8:
			_, ok := v.(uint8)
			return ok
		case types.U64:
			_, ok := v.(uint64)
			return ok
		case types.Bool:
			_, ok := v.(bool)
			return ok
		case types.Address:
			_, ok := v.(Address)
			return ok
		}
	case *types.Struct:
		s, ok := v.(*Struct)
		return ok && s.Name == t.Name
	case *types.Reference:
		r, ok := v.(*Ref)
		return ok && (r.Mutable || !t.Mutable) && conforms(r.Load(), t.Elem)
	case *types.Function:
		_, ok := v.(*Closure)
		return ok
	}
	return false
}

// binaryOp applies an arithmetic, bitwise or comparison opcode to two
// integers of the same width.
func binaryOp(code op.Code, x, y Value) (Value, *errz.StructuredError) {
	var a, b, limit uint64
	switch xv := x.(type) {
	case uint8:
		yv, ok := y.(uint8)
		if !ok {
			return nil, operandError(code, x, y)
		}
		a, b, limit = uint64(xv), uint64(yv), math.MaxUint8
	case uint64:
		yv, ok := y.(uint64)
		if !ok {
			return nil, operandError(code, x, y)
		}
		a, b, limit = xv, yv, math.MaxUint64
	default:
		return nil, operandError(code, x, y)
	}

	var r uint64
	switch code {
	case op.Add:
		sum, carry := bits.Add64(a, b, 0)
		if carry != 0 || sum > limit {
			return nil, arithmeticError("%s + %s overflows", x, y)
		}
		r = sum
	case op.Sub:
		if b > a {
			return nil, arithmeticError("%s - %s underflows", x, y)
		}
		r = a - b
	case op.Mul:
		hi, lo := bits.Mul64(a, b)
		if hi != 0 || lo > limit {
			return nil, arithmeticError("%s * %s overflows", x, y)
		}
		r = lo
	case op.Div:
		if b == 0 {
			return nil, arithmeticError("division of %s by zero", x)
		}
		r = a / b
	case op.Mod:
		if b == 0 {
			return nil, arithmeticError("remainder of %s by zero", x)
		}
		r = a % b
	case op.BitAnd:
		r = a & b
	case op.BitOr:
		r = a | b
	case op.Xor:
		r = a ^ b
	case op.Lt:
		return a < b, nil
	case op.Le:
		return a <= b, nil
	case op.Gt:
		return a > b, nil
	case op.Ge:
		return a >= b, nil
	default:
		return nil, errz.NewStructuredErrorf(errz.ErrRuntime, errz.Location{}, nil, "%s is not a binary operation", code)
	}
	if limit == math.MaxUint8 {
		return uint8(r), nil
	}
	return r, nil
}

func operandError(code op.Code, x, y Value) *errz.StructuredError {
	return errz.NewStructuredErrorf(errz.ErrType, errz.Location{}, nil, "%s of %s and %s", code, Format(x), Format(y))
}

func arithmeticError(format string, operands ...Value) *errz.StructuredError {
	args := make([]any, len(operands))
	for i, v := range operands {
		args[i] = Format(v)
	}
	return errz.NewStructuredErrorf(errz.ErrArithmetic, errz.Location{}, nil, format, args...)
}
