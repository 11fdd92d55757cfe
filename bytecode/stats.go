package bytecode

import "github.com/simon-1M/closurec/ast"

// Stats contains statistics about a compiled module.
// This is useful for auditing modules before execution.
type Stats struct {
	// InstructionCount is the total number of instructions.
	InstructionCount int

	// CodeBytes is the total size of all instruction streams.
	CodeBytes int

	// ConstantCount is the number of constants in the constant pool.
	ConstantCount int

	// SignatureCount is the number of interned signatures.
	SignatureCount int

	// FunctionCount is the number of functions, lifted lambdas included.
	FunctionCount int

	// LambdaCount is the number of lifted lambda functions.
	LambdaCount int
}

// Stats returns statistics about m. Undecodable functions contribute only
// their byte size.
func (m *Module) Stats() Stats {
	s := Stats{
		ConstantCount:  len(m.Constants),
		SignatureCount: len(m.Signatures),
		FunctionCount:  len(m.Functions),
	}
	for i, fn := range m.Functions {
		s.CodeBytes += len(fn.Code)
		if fn.Kind == ast.LambdaFunction {
			s.LambdaCount++
		}
		if instrs, err := m.Instructions(i); err == nil {
			s.InstructionCount += len(instrs)
		}
	}
	return s
}
