package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/simon-1M/closurec/op"
)

// Placeholder is a branch operand that has not been patched yet.
const Placeholder = math.MaxUint32

// Instruction is one decoded instruction.
type Instruction struct {
	Op       op.Code
	Operands []uint64
}

// Operand returns operand i as an int.
func (i Instruction) Operand(n int) int {
	return int(i.Operands[n])
}

// String renders the instruction as its mnemonic followed by raw operands.
func (i Instruction) String() string {
	s := i.Op.String()
	for n, v := range i.Operands {
		if n == 0 {
			s += " "
		} else {
			s += ", "
		}
		s += fmt.Sprint(v)
	}
	return s
}

// EncodeCode serializes an instruction stream.
func EncodeCode(code []Instruction) []byte {
	var buf []byte
	for _, instr := range code {
		buf = append(buf, byte(instr.Op))
		for _, v := range instr.Operands {
			buf = binary.AppendUvarint(buf, v)
		}
	}
	return buf
}

// DecodeCode parses an instruction stream, rejecting unknown opcodes and
// truncated operands.
func DecodeCode(code []byte) ([]Instruction, error) {
	var instrs []Instruction
	for pos := 0; pos < len(code); {
		opcode := op.Code(code[pos])
		info := op.GetInfo(opcode)
		if info.Name == "" {
			return nil, fmt.Errorf("invalid opcode %d at byte %d", opcode, pos)
		}
		pos++
		instr := Instruction{Op: opcode}
		if info.OperandCount > 0 {
			instr.Operands = make([]uint64, info.OperandCount)
		}
		for n := 0; n < info.OperandCount; n++ {
			v, size := binary.Uvarint(code[pos:])
			if size <= 0 {
				return nil, fmt.Errorf("truncated operand %d of %s at byte %d", n, info.Name, pos)
			}
			instr.Operands[n] = v
			pos += size
		}
		instrs = append(instrs, instr)
	}
	return instrs, nil
}

// Instructions decodes the code of function index i.
func (m *Module) Instructions(i int) ([]Instruction, error) {
	if i < 0 || i >= len(m.Functions) {
		return nil, fmt.Errorf("function index %d out of range", i)
	}
	instrs, err := DecodeCode(m.Functions[i].Code)
	if err != nil {
		return nil, fmt.Errorf("function %s: %w", m.Functions[i].Name, err)
	}
	return instrs, nil
}
