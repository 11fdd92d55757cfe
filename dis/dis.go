// Package dis renders compiled modules back into readable form. It works
// with the opcodes defined in the `op` package and decodes instruction
// streams through the `bytecode` package.
package dis

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/simon-1M/closurec/ast"
	"github.com/simon-1M/closurec/bytecode"
	"github.com/simon-1M/closurec/op"
	"github.com/simon-1M/closurec/types"
)

// Instruction is a decoded instruction with its operands resolved against
// the module tables.
type Instruction struct {
	Offset   int
	Opcode   op.Code
	Name     string
	Operands []uint64
	// Text is the mnemonic form, for example "MoveLoc[0](Arg0: &MyList)".
	Text string
	// Annotation describes what the operands refer to.
	Annotation string
	kind       annotationKind
}

// Block is a maximal straight-line run of instructions.
type Block struct {
	Label        int
	Instructions []Instruction
}

// Function is the disassembly of one function.
type Function struct {
	Index   int
	Name    string
	Kind    ast.FunctionKind
	Params  []types.Type
	Results []types.Type
	// Locals holds the types of the non-parameter slots, starting at slot
	// len(Params).
	Locals []types.Type
	Blocks []Block
}

// Instructions returns the function's instructions in offset order.
func (f *Function) Instructions() []Instruction {
	var out []Instruction
	for _, b := range f.Blocks {
		out = append(out, b.Instructions...)
	}
	return out
}

type annotationKind int

const (
	noAnnotation annotationKind = iota
	localAnnotation
	constAnnotation
	funcAnnotation
	typeAnnotation
	labelAnnotation
)

// Disassemble decodes every function of m.
func Disassemble(m *bytecode.Module) ([]Function, error) {
	fns := make([]Function, 0, len(m.Functions))
	for i := range m.Functions {
		fn, err := DisassembleFunction(m, i)
		if err != nil {
			return nil, err
		}
		fns = append(fns, fn)
	}
	return fns, nil
}

// DisassembleFunction decodes function index i of m.
func DisassembleFunction(m *bytecode.Module, i int) (Function, error) {
	if i < 0 || i >= len(m.Functions) {
		return Function{}, fmt.Errorf("function index %d out of range", i)
	}
	def := m.Functions[i]
	sig, err := m.FunctionSignature(i)
	if err != nil {
		return Function{}, fmt.Errorf("function %s: %w", def.Name, err)
	}
	d := &disassembler{m: m, fn: Function{Index: i, Name: def.Name, Kind: def.Kind}}
	if d.fn.Params, err = m.TypesOf(sig.Params); err != nil {
		return Function{}, fmt.Errorf("function %s: %w", def.Name, err)
	}
	if d.fn.Results, err = m.TypesOf(sig.Results); err != nil {
		return Function{}, fmt.Errorf("function %s: %w", def.Name, err)
	}
	if d.locals, err = m.TypesOf(def.Locals); err != nil {
		return Function{}, fmt.Errorf("function %s: %w", def.Name, err)
	}
	if len(d.locals) < len(d.fn.Params) {
		return Function{}, fmt.Errorf("function %s: %d locals for %d parameters",
			def.Name, len(d.locals), len(d.fn.Params))
	}
	d.fn.Locals = d.locals[len(d.fn.Params):]
	code, err := m.Instructions(i)
	if err != nil {
		return Function{}, err
	}
	d.labels = blockLabels(code)
	var block *Block
	for pc, instr := range code {
		if label, ok := d.labels[pc]; ok {
			d.fn.Blocks = append(d.fn.Blocks, Block{Label: label})
			block = &d.fn.Blocks[len(d.fn.Blocks)-1]
		}
		out, err := d.instruction(pc, instr)
		if err != nil {
			return Function{}, fmt.Errorf("function %s offset %d: %w", def.Name, pc, err)
		}
		block.Instructions = append(block.Instructions, out)
	}
	return d.fn, nil
}

// blockLabels numbers the block leaders of code.
func blockLabels(code []bytecode.Instruction) map[int]int {
	leaders := bytecode.Leaders(code)
	labels := make(map[int]int, len(leaders))
	for i, pc := range leaders {
		labels[pc] = i
	}
	return labels
}

type disassembler struct {
	m      *bytecode.Module
	fn     Function
	locals []types.Type
	labels map[int]int
}

func (d *disassembler) instruction(pc int, instr bytecode.Instruction) (Instruction, error) {
	out := Instruction{
		Offset:   pc,
		Opcode:   instr.Op,
		Name:     instr.Op.String(),
		Operands: instr.Operands,
	}
	var err error
	out.Text, out.Annotation, out.kind, err = d.render(instr)
	return out, err
}

func (d *disassembler) render(instr bytecode.Instruction) (string, string, annotationKind, error) {
	name := instr.Op.String()
	switch instr.Op {
	case op.CopyLoc, op.MoveLoc, op.StLoc, op.ImmBorrowLoc, op.MutBorrowLoc:
		slot := instr.Operands[0]
		if slot >= uint64(len(d.locals)) {
			return "", "", 0, fmt.Errorf("local %d out of range", slot)
		}
		info := fmt.Sprintf("%s: %s", d.localName(int(slot)), d.locals[slot])
		return fmt.Sprintf("%s[%d](%s)", name, slot, info), info, localAnnotation, nil
	case op.ImmBorrowField, op.MutBorrowField:
		s, f := instr.Operands[0], instr.Operands[1]
		if s >= uint64(len(d.m.Structs)) {
			return "", "", 0, fmt.Errorf("struct %d out of range", s)
		}
		def := d.m.Structs[s]
		if f >= uint64(len(def.Fields)) {
			return "", "", 0, fmt.Errorf("field %d of %s out of range", f, def.Name)
		}
		ft, err := d.m.TypeOf(def.Fields[f].Type)
		if err != nil {
			return "", "", 0, err
		}
		info := fmt.Sprintf("%s.%s: %s", def.Name, def.Fields[f].Name, ft)
		return fmt.Sprintf("%s(%s)", name, info), info, typeAnnotation, nil
	case op.LdU8, op.LdU64:
		v := strconv.FormatUint(instr.Operands[0], 10)
		return fmt.Sprintf("%s(%s)", name, v), v, constAnnotation, nil
	case op.LdConst:
		i := instr.Operands[0]
		if i >= uint64(len(d.m.Constants)) {
			return "", "", 0, fmt.Errorf("constant %d out of range", i)
		}
		c := d.m.Constants[i]
		ty, err := d.m.TypeOf(c.Type)
		if err != nil {
			return "", "", 0, err
		}
		info := fmt.Sprintf("%s: %s", ty, c.Value)
		return fmt.Sprintf("%s[%d](%s)", name, i, info), info, constAnnotation, nil
	case op.Pack:
		s := instr.Operands[0]
		if s >= uint64(len(d.m.Structs)) {
			return "", "", 0, fmt.Errorf("struct %d out of range", s)
		}
		info := d.m.Structs[s].Name
		return fmt.Sprintf("%s[%d](%s)", name, s, info), info, typeAnnotation, nil
	case op.Call:
		f := instr.Operands[0]
		if f >= uint64(len(d.m.Functions)) {
			return "", "", 0, fmt.Errorf("function %d out of range", f)
		}
		info := d.m.Functions[f].Name
		return fmt.Sprintf("%s[%d](%s)", name, f, info), info, funcAnnotation, nil
	case op.PackClosure:
		f, n := instr.Operands[0], instr.Operands[1]
		if f >= uint64(len(d.m.Functions)) {
			return "", "", 0, fmt.Errorf("function %d out of range", f)
		}
		ty, err := d.m.ClosureType(int(instr.Operands[2]))
		if err != nil {
			return "", "", 0, err
		}
		info := fmt.Sprintf("%s, %d: %s", d.m.Functions[f].Name, n, ty)
		return fmt.Sprintf("%s#%d(%s)", name, f, info), info, funcAnnotation, nil
	case op.CallClosure:
		ty, err := d.m.ClosureType(int(instr.Operands[0]))
		if err != nil {
			return "", "", 0, err
		}
		info := ty.String()
		return fmt.Sprintf("%s(%s)", name, info), info, typeAnnotation, nil
	case op.Branch, op.BrTrue, op.BrFalse:
		label, ok := d.labels[int(instr.Operands[0])]
		if !ok {
			return "", "", 0, fmt.Errorf("branch target %d out of range", instr.Operands[0])
		}
		info := fmt.Sprintf("B%d", label)
		return fmt.Sprintf("%s(%s)", name, info), info, labelAnnotation, nil
	}
	return name, "", noAnnotation, nil
}

func (d *disassembler) localName(slot int) string {
	if slot < len(d.fn.Params) {
		return fmt.Sprintf("Arg%d", slot)
	}
	return fmt.Sprintf("loc%d", slot)
}

// Signature renders the function header without its body, for example
// "public fun len(Arg0: &MyList): u64".
func (f *Function) Signature() string {
	var b strings.Builder
	switch f.Kind {
	case ast.Public:
		b.WriteString("public ")
	case ast.LambdaFunction:
		b.WriteString("lambda ")
	}
	b.WriteString("fun ")
	b.WriteString(f.Name)
	b.WriteString("(")
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "Arg%d: %s", i, p)
	}
	b.WriteString(")")
	switch len(f.Results) {
	case 0:
	case 1:
		fmt.Fprintf(&b, ": %s", f.Results[0])
	default:
		fmt.Fprintf(&b, ": %s", types.Tuple(f.Results))
	}
	return b.String()
}
