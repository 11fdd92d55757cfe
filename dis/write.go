package dis

import (
	"bufio"
	"fmt"
	"io"

	"github.com/simon-1M/closurec/bytecode"
)

// Write renders the whole module in mnemonic form:
//
//	module 0x42::test (format v8)
//
//	struct MyList has drop {
//		len: u64
//	}
//
//	public fun len(Arg0: &MyList): u64 {
//		var loc1: &u64
//	B0:
//		0: MoveLoc[0](Arg0: &MyList)
//		...
//	}
func Write(w io.Writer, m *bytecode.Module) error {
	fns, err := Disassemble(m)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "module %s (format v%d)\n", m.QualifiedName(), m.Version)
	for _, s := range m.Structs {
		bw.WriteString("\nstruct ")
		bw.WriteString(s.Name)
		if s.Abilities != 0 {
			fmt.Fprintf(bw, " has %s", s.Abilities)
		}
		bw.WriteString(" {\n")
		for _, f := range s.Fields {
			ty, err := m.TypeOf(f.Type)
			if err != nil {
				return fmt.Errorf("struct %s field %s: %w", s.Name, f.Name, err)
			}
			fmt.Fprintf(bw, "\t%s: %s\n", f.Name, ty)
		}
		bw.WriteString("}\n")
	}
	for i := range fns {
		bw.WriteString("\n")
		writeFunction(bw, &fns[i])
	}
	return bw.Flush()
}

func writeFunction(w *bufio.Writer, fn *Function) {
	fmt.Fprintf(w, "%s {\n", fn.Signature())
	for i, ty := range fn.Locals {
		fmt.Fprintf(w, "\tvar loc%d: %s\n", len(fn.Params)+i, ty)
	}
	for _, b := range fn.Blocks {
		fmt.Fprintf(w, "B%d:\n", b.Label)
		for _, instr := range b.Instructions {
			fmt.Fprintf(w, "\t%d: %s\n", instr.Offset, instr.Text)
		}
	}
	w.WriteString("}\n")
}
