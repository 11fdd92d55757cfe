package ir

import (
	"fmt"
	"strings"

	"github.com/simon-1M/closurec/ast"
	"github.com/simon-1M/closurec/types"
)

// Annotator returns extra lines to print after instruction index of the
// given block.
type Annotator func(block Label, index int) []string

// Format renders fn as a baseline listing: the declared locals, then every
// block label followed by its instructions, one per line.
func Format(fn *Function) string {
	return FormatWith(fn, "baseline", nil)
}

// FormatWith renders fn like Format, tagging the listing with variant and
// printing the lines returned by annotate after each instruction.
func FormatWith(fn *Function, variant string, annotate Annotator) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[variant %s]\n", variant)
	switch fn.Kind {
	case ast.Public:
		b.WriteString("public fun ")
	case ast.LambdaFunction:
		b.WriteString("lambda fun ")
	default:
		b.WriteString("fun ")
	}
	if fn.Module != "" {
		b.WriteString(fn.Module + "::")
	}
	b.WriteString(fn.Name)
	b.WriteString("(")
	for i, t := range fn.Params() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(declaration(t))
	}
	b.WriteString(")")
	switch len(fn.Results) {
	case 0:
	case 1:
		fmt.Fprintf(&b, ": %s", fn.Results[0])
	default:
		fmt.Fprintf(&b, ": %s", types.Tuple(fn.Results))
	}
	b.WriteString(" {\n")
	for _, t := range fn.Temps[fn.NumParams:] {
		fmt.Fprintf(&b, "     var %s\n", declaration(t))
	}
	pc := 0
	for _, blk := range fn.Blocks {
		fmt.Fprintf(&b, "  %s:\n", blk.Label)
		for i, instr := range blk.Instrs {
			fmt.Fprintf(&b, "  %2d: %s\n", pc, instr)
			pc++
			if annotate == nil {
				continue
			}
			for _, line := range annotate(blk.Label, i) {
				fmt.Fprintf(&b, "     # %s\n", line)
			}
		}
	}
	b.WriteString("}\n")
	return b.String()
}

func declaration(t Temp) string {
	if t.Name != "" {
		return fmt.Sprintf("$t%d|%s: %s", t.Index, t.Name, t.Type)
	}
	return fmt.Sprintf("$t%d: %s", t.Index, t.Type)
}

// TempName renders a temporary reference.
func TempName(t int) string {
	return fmt.Sprintf("$t%d", t)
}

func temps(ts []int) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = TempName(t)
	}
	return strings.Join(parts, ", ")
}

func results(ts []int) string {
	switch len(ts) {
	case 0:
		return ""
	case 1:
		return TempName(ts[0]) + " := "
	default:
		return "(" + temps(ts) + ") := "
	}
}

func (i *Assign) String() string {
	return fmt.Sprintf("$t%d := $t%d", i.Dst, i.Src)
}

func (i *LoadConst) String() string {
	return fmt.Sprintf("$t%d := %s", i.Dst, i.Value)
}

func (i *BorrowLoc) String() string {
	if i.Mutable {
		return fmt.Sprintf("$t%d := borrow_local_mut($t%d)", i.Dst, i.Src)
	}
	return fmt.Sprintf("$t%d := borrow_local($t%d)", i.Dst, i.Src)
}

func (i *BorrowField) String() string {
	name := "borrow_field"
	if i.Mutable {
		name = "borrow_field_mut"
	}
	return fmt.Sprintf("$t%d := %s<%s>.%s($t%d)", i.Dst, name, i.Struct, i.FieldName, i.Ref)
}

func (i *ReadRef) String() string {
	return fmt.Sprintf("$t%d := read_ref($t%d)", i.Dst, i.Ref)
}

func (i *WriteRef) String() string {
	return fmt.Sprintf("write_ref($t%d, $t%d)", i.Ref, i.Value)
}

func (i *Pack) String() string {
	return fmt.Sprintf("$t%d := pack %s(%s)", i.Dst, i.Struct, temps(i.Fields))
}

func (i *BinaryOp) String() string {
	return fmt.Sprintf("$t%d := %s($t%d, $t%d)", i.Dst, i.Op.Symbol(), i.X, i.Y)
}

func (i *UnaryOp) String() string {
	return fmt.Sprintf("$t%d := !($t%d)", i.Dst, i.X)
}

func (i *Call) String() string {
	return fmt.Sprintf("%s%s(%s)", results(i.Dsts), i.Func, temps(i.Args))
}

func (i *Invoke) String() string {
	return fmt.Sprintf("%sinvoke $t%d(%s)", results(i.Dsts), i.Closure, temps(i.Args))
}

func (i *PackClosure) String() string {
	return fmt.Sprintf("$t%d := closure %s(%s)", i.Dst, i.Func, temps(i.Captured))
}

func (i *Branch) String() string {
	return "goto " + i.Target.String()
}

func (i *CondBranch) String() string {
	return fmt.Sprintf("if ($t%d) goto %s else goto %s", i.Cond, i.Then, i.Else)
}

func (i *Return) String() string {
	if len(i.Values) == 1 {
		return "return " + TempName(i.Values[0])
	}
	return "return (" + temps(i.Values) + ")"
}

func (i *Abort) String() string {
	return fmt.Sprintf("abort($t%d)", i.Code)
}
