package ast

import (
	"fmt"
	"strings"

	"github.com/simon-1M/closurec/types"
)

const indentUnit = "    "

// Format renders the module in the structured diagnostic form used for
// golden tests. Field selects, packs and calls are fully qualified with the
// module's address and name; operators are printed by name with their
// operand type, e.g. "Add<u64>(x, y)".
func Format(m *Module) string {
	p := &printer{module: m}
	p.moduleDecl()
	return p.b.String()
}

// FormatFunction renders a single function of m.
func FormatFunction(m *Module, fn *Function) string {
	p := &printer{module: m}
	p.function(fn)
	return p.b.String()
}

type printer struct {
	module *Module
	b      strings.Builder
	depth  int
}

func (p *printer) qualify(name string) string {
	return p.module.QualifiedName() + "::" + name
}

func (p *printer) newline() {
	p.b.WriteString("\n")
	p.b.WriteString(strings.Repeat(indentUnit, p.depth))
}

func (p *printer) moduleDecl() {
	fmt.Fprintf(&p.b, "module %s {", p.module.QualifiedName())
	p.depth++
	for _, s := range p.module.Structs {
		p.newline()
		p.structDef(s)
	}
	for _, fn := range p.module.Functions {
		p.b.WriteString("\n")
		p.newline()
		p.function(fn)
	}
	p.depth--
	p.b.WriteString("\n}\n")
}

func (p *printer) structDef(s *StructDef) {
	fmt.Fprintf(&p.b, "struct %s", s.Name)
	if s.Abilities != 0 {
		fmt.Fprintf(&p.b, " has %s", s.Abilities)
	}
	p.b.WriteString(" {")
	p.depth++
	for _, f := range s.Fields {
		p.newline()
		fmt.Fprintf(&p.b, "%s: %s,", f.Name, f.Type)
	}
	p.depth--
	p.newline()
	p.b.WriteString("}")
}

func (p *printer) function(fn *Function) {
	switch fn.Kind {
	case Public:
		p.b.WriteString("public fun ")
	case LambdaFunction:
		p.b.WriteString("lambda fun ")
	default:
		p.b.WriteString("fun ")
	}
	p.b.WriteString(fn.Name)
	p.b.WriteString("(")
	p.params(fn.Params)
	p.b.WriteString(")")
	switch len(fn.Results) {
	case 0:
	case 1:
		fmt.Fprintf(&p.b, ": %s", fn.Results[0])
	default:
		fmt.Fprintf(&p.b, ": %s", types.Tuple(fn.Results))
	}
	p.b.WriteString(" ")
	if seq, ok := fn.Body.(*Seq); ok {
		p.seq(seq)
		return
	}
	p.seq(&Seq{Exprs: []Expr{fn.Body}})
}

func (p *printer) params(ps []Param) {
	for i, param := range ps {
		if i > 0 {
			p.b.WriteString(", ")
		}
		fmt.Fprintf(&p.b, "%s: %s", param.Name, param.Type)
	}
}

func (p *printer) seq(s *Seq) {
	p.b.WriteString("{")
	p.depth++
	for i, e := range s.Exprs {
		p.newline()
		p.expr(e)
		if i < len(s.Exprs)-1 {
			p.b.WriteString(";")
		}
	}
	p.depth--
	p.newline()
	p.b.WriteString("}")
}

func (p *printer) list(es []Expr) {
	for i, e := range es {
		if i > 0 {
			p.b.WriteString(", ")
		}
		p.expr(e)
	}
}

func (p *printer) expr(e Expr) {
	switch e := e.(type) {
	case *IntLit:
		fmt.Fprintf(&p.b, "%d", e.Value)
	case *BoolLit:
		fmt.Fprintf(&p.b, "%t", e.Value)
	case *AddressLit:
		fmt.Fprintf(&p.b, "@%s", e.Value)
	case *Local:
		p.b.WriteString(e.Name)
	case *Let:
		p.b.WriteString("let ")
		if len(e.Names) != 1 {
			p.b.WriteString("(")
		}
		for i, name := range e.Names {
			if i > 0 {
				p.b.WriteString(", ")
			}
			fmt.Fprintf(&p.b, "%s: %s", name, e.Types[i])
		}
		if len(e.Names) != 1 {
			p.b.WriteString(")")
		}
		p.b.WriteString(" = ")
		p.expr(e.Value)
	case *Assign:
		fmt.Fprintf(&p.b, "%s = ", e.Name)
		p.expr(e.Value)
	case *Seq:
		p.seq(e)
	case *If:
		p.b.WriteString("if (")
		p.expr(e.Cond)
		p.b.WriteString(") ")
		p.expr(e.Then)
		if e.Else != nil {
			p.b.WriteString(" else ")
			p.expr(e.Else)
		}
	case *While:
		p.b.WriteString("while (")
		p.expr(e.Cond)
		p.b.WriteString(") ")
		p.expr(e.Body)
	case *Return:
		p.b.WriteString("return ")
		p.list(e.Values)
	case *Abort:
		p.b.WriteString("abort ")
		p.expr(e.Code)
	case *Binary:
		if e.Op.IsLogical() {
			fmt.Fprintf(&p.b, "%s(", e.Op)
		} else {
			fmt.Fprintf(&p.b, "%s<%s>(", e.Op, e.X.Type())
		}
		p.list([]Expr{e.X, e.Y})
		p.b.WriteString(")")
	case *Unary:
		fmt.Fprintf(&p.b, "%s(", e.Op)
		p.expr(e.X)
		p.b.WriteString(")")
	case *Borrow:
		if e.Mutable {
			p.b.WriteString("Borrow(Mutable)(")
		} else {
			p.b.WriteString("Borrow(Immutable)(")
		}
		p.expr(e.X)
		p.b.WriteString(")")
	case *Select:
		fmt.Fprintf(&p.b, "select %s.%s(", p.qualify(e.Struct), e.Field)
		p.expr(e.Base)
		p.b.WriteString(")")
	case *Deref:
		p.b.WriteString("Deref(")
		p.expr(e.X)
		p.b.WriteString(")")
	case *WriteRef:
		p.b.WriteString("WriteRef(")
		p.list([]Expr{e.Ref, e.Value})
		p.b.WriteString(")")
	case *Pack:
		fmt.Fprintf(&p.b, "pack %s(", p.qualify(e.Struct))
		p.list(e.Fields)
		p.b.WriteString(")")
	case *Call:
		fmt.Fprintf(&p.b, "%s(", p.qualify(e.Func))
		p.list(e.Args)
		p.b.WriteString(")")
	case *Invoke:
		p.b.WriteString("(")
		p.expr(e.Closure)
		p.b.WriteString(")(")
		p.list(e.Args)
		p.b.WriteString(")")
	case *Lambda:
		p.b.WriteString("|")
		p.params(e.Params)
		p.b.WriteString("| ")
		if len(e.Captures) > 0 {
			names := make([]string, len(e.Captures))
			for i, c := range e.Captures {
				names[i] = c.Name
			}
			fmt.Fprintf(&p.b, "capturing (%s) ", strings.Join(names, ", "))
		}
		p.expr(e.Body)
	case *PackClosure:
		fmt.Fprintf(&p.b, "closure %s(", p.qualify(e.Func))
		p.list(e.Captured)
		p.b.WriteString(")")
	default:
		fmt.Fprintf(&p.b, "<unknown %T>", e)
	}
}
