package vm

import (
	"fmt"
	"strings"
)

// Value is a runtime value. Its dynamic type is one of uint8, uint64, bool,
// Address, *Struct, *Closure or *Ref.
type Value any

// Address is an account address such as "0x1".
type Address string

// Struct is a packed struct value. Fields are in declaration order.
type Struct struct {
	Name   string
	Fields []Value
}

func (s *Struct) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = Format(f)
	}
	return fmt.Sprintf("%s{%s}", s.Name, strings.Join(parts, ", "))
}

// Closure is a function index paired with the values it captured. Captured
// values become the leading arguments when the closure is invoked.
type Closure struct {
	Function int
	Name     string
	Captured []Value
}

func (c *Closure) String() string {
	return fmt.Sprintf("closure(%s, %d captured)", c.Name, len(c.Captured))
}

// Ref points at a local slot of a live frame or at a field of a struct.
type Ref struct {
	Mutable bool
	cells   []Value
	index   int
}

// Load returns the referenced value without copying it.
func (r *Ref) Load() Value {
	return r.cells[r.index]
}

// Store replaces the referenced value.
func (r *Ref) Store(v Value) {
	r.cells[r.index] = v
}

func (r *Ref) String() string {
	if r.Mutable {
		return "&mut " + Format(r.Load())
	}
	return "&" + Format(r.Load())
}

// Format renders v for diagnostics.
func Format(v Value) string {
	switch v := v.(type) {
	case nil:
		return "<moved>"
	case uint8:
		return fmt.Sprintf("%du8", v)
	case uint64:
		return fmt.Sprintf("%d", v)
	case Address:
		return "@" + string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// copyValue returns a deep copy of v. References are shared, since copying
// a reference never copies what it points to.
func copyValue(v Value) Value {
	switch v := v.(type) {
	case *Struct:
		fields := make([]Value, len(v.Fields))
		for i, f := range v.Fields {
			fields[i] = copyValue(f)
		}
		return &Struct{Name: v.Name, Fields: fields}
	case *Closure:
		captured := make([]Value, len(v.Captured))
		for i, c := range v.Captured {
			captured[i] = copyValue(c)
		}
		return &Closure{Function: v.Function, Name: v.Name, Captured: captured}
	default:
		return v
	}
}

// Equal compares two values structurally. References compare the values
// they point to.
func Equal(a, b Value) bool {
	if ra, ok := a.(*Ref); ok {
		a = ra.Load()
	}
	if rb, ok := b.(*Ref); ok {
		b = rb.Load()
	}
	switch a := a.(type) {
	case *Struct:
		b, ok := b.(*Struct)
		if !ok || a.Name != b.Name || len(a.Fields) != len(b.Fields) {
			return false
		}
		for i := range a.Fields {
			if !Equal(a.Fields[i], b.Fields[i]) {
				return false
			}
		}
		return true
	case *Closure:
		b, ok := b.(*Closure)
		if !ok || a.Function != b.Function || len(a.Captured) != len(b.Captured) {
			return false
		}
		for i := range a.Captured {
			if !Equal(a.Captured[i], b.Captured[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
