package ast

// Visitor defines the interface for model traversal. If Visit returns nil,
// children of the node are not visited. Otherwise, the returned Visitor
// is used to visit children.
type Visitor interface {
	Visit(node Node) (w Visitor)
}

// Walk traverses an expression tree in depth-first source order. It starts
// by calling v.Visit(node); if the returned visitor w is not nil, Walk is
// invoked recursively with visitor w for each of the non-nil children of
// node.
func Walk(v Visitor, node Node) {
	if v = v.Visit(node); v == nil {
		return
	}
	for _, child := range Children(node) {
		Walk(v, child)
	}
}

// Children returns the direct sub-expressions of node in source order.
func Children(node Node) []Expr {
	switch n := node.(type) {
	case *Let:
		return []Expr{n.Value}
	case *Assign:
		return []Expr{n.Value}
	case *Seq:
		return n.Exprs
	case *If:
		if n.Else == nil {
			return []Expr{n.Cond, n.Then}
		}
		return []Expr{n.Cond, n.Then, n.Else}
	case *While:
		return []Expr{n.Cond, n.Body}
	case *Return:
		return n.Values
	case *Abort:
		return []Expr{n.Code}
	case *Binary:
		return []Expr{n.X, n.Y}
	case *Unary:
		return []Expr{n.X}
	case *Borrow:
		return []Expr{n.X}
	case *Select:
		return []Expr{n.Base}
	case *Deref:
		return []Expr{n.X}
	case *WriteRef:
		return []Expr{n.Ref, n.Value}
	case *Pack:
		return n.Fields
	case *Call:
		return n.Args
	case *Invoke:
		return append([]Expr{n.Closure}, n.Args...)
	case *Lambda:
		return []Expr{n.Body}
	case *PackClosure:
		return n.Captured
	}
	return nil
}

// Inspect traverses an expression tree in depth-first order. It calls
// f(node) for each node; if f returns true, Inspect invokes f recursively
// for each of the non-nil children of node.
func Inspect(node Node, f func(Node) bool) {
	Walk(inspector(f), node)
}

type inspector func(Node) bool

func (f inspector) Visit(node Node) Visitor {
	if f(node) {
		return f
	}
	return nil
}
