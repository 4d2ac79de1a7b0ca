package model

// A Visitor defines a Visit method invoked for each node encountered by Walk.
// If the result visitor w is not nil, Walk visits each child of the node with
// the visitor w, followed by a call of w.Visit(g, -1).
type Visitor interface {
	Visit(g *Graph, node Ref) (w Visitor)
}

// Walk traverses the nodes reachable from root in depth-first order, visiting
// children in the order their inputs are declared. Nodes shared by several
// consumers are visited once.
func Walk(v Visitor, g *Graph, root Ref) {
	seen := make(map[Ref]bool)
	walk(v, g, root, seen)
}

func walk(v Visitor, g *Graph, node Ref, seen map[Ref]bool) {
	if seen[node] {
		return
	}
	seen[node] = true
	if v = v.Visit(g, node); v == nil {
		return
	}
	for _, child := range g.Children(node) {
		walk(v, g, child, seen)
	}
	v.Visit(g, -1)
}

type inspector func(g *Graph, node Ref) bool

func (f inspector) Visit(g *Graph, node Ref) Visitor {
	if node < 0 {
		return nil
	}
	if f(g, node) {
		return f
	}
	return nil
}

// Inspect traverses the nodes reachable from root in depth-first order: It
// starts by calling f(g, root). If f returns true, Inspect invokes f
// recursively for each child of the node.
func Inspect(g *Graph, root Ref, f func(g *Graph, node Ref) bool) {
	Walk(inspector(f), g, root)
}

// Reachable lists the nodes reachable from root in depth-first pre-order.
func Reachable(g *Graph, root Ref) []Ref {
	var refs []Ref
	Inspect(g, root, func(_ *Graph, node Ref) bool {
		refs = append(refs, node)
		return true
	})
	return refs
}
