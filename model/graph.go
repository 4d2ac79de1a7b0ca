package model

import (
	"fmt"
	"slices"
)

// Node is a vertex of a model Graph: a named instance of a declared kind with an
// ordered list of typed inputs.
type Node struct {
	// ID identifies the node within its model. An empty ID is assigned by
	// AssignIDs.
	ID string
	// Kind is the declared type name of the node (e.g. "Normal", "Scale").
	Kind   string
	Inputs []Input
}

// ListInputs implements InputLister.
func (n *Node) ListInputs() []Input { return n.Inputs }

// Input returns the input of n with the given name.
func (n *Node) Input(name string) (Input, bool) {
	for _, in := range n.Inputs {
		if in.Name == name {
			return in, true
		}
	}
	return Input{}, false
}

func (n *Node) String() string {
	if n.ID == "" {
		return n.Kind
	}
	return n.Kind + "(" + n.ID + ")"
}

// A Graph is an arena of nodes addressed by Ref. Forward edges are the Ref
// values held in node inputs; the graph also maintains the reverse index from
// every node to the nodes that consume it, so that edges may be rewritten
// without a mutual pointer structure.
//
// Add only accepts references to nodes added before the new one. SetInput and
// Build accept references to any node of the graph, as combining the lists of
// two merged models points the first root at nodes of the second.
type Graph struct {
	nodes     []Node
	consumers [][]Ref
	root      Ref
}

// Add appends the given node to the arena and returns its Ref. It panics when an
// input of n references a node that is not part of g.
func (g *Graph) Add(n Node) Ref {
	ref := Ref(len(g.nodes))
	n.Inputs = slices.Clone(n.Inputs)
	for _, in := range n.Inputs {
		refsOf(in.Value, func(r Ref) {
			if r < 0 || r >= ref {
				panic(fmt.Sprintf("model: input %s of %s references unknown node %v", in.Name, n.String(), r))
			}
		})
	}
	g.nodes = append(g.nodes, n)
	g.consumers = append(g.consumers, nil)
	for _, child := range g.Children(ref) {
		g.addConsumer(child, ref)
	}
	return ref
}

// Build returns a graph holding the given nodes, addressed by their position,
// rooted at root. Unlike Add, inputs may reference nodes in any position.
func Build(nodes []Node, root Ref) (*Graph, error) {
	g := &Graph{
		nodes:     make([]Node, len(nodes)),
		consumers: make([][]Ref, len(nodes)),
	}
	for i, n := range nodes {
		n.Inputs = cloneInputs(n.Inputs)
		var bad []Ref
		for _, in := range n.Inputs {
			refsOf(in.Value, func(r Ref) {
				if r < 0 || int(r) >= len(nodes) {
					bad = append(bad, r)
				}
			})
		}
		if len(bad) > 0 {
			return nil, fmt.Errorf("model: %s references unknown nodes %v", n.String(), bad)
		}
		g.nodes[i] = n
	}
	if root < 0 || int(root) >= len(nodes) {
		return nil, fmt.Errorf("model: root %v is out of range [0, %d)", root, len(nodes))
	}
	g.root = root
	for r := range g.nodes {
		for _, child := range g.Children(Ref(r)) {
			g.addConsumer(child, Ref(r))
		}
	}
	return g, nil
}

// SetRoot marks the node that a model is enumerated from.
func (g *Graph) SetRoot(r Ref) {
	g.check(r)
	g.root = r
}

// Root returns the node that a model is enumerated from. It is the first node
// added to g until SetRoot is called.
func (g *Graph) Root() Ref { return g.root }

// Len returns the number of nodes in the arena.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns the node addressed by r. Callers may modify the returned node's
// ID, but must use Redirect to modify its references.
func (g *Graph) Node(r Ref) *Node {
	g.check(r)
	return &g.nodes[r]
}

// Children returns the distinct nodes referenced by r's inputs, in input order.
func (g *Graph) Children(r Ref) []Ref {
	g.check(r)
	var children []Ref
	for _, in := range g.nodes[r].Inputs {
		refsOf(in.Value, func(c Ref) {
			if !slices.Contains(children, c) {
				children = append(children, c)
			}
		})
	}
	return children
}

// Consumers returns the nodes whose inputs reference r.
// Do not modify the returned slice.
func (g *Graph) Consumers(r Ref) []Ref {
	g.check(r)
	return g.consumers[r]
}

// Redirect rewrites every reference from consumer to the node from so that it
// references the node to instead. References held in lists keep their position.
// It returns the names of the rewritten inputs, which is empty when consumer
// does not reference from.
func (g *Graph) Redirect(consumer, from, to Ref) []string {
	g.check(consumer)
	g.check(from)
	g.check(to)
	var rewritten []string
	n := &g.nodes[consumer]
	for i, in := range n.Inputs {
		found := false
		refsOf(in.Value, func(r Ref) { found = found || r == from })
		if !found {
			continue
		}
		n.Inputs[i].Value = mapRefs(in.Value, func(r Ref) Ref {
			if r == from {
				return to
			}
			return r
		})
		rewritten = append(rewritten, in.Name)
	}
	if len(rewritten) > 0 {
		g.consumers[from] = slices.DeleteFunc(g.consumers[from], func(r Ref) bool { return r == consumer })
		g.addConsumer(to, consumer)
	}
	return rewritten
}

// SetInput replaces the value of the named input of r, keeping the consumer
// index consistent. It returns false when r has no such input.
func (g *Graph) SetInput(r Ref, name string, v Value) bool {
	g.check(r)
	refsOf(v, g.check)
	n := &g.nodes[r]
	i := slices.IndexFunc(n.Inputs, func(in Input) bool { return in.Name == name })
	if i < 0 {
		return false
	}
	before := g.Children(r)
	n.Inputs[i].Value = v
	after := g.Children(r)
	for _, c := range before {
		if !slices.Contains(after, c) {
			g.consumers[c] = slices.DeleteFunc(g.consumers[c], func(x Ref) bool { return x == r })
		}
	}
	for _, c := range after {
		g.addConsumer(c, r)
	}
	return true
}

// Clone returns a deep copy of g.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		nodes:     make([]Node, len(g.nodes)),
		consumers: make([][]Ref, len(g.consumers)),
		root:      g.root,
	}
	for i, n := range g.nodes {
		n.Inputs = cloneInputs(n.Inputs)
		c.nodes[i] = n
	}
	for i, cs := range g.consumers {
		c.consumers[i] = slices.Clone(cs)
	}
	return c
}

// Union copies a and b into a single arena; a's nodes keep their refs while
// b's refs are shifted by offset. The root of the union is a's root. Neither a
// nor b is modified.
func Union(a, b *Graph) (u *Graph, offset Ref) {
	u = a.Clone()
	offset = Ref(len(u.nodes))
	shift := func(r Ref) Ref { return r + offset }
	for _, n := range b.nodes {
		inputs := make([]Input, len(n.Inputs))
		for i, in := range n.Inputs {
			in.Value = mapRefs(in.Value, shift)
			inputs[i] = in
		}
		n.Inputs = inputs
		u.nodes = append(u.nodes, n)
	}
	for _, cs := range b.consumers {
		shifted := make([]Ref, len(cs))
		for i, c := range cs {
			shifted[i] = shift(c)
		}
		u.consumers = append(u.consumers, shifted)
	}
	return u, offset
}

// Compact removes the nodes for which drop reports true and renumbers the
// remaining nodes, keeping their order. It returns the new ref of every old ref,
// or -1 for a removed node. It panics when the root or a node referenced by a
// remaining node is removed.
func (g *Graph) Compact(drop func(Ref) bool) []Ref {
	remap := make([]Ref, len(g.nodes))
	kept := 0
	for i := range g.nodes {
		if drop(Ref(i)) {
			remap[i] = -1
			continue
		}
		remap[i] = Ref(kept)
		kept++
	}
	if remap[g.root] < 0 {
		panic(fmt.Sprintf("model: cannot remove the root %v", g.root))
	}

	nodes := make([]Node, 0, kept)
	for i, n := range g.nodes {
		if remap[i] < 0 {
			continue
		}
		inputs := make([]Input, len(n.Inputs))
		for j, in := range n.Inputs {
			in.Value = mapRefs(in.Value, func(r Ref) Ref {
				if remap[r] < 0 {
					panic(fmt.Sprintf("model: %s references removed node %v", n.String(), r))
				}
				return remap[r]
			})
			inputs[j] = in
		}
		n.Inputs = inputs
		nodes = append(nodes, n)
	}
	g.nodes = nodes
	g.consumers = make([][]Ref, len(nodes))
	for r := range nodes {
		for _, child := range g.Children(Ref(r)) {
			g.addConsumer(child, Ref(r))
		}
	}
	g.root = remap[g.root]
	return remap
}

func (g *Graph) addConsumer(child, consumer Ref) {
	if !slices.Contains(g.consumers[child], consumer) {
		g.consumers[child] = append(g.consumers[child], consumer)
	}
}

func (g *Graph) check(r Ref) {
	if r < 0 || int(r) >= len(g.nodes) {
		panic(fmt.Sprintf("model: node %v is out of range [0, %d)", r, len(g.nodes)))
	}
}

func cloneInputs(inputs []Input) []Input {
	c := make([]Input, len(inputs))
	for i, in := range inputs {
		in.Value = mapRefs(in.Value, func(r Ref) Ref { return r })
		c[i] = in
	}
	return c
}
