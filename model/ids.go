package model

import (
	"fmt"
	"strconv"
)

// DuplicateIDError is returned when two distinct nodes of one model carry the
// same explicit ID.
type DuplicateIDError struct {
	ID            string
	First, Second Ref
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("model: nodes %v and %v share the id %q", e.First, e.Second, e.ID)
}

// AssignIDs enumerates the nodes reachable from root and gives every node
// without an ID the name of its kind followed by the smallest non-negative
// integer that is not yet used within the model. Enumeration is depth-first in
// input order, so the assignment is deterministic. It returns the resulting
// mapping from ID to node.
func AssignIDs(g *Graph, root Ref) (map[string]Ref, error) {
	ids := make(map[string]Ref)
	var missing []Ref
	var err error
	Inspect(g, root, func(g *Graph, node Ref) bool {
		id := g.Node(node).ID
		if id == "" {
			missing = append(missing, node)
			return true
		}
		if prev, ok := ids[id]; ok && prev != node {
			err = &DuplicateIDError{ID: id, First: prev, Second: node}
			return false
		}
		ids[id] = node
		return true
	})
	if err != nil {
		return nil, err
	}
	for _, node := range missing {
		n := g.Node(node)
		id := SmallestUnused(n.Kind, 0, func(id string) bool {
			_, used := ids[id]
			return used
		})
		n.ID = id
		ids[id] = node
	}
	return ids, nil
}

// SmallestUnused returns prefix followed by the smallest integer i ≥ from for
// which used reports false.
func SmallestUnused(prefix string, from int, used func(id string) bool) string {
	for i := from; ; i++ {
		id := prefix + strconv.Itoa(i)
		if !used(id) {
			return id
		}
	}
}
