package merge

import (
	"fmt"
	"slices"

	"github.com/learking/pathsampling/model"
)

// CombineLists appends the elements of the list input named name of the node
// from to the same list of the node into, skipping elements into already holds.
// Elements that were replaced by a merge resolve to the very node into lists,
// so a shared operator or state node ends up in the combined list once.
//
// It returns an error when into lacks the list input; a missing input on from
// is not an error, as there is nothing to combine.
func CombineLists(g *model.Graph, into, from model.Ref, name string) error {
	dst, ok := g.Node(into).Input(name)
	if !ok || dst.Type != model.ListType {
		return fmt.Errorf("combine %s: node %s has no list input %q", name, g.Node(into), name)
	}
	src, ok := g.Node(from).Input(name)
	if !ok || src.Value == nil {
		return nil
	}
	elems, ok := src.Value.(model.List)
	if !ok {
		return fmt.Errorf("combine %s: input of node %s is not a list", name, g.Node(from))
	}
	var combined model.List
	if dst.Value != nil {
		combined = slices.Clone(dst.Value.(model.List))
	}
	for _, e := range elems {
		if !slices.ContainsFunc(combined, func(f model.Value) bool { return sameElement(e, f) }) {
			combined = append(combined, e)
		}
	}
	g.SetInput(into, name, combined)
	return nil
}

func sameElement(x, y model.Value) bool {
	if rx, ok := x.(model.Ref); ok {
		ry, ok := y.(model.Ref)
		return ok && rx == ry
	}
	return EqualValues(x, y)
}
