package merge

import (
	"slices"

	"github.com/learking/pathsampling/model"
)

// A Record reports what a Merge did to the second model.
type Record struct {
	// Offset is the shift applied to the refs of the second model when it was
	// copied next to the first, before replaced nodes were removed.
	Offset model.Ref
	// RootA and RootB locate the roots of both models in the merged arena.
	RootA, RootB model.Ref

	MergedIDs []string  // IDs of second-model nodes replaced by their first-model twin, in merge order
	Rewrites  []Rewrite // references redirected from a replaced node to its twin
	Renames   []Rename  // second-model IDs changed to keep IDs unique

	replaced map[model.Ref]model.Ref // shifted ref of a replaced node to its twin
	remap    []model.Ref             // shifted ref to merged-graph ref, -1 if replaced
}

// A Rewrite is a redirected reference: the named inputs of Consumer referenced
// the second-model node ID and now reference its first-model twin.
type Rewrite struct {
	ID       string
	Consumer string
	Inputs   []string
}

// A Rename is an ID change made by the uniqueness repair.
type Rename struct {
	From, To string
}

// Merged reports whether the second-model node with the given ID was replaced
// by its first-model twin.
func (r *Record) Merged(id string) bool {
	return slices.Contains(r.MergedIDs, id)
}

// Resolve translates a ref of the second model, as passed to Merge, to the node
// that represents it in the merged graph.
func (r *Record) Resolve(b model.Ref) model.Ref {
	ref := b + r.Offset
	if twin, ok := r.replaced[ref]; ok {
		ref = twin
	}
	return r.remap[ref]
}
