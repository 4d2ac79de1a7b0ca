// Package merge deduplicates the common sub-structure of two model graphs so a
// paired run evaluates shared nodes once.
package merge

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/danielorbach/go-component"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/learking/pathsampling"
	"github.com/learking/pathsampling/model"
)

// Merge combines the models a and b into a single graph in which every node of
// b that has a structurally equal twin in a (same ID, see Equal) is replaced by
// that twin. Replacing a node can make its consumers equal to their own twins,
// so replacements propagate bottom-up until a fixed point is reached. Nodes of b
// that survive but share an ID with some other node are renamed with the
// smallest integer suffix (from 2) that makes the ID unique. Replaced nodes are
// removed from the merged graph, so every node ID in it is unique; use
// Record.Resolve to locate a node of b.
//
// Nodes without an ID are given one (see model.AssignIDs) in the merged graph.
// Neither a nor b is modified; on error no merged graph is returned.
func Merge(ctx context.Context, a, b *model.Graph) (merged *model.Graph, rec *Record, err error) {
	ctx, span := tracer.Start(ctx, "merge.Merge", trace.WithAttributes(
		attribute.Int("merge.nodes.a", a.Len()),
		attribute.Int("merge.nodes.b", b.Len()),
	))
	defer span.End()
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		merged := 0
		if rec != nil {
			merged = len(rec.MergedIDs)
		}
		measureMerge(ctx, err == nil, merged, time.Since(start))
	}()

	a, b = a.Clone(), b.Clone()
	idsA, err := model.AssignIDs(a, a.Root())
	if err != nil {
		return nil, nil, fmt.Errorf("first model: %w", err)
	}
	idsB, err := model.AssignIDs(b, b.Root())
	if err != nil {
		return nil, nil, fmt.Errorf("second model: %w", err)
	}

	u, offset := model.Union(a, b)
	rec = &Record{
		Offset:   offset,
		RootA:    a.Root(),
		RootB:    b.Root() + offset,
		replaced: make(map[model.Ref]model.Ref),
	}
	pending := make(map[string]model.Ref, len(idsB))
	for id, ref := range idsB {
		pending[id] = ref + offset
	}

	// worklist of IDs present in both models; an ID may be queued more than once
	var queue []string
	for _, id := range slices.Sorted(maps.Keys(pending)) {
		if _, ok := idsA[id]; ok {
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		refB, ok := pending[id]
		if !ok {
			continue
		}
		refA := idsA[id]
		if !Equal(u, refA, refB) {
			continue
		}
		consumers := slices.Clone(u.Consumers(refB))
		for _, c := range consumers {
			inputs := u.Redirect(c, refB, refA)
			if len(inputs) == 0 {
				return nil, nil, &pathsampling.MergeInvariantViolation{ID: id, Consumer: u.Node(c).ID}
			}
			rec.Rewrites = append(rec.Rewrites, Rewrite{ID: id, Consumer: u.Node(c).ID, Inputs: inputs})
		}
		delete(pending, id)
		rec.MergedIDs = append(rec.MergedIDs, id)
		rec.replaced[refB] = refA
		for _, c := range consumers {
			if c < offset {
				continue
			}
			cid := u.Node(c).ID
			if _, ok := idsA[cid]; ok {
				queue = append(queue, cid)
			}
		}
	}
	if twin, ok := rec.replaced[rec.RootB]; ok {
		rec.RootB = twin
	}

	used := make(map[string]bool, len(idsA)+len(pending))
	for id := range idsA {
		used[id] = true
	}
	for id := range pending {
		used[id] = true
	}
	for _, id := range slices.Sorted(maps.Keys(pending)) {
		if _, ok := idsA[id]; !ok {
			continue
		}
		to := model.SmallestUnused(id, 2, func(id string) bool { return used[id] })
		used[to] = true
		u.Node(pending[id]).ID = to
		rec.Renames = append(rec.Renames, Rename{From: id, To: to})
	}

	for r := range model.Ref(u.Len()) {
		if _, ok := rec.replaced[r]; ok {
			continue
		}
		for _, c := range u.Children(r) {
			if _, ok := rec.replaced[c]; ok {
				return nil, nil, &pathsampling.MergeInvariantViolation{ID: u.Node(c).ID, Consumer: u.Node(r).ID}
			}
		}
	}
	rec.remap = u.Compact(func(r model.Ref) bool {
		_, ok := rec.replaced[r]
		return ok
	})
	rec.RootA, rec.RootB = rec.remap[rec.RootA], rec.remap[rec.RootB]

	component.Logger(ctx).Debug("Merged model graphs",
		"merge.merged", len(rec.MergedIDs),
		"merge.renamed", len(rec.Renames),
	)
	return u, rec, nil
}
