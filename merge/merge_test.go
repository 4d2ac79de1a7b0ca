package merge

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/learking/pathsampling"
	"github.com/learking/pathsampling/model"
)

// posterior builds the model posterior(prior(mu), likelihood(mu, data)).
func posterior(data string) *model.Graph {
	var g model.Graph
	mu := g.Add(model.Node{ID: "mu", Kind: "RealParameter", Inputs: []model.Input{model.In("value", 0.5)}})
	prior := g.Add(model.Node{ID: "prior", Kind: "Normal", Inputs: []model.Input{
		model.In("x", mu), model.In("mean", 0.0), model.In("sigma", 1.0),
	}})
	lik := g.Add(model.Node{ID: "likelihood", Kind: "Normal", Inputs: []model.Input{
		model.In("x", mu), model.In("data", data),
	}})
	root := g.Add(model.Node{ID: "posterior", Kind: "Compound", Inputs: []model.Input{
		model.In("distribution", []model.Ref{prior, lik}),
	}})
	g.SetRoot(root)
	return &g
}

func TestMerge_identical(t *testing.T) {
	a, b := posterior("1 2 3"), posterior("1 2 3")

	g, rec, err := Merge(context.Background(), a, b)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"likelihood", "mu", "posterior", "prior"}, rec.MergedIDs, cmpopts.SortSlices(func(x, y string) bool { return x < y })); diff != "" {
		t.Errorf("MergedIDs mismatch (-want +got):\n%s", diff)
	}
	if len(rec.Renames) != 0 {
		t.Errorf("Renames = %v, want none", rec.Renames)
	}
	if rec.RootB != rec.RootA {
		t.Errorf("RootB = %v, want the first model's root %v", rec.RootB, rec.RootA)
	}
	if got, want := model.FingerprintOf(g, rec.RootB), model.FingerprintOf(a, a.Root()); got != want {
		t.Errorf("merged model fingerprint = %v, want %v", got, want)
	}
	if g.Len() != a.Len() {
		t.Errorf("merged graph has %d nodes, want %d", g.Len(), a.Len())
	}
	assertUniqueIDs(t, g)
	if diff := cmp.Diff([]model.Ref{1, 2}, g.Consumers(0)); diff != "" {
		t.Errorf("Consumers(mu) mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge_differingRootOnly(t *testing.T) {
	a, b := posterior("1 2 3"), posterior("1 2 3")
	root := b.Node(b.Root())
	root.Inputs = append(root.Inputs, model.In("weight", 2.0))

	g, rec, err := Merge(context.Background(), a, b)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"likelihood", "mu", "prior"}, rec.MergedIDs, cmpopts.SortSlices(func(x, y string) bool { return x < y })); diff != "" {
		t.Errorf("MergedIDs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Rename{{From: "posterior", To: "posterior2"}}, rec.Renames); diff != "" {
		t.Errorf("Renames mismatch (-want +got):\n%s", diff)
	}
	if g.Len() != a.Len()+1 {
		t.Errorf("merged graph has %d nodes, want %d", g.Len(), a.Len()+1)
	}
	assertUniqueIDs(t, g)

	residual := g.Node(rec.RootB)
	if residual.ID != "posterior2" {
		t.Errorf("second root ID = %q, want %q", residual.ID, "posterior2")
	}
	got, _ := residual.Input("distribution")
	want, _ := g.Node(rec.RootA).Input("distribution")
	if diff := cmp.Diff(want.Value, got.Value); diff != "" {
		t.Errorf("second root does not share the first model's distributions (-want +got):\n%s", diff)
	}
}

func TestMerge_differingRoot(t *testing.T) {
	a, b := posterior("1 2 3"), posterior("4 5")

	g, rec, err := Merge(context.Background(), a, b)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"mu", "prior"}, rec.MergedIDs); diff != "" {
		t.Errorf("MergedIDs mismatch (-want +got):\n%s", diff)
	}
	wantRenames := []Rename{
		{From: "likelihood", To: "likelihood2"},
		{From: "posterior", To: "posterior2"},
	}
	if diff := cmp.Diff(wantRenames, rec.Renames); diff != "" {
		t.Errorf("Renames mismatch (-want +got):\n%s", diff)
	}
	if got := g.Node(rec.RootB).ID; got != "posterior2" {
		t.Errorf("second root ID = %q, want %q", got, "posterior2")
	}
	if !rec.Merged("mu") || rec.Merged("likelihood") {
		t.Errorf("Merged() disagrees with MergedIDs %v", rec.MergedIDs)
	}

	// both likelihoods consume the one shared parameter; the replaced prior of
	// the second model is gone
	assertUniqueIDs(t, g)
	if g.Len() != 6 {
		t.Errorf("merged graph has %d nodes, want 6", g.Len())
	}
	mu := rec.Resolve(0)
	if mu != 0 {
		t.Fatalf("Resolve(mu) = %v, want the first model's node 0", mu)
	}
	if got := rec.Resolve(1); got != 1 {
		t.Errorf("Resolve(prior) = %v, want the first model's node 1", got)
	}
	if diff := cmp.Diff([]model.Ref{1, 2, rec.Resolve(2)}, g.Consumers(mu)); diff != "" {
		t.Errorf("Consumers(mu) mismatch (-want +got):\n%s", diff)
	}

	// the inputs are left untouched
	if id := b.Node(b.Root()).ID; id != "posterior" {
		t.Errorf("second model was renamed in place to %q", id)
	}
}

func TestMerge_uniqueSuffix(t *testing.T) {
	a, b := posterior("1 2 3"), posterior("4 5")
	// an unrelated node already uses the first candidate
	b.SetInput(b.Root(), "distribution", model.List{model.Ref(1), model.Ref(2), b.Add(model.Node{ID: "likelihood2", Kind: "Normal"})})

	g, rec, err := Merge(context.Background(), a, b)
	if err != nil {
		t.Fatal(err)
	}
	if got := g.Node(rec.Resolve(2)).ID; got != "likelihood3" {
		t.Errorf("renamed likelihood = %q, want %q", got, "likelihood3")
	}
	assertUniqueIDs(t, g)
}

func assertUniqueIDs(t *testing.T, g *model.Graph) {
	t.Helper()
	seen := make(map[string]model.Ref, g.Len())
	for r := range model.Ref(g.Len()) {
		id := g.Node(r).ID
		if prev, ok := seen[id]; ok {
			t.Errorf("ID %q is used by both %v and %v", id, prev, r)
		}
		seen[id] = r
	}
}

func TestMerge_invariantViolation(t *testing.T) {
	a, b := posterior("1 2 3"), posterior("1 2 3")
	// corrupt the bookkeeping of b: the prior no longer references mu, but the
	// consumer index still says it does.
	b.Node(1).Inputs[0].Value = nil

	g, rec, err := Merge(context.Background(), a, b)
	var violation *pathsampling.MergeInvariantViolation
	if !errors.As(err, &violation) {
		t.Fatalf("Merge() error = %v, want a MergeInvariantViolation", err)
	}
	want := &pathsampling.MergeInvariantViolation{ID: "mu", Consumer: "prior"}
	if diff := cmp.Diff(want, violation); diff != "" {
		t.Errorf("violation mismatch (-want +got):\n%s", diff)
	}
	if g != nil || rec != nil {
		t.Error("Merge() returned a partial result alongside its error")
	}
}

func TestEqualValues(t *testing.T) {
	tests := []struct {
		name string
		x, y model.Value
		want bool
	}{
		{"nil", nil, nil, true},
		{"nil and value", nil, model.Scalar{V: 0.0}, false},
		{"scalars", model.Scalar{V: 1.5}, model.Scalar{V: 1.5}, true},
		{"scalars of different types", model.Scalar{V: 1}, model.Scalar{V: 1.0}, false},
		{"trimmed texts", model.Text(" a b "), model.Text("a b"), true},
		{"texts", model.Text("a"), model.Text("b"), false},
		{"refs", model.Ref(1), model.Ref(1), true},
		{"distinct refs", model.Ref(1), model.Ref(2), false},
		{"lists ignore order", model.List{model.Ref(1), model.Ref(2)}, model.List{model.Ref(2), model.Ref(1)}, true},
		{"lists of different length", model.List{model.Ref(1)}, model.List{model.Ref(1), model.Ref(1)}, false},
		{"text and scalar", model.Text("1"), model.Scalar{V: 1}, false},
		{"uncomparable scalars", model.Scalar{V: []float64{1, 2}}, model.Scalar{V: []float64{1, 2}}, true},
		{"distinct uncomparable scalars", model.Scalar{V: []float64{1, 2}}, model.Scalar{V: []float64{2, 1}}, false},
		{"uncomparable and comparable scalars", model.Scalar{V: []float64{1}}, model.Scalar{V: 1.0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EqualValues(tt.x, tt.y); got != tt.want {
				t.Errorf("EqualValues(%v, %v) = %v, want %v", tt.x, tt.y, got, tt.want)
			}
		})
	}
}

func TestCombineLists(t *testing.T) {
	build := func(step string) *model.Graph {
		var g model.Graph
		mu := g.Add(model.Node{ID: "mu", Kind: "RealParameter"})
		shared := g.Add(model.Node{ID: "walk", Kind: "RandomWalk", Inputs: []model.Input{model.In("parameter", mu)}})
		own := g.Add(model.Node{ID: "scale", Kind: "Scale", Inputs: []model.Input{model.In("parameter", mu), model.In("factor", step)}})
		run := g.Add(model.Node{ID: "run", Kind: "MCMC", Inputs: []model.Input{
			model.In("operator", []model.Ref{shared, own}),
			model.In("stateNode", []model.Ref{mu}),
		}})
		g.SetRoot(run)
		return &g
	}
	g, rec, err := Merge(context.Background(), build("0.5"), build("0.75"))
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"operator", "stateNode"} {
		if err := CombineLists(g, rec.RootA, rec.RootB, name); err != nil {
			t.Fatal(err)
		}
	}
	ops, _ := g.Node(rec.RootA).Input("operator")
	want := model.List{model.Ref(1), model.Ref(2), rec.Resolve(2)}
	if diff := cmp.Diff(want, ops.Value); diff != "" {
		t.Errorf("combined operators mismatch (-want +got):\n%s", diff)
	}
	nodes, _ := g.Node(rec.RootA).Input("stateNode")
	if diff := cmp.Diff(model.List{model.Ref(0)}, nodes.Value); diff != "" {
		t.Errorf("combined state nodes mismatch (-want +got):\n%s", diff)
	}
}
