package neo4jstore

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/learking/pathsampling/internal/dbtest"
	"github.com/learking/pathsampling/internal/toymodel"
	"github.com/learking/pathsampling/merge"
	"github.com/learking/pathsampling/model"
)

func TestStore(t *testing.T) {
	d := dbtest.SetupNeo4j(t)
	ctx := context.Background()
	database := dbtest.Database(t)
	if err := BootstrapDatabase(ctx, d, database); err != nil {
		t.Fatalf("BootstrapDatabase() error = %v", err)
	}
	s := New(d, database)

	a := toymodel.NormalModel{PriorMean: -1, PriorSigma: 1, Sigma: 1, Data: []float64{1, 2}, StepSize: 0.5}
	b := a
	b.PriorMean, b.StepSize = 1, 0.25
	g, rec, err := merge.Merge(ctx, a.Graph(), b.Graph())
	if err != nil {
		t.Fatal(err)
	}
	// the first root now also references the second model's walk
	if err := merge.CombineLists(g, rec.RootA, rec.RootB, "operator"); err != nil {
		t.Fatal(err)
	}

	if err := s.SaveGraph(ctx, "run-1", g); err != nil {
		t.Fatalf("SaveGraph() error = %v", err)
	}
	got, err := s.LoadGraph(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadGraph() error = %v", err)
	}
	assertSameGraph(t, g, got)

	// Saving again replaces the graph.
	single := a.Graph()
	if err := s.SaveGraph(ctx, "run-1", single); err != nil {
		t.Fatalf("SaveGraph() again error = %v", err)
	}
	got, err = s.LoadGraph(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadGraph() error = %v", err)
	}
	assertSameGraph(t, single, got)

	if _, err := s.LoadGraph(ctx, "run-2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadGraph() of an unknown graph: error = %v, want ErrNotFound", err)
	}
}

func assertSameGraph(t *testing.T, want, got *model.Graph) {
	t.Helper()
	if want.Len() != got.Len() || want.Root() != got.Root() {
		t.Fatalf("loaded %d nodes rooted at %v, want %d rooted at %v", got.Len(), got.Root(), want.Len(), want.Root())
	}
	for r := range want.Len() {
		if diff := cmp.Diff(want.Node(model.Ref(r)), got.Node(model.Ref(r))); diff != "" {
			t.Errorf("node %d mismatch (-want +got):\n%s", r, diff)
		}
	}
	if model.FingerprintOf(want, want.Root()) != model.FingerprintOf(got, got.Root()) {
		t.Error("fingerprints differ")
	}
}

func TestBootstrapDatabase_constraints(t *testing.T) {
	d := dbtest.SetupNeo4j(t)
	ctx := context.Background()
	database := dbtest.Database(t)
	for range 2 {
		if err := BootstrapDatabase(ctx, d, database); err != nil {
			t.Fatalf("BootstrapDatabase() error = %v", err)
		}
	}

	session := d.NewSession(ctx, neo4j.SessionConfig{DatabaseName: database})
	defer func() {
		if err := session.Close(ctx); err != nil {
			t.Fatal("Failed to close session:", err)
		}
	}()
	result, err := session.Run(ctx, "SHOW CONSTRAINTS WHERE type = 'NODE_KEY'", nil)
	if err != nil {
		t.Fatal("Failed to list constraints:", err)
	}
	found := make(map[string]bool)
	for result.Next(ctx) {
		labels, ok := result.Record().Get("labelsOrTypes")
		if !ok {
			t.Fatal("Constraints table contains no labels column")
		}
		for _, label := range labels.([]any) {
			found[label.(string)] = true
		}
	}
	if err := result.Err(); err != nil {
		t.Fatal("Failed to list constraints:", err)
	}
	if diff := cmp.Diff(map[string]bool{graphLabel: true, nodeLabel: true}, found); diff != "" {
		t.Errorf("constrained labels mismatch (-want +got):\n%s", diff)
	}
}

func TestBootstrapDatabase_reservedName(t *testing.T) {
	for _, name := range []string{"", "neo4j", "systemReserved", "_NotSystem"} {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("BootstrapDatabase(%q) did not panic", name)
				}
			}()
			// The name is checked before the driver is used.
			_ = BootstrapDatabase(context.Background(), nil, name)
		})
	}
}
