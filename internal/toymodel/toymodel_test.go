package toymodel

import (
	"context"
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/learking/pathsampling"
	"github.com/learking/pathsampling/mcmc"
	"github.com/learking/pathsampling/model"
)

var data = []float64{0.2, 1.8, 0.5, 1.5, 1.1, 0.9, 0.3, 1.7, 1.0, 1.0}

func testModel(priorMean float64) NormalModel {
	return NormalModel{PriorMean: priorMean, PriorSigma: 1, Sigma: 1, Data: data, StepSize: 0.5}
}

func TestNormalModel_LogMarginalLikelihood(t *testing.T) {
	for _, priorMean := range []float64{-1, 0, 1, 3} {
		m := testModel(priorMean)
		integrand := func(mu float64) float64 {
			logP := distuv.Normal{Mu: m.PriorMean, Sigma: m.PriorSigma}.LogProb(mu)
			for _, x := range m.Data {
				logP += distuv.Normal{Mu: mu, Sigma: m.Sigma}.LogProb(x)
			}
			return math.Exp(logP)
		}
		want := math.Log(quad.Fixed(integrand, -8, 8, 200, nil, 0))
		if got := m.LogMarginalLikelihood(); math.Abs(got-want) > 1e-6 {
			t.Errorf("prior mean %v: LogMarginalLikelihood() = %v, want %v", priorMean, got, want)
		}
	}
}

func TestSingle(t *testing.T) {
	m := testModel(0)
	chain, err := Single(m.Graph(), m.Graph().Root(), rand.NewPCG(1, 2))
	if err != nil {
		t.Fatalf("Single() error = %v", err)
	}

	// At mu = 0 the prior is log N(0 | 0, 1) and the likelihood is the sum of
	// log N(x | 0, 1) over the data.
	wantPrior := -0.5 * math.Log(2*math.Pi)
	var wantLik float64
	for _, x := range data {
		wantLik += -0.5*math.Log(2*math.Pi) - x*x/2
	}
	got, err := chain.Target.LogDensity(0.5)
	if err != nil {
		t.Fatalf("LogDensity() error = %v", err)
	}
	if diff := cmp.Diff(wantPrior+0.5*wantLik, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("LogDensity(0.5) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantLik, chain.Target.Diagnostic(), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("Diagnostic() mismatch (-want +got):\n%s", diff)
	}
}

func TestPaired_sharedNodes(t *testing.T) {
	// Both runs live in one arena and share mu, so a move of the walk changes
	// the density of both models.
	g := testModel(-1).Graph()
	first := g.Root()
	mu := model.Ref(0)
	prior2 := g.Add(model.Node{ID: "prior2", Kind: "Normal", Inputs: []model.Input{
		model.In("x", mu), model.In("mean", 1.0), model.In("sigma", 1.0),
	}})
	second := g.Add(model.Node{ID: "mcmc2", Kind: "MCMC", Inputs: []model.Input{
		model.In("posterior", prior2),
	}})

	chain, err := Paired(g, first, second, rand.NewPCG(1, 2))
	if err != nil {
		t.Fatalf("Paired() error = %v", err)
	}
	state := chain.State.(*State)
	if len(state.Params) != 1 || state.Params[0].ID != "mu" {
		t.Fatalf("state parameters = %v, want [mu]", state.Params)
	}
	state.Params[0].Value = 1
	if _, err := chain.Target.LogDensity(0); err != nil {
		t.Fatalf("LogDensity() error = %v", err)
	}
	// l2 is log N(1 | 1, 1); l1 adds the likelihood to log N(1 | −1, 1).
	want := distuv.Normal{Mu: -1, Sigma: 1}.LogProb(1) - distuv.Normal{Mu: 1, Sigma: 1}.LogProb(1)
	for _, x := range data {
		want += distuv.Normal{Mu: 1, Sigma: 1}.LogProb(x)
	}
	if diff := cmp.Diff(want, chain.Target.Diagnostic(), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("Diagnostic() mismatch (-want +got):\n%s", diff)
	}
}

func TestState_storeRestore(t *testing.T) {
	m := testModel(0)
	chain, err := Single(m.Graph(), m.Graph().Root(), rand.NewPCG(1, 2))
	if err != nil {
		t.Fatal(err)
	}
	s := chain.State.(*State)
	if _, err := chain.Target.LogDensity(1); err != nil {
		t.Fatal(err)
	}
	before := chain.Target.Diagnostic()

	s.Store(0)
	s.StoreCalculationNodes()
	op := chain.Schedule.SelectOperator()
	if _, err := op.Proposal(nil); err != nil {
		t.Fatal(err)
	}
	if _, err := chain.Target.LogDensity(1); err != nil {
		t.Fatal(err)
	}
	s.Restore()
	s.RestoreCalculationNodes()

	if got := s.Params[0].Value; got != 0 {
		t.Errorf("mu = %v after restore, want 0", got)
	}
	if got := chain.Target.Diagnostic(); got != before {
		t.Errorf("Diagnostic() = %v after restore, want %v", got, before)
	}
}

func TestState_binary(t *testing.T) {
	m := testModel(0)
	chain, err := Single(m.Graph(), m.Graph().Root(), rand.NewPCG(1, 2))
	if err != nil {
		t.Fatal(err)
	}
	s := chain.State.(*State)
	s.Params[0].Value = 0.75
	b, err := s.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error = %v", err)
	}
	s.Params[0].Value = 0
	if err := s.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary() error = %v", err)
	}
	if got := s.Params[0].Value; got != 0.75 {
		t.Errorf("mu = %v, want 0.75", got)
	}

	other := &State{Params: []*Parameter{{ID: "sigma"}}}
	if err := other.UnmarshalBinary(b); err == nil {
		t.Error("UnmarshalBinary() into a state without mu succeeded, want error")
	}
}

func TestRandomWalk_Optimize(t *testing.T) {
	op := &RandomWalk{Size: 1}
	op.Optimize(math.Inf(-1))
	if op.Size >= 1 {
		t.Errorf("Size = %v after a hopeless proposal, want it to shrink", op.Size)
	}
	size := op.Size
	op.Optimize(0)
	if op.Size <= size {
		t.Errorf("Size = %v after a certain acceptance, want it to grow from %v", op.Size, size)
	}
}

func TestRandomWalk_AcceptanceRate(t *testing.T) {
	m := testModel(0)
	chain, err := Single(m.Graph(), m.Graph().Root(), rand.NewPCG(5, 6))
	if err != nil {
		t.Fatal(err)
	}
	s := &mcmc.Sampler{
		State:    chain.State,
		Schedule: chain.Schedule,
		Target:   chain.Target,
		Trace:    new(pathsampling.TraceBuffer),
		Source:   rand.NewPCG(7, 8),
	}
	step := pathsampling.Step{Beta: 1, BurnIn: 1000, ChainLength: 5000, LogEvery: 100}
	if err := s.Run(context.Background(), step); err != nil {
		t.Fatal(err)
	}
	rates := mcmc.AcceptanceRates(chain.Schedule)
	rate, ok := rates["muWalk"]
	if !ok {
		t.Fatalf("AcceptanceRates() = %v, want a rate for muWalk", rates)
	}
	if rate < 0.1 || rate > 0.4 {
		t.Errorf("acceptance rate of the tuned walk = %v, want close to 0.234", rate)
	}
}

func TestRealise_errors(t *testing.T) {
	tests := []struct {
		name  string
		build func(g *model.Graph) model.Ref
		want  string
	}{
		{
			name: "unknown distribution",
			build: func(g *model.Graph) model.Ref {
				d := g.Add(model.Node{ID: "d", Kind: "Gamma"})
				return g.Add(model.Node{Kind: "MCMC", Inputs: []model.Input{model.In("prior", d), model.In("likelihood", d)}})
			},
			want: "unknown distribution kind",
		},
		{
			name: "missing input",
			build: func(g *model.Graph) model.Ref {
				d := g.Add(model.Node{ID: "d", Kind: "Normal", Inputs: []model.Input{model.In("mean", 0.0)}})
				return g.Add(model.Node{Kind: "MCMC", Inputs: []model.Input{model.In("prior", d), model.In("likelihood", d)}})
			},
			want: `missing input "x"`,
		},
		{
			name: "text scalar",
			build: func(g *model.Graph) model.Ref {
				p := g.Add(model.Node{ID: "p", Kind: "RealParameter", Inputs: []model.Input{model.In("value", "one")}})
				d := g.Add(model.Node{ID: "d", Kind: "Normal", Inputs: []model.Input{model.In("x", p), model.In("mean", 0.0), model.In("sigma", 1.0)}})
				return g.Add(model.Node{Kind: "MCMC", Inputs: []model.Input{model.In("prior", d), model.In("likelihood", d)}})
			},
			want: `input "value" is not a scalar`,
		},
		{
			name: "bad data",
			build: func(g *model.Graph) model.Ref {
				d := g.Add(model.Node{ID: "d", Kind: "NormalLikelihood", Inputs: []model.Input{model.In("mu", 0.0), model.In("sigma", 1.0), model.In("data", "1 x")}})
				return g.Add(model.Node{Kind: "MCMC", Inputs: []model.Input{model.In("prior", d), model.In("likelihood", d)}})
			},
			want: "data:",
		},
		{
			name: "no operators",
			build: func(g *model.Graph) model.Ref {
				d := g.Add(model.Node{ID: "d", Kind: "Normal", Inputs: []model.Input{model.In("x", 0.0), model.In("mean", 0.0), model.In("sigma", 1.0)}})
				return g.Add(model.Node{Kind: "MCMC", Inputs: []model.Input{model.In("prior", d), model.In("likelihood", d)}})
			},
			want: "MCMC",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := new(model.Graph)
			run := tt.build(g)
			_, err := Single(g, run, rand.NewPCG(1, 2))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Single() error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

var _ mcmc.State = (*State)(nil)
var _ mcmc.Operator = (*RandomWalk)(nil)
