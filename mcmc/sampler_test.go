package mcmc

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/learking/pathsampling"
)

// lineState holds a single real parameter.
type lineState struct {
	x, stored float64
	storedAt  []int
	restores  int
}

func (s *lineState) Store(sample int)                { s.stored = s.x; s.storedAt = append(s.storedAt, sample) }
func (s *lineState) Restore()                        { s.x = s.stored; s.restores++ }
func (s *lineState) StoreCalculationNodes()          {}
func (s *lineState) CheckCalculationNodesDirtiness() {}
func (s *lineState) AcceptCalculationNodes()         {}
func (s *lineState) RestoreCalculationNodes()        {}
func (s *lineState) SetEverythingDirty(bool)         {}

func (s *lineState) MarshalBinary() ([]byte, error) {
	return binary.BigEndian.AppendUint64(nil, math.Float64bits(s.x)), nil
}

func (s *lineState) UnmarshalBinary(b []byte) error {
	if len(b) != 8 {
		return fmt.Errorf("want 8 bytes, got %d", len(b))
	}
	s.x = math.Float64frombits(binary.BigEndian.Uint64(b))
	return nil
}

// lineDist is a log-density that is linear in the parameter.
type lineDist struct {
	s     *lineState
	slope float64
}

func (d lineDist) CalculateLogP() (float64, error) { return d.CurrentLogP(), nil }
func (d lineDist) CurrentLogP() float64            { return d.slope * d.s.x }

// stepOperator moves the parameter by a fixed delta.
type stepOperator struct {
	s        *lineState
	delta    float64
	hastings float64
	eval     Distribution

	proposals, accepts, rejects int
	optimized                   []float64
	evaluated                   []float64
}

func (o *stepOperator) Name() string { return "step" }

func (o *stepOperator) Proposal(eval Evaluator) (float64, error) {
	o.proposals++
	if eval != nil {
		logP, err := eval()
		if err != nil {
			return 0, err
		}
		o.evaluated = append(o.evaluated, logP)
	}
	o.s.x += o.delta
	return o.hastings, nil
}

func (o *stepOperator) Accept()                             { o.accepts++ }
func (o *stepOperator) Reject()                             { o.rejects++ }
func (o *stepOperator) Optimize(logAlpha float64)           { o.optimized = append(o.optimized, logAlpha) }
func (o *stepOperator) EvaluatorDistribution() Distribution { return o.eval }
func (o *stepOperator) SelectOperator() Operator            { return o }

type checkpoints []int

func (c *checkpoints) Checkpoint(_ context.Context, _ pathsampling.Step, sample int, _ []byte) error {
	*c = append(*c, sample)
	return nil
}

func newLineSampler(slope float64, op *stepOperator) (*Sampler, *pathsampling.TraceBuffer) {
	var buf pathsampling.TraceBuffer
	s := &Sampler{
		State:    op.s,
		Schedule: op,
		Target: PowerPosterior{
			Prior:      lineDist{s: op.s},
			Likelihood: lineDist{s: op.s, slope: slope},
		},
		Trace:  &buf,
		Source: rand.NewPCG(1, 2),
	}
	return s, &buf
}

func TestSampler_Run_emptyChain(t *testing.T) {
	op := &stepOperator{s: &lineState{x: 2}, delta: 1}
	s, buf := newLineSampler(1, op)

	if err := s.Run(context.Background(), pathsampling.Step{Beta: 1}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(pathsampling.Trace{{Sample: 0, Value: 2}}, buf.Trace()); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}
	if op.proposals != 0 {
		t.Errorf("proposals = %d, want none", op.proposals)
	}
}

func TestSampler_Run_uphill(t *testing.T) {
	// every move increases the log-density, so every move is accepted
	op := &stepOperator{s: &lineState{}, delta: 1}
	s, buf := newLineSampler(1, op)

	step := pathsampling.Step{Beta: 0.5, BurnIn: 2, ChainLength: 3}
	if err := s.Run(context.Background(), step); err != nil {
		t.Fatal(err)
	}
	want := pathsampling.Trace{
		{Sample: -2, Value: 0},
		{Sample: -1, Value: 1},
		{Sample: 0, Value: 2},
		{Sample: 1, Value: 3},
		{Sample: 2, Value: 4},
		{Sample: 3, Value: 5},
	}
	if diff := cmp.Diff(want, buf.Trace()); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}
	if op.proposals != 5 {
		t.Errorf("proposals = %d, want 5", op.proposals)
	}
	// bookkeeping is suppressed during burn-in, tuning is not
	if op.accepts != 4 || op.rejects != 0 {
		t.Errorf("accepts, rejects = %d, %d; want 4, 0", op.accepts, op.rejects)
	}
	if diff := cmp.Diff([]float64{0.5, 0.5, 0.5, 0.5, 0.5}, op.optimized); diff != "" {
		t.Errorf("Optimize() arguments mismatch (-want +got):\n%s", diff)
	}
}

func TestSampler_Run_invalidProposals(t *testing.T) {
	op := &stepOperator{s: &lineState{x: 1}, delta: 10, hastings: math.Inf(-1)}
	s, buf := newLineSampler(1, op)

	step := pathsampling.Step{Beta: 1, BurnIn: 1, ChainLength: 2}
	if err := s.Run(context.Background(), step); err != nil {
		t.Fatal(err)
	}
	for _, r := range buf.Trace() {
		if r.Value != 1 {
			t.Errorf("sample %d logged %v, want the unchanged state 1", r.Sample, r.Value)
		}
	}
	if op.rejects != 3 || op.accepts != 0 {
		t.Errorf("accepts, rejects = %d, %d; want 0, 3", op.accepts, op.rejects)
	}
	for _, a := range op.optimized {
		if !math.IsInf(a, -1) {
			t.Errorf("Optimize(%v), want -Inf", a)
		}
	}
}

func TestSampler_Run_downhillCliff(t *testing.T) {
	// a move far downhill is always rolled back
	op := &stepOperator{s: &lineState{x: 1}, delta: 1e6}
	s, buf := newLineSampler(-1, op)

	if err := s.Run(context.Background(), pathsampling.Step{Beta: 1, ChainLength: 3}); err != nil {
		t.Fatal(err)
	}
	for _, r := range buf.Trace() {
		if r.Value != -1 {
			t.Errorf("sample %d logged %v, want the unchanged state -1", r.Sample, r.Value)
		}
	}
	if op.rejects != 3 {
		t.Errorf("rejects = %d, want 3", op.rejects)
	}
}

func TestSampler_Run_thinning(t *testing.T) {
	op := &stepOperator{s: &lineState{}, delta: 1}
	s, buf := newLineSampler(1, op)

	step := pathsampling.Step{Beta: 1, BurnIn: 3, ChainLength: 6, LogEvery: 3}
	if err := s.Run(context.Background(), step); err != nil {
		t.Fatal(err)
	}
	var samples []int
	for _, r := range buf.Trace() {
		samples = append(samples, r.Sample)
	}
	if diff := cmp.Diff([]int{-3, 0, 3, 6}, samples); diff != "" {
		t.Errorf("logged samples mismatch (-want +got):\n%s", diff)
	}
}

func TestSampler_Run_checkpoints(t *testing.T) {
	op := &stepOperator{s: &lineState{}, delta: 1}
	s, _ := newLineSampler(1, op)
	var cp checkpoints
	s.Checkpointer = &cp

	step := pathsampling.Step{Beta: 1, BurnIn: 4, ChainLength: 5, CheckpointEvery: 2}
	if err := s.Run(context.Background(), step); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(checkpoints{2, 4}, cp); diff != "" {
		t.Errorf("checkpointed samples mismatch (-want +got):\n%s", diff)
	}
}

func TestSampler_Run_evaluator(t *testing.T) {
	state := &lineState{}
	op := &stepOperator{s: state, delta: 1}
	op.eval = lineDist{s: state, slope: 10}
	s, _ := newLineSampler(1, op)

	if err := s.Run(context.Background(), pathsampling.Step{Beta: 1, ChainLength: 2}); err != nil {
		t.Fatal(err)
	}
	// the evaluator observes the state of the current sample, then
	// re-snapshots it
	if diff := cmp.Diff([]float64{0, 10}, op.evaluated); diff != "" {
		t.Errorf("evaluations mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 1, 2, 2}, state.storedAt); diff != "" {
		t.Errorf("snapshots mismatch (-want +got):\n%s", diff)
	}
}

func TestSampler_Run_callback(t *testing.T) {
	op := &stepOperator{s: &lineState{}, delta: 1}
	s, _ := newLineSampler(1, op)
	var called []int
	s.Callback = func(sample int) { called = append(called, sample) }

	if err := s.Run(context.Background(), pathsampling.Step{Beta: 1, BurnIn: 1, ChainLength: 1}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{0, 1}, called); diff != "" {
		t.Errorf("callbacks mismatch (-want +got):\n%s", diff)
	}
}

func TestSampler_Run_cancelled(t *testing.T) {
	op := &stepOperator{s: &lineState{}, delta: 1}
	s, buf := newLineSampler(1, op)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx, pathsampling.Step{Beta: 1, ChainLength: 10})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if op.proposals != 0 {
		t.Errorf("proposals = %d after cancellation, want none", op.proposals)
	}
	if n := len(buf.Trace()); n != 1 {
		t.Errorf("logged %d records, want only the initial state", n)
	}
}

func TestSampler_Run_invalidStep(t *testing.T) {
	op := &stepOperator{s: &lineState{}, delta: 1}
	s, _ := newLineSampler(1, op)

	err := s.Run(context.Background(), pathsampling.Step{Beta: 1, BurnIn: 5, ChainLength: 1})
	var cfgErr *pathsampling.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Run() error = %v, want a ConfigError", err)
	}
}

func TestSampler_Resume(t *testing.T) {
	op := &stepOperator{s: &lineState{x: 100}, delta: 1}
	s, buf := newLineSampler(1, op)
	state, _ := (&lineState{x: 7}).MarshalBinary()

	if err := s.Resume(context.Background(), pathsampling.Step{Beta: 1, ChainLength: 5}, 3, state); err != nil {
		t.Fatal(err)
	}
	want := pathsampling.Trace{
		{Sample: 3, Value: 8},
		{Sample: 4, Value: 9},
		{Sample: 5, Value: 10},
	}
	if diff := cmp.Diff(want, buf.Trace()); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}

	if err := s.Resume(context.Background(), pathsampling.Step{Beta: 1, ChainLength: 5}, 6, state); err == nil {
		t.Error("Resume() past the end of the chain succeeded")
	}
}

func TestPaired(t *testing.T) {
	s := &lineState{x: 2}
	p := Paired{Model1: lineDist{s: s, slope: 1}, Model2: lineDist{s: s, slope: 3}}

	tests := []struct {
		beta float64
		want float64
	}{
		{beta: 0, want: 2},
		{beta: 0.5, want: 4},
		{beta: 1, want: 6},
	}
	for _, tt := range tests {
		got, err := p.LogDensity(tt.beta)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("LogDensity(%v) = %v, want %v", tt.beta, got, tt.want)
		}
	}
	if got := p.Diagnostic(); got != -4 {
		t.Errorf("Diagnostic() = %v, want -4", got)
	}

	// the weight of an infinitely unlikely model vanishes at the other end
	s.x = math.Inf(1)
	p.Model1 = lineDist{s: s, slope: -1}
	p.Model2 = lineDist{s: &lineState{x: 1}, slope: 1}
	if got, _ := p.LogDensity(1); got != 1 {
		t.Errorf("LogDensity(1) = %v, want 1", got)
	}
}
