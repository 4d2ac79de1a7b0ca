// Package runner orchestrates a run: it lays out the steps of the path between
// two models (or between the prior and the posterior of one), samples every
// step with bounded parallelism, and estimates the log Bayes factor from their
// traces.
package runner

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/danielorbach/go-component"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gocloud.dev/blob"
	"gocloud.dev/pubsub"
	"golang.org/x/sync/errgroup"

	"github.com/learking/pathsampling"
	"github.com/learking/pathsampling/checkpoint"
	"github.com/learking/pathsampling/estimate"
	"github.com/learking/pathsampling/mcmc"
	"github.com/learking/pathsampling/merge"
	"github.com/learking/pathsampling/model"
	"github.com/learking/pathsampling/tracelog"
)

// Models locates the model runs a chain anneals between. Both refs point into
// Graph; for a single-model run Second equals First and Paired is false.
type Models struct {
	Graph         *model.Graph
	First, Second model.Ref
	Paired        bool
}

// A Factory realises a fresh chain for one step. Every step calls the factory
// once, with a source of its own; the factory must treat the graph as
// read-only, since steps run concurrently.
type Factory func(ctx context.Context, m Models, src rand.Source) (*mcmc.Chain, error)

// A GraphSink persists the graph a run samples, for later inspection.
type GraphSink interface {
	SaveGraph(ctx context.Context, name string, g *model.Graph) error
}

// A Runner runs paired or single-model path sampling.
//
// Only Factory is required. Traces, Checkpoints, Events and Graphs are
// optional sinks; a nil sink disables what it serves.
type Runner struct {
	Config  pathsampling.Config
	Factory Factory

	// Traces receives a Parquet trace object per step (see package tracelog).
	Traces *blob.Bucket
	// Checkpoints receives the periodic checkpoints of every chain.
	Checkpoints checkpoint.Store
	// Events receives a StepCompleted message whenever a step completes.
	Events *pubsub.Topic
	// Graphs receives the sampled graph, keyed by the run ID.
	Graphs GraphSink

	// RunID names the run in storage keys and events; empty picks a random one.
	RunID string
	// Resume continues every step from its latest checkpoint, if it has one of
	// the same model.
	Resume bool
}

// A Report describes a completed run.
type Report struct {
	RunID string
	// Model identifies the sampled models; see Models.Fingerprint.
	Model string
	// Merge reports the merge of a paired run; nil for single-model runs.
	Merge    *merge.Record
	Steps    []pathsampling.Step
	Traces   []pathsampling.Trace
	Estimate *estimate.Result
}

// Fingerprint identifies the models of a run by content.
func (m Models) Fingerprint() string {
	first := model.FingerprintOf(m.Graph, m.First)
	if !m.Paired {
		return first.String()
	}
	return first.String() + "/" + model.FingerprintOf(m.Graph, m.Second).String()
}

// Run samples the path between the models rooted at a and b, and estimates the
// log Bayes factor. When b is nil, Run falls back to a single-model run that
// anneals the likelihood of a. Neither graph is modified.
func (r *Runner) Run(ctx context.Context, a, b *model.Graph) (report *Report, err error) {
	if a == nil {
		return nil, errors.New("runner: no model to sample")
	}
	if r.Factory == nil {
		return nil, errors.New("runner: no chain factory")
	}
	steps, err := pathsampling.Steps(r.Config)
	if err != nil {
		return nil, err
	}
	runID := r.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	ctx, span := tracer.Start(ctx, "runner.Run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.Bool("run.paired", b != nil),
		attribute.Int("run.steps", len(steps)),
	))
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()
	logger := component.Logger(ctx).With("run", runID)

	models, rec, err := prepare(ctx, a, b)
	if err != nil {
		return nil, err
	}
	if !models.Paired {
		logger.Info("No second model, running a single-model path from prior to posterior")
	}
	if r.Graphs != nil {
		if err := r.Graphs.SaveGraph(ctx, runID, models.Graph); err != nil {
			return nil, fmt.Errorf("save graph: %w", err)
		}
	}

	p := &pass{
		Runner: r,
		id:     runID,
		model:  models.Fingerprint(),
		models: models,
		nSteps: len(steps),
	}
	logger.Info("Sampling run", "model", p.model, "steps", len(steps), "parallelism", r.Config.Parallelism)
	traces := make([]pathsampling.Trace, len(steps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.Config.Parallelism)
	for i, step := range steps {
		g.Go(func() error {
			t, err := p.runStep(gctx, step)
			if err != nil {
				return fmt.Errorf("%s: %w", step.Name(len(steps)), err)
			}
			traces[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("Run failed", "error", err)
		return nil, err
	}

	result, err := estimate.Estimate(traces, r.Config.Scheme, r.Config.Alpha, r.Config.BurnInPercentage)
	if err != nil {
		return nil, fmt.Errorf("estimate: %w", err)
	}
	span.SetAttributes(attribute.Float64("run.log_bayes_factor", result.LogBayesFactor))
	logger.Info("Run completed", "logBayesFactor", result.LogBayesFactor)
	return &Report{
		RunID:    runID,
		Model:    p.model,
		Merge:    rec,
		Steps:    steps,
		Traces:   traces,
		Estimate: result,
	}, nil
}

// prepare merges the models of a paired run and combines the operator and
// state-node lists of the second run into the first.
func prepare(ctx context.Context, a, b *model.Graph) (Models, *merge.Record, error) {
	if b == nil {
		g := a.Clone()
		return Models{Graph: g, First: g.Root(), Second: g.Root()}, nil, nil
	}
	g, rec, err := merge.Merge(ctx, a, b)
	if err != nil {
		return Models{}, nil, fmt.Errorf("merge: %w", err)
	}
	for _, name := range []string{"operator", "stateNode"} {
		if in, ok := g.Node(rec.RootA).Input(name); !ok || in.Type != model.ListType {
			continue
		}
		if err := merge.CombineLists(g, rec.RootA, rec.RootB, name); err != nil {
			return Models{}, nil, err
		}
	}
	return Models{Graph: g, First: rec.RootA, Second: rec.RootB, Paired: true}, rec, nil
}

// A pass is the execution of one run.
type pass struct {
	*Runner
	id     string
	model  string
	models Models
	nSteps int
}

func (p *pass) runStep(ctx context.Context, step pathsampling.Step) (t pathsampling.Trace, err error) {
	logger := component.Logger(ctx).With("run", p.id, "step.index", step.Index)
	start := time.Now()
	defer func() { measureStep(ctx, err == nil) }()

	src := rand.NewPCG(p.Config.Seed+uint64(step.Index), uint64(step.Index))
	chain, err := p.Factory(ctx, p.models, src)
	if err != nil {
		return nil, fmt.Errorf("realise chain: %w", err)
	}

	from, err := p.latestCheckpoint(ctx, step)
	if err != nil {
		return nil, err
	}

	buf := new(pathsampling.TraceBuffer)
	w := multiWriter{buf}
	if p.Traces != nil {
		wctx, cancel := context.WithCancel(ctx)
		defer cancel()
		tw, openErr := tracelog.NewWriter(wctx, p.Traces, tracelog.Key(p.id, step, p.nSteps))
		if openErr != nil {
			return nil, openErr
		}
		defer func() {
			if err != nil {
				// Cancelling the context before closing aborts the object.
				cancel()
				_ = tw.Close()
				return
			}
			if closeErr := tw.Close(); closeErr != nil {
				err = fmt.Errorf("close trace: %w", closeErr)
			}
		}()
		w = append(w, tw)
	}

	s := &mcmc.Sampler{
		State:    chain.State,
		Schedule: chain.Schedule,
		Target:   chain.Target,
		Trace:    w,
		Source:   src,
	}
	if p.Checkpoints != nil {
		s.Checkpointer = checkpointer{pass: p, trace: buf}
	}

	if from != nil {
		logger.Info("Resuming step from checkpoint", "sample", from.Sample)
		for _, rec := range from.Trace {
			if err := w.WriteRecord(ctx, rec); err != nil {
				return nil, err
			}
		}
		err = s.Resume(ctx, step, from.Sample, from.State)
	} else {
		err = s.Run(ctx, step)
	}
	if err != nil {
		return nil, err
	}

	t = buf.Trace()
	if p.Events != nil {
		ev := StepCompleted{
			Run:       p.id,
			Step:      step.Index,
			Beta:      step.Beta,
			Records:   len(t),
			Resumed:   from != nil,
			Duration:  time.Since(start),
			Completed: time.Now(),
		}
		if err := publish(ctx, p.Events, ev); err != nil {
			return nil, fmt.Errorf("notify completion: %w", err)
		}
	}
	logger.Debug("Step completed",
		"records", len(t),
		"duration", time.Since(start),
		"acceptance", mcmc.AcceptanceRates(chain.Schedule),
	)
	return t, nil
}

// latestCheckpoint returns the checkpoint a step resumes from, or nil when the
// step starts from scratch.
func (p *pass) latestCheckpoint(ctx context.Context, step pathsampling.Step) (*checkpoint.Checkpoint, error) {
	if !p.Resume || p.Checkpoints == nil {
		return nil, nil
	}
	c, err := p.Checkpoints.Latest(ctx, p.id, step.Index)
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("load checkpoint: %w", err)
	case c.Model != p.model:
		component.Logger(ctx).Warn("Ignoring checkpoint of a different model",
			"run", p.id, "step.index", step.Index, "checkpoint.model", c.Model, "model", p.model)
		return nil, nil
	case c.Sample <= 0 || c.Sample > step.ChainLength:
		return nil, fmt.Errorf("checkpoint at sample %d does not fit a chain of length %d", c.Sample, step.ChainLength)
	}
	return c, nil
}

// checkpointer saves the state of a chain along with the trace it logged so
// far.
type checkpointer struct {
	pass  *pass
	trace *pathsampling.TraceBuffer
}

func (c checkpointer) Checkpoint(ctx context.Context, step pathsampling.Step, sample int, state []byte) error {
	return c.pass.Checkpoints.Save(ctx, checkpoint.Checkpoint{
		Run:    c.pass.id,
		Step:   step.Index,
		Sample: sample,
		Model:  c.pass.model,
		State:  state,
		Trace:  c.trace.Trace(),
	})
}

// multiWriter duplicates every record to all of its writers.
type multiWriter []pathsampling.TraceWriter

func (m multiWriter) WriteRecord(ctx context.Context, r pathsampling.Record) error {
	for _, w := range m {
		if err := w.WriteRecord(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
