package mcmc

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/danielorbach/go-component"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/learking/pathsampling"
)

// A Sampler runs the annealed chain of one step. It is not safe for concurrent
// use; run one Sampler per step.
type Sampler struct {
	State    State
	Schedule OperatorSchedule
	Target   Target
	// Trace receives one record per logged sample, including burn-in samples.
	Trace pathsampling.TraceWriter

	// Checkpointer, if not nil, is handed the state of the chain every
	// Step.CheckpointEvery samples past burn-in.
	Checkpointer Checkpointer
	// Callback, if not nil, is invoked at the end of every iteration.
	Callback func(sample int)
	// Source drives the acceptance draws; nil uses the global source.
	Source rand.Source
}

// Run samples a step from scratch: the initial state is logged as sample
// −BurnIn, and every following sample up to and including ChainLength is the
// outcome of one proposal. A step with neither burn-in nor chain therefore logs
// a single record and proposes nothing.
//
// Cancelling ctx stops the chain between iterations.
func (s *Sampler) Run(ctx context.Context, step pathsampling.Step) error {
	return s.run(ctx, step, -step.BurnIn, false)
}

// Resume continues a step from a checkpoint taken at the given sample. The
// state is restored from its checkpointed form and sampling resumes with the
// iteration that produced the checkpoint; records logged before it are not
// repeated.
func (s *Sampler) Resume(ctx context.Context, step pathsampling.Step, sample int, state []byte) error {
	if sample <= 0 || sample > step.ChainLength {
		return fmt.Errorf("resume: sample %d is out of range (0, %d]", sample, step.ChainLength)
	}
	if err := s.State.UnmarshalBinary(state); err != nil {
		return fmt.Errorf("resume: restore state: %w", err)
	}
	s.State.SetEverythingDirty(true)
	return s.run(ctx, step, sample, true)
}

func (s *Sampler) run(ctx context.Context, step pathsampling.Step, from int, resumed bool) (err error) {
	if err := step.Validate(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "mcmc.Sampler.Run", trace.WithAttributes(
		attribute.Int("step.index", step.Index),
		attribute.Float64("step.beta", step.Beta),
		attribute.Bool("step.resumed", resumed),
	))
	defer span.End()
	logger := component.Logger(ctx).With("step.index", step.Index, "step.beta", step.Beta)
	start := time.Now()
	var stats chainStats
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		measureStep(ctx, err == nil, time.Since(start))
	}()

	logger.Debug("Sampling step", "chain.from", from, "chain.length", step.ChainLength)
	uniform := distuv.Uniform{Min: 0, Max: 1, Src: s.Source}
	beta := step.Beta

	oldLogP, err := s.Target.LogDensity(beta)
	if err != nil {
		return fmt.Errorf("initial state: %w", err)
	}
	s.State.SetEverythingDirty(false)
	if !resumed {
		if err := s.log(ctx, step, from); err != nil {
			return err
		}
		from++
	}

	for i := from; i <= step.ChainLength; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.State.Store(i)
		if step.CheckpointEvery > 0 && i > 0 && i%step.CheckpointEvery == 0 && s.Checkpointer != nil {
			b, err := s.State.MarshalBinary()
			if err != nil {
				return fmt.Errorf("sample %d: marshal state: %w", i, err)
			}
			if err := s.Checkpointer.Checkpoint(ctx, step, i, b); err != nil {
				return fmt.Errorf("sample %d: checkpoint: %w", i, err)
			}
		}

		op := s.Schedule.SelectOperator()
		logHastings, err := op.Proposal(s.evaluator(op, i))
		if err != nil {
			return fmt.Errorf("sample %d: operator %s: %w", i, op.Name(), err)
		}

		logAlpha := math.Inf(-1)
		if math.IsInf(logHastings, -1) {
			if i >= 0 {
				op.Reject()
			}
			s.State.Restore()
			stats.failed++
		} else {
			s.State.StoreCalculationNodes()
			s.State.CheckCalculationNodesDirtiness()
			newLogP, err := s.Target.LogDensity(beta)
			if err != nil {
				return fmt.Errorf("sample %d: %w", i, err)
			}
			logAlpha = newLogP - oldLogP + logHastings
			if logAlpha >= 0 || uniform.Rand() < math.Exp(logAlpha) {
				oldLogP = newLogP
				s.State.AcceptCalculationNodes()
				if i >= 0 {
					op.Accept()
				}
				stats.accepted++
			} else {
				if i >= 0 {
					op.Reject()
				}
				s.State.Restore()
				s.State.RestoreCalculationNodes()
				stats.rejected++
			}
			s.State.SetEverythingDirty(false)
		}

		if err := s.log(ctx, step, i); err != nil {
			return err
		}
		op.Optimize(logAlpha)
		if s.Callback != nil {
			s.Callback(i)
		}
	}

	stats.measure(ctx)
	logger.Debug("Sampled step",
		"chain.accepted", stats.accepted,
		"chain.rejected", stats.rejected,
		"chain.failed", stats.failed,
		"chain.duration", time.Since(start),
	)
	return nil
}

// evaluator returns the auxiliary evaluator of op, or nil when op needs none.
// The evaluation is scoped by the snapshot of the current sample: the
// calculation nodes are stored and checked before evaluating, then the state
// is restored and snapshot again.
func (s *Sampler) evaluator(op Operator, sample int) Evaluator {
	dist := op.EvaluatorDistribution()
	if dist == nil {
		return nil
	}
	return func() (float64, error) {
		s.State.StoreCalculationNodes()
		s.State.CheckCalculationNodesDirtiness()
		logP, err := dist.CalculateLogP()
		s.State.Restore()
		s.State.Store(sample)
		return logP, err
	}
}

func (s *Sampler) log(ctx context.Context, step pathsampling.Step, sample int) error {
	every := max(step.LogEvery, 1)
	if sample%every != 0 {
		return nil
	}
	err := s.Trace.WriteRecord(ctx, pathsampling.Record{Sample: sample, Value: s.Target.Diagnostic()})
	if err != nil {
		return fmt.Errorf("sample %d: write trace: %w", sample, err)
	}
	return nil
}

type chainStats struct {
	accepted, rejected, failed int64
}
