// Package mcmc runs the annealed Metropolis-Hastings chain of a single step on
// the interpolation path.
//
// The package does not know anything about the models it samples: the model
// layer supplies the mutable State, the Operators that propose moves on it, and
// the Distributions whose log-densities a Target combines into the annealed
// density of a step.
package mcmc

import (
	"context"
	"encoding"

	"github.com/learking/pathsampling"
)

// A Distribution is a (possibly unnormalised) log-density over a model's state.
type Distribution interface {
	// CalculateLogP recalculates the log-density of the current state.
	CalculateLogP() (float64, error)
	// CurrentLogP returns the log-density as of the last calculation that has
	// not been rolled back by the state.
	CurrentLogP() float64
}

// An Evaluator calculates an auxiliary log-density on behalf of an Operator.
// The evaluation never leaks into the state the chain accepts.
type Evaluator func() (float64, error)

// An Operator proposes moves on the state of a model.
type Operator interface {
	Name() string
	// Proposal modifies the state in place and returns the log-Hastings ratio
	// of the move; negative infinity means the move is invalid. The evaluator
	// is nil unless EvaluatorDistribution returns a distribution.
	Proposal(eval Evaluator) (float64, error)
	Accept()
	Reject()
	// Optimize tunes the operator given the log acceptance ratio of the latest
	// proposal.
	Optimize(logAlpha float64)
	// EvaluatorDistribution returns the distribution an Evaluator passed to
	// Proposal calculates, or nil if the operator needs none.
	EvaluatorDistribution() Distribution
}

// An OperatorSchedule selects the operator of the next proposal.
type OperatorSchedule interface {
	SelectOperator() Operator
}

// An AcceptanceReporter is an Operator that counts its accepted proposals.
type AcceptanceReporter interface {
	AcceptanceRate() float64
}

// AcceptanceRates returns the acceptance rate of every operator of s that
// reports one, keyed by operator name. It returns nil when s does not list its
// operators.
func AcceptanceRates(s OperatorSchedule) map[string]float64 {
	lister, ok := s.(interface{ Operators() []Operator })
	if !ok {
		return nil
	}
	rates := make(map[string]float64)
	for _, op := range lister.Operators() {
		if r, ok := op.(AcceptanceReporter); ok {
			rates[op.Name()] = r.AcceptanceRate()
		}
	}
	return rates
}

// State is the mutable parameter container of a model.
//
// Every Store is resolved by Restore, or by accepting the proposal, before the
// next Store; snapshots never overlap.
type State interface {
	// Store snapshots the state at the given sample.
	Store(sample int)
	// Restore rolls the state back to the latest snapshot.
	Restore()
	StoreCalculationNodes()
	CheckCalculationNodesDirtiness()
	AcceptCalculationNodes()
	RestoreCalculationNodes()
	SetEverythingDirty(dirty bool)

	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// A Checkpointer durably persists the state of a chain.
type Checkpointer interface {
	Checkpoint(ctx context.Context, step pathsampling.Step, sample int, state []byte) error
}

// A Chain bundles everything a Sampler needs from the model layer to sample
// one step.
type Chain struct {
	State    State
	Schedule OperatorSchedule
	Target   Target
}
