// Package estimate combines the traces of all steps of a run into an estimate
// of the log Bayes factor (or log marginal likelihood) by quadrature along the
// interpolation path.
package estimate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/learking/pathsampling"
)

// Result is the outcome of Estimate.
type Result struct {
	LogBayesFactor float64
	// Scheme is the scheme the estimate was computed with; Uniform whenever
	// alpha is not positive.
	Scheme pathsampling.Scheme
	Alpha  float64
	Steps  []StepDiagnostics
}

// StepDiagnostics summarises a single step of an estimate.
type StepDiagnostics struct {
	Step int
	Beta float64
	// Mean is the mean of the diagnostic values retained after burn-in.
	Mean float64
	// Contribution is the share of this step, paired with the next, in the
	// log Bayes factor. It is zero for the last step.
	Contribution float64
	ESS          float64
	Samples      int // number of retained samples
}

// An Option configures Estimate.
type Option func(*options)

type options struct {
	analyser Analyser
}

// WithAnalyser replaces the default Analyser (see Autocorrelation).
func WithAnalyser(a Analyser) Option {
	return func(o *options) { o.analyser = a }
}

// Estimate returns the log Bayes factor of a run given the traces of its steps,
// in step order, and the scheme, alpha and burn-in percentage it was run with.
// The leading burnInPercentage percent of every trace are discarded.
//
// With the Uniform scheme the estimate is the trapezoidal rule over the mean
// diagnostic value of each step:
//
//	logBF = −Σ (mean[i] + mean[i+1]) / (2·(n−1))
//
// With the Sigmoid scheme every pair of adjacent steps contributes a
// stepping-stone ratio computed from the samples of the first step, where
// w = beta[i+1] − beta[i] and m is the largest sample of step i:
//
//	c[i] = w·m + log(mean(exp(w·(sample − m))))
//	logBF = −Σ c[i]
func Estimate(traces []pathsampling.Trace, scheme pathsampling.Scheme, alpha float64, burnInPercentage int, opts ...Option) (*Result, error) {
	o := options{analyser: Autocorrelation{}}
	for _, opt := range opts {
		opt(&o)
	}
	n := len(traces)
	if n < 2 {
		return nil, &pathsampling.ConfigError{Field: "Steps", Reason: fmt.Sprintf("need at least 2 traces, got %d", n)}
	}
	if burnInPercentage < 0 || burnInPercentage >= 100 {
		return nil, &pathsampling.ConfigError{Field: "BurnInPercentage", Reason: fmt.Sprintf("must be in [0, 100), got %d", burnInPercentage)}
	}
	scheme = scheme.Effective(alpha)
	betas, err := pathsampling.Schedule(scheme, n, alpha)
	if err != nil {
		return nil, err
	}

	res := &Result{Scheme: scheme, Alpha: alpha, Steps: make([]StepDiagnostics, n)}
	samples := make([][]float64, n)
	for i, t := range traces {
		samples[i] = Retained(t, burnInPercentage)
		if len(samples[i]) == 0 {
			return nil, &pathsampling.DegenerateInputError{
				Step:   i,
				Reason: fmt.Sprintf("no samples left of %d after discarding %d%% burn-in", len(t), burnInPercentage),
			}
		}
		res.Steps[i] = StepDiagnostics{
			Step:    i,
			Beta:    betas[i],
			Mean:    o.analyser.Mean(samples[i]),
			ESS:     o.analyser.ESS(samples[i]),
			Samples: len(samples[i]),
		}
	}

	for i := 0; i < n-1; i++ {
		var c float64
		switch scheme {
		case pathsampling.Uniform:
			c = -(res.Steps[i].Mean + res.Steps[i+1].Mean) / (2 * float64(n-1))
		default:
			c = -steppingStone(samples[i], betas[i+1]-betas[i])
		}
		res.Steps[i].Contribution = c
		res.LogBayesFactor += c
	}
	return res, nil
}

// steppingStone returns w·m + log(mean(exp(w·(s − m)))) over the samples s,
// where m is their maximum.
func steppingStone(samples []float64, w float64) float64 {
	m := floats.Max(samples)
	scaled := make([]float64, len(samples))
	for j, s := range samples {
		scaled[j] = w * (s - m)
	}
	return w*m + floats.LogSumExp(scaled) - math.Log(float64(len(samples)))
}

// Retained returns the diagnostic values of a trace that remain after
// discarding its leading burnInPercentage percent (rounded down).
func Retained(t pathsampling.Trace, burnInPercentage int) []float64 {
	discard := len(t) * burnInPercentage / 100
	return t[discard:].Values()
}
