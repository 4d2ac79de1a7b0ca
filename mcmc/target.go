package mcmc

import "fmt"

// A Target is the annealed density a step samples from.
type Target interface {
	// LogDensity recalculates the annealed log-density of the current state at
	// the given interpolation coefficient.
	LogDensity(beta float64) (float64, error)
	// Diagnostic returns the value logged to the trace for the current state.
	Diagnostic() float64
}

// Paired anneals between two models: the log-density at beta is
// l1·(1−beta) + l2·beta, and the diagnostic is l1 − l2.
type Paired struct {
	Model1, Model2 Distribution
}

func (p Paired) LogDensity(beta float64) (float64, error) {
	l1, err := p.Model1.CalculateLogP()
	if err != nil {
		return 0, fmt.Errorf("model1: %w", err)
	}
	l2, err := p.Model2.CalculateLogP()
	if err != nil {
		return 0, fmt.Errorf("model2: %w", err)
	}
	return interpolate(l1, l2, beta), nil
}

func (p Paired) Diagnostic() float64 {
	return p.Model1.CurrentLogP() - p.Model2.CurrentLogP()
}

// PowerPosterior anneals the likelihood of a single model: the log-density at
// beta is prior + beta·likelihood, and the diagnostic is the likelihood.
type PowerPosterior struct {
	Prior, Likelihood Distribution
}

func (p PowerPosterior) LogDensity(beta float64) (float64, error) {
	prior, err := p.Prior.CalculateLogP()
	if err != nil {
		return 0, fmt.Errorf("prior: %w", err)
	}
	lik, err := p.Likelihood.CalculateLogP()
	if err != nil {
		return 0, fmt.Errorf("likelihood: %w", err)
	}
	if beta == 0 {
		return prior, nil
	}
	return prior + beta*lik, nil
}

func (p PowerPosterior) Diagnostic() float64 {
	return p.Likelihood.CurrentLogP()
}

// interpolate returns l1·(1−beta) + l2·beta; a zero weight drops its term, so
// an infinite log-density at the far end does not turn into NaN.
func interpolate(l1, l2, beta float64) float64 {
	switch beta {
	case 0:
		return l1
	case 1:
		return l2
	default:
		return l1*(1-beta) + l2*beta
	}
}
