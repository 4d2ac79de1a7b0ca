package estimate

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// An Analyser summarises the retained samples of a trace.
type Analyser interface {
	Mean(samples []float64) float64
	// ESS returns the effective sample size: the number of independent samples
	// carrying as much information as the autocorrelated samples do.
	ESS(samples []float64) float64
}

// DefaultMaxLag bounds the autocorrelation lags the default Analyser sums.
const DefaultMaxLag = 2000

// Autocorrelation is the default Analyser. It estimates the integrated
// autocorrelation time from Geyer's initial positive sequence, summing
// autocorrelations up to MaxLag.
type Autocorrelation struct {
	MaxLag int // zero means DefaultMaxLag
}

func (Autocorrelation) Mean(samples []float64) float64 {
	return stat.Mean(samples, nil)
}

func (a Autocorrelation) ESS(samples []float64) float64 {
	n := len(samples)
	if n < 2 {
		return float64(n)
	}
	maxLag := a.MaxLag
	if maxLag <= 0 {
		maxLag = DefaultMaxLag
	}
	maxLag = min(maxLag, n-1)

	centred := make([]float64, n)
	copy(centred, samples)
	floats.AddConst(-stat.Mean(samples, nil), centred)
	variance := floats.Dot(centred, centred) / float64(n)
	if variance == 0 {
		return float64(n)
	}
	rho := func(lag int) float64 {
		return floats.Dot(centred[:n-lag], centred[lag:]) / float64(n) / variance
	}

	// tau = -1 + 2·Σ (rho(2m) + rho(2m+1)) over the initial positive pairs
	tau := -1.0
	for lag := 0; lag+1 <= maxLag; lag += 2 {
		pair := rho(lag) + rho(lag+1)
		if pair <= 0 {
			break
		}
		tau += 2 * pair
	}
	if tau < 1 {
		tau = 1
	}
	return float64(n) / tau
}
