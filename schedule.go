package pathsampling

import (
	"fmt"
	"math"
	"strings"
)

// Scheme places the interpolation coefficients along the path.
type Scheme int

const (
	// Sigmoid spaces the coefficients along a logistic curve that runs from 1
	// (first step) towards 0 (last step). Its steepness is controlled by alpha.
	Sigmoid Scheme = iota
	// Uniform spaces the coefficients linearly from 0 (first step) to 1 (last
	// step).
	Uniform
)

var schemeNames = [...]string{
	Sigmoid: "sigmoid",
	Uniform: "uniform",
}

func (s Scheme) String() string {
	if s < 0 || int(s) >= len(schemeNames) {
		return fmt.Sprintf("Scheme(%d)", int(s))
	}
	return schemeNames[s]
}

// ParseScheme returns the Scheme with the given (case-insensitive) name.
func ParseScheme(name string) (Scheme, error) {
	for s, n := range schemeNames {
		if strings.EqualFold(strings.TrimSpace(name), n) {
			return Scheme(s), nil
		}
	}
	return 0, fmt.Errorf("unknown scheme %q: must be one of %v", name, schemeNames)
}

func (s Scheme) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(schemeNames) {
		return nil, fmt.Errorf("unknown scheme %d", int(s))
	}
	return []byte(schemeNames[s]), nil
}

func (s *Scheme) UnmarshalText(text []byte) error {
	x, err := ParseScheme(string(text))
	if err != nil {
		return err
	}
	*s = x
	return nil
}

// Decode lets envconfig parse a Scheme from an environment variable.
func (s *Scheme) Decode(value string) error {
	return s.UnmarshalText([]byte(value))
}

// Effective returns the scheme actually used for the given steepness: a
// non-positive alpha always selects Uniform spacing.
func (s Scheme) Effective(alpha float64) Scheme {
	if alpha <= 0 {
		return Uniform
	}
	return s
}

// NextBeta returns the interpolation coefficient of the given step on a path of
// totalSteps intervals (i.e., totalSteps+1 points, numbered 0..totalSteps).
//
// The Uniform scheme returns step/totalSteps. The Sigmoid scheme returns exactly
// 1 for step 0 and exactly 0 for step totalSteps; interior steps follow a
// centred logistic curve rescaled to pass through both end points, where larger
// values of alpha concentrate points near the high-beta end.
//
// A step outside [0, totalSteps] yields a *ScheduleRangeError.
func NextBeta(scheme Scheme, step, totalSteps int, alpha float64) (float64, error) {
	if totalSteps < 1 {
		return 0, &ConfigError{Field: "totalSteps", Reason: fmt.Sprintf("must be positive, got %d", totalSteps)}
	}
	if step < 0 || step > totalSteps {
		return 0, &ScheduleRangeError{Step: step, TotalSteps: totalSteps}
	}
	switch scheme {
	case Uniform:
		return float64(step) / float64(totalSteps), nil
	case Sigmoid:
		switch step {
		case 0:
			return 1, nil
		case totalSteps:
			return 0, nil
		}
		x := float64(totalSteps-step)/float64(totalSteps) - 0.5
		beta := (sigmoid(alpha*x)-0.5)/(sigmoid(0.5*alpha)-sigmoid(-0.5*alpha)) + 0.5
		if math.IsNaN(beta) {
			// alpha is too close to zero for the rescaling to be representable; the
			// curve degenerates to a straight line.
			beta = 1 - float64(step)/float64(totalSteps)
		}
		return math.Min(1, math.Max(0, beta)), nil
	default:
		return 0, fmt.Errorf("unknown scheme %v", scheme)
	}
}

// sigmoid is the logistic function of 2f, written as e^f / (e^f + e^-f).
func sigmoid(f float64) float64 {
	return 1 / (1 + math.Exp(-2*f))
}

// Schedule returns the coefficients of all nSteps steps of a run; a path of
// nSteps-1 intervals. A non-positive alpha forces Uniform spacing.
func Schedule(scheme Scheme, nSteps int, alpha float64) ([]float64, error) {
	if nSteps < 2 {
		return nil, &ConfigError{Field: "Steps", Reason: fmt.Sprintf("number of steps should be at least 2, got %d", nSteps)}
	}
	scheme = scheme.Effective(alpha)
	betas := make([]float64, nSteps)
	for i := range betas {
		b, err := NextBeta(scheme, i, nSteps-1, alpha)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		betas[i] = b
	}
	return betas, nil
}
