package pathsampling

import (
	"fmt"
	"strings"
)

// A Step describes one point on the interpolation path: the coefficient it
// samples from and the length of its chain.
type Step struct {
	Index int     // position on the path, 0..nSteps-1
	Beta  float64 // interpolation coefficient in [0, 1]

	ChainLength int // number of post burn-in iterations
	BurnIn      int // number of burn-in iterations, preceding ChainLength
	// CheckpointEvery is the number of iterations between durable checkpoints
	// of the chain's state; zero disables checkpointing.
	CheckpointEvery int
	// LogEvery thins the emitted trace to one record every LogEvery iterations;
	// values below one log every iteration.
	LogEvery int
}

// Validate reports whether the step satisfies 0 <= BurnIn <= ChainLength and a
// non-negative checkpoint interval.
func (s Step) Validate() error {
	switch {
	case s.ChainLength < 0:
		return &ConfigError{Field: "ChainLength", Reason: fmt.Sprintf("must not be negative, got %d", s.ChainLength)}
	case s.BurnIn < 0:
		return &ConfigError{Field: "BurnIn", Reason: fmt.Sprintf("must not be negative, got %d", s.BurnIn)}
	case s.BurnIn > s.ChainLength:
		return &ConfigError{Field: "BurnIn", Reason: fmt.Sprintf("burn-in %d exceeds chain length %d", s.BurnIn, s.ChainLength)}
	case s.CheckpointEvery < 0:
		return &ConfigError{Field: "CheckpointEvery", Reason: fmt.Sprintf("must not be negative, got %d", s.CheckpointEvery)}
	case s.Beta < 0 || s.Beta > 1:
		return &ConfigError{Field: "Beta", Reason: fmt.Sprintf("must be in [0, 1], got %v", s.Beta)}
	}
	return nil
}

// Name returns the step's storage name, e.g. "step03" for the fourth step of a
// run with ten or more steps. The index is zero-padded to the width of nSteps.
func (s Step) Name(nSteps int) string {
	width := len(fmt.Sprint(nSteps))
	name := fmt.Sprint(s.Index)
	if len(name) < width {
		name = strings.Repeat("0", width-len(name)) + name
	}
	return "step" + name
}

// Steps expands a configuration into the descriptors of all steps of a run.
//
// The first Parallelism steps start from a cold state, so they use PreBurnIn as
// their burn-in; every later step uses BurnIn.
func Steps(cfg Config) ([]Step, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	betas, err := Schedule(cfg.Scheme, cfg.Steps, cfg.Alpha)
	if err != nil {
		return nil, err
	}
	steps := make([]Step, len(betas))
	for i, beta := range betas {
		burnIn := cfg.BurnIn
		if i < cfg.Parallelism {
			burnIn = cfg.PreBurnIn
		}
		steps[i] = Step{
			Index:           i,
			Beta:            beta,
			ChainLength:     cfg.ChainLength,
			BurnIn:          burnIn,
			CheckpointEvery: cfg.CheckpointEvery,
			LogEvery:        cfg.LogInterval(),
		}
	}
	return steps, nil
}
