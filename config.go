package pathsampling

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Config holds every value a run requires, regardless of how it is supplied.
//
// Field tags support YAML configuration files (see LoadConfig) and environment
// overrides via github.com/kelseyhightower/envconfig.
type Config struct {
	// Steps is the number of steps on the path; at least 2.
	Steps int `yaml:"steps" envconfig:"STEPS"`
	// Alpha is the steepness of the Sigmoid scheme. Non-positive values force
	// Uniform spacing.
	Alpha float64 `yaml:"alpha" envconfig:"ALPHA"`
	// Scheme places the coefficients along the path.
	Scheme Scheme `yaml:"scheme" envconfig:"SCHEME"`

	// ChainLength is the number of post burn-in iterations of every step.
	ChainLength int `yaml:"chainLength" envconfig:"CHAIN_LENGTH"`
	// BurnIn is the number of burn-in iterations of steps that continue from a
	// warm state.
	BurnIn int `yaml:"burnIn" envconfig:"BURN_IN"`
	// PreBurnIn is the number of burn-in iterations of the first step handled by
	// each worker, which starts from a cold state.
	PreBurnIn int `yaml:"preBurnIn" envconfig:"PRE_BURN_IN"`
	// BurnInPercentage is the leading percentage of every trace discarded by the
	// estimator; 0 <= BurnInPercentage < 100.
	BurnInPercentage int `yaml:"burnInPercentage" envconfig:"BURN_IN_PERCENTAGE"`
	// CheckpointEvery is the number of iterations between durable checkpoints;
	// zero disables checkpointing.
	CheckpointEvery int `yaml:"checkpointEvery" envconfig:"CHECKPOINT_EVERY"`
	// LogEvery thins the traces; zero selects ChainLength/1000 (at least 1).
	LogEvery int `yaml:"logEvery" envconfig:"LOG_EVERY"`

	// Parallelism bounds the number of steps sampled concurrently.
	Parallelism int `yaml:"parallelism" envconfig:"PARALLELISM"`
	// Seed seeds the random source of every step (offset by the step index).
	Seed uint64 `yaml:"seed" envconfig:"SEED"`
}

// DefaultConfig returns the defaults of a paired run.
func DefaultConfig() Config {
	return Config{
		Steps:            8,
		Alpha:            10,
		Scheme:           Sigmoid,
		ChainLength:      100000,
		BurnInPercentage: 50,
		Parallelism:      1,
		Seed:             127,
	}
}

// Validate checks the configuration eagerly and returns a *ConfigError
// describing the first invalid value.
func (c Config) Validate() error {
	switch {
	case c.Steps < 2:
		return &ConfigError{Field: "Steps", Reason: fmt.Sprintf("number of steps should be at least 2, got %d", c.Steps)}
	case c.Scheme != Sigmoid && c.Scheme != Uniform:
		return &ConfigError{Field: "Scheme", Reason: fmt.Sprintf("unknown scheme %d", int(c.Scheme))}
	case c.ChainLength <= 0:
		return &ConfigError{Field: "ChainLength", Reason: fmt.Sprintf("must be positive, got %d", c.ChainLength)}
	case c.BurnIn < 0 || c.BurnIn > c.ChainLength:
		return &ConfigError{Field: "BurnIn", Reason: fmt.Sprintf("must be in [0, %d], got %d", c.ChainLength, c.BurnIn)}
	case c.PreBurnIn < 0 || c.PreBurnIn > c.ChainLength:
		return &ConfigError{Field: "PreBurnIn", Reason: fmt.Sprintf("must be in [0, %d], got %d", c.ChainLength, c.PreBurnIn)}
	case c.BurnInPercentage < 0 || c.BurnInPercentage >= 100:
		return &ConfigError{Field: "BurnInPercentage", Reason: fmt.Sprintf("burnInPercentage should be between 0 and 100, got %d", c.BurnInPercentage)}
	case c.CheckpointEvery < 0:
		return &ConfigError{Field: "CheckpointEvery", Reason: fmt.Sprintf("must not be negative, got %d", c.CheckpointEvery)}
	case c.LogEvery < 0:
		return &ConfigError{Field: "LogEvery", Reason: fmt.Sprintf("must not be negative, got %d", c.LogEvery)}
	case c.Parallelism < 1:
		return &ConfigError{Field: "Parallelism", Reason: fmt.Sprintf("must be positive, got %d", c.Parallelism)}
	}
	return nil
}

// LogInterval returns the thinning interval of the traces: LogEvery, or one
// record per thousand iterations of the chain when LogEvery is zero.
func (c Config) LogInterval() int {
	if c.LogEvery > 0 {
		return c.LogEvery
	}
	return max(1, c.ChainLength/1000)
}

// LoadConfig decodes a YAML document over DefaultConfig and validates the
// result. An empty document yields the (validated) defaults.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
