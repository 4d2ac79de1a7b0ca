package mcmc

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// A WeightedSchedule selects operators at random, proportionally to their
// weights.
type WeightedSchedule struct {
	operators []Operator
	dist      distuv.Categorical
}

// NewWeightedSchedule returns a schedule over the given operators. Weights
// must be non-negative and not all zero; src may be nil to use the global
// source.
func NewWeightedSchedule(src rand.Source, operators []Operator, weights []float64) (*WeightedSchedule, error) {
	if len(operators) == 0 {
		return nil, errors.New("weighted schedule: no operators")
	}
	if len(weights) != len(operators) {
		return nil, fmt.Errorf("weighted schedule: %d weights for %d operators", len(weights), len(operators))
	}
	var total float64
	for i, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("weighted schedule: operator %s has negative weight %v", operators[i].Name(), w)
		}
		total += w
	}
	if total == 0 {
		return nil, errors.New("weighted schedule: all weights are zero")
	}
	return &WeightedSchedule{
		operators: operators,
		dist:      distuv.NewCategorical(weights, src),
	}, nil
}

func (s *WeightedSchedule) SelectOperator() Operator {
	return s.operators[int(s.dist.Rand())]
}

// Operators returns the operators of the schedule.
func (s *WeightedSchedule) Operators() []Operator { return s.operators }
