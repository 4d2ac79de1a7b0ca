// Package toymodel realises small Gaussian models from model graphs, so that
// runs can be exercised end to end against closed-form marginal likelihoods.
//
// The node kinds it understands are:
//
//	RealParameter    {value}                                a state node
//	Normal           {x, mean, sigma}                       log N(x | mean, sigma²)
//	NormalLikelihood {mu, sigma, data}                      Σ log N(data[i] | mu, sigma²); data is white space separated
//	Compound         {distribution: [...]}                  the sum of its distributions
//	RandomWalk       {parameter, size, weight}              a uniform random-walk operator
//	MCMC             {posterior, prior, likelihood, operator: [...], stateNode: [...]}
//
// Numeric inputs may be scalars or references to RealParameters.
package toymodel

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/learking/pathsampling/mcmc"
	"github.com/learking/pathsampling/model"
)

// Paired returns a chain that anneals between the posteriors of the runs
// rooted at first and second. Nodes shared by both runs are realised once.
func Paired(g *model.Graph, first, second model.Ref, src rand.Source) (*mcmc.Chain, error) {
	r := newRealiser(g, src)
	m1, err := r.density(g, first, "posterior")
	if err != nil {
		return nil, err
	}
	m2, err := r.density(g, second, "posterior")
	if err != nil {
		return nil, err
	}
	return r.chain(first, mcmc.Paired{Model1: m1, Model2: m2})
}

// Single returns a chain that anneals the likelihood of the run rooted at run.
func Single(g *model.Graph, run model.Ref, src rand.Source) (*mcmc.Chain, error) {
	r := newRealiser(g, src)
	prior, err := r.density(g, run, "prior")
	if err != nil {
		return nil, err
	}
	lik, err := r.density(g, run, "likelihood")
	if err != nil {
		return nil, err
	}
	return r.chain(run, mcmc.PowerPosterior{Prior: prior, Likelihood: lik})
}

type realiser struct {
	g         *model.Graph
	src       rand.Source
	params    map[model.Ref]*Parameter
	densities map[model.Ref]*Density
	state     *State
}

func newRealiser(g *model.Graph, src rand.Source) *realiser {
	return &realiser{
		g:         g,
		src:       src,
		params:    make(map[model.Ref]*Parameter),
		densities: make(map[model.Ref]*Density),
		state:     &State{},
	}
}

func (r *realiser) chain(run model.Ref, target mcmc.Target) (*mcmc.Chain, error) {
	n := r.g.Node(run)
	nodes, err := refList(n, "stateNode")
	if err != nil {
		return nil, err
	}
	for _, ref := range nodes {
		p, err := r.param(ref)
		if err != nil {
			return nil, err
		}
		r.state.Params = append(r.state.Params, p)
	}
	opRefs, err := refList(n, "operator")
	if err != nil {
		return nil, err
	}
	var ops []mcmc.Operator
	var weights []float64
	for _, ref := range opRefs {
		op, weight, err := r.operator(ref)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		weights = append(weights, weight)
	}
	schedule, err := mcmc.NewWeightedSchedule(r.src, ops, weights)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", n, err)
	}
	return &mcmc.Chain{State: r.state, Schedule: schedule, Target: target}, nil
}

func (r *realiser) param(ref model.Ref) (*Parameter, error) {
	if p, ok := r.params[ref]; ok {
		return p, nil
	}
	n := r.g.Node(ref)
	if n.Kind != "RealParameter" {
		return nil, fmt.Errorf("%s: not a RealParameter", n)
	}
	v, err := scalar(n, "value")
	if err != nil {
		return nil, err
	}
	p := &Parameter{ID: n.ID, Value: v}
	r.params[ref] = p
	return p, nil
}

// real returns a function evaluating the named numeric input of n.
func (r *realiser) real(n *model.Node, name string) (func() float64, error) {
	in, ok := n.Input(name)
	if !ok || in.Value == nil {
		return nil, fmt.Errorf("%s: missing input %q", n, name)
	}
	if ref, ok := in.Value.(model.Ref); ok {
		p, err := r.param(ref)
		if err != nil {
			return nil, err
		}
		return func() float64 { return p.Value }, nil
	}
	v, err := scalar(n, name)
	if err != nil {
		return nil, err
	}
	return func() float64 { return v }, nil
}

// density realises the distribution referenced by the named input of node.
func (r *realiser) density(g *model.Graph, node model.Ref, input string) (*Density, error) {
	in, ok := g.Node(node).Input(input)
	ref, isRef := in.Value.(model.Ref)
	if !ok || !isRef {
		return nil, fmt.Errorf("%s: input %q does not reference a distribution", g.Node(node), input)
	}
	return r.realiseDensity(ref)
}

func (r *realiser) realiseDensity(ref model.Ref) (*Density, error) {
	if d, ok := r.densities[ref]; ok {
		return d, nil
	}
	n := r.g.Node(ref)
	var calc func() (float64, error)
	switch n.Kind {
	case "Normal":
		x, err := r.real(n, "x")
		if err != nil {
			return nil, err
		}
		mean, err := r.real(n, "mean")
		if err != nil {
			return nil, err
		}
		sigma, err := r.real(n, "sigma")
		if err != nil {
			return nil, err
		}
		calc = func() (float64, error) {
			return distuv.Normal{Mu: mean(), Sigma: sigma()}.LogProb(x()), nil
		}
	case "NormalLikelihood":
		mu, err := r.real(n, "mu")
		if err != nil {
			return nil, err
		}
		sigma, err := r.real(n, "sigma")
		if err != nil {
			return nil, err
		}
		data, err := observations(n)
		if err != nil {
			return nil, err
		}
		calc = func() (float64, error) {
			d := distuv.Normal{Mu: mu(), Sigma: sigma()}
			var logP float64
			for _, x := range data {
				logP += d.LogProb(x)
			}
			return logP, nil
		}
	case "Compound":
		refs, err := refList(n, "distribution")
		if err != nil {
			return nil, err
		}
		var parts []*Density
		for _, ref := range refs {
			d, err := r.realiseDensity(ref)
			if err != nil {
				return nil, err
			}
			parts = append(parts, d)
		}
		calc = func() (float64, error) {
			var logP float64
			for _, d := range parts {
				v, err := d.CalculateLogP()
				if err != nil {
					return 0, err
				}
				logP += v
			}
			return logP, nil
		}
	default:
		return nil, fmt.Errorf("%s: unknown distribution kind", n)
	}
	d := &Density{ID: n.ID, calc: calc}
	r.densities[ref] = d
	r.state.densities = append(r.state.densities, d)
	return d, nil
}

func (r *realiser) operator(ref model.Ref) (mcmc.Operator, float64, error) {
	n := r.g.Node(ref)
	if n.Kind != "RandomWalk" {
		return nil, 0, fmt.Errorf("%s: unknown operator kind", n)
	}
	in, _ := n.Input("parameter")
	pref, ok := in.Value.(model.Ref)
	if !ok {
		return nil, 0, fmt.Errorf("%s: input %q does not reference a parameter", n, "parameter")
	}
	p, err := r.param(pref)
	if err != nil {
		return nil, 0, err
	}
	size, err := scalar(n, "size")
	if err != nil {
		return nil, 0, err
	}
	weight := 1.0
	if _, ok := n.Input("weight"); ok {
		if weight, err = scalar(n, "weight"); err != nil {
			return nil, 0, err
		}
	}
	return &RandomWalk{ID: n.ID, Parameter: p, Size: size, Src: r.src}, weight, nil
}

func scalar(n *model.Node, name string) (float64, error) {
	in, ok := n.Input(name)
	if !ok {
		return 0, fmt.Errorf("%s: missing input %q", n, name)
	}
	s, ok := in.Value.(model.Scalar)
	if !ok {
		return 0, fmt.Errorf("%s: input %q is not a scalar", n, name)
	}
	switch v := s.V.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("%s: input %q holds a %T, want a number", n, name, s.V)
	}
}

func refList(n *model.Node, name string) ([]model.Ref, error) {
	in, ok := n.Input(name)
	if !ok || in.Value == nil {
		return nil, nil
	}
	l, ok := in.Value.(model.List)
	if !ok {
		return nil, fmt.Errorf("%s: input %q is not a list", n, name)
	}
	refs := make([]model.Ref, len(l))
	for i, v := range l {
		ref, ok := v.(model.Ref)
		if !ok {
			return nil, fmt.Errorf("%s: element %d of %q is not a node", n, i, name)
		}
		refs[i] = ref
	}
	return refs, nil
}

func observations(n *model.Node) ([]float64, error) {
	in, _ := n.Input("data")
	text, ok := in.Value.(model.Text)
	if !ok {
		return nil, fmt.Errorf("%s: input %q is not text", n, "data")
	}
	var data []float64
	for _, field := range strings.Fields(string(text)) {
		x, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: data: %w", n, err)
		}
		data = append(data, x)
	}
	return data, nil
}

// Parameter is a real-valued state node.
type Parameter struct {
	ID            string
	Value, stored float64
}

// Density is a realised distribution node. It caches the log-density of its
// latest calculation.
type Density struct {
	ID           string
	logP, stored float64
	calc         func() (float64, error)
}

func (d *Density) CalculateLogP() (float64, error) {
	v, err := d.calc()
	if err != nil {
		return 0, err
	}
	d.logP = v
	return v, nil
}

func (d *Density) CurrentLogP() float64 { return d.logP }

// State implements mcmc.State over the parameters of a chain and the
// densities that depend on them.
type State struct {
	Params    []*Parameter
	densities []*Density
}

func (s *State) Store(int) {
	for _, p := range s.Params {
		p.stored = p.Value
	}
}

func (s *State) Restore() {
	for _, p := range s.Params {
		p.Value = p.stored
	}
}

func (s *State) StoreCalculationNodes() {
	for _, d := range s.densities {
		d.stored = d.logP
	}
}

func (s *State) RestoreCalculationNodes() {
	for _, d := range s.densities {
		d.logP = d.stored
	}
}

// Densities are recalculated in full on every evaluation, so there is no
// dirtiness to track.
func (s *State) CheckCalculationNodesDirtiness() {}
func (s *State) AcceptCalculationNodes()         {}
func (s *State) SetEverythingDirty(bool)         {}

func (s *State) MarshalBinary() ([]byte, error) {
	values := make(map[string]float64, len(s.Params))
	for _, p := range s.Params {
		values[p.ID] = p.Value
	}
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(values); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func (s *State) UnmarshalBinary(data []byte) error {
	var values map[string]float64
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&values); err != nil {
		return err
	}
	for _, p := range s.Params {
		v, ok := values[p.ID]
		if !ok {
			return fmt.Errorf("toymodel: state holds no value for parameter %q", p.ID)
		}
		p.Value = v
	}
	return nil
}

// RandomWalk proposes a uniform move of its parameter within ±Size. It tunes
// Size towards an acceptance rate of 0.234 whenever Optimize is called.
type RandomWalk struct {
	ID        string
	Parameter *Parameter
	Size      float64
	Src       rand.Source

	accepted, rejected int
	tuned              int
}

func (o *RandomWalk) Name() string { return o.ID }

func (o *RandomWalk) Proposal(mcmc.Evaluator) (float64, error) {
	step := distuv.Uniform{Min: -o.Size, Max: o.Size, Src: o.Src}.Rand()
	o.Parameter.Value += step
	return 0, nil
}

func (o *RandomWalk) Accept() { o.accepted++ }
func (o *RandomWalk) Reject() { o.rejected++ }

// Optimize adapts the log of Size by a diminishing step proportional to the
// difference between the acceptance probability of the latest proposal and
// the target rate.
func (o *RandomWalk) Optimize(logAlpha float64) {
	const target = 0.234
	o.tuned++
	p := math.Min(1, math.Exp(logAlpha))
	if math.IsNaN(p) {
		p = 0
	}
	o.Size *= math.Exp((p - target) / float64(o.tuned+10))
}

func (o *RandomWalk) EvaluatorDistribution() mcmc.Distribution { return nil }

// AcceptanceRate returns the fraction of accepted proposals past burn-in.
func (o *RandomWalk) AcceptanceRate() float64 {
	total := o.accepted + o.rejected
	if total == 0 {
		return 0
	}
	return float64(o.accepted) / float64(total)
}
