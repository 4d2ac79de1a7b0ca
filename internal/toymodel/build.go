package toymodel

import (
	"math"
	"strconv"
	"strings"

	"github.com/learking/pathsampling/model"
)

// A NormalModel is a model of normally distributed observations with known
// standard deviation Sigma, whose mean mu has the prior N(PriorMean,
// PriorSigma²).
type NormalModel struct {
	PriorMean, PriorSigma float64
	Sigma                 float64
	Data                  []float64

	Start    float64 // initial value of mu
	StepSize float64 // initial size of the random walk on mu
}

// Graph returns the run of the model. Its node IDs are fixed, so the graphs of
// two models over the same data share the parameter, likelihood and operator
// nodes when merged.
func (m NormalModel) Graph() *model.Graph {
	data := make([]string, len(m.Data))
	for i, x := range m.Data {
		data[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	g := new(model.Graph)
	mu := g.Add(model.Node{ID: "mu", Kind: "RealParameter", Inputs: []model.Input{
		model.In("value", m.Start),
	}})
	prior := g.Add(model.Node{ID: "prior", Kind: "Normal", Inputs: []model.Input{
		model.In("x", mu),
		model.In("mean", m.PriorMean),
		model.In("sigma", m.PriorSigma),
	}})
	lik := g.Add(model.Node{ID: "likelihood", Kind: "NormalLikelihood", Inputs: []model.Input{
		model.In("mu", mu),
		model.In("sigma", m.Sigma),
		model.In("data", strings.Join(data, " ")),
	}})
	posterior := g.Add(model.Node{ID: "posterior", Kind: "Compound", Inputs: []model.Input{
		model.In("distribution", []model.Ref{prior, lik}),
	}})
	walk := g.Add(model.Node{ID: "muWalk", Kind: "RandomWalk", Inputs: []model.Input{
		model.In("parameter", mu),
		model.In("size", m.StepSize),
		model.In("weight", 1.0),
	}})
	run := g.Add(model.Node{ID: "mcmc", Kind: "MCMC", Inputs: []model.Input{
		model.In("posterior", posterior),
		model.In("prior", prior),
		model.In("likelihood", lik),
		model.In("operator", []model.Ref{walk}),
		model.In("stateNode", []model.Ref{mu}),
	}})
	g.SetRoot(run)
	return g
}

// LogMarginalLikelihood returns the log of the marginal likelihood of the
// data, in closed form: the data are jointly normal with mean PriorMean and
// covariance Sigma²·I + PriorSigma²·11ᵀ.
func (m NormalModel) LogMarginalLikelihood() float64 {
	n := float64(len(m.Data))
	v, v0 := m.Sigma*m.Sigma, m.PriorSigma*m.PriorSigma
	var ss, s float64
	for _, x := range m.Data {
		d := x - m.PriorMean
		ss += d * d
		s += d
	}
	logDet := n*math.Log(v) + math.Log1p(n*v0/v)
	quad := (ss - v0*s*s/(v+n*v0)) / v
	return -0.5 * (n*math.Log(2*math.Pi) + logDet + quad)
}
