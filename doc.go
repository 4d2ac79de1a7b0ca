// Package pathsampling provides a library for estimating marginal likelihoods,
// and Bayes factors between two models, through path sampling and stepping-stone
// sampling; A sequence of Markov chains samples from power posteriors that are
// interpolated between a reference distribution and a target posterior, and the
// per-step traces are combined by numerical quadrature in log space.
//
// Specifically, a run is discretised into steps such that every step samples
// from one interpolation coefficient (i.e., beta) on the path. The coefficients
// are placed by a Scheme; uniformly, or along a sigmoid that concentrates steps
// near the posterior end of the path where the log-likelihood changes fastest.
//
// The package itself exposes the schedule (see NextBeta and Schedule), the
// configuration surface (see Config), the per-step descriptors (see Step) and
// the trace records produced by each step (see Trace). The sub-packages build on
// these types:
//
//   - model describes model graphs, and merge deduplicates two of them so a
//     paired run can share common sub-structure.
//   - mcmc runs one annealed Metropolis-Hastings chain per step.
//   - estimate combines the per-step traces into a log Bayes factor.
//   - runner wires them together for a complete run.
package pathsampling
