package mcmc

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("github.com/learking/pathsampling/mcmc")
var meter = otel.Meter("github.com/learking/pathsampling/mcmc")

// proposalOutcome is the attribute key that distinguishes accepted, rejected
// and failed (invalid) proposals in the proposals counter.
const proposalOutcome = "outcome"

var (
	// proposals counts the proposals made by all chains, by outcome.
	proposals metric.Int64Counter
	// stepDuration measures the duration of sampling a complete step.
	stepDuration metric.Float64Histogram
	// stepFailures counts the steps whose chain returned an error.
	stepFailures metric.Int64Counter
)

var (
	acceptedSet = attribute.NewSet(attribute.String(proposalOutcome, "accepted"))
	rejectedSet = attribute.NewSet(attribute.String(proposalOutcome, "rejected"))
	failedSet   = attribute.NewSet(attribute.String(proposalOutcome, "failed"))
)

func init() {
	var err error
	proposals, err = meter.Int64Counter(
		"sampler.proposals",
		metric.WithDescription("The number of proposals made, labelled by their outcome."),
	)
	if err != nil {
		panic("mcmc: failed to init 'sampler.proposals' instrument")
	}

	stepDuration, err = meter.Float64Histogram(
		"sampler.step.duration",
		metric.WithDescription("The duration of sampling the chain of a single step."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		panic("mcmc: failed to init 'sampler.step.duration' instrument")
	}

	stepFailures, err = meter.Int64Counter(
		"sampler.step.failures",
		metric.WithDescription("The number of steps whose chain failed."),
	)
	if err != nil {
		panic("mcmc: failed to init 'sampler.step.failures' instrument")
	}
}

func (s chainStats) measure(ctx context.Context) {
	proposals.Add(ctx, s.accepted, metric.WithAttributeSet(acceptedSet))
	proposals.Add(ctx, s.rejected, metric.WithAttributeSet(rejectedSet))
	proposals.Add(ctx, s.failed, metric.WithAttributeSet(failedSet))
}

func measureStep(ctx context.Context, succeeded bool, d time.Duration) {
	if !succeeded {
		stepFailures.Add(ctx, 1)
		return
	}
	stepDuration.Record(ctx, float64(d)/float64(time.Millisecond))
}
