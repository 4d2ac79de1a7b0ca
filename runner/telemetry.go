package runner

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("github.com/learking/pathsampling/runner")
var meter = otel.Meter("github.com/learking/pathsampling/runner")

var (
	// stepsCompleted counts the steps whose chain ran to completion.
	stepsCompleted metric.Int64Counter
	// stepsFailed counts the steps that failed, including steps cancelled
	// because another step of their run failed.
	stepsFailed metric.Int64Counter
)

func init() {
	var err error
	stepsCompleted, err = meter.Int64Counter(
		"runner.steps.completed",
		metric.WithDescription("The number of steps whose chain ran to completion."),
	)
	if err != nil {
		panic("runner: failed to init 'runner.steps.completed' instrument")
	}

	stepsFailed, err = meter.Int64Counter(
		"runner.steps.failed",
		metric.WithDescription("The number of steps that failed or were cancelled."),
	)
	if err != nil {
		panic("runner: failed to init 'runner.steps.failed' instrument")
	}
}

func measureStep(ctx context.Context, succeeded bool) {
	if succeeded {
		stepsCompleted.Add(ctx, 1)
	} else {
		stepsFailed.Add(ctx, 1)
	}
}
