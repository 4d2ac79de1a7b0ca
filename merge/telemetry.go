package merge

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("github.com/learking/pathsampling/merge")
var meter = otel.Meter("github.com/learking/pathsampling/merge")

var (
	// mergeDuration measures the duration of a single successful Merge.
	mergeDuration metric.Float64Histogram
	// nodesMerged counts the second-model nodes replaced by their twins.
	nodesMerged metric.Int64Counter
	// mergeFailures counts the merges that were aborted.
	mergeFailures metric.Int64Counter
)

func init() {
	var err error
	mergeDuration, err = meter.Float64Histogram(
		"merge.duration",
		metric.WithDescription("The duration of a single model graph merge."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		panic("merge: failed to init 'merge.duration' instrument")
	}

	nodesMerged, err = meter.Int64Counter(
		"merge.nodes.merged",
		metric.WithDescription("The number of nodes replaced by a structurally equal twin."),
	)
	if err != nil {
		panic("merge: failed to init 'merge.nodes.merged' instrument")
	}

	mergeFailures, err = meter.Int64Counter(
		"merge.failures",
		metric.WithDescription("The number of merges that were aborted."),
	)
	if err != nil {
		panic("merge: failed to init 'merge.failures' instrument")
	}
}

// measureMerge records either the duration and size of a merge, or its
// failure.
func measureMerge(ctx context.Context, succeeded bool, merged int, d time.Duration) {
	if !succeeded {
		mergeFailures.Add(ctx, 1)
		return
	}
	attrs := attribute.NewSet(attribute.Bool("merge.shared", merged > 0))
	mergeDuration.Record(ctx, float64(d)/float64(time.Millisecond), metric.WithAttributeSet(attrs))
	nodesMerged.Add(ctx, int64(merged))
}
