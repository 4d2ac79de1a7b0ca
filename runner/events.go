package runner

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"strconv"
	"time"

	"github.com/danielorbach/go-component"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gocloud.dev/pubsub"
)

// StepCompleted notifies that the chain of one step of a run completed and its
// trace is final.
type StepCompleted struct {
	Run  string
	Step int
	Beta float64
	// Records is the length of the step's trace, burn-in records included.
	Records int
	// Resumed reports whether the step continued from a checkpoint.
	Resumed   bool
	Duration  time.Duration
	Completed time.Time
}

func publish(ctx context.Context, topic *pubsub.Topic, ev StepCompleted) error {
	ctx, span := tracer.Start(ctx, "runner.publish", trace.WithAttributes(
		attribute.String("run.id", ev.Run),
		attribute.Int("step.index", ev.Step),
	))
	defer span.End()

	logger := component.Logger(ctx).With("run", ev.Run, "step.index", ev.Step)
	logger.Debug("Encoding StepCompleted message using gob...")
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(ev); err != nil {
		err := fmt.Errorf("encode gob: %w", err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	// The run ID is a message key, so brokers that partition by key keep the
	// completions of a run in order.
	msg := &pubsub.Message{Body: b.Bytes(), Metadata: map[string]string{
		"run":  ev.Run,
		"step": strconv.Itoa(ev.Step),
	}}
	if err := topic.Send(ctx, msg); err != nil {
		err := fmt.Errorf("send: %w", err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	logger.Debug("StepCompleted message sent successfully")
	return nil
}

func decodeStepCompleted(p []byte) (StepCompleted, error) {
	var ev StepCompleted
	err := gob.NewDecoder(bytes.NewReader(p)).Decode(&ev)
	return ev, err
}
