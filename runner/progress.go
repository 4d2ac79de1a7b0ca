package runner

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/danielorbach/go-component"
	"gocloud.dev/pubsub"
)

// Progress keeps track of the completed steps of runs, as announced by
// StepCompleted messages.
//
// Progress is safe for concurrent use. The zero value is ready to use.
type Progress struct {
	mu   sync.Mutex
	runs map[string]map[int]StepCompleted
}

// Update records the completion of a step, replacing any earlier completion of
// the same step.
func (p *Progress) Update(ev StepCompleted) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.runs == nil {
		p.runs = make(map[string]map[int]StepCompleted)
	}
	steps, ok := p.runs[ev.Run]
	if !ok {
		steps = make(map[int]StepCompleted)
		p.runs[ev.Run] = steps
	}
	steps[ev.Step] = ev
}

// Find returns the last known completion of a step of a run.
func (p *Progress) Find(run string, step int) (ev StepCompleted, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ev, ok = p.runs[run][step]
	return ev, ok
}

// Completed returns the completed steps of a run, ordered by step index.
func (p *Progress) Completed(run string) []StepCompleted {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.SortedFunc(maps.Values(p.runs[run]), func(a, b StepCompleted) int {
		return cmp.Compare(a.Step, b.Step)
	})
}

// TrackProgress returns a component.Proc that receives StepCompleted messages
// from source and records them in p until the component stops.
func TrackProgress(p *Progress, source *pubsub.Subscription) component.Proc {
	return func(l *component.L) {
		for l.Continue() {
			msg, err := source.Receive(l.GraceContext())
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					// we're shutting down
					return
				}
				l.Fatal(fmt.Errorf("receive: %w", err))
			}
			// Undecodable messages would be redelivered forever.
			msg.Ack()
			if err := p.handle(msg); err != nil {
				component.Logger(l.Context()).Error("Dropping StepCompleted message", "error", err)
			}
		}
	}
}

func (p *Progress) handle(msg *pubsub.Message) error {
	ev, err := decodeStepCompleted(msg.Body)
	if err != nil {
		return fmt.Errorf("decode gob: %w", err)
	}
	p.Update(ev)
	return nil
}
