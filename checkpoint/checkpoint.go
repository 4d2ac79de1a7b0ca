// Package checkpoint persists the periodic checkpoints of running chains, so an
// aborted step can be resumed from its last completed checkpoint.
//
// Only the latest checkpoint of every step is kept.
package checkpoint

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/learking/pathsampling"
)

// ErrNotFound is returned by Store.Latest when a step has no checkpoint.
var ErrNotFound = errors.New("checkpoint: not found")

// A Checkpoint is the durable state of the chain of one step.
type Checkpoint struct {
	Run    string
	Step   int
	Sample int // the sample at whose start the state was taken
	// Model identifies the model the chain samples, so a checkpoint is never
	// resumed against a different model.
	Model string
	State []byte
	// Trace holds the records the chain logged before Sample.
	Trace pathsampling.Trace
}

// A Store saves and loads checkpoints.
type Store interface {
	// Save replaces the checkpoint of c.Step in c.Run.
	Save(ctx context.Context, c Checkpoint) error
	// Latest returns the checkpoint of a step, or ErrNotFound.
	Latest(ctx context.Context, run string, step int) (*Checkpoint, error)
}

func encode(c Checkpoint) ([]byte, error) {
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(c); err != nil {
		return nil, fmt.Errorf("encode checkpoint of step %d at sample %d: %w", c.Step, c.Sample, err)
	}
	return b.Bytes(), nil
}

func decode(b []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &c, nil
}
