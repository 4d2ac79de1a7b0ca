package checkpoint

import (
	"context"
	"fmt"
	"path"
	"strconv"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// BlobStore keeps checkpoints as objects of a blob bucket, at
// <run>/checkpoint/<step>.gob. Replacing an object is atomic, so a crash while
// saving leaves the previous checkpoint intact.
type BlobStore struct {
	Bucket *blob.Bucket
}

func blobKey(run string, step int) string {
	return path.Join(run, "checkpoint", strconv.Itoa(step)+".gob")
}

func (s BlobStore) Save(ctx context.Context, c Checkpoint) error {
	b, err := encode(c)
	if err != nil {
		return err
	}
	if err := s.Bucket.WriteAll(ctx, blobKey(c.Run, c.Step), b, nil); err != nil {
		return fmt.Errorf("save checkpoint of step %d: %w", c.Step, err)
	}
	return nil
}

func (s BlobStore) Latest(ctx context.Context, run string, step int) (*Checkpoint, error) {
	b, err := s.Bucket.ReadAll(ctx, blobKey(run, step))
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint of step %d: %w", step, err)
	}
	return decode(b)
}
