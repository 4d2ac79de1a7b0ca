// Package tracelog stores the traces of a run as Parquet objects in a blob
// bucket, one object per step.
//
// Objects are laid out as <run>/<step>/likelihood.parquet, where <step> is the
// name of the step (see pathsampling.Step.Name).
package tracelog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/parquet-go/parquet-go"
	"gocloud.dev/blob"

	"github.com/learking/pathsampling"
)

// LikelihoodLog is the base name of the trace object of a step.
const LikelihoodLog = "likelihood.parquet"

// batchSize is the number of records buffered before they are handed to the
// Parquet encoder.
const batchSize = 1024

// Key returns the key of the trace object of the given step of a run.
func Key(run string, step pathsampling.Step, nSteps int) string {
	return path.Join(run, step.Name(nSteps), LikelihoodLog)
}

// A Writer writes the trace of a step to a blob object, incrementally. The
// object becomes visible once Close returns without error.
//
// A Writer is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	obj    *blob.Writer
	pw     *parquet.GenericWriter[pathsampling.Record]
	buf    []pathsampling.Record
	closed bool
}

// NewWriter opens the object with the given key for writing. Cancelling ctx
// before Close aborts the write.
func NewWriter(ctx context.Context, bucket *blob.Bucket, key string) (*Writer, error) {
	obj, err := bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: "application/vnd.apache.parquet"})
	if err != nil {
		return nil, fmt.Errorf("open trace %s: %w", key, err)
	}
	return &Writer{
		obj: obj,
		pw:  parquet.NewGenericWriter[pathsampling.Record](obj, parquet.Compression(&parquet.Zstd)),
		buf: make([]pathsampling.Record, 0, batchSize),
	}, nil
}

// WriteRecord implements pathsampling.TraceWriter.
func (w *Writer) WriteRecord(_ context.Context, r pathsampling.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("tracelog: write to closed writer")
	}
	w.buf = append(w.buf, r)
	if len(w.buf) == cap(w.buf) {
		return w.flush()
	}
	return nil
}

func (w *Writer) flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	if _, err := w.pw.Write(w.buf); err != nil {
		return fmt.Errorf("tracelog: encode records: %w", err)
	}
	w.buf = w.buf[:0]
	return nil
}

// Close flushes the buffered records and commits the object.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.flush()
	if err == nil {
		err = w.pw.Close()
	}
	if closeErr := w.obj.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Read returns the trace stored in the object with the given key.
func Read(ctx context.Context, bucket *blob.Bucket, key string) (pathsampling.Trace, error) {
	b, err := bucket.ReadAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read trace %s: %w", key, err)
	}
	pf, err := parquet.OpenFile(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("open trace %s: %w", key, err)
	}
	pr := parquet.NewGenericReader[pathsampling.Record](pf)
	defer pr.Close()
	rows := make(pathsampling.Trace, pr.NumRows())
	n, err := pr.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode trace %s: %w", key, err)
	}
	return rows[:n], nil
}

// ReadRun returns the traces of every step of a run, ordered by step index.
// The step indices found must be contiguous from zero.
func ReadRun(ctx context.Context, bucket *blob.Bucket, run string) ([]pathsampling.Trace, error) {
	type stepKey struct {
		index int
		key   string
	}
	var keys []stepKey
	it := bucket.List(&blob.ListOptions{Prefix: strings.TrimSuffix(run, "/") + "/"})
	for {
		obj, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list traces of %s: %w", run, err)
		}
		dir, base := path.Split(obj.Key)
		if base != LikelihoodLog {
			continue
		}
		name := path.Base(strings.TrimSuffix(dir, "/"))
		index, err := strconv.Atoi(strings.TrimPrefix(name, "step"))
		if err != nil || !strings.HasPrefix(name, "step") {
			continue
		}
		keys = append(keys, stepKey{index: index, key: obj.Key})
	}
	slices.SortFunc(keys, func(a, b stepKey) int { return a.index - b.index })

	traces := make([]pathsampling.Trace, len(keys))
	for i, k := range keys {
		if k.index != i {
			return nil, fmt.Errorf("run %s: missing the trace of step %d", run, i)
		}
		t, err := Read(ctx, bucket, k.key)
		if err != nil {
			return nil, err
		}
		traces[i] = t
	}
	return traces, nil
}
