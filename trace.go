package pathsampling

import (
	"context"
	"sync"
)

// A Record is one entry of a Trace: the diagnostic value logged at a sample.
//
// The diagnostic value is the difference between the current log-densities of
// the two models of a paired run, or the raw log-likelihood of a single-model
// run.
type Record struct {
	Sample int     `parquet:"sample"`
	Value  float64 `parquet:"value"`
}

// A Trace is the ordered sequence of records produced by one completed step.
// Burn-in records (negative samples) are part of the trace; discarding them is
// up to the consumer.
type Trace []Record

// Values returns the diagnostic values of the trace in order.
func (t Trace) Values() []float64 {
	v := make([]float64, len(t))
	for i := range t {
		v[i] = t[i].Value
	}
	return v
}

// A TraceWriter appends records to the trace of a step, incrementally, as the
// chain advances.
type TraceWriter interface {
	WriteRecord(ctx context.Context, r Record) error
}

// A TraceBuffer is an in-memory TraceWriter.
//
// The zero value is ready to use. A TraceBuffer is safe for concurrent use.
type TraceBuffer struct {
	mu      sync.Mutex
	records Trace
}

func (b *TraceBuffer) WriteRecord(_ context.Context, r Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, r)
	return nil
}

// Trace returns a copy of the records written so far.
func (b *TraceBuffer) Trace() Trace {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := make(Trace, len(b.records))
	copy(t, b.records)
	return t
}
