package aggregate

import (
	"context"

	"github.com/viant/sqlite-facevec/feature"
	"github.com/viant/sqlite-facevec/vector"
)

// Accumulator buffers the sample records of one IngestIdentity call and keeps
// every vector that reached the store. It is not shared between calls.
type Accumulator struct {
	identityID string
	batchSize  int
	dimension  int

	pending        []feature.Record
	pendingVectors [][]float64
	stored         [][]float64
}

func newAccumulator(identityID string, batchSize, dimension int) *Accumulator {
	return &Accumulator{
		identityID: identityID,
		batchSize:  batchSize,
		dimension:  dimension,
		pending:    make([]feature.Record, 0, batchSize),
	}
}

// Add validates vec and queues it as a sample. The first accepted vector
// fixes the dimension when none was configured.
func (a *Accumulator) Add(label string, vec []float64) error {
	if len(vec) == 0 {
		return vector.ErrEmptyVector
	}
	if a.dimension == 0 {
		a.dimension = len(vec)
	} else if len(vec) != a.dimension {
		return &vector.DimensionMismatchError{Expected: a.dimension, Actual: len(vec)}
	}
	a.pending = append(a.pending, feature.Record{
		IdentityID:  a.identityID,
		Vector:      vec,
		SourceLabel: label,
		Kind:        feature.KindSample,
	})
	a.pendingVectors = append(a.pendingVectors, vec)
	return nil
}

// Full reports whether the pending group reached the batch size.
func (a *Accumulator) Full() bool { return len(a.pending) >= a.batchSize }

// Flush writes the pending group and returns how many samples were stored.
func (a *Accumulator) Flush(ctx context.Context, store feature.Store) (int, error) {
	if len(a.pending) == 0 {
		return 0, nil
	}
	if _, err := store.AppendBatch(ctx, a.pending); err != nil {
		return 0, err
	}
	n := len(a.pending)
	a.stored = append(a.stored, a.pendingVectors...)
	a.pending = a.pending[:0]
	a.pendingVectors = a.pendingVectors[:0]
	return n, nil
}

// Stored returns every vector written so far.
func (a *Accumulator) Stored() [][]float64 { return a.stored }
