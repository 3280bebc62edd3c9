package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/viant/sqlite-facevec/feature"
	"github.com/viant/sqlite-facevec/vector"
)

// DefaultBatchSize is the number of samples written per flush group.
const DefaultBatchSize = 1000

// Aggregator ingests identities into a feature.Store.
type Aggregator struct {
	store     feature.Store
	batchSize int
	dimension int
	logger    *slog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithBatchSize sets the flush group size; values below one are ignored.
func WithBatchSize(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.batchSize = n
		}
	}
}

// WithDimension requires every sample to have exactly n coordinates. Zero
// only checks that samples of one identity agree with each other.
func WithDimension(n int) Option {
	return func(a *Aggregator) {
		if n >= 0 {
			a.dimension = n
		}
	}
}

// WithLogger sets the logger used for per-photo diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an Aggregator writing to store.
func New(store feature.Store, opts ...Option) *Aggregator {
	a := &Aggregator{store: store, batchSize: DefaultBatchSize, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Photo is one encoder result. A non-nil Err marks a photo the encoder could
// not turn into a vector.
type Photo struct {
	Label  string
	Vector []float64
	Err    error
}

// IngestIdentity stores every valid photo vector of identityID as a sample,
// in input order, then appends one mean and one median record computed over
// all stored samples. Storage failures abort the call and are returned with
// the partial summary; groups flushed before the failure remain stored.
func (a *Aggregator) IngestIdentity(ctx context.Context, identityID string, photos []Photo) (*Summary, error) {
	summary := &Summary{IdentityID: identityID, Processed: len(photos)}
	if identityID == "" {
		return summary, fmt.Errorf("aggregate: %w: identity id is empty", feature.ErrInvalidRecord)
	}
	logger := a.logger.With("identity", identityID)
	acc := newAccumulator(identityID, a.batchSize, a.dimension)

	for _, photo := range photos {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if photo.Err != nil {
			err := photo.Err
			var encErr *EncodingError
			if !errors.As(err, &encErr) {
				err = &EncodingError{IdentityID: identityID, Label: photo.Label, Err: err}
			}
			logger.Warn("skipping photo", "label", photo.Label, "error", err)
			summary.fail(photo.Label, err)
			continue
		}
		if err := acc.Add(photo.Label, photo.Vector); err != nil {
			logger.Warn("rejecting vector", "label", photo.Label, "dimension", len(photo.Vector), "error", err)
			summary.fail(photo.Label, err)
			continue
		}
		if acc.Full() {
			n, err := acc.Flush(ctx, a.store)
			if err != nil {
				return summary, err
			}
			summary.Stored += n
			logger.Debug("flushed samples", "count", n)
		}
	}
	n, err := acc.Flush(ctx, a.store)
	if err != nil {
		return summary, err
	}
	summary.Stored += n

	stored := acc.Stored()
	if len(stored) == 0 {
		if len(photos) > 0 {
			summary.Err = fmt.Errorf("aggregate: identity %q: %w", identityID, vector.ErrEmptyInput)
			logger.Warn("no samples stored, skipping aggregates", "failed", summary.Failed)
		}
		return summary, nil
	}

	mean, err := vector.Mean(stored)
	if err != nil {
		return summary, fmt.Errorf("aggregate: mean of %q: %w", identityID, err)
	}
	median, err := vector.Median(stored)
	if err != nil {
		return summary, fmt.Errorf("aggregate: median of %q: %w", identityID, err)
	}
	ids, err := a.store.AppendBatch(ctx, []feature.Record{
		{IdentityID: identityID, Vector: mean, SourceLabel: feature.MeanLabel, Kind: feature.KindMean},
		{IdentityID: identityID, Vector: median, SourceLabel: feature.MedianLabel, Kind: feature.KindMedian},
	})
	if err != nil {
		return summary, err
	}
	summary.MeanID, summary.MedianID = ids[0], ids[1]
	logger.Info("identity ingested", "stored", summary.Stored, "failed", summary.Failed)
	return summary, nil
}

// IngestPaths encodes each photo path with enc and ingests the results.
// Encoder failures become per-photo failures labeled with the file name.
func (a *Aggregator) IngestPaths(ctx context.Context, identityID string, paths []string, enc Encoder) (*Summary, error) {
	if enc == nil {
		return nil, fmt.Errorf("aggregate: encoder is nil")
	}
	photos := make([]Photo, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		label := filepath.Base(path)
		vec, err := enc.Encode(ctx, path)
		if err != nil {
			photos = append(photos, Photo{Label: label, Err: &EncodingError{IdentityID: identityID, Label: label, Err: err}})
			continue
		}
		photos = append(photos, Photo{Label: label, Vector: vec})
	}
	return a.IngestIdentity(ctx, identityID, photos)
}
