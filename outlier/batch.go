package outlier

import (
	"context"
	"errors"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/viant/sqlite-facevec/feature"
)

// BatchReport folds per-identity reports. No cross-identity statistics are
// computed.
type BatchReport struct {
	Threshold float64
	// Reports holds one entry per identity, in request order.
	Reports []*Report
	// Skipped lists identities without stored aggregates, such as an
	// interrupted ingest, in request order.
	Skipped    []string
	Total      int
	FromMean   int
	FromMedian int
}

// Add folds r into b.
func (b *BatchReport) Add(r *Report) {
	b.Reports = append(b.Reports, r)
	b.Total += r.Total
	b.FromMean += len(r.FromMean)
	b.FromMedian += len(r.FromMedian)
}

// Report runs FindOutliers for every identity and folds the results. Up to
// the configured number of workers read concurrently. Identities missing an
// aggregate are recorded in Skipped; any other failure cancels the rest and
// is returned.
func (d *Detector) Report(ctx context.Context, identityIDs []string, threshold float64) (*BatchReport, error) {
	if threshold < 0 || math.IsNaN(threshold) {
		return nil, ErrInvalidThreshold
	}
	reports := make([]*Report, len(identityIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i, id := range identityIDs {
		g.Go(func() error {
			r, err := d.FindOutliers(gctx, id, threshold)
			if errors.Is(err, feature.ErrMissingAggregate) {
				d.logger.Warn("identity skipped", "identity", id, "error", err)
				return nil
			}
			if err != nil {
				return err
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	batch := &BatchReport{Threshold: threshold}
	for i, r := range reports {
		if r == nil {
			batch.Skipped = append(batch.Skipped, identityIDs[i])
			continue
		}
		batch.Add(r)
	}
	return batch, nil
}
