package outlier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/viant/sqlite-facevec/feature"
	"github.com/viant/sqlite-facevec/vector"
)

// ErrInvalidThreshold is returned for negative or NaN thresholds.
var ErrInvalidThreshold = errors.New("outlier: threshold must be a non-negative number")

// Reference names the aggregate a distance was measured against.
type Reference string

const (
	ReferenceMean   Reference = "mean"
	ReferenceMedian Reference = "median"
)

// Outlier is one sample beyond the threshold.
type Outlier struct {
	Record   feature.Record
	Distance float64
}

// Report is the outcome of FindOutliers for one identity. A sample far from
// both references appears in both lists.
type Report struct {
	IdentityID string
	Threshold  float64
	// Total is the number of samples examined.
	Total      int
	FromMean   []Outlier
	FromMedian []Outlier
}

// Detector evaluates identities stored in a feature.Store.
type Detector struct {
	store   feature.Store
	workers int
	logger  *slog.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithWorkers bounds how many identities Report evaluates concurrently.
func WithWorkers(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithLogger sets the detector logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates a Detector reading from store.
func New(store feature.Store, opts ...Option) *Detector {
	d := &Detector{store: store, workers: 1, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FindOutliers loads the feature set of identityID and returns the samples
// whose distance to the mean, and separately to the median, is strictly
// greater than threshold. Store errors are returned unchanged.
func (d *Detector) FindOutliers(ctx context.Context, identityID string, threshold float64) (*Report, error) {
	if threshold < 0 || math.IsNaN(threshold) {
		return nil, ErrInvalidThreshold
	}
	set, err := d.store.LoadIdentityFeatureSet(ctx, identityID)
	if err != nil {
		return nil, err
	}
	report := &Report{IdentityID: identityID, Threshold: threshold, Total: len(set.Samples)}
	for _, s := range set.Samples {
		fromMean, err := vector.L2Distance(s.Vector, set.Mean.Vector)
		if err != nil {
			return nil, fmt.Errorf("outlier: sample %d (%q) vs mean: %w", s.ID, s.SourceLabel, err)
		}
		fromMedian, err := vector.L2Distance(s.Vector, set.Median.Vector)
		if err != nil {
			return nil, fmt.Errorf("outlier: sample %d (%q) vs median: %w", s.ID, s.SourceLabel, err)
		}
		if fromMean > threshold {
			report.FromMean = append(report.FromMean, Outlier{Record: s, Distance: fromMean})
		}
		if fromMedian > threshold {
			report.FromMedian = append(report.FromMedian, Outlier{Record: s, Distance: fromMedian})
		}
	}
	d.logger.Debug("outliers evaluated", "identity", identityID, "total", report.Total,
		"from_mean", len(report.FromMean), "from_median", len(report.FromMedian))
	return report, nil
}

// Outliers returns the list for ref.
func (r *Report) Outliers(ref Reference) []Outlier {
	if ref == ReferenceMedian {
		return r.FromMedian
	}
	return r.FromMean
}
