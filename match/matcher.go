package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/viant/sqlite-facevec/feature"
	"github.com/viant/sqlite-facevec/index"
	"github.com/viant/sqlite-facevec/index/bruteforce"
	"github.com/viant/sqlite-facevec/index/cover"
	"github.com/viant/sqlite-facevec/vector"
)

// IndexKind selects the index implementation.
type IndexKind string

const (
	IndexBruteforce IndexKind = "bruteforce"
	IndexCover      IndexKind = "cover"
)

// NewIndex returns an empty index of the given kind.
func NewIndex(kind IndexKind) (index.Index, error) {
	switch kind {
	case IndexBruteforce, "":
		return bruteforce.New(), nil
	case IndexCover:
		return cover.New(cover.DefaultBase), nil
	default:
		return nil, fmt.Errorf("match: unsupported index kind %q", kind)
	}
}

// Match is one identity close to the probe.
type Match struct {
	IdentityID string
	Distance   float64
}

// Matcher answers nearest-identity queries.
type Matcher struct {
	reference feature.Kind
	idx       index.Index
	skipped   []string
}

// Option configures Build.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used while building.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Build indexes the latest reference vector (KindMean or KindMedian) of
// every identity in store. Identities without that aggregate are skipped.
func Build(ctx context.Context, store feature.Store, reference feature.Kind, indexKind IndexKind, opts ...Option) (*Matcher, error) {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if reference != feature.KindMean && reference != feature.KindMedian {
		return nil, fmt.Errorf("match: reference must be %s or %s, got %q", feature.KindMean, feature.KindMedian, reference)
	}
	idx, err := NewIndex(indexKind)
	if err != nil {
		return nil, err
	}
	identities, err := store.Identities(ctx)
	if err != nil {
		return nil, err
	}
	m := &Matcher{reference: reference, idx: idx}
	var ids []string
	var vecs [][]float32
	for _, id := range identities {
		set, err := store.LoadIdentityFeatureSet(ctx, id)
		if errors.Is(err, feature.ErrMissingAggregate) {
			o.logger.Debug("identity skipped", "identity", id, "error", err)
			m.skipped = append(m.skipped, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		ref := set.Mean
		if reference == feature.KindMedian {
			ref = set.Median
		}
		ids = append(ids, id)
		vecs = append(vecs, vector.Float32s(ref.Vector))
	}
	if err := idx.Build(ids, vecs); err != nil {
		return nil, fmt.Errorf("match: build %s index: %w", indexKind, err)
	}
	o.logger.Info("matcher built", "reference", reference, "index", indexKind,
		"identities", len(ids), "skipped", len(m.skipped))
	return m, nil
}

// Len returns the number of indexed identities.
func (m *Matcher) Len() int { return m.idx.Len() }

// Skipped lists identities that had no usable reference aggregate.
func (m *Matcher) Skipped() []string { return m.skipped }

// Nearest returns up to k identities ordered by ascending distance to probe.
// When maxDistance is positive, only identities within that distance
// (inclusive) are returned. k <= 0 means no limit.
func (m *Matcher) Nearest(probe []float64, k int, maxDistance float64) ([]Match, error) {
	if len(probe) == 0 {
		return nil, vector.ErrEmptyVector
	}
	if math.IsNaN(maxDistance) {
		return nil, errors.New("match: max distance is NaN")
	}
	ids, dists, err := m.idx.Query(vector.Float32s(probe), k)
	if err != nil {
		return nil, fmt.Errorf("match: %w", err)
	}
	matches := make([]Match, 0, len(ids))
	for i, id := range ids {
		if maxDistance > 0 && dists[i] > maxDistance {
			break
		}
		matches = append(matches, Match{IdentityID: id, Distance: dists[i]})
	}
	return matches, nil
}
