package feature

import (
	"context"
	"time"
)

// Kind tags how a record's vector was derived.
type Kind string

const (
	// KindSample is a raw vector encoded from one photo.
	KindSample Kind = "Sample"
	// KindMean is the coordinate-wise mean of an identity's samples.
	KindMean Kind = "Mean"
	// KindMedian is the coordinate-wise median of an identity's samples.
	KindMedian Kind = "Median"
)

const (
	// MeanLabel is the source label stored on mean aggregate records.
	MeanLabel = "average"
	// MedianLabel is the source label stored on median aggregate records.
	MedianLabel = "median"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindSample, KindMean, KindMedian:
		return true
	}
	return false
}

// Record is one stored feature row.
type Record struct {
	// ID is assigned by the store on insert and never reused.
	ID int64

	// IdentityID groups all records of one subject.
	IdentityID string

	// Vector holds the feature coordinates.
	Vector []float64

	// SourceLabel names the originating photo, or MeanLabel/MedianLabel.
	SourceLabel string

	Kind Kind

	// CreatedAt is assigned by the store at insert time.
	CreatedAt time.Time
}

// IdentityFeatureSet is the read-side view of one identity: its samples in
// insertion order plus the authoritative mean and median.
type IdentityFeatureSet struct {
	Samples []Record
	Mean    Record
	Median  Record
}

// Store defines the feature store API.
//
// Implementations are not required to be safe for concurrent writers sharing
// one handle; callers fanning out writes must use a handle per worker.
type Store interface {
	// EnsureSchema idempotently creates the persisted table.
	EnsureSchema(ctx context.Context) error

	// Append inserts one record (ID and CreatedAt are ignored) and returns its id.
	Append(ctx context.Context, record Record) (int64, error)

	// AppendBatch inserts records in order within one transaction and returns
	// their ids in input order.
	AppendBatch(ctx context.Context, records []Record) ([]int64, error)

	// RecordsForIdentity returns all records of an identity in insertion order.
	RecordsForIdentity(ctx context.Context, identityID string) ([]Record, error)

	// LoadIdentityFeatureSet partitions RecordsForIdentity by kind. When an
	// identity was processed more than once, the most recently inserted mean
	// and median are authoritative.
	LoadIdentityFeatureSet(ctx context.Context, identityID string) (*IdentityFeatureSet, error)

	// Identities returns the distinct identity ids, sorted.
	Identities(ctx context.Context) ([]string, error)

	// Scan streams every record in insertion order.
	Scan(ctx context.Context, fn func(Record) error) error
}
