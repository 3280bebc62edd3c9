package feature

import (
	"errors"
	"fmt"
)

var (
	// ErrStorage is matched by every *StorageError.
	ErrStorage = errors.New("feature: storage failure")

	// ErrSerialization is matched by every *SerializationError.
	ErrSerialization = errors.New("feature: serialization failure")

	// ErrMissingAggregate is matched by every *MissingAggregateError.
	ErrMissingAggregate = errors.New("feature: missing aggregate")

	// ErrInvalidRecord is returned for records rejected before reaching storage.
	ErrInvalidRecord = errors.New("feature: invalid record")
)

// StorageError wraps an I/O or driver failure.
type StorageError struct {
	Op         string
	IdentityID string
	Err        error
}

func (e *StorageError) Error() string {
	if e.IdentityID == "" {
		return fmt.Sprintf("feature: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("feature: %s %q: %v", e.Op, e.IdentityID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// SerializationError reports a vector that could not be encoded, or a stored
// blob that could not be decoded. RecordID is zero on the encode path.
type SerializationError struct {
	RecordID    int64
	IdentityID  string
	SourceLabel string
	Err         error
}

func (e *SerializationError) Error() string {
	if e.RecordID == 0 {
		return fmt.Sprintf("feature: encode vector %q/%q: %v", e.IdentityID, e.SourceLabel, e.Err)
	}
	return fmt.Sprintf("feature: decode record %d (%q/%q): %v", e.RecordID, e.IdentityID, e.SourceLabel, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

func (e *SerializationError) Is(target error) bool { return target == ErrSerialization }

// MissingAggregateError reports an identity lacking a mean or median record.
type MissingAggregateError struct {
	IdentityID string
	Kind       Kind
}

func (e *MissingAggregateError) Error() string {
	return fmt.Sprintf("feature: identity %q has no %s record", e.IdentityID, e.Kind)
}

func (e *MissingAggregateError) Is(target error) bool { return target == ErrMissingAggregate }
