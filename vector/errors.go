package vector

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned when an aggregate is requested over no vectors.
	ErrEmptyInput = errors.New("vector: empty input")

	// ErrDimensionMismatch is matched by every *DimensionMismatchError.
	ErrDimensionMismatch = errors.New("vector: dimension mismatch")

	// ErrEmptyVector is returned when a zero-length vector is encoded or decoded.
	ErrEmptyVector = errors.New("vector: empty vector")
)

// DimensionMismatchError reports two vectors of different lengths.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Is makes errors.Is(err, ErrDimensionMismatch) hold.
func (e *DimensionMismatchError) Is(target error) bool { return target == ErrDimensionMismatch }
