package aggregate

import (
	"context"
	"fmt"
)

// Encoder turns one photo into a fixed-length feature vector. Face detection,
// landmarks and encoding live behind this interface.
type Encoder interface {
	Encode(ctx context.Context, path string) ([]float64, error)
}

// EncodeFunc adapts a function to Encoder.
type EncodeFunc func(ctx context.Context, path string) ([]float64, error)

// Encode implements Encoder.
func (f EncodeFunc) Encode(ctx context.Context, path string) ([]float64, error) { return f(ctx, path) }

// EncodingError is a per-photo failure reported by the Encoder.
type EncodingError struct {
	IdentityID string
	Label      string
	Err        error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("aggregate: encode %q for identity %q: %v", e.Label, e.IdentityID, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }
