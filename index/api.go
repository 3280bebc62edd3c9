package index

// Index is a nearest-neighbour index over float32 embeddings using
// Euclidean (L2) distance.
type Index interface {
	// Build replaces the index content with the given ids and vectors.
	// ids and vectors must have the same length and a common dimension.
	Build(ids []string, vectors [][]float32) error

	// Query returns up to k ids ordered by ascending L2 distance along with
	// the parallel distances. k <= 0 returns every entry.
	Query(query []float32, k int) (ids []string, distances []float64, err error)

	// Len reports the number of indexed vectors.
	Len() int
}
