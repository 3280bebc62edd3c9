package cover

import (
	"fmt"
	"math"

	"github.com/viant/sqlite-facevec/index"
	"github.com/viant/sqlite-facevec/internal/cover/tree"
)

// DefaultBase is the cover tree expansion base.
const DefaultBase float32 = 1.3

// Index answers L2 kNN queries through a cover tree. Results are exact;
// the tree only prunes subtrees that cannot hold a closer point.
type Index struct {
	base float32
	dim  int
	tree *tree.Tree[string]
}

var _ index.Index = (*Index)(nil)

// New returns an empty index using base for the tree levels. A base <= 1
// selects DefaultBase.
func New(base float32) *Index {
	if base <= 1 {
		base = DefaultBase
	}
	return &Index{base: base}
}

// Build inserts every vector into a fresh tree.
func (i *Index) Build(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("cover: ids/vectors length mismatch: %d != %d", len(ids), len(vectors))
	}
	if i.base <= 1 {
		i.base = DefaultBase
	}
	t := tree.New[string](i.base)
	dim := 0
	for j, v := range vectors {
		if j == 0 {
			dim = len(v)
			if dim == 0 {
				return fmt.Errorf("cover: empty vector for id %q", ids[j])
			}
		}
		if len(v) != dim {
			return fmt.Errorf("cover: inconsistent vector dims %d vs %d", len(v), dim)
		}
		t.Insert(ids[j], tree.NewPoint(v...))
	}
	i.tree = t
	i.dim = dim
	return nil
}

// Len reports the number of indexed vectors.
func (i *Index) Len() int {
	if i.tree == nil {
		return 0
	}
	return i.tree.Len()
}

// Query returns up to k ids ordered by ascending distance.
func (i *Index) Query(query []float32, k int) ([]string, []float64, error) {
	if i.Len() == 0 {
		return nil, nil, nil
	}
	if len(query) != i.dim {
		return nil, nil, fmt.Errorf("cover: query dim %d != index dim %d", len(query), i.dim)
	}
	if k <= 0 || k > i.tree.Len() {
		k = i.tree.Len()
	}
	neighbors := i.tree.KNearestNeighbors(tree.NewPoint(query...), k)
	ids := make([]string, 0, len(neighbors))
	dists := make([]float64, 0, len(neighbors))
	for _, n := range neighbors {
		if math.IsNaN(float64(n.Distance)) {
			continue
		}
		ids = append(ids, i.tree.Value(n.Point))
		dists = append(dists, float64(n.Distance))
	}
	return ids, dists, nil
}
