package tree

import "github.com/viant/vec/search"

// Distance returns the Euclidean distance between two points of equal
// dimension.
func Distance(p1, p2 *Point) float32 {
	diff := make(search.Float32s, len(p1.Vector))
	for i, v := range p1.Vector {
		diff[i] = v - p2.Vector[i]
	}
	return diff.Magnitude()
}
