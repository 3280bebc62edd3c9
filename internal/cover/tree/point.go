package tree

// Point is a vector stored in the tree. index is assigned on insert and
// resolves the caller's value.
type Point struct {
	index  int32
	Vector []float32
}

// NewPoint constructs an unattached point.
func NewPoint(vector ...float32) *Point {
	return &Point{index: -1, Vector: vector}
}

func (p *Point) attached() bool {
	return p != nil && p.index >= 0
}
