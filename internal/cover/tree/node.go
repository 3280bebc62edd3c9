package tree

// node is one tree vertex. radius caches the maximum distance from point to
// any descendant and is recomputed lazily after inserts.
type node struct {
	level    int32
	point    *Point
	children []*node
	radius   float32
	version  uint64
}
