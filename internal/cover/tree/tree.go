package tree

// Insertion follows github.com/viant/gds/tree/cover, restricted to the
// Euclidean metric.

import (
	"container/heap"
	"math"
	"sort"
	"sync"
)

// Tree is a cover tree mapping points to values of type T.
type Tree[T any] struct {
	mu      sync.RWMutex
	root    *node
	base    float32
	values  []T
	version uint64
}

// New constructs an empty tree. A base <= 1 falls back to 1.3.
func New[T any](base float32) *Tree[T] {
	if base <= 1 {
		base = 1.3
	}
	return &Tree[T]{base: base}
}

// Len returns the number of inserted points.
func (t *Tree[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.values)
}

// Insert attaches point to the tree with value and returns its index.
func (t *Tree[T]) Insert(value T, point *Point) int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	point.index = int32(len(t.values))
	t.values = append(t.values, value)
	t.version++
	if t.root == nil {
		t.root = &node{point: point}
		return point.index
	}
	t.insert(point)
	return point.index
}

// Value returns the value stored for point, or the zero value for a point
// not produced by this tree.
func (t *Tree[T]) Value(point *Point) T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var zero T
	if !point.attached() || int(point.index) >= len(t.values) {
		return zero
	}
	return t.values[point.index]
}

func (t *Tree[T]) coverDistance(level int32) float32 {
	return float32(math.Pow(float64(t.base), float64(level)))
}

func (t *Tree[T]) insert(point *Point) {
	n := t.root
	level := n.level
	for {
		if Distance(point, n.point) >= t.coverDistance(level) {
			// Outside the root cover: lift a new root above the current one.
			if n == t.root {
				t.root = &node{level: level + 1, point: point, children: []*node{n}}
				return
			}
			n.children = append(n.children, &node{level: level - 1, point: point})
			return
		}
		var next *node
		for _, child := range n.children {
			if Distance(point, child.point) < t.coverDistance(level-1) {
				next = child
				break
			}
		}
		if next == nil {
			n.children = append(n.children, &node{level: level - 1, point: point})
			return
		}
		n = next
		level--
	}
}

// KNearestNeighbors returns up to k neighbours of point ordered by
// ascending distance.
func (t *Tree[T]) KNearestNeighbors(point *Point, k int) []Neighbor {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.root == nil || k <= 0 {
		return nil
	}
	h := &neighbors{}
	t.search(t.root, point, k, h)
	result := make([]Neighbor, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(Neighbor)
	}
	return result
}

func (t *Tree[T]) search(n *node, point *Point, k int, h *neighbors) {
	d := Distance(point, n.point)
	if h.Len() < k {
		heap.Push(h, Neighbor{Point: n.point, Distance: d})
	} else if d < (*h)[0].Distance {
		heap.Pop(h)
		heap.Push(h, Neighbor{Point: n.point, Distance: d})
	}
	if len(n.children) == 0 {
		return
	}
	type candidate struct {
		child *node
		dist  float32
	}
	candidates := make([]candidate, len(n.children))
	for i, child := range n.children {
		candidates[i] = candidate{child: child, dist: Distance(point, child.point)}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
	for _, c := range candidates {
		if h.Len() == k && c.dist-t.radius(c.child) >= (*h)[0].Distance {
			continue
		}
		t.search(c.child, point, k, h)
	}
}

// radius returns the exact subtree radius of n, caching it per version.
func (t *Tree[T]) radius(n *node) float32 {
	if n.version == t.version {
		return n.radius
	}
	var r float32
	for _, child := range n.children {
		if d := Distance(n.point, child.point) + t.radius(child); d > r {
			r = d
		}
	}
	n.radius = r
	n.version = t.version
	return r
}
