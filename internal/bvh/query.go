package bvh

import (
	"github.com/Faultbox/midgard-nav/internal/geometry"
)

// Hit is a ray/triangle intersection. T is the fraction along the ray.
type Hit struct {
	T     float32
	Index int32
}

// Filter decides whether a triangle takes part in a query. A nil filter
// accepts every triangle.
type Filter func(tri *geometry.Triangle) bool

// Raycast returns the nearest accepted hit along r within [0, 1].
func (t *Tree) Raycast(r geometry.Ray, filter Filter) (Hit, bool) {
	if len(t.Nodes) == 0 {
		return Hit{}, false
	}

	best := Hit{T: 1, Index: -1}
	found := false

	stack := make([]int32, 1, 32)
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := &t.Nodes[idx]

		if _, ok := r.IntersectAABB(node.Bounds, best.T); !ok {
			continue
		}

		if node.IsLeaf() {
			for _, f := range t.Faces[node.Start : node.Start+node.Count] {
				tri := &t.Triangles[f]
				if filter != nil && !filter(tri) {
					continue
				}
				d, ok := r.IntersectTriangle(tri)
				if !ok || d > best.T {
					continue
				}
				if !found || d < best.T || f < best.Index {
					best = Hit{T: d, Index: f}
					found = true
				}
			}
			continue
		}

		// Push the far child first so the near child is visited first.
		tl, okL := r.IntersectAABB(t.Nodes[node.Left].Bounds, best.T)
		tr, okR := r.IntersectAABB(t.Nodes[node.Right].Bounds, best.T)
		switch {
		case okL && okR:
			if tr < tl {
				stack = append(stack, node.Left, node.Right)
			} else {
				stack = append(stack, node.Right, node.Left)
			}
		case okL:
			stack = append(stack, node.Left)
		case okR:
			stack = append(stack, node.Right)
		}
	}

	return best, found
}

// Intersect calls visit for every triangle hit along r within [0, 1], in
// tree order. Returning false from visit stops the walk.
func (t *Tree) Intersect(r geometry.Ray, visit func(Hit) bool) {
	if len(t.Nodes) == 0 {
		return
	}
	stack := make([]int32, 1, 32)
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := &t.Nodes[idx]

		if _, ok := r.IntersectAABB(node.Bounds, 1); !ok {
			continue
		}
		if node.IsLeaf() {
			for _, f := range t.Faces[node.Start : node.Start+node.Count] {
				if d, ok := r.IntersectTriangle(&t.Triangles[f]); ok {
					if !visit(Hit{T: d, Index: f}) {
						return
					}
				}
			}
			continue
		}
		stack = append(stack, node.Right, node.Left)
	}
}
