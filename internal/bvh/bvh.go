// Package bvh builds and queries bounding volume hierarchies over collision
// triangles. A tree is a flat node array with the root at index 0; leaves
// reference a contiguous range of Faces, which index into Triangles.
package bvh

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Faultbox/midgard-nav/internal/geometry"
)

// SplitPolicy selects how interior nodes partition their triangles.
type SplitPolicy uint8

// Split policies.
const (
	SplitSAH SplitPolicy = iota
	SplitMedian
)

// String returns the policy name used in configuration.
func (p SplitPolicy) String() string {
	switch p {
	case SplitSAH:
		return "sah"
	case SplitMedian:
		return "median"
	default:
		return fmt.Sprintf("unknown(%d)", p)
	}
}

// ParseSplitPolicy parses "sah" or "median".
func ParseSplitPolicy(s string) (SplitPolicy, error) {
	switch strings.ToLower(s) {
	case "", "sah":
		return SplitSAH, nil
	case "median":
		return SplitMedian, nil
	default:
		return 0, fmt.Errorf("unknown split policy %q", s)
	}
}

// Options controls tree construction.
type Options struct {
	Split SplitPolicy
	// MaxLeafTriangles is the split threshold: every leaf holds fewer
	// triangles than this.
	MaxLeafTriangles int
}

// DefaultOptions returns SAH splitting with a leaf threshold of 8.
func DefaultOptions() Options {
	return Options{Split: SplitSAH, MaxLeafTriangles: 8}
}

// traversalCost is the SAH cost of visiting an interior node relative to
// testing one triangle.
const traversalCost = 0.125

// Node is one tree node. Count > 0 marks a leaf.
type Node struct {
	Bounds      geometry.AABB
	Left, Right int32
	Start       int32
	Count       int32
}

// IsLeaf reports whether the node references triangles directly.
func (n *Node) IsLeaf() bool {
	return n.Count > 0
}

// Tree is an immutable BVH. The zero-triangle tree has no nodes and answers
// every query with no hits.
type Tree struct {
	Triangles []geometry.Triangle
	Nodes     []Node
	Faces     []int32
}

// Build constructs a tree. Degenerate triangles are dropped; the remaining
// ones keep their input order so indices are stable across identical builds.
func Build(tris []geometry.Triangle, opts Options) *Tree {
	if opts.MaxLeafTriangles < 2 {
		opts.MaxLeafTriangles = 2
	}

	t := &Tree{Triangles: make([]geometry.Triangle, 0, len(tris))}
	for i := range tris {
		if !tris[i].IsDegenerate() {
			t.Triangles = append(t.Triangles, tris[i])
		}
	}
	if len(t.Triangles) == 0 {
		return t
	}

	b := &builder{
		tree:      t,
		opts:      opts,
		bounds:    make([]geometry.AABB, len(t.Triangles)),
		centroids: make([][3]float32, len(t.Triangles)),
	}
	t.Faces = make([]int32, len(t.Triangles))
	for i := range t.Triangles {
		t.Faces[i] = int32(i)
		b.bounds[i] = t.Triangles[i].Bounds()
		b.centroids[i] = t.Triangles[i].Centroid().Array()
	}
	t.Nodes = make([]Node, 0, 2*len(t.Triangles)/opts.MaxLeafTriangles+1)
	b.build(0, len(t.Faces))
	return t
}

// Len returns the number of indexed triangles.
func (t *Tree) Len() int {
	return len(t.Triangles)
}

// Bounds returns the root box, or an empty box for an empty tree.
func (t *Tree) Bounds() geometry.AABB {
	if len(t.Nodes) == 0 {
		return geometry.EmptyAABB()
	}
	return t.Nodes[0].Bounds
}

type builder struct {
	tree      *Tree
	opts      Options
	bounds    []geometry.AABB
	centroids [][3]float32
	// scratch for SAH sweeps
	rightArea []float32
}

// build creates the node for Faces[lo:hi] and returns its index.
func (b *builder) build(lo, hi int) int32 {
	faces := b.tree.Faces[lo:hi]

	box := geometry.EmptyAABB()
	for _, f := range faces {
		box = box.Union(b.bounds[f])
	}

	idx := int32(len(b.tree.Nodes))
	b.tree.Nodes = append(b.tree.Nodes, Node{Bounds: box, Left: -1, Right: -1})

	if len(faces) < b.opts.MaxLeafTriangles {
		b.tree.Nodes[idx].Start = int32(lo)
		b.tree.Nodes[idx].Count = int32(len(faces))
		return idx
	}

	var mid int
	switch b.opts.Split {
	case SplitMedian:
		mid = b.splitMedian(faces)
	default:
		mid = b.splitSAH(faces, box)
	}

	left := b.build(lo, lo+mid)
	right := b.build(lo+mid, hi)
	b.tree.Nodes[idx].Left = left
	b.tree.Nodes[idx].Right = right
	return idx
}

func (b *builder) centroidBounds(faces []int32) (lo, hi [3]float32) {
	lo = b.centroids[faces[0]]
	hi = lo
	for _, f := range faces[1:] {
		c := b.centroids[f]
		for a := 0; a < 3; a++ {
			lo[a] = min(lo[a], c[a])
			hi[a] = max(hi[a], c[a])
		}
	}
	return lo, hi
}

// sortAxis orders faces by centroid along axis, breaking ties by index.
func (b *builder) sortAxis(faces []int32, axis int) {
	sort.Slice(faces, func(i, j int) bool {
		ci, cj := b.centroids[faces[i]][axis], b.centroids[faces[j]][axis]
		if ci != cj {
			return ci < cj
		}
		return faces[i] < faces[j]
	})
}

func longest(lo, hi [3]float32) int {
	axis := 0
	for a := 1; a < 3; a++ {
		if hi[a]-lo[a] > hi[axis]-lo[axis] {
			axis = a
		}
	}
	return axis
}

// splitMedian splits at the median centroid of the longest centroid axis.
func (b *builder) splitMedian(faces []int32) int {
	lo, hi := b.centroidBounds(faces)
	b.sortAxis(faces, longest(lo, hi))
	return len(faces) / 2
}

// splitSAH sweeps every axis and picks the split with the lowest surface
// area cost. Falls back to the median when all centroids coincide.
func (b *builder) splitSAH(faces []int32, box geometry.AABB) int {
	lo, hi := b.centroidBounds(faces)
	if lo == hi {
		return b.splitMedian(faces)
	}

	n := len(faces)
	if cap(b.rightArea) < n {
		b.rightArea = make([]float32, n)
	}
	rightArea := b.rightArea[:n]

	parentArea := box.SurfaceArea()
	if parentArea <= 0 {
		return b.splitMedian(faces)
	}

	bestAxis, bestSplit := -1, 0
	bestCost := float32(0)
	sorted := -1

	for axis := 0; axis < 3; axis++ {
		if hi[axis] == lo[axis] {
			continue
		}
		b.sortAxis(faces, axis)
		sorted = axis

		acc := geometry.EmptyAABB()
		for i := n - 1; i > 0; i-- {
			acc = acc.Union(b.bounds[faces[i]])
			rightArea[i] = acc.SurfaceArea()
		}

		acc = geometry.EmptyAABB()
		for i := 0; i < n-1; i++ {
			acc = acc.Union(b.bounds[faces[i]])
			nLeft := float32(i + 1)
			nRight := float32(n - i - 1)
			cost := traversalCost + (nLeft*acc.SurfaceArea()+nRight*rightArea[i+1])/parentArea
			if bestAxis < 0 || cost < bestCost {
				bestAxis, bestSplit, bestCost = axis, i+1, cost
			}
		}
	}

	if bestAxis != sorted {
		b.sortAxis(faces, bestAxis)
	}
	return bestSplit
}
