package navmesh

import (
	"container/heap"
	"errors"

	"github.com/Faultbox/midgard-nav/pkg/math"
)

// ErrInvalidRef is returned when a polygon reference does not resolve.
var ErrInvalidRef = errors.New("invalid polygon reference")

// TileSource resolves fragments during a search, loading them on demand.
type TileSource interface {
	Fragment(c TileCoord) (*Fragment, error)
}

// Step is one polygon of a corridor. Via is the index of the link in the
// previous polygon that leads here, or -1 for the first polygon.
type Step struct {
	Ref PolyRef
	Via int32
}

// searchNode represents a polygon in the A* open and closed sets. Pos is
// the midpoint of the portal the search entered through.
type searchNode struct {
	Ref    PolyRef
	Pos    math.Vec3
	G      float32 // Cost from start
	H      float32 // Heuristic (estimated cost to goal)
	F      float32 // Total cost (G + H)
	Parent *searchNode
	Via    int32
	Seq    uint32 // insertion order, breaks ties
	Closed bool
	Index  int // Index in heap
}

// nodeHeap implements a priority queue ordered by F, then G, then
// insertion order.
type nodeHeap []*searchNode

func (h nodeHeap) Len() int { return len(h) }
func (h nodeHeap) Less(i, j int) bool {
	if h[i].F != h[j].F {
		return h[i].F < h[j].F
	}
	if h[i].G != h[j].G {
		return h[i].G < h[j].G
	}
	return h[i].Seq < h[j].Seq
}
func (h nodeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].Index = i
	h[j].Index = j
}

func (h *nodeHeap) Push(x interface{}) {
	n := len(*h)
	node := x.(*searchNode)
	node.Index = n
	*h = append(*h, node)
}

func (h *nodeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	node := old[n-1]
	old[n-1] = nil
	node.Index = -1
	*h = old[0 : n-1]
	return node
}

// resolve returns the fragment and polygon behind ref.
func resolve(src TileSource, ref PolyRef) (*Fragment, *Poly, error) {
	f, err := src.Fragment(ref.Tile())
	if err != nil {
		return nil, nil, err
	}
	p := f.Poly(ref)
	if p == nil {
		return nil, nil, ErrInvalidRef
	}
	return f, p, nil
}

// FindCorridor searches the polygon graph from start to goal with A*.
// Node positions are portal midpoints and costs are 3D distances. It
// returns nil when the goal is unreachable within maxNodes visited
// polygons.
func FindCorridor(src TileSource, start PolyRef, startPos math.Vec3, goal PolyRef, goalPos math.Vec3, maxNodes int) ([]Step, error) {
	steps, reached, err := search(src, start, startPos, goal, goalPos, maxNodes)
	if err != nil || !reached {
		return nil, err
	}
	return steps, nil
}

// FindPartialCorridor is FindCorridor that settles for getting close: when
// the goal cannot be reached it returns the corridor to the visited
// polygon nearest to goalPos, with reached false.
func FindPartialCorridor(src TileSource, start PolyRef, startPos math.Vec3, goal PolyRef, goalPos math.Vec3, maxNodes int) (steps []Step, reached bool, err error) {
	return search(src, start, startPos, goal, goalPos, maxNodes)
}

func search(src TileSource, start PolyRef, startPos math.Vec3, goal PolyRef, goalPos math.Vec3, maxNodes int) ([]Step, bool, error) {
	if _, _, err := resolve(src, start); err != nil {
		return nil, false, err
	}
	if _, _, err := resolve(src, goal); err != nil {
		return nil, false, err
	}
	if start == goal {
		return []Step{{Ref: start, Via: -1}}, true, nil
	}

	openSet := &nodeHeap{}
	heap.Init(openSet)
	nodes := make(map[PolyRef]*searchNode)
	var seq uint32

	startNode := &searchNode{
		Ref: start,
		Pos: startPos,
		H:   startPos.Distance(goalPos),
		Via: -1,
	}
	startNode.F = startNode.H
	heap.Push(openSet, startNode)
	nodes[start] = startNode

	// closest tracks the visited polygon nearest to the goal.
	var closest *searchNode
	closestDist := float32(0)

	for openSet.Len() > 0 {
		current := heap.Pop(openSet).(*searchNode)
		current.Closed = true

		if current.Ref == goal {
			return reconstruct(current), true, nil
		}

		f, poly, err := resolve(src, current.Ref)
		if err != nil {
			return nil, false, err
		}
		if d := f.ClosestPoint(poly, goalPos).Distance(goalPos); closest == nil || d < closestDist {
			closest, closestDist = current, d
		}

		for li := range poly.Links {
			link := &poly.Links[li]
			if current.Parent != nil && link.To == current.Parent.Ref {
				continue
			}

			pos := link.Midpoint()
			g := current.G + current.Pos.Distance(pos)
			var h float32
			if link.To == goal {
				g += pos.Distance(goalPos)
			} else {
				h = pos.Distance(goalPos)
			}

			neighbor, exists := nodes[link.To]
			if !exists {
				if len(nodes) >= maxNodes {
					continue
				}
				seq++
				neighbor = &searchNode{
					Ref:    link.To,
					Pos:    pos,
					G:      g,
					H:      h,
					Parent: current,
					Via:    int32(li),
					Seq:    seq,
				}
				neighbor.F = neighbor.G + neighbor.H
				nodes[link.To] = neighbor
				heap.Push(openSet, neighbor)
				continue
			}

			if g >= neighbor.G {
				continue
			}
			// Found better path
			neighbor.Pos = pos
			neighbor.G = g
			neighbor.H = h
			neighbor.F = g + h
			neighbor.Parent = current
			neighbor.Via = int32(li)
			if neighbor.Closed {
				neighbor.Closed = false
				heap.Push(openSet, neighbor)
			} else {
				heap.Fix(openSet, neighbor.Index)
			}
		}
	}

	if closest == nil {
		return nil, false, nil
	}
	return reconstruct(closest), false, nil
}

func reconstruct(node *searchNode) []Step {
	var steps []Step
	for n := node; n != nil; n = n.Parent {
		steps = append(steps, Step{Ref: n.Ref, Via: n.Via})
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return steps
}

// FindNearestPoly returns the polygon closest to pos among those within
// extent horizontally and vertically, with the closest point on it.
func FindNearestPoly(src TileSource, grid Grid, pos math.Vec3, extent float32) (PolyRef, math.Vec3, error) {
	lo := math.Vec2{X: pos.X - extent, Y: pos.Y - extent}
	hi := math.Vec2{X: pos.X + extent, Y: pos.Y + extent}

	best := InvalidRef
	var bestPt math.Vec3
	bestDist := float32(0)

	for _, c := range grid.TilesInRect(lo, hi) {
		f, err := src.Fragment(c)
		if err != nil {
			if errors.Is(err, ErrTileMissing) {
				continue
			}
			return InvalidRef, math.Vec3{}, err
		}

		i0, j0 := f.clampCell(lo)
		i1, j1 := f.clampCell(hi)
		for j := j0; j <= j1; j++ {
			for i := i0; i <= i1; i++ {
				for _, pi := range f.PolysAt(i, j) {
					p := &f.Polys[pi]
					pt := f.ClosestPoint(p, pos)
					if abs32(pt.Z-pos.Z) > extent || abs32(pt.X-pos.X) > extent || abs32(pt.Y-pos.Y) > extent {
						continue
					}
					d := pt.Distance(pos)
					ref := f.Ref(pi)
					if best == InvalidRef || d < bestDist || (d == bestDist && ref < best) {
						best, bestPt, bestDist = ref, pt, d
					}
				}
			}
		}
	}
	return best, bestPt, nil
}

// ErrTileMissing is returned by a TileSource for tiles the map does not
// have. Searches treat such tiles as empty.
var ErrTileMissing = errors.New("tile not in map")

func (f *Fragment) clampCell(p math.Vec2) (i, j int32) {
	i = int32((p.X - f.Origin.X) / f.CellSize)
	j = int32((p.Y - f.Origin.Y) / f.CellSize)
	if p.X < f.Origin.X {
		i = 0
	}
	if p.Y < f.Origin.Y {
		j = 0
	}
	return min(max(i, 0), f.Cells-1), min(max(j, 0), f.Cells-1)
}
