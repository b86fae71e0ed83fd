package navmesh

import (
	"github.com/Faultbox/midgard-nav/pkg/math"
)

// randomTries bounds the rejection sampling inside the chosen polygon.
const randomTries = 8

// RandomPointAroundCircle picks a random point on the polygons reachable
// from start without crossing a portal outside the circle of radius around
// center. A polygon is chosen with probability proportional to its area
// inside the circle's bounding square. rnd returns values in [0, 1).
func RandomPointAroundCircle(src TileSource, start PolyRef, center math.Vec3, radius float32, maxNodes int, rnd func() float32) (PolyRef, math.Vec3, error) {
	chosenFrag, chosenPoly, err := resolve(src, start)
	if err != nil {
		return InvalidRef, math.Vec3{}, err
	}
	chosen := start
	var chosenLo, chosenHi math.Vec2
	var total float32

	circleLo := math.Vec2{X: center.X - radius, Y: center.Y - radius}
	circleHi := math.Vec2{X: center.X + radius, Y: center.Y + radius}
	visited := map[PolyRef]bool{start: true}
	queue := []PolyRef{start}

	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]
		f, p, err := resolve(src, ref)
		if err != nil {
			return InvalidRef, math.Vec3{}, err
		}

		plo, phi := f.PolyBounds(p)
		lo := math.Vec2{X: max(plo.X, circleLo.X), Y: max(plo.Y, circleLo.Y)}
		hi := math.Vec2{X: min(phi.X, circleHi.X), Y: min(phi.Y, circleHi.Y)}
		if hi.X > lo.X && hi.Y > lo.Y {
			area := (hi.X - lo.X) * (hi.Y - lo.Y)
			// Reservoir sampling weighted by area.
			total += area
			if rnd()*total < area {
				chosen, chosenFrag, chosenPoly = ref, f, p
				chosenLo, chosenHi = lo, hi
			}
		}

		for li := range p.Links {
			link := &p.Links[li]
			if visited[link.To] || len(visited) >= maxNodes {
				continue
			}
			if segmentDistanceXY(center, link.A, link.B) > radius {
				continue
			}
			visited[link.To] = true
			queue = append(queue, link.To)
		}
	}

	if total > 0 {
		r2 := radius * radius
		for try := 0; try < randomTries; try++ {
			pt := math.Vec3{
				X: chosenLo.X + rnd()*(chosenHi.X-chosenLo.X),
				Y: chosenLo.Y + rnd()*(chosenHi.Y-chosenLo.Y),
			}
			dx, dy := pt.X-center.X, pt.Y-center.Y
			if dx*dx+dy*dy <= r2 {
				return chosen, chosenFrag.ClosestPoint(chosenPoly, pt), nil
			}
		}
	}
	// Fall back to the point of the chosen polygon nearest the center.
	return chosen, chosenFrag.ClosestPoint(chosenPoly, center), nil
}

// segmentDistanceXY returns the horizontal distance from p to segment a-b.
func segmentDistanceXY(p, a, b math.Vec3) float32 {
	ab := b.XY().Sub(a.XY())
	ap := p.XY().Sub(a.XY())
	var t float32
	if l2 := ab.Dot(ab); l2 > 0 {
		t = min(max(ap.Dot(ab)/l2, 0), 1)
	}
	return ap.Sub(ab.Scale(t)).Length()
}
