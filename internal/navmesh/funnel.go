package navmesh

import (
	"github.com/Faultbox/midgard-nav/pkg/math"
)

// portal is a corridor edge with its endpoints as seen walking forward.
type portal struct {
	left, right math.Vec3
}

// cross2 returns the Z component of (b-a) x (c-a). Positive when c lies to
// the left of the line a->b.
func cross2(a, b, c math.Vec3) float32 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

func sameXY(a, b math.Vec3) bool {
	dx, dy := a.X-b.X, a.Y-b.Y
	return dx*dx+dy*dy < 1e-6
}

// collinearEpsilon bounds the distance of a waypoint from the segment
// joining its neighbours before it is dropped.
const collinearEpsilon = 1e-3

// between reports whether b lies on the segment a-c, in 3D, within
// collinearEpsilon.
func between(a, b, c math.Vec3) bool {
	ac, ab := c.Sub(a), b.Sub(a)
	l2 := ac.Dot(ac)
	if l2 == 0 {
		return false
	}
	t := ab.Dot(ac) / l2
	if t < 0 || t > 1 {
		return false
	}
	cr := ab.Cross(ac)
	return cr.Dot(cr) <= collinearEpsilon*collinearEpsilon*l2
}

// corridorPortals lists the portals crossed by a corridor, framed by the
// degenerate start and goal portals.
func corridorPortals(src TileSource, corridor []Step, start, goal math.Vec3) ([]portal, error) {
	portals := make([]portal, 0, len(corridor)+1)
	portals = append(portals, portal{left: start, right: start})

	for k := 1; k < len(corridor); k++ {
		f, p, err := resolve(src, corridor[k-1].Ref)
		if err != nil {
			return nil, err
		}
		via := corridor[k].Via
		if via < 0 || int(via) >= len(p.Links) {
			return nil, ErrInvalidRef
		}
		link := &p.Links[via]

		// The portal lies on p's boundary, so the direction from p's centre
		// to its midpoint is never parallel to it.
		dir := link.Midpoint().Sub(f.Center(p))
		edge := link.A.Sub(link.B)
		if dir.X*edge.Y-dir.Y*edge.X > 0 {
			portals = append(portals, portal{left: link.A, right: link.B})
		} else {
			portals = append(portals, portal{left: link.B, right: link.A})
		}
	}

	portals = append(portals, portal{left: goal, right: goal})
	return portals, nil
}

// StraightPath pulls the corridor tight with the funnel algorithm and
// returns the waypoints from start to goal.
func StraightPath(src TileSource, corridor []Step, start, goal math.Vec3) ([]math.Vec3, error) {
	if len(corridor) == 0 {
		return nil, nil
	}
	portals, err := corridorPortals(src, corridor, start, goal)
	if err != nil {
		return nil, err
	}

	path := []math.Vec3{start}
	push := func(p math.Vec3) {
		last := len(path) - 1
		if sameXY(path[last], p) {
			return
		}
		// A corner on the line from the previous waypoint adds no turn.
		if last > 0 && between(path[last-1], path[last], p) {
			path[last] = p
			return
		}
		path = append(path, p)
	}

	apex, left, right := start, portals[0].left, portals[0].right
	apexIdx, leftIdx, rightIdx := 0, 0, 0

	for i := 1; i < len(portals); i++ {
		l, r := portals[i].left, portals[i].right

		// Tighten the right side.
		if cross2(apex, right, r) >= 0 {
			if sameXY(apex, right) || cross2(apex, left, r) < 0 {
				right, rightIdx = r, i
			} else {
				// Right crossed over left: left becomes the new apex.
				push(left)
				apex, apexIdx = left, leftIdx
				left, right = apex, apex
				leftIdx, rightIdx = apexIdx, apexIdx
				i = apexIdx
				continue
			}
		}

		// Tighten the left side.
		if cross2(apex, left, l) <= 0 {
			if sameXY(apex, left) || cross2(apex, right, l) > 0 {
				left, leftIdx = l, i
			} else {
				push(right)
				apex, apexIdx = right, rightIdx
				left, right = apex, apex
				leftIdx, rightIdx = apexIdx, apexIdx
				i = apexIdx
				continue
			}
		}
	}

	if len(path) == 1 {
		return append(path, goal), nil
	}
	push(goal)
	return path, nil
}

// PathLength returns the 3D length of a polyline.
func PathLength(path []math.Vec3) float32 {
	var total float32
	for i := 1; i < len(path); i++ {
		total += path[i-1].Distance(path[i])
	}
	return total
}

// PointAlong returns the point at distance d along path, clamped to its
// end. ok is false for an empty path.
func PointAlong(path []math.Vec3, d float32) (math.Vec3, bool) {
	if len(path) == 0 {
		return math.Vec3{}, false
	}
	if d <= 0 {
		return path[0], true
	}
	for i := 1; i < len(path); i++ {
		seg := path[i-1].Distance(path[i])
		if d <= seg && seg > 0 {
			return path[i-1].Lerp(path[i], d/seg), true
		}
		d -= seg
	}
	return path[len(path)-1], true
}
