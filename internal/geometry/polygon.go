package geometry

import "github.com/Faultbox/midgard-nav/pkg/math"

// PointInPolygon reports whether p lies inside the simple polygon poly
// using the even-odd rule. Points exactly on an edge may go either way.
func PointInPolygon(p math.Vec2, poly []math.Vec2) bool {
	inside := false
	n := len(poly)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := poly[i], poly[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < x {
				inside = !inside
			}
		}
	}
	return inside
}

// PolygonBounds returns the XY bounds of a polygon.
func PolygonBounds(poly []math.Vec2) (lo, hi math.Vec2) {
	if len(poly) == 0 {
		return
	}
	lo, hi = poly[0], poly[0]
	for _, p := range poly[1:] {
		lo.X, lo.Y = min(lo.X, p.X), min(lo.Y, p.Y)
		hi.X, hi.Y = max(hi.X, p.X), max(hi.Y, p.Y)
	}
	return lo, hi
}

// SegmentIntersectsRect reports whether segment a-b touches the XY rectangle
// [lo, hi].
func SegmentIntersectsRect(a, b, lo, hi math.Vec2) bool {
	r := Ray{
		Origin: math.Vec3{X: a.X, Y: a.Y},
		Dir:    math.Vec3{X: b.X - a.X, Y: b.Y - a.Y},
	}
	box := AABB{Min: math.Vec3{X: lo.X, Y: lo.Y}, Max: math.Vec3{X: hi.X, Y: hi.Y}}
	_, hit := r.IntersectAABB(box, 1)
	return hit
}
