package geometry

import (
	gomath "math"

	"github.com/Faultbox/midgard-nav/pkg/math"
)

// Ray is a finite segment from Origin to Origin+Dir. Hit distances are
// fractions of the segment in [0, 1].
type Ray struct {
	Origin math.Vec3
	Dir    math.Vec3
}

// NewSegment creates a ray covering the segment start..end.
func NewSegment(start, end math.Vec3) Ray {
	return Ray{Origin: start, Dir: end.Sub(start)}
}

// At returns the point at fraction t.
func (r Ray) At(t float32) math.Vec3 {
	return r.Origin.Add(r.Dir.Scale(t))
}

// IntersectAABB tests the segment against a box. It returns the entry
// fraction (0 when the segment starts inside) and whether any part of
// [0, limit] overlaps the box.
func (r Ray) IntersectAABB(box AABB, limit float32) (t float32, hit bool) {
	tmin := float32(0)
	tmax := limit

	for axis := 0; axis < 3; axis++ {
		o := r.Origin.Axis(axis)
		d := r.Dir.Axis(axis)
		lo := box.Min.Axis(axis)
		hi := box.Max.Axis(axis)

		if d == 0 {
			if o < lo || o > hi {
				return 0, false
			}
			continue
		}

		t1 := (lo - o) / d
		t2 := (hi - o) / d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tmin {
			tmin = t1
		}
		if t2 < tmax {
			tmax = t2
		}
		if tmax < tmin {
			return 0, false
		}
	}

	return tmin, true
}

// barycentricSlack lets rays through shared edges hit both neighbours.
const barycentricSlack = 1e-7

// IntersectTriangle intersects the segment with a two-sided triangle using
// the Moller-Trumbore method. Arithmetic is done in float64 because world
// coordinates reach tens of thousands of units.
func (r Ray) IntersectTriangle(tri *Triangle) (t float32, hit bool) {
	ox, oy, oz := float64(r.Origin.X), float64(r.Origin.Y), float64(r.Origin.Z)
	dx, dy, dz := float64(r.Dir.X), float64(r.Dir.Y), float64(r.Dir.Z)
	ax, ay, az := float64(tri.A.X), float64(tri.A.Y), float64(tri.A.Z)

	e1x, e1y, e1z := float64(tri.B.X)-ax, float64(tri.B.Y)-ay, float64(tri.B.Z)-az
	e2x, e2y, e2z := float64(tri.C.X)-ax, float64(tri.C.Y)-ay, float64(tri.C.Z)-az

	// p = dir x e2
	px := dy*e2z - dz*e2y
	py := dz*e2x - dx*e2z
	pz := dx*e2y - dy*e2x

	det := e1x*px + e1y*py + e1z*pz
	if gomath.Abs(det) < 1e-12 {
		return 0, false
	}
	inv := 1 / det

	sx, sy, sz := ox-ax, oy-ay, oz-az
	u := (sx*px + sy*py + sz*pz) * inv
	if u < -barycentricSlack || u > 1+barycentricSlack {
		return 0, false
	}

	// q = s x e1
	qx := sy*e1z - sz*e1y
	qy := sz*e1x - sx*e1z
	qz := sx*e1y - sy*e1x

	v := (dx*qx + dy*qy + dz*qz) * inv
	if v < -barycentricSlack || u+v > 1+barycentricSlack {
		return 0, false
	}

	dist := (e2x*qx + e2y*qy + e2z*qz) * inv
	if dist < 0 || dist > 1 {
		return 0, false
	}
	return float32(dist), true
}
