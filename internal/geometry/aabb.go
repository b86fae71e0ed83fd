package geometry

import (
	gomath "math"

	"github.com/Faultbox/midgard-nav/pkg/math"
)

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min math.Vec3
	Max math.Vec3
}

// EmptyAABB returns an inverted box that any Extend call will replace.
func EmptyAABB() AABB {
	inf := float32(gomath.Inf(1))
	return AABB{
		Min: math.Vec3{X: inf, Y: inf, Z: inf},
		Max: math.Vec3{X: -inf, Y: -inf, Z: -inf},
	}
}

// IsEmpty reports whether the box contains no points.
func (b AABB) IsEmpty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

// Extend grows the box to include p.
func (b AABB) Extend(p math.Vec3) AABB {
	return AABB{Min: b.Min.Min(p), Max: b.Max.Max(p)}
}

// Union returns the smallest box containing both boxes.
func (b AABB) Union(other AABB) AABB {
	return AABB{Min: b.Min.Min(other.Min), Max: b.Max.Max(other.Max)}
}

// Size returns the box extent per axis.
func (b AABB) Size() math.Vec3 {
	return b.Max.Sub(b.Min)
}

// Center returns the box center.
func (b AABB) Center() math.Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// SurfaceArea returns the box surface area, 0 for an empty box.
func (b AABB) SurfaceArea() float32 {
	if b.IsEmpty() {
		return 0
	}
	d := b.Size()
	return 2 * (d.X*d.Y + d.Y*d.Z + d.Z*d.X)
}

// Transform returns the world box enclosing the 8 transformed corners.
func (b AABB) Transform(m math.Mat4) AABB {
	if b.IsEmpty() {
		return b
	}
	out := EmptyAABB()
	for i := 0; i < 8; i++ {
		corner := b.Min
		if i&1 != 0 {
			corner.X = b.Max.X
		}
		if i&2 != 0 {
			corner.Y = b.Max.Y
		}
		if i&4 != 0 {
			corner.Z = b.Max.Z
		}
		out = out.Extend(m.TransformVec3(corner))
	}
	return out
}
