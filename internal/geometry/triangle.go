// Package geometry provides the triangle, bounding box and ray primitives
// shared by the BVH, the navigation compiler and the query engine.
package geometry

import (
	"fmt"
	gomath "math"

	"github.com/Faultbox/midgard-nav/pkg/math"
)

// SourceType identifies which kind of world geometry a triangle came from.
type SourceType uint8

// Source types.
const (
	SourceTerrain    SourceType = 0
	SourceStaticMesh SourceType = 1
	SourceObject     SourceType = 2
)

// String returns a human-readable source name.
func (s SourceType) String() string {
	switch s {
	case SourceTerrain:
		return "Terrain"
	case SourceStaticMesh:
		return "StaticMesh"
	case SourceObject:
		return "Object"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// Material is a set of per-triangle flags. The zero value is solid ground
// that is walkable when flat enough.
type Material uint16

// Material flags.
const (
	MaterialNoWalk    Material = 1 << 0 // collides, never walkable
	MaterialLiquid    Material = 1 << 1 // walkable surface, transparent to line of sight
	MaterialNoCollide Material = 1 << 2 // ignored by line of sight and height queries
)

// Has reports whether all bits of flag are set.
func (m Material) Has(flag Material) bool {
	return m&flag == flag
}

// BlocksSight reports whether the material occludes line of sight.
func (m Material) BlocksSight() bool {
	return m&(MaterialNoCollide|MaterialLiquid) == 0
}

// Surface reports whether the material can yield a height candidate.
func (m Material) Surface() bool {
	return m&MaterialNoCollide == 0
}

// Triangle is one collision triangle with its tags.
type Triangle struct {
	A, B, C  math.Vec3
	Material Material
	Source   SourceType
	Instance uint32 // placement id for objects, 0 otherwise
}

// Normal returns the unit face normal following A, B, C winding.
func (t *Triangle) Normal() math.Vec3 {
	return t.B.Sub(t.A).Cross(t.C.Sub(t.A)).Normalize()
}

// Bounds returns the triangle's bounding box.
func (t *Triangle) Bounds() AABB {
	return AABB{
		Min: t.A.Min(t.B).Min(t.C),
		Max: t.A.Max(t.B).Max(t.C),
	}
}

// Centroid returns the average of the three vertices.
func (t *Triangle) Centroid() math.Vec3 {
	return t.A.Add(t.B).Add(t.C).Scale(1.0 / 3.0)
}

// IsDegenerate reports whether the triangle has (near) zero area or a
// non-finite vertex. Degenerate triangles are dropped before indexing.
func (t *Triangle) IsDegenerate() bool {
	if !t.A.IsFinite() || !t.B.IsFinite() || !t.C.IsFinite() {
		return true
	}
	return t.B.Sub(t.A).Cross(t.C.Sub(t.A)).Length() < 1e-8
}

// HeightAt returns the Z of the triangle's plane above (x, y). ok is false
// for vertical triangles.
func (t *Triangle) HeightAt(x, y float32) (z float32, ok bool) {
	ax, ay, az := float64(t.A.X), float64(t.A.Y), float64(t.A.Z)
	e1x, e1y, e1z := float64(t.B.X)-ax, float64(t.B.Y)-ay, float64(t.B.Z)-az
	e2x, e2y, e2z := float64(t.C.X)-ax, float64(t.C.Y)-ay, float64(t.C.Z)-az

	nx := e1y*e2z - e1z*e2y
	ny := e1z*e2x - e1x*e2z
	nz := e1x*e2y - e1y*e2x
	if gomath.Abs(nz) < 1e-12 {
		return 0, false
	}
	return float32(az - (nx*(float64(x)-ax)+ny*(float64(y)-ay))/nz), true
}

// Transform returns the triangle with every vertex transformed by m.
func (t Triangle) Transform(m math.Mat4) Triangle {
	t.A = m.TransformVec3(t.A)
	t.B = m.TransformVec3(t.B)
	t.C = m.TransformVec3(t.C)
	return t
}
