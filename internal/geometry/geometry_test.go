package geometry

import (
	gomath "math"
	"testing"

	"github.com/Faultbox/midgard-nav/pkg/math"
)

func flatTriangle(z float32) Triangle {
	return Triangle{
		A: math.Vec3{X: 0, Y: 0, Z: z},
		B: math.Vec3{X: 10, Y: 0, Z: z},
		C: math.Vec3{X: 0, Y: 10, Z: z},
	}
}

func TestTriangleNormal(t *testing.T) {
	tri := flatTriangle(5)
	if n := tri.Normal(); n != (math.Vec3{X: 0, Y: 0, Z: 1}) {
		t.Errorf("expected up normal, got %v", n)
	}
}

func TestTriangleDegenerate(t *testing.T) {
	tests := []struct {
		name string
		tri  Triangle
		want bool
	}{
		{"regular", flatTriangle(0), false},
		{"collinear", Triangle{B: math.Vec3{X: 1}, C: math.Vec3{X: 2}}, true},
		{"nan", Triangle{A: math.Vec3{X: float32(gomath.NaN())}, B: math.Vec3{X: 1}, C: math.Vec3{Y: 1}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tri.IsDegenerate(); got != tt.want {
				t.Errorf("IsDegenerate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMaterialFlags(t *testing.T) {
	if !Material(0).BlocksSight() || !Material(0).Surface() {
		t.Error("default material should block sight and be a surface")
	}
	if MaterialLiquid.BlocksSight() {
		t.Error("liquid should not block sight")
	}
	if MaterialNoCollide.Surface() || MaterialNoCollide.BlocksSight() {
		t.Error("no-collide should be ignored")
	}
	if !(MaterialNoWalk | MaterialLiquid).Has(MaterialNoWalk) {
		t.Error("Has should report set flag")
	}
}

func TestIntersectTriangle(t *testing.T) {
	tri := flatTriangle(5)

	tests := []struct {
		name    string
		start   math.Vec3
		end     math.Vec3
		wantHit bool
		wantT   float32
	}{
		{"straight down", math.Vec3{X: 1, Y: 1, Z: 10}, math.Vec3{X: 1, Y: 1, Z: 0}, true, 0.5},
		{"from below", math.Vec3{X: 1, Y: 1, Z: 0}, math.Vec3{X: 1, Y: 1, Z: 10}, true, 0.5},
		{"outside", math.Vec3{X: 9, Y: 9, Z: 10}, math.Vec3{X: 9, Y: 9, Z: 0}, false, 0},
		{"too short", math.Vec3{X: 1, Y: 1, Z: 10}, math.Vec3{X: 1, Y: 1, Z: 6}, false, 0},
		{"parallel", math.Vec3{X: -1, Y: 1, Z: 5}, math.Vec3{X: 11, Y: 1, Z: 5}, false, 0},
		{"on edge", math.Vec3{X: 5, Y: 5, Z: 10}, math.Vec3{X: 5, Y: 5, Z: 0}, true, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, hit := NewSegment(tt.start, tt.end).IntersectTriangle(&tri)
			if hit != tt.wantHit {
				t.Fatalf("hit = %v, want %v", hit, tt.wantHit)
			}
			if hit && gomath.Abs(float64(got-tt.wantT)) > 1e-5 {
				t.Errorf("t = %v, want %v", got, tt.wantT)
			}
		})
	}
}

func TestIntersectTriangle_LargeCoordinates(t *testing.T) {
	// Far from the origin float32 loses precision; hits must still resolve.
	const base = 16000
	tri := Triangle{
		A: math.Vec3{X: base, Y: base, Z: 45.058178},
		B: math.Vec3{X: base + 2, Y: base, Z: 45.058178},
		C: math.Vec3{X: base, Y: base + 2, Z: 45.058178},
	}
	r := NewSegment(math.Vec3{X: base + 0.5, Y: base + 0.5, Z: 100}, math.Vec3{X: base + 0.5, Y: base + 0.5, Z: 0})
	d, hit := r.IntersectTriangle(&tri)
	if !hit {
		t.Fatal("expected hit")
	}
	if z := r.At(d).Z; gomath.Abs(float64(z-45.058178)) > 0.002 {
		t.Errorf("hit z = %v, want ~45.058178", z)
	}
}

func TestIntersectAABB(t *testing.T) {
	box := AABB{Min: math.Vec3{X: 0, Y: 0, Z: 0}, Max: math.Vec3{X: 1, Y: 1, Z: 1}}

	tests := []struct {
		name    string
		ray     Ray
		wantHit bool
		wantT   float32
	}{
		{"through", NewSegment(math.Vec3{X: -1, Y: 0.5, Z: 0.5}, math.Vec3{X: 3, Y: 0.5, Z: 0.5}), true, 0.25},
		{"inside", NewSegment(math.Vec3{X: 0.5, Y: 0.5, Z: 0.5}, math.Vec3{X: 3, Y: 0.5, Z: 0.5}), true, 0},
		{"short", NewSegment(math.Vec3{X: -3, Y: 0.5, Z: 0.5}, math.Vec3{X: -1, Y: 0.5, Z: 0.5}), false, 0},
		{"miss", NewSegment(math.Vec3{X: -1, Y: 2, Z: 0.5}, math.Vec3{X: 3, Y: 2, Z: 0.5}), false, 0},
		{"vertical", NewSegment(math.Vec3{X: 0.5, Y: 0.5, Z: 5}, math.Vec3{X: 0.5, Y: 0.5, Z: -5}), true, 0.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, hit := tt.ray.IntersectAABB(box, 1)
			if hit != tt.wantHit {
				t.Fatalf("hit = %v, want %v", hit, tt.wantHit)
			}
			if hit && gomath.Abs(float64(got-tt.wantT)) > 1e-6 {
				t.Errorf("t = %v, want %v", got, tt.wantT)
			}
		})
	}
}

func TestAABB(t *testing.T) {
	b := EmptyAABB()
	if !b.IsEmpty() {
		t.Fatal("EmptyAABB should be empty")
	}
	if b.SurfaceArea() != 0 {
		t.Error("empty box should have zero area")
	}
	b = b.Extend(math.Vec3{X: 1, Y: 2, Z: 3}).Extend(math.Vec3{X: -1, Y: 0, Z: 0})
	if b.Min != (math.Vec3{X: -1, Y: 0, Z: 0}) || b.Max != (math.Vec3{X: 1, Y: 2, Z: 3}) {
		t.Errorf("unexpected bounds %+v", b)
	}
	if got := b.SurfaceArea(); got != 2*(2*2+2*3+3*2) {
		t.Errorf("SurfaceArea = %v", got)
	}
	if c := b.Union(AABB{Min: math.Vec3{X: 4, Y: 4, Z: 4}, Max: math.Vec3{X: 5, Y: 5, Z: 5}}); c.Max != (math.Vec3{X: 5, Y: 5, Z: 5}) || c.Min != b.Min {
		t.Errorf("Union = %+v", c)
	}
	if got := b.Center(); got != (math.Vec3{X: 0, Y: 1, Z: 1.5}) {
		t.Errorf("Center = %v", got)
	}
}

func TestAABBTransform(t *testing.T) {
	b := AABB{Min: math.Vec3{X: -1, Y: -2, Z: 0}, Max: math.Vec3{X: 1, Y: 2, Z: 1}}
	rot := math.QuatFromAxisAngle(math.Vec3{Z: 1}, float32(gomath.Pi/2))
	out := b.Transform(math.Compose(math.Vec3{X: 10}, rot, 1))

	const eps = 1e-4
	if gomath.Abs(float64(out.Min.X-8)) > eps || gomath.Abs(float64(out.Max.X-12)) > eps {
		t.Errorf("unexpected X range %v..%v", out.Min.X, out.Max.X)
	}
	if gomath.Abs(float64(out.Min.Y+1)) > eps || gomath.Abs(float64(out.Max.Y-1)) > eps {
		t.Errorf("unexpected Y range %v..%v", out.Min.Y, out.Max.Y)
	}
}

func TestPointInPolygon(t *testing.T) {
	square := []math.Vec2{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}
	lshape := []math.Vec2{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 4}, {X: 4, Y: 4}, {X: 4, Y: 10}, {X: 0, Y: 10}}

	tests := []struct {
		name string
		poly []math.Vec2
		p    math.Vec2
		want bool
	}{
		{"square inside", square, math.Vec2{X: 5, Y: 5}, true},
		{"square outside", square, math.Vec2{X: 11, Y: 5}, false},
		{"L inside arm", lshape, math.Vec2{X: 2, Y: 8}, true},
		{"L notch", lshape, math.Vec2{X: 8, Y: 8}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PointInPolygon(tt.p, tt.poly); got != tt.want {
				t.Errorf("PointInPolygon = %v, want %v", got, tt.want)
			}
		})
	}

	lo, hi := PolygonBounds(lshape)
	if lo != (math.Vec2{}) || hi != (math.Vec2{X: 10, Y: 10}) {
		t.Errorf("PolygonBounds = %v %v", lo, hi)
	}
}

func TestSegmentIntersectsRect(t *testing.T) {
	lo, hi := math.Vec2{X: 0, Y: 0}, math.Vec2{X: 1, Y: 1}
	if !SegmentIntersectsRect(math.Vec2{X: -1, Y: 0.5}, math.Vec2{X: 2, Y: 0.5}, lo, hi) {
		t.Error("expected crossing segment to intersect")
	}
	if SegmentIntersectsRect(math.Vec2{X: -1, Y: 2}, math.Vec2{X: 2, Y: 2}, lo, hi) {
		t.Error("expected segment above rect to miss")
	}
}

func TestTriangleHeightAt(t *testing.T) {
	flat := Triangle{A: math.Vec3{X: 0, Y: 0, Z: 45.058178}, B: math.Vec3{X: 10, Y: 0, Z: 45.058178}, C: math.Vec3{X: 0, Y: 10, Z: 45.058178}}
	if z, ok := flat.HeightAt(2, 3); !ok || z != 45.058178 {
		t.Errorf("flat HeightAt = %v, %v, want exact plane height", z, ok)
	}

	ramp := Triangle{A: math.Vec3{X: 0, Y: 0, Z: 0}, B: math.Vec3{X: 10, Y: 0, Z: 5}, C: math.Vec3{X: 0, Y: 10, Z: 0}}
	if z, ok := ramp.HeightAt(4, 1); !ok || z < 1.999 || z > 2.001 {
		t.Errorf("ramp HeightAt = %v, %v, want 2", z, ok)
	}

	wall := Triangle{A: math.Vec3{X: 0, Y: 0, Z: 0}, B: math.Vec3{X: 10, Y: 0, Z: 0}, C: math.Vec3{X: 0, Y: 0, Z: 10}}
	if _, ok := wall.HeightAt(1, 0); ok {
		t.Error("vertical triangle should have no height")
	}
}
