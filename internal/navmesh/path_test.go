package navmesh

import (
	"errors"
	"testing"

	"github.com/Faultbox/midgard-nav/pkg/math"
)

func findPath(t *testing.T, src fragments, start, goal math.Vec3) []math.Vec3 {
	t.Helper()
	startRef, startPt, err := FindNearestPoly(src, testGrid, start, 5)
	if err != nil || startRef == InvalidRef {
		t.Fatalf("no polygon near start %v: %v", start, err)
	}
	goalRef, goalPt, err := FindNearestPoly(src, testGrid, goal, 5)
	if err != nil || goalRef == InvalidRef {
		t.Fatalf("no polygon near goal %v: %v", goal, err)
	}
	corridor, err := FindCorridor(src, startRef, startPt, goalRef, goalPt, 4096)
	if err != nil {
		t.Fatalf("FindCorridor() error = %v", err)
	}
	path, err := StraightPath(src, corridor, startPt, goalPt)
	if err != nil {
		t.Fatalf("StraightPath() error = %v", err)
	}
	return path
}

func TestFindPath_OpenGround(t *testing.T) {
	s := testSettings()
	s.MaxPolyCells = 8
	f := compileTile(t, home, s, nil, floor(0, 0, 16, 16, 0))
	src := fragments{home: f}

	// The corridor runs along the bottom row of 4x4 polygons.
	path := findPath(t, src, v3(1, 2, 0), v3(14, 2.5, 0))
	if len(path) != 2 {
		t.Fatalf("open ground path = %v, want a straight segment", path)
	}
	if path[0] != v3(1, 2, 0) || path[1] != v3(14, 2.5, 0) {
		t.Errorf("path endpoints = %v", path)
	}
}

func TestFindPath_Doorway(t *testing.T) {
	left := box(v3(0, 7.5, -0.1), v3(7, 8.5, 3), 0)
	right := box(v3(9, 7.5, -0.1), v3(16, 8.5, 3), 0)
	f := compileTile(t, home, testSettings(), nil, floor(0, 0, 16, 16, 0), left, right)
	src := fragments{home: f}

	start, goal := v3(2, 2, 0), v3(2, 14, 0)
	path := findPath(t, src, start, goal)

	if len(path) <= 3 {
		t.Fatalf("doorway path has %d points, want more than 3: %v", len(path), path)
	}
	length := PathLength(path)
	if length <= 12 || length >= 20 {
		t.Errorf("doorway path length = %v, want between 12 and 20", length)
	}
	checkTurns(t, path)
	for i := 1; i < len(path); i++ {
		a, b := path[i-1], path[i]
		if (a.Y-8)*(b.Y-8) >= 0 {
			continue
		}
		x := a.X + (b.X-a.X)*(8-a.Y)/(b.Y-a.Y)
		if x < 7 || x > 9 {
			t.Errorf("segment %v-%v crosses the wall at x=%v", a, b, x)
		}
	}
}

// checkTurns fails when an interior waypoint lies on the segment joining
// its neighbours.
func checkTurns(t *testing.T, path []math.Vec3) {
	t.Helper()
	for i := 1; i+1 < len(path); i++ {
		if between(path[i-1], path[i], path[i+1]) {
			t.Errorf("waypoint %d %v lies between %v and %v", i, path[i], path[i-1], path[i+1])
		}
	}
}

func TestFindPath_AroundBlock(t *testing.T) {
	s := testSettings()
	s.MaxPolyCells = 4
	block := box(v3(4, -1, -0.1), v3(12, 10, 3), 0)
	f := compileTile(t, home, s, nil, floor(0, 0, 16, 16, 0), block)
	src := fragments{home: f}

	path := findPath(t, src, v3(2, 3, 0), v3(14, 3, 0))
	if len(path) < 4 {
		t.Fatalf("path around block = %v, want at least two corners", path)
	}
	checkTurns(t, path)
	for _, p := range path {
		if p.X > 4 && p.X < 12 && p.Y < 10 {
			t.Errorf("waypoint %v inside the block", p)
		}
	}
}

func TestStraightPath_DropsCollinearCorners(t *testing.T) {
	tests := []struct {
		name    string
		a, b, c math.Vec3
		want    bool
	}{
		{"on segment", v3(12, 13.5, 0), v3(16, 13.5, 0), v3(20, 13.5, 0), true},
		{"within epsilon", v3(0, 0, 0), v3(5, 0.0001, 0), v3(10, 0, 0), true},
		{"turn", v3(0, 0, 0), v3(5, 1, 0), v3(10, 0, 0), false},
		{"beyond end", v3(0, 0, 0), v3(12, 0, 0), v3(10, 0, 0), false},
		{"ramp crest", v3(0, 0, 0), v3(5, 0, 2), v3(10, 0, 0), false},
		{"same point", v3(1, 1, 0), v3(1, 1, 0), v3(1, 1, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := between(tt.a, tt.b, tt.c); got != tt.want {
				t.Errorf("between(%v, %v, %v) = %v, want %v", tt.a, tt.b, tt.c, got, tt.want)
			}
		})
	}
}

func TestFindPath_Unreachable(t *testing.T) {
	wall := box(v3(0, 7.5, -0.1), v3(16, 8.5, 3), 0)
	f := compileTile(t, home, testSettings(), nil, floor(0, 0, 16, 16, 0), wall)
	src := fragments{home: f}

	startRef, startPt, _ := FindNearestPoly(src, testGrid, v3(2, 2, 0), 5)
	goalRef, goalPt, _ := FindNearestPoly(src, testGrid, v3(2, 14, 0), 5)
	corridor, err := FindCorridor(src, startRef, startPt, goalRef, goalPt, 4096)
	if err != nil {
		t.Fatalf("FindCorridor() error = %v", err)
	}
	if corridor != nil {
		t.Errorf("corridor through a solid wall = %v, want none", corridor)
	}
}

func TestFindNearestPoly(t *testing.T) {
	f := compileTile(t, home, testSettings(), nil, floor(4, 4, 12, 12, 1))
	src := fragments{home: f}

	ref, pt, err := FindNearestPoly(src, testGrid, v3(2, 8, 1), 5)
	if err != nil {
		t.Fatalf("FindNearestPoly() error = %v", err)
	}
	if ref == InvalidRef {
		t.Fatal("expected a polygon within reach")
	}
	// Erosion trims one cell from the floor's boundary.
	if pt.X != 4.5 || pt.Y != 8 || pt.Z != 1 {
		t.Errorf("closest point = %v, want (4.5, 8, 1)", pt)
	}

	if ref, _, _ := FindNearestPoly(src, testGrid, v3(8, 8, 10), 5); ref != InvalidRef {
		t.Errorf("point 9 units above the floor matched %v", ref)
	}
	if ref, _, _ := FindNearestPoly(src, testGrid, v3(-3, 8, 1), 5); ref != InvalidRef {
		t.Errorf("point 7.5 units away matched %v", ref)
	}
}

func TestStitch(t *testing.T) {
	east := TileCoord{X: 3, Y: 2}
	ground := floor(0, 0, 32, 16, 0)
	a := compileTile(t, home, testSettings(), nil, ground)
	b := compileTile(t, east, testSettings(), nil, ground)
	src := fragments{home: a, east: b}

	if a.PolyCount() != 1 || b.PolyCount() != 1 {
		t.Fatalf("poly counts = %d, %d, want 1 each", a.PolyCount(), b.PolyCount())
	}

	Stitch(src, testSettings())
	checkSymmetric(t, src)

	links := a.Polys[0].Links
	if len(links) != 1 || links[0].To != MakeRef(east, 0) {
		t.Fatalf("west tile links = %+v", links)
	}
	if links[0].A != v3(16, 0, 0) || links[0].B != v3(16, 16, 0) {
		t.Errorf("portal = %v-%v, want (16,0,0)-(16,16,0)", links[0].A, links[0].B)
	}

	Stitch(src, testSettings())
	if len(a.Polys[0].Links) != 1 || len(b.Polys[0].Links) != 1 {
		t.Errorf("restitching duplicated links: %d, %d", len(a.Polys[0].Links), len(b.Polys[0].Links))
	}

	path := findPath(t, src, v3(2, 8, 0), v3(30, 9, 0))
	if len(path) != 2 {
		t.Errorf("cross-tile path = %v, want a straight segment", path)
	}
}

func TestStitch_HeightMismatch(t *testing.T) {
	east := TileCoord{X: 3, Y: 2}
	a := compileTile(t, home, testSettings(), nil, floor(0, 0, 16, 16, 0))
	b := compileTile(t, east, testSettings(), nil, floor(16, 0, 32, 16, 2))
	src := fragments{home: a, east: b}

	Stitch(src, testSettings())
	if a.LinkCount() != 0 || b.LinkCount() != 0 {
		t.Errorf("tiles 2 units apart were linked: %d, %d", a.LinkCount(), b.LinkCount())
	}
}

func TestFindCorridor_InvalidRef(t *testing.T) {
	f := compileTile(t, home, testSettings(), nil, floor(0, 0, 16, 16, 0))
	src := fragments{home: f}

	_, err := FindCorridor(src, MakeRef(home, 99), v3(0, 0, 0), MakeRef(home, 0), v3(1, 1, 0), 100)
	if !errors.Is(err, ErrInvalidRef) {
		t.Errorf("FindCorridor() error = %v, want ErrInvalidRef", err)
	}
	_, err = FindCorridor(src, MakeRef(TileCoord{X: 0, Y: 0}, 0), v3(0, 0, 0), MakeRef(home, 0), v3(1, 1, 0), 100)
	if !errors.Is(err, ErrTileMissing) {
		t.Errorf("FindCorridor() error = %v, want ErrTileMissing", err)
	}
}

func TestPointAlong(t *testing.T) {
	path := []math.Vec3{v3(0, 0, 0), v3(3, 0, 0), v3(3, 4, 0)}
	if got := PathLength(path); got != 7 {
		t.Errorf("PathLength() = %v, want 7", got)
	}

	tests := []struct {
		d    float32
		want math.Vec3
	}{
		{-1, v3(0, 0, 0)},
		{0, v3(0, 0, 0)},
		{1.5, v3(1.5, 0, 0)},
		{5, v3(3, 2, 0)},
		{100, v3(3, 4, 0)},
	}
	for _, tt := range tests {
		got, ok := PointAlong(path, tt.d)
		if !ok || got != tt.want {
			t.Errorf("PointAlong(%v) = %v, %v, want %v", tt.d, got, ok, tt.want)
		}
	}
	if _, ok := PointAlong(nil, 1); ok {
		t.Error("PointAlong(nil) should report false")
	}
}

func TestFindPartialCorridor(t *testing.T) {
	wall := box(v3(0, 7.5, -0.1), v3(16, 8.5, 3), 0)
	f := compileTile(t, home, testSettings(), nil, floor(0, 0, 16, 16, 0), wall)
	src := fragments{home: f}

	start, goal := v3(2, 2, 0), v3(2, 14, 0)
	startRef, startPt, _ := FindNearestPoly(src, testGrid, start, 5)
	goalRef, goalPt, _ := FindNearestPoly(src, testGrid, goal, 5)

	corridor, reached, err := FindPartialCorridor(src, startRef, startPt, goalRef, goalPt, 4096)
	if err != nil {
		t.Fatalf("FindPartialCorridor() error = %v", err)
	}
	if reached || len(corridor) == 0 {
		t.Fatalf("FindPartialCorridor() = %d steps, reached %v; want a partial corridor", len(corridor), reached)
	}
	if corridor[0].Ref != startRef {
		t.Errorf("corridor starts at %v, want %v", corridor[0].Ref, startRef)
	}

	last := corridor[len(corridor)-1].Ref
	end := f.ClosestPoint(f.Poly(last), goalPt)
	if end.Y > 7.5 || end.Y < 6.5 {
		t.Errorf("partial corridor ends at %v, want against the wall", end)
	}

	// A reachable goal gives the full corridor.
	goalRef, goalPt, _ = FindNearestPoly(src, testGrid, v3(14, 3, 0), 5)
	corridor, reached, err = FindPartialCorridor(src, startRef, startPt, goalRef, goalPt, 4096)
	if err != nil || !reached || corridor[len(corridor)-1].Ref != goalRef {
		t.Errorf("reachable goal: reached %v, err %v", reached, err)
	}
}

// lcg returns a deterministic sequence in [0, 1).
func lcg(seed uint32) func() float32 {
	return func() float32 {
		seed = seed*1664525 + 1013904223
		return float32(seed>>8) / (1 << 24)
	}
}

func TestRandomPointAroundCircle(t *testing.T) {
	wall := box(v3(0, 7.5, -0.1), v3(16, 8.5, 3), 0)
	f := compileTile(t, home, testSettings(), nil, floor(0, 0, 16, 16, 0), wall)
	src := fragments{home: f}

	center := v3(8, 6, 0)
	const radius = 4
	startRef, _, _ := FindNearestPoly(src, testGrid, center, 5)

	rnd := lcg(7)
	seen := map[math.Vec2]bool{}
	for i := 0; i < 64; i++ {
		ref, p, err := RandomPointAroundCircle(src, startRef, center, radius, 4096, rnd)
		if err != nil {
			t.Fatalf("RandomPointAroundCircle() error = %v", err)
		}
		if p.XY().Distance(center.XY()) > radius+1e-3 {
			t.Errorf("point %v outside the circle", p)
		}
		if p.Y > 7.5 {
			t.Errorf("point %v beyond the wall", p)
		}
		if p.Z != 0 {
			t.Errorf("point %v off the floor", p)
		}
		lo, hi := f.PolyBounds(f.Poly(ref))
		if p.X < lo.X || p.X > hi.X || p.Y < lo.Y || p.Y > hi.Y {
			t.Errorf("point %v not on polygon %v [%v, %v]", p, ref, lo, hi)
		}
		seen[p.XY()] = true
	}
	if len(seen) < 32 {
		t.Errorf("only %d distinct points in 64 draws", len(seen))
	}

	a, _, _ := RandomPointAroundCircle(src, startRef, center, radius, 4096, lcg(3))
	b, _, _ := RandomPointAroundCircle(src, startRef, center, radius, 4096, lcg(3))
	if a != b {
		t.Errorf("same sequence picked %v and %v", a, b)
	}
}

func TestSegmentDistanceXY(t *testing.T) {
	tests := []struct {
		name string
		p    math.Vec3
		want float32
	}{
		{"above middle", v3(5, 3, 9), 3},
		{"past end", v3(13, 4, 0), 5},
		{"on segment", v3(2, 0, 0), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := segmentDistanceXY(tt.p, v3(0, 0, 0), v3(10, 0, 0)); got != tt.want {
				t.Errorf("segmentDistanceXY(%v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}
