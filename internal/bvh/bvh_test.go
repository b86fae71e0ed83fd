package bvh

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"github.com/Faultbox/midgard-nav/internal/geometry"
	"github.com/Faultbox/midgard-nav/pkg/math"
)

func v3(x, y, z float32) math.Vec3 {
	return math.Vec3{X: x, Y: y, Z: z}
}

// floorGrid returns 2*n*n triangles tiling [0,n]x[0,n] at height z.
func floorGrid(n int, z float32) []geometry.Triangle {
	var tris []geometry.Triangle
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			x0, y0 := float32(i), float32(j)
			a := v3(x0, y0, z)
			b := v3(x0+1, y0, z)
			c := v3(x0+1, y0+1, z)
			d := v3(x0, y0+1, z)
			tris = append(tris,
				geometry.Triangle{A: a, B: b, C: c},
				geometry.Triangle{A: a, B: c, C: d})
		}
	}
	return tris
}

func randomTriangles(rng *rand.Rand, n int) []geometry.Triangle {
	tris := make([]geometry.Triangle, n)
	for i := range tris {
		base := v3(rng.Float32()*100, rng.Float32()*100, rng.Float32()*20)
		tris[i] = geometry.Triangle{
			A:        base,
			B:        base.Add(v3(rng.Float32()*6-3, rng.Float32()*6-3, rng.Float32()*6-3)),
			C:        base.Add(v3(rng.Float32()*6-3, rng.Float32()*6-3, rng.Float32()*6-3)),
			Material: geometry.Material(i % 3),
		}
	}
	return tris
}

func checkInvariants(t *testing.T, tree *Tree, maxLeaf int) {
	t.Helper()

	seen := make([]int, len(tree.Triangles))
	var walk func(idx int32) geometry.AABB
	walk = func(idx int32) geometry.AABB {
		node := &tree.Nodes[idx]
		if node.IsLeaf() {
			if int(node.Count) >= maxLeaf {
				t.Errorf("leaf %d has %d triangles, want < %d", idx, node.Count, maxLeaf)
			}
			box := geometry.EmptyAABB()
			for _, f := range tree.Faces[node.Start : node.Start+node.Count] {
				seen[f]++
				box = box.Union(tree.Triangles[f].Bounds())
			}
			if node.Bounds != box {
				t.Errorf("leaf %d bounds %v, want %v", idx, node.Bounds, box)
			}
			return box
		}
		box := walk(node.Left).Union(walk(node.Right))
		if node.Bounds.Union(box) != node.Bounds {
			t.Errorf("node %d bounds %v do not contain children %v", idx, node.Bounds, box)
		}
		return box
	}
	walk(0)

	for i, n := range seen {
		if n != 1 {
			t.Errorf("triangle %d referenced %d times", i, n)
		}
	}
}

func TestBuild_Empty(t *testing.T) {
	tree := Build(nil, DefaultOptions())
	if tree.Len() != 0 || len(tree.Nodes) != 0 {
		t.Fatalf("empty build: %d triangles, %d nodes", tree.Len(), len(tree.Nodes))
	}
	if !tree.Bounds().IsEmpty() {
		t.Error("empty tree should have empty bounds")
	}
	if _, ok := tree.Raycast(geometry.NewSegment(v3(0, 0, 10), v3(0, 0, -10)), nil); ok {
		t.Error("raycast on empty tree should miss")
	}
}

func TestBuild_DropsDegenerate(t *testing.T) {
	tris := []geometry.Triangle{
		{A: v3(0, 0, 0), B: v3(1, 0, 0), C: v3(0, 1, 0)},
		{A: v3(0, 0, 0), B: v3(1, 1, 1), C: v3(2, 2, 2)}, // collinear
		{A: v3(5, 5, 5), B: v3(5, 5, 5), C: v3(5, 5, 5)}, // point
		{A: v3(2, 0, 0), B: v3(3, 0, 0), C: v3(2, 1, 0)},
	}
	tree := Build(tris, DefaultOptions())
	if tree.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tree.Len())
	}
	if tree.Triangles[0] != tris[0] || tree.Triangles[1] != tris[3] {
		t.Error("surviving triangles should keep input order")
	}
}

func TestBuild_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	random := randomTriangles(rng, 500)

	for _, split := range []SplitPolicy{SplitSAH, SplitMedian} {
		for _, leaf := range []int{2, 4, 8} {
			opts := Options{Split: split, MaxLeafTriangles: leaf}
			checkInvariants(t, Build(random, opts), leaf)
			checkInvariants(t, Build(floorGrid(12, 0), opts), leaf)
		}
	}
}

func TestBuild_IdenticalCentroids(t *testing.T) {
	// Rotated copies around a shared centroid.
	var tris []geometry.Triangle
	for i := 0; i < 40; i++ {
		rot := math.QuatFromAxisAngle(v3(0, 0, 1), float32(i)*0.1).ToMat4()
		tris = append(tris, geometry.Triangle{
			A: rot.TransformVec3(v3(1, 0, 0)),
			B: rot.TransformVec3(v3(-0.5, 0.866, 0)),
			C: rot.TransformVec3(v3(-0.5, -0.866, 0)),
		})
	}
	tree := Build(tris, DefaultOptions())
	checkInvariants(t, tree, 8)
}

func TestBuild_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	tris := randomTriangles(rng, 300)

	a := Build(tris, DefaultOptions())
	b := Build(tris, DefaultOptions())
	if !reflect.DeepEqual(a, b) {
		t.Fatal("two builds of the same input differ")
	}
}

func bruteNearest(tris []geometry.Triangle, r geometry.Ray, filter Filter) (float32, bool) {
	best := float32(2)
	found := false
	for i := range tris {
		if filter != nil && !filter(&tris[i]) {
			continue
		}
		if d, ok := r.IntersectTriangle(&tris[i]); ok && d < best {
			best, found = d, true
		}
	}
	return best, found
}

func TestRaycast_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	tris := randomTriangles(rng, 400)
	noWalk := func(tri *geometry.Triangle) bool { return tri.Material != geometry.MaterialNoWalk }

	for _, split := range []SplitPolicy{SplitSAH, SplitMedian} {
		tree := Build(tris, Options{Split: split, MaxLeafTriangles: 8})

		for i := 0; i < 300; i++ {
			start := v3(rng.Float32()*100, rng.Float32()*100, rng.Float32()*30-5)
			end := v3(rng.Float32()*100, rng.Float32()*100, rng.Float32()*30-5)
			r := geometry.NewSegment(start, end)

			for _, filter := range []Filter{nil, noWalk} {
				want, wantOK := bruteNearest(tree.Triangles, r, filter)
				hit, ok := tree.Raycast(r, filter)
				if ok != wantOK {
					t.Fatalf("%v ray %d: hit=%v, brute force hit=%v", split, i, ok, wantOK)
				}
				if ok && (hit.T-want > 1e-6 || want-hit.T > 1e-6) {
					t.Fatalf("%v ray %d: T=%v, brute force T=%v", split, i, hit.T, want)
				}
			}
		}
	}
}

func TestRaycast_Floor(t *testing.T) {
	tree := Build(floorGrid(10, 2), DefaultOptions())

	hit, ok := tree.Raycast(geometry.NewSegment(v3(3.3, 4.6, 12), v3(3.3, 4.6, -8)), nil)
	if !ok {
		t.Fatal("vertical ray should hit the floor")
	}
	if hit.T < 0.499 || hit.T > 0.501 {
		t.Errorf("T = %v, want 0.5", hit.T)
	}

	if _, ok := tree.Raycast(geometry.NewSegment(v3(3, 4, 12), v3(3, 4, 3)), nil); ok {
		t.Error("segment ending above the floor should miss")
	}
	if _, ok := tree.Raycast(geometry.NewSegment(v3(-5, -5, 12), v3(-5, -5, -8)), nil); ok {
		t.Error("ray outside the floor should miss")
	}
}

func TestIntersect_AllHits(t *testing.T) {
	var tris []geometry.Triangle
	for _, z := range []float32{0, 3, 6} {
		tris = append(tris, floorGrid(4, z)...)
	}
	tree := Build(tris, DefaultOptions())

	var hits []float32
	tree.Intersect(geometry.NewSegment(v3(1.3, 2.2, 10), v3(1.3, 2.2, -10)), func(h Hit) bool {
		hits = append(hits, tree.Triangles[h.Index].A.Z)
		return true
	})
	if len(hits) != 3 {
		t.Fatalf("got %d hits, want 3: %v", len(hits), hits)
	}

	count := 0
	tree.Intersect(geometry.NewSegment(v3(1.3, 2.2, 10), v3(1.3, 2.2, -10)), func(Hit) bool {
		count++
		return false
	})
	if count != 1 {
		t.Errorf("stopping visitor saw %d hits, want 1", count)
	}
}

func TestPackUnpack(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	tris := randomTriangles(rng, 200)
	for i := range tris {
		tris[i].Source = geometry.SourceObject
		tris[i].Instance = uint32(i + 1)
	}
	tree := Build(tris, DefaultOptions())

	got, err := Unpack(tree.Pack())
	if err != nil {
		t.Fatalf("Unpack() error = %v", err)
	}
	if !reflect.DeepEqual(got, tree) {
		t.Fatal("unpacked tree differs from the original")
	}

	empty, err := Unpack(Build(nil, DefaultOptions()).Pack())
	if err != nil {
		t.Fatalf("Unpack(empty) error = %v", err)
	}
	if empty.Len() != 0 {
		t.Errorf("empty tree unpacked with %d triangles", empty.Len())
	}
}

func TestUnpack_Corrupt(t *testing.T) {
	tree := Build(floorGrid(4, 0), DefaultOptions())

	tests := []struct {
		name   string
		mutate func(p *Packed)
	}{
		{"short verts", func(p *Packed) { p.Verts = p.Verts[:len(p.Verts)-1] }},
		{"missing material", func(p *Packed) { p.Materials = p.Materials[1:] }},
		{"face out of range", func(p *Packed) { p.Faces[0] = 1000 }},
		{"child out of range", func(p *Packed) { p.Links[0] = 999 }},
		{"leaf past end", func(p *Packed) {
			for i := 0; i < len(p.Links); i += 4 {
				if p.Links[i+3] > 0 {
					p.Links[i+2] = int32(len(p.Faces))
					return
				}
			}
		}},
		{"nodes without triangles", func(p *Packed) {
			p.Verts, p.Materials, p.Sources, p.Instances, p.Faces = nil, nil, nil, nil, nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tree.Pack()
			tt.mutate(p)
			if _, err := Unpack(p); !errors.Is(err, ErrCorruptTree) {
				t.Errorf("Unpack() error = %v, want ErrCorruptTree", err)
			}
		})
	}
}

func TestParseSplitPolicy(t *testing.T) {
	for _, s := range []string{"sah", "SAH", ""} {
		if p, err := ParseSplitPolicy(s); err != nil || p != SplitSAH {
			t.Errorf("ParseSplitPolicy(%q) = %v, %v", s, p, err)
		}
	}
	if p, err := ParseSplitPolicy("median"); err != nil || p != SplitMedian {
		t.Errorf("ParseSplitPolicy(median) = %v, %v", p, err)
	}
	if _, err := ParseSplitPolicy("octree"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
