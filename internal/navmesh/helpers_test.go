package navmesh

import (
	"testing"

	"github.com/Faultbox/midgard-nav/internal/bvh"
	"github.com/Faultbox/midgard-nav/internal/geometry"
	"github.com/Faultbox/midgard-nav/pkg/math"
)

// testGrid is a 4x4 grid of 16-unit tiles; tile (2,2) covers [0,16)^2.
var testGrid = Grid{TileSize: 16, TilesPerSide: 4}

var home = TileCoord{X: 2, Y: 2}

func testSettings() Settings {
	s := DefaultSettings()
	s.CellsPerTile = 32 // 0.5 unit cells
	return s
}

func v3(x, y, z float32) math.Vec3 {
	return math.Vec3{X: x, Y: y, Z: z}
}

func quad(a, b, c, d math.Vec3, mat geometry.Material) []geometry.Triangle {
	return []geometry.Triangle{
		{A: a, B: b, C: c, Material: mat},
		{A: a, B: c, C: d, Material: mat},
	}
}

// floor returns an up-facing rectangle at height z.
func floor(x0, y0, x1, y1, z float32) []geometry.Triangle {
	return quad(v3(x0, y0, z), v3(x1, y0, z), v3(x1, y1, z), v3(x0, y1, z), 0)
}

// box returns a closed box with outward-facing triangles.
func box(lo, hi math.Vec3, mat geometry.Material) []geometry.Triangle {
	var out []geometry.Triangle
	out = append(out, quad(v3(lo.X, lo.Y, hi.Z), v3(hi.X, lo.Y, hi.Z), v3(hi.X, hi.Y, hi.Z), v3(lo.X, hi.Y, hi.Z), mat)...)
	out = append(out, quad(v3(lo.X, lo.Y, lo.Z), v3(lo.X, hi.Y, lo.Z), v3(hi.X, hi.Y, lo.Z), v3(hi.X, lo.Y, lo.Z), mat)...)
	out = append(out, quad(v3(lo.X, lo.Y, lo.Z), v3(hi.X, lo.Y, lo.Z), v3(hi.X, lo.Y, hi.Z), v3(lo.X, lo.Y, hi.Z), mat)...)
	out = append(out, quad(v3(lo.X, hi.Y, lo.Z), v3(lo.X, hi.Y, hi.Z), v3(hi.X, hi.Y, hi.Z), v3(hi.X, hi.Y, lo.Z), mat)...)
	out = append(out, quad(v3(lo.X, lo.Y, lo.Z), v3(lo.X, lo.Y, hi.Z), v3(lo.X, hi.Y, hi.Z), v3(lo.X, hi.Y, lo.Z), mat)...)
	out = append(out, quad(v3(hi.X, lo.Y, lo.Z), v3(hi.X, hi.Y, lo.Z), v3(hi.X, hi.Y, hi.Z), v3(hi.X, lo.Y, hi.Z), mat)...)
	return out
}

func compileTile(t *testing.T, coord TileCoord, s Settings, regions []ZoneRecord, tris ...[]geometry.Triangle) *Fragment {
	t.Helper()
	var all []geometry.Triangle
	for _, group := range tris {
		all = append(all, group...)
	}
	f, err := Compile(coord, testGrid, bvh.Build(all, bvh.DefaultOptions()), s, regions)
	if err != nil {
		t.Fatalf("Compile(%v) error = %v", coord, err)
	}
	return f
}

// polyZs returns the heights of the polygons covering cell (i, j).
func polyZs(f *Fragment, i, j int32) []float32 {
	var zs []float32
	for _, pi := range f.PolysAt(i, j) {
		zs = append(zs, f.Polys[pi].CellZ(i, j))
	}
	return zs
}

// fragments is a TileSource over a fixed set.
type fragments map[TileCoord]*Fragment

func (m fragments) Fragment(c TileCoord) (*Fragment, error) {
	if f, ok := m[c]; ok {
		return f, nil
	}
	return nil, ErrTileMissing
}

func checkSymmetric(t *testing.T, src fragments) {
	t.Helper()
	for c, f := range src {
		for pi := range f.Polys {
			from := MakeRef(c, int32(pi))
			for _, l := range f.Polys[pi].Links {
				g, ok := src[l.To.Tile()]
				if !ok {
					t.Errorf("link %v -> %v points at a missing tile", from, l.To)
					continue
				}
				back := g.Poly(l.To)
				if back == nil {
					t.Errorf("link %v -> %v does not resolve", from, l.To)
					continue
				}
				found := false
				for _, bl := range back.Links {
					if bl.To == from && bl.A == l.A && bl.B == l.B {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("link %v -> %v has no matching reverse link", from, l.To)
				}
			}
		}
	}
}
