package navmesh

import (
	"errors"
	"fmt"
	gomath "math"
	"sort"

	"github.com/Faultbox/midgard-nav/pkg/math"
)

// ErrCorruptFragment is returned when a decoded fragment does not fit its
// own grid.
var ErrCorruptFragment = errors.New("corrupt navmesh fragment")

// Directions between neighbouring cells.
const (
	dirWest = iota
	dirNorth
	dirEast
	dirSouth
)

var (
	dirDX = [4]int32{-1, 0, 1, 0}
	dirDY = [4]int32{0, 1, 0, -1}
)

func opposite(d int) int {
	return (d + 2) % 4
}

// HeightLayers holds the surface heights of every cell of a tile in
// compressed-row form: cell (i, j) owns Z[Offsets[k]:Offsets[k+1]] with
// k = j*Cells + i, sorted from highest to lowest. A cell with no entries is
// a hole.
type HeightLayers struct {
	Cells   int32     `msgpack:"cells"`
	Offsets []int32   `msgpack:"offsets"`
	Z       []float32 `msgpack:"z"`
}

// At returns the candidate heights of cell (i, j).
func (h *HeightLayers) At(i, j int32) []float32 {
	if i < 0 || j < 0 || i >= h.Cells || j >= h.Cells || len(h.Offsets) == 0 {
		return nil
	}
	k := j*h.Cells + i
	return h.Z[h.Offsets[k]:h.Offsets[k+1]]
}

// Link connects a polygon to a neighbour through the portal segment A-B.
// A and B are ordered along the shared edge, so both directions of a link
// carry the same portal.
type Link struct {
	To PolyRef   `msgpack:"to"`
	A  math.Vec3 `msgpack:"a"`
	B  math.Vec3 `msgpack:"b"`
}

// Midpoint returns the centre of the portal.
func (l *Link) Midpoint() math.Vec3 {
	return l.A.Lerp(l.B, 0.5)
}

// Poly is an axis-aligned rectangle of walkable cells. Z holds the surface
// height of each covered cell, row-major.
type Poly struct {
	X0    int32     `msgpack:"x0"`
	Y0    int32     `msgpack:"y0"`
	W     int32     `msgpack:"w"`
	H     int32     `msgpack:"h"`
	Z     []float32 `msgpack:"z"`
	Links []Link    `msgpack:"links"`
}

// Covers reports whether cell (i, j) lies inside the rectangle.
func (p *Poly) Covers(i, j int32) bool {
	return i >= p.X0 && j >= p.Y0 && i < p.X0+p.W && j < p.Y0+p.H
}

// CellZ returns the surface height at cell (i, j), which must be covered.
func (p *Poly) CellZ(i, j int32) float32 {
	return p.Z[(j-p.Y0)*p.W+(i-p.X0)]
}

// BorderSpan is a walkable span on a tile edge. Stitching pairs it with a
// span on the neighbouring tile's facing edge.
type BorderSpan struct {
	Side uint8   `msgpack:"side"`
	Run  int32   `msgpack:"run"` // cell index along the edge
	Z    float32 `msgpack:"z"`
	Poly int32   `msgpack:"poly"`
}

// Fragment is one tile's share of the map navmesh together with its
// height layers and zone records.
type Fragment struct {
	Coord       TileCoord    `msgpack:"coord"`
	Cells       int32        `msgpack:"cells"`
	CellSize    float32      `msgpack:"cell_size"`
	Origin      math.Vec2    `msgpack:"origin"`
	Polys       []Poly       `msgpack:"polys"`
	Heights     HeightLayers `msgpack:"heights"`
	Zones       []ZoneRecord `msgpack:"zones"`
	DefaultZone uint32       `msgpack:"default_zone"`
	DefaultArea uint32       `msgpack:"default_area"`
	Border      []BorderSpan `msgpack:"border"`

	// cell -> polygons covering it, built by Prepare
	cellStart []int32
	cellPolys []int32
}

// Validate checks that every polygon, height layer and border span lies
// inside the fragment's cell grid. Decoded fragments must pass it before
// Prepare.
func (f *Fragment) Validate() error {
	if f.Cells < 1 || !(f.CellSize > 0) || !math.IsFinite(f.CellSize) {
		return fmt.Errorf("%w: %d cells of size %v", ErrCorruptFragment, f.Cells, f.CellSize)
	}
	for pi := range f.Polys {
		p := &f.Polys[pi]
		if p.X0 < 0 || p.Y0 < 0 || p.W < 1 || p.H < 1 || p.X0+p.W > f.Cells || p.Y0+p.H > f.Cells {
			return fmt.Errorf("%w: poly %d rectangle (%d,%d %dx%d) outside %d cells",
				ErrCorruptFragment, pi, p.X0, p.Y0, p.W, p.H, f.Cells)
		}
		if len(p.Z) != int(p.W)*int(p.H) {
			return fmt.Errorf("%w: poly %d has %d heights for %dx%d cells", ErrCorruptFragment, pi, len(p.Z), p.W, p.H)
		}
		for _, l := range p.Links {
			if l.To.Tile() == f.Coord && (l.To.Index() < 0 || int(l.To.Index()) >= len(f.Polys)) {
				return fmt.Errorf("%w: poly %d links to missing poly %d", ErrCorruptFragment, pi, l.To.Index())
			}
		}
	}
	if err := f.Heights.validate(f.Cells); err != nil {
		return err
	}
	for _, b := range f.Border {
		if b.Side > dirSouth || b.Run < 0 || b.Run >= f.Cells || b.Poly < 0 || int(b.Poly) >= len(f.Polys) {
			return fmt.Errorf("%w: border span side %d run %d poly %d", ErrCorruptFragment, b.Side, b.Run, b.Poly)
		}
	}
	return nil
}

func (h *HeightLayers) validate(cells int32) error {
	if len(h.Offsets) == 0 {
		if len(h.Z) != 0 {
			return fmt.Errorf("%w: %d heights without offsets", ErrCorruptFragment, len(h.Z))
		}
		return nil
	}
	if h.Cells != cells || len(h.Offsets) != int(cells)*int(cells)+1 {
		return fmt.Errorf("%w: height layers for %d cells with %d offsets, want %d cells",
			ErrCorruptFragment, h.Cells, len(h.Offsets), cells)
	}
	if h.Offsets[0] != 0 || int(h.Offsets[len(h.Offsets)-1]) != len(h.Z) {
		return fmt.Errorf("%w: height offsets do not span %d heights", ErrCorruptFragment, len(h.Z))
	}
	for k := 1; k < len(h.Offsets); k++ {
		if h.Offsets[k] < h.Offsets[k-1] {
			return fmt.Errorf("%w: height offset %d decreases", ErrCorruptFragment, k)
		}
	}
	return nil
}

// Prepare builds the cell lookup index. It must be called once after the
// fragment is compiled or decoded and before it is shared.
func (f *Fragment) Prepare() {
	n := int(f.Cells) * int(f.Cells)
	counts := make([]int32, n+1)
	for pi := range f.Polys {
		p := &f.Polys[pi]
		for j := p.Y0; j < p.Y0+p.H; j++ {
			for i := p.X0; i < p.X0+p.W; i++ {
				counts[j*f.Cells+i+1]++
			}
		}
	}
	for k := 1; k <= n; k++ {
		counts[k] += counts[k-1]
	}
	polys := make([]int32, counts[n])
	fill := append([]int32(nil), counts[:n]...)
	for pi := range f.Polys {
		p := &f.Polys[pi]
		for j := p.Y0; j < p.Y0+p.H; j++ {
			for i := p.X0; i < p.X0+p.W; i++ {
				k := j*f.Cells + i
				polys[fill[k]] = int32(pi)
				fill[k]++
			}
		}
	}
	f.cellStart = counts
	f.cellPolys = polys
}

// Ref returns the map-wide reference of polygon index.
func (f *Fragment) Ref(index int32) PolyRef {
	return MakeRef(f.Coord, index)
}

// Poly returns the polygon behind ref, or nil if ref belongs to another
// tile or is out of range.
func (f *Fragment) Poly(ref PolyRef) *Poly {
	if ref.Tile() != f.Coord {
		return nil
	}
	idx := ref.Index()
	if idx < 0 || int(idx) >= len(f.Polys) {
		return nil
	}
	return &f.Polys[idx]
}

// CellOf returns the cell containing world position (x, y).
func (f *Fragment) CellOf(x, y float32) (i, j int32, ok bool) {
	fi := gomath.Floor(float64((x - f.Origin.X) / f.CellSize))
	fj := gomath.Floor(float64((y - f.Origin.Y) / f.CellSize))
	n := float64(f.Cells)
	// Points on the far tile edge round into the last cell.
	if fi == n {
		fi--
	}
	if fj == n {
		fj--
	}
	if fi < 0 || fj < 0 || fi >= n || fj >= n {
		return 0, 0, false
	}
	return int32(fi), int32(fj), true
}

// CellCenter returns the world XY centre of cell (i, j).
func (f *Fragment) CellCenter(i, j int32) math.Vec2 {
	return math.Vec2{
		X: f.Origin.X + (float32(i)+0.5)*f.CellSize,
		Y: f.Origin.Y + (float32(j)+0.5)*f.CellSize,
	}
}

// PolysAt returns the indices of polygons covering cell (i, j).
func (f *Fragment) PolysAt(i, j int32) []int32 {
	if f.cellStart == nil || i < 0 || j < 0 || i >= f.Cells || j >= f.Cells {
		return nil
	}
	k := j*f.Cells + i
	return f.cellPolys[f.cellStart[k]:f.cellStart[k+1]]
}

// Center returns the world centre of polygon p at its mean height.
func (f *Fragment) Center(p *Poly) math.Vec3 {
	var sum float32
	for _, z := range p.Z {
		sum += z
	}
	return math.Vec3{
		X: f.Origin.X + (float32(p.X0)+float32(p.W)/2)*f.CellSize,
		Y: f.Origin.Y + (float32(p.Y0)+float32(p.H)/2)*f.CellSize,
		Z: sum / float32(len(p.Z)),
	}
}

// PolyBounds returns the world XY rectangle of polygon p.
func (f *Fragment) PolyBounds(p *Poly) (lo, hi math.Vec2) {
	lo = math.Vec2{X: f.Origin.X + float32(p.X0)*f.CellSize, Y: f.Origin.Y + float32(p.Y0)*f.CellSize}
	hi = math.Vec2{X: lo.X + float32(p.W)*f.CellSize, Y: lo.Y + float32(p.H)*f.CellSize}
	return lo, hi
}

// ClosestPoint returns the point of polygon p nearest to pos in XY, with
// the surface height of the cell it falls in.
func (f *Fragment) ClosestPoint(p *Poly, pos math.Vec3) math.Vec3 {
	lo, hi := f.PolyBounds(p)
	x := min(max(pos.X, lo.X), hi.X)
	y := min(max(pos.Y, lo.Y), hi.Y)

	i := min(max(int32((x-f.Origin.X)/f.CellSize), p.X0), p.X0+p.W-1)
	j := min(max(int32((y-f.Origin.Y)/f.CellSize), p.Y0), p.Y0+p.H-1)
	return math.Vec3{X: x, Y: y, Z: p.CellZ(i, j)}
}

// PolyCount returns the number of polygons.
func (f *Fragment) PolyCount() int {
	return len(f.Polys)
}

// LinkCount returns the total number of links, counting each direction.
func (f *Fragment) LinkCount() int {
	n := 0
	for i := range f.Polys {
		n += len(f.Polys[i].Links)
	}
	return n
}

func sortLinks(p *Poly) {
	sort.SliceStable(p.Links, func(a, b int) bool {
		la, lb := &p.Links[a], &p.Links[b]
		if la.To != lb.To {
			return la.To < lb.To
		}
		if la.A.X != lb.A.X {
			return la.A.X < lb.A.X
		}
		if la.A.Y != lb.A.Y {
			return la.A.Y < lb.A.Y
		}
		return la.A.Z < lb.A.Z
	})
}
