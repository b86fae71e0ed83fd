// Package navmesh compiles tile geometry into walkable polygon fragments and
// searches them. Fragments are built per tile, stitched across tile edges
// after every tile of a map is compiled, and queried with A* plus a funnel
// pass.
package navmesh

import (
	"errors"
	"fmt"
	gomath "math"

	"github.com/Faultbox/midgard-nav/pkg/math"
)

// Coordinate errors.
var (
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrOutOfMap          = errors.New("coordinate outside map")
)

// Grid defaults.
const (
	DefaultTileSize     = 533.33333
	DefaultTilesPerSide = 64
)

// TileCoord is a tile's grid position.
type TileCoord struct {
	X int32 `msgpack:"x" yaml:"x"`
	Y int32 `msgpack:"y" yaml:"y"`
}

func (c TileCoord) String() string {
	return fmt.Sprintf("%d_%d", c.X, c.Y)
}

// Less orders coordinates row-major (Y, then X).
func (c TileCoord) Less(o TileCoord) bool {
	if c.Y != o.Y {
		return c.Y < o.Y
	}
	return c.X < o.X
}

// Key packs the coordinate into a cache key.
func (c TileCoord) Key() uint64 {
	return uint64(uint32(c.X))<<32 | uint64(uint32(c.Y))
}

// Grid partitions the world's XY plane into square tiles. The map is
// centred on the origin.
type Grid struct {
	TileSize     float32 `msgpack:"tile_size"`
	TilesPerSide int32   `msgpack:"tiles_per_side"`
}

// DefaultGrid returns the standard 64x64 grid.
func DefaultGrid() Grid {
	return Grid{TileSize: DefaultTileSize, TilesPerSide: DefaultTilesPerSide}
}

// Origin returns the distance from the world origin to the map's low edge.
func (g Grid) Origin() float32 {
	return float32(g.TilesPerSide/2) * g.TileSize
}

// TileOf returns the tile containing world position (x, y).
func (g Grid) TileOf(x, y float32) (TileCoord, error) {
	if !math.IsFinite(x) || !math.IsFinite(y) {
		return TileCoord{}, fmt.Errorf("%w: (%v, %v)", ErrInvalidCoordinate, x, y)
	}
	o := float64(g.Origin())
	size := float64(g.TileSize)
	tx := gomath.Floor((float64(x) + o) / size)
	ty := gomath.Floor((float64(y) + o) / size)
	if tx < 0 || ty < 0 || tx >= float64(g.TilesPerSide) || ty >= float64(g.TilesPerSide) {
		return TileCoord{}, fmt.Errorf("%w: (%v, %v)", ErrOutOfMap, x, y)
	}
	return TileCoord{X: int32(tx), Y: int32(ty)}, nil
}

// Contains reports whether c is inside the grid.
func (g Grid) Contains(c TileCoord) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < g.TilesPerSide && c.Y < g.TilesPerSide
}

// TileMin returns the world position of the tile's low corner.
func (g Grid) TileMin(c TileCoord) math.Vec2 {
	o := g.Origin()
	return math.Vec2{
		X: float32(c.X)*g.TileSize - o,
		Y: float32(c.Y)*g.TileSize - o,
	}
}

// TileBounds returns the tile's XY extent.
func (g Grid) TileBounds(c TileCoord) (lo, hi math.Vec2) {
	lo = g.TileMin(c)
	return lo, math.Vec2{X: lo.X + g.TileSize, Y: lo.Y + g.TileSize}
}

// TilesInRect lists the tiles overlapping [lo, hi], clipped to the grid, in
// row-major order.
func (g Grid) TilesInRect(lo, hi math.Vec2) []TileCoord {
	o := float64(g.Origin())
	size := float64(g.TileSize)
	clamp := func(v float64) int32 {
		t := gomath.Floor((v + o) / size)
		if t < 0 {
			return 0
		}
		if t >= float64(g.TilesPerSide) {
			return g.TilesPerSide - 1
		}
		return int32(t)
	}
	x0, x1 := clamp(float64(lo.X)), clamp(float64(hi.X))
	y0, y1 := clamp(float64(lo.Y)), clamp(float64(hi.Y))

	var out []TileCoord
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			out = append(out, TileCoord{X: x, Y: y})
		}
	}
	return out
}

// PolyRef identifies a polygon map-wide: tile X in bits 48-63, tile Y in
// bits 32-47, polygon index in the low 32 bits.
type PolyRef uint64

// InvalidRef never refers to a polygon.
const InvalidRef = PolyRef(gomath.MaxUint64)

// MakeRef builds a reference to polygon index in tile c.
func MakeRef(c TileCoord, index int32) PolyRef {
	return PolyRef(uint64(uint16(c.X))<<48 | uint64(uint16(c.Y))<<32 | uint64(uint32(index)))
}

// Tile returns the tile part of the reference.
func (r PolyRef) Tile() TileCoord {
	return TileCoord{X: int32(int16(r >> 48)), Y: int32(int16(r >> 32))}
}

// Index returns the polygon index within the tile.
func (r PolyRef) Index() int32 {
	return int32(uint32(r))
}

func (r PolyRef) String() string {
	return fmt.Sprintf("%s#%d", r.Tile(), r.Index())
}
