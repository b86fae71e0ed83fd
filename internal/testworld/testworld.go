// Package testworld writes a small synthetic source tree used by the build
// and query tests.
//
// The map has two tiles side by side, (32,32) covering [0,32)² and (33,32)
// covering [32,64)x[0,32), both with flat terrain at z=0. The first holds a
// terrain hole covered by a slab, a walled room with a doorway in its south
// wall and a placed crate. The second holds a bridge deck and receives a
// second crate from the placement CSV.
package testworld

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/Faultbox/midgard-nav/internal/navmesh"
	"github.com/Faultbox/midgard-nav/pkg/encoding"
	"github.com/Faultbox/midgard-nav/pkg/formats"
	"github.com/Faultbox/midgard-nav/pkg/math"
	"github.com/Faultbox/midgard-nav/pkg/pack"
)

// Map identity.
const (
	MapName  = "testmap"
	MapID    = 1
	TileSize = 32

	CrateModel     = "crate.gmd"
	CrateDisplayID = 100
	PlacementsFile = "objects.csv"
)

// Zones and areas.
const (
	OutdoorZone = 12
	IndoorZone  = 1519
	BridgeArea  = 1617
)

// Tiles of the map.
var (
	Home = navmesh.TileCoord{X: 32, Y: 32}
	East = navmesh.TileCoord{X: 33, Y: 32}
)

// Reference points.
var (
	HoleCenter  = math.Vec2{X: 6, Y: 22}
	SlabTop     = float32(0.25)
	OpenGround  = math.Vec2{X: 2, Y: 22}
	DoorStart   = math.Vec3{X: 8, Y: 6, Z: 0}
	DoorGoal    = math.Vec3{X: 15, Y: 22, Z: 0}
	RoomPoint   = math.Vec3{X: 18, Y: 20, Z: 0}
	BridgePoint = math.Vec2{X: 48, Y: 12}
	DeckTop     = float32(3.5)
	CratePos    = math.Vec3{X: 26, Y: 6, Z: 0}
	CSVCratePos = math.Vec3{X: 60, Y: 28, Z: 0}
	BorderStart = math.Vec3{X: 20, Y: 3, Z: 0}
	BorderGoal  = math.Vec3{X: 44, Y: 3, Z: 0}
)

// Grid returns the map's tile grid.
func Grid() navmesh.Grid {
	return navmesh.Grid{TileSize: TileSize, TilesPerSide: navmesh.DefaultTilesPerSide}
}

// Settings returns compile settings with half-unit cells.
func Settings() navmesh.Settings {
	s := navmesh.DefaultSettings()
	s.CellsPerTile = 64
	return s
}

// Options controls how the tree is laid out.
type Options struct {
	// Pack stores the models in models.pak instead of loose files.
	Pack bool
}

// Write creates the source tree under root.
func Write(root string, opts Options) error {
	codec, err := encoding.Lookup(encoding.UTF8)
	if err != nil {
		return err
	}

	desc, err := formats.EncodeMapDescriptor(&formats.MapDescriptor{
		Name:        MapName,
		ID:          MapID,
		TileSize:    TileSize,
		DefaultZone: OutdoorZone,
	})
	if err != nil {
		return err
	}
	files := map[string][]byte{
		"maps/" + MapName + "/map.yaml":    desc,
		"maps/" + MapName + "/areas.hjson": []byte(regions),
		"maps/" + MapName + "/32_32.gtl":   formats.EncodeTile(homeTile(), codec),
		"maps/" + MapName + "/33_32.gtl":   formats.EncodeTile(eastTile(), codec),
	}

	models := map[string][]byte{
		"models/" + CrateModel: formats.EncodeModel(crate()),
	}
	display, err := displayTable()
	if err != nil {
		return err
	}
	models["models/display.csv"] = display

	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	if opts.Pack {
		w := pack.NewWriter(filepath.Join(root, "models.pak"))
		for name, data := range models {
			w.Add(name, data)
		}
		if err := w.Close(); err != nil {
			return err
		}
	} else {
		for name, data := range models {
			files[name] = data
		}
	}

	for name, data := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(p, data, 0644); err != nil {
			return err
		}
	}
	return nil
}

const regions = `{
  regions: [
    {
      name: hall
      zone: 1519
      priority: 1
      polygon: [[12, 14], [24, 14], [24, 26], [12, 26]]
    }
    {
      name: bridge
      zone: 1519
      area: 1617
      priority: 1
      min_z: 2
      polygon: [[39, 9], [57, 9], [57, 15], [39, 15]]
    }
  ]
}
`

func flatTerrain(quads int) formats.Heightfield {
	return formats.Heightfield{
		Quads:   uint16(quads),
		Heights: make([]float32, (quads+1)*(quads+1)),
	}
}

func homeTile() *formats.Tile {
	t := &formats.Tile{X: Home.X, Y: Home.Y, Terrain: flatTerrain(8)}
	// Quad (1,5) spans x [4,8], y [20,24].
	t.Terrain.SetHole(1, 5)

	boxes := []struct{ lo, hi math.Vec3 }{
		{math.Vec3{X: 3, Y: 19, Z: -0.5}, math.Vec3{X: 9, Y: 25, Z: SlabTop}},
		// Room walls; the doorway is x [20,22] in the south wall.
		{math.Vec3{X: 12, Y: 14, Z: -0.5}, math.Vec3{X: 20, Y: 15, Z: 3}},
		{math.Vec3{X: 22, Y: 14, Z: -0.5}, math.Vec3{X: 24, Y: 15, Z: 3}},
		{math.Vec3{X: 12, Y: 25, Z: -0.5}, math.Vec3{X: 24, Y: 26, Z: 3}},
		{math.Vec3{X: 12, Y: 14, Z: -0.5}, math.Vec3{X: 13, Y: 26, Z: 3}},
		{math.Vec3{X: 23, Y: 14, Z: -0.5}, math.Vec3{X: 24, Y: 26, Z: 3}},
	}
	for _, b := range boxes {
		t.Static = append(t.Static, staticBox(b.lo, b.hi)...)
	}

	t.Placements = []formats.Placement{{
		ID:       7,
		Model:    CrateModel,
		Position: CratePos.Array(),
		Rotation: [4]float32{0, 0, 0, 1},
		Scale:    1,
	}}
	return t
}

func eastTile() *formats.Tile {
	t := &formats.Tile{X: East.X, Y: East.Y, Terrain: flatTerrain(8)}
	t.Static = staticBox(
		math.Vec3{X: 40, Y: 10, Z: 3},
		math.Vec3{X: 56, Y: 14, Z: DeckTop},
	)
	return t
}

// BoxTriangles returns the 12 outward-facing triangles of an axis-aligned
// box.
func BoxTriangles(lo, hi math.Vec3) [][3]math.Vec3 {
	v := func(x, y, z int) math.Vec3 {
		p := lo
		if x == 1 {
			p.X = hi.X
		}
		if y == 1 {
			p.Y = hi.Y
		}
		if z == 1 {
			p.Z = hi.Z
		}
		return p
	}
	return [][3]math.Vec3{
		// -Z
		{v(0, 0, 0), v(0, 1, 0), v(1, 1, 0)},
		{v(0, 0, 0), v(1, 1, 0), v(1, 0, 0)},
		// +Z
		{v(0, 0, 1), v(1, 0, 1), v(1, 1, 1)},
		{v(0, 0, 1), v(1, 1, 1), v(0, 1, 1)},
		// -Y
		{v(0, 0, 0), v(1, 0, 0), v(1, 0, 1)},
		{v(0, 0, 0), v(1, 0, 1), v(0, 0, 1)},
		// +Y
		{v(0, 1, 0), v(1, 1, 1), v(1, 1, 0)},
		{v(0, 1, 0), v(0, 1, 1), v(1, 1, 1)},
		// -X
		{v(0, 0, 0), v(0, 1, 1), v(0, 1, 0)},
		{v(0, 0, 0), v(0, 0, 1), v(0, 1, 1)},
		// +X
		{v(1, 0, 0), v(1, 1, 0), v(1, 1, 1)},
		{v(1, 0, 0), v(1, 1, 1), v(1, 0, 1)},
	}
}

func staticBox(lo, hi math.Vec3) []formats.StaticTriangle {
	tris := BoxTriangles(lo, hi)
	out := make([]formats.StaticTriangle, len(tris))
	for i, tri := range tris {
		var v [9]float32
		for k, p := range tri {
			v[3*k], v[3*k+1], v[3*k+2] = p.X, p.Y, p.Z
		}
		out[i] = formats.StaticTriangle{Vertices: v}
	}
	return out
}

// crate is a 2x2x2 box standing on its origin.
func crate() *formats.Model {
	m := &formats.Model{}
	for _, tri := range BoxTriangles(math.Vec3{X: -1, Y: -1, Z: 0}, math.Vec3{X: 1, Y: 1, Z: 2}) {
		base := uint32(len(m.Vertices))
		for _, p := range tri {
			m.Vertices = append(m.Vertices, p.Array())
		}
		m.Indices = append(m.Indices, [3]uint32{base, base + 1, base + 2})
		m.Materials = append(m.Materials, 0)
	}
	return m
}

func displayTable() ([]byte, error) {
	var buf bytes.Buffer
	err := formats.EncodeDisplayTable(&buf, []formats.DisplayRecord{{ID: CrateDisplayID, Model: CrateModel}})
	return buf.Bytes(), err
}

// Placements returns the placement CSV rows: one crate on this map and one
// on another map that must be ignored.
func Placements() []formats.PlacementRecord {
	return []formats.PlacementRecord{
		{GUID: 500, DisplayID: CrateDisplayID, MapID: MapID, X: CSVCratePos.X, Y: CSVCratePos.Y, Z: CSVCratePos.Z, QW: 1},
		{GUID: 501, DisplayID: CrateDisplayID, MapID: MapID + 1, X: 50, Y: 20, QW: 1},
	}
}

// WritePlacements writes the placement CSV to path.
func WritePlacements(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := formats.EncodePlacements(f, Placements()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
