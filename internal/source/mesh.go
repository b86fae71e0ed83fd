package source

import (
	"fmt"
	"sort"

	"github.com/Faultbox/midgard-nav/internal/geometry"
	"github.com/Faultbox/midgard-nav/internal/navmesh"
	"github.com/Faultbox/midgard-nav/pkg/formats"
	"github.com/Faultbox/midgard-nav/pkg/math"
)

// TerrainTriangles triangulates a tile heightfield. Every quad that is not a
// hole yields two triangles split along its (i,j)-(i+1,j+1) diagonal, in
// row-major quad order.
func TerrainTriangles(t *formats.Tile, grid navmesh.Grid) []geometry.Triangle {
	h := &t.Terrain
	q := int(h.Quads)
	if q == 0 {
		return nil
	}
	origin := grid.TileMin(navmesh.TileCoord{X: t.X, Y: t.Y})
	step := grid.TileSize / float32(q)
	material := geometry.Material(h.Material)

	vertex := func(i, j int) math.Vec3 {
		return math.Vec3{
			X: origin.X + float32(i)*step,
			Y: origin.Y + float32(j)*step,
			Z: h.Height(i, j),
		}
	}

	tris := make([]geometry.Triangle, 0, 2*q*q)
	for j := 0; j < q; j++ {
		for i := 0; i < q; i++ {
			if h.IsHole(i, j) {
				continue
			}
			v00, v10 := vertex(i, j), vertex(i+1, j)
			v01, v11 := vertex(i, j+1), vertex(i+1, j+1)
			tris = append(tris,
				geometry.Triangle{A: v00, B: v10, C: v11, Material: material, Source: geometry.SourceTerrain},
				geometry.Triangle{A: v00, B: v11, C: v01, Material: material, Source: geometry.SourceTerrain},
			)
		}
	}
	return tris
}

// StaticTriangles returns the tile's static mesh triangles in file order.
func StaticTriangles(t *formats.Tile) []geometry.Triangle {
	tris := make([]geometry.Triangle, len(t.Static))
	for i, st := range t.Static {
		v := st.Vertices
		tris[i] = geometry.Triangle{
			A:        math.Vec3{X: v[0], Y: v[1], Z: v[2]},
			B:        math.Vec3{X: v[3], Y: v[4], Z: v[5]},
			C:        math.Vec3{X: v[6], Y: v[7], Z: v[8]},
			Material: geometry.Material(st.Material),
			Source:   geometry.SourceStaticMesh,
		}
	}
	return tris
}

// ModelTriangles returns a model's triangles in model space.
func ModelTriangles(m *formats.Model) ([]geometry.Triangle, error) {
	tris := make([]geometry.Triangle, len(m.Indices))
	n := uint32(len(m.Vertices))
	for i, idx := range m.Indices {
		if idx[0] >= n || idx[1] >= n || idx[2] >= n {
			return nil, fmt.Errorf("%w: triangle %d", formats.ErrInvalidModelIndex, i)
		}
		var material uint16
		if i < len(m.Materials) {
			material = m.Materials[i]
		}
		tris[i] = geometry.Triangle{
			A:        math.FromArray(m.Vertices[idx[0]]),
			B:        math.FromArray(m.Vertices[idx[1]]),
			C:        math.FromArray(m.Vertices[idx[2]]),
			Material: geometry.Material(material),
			Source:   geometry.SourceObject,
		}
	}
	return tris, nil
}

// Instance is a placed model.
type Instance struct {
	ID        uint32
	Model     string
	Transform math.Mat4
}

// PlacementInstance converts a placement stored in a tile file.
func PlacementInstance(p formats.Placement) Instance {
	scale := p.Scale
	if scale == 0 {
		scale = 1
	}
	rot := math.Quat{X: p.Rotation[0], Y: p.Rotation[1], Z: p.Rotation[2], W: p.Rotation[3]}
	return Instance{
		ID:        p.ID,
		Model:     p.Model,
		Transform: math.Compose(math.FromArray(p.Position), rot.Normalize(), scale),
	}
}

// RecordInstance converts a dynamic placement row whose display id resolved
// to model.
func RecordInstance(r formats.PlacementRecord, model string) Instance {
	rot := math.Quat{X: r.QX, Y: r.QY, Z: r.QZ, W: r.QW}
	return Instance{
		ID:        uint32(r.GUID),
		Model:     model,
		Transform: math.Compose(math.Vec3{X: r.X, Y: r.Y, Z: r.Z}, rot.Normalize(), 1),
	}
}

// ModelProvider returns model-space triangles by model name.
type ModelProvider interface {
	ModelTriangles(name string) ([]geometry.Triangle, error)
}

// ModelTriangles implements ModelProvider by reading the model from the
// source tree.
func (s *Source) ModelTriangles(name string) ([]geometry.Triangle, error) {
	m, err := s.Model(name)
	if err != nil {
		return nil, err
	}
	return ModelTriangles(m)
}

// InstanceTriangles transforms model-space triangles into world space and
// tags them with the instance id.
func InstanceTriangles(inst Instance, local []geometry.Triangle) []geometry.Triangle {
	out := make([]geometry.Triangle, len(local))
	for i, tri := range local {
		w := tri.Transform(inst.Transform)
		w.Source = geometry.SourceObject
		w.Instance = inst.ID
		out[i] = w
	}
	return out
}

// Assemble merges a tile's geometry in build order: terrain, static
// triangles, then every placed object (tile placements plus extra) by
// ascending instance id. A model that cannot be resolved fails the tile.
func Assemble(t *formats.Tile, grid navmesh.Grid, extra []Instance, models ModelProvider) ([]geometry.Triangle, error) {
	tris := TerrainTriangles(t, grid)
	tris = append(tris, StaticTriangles(t)...)

	instances := make([]Instance, 0, len(t.Placements)+len(extra))
	for _, p := range t.Placements {
		instances = append(instances, PlacementInstance(p))
	}
	instances = append(instances, extra...)
	sort.SliceStable(instances, func(i, j int) bool { return instances[i].ID < instances[j].ID })

	for _, inst := range instances {
		local, err := models.ModelTriangles(inst.Model)
		if err != nil {
			return nil, fmt.Errorf("instance %d: %w", inst.ID, err)
		}
		tris = append(tris, InstanceTriangles(inst, local)...)
	}
	return tris, nil
}

// InstanceBounds returns the world box of an instance given its model-space
// triangles.
func InstanceBounds(inst Instance, local []geometry.Triangle) geometry.AABB {
	box := geometry.EmptyAABB()
	for i := range local {
		box = box.Union(local[i].Bounds())
	}
	return box.Transform(inst.Transform)
}
