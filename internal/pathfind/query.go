package pathfind

import (
	"fmt"
	gomath "math"
	"math/rand/v2"
	"sort"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-nav/internal/artifact"
	"github.com/Faultbox/midgard-nav/internal/geometry"
	"github.com/Faultbox/midgard-nav/internal/navmesh"
	"github.com/Faultbox/midgard-nav/pkg/math"
)

// sightEpsilon excludes hits at the segment endpoints, so a point resting
// on a surface can still see.
const sightEpsilon = 1e-4

// QueryHeights returns the walkable surface heights at (x, y), highest
// first. Only resident tiles are consulted: a position on an unloaded tile
// has no heights.
func (m *Map) QueryHeights(x, y float32) ([]float32, error) {
	c, err := m.grid.TileOf(x, y)
	if err != nil {
		return nil, err
	}
	lt, ok := m.resident(c)
	if !ok {
		return nil, nil
	}
	return m.heights(lt, x, y), nil
}

// heights reads the recorded candidates of the cell under (x, y) and
// refines each against the tile's geometry at the exact position.
func (m *Map) heights(lt *artifact.LoadedTile, x, y float32) []float32 {
	f := lt.Fragment
	i, j, ok := f.CellOf(x, y)
	if !ok {
		return nil
	}
	recorded := f.Heights.At(i, j)
	if len(recorded) == 0 {
		return nil
	}

	refine := m.index.Settings.DetailRefine
	out := make([]float32, 0, len(recorded))
	for _, z := range recorded {
		out = append(out, refineHeight(lt, x, y, z, refine))
	}
	sort.Slice(out, func(a, b int) bool { return out[a] > out[b] })

	eps := m.index.Settings.HeightEpsilon
	kept := out[:1]
	for _, z := range out[1:] {
		if kept[len(kept)-1]-z > eps {
			kept = append(kept, z)
		}
	}
	return kept
}

// refineHeight casts short vertical segments down and up from z and
// returns the upward-facing surface nearest to it, or z when there is none.
func refineHeight(lt *artifact.LoadedTile, x, y, z, refine float32) float32 {
	if refine <= 0 {
		return z
	}
	from := math.Vec3{X: x, Y: y, Z: z}
	best, bestT := z, float32(gomath.Inf(1))
	for _, dz := range [2]float32{-refine, refine} {
		ray := geometry.NewSegment(from, math.Vec3{X: x, Y: y, Z: z + dz})
		if h, ok := lt.Tree.Raycast(ray, upwardSurface); ok && h.T < bestT {
			best, bestT = ray.At(h.T).Z, h.T
		}
	}
	return best
}

func upwardSurface(tri *geometry.Triangle) bool {
	return tri.Material.Surface() && tri.Normal().Z > 0
}

// FindHeight returns the surface height at (x, y) nearest to refZ. ok is
// false when the position has no resident surface.
func (m *Map) FindHeight(x, y, refZ float32) (float32, bool, error) {
	hs, err := m.QueryHeights(x, y)
	if err != nil || len(hs) == 0 {
		return 0, false, err
	}
	best := hs[0]
	for _, z := range hs[1:] {
		if abs32(z-refZ) < abs32(best-refZ) {
			best = z
		}
	}
	return best, true, nil
}

func (m *Map) checkPoint(p math.Vec3) error {
	if !p.IsFinite() {
		return fmt.Errorf("%w: %v", navmesh.ErrInvalidCoordinate, p)
	}
	_, err := m.grid.TileOf(p.X, p.Y)
	return err
}

// FindPath returns a smoothed path from start to goal, both included.
// Tiles are loaded as the search reaches them. An unreachable goal, or an
// endpoint with no polygon within the search extent, yields an empty path.
func (m *Map) FindPath(start, goal math.Vec3) ([]math.Vec3, error) {
	path, _, err := m.findPath(start, goal, false)
	return path, err
}

// FindPartialPath is FindPath for callers that accept getting close. When
// the goal's polygon cannot be reached, the path ends at the point nearest
// to the goal on the closest polygon the search visited, and reached is
// false. Endpoints with no polygon within the search extent still yield an
// empty path.
func (m *Map) FindPartialPath(start, goal math.Vec3) (path []math.Vec3, reached bool, err error) {
	return m.findPath(start, goal, true)
}

func (m *Map) findPath(start, goal math.Vec3, partial bool) ([]math.Vec3, bool, error) {
	if err := m.checkPoint(start); err != nil {
		return nil, false, err
	}
	if err := m.checkPoint(goal); err != nil {
		return nil, false, err
	}

	src := autoLoad{m: m}
	extent := m.opts.searchExtent
	startRef, startPt, err := navmesh.FindNearestPoly(src, m.grid, start, extent)
	if err != nil {
		return nil, false, err
	}
	goalRef, goalPt, err := navmesh.FindNearestPoly(src, m.grid, goal, extent)
	if err != nil {
		return nil, false, err
	}
	if startRef == navmesh.InvalidRef || goalRef == navmesh.InvalidRef {
		return nil, false, nil
	}

	var corridor []navmesh.Step
	reached := true
	if partial {
		corridor, reached, err = navmesh.FindPartialCorridor(src, startRef, startPt, goalRef, goalPt, m.opts.maxSearchNodes)
	} else {
		corridor, err = navmesh.FindCorridor(src, startRef, startPt, goalRef, goalPt, m.opts.maxSearchNodes)
	}
	if err != nil || corridor == nil {
		return nil, false, err
	}

	end := goalPt
	if !reached {
		last := corridor[len(corridor)-1].Ref
		f, err := src.Fragment(last.Tile())
		if err != nil {
			return nil, false, err
		}
		end = f.ClosestPoint(f.Poly(last), goalPt)
		m.log.Debug("partial path",
			zap.Stringer("goal", goalRef),
			zap.Stringer("closest", last),
			zap.Float32("miss", end.Distance(goalPt)))
	}
	path, err := navmesh.StraightPath(src, corridor, startPt, end)
	if err != nil {
		return nil, false, err
	}
	return path, reached, nil
}

// RandomPointAroundCircle returns a random walkable point within radius of
// center, horizontally, that is reachable from the polygon nearest to
// center without leaving the circle. r supplies the randomness; nil uses
// the shared generator. ok is false when center has no polygon within the
// search extent.
func (m *Map) RandomPointAroundCircle(r *rand.Rand, center math.Vec3, radius float32) (math.Vec3, bool, error) {
	if err := m.checkPoint(center); err != nil {
		return math.Vec3{}, false, err
	}
	if !math.IsFinite(radius) || radius < 0 {
		return math.Vec3{}, false, fmt.Errorf("%w: %v", ErrInvalidRadius, radius)
	}

	src := autoLoad{m: m}
	startRef, _, err := navmesh.FindNearestPoly(src, m.grid, center, m.opts.searchExtent)
	if err != nil || startRef == navmesh.InvalidRef {
		return math.Vec3{}, false, err
	}

	rnd := rand.Float32
	if r != nil {
		rnd = r.Float32
	}
	_, p, err := navmesh.RandomPointAroundCircle(src, startRef, center, radius, m.opts.maxSearchNodes, rnd)
	if err != nil {
		return math.Vec3{}, false, err
	}
	return p, true, nil
}

// PointAlongPath returns the point at distance along the path from start
// to goal. ok is false when there is no path.
func (m *Map) PointAlongPath(start, goal math.Vec3, distance float32) (math.Vec3, bool, error) {
	path, err := m.FindPath(start, goal)
	if err != nil {
		return math.Vec3{}, false, err
	}
	p, ok := navmesh.PointAlong(path, distance)
	return p, ok, nil
}

// SightOption adjusts a line of sight test.
type SightOption func(*sightOptions)

type sightOptions struct {
	skipObjects bool
}

// WithoutObjects leaves placed objects out of a line of sight test, so
// only terrain and static meshes occlude.
func WithoutObjects() SightOption {
	return func(o *sightOptions) { o.skipObjects = true }
}

// LineOfSight reports whether the segment from start to end is free of
// occluding geometry. Placed objects occlude unless WithoutObjects is
// given. Every tile the segment crosses is loaded.
func (m *Map) LineOfSight(start, end math.Vec3, opts ...SightOption) (bool, error) {
	if err := m.checkPoint(start); err != nil {
		return false, err
	}
	if err := m.checkPoint(end); err != nil {
		return false, err
	}
	var o sightOptions
	for _, opt := range opts {
		opt(&o)
	}
	occludes := func(tri *geometry.Triangle) bool {
		if o.skipObjects && tri.Source == geometry.SourceObject {
			return false
		}
		return tri.Material.BlocksSight()
	}

	a, b := start.XY(), end.XY()
	lo := math.Vec2{X: min(a.X, b.X), Y: min(a.Y, b.Y)}
	hi := math.Vec2{X: max(a.X, b.X), Y: max(a.Y, b.Y)}
	// Hits at the endpoints do not count.
	ray := geometry.NewSegment(start.Lerp(end, sightEpsilon), start.Lerp(end, 1-sightEpsilon))
	for _, c := range m.grid.TilesInRect(lo, hi) {
		if !m.tiles[c] {
			continue
		}
		tlo, thi := m.grid.TileBounds(c)
		if !geometry.SegmentIntersectsRect(a, b, tlo, thi) {
			continue
		}
		lt, err := m.tile(c)
		if err != nil {
			return false, err
		}
		if _, hit := lt.Tree.Raycast(ray, occludes); hit {
			return false, nil
		}
	}
	return true, nil
}

// ZoneAndArea classifies (x, y, z). The tile must be resident. The
// reference height is the highest surface not above z plus the walkable
// climb, or z itself when there is none.
func (m *Map) ZoneAndArea(x, y, z float32) (zone, area uint32, err error) {
	if !math.IsFinite(z) {
		return 0, 0, fmt.Errorf("%w: z %v", navmesh.ErrInvalidCoordinate, z)
	}
	c, err := m.grid.TileOf(x, y)
	if err != nil {
		return 0, 0, err
	}
	lt, ok := m.resident(c)
	if !ok {
		return 0, 0, ErrTileNotLoaded
	}

	ref := z
	limit := z + m.index.Settings.WalkableClimb
	for _, h := range m.heights(lt, x, y) {
		if h <= limit {
			ref = h
			break
		}
	}

	zone, area = lt.Fragment.ZoneAndArea(x, y, ref)
	if zone == 0 {
		zone, area = navmesh.ResolveArea(m.index.DefaultZone, m.index.DefaultArea)
	}
	return zone, area, nil
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
