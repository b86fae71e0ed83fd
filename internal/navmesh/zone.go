package navmesh

import (
	gomath "math"
	"sort"

	"github.com/Faultbox/midgard-nav/internal/geometry"
	"github.com/Faultbox/midgard-nav/pkg/math"
)

// ZoneRecord is a region polygon tagged with a zone and area. The region
// covers heights in [MinZ, MaxZ]; unbounded bands use infinities.
type ZoneRecord struct {
	Name     string      `msgpack:"name"`
	Zone     uint32      `msgpack:"zone"`
	Area     uint32      `msgpack:"area"`
	Priority int32       `msgpack:"priority"`
	MinZ     float32     `msgpack:"min_z"`
	MaxZ     float32     `msgpack:"max_z"`
	Polygon  []math.Vec2 `msgpack:"polygon"`
	Order    int32       `msgpack:"order"` // definition order in the map's region file
}

// Unbounded returns the band limits for a region without a height band.
func Unbounded() (lo, hi float32) {
	return float32(gomath.Inf(-1)), float32(gomath.Inf(1))
}

// InBand reports whether z lies within the region's height band.
func (r *ZoneRecord) InBand(z float32) bool {
	return z >= r.MinZ && z <= r.MaxZ
}

// Contains reports whether (x, y, z) falls inside the region.
func (r *ZoneRecord) Contains(x, y, z float32) bool {
	return r.InBand(z) && geometry.PointInPolygon(math.Vec2{X: x, Y: y}, r.Polygon)
}

func (r *ZoneRecord) bandWidth() float32 {
	return r.MaxZ - r.MinZ
}

// ResolveArea applies the nesting rule: a region without a finer area
// reports its zone as the area.
func ResolveArea(zone, area uint32) (uint32, uint32) {
	if area == 0 {
		return zone, zone
	}
	return zone, area
}

// Classify returns the best region containing (x, y, z). Among matches the
// highest priority wins, then regions with an explicit area, then the
// narrower height band, then the earlier definition.
func Classify(zones []ZoneRecord, x, y, z float32) (*ZoneRecord, bool) {
	var best *ZoneRecord
	for i := range zones {
		r := &zones[i]
		if !r.Contains(x, y, z) {
			continue
		}
		if best == nil || better(r, best) {
			best = r
		}
	}
	return best, best != nil
}

func better(a, b *ZoneRecord) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if (a.Area != 0) != (b.Area != 0) {
		return a.Area != 0
	}
	if wa, wb := a.bandWidth(), b.bandWidth(); wa != wb {
		return wa < wb
	}
	return a.Order < b.Order
}

// ZoneAndArea classifies (x, y) at reference height z against the tile's
// regions, falling back to the tile default.
func (f *Fragment) ZoneAndArea(x, y, z float32) (zone, area uint32) {
	if r, ok := Classify(f.Zones, x, y, z); ok {
		return ResolveArea(r.Zone, r.Area)
	}
	return ResolveArea(f.DefaultZone, f.DefaultArea)
}

// clipZones keeps the regions that contain at least one walkable span of
// the tile within their height band.
func clipZones(f *Fragment, spans []span, regions []ZoneRecord) []ZoneRecord {
	if len(regions) == 0 {
		return nil
	}
	tileLo := f.Origin
	tileHi := math.Vec2{X: f.Origin.X + float32(f.Cells)*f.CellSize, Y: f.Origin.Y + float32(f.Cells)*f.CellSize}

	var kept []ZoneRecord
	for ri := range regions {
		r := &regions[ri]
		lo, hi := geometry.PolygonBounds(r.Polygon)
		if hi.X < tileLo.X || lo.X > tileHi.X || hi.Y < tileLo.Y || lo.Y > tileHi.Y {
			continue
		}
		for si := range spans {
			s := &spans[si]
			if s.removed || s.poly < 0 || !r.InBand(s.z) {
				continue
			}
			c := f.CellCenter(s.i, s.j)
			if c.X < lo.X || c.X > hi.X || c.Y < lo.Y || c.Y > hi.Y {
				continue
			}
			if geometry.PointInPolygon(c, r.Polygon) {
				kept = append(kept, *r)
				break
			}
		}
	}
	sort.SliceStable(kept, func(a, b int) bool { return kept[a].Order < kept[b].Order })
	return kept
}
