package navmesh

import (
	"fmt"
	"sort"

	"github.com/Faultbox/midgard-nav/internal/bvh"
	"github.com/Faultbox/midgard-nav/internal/geometry"
	"github.com/Faultbox/midgard-nav/pkg/math"
)

// crossing is a merged group of surface hits in one cell column.
type crossing struct {
	z        float32
	up       bool
	down     bool
	walkable bool
}

// span is a walkable surface in one cell.
type span struct {
	z       float32
	i, j    int32
	con     [4]int32
	dist    int32
	poly    int32
	removed bool
}

type compiler struct {
	frag     *Fragment
	tree     *bvh.Tree
	settings Settings
	normals  []math.Vec3

	spanStart []int32
	spans     []span
}

// Compile samples tree on the tile's cell grid and produces the tile's
// fragment: height layers, walkable polygons with in-tile links, border
// spans awaiting Stitch, and the regions touching the walkable footprint.
func Compile(coord TileCoord, grid Grid, tree *bvh.Tree, settings Settings, regions []ZoneRecord) (*Fragment, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if !grid.Contains(coord) {
		return nil, fmt.Errorf("%w: tile %s", ErrOutOfMap, coord)
	}

	c := &compiler{
		frag: &Fragment{
			Coord:    coord,
			Cells:    settings.CellsPerTile,
			CellSize: settings.CellSize(grid.TileSize),
			Origin:   grid.TileMin(coord),
		},
		tree:     tree,
		settings: settings,
	}
	c.normals = make([]math.Vec3, len(tree.Triangles))
	for i := range tree.Triangles {
		c.normals[i] = tree.Triangles[i].Normal()
	}

	c.sample()
	c.connect()
	c.erode()
	c.buildPolys()
	c.buildLinks()
	c.collectBorder()
	c.frag.Zones = clipZones(c.frag, c.spans, regions)
	c.frag.Prepare()

	return c.frag, nil
}

// sample casts a vertical segment through every cell centre, recording
// height candidates and walkable spans.
func (c *compiler) sample() {
	f := c.frag
	n := f.Cells
	f.Heights = HeightLayers{Cells: n, Offsets: make([]int32, n*n+1)}
	c.spanStart = make([]int32, n*n+1)

	if c.tree.Len() == 0 {
		return
	}

	bounds := c.tree.Bounds()
	top := bounds.Max.Z + 1
	bottom := bounds.Min.Z - 1
	minNZ := c.settings.minNormalZ()
	eps := c.settings.HeightEpsilon

	type hit struct {
		z        float32
		nz       float32
		material geometry.Material
	}
	var hits []hit
	var groups []crossing

	for j := int32(0); j < n; j++ {
		for i := int32(0); i < n; i++ {
			center := f.CellCenter(i, j)
			k := j*n + i

			hits = hits[:0]
			if center.X >= bounds.Min.X && center.X <= bounds.Max.X &&
				center.Y >= bounds.Min.Y && center.Y <= bounds.Max.Y {
				seg := geometry.NewSegment(
					math.Vec3{X: center.X, Y: center.Y, Z: top},
					math.Vec3{X: center.X, Y: center.Y, Z: bottom},
				)
				c.tree.Intersect(seg, func(h bvh.Hit) bool {
					tri := &c.tree.Triangles[h.Index]
					if !tri.Material.Surface() {
						return true
					}
					z, ok := tri.HeightAt(center.X, center.Y)
					if !ok {
						return true
					}
					hits = append(hits, hit{
						z:        z,
						nz:       c.normals[h.Index].Z,
						material: tri.Material,
					})
					return true
				})
			}

			sort.Slice(hits, func(a, b int) bool {
				if hits[a].z != hits[b].z {
					return hits[a].z > hits[b].z
				}
				return hits[a].nz > hits[b].nz
			})

			groups = groups[:0]
			for _, h := range hits {
				up := h.nz > 0
				walk := up && h.nz >= minNZ && !h.material.Has(geometry.MaterialNoWalk)
				if len(groups) > 0 && groups[len(groups)-1].z-h.z <= eps {
					g := &groups[len(groups)-1]
					g.up = g.up || up
					g.down = g.down || h.nz < 0
					g.walkable = g.walkable || walk
					continue
				}
				groups = append(groups, crossing{z: h.z, up: up, down: h.nz < 0, walkable: walk})
			}

			for gi := range groups {
				g := &groups[gi]
				if !g.up {
					continue
				}
				f.Heights.Z = append(f.Heights.Z, g.z)

				if !g.walkable {
					continue
				}
				if gi > 0 {
					above := &groups[gi-1]
					if !above.down || above.z-g.z < c.settings.AgentHeight {
						continue
					}
				}
				c.spans = append(c.spans, span{z: g.z, i: i, j: j, con: [4]int32{-1, -1, -1, -1}, poly: -1})
			}
			f.Heights.Offsets[k+1] = int32(len(f.Heights.Z))
			c.spanStart[k+1] = int32(len(c.spans))
		}
	}
}

func (c *compiler) cellSpans(i, j int32) (lo, hi int32) {
	k := j*c.frag.Cells + i
	return c.spanStart[k], c.spanStart[k+1]
}

// connect links each span to the closest span within climb reach in each
// of the four neighbouring cells, keeping only mutual choices.
func (c *compiler) connect() {
	n := c.frag.Cells
	climb := c.settings.WalkableClimb

	for si := range c.spans {
		s := &c.spans[si]
		for d := 0; d < 4; d++ {
			ni, nj := s.i+dirDX[d], s.j+dirDY[d]
			if ni < 0 || nj < 0 || ni >= n || nj >= n {
				continue
			}
			lo, hi := c.cellSpans(ni, nj)
			best, bestDZ := int32(-1), climb
			for t := lo; t < hi; t++ {
				dz := abs32(c.spans[t].z - s.z)
				if dz <= bestDZ && (best < 0 || dz < bestDZ) {
					best, bestDZ = t, dz
				}
			}
			s.con[d] = best
		}
	}

	for si := range c.spans {
		s := &c.spans[si]
		for d := 0; d < 4; d++ {
			if t := s.con[d]; t >= 0 && c.spans[t].con[opposite(d)] != int32(si) {
				s.con[d] = -1
			}
		}
	}
}

// erode removes spans closer than the agent radius to a walkable boundary.
// Tile edges are not boundaries.
func (c *compiler) erode() {
	k := c.settings.erosionCells(c.frag.CellSize)
	if k == 0 || len(c.spans) == 0 {
		return
	}
	n := c.frag.Cells

	queue := make([]int32, 0, len(c.spans)/4)
	for si := range c.spans {
		s := &c.spans[si]
		s.dist = -1
		for d := 0; d < 4; d++ {
			ni, nj := s.i+dirDX[d], s.j+dirDY[d]
			if ni < 0 || nj < 0 || ni >= n || nj >= n {
				continue
			}
			if s.con[d] < 0 {
				s.dist = 0
				queue = append(queue, int32(si))
				break
			}
		}
	}

	for head := 0; head < len(queue); head++ {
		s := &c.spans[queue[head]]
		if s.dist+1 >= k {
			continue
		}
		for d := 0; d < 4; d++ {
			t := s.con[d]
			if t >= 0 && c.spans[t].dist < 0 {
				c.spans[t].dist = s.dist + 1
				queue = append(queue, t)
			}
		}
	}

	for si := range c.spans {
		s := &c.spans[si]
		if s.dist >= 0 && s.dist < k {
			s.removed = true
		}
	}
	for si := range c.spans {
		s := &c.spans[si]
		for d := 0; d < 4; d++ {
			if t := s.con[d]; t >= 0 && (s.removed || c.spans[t].removed) {
				s.con[d] = -1
			}
		}
	}
}

func (c *compiler) free(si int32) bool {
	return si >= 0 && !c.spans[si].removed && c.spans[si].poly < 0
}

// buildPolys grows rectangles greedily in row-major order.
func (c *compiler) buildPolys() {
	maxCells := int(c.settings.MaxPolyCells)

	for si := range c.spans {
		if !c.free(int32(si)) {
			continue
		}

		row := []int32{int32(si)}
		for len(row) < maxCells {
			next := c.spans[row[len(row)-1]].con[dirEast]
			if !c.free(next) {
				break
			}
			row = append(row, next)
		}

		rows := [][]int32{row}
		for len(rows) < maxCells {
			prev := rows[len(rows)-1]
			next := make([]int32, len(prev))
			ok := true
			for col, p := range prev {
				t := c.spans[p].con[dirNorth]
				if !c.free(t) || (col > 0 && c.spans[next[col-1]].con[dirEast] != t) {
					ok = false
					break
				}
				next[col] = t
			}
			if !ok {
				break
			}
			rows = append(rows, next)
		}

		first := &c.spans[si]
		poly := Poly{
			X0: first.i,
			Y0: first.j,
			W:  int32(len(row)),
			H:  int32(len(rows)),
			Z:  make([]float32, 0, len(row)*len(rows)),
		}
		idx := int32(len(c.frag.Polys))
		for _, r := range rows {
			for _, t := range r {
				c.spans[t].poly = idx
				poly.Z = append(poly.Z, c.spans[t].z)
			}
		}
		c.frag.Polys = append(c.frag.Polys, poly)
	}
}

// edgePair is one pair of facing spans in different polygons.
type edgePair struct {
	from, to int32
	dir      int
	run      int32 // cell index along the shared edge
	zFrom    float32
	zTo      float32
}

// buildLinks groups facing span pairs into contiguous runs and emits one
// link per run.
func (c *compiler) buildLinks() {
	var pairs []edgePair
	for si := range c.spans {
		s := &c.spans[si]
		if s.removed || s.poly < 0 {
			continue
		}
		for d := 0; d < 4; d++ {
			t := s.con[d]
			if t < 0 || c.spans[t].poly == s.poly {
				continue
			}
			run := s.j
			if d == dirNorth || d == dirSouth {
				run = s.i
			}
			pairs = append(pairs, edgePair{
				from: s.poly, to: c.spans[t].poly, dir: d, run: run,
				zFrom: s.z, zTo: c.spans[t].z,
			})
		}
	}

	sort.Slice(pairs, func(a, b int) bool {
		pa, pb := &pairs[a], &pairs[b]
		if pa.from != pb.from {
			return pa.from < pb.from
		}
		if pa.dir != pb.dir {
			return pa.dir < pb.dir
		}
		if pa.to != pb.to {
			return pa.to < pb.to
		}
		return pa.run < pb.run
	})

	f := c.frag
	for start := 0; start < len(pairs); {
		end := start + 1
		for end < len(pairs) &&
			pairs[end].from == pairs[start].from &&
			pairs[end].dir == pairs[start].dir &&
			pairs[end].to == pairs[start].to &&
			pairs[end].run == pairs[end-1].run+1 {
			end++
		}

		first, last := &pairs[start], &pairs[end-1]
		from := &f.Polys[first.from]
		a, b := f.portal(from, first.dir, first.run, last.run+1)
		a.Z = (first.zFrom + first.zTo) / 2
		b.Z = (last.zFrom + last.zTo) / 2
		from.Links = append(from.Links, Link{To: f.Ref(first.to), A: a, B: b})

		start = end
	}

	for i := range f.Polys {
		sortLinks(&f.Polys[i])
	}
}

// portal returns the endpoints of the shared edge on side dir of p,
// covering cells [runStart, runEnd) along that edge.
func (f *Fragment) portal(p *Poly, dir int, runStart, runEnd int32) (a, b math.Vec3) {
	cs := f.CellSize
	switch dir {
	case dirWest, dirEast:
		x := f.Origin.X + float32(p.X0)*cs
		if dir == dirEast {
			x = f.Origin.X + float32(p.X0+p.W)*cs
		}
		a = math.Vec3{X: x, Y: f.Origin.Y + float32(runStart)*cs}
		b = math.Vec3{X: x, Y: f.Origin.Y + float32(runEnd)*cs}
	default:
		y := f.Origin.Y + float32(p.Y0)*cs
		if dir == dirNorth {
			y = f.Origin.Y + float32(p.Y0+p.H)*cs
		}
		a = math.Vec3{X: f.Origin.X + float32(runStart)*cs, Y: y}
		b = math.Vec3{X: f.Origin.X + float32(runEnd)*cs, Y: y}
	}
	return a, b
}

// collectBorder records polygon spans on the tile's edges.
func (c *compiler) collectBorder() {
	n := c.frag.Cells
	for si := range c.spans {
		s := &c.spans[si]
		if s.removed || s.poly < 0 {
			continue
		}
		add := func(side int, run int32) {
			c.frag.Border = append(c.frag.Border, BorderSpan{Side: uint8(side), Run: run, Z: s.z, Poly: s.poly})
		}
		if s.i == 0 {
			add(dirWest, s.j)
		}
		if s.i == n-1 {
			add(dirEast, s.j)
		}
		if s.j == 0 {
			add(dirSouth, s.i)
		}
		if s.j == n-1 {
			add(dirNorth, s.i)
		}
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
