package navmesh

import (
	"sort"

	"github.com/Faultbox/midgard-nav/pkg/math"
)

// Stitch links facing border spans of edge-adjacent fragments. Links
// between each stitched pair are rebuilt from scratch, so stitching the
// same set twice is a no-op; links to tiles outside the set are kept.
// Border spans stay on the fragments so a later partial rebuild can
// stitch against them again.
func Stitch(fragments map[TileCoord]*Fragment, settings Settings) {
	coords := make([]TileCoord, 0, len(fragments))
	for c := range fragments {
		coords = append(coords, c)
	}
	sort.Slice(coords, func(i, j int) bool { return coords[i].Less(coords[j]) })

	touched := make(map[TileCoord]bool)
	for _, c := range coords {
		f := fragments[c]
		for _, side := range []int{dirEast, dirNorth} {
			nc := TileCoord{X: c.X + dirDX[side], Y: c.Y + dirDY[side]}
			g, ok := fragments[nc]
			if !ok || g.Cells != f.Cells || g.CellSize != f.CellSize {
				continue
			}
			dropLinksTo(f, nc)
			dropLinksTo(g, c)
			stitchPair(f, g, side, settings.WalkableClimb)
			touched[c] = true
			touched[nc] = true
		}
	}

	for c := range touched {
		f := fragments[c]
		for i := range f.Polys {
			sortLinks(&f.Polys[i])
		}
	}
}

func dropLinksTo(f *Fragment, target TileCoord) {
	for pi := range f.Polys {
		p := &f.Polys[pi]
		kept := p.Links[:0]
		for _, l := range p.Links {
			if l.To.Tile() != target {
				kept = append(kept, l)
			}
		}
		p.Links = kept
	}
}

type borderPair struct {
	a, b   int32 // polygon indices in f and g
	run    int32
	za, zb float32
}

// stitchPair links f to g, which lies on f's side (east or north).
func stitchPair(f, g *Fragment, side int, climb float32) {
	fs := borderOn(f, side)
	gs := borderOn(g, opposite(side))
	if len(fs) == 0 || len(gs) == 0 {
		return
	}

	bestA := bestMatches(fs, gs, climb)
	bestB := bestMatches(gs, fs, climb)

	var pairs []borderPair
	for ai, bi := range bestA {
		if bi < 0 || bestB[bi] != int32(ai) {
			continue
		}
		a, b := &fs[ai], &gs[bi]
		pairs = append(pairs, borderPair{a: a.Poly, b: b.Poly, run: a.Run, za: a.Z, zb: b.Z})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].a != pairs[j].a {
			return pairs[i].a < pairs[j].a
		}
		if pairs[i].b != pairs[j].b {
			return pairs[i].b < pairs[j].b
		}
		return pairs[i].run < pairs[j].run
	})

	cs := f.CellSize
	edge := func(run int32) math.Vec3 {
		if side == dirEast {
			return math.Vec3{X: f.Origin.X + float32(f.Cells)*cs, Y: f.Origin.Y + float32(run)*cs}
		}
		return math.Vec3{X: f.Origin.X + float32(run)*cs, Y: f.Origin.Y + float32(f.Cells)*cs}
	}

	for start := 0; start < len(pairs); {
		end := start + 1
		for end < len(pairs) &&
			pairs[end].a == pairs[start].a &&
			pairs[end].b == pairs[start].b &&
			pairs[end].run == pairs[end-1].run+1 {
			end++
		}
		first, last := &pairs[start], &pairs[end-1]
		a := edge(first.run)
		a.Z = (first.za + first.zb) / 2
		b := edge(last.run + 1)
		b.Z = (last.za + last.zb) / 2

		f.Polys[first.a].Links = append(f.Polys[first.a].Links, Link{To: g.Ref(first.b), A: a, B: b})
		g.Polys[first.b].Links = append(g.Polys[first.b].Links, Link{To: f.Ref(first.a), A: a, B: b})
		start = end
	}
}

func borderOn(f *Fragment, side int) []BorderSpan {
	var out []BorderSpan
	for _, b := range f.Border {
		if int(b.Side) == side {
			out = append(out, b)
		}
	}
	return out
}

// bestMatches returns, for each span in from, the index of the span in to
// on the same run with the smallest height difference within climb.
func bestMatches(from, to []BorderSpan, climb float32) []int32 {
	byRun := make(map[int32][]int32, len(to))
	for i := range to {
		byRun[to[i].Run] = append(byRun[to[i].Run], int32(i))
	}
	out := make([]int32, len(from))
	for i := range from {
		out[i] = -1
		bestDZ := climb
		for _, t := range byRun[from[i].Run] {
			dz := abs32(to[t].Z - from[i].Z)
			if dz <= bestDZ && (out[i] < 0 || dz < bestDZ) {
				out[i], bestDZ = t, dz
			}
		}
	}
	return out
}
