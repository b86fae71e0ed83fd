package build

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/midgard-nav/internal/artifact"
	"github.com/Faultbox/midgard-nav/internal/bvh"
	"github.com/Faultbox/midgard-nav/internal/config"
	"github.com/Faultbox/midgard-nav/internal/navmesh"
	"github.com/Faultbox/midgard-nav/internal/source"
	"github.com/Faultbox/midgard-nav/pkg/formats"
)

// mapJob is the shared read-only state of one map build.
type mapJob struct {
	src     *source.Source
	name    string
	desc    *formats.MapDescriptor
	grid    navmesh.Grid
	regions []navmesh.ZoneRecord
	objects map[navmesh.TileCoord][]source.Instance
	models  *modelLibrary
	out     string
}

// tileResult is written by exactly one phase-one worker.
type tileResult struct {
	coord navmesh.TileCoord
	frag  *navmesh.Fragment
	tree  *bvh.Tree
	err   error
}

// storedTile is a published tile read back for stitching.
type storedTile struct {
	frag *navmesh.Fragment
	tree *bvh.Tree
}

func (b *Builder) openMap(sourceDir, outputDir, mapName, placementCSV string) (*mapJob, error) {
	src, err := source.Open(sourceDir, source.Options{NameEncoding: b.opts.NameEncoding})
	if err != nil {
		return nil, err
	}
	job, err := b.prepareMap(src, outputDir, mapName, placementCSV)
	if err != nil {
		return nil, multierr.Append(err, src.Close())
	}
	return job, nil
}

func (b *Builder) prepareMap(src *source.Source, outputDir, mapName, placementCSV string) (*mapJob, error) {
	desc, err := src.MapDescriptor(mapName)
	if err != nil {
		return nil, err
	}
	regions, err := src.Regions(mapName)
	if err != nil {
		return nil, err
	}
	job := &mapJob{
		src:     src,
		name:    mapName,
		desc:    desc,
		grid:    navmesh.Grid{TileSize: desc.TileSize, TilesPerSide: navmesh.DefaultTilesPerSide},
		regions: regions,
		models:  newModelLibrary(src, outputDir, b.log),
		out:     outputDir,
	}
	job.objects, err = b.loadObjects(src, placementCSV, desc.ID, job.grid, job.models)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// compileTile ingests one tile and compiles its fragment. Links to other
// tiles are added later by Stitch.
func (b *Builder) compileTile(job *mapJob, c navmesh.TileCoord) (*navmesh.Fragment, *bvh.Tree, error) {
	t, err := job.src.Tile(job.name, c)
	if err != nil {
		return nil, nil, err
	}
	tris, err := source.Assemble(t, job.grid, job.objects[c], job.models)
	if err != nil {
		return nil, nil, fmt.Errorf("tile %s: %w", c, err)
	}
	tree := bvh.Build(tris, b.opts.BVH)
	frag, err := navmesh.Compile(c, job.grid, tree, b.opts.Settings, job.regions)
	if err != nil {
		return nil, nil, fmt.Errorf("tile %s: %w", c, err)
	}
	frag.DefaultZone, frag.DefaultArea = job.desc.ZoneOf(c.X, c.Y)
	return frag, tree, nil
}

// previousBuild returns the build id of an existing map index, or false.
func previousBuild(outputDir, mapName string) (*artifact.MapIndex, uuid.UUID, bool) {
	idx, id, err := artifact.ReadMap(artifact.MapPath(outputDir, mapName))
	if err != nil {
		return nil, uuid.Nil, false
	}
	return idx, id, true
}

// storedBuild reads the build id from a tile artifact header.
func storedBuild(path string) (uuid.UUID, error) {
	f, err := os.Open(path)
	if err != nil {
		return uuid.Nil, err
	}
	defer f.Close()
	h, err := artifact.ReadHeader(bufio.NewReader(f))
	if err != nil {
		return uuid.Nil, err
	}
	return h.Build(), nil
}

// BuildMap builds every tile of a map. Phase one compiles tiles in
// parallel, each into its own result slot. After all workers finish,
// phase two stitches neighbouring fragments and publishes the tiles and the
// map index. Tile failures are counted in the report; the returned error
// is reserved for failures of the whole map.
func (b *Builder) BuildMap(ctx context.Context, sourceDir, outputDir, mapName string, jobs int, placementCSV string) (*Report, error) {
	if err := checkJobs(jobs); err != nil {
		return nil, err
	}
	start := time.Now()

	job, err := b.openMap(sourceDir, outputDir, mapName, placementCSV)
	if err != nil {
		return nil, err
	}
	defer job.src.Close()

	mapDir := artifact.MapDir(outputDir, mapName)
	if b.opts.Overwrite == config.OverwriteError && !dirEmpty(mapDir) {
		return nil, fmt.Errorf("%w: %s", ErrOutputExists, mapDir)
	}

	coords, err := job.src.TileCoords(mapName)
	if err != nil {
		return nil, err
	}

	report := &Report{Map: mapName, BuildID: uuid.New(), Tiles: len(coords)}

	// In skip mode, tiles already published under the previous build id
	// are kept and the id is reused so they stay loadable.
	kept := make(map[navmesh.TileCoord]bool)
	if b.opts.Overwrite == config.OverwriteSkip {
		if _, prev, ok := previousBuild(outputDir, mapName); ok {
			report.BuildID = prev
			for _, c := range coords {
				id, err := storedBuild(artifact.TilePath(outputDir, mapName, c))
				if err == nil && id == prev {
					kept[c] = true
				}
			}
		}
	}
	todo := make([]navmesh.TileCoord, 0, len(coords))
	for _, c := range coords {
		if !kept[c] {
			todo = append(todo, c)
		}
	}
	report.Skipped = len(kept)

	b.log.Info("building map",
		zap.String("map", mapName),
		zap.Int("tiles", len(coords)),
		zap.Int("skipped", len(kept)),
		zap.Int("jobs", jobs),
		zap.String("build", report.BuildID.String()))

	// Phase one.
	results := make([]tileResult, len(todo))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, c := range todo {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			frag, tree, err := b.compileTile(job, c)
			results[i] = tileResult{coord: c, frag: frag, tree: tree, err: err}
			if err == nil {
				b.log.Debug("tile compiled",
					zap.Stringer("tile", c),
					zap.Int("triangles", tree.Len()),
					zap.Int("polys", frag.PolyCount()))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	// Phase two.
	fragments := make(map[navmesh.TileCoord]*navmesh.Fragment)
	trees := make(map[navmesh.TileCoord]*bvh.Tree)
	for _, r := range results {
		if r.err != nil {
			report.Failed++
			report.Err = multierr.Append(report.Err, r.err)
			b.log.Warn("skipping tile", zap.Stringer("tile", r.coord), zap.Error(r.err))
			continue
		}
		fragments[r.coord] = r.frag
		trees[r.coord] = r.tree
	}

	rewrite := b.adjacentStored(job, report.BuildID, fragments, kept)
	for c, st := range rewrite {
		fragments[c] = st.frag
		trees[c] = st.tree
	}
	navmesh.Stitch(fragments, b.opts.Settings)

	publish := make([]navmesh.TileCoord, 0, len(fragments))
	for c := range fragments {
		publish = append(publish, c)
	}
	sort.Slice(publish, func(i, j int) bool { return publish[i].Less(publish[j]) })

	failed, err := b.publishTiles(ctx, job, report, publish, fragments, trees, jobs)
	if err != nil {
		return report, err
	}

	var tiles []navmesh.TileCoord
	for c := range kept {
		tiles = append(tiles, c)
	}
	for _, c := range publish {
		if !failed[c] && !kept[c] {
			tiles = append(tiles, c)
			report.Built++
		}
	}
	if err := b.writeMapIndex(job, report, tiles); err != nil {
		return report, err
	}
	if b.opts.Overwrite != config.OverwriteSkip {
		b.pruneStale(mapDir, tiles)
	}

	b.log.Info("map built",
		zap.String("map", mapName),
		zap.Int("built", report.Built),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.String("size", humanize.Bytes(uint64(report.Bytes))),
		zap.Duration("elapsed", time.Since(start)))
	return report, nil
}

// adjacentStored reads the kept tiles that border a freshly compiled one,
// so stitching can link to them and they can be republished.
func (b *Builder) adjacentStored(job *mapJob, build uuid.UUID, fresh map[navmesh.TileCoord]*navmesh.Fragment, kept map[navmesh.TileCoord]bool) map[navmesh.TileCoord]storedTile {
	out := make(map[navmesh.TileCoord]storedTile)
	for c := range fresh {
		for _, n := range neighbours(c) {
			if !kept[n] {
				continue
			}
			if _, done := out[n]; done {
				continue
			}
			lt, err := artifact.ReadTile(artifact.TilePath(job.out, job.name, n), &build)
			if err != nil {
				b.log.Warn("cannot stitch to stored tile", zap.Stringer("tile", n), zap.Error(err))
				continue
			}
			out[n] = storedTile{frag: lt.Fragment, tree: lt.Tree}
		}
	}
	return out
}

func neighbours(c navmesh.TileCoord) []navmesh.TileCoord {
	return []navmesh.TileCoord{
		{X: c.X - 1, Y: c.Y},
		{X: c.X + 1, Y: c.Y},
		{X: c.X, Y: c.Y - 1},
		{X: c.X, Y: c.Y + 1},
	}
}

// publishTiles writes the tile artifacts in parallel. Write failures are
// counted against the report and returned in the failed set.
func (b *Builder) publishTiles(ctx context.Context, job *mapJob, report *Report, coords []navmesh.TileCoord,
	fragments map[navmesh.TileCoord]*navmesh.Fragment, trees map[navmesh.TileCoord]*bvh.Tree, jobs int) (map[navmesh.TileCoord]bool, error) {

	errs := make([]error, len(coords))
	var bytes atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, c := range coords {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			n, err := artifact.WriteTile(artifact.TilePath(job.out, job.name, c), report.BuildID, fragments[c], trees[c])
			if err != nil {
				errs[i] = err
				return nil
			}
			bytes.Add(n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	failed := make(map[navmesh.TileCoord]bool)
	for i, err := range errs {
		if err == nil {
			continue
		}
		failed[coords[i]] = true
		report.Failed++
		report.Err = multierr.Append(report.Err, err)
		b.log.Warn("cannot publish tile", zap.Stringer("tile", coords[i]), zap.Error(err))
	}
	report.Bytes += bytes.Load()
	return failed, nil
}

func (b *Builder) writeMapIndex(job *mapJob, report *Report, tiles []navmesh.TileCoord) error {
	sort.Slice(tiles, func(i, j int) bool { return tiles[i].Less(tiles[j]) })
	idx := &artifact.MapIndex{
		Name:        job.name,
		ID:          job.desc.ID,
		Grid:        job.grid,
		Settings:    b.opts.Settings,
		Tiles:       tiles,
		DefaultZone: job.desc.DefaultZone,
		DefaultArea: job.desc.DefaultArea,
	}
	n, err := artifact.WriteMap(artifact.MapPath(job.out, job.name), report.BuildID, idx)
	if err != nil {
		return err
	}
	report.Bytes += n
	return nil
}

// pruneStale removes tile artifacts that the new map index does not list.
func (b *Builder) pruneStale(mapDir string, tiles []navmesh.TileCoord) {
	keep := make(map[string]bool, len(tiles))
	for _, c := range tiles {
		keep[c.String()+artifact.TileExt] = true
	}
	entries, err := os.ReadDir(mapDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, artifact.TileExt) || keep[name] {
			continue
		}
		if err := os.Remove(filepath.Join(mapDir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			b.log.Warn("cannot remove stale tile", zap.String("file", name), zap.Error(err))
		}
	}
}

// BuildTile rebuilds a single tile. Stored neighbours from the same build
// are stitched to it and republished, and the tile is added to the map
// index. Without a previous map index a new build is started.
func (b *Builder) BuildTile(ctx context.Context, sourceDir, outputDir, mapName string, x, y int32, placementCSV string) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := navmesh.TileCoord{X: x, Y: y}

	job, err := b.openMap(sourceDir, outputDir, mapName, placementCSV)
	if err != nil {
		return nil, err
	}
	defer job.src.Close()
	if !job.grid.Contains(c) {
		return nil, fmt.Errorf("%w: tile %s", navmesh.ErrOutOfMap, c)
	}

	report := &Report{Map: mapName, BuildID: uuid.New(), Tiles: 1}
	prevIdx, prev, hasPrev := previousBuild(outputDir, mapName)
	if hasPrev {
		report.BuildID = prev
	}

	path := artifact.TilePath(outputDir, mapName, c)
	if _, err := os.Stat(path); err == nil {
		switch b.opts.Overwrite {
		case config.OverwriteError:
			return nil, fmt.Errorf("%w: %s", ErrOutputExists, path)
		case config.OverwriteSkip:
			if id, err := storedBuild(path); err == nil && hasPrev && id == prev {
				report.Skipped = 1
				b.log.Info("tile exists, skipping", zap.Stringer("tile", c))
				return report, nil
			}
		}
	}

	frag, tree, err := b.compileTile(job, c)
	if err != nil {
		report.Failed = 1
		report.Err = err
		return report, err
	}

	fragments := map[navmesh.TileCoord]*navmesh.Fragment{c: frag}
	trees := map[navmesh.TileCoord]*bvh.Tree{c: tree}
	tiles := []navmesh.TileCoord{c}
	if hasPrev {
		listed := make(map[navmesh.TileCoord]bool, len(prevIdx.Tiles))
		for _, t := range prevIdx.Tiles {
			listed[t] = true
			if t != c {
				tiles = append(tiles, t)
			}
		}
		for n, st := range b.adjacentStored(job, prev, fragments, listed) {
			fragments[n] = st.frag
			trees[n] = st.tree
		}
	}
	navmesh.Stitch(fragments, b.opts.Settings)

	publish := make([]navmesh.TileCoord, 0, len(fragments))
	for t := range fragments {
		publish = append(publish, t)
	}
	sort.Slice(publish, func(i, j int) bool { return publish[i].Less(publish[j]) })

	failed, err := b.publishTiles(ctx, job, report, publish, fragments, trees, len(publish))
	if err != nil {
		return report, err
	}
	if failed[c] {
		return report, report.Err
	}
	report.Built = 1
	if err := b.writeMapIndex(job, report, tiles); err != nil {
		return report, err
	}

	b.log.Info("tile built",
		zap.String("map", mapName),
		zap.Stringer("tile", c),
		zap.Int("neighbours", len(publish)-1),
		zap.String("size", humanize.Bytes(uint64(report.Bytes))))
	return report, nil
}
