// Package pathfind answers navigation queries against built map artifacts:
// surface heights, paths, line of sight and zone lookups. Tiles are loaded
// from disk on demand and shared by all callers.
package pathfind

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/midgard-nav/internal/artifact"
	"github.com/Faultbox/midgard-nav/internal/config"
	"github.com/Faultbox/midgard-nav/internal/logger"
	"github.com/Faultbox/midgard-nav/internal/navmesh"
	"github.com/Faultbox/midgard-nav/internal/tilecache"
)

// Query errors.
var (
	ErrMapNotFound   = errors.New("map not built")
	ErrTileNotFound  = errors.New("tile not in map")
	ErrTileNotLoaded = errors.New("tile not loaded")
	ErrInvalidRadius = errors.New("invalid radius")
)

type options struct {
	maxResident    int
	searchExtent   float32
	maxSearchNodes int
	jobs           int
	log            *zap.Logger
}

func defaultOptions() options {
	return options{
		searchExtent:   5,
		maxSearchNodes: 65536,
		jobs:           4,
	}
}

// Option configures a Map.
type Option func(*options)

// WithMaxResident bounds the number of resident tiles. Zero keeps every
// loaded tile until it is unloaded.
func WithMaxResident(n int) Option {
	return func(o *options) { o.maxResident = n }
}

// WithSearchExtent sets how far from a path endpoint, horizontally and
// vertically, the nearest polygon may lie.
func WithSearchExtent(e float32) Option {
	return func(o *options) { o.searchExtent = e }
}

// WithMaxSearchNodes bounds the polygons visited by one path search.
func WithMaxSearchNodes(n int) Option {
	return func(o *options) { o.maxSearchNodes = n }
}

// WithJobs sets the parallelism of LoadAllTiles.
func WithJobs(n int) Option {
	return func(o *options) { o.jobs = n }
}

// WithLogger sets the logger. The default is the "query" child of the
// global logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// OptionsFromConfig maps the query and cache sections of cfg to options.
func OptionsFromConfig(cfg *config.Config) []Option {
	return []Option{
		WithMaxResident(cfg.Cache.MaxTiles),
		WithSearchExtent(cfg.Query.SearchExtent),
		WithMaxSearchNodes(cfg.Query.MaxSearchNodes),
		WithJobs(cfg.Build.Jobs),
	}
}

// Map is an opened navigation map. All methods are safe for concurrent use.
type Map struct {
	root  string
	name  string
	index *artifact.MapIndex
	build uuid.UUID
	grid  navmesh.Grid
	tiles map[navmesh.TileCoord]bool

	cache *tilecache.Cache[*artifact.LoadedTile]
	opts  options
	log   *zap.Logger
}

// Open reads the index of mapName under the output directory navDataPath.
// No tiles are loaded.
func Open(navDataPath, mapName string, opts ...Option) (*Map, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.searchExtent <= 0 || o.maxSearchNodes < 1 || o.jobs < 1 {
		return nil, fmt.Errorf("pathfind: invalid options (extent %v, nodes %d, jobs %d)",
			o.searchExtent, o.maxSearchNodes, o.jobs)
	}
	if o.log == nil {
		o.log = logger.Named("query")
	}

	idx, build, err := artifact.ReadMap(artifact.MapPath(navDataPath, mapName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s in %s", ErrMapNotFound, mapName, navDataPath)
	}
	if err != nil {
		return nil, err
	}

	m := &Map{
		root:  navDataPath,
		name:  mapName,
		index: idx,
		build: build,
		grid:  idx.Grid,
		tiles: make(map[navmesh.TileCoord]bool, len(idx.Tiles)),
		opts:  o,
		log:   o.log.With(zap.String("map", mapName)),
	}
	for _, c := range idx.Tiles {
		m.tiles[c] = true
	}
	m.cache, err = tilecache.New(m.loadTile, tilecache.Options[*artifact.LoadedTile]{
		MaxResident: o.maxResident,
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("map opened",
		zap.Int("tiles", len(idx.Tiles)),
		zap.String("build", build.String()),
		zap.Int("max_resident", o.maxResident))
	return m, nil
}

// coordOf inverts navmesh.TileCoord.Key.
func coordOf(key uint64) navmesh.TileCoord {
	return navmesh.TileCoord{X: int32(uint32(key >> 32)), Y: int32(uint32(key))}
}

func (m *Map) loadTile(key uint64) (*artifact.LoadedTile, error) {
	c := coordOf(key)
	lt, err := artifact.ReadTile(artifact.TilePath(m.root, m.name, c), &m.build)
	if err != nil {
		m.log.Warn("tile load failed", zap.Stringer("tile", c), zap.Error(err))
		return nil, err
	}
	m.log.Debug("tile loaded",
		zap.Stringer("tile", c),
		zap.Int("polys", lt.Fragment.PolyCount()),
		zap.Int("triangles", lt.Tree.Len()))
	return lt, nil
}

// Name returns the map name.
func (m *Map) Name() string { return m.name }

// Grid returns the map's tile grid.
func (m *Map) Grid() navmesh.Grid { return m.grid }

// BuildID returns the id of the build the map was opened from.
func (m *Map) BuildID() uuid.UUID { return m.build }

// Tiles returns every tile the map has, sorted.
func (m *Map) Tiles() []navmesh.TileCoord {
	out := make([]navmesh.TileCoord, len(m.index.Tiles))
	copy(out, m.index.Tiles)
	return out
}

// HasTile reports whether the map has a built tile at c.
func (m *Map) HasTile(c navmesh.TileCoord) bool {
	return m.tiles[c]
}

// IsTileLoaded reports whether tile c is resident.
func (m *Map) IsTileLoaded(c navmesh.TileCoord) bool {
	_, ok := m.cache.Peek(c.Key())
	return ok
}

// LoadedTiles returns the resident tiles, sorted.
func (m *Map) LoadedTiles() []navmesh.TileCoord {
	keys := m.cache.Keys()
	out := make([]navmesh.TileCoord, len(keys))
	for i, k := range keys {
		out[i] = coordOf(k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Loads returns how many tile reads have been performed.
func (m *Map) Loads() int64 {
	return m.cache.Loads()
}

// tile returns tile c, loading it if needed.
func (m *Map) tile(c navmesh.TileCoord) (*artifact.LoadedTile, error) {
	if !m.tiles[c] {
		return nil, fmt.Errorf("%w: %s %s", ErrTileNotFound, m.name, c)
	}
	return m.cache.Get(c.Key())
}

func (m *Map) resident(c navmesh.TileCoord) (*artifact.LoadedTile, bool) {
	return m.cache.Peek(c.Key())
}

// LoadTileAt loads the tile containing world position (x, y) and returns
// its coordinate. Loading a resident tile is a no-op.
func (m *Map) LoadTileAt(x, y float32) (navmesh.TileCoord, error) {
	c, err := m.grid.TileOf(x, y)
	if err != nil {
		return navmesh.TileCoord{}, err
	}
	_, err = m.tile(c)
	return c, err
}

// LoadTile loads tile c.
func (m *Map) LoadTile(c navmesh.TileCoord) error {
	_, err := m.tile(c)
	return err
}

// LoadAllTiles loads every tile of the map in parallel and returns the
// number of resident tiles.
func (m *Map) LoadAllTiles() (int, error) {
	var g errgroup.Group
	g.SetLimit(m.opts.jobs)
	for _, c := range m.index.Tiles {
		g.Go(func() error {
			_, err := m.tile(c)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return m.cache.Len(), err
	}
	return m.cache.Len(), nil
}

// UnloadTile drops tile c from memory. It reports whether the tile was
// resident.
func (m *Map) UnloadTile(c navmesh.TileCoord) bool {
	return m.cache.Evict(c.Key())
}

// Close releases every resident tile.
func (m *Map) Close() {
	m.cache.Close()
}

// autoLoad resolves fragments for searches, loading tiles as they are
// reached. Tiles the map does not have read as missing.
type autoLoad struct {
	m *Map
}

func (a autoLoad) Fragment(c navmesh.TileCoord) (*navmesh.Fragment, error) {
	if !a.m.tiles[c] {
		return nil, navmesh.ErrTileMissing
	}
	lt, err := a.m.cache.Get(c.Key())
	if err != nil {
		return nil, err
	}
	return lt.Fragment, nil
}
