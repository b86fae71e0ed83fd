// Package source reads raw world geometry from a source tree: a directory
// optionally overlaid by .pak archives at its root.
//
// Lookup order for a name is the loose directory first, then the archives
// from the lexically last to the first.
package source

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-nav/internal/logger"
	"github.com/Faultbox/midgard-nav/internal/navmesh"
	"github.com/Faultbox/midgard-nav/pkg/encoding"
	"github.com/Faultbox/midgard-nav/pkg/formats"
	"github.com/Faultbox/midgard-nav/pkg/math"
	"github.com/Faultbox/midgard-nav/pkg/pack"
)

// Source errors.
var (
	ErrNotFound      = errors.New("source file not found")
	ErrMapNotFound   = errors.New("map not found")
	ErrTileNotFound  = errors.New("tile not found")
	ErrModelNotFound = errors.New("model not found")
	ErrTileMismatch  = errors.New("tile file declares another coordinate")
)

// File names inside the source tree.
const (
	MapsDir        = "maps"
	ModelsDir      = "models"
	DescriptorFile = "map.yaml"
	RegionsFile    = "areas.hjson"
	DisplayFile    = "display.csv"
	TileExt        = ".gtl"
	ModelExt       = ".gmd"
	PackExt        = ".pak"
)

// Options configures how a source tree is read.
type Options struct {
	NameEncoding string
}

// Source is an opened source tree. It is safe for concurrent reads.
type Source struct {
	root  string
	codec encoding.Codec
	packs []*pack.Archive
	log   *zap.Logger
}

// Open opens the source tree at root and every .pak archive directly
// inside it.
func Open(root string, opts Options) (*Source, error) {
	codec, err := encoding.Lookup(opts.NameEncoding)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("opening source %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("opening source %s: not a directory", root)
	}

	s := &Source{root: root, codec: codec, log: logger.Named("source")}

	matches, err := filepath.Glob(filepath.Join(root, "*"+PackExt))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	for _, p := range matches {
		a, err := pack.Open(p)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("opening pack %s: %w", p, err), s.Close())
		}
		s.packs = append(s.packs, a)
	}

	s.log.Debug("source opened",
		zap.String("root", root),
		zap.Int("packs", len(s.packs)),
		zap.String("encoding", codec.Name()))
	return s, nil
}

// Close closes every archive.
func (s *Source) Close() error {
	var err error
	for _, a := range s.packs {
		err = multierr.Append(err, a.Close())
	}
	s.packs = nil
	return err
}

// Root returns the source directory.
func (s *Source) Root() string {
	return s.root
}

// Codec returns the codec used for model names.
func (s *Source) Codec() encoding.Codec {
	return s.codec
}

// ReadFile reads a slash-separated name relative to the root.
func (s *Source) ReadFile(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(name)))
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	for i := len(s.packs) - 1; i >= 0; i-- {
		if s.packs[i].Contains(name) {
			return s.packs[i].Read(name)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// List returns the names under dir (slash-separated, non-recursive across
// the overlay), sorted. Archive names are lower case; a loose file shadows
// an archive entry with the same normalized name.
func (s *Source) List(dir string) []string {
	dir = strings.TrimSuffix(dir, "/") + "/"
	seen := make(map[string]string)

	for _, a := range s.packs {
		for _, name := range a.List() {
			if strings.HasPrefix(name, encoding.NormalizeModelPath(dir)) {
				seen[name] = name
			}
		}
	}

	base := filepath.Join(s.root, filepath.FromSlash(dir))
	_ = filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return nil
		}
		name := filepath.ToSlash(rel)
		seen[encoding.NormalizeModelPath(name)] = name
		return nil
	})

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = seen[k]
	}
	return out
}

// Maps returns the names of every map with a descriptor.
func (s *Source) Maps() []string {
	var maps []string
	for _, name := range s.List(MapsDir) {
		parts := strings.Split(name, "/")
		if len(parts) == 3 && strings.EqualFold(parts[2], DescriptorFile) {
			maps = append(maps, parts[1])
		}
	}
	return maps
}

func mapFile(mapName, file string) string {
	return path.Join(MapsDir, mapName, file)
}

// MapDescriptor reads maps/<name>/map.yaml.
func (s *Source) MapDescriptor(mapName string) (*formats.MapDescriptor, error) {
	data, err := s.ReadFile(mapFile(mapName, DescriptorFile))
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrMapNotFound, mapName)
	}
	if err != nil {
		return nil, err
	}
	return formats.ParseMapDescriptor(data)
}

// Regions reads the map's region definitions. A map without a region file
// has none.
func (s *Source) Regions(mapName string) ([]navmesh.ZoneRecord, error) {
	data, err := s.ReadFile(mapFile(mapName, RegionsFile))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defs, err := formats.ParseRegions(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", mapName, err)
	}
	return ZoneRecords(defs), nil
}

// ZoneRecords converts parsed region definitions, keeping definition order.
func ZoneRecords(defs []formats.RegionDef) []navmesh.ZoneRecord {
	out := make([]navmesh.ZoneRecord, len(defs))
	for i, d := range defs {
		lo, hi := navmesh.Unbounded()
		if d.MinZ != nil {
			lo = *d.MinZ
		}
		if d.MaxZ != nil {
			hi = *d.MaxZ
		}
		poly := make([]math.Vec2, len(d.Polygon))
		for j, p := range d.Polygon {
			poly[j] = math.Vec2{X: p[0], Y: p[1]}
		}
		out[i] = navmesh.ZoneRecord{
			Name:     d.Name,
			Zone:     d.Zone,
			Area:     d.Area,
			Priority: d.Priority,
			MinZ:     lo,
			MaxZ:     hi,
			Polygon:  poly,
			Order:    int32(i),
		}
	}
	return out
}

// TileCoords returns the coordinates of every tile file of a map in
// row-major order.
func (s *Source) TileCoords(mapName string) ([]navmesh.TileCoord, error) {
	var coords []navmesh.TileCoord
	for _, name := range s.List(path.Join(MapsDir, mapName)) {
		base := path.Base(name)
		if !strings.EqualFold(path.Ext(base), TileExt) {
			continue
		}
		c, ok := parseCoord(strings.TrimSuffix(base, path.Ext(base)))
		if !ok {
			s.log.Warn("ignoring tile file with malformed name", zap.String("file", name))
			continue
		}
		coords = append(coords, c)
	}
	sort.Slice(coords, func(i, j int) bool { return coords[i].Less(coords[j]) })
	return coords, nil
}

func parseCoord(s string) (navmesh.TileCoord, bool) {
	xs, ys, ok := strings.Cut(s, "_")
	if !ok {
		return navmesh.TileCoord{}, false
	}
	x, err := strconv.ParseInt(xs, 10, 32)
	if err != nil {
		return navmesh.TileCoord{}, false
	}
	y, err := strconv.ParseInt(ys, 10, 32)
	if err != nil {
		return navmesh.TileCoord{}, false
	}
	return navmesh.TileCoord{X: int32(x), Y: int32(y)}, true
}

// TileFile returns the source name of a tile's geometry file.
func TileFile(mapName string, c navmesh.TileCoord) string {
	return mapFile(mapName, c.String()+TileExt)
}

// Tile reads and parses one tile geometry file.
func (s *Source) Tile(mapName string, c navmesh.TileCoord) (*formats.Tile, error) {
	data, err := s.ReadFile(TileFile(mapName, c))
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s %s", ErrTileNotFound, mapName, c)
	}
	if err != nil {
		return nil, err
	}
	t, err := formats.ParseTile(data, s.codec)
	if err != nil {
		return nil, fmt.Errorf("tile %s %s: %w", mapName, c, err)
	}
	if t.X != c.X || t.Y != c.Y {
		return nil, fmt.Errorf("%w: %s %s holds %d_%d", ErrTileMismatch, mapName, c, t.X, t.Y)
	}
	return t, nil
}

// Models returns the names of every model file, relative to models/.
func (s *Source) Models() []string {
	var out []string
	prefix := ModelsDir + "/"
	for _, name := range s.List(ModelsDir) {
		if strings.EqualFold(path.Ext(name), ModelExt) {
			out = append(out, strings.TrimPrefix(name, prefix))
		}
	}
	return out
}

// Model reads and parses a model by its name relative to models/.
func (s *Source) Model(name string) (*formats.Model, error) {
	data, err := s.ReadFile(path.Join(ModelsDir, strings.ReplaceAll(name, "\\", "/")))
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	m, err := formats.ParseModel(data)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", name, err)
	}
	return m, nil
}

// DisplayTable reads models/display.csv. A missing table is empty.
func (s *Source) DisplayTable() (map[uint32]string, error) {
	data, err := s.ReadFile(path.Join(ModelsDir, DisplayFile))
	if errors.Is(err, ErrNotFound) {
		return map[uint32]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return formats.ParseDisplayTable(bytes.NewReader(data))
}
