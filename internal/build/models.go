package build

import (
	"errors"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-nav/internal/artifact"
	"github.com/Faultbox/midgard-nav/internal/geometry"
	"github.com/Faultbox/midgard-nav/internal/source"
	"github.com/Faultbox/midgard-nav/internal/tilecache"
	"github.com/Faultbox/midgard-nav/pkg/encoding"
)

// modelLibrary resolves model-space triangles by model name, preferring
// prebuilt model BVHs listed in the output's bvh.idx and falling back to the
// source model. Each model is read once per build.
type modelLibrary struct {
	src    *source.Source
	bvhDir string
	index  map[string]string
	cache  *tilecache.Cache[[]geometry.Triangle]

	mu    sync.Mutex
	names map[uint64]string
}

func newModelLibrary(src *source.Source, outputDir string, log *zap.Logger) *modelLibrary {
	m := &modelLibrary{
		src:    src,
		bvhDir: filepath.Join(outputDir, artifact.BVHDir),
		index:  map[string]string{},
		names:  make(map[uint64]string),
	}
	idx, err := artifact.ReadIndex(artifact.IndexPath(outputDir))
	switch {
	case err == nil:
		m.index = idx.Models
		log.Debug("using model bvh index", zap.Int("models", len(idx.Models)))
	case errors.Is(err, fs.ErrNotExist):
	default:
		log.Warn("ignoring unreadable model bvh index", zap.Error(err))
	}
	// An unbounded cache never fails to construct.
	m.cache, _ = tilecache.New[[]geometry.Triangle](m.load, tilecache.Options[[]geometry.Triangle]{})
	return m
}

// ModelTriangles implements source.ModelProvider.
func (m *modelLibrary) ModelTriangles(name string) ([]geometry.Triangle, error) {
	key := xxhash.Sum64String(encoding.NormalizeModelPath(name))
	m.mu.Lock()
	m.names[key] = name
	m.mu.Unlock()
	return m.cache.Get(key)
}

func (m *modelLibrary) load(key uint64) ([]geometry.Triangle, error) {
	m.mu.Lock()
	name := m.names[key]
	m.mu.Unlock()

	if file, ok := m.index[encoding.NormalizeModelPath(name)]; ok {
		_, tree, err := artifact.ReadModel(filepath.Join(m.bvhDir, file))
		if err == nil {
			return tree.Triangles, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return m.src.ModelTriangles(name)
}

// Loads reports how many distinct models were read.
func (m *modelLibrary) Loads() int64 {
	return m.cache.Loads()
}
