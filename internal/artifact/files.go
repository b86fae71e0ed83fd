package artifact

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/Faultbox/midgard-nav/internal/navmesh"
	"github.com/Faultbox/midgard-nav/pkg/encoding"
)

// Output layout.
const (
	BVHDir     = "BVH"
	NavDir     = "Nav"
	IndexFile  = "bvh.idx"
	TileExt    = ".nav"
	MapExt     = ".map"
	ModelExt   = ".bvh"
	tempSuffix = ".tmp"
)

// MapDir returns the directory holding a map's artifacts.
func MapDir(root, mapName string) string {
	return filepath.Join(root, NavDir, mapName)
}

// MapPath returns the path of a map's index artifact.
func MapPath(root, mapName string) string {
	return filepath.Join(MapDir(root, mapName), mapName+MapExt)
}

// TilePath returns the path of a tile artifact.
func TilePath(root, mapName string, c navmesh.TileCoord) string {
	return filepath.Join(MapDir(root, mapName), c.String()+TileExt)
}

// ModelFile returns the file name of a model BVH, derived from the
// normalized model path.
func ModelFile(model string) string {
	sum := xxhash.Sum64String(encoding.NormalizeModelPath(model))
	return strconv.FormatUint(sum, 16) + ModelExt
}

// IndexPath returns the path of the model BVH index.
func IndexPath(root string) string {
	return filepath.Join(root, BVHDir, IndexFile)
}

// WriteFile encodes an artifact to path. The data goes to a temporary file
// in the same directory, which is synced and renamed over path, so readers
// never observe a partial artifact.
func WriteFile(path string, kind Kind, coord navmesh.TileCoord, build uuid.UUID, payload any) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*"+tempSuffix)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	w := bufio.NewWriter(tmp)
	n, err := Encode(w, kind, coord, build, payload)
	if err == nil {
		err = w.Flush()
	}
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return 0, fmt.Errorf("publish %s: %w", path, err)
	}
	return n, nil
}

// ReadFile decodes the artifact at path into v.
func ReadFile(path string, kind Kind, v any) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()

	h, err := Decode(bufio.NewReader(f), kind, v)
	if err != nil {
		return h, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}

// IsTemp reports whether name is an unpublished temporary artifact.
func IsTemp(name string) bool {
	return filepath.Ext(name) == tempSuffix
}
