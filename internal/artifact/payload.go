package artifact

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/Faultbox/midgard-nav/internal/bvh"
	"github.com/Faultbox/midgard-nav/internal/navmesh"
)

// Tile is the payload of a tile artifact: the navmesh fragment together
// with the tile's collision BVH.
type Tile struct {
	Fragment *navmesh.Fragment `msgpack:"fragment"`
	BVH      *bvh.Packed       `msgpack:"bvh"`
}

// LoadedTile is a decoded, ready-to-query tile.
type LoadedTile struct {
	Fragment *navmesh.Fragment
	Tree     *bvh.Tree
}

// MapIndex describes a built map.
type MapIndex struct {
	Name        string              `msgpack:"name"`
	ID          uint32              `msgpack:"id"`
	Grid        navmesh.Grid        `msgpack:"grid"`
	Settings    navmesh.Settings    `msgpack:"settings"`
	Tiles       []navmesh.TileCoord `msgpack:"tiles"`
	DefaultZone uint32              `msgpack:"default_zone"`
	DefaultArea uint32              `msgpack:"default_area"`
	BuildID     string              `msgpack:"build_id"`
}

// Model is the payload of a model BVH artifact.
type Model struct {
	Name string      `msgpack:"name"`
	BVH  *bvh.Packed `msgpack:"bvh"`
}

// Index maps normalized model names to their BVH file names.
type Index struct {
	Models map[string]string `msgpack:"models"`
}

// WriteTile publishes a tile artifact.
func WriteTile(path string, build uuid.UUID, frag *navmesh.Fragment, tree *bvh.Tree) (int64, error) {
	return WriteFile(path, KindTile, frag.Coord, build, &Tile{Fragment: frag, BVH: tree.Pack()})
}

// ReadTile loads a tile artifact. A non-nil build must match the build id
// in the header.
func ReadTile(path string, build *uuid.UUID) (*LoadedTile, error) {
	var payload Tile
	h, err := ReadFile(path, KindTile, &payload)
	if err != nil {
		return nil, err
	}
	if build != nil && h.Build() != *build {
		return nil, fmt.Errorf("%w: %s has %s, want %s", ErrBuildMismatch, path, h.Build(), *build)
	}
	if payload.Fragment == nil || payload.BVH == nil {
		return nil, fmt.Errorf("%w: %s has no fragment or bvh", ErrCorrupt, path)
	}
	if payload.Fragment.Coord != h.Coord() {
		return nil, fmt.Errorf("%w: %s holds tile %s, header says %s", ErrCorrupt, path, payload.Fragment.Coord, h.Coord())
	}
	if err := payload.Fragment.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, path, err)
	}
	tree, err := bvh.Unpack(payload.BVH)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, path, err)
	}
	payload.Fragment.Prepare()

	return &LoadedTile{Fragment: payload.Fragment, Tree: tree}, nil
}

// WriteMap publishes a map index.
func WriteMap(path string, build uuid.UUID, idx *MapIndex) (int64, error) {
	idx.BuildID = build.String()
	return WriteFile(path, KindMap, navmesh.TileCoord{}, build, idx)
}

// ReadMap loads a map index and returns it with its build id.
func ReadMap(path string) (*MapIndex, uuid.UUID, error) {
	var idx MapIndex
	h, err := ReadFile(path, KindMap, &idx)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if err := idx.Settings.Validate(); err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", path, err)
	}
	return &idx, h.Build(), nil
}

// WriteModel publishes a model BVH.
func WriteModel(path string, build uuid.UUID, name string, tree *bvh.Tree) (int64, error) {
	return WriteFile(path, KindModel, navmesh.TileCoord{}, build, &Model{Name: name, BVH: tree.Pack()})
}

// ReadModel loads a model BVH.
func ReadModel(path string) (string, *bvh.Tree, error) {
	var m Model
	if _, err := ReadFile(path, KindModel, &m); err != nil {
		return "", nil, err
	}
	if m.BVH == nil {
		return "", nil, fmt.Errorf("%w: %s has no bvh", ErrCorrupt, path)
	}
	tree, err := bvh.Unpack(m.BVH)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, path, err)
	}
	return m.Name, tree, nil
}

// WriteIndex publishes the model BVH index.
func WriteIndex(path string, build uuid.UUID, idx *Index) (int64, error) {
	return WriteFile(path, KindIndex, navmesh.TileCoord{}, build, idx)
}

// ReadIndex loads the model BVH index.
func ReadIndex(path string) (*Index, error) {
	var idx Index
	if _, err := ReadFile(path, KindIndex, &idx); err != nil {
		return nil, err
	}
	if idx.Models == nil {
		idx.Models = map[string]string{}
	}
	return &idx, nil
}
