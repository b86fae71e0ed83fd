// Package config handles navigation tool configuration loading and management.
package config

import (
	"errors"
	"fmt"

	"github.com/Faultbox/midgard-nav/internal/bvh"
	"github.com/Faultbox/midgard-nav/internal/navmesh"
	"github.com/Faultbox/midgard-nav/pkg/encoding"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Overwrite policies for existing build output.
const (
	OverwriteReplace = "overwrite"
	OverwriteError   = "error"
	OverwriteSkip    = "skip"
)

// Config holds all tool settings.
type Config struct {
	Source  SourceConfig  `yaml:"source"`
	Build   BuildConfig   `yaml:"build"`
	Mesh    MeshConfig    `yaml:"mesh"`
	Query   QueryConfig   `yaml:"query"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
}

// SourceConfig describes where raw world geometry lives.
type SourceConfig struct {
	Dir          string `yaml:"dir"`
	NameEncoding string `yaml:"name_encoding"` // utf-8, euc-kr, windows-1252
}

// BuildConfig holds offline build settings.
type BuildConfig struct {
	Output           string `yaml:"output"`
	Jobs             int    `yaml:"jobs"`
	Overwrite        string `yaml:"overwrite"`
	Split            string `yaml:"split"` // sah or median
	MaxLeafTriangles int    `yaml:"max_leaf_triangles"`
}

// MeshConfig mirrors navmesh.Settings.
type MeshConfig struct {
	CellsPerTile  int     `yaml:"cells_per_tile"`
	AgentRadius   float32 `yaml:"agent_radius"`
	AgentHeight   float32 `yaml:"agent_height"`
	WalkableClimb float32 `yaml:"walkable_climb"`
	WalkableSlope float32 `yaml:"walkable_slope"`
	HeightEpsilon float32 `yaml:"height_epsilon"`
	MaxPolyCells  int     `yaml:"max_poly_cells"`
	DetailRefine  float32 `yaml:"detail_refine"`
}

// QueryConfig holds runtime query settings.
type QueryConfig struct {
	NavDir         string  `yaml:"nav_dir"`
	SearchExtent   float32 `yaml:"search_extent"`
	MaxSearchNodes int     `yaml:"max_search_nodes"`
}

// CacheConfig holds tile residency settings. MaxTiles 0 keeps every tile.
type CacheConfig struct {
	MaxTiles int `yaml:"max_tiles"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	LogFile    string `yaml:"log_file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	s := navmesh.DefaultSettings()
	bo := bvh.DefaultOptions()
	return &Config{
		Source: SourceConfig{
			Dir:          "data",
			NameEncoding: "utf-8",
		},
		Build: BuildConfig{
			Output:           "out",
			Jobs:             4,
			Overwrite:        OverwriteReplace,
			Split:            bo.Split.String(),
			MaxLeafTriangles: bo.MaxLeafTriangles,
		},
		Mesh: MeshConfig{
			CellsPerTile:  int(s.CellsPerTile),
			AgentRadius:   s.AgentRadius,
			AgentHeight:   s.AgentHeight,
			WalkableClimb: s.WalkableClimb,
			WalkableSlope: s.WalkableSlope,
			HeightEpsilon: s.HeightEpsilon,
			MaxPolyCells:  int(s.MaxPolyCells),
			DetailRefine:  s.DetailRefine,
		},
		Query: QueryConfig{
			NavDir:         "out",
			SearchExtent:   5,
			MaxSearchNodes: 65536,
		},
		Cache: CacheConfig{
			MaxTiles: 0,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			LogFile:    "",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// MeshSettings converts the mesh section into compiler settings.
func (c *Config) MeshSettings() navmesh.Settings {
	return navmesh.Settings{
		CellsPerTile:  int32(c.Mesh.CellsPerTile),
		AgentRadius:   c.Mesh.AgentRadius,
		AgentHeight:   c.Mesh.AgentHeight,
		WalkableClimb: c.Mesh.WalkableClimb,
		WalkableSlope: c.Mesh.WalkableSlope,
		HeightEpsilon: c.Mesh.HeightEpsilon,
		MaxPolyCells:  int32(c.Mesh.MaxPolyCells),
		DetailRefine:  c.Mesh.DetailRefine,
	}
}

// BVHOptions converts the build section into BVH options.
func (c *Config) BVHOptions() (bvh.Options, error) {
	split, err := bvh.ParseSplitPolicy(c.Build.Split)
	if err != nil {
		return bvh.Options{}, err
	}
	return bvh.Options{Split: split, MaxLeafTriangles: c.Build.MaxLeafTriangles}, nil
}

// Validate checks the settings that have no safe fallback.
func (c *Config) Validate() error {
	if c.Build.Jobs < 1 {
		return fmt.Errorf("%w: build.jobs must be at least 1", ErrInvalidConfig)
	}
	switch c.Build.Overwrite {
	case OverwriteReplace, OverwriteError, OverwriteSkip:
	default:
		return fmt.Errorf("%w: build.overwrite %q", ErrInvalidConfig, c.Build.Overwrite)
	}
	if _, err := c.BVHOptions(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := encoding.Lookup(c.Source.NameEncoding); err != nil {
		return fmt.Errorf("%w: source.name_encoding: %v", ErrInvalidConfig, err)
	}
	if err := c.MeshSettings().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Query.SearchExtent <= 0 {
		return fmt.Errorf("%w: query.search_extent must be positive", ErrInvalidConfig)
	}
	if c.Query.MaxSearchNodes < 1 {
		return fmt.Errorf("%w: query.max_search_nodes must be positive", ErrInvalidConfig)
	}
	if c.Cache.MaxTiles < 0 {
		return fmt.Errorf("%w: cache.max_tiles must not be negative", ErrInvalidConfig)
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("%w: logging.format %q", ErrInvalidConfig, c.Logging.Format)
	}
	return nil
}
