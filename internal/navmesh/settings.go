package navmesh

import (
	"errors"
	"fmt"
	gomath "math"
)

// ErrInvalidSettings is returned for settings that cannot produce a mesh.
var ErrInvalidSettings = errors.New("invalid navmesh settings")

// Settings controls fragment compilation.
type Settings struct {
	CellsPerTile  int32   `msgpack:"cells_per_tile"`
	AgentRadius   float32 `msgpack:"agent_radius"`
	AgentHeight   float32 `msgpack:"agent_height"`
	WalkableClimb float32 `msgpack:"walkable_climb"`
	WalkableSlope float32 `msgpack:"walkable_slope"` // degrees
	HeightEpsilon float32 `msgpack:"height_epsilon"`
	MaxPolyCells  int32   `msgpack:"max_poly_cells"`
	DetailRefine  float32 `msgpack:"detail_refine"`
}

// DefaultSettings returns the standard compilation settings.
func DefaultSettings() Settings {
	return Settings{
		CellsPerTile:  512,
		AgentRadius:   0.3,
		AgentHeight:   1.6,
		WalkableClimb: 1.0,
		WalkableSlope: 50,
		HeightEpsilon: 0.05,
		MaxPolyCells:  32,
		DetailRefine:  1.0,
	}
}

// Validate checks that every field is in range.
func (s Settings) Validate() error {
	switch {
	case s.CellsPerTile < 1:
		return fmt.Errorf("%w: cells_per_tile must be positive", ErrInvalidSettings)
	case s.AgentRadius < 0:
		return fmt.Errorf("%w: agent_radius must not be negative", ErrInvalidSettings)
	case s.AgentHeight <= 0:
		return fmt.Errorf("%w: agent_height must be positive", ErrInvalidSettings)
	case s.WalkableClimb < 0:
		return fmt.Errorf("%w: walkable_climb must not be negative", ErrInvalidSettings)
	case s.WalkableSlope <= 0 || s.WalkableSlope >= 90:
		return fmt.Errorf("%w: walkable_slope must be in (0, 90)", ErrInvalidSettings)
	case s.HeightEpsilon < 0:
		return fmt.Errorf("%w: height_epsilon must not be negative", ErrInvalidSettings)
	case s.MaxPolyCells < 1:
		return fmt.Errorf("%w: max_poly_cells must be positive", ErrInvalidSettings)
	case s.DetailRefine < 0:
		return fmt.Errorf("%w: detail_refine must not be negative", ErrInvalidSettings)
	}
	return nil
}

// CellSize returns the cell edge length for tiles of the given size.
func (s Settings) CellSize(tileSize float32) float32 {
	return tileSize / float32(s.CellsPerTile)
}

// minNormalZ is the smallest normal Z component a walkable surface may have.
func (s Settings) minNormalZ() float32 {
	return float32(gomath.Cos(float64(s.WalkableSlope) * gomath.Pi / 180))
}

// erosionCells is the number of cells trimmed from walkable boundaries.
func (s Settings) erosionCells(cellSize float32) int32 {
	if s.AgentRadius <= 0 {
		return 0
	}
	return int32(gomath.Ceil(float64(s.AgentRadius / cellSize)))
}
