package formats

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrInvalidMapDescriptor is returned for descriptors that parse but cannot
// describe a buildable map.
var ErrInvalidMapDescriptor = errors.New("invalid map descriptor")

// TileZone overrides the default zone and area of one tile.
type TileZone struct {
	X    int32  `yaml:"x"`
	Y    int32  `yaml:"y"`
	Zone uint32 `yaml:"zone"`
	Area uint32 `yaml:"area"`
}

// MapDescriptor describes a map in the source tree (maps/<name>/map.yaml).
type MapDescriptor struct {
	Name        string     `yaml:"name"`
	ID          uint32     `yaml:"id"`
	TileSize    float32    `yaml:"tile_size"`
	DefaultZone uint32     `yaml:"default_zone"`
	DefaultArea uint32     `yaml:"default_area"`
	TileZones   []TileZone `yaml:"tile_zones"`
}

// ParseMapDescriptor parses a YAML map descriptor and fills defaults.
func ParseMapDescriptor(data []byte) (*MapDescriptor, error) {
	d := &MapDescriptor{}
	if err := yaml.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMapDescriptor, err)
	}
	if d.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrInvalidMapDescriptor)
	}
	if d.TileSize == 0 {
		d.TileSize = DefaultTileSize
	}
	if d.TileSize < 0 {
		return nil, fmt.Errorf("%w: tile_size %v", ErrInvalidMapDescriptor, d.TileSize)
	}
	return d, nil
}

// EncodeMapDescriptor serializes a descriptor to YAML.
func EncodeMapDescriptor(d *MapDescriptor) ([]byte, error) {
	return yaml.Marshal(d)
}

// ZoneOf returns the default zone and area for tile (x, y).
func (d *MapDescriptor) ZoneOf(x, y int32) (zone, area uint32) {
	for _, tz := range d.TileZones {
		if tz.X == x && tz.Y == y {
			return tz.Zone, tz.Area
		}
	}
	return d.DefaultZone, d.DefaultArea
}
