package formats

import (
	"errors"
	"fmt"

	"github.com/hjson/hjson-go/v4"
)

// ErrInvalidRegion is returned for region definitions that cannot be used.
var ErrInvalidRegion = errors.New("invalid region definition")

// RegionDef is an authoritative zone/area region: an XY polygon with an
// optional elevation band. Area 0 means the region defines no finer area.
type RegionDef struct {
	Name     string       `json:"name"`
	Zone     uint32       `json:"zone"`
	Area     uint32       `json:"area"`
	Priority int32        `json:"priority"`
	MinZ     *float32     `json:"min_z"`
	MaxZ     *float32     `json:"max_z"`
	Polygon  [][2]float32 `json:"polygon"`
}

// RegionFile is the top-level layout of areas.hjson.
type RegionFile struct {
	Regions []RegionDef `json:"regions"`
}

// ParseRegions parses region definitions from Hjson (or plain JSON).
func ParseRegions(data []byte) ([]RegionDef, error) {
	var file RegionFile
	if err := hjson.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegion, err)
	}
	for i, r := range file.Regions {
		if r.Zone == 0 {
			return nil, fmt.Errorf("%w: region %d (%s) has no zone", ErrInvalidRegion, i, r.Name)
		}
		if len(r.Polygon) < 3 {
			return nil, fmt.Errorf("%w: region %d (%s) polygon has %d points",
				ErrInvalidRegion, i, r.Name, len(r.Polygon))
		}
		if r.MinZ != nil && r.MaxZ != nil && *r.MinZ > *r.MaxZ {
			return nil, fmt.Errorf("%w: region %d (%s) band %v > %v",
				ErrInvalidRegion, i, r.Name, *r.MinZ, *r.MaxZ)
		}
	}
	return file.Regions, nil
}
