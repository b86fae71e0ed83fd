package build

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-nav/internal/navmesh"
	"github.com/Faultbox/midgard-nav/internal/source"
	"github.com/Faultbox/midgard-nav/pkg/formats"
)

// loadObjects reads the placement CSV and assigns every object on mapID to
// each tile its world bounds overlap. Rows whose display id or model cannot
// be resolved are logged and dropped; a malformed file fails the build.
func (b *Builder) loadObjects(src *source.Source, path string, mapID uint32, grid navmesh.Grid, models source.ModelProvider) (map[navmesh.TileCoord][]source.Instance, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening placements: %w", err)
	}
	defer f.Close()

	rows, err := formats.ParsePlacements(f, mapID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	display, err := src.DisplayTable()
	if err != nil {
		return nil, err
	}

	byTile := make(map[navmesh.TileCoord][]source.Instance)
	for _, row := range rows {
		model, ok := display[row.DisplayID]
		if !ok {
			b.log.Warn("dropping object with unknown display id",
				zap.Uint64("guid", row.GUID), zap.Uint32("display_id", row.DisplayID))
			continue
		}
		inst := source.RecordInstance(row, model)
		local, err := models.ModelTriangles(model)
		if err != nil {
			b.log.Warn("dropping object", zap.Uint64("guid", row.GUID), zap.Error(err))
			continue
		}
		box := source.InstanceBounds(inst, local)
		if box.IsEmpty() {
			continue
		}
		for _, c := range grid.TilesInRect(box.Min.XY(), box.Max.XY()) {
			byTile[c] = append(byTile[c], inst)
		}
	}
	b.log.Debug("objects placed", zap.Int("rows", len(rows)), zap.Int("tiles", len(byTile)))
	return byTile, nil
}
