package formats

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
)

// ErrBadPlacementFormat is returned when a placement or display table cannot
// be parsed. The whole file is rejected.
var ErrBadPlacementFormat = errors.New("bad placement format")

// PlacementFields is the number of columns in a placement row.
const PlacementFields = 10

// PlacementRecord is one dynamic object placement row:
// guid, display id, map id, position and rotation quaternion.
type PlacementRecord struct {
	GUID      uint64  `csv:"guid"`
	DisplayID uint32  `csv:"display_id"`
	MapID     uint32  `csv:"map_id"`
	X         float32 `csv:"x"`
	Y         float32 `csv:"y"`
	Z         float32 `csv:"z"`
	QX        float32 `csv:"qx"`
	QY        float32 `csv:"qy"`
	QZ        float32 `csv:"qz"`
	QW        float32 `csv:"qw"`
}

// ParsePlacements reads a headerless placement CSV and keeps only rows for
// mapID.
func ParsePlacements(r io.Reader, mapID uint32) ([]PlacementRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = PlacementFields
	reader.TrimLeadingSpace = true

	var rows []PlacementRecord
	if err := gocsv.UnmarshalCSVWithoutHeaders(reader, &rows); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrBadPlacementFormat, err)
	}

	kept := rows[:0]
	for _, row := range rows {
		if row.MapID == mapID {
			kept = append(kept, row)
		}
	}
	return kept, nil
}

// EncodePlacements writes rows as a headerless placement CSV.
func EncodePlacements(w io.Writer, rows []PlacementRecord) error {
	return gocsv.MarshalWithoutHeaders(&rows, w)
}

// DisplayRecord maps a display id to a model path (models/display.csv).
type DisplayRecord struct {
	ID    uint32 `csv:"id"`
	Model string `csv:"model"`
}

// ParseDisplayTable reads the display table (with header row).
func ParseDisplayTable(r io.Reader) (map[uint32]string, error) {
	var rows []DisplayRecord
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return map[uint32]string{}, nil
		}
		return nil, fmt.Errorf("%w: display table: %v", ErrBadPlacementFormat, err)
	}
	table := make(map[uint32]string, len(rows))
	for _, row := range rows {
		table[row.ID] = row.Model
	}
	return table, nil
}

// EncodeDisplayTable writes the display table with a header row.
func EncodeDisplayTable(w io.Writer, rows []DisplayRecord) error {
	return gocsv.Marshal(&rows, w)
}
