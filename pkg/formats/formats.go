// Package formats provides parsers and encoders for the world source files
// consumed by the navigation build: tile geometry (.gtl), models (.gmd),
// map descriptors, region definitions and placement tables.
package formats

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Version represents a binary file version stored as [minor, major].
type Version struct {
	Major uint8
	Minor uint8
}

// String returns the version as "Major.Minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// DefaultTileSize is the world-space edge length of a tile when the map
// descriptor does not override it.
const DefaultTileSize float32 = 533.33333

// ModelNameSize is the fixed width of model name fields in tile files.
const ModelNameSize = 64

func readVersion(data []byte) Version {
	return Version{Major: data[5], Minor: data[4]}
}

func writeHeader(buf *bytes.Buffer, magic string, v Version) {
	buf.WriteString(magic)
	buf.WriteByte(v.Minor)
	buf.WriteByte(v.Major)
}

// readCount reads a uint32 element count and checks that the remaining data
// can hold count elements of elemSize bytes.
func readCount(r *bytes.Reader, elemSize int, truncated error, what string) (int, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return 0, fmt.Errorf("%w: reading %s count", truncated, what)
	}
	if int64(count)*int64(elemSize) > int64(r.Len()) {
		return 0, fmt.Errorf("%w: %d %s declared, %d bytes left", truncated, count, what, r.Len())
	}
	return int(count), nil
}
