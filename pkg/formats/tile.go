package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Faultbox/midgard-nav/pkg/encoding"
)

// Tile format errors.
var (
	ErrInvalidTileMagic       = errors.New("invalid tile magic: expected 'NGTL'")
	ErrUnsupportedTileVersion = errors.New("unsupported tile version")
	ErrTruncatedTileData      = errors.New("truncated tile data")
	ErrInvalidTerrain         = errors.New("invalid terrain heightfield")
)

const tileMagic = "NGTL"

// TileVersion is the version written by EncodeTile.
var TileVersion = Version{Major: 1, Minor: 0}

// MaxTerrainQuads bounds the heightfield resolution per tile side.
const MaxTerrainQuads = 1024

// Heightfield is a regular grid of terrain vertex heights covering one tile.
// Quads is the number of quads per side; Heights has (Quads+1)^2 entries in
// row-major order with Y as the outer index.
type Heightfield struct {
	Quads    uint16
	Heights  []float32
	Holes    []byte // one bit per quad, row-major
	Material uint16
}

// Height returns the vertex height at grid position (i, j).
func (h *Heightfield) Height(i, j int) float32 {
	return h.Heights[j*(int(h.Quads)+1)+i]
}

// IsHole reports whether quad (i, j) is cut out of the terrain.
func (h *Heightfield) IsHole(i, j int) bool {
	bit := j*int(h.Quads) + i
	if bit/8 >= len(h.Holes) {
		return false
	}
	return h.Holes[bit/8]&(1<<(bit%8)) != 0
}

// SetHole marks quad (i, j) as a hole.
func (h *Heightfield) SetHole(i, j int) {
	n := int(h.Quads) * int(h.Quads)
	if len(h.Holes) < (n+7)/8 {
		holes := make([]byte, (n+7)/8)
		copy(holes, h.Holes)
		h.Holes = holes
	}
	bit := j*int(h.Quads) + i
	h.Holes[bit/8] |= 1 << (bit % 8)
}

// StaticTriangle is a collision triangle of static world geometry.
type StaticTriangle struct {
	Vertices [9]float32
	Material uint16
}

// Placement positions a model instance inside a tile.
type Placement struct {
	ID       uint32
	Model    string
	Position [3]float32
	Rotation [4]float32 // quaternion x, y, z, w
	Scale    float32
}

// Tile represents a parsed tile geometry file.
type Tile struct {
	Version    Version
	X, Y       int32
	Terrain    Heightfield
	Static     []StaticTriangle
	Placements []Placement
}

// ParseTile parses a tile geometry file from raw bytes.
// Model names are decoded with codec.
func ParseTile(data []byte, codec encoding.Codec) (*Tile, error) {
	if len(data) < 6 {
		return nil, ErrTruncatedTileData
	}
	if string(data[0:4]) != tileMagic {
		return nil, ErrInvalidTileMagic
	}

	version := readVersion(data)
	if version.Major != 1 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTileVersion, version)
	}

	r := bytes.NewReader(data[6:])
	tile := &Tile{Version: version}

	if err := binary.Read(r, binary.LittleEndian, &tile.X); err != nil {
		return nil, fmt.Errorf("%w: reading tile x", ErrTruncatedTileData)
	}
	if err := binary.Read(r, binary.LittleEndian, &tile.Y); err != nil {
		return nil, fmt.Errorf("%w: reading tile y", ErrTruncatedTileData)
	}

	if err := parseHeightfield(r, &tile.Terrain); err != nil {
		return nil, err
	}

	count, err := readCount(r, 38, ErrTruncatedTileData, "static triangles")
	if err != nil {
		return nil, err
	}
	tile.Static = make([]StaticTriangle, count)
	for i := range tile.Static {
		if err := binary.Read(r, binary.LittleEndian, &tile.Static[i]); err != nil {
			return nil, fmt.Errorf("%w: reading static triangle %d", ErrTruncatedTileData, i)
		}
	}

	count, err = readCount(r, 4+ModelNameSize+32, ErrTruncatedTileData, "placements")
	if err != nil {
		return nil, err
	}
	tile.Placements = make([]Placement, count)
	for i := range tile.Placements {
		p, err := parsePlacement(r, codec)
		if err != nil {
			return nil, fmt.Errorf("parsing placement %d: %w", i, err)
		}
		tile.Placements[i] = p
	}

	return tile, nil
}

func parseHeightfield(r *bytes.Reader, h *Heightfield) error {
	if err := binary.Read(r, binary.LittleEndian, &h.Quads); err != nil {
		return fmt.Errorf("%w: reading terrain resolution", ErrTruncatedTileData)
	}
	if h.Quads > MaxTerrainQuads {
		return fmt.Errorf("%w: %d quads per side", ErrInvalidTerrain, h.Quads)
	}
	if h.Quads == 0 {
		return nil
	}

	q := int(h.Quads)
	h.Heights = make([]float32, (q+1)*(q+1))
	if err := binary.Read(r, binary.LittleEndian, h.Heights); err != nil {
		return fmt.Errorf("%w: reading terrain heights", ErrTruncatedTileData)
	}
	h.Holes = make([]byte, (q*q+7)/8)
	if _, err := io.ReadFull(r, h.Holes); err != nil {
		return fmt.Errorf("%w: reading hole mask", ErrTruncatedTileData)
	}
	if err := binary.Read(r, binary.LittleEndian, &h.Material); err != nil {
		return fmt.Errorf("%w: reading terrain material", ErrTruncatedTileData)
	}
	return nil
}

func parsePlacement(r *bytes.Reader, codec encoding.Codec) (Placement, error) {
	var p Placement
	if err := binary.Read(r, binary.LittleEndian, &p.ID); err != nil {
		return p, fmt.Errorf("%w: reading id", ErrTruncatedTileData)
	}

	name := make([]byte, ModelNameSize)
	if _, err := io.ReadFull(r, name); err != nil {
		return p, fmt.Errorf("%w: reading model name", ErrTruncatedTileData)
	}
	p.Model = encoding.NormalizeModelPath(codec.DecodeFixed(name))

	if err := binary.Read(r, binary.LittleEndian, &p.Position); err != nil {
		return p, fmt.Errorf("%w: reading position", ErrTruncatedTileData)
	}
	if err := binary.Read(r, binary.LittleEndian, &p.Rotation); err != nil {
		return p, fmt.Errorf("%w: reading rotation", ErrTruncatedTileData)
	}
	if err := binary.Read(r, binary.LittleEndian, &p.Scale); err != nil {
		return p, fmt.Errorf("%w: reading scale", ErrTruncatedTileData)
	}
	return p, nil
}

// ParseTileFile parses a tile geometry file from disk.
func ParseTileFile(path string, codec encoding.Codec) (*Tile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tile file: %w", err)
	}
	return ParseTile(data, codec)
}

// EncodeTile serializes a tile in the current format version.
func EncodeTile(t *Tile, codec encoding.Codec) []byte {
	buf := new(bytes.Buffer)
	writeHeader(buf, tileMagic, TileVersion)

	binary.Write(buf, binary.LittleEndian, t.X)
	binary.Write(buf, binary.LittleEndian, t.Y)

	h := t.Terrain
	binary.Write(buf, binary.LittleEndian, h.Quads)
	if h.Quads > 0 {
		q := int(h.Quads)
		heights := make([]float32, (q+1)*(q+1))
		copy(heights, h.Heights)
		binary.Write(buf, binary.LittleEndian, heights)
		holes := make([]byte, (q*q+7)/8)
		copy(holes, h.Holes)
		buf.Write(holes)
		binary.Write(buf, binary.LittleEndian, h.Material)
	}

	binary.Write(buf, binary.LittleEndian, uint32(len(t.Static)))
	for _, tri := range t.Static {
		binary.Write(buf, binary.LittleEndian, tri)
	}

	binary.Write(buf, binary.LittleEndian, uint32(len(t.Placements)))
	for _, p := range t.Placements {
		binary.Write(buf, binary.LittleEndian, p.ID)
		buf.Write(codec.EncodeFixed(p.Model, ModelNameSize))
		binary.Write(buf, binary.LittleEndian, p.Position)
		binary.Write(buf, binary.LittleEndian, p.Rotation)
		binary.Write(buf, binary.LittleEndian, p.Scale)
	}

	return buf.Bytes()
}
