package formats

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Faultbox/midgard-nav/pkg/encoding"
)

// createTestTile builds a small tile with a 2x2 terrain grid, one hole, one
// static triangle and one placement.
func createTestTile() *Tile {
	t := &Tile{
		X: 31,
		Y: 32,
		Terrain: Heightfield{
			Quads:    2,
			Heights:  []float32{0, 1, 2, 3, 4, 5, 6, 7, 8},
			Material: 3,
		},
		Static: []StaticTriangle{
			{Vertices: [9]float32{0, 0, 10, 1, 0, 10, 0, 1, 10}, Material: 1},
		},
		Placements: []Placement{
			{ID: 42, Model: "world/crate.gmd", Position: [3]float32{5, 6, 7}, Rotation: [4]float32{0, 0, 0, 1}, Scale: 1.5},
		},
	}
	t.Terrain.SetHole(1, 0)
	return t
}

func TestParseTile_RoundTrip(t *testing.T) {
	codec, _ := encoding.Lookup(encoding.UTF8)
	data := EncodeTile(createTestTile(), codec)

	tile, err := ParseTile(data, codec)
	if err != nil {
		t.Fatalf("ParseTile failed: %v", err)
	}

	if tile.Version != TileVersion {
		t.Errorf("expected version %s, got %s", TileVersion, tile.Version)
	}
	if tile.X != 31 || tile.Y != 32 {
		t.Errorf("expected tile (31,32), got (%d,%d)", tile.X, tile.Y)
	}
	if tile.Terrain.Quads != 2 {
		t.Fatalf("expected 2 quads, got %d", tile.Terrain.Quads)
	}
	if h := tile.Terrain.Height(2, 1); h != 5 {
		t.Errorf("expected height 5 at (2,1), got %v", h)
	}
	if !tile.Terrain.IsHole(1, 0) {
		t.Error("expected hole at (1,0)")
	}
	if tile.Terrain.IsHole(0, 0) || tile.Terrain.IsHole(1, 1) {
		t.Error("unexpected hole")
	}
	if tile.Terrain.Material != 3 {
		t.Errorf("expected terrain material 3, got %d", tile.Terrain.Material)
	}
	if len(tile.Static) != 1 || tile.Static[0].Material != 1 || tile.Static[0].Vertices[2] != 10 {
		t.Errorf("static triangles not preserved: %+v", tile.Static)
	}
	if len(tile.Placements) != 1 {
		t.Fatalf("expected 1 placement, got %d", len(tile.Placements))
	}
	p := tile.Placements[0]
	if p.ID != 42 || p.Model != "world/crate.gmd" || p.Scale != 1.5 || p.Position[2] != 7 {
		t.Errorf("placement not preserved: %+v", p)
	}
}

func TestParseTile_LegacyNames(t *testing.T) {
	codec, _ := encoding.Lookup(encoding.EUCKR)
	tile := createTestTile()
	tile.Placements[0].Model = `World\상자.gmd`

	parsed, err := ParseTile(EncodeTile(tile, codec), codec)
	if err != nil {
		t.Fatalf("ParseTile failed: %v", err)
	}
	if got := parsed.Placements[0].Model; got != "world/상자.gmd" {
		t.Errorf("expected decoded, normalized name, got %q", got)
	}
}

func TestParseTile_NoTerrain(t *testing.T) {
	codec, _ := encoding.Lookup("")
	tile, err := ParseTile(EncodeTile(&Tile{X: 1, Y: 2}, codec), codec)
	if err != nil {
		t.Fatalf("ParseTile failed: %v", err)
	}
	if tile.Terrain.Quads != 0 || len(tile.Terrain.Heights) != 0 {
		t.Errorf("expected empty terrain, got %+v", tile.Terrain)
	}
}

func TestParseTile_Errors(t *testing.T) {
	codec, _ := encoding.Lookup("")
	valid := EncodeTile(createTestTile(), codec)

	badVersion := append([]byte{}, valid...)
	badVersion[5] = 9

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"too short", []byte("NGT"), ErrTruncatedTileData},
		{"bad magic", append([]byte("XXXX"), valid[4:]...), ErrInvalidTileMagic},
		{"bad version", badVersion, ErrUnsupportedTileVersion},
		{"truncated heights", valid[:20], ErrTruncatedTileData},
		{"truncated placements", valid[:len(valid)-3], ErrTruncatedTileData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTile(tt.data, codec)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestParseTile_CountOverflow(t *testing.T) {
	codec, _ := encoding.Lookup("")
	data := EncodeTile(&Tile{}, codec)
	// Static triangle count sits right after the 2-byte terrain resolution.
	off := 6 + 8 + 2
	data[off], data[off+1], data[off+2], data[off+3] = 0xFF, 0xFF, 0xFF, 0x7F
	if _, err := ParseTile(data, codec); !errors.Is(err, ErrTruncatedTileData) {
		t.Errorf("expected ErrTruncatedTileData, got %v", err)
	}
}

func TestParseTileFile(t *testing.T) {
	codec, _ := encoding.Lookup("")
	path := filepath.Join(t.TempDir(), "31_32.gtl")
	if err := os.WriteFile(path, EncodeTile(createTestTile(), codec), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ParseTileFile(path, codec); err != nil {
		t.Errorf("ParseTileFile failed: %v", err)
	}
	if _, err := ParseTileFile(filepath.Join(t.TempDir(), "missing.gtl"), codec); err == nil {
		t.Error("expected error for missing file")
	}
}
