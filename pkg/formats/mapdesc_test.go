package formats

import (
	"errors"
	"testing"
)

func TestParseMapDescriptor(t *testing.T) {
	data := []byte(`
name: Azeroth
id: 0
default_zone: 12
tile_zones:
  - {x: 28, y: 30, zone: 1519, area: 0}
`)
	d, err := ParseMapDescriptor(data)
	if err != nil {
		t.Fatalf("ParseMapDescriptor failed: %v", err)
	}
	if d.Name != "Azeroth" {
		t.Errorf("expected name Azeroth, got %q", d.Name)
	}
	if d.TileSize != DefaultTileSize {
		t.Errorf("expected default tile size, got %v", d.TileSize)
	}
	if z, a := d.ZoneOf(28, 30); z != 1519 || a != 0 {
		t.Errorf("ZoneOf(28,30) = (%d,%d), want (1519,0)", z, a)
	}
	if z, _ := d.ZoneOf(1, 1); z != 12 {
		t.Errorf("ZoneOf(1,1) zone = %d, want 12", z)
	}
}

func TestParseMapDescriptor_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing name", "id: 3\n"},
		{"negative tile size", "name: x\ntile_size: -1\n"},
		{"not yaml", "name: [unterminated\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMapDescriptor([]byte(tt.data)); !errors.Is(err, ErrInvalidMapDescriptor) {
				t.Errorf("expected ErrInvalidMapDescriptor, got %v", err)
			}
		})
	}
}

func TestEncodeMapDescriptor(t *testing.T) {
	in := &MapDescriptor{Name: "Kalimdor", ID: 1, TileSize: 32, DefaultZone: 14}
	data, err := EncodeMapDescriptor(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := ParseMapDescriptor(data)
	if err != nil {
		t.Fatal(err)
	}
	if out.Name != in.Name || out.ID != in.ID || out.TileSize != 32 || out.DefaultZone != 14 {
		t.Errorf("descriptor not preserved: %+v", out)
	}
}
