package formats

import (
	"errors"
	"testing"
)

func createTestModel() *Model {
	return &Model{
		Vertices: [][3]float32{
			{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
		},
		Indices:   [][3]uint32{{0, 1, 2}, {0, 2, 3}},
		Materials: []uint16{0, 4},
	}
}

func TestParseModel_RoundTrip(t *testing.T) {
	m, err := ParseModel(EncodeModel(createTestModel()))
	if err != nil {
		t.Fatalf("ParseModel failed: %v", err)
	}
	if len(m.Vertices) != 4 {
		t.Errorf("expected 4 vertices, got %d", len(m.Vertices))
	}
	if m.TriangleCount() != 2 {
		t.Errorf("expected 2 triangles, got %d", m.TriangleCount())
	}
	if m.Indices[1] != [3]uint32{0, 2, 3} {
		t.Errorf("unexpected indices %v", m.Indices[1])
	}
	if m.Materials[1] != 4 {
		t.Errorf("expected material 4, got %d", m.Materials[1])
	}
}

func TestParseModel_Errors(t *testing.T) {
	bad := createTestModel()
	bad.Indices[0] = [3]uint32{0, 1, 9}
	valid := EncodeModel(createTestModel())

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"short", []byte("NG"), ErrTruncatedModelData},
		{"magic", append([]byte("GRAT"), valid[4:]...), ErrInvalidModelMagic},
		{"index", EncodeModel(bad), ErrInvalidModelIndex},
		{"truncated", valid[:len(valid)-1], ErrTruncatedModelData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseModel(tt.data); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
