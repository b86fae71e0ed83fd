package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

// Model format errors.
var (
	ErrInvalidModelMagic       = errors.New("invalid model magic: expected 'NGMD'")
	ErrUnsupportedModelVersion = errors.New("unsupported model version")
	ErrTruncatedModelData      = errors.New("truncated model data")
	ErrInvalidModelIndex       = errors.New("model index out of range")
)

const modelMagic = "NGMD"

// ModelVersion is the version written by EncodeModel.
var ModelVersion = Version{Major: 1, Minor: 0}

// Model is an indexed collision mesh in model space.
type Model struct {
	Version   Version
	Vertices  [][3]float32
	Indices   [][3]uint32
	Materials []uint16 // one per triangle
}

// TriangleCount returns the number of triangles.
func (m *Model) TriangleCount() int {
	return len(m.Indices)
}

// ParseModel parses a model file from raw bytes.
func ParseModel(data []byte) (*Model, error) {
	if len(data) < 6 {
		return nil, ErrTruncatedModelData
	}
	if string(data[0:4]) != modelMagic {
		return nil, ErrInvalidModelMagic
	}

	version := readVersion(data)
	if version.Major != 1 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedModelVersion, version)
	}

	r := bytes.NewReader(data[6:])
	model := &Model{Version: version}

	count, err := readCount(r, 12, ErrTruncatedModelData, "vertices")
	if err != nil {
		return nil, err
	}
	model.Vertices = make([][3]float32, count)
	if err := binary.Read(r, binary.LittleEndian, model.Vertices); err != nil {
		return nil, fmt.Errorf("%w: reading vertices", ErrTruncatedModelData)
	}

	count, err = readCount(r, 14, ErrTruncatedModelData, "triangles")
	if err != nil {
		return nil, err
	}
	model.Indices = make([][3]uint32, count)
	model.Materials = make([]uint16, count)
	for i := 0; i < count; i++ {
		if err := binary.Read(r, binary.LittleEndian, &model.Indices[i]); err != nil {
			return nil, fmt.Errorf("%w: reading triangle %d", ErrTruncatedModelData, i)
		}
		if err := binary.Read(r, binary.LittleEndian, &model.Materials[i]); err != nil {
			return nil, fmt.Errorf("%w: reading material %d", ErrTruncatedModelData, i)
		}
		for _, idx := range model.Indices[i] {
			if int(idx) >= len(model.Vertices) {
				return nil, fmt.Errorf("%w: triangle %d references vertex %d of %d",
					ErrInvalidModelIndex, i, idx, len(model.Vertices))
			}
		}
	}

	return model, nil
}

// ParseModelFile parses a model file from disk.
func ParseModelFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model file: %w", err)
	}
	return ParseModel(data)
}

// EncodeModel serializes a model in the current format version.
func EncodeModel(m *Model) []byte {
	buf := new(bytes.Buffer)
	writeHeader(buf, modelMagic, ModelVersion)

	binary.Write(buf, binary.LittleEndian, uint32(len(m.Vertices)))
	binary.Write(buf, binary.LittleEndian, m.Vertices)

	binary.Write(buf, binary.LittleEndian, uint32(len(m.Indices)))
	for i, tri := range m.Indices {
		binary.Write(buf, binary.LittleEndian, tri)
		var material uint16
		if i < len(m.Materials) {
			material = m.Materials[i]
		}
		binary.Write(buf, binary.LittleEndian, material)
	}

	return buf.Bytes()
}
