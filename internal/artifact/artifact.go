// Package artifact reads and writes the compiled navigation files. Every
// file starts with a fixed little-endian header followed by a
// zstd-compressed msgpack payload.
package artifact

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Faultbox/midgard-nav/internal/navmesh"
)

// Artifact errors.
var (
	ErrInvalidMagic       = errors.New("invalid artifact magic")
	ErrUnsupportedVersion = errors.New("unsupported artifact version")
	ErrWrongKind          = errors.New("unexpected artifact kind")
	ErrTruncated          = errors.New("truncated artifact")
	ErrCorrupt            = errors.New("corrupt artifact payload")
	ErrBuildMismatch      = errors.New("artifact from a different build")
)

// Magic identifies artifact files.
var Magic = [4]byte{'N', 'A', 'V', 'A'}

// Version is the current artifact format version.
const Version uint16 = 1

// maxPayload bounds the decompressed payload size accepted from a header.
const maxPayload = 1 << 30

// Kind tags what an artifact holds.
type Kind uint8

// Artifact kinds.
const (
	KindTile  Kind = 1
	KindMap   Kind = 2
	KindModel Kind = 3
	KindIndex Kind = 4
)

func (k Kind) String() string {
	switch k {
	case KindTile:
		return "tile"
	case KindMap:
		return "map"
	case KindModel:
		return "model"
	case KindIndex:
		return "index"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Header precedes every payload.
type Header struct {
	Magic    [4]byte
	Version  uint16
	Kind     Kind
	Reserved uint8
	X, Y     int32
	BuildID  [16]byte
	RawSize  uint32
}

// HeaderSize is the encoded size of Header.
const HeaderSize = 4 + 2 + 1 + 1 + 4 + 4 + 16 + 4

// Coord returns the tile coordinate stored in the header.
func (h *Header) Coord() navmesh.TileCoord {
	return navmesh.TileCoord{X: h.X, Y: h.Y}
}

// Build returns the build id stored in the header.
func (h *Header) Build() uuid.UUID {
	return uuid.UUID(h.BuildID)
}

var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	// EncodeAll and DecodeAll are safe for concurrent use.
	encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(err)
	}
	decoder, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic(err)
	}
}

// marshal encodes v with structs as arrays, which keeps vectors compact.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseArrayEncodedStructs(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes header and payload to w and returns the bytes written.
func Encode(w io.Writer, kind Kind, coord navmesh.TileCoord, build uuid.UUID, payload any) (int64, error) {
	raw, err := marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode %s payload: %w", kind, err)
	}

	h := Header{
		Magic:   Magic,
		Version: Version,
		Kind:    kind,
		X:       coord.X,
		Y:       coord.Y,
		BuildID: build,
		RawSize: uint32(len(raw)),
	}
	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	compressed := encoder.EncodeAll(raw, nil)
	n, err := w.Write(compressed)
	if err != nil {
		return 0, fmt.Errorf("write payload: %w", err)
	}
	return int64(HeaderSize + n), nil
}

// ReadHeader reads and validates the header.
func ReadHeader(r io.Reader) (Header, error) {
	var h Header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return h, ErrTruncated
		}
		return h, fmt.Errorf("read header: %w", err)
	}
	if h.Magic != Magic {
		return h, fmt.Errorf("%w: got %q", ErrInvalidMagic, h.Magic[:])
	}
	if h.Version != Version {
		return h, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	return h, nil
}

// Decode reads an artifact of the given kind into v.
func Decode(r io.Reader, kind Kind, v any) (Header, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return h, err
	}
	if h.Kind != kind {
		return h, fmt.Errorf("%w: got %s, want %s", ErrWrongKind, h.Kind, kind)
	}
	if h.RawSize > maxPayload {
		return h, fmt.Errorf("%w: payload size %d", ErrCorrupt, h.RawSize)
	}

	compressed, err := io.ReadAll(r)
	if err != nil {
		return h, fmt.Errorf("read payload: %w", err)
	}
	if len(compressed) == 0 {
		return h, ErrTruncated
	}
	raw, err := decoder.DecodeAll(compressed, make([]byte, 0, h.RawSize))
	if err != nil {
		return h, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if uint32(len(raw)) != h.RawSize {
		return h, fmt.Errorf("%w: payload is %d bytes, header says %d", ErrCorrupt, len(raw), h.RawSize)
	}
	if err := msgpack.Unmarshal(raw, v); err != nil {
		return h, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return h, nil
}
