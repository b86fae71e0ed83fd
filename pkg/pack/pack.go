// Package pack reads and writes source data archives (.pak).
//
// An archive is a header, the zlib-compressed file bodies, and a
// zlib-compressed file table at the end:
//
//	header   magic[8] version:u32 tableOffset:u32 fileCount:u32
//	bodies   ...
//	table    compressedSize:u32 uncompressedSize:u32 zlib(entries)
//	entry    name\0 compressedSize:u32 uncompressedSize:u32 flags:u8 offset:u32
//
// Offsets are relative to the end of the header. Reads use ReadAt, so an
// Archive may be shared by concurrent build workers.
package pack

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/klauspost/compress/zlib"

	"github.com/Faultbox/midgard-nav/pkg/encoding"
)

const (
	packMagic   = "NAVPACK\x00"
	packVersion = 1
	headerSize  = 20
	entrySize   = 13
)

// Entry flags.
const (
	FlagFile       uint8 = 0x01
	FlagCompressed uint8 = 0x02
)

// Pack format errors.
var (
	ErrInvalidMagic       = errors.New("invalid pack magic")
	ErrUnsupportedVersion = errors.New("unsupported pack version")
	ErrTruncated          = errors.New("truncated pack data")
	ErrNotFound           = errors.New("file not found in pack")
)

// Header contains archive header information.
type Header struct {
	Magic       [8]byte
	Version     uint32
	TableOffset uint32
	FileCount   uint32
}

// Entry represents a file entry in the archive.
type Entry struct {
	Name             string
	CompressedSize   uint32
	UncompressedSize uint32
	Flags            uint8
	Offset           uint32
}

// Archive represents an opened pack.
type Archive struct {
	file     *os.File
	path     string
	header   Header
	fileList map[string]*Entry
}

// Open opens a pack archive for reading.
func Open(path string) (*Archive, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pack: %w", err)
	}

	archive := &Archive{
		file:     file,
		path:     path,
		fileList: make(map[string]*Entry),
	}

	if err := archive.readHeader(); err != nil {
		file.Close()
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}

	if err := archive.readFileTable(); err != nil {
		file.Close()
		return nil, fmt.Errorf("reading file table of %s: %w", path, err)
	}

	return archive, nil
}

// Close closes the archive.
func (a *Archive) Close() error {
	if a.file != nil {
		return a.file.Close()
	}
	return nil
}

// Path returns the file system path the archive was opened from.
func (a *Archive) Path() string {
	return a.path
}

func (a *Archive) readHeader() error {
	r := io.NewSectionReader(a.file, 0, headerSize)
	if err := binary.Read(r, binary.LittleEndian, &a.header); err != nil {
		return fmt.Errorf("%w: header", ErrTruncated)
	}
	if string(a.header.Magic[:]) != packMagic {
		return ErrInvalidMagic
	}
	if a.header.Version != packVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, a.header.Version)
	}
	return nil
}

func (a *Archive) readFileTable() error {
	tableOffset := int64(a.header.TableOffset) + headerSize

	var sizes [8]byte
	if _, err := a.file.ReadAt(sizes[:], tableOffset); err != nil {
		return fmt.Errorf("%w: table sizes", ErrTruncated)
	}
	compressedSize := binary.LittleEndian.Uint32(sizes[0:])
	uncompressedSize := binary.LittleEndian.Uint32(sizes[4:])

	compressedData := make([]byte, compressedSize)
	if _, err := a.file.ReadAt(compressedData, tableOffset+8); err != nil {
		return fmt.Errorf("%w: table body", ErrTruncated)
	}

	tableData, err := inflate(compressedData, uncompressedSize)
	if err != nil {
		return fmt.Errorf("decompressing table: %w", err)
	}

	offset := 0
	for i := uint32(0); i < a.header.FileCount; i++ {
		nameEnd := bytes.IndexByte(tableData[offset:], 0)
		if nameEnd < 0 {
			return fmt.Errorf("%w: entry %d name", ErrTruncated, i)
		}
		name := string(tableData[offset : offset+nameEnd])
		offset += nameEnd + 1

		if offset+entrySize > len(tableData) {
			return fmt.Errorf("%w: entry %d", ErrTruncated, i)
		}

		entry := &Entry{
			Name:             encoding.NormalizeModelPath(name),
			CompressedSize:   binary.LittleEndian.Uint32(tableData[offset:]),
			UncompressedSize: binary.LittleEndian.Uint32(tableData[offset+4:]),
			Flags:            tableData[offset+8],
			Offset:           binary.LittleEndian.Uint32(tableData[offset+9:]),
		}
		offset += entrySize

		if entry.Flags&FlagFile != 0 {
			a.fileList[entry.Name] = entry
		}
	}

	return nil
}

// List returns all file paths in the archive, sorted.
func (a *Archive) List() []string {
	result := make([]string, 0, len(a.fileList))
	for path := range a.fileList {
		result = append(result, path)
	}
	sort.Strings(result)
	return result
}

// Contains checks if a file exists.
func (a *Archive) Contains(path string) bool {
	_, ok := a.fileList[encoding.NormalizeModelPath(path)]
	return ok
}

// Stat returns the table entry of a file.
func (a *Archive) Stat(path string) (Entry, bool) {
	entry, ok := a.fileList[encoding.NormalizeModelPath(path)]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// Read reads a file from the archive.
func (a *Archive) Read(path string) ([]byte, error) {
	entry, ok := a.fileList[encoding.NormalizeModelPath(path)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	data := make([]byte, entry.CompressedSize)
	if _, err := a.file.ReadAt(data, int64(entry.Offset)+headerSize); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTruncated, path)
	}

	if entry.Flags&FlagCompressed == 0 {
		return data, nil
	}
	out, err := inflate(data, entry.UncompressedSize)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", path, err)
	}
	return out, nil
}

func inflate(data []byte, size uint32) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	result := make([]byte, size)
	if _, err := io.ReadFull(reader, result); err != nil {
		return nil, fmt.Errorf("%w: inflated body", ErrTruncated)
	}
	return result, nil
}
