package pack

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/klauspost/compress/zlib"

	"github.com/Faultbox/midgard-nav/pkg/encoding"
)

// Writer builds a pack archive. Files are buffered and written on Close.
type Writer struct {
	path  string
	files map[string][]byte
}

// NewWriter creates a writer that produces an archive at path.
func NewWriter(path string) *Writer {
	return &Writer{path: path, files: make(map[string][]byte)}
}

// Add stages a file. Adding the same name twice keeps the last body.
func (w *Writer) Add(name string, data []byte) {
	w.files[encoding.NormalizeModelPath(name)] = data
}

// Close writes the archive to disk.
func (w *Writer) Close() error {
	names := make([]string, 0, len(w.files))
	for name := range w.files {
		names = append(names, name)
	}
	sort.Strings(names)

	var body, table bytes.Buffer
	for _, name := range names {
		content := w.files[name]
		compressed, err := deflate(content)
		if err != nil {
			return fmt.Errorf("compressing %s: %w", name, err)
		}

		flags := FlagFile
		stored := content
		if len(compressed) < len(content) {
			flags |= FlagCompressed
			stored = compressed
		}

		table.WriteString(name)
		table.WriteByte(0)
		binary.Write(&table, binary.LittleEndian, uint32(len(stored)))
		binary.Write(&table, binary.LittleEndian, uint32(len(content)))
		table.WriteByte(flags)
		binary.Write(&table, binary.LittleEndian, uint32(body.Len()))

		body.Write(stored)
	}

	compressedTable, err := deflate(table.Bytes())
	if err != nil {
		return fmt.Errorf("compressing table: %w", err)
	}

	var out bytes.Buffer
	header := Header{
		Version:     packVersion,
		TableOffset: uint32(body.Len()),
		FileCount:   uint32(len(names)),
	}
	copy(header.Magic[:], packMagic)
	binary.Write(&out, binary.LittleEndian, header)
	out.Write(body.Bytes())
	binary.Write(&out, binary.LittleEndian, uint32(len(compressedTable)))
	binary.Write(&out, binary.LittleEndian, uint32(table.Len()))
	out.Write(compressedTable)

	return os.WriteFile(w.path, out.Bytes(), 0644)
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
