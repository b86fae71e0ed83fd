// Package encoding decodes the fixed-width model names stored in source
// geometry files. Exporters write names in whatever code page the game
// client used, so the decoder is chosen by configuration.
package encoding

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

// Supported code page names.
const (
	UTF8        = "utf-8"
	EUCKR       = "euc-kr"
	Windows1252 = "windows-1252"
)

// Codec converts between a legacy code page and UTF-8.
type Codec struct {
	name string
	enc  encoding.Encoding // nil for UTF-8
}

// Lookup returns the codec for a code page name. An empty name means UTF-8.
func Lookup(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", UTF8, "utf8":
		return Codec{name: UTF8}, nil
	case EUCKR, "euckr", "cp949":
		return Codec{name: EUCKR, enc: korean.EUCKR}, nil
	case Windows1252, "cp1252", "latin1":
		return Codec{name: Windows1252, enc: charmap.Windows1252}, nil
	default:
		return Codec{}, fmt.Errorf("unknown name encoding %q", name)
	}
}

// Name returns the canonical code page name.
func (c Codec) Name() string {
	if c.name == "" {
		return UTF8
	}
	return c.name
}

// Decode converts encoded bytes to a UTF-8 string.
// Returns the input unchanged if conversion fails.
func (c Codec) Decode(data []byte) string {
	if c.enc == nil {
		return string(data)
	}
	result, _, err := transform.Bytes(c.enc.NewDecoder(), data)
	if err != nil {
		return string(data)
	}
	return string(result)
}

// Encode converts a UTF-8 string to the code page.
// Returns the input bytes if conversion fails.
func (c Codec) Encode(s string) []byte {
	if c.enc == nil {
		return []byte(s)
	}
	result, _, err := transform.Bytes(c.enc.NewEncoder(), []byte(s))
	if err != nil {
		return []byte(s)
	}
	return result
}

// DecodeFixed decodes a null-padded fixed-size field.
func (c Codec) DecodeFixed(data []byte) string {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return c.Decode(data)
}

// EncodeFixed encodes s into a null-padded field of the given size.
// Names longer than the field are truncated.
func (c Codec) EncodeFixed(s string, size int) []byte {
	result := make([]byte, size)
	copy(result, c.Encode(s))
	return result
}

// NormalizeModelPath normalizes a model path for case-insensitive lookup.
func NormalizeModelPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.TrimPrefix(path, "/")
	return strings.ToLower(path)
}
