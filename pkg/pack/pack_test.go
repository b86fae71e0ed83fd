package pack

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeTestPack(t *testing.T, files map[string][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.pak")
	w := NewWriter(path)
	for name, data := range files {
		w.Add(name, data)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("writing pack: %v", err)
	}
	return path
}

func TestOpenAndRead(t *testing.T) {
	files := map[string][]byte{
		"maps/test/map.yaml":      []byte("name: test\nid: 7\n"),
		"maps/test/32_32.gtl":     bytes.Repeat([]byte{0xAB}, 4096),
		`Models\Doodads\Crate.gmd`: []byte("NGMD"),
	}
	path := writeTestPack(t, files)

	archive, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer archive.Close()

	list := archive.List()
	want := []string{"maps/test/32_32.gtl", "maps/test/map.yaml", "models/doodads/crate.gmd"}
	if len(list) != len(want) {
		t.Fatalf("List() = %v, want %v", list, want)
	}
	for i := range want {
		if list[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, list[i], want[i])
		}
	}

	data, err := archive.Read("MAPS/test/32_32.gtl")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(data, files["maps/test/32_32.gtl"]) {
		t.Error("compressed entry body mismatch")
	}

	data, err = archive.Read("models/doodads/crate.gmd")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(data) != "NGMD" {
		t.Errorf("stored entry body = %q", data)
	}

	if !archive.Contains(`models\doodads\CRATE.gmd`) {
		t.Error("Contains should normalize separators and case")
	}

	entry, ok := archive.Stat("maps/test/32_32.gtl")
	if !ok || entry.UncompressedSize != 4096 || entry.Flags&FlagCompressed == 0 {
		t.Errorf("Stat = %+v, %v", entry, ok)
	}
	if _, ok := archive.Stat("maps/none"); ok {
		t.Error("Stat found a missing file")
	}
}

func TestReadMissing(t *testing.T) {
	path := writeTestPack(t, map[string][]byte{"a.txt": []byte("a")})
	archive, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer archive.Close()

	if _, err := archive.Read("b.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOpenInvalidMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pak")
	if err := os.WriteFile(path, make([]byte, 64), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestOpenTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.pak")
	if err := os.WriteFile(path, []byte("NAVPACK"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); !errors.Is(err, ErrTruncated) {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
}

func TestEmptyPack(t *testing.T) {
	path := writeTestPack(t, nil)
	archive, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer archive.Close()
	if n := len(archive.List()); n != 0 {
		t.Errorf("expected empty list, got %d entries", n)
	}
}
