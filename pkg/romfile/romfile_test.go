package romfile

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenMapsContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.gba")
	want := []byte{0x21, 0x01, 0x02, 0x03, 0xAA, 0xBB}
	if err := os.WriteFile(path, want, 0644); err != nil {
		t.Fatal(err)
	}

	img, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !bytes.Equal(img.Data, want) {
		t.Errorf("Data = % x, want % x", img.Data, want)
	}
	if err := img.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if img.Data != nil {
		t.Error("Data still set after Close()")
	}
	if err := img.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestOpenEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.gba")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}

	img, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer img.Close()
	if len(img.Data) != 0 {
		t.Errorf("len(Data) = %d, want 0", len(img.Data))
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.gba")); err == nil {
		t.Error("Open() on missing file returned nil error")
	}
}

func TestReadFileCopies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "copy.gba")
	if err := os.WriteFile(path, []byte("ROMDATA"), 0644); err != nil {
		t.Fatal(err)
	}

	data, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "ROMDATA" {
		t.Errorf("ReadFile() = %q, want %q", data, "ROMDATA")
	}
}
