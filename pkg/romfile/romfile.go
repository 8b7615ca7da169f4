// Package romfile maps ROM images into memory read-only
package romfile

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// Image is a ROM image opened for reading. Data stays valid until Close.
type Image struct {
	Path string
	Data []byte

	f *os.File
	m mmap.MMap
}

// Open maps the file at path. Empty files cannot be mapped and are
// returned with nil Data.
func Open(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		f.Close()
		return &Image{Path: path}, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to map %s: %w", path, err)
	}
	return &Image{Path: path, Data: m, f: f, m: m}, nil
}

// Close unmaps the image and closes the file
func (img *Image) Close() error {
	var err error
	if img.m != nil {
		err = img.m.Unmap()
		img.m = nil
		img.Data = nil
	}
	if img.f != nil {
		if cerr := img.f.Close(); err == nil {
			err = cerr
		}
		img.f = nil
	}
	return err
}

// ReadFile returns a private copy of the file contents, for callers that
// keep the data past the lifetime of the mapping
func ReadFile(path string) ([]byte, error) {
	img, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer img.Close()
	return append([]byte(nil), img.Data...), nil
}
