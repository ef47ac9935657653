// Package image reads and writes storage region images: raw copies of the
// region saved to a file, optionally compressed (.gz, .zst, .br).
package image

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kjk/regionstore/atomicfile"
	"github.com/kjk/regionstore/region"
	"github.com/kjk/regionstore/store"
)

// Blank returns a formatted, empty region of size bytes
func Blank(size int) ([]byte, error) {
	d := make([]byte, size)
	if err := store.Format(d); err != nil {
		return nil, err
	}
	return d, nil
}

// Load reads an image, decompressing based on the extension
func Load(path string) ([]byte, error) {
	d, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := CompressionForPath(path)
	d, err = Decompress(d, c)
	if err != nil {
		return nil, fmt.Errorf("decompressing '%s' (%s): %w", path, c, err)
	}
	return d, nil
}

// Save writes an image atomically, compressing based on the extension.
// Missing directories are created.
func Save(path string, d []byte) error {
	d, err := Compress(d, CompressionForPath(path))
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err = os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return atomicfile.WriteFile(path, d)
}

// File is a region.Provider backed by an image file loaded into memory.
// Changes are written back by Flush.
type File struct {
	Path string
	Data []byte
}

var _ region.Provider = &File{}

// Open loads the image at path
func Open(path string) (*File, error) {
	d, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &File{Path: path, Data: d}, nil
}

// Create creates a blank image of size bytes at path
func Create(path string, size int) (*File, error) {
	d, err := Blank(size)
	if err != nil {
		return nil, err
	}
	f := &File{Path: path, Data: d}
	if err = f.Flush(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) Region() (*region.Region, error) {
	if f == nil || f.Data == nil {
		return nil, region.ErrRegionUnavailable
	}
	return &region.Region{Data: f.Data}, nil
}

// Flush saves the image back to Path
func (f *File) Flush() error {
	return Save(f.Path, f.Data)
}

// Close flushes and releases the image. The store over it reports
// ErrRegionUnavailable afterwards.
func (f *File) Close() error {
	if f == nil || f.Data == nil {
		return nil
	}
	err := f.Flush()
	f.Data = nil
	return err
}
