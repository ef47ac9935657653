package image

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// Compression is picked from the file extension
type Compression int

const (
	None Compression = iota
	Gzip
	Zstd
	Brotli
)

// CompressionForPath returns compression implied by extension of path
func CompressionForPath(path string) Compression {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".gz":
		return Gzip
	case ".zst", ".zstd":
		return Zstd
	case ".br":
		return Brotli
	}
	return None
}

func (c Compression) String() string {
	switch c {
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	case Brotli:
		return "brotli"
	case None:
		return "none"
	}
	return fmt.Sprintf("Compression(%d)", int(c))
}

// Compress compresses d with c
func Compress(d []byte, c Compression) ([]byte, error) {
	var buf bytes.Buffer
	var w io.WriteCloser
	var err error
	switch c {
	case None:
		return d, nil
	case Gzip:
		w, err = gzip.NewWriterLevel(&buf, gzip.BestCompression)
	case Zstd:
		w, err = zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	case Brotli:
		w = brotli.NewWriterLevel(&buf, brotli.BestCompression)
	default:
		return nil, fmt.Errorf("unknown compression %d", int(c))
	}
	if err != nil {
		return nil, err
	}
	if _, err = w.Write(d); err != nil {
		w.Close()
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress
func Decompress(d []byte, c Compression) ([]byte, error) {
	var r io.Reader
	src := bytes.NewReader(d)
	switch c {
	case None:
		return d, nil
	case Gzip:
		gr, err := gzip.NewReader(src)
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		r = gr
	case Zstd:
		zr, err := zstd.NewReader(src)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	case Brotli:
		r = brotli.NewReader(src)
	default:
		return nil, fmt.Errorf("unknown compression %d", int(c))
	}
	return io.ReadAll(r)
}
