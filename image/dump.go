package image

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kjk/regionstore/region"
)

// A memory dump is a directory with one file per mapped segment, named
// after its start address in hex: 20000000.bin, 90010000.bin.br etc.

func segmentAddr(name string) (uint32, bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if CompressionForPath(name) != None {
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if !strings.HasSuffix(name, ".bin") && !strings.Contains(name, ".bin.") {
		return 0, false
	}
	base = strings.TrimPrefix(strings.ToLower(base), "0x")
	addr, err := strconv.ParseUint(base, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(addr), true
}

// LoadDump loads a memory dump directory. Files that aren't named like
// segments are skipped.
func LoadDump(dir string) (*region.SegmentMemory, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	mem := region.NewSegmentMemory()
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		addr, ok := segmentAddr(e.Name())
		if !ok {
			continue
		}
		d, err := Load(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if err = mem.Map(addr, d); err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		n++
	}
	if n == 0 {
		return nil, fmt.Errorf("no segments in '%s'", dir)
	}
	return mem, nil
}

// SaveDump writes every segment of mem to dir. ext is appended to .bin
// to pick compression, e.g. ".br" or "".
func SaveDump(dir string, mem *region.SegmentMemory, ext string) error {
	for _, s := range mem.Segments() {
		name := fmt.Sprintf("%08x.bin%s", s.Addr, ext)
		if err := Save(filepath.Join(dir, name), s.Data); err != nil {
			return err
		}
	}
	return nil
}
