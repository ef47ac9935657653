package store

import (
	"fmt"
	"math/bits"

	"github.com/kjk/regionstore/region"
)

// Magic identifies a formatted store. It's 0xBADD0BEE stored byte-swapped.
var Magic = bits.ReverseBytes32(0xBADD0BEE)

const (
	headerSize = 4
	sizeField  = 2
	// smallest valid record: size field + empty name terminator
	minRecordSize = sizeField + 1
	maxRecordSize = 0xFFFF
)

// Validate checks the magic number at the start of the region
func Validate(r *region.Region) error {
	found, err := r.ReadU32(0)
	if err != nil {
		return fmt.Errorf("%w: region of %d bytes has no header", ErrInvalidStorage, r.Len())
	}
	if found != Magic {
		return &MagicError{Expected: Magic, Found: found}
	}
	return nil
}

// Format writes the header and zeroes the body. The device firmware does
// this on its own; it's exposed for blank images and tests.
func Format(d []byte) error {
	r := &region.Region{Data: d}
	if r.Len() < headerSize {
		return fmt.Errorf("%w: region of %d bytes is too small", ErrInvalidStorage, r.Len())
	}
	h, _ := r.Slice(0, headerSize)
	h[0] = byte(Magic)
	h[1] = byte(Magic >> 8)
	h[2] = byte(Magic >> 16)
	h[3] = byte(Magic >> 24)
	return r.Zero(headerSize)
}
