// Package region models the fixed storage region shared with the device
// firmware and discovers where it lives in the device address space.
//
// The region is never allocated or resized here: a Provider hands out a view
// over memory owned by someone else (device RAM, an image file loaded into
// memory, a test buffer).
package region

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrRegionUnavailable is returned when the storage region can't be found
	ErrRegionUnavailable = errors.New("storage region unavailable")

	// ErrOutOfRange is returned when an offset computation falls outside the region
	ErrOutOfRange = errors.New("offset out of range")
)

// Region is a bounds-checked view of the storage region.
// Base is the device address of Data[0], kept for diagnostics.
type Region struct {
	Base uint32
	Data []byte
}

// Provider resolves the storage region. It's called at the start of every
// store operation so it must be cheap.
type Provider interface {
	Region() (*Region, error)
}

// Len returns size of the region in bytes
func (r *Region) Len() int {
	return len(r.Data)
}

// End returns off + n, failing if the result overflows or is past the region end
func (r *Region) End(off int, n int) (int, error) {
	if off < 0 || n < 0 || off > len(r.Data) {
		return 0, fmt.Errorf("%w: offset %d, len %d, region size %d", ErrOutOfRange, off, n, len(r.Data))
	}
	if n > len(r.Data)-off {
		return 0, fmt.Errorf("%w: offset %d, len %d, region size %d", ErrOutOfRange, off, n, len(r.Data))
	}
	return off + n, nil
}

// Slice returns Data[off:off+n] without copying
func (r *Region) Slice(off int, n int) ([]byte, error) {
	end, err := r.End(off, n)
	if err != nil {
		return nil, err
	}
	return r.Data[off:end:end], nil
}

// ReadU16 reads little-endian uint16 at off
func (r *Region) ReadU16(off int) (uint16, error) {
	d, err := r.Slice(off, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(d), nil
}

// WriteU16 writes little-endian uint16 at off
func (r *Region) WriteU16(off int, v uint16) error {
	d, err := r.Slice(off, 2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(d, v)
	return nil
}

// ReadU32 reads little-endian uint32 at off
func (r *Region) ReadU32(off int) (uint32, error) {
	d, err := r.Slice(off, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(d), nil
}

// Zero clears Data[off:]
func (r *Region) Zero(off int) error {
	if _, err := r.End(off, 0); err != nil {
		return err
	}
	clear(r.Data[off:])
	return nil
}

// Buffer is a Provider over a caller-owned byte slice
type Buffer struct {
	Base uint32
	Data []byte
}

// NewBuffer returns a Provider over d. d is used in place, not copied.
func NewBuffer(d []byte) *Buffer {
	return &Buffer{Data: d}
}

func (b *Buffer) Region() (*Region, error) {
	if b == nil || b.Data == nil {
		return nil, ErrRegionUnavailable
	}
	return &Region{Base: b.Base, Data: b.Data}, nil
}
