package region

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"slices"
)

// Memory is the device address space as seen by the Locator
type Memory interface {
	// ReadU32 reads a little-endian uint32 at addr
	ReadU32(addr uint32) (uint32, error)
	// Bytes returns n bytes starting at addr. Implementations should
	// return a view, not a copy, so that writes land in device memory.
	Bytes(addr uint32, n uint32) ([]byte, error)
}

// Segment is a contiguous chunk of the address space
type Segment struct {
	Addr uint32
	Data []byte
}

func (s *Segment) contains(addr uint32, n uint32) bool {
	if addr < s.Addr {
		return false
	}
	off := uint64(addr - s.Addr)
	return off+uint64(n) <= uint64(len(s.Data))
}

// SegmentMemory is a sparse address space made of non-overlapping segments.
// Reads that aren't fully inside a single segment fail.
type SegmentMemory struct {
	segments []*Segment
}

// NewSegmentMemory creates an empty address space
func NewSegmentMemory() *SegmentMemory {
	return &SegmentMemory{}
}

// Map adds d at addr. d is used in place.
func (m *SegmentMemory) Map(addr uint32, d []byte) error {
	end := uint64(addr) + uint64(len(d))
	if end > 1<<32 {
		return fmt.Errorf("segment 0x%08x+%d wraps the address space", addr, len(d))
	}
	for _, s := range m.segments {
		sEnd := uint64(s.Addr) + uint64(len(s.Data))
		if uint64(addr) < sEnd && uint64(s.Addr) < end {
			return fmt.Errorf("segment 0x%08x+%d overlaps 0x%08x+%d", addr, len(d), s.Addr, len(s.Data))
		}
	}
	m.segments = append(m.segments, &Segment{Addr: addr, Data: d})
	slices.SortFunc(m.segments, func(a, b *Segment) int {
		return cmp.Compare(a.Addr, b.Addr)
	})
	return nil
}

// Segments returns mapped segments sorted by address
func (m *SegmentMemory) Segments() []*Segment {
	return append([]*Segment{}, m.segments...)
}

func (m *SegmentMemory) find(addr uint32, n uint32) (*Segment, error) {
	for _, s := range m.segments {
		if s.contains(addr, n) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: 0x%08x+%d not mapped", ErrOutOfRange, addr, n)
}

func (m *SegmentMemory) ReadU32(addr uint32) (uint32, error) {
	d, err := m.Bytes(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(d), nil
}

func (m *SegmentMemory) Bytes(addr uint32, n uint32) ([]byte, error) {
	s, err := m.find(addr, n)
	if err != nil {
		return nil, err
	}
	off := addr - s.Addr
	end := off + n
	return s.Data[off:end:end], nil
}
