package region

import (
	"fmt"
	"math/bits"
)

// KernelMagic marks a valid kernel slot. The firmware stores it byte-swapped.
var KernelMagic = bits.ReverseBytes32(0xfeedc0de)

const (
	// offsets of storage address and size relative to the userland header
	userlandStorageAddrOff = 0xC
	userlandStorageSizeOff = 0x10
	// userland header starts 8 bytes before the address we derive
	userlandHeaderAdjust = 0x8
)

// Family is a device hardware family with its own memory map
type Family struct {
	Name string
	// addresses of kernel slots probed for KernelMagic
	Slots []uint32
	// address holding the RAM pointer the userland address is derived from
	RAMPointer uint32
	// added to the value read at RAMPointer
	Offset uint32
}

var (
	FamilyN0110 = Family{
		Name:       "N0110",
		Slots:      []uint32{0x90010000, 0x90410000},
		RAMPointer: 0x20000004,
		Offset:     0x10000,
	}
	FamilyN0120 = Family{
		Name:       "N0120",
		Slots:      []uint32{0x90020000, 0x90420000},
		RAMPointer: 0x24000004,
		Offset:     0x20000,
	}

	// Families is the list of families probed by Detect, in tie-break order:
	// on equal match counts the later family wins
	Families = []Family{FamilyN0110, FamilyN0120}
)

// countMatches counts slots holding KernelMagic. Unreadable slots don't match.
func countMatches(mem Memory, f Family) int {
	n := 0
	for _, addr := range f.Slots {
		v, err := mem.ReadU32(addr)
		if err == nil && v == KernelMagic {
			n++
		}
	}
	return n
}

// Detect picks the family whose kernel slots hold the most magic values
func Detect(mem Memory) (Family, error) {
	best := -1
	bestCount := 0
	for i, f := range Families {
		n := countMatches(mem, f)
		if n > 0 && n >= bestCount {
			best = i
			bestCount = n
		}
	}
	if best < 0 {
		return Family{}, fmt.Errorf("%w: no device family matched", ErrRegionUnavailable)
	}
	return Families[best], nil
}

// UserlandAddress returns address of the userland header for family f
func UserlandAddress(mem Memory, f Family) (uint32, error) {
	ram, err := mem.ReadU32(f.RAMPointer)
	if err != nil {
		return 0, fmt.Errorf("%w: reading RAM pointer of %s: %w", ErrRegionUnavailable, f.Name, err)
	}
	// wrapping arithmetic, same as the firmware
	return ram + f.Offset - userlandHeaderAdjust, nil
}

// Locator finds the storage region by probing device memory
type Locator struct {
	Mem Memory

	// Family is set after a successful Region() call
	Family Family
}

// NewLocator creates a Locator over mem
func NewLocator(mem Memory) *Locator {
	return &Locator{Mem: mem}
}

// Region implements Provider
func (l *Locator) Region() (*Region, error) {
	if l == nil || l.Mem == nil {
		return nil, ErrRegionUnavailable
	}
	f, err := Detect(l.Mem)
	if err != nil {
		return nil, err
	}
	userland, err := UserlandAddress(l.Mem, f)
	if err != nil {
		return nil, err
	}
	base, err := l.Mem.ReadU32(userland + userlandStorageAddrOff)
	if err != nil {
		return nil, fmt.Errorf("%w: reading storage address: %w", ErrRegionUnavailable, err)
	}
	size, err := l.Mem.ReadU32(userland + userlandStorageSizeOff)
	if err != nil {
		return nil, fmt.Errorf("%w: reading storage size: %w", ErrRegionUnavailable, err)
	}
	if size == 0 {
		return nil, fmt.Errorf("%w: storage size is 0", ErrRegionUnavailable)
	}
	d, err := l.Mem.Bytes(base, size)
	if err != nil {
		return nil, fmt.Errorf("%w: storage 0x%08x+%d: %w", ErrRegionUnavailable, base, size, err)
	}
	l.Family = f
	return &Region{Base: base, Data: d}, nil
}
