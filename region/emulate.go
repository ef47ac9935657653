package region

import "encoding/binary"

func u32Bytes(v uint32) []byte {
	d := make([]byte, 4)
	binary.LittleEndian.PutUint32(d, v)
	return d
}

// NewDeviceMemory builds an address space laid out like a device of family f:
// kernel slots holding KernelMagic, the RAM pointer set to ram, a userland
// header pointing at storage mapped at storageAddr.
// It's used to run the Locator on a host (tests, emulators).
func NewDeviceMemory(f Family, ram uint32, storageAddr uint32, storage []byte) (*SegmentMemory, error) {
	m := NewSegmentMemory()
	for _, addr := range f.Slots {
		if err := m.Map(addr, u32Bytes(KernelMagic)); err != nil {
			return nil, err
		}
	}
	if err := m.Map(f.RAMPointer, u32Bytes(ram)); err != nil {
		return nil, err
	}
	userland := ram + f.Offset - userlandHeaderAdjust
	hdr := make([]byte, userlandStorageSizeOff+4)
	binary.LittleEndian.PutUint32(hdr[userlandStorageAddrOff:], storageAddr)
	binary.LittleEndian.PutUint32(hdr[userlandStorageSizeOff:], uint32(len(storage)))
	if err := m.Map(userland, hdr); err != nil {
		return nil, err
	}
	if err := m.Map(storageAddr, storage); err != nil {
		return nil, err
	}
	return m, nil
}
