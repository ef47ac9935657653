package store

import (
	"bytes"
	"fmt"

	"github.com/kjk/regionstore/region"
)

// Record describes a record in the region. Offsets are relative to the
// start of the region and are only valid until the next Erase.
type Record struct {
	Offset int
	// Size is the total size: size field + name + terminator + content
	Size int
	Name string
	// ContentOffset is the offset of the first content byte
	ContentOffset int
	ContentLen    int
}

// End returns offset just past the record
func (r Record) End() int {
	return r.Offset + r.Size
}

// readRecord parses the record at off. Returns size 0 record at the end of data.
func readRecord(r *region.Region, off int) (Record, error) {
	rec := Record{Offset: off}
	// can't fit a size field, treat as end of data
	if r.Len()-off < sizeField {
		return rec, nil
	}
	size, err := r.ReadU16(off)
	if err != nil {
		return rec, err
	}
	if size == 0 {
		return rec, nil
	}
	rec.Size = int(size)
	if rec.Size < minRecordSize {
		return rec, &CorruptError{Offset: off, Reason: fmt.Sprintf("size %d is too small", rec.Size)}
	}
	d, err := r.Slice(off, rec.Size)
	if err != nil {
		return rec, &CorruptError{Offset: off, Reason: fmt.Sprintf("size %d goes past region end %d", rec.Size, r.Len())}
	}
	nameLen := cstringLen(d[sizeField:])
	if nameLen < 0 {
		return rec, &CorruptError{Offset: off, Reason: "name is not 0-terminated"}
	}
	rec.Name = string(d[sizeField : sizeField+nameLen])
	rec.ContentOffset = off + sizeField + nameLen + 1
	rec.ContentLen = rec.Size - sizeField - nameLen - 1
	return rec, nil
}

// walk calls fn for each record until fn returns false or the end of data.
// Returns offset where the walk stopped: the matched record or the free slot.
func walk(r *region.Region, fn func(Record) bool) (int, bool, error) {
	off := headerSize
	for off < r.Len() {
		rec, err := readRecord(r, off)
		if err != nil {
			return off, false, err
		}
		if rec.Size == 0 {
			return off, false, nil
		}
		if !fn(rec) {
			return off, true, nil
		}
		off = rec.End()
	}
	return r.Len(), false, nil
}

// find returns the first record whose name equals name. encName is the
// 0-terminated form from EncodeName.
func find(r *region.Region, encName []byte) (Record, error) {
	name := encName[:len(encName)-1]
	var res Record
	_, found, err := walk(r, func(rec Record) bool {
		if len(rec.Name) == len(name) && bytes.Equal([]byte(rec.Name), name) {
			res = rec
			return false
		}
		return true
	})
	if err != nil {
		return Record{}, err
	}
	if !found {
		return Record{}, fmt.Errorf("%w: '%s'", ErrFileNotFound, name)
	}
	return res, nil
}

// freeSlot returns offset of the first zero-size record, or region end
// if data runs up to the end. An invalid region has no free slot.
func freeSlot(r *region.Region) (int, error) {
	if err := Validate(r); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStorageFull, err)
	}
	off, _, err := walk(r, func(Record) bool { return true })
	if err != nil {
		return 0, err
	}
	return off, nil
}
