package store

import (
	"bytes"
	"errors"
	"fmt"
	"iter"

	"github.com/kjk/regionstore/region"
)

// Op identifies a mutating operation reported to Store.OnChange
type Op int

const (
	OpWrite Op = iota
	OpErase
)

func (o Op) String() string {
	switch o {
	case OpWrite:
		return "write"
	case OpErase:
		return "erase"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Storage is the set of operations shared by Store and Nop
type Storage interface {
	Exists(name string) bool
	WriteRaw(name string, content []byte) error
	ReadRaw(name string) ([]byte, error)
	Erase(name string) error
	WriteString(name string, s string) error
	ReadString(name string) (string, error)
}

var (
	_ Storage = &Store{}
	_ Storage = Nop{}
)

// Store reads and writes records in a region resolved by a Provider.
// It's not safe for concurrent use.
type Store struct {
	provider region.Provider

	// if set, called after every successful write or erase
	// size is the total record size
	OnChange func(op Op, name string, size int)
}

// New creates a Store over the region returned by p
func New(p region.Provider) *Store {
	return &Store{provider: p}
}

// Stats describes space usage of the region
type Stats struct {
	// Size is the region size, header included
	Size int
	// Used is the number of bytes taken by records
	Used int
	// Free is the number of bytes after the last record
	Free    int
	Records int
}

func (s *Store) open() (*region.Region, error) {
	if s.provider == nil {
		return nil, region.ErrRegionUnavailable
	}
	r, err := s.provider.Region()
	if err != nil {
		return nil, err
	}
	if err := Validate(r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) changed(op Op, name string, size int) {
	if s.OnChange != nil {
		s.OnChange(op, name, size)
	}
}

// Lookup returns the first record named name
func (s *Store) Lookup(name string) (Record, error) {
	encName, err := EncodeName(name)
	if err != nil {
		return Record{}, err
	}
	r, err := s.open()
	if err != nil {
		return Record{}, err
	}
	return find(r, encName)
}

// ReadRaw returns content of the first record named name.
// The returned slice points into the region: it's only valid until the next
// WriteRaw or Erase and writing to it modifies the record.
func (s *Store) ReadRaw(name string) ([]byte, error) {
	encName, err := EncodeName(name)
	if err != nil {
		return nil, err
	}
	r, err := s.open()
	if err != nil {
		return nil, err
	}
	rec, err := find(r, encName)
	if err != nil {
		return nil, err
	}
	return r.Slice(rec.ContentOffset, rec.ContentLen)
}

// Content returns a view of rec's content, which lets duplicates be read.
// rec must come from Records or Lookup with no Erase since.
func (s *Store) Content(rec Record) ([]byte, error) {
	r, err := s.open()
	if err != nil {
		return nil, err
	}
	return r.Slice(rec.ContentOffset, rec.ContentLen)
}

// ReadRawCopy is like ReadRaw but returns a copy of the content
func (s *Store) ReadRawCopy(name string) ([]byte, error) {
	d, err := s.ReadRaw(name)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(d), nil
}

// Exists returns true if a record named name can be read
func (s *Store) Exists(name string) bool {
	_, err := s.ReadRaw(name)
	return err == nil
}

// FreeSlot returns offset of the end of used data
func (s *Store) FreeSlot() (int, error) {
	if s.provider == nil {
		return 0, region.ErrRegionUnavailable
	}
	r, err := s.provider.Region()
	if err != nil {
		return 0, err
	}
	return freeSlot(r)
}

// WriteRaw appends a record at the first free slot.
// Names are not unique: writing an existing name adds a second record that
// stays hidden behind the first one. Use Replace to overwrite.
func (s *Store) WriteRaw(name string, content []byte) error {
	encName, err := EncodeName(name)
	if err != nil {
		return err
	}
	r, err := s.open()
	if err != nil {
		return err
	}
	free, err := freeSlot(r)
	if err != nil {
		return err
	}
	available := r.Len() - free
	if available <= 0 {
		return fmt.Errorf("%w: no space after offset %d", ErrStorageFull, free)
	}
	total := sizeField + len(encName) + len(content)
	if total > maxRecordSize {
		return fmt.Errorf("%w: record of %d bytes doesn't fit 16-bit size", ErrInvalidInput, total)
	}
	if total > available {
		return &OverflowError{Available: available, Needed: total}
	}

	if err = r.WriteU16(free, uint16(total)); err != nil {
		return err
	}
	off := free + sizeField
	off += copy(r.Data[off:], encName)
	off += copy(r.Data[off:], content)
	// the next scan must stop at a zero size right after us
	if err = r.Zero(off); err != nil {
		return err
	}
	s.changed(OpWrite, name, total)
	return nil
}

// Erase removes the first record named name and moves the records after
// it back to close the gap. Offsets and slices from earlier reads are
// invalid afterwards.
func (s *Store) Erase(name string) error {
	encName, err := EncodeName(name)
	if err != nil {
		return err
	}
	r, err := s.open()
	if err != nil {
		return err
	}
	rec, err := find(r, encName)
	if err != nil {
		return err
	}
	free, err := freeSlot(r)
	if err != nil {
		return err
	}
	if free < rec.End() {
		return &CorruptError{Offset: rec.Offset, Reason: "record ends past end of data"}
	}
	// copy() is memmove: source and destination overlap
	copy(r.Data[rec.Offset:], r.Data[rec.End():free])
	clear(r.Data[free-rec.Size : free])
	s.changed(OpErase, name, rec.Size)
	return nil
}

// Replace erases the first record named name, if any, and writes content
// at the end of data. Space is checked before erasing: when content
// doesn't fit, Replace fails and the region is not changed.
func (s *Store) Replace(name string, content []byte) error {
	encName, err := EncodeName(name)
	if err != nil {
		return err
	}
	r, err := s.open()
	if err != nil {
		return err
	}
	rec, err := find(r, encName)
	if errors.Is(err, ErrFileNotFound) {
		return s.WriteRaw(name, content)
	}
	if err != nil {
		return err
	}
	free, err := freeSlot(r)
	if err != nil {
		return err
	}
	total := sizeField + len(encName) + len(content)
	if total > maxRecordSize {
		return fmt.Errorf("%w: record of %d bytes doesn't fit 16-bit size", ErrInvalidInput, total)
	}
	// space left once the old record is gone
	available := r.Len() - free + rec.Size
	if total > available {
		return &OverflowError{Available: available, Needed: total}
	}
	// content may point into the region which Erase shifts
	content = bytes.Clone(content)
	if err = s.Erase(name); err != nil {
		return err
	}
	return s.WriteRaw(name, content)
}

// WriteString writes s as 0-terminated text
func (s *Store) WriteString(name string, text string) error {
	d, err := EncodeText(text)
	if err != nil {
		return err
	}
	return s.WriteRaw(name, d)
}

// ReadString reads text written by WriteString
func (s *Store) ReadString(name string) (string, error) {
	d, err := s.ReadRaw(name)
	if err != nil {
		return "", err
	}
	return DecodeText(d)
}

// Records iterates over records in storage order, duplicates included.
// On error it yields a zero Record with the error and stops.
func (s *Store) Records() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		r, err := s.open()
		if err != nil {
			yield(Record{}, err)
			return
		}
		stopped := false
		_, _, err = walk(r, func(rec Record) bool {
			if !yield(rec, nil) {
				stopped = true
				return false
			}
			return true
		})
		if err != nil && !stopped {
			yield(Record{}, err)
		}
	}
}

// Stats returns space usage
func (s *Store) Stats() (Stats, error) {
	r, err := s.open()
	if err != nil {
		return Stats{}, err
	}
	n := 0
	free, _, err := walk(r, func(Record) bool {
		n++
		return true
	})
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Size:    r.Len(),
		Used:    free - headerSize,
		Free:    r.Len() - free,
		Records: n,
	}, nil
}
