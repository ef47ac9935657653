package store

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidStorage is returned when the region isn't a well-formed store
	ErrInvalidStorage = errors.New("invalid storage")

	// ErrFileNotFound is returned by read and erase when no record has the name
	ErrFileNotFound = errors.New("file not found")

	// ErrInsufficientSpace is the parent of ErrStorageFull and ErrStorageOverflow
	ErrInsufficientSpace = errors.New("insufficient space")

	// ErrStorageFull is returned when there is no free slot to write to
	ErrStorageFull = fmt.Errorf("storage full: %w", ErrInsufficientSpace)

	// ErrStorageOverflow is returned when a record doesn't fit in the remaining space
	ErrStorageOverflow = fmt.Errorf("storage overflow: %w", ErrInsufficientSpace)

	// ErrInvalidInput is returned for names or text that can't be encoded or decoded
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidMagicNumber is returned when the region header doesn't hold Magic
	ErrInvalidMagicNumber = fmt.Errorf("invalid magic number: %w", ErrInvalidStorage)
)

// MagicError carries the expected and found header values
type MagicError struct {
	Expected uint32
	Found    uint32
}

func (e *MagicError) Error() string {
	return fmt.Sprintf("invalid magic number: expected 0x%08x, found 0x%08x", e.Expected, e.Found)
}

func (e *MagicError) Unwrap() error {
	return ErrInvalidMagicNumber
}

// OverflowError reports how many bytes a write needed and how many were left
type OverflowError struct {
	Available int
	Needed    int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("storage overflow: need %d bytes, %d available", e.Needed, e.Available)
}

func (e *OverflowError) Unwrap() error {
	return ErrStorageOverflow
}

// CorruptError is returned when a record header points outside the region
// or a name isn't terminated inside its record
type CorruptError struct {
	Offset int
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt record at offset %d: %s", e.Offset, e.Reason)
}

func (e *CorruptError) Unwrap() error {
	return ErrInvalidStorage
}
