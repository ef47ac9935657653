// Package store implements a record store inside a fixed-size region
// shared with the device firmware.
//
// # Layout
//
// The region starts with a 4-byte magic number (see Magic) followed by
// records packed back to back:
//
//	[size: 2 bytes LE][name][0][content]
//
// size counts the size field, the name with its terminator and the content.
// A size of 0 marks the end of data; everything after it up to the end of
// the region is zero.
//
// # Basic Usage
//
//	st := store.New(region.NewLocator(mem))
//	err := st.WriteRaw("settings", data)
//	d, err := st.ReadRaw("settings")
//	err = st.Erase("settings")
//
// # Duplicates
//
// Names are not unique. WriteRaw always appends, so writing a name twice
// creates two records and reads return the first one. Use Replace when
// you want the new content to be visible.
//
// # Compaction
//
// Erase moves every record after the erased one back by its size, so
// slices returned by ReadRaw and offsets in Record are invalid after an Erase.
//
// # Thread Safety
//
// A Store is not safe for concurrent use. The region has a single writer:
// callers serialize access (see package server for an example).
package store
