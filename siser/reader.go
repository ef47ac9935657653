package siser

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Reader reads blocks written by Writer or MarshalLine
type Reader struct {
	r *bufio.Reader

	// hints that the data was written without a timestamp
	// (see Writer.NoTimestamp). We still read a timestamp if present.
	NoTimestamp bool

	// Data, Name and Timestamp are set by ReadNextData and are
	// over-written by the next call
	Data      []byte
	Name      string
	Timestamp time.Time

	// position of the current block within the reader
	CurrRecordPos int64
	// position of the next block within the reader
	NextRecordPos int64

	err error
	// true if reached end of file with io.EOF
	done bool
}

// NewReader creates a new reader
func NewReader(r *bufio.Reader) *Reader {
	return &Reader{
		r: r,
	}
}

// Done returns true if we're finished reading
func (r *Reader) Done() bool {
	return r.err != nil || r.done
}

// Err returns the error that stopped reading. io.EOF is not an error.
func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) badHeader(hdr []byte) bool {
	r.err = fmt.Errorf("unexpected header '%s' at offset %d", bytes.TrimSpace(hdr), r.CurrRecordPos)
	return false
}

// ReadNextData reads the next block. Returns false when there are no
// more blocks, check Err() to tell the end of data from an error.
func (r *Reader) ReadNextData() bool {
	if r.Done() {
		return false
	}
	r.Name = ""
	r.Timestamp = time.Time{}
	r.CurrRecordPos = r.NextRecordPos

	hdr, err := r.r.ReadBytes('\n')
	if err != nil {
		if err == io.EOF && len(hdr) == 0 {
			r.done = true
		} else if err == io.EOF {
			r.err = io.ErrUnexpectedEOF
		} else {
			r.err = err
		}
		return false
	}
	recSize := len(hdr)

	if !bytes.HasPrefix(hdr, hdrPrefix) {
		return r.badHeader(hdr)
	}
	rest := hdr[len(hdrPrefix) : len(hdr)-1]

	dataSize, rest, _ := bytes.Cut(rest, []byte{' '})
	var timestamp, name []byte
	if r.NoTimestamp {
		name = rest
	} else {
		timestamp, name, _ = bytes.Cut(rest, []byte{' '})
	}

	size, err := strconv.ParseInt(string(dataSize), 10, 64)
	if err != nil || size < 0 {
		return r.badHeader(hdr)
	}
	if len(timestamp) > 0 {
		timeMs, err := strconv.ParseInt(string(timestamp), 10, 64)
		if err != nil {
			return r.badHeader(hdr)
		}
		r.Timestamp = TimeFromUnixMillisecond(timeMs)
	}
	r.Name = string(name)

	// re-use r.Data unless it grew past 1 MB
	if cap(r.Data) > 1024*1024 {
		r.Data = nil
	}
	if size > int64(cap(r.Data)) {
		r.Data = make([]byte, size)
	} else {
		r.Data = r.Data[:size]
	}
	n, err := io.ReadFull(r.r, r.Data)
	if err != nil {
		r.err = io.ErrUnexpectedEOF
		return false
	}
	recSize += n

	// skip '\n' added by MarshalLine
	if n > 0 && r.Data[n-1] != '\n' {
		if _, err = r.r.Discard(1); err != nil {
			r.err = io.ErrUnexpectedEOF
			return false
		}
		recSize++
	}
	r.NextRecordPos += int64(recSize)
	return true
}
