package store

import (
	"bytes"
	"fmt"
	"unicode/utf8"
)

const (
	// MaxNameLen is the longest encoded name, terminator included
	MaxNameLen = 256
	// MaxTextLen is the longest encoded text written by WriteString, terminator included
	MaxTextLen = 256
)

func encodeCString(s string, max int, what string) ([]byte, error) {
	if len(s)+1 > max {
		return nil, fmt.Errorf("%w: %s is %d bytes, max is %d", ErrInvalidInput, what, len(s), max-1)
	}
	if bytes.IndexByte([]byte(s), 0) >= 0 {
		return nil, fmt.Errorf("%w: %s contains a 0 byte", ErrInvalidInput, what)
	}
	d := make([]byte, len(s)+1)
	copy(d, s)
	return d, nil
}

// EncodeName returns name with a 0 terminator appended
func EncodeName(name string) ([]byte, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidInput)
	}
	return encodeCString(name, MaxNameLen, "name")
}

// EncodeText returns s with a 0 terminator appended
func EncodeText(s string) ([]byte, error) {
	return encodeCString(s, MaxTextLen, "text")
}

// DecodeText decodes content written by EncodeText. The content must end
// with a 0 byte; text stops at the first 0 and must be valid UTF-8.
func DecodeText(d []byte) (string, error) {
	if len(d) == 0 {
		return "", fmt.Errorf("%w: empty text", ErrInvalidInput)
	}
	if d[len(d)-1] != 0 {
		return "", fmt.Errorf("%w: text is not 0-terminated", ErrInvalidInput)
	}
	n := bytes.IndexByte(d, 0)
	d = d[:n]
	if !utf8.Valid(d) {
		return "", fmt.Errorf("%w: text is not valid utf-8", ErrInvalidInput)
	}
	return string(d), nil
}

// cstringLen returns length of 0-terminated string at the start of d,
// or -1 if there's no terminator
func cstringLen(d []byte) int {
	return bytes.IndexByte(d, 0)
}
