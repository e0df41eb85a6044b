// Package sizing provides checked size conversions for entry lengths.
package sizing

import (
	"bytes"
	"io"
	"math"
)

// ToInt converts a uint64 to int, returning overflowErr if it doesn't fit.
func ToInt(size uint64, overflowErr error) (int, error) {
	if size > uint64(math.MaxInt) {
		return 0, overflowErr
	}
	return int(size), nil
}

// ToInt64 converts a uint64 to int64, returning overflowErr if it doesn't fit.
func ToInt64(size uint64, overflowErr error) (int64, error) {
	if size > uint64(math.MaxInt64) {
		return 0, overflowErr
	}
	return int64(size), nil
}

// ReadExact reads exactly size bytes from r into a single allocation.
// A reader that ends early yields io.ErrUnexpectedEOF.
func ReadExact(r io.Reader, size uint64, overflowErr error) ([]byte, error) {
	n, err := ToInt(size, overflowErr)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(n)
	copied, err := io.CopyN(&buf, r, int64(n))
	if err != nil {
		if err == io.EOF && copied < int64(n) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf.Bytes(), nil
}
