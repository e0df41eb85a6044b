package file

import (
	"context"
	"crypto/md5" //nolint:gosec // content fingerprint, not a security boundary
	"hash"
	"io"
)

// FingerprintSize is the size in bytes of a content fingerprint (128 bits).
const FingerprintSize = md5.Size

// NewFingerprint returns the hash used for content fingerprints.
func NewFingerprint() hash.Hash {
	return md5.New() //nolint:gosec // content fingerprint, not a security boundary
}

// HashingReader wraps an io.Reader and computes a hash of all data read.
type HashingReader struct {
	r io.Reader
	h hash.Hash
}

// NewHashingReader creates a reader that computes a hash while reading.
func NewHashingReader(r io.Reader, h hash.Hash) *HashingReader {
	return &HashingReader{r: r, h: h}
}

// Read implements io.Reader.
func (hr *HashingReader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	if n > 0 {
		_, _ = hr.h.Write(p[:n]) //nolint:errcheck // hash writes never fail
	}
	return n, err
}

// Sum returns the hash sum computed so far.
func (hr *HashingReader) Sum() []byte {
	return hr.h.Sum(nil)
}

// Fingerprint streams r through the fingerprint hash.
func Fingerprint(ctx context.Context, r io.Reader, buf []byte) ([]byte, error) {
	h := NewFingerprint()
	if _, err := CopyWithContext(ctx, h, r, buf); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
