// Package stream implements the container codec.
//
// A container is a compressor stream wrapping the payload. The payload is
// the entry stream itself, or the entry stream passed through the cipher
// layer when key material is configured:
//
//	container := compress(payload)
//	payload   := cipher(entries) | entries
//
// The entry stream is a PAX tar stream. It has no index or footer, so
// readers consume entries in write order and cannot seek.
package stream

import (
	"github.com/meigma/bundle/internal/blobtype"
	"github.com/meigma/bundle/internal/crypt"
)

// Config selects the layers of a container.
type Config struct {
	// Compression and Level configure the outer compressor. Readers detect
	// the compressor and ignore both fields.
	Compression blobtype.Compression
	Level       blobtype.Level

	// Key and IV enable the cipher layer when Key is non-empty.
	Key []byte
	IV  []byte

	// Cipher creates the block modes. Nil uses crypt.AES.
	Cipher crypt.Provider

	// MaxDecoderMemory limits decoder memory on read. Zero uses the
	// compression package default.
	MaxDecoderMemory uint64

	// DecoderLowmem trades zstd decoding speed for smaller buffers.
	DecoderLowmem bool
}

// Encrypted reports whether the cipher layer is enabled.
func (c Config) Encrypted() bool {
	return len(c.Key) > 0
}

func (c Config) provider() crypt.Provider {
	if c.Cipher == nil {
		return crypt.AES{}
	}
	return c.Cipher
}
