// Package crypt implements the optional cipher layer of a container:
// CBC block modes with PKCS#7 padding applied as streaming transforms.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/meigma/bundle/internal/blobtype"
)

// Provider creates block modes for a key and IV.
//
// Implementations select the block cipher; the stream transforms in this
// package only rely on cipher.BlockMode.
type Provider interface {
	Encryptor(key, iv []byte) (cipher.BlockMode, error)
	Decryptor(key, iv []byte) (cipher.BlockMode, error)
}

// AES is the default Provider: AES in CBC mode. A 32-byte key selects AES-256.
type AES struct{}

// Encryptor returns a CBC encrypter.
func (AES) Encryptor(key, iv []byte) (cipher.BlockMode, error) {
	block, err := newBlock(key, iv)
	if err != nil {
		return nil, err
	}
	return cipher.NewCBCEncrypter(block, iv), nil
}

// Decryptor returns a CBC decrypter.
func (AES) Decryptor(key, iv []byte) (cipher.BlockMode, error) {
	block, err := newBlock(key, iv)
	if err != nil {
		return nil, err
	}
	return cipher.NewCBCDecrypter(block, iv), nil
}

func newBlock(key, iv []byte) (cipher.Block, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", blobtype.ErrInvalidConfig, err)
	}
	if len(iv) != block.BlockSize() {
		return nil, fmt.Errorf("%w: iv length %d, want %d", blobtype.ErrInvalidConfig, len(iv), block.BlockSize())
	}
	return block, nil
}
