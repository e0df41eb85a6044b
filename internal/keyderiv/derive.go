// Package keyderiv turns a password, and optionally a separate IV seed, into
// the AES-256 key and CBC initialization vector of a container.
//
// Containers carry no salt or nonce, so derivation is a pure function of its
// inputs: the salt is the SHA-512 digest of the secret itself.
package keyderiv

import (
	"crypto/sha512"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/meigma/bundle/internal/blobtype"
)

const (
	// KeySize is the derived key length (AES-256).
	KeySize = 32

	// IVSize is the derived IV length (the AES block size).
	IVSize = 16

	// Iterations is the PBKDF2 iteration count.
	Iterations = 50_000
)

// Material is derived key material.
type Material struct {
	Key [KeySize]byte
	IV  [IVSize]byte
}

// Derive computes key material for password.
//
// The key is the first KeySize bytes of PBKDF2-HMAC-SHA512(password,
// SHA-512(password)). Without an ivSeed the IV is the next IVSize bytes of
// the same output. With an ivSeed the IV comes from an independent
// PBKDF2-HMAC-SHA512(ivSeed, SHA-512(ivSeed)) run, so one password can be
// reused across containers with distinct IVs.
func Derive(password, ivSeed string) (Material, error) {
	if IsBlank(password) {
		return Material{}, blobtype.ErrEmptyPassword
	}

	var m Material
	if ivSeed == "" {
		dk := stream(password, KeySize+IVSize)
		copy(m.Key[:], dk[:KeySize])
		copy(m.IV[:], dk[KeySize:])
		return m, nil
	}

	copy(m.Key[:], stream(password, KeySize))
	copy(m.IV[:], stream(ivSeed, IVSize))
	return m, nil
}

// IsBlank reports whether password is empty or whitespace only.
func IsBlank(password string) bool {
	return strings.TrimSpace(password) == ""
}

// stream returns the first n bytes of the PBKDF2 output for secret.
// PBKDF2 output blocks are independent, so a prefix of a longer derivation
// equals a shorter derivation.
func stream(secret string, n int) []byte {
	salt := sha512.Sum512([]byte(secret))
	return pbkdf2.Key([]byte(secret), salt[:], Iterations, n, sha512.New)
}
