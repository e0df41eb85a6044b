package bundle

import (
	"github.com/meigma/bundle/internal/blobtype"
	"github.com/meigma/bundle/internal/crypt"
	"github.com/meigma/bundle/internal/keyderiv"
	"github.com/meigma/bundle/internal/pathutil"
)

// --- Re-exports from internal packages ---

// Entry describes one file or directory marker in a container.
type Entry = blobtype.Entry

// Kind distinguishes regular files from directory markers.
type Kind = blobtype.Kind

// Compression identifies the compressor wrapping a container.
type Compression = blobtype.Compression

// Level selects the compressor's speed/ratio trade-off.
type Level = blobtype.Level

// KeyMaterial is the AES key and IV derived from a password.
type KeyMaterial = keyderiv.Material

// CipherProvider creates the block modes used by the cipher layer.
type CipherProvider = crypt.Provider

// AESCipher is the default CipherProvider: AES-256 in CBC mode.
type AESCipher = crypt.AES

// Entry kinds.
const (
	KindFile = blobtype.KindFile
	KindDir  = blobtype.KindDir
)

// Compression constants.
const (
	CompressionZstd = blobtype.CompressionZstd
	CompressionGzip = blobtype.CompressionGzip
)

// Level constants.
const (
	LevelDefault = blobtype.LevelDefault
	LevelFastest = blobtype.LevelFastest
	LevelBetter  = blobtype.LevelBetter
	LevelBest    = blobtype.LevelBest
)

// NormalizePath converts a caller-supplied name to entry-name form:
// forward slashes, no leading or trailing slash, no repeated slashes.
var NormalizePath = pathutil.Normalize

// DeriveKey derives the AES-256 key and IV for password. A non-empty ivSeed
// derives the IV from the seed instead of the password.
//
// Derivation is deterministic: the same inputs always yield the same
// material. A blank password returns ErrEmptyPassword.
func DeriveKey(password, ivSeed string) (KeyMaterial, error) {
	return keyderiv.Derive(password, ivSeed)
}
