package blobtype

import (
	"errors"
	"fmt"
)

// Sentinel errors for bundle operations.
var (
	// ErrInvalidConfig is returned when a builder or reader is misconfigured.
	ErrInvalidConfig = errors.New("bundle: invalid configuration")

	// ErrEmptyPassword is returned when encryption is requested with a blank password.
	ErrEmptyPassword = fmt.Errorf("%w: password must not be blank", ErrInvalidConfig)

	// ErrSourceMissing is returned when a source folder does not exist.
	ErrSourceMissing = fmt.Errorf("%w: source folder does not exist", ErrInvalidConfig)

	// ErrFormat is returned when a container is not a valid compressed entry stream.
	ErrFormat = errors.New("bundle: invalid container format")

	// ErrDecrypt is returned when decryption fails. Without an integrity tag a
	// wrong password cannot be told apart from corrupted ciphertext.
	ErrDecrypt = errors.New("bundle: decryption failed (wrong password or corrupted data)")

	// ErrNotFound is returned when a named entry is not in the container.
	ErrNotFound = errors.New("bundle: entry not found")

	// ErrBuilderCommitted is returned when a builder is used after Commit.
	ErrBuilderCommitted = errors.New("bundle: builder already committed")

	// ErrSizeMismatch is returned when a source changes size while it is written.
	ErrSizeMismatch = errors.New("bundle: entry size mismatch")

	// ErrUnsafePath is returned when an entry name escapes the target directory.
	ErrUnsafePath = errors.New("bundle: unsafe entry path")

	// ErrSizeOverflow is returned when byte counts exceed supported limits.
	ErrSizeOverflow = errors.New("bundle: size overflow")
)
