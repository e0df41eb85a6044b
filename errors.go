package bundle

import (
	"errors"

	"github.com/meigma/bundle/internal/blobtype"
)

// Sentinel errors re-exported from internal/blobtype.
var (
	// ErrInvalidConfig is returned when a builder or reader is misconfigured.
	ErrInvalidConfig = blobtype.ErrInvalidConfig

	// ErrEmptyPassword is returned when encryption is requested with a blank
	// password. It wraps ErrInvalidConfig.
	ErrEmptyPassword = blobtype.ErrEmptyPassword

	// ErrSourceMissing is returned when a source folder does not exist.
	// It wraps ErrInvalidConfig.
	ErrSourceMissing = blobtype.ErrSourceMissing

	// ErrFormat is returned when a container is malformed or truncated.
	ErrFormat = blobtype.ErrFormat

	// ErrDecrypt is returned when the cipher layer fails. A wrong password
	// and corrupted ciphertext are indistinguishable.
	ErrDecrypt = blobtype.ErrDecrypt

	// ErrNotFound is returned when a named entry is not in the container.
	ErrNotFound = blobtype.ErrNotFound

	// ErrBuilderCommitted is returned when a builder is used after Commit.
	ErrBuilderCommitted = blobtype.ErrBuilderCommitted

	// ErrSizeMismatch is returned when a source file changes size while it
	// is being written.
	ErrSizeMismatch = blobtype.ErrSizeMismatch

	// ErrUnsafePath is returned when an entry name would escape the target
	// directory.
	ErrUnsafePath = blobtype.ErrUnsafePath

	// ErrSizeOverflow is returned when an entry is too large to buffer.
	ErrSizeOverflow = blobtype.ErrSizeOverflow
)

// SkipAll is returned by a WalkFunc to stop the walk early without error.
var SkipAll = errors.New("skip all entries") //nolint:revive,staticcheck // mirrors fs.SkipAll

// OpError records a failed operation with the path it concerned.
type OpError struct {
	// Op is the operation: "add", "commit", "extract", "read", "walk" or "sync".
	Op string

	// Path is the file, folder, or container involved.
	Path string

	// Err is the underlying error.
	Err error
}

func (e *OpError) Error() string {
	if e.Path == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func opError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Path: path, Err: err}
}
