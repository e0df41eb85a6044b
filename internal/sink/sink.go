// Package sink writes reconciled entries into a target directory.
//
// Files are written to a temporary file in the same directory and renamed to
// the final path on Commit, so a partially written file is never visible at
// the final path. Every operation is confined to the target directory
// through an os.Root.
package sink

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/meigma/bundle/internal/blobtype"
	"github.com/meigma/bundle/internal/pathutil"
)

// TempPrefix prefixes temporary file names. Orphans left by crashed runs are
// not cleaned up.
const TempPrefix = ".bundle-"

// Committer is a writer that can be committed or discarded.
type Committer interface {
	io.Writer

	// Commit finalizes the write, making content visible at the final path.
	Commit() error

	// Discard aborts the write and removes the temporary file.
	Discard() error
}

// FileSink writes entries below a destination directory.
// It is safe for concurrent use.
type FileSink struct {
	destDir string
	root    *os.Root
}

// Open returns a FileSink rooted at destDir, creating destDir if needed.
func Open(destDir string) (*FileSink, error) {
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return nil, fmt.Errorf("create destination directory: %w", err)
	}
	root, err := os.OpenRoot(destDir)
	if err != nil {
		return nil, fmt.Errorf("open destination root %s: %w", destDir, err)
	}
	return &FileSink{destDir: destDir, root: root}, nil
}

// Close releases the destination root.
func (s *FileSink) Close() error {
	return s.root.Close()
}

// Dir returns the destination directory.
func (s *FileSink) Dir() string {
	return s.destDir
}

// rel validates an entry name and converts it to a root-relative path.
func rel(name string) (string, error) {
	n := pathutil.Normalize(name)
	if n == "" || !fs.ValidPath(n) {
		return "", &fs.PathError{Op: "sync", Path: name, Err: blobtype.ErrUnsafePath}
	}
	return filepath.FromSlash(n), nil
}

// Lstat returns file info for the named entry without following a final
// symbolic link.
func (s *FileSink) Lstat(name string) (fs.FileInfo, error) {
	r, err := rel(name)
	if err != nil {
		return nil, err
	}
	return s.root.Lstat(r)
}

// Open opens the named entry for reading.
func (s *FileSink) Open(name string) (*os.File, error) {
	r, err := rel(name)
	if err != nil {
		return nil, err
	}
	return s.root.Open(r)
}

// MkdirAll creates the named directory and any missing parents.
// It succeeds if the directory already exists.
func (s *FileSink) MkdirAll(name string) error {
	r, err := rel(name)
	if err != nil {
		return err
	}
	if err := s.root.MkdirAll(r, 0o750); err != nil {
		return fmt.Errorf("create directory %s: %w", filepath.Join(s.destDir, r), err)
	}
	return nil
}

// Writer returns a Committer that writes the named entry to a temp file and
// renames it over the final path on Commit. A non-zero modTime is applied
// to the file before the rename.
func (s *FileSink) Writer(name string, modTime time.Time) (Committer, error) {
	destRel, err := rel(name)
	if err != nil {
		return nil, err
	}
	destPath := filepath.Join(s.destDir, destRel)

	if dir := filepath.Dir(destRel); dir != "." {
		if err := s.root.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", filepath.Dir(destPath), err)
		}
	}

	tempFile, tempRel, err := createTempFile(s.root, filepath.Dir(destRel), TempPrefix)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	return &fileCommitter{
		destPath: destPath,
		destRel:  destRel,
		tempFile: tempFile,
		tempRel:  tempRel,
		modTime:  modTime,
		root:     s.root,
	}, nil
}

// fileCommitter writes to a temp file and renames on Commit.
type fileCommitter struct {
	destPath string
	destRel  string
	tempFile *os.File
	tempRel  string
	modTime  time.Time
	root     *os.Root
}

// Write implements io.Writer.
func (c *fileCommitter) Write(p []byte) (int, error) {
	return c.tempFile.Write(p)
}

// Commit closes the temp file, applies the modification time, and renames
// to the final path.
func (c *fileCommitter) Commit() error {
	if err := c.tempFile.Close(); err != nil {
		_ = c.root.Remove(c.tempRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp file: %w", err)
	}

	if !c.modTime.IsZero() {
		if err := c.root.Chtimes(c.tempRel, c.modTime, c.modTime); err != nil {
			_ = c.root.Remove(c.tempRel) //nolint:errcheck // best-effort cleanup
			return fmt.Errorf("chtimes: %w", err)
		}
	}

	if err := c.root.Rename(c.tempRel, c.destRel); err != nil {
		_ = c.root.Remove(c.tempRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename to %s: %w", c.destPath, err)
	}
	return nil
}

// Discard closes and removes the temp file.
func (c *fileCommitter) Discard() error {
	_ = c.tempFile.Close() //nolint:errcheck // we're cleaning up
	return c.root.Remove(c.tempRel)
}

// createTempFile creates a uniquely named file with O_EXCL, so two writers
// can never share a temp file.
func createTempFile(root *os.Root, dir, prefix string) (*os.File, string, error) {
	const attempts = 10
	for range attempts {
		name, err := randomSuffix()
		if err != nil {
			return nil, "", err
		}
		relPath := filepath.Join(dir, prefix+name)
		f, err := root.OpenFile(relPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			return f, relPath, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", errors.New("create temp file: exhausted retries")
}

func randomSuffix() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
