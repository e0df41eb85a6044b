package stream

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/meigma/bundle/internal/blobtype"
	"github.com/meigma/bundle/internal/compression"
	"github.com/meigma/bundle/internal/crypt"
	"github.com/meigma/bundle/internal/file"
)

const (
	fileMode = 0o644
	dirMode  = 0o755
)

// Writer serializes entries into a container.
type Writer struct {
	comp   io.WriteCloser
	enc    io.WriteCloser
	tw     *tar.Writer
	buf    []byte
	closed bool
}

// NewWriter returns a Writer that writes a container to dst.
func NewWriter(dst io.Writer, cfg Config) (*Writer, error) {
	comp, err := compression.NewWriter(dst, cfg.Compression, cfg.Level)
	if err != nil {
		return nil, err
	}

	payload := io.Writer(comp)
	var enc io.WriteCloser
	if cfg.Encrypted() {
		mode, err := cfg.provider().Encryptor(cfg.Key, cfg.IV)
		if err != nil {
			_ = comp.Close() //nolint:errcheck // best-effort cleanup
			return nil, err
		}
		enc = crypt.NewEncryptWriter(comp, mode)
		payload = enc
	}

	return &Writer{
		comp: comp,
		enc:  enc,
		tw:   tar.NewWriter(payload),
		buf:  make([]byte, file.CopyBufferSize),
	}, nil
}

// WriteDir writes a directory marker.
func (w *Writer) WriteDir(name string, modTime time.Time) error {
	return w.tw.WriteHeader(header(name+"/", tar.TypeDir, dirMode, 0, modTime))
}

// WriteFile writes a file entry of exactly size bytes read from r.
// Cancellation is observed between copy chunks. A source that yields fewer
// than size bytes fails with ErrSizeMismatch.
func (w *Writer) WriteFile(ctx context.Context, name string, modTime time.Time, size int64, r io.Reader) error {
	if size < 0 {
		return fmt.Errorf("negative file size: %s", name)
	}
	if err := w.tw.WriteHeader(header(name, tar.TypeReg, fileMode, size, modTime)); err != nil {
		return err
	}

	n, err := file.CopyWithContext(ctx, w.tw, io.LimitReader(r, size), w.buf)
	if err != nil {
		return err
	}
	if n != uint64(size) {
		return fmt.Errorf("%w: %s: expected %d bytes, got %d", blobtype.ErrSizeMismatch, name, size, n)
	}
	return nil
}

// Close finishes the entry stream, the cipher padding and the compressor
// frame, in that order. It does not close the destination.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.tw.Close()
	if w.enc != nil {
		err = errors.Join(err, w.enc.Close())
	}
	return errors.Join(err, w.comp.Close())
}

// header builds a normalized tar header. Only name, type, size and mtime
// vary, so identical entries serialize to identical bytes.
func header(name string, typ byte, mode, size int64, modTime time.Time) *tar.Header {
	return &tar.Header{
		Typeflag: typ,
		Name:     name,
		Mode:     mode,
		Size:     size,
		ModTime:  modTime,
		Format:   tar.FormatPAX,
	}
}
