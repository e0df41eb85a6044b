package stream

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/meigma/bundle/internal/blobtype"
	"github.com/meigma/bundle/internal/compression"
	"github.com/meigma/bundle/internal/crypt"
)

// Reader iterates the entries of a container, forward only.
type Reader struct {
	dec       io.ReadCloser
	comp      blobtype.Compression
	payload   io.Reader
	tr        *tar.Reader
	encrypted bool
}

// NewReader returns a Reader over the container read from src.
func NewReader(src io.Reader, cfg Config) (*Reader, error) {
	var opts []compression.ReaderOption
	if cfg.MaxDecoderMemory != 0 {
		opts = append(opts, compression.WithMaxDecoderMemory(cfg.MaxDecoderMemory))
	}
	if cfg.DecoderLowmem {
		opts = append(opts, compression.WithDecoderLowmem(true))
	}
	dec, comp, err := compression.NewReader(src, opts...)
	if err != nil {
		return nil, err
	}

	payload := io.Reader(dec)
	if cfg.Encrypted() {
		mode, err := cfg.provider().Decryptor(cfg.Key, cfg.IV)
		if err != nil {
			_ = dec.Close() //nolint:errcheck // best-effort cleanup
			return nil, err
		}
		payload = crypt.NewDecryptReader(dec, mode)
	}

	return &Reader{
		dec:       dec,
		comp:      comp,
		payload:   payload,
		tr:        tar.NewReader(payload),
		encrypted: cfg.Encrypted(),
	}, nil
}

// Compression returns the detected compressor.
func (r *Reader) Compression() blobtype.Compression {
	return r.comp
}

// Next advances to the next entry. It returns io.EOF once the entry stream
// is exhausted. Entry types other than regular files and directories are
// skipped.
func (r *Reader) Next() (blobtype.Entry, error) {
	for {
		hdr, err := r.tr.Next()
		if errors.Is(err, tar.ErrInsecurePath) {
			// Names are validated where they touch the filesystem.
			err = nil
		}
		if errors.Is(err, io.EOF) {
			return blobtype.Entry{}, io.EOF
		}
		if err != nil {
			return blobtype.Entry{}, r.classify(err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			return blobtype.Entry{
				Name:    strings.TrimSuffix(hdr.Name, "/"),
				Kind:    blobtype.KindDir,
				ModTime: hdr.ModTime,
			}, nil
		case tar.TypeReg:
			if hdr.Size < 0 {
				return blobtype.Entry{}, fmt.Errorf("%w: negative entry size: %s", blobtype.ErrFormat, hdr.Name)
			}
			return blobtype.Entry{
				Name:    hdr.Name,
				Kind:    blobtype.KindFile,
				Size:    uint64(hdr.Size),
				ModTime: hdr.ModTime,
			}, nil
		default:
			continue
		}
	}
}

// Read reads the data of the current entry.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.tr.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		err = r.classify(err)
	}
	return n, err
}

// Drain consumes the rest of the payload after the last entry so cipher
// padding and compressor framing errors surface.
func (r *Reader) Drain() error {
	if _, err := io.Copy(io.Discard, r.payload); err != nil {
		return r.classify(err)
	}
	return nil
}

// Close releases the decompressor. It does not close the source.
func (r *Reader) Close() error {
	return r.dec.Close()
}

// classify tags entry-stream failures. With the cipher layer enabled a
// malformed entry stream is the usual symptom of a wrong password, so it is
// reported as both ErrDecrypt and ErrFormat.
func (r *Reader) classify(err error) error {
	switch {
	case errors.Is(err, blobtype.ErrDecrypt), errors.Is(err, blobtype.ErrFormat):
		return err
	case r.encrypted:
		return fmt.Errorf("%w: %w: %w", blobtype.ErrDecrypt, blobtype.ErrFormat, err)
	default:
		return fmt.Errorf("%w: %w", blobtype.ErrFormat, err)
	}
}
