package crypt

import (
	"crypto/cipher"
	"errors"
	"fmt"
	"io"

	"github.com/meigma/bundle/internal/blobtype"
)

var (
	// ErrBadPadding is returned when the final block carries invalid PKCS#7 padding.
	ErrBadPadding = fmt.Errorf("%w: invalid padding", blobtype.ErrDecrypt)

	// ErrCiphertextLength is returned when ciphertext is empty or not block aligned.
	ErrCiphertextLength = fmt.Errorf("%w: ciphertext is not a whole number of blocks", blobtype.ErrDecrypt)

	errClosed = errors.New("crypt: write to closed writer")
)

const readChunk = 32 * 1024

// encryptWriter encrypts whole blocks as they fill and pads on Close.
type encryptWriter struct {
	w       io.Writer
	mode    cipher.BlockMode
	bs      int
	pending []byte
	out     []byte
	closed  bool
}

// NewEncryptWriter returns a writer that encrypts everything written to it
// with mode and writes the ciphertext to w. Close writes the final padded
// block; it does not close w.
func NewEncryptWriter(w io.Writer, mode cipher.BlockMode) io.WriteCloser {
	return &encryptWriter{w: w, mode: mode, bs: mode.BlockSize()}
}

// Write implements io.Writer.
func (e *encryptWriter) Write(p []byte) (int, error) {
	if e.closed {
		return 0, errClosed
	}
	e.pending = append(e.pending, p...)
	full := len(e.pending) - len(e.pending)%e.bs
	if full == 0 {
		return len(p), nil
	}
	if err := e.flush(full); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close pads the remaining plaintext and writes the last block(s).
// Block-aligned plaintext gets a full block of padding.
func (e *encryptWriter) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	pad := e.bs - len(e.pending)%e.bs
	for range pad {
		e.pending = append(e.pending, byte(pad))
	}
	return e.flush(len(e.pending))
}

func (e *encryptWriter) flush(n int) error {
	if cap(e.out) < n {
		e.out = make([]byte, n)
	}
	out := e.out[:n]
	e.mode.CryptBlocks(out, e.pending[:n])
	e.pending = append(e.pending[:0], e.pending[n:]...)
	_, err := e.w.Write(out)
	return err
}

// decryptReader decrypts whole blocks and withholds the final block until
// the underlying reader reports EOF, so padding can be stripped.
type decryptReader struct {
	r       io.Reader
	mode    cipher.BlockMode
	bs      int
	buf     []byte
	in      []byte
	pending []byte
	hold    int
	err     error
}

// NewDecryptReader returns a reader that decrypts ciphertext read from r with
// mode and strips PKCS#7 padding at the end of the stream. Padding or length
// errors are reported once the end of r is reached.
func NewDecryptReader(r io.Reader, mode cipher.BlockMode) io.Reader {
	bs := mode.BlockSize()
	return &decryptReader{r: r, mode: mode, bs: bs, buf: make([]byte, readChunk), hold: bs}
}

// Read implements io.Reader.
func (d *decryptReader) Read(p []byte) (int, error) {
	for {
		if avail := len(d.pending) - d.hold; avail > 0 {
			n := copy(p, d.pending[:avail])
			d.pending = d.pending[n:]
			return n, nil
		}
		if d.err != nil {
			return 0, d.err
		}
		d.fill()
	}
}

func (d *decryptReader) fill() {
	n, err := d.r.Read(d.buf)
	d.in = append(d.in, d.buf[:n]...)
	if err != nil && !errors.Is(err, io.EOF) {
		d.err = err
		return
	}

	if full := len(d.in) - len(d.in)%d.bs; full > 0 {
		start := len(d.pending)
		d.pending = append(d.pending, d.in[:full]...)
		d.mode.CryptBlocks(d.pending[start:], d.pending[start:])
		d.in = append(d.in[:0], d.in[full:]...)
	}

	if errors.Is(err, io.EOF) {
		d.finish()
	}
}

func (d *decryptReader) finish() {
	if len(d.in) != 0 || len(d.pending) < d.bs {
		d.pending = nil
		d.err = ErrCiphertextLength
		return
	}
	last := d.pending[len(d.pending)-d.bs:]
	pad := int(last[d.bs-1])
	if pad == 0 || pad > d.bs {
		d.pending = nil
		d.err = ErrBadPadding
		return
	}
	for _, b := range last[d.bs-pad:] {
		if int(b) != pad {
			d.pending = nil
			d.err = ErrBadPadding
			return
		}
	}
	d.pending = d.pending[:len(d.pending)-pad]
	d.hold = 0
	d.err = io.EOF
}
