// Package compression implements the outer compressor layer of a container.
//
// Containers have no header of their own, so readers identify the
// compressor from the frame magic bytes.
package compression

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/meigma/bundle/internal/blobtype"
)

// DefaultMaxDecoderMemory is the default maximum zstd decoder memory (256MB).
const DefaultMaxDecoderMemory = 256 << 20

// ErrUnknownCompression is returned when a stream starts with no known magic.
var ErrUnknownCompression = fmt.Errorf("%w: unknown compression", blobtype.ErrFormat)

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	gzipMagic = []byte{0x1f, 0x8b}
)

// NewWriter returns a compressing writer over w. Closing it flushes the final
// frame but does not close w.
//
// Encoders run single-threaded so identical input yields identical output.
func NewWriter(w io.Writer, c blobtype.Compression, level blobtype.Level) (io.WriteCloser, error) {
	switch c {
	case blobtype.CompressionZstd:
		enc, err := zstd.NewWriter(w,
			zstd.WithEncoderLevel(zstdLevel(level)),
			zstd.WithEncoderConcurrency(1),
			zstd.WithLowerEncoderMem(true),
		)
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		return enc, nil
	case blobtype.CompressionGzip:
		enc, err := gzip.NewWriterLevel(w, gzipLevel(level))
		if err != nil {
			return nil, fmt.Errorf("create gzip encoder: %w", err)
		}
		return enc, nil
	default:
		return nil, fmt.Errorf("%w: unknown compression algorithm: %d", blobtype.ErrInvalidConfig, c)
	}
}

// readerConfig holds decoder settings.
type readerConfig struct {
	maxDecoderMemory uint64
	decoderLowmem    bool
}

// ReaderOption configures NewReader.
type ReaderOption func(*readerConfig)

// WithMaxDecoderMemory limits the memory used by the zstd decoder.
// Set limit to 0 to disable the limit.
func WithMaxDecoderMemory(limit uint64) ReaderOption {
	return func(c *readerConfig) {
		c.maxDecoderMemory = limit
	}
}

// WithDecoderLowmem sets whether the zstd decoder should use low-memory mode (default: false).
func WithDecoderLowmem(enabled bool) ReaderOption {
	return func(c *readerConfig) {
		c.decoderLowmem = enabled
	}
}

// NewReader detects the compressor of r and returns a decompressing reader.
// It returns the detected algorithm alongside the reader.
func NewReader(r io.Reader, opts ...ReaderOption) (io.ReadCloser, blobtype.Compression, error) {
	cfg := readerConfig{maxDecoderMemory: DefaultMaxDecoderMemory}
	for _, opt := range opts {
		opt(&cfg)
	}

	br := bufio.NewReader(r)
	magic, err := br.Peek(len(zstdMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, 0, err
	}

	switch {
	case bytes.HasPrefix(magic, zstdMagic):
		dopts := []zstd.DOption{
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderLowmem(cfg.decoderLowmem),
		}
		if cfg.maxDecoderMemory != 0 {
			dopts = append(dopts, zstd.WithDecoderMaxMemory(cfg.maxDecoderMemory))
		}
		dec, err := zstd.NewReader(br, dopts...)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", blobtype.ErrFormat, err)
		}
		return &formatReader{r: dec.IOReadCloser()}, blobtype.CompressionZstd, nil
	case bytes.HasPrefix(magic, gzipMagic):
		dec, err := gzip.NewReader(br)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", blobtype.ErrFormat, err)
		}
		return &formatReader{r: dec}, blobtype.CompressionGzip, nil
	default:
		return nil, 0, ErrUnknownCompression
	}
}

// formatReader tags decoder failures with ErrFormat.
type formatReader struct {
	r io.ReadCloser
}

func (f *formatReader) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, blobtype.ErrFormat) {
		err = fmt.Errorf("%w: decompress: %w", blobtype.ErrFormat, err)
	}
	return n, err
}

func (f *formatReader) Close() error {
	return f.r.Close()
}

func zstdLevel(l blobtype.Level) zstd.EncoderLevel {
	switch l {
	case blobtype.LevelFastest:
		return zstd.SpeedFastest
	case blobtype.LevelBetter:
		return zstd.SpeedBetterCompression
	case blobtype.LevelBest:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

func gzipLevel(l blobtype.Level) int {
	switch l {
	case blobtype.LevelFastest:
		return gzip.BestSpeed
	case blobtype.LevelBetter:
		return 7
	case blobtype.LevelBest:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}
