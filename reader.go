package bundle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/meigma/bundle/internal/file"
	"github.com/meigma/bundle/internal/pathutil"
	"github.com/meigma/bundle/internal/sink"
	"github.com/meigma/bundle/internal/sizing"
	"github.com/meigma/bundle/internal/stream"
)

// WalkFunc is called for each entry during Walk. For file entries r yields
// the entry content and is valid only until WalkFunc returns; for directory
// markers it is empty. Returning SkipAll stops the walk without error.
type WalkFunc func(e Entry, r io.Reader) error

// Reader reads entries from a container file.
//
// A Reader holds no open handles. Every operation opens the container,
// scans it forward, and closes it again, so a Reader is safe for
// concurrent use.
type Reader struct {
	path      string
	cfg       readerConfig
	streamCfg stream.Config
}

// NewReader returns a Reader for the container at path.
//
// Key material is derived once here. Requesting decryption with a blank
// password returns ErrEmptyPassword. The container itself is not opened
// until the first operation.
func NewReader(path string, opts ...ReaderOption) (*Reader, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: container path is empty", ErrInvalidConfig)
	}
	var cfg readerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	streamCfg, err := cfg.keys.streamConfig()
	if err != nil {
		return nil, err
	}
	streamCfg.MaxDecoderMemory = cfg.maxDecoderMemory
	streamCfg.DecoderLowmem = cfg.lowMemory

	return &Reader{path: path, cfg: cfg, streamCfg: streamCfg}, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (r *Reader) log() *slog.Logger {
	if r.cfg.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.cfg.logger
}

// reportProgress sends a progress event if a callback is configured.
func (r *Reader) reportProgress(stage ProgressStage, path string, bytesDone uint64, filesDone int) {
	if r.cfg.progress == nil {
		return
	}
	r.cfg.progress(ProgressEvent{
		Stage:     stage,
		Path:      path,
		BytesDone: bytesDone,
		FilesDone: filesDone,
	})
}

// scan opens the container and calls fn for each entry in stream order.
// The context is checked at every entry boundary. When fn returns SkipAll
// the scan stops and returns SkipAll. When the entry stream ends the rest
// of the payload is drained so cipher padding errors surface.
func (r *Reader) scan(ctx context.Context, fn func(Entry, *stream.Reader) error) error {
	f, err := os.Open(r.path)
	if err != nil {
		return err
	}
	defer f.Close()

	sr, err := stream.NewReader(f, r.streamCfg)
	if err != nil {
		return err
	}
	defer sr.Close()
	r.log().Debug("container opened", "path", r.path, "compression", sr.Compression().String(), "encrypted", r.streamCfg.Encrypted())

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		e, err := sr.Next()
		if errors.Is(err, io.EOF) {
			return sr.Drain()
		}
		if err != nil {
			return err
		}
		if err := fn(e, sr); err != nil {
			return err
		}
	}
}

// find scans for the first file entry whose name matches name and calls fn
// with its content. Names match case-insensitively after normalization.
// Directory markers never match.
func (r *Reader) find(ctx context.Context, name string, fn func(Entry, io.Reader) error) error {
	target := pathutil.Normalize(name)
	if target == "" {
		return fmt.Errorf("%w: entry name is empty", ErrInvalidConfig)
	}

	found := false
	err := r.scan(ctx, func(e Entry, sr *stream.Reader) error {
		if e.IsDir() || !pathutil.Equal(e.Name, target) {
			return nil
		}
		found = true
		if err := fn(e, sr); err != nil {
			return err
		}
		return SkipAll
	})
	switch {
	case errors.Is(err, SkipAll):
		return nil
	case err != nil:
		return err
	case !found:
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

// ExtractFile writes the content of the entry name to dest.
//
// The container is scanned forward and the first file entry whose name
// matches (case-insensitively, after normalization) wins. The content is
// written to a temporary file next to dest and renamed over it, so an
// existing dest is replaced atomically. Parent directories of dest are
// created and dest's modification time is set from the entry.
//
// If no entry matches, ExtractFile returns ErrNotFound and dest is left
// untouched.
func (r *Reader) ExtractFile(ctx context.Context, name, dest string) error {
	r.log().Info("extracting entry", "container", r.path, "name", name, "dest", dest)

	err := r.find(ctx, name, func(e Entry, content io.Reader) error {
		s, err := sink.Open(filepath.Dir(dest))
		if err != nil {
			return err
		}
		defer s.Close()

		w, err := s.Writer(filepath.Base(dest), e.ModTime)
		if err != nil {
			return err
		}
		n, err := file.CopyWithContext(ctx, w, content, nil)
		if err != nil {
			_ = w.Discard() //nolint:errcheck // best-effort cleanup
			return err
		}
		if err := w.Commit(); err != nil {
			return err
		}
		r.log().Debug("entry extracted", "name", e.Name, "bytes", n)
		r.reportProgress(StageExtracting, e.Name, n, 1)
		return nil
	})
	return opError("extract", r.path, err)
}

// ReadFile returns the content of the entry name, matched as in
// ExtractFile.
func (r *Reader) ReadFile(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := r.find(ctx, name, func(e Entry, content io.Reader) error {
		var err error
		data, err = sizing.ReadExact(content, e.Size, ErrSizeOverflow)
		return err
	})
	if err != nil {
		return nil, opError("read", r.path, err)
	}
	return data, nil
}

// Walk calls fn for every entry in stream order, including duplicates and
// directory markers. Unread entry content is skipped automatically.
func (r *Reader) Walk(ctx context.Context, fn WalkFunc) error {
	err := r.scan(ctx, func(e Entry, sr *stream.Reader) error {
		return fn(e, sr)
	})
	if errors.Is(err, SkipAll) {
		return nil
	}
	return opError("walk", r.path, err)
}

// List returns every entry in stream order.
func (r *Reader) List(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := r.scan(ctx, func(e Entry, _ *stream.Reader) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, opError("list", r.path, err)
	}
	return entries, nil
}
