package bundle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/bundle/internal/file"
	"github.com/meigma/bundle/internal/index"
	"github.com/meigma/bundle/internal/pathutil"
	"github.com/meigma/bundle/internal/platform"
	"github.com/meigma/bundle/internal/stream"
)

// CommitStats summarizes a committed container.
type CommitStats struct {
	// Entries is the number of entries written (files plus directories).
	Entries int

	// Files and Dirs split Entries by kind.
	Files int
	Dirs  int

	// Bytes is the total size of file content before compression.
	Bytes uint64

	// Size is the size of the container file.
	Size uint64

	// Digest is the SHA-256 digest of the container file.
	Digest digest.Digest
}

// Builder collects entries and writes them to a container in one pass.
//
// Sources are recorded by reference: file content is read during Commit,
// not when a file is added. A Builder is single-use; after Commit every
// method returns ErrBuilderCommitted.
type Builder struct {
	dest      string
	cfg       builderConfig
	streamCfg stream.Config

	mu        sync.Mutex
	sources   []source
	committed bool
}

// source is one pending entry.
type source struct {
	index.Source

	// data holds the content of entries added with AddBytes.
	data   []byte
	inline bool
}

// NewBuilder returns a Builder that writes a container to dest.
//
// Key material is derived once here. Requesting encryption with a blank
// password returns ErrEmptyPassword.
func NewBuilder(dest string, opts ...BuilderOption) (*Builder, error) {
	if dest == "" {
		return nil, fmt.Errorf("%w: destination path is empty", ErrInvalidConfig)
	}
	var cfg builderConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	streamCfg, err := cfg.keys.streamConfig()
	if err != nil {
		return nil, err
	}
	streamCfg.Compression = cfg.compression
	streamCfg.Level = cfg.level

	return &Builder{
		dest:      dest,
		cfg:       cfg,
		streamCfg: streamCfg,
	}, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (b *Builder) log() *slog.Logger {
	if b.cfg.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.cfg.logger
}

// reportProgress sends a progress event if a callback is configured.
func (b *Builder) reportProgress(stage ProgressStage, path string, bytesDone uint64, filesDone, filesTotal int) {
	if b.cfg.progress == nil {
		return
	}
	b.cfg.progress(ProgressEvent{
		Stage:      stage,
		Path:       path,
		BytesDone:  bytesDone,
		FilesDone:  filesDone,
		FilesTotal: filesTotal,
	})
}

// AddFile records the regular file relPath under sourceDir. The entry is
// named relPath in normalized form.
func (b *Builder) AddFile(sourceDir, relPath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.committed {
		return opError("add", relPath, ErrBuilderCommitted)
	}

	src, err := index.File(sourceDir, relPath)
	if err != nil {
		return opError("add", filepath.Join(sourceDir, relPath), err)
	}
	b.sources = append(b.sources, source{Source: src})
	b.log().Debug("added file", "name", src.Name, "size", src.Size)
	return nil
}

// AddFolder records every directory and regular file below relFolder in
// sourceDir, in lexical order. An empty relFolder adds all of sourceDir.
// Entry names are relative to sourceDir. Symbolic links are skipped.
//
// A missing folder returns ErrSourceMissing.
func (b *Builder) AddFolder(sourceDir, relFolder string) error {
	return b.AddFolderContext(context.Background(), sourceDir, relFolder)
}

// AddFolderContext is like AddFolder but stops walking sourceDir when ctx is
// done. Nothing is recorded for a canceled walk.
func (b *Builder) AddFolderContext(ctx context.Context, sourceDir, relFolder string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.committed {
		return opError("add", relFolder, ErrBuilderCommitted)
	}

	b.reportProgress(StageEnumerating, relFolder, 0, 0, 0)
	srcs, err := index.Folder(ctx, sourceDir, relFolder)
	if err != nil {
		return opError("add", filepath.Join(sourceDir, relFolder), err)
	}
	for _, s := range srcs {
		b.sources = append(b.sources, source{Source: s})
	}
	b.log().Debug("added folder", "dir", sourceDir, "folder", relFolder, "entries", len(srcs))
	b.reportProgress(StageEnumerating, relFolder, 0, len(srcs), len(srcs))
	return nil
}

// AddBytes records an entry whose content is data. The slice is copied.
func (b *Builder) AddBytes(name string, data []byte, modTime time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.committed {
		return opError("add", name, ErrBuilderCommitted)
	}

	n := pathutil.Normalize(name)
	if n == "" {
		return opError("add", name, fmt.Errorf("%w: entry name is empty", ErrInvalidConfig))
	}
	b.sources = append(b.sources, source{
		Source: index.Source{
			Name:    n,
			Kind:    KindFile,
			Size:    int64(len(data)),
			ModTime: modTime,
		},
		data:   bytes.Clone(data),
		inline: true,
	})
	return nil
}

// Entries returns a snapshot of the recorded entries in commit order.
// Sizes and times are as observed when each source was added.
func (b *Builder) Entries() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Entry, 0, len(b.sources))
	for _, s := range b.sources {
		e := Entry{Name: s.Name, Kind: s.Kind, ModTime: s.ModTime}
		if s.Kind == KindFile && s.Size > 0 {
			e.Size = uint64(s.Size)
		}
		out = append(out, e)
	}
	return out
}

// Commit writes every recorded entry to the destination container.
//
// Missing parent directories of the destination are created. Entries are
// written in the order they were added. The context is checked between
// entries and between copy chunks. A failed or canceled commit leaves a
// partially written destination in place.
//
// Commit may be called once; later calls return ErrBuilderCommitted.
func (b *Builder) Commit(ctx context.Context) (CommitStats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.committed {
		return CommitStats{}, opError("commit", b.dest, ErrBuilderCommitted)
	}
	b.committed = true

	b.log().Info("committing container",
		"dest", b.dest,
		"entries", len(b.sources),
		"compression", b.streamCfg.Compression.String(),
		"level", b.streamCfg.Level.String(),
		"encrypted", b.streamCfg.Encrypted(),
		"in_memory", b.cfg.inMemory)

	stats, err := b.commit(ctx)
	if err != nil {
		return stats, opError("commit", b.dest, err)
	}

	b.log().Info("container committed",
		"dest", b.dest,
		"entries", stats.Entries,
		"bytes", stats.Bytes,
		"size", stats.Size,
		"digest", stats.Digest.String())
	return stats, nil
}

func (b *Builder) commit(ctx context.Context) (CommitStats, error) {
	if err := os.MkdirAll(filepath.Dir(b.dest), 0o750); err != nil {
		return CommitStats{}, fmt.Errorf("create destination directory: %w", err)
	}

	if b.cfg.inMemory {
		var buf bytes.Buffer
		stats, err := b.writeContainer(ctx, &buf)
		if err != nil {
			return stats, err
		}
		return stats, os.WriteFile(b.dest, buf.Bytes(), 0o644) //nolint:gosec // containers are not secret; content is encrypted when needed
	}

	f, err := os.Create(b.dest)
	if err != nil {
		return CommitStats{}, err
	}
	stats, err := b.writeContainer(ctx, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return stats, err
}

// writeContainer streams every source through the container codec into dst.
func (b *Builder) writeContainer(ctx context.Context, dst io.Writer) (CommitStats, error) {
	var stats CommitStats
	digester := digest.Canonical.Digester()
	cw := &file.CountingWriter{W: io.MultiWriter(dst, digester.Hash())}

	w, err := stream.NewWriter(cw, b.streamCfg)
	if err != nil {
		return stats, err
	}

	roots := make(rootCache)
	defer roots.close()

	total := len(b.sources)
	for _, src := range b.sources {
		if err := ctx.Err(); err != nil {
			_ = w.Close() //nolint:errcheck // the destination is already incomplete
			return stats, err
		}

		n, written, err := b.writeSource(ctx, w, roots, src)
		if err != nil {
			_ = w.Close() //nolint:errcheck // the destination is already incomplete
			return stats, fmt.Errorf("write %s: %w", src.Name, err)
		}
		if !written {
			continue
		}

		stats.Entries++
		if src.Kind == KindDir {
			stats.Dirs++
		} else {
			stats.Files++
			stats.Bytes += n
		}
		b.reportProgress(StageWriting, src.Name, stats.Bytes, stats.Entries, total)
	}

	if err := w.Close(); err != nil {
		return stats, err
	}
	stats.Size = cw.N
	stats.Digest = digester.Digest()
	return stats, nil
}

// writeSource writes one entry. It reports written=false for sources that
// turned into symbolic links after they were added.
func (b *Builder) writeSource(ctx context.Context, w *stream.Writer, roots rootCache, src source) (n uint64, written bool, err error) {
	switch {
	case src.Kind == KindDir:
		return 0, true, w.WriteDir(src.Name, entryTime(src.ModTime))
	case src.inline:
		size := int64(len(src.data))
		return uint64(size), true, w.WriteFile(ctx, src.Name, entryTime(src.ModTime), size, bytes.NewReader(src.data))
	}

	root, err := roots.open(src.Dir)
	if err != nil {
		return 0, false, err
	}
	f, err := platform.OpenFileNoFollow(root, filepath.FromSlash(src.Rel))
	if err != nil {
		if errors.Is(err, platform.ErrSymlink) {
			b.log().Debug("skipping symbolic link", "name", src.Name)
			return 0, false, nil
		}
		return 0, false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, false, err
	}
	if !info.Mode().IsRegular() {
		return 0, false, fmt.Errorf("not a regular file: %s", src.Rel)
	}

	if err := w.WriteFile(ctx, src.Name, entryTime(info.ModTime()), info.Size(), f); err != nil {
		return 0, false, err
	}

	// The header already carries the size, so a file that grew while it
	// was copied cannot be recorded faithfully.
	after, err := f.Stat()
	if err != nil {
		return 0, false, err
	}
	if after.Size() != info.Size() {
		return 0, false, fmt.Errorf("%w: file size changed during commit: expected %d, got %d",
			ErrSizeMismatch, info.Size(), after.Size())
	}
	return uint64(info.Size()), true, nil
}

// entryTime maps the zero time to the Unix epoch, which tar can encode.
func entryTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Unix(0, 0).UTC()
	}
	return t
}

// rootCache keeps one os.Root open per source directory during a commit.
type rootCache map[string]*os.Root

func (c rootCache) open(dir string) (*os.Root, error) {
	if r, ok := c[dir]; ok {
		return r, nil
	}
	r, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	c[dir] = r
	return r, nil
}

func (c rootCache) close() {
	for _, r := range c {
		_ = r.Close() //nolint:errcheck // read-only roots
	}
}
