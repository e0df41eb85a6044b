package bundle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/meigma/bundle/internal/file"
	"github.com/meigma/bundle/internal/pathutil"
	"github.com/meigma/bundle/internal/sink"
	"github.com/meigma/bundle/internal/sizing"
	"github.com/meigma/bundle/internal/stream"
)

// SyncStats summarizes a SyncTo run.
type SyncStats struct {
	// Entries is the number of entries read from the container.
	Entries int

	// Written is the number of files created or overwritten.
	Written int

	// Unchanged is the number of files that were already up to date.
	Unchanged int

	// Dirs is the number of directory markers applied.
	Dirs int

	// Skipped is the number of entries ignored because an earlier entry had
	// the same name.
	Skipped int

	// Bytes is the number of bytes written to the target directory.
	Bytes uint64
}

// SyncTo reconciles dir with the container.
//
// Entries are processed in stream order and the first entry with a given
// name wins. Directory markers are created. A file missing from dir is
// written; an existing file is compared according to mode and rewritten
// only when it differs. Files are written to a temporary file and renamed
// into place with the entry's modification time, so SyncFast recognizes
// them on the next run. Files in dir that are not in the container are left
// alone.
//
// An entry name that would escape dir aborts the sync with ErrUnsafePath.
// Cancellation is observed between entries and between copy chunks; files
// reconciled before cancellation stay as they are.
func (r *Reader) SyncTo(ctx context.Context, dir string, mode SyncMode, opts ...SyncOption) (SyncStats, error) {
	cfg := syncConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.spoolThreshold == 0 {
		cfg.spoolThreshold = DefaultSpoolThreshold
	}
	if cfg.readAheadBytes == 0 {
		cfg.readAheadBytes = DefaultReadAheadBytes
	}
	if mode != SyncHash && mode != SyncFast {
		return SyncStats{}, opError("sync", dir, fmt.Errorf("%w: unknown sync mode %d", ErrInvalidConfig, mode))
	}

	r.log().Info("syncing container", "container", r.path, "dir", dir, "mode", mode.String(), "workers", cfg.workers)

	s, err := sink.Open(dir)
	if err != nil {
		return SyncStats{}, opError("sync", dir, err)
	}
	defer s.Close()

	sy := &syncer{
		r:    r,
		sink: s,
		mode: mode,
		cfg:  cfg,
		seen: make(map[string]struct{}),
	}
	if cfg.workers > 1 {
		err = sy.runParallel(ctx)
	} else {
		err = sy.runSerial(ctx)
	}

	stats := sy.snapshot()
	if err != nil {
		return stats, opError("sync", dir, err)
	}
	r.log().Info("sync complete",
		"dir", dir,
		"entries", stats.Entries,
		"written", stats.Written,
		"unchanged", stats.Unchanged,
		"skipped", stats.Skipped)
	return stats, nil
}

// syncer holds the state of one SyncTo run.
type syncer struct {
	r    *Reader
	sink *sink.FileSink
	mode SyncMode
	cfg  syncConfig

	// seen is only touched by the scanning goroutine.
	seen map[string]struct{}

	mu    sync.Mutex
	stats SyncStats
}

func (sy *syncer) snapshot() SyncStats {
	sy.mu.Lock()
	defer sy.mu.Unlock()
	return sy.stats
}

func (sy *syncer) record(name string, fn func(*SyncStats)) {
	sy.mu.Lock()
	fn(&sy.stats)
	done := sy.stats.Written + sy.stats.Unchanged + sy.stats.Dirs
	bytesDone := sy.stats.Bytes
	sy.mu.Unlock()
	sy.r.reportProgress(StageSyncing, name, bytesDone, done)
}

// admit validates an entry name and reports whether the entry is the first
// with that name.
func (sy *syncer) admit(e Entry) (bool, error) {
	sy.mu.Lock()
	sy.stats.Entries++
	sy.mu.Unlock()

	if _, err := pathutil.Join(sy.sink.Dir(), e.Name); err != nil {
		return false, err
	}
	key := pathutil.Normalize(e.Name)
	if _, dup := sy.seen[key]; dup {
		sy.r.log().Debug("skipping duplicate entry", "name", e.Name)
		sy.mu.Lock()
		sy.stats.Skipped++
		sy.mu.Unlock()
		return false, nil
	}
	sy.seen[key] = struct{}{}
	return true, nil
}

func (sy *syncer) runSerial(ctx context.Context) error {
	buf := make([]byte, file.CopyBufferSize)
	return sy.r.scan(ctx, func(e Entry, sr *stream.Reader) error {
		ok, err := sy.admit(e)
		if err != nil || !ok {
			return err
		}
		if e.IsDir() {
			return sy.applyDir(e)
		}
		return sy.reconcile(ctx, buf, e, sr)
	})
}

// runParallel reads entries on the calling goroutine and hands buffered
// content to workers. The semaphore bounds the bytes held in memory.
func (sy *syncer) runParallel(ctx context.Context) error {
	limit, err := sizing.ToInt64(sy.cfg.readAheadBytes, ErrSizeOverflow)
	if err != nil {
		return err
	}
	budget := semaphore.NewWeighted(limit)

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(sy.cfg.workers)

	buf := make([]byte, file.CopyBufferSize)
	scanErr := sy.r.scan(gctx, func(e Entry, sr *stream.Reader) error {
		ok, err := sy.admit(e)
		if err != nil || !ok {
			return err
		}
		if e.IsDir() {
			return sy.applyDir(e)
		}
		if e.Size > sy.cfg.readAheadBytes {
			return sy.reconcile(gctx, buf, e, sr)
		}

		size := int64(e.Size) //nolint:gosec // bounded by readAheadBytes, which fits in int64
		if err := budget.Acquire(gctx, size); err != nil {
			return err
		}
		data, err := sizing.ReadExact(sr, e.Size, ErrSizeOverflow)
		if err != nil {
			budget.Release(size)
			return err
		}
		eg.Go(func() error {
			defer budget.Release(size)
			return sy.reconcile(gctx, nil, e, bytes.NewReader(data))
		})
		return nil
	})
	waitErr := eg.Wait()

	// A worker failure cancels gctx, which the scan reports as
	// context.Canceled; the worker's error is the cause.
	if scanErr != nil && !errors.Is(scanErr, context.Canceled) {
		return scanErr
	}
	if waitErr != nil {
		return waitErr
	}
	return scanErr
}

func (sy *syncer) applyDir(e Entry) error {
	if err := sy.sink.MkdirAll(e.Name); err != nil {
		return err
	}
	sy.record(e.Name, func(s *SyncStats) { s.Dirs++ })
	return nil
}

// reconcile brings the file for e in line with the content read from src.
func (sy *syncer) reconcile(ctx context.Context, buf []byte, e Entry, src io.Reader) error {
	info, err := sy.sink.Lstat(e.Name)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return sy.write(ctx, buf, e, src)
	case err != nil:
		return err
	case !info.Mode().IsRegular():
		// Let the rename report the conflict.
		return sy.write(ctx, buf, e, src)
	}

	sameSize := info.Size() >= 0 && uint64(info.Size()) == e.Size
	switch sy.mode {
	case SyncFast:
		if sameSize && info.ModTime().Unix() == e.ModTime.Unix() {
			sy.unchanged(e)
			return nil
		}
		return sy.write(ctx, buf, e, src)
	default:
		if !sameSize {
			return sy.write(ctx, buf, e, src)
		}
		return sy.syncHash(ctx, buf, e, src)
	}
}

// syncHash compares the fingerprint of the target file with the entry's.
// Entry content up to the spool threshold is held in memory. Larger entries
// are compared against the target chunk by chunk, so an unchanged file is
// never written.
func (sy *syncer) syncHash(ctx context.Context, buf []byte, e Entry, src io.Reader) error {
	if br, buffered := src.(*bytes.Reader); buffered {
		want, err := sy.fingerprintTarget(ctx, buf, e.Name)
		if err != nil {
			return err
		}
		got, err := file.Fingerprint(ctx, br, buf)
		if err != nil {
			return err
		}
		if bytes.Equal(got, want) {
			sy.unchanged(e)
			return nil
		}
		if _, err := br.Seek(0, io.SeekStart); err != nil {
			return err
		}
		return sy.write(ctx, buf, e, br)
	}

	if e.Size > sy.cfg.spoolThreshold {
		return sy.syncLarge(ctx, buf, e, src)
	}

	want, err := sy.fingerprintTarget(ctx, buf, e.Name)
	if err != nil {
		return err
	}
	hr := file.NewHashingReader(src, file.NewFingerprint())
	data, err := sizing.ReadExact(hr, e.Size, ErrSizeOverflow)
	if err != nil {
		return err
	}
	if bytes.Equal(hr.Sum(), want) {
		sy.unchanged(e)
		return nil
	}
	return sy.write(ctx, buf, e, bytes.NewReader(data))
}

// syncLarge reads the entry and the same-sized target side by side. A
// temporary file is opened only at the first differing chunk; it is seeded
// with the matching prefix re-read from the target and then receives the
// rest of the entry.
func (sy *syncer) syncLarge(ctx context.Context, buf []byte, e Entry, src io.Reader) error {
	f, err := sy.sink.Open(e.Name)
	if err != nil {
		return err
	}
	defer f.Close()

	if len(buf) < 2 {
		buf = make([]byte, file.CopyBufferSize)
	}
	half := len(buf) / 2
	chunk, target := buf[:half], buf[half:]

	var off uint64
	for off < e.Size {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := io.ReadFull(src, chunk)
		if n == 0 {
			if err == nil || err == io.EOF { //nolint:errorlint // io.ReadFull returns io.EOF unwrapped
				err = io.ErrUnexpectedEOF
			}
			return err
		}
		if err != nil && err != io.ErrUnexpectedEOF { //nolint:errorlint // io.ReadFull returns io.ErrUnexpectedEOF unwrapped
			return err
		}

		m, terr := io.ReadFull(f, target[:n])
		if terr != nil && terr != io.EOF && terr != io.ErrUnexpectedEOF { //nolint:errorlint // io.ReadFull sentinels are unwrapped
			return terr
		}
		if m != n || !bytes.Equal(chunk[:n], target[:n]) {
			return sy.rewrite(ctx, target, e, f, off, chunk[:n], src)
		}
		off += uint64(n) //nolint:gosec // n is non-negative
	}

	sy.unchanged(e)
	return nil
}

// rewrite replaces the target with its first prefix bytes, then pending,
// then the rest of src.
func (sy *syncer) rewrite(ctx context.Context, buf []byte, e Entry, target *os.File, prefix uint64, pending []byte, src io.Reader) error {
	size, err := sizing.ToInt64(prefix, ErrSizeOverflow)
	if err != nil {
		return err
	}
	w, err := sy.sink.Writer(e.Name, e.ModTime)
	if err != nil {
		return err
	}
	n, err := sy.fill(ctx, w, buf, io.NewSectionReader(target, 0, size), pending, src)
	if err != nil {
		_ = w.Discard() //nolint:errcheck // best-effort cleanup
		return err
	}
	if n != e.Size {
		_ = w.Discard() //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("%w: %s: wrote %d of %d bytes", ErrSizeMismatch, e.Name, n, e.Size)
	}
	// Some platforms refuse to rename over an open file.
	_ = target.Close() //nolint:errcheck // read-only handle
	if err := w.Commit(); err != nil {
		return err
	}
	sy.written(e, n)
	return nil
}

func (sy *syncer) fill(ctx context.Context, w io.Writer, buf []byte, head io.Reader, pending []byte, src io.Reader) (uint64, error) {
	n, err := file.CopyWithContext(ctx, w, head, buf)
	if err != nil {
		return n, err
	}
	if _, err := w.Write(pending); err != nil {
		return n, err
	}
	n += uint64(len(pending))
	rest, err := file.CopyWithContext(ctx, w, src, buf)
	return n + rest, err
}

func (sy *syncer) fingerprintTarget(ctx context.Context, buf []byte, name string) ([]byte, error) {
	f, err := sy.sink.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return file.Fingerprint(ctx, f, buf)
}

// write replaces the target file with the content read from src.
func (sy *syncer) write(ctx context.Context, buf []byte, e Entry, src io.Reader) error {
	w, err := sy.sink.Writer(e.Name, e.ModTime)
	if err != nil {
		return err
	}
	n, err := file.CopyWithContext(ctx, w, src, buf)
	if err != nil {
		_ = w.Discard() //nolint:errcheck // best-effort cleanup
		return err
	}
	if err := w.Commit(); err != nil {
		return err
	}
	sy.written(e, n)
	return nil
}

func (sy *syncer) written(e Entry, n uint64) {
	sy.r.log().Debug("entry written", "name", e.Name, "bytes", n, "mode", sy.mode.String())
	sy.record(e.Name, func(s *SyncStats) {
		s.Written++
		s.Bytes += n
	})
}

func (sy *syncer) unchanged(e Entry) {
	sy.r.log().Debug("entry unchanged", "name", e.Name, "mode", sy.mode.String())
	sy.record(e.Name, func(s *SyncStats) { s.Unchanged++ })
}
