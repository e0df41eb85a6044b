package bundle

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/bundle/internal/testutil"
)

func TestCommit_Stats(t *testing.T) {
	t.Parallel()

	src := writeSource(t, map[string]string{
		"a.txt":       "hello",
		"sub/b.txt":   "world!",
		"sub/c/d.txt": "",
	})
	dest := filepath.Join(t.TempDir(), "nested", "dir", "out.bundle")

	b, err := NewBuilder(dest)
	require.NoError(t, err)
	require.NoError(t, b.AddFolder(src, ""))

	stats, err := b.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Entries)
	assert.Equal(t, 3, stats.Files)
	assert.Equal(t, 2, stats.Dirs)
	assert.Equal(t, uint64(11), stats.Bytes)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(data)), stats.Size)
	assert.Equal(t, digest.FromBytes(data), stats.Digest)
}

func TestBuilder_Entries(t *testing.T) {
	t.Parallel()

	src := writeSource(t, sampleTree)
	b, err := NewBuilder(filepath.Join(t.TempDir(), "out.bundle"))
	require.NoError(t, err)
	require.NoError(t, b.AddFile(src, `sub\b.txt`))
	require.NoError(t, b.AddBytes("/mem//c.txt/", []byte("abc"), fixedTime))

	entries := b.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "sub/b.txt", entries[0].Name)
	assert.Equal(t, uint64(5), entries[0].Size)
	assert.Equal(t, KindFile, entries[0].Kind)
	assert.Equal(t, "mem/c.txt", entries[1].Name)
	assert.Equal(t, uint64(3), entries[1].Size)

	// Snapshot is a copy.
	entries[0].Name = "changed"
	assert.Equal(t, "sub/b.txt", b.Entries()[0].Name)
}

func TestBuilder_AddFolderContextCanceled(t *testing.T) {
	t.Parallel()

	src := writeSource(t, sampleTree)
	b, err := NewBuilder(filepath.Join(t.TempDir(), "out.bundle"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = b.AddFolderContext(ctx, src, "")
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, b.Entries())

	require.NoError(t, b.AddFolderContext(context.Background(), src, "sub"))
	require.Len(t, b.Entries(), 2)
}

func TestBuilder_SingleShot(t *testing.T) {
	t.Parallel()

	src := writeSource(t, sampleTree)
	b, err := NewBuilder(filepath.Join(t.TempDir(), "out.bundle"))
	require.NoError(t, err)
	require.NoError(t, b.AddFile(src, "a.txt"))
	_, err = b.Commit(context.Background())
	require.NoError(t, err)

	_, err = b.Commit(context.Background())
	require.ErrorIs(t, err, ErrBuilderCommitted)
	require.ErrorIs(t, b.AddFile(src, "a.txt"), ErrBuilderCommitted)
	require.ErrorIs(t, b.AddFolder(src, ""), ErrBuilderCommitted)
	require.ErrorIs(t, b.AddBytes("x", nil, time.Time{}), ErrBuilderCommitted)
}

func TestBuilder_SourceErrors(t *testing.T) {
	t.Parallel()

	src := writeSource(t, sampleTree)
	b, err := NewBuilder(filepath.Join(t.TempDir(), "out.bundle"))
	require.NoError(t, err)

	err = b.AddFolder(src, "missing")
	require.ErrorIs(t, err, ErrSourceMissing)
	require.ErrorIs(t, err, ErrInvalidConfig)
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "add", opErr.Op)

	require.ErrorIs(t, b.AddFolder(filepath.Join(src, "nope"), ""), ErrSourceMissing)
	require.ErrorIs(t, b.AddFile(src, "missing.txt"), os.ErrNotExist)
	require.ErrorIs(t, b.AddFile(src, "../outside.txt"), ErrUnsafePath)
	require.ErrorIs(t, b.AddBytes("//", []byte("x"), fixedTime), ErrInvalidConfig)

	_, err = NewBuilder("")
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestCommit_Deterministic(t *testing.T) {
	t.Parallel()

	entries := [][2]string{{"a.txt", "hello"}, {"sub/b.txt", "world"}}
	for _, opts := range [][]BuilderOption{
		nil,
		{BuildWithPassword("pw")},
		{BuildWithPassword("pw"), BuildWithIVSeed("seed"), BuildWithCompression(CompressionGzip)},
	} {
		first, err := os.ReadFile(buildBytes(t, entries, opts...))
		require.NoError(t, err)
		second, err := os.ReadFile(buildBytes(t, entries, opts...))
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
}

func TestCommit_InMemoryMatchesDisk(t *testing.T) {
	t.Parallel()

	entries := [][2]string{{"a.txt", "hello"}, {"sub/b.txt", "world"}}
	disk, err := os.ReadFile(buildBytes(t, entries, BuildWithPassword("pw")))
	require.NoError(t, err)
	mem, err := os.ReadFile(buildBytes(t, entries, BuildWithPassword("pw"), BuildWithInMemory(true)))
	require.NoError(t, err)
	assert.Equal(t, disk, mem)
}

func TestCommit_Canceled(t *testing.T) {
	t.Parallel()

	src := writeSource(t, sampleTree)
	dest := filepath.Join(t.TempDir(), "out.bundle")
	b, err := NewBuilder(dest)
	require.NoError(t, err)
	require.NoError(t, b.AddFolder(src, ""))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Commit(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// The partial destination is left in place.
	_, statErr := os.Stat(dest)
	require.NoError(t, statErr)

	// A failed commit still consumes the builder.
	_, err = b.Commit(context.Background())
	require.ErrorIs(t, err, ErrBuilderCommitted)
}

func TestCommit_ZeroModTime(t *testing.T) {
	t.Parallel()

	dest := filepath.Join(t.TempDir(), "out.bundle")
	b, err := NewBuilder(dest)
	require.NoError(t, err)
	require.NoError(t, b.AddBytes("a.txt", []byte("x"), time.Time{}))
	_, err = b.Commit(context.Background())
	require.NoError(t, err)

	entries, err := newReader(t, dest).List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(0), entries[0].ModTime.Unix())
}

func TestCommit_LoggingAndProgress(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	var rec testutil.ProgressRecorder[ProgressEvent]

	src := writeSource(t, sampleTree)
	b, err := NewBuilder(filepath.Join(t.TempDir(), "out.bundle"),
		BuildWithLogger(logger),
		BuildWithProgress(rec.Record),
		BuildWithLevel(LevelBest))
	require.NoError(t, err)
	require.NoError(t, b.AddFolder(src, ""))
	_, err = b.Commit(context.Background())
	require.NoError(t, err)

	assert.Contains(t, logs.String(), "committing container")
	assert.Contains(t, logs.String(), "container committed")

	events := rec.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, StageEnumerating, events[0].Stage)
	last := events[len(events)-1]
	assert.Equal(t, StageWriting, last.Stage)
	assert.Equal(t, 3, last.FilesDone)
	assert.Equal(t, 3, last.FilesTotal)
	assert.Equal(t, uint64(10), last.BytesDone)
}

func TestCommit_SkipsSymlinks(t *testing.T) {
	t.Parallel()

	src := writeSource(t, sampleTree)
	if err := os.Symlink(filepath.Join(src, "a.txt"), filepath.Join(src, "link.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	dest := filepath.Join(t.TempDir(), "out.bundle")
	b, err := NewBuilder(dest)
	require.NoError(t, err)
	require.NoError(t, b.AddFolder(src, ""))
	_, err = b.Commit(context.Background())
	require.NoError(t, err)

	entries, err := newReader(t, dest).List(context.Background())
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"a.txt", "sub", "sub/b.txt"}, names)
}
