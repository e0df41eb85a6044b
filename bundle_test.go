package bundle

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meigma/bundle/internal/testutil"
)

// fixedTime is a whole-second timestamp so fast-mode comparisons are exact
// on every filesystem.
var fixedTime = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

// sampleTree is the tree used by most end-to-end tests.
var sampleTree = map[string]string{
	"a.txt":     "hello",
	"sub/b.txt": "world",
}

// writeSource writes files under a fresh directory with fixedTime mtimes.
func writeSource(t *testing.T, files map[string]string) string {
	t.Helper()
	src := t.TempDir()
	testutil.WriteTree(t, src, files)
	for name := range files {
		testutil.SetModTime(t, filepath.Join(src, filepath.FromSlash(name)), fixedTime)
	}
	return src
}

// buildFolder packages files into a new container and returns its path.
func buildFolder(t *testing.T, files map[string]string, opts ...BuilderOption) string {
	t.Helper()
	src := writeSource(t, files)
	dest := filepath.Join(t.TempDir(), "out", "test.bundle")

	b, err := NewBuilder(dest, opts...)
	require.NoError(t, err)
	require.NoError(t, b.AddFolder(src, ""))
	_, err = b.Commit(context.Background())
	require.NoError(t, err)
	return dest
}

// buildBytes packages in-memory entries, in order, into a new container.
func buildBytes(t *testing.T, entries [][2]string, opts ...BuilderOption) string {
	t.Helper()
	dest := filepath.Join(t.TempDir(), "test.bundle")

	b, err := NewBuilder(dest, opts...)
	require.NoError(t, err)
	for _, e := range entries {
		require.NoError(t, b.AddBytes(e[0], []byte(e[1]), fixedTime))
	}
	_, err = b.Commit(context.Background())
	require.NoError(t, err)
	return dest
}

func newReader(t *testing.T, path string, opts ...ReaderOption) *Reader {
	t.Helper()
	r, err := NewReader(path, opts...)
	require.NoError(t, err)
	return r
}
