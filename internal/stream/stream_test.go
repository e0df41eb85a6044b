package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/bundle/internal/blobtype"
	"github.com/meigma/bundle/internal/keyderiv"
)

type testEntry struct {
	name string
	dir  bool
	data string
}

var mtime = time.Date(2024, 5, 1, 12, 30, 15, 0, time.UTC)

func encryptedConfig(t *testing.T, password, ivSeed string) Config {
	t.Helper()
	m, err := keyderiv.Derive(password, ivSeed)
	require.NoError(t, err)
	return Config{Key: m.Key[:], IV: m.IV[:]}
}

func build(t *testing.T, cfg Config, entries []testEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, cfg)
	require.NoError(t, err)
	for _, e := range entries {
		if e.dir {
			require.NoError(t, w.WriteDir(e.name, mtime))
			continue
		}
		require.NoError(t, w.WriteFile(context.Background(), e.name, mtime, int64(len(e.data)), strings.NewReader(e.data)))
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func readAll(t *testing.T, container []byte, cfg Config) ([]blobtype.Entry, map[string]string, error) {
	t.Helper()
	r, err := NewReader(bytes.NewReader(container), cfg)
	if err != nil {
		return nil, nil, err
	}
	defer r.Close()

	var entries []blobtype.Entry
	contents := make(map[string]string)
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return entries, contents, r.Drain()
		}
		if err != nil {
			return entries, contents, err
		}
		entries = append(entries, e)
		data, err := io.ReadAll(r)
		if err != nil {
			return entries, contents, err
		}
		if !e.IsDir() {
			contents[e.Name] = string(data)
		}
	}
}

var sample = []testEntry{
	{name: "a.txt", data: "hello"},
	{name: "sub", dir: true},
	{name: "sub/b.txt", data: "world"},
	{name: "empty.bin", data: ""},
	{name: "big.txt", data: strings.Repeat("0123456789", 10_000)},
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"zstd plain", Config{}},
		{"gzip plain", Config{Compression: blobtype.CompressionGzip, Level: blobtype.LevelBest}},
		{"zstd encrypted", encryptedConfig(t, "secret", "")},
		{"gzip encrypted with iv seed", func() Config {
			cfg := encryptedConfig(t, "secret", "seed")
			cfg.Compression = blobtype.CompressionGzip
			return cfg
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			container := build(t, tt.cfg, sample)

			entries, contents, err := readAll(t, container, tt.cfg)
			require.NoError(t, err)
			require.Len(t, entries, len(sample))

			for i, want := range sample {
				got := entries[i]
				assert.Equal(t, want.name, got.Name)
				assert.Equal(t, want.dir, got.IsDir())
				assert.True(t, mtime.Equal(got.ModTime), "mtime of %s", got.Name)
				if !want.dir {
					assert.Equal(t, uint64(len(want.data)), got.Size)
					assert.Equal(t, want.data, contents[want.name])
				}
			}
		})
	}
}

func TestWriter_Deterministic(t *testing.T) {
	t.Parallel()

	cfg := encryptedConfig(t, "secret", "")
	assert.Equal(t, build(t, cfg, sample), build(t, cfg, sample))
	assert.Equal(t, build(t, Config{}, sample), build(t, Config{}, sample))
}

func TestWriter_SizeMismatch(t *testing.T) {
	t.Parallel()

	w, err := NewWriter(io.Discard, Config{})
	require.NoError(t, err)
	err = w.WriteFile(context.Background(), "short.txt", mtime, 10, strings.NewReader("abc"))
	require.ErrorIs(t, err, blobtype.ErrSizeMismatch)
}

func TestWriter_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w, err := NewWriter(io.Discard, Config{})
	require.NoError(t, err)
	err = w.WriteFile(ctx, "a.txt", mtime, 5, strings.NewReader("hello"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestReader_WrongPassword(t *testing.T) {
	t.Parallel()

	container := build(t, encryptedConfig(t, "right", ""), sample)

	_, _, err := readAll(t, container, encryptedConfig(t, "wrong", ""))
	require.ErrorIs(t, err, blobtype.ErrDecrypt)
}

func TestReader_WrongIVSeed(t *testing.T) {
	t.Parallel()

	container := build(t, encryptedConfig(t, "secret", "seed-a"), sample)

	// Only the first block depends on the IV under CBC, which corrupts the
	// first header.
	_, _, err := readAll(t, container, encryptedConfig(t, "secret", "seed-b"))
	require.ErrorIs(t, err, blobtype.ErrDecrypt)
}

func TestReader_EncryptedReadAsPlain(t *testing.T) {
	t.Parallel()

	container := build(t, encryptedConfig(t, "secret", ""), sample)

	_, _, err := readAll(t, container, Config{})
	require.ErrorIs(t, err, blobtype.ErrFormat)
}

func TestReader_NotAContainer(t *testing.T) {
	t.Parallel()

	_, err := NewReader(strings.NewReader("definitely not compressed"), Config{})
	require.ErrorIs(t, err, blobtype.ErrFormat)
}

func TestReader_Truncated(t *testing.T) {
	t.Parallel()

	container := build(t, Config{}, sample)

	_, _, err := readAll(t, container[:len(container)/2], Config{})
	require.ErrorIs(t, err, blobtype.ErrFormat)
}

func TestReader_Empty(t *testing.T) {
	t.Parallel()

	container := build(t, encryptedConfig(t, "secret", ""), nil)

	entries, _, err := readAll(t, container, encryptedConfig(t, "secret", ""))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReader_DetectsCompression(t *testing.T) {
	t.Parallel()

	for _, c := range []blobtype.Compression{blobtype.CompressionZstd, blobtype.CompressionGzip} {
		container := build(t, Config{Compression: c}, sample)

		r, err := NewReader(bytes.NewReader(container), Config{DecoderLowmem: true, MaxDecoderMemory: 64 << 20})
		require.NoError(t, err)
		assert.Equal(t, c, r.Compression())

		e, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, "a.txt", e.Name)
		require.NoError(t, r.Close())
	}
}
