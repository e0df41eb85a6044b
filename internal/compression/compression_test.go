package compression

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/bundle/internal/blobtype"
)

func compress(t *testing.T, data []byte, c blobtype.Compression, level blobtype.Level) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, c, level)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("the quick brown fox "), 2048)
	algorithms := []blobtype.Compression{blobtype.CompressionZstd, blobtype.CompressionGzip}
	levels := []blobtype.Level{blobtype.LevelDefault, blobtype.LevelFastest, blobtype.LevelBetter, blobtype.LevelBest}

	for _, c := range algorithms {
		for _, level := range levels {
			t.Run(c.String()+"/"+level.String(), func(t *testing.T) {
				t.Parallel()
				compressed := compress(t, data, c, level)
				assert.Less(t, len(compressed), len(data))

				r, detected, err := NewReader(bytes.NewReader(compressed))
				require.NoError(t, err)
				defer r.Close()
				assert.Equal(t, c, detected)

				got, err := io.ReadAll(r)
				require.NoError(t, err)
				assert.Equal(t, data, got)
			})
		}
	}
}

func TestNewWriter_Deterministic(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("determinism "), 500)
	for _, c := range []blobtype.Compression{blobtype.CompressionZstd, blobtype.CompressionGzip} {
		assert.Equal(t, compress(t, data, c, blobtype.LevelBest), compress(t, data, c, blobtype.LevelBest))
	}
}

func TestNewWriter_UnknownAlgorithm(t *testing.T) {
	t.Parallel()

	_, err := NewWriter(io.Discard, blobtype.Compression(99), blobtype.LevelDefault)
	require.ErrorIs(t, err, blobtype.ErrInvalidConfig)
}

func TestNewReader_UnknownMagic(t *testing.T) {
	t.Parallel()

	_, _, err := NewReader(bytes.NewReader([]byte("plain text, not compressed")))
	require.ErrorIs(t, err, ErrUnknownCompression)
	require.ErrorIs(t, err, blobtype.ErrFormat)

	_, _, err = NewReader(bytes.NewReader(nil))
	require.ErrorIs(t, err, blobtype.ErrFormat)
}

func TestNewReader_Corrupted(t *testing.T) {
	t.Parallel()

	compressed := compress(t, bytes.Repeat([]byte("payload "), 4096), blobtype.CompressionZstd, blobtype.LevelDefault)
	truncated := compressed[:len(compressed)/2]

	r, _, err := NewReader(bytes.NewReader(truncated))
	require.NoError(t, err)
	defer r.Close()

	_, err = io.ReadAll(r)
	require.ErrorIs(t, err, blobtype.ErrFormat)
}
