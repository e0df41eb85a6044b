// Package blobtype defines shared types used across the bundle package and its
// internal packages. This avoids circular imports between bundle and the
// internal codec packages.
package blobtype

// Compression identifies the compressor wrapping a container.
type Compression uint8

const (
	CompressionZstd Compression = iota
	CompressionGzip
)

func (c Compression) String() string {
	switch c {
	case CompressionZstd:
		return "zstd"
	case CompressionGzip:
		return "gzip"
	default:
		return "unknown"
	}
}

// Level selects the compressor's speed/ratio trade-off.
type Level uint8

const (
	LevelDefault Level = iota
	LevelFastest
	LevelBetter
	LevelBest
)

func (l Level) String() string {
	switch l {
	case LevelDefault:
		return "default"
	case LevelFastest:
		return "fastest"
	case LevelBetter:
		return "better"
	case LevelBest:
		return "best"
	default:
		return "unknown"
	}
}
