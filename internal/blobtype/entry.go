package blobtype

import "time"

// Kind distinguishes regular files from directory markers.
type Kind uint8

const (
	KindFile Kind = iota
	KindDir
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	default:
		return "unknown"
	}
}

// Entry describes one logical file or directory marker in a container.
type Entry struct {
	// Name is the forward-slash relative name (e.g., "sub/b.txt").
	Name string

	// Kind is KindFile or KindDir.
	Kind Kind

	// Size is the content length in bytes. Always zero for directories.
	Size uint64

	// ModTime is the modification time recorded for the entry.
	ModTime time.Time
}

// IsDir reports whether the entry is a directory marker.
func (e Entry) IsDir() bool {
	return e.Kind == KindDir
}
