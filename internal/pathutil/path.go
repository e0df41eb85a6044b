// Package pathutil provides path manipulation for slash-separated entry names.
package pathutil

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/meigma/bundle/internal/blobtype"
)

// Normalize converts a caller-supplied name to entry-name form.
//
// It performs the following transformations:
//   - Converts backslashes to slashes: `sub\b.txt` → "sub/b.txt"
//   - Strips leading and trailing slashes: "/sub/" → "sub"
//   - Collapses consecutive slashes: "a//b" → "a/b"
//
// An empty or slash-only name normalizes to "". Dot and dot-dot elements are
// preserved; Join rejects them at the filesystem boundary.
func Normalize(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = strings.Trim(name, "/")
	if name == "" {
		return ""
	}

	parts := strings.Split(name, "/")
	result := parts[:0] // reuse backing array
	for _, part := range parts {
		if part != "" {
			result = append(result, part)
		}
	}
	return strings.Join(result, "/")
}

// Equal reports whether two entry names refer to the same entry.
// Names compare case-insensitively after normalization.
func Equal(a, b string) bool {
	return strings.EqualFold(Normalize(a), Normalize(b))
}

// Join resolves an entry name under dir using platform separators.
// Names that are empty or would escape dir return ErrUnsafePath.
func Join(dir, name string) (string, error) {
	rel := Normalize(name)
	if rel == "" || !fs.ValidPath(rel) {
		return "", fmt.Errorf("%w: %q", blobtype.ErrUnsafePath, name)
	}
	return filepath.Join(dir, filepath.FromSlash(rel)), nil
}
