// Package index enumerates source files into entry sources: pairs of an
// on-disk location and the relative entry name it is stored under.
package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/meigma/bundle/internal/blobtype"
	"github.com/meigma/bundle/internal/pathutil"
)

// Source is one enumerated entry source.
type Source struct {
	// Dir is the source root directory.
	Dir string

	// Rel is the slash-separated path of the source relative to Dir.
	Rel string

	// Name is the normalized entry name.
	Name string

	// Kind is KindFile or KindDir.
	Kind blobtype.Kind

	// Size and ModTime are recorded at enumeration time. Writers re-stat
	// files when they are opened.
	Size    int64
	ModTime time.Time
}

// File resolves a single file under sourceDir.
func File(sourceDir, relPath string) (Source, error) {
	rel := pathutil.Normalize(relPath)
	if rel == "" || !fs.ValidPath(rel) {
		return Source{}, fmt.Errorf("%w: %q", blobtype.ErrUnsafePath, relPath)
	}

	root, err := os.OpenRoot(sourceDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Source{}, fmt.Errorf("%w: %s", blobtype.ErrSourceMissing, sourceDir)
		}
		return Source{}, err
	}
	defer root.Close()

	info, err := root.Lstat(filepath.FromSlash(rel))
	if err != nil {
		return Source{}, err
	}
	if !info.Mode().IsRegular() {
		return Source{}, &fs.PathError{Op: "add", Path: filepath.Join(sourceDir, filepath.FromSlash(rel)), Err: fs.ErrInvalid}
	}

	return Source{
		Dir:     sourceDir,
		Rel:     rel,
		Name:    rel,
		Kind:    blobtype.KindFile,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Folder walks relFolder under sourceDir in lexical order. An empty relFolder
// walks all of sourceDir.
//
// Every subdirectory yields a directory marker, including relFolder itself
// when it is not the source root, so empty directories survive a round trip.
// Regular files yield file sources. Symbolic links and special files are
// skipped. Entry names are relative to sourceDir.
func Folder(ctx context.Context, sourceDir, relFolder string) ([]Source, error) {
	start := pathutil.Normalize(relFolder)
	if start == "" {
		start = "."
	}
	if !fs.ValidPath(start) {
		return nil, fmt.Errorf("%w: %q", blobtype.ErrUnsafePath, relFolder)
	}

	root, err := os.OpenRoot(sourceDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", blobtype.ErrSourceMissing, sourceDir)
		}
		return nil, err
	}
	defer root.Close()

	info, err := root.Stat(filepath.FromSlash(start))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", blobtype.ErrSourceMissing, filepath.Join(sourceDir, filepath.FromSlash(start)))
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: not a directory: %s", blobtype.ErrInvalidConfig, filepath.Join(sourceDir, filepath.FromSlash(start)))
	}

	sources := make([]Source, 0, 64)
	err = fs.WalkDir(root.FS(), start, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			if p == "." {
				return nil
			}
			dinfo, err := d.Info()
			if err != nil {
				return err
			}
			sources = append(sources, Source{
				Dir:     sourceDir,
				Rel:     p,
				Name:    p,
				Kind:    blobtype.KindDir,
				ModTime: dinfo.ModTime(),
			})
			return nil
		}

		finfo, ok, err := resolveFileInfo(root, p, d)
		if err != nil || !ok {
			return err
		}
		sources = append(sources, Source{
			Dir:     sourceDir,
			Rel:     p,
			Name:    p,
			Kind:    blobtype.KindFile,
			Size:    finfo.Size(),
			ModTime: finfo.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sources, nil
}

// resolveFileInfo gets FileInfo for a walked entry, filtering out symlinks
// and non-regular files. Returns (info, ok, error) where ok=false means the
// entry should be skipped.
func resolveFileInfo(root *os.Root, p string, d fs.DirEntry) (fs.FileInfo, bool, error) {
	dtype := d.Type()
	if dtype&fs.ModeSymlink != 0 {
		return nil, false, nil
	}

	if !dtype.IsRegular() {
		return nil, false, nil
	}

	linfo, err := root.Lstat(filepath.FromSlash(p))
	if err != nil {
		return nil, false, err
	}
	if !linfo.Mode().IsRegular() {
		return nil, false, nil
	}
	return linfo, true, nil
}
