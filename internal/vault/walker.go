package vault

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Walker discovers markdown notes under a vault root.
type Walker struct {
	excluded []string
}

// NewWalker creates a walker that skips paths containing any of the
// excluded folder names.
func NewWalker(excluded []string) *Walker {
	return &Walker{excluded: excluded}
}

// Walk returns the absolute paths of all indexable markdown files under
// root in lexicographic order. A missing or unreadable root yields an
// empty result, not an error; only context cancellation fails the walk.
func (w *Walker) Walk(ctx context.Context, root string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		slog.Warn("vault root not resolvable", slog.String("root", root), slog.String("error", err.Error()))
		return nil, nil
	}

	info, err := os.Stat(absRoot)
	if err != nil || !info.IsDir() {
		slog.Warn("vault root not readable, skipping", slog.String("root", absRoot))
		return nil, nil
	}

	var files []string
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil // skip entries we cannot access
		}

		name := d.Name()
		if d.IsDir() {
			if path != absRoot && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".md") {
			return nil
		}
		if w.Excluded(path) {
			return nil
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return files, ctx.Err()
		}
		slog.Warn("vault walk aborted", slog.String("root", absRoot), slog.String("error", err.Error()))
	}
	return files, nil
}

// Excluded reports whether the path contains any configured excluded
// folder name.
func (w *Walker) Excluded(path string) bool {
	normalized := filepath.ToSlash(path)
	for _, folder := range w.excluded {
		if folder == "" {
			continue
		}
		if strings.Contains(normalized, folder) {
			return true
		}
	}
	return false
}
