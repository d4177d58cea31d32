package index

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Aman-CERP/trenton/internal/media"
	"github.com/Aman-CERP/trenton/internal/store"
)

// target is one path to reconcile, with the folder that owns it.
type target struct {
	path   string
	folder *store.Folder
}

// expand turns job paths into per-file targets. A directory contributes
// every media file below it on disk plus every live stored file below it,
// so files that vanished are reconciled too. Paths outside every folder are
// kept with a nil folder and end up ignored.
func expand(ctx context.Context, st *store.Store, folders []store.Folder, paths []string) ([]target, error) {
	seen := make(map[string]struct{})
	var out []target
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, target{path: p, folder: folderFor(folders, p)})
	}

	for _, raw := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := media.CanonicalPath(raw)
		if err != nil {
			return nil, err
		}

		info, statErr := os.Stat(p)
		isDir := statErr == nil && info.IsDir()
		if statErr == nil && !isDir {
			add(p)
			continue
		}

		if isDir {
			for _, f := range walkMedia(p) {
				add(f)
			}
		}

		// A missing path may have been a file or a directory; the stored
		// rows say which.
		stored, err := st.ListFilesUnder(ctx, p, false)
		if err != nil {
			return nil, err
		}
		for _, f := range stored {
			add(f.Path)
		}
		if !isDir && len(stored) == 0 {
			add(p)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out, nil
}

// walkMedia lists media files below dir, skipping hidden entries.
// Unreadable subtrees are skipped.
func walkMedia(dir string) []string {
	var files []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if path != dir && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if media.ModalityOf(path).Searchable() {
			files = append(files, path)
		}
		return nil
	})
	return files
}

// withinRoot reports whether path is root or below it.
func withinRoot(path, root string) bool {
	if path == root {
		return true
	}
	if !strings.HasSuffix(root, string(filepath.Separator)) {
		root += string(filepath.Separator)
	}
	return strings.HasPrefix(path, root)
}
