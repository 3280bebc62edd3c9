package photos

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
)

// IsImage reports whether path has a .jpg or .png extension, ignoring case.
func IsImage(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".png":
		return true
	}
	return false
}

// IdentityFromFilename returns the stem of path up to the first underscore.
// It returns "" when the stem is empty.
func IdentityFromFilename(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if i := strings.IndexByte(stem, '_'); i >= 0 {
		stem = stem[:i]
	}
	return stem
}

// Discover walks root and groups image paths by identity. Paths within an
// identity are sorted. Unreadable entries below root are skipped.
func Discover(root string) (map[string][]string, error) {
	result := map[string][]string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			slog.Debug("photo entry skipped", "path", path, "error", err)
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() || !IsImage(path) {
			return nil
		}
		id := IdentityFromFilename(path)
		if id == "" {
			return nil
		}
		result[id] = append(result[id], path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("photos: walk %s: %w", root, err)
	}
	for _, paths := range result {
		sort.Strings(paths)
	}
	return result, nil
}

// Identities returns the sorted identity ids found under root.
func Identities(root string) ([]string, error) {
	groups, err := Discover(root)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
