package binary

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
)

// stagingSuffix marks a cache entry that is still being extracted.
const stagingSuffix = ".downloading"

// CacheKey returns the cache directory name for an archive URL and binary
// set. The order of names does not matter.
func CacheKey(archiveURL string, names []string) string {
	sorted := slices.Clone(names)
	slices.Sort(sorted)

	h := sha256.New()
	h.Write([]byte(archiveURL))
	for _, name := range sorted {
		h.Write([]byte{0})
		h.Write([]byte(name))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CleanCache removes the cache root and everything under it. A missing root
// is not an error.
func CleanCache(root string) error {
	if root == "" || filepath.Dir(root) == root {
		return fmt.Errorf("refusing to remove cache root %q", root)
	}
	if err := os.RemoveAll(root); err != nil {
		return fmt.Errorf("remove cache root: %w", err)
	}
	return nil
}

// cachedFiles lists the regular files of a promoted cache entry.
func cachedFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			files = append(files, entry.Name())
		}
	}
	return files, nil
}

// removeIfExists is os.RemoveAll that reports only real failures.
func removeIfExists(path string) error {
	if err := os.RemoveAll(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
