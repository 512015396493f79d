// Package persist stores vocabulary snapshots. Three backends implement
// vocab.Persister: a JSON document on disk, a bbolt bucket, and the
// SQLite state database.
package persist

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to a uniquely named temp file in the same
// directory, syncs it, and renames it over path, so readers see either the
// old or the new contents. Concurrent writers never share a temp file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := f.Name()
	fail := func(step string, err error) error {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%s temp file: %w", step, err)
	}
	if _, err := f.Write(data); err != nil {
		return fail("write", err)
	}
	if err := f.Chmod(perm); err != nil {
		return fail("chmod", err)
	}
	if err := f.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
