package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/bdobrica/gerald/internal/gerald/vocab"
)

// JSONFile keeps the vocabulary in a single indented JSON document.
type JSONFile struct {
	path string
}

// NewJSONFile returns a persister for path. The file is created on the
// first Save.
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path}
}

// Path returns the backing file.
func (f *JSONFile) Path() string { return f.path }

// Load reads the snapshot. A missing file yields vocab.ErrNoSnapshot.
func (f *JSONFile) Load(_ context.Context) (vocab.Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return vocab.Snapshot{}, vocab.ErrNoSnapshot
	}
	if err != nil {
		return vocab.Snapshot{}, fmt.Errorf("read vocabulary file: %w", err)
	}
	var snap vocab.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return vocab.Snapshot{}, fmt.Errorf("decode vocabulary file %s: %w", f.path, err)
	}
	return snap, nil
}

// Save replaces the file atomically.
func (f *JSONFile) Save(_ context.Context, snap vocab.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode vocabulary: %w", err)
	}
	return WriteFileAtomic(f.path, data, 0o644)
}

// Close is a no-op; it lets JSONFile satisfy io.Closer alongside the
// database-backed persisters.
func (f *JSONFile) Close() error { return nil }
