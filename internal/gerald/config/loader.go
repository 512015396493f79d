package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Loader holds the live configuration and allows hot reloads. Until a
// document is applied it serves Default.
type Loader struct {
	mu     sync.RWMutex
	config *Config
	hash   string
	yaml   string
}

// NewLoader returns a Loader serving the defaults.
func NewLoader() *Loader {
	d := Default()
	return &Loader{config: &d}
}

// LoadFile reads a YAML file from disk, validates it, and applies it.
func (l *Loader) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	return l.Apply(data)
}

// Apply parses and validates a raw YAML payload, then atomically replaces
// the current config. On error the live config is left untouched.
func (l *Loader) Apply(data []byte) error {
	cfg, err := Parse(data)
	if err != nil {
		return err
	}

	h := sha256.Sum256(data)
	hash := hex.EncodeToString(h[:])

	l.mu.Lock()
	defer l.mu.Unlock()
	l.config = cfg
	l.hash = hash
	l.yaml = string(data)

	slog.Info("config applied", "hash", hash[:12])
	return nil
}

// Config returns the live config. Callers must not modify it.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// Hash returns the SHA-256 hex digest of the applied YAML, or "" when only
// defaults are in effect.
func (l *Loader) Hash() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.hash
}

// YAML returns the raw text of the applied document.
func (l *Loader) YAML() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.yaml
}

// DefaultDebounce coalesces the burst of events editors emit per save.
const DefaultDebounce = 250 * time.Millisecond

// Watch reloads path whenever it changes and calls onApply with each
// config that validates. Invalid edits are logged and ignored. The parent
// directory is watched so atomic-rename saves are seen. Watch blocks until
// ctx is cancelled.
func (l *Loader) Watch(ctx context.Context, path string, debounce time.Duration, onApply func(*Config)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", "err", err)
		case <-timer.C:
			before := l.Hash()
			if err := l.LoadFile(abs); err != nil {
				slog.Warn("config reload rejected, keeping previous config", "path", abs, "err", err)
				continue
			}
			if l.Hash() == before {
				continue
			}
			if onApply != nil {
				onApply(l.Config())
			}
		}
	}
}
