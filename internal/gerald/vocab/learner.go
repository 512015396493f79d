package vocab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bdobrica/gerald/internal/gerald/tokenizer"
)

// Persister saves and restores vocabulary snapshots. Implementations must
// make Save atomic: a reader never observes a partially written snapshot.
type Persister interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

// Load restores the vocabulary from p, or seeds a new one when p has
// nothing saved yet.
func Load(ctx context.Context, p Persister, seed []string, opts ...Option) (*Store, error) {
	snap, err := p.Load(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		return New(seed, opts...), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load vocabulary: %w", err)
	}
	return FromSnapshot(snap, opts...), nil
}

// LearnerConfig tunes a Learner.
type LearnerConfig struct {
	// SaveEvery is the number of mutating Learn calls between saves.
	// Values below 1 mean 1 (save after every call).
	SaveEvery int
	// ResetSeed is the vocabulary Reset restores.
	ResetSeed []string
	// Tokenizer defaults to the package-level tokenizer rules.
	Tokenizer *tokenizer.Tokenizer
}

// Learner grows a Store from observed messages and persists it.
//
// Save failures are logged and never surface to callers; the in-memory
// store stays authoritative and the next save retries with newer state.
type Learner struct {
	store     *Store
	persister Persister
	tok       atomic.Pointer[tokenizer.Tokenizer]

	mu        sync.Mutex // serialises saves and guards the fields below
	resetSeed []string
	saveEvery int
	pending   int
}

// NewLearner wires a learner around store. persister may be nil, in which
// case nothing is saved.
func NewLearner(store *Store, persister Persister, cfg LearnerConfig) *Learner {
	l := &Learner{
		store:     store,
		persister: persister,
		resetSeed: cfg.ResetSeed,
		saveEvery: cfg.SaveEvery,
	}
	l.SetTokenizer(cfg.Tokenizer)
	if l.resetSeed == nil {
		l.resetSeed = DefaultResetSeed
	}
	if l.saveEvery < 1 {
		l.saveEvery = 1
	}
	return l
}

// Store returns the vocabulary the learner mutates.
func (l *Learner) Store() *Store { return l.store }

// SetSaveEvery changes the save cadence; used on config reload.
func (l *Learner) SetSaveEvery(n int) {
	if n < 1 {
		n = 1
	}
	l.mu.Lock()
	l.saveEvery = n
	l.mu.Unlock()
}

// SetTokenizer swaps the tokenizer used by later Learn calls. nil restores
// the package defaults.
func (l *Learner) SetTokenizer(t *tokenizer.Tokenizer) {
	if t == nil {
		t = tokenizer.New(tokenizer.Options{})
	}
	l.tok.Store(t)
}

// SetResetSeed changes the vocabulary Reset restores.
func (l *Learner) SetResetSeed(seed []string) {
	if seed == nil {
		seed = DefaultResetSeed
	}
	l.mu.Lock()
	l.resetSeed = append([]string(nil), seed...)
	l.mu.Unlock()
}

// Learn tokenizes text, adds every token to the vocabulary and returns the
// number of distinct words that were new. Text with no usable tokens is a
// no-op and returns 0.
func (l *Learner) Learn(ctx context.Context, text string) int {
	tokens := l.tok.Load().Tokenize(text)
	if len(tokens) == 0 {
		return 0
	}
	added := l.store.Observe(tokens)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending++
	if l.pending >= l.saveEvery {
		if err := l.saveLocked(ctx); err != nil {
			slog.Warn("vocab: save failed, keeping in-memory state",
				"err", err, "pending", l.pending)
		}
	}
	return added
}

// Flush saves any unsaved changes immediately.
func (l *Learner) Flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending == 0 {
		return nil
	}
	return l.saveLocked(ctx)
}

// Reset replaces the vocabulary with the reset seed and saves it.
func (l *Learner) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.store.Reset(l.resetSeed)
	l.pending++
	return l.saveLocked(ctx)
}

func (l *Learner) saveLocked(ctx context.Context) error {
	if l.persister == nil {
		l.pending = 0
		return nil
	}
	if err := l.persister.Save(ctx, l.store.Snapshot()); err != nil {
		return fmt.Errorf("save vocabulary: %w", err)
	}
	l.pending = 0
	return nil
}
