package persist

import (
	"context"
	"fmt"
	"sort"

	"github.com/bdobrica/gerald/common/isotime"
	"github.com/bdobrica/gerald/internal/gerald/store"
	"github.com/bdobrica/gerald/internal/gerald/vocab"
)

// SQLite keeps the vocabulary in the state database's vocabulary table.
// It does not own the store; closing it is the caller's job.
type SQLite struct {
	db *store.Store
}

// NewSQLite returns a persister backed by db.
func NewSQLite(db *store.Store) *SQLite {
	return &SQLite{db: db}
}

func (p *SQLite) Load(ctx context.Context) (vocab.Snapshot, error) {
	freq, updated, found, err := p.db.LoadVocabulary(ctx)
	if err != nil {
		return vocab.Snapshot{}, fmt.Errorf("sqlite load: %w", err)
	}
	if !found {
		return vocab.Snapshot{}, vocab.ErrNoSnapshot
	}
	words := make([]string, 0, len(freq))
	for w := range freq {
		words = append(words, w)
	}
	sort.Strings(words)
	return vocab.Snapshot{Words: words, Frequency: freq, LastUpdated: isotime.New(updated)}, nil
}

func (p *SQLite) Save(ctx context.Context, snap vocab.Snapshot) error {
	freq := make(map[string]int, len(snap.Words))
	for _, w := range snap.Words {
		freq[w] = snap.Frequency[w]
	}
	for w, n := range snap.Frequency {
		freq[w] = n
	}
	return p.db.ReplaceVocabulary(ctx, freq, snap.LastUpdated.Time)
}
