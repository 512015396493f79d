// Package vocab holds the bot's learned vocabulary: the set of words it has
// seen, how often it has seen each one, and the learner that grows it from
// chat traffic.
//
// Invariant: every known word has a frequency of at least 1, and nothing has
// a frequency without being a known word. The store keeps a single map, so
// the two views cannot drift apart.
package vocab

import (
	"sort"
	"sync"
	"time"

	"github.com/bdobrica/gerald/common/isotime"
	"github.com/bdobrica/gerald/internal/gerald/tokenizer"
)

// WordCount pairs a word with its observed frequency.
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// Reader is the read-only view of a vocabulary used by the generator,
// validator and command handlers.
type Reader interface {
	Contains(word string) bool
	Len() int
	Frequency(word string) int
	// Words returns all known words sorted lexically.
	Words() []string
	// Top returns up to n words by descending frequency, ties broken by word.
	Top(n int) []WordCount
}

// Store is a concurrency-safe vocabulary. The zero value is not usable; use
// New or FromSnapshot.
type Store struct {
	mu        sync.RWMutex
	freq      map[string]int
	touched   map[string]uint64
	tick      uint64
	capacity  int
	updatedAt time.Time
	now       func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithCapacity bounds the number of words. When an observation pushes the
// store past n, the least recently reinforced words are evicted. Zero
// disables the bound.
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithClock overrides the time source used for LastUpdated.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func newStore(opts []Option) *Store {
	s := &Store{
		freq:    make(map[string]int),
		touched: make(map[string]uint64),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// New returns a store seeded with each seed word at frequency 1.
func New(seed []string, opts ...Option) *Store {
	s := newStore(opts)
	s.seed(seed)
	return s
}

// FromSnapshot restores a store from persisted state, repairing any
// violation of the frequency invariant: listed words without a count get 1,
// counts below 1 are raised to 1, and counted words missing from the word
// list are added. Entries are normalised like seed words; counts of entries
// that normalise to the same token are summed.
func FromSnapshot(snap Snapshot, opts ...Option) *Store {
	s := newStore(opts)
	for w, c := range snap.Frequency {
		if c < 1 {
			c = 1
		}
		for _, tok := range normalize(w) {
			s.freq[tok] += c
		}
	}
	for _, w := range snap.Words {
		for _, tok := range normalize(w) {
			if s.freq[tok] < 1 {
				s.freq[tok] = 1
			}
		}
	}
	for w := range s.freq {
		s.touched[w] = 0
	}
	s.updatedAt = snap.LastUpdated.Time
	s.enforceCapacity()
	return s
}

// normalize splits a seed or snapshot entry into the tokens a reader of the
// bot's output would see, so every stored word is one lowercase token.
func normalize(entry string) []string {
	return tokenizer.Surface(entry)
}

func (s *Store) seed(words []string) {
	for _, entry := range words {
		for _, w := range normalize(entry) {
			if _, ok := s.freq[w]; !ok {
				s.freq[w] = 1
				s.touched[w] = s.tick
			}
		}
	}
}

// Observe records one occurrence of every token, adding unknown tokens as
// new words. It returns the number of distinct words that were not known
// before the call. The whole batch is applied under one write lock.
func (s *Store) Observe(tokens []string) int {
	if len(tokens) == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tick++
	added := 0
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		if _, ok := s.freq[tok]; !ok {
			added++
		}
		s.freq[tok]++
		s.touched[tok] = s.tick
	}
	s.updatedAt = s.now()
	s.enforceCapacity()
	return added
}

// Reset replaces the whole vocabulary with seed, each word at frequency 1.
func (s *Store) Reset(seed []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freq = make(map[string]int, len(seed))
	s.touched = make(map[string]uint64, len(seed))
	s.tick++
	s.seed(seed)
	s.updatedAt = s.now()
}

// SetCapacity changes the word bound at runtime; zero removes it.
func (s *Store) SetCapacity(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 {
		n = 0
	}
	s.capacity = n
	s.enforceCapacity()
}

// View runs fn with a consistent read-only view. Other writers are blocked
// until fn returns, so fn must not call back into the Store.
func (s *Store) View(fn func(r Reader)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(view{s})
}

// LastUpdated reports when the vocabulary last changed.
func (s *Store) LastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Snapshot captures the persisted form of the store.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := view{s}
	freq := make(map[string]int, len(s.freq))
	for w, c := range s.freq {
		freq[w] = c
	}
	return Snapshot{
		Words:       v.Words(),
		Frequency:   freq,
		LastUpdated: isotime.New(s.updatedAt),
	}
}

func (s *Store) Contains(word string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{s}.Contains(word)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.freq)
}

func (s *Store) Frequency(word string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.freq[word]
}

func (s *Store) Words() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{s}.Words()
}

func (s *Store) Top(n int) []WordCount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{s}.Top(n)
}

// enforceCapacity evicts the least recently reinforced words until the
// bound holds. Ties go to the lower frequency, then the lexically smaller
// word. Caller holds the write lock.
func (s *Store) enforceCapacity() {
	if s.capacity <= 0 || len(s.freq) <= s.capacity {
		return
	}
	words := make([]string, 0, len(s.freq))
	for w := range s.freq {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		a, b := words[i], words[j]
		if s.touched[a] != s.touched[b] {
			return s.touched[a] < s.touched[b]
		}
		if s.freq[a] != s.freq[b] {
			return s.freq[a] < s.freq[b]
		}
		return a < b
	})
	for _, w := range words[:len(words)-s.capacity] {
		delete(s.freq, w)
		delete(s.touched, w)
	}
}

// view reads the store without locking; the caller holds the lock.
type view struct{ s *Store }

func (v view) Contains(word string) bool {
	_, ok := v.s.freq[word]
	return ok
}

func (v view) Len() int { return len(v.s.freq) }

func (v view) Frequency(word string) int { return v.s.freq[word] }

func (v view) Words() []string {
	out := make([]string, 0, len(v.s.freq))
	for w := range v.s.freq {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

func (v view) Top(n int) []WordCount {
	if n <= 0 {
		return nil
	}
	all := make([]WordCount, 0, len(v.s.freq))
	for w, c := range v.s.freq {
		all = append(all, WordCount{Word: w, Count: c})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Count != all[j].Count {
			return all[i].Count > all[j].Count
		}
		return all[i].Word < all[j].Word
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}
