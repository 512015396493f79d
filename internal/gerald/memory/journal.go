package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/gerald/common/isotime"
	"github.com/bdobrica/gerald/common/spec/envelope"
	"github.com/bdobrica/gerald/internal/gerald/persist"
	"github.com/bdobrica/gerald/internal/gerald/tokenizer"
)

// DefaultJournalCap is the number of entries kept on disk.
const DefaultJournalCap = 1000

// Entry is one journaled chat message.
type Entry struct {
	ID        string       `json:"id"`
	Author    string       `json:"author"`
	Content   string       `json:"content"`
	Channel   string       `json:"channel"`
	Timestamp isotime.Time `json:"timestamp"`
	Mentions  []string     `json:"mentions"`
}

// UserStats summarises one sender.
type UserStats struct {
	Name     string       `json:"name"`
	Messages int          `json:"messages"`
	LastSeen isotime.Time `json:"last_seen"`
}

// Document is the on-disk journal:
//
//	{"conversations": [...], "topics": {"word": n}, "users": {"id": {...}}}
type Document struct {
	Conversations []Entry              `json:"conversations"`
	Topics        map[string]int       `json:"topics"`
	Users         map[string]UserStats `json:"users"`
}

// Journal appends messages to a capped document and writes it atomically.
// Topic counts only track the configured topic words.
type Journal struct {
	path string

	mu     sync.Mutex
	cap    int
	topics map[string]struct{}
	doc    Document
	dirty  bool
}

// OpenJournal loads path if it exists. A missing file starts an empty
// journal; a corrupt one is an error.
func OpenJournal(path string, capacity int, topicWords []string) (*Journal, error) {
	j := &Journal{path: path, doc: emptyDocument()}
	j.SetCap(capacity)
	j.SetTopicWords(topicWords)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return j, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode journal %s: %w", path, err)
	}
	if doc.Topics == nil {
		doc.Topics = map[string]int{}
	}
	if doc.Users == nil {
		doc.Users = map[string]UserStats{}
	}
	j.doc = doc
	j.trimLocked()
	return j, nil
}

func emptyDocument() Document {
	return Document{Topics: map[string]int{}, Users: map[string]UserStats{}}
}

// SetCap changes the entry bound; capacity ≤ 0 selects DefaultJournalCap.
func (j *Journal) SetCap(capacity int) {
	if capacity <= 0 {
		capacity = DefaultJournalCap
	}
	j.mu.Lock()
	j.cap = capacity
	j.trimLocked()
	j.mu.Unlock()
}

// SetTopicWords replaces the tracked topic words.
func (j *Journal) SetTopicWords(words []string) {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	j.mu.Lock()
	j.topics = set
	j.mu.Unlock()
}

// Record appends msg and updates topic and user counters. mentions lists
// the user IDs the message mentions.
func (j *Journal) Record(msg *envelope.Message, mentions []string) Entry {
	ts := msg.ReceivedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	if mentions == nil {
		mentions = []string{}
	}
	e := Entry{
		ID:        uuid.NewString(),
		Author:    msg.SenderID,
		Content:   msg.Text,
		Channel:   msg.ChannelID,
		Timestamp: isotime.New(ts),
		Mentions:  mentions,
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.doc.Conversations = append(j.doc.Conversations, e)
	j.trimLocked()

	for _, tok := range tokenizer.Tokenize(msg.Text) {
		if _, ok := j.topics[tok]; ok {
			j.doc.Topics[tok]++
		}
	}
	u := j.doc.Users[msg.SenderID]
	u.Name = msg.DisplayName()
	u.Messages++
	u.LastSeen = isotime.New(ts)
	j.doc.Users[msg.SenderID] = u
	j.dirty = true
	return e
}

// Save writes the journal if it changed since the last save.
func (j *Journal) Save(_ context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.dirty {
		return nil
	}
	data, err := json.MarshalIndent(j.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode journal: %w", err)
	}
	if err := persist.WriteFileAtomic(j.path, data, 0o644); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	j.dirty = false
	slog.Debug("journal saved", "path", j.path, "entries", len(j.doc.Conversations))
	return nil
}

// Entries returns a copy of the journaled messages, oldest first.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Entry(nil), j.doc.Conversations...)
}

// TopTopics returns up to n topic words by descending count, ties by word.
func (j *Journal) TopTopics(n int) []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	words := make([]string, 0, len(j.doc.Topics))
	for w := range j.doc.Topics {
		words = append(words, w)
	}
	sort.Slice(words, func(a, b int) bool {
		ca, cb := j.doc.Topics[words[a]], j.doc.Topics[words[b]]
		if ca != cb {
			return ca > cb
		}
		return words[a] < words[b]
	})
	if n >= 0 && len(words) > n {
		words = words[:n]
	}
	return words
}

// User returns the stats for a sender.
func (j *Journal) User(id string) (UserStats, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	u, ok := j.doc.Users[id]
	return u, ok
}

// Stats reports how many entries and distinct users are journaled.
func (j *Journal) Stats() (entries, users int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.doc.Conversations), len(j.doc.Users)
}

// Clear empties the journal; the next Save writes the empty document.
func (j *Journal) Clear() {
	j.mu.Lock()
	j.doc = emptyDocument()
	j.dirty = true
	j.mu.Unlock()
}

func (j *Journal) trimLocked() {
	if j.cap <= 0 {
		return
	}
	if over := len(j.doc.Conversations) - j.cap; over > 0 {
		j.doc.Conversations = append([]Entry(nil), j.doc.Conversations[over:]...)
	}
}
