package persist

import (
	"context"
	"fmt"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/bdobrica/gerald/common/isotime"
	"github.com/bdobrica/gerald/internal/gerald/vocab"
)

// Bucket keys. Words live one per key in bucketWords with the decimal
// frequency as value, so a Save rewrites the bucket in one transaction.
var (
	bucketWords = []byte("words")
	bucketMeta  = []byte("meta")
	keyUpdated  = []byte("last_updated")
)

// Bolt persists the vocabulary in an embedded bbolt database.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the database at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}
	return &Bolt{db: db}, nil
}

// Close closes the underlying database.
func (b *Bolt) Close() error { return b.db.Close() }

// Load reads every word. An absent bucket yields vocab.ErrNoSnapshot.
func (b *Bolt) Load(_ context.Context) (vocab.Snapshot, error) {
	var snap vocab.Snapshot
	found := false
	err := b.db.View(func(tx *bolt.Tx) error {
		wb := tx.Bucket(bucketWords)
		if wb == nil {
			return nil
		}
		found = true
		snap.Frequency = make(map[string]int, wb.Stats().KeyN)
		err := wb.ForEach(func(k, v []byte) error {
			n, err := strconv.Atoi(string(v))
			if err != nil {
				return fmt.Errorf("word %q: bad count %q", k, v)
			}
			w := string(k)
			snap.Words = append(snap.Words, w)
			snap.Frequency[w] = n
			return nil
		})
		if err != nil {
			return err
		}
		if mb := tx.Bucket(bucketMeta); mb != nil {
			if v := mb.Get(keyUpdated); v != nil {
				t, err := isotime.Parse(string(v))
				if err != nil {
					return fmt.Errorf("last_updated: %w", err)
				}
				snap.LastUpdated = isotime.New(t)
			}
		}
		return nil
	})
	if err != nil {
		return vocab.Snapshot{}, fmt.Errorf("bbolt load: %w", err)
	}
	if !found {
		return vocab.Snapshot{}, vocab.ErrNoSnapshot
	}
	return snap, nil
}

// Save replaces the stored vocabulary with snap.
func (b *Bolt) Save(_ context.Context, snap vocab.Snapshot) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketWords) != nil {
			if err := tx.DeleteBucket(bucketWords); err != nil {
				return err
			}
		}
		wb, err := tx.CreateBucket(bucketWords)
		if err != nil {
			return err
		}
		for _, w := range snap.Words {
			n := snap.Frequency[w]
			if n < 1 {
				n = 1
			}
			if err := wb.Put([]byte(w), []byte(strconv.Itoa(n))); err != nil {
				return err
			}
		}
		mb, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if snap.LastUpdated.IsZero() {
			return mb.Delete(keyUpdated)
		}
		return mb.Put(keyUpdated, []byte(snap.LastUpdated.UTC().Format(time.RFC3339Nano)))
	})
}
