package matrix

import (
	"context"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"
)

var _ mautrix.SyncStore = (*DBSyncStore)(nil)

// SyncKV is the key-value table the sync store writes through to.
// *store.Store implements it.
type SyncKV interface {
	SaveSyncValue(ctx context.Context, userID, key, value string) error
	LoadSyncValue(ctx context.Context, userID, key string) (string, error)
}

// DBSyncStore persists the /sync position so a restart resumes where it
// left off instead of replaying (and re-learning) old room history.
type DBSyncStore struct {
	kv SyncKV
}

// NewDBSyncStore wraps kv.
func NewDBSyncStore(kv SyncKV) *DBSyncStore {
	return &DBSyncStore{kv: kv}
}

func (s *DBSyncStore) SaveFilterID(ctx context.Context, userID id.UserID, filterID string) error {
	return s.kv.SaveSyncValue(ctx, userID.String(), "filter_id", filterID)
}

func (s *DBSyncStore) LoadFilterID(ctx context.Context, userID id.UserID) (string, error) {
	return s.kv.LoadSyncValue(ctx, userID.String(), "filter_id")
}

func (s *DBSyncStore) SaveNextBatch(ctx context.Context, userID id.UserID, nextBatchToken string) error {
	return s.kv.SaveSyncValue(ctx, userID.String(), "next_batch", nextBatchToken)
}

func (s *DBSyncStore) LoadNextBatch(ctx context.Context, userID id.UserID) (string, error) {
	return s.kv.LoadSyncValue(ctx, userID.String(), "next_batch")
}
