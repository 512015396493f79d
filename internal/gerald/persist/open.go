package persist

import (
	"fmt"
	"io"

	"github.com/bdobrica/gerald/internal/gerald/store"
	"github.com/bdobrica/gerald/internal/gerald/vocab"
)

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
)

// Persister is a vocab.Persister that holds resources.
type Persister interface {
	vocab.Persister
	io.Closer
}

// Open returns the persister for backend. path is the JSON file or bbolt
// database; db is required for BackendSQLite and ignored otherwise.
func Open(backend, path string, db *store.Store) (Persister, error) {
	switch backend {
	case "", BackendJSON:
		if path == "" {
			return nil, fmt.Errorf("persist: json backend needs a file path")
		}
		return NewJSONFile(path), nil
	case BackendBolt:
		if path == "" {
			return nil, fmt.Errorf("persist: bolt backend needs a file path")
		}
		return OpenBolt(path)
	case BackendSQLite:
		if db == nil {
			return nil, fmt.Errorf("persist: sqlite backend needs a state database")
		}
		return nopCloser{NewSQLite(db)}, nil
	default:
		return nil, fmt.Errorf("persist: unknown backend %q", backend)
	}
}

type nopCloser struct{ *SQLite }

func (nopCloser) Close() error { return nil }
