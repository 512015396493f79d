package vocab

import (
	"errors"

	"github.com/bdobrica/gerald/common/isotime"
)

// ErrNoSnapshot is returned by a Persister that has nothing saved yet.
var ErrNoSnapshot = errors.New("vocab: no saved vocabulary")

// Snapshot is the persisted vocabulary document:
//
//	{"words": [...], "frequency": {"word": n}, "last_updated": "..."}
type Snapshot struct {
	Words       []string       `json:"words"`
	Frequency   map[string]int `json:"frequency"`
	LastUpdated isotime.Time   `json:"last_updated"`
}
