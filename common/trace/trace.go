// Package trace provides trace ID generation and context propagation so a
// single inbound chat message can be followed through learning, the model
// call and the reply.
package trace

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// traceKey is the unexported context key used to store the trace ID.
type traceKey struct{}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// GenerateID returns a new lexically sortable trace ID ("t_" + ULID).
func GenerateID() string {
	return "t_" + NewULID(time.Now()).String()
}

// NewULID returns a ULID for the given instant. IDs generated within the
// same millisecond are strictly increasing.
func NewULID(at time.Time) ulid.ULID {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), entropy)
}

// WithTraceID returns a child context carrying the given trace ID.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// FromContext extracts the trace ID from ctx, returning "" if absent.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok {
		return v
	}
	return ""
}
