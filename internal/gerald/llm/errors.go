package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrTimeout means the call exceeded its deadline.
	ErrTimeout = errors.New("llm: timeout")
	// ErrConnection means the backend could not be reached.
	ErrConnection = errors.New("llm: connection failed")
	// ErrMalformedResponse means the backend answered with something that
	// does not decode as the expected shape.
	ErrMalformedResponse = errors.New("llm: malformed response")
	// ErrStatus means the backend answered with a non-200 status.
	ErrStatus = errors.New("llm: unexpected status")
)

// StatusError carries the HTTP status of a failed call. It matches ErrStatus
// with errors.Is.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("llm: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("llm: unexpected status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool { return target == ErrStatus }

// Retryable reports whether err is worth another attempt. Client errors
// (4xx other than 429) are not.
func Retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == 429 || se.Code >= 500
	}
	return true
}

// transportError maps an http.Client error onto ErrTimeout or ErrConnection.
func transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
