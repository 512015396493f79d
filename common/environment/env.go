// Package environment reads typed process settings from environment
// variables.
//
// A Reader returns the default for unset or empty variables. Values that are
// set but malformed also yield the default, and the problem is recorded so
// that Err can fail startup with every bad variable listed at once.
package environment

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Reader reads variables through a lookup function and accumulates errors.
type Reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

// New returns a Reader over the process environment.
func New() *Reader {
	return &Reader{lookup: os.LookupEnv}
}

// FromMap returns a Reader over a fixed set of variables.
func FromMap(vars map[string]string) *Reader {
	return &Reader{lookup: func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}}
}

func (r *Reader) get(name string) (string, bool) {
	v, ok := r.lookup(name)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *Reader) fail(name, value, want string) {
	r.errs = append(r.errs, fmt.Errorf("%s=%q: want %s", name, value, want))
}

// String returns the variable or def.
func (r *Reader) String(name, def string) string {
	if v, ok := r.get(name); ok {
		return v
	}
	return def
}

// OneOf returns the lower-cased variable if it is one of allowed, otherwise
// def. Anything else set is an error.
func (r *Reader) OneOf(name, def string, allowed ...string) string {
	v, ok := r.get(name)
	if !ok {
		return def
	}
	v = strings.ToLower(v)
	if !slices.Contains(allowed, v) {
		r.fail(name, v, "one of "+strings.Join(allowed, ", "))
		return def
	}
	return v
}

// Bool accepts the strconv.ParseBool spellings.
func (r *Reader) Bool(name string, def bool) bool {
	v, ok := r.get(name)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(name, v, "a boolean")
		return def
	}
	return b
}

// Int returns a decimal integer.
func (r *Reader) Int(name string, def int) int {
	v, ok := r.get(name)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(name, v, "an integer")
		return def
	}
	return n
}

// Duration returns a positive time.Duration such as "30s" or "5m".
func (r *Reader) Duration(name string, def time.Duration) time.Duration {
	v, ok := r.get(name)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		r.fail(name, v, "a positive duration")
		return def
	}
	return d
}

// List splits a comma-separated variable, dropping blank elements.
func (r *Reader) List(name string, def []string) []string {
	v, ok := r.get(name)
	if !ok {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// Err joins every malformed value seen so far, or returns nil.
func (r *Reader) Err() error {
	if len(r.errs) == 0 {
		return nil
	}
	return fmt.Errorf("environment: %w", errors.Join(r.errs...))
}
