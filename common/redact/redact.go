// Package redact strips credentials (Matrix access tokens, model API keys,
// the control-server token) from text before it is logged or returned by
// the control server. It is best-effort and works on string forms only.
package redact

import (
	"strings"
	"sync"
)

const placeholder = "[REDACTED]"

// minSecretLen skips values so short that replacing them would mangle
// ordinary words.
const minSecretLen = 4

// String replaces every occurrence of each sensitive value in s with
// [REDACTED].
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < minSecretLen {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}

// Map returns a shallow copy of m with string values replaced for every key
// whose name suggests a credential.
func Map(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if str, ok := v.(string); ok && str != "" && SensitiveKey(k) {
			out[k] = placeholder
			continue
		}
		out[k] = v
	}
	return out
}

// SensitiveKey reports whether a key or env-var name looks like it holds a
// credential.
func SensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, word := range []string{"password", "token", "secret", "api_key", "apikey", "credential", "auth"} {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// Set is a process-wide registry of secret values. The zero value is ready
// to use.
type Set struct {
	mu     sync.RWMutex
	values []string
}

// Add registers values; short and empty ones are ignored.
func (s *Set) Add(values ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range values {
		if len(v) >= minSecretLen {
			s.values = append(s.values, v)
		}
	}
}

// String redacts every registered value from str.
func (s *Set) String(str string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return String(str, s.values...)
}

// Len returns the number of registered values.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
