// Package validator gates externally generated text: a candidate is only
// sent if every word in it is one the bot has learned.
package validator

import (
	"strings"

	"github.com/bdobrica/gerald/internal/gerald/tokenizer"
	"github.com/bdobrica/gerald/internal/gerald/vocab"
)

// Reason explains why a candidate was rejected. The empty Reason means the
// candidate passed.
type Reason string

const (
	OK           Reason = ""
	TooShort     Reason = "too_short"
	UnknownWord  Reason = "unknown_word"
	TooFewWords  Reason = "too_few_words"
	TooManyWords Reason = "too_many_words"
	DeniedPhrase Reason = "denied_phrase"
)

// DefaultDenyList holds filler phrases the persona never says.
var DefaultDenyList = []string{
	"bruh how", "bruh, how", "probably", "idk", "yuh", "nah",
	"ohhhh", "maybe", "but why would you", "what even",
}

// Config tunes validation. Zero values select the defaults.
type Config struct {
	MinChars int
	MinWords int
	MaxWords int
	// DenyList entries reject a candidate that equals or starts with them.
	// A nil slice means DefaultDenyList.
	DenyList []string
}

// Validator is immutable and safe for concurrent use.
type Validator struct {
	minChars int
	minWords int
	maxWords int
	deny     []string
}

// New returns a Validator for cfg.
func New(cfg Config) *Validator {
	v := &Validator{minChars: cfg.MinChars, minWords: cfg.MinWords, maxWords: cfg.MaxWords}
	if v.minChars <= 0 {
		v.minChars = 3
	}
	if v.minWords <= 0 {
		v.minWords = 2
	}
	if v.maxWords <= 0 {
		v.maxWords = 8
	}
	deny := cfg.DenyList
	if deny == nil {
		deny = DefaultDenyList
	}
	for _, d := range deny {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			v.deny = append(v.deny, d)
		}
	}
	return v
}

// Validate reports whether candidate may be sent given vocabulary r.
func (v *Validator) Validate(candidate string, r vocab.Reader) bool {
	return v.Check(candidate, r) == OK
}

// Check returns the first rule candidate breaks, or OK.
func (v *Validator) Check(candidate string, r vocab.Reader) Reason {
	trimmed := strings.TrimSpace(candidate)
	if len([]rune(trimmed)) < v.minChars {
		return TooShort
	}

	words := tokenizer.Surface(trimmed)
	for _, w := range words {
		if !r.Contains(w) {
			return UnknownWord
		}
	}
	if len(words) < v.minWords {
		return TooFewWords
	}
	if len(words) > v.maxWords {
		return TooManyWords
	}

	lower := strings.ToLower(trimmed)
	for _, d := range v.deny {
		if strings.HasPrefix(lower, d) {
			return DeniedPhrase
		}
	}
	return OK
}
