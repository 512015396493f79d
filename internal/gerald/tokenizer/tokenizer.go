// Package tokenizer normalises chat text into candidate vocabulary words.
//
// Rules for Tokenize:
//  1. Lowercase all
//  2. Remove the punctuation characters . , ! ?
//  3. Split on whitespace
//  4. Discard tokens of one character or less
//  5. Discard stop words
//
// Tokenizers are pure and safe for concurrent use.
package tokenizer

import (
	"strings"
	"unicode/utf8"
)

// DefaultPunctuation is the set of characters removed before splitting.
const DefaultPunctuation = ".,!?"

// DefaultStopWords are function words that are never learned.
var DefaultStopWords = []string{"the", "and", "or", "but", "if", "then", "is", "am", "are"}

// Options configures a Tokenizer. Zero values select the defaults.
type Options struct {
	// Punctuation lists characters deleted from the text.
	Punctuation string
	// StopWords are dropped after splitting. A nil slice means
	// DefaultStopWords; an empty non-nil slice disables stop-word filtering.
	StopWords []string
	// MinLength is the minimum rune count a token needs to be kept.
	// Zero means 2.
	MinLength int
}

// Tokenizer turns text into tokens according to its Options.
type Tokenizer struct {
	strip     *strings.Replacer
	stopWords map[string]struct{}
	minLength int
}

var defaultTokenizer = New(Options{})

// New builds a Tokenizer from opts.
func New(opts Options) *Tokenizer {
	punct := opts.Punctuation
	if punct == "" {
		punct = DefaultPunctuation
	}
	stop := opts.StopWords
	if stop == nil {
		stop = DefaultStopWords
	}
	minLen := opts.MinLength
	if minLen <= 0 {
		minLen = 2
	}

	t := &Tokenizer{
		strip:     stripper(punct),
		stopWords: make(map[string]struct{}, len(stop)),
		minLength: minLen,
	}
	for _, w := range stop {
		t.stopWords[strings.ToLower(w)] = struct{}{}
	}
	return t
}

// Tokenize returns the filtered tokens of text in their original order.
// Duplicates are preserved; the learner counts each occurrence.
func (t *Tokenizer) Tokenize(text string) []string {
	fields := strings.Fields(t.strip.Replace(strings.ToLower(text)))
	if len(fields) == 0 {
		return nil
	}
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) < t.minLength {
			continue
		}
		if _, stop := t.stopWords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

// Surface lowercases text, strips punctuation and splits on whitespace
// without any length or stop-word filtering. The validator uses it so that
// every word a reader would see is checked against the vocabulary.
func (t *Tokenizer) Surface(text string) []string {
	return strings.Fields(t.strip.Replace(strings.ToLower(text)))
}

// Tokenize applies the default rules.
func Tokenize(text string) []string {
	return defaultTokenizer.Tokenize(text)
}

// Surface applies the default punctuation set without filtering.
func Surface(text string) []string {
	return defaultTokenizer.Surface(text)
}

func stripper(chars string) *strings.Replacer {
	pairs := make([]string, 0, 2*utf8.RuneCountInString(chars))
	for _, r := range chars {
		pairs = append(pairs, string(r), "")
	}
	return strings.NewReplacer(pairs...)
}
