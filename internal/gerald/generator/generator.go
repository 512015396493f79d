// Package generator produces short utterances using only words the bot has
// learned. It is the fallback whenever no language model is available or
// the model's output is rejected, so it must always return something.
package generator

import (
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/bdobrica/gerald/internal/gerald/tokenizer"
	"github.com/bdobrica/gerald/internal/gerald/vocab"
)

// Rand is the randomness the generator consumes. *rand.Rand from
// math/rand/v2 satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }
func (globalRand) IntN(n int) int   { return rand.IntN(n) }

// Config tunes generation. DefaultConfig matches the bot's stock personality.
type Config struct {
	MaxWords          int
	MinWords          int
	PadCount          int
	TopWindow         int
	TopicChance       float64
	SecondTopicChance float64
	ReactionCap       int
	Sentinel          string
	Roles             vocab.Roles
	Rules             []Rule
}

// DefaultConfig returns the stock generation settings.
func DefaultConfig() Config {
	return Config{
		MaxWords:          6,
		MinWords:          2,
		PadCount:          2,
		TopWindow:         30,
		TopicChance:       0.8,
		SecondTopicChance: 0.5,
		ReactionCap:       5,
		Sentinel:          "...",
		Roles:             vocab.DefaultRoles(),
		Rules:             DefaultRules(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxWords <= 0 {
		c.MaxWords = d.MaxWords
	}
	if c.MinWords <= 0 {
		c.MinWords = d.MinWords
	}
	if c.PadCount <= 0 {
		c.PadCount = d.PadCount
	}
	if c.TopWindow <= 0 {
		c.TopWindow = d.TopWindow
	}
	if c.ReactionCap <= 0 {
		c.ReactionCap = d.ReactionCap
	}
	if c.Sentinel == "" {
		c.Sentinel = d.Sentinel
	}
	if c.Roles == nil {
		c.Roles = d.Roles
	}
	return c
}

// Generator is safe for concurrent use; calls are serialised around the
// injected Rand because most sources are not.
type Generator struct {
	cfg Config

	mu  sync.Mutex
	rnd Rand
}

// New returns a Generator. A nil rnd uses the process-wide source.
func New(cfg Config, rnd Rand) *Generator {
	if rnd == nil {
		rnd = globalRand{}
	}
	return &Generator{cfg: cfg.withDefaults(), rnd: rnd}
}

// Config returns the generator's effective configuration.
func (g *Generator) Config() Config { return g.cfg }

// Generate builds an utterance from store under a consistent read view.
// context is the text being replied to; it selects the rule that shapes
// the utterance.
func (g *Generator) Generate(store *vocab.Store, context string) string {
	var out string
	store.View(func(r vocab.Reader) {
		out = g.GenerateFrom(r, context)
	})
	return out
}

// GenerateFrom builds an utterance from r. Every word returned is a member
// of r; when r is empty the sentinel is returned instead.
func (g *Generator) GenerateFrom(r vocab.Reader, context string) string {
	if r.Len() == 0 {
		return g.cfg.Sentinel
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var words []string
	if rule, ok := g.match(r, context); ok {
		words = g.fromRule(r, rule)
	} else {
		words = g.fromDefault(r)
	}

	if len(words) < g.cfg.MinWords {
		words = g.pad(r, words)
	}
	if len(words) == 0 {
		all := r.Words()
		words = []string{all[g.rnd.IntN(len(all))]}
	}
	if len(words) > g.cfg.MaxWords {
		words = words[:g.cfg.MaxWords]
	}
	return strings.Join(words, " ")
}

func (g *Generator) match(r vocab.Reader, context string) (Rule, bool) {
	if context == "" {
		return Rule{}, false
	}
	lower := strings.ToLower(context)
	tokens := tokenizer.Surface(context)
	for _, rule := range g.cfg.Rules {
		if rule.matches(lower, tokens, g.cfg.Roles) {
			return rule, true
		}
	}
	return Rule{}, false
}

func (g *Generator) fromRule(r vocab.Reader, rule Rule) []string {
	var words []string
	for _, role := range rule.Roles {
		if w, ok := g.pick(g.cfg.Roles.Pool(r, role), words); ok {
			words = append(words, w)
		}
	}
	return words
}

func (g *Generator) fromDefault(r vocab.Reader) []string {
	var words []string
	if w, ok := g.pick(g.cfg.Roles.Pool(r, vocab.Connector), words); ok {
		words = append(words, w)
	}

	topics := g.cfg.Roles.Pool(r, vocab.Topic)
	if len(topics) > 0 && g.rnd.Float64() < g.cfg.TopicChance {
		if w, ok := g.pick(topics, words); ok {
			words = append(words, w)
		}
		if len(topics) > 1 && g.rnd.Float64() < g.cfg.SecondTopicChance {
			if w, ok := g.pick(topics, words); ok {
				words = append(words, w)
			}
		}
	}

	if len(words) < g.cfg.ReactionCap {
		if w, ok := g.pick(g.cfg.Roles.Pool(r, vocab.Reaction), words); ok {
			words = append(words, w)
		}
	}
	return words
}

// pick samples uniformly from pool, skipping words already chosen.
func (g *Generator) pick(pool, chosen []string) (string, bool) {
	avail := without(pool, chosen)
	if len(avail) == 0 {
		return "", false
	}
	return avail[g.rnd.IntN(len(avail))], true
}

// pad draws up to PadCount frequency-weighted words, without replacement,
// from the TopWindow most frequent words not already chosen.
func (g *Generator) pad(r vocab.Reader, words []string) []string {
	chosen := make(map[string]struct{}, len(words))
	for _, w := range words {
		chosen[w] = struct{}{}
	}
	var cands []vocab.WordCount
	for _, wc := range r.Top(g.cfg.TopWindow) {
		if _, dup := chosen[wc.Word]; !dup {
			cands = append(cands, wc)
		}
	}

	for n := 0; n < g.cfg.PadCount && len(cands) > 0; n++ {
		total := 0
		for _, c := range cands {
			total += c.Count
		}
		target := g.rnd.IntN(total)
		idx := 0
		for i, c := range cands {
			if target < c.Count {
				idx = i
				break
			}
			target -= c.Count
		}
		words = append(words, cands[idx].Word)
		cands = append(cands[:idx], cands[idx+1:]...)
	}
	return words
}

func without(pool, chosen []string) []string {
	if len(chosen) == 0 {
		return pool
	}
	out := make([]string, 0, len(pool))
outer:
	for _, w := range pool {
		for _, c := range chosen {
			if w == c {
				continue outer
			}
		}
		out = append(out, w)
	}
	return out
}
