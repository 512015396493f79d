package generator

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/bdobrica/gerald/internal/gerald/tokenizer"
	"github.com/bdobrica/gerald/internal/gerald/vocab"
)

// seqRand replays fixed sequences; exhausted sequences yield zero.
type seqRand struct {
	floats []float64
	ints   []int
}

func (s *seqRand) Float64() float64 {
	if len(s.floats) == 0 {
		return 0
	}
	f := s.floats[0]
	s.floats = s.floats[1:]
	return f
}

func (s *seqRand) IntN(n int) int {
	if len(s.ints) == 0 {
		return 0
	}
	i := s.ints[0]
	s.ints = s.ints[1:]
	return i % n
}

func TestGenerate_EmptyStoreReturnsSentinel(t *testing.T) {
	g := New(DefaultConfig(), &seqRand{})
	if got := g.Generate(vocab.New(nil), "anything"); got != "..." {
		t.Fatalf("Generate on empty store = %q, want ...", got)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	tests := []struct {
		name    string
		context string
		rnd     *seqRand
		want    string
	}{
		{"default with topic", "", &seqRand{floats: []float64{0.1, 0.9}}, "mate tyler whatever"},
		{"default with two topics", "", &seqRand{floats: []float64{0.1, 0.1}, ints: []int{1, 0, 0, 2}}, "innit tyler massive rubbish"},
		{"default topic skipped", "", &seqRand{floats: []float64{0.95}}, "mate whatever"},
		{"thanks rule", "Cheers mate", &seqRand{}, "whatever mate"},
		{"question rule", "what you on about?", &seqRand{}, "whatever tyler"},
		{"topic rule", "tyler went to the gym", &seqRand{}, "tyler massive mate"},
		{"substring of topic word does not match", "my father", &seqRand{floats: []float64{0.95}}, "mate whatever"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(DefaultConfig(), tt.rnd)
			got := g.Generate(vocab.New(vocab.DefaultSeed), tt.context)
			if got != tt.want {
				t.Errorf("Generate(%q) = %q, want %q", tt.context, got, tt.want)
			}
		})
	}
}

func TestRule_Matches(t *testing.T) {
	roles := vocab.Roles{vocab.Topic: {"fat", "tyler"}}
	tests := []struct {
		name    string
		rule    Rule
		context string
		want    bool
	}{
		{"literal word", Rule{Words: []string{"ta"}}, "Ta mate!", true},
		{"literal word inside another", Rule{Words: []string{"ta"}}, "that is fine", false},
		{"substring anywhere", Rule{Substrings: []string{"?"}}, "you what?!", true},
		{"substring mid-word", Rule{Substrings: []string{"thank"}}, "thankyou", true},
		{"role candidate token", Rule{MatchRole: vocab.Topic}, "where is Tyler", true},
		{"role candidate inside another", Rule{MatchRole: vocab.Topic}, "my father", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.rule.matches(strings.ToLower(tt.context), tokenizer.Surface(tt.context), roles)
			if got != tt.want {
				t.Errorf("matches(%q) = %v, want %v", tt.context, got, tt.want)
			}
		})
	}
}

func TestGenerate_PadsFromFrequentWords(t *testing.T) {
	store := vocab.New([]string{"geezer", "lad", "oi"})
	store.Observe([]string{"geezer", "geezer", "geezer", "geezer"})

	g := New(DefaultConfig(), &seqRand{ints: []int{0, 1}})
	if got := g.Generate(store, ""); got != "geezer oi" {
		t.Fatalf("Generate = %q, want %q", got, "geezer oi")
	}
}

func TestGenerate_SingleWordVocabulary(t *testing.T) {
	g := New(DefaultConfig(), &seqRand{})
	if got := g.Generate(vocab.New([]string{"oi"}), "hello?"); got != "oi" {
		t.Fatalf("Generate = %q, want oi", got)
	}
}

func TestGenerate_TruncatesToMaxWords(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxWords = 2
	g := New(cfg, &seqRand{})
	got := g.Generate(vocab.New(vocab.DefaultSeed), "tyler again")
	if n := len(strings.Fields(got)); n != 2 {
		t.Fatalf("Generate = %q (%d words), want 2 words", got, n)
	}
}

func TestGenerate_VocabularyClosure(t *testing.T) {
	stores := map[string]*vocab.Store{
		"seed":        vocab.New(vocab.DefaultSeed),
		"no roles":    vocab.New([]string{"alpha", "beta", "gamma"}),
		"single":      vocab.New([]string{"solo"}),
		"reset seed":  vocab.New(vocab.DefaultResetSeed),
		"only topics": vocab.New([]string{"tyler", "massive", "huge"}),
	}
	contexts := []string{"", "cheers", "why though?", "tyler is big", "random chatter here"}
	g := New(DefaultConfig(), rand.New(rand.NewPCG(7, 11)))

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 300; i++ {
				ctx := contexts[i%len(contexts)]
				out := g.Generate(store, ctx)
				words := strings.Fields(out)
				if len(words) == 0 || len(words) > 6 {
					t.Fatalf("Generate(%q) = %q: word count %d out of range", ctx, out, len(words))
				}
				for _, w := range words {
					if !store.Contains(w) {
						t.Fatalf("Generate(%q) = %q: %q is not in the vocabulary", ctx, out, w)
					}
				}
			}
		})
	}
}

func TestGenerate_NilRandUsesGlobalSource(t *testing.T) {
	g := New(Config{}, nil)
	store := vocab.New(vocab.DefaultSeed)
	for i := 0; i < 20; i++ {
		for _, w := range strings.Fields(g.Generate(store, "")) {
			if !store.Contains(w) {
				t.Fatalf("unknown word %q", w)
			}
		}
	}
	if g.Config().MaxWords != 6 || g.Config().Sentinel != "..." {
		t.Errorf("zero Config should take defaults, got %+v", g.Config())
	}
}
