package generator

import (
	"strings"

	"github.com/bdobrica/gerald/internal/gerald/vocab"
)

// Rule overrides the default utterance shape when the context matches.
// Rules are evaluated in order and the first match wins.
type Rule struct {
	Name string `yaml:"name" json:"name"`
	// Words match whole tokens of the context.
	Words []string `yaml:"words,omitempty" json:"words,omitempty"`
	// Substrings match anywhere in the lowercased context.
	Substrings []string `yaml:"substrings,omitempty" json:"substrings,omitempty"`
	// MatchRole matches when the context contains any candidate of that role.
	MatchRole vocab.Role `yaml:"match_role,omitempty" json:"match_role,omitempty"`
	// Roles is the sequence sampled for the reply, one word per role.
	Roles []vocab.Role `yaml:"roles" json:"roles"`
}

// DefaultRules returns the stock context rules.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "thanks", Words: []string{"thanks", "thank", "cheers", "ta"}, Roles: []vocab.Role{vocab.Reaction, vocab.Connector}},
		{Name: "question", Substrings: []string{"?"}, Roles: []vocab.Role{vocab.Reaction, vocab.Topic}},
		{Name: "topic", MatchRole: vocab.Topic, Roles: []vocab.Role{vocab.Topic, vocab.Descriptor, vocab.Connector}},
	}
}

func (r Rule) matches(lower string, tokens []string, roles vocab.Roles) bool {
	for _, s := range r.Substrings {
		if s != "" && strings.Contains(lower, strings.ToLower(s)) {
			return true
		}
	}
	words := r.Words
	if r.MatchRole != "" {
		words = append(append([]string(nil), words...), roles[r.MatchRole]...)
	}
	for _, w := range words {
		for _, tok := range tokens {
			if tok == w {
				return true
			}
		}
	}
	return false
}
