// Package config defines Gerald's behavioural configuration, validates it
// against an embedded JSON schema, and hot-reloads it from disk.
package config

import (
	"time"

	"github.com/bdobrica/gerald/internal/gerald/generator"
	"github.com/bdobrica/gerald/internal/gerald/llm"
	"github.com/bdobrica/gerald/internal/gerald/policy"
	"github.com/bdobrica/gerald/internal/gerald/responder"
	"github.com/bdobrica/gerald/internal/gerald/tokenizer"
	"github.com/bdobrica/gerald/internal/gerald/validator"
	"github.com/bdobrica/gerald/internal/gerald/vocab"
)

// Config is the YAML document. Keys absent from the file keep their
// Default values.
type Config struct {
	ResponseChance  float64  `yaml:"response_chance" json:"response_chance"`
	QuestionChance  float64  `yaml:"question_chance" json:"question_chance"`
	MaxHistory      int      `yaml:"max_history" json:"max_history"`
	TriggerWords    []string `yaml:"trigger_words" json:"trigger_words"`
	AllowedChannels []string `yaml:"allowed_channels" json:"allowed_channels"`
	CooldownSeconds float64  `yaml:"cooldown_seconds" json:"cooldown_seconds"`
	IgnoreSenders   []string `yaml:"ignore_senders" json:"ignore_senders"`
	// Admins may run privileged commands. Empty means everyone may.
	Admins        []string `yaml:"admins" json:"admins"`
	BotName       string   `yaml:"bot_name" json:"bot_name"`
	Persona       string   `yaml:"persona" json:"persona"`
	CommandPrefix string   `yaml:"command_prefix" json:"command_prefix"`
	JournalCap    int      `yaml:"journal_cap" json:"journal_cap"`

	Vocabulary Vocabulary `yaml:"vocabulary" json:"vocabulary"`
	Generator  Generator  `yaml:"generator" json:"generator"`
	Validator  Validator  `yaml:"validator" json:"validator"`
	LLM        LLM        `yaml:"llm" json:"llm"`
}

// Vocabulary tunes learning and persistence cadence.
type Vocabulary struct {
	Seed      []string    `yaml:"seed" json:"seed"`
	ResetSeed []string    `yaml:"reset_seed" json:"reset_seed"`
	Capacity  int         `yaml:"capacity" json:"capacity"`
	SaveEvery int         `yaml:"save_every" json:"save_every"`
	StopWords []string    `yaml:"stop_words" json:"stop_words"`
	MinLength int         `yaml:"min_length" json:"min_length"`
	Roles     vocab.Roles `yaml:"roles" json:"roles"`
}

// Generator tunes fallback utterances.
type Generator struct {
	MinWords          int              `yaml:"min_words" json:"min_words"`
	MaxWords          int              `yaml:"max_words" json:"max_words"`
	PadCount          int              `yaml:"pad_count" json:"pad_count"`
	TopWindow         int              `yaml:"top_window" json:"top_window"`
	TopicChance       float64          `yaml:"topic_chance" json:"topic_chance"`
	SecondTopicChance float64          `yaml:"second_topic_chance" json:"second_topic_chance"`
	ReactionCap       int              `yaml:"reaction_cap" json:"reaction_cap"`
	Sentinel          string           `yaml:"sentinel" json:"sentinel"`
	Rules             []generator.Rule `yaml:"rules" json:"rules"`
}

// Validator tunes the closed-vocabulary gate.
type Validator struct {
	MinChars int      `yaml:"min_chars" json:"min_chars"`
	MinWords int      `yaml:"min_words" json:"min_words"`
	MaxWords int      `yaml:"max_words" json:"max_words"`
	DenyList []string `yaml:"deny_list" json:"deny_list"`
}

// LLM selects and tunes the language-model backend. Credentials come from
// the environment, never from this file.
type LLM struct {
	Provider              string   `yaml:"provider" json:"provider"`
	BaseURL               string   `yaml:"base_url" json:"base_url"`
	Model                 string   `yaml:"model" json:"model"`
	TimeoutSeconds        float64  `yaml:"timeout_seconds" json:"timeout_seconds"`
	MaxAttempts           int      `yaml:"max_attempts" json:"max_attempts"`
	AttemptTimeoutSeconds float64  `yaml:"attempt_timeout_seconds" json:"attempt_timeout_seconds"`
	Temperature           float64  `yaml:"temperature" json:"temperature"`
	TopP                  float64  `yaml:"top_p" json:"top_p"`
	MaxTokens             int      `yaml:"max_tokens" json:"max_tokens"`
	Stop                  []string `yaml:"stop" json:"stop"`
	RequestsPerMinute     int      `yaml:"requests_per_minute" json:"requests_per_minute"`
	MaxConcurrent         int      `yaml:"max_concurrent" json:"max_concurrent"`
}

// Default returns the stock configuration.
func Default() Config {
	p := policy.DefaultConfig()
	g := generator.DefaultConfig()
	return Config{
		ResponseChance:  p.ResponseChance,
		QuestionChance:  p.QuestionChance,
		MaxHistory:      10,
		TriggerWords:    p.TriggerWords,
		CooldownSeconds: p.Cooldown.Seconds(),
		BotName:         "Gerald",
		Persona:         responder.DefaultPersona,
		CommandPrefix:   "!",
		JournalCap:      1000,
		Vocabulary: Vocabulary{
			Seed:      append([]string(nil), vocab.DefaultSeed...),
			ResetSeed: append([]string(nil), vocab.DefaultResetSeed...),
			SaveEvery: 1,
			StopWords: append([]string(nil), tokenizer.DefaultStopWords...),
			MinLength: 2,
			Roles:     vocab.DefaultRoles(),
		},
		Generator: Generator{
			MinWords:          g.MinWords,
			MaxWords:          g.MaxWords,
			PadCount:          g.PadCount,
			TopWindow:         g.TopWindow,
			TopicChance:       g.TopicChance,
			SecondTopicChance: g.SecondTopicChance,
			ReactionCap:       g.ReactionCap,
			Sentinel:          g.Sentinel,
			Rules:             g.Rules,
		},
		Validator: Validator{
			MinChars: 3,
			MinWords: 2,
			MaxWords: 8,
			DenyList: append([]string(nil), validator.DefaultDenyList...),
		},
		LLM: LLM{
			Provider:              "ollama",
			BaseURL:               "http://localhost:11434",
			Model:                 "llama3.2:3b",
			TimeoutSeconds:        30,
			MaxAttempts:           3,
			AttemptTimeoutSeconds: 10,
			Temperature:           0.8,
			TopP:                  0.9,
			MaxTokens:             150,
			Stop:                  append([]string(nil), responder.DefaultStop...),
			MaxConcurrent:         2,
		},
	}
}

// Policy converts the reply-policy fields.
func (c *Config) Policy() policy.Config {
	return policy.Config{
		ResponseChance:    c.ResponseChance,
		QuestionChance:    c.QuestionChance,
		QuestionMinLength: 10,
		TriggerWords:      c.TriggerWords,
		AllowedChannels:   c.AllowedChannels,
		IgnoreSenders:     c.IgnoreSenders,
		Cooldown:          seconds(c.CooldownSeconds),
	}
}

// Tokenizer builds the tokenizer for learning.
func (c *Config) Tokenizer() *tokenizer.Tokenizer {
	stop := c.Vocabulary.StopWords
	if stop == nil {
		stop = []string{}
	}
	return tokenizer.New(tokenizer.Options{StopWords: stop, MinLength: c.Vocabulary.MinLength})
}

// GeneratorConfig converts the generator section.
func (c *Config) GeneratorConfig() generator.Config {
	g := c.Generator
	return generator.Config{
		MaxWords:          g.MaxWords,
		MinWords:          g.MinWords,
		PadCount:          g.PadCount,
		TopWindow:         g.TopWindow,
		TopicChance:       g.TopicChance,
		SecondTopicChance: g.SecondTopicChance,
		ReactionCap:       g.ReactionCap,
		Sentinel:          g.Sentinel,
		Roles:             c.Vocabulary.Roles,
		Rules:             g.Rules,
	}
}

// ValidatorConfig converts the validator section.
func (c *Config) ValidatorConfig() validator.Config {
	deny := c.Validator.DenyList
	if deny == nil {
		deny = []string{}
	}
	return validator.Config{
		MinChars: c.Validator.MinChars,
		MinWords: c.Validator.MinWords,
		MaxWords: c.Validator.MaxWords,
		DenyList: deny,
	}
}

// ResponderConfig converts the llm section and persona.
func (c *Config) ResponderConfig() responder.Config {
	l := c.LLM
	return responder.Config{
		Persona:           c.Persona,
		Model:             l.Model,
		MaxAttempts:       l.MaxAttempts,
		AttemptTimeout:    seconds(l.AttemptTimeoutSeconds),
		Temperature:       l.Temperature,
		TopP:              l.TopP,
		MaxTokens:         l.MaxTokens,
		Stop:              l.Stop,
		RequestsPerMinute: l.RequestsPerMinute,
		MaxConcurrent:     l.MaxConcurrent,
		MinWords:          c.Validator.MinWords,
		MaxWords:          c.Validator.MaxWords,
	}
}

// LLMConfig converts the llm section. apiKey comes from the environment.
func (c *Config) LLMConfig(apiKey string) llm.Config {
	return llm.Config{
		Provider: c.LLM.Provider,
		BaseURL:  c.LLM.BaseURL,
		Model:    c.LLM.Model,
		APIKey:   apiKey,
		Timeout:  seconds(c.LLM.TimeoutSeconds),
	}
}

// IsAdmin reports whether sender may run privileged commands.
func (c *Config) IsAdmin(sender string) bool {
	if len(c.Admins) == 0 {
		return true
	}
	for _, a := range c.Admins {
		if a == sender {
			return true
		}
	}
	return false
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
