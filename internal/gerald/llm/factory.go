package llm

import (
	"fmt"
	"strings"
	"time"
)

// Config selects and configures a provider.
type Config struct {
	// Provider is "ollama" (default), "openai" or "none".
	Provider string
	BaseURL  string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// New builds the provider named by cfg.Provider. It returns (nil, nil) for
// "none", which leaves the bot on generated fallback replies only.
func New(cfg Config) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "ollama":
		return NewOllama(OllamaConfig{BaseURL: cfg.BaseURL, Model: cfg.Model, Timeout: cfg.Timeout}), nil
	case "openai":
		return NewOpenAI(OpenAIConfig{BaseURL: cfg.BaseURL, Model: cfg.Model, APIKey: cfg.APIKey, Timeout: cfg.Timeout}), nil
	case "none", "off":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
