// Package llm defines the language-model provider interface the responder
// uses, plus HTTP adapters for Ollama and OpenAI-compatible servers.
//
// Providers only transport text. Prompt assembly, output cleaning and the
// vocabulary check live in the responder.
package llm

import (
	"context"
	"time"
)

// CompletionRequest is the input to a single inference call.
type CompletionRequest struct {
	// Model overrides the provider's configured model when non-empty.
	Model string
	// System is an optional system instruction. Providers without a separate
	// system channel prepend it to Prompt.
	System string
	// Prompt is the full user-turn text.
	Prompt      string
	Temperature float64
	TopP        float64
	MaxTokens   int
	Stop        []string
}

// CompletionResponse is the raw model output.
type CompletionResponse struct {
	Text     string
	Model    string
	Usage    TokenUsage
	Duration time.Duration
}

// TokenUsage reports token consumption when the backend provides it.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Health is the result of a provider availability probe.
type Health struct {
	// Models lists the models the backend reports as installed.
	Models []string
	// ModelAvailable is true when the configured model is among Models, so
	// an empty listing means unavailable. An OpenAI-compatible server with
	// no /models endpoint, or with no model configured, counts as available.
	ModelAvailable bool
}

// Provider is the interface that all model backends implement.
type Provider interface {
	// Name identifies the backend in logs and status output.
	Name() string
	// Model returns the configured default model.
	Model() string
	// Complete runs one non-streaming completion.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) (*Health, error)
}
