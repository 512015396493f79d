// Package responder turns an inbound message into reply text. It asks the
// language model first and falls back to the vocabulary generator whenever
// the model is unavailable, slow, busy or produces words the bot does not
// know. Respond always returns a reply.
package responder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/bdobrica/gerald/common/retry"
	"github.com/bdobrica/gerald/common/trace"
	"github.com/bdobrica/gerald/internal/gerald/generator"
	"github.com/bdobrica/gerald/internal/gerald/llm"
	"github.com/bdobrica/gerald/internal/gerald/validator"
	"github.com/bdobrica/gerald/internal/gerald/vocab"
)

// Source records where a reply came from.
type Source string

const (
	SourceLLM      Source = "llm"
	SourceFallback Source = "fallback"
)

// ErrRejected is returned by an attempt whose output failed validation.
var ErrRejected = errors.New("responder: candidate rejected")

// Config tunes the model path. Zero values select the defaults.
type Config struct {
	Persona string
	Model   string
	// MaxAttempts is the number of model calls before falling back. Default 3.
	MaxAttempts int
	// AttemptTimeout bounds each model call. Default 10s.
	AttemptTimeout time.Duration
	// RetryDelay is the wait before the second attempt. Default 100ms.
	RetryDelay  time.Duration
	Temperature float64
	TopP        float64
	MaxTokens   int
	Stop        []string
	// RequestsPerMinute caps model calls across all channels. Zero means
	// unlimited. A saturated limiter falls back immediately.
	RequestsPerMinute int
	// MaxConcurrent caps in-flight model calls. Default 2.
	MaxConcurrent int
	MinWords      int
	MaxWords      int
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 10 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 100 * time.Millisecond
	}
	if c.Temperature == 0 {
		c.Temperature = 0.8
	}
	if c.TopP == 0 {
		c.TopP = 0.9
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 150
	}
	if c.Stop == nil {
		c.Stop = DefaultStop
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 2
	}
	if c.MinWords <= 0 {
		c.MinWords = 2
	}
	if c.MaxWords <= 0 {
		c.MaxWords = 8
	}
	return c
}

// Request is one reply to produce.
type Request struct {
	Sender  string
	Text    string
	History string
}

// Reply is the outcome of Respond.
type Reply struct {
	Text     string
	Source   Source
	Attempts int
	// Rejections holds one entry per failed model attempt.
	Rejections []string
}

// Responder is safe for concurrent use.
type Responder struct {
	provider llm.Provider
	store    *vocab.Store
	gen      *generator.Generator
	val      *validator.Validator
	cfg      Config
	limiter  *rate.Limiter
	sem      *semaphore.Weighted

	mu        sync.RWMutex
	available bool
}

// New wires a Responder. provider may be nil for fallback-only operation.
func New(provider llm.Provider, store *vocab.Store, gen *generator.Generator, val *validator.Validator, cfg Config) *Responder {
	cfg = cfg.withDefaults()
	limit := rate.Inf
	burst := cfg.MaxConcurrent
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
		burst = min(cfg.MaxConcurrent, cfg.RequestsPerMinute)
	}
	return &Responder{
		provider:  provider,
		store:     store,
		gen:       gen,
		val:       val,
		cfg:       cfg,
		limiter:   rate.NewLimiter(limit, burst),
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		available: provider != nil,
	}
}

// Respond produces a reply for req. It never fails; errors from the model
// path are logged and answered with a generated fallback.
func (r *Responder) Respond(ctx context.Context, req Request) Reply {
	logger := slog.With("trace_id", trace.FromContext(ctx))

	if r.provider == nil {
		return r.Fallback(req.Text)
	}
	if !r.limiter.Allow() {
		logger.Info("responder: rate limited, using fallback")
		reply := r.Fallback(req.Text)
		reply.Rejections = []string{"rate_limited"}
		return reply
	}
	if !r.sem.TryAcquire(1) {
		logger.Info("responder: model busy, using fallback")
		reply := r.Fallback(req.Text)
		reply.Rejections = []string{"busy"}
		return reply
	}
	defer r.sem.Release(1)

	prompt := r.buildPrompt(req)
	var (
		accepted   string
		rejections []string
	)
	attempts, err := retry.Do(ctx, retry.Config{
		MaxAttempts:  r.cfg.MaxAttempts,
		InitialDelay: r.cfg.RetryDelay,
		MaxDelay:     r.cfg.RetryDelay * 4,
		OnRetry: func(attempt int, err error) {
			logger.Debug("responder: attempt failed, retrying", "attempt", attempt, "err", err)
		},
	}, func(attempt int) error {
		text, err := r.attempt(ctx, prompt)
		if err != nil {
			rejections = append(rejections, err.Error())
			return err
		}
		accepted = text
		return nil
	})
	if err == nil {
		logger.Info("responder: model reply accepted", "attempts", attempts)
		return Reply{Text: accepted, Source: SourceLLM, Attempts: attempts, Rejections: rejections}
	}

	logger.Info("responder: model path exhausted, using fallback", "attempts", attempts, "err", err)
	reply := r.Fallback(req.Text)
	reply.Attempts = attempts
	reply.Rejections = rejections
	return reply
}

func (r *Responder) attempt(ctx context.Context, prompt string) (string, error) {
	actx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
	defer cancel()

	resp, err := r.provider.Complete(actx, llm.CompletionRequest{
		Model:       r.cfg.Model,
		Prompt:      prompt,
		Temperature: r.cfg.Temperature,
		TopP:        r.cfg.TopP,
		MaxTokens:   r.cfg.MaxTokens,
		Stop:        r.cfg.Stop,
	})
	if err != nil {
		r.markAvailable(!errors.Is(err, llm.ErrConnection))
		if !llm.Retryable(err) {
			return "", retry.Permanent(err)
		}
		return "", err
	}
	r.markAvailable(true)

	candidate := CleanResponse(resp.Text)
	var reason validator.Reason
	r.store.View(func(v vocab.Reader) {
		reason = r.val.Check(candidate, v)
	})
	if reason != validator.OK {
		return "", fmt.Errorf("%w: %s: %q", ErrRejected, reason, candidate)
	}
	return candidate, nil
}

func (r *Responder) buildPrompt(req Request) string {
	var prompt string
	r.store.View(func(v vocab.Reader) {
		prompt = BuildPrompt(PromptInput{
			Persona:    r.cfg.Persona,
			Vocabulary: v.Words(),
			History:    req.History,
			Sender:     req.Sender,
			Text:       req.Text,
			MinWords:   r.cfg.MinWords,
			MaxWords:   r.cfg.MaxWords,
			Known:      v.Contains,
		})
	})
	return prompt
}

// Fallback generates a reply from the vocabulary alone.
func (r *Responder) Fallback(text string) Reply {
	return Reply{Text: r.gen.Generate(r.store, text), Source: SourceFallback}
}

// Ping probes the provider and records whether it is usable.
func (r *Responder) Ping(ctx context.Context) (*llm.Health, error) {
	if r.provider == nil {
		return nil, errors.New("responder: no model provider configured")
	}
	h, err := r.provider.Ping(ctx)
	if err != nil {
		r.markAvailable(false)
		return nil, err
	}
	r.markAvailable(h.ModelAvailable)
	return h, nil
}

// Available reports whether the last contact with the model succeeded.
func (r *Responder) Available() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.available
}

// ProviderName returns the backend name, or "none".
func (r *Responder) ProviderName() string {
	if r.provider == nil {
		return "none"
	}
	return r.provider.Name()
}

// ModelName returns the configured model, or "" without a provider.
func (r *Responder) ModelName() string {
	if r.cfg.Model != "" {
		return r.cfg.Model
	}
	if r.provider == nil {
		return ""
	}
	return r.provider.Model()
}

func (r *Responder) markAvailable(ok bool) {
	r.mu.Lock()
	r.available = ok
	r.mu.Unlock()
}
