package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bdobrica/gerald/common/spec/envelope"
	"github.com/bdobrica/gerald/internal/gerald/vocab"
)

// Status is the bot state reported by !status.
type Status struct {
	LLMAvailable   bool
	Provider       string
	Model          string
	VocabularySize int
	Uptime         time.Duration
	Version        string
}

// Bot is what the handlers act on.
type Bot interface {
	// Vocabulary returns a read view for reporting.
	Vocabulary() vocab.Reader
	Learn(ctx context.Context, text string) int
	ResetVocabulary(ctx context.Context) ([]string, error)
	Generate(topic string) string
	Ask(ctx context.Context, msg *envelope.Message) string
	ClearHistory(channel string)
	Status(ctx context.Context) Status
	IsAdmin(sender string) bool
}

const defaultTop = 10

// Register binds the stock commands to r.
func Register(r *Router, bot Bot) {
	h := &handlers{bot: bot, router: r}
	r.Register("vocabulary", "show vocabulary size and most used words (--top N)", h.vocabulary)
	r.Register("teach", "learn words from the given text", h.teach)
	r.Register("vocab_test", "generate a reply from learned words only", h.vocabTest)
	r.Register("say", "alias of vocab_test", h.vocabTest)
	r.Register("ask", "answer a question through the language model", h.ask)
	r.Register("test_ai", "alias of ask", h.ask)
	r.Register("clear_vocab", "reset the vocabulary to its starter words (admin)", h.clearVocab)
	r.Register("reset", "forget this channel's conversation history", h.reset)
	r.Register("status", "show model availability, vocabulary size and uptime", h.status)
	r.Register("help", "list commands", h.help)
}

type handlers struct {
	bot    Bot
	router *Router
}

func (h *handlers) vocabulary(_ context.Context, cmd *Command, _ *envelope.Message) (string, error) {
	n := defaultTop
	if v := cmd.GetFlag("top", ""); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			return "", fmt.Errorf("--top must be a positive integer")
		}
		n = parsed
	}
	r := h.bot.Vocabulary()
	top := r.Top(n)
	parts := make([]string, len(top))
	for i, wc := range top {
		parts[i] = fmt.Sprintf("%s(%d)", wc.Word, wc.Count)
	}
	return fmt.Sprintf("Gerald knows %d words. Most used: %s", r.Len(), strings.Join(parts, ", ")), nil
}

func (h *handlers) teach(ctx context.Context, cmd *Command, _ *envelope.Message) (string, error) {
	if cmd.Rest == "" {
		return "", fmt.Errorf("usage: teach <words>")
	}
	added := h.bot.Learn(ctx, cmd.Rest)
	return fmt.Sprintf("Gerald learned from: %s (%d new)", cmd.Rest, added), nil
}

func (h *handlers) vocabTest(_ context.Context, cmd *Command, _ *envelope.Message) (string, error) {
	out := h.bot.Generate(cmd.Rest)
	return fmt.Sprintf("Vocab test (%d words): %s", h.bot.Vocabulary().Len(), out), nil
}

func (h *handlers) ask(ctx context.Context, cmd *Command, msg *envelope.Message) (string, error) {
	if cmd.Rest == "" {
		return "", fmt.Errorf("usage: ask <question>")
	}
	q := *msg
	q.Text = cmd.Rest
	q.Mentioned = true
	return h.bot.Ask(ctx, &q), nil
}

func (h *handlers) clearVocab(ctx context.Context, _ *Command, msg *envelope.Message) (string, error) {
	if !h.bot.IsAdmin(msg.SenderID) {
		return "", fmt.Errorf("clear_vocab: %w", ErrForbidden)
	}
	words, err := h.bot.ResetVocabulary(ctx)
	if err != nil {
		return "", err
	}
	return "Gerald's vocabulary cleared! He only knows: " + strings.Join(words, ", "), nil
}

func (h *handlers) reset(_ context.Context, _ *Command, msg *envelope.Message) (string, error) {
	h.bot.ClearHistory(msg.ChannelID)
	return "Memory reset!", nil
}

func (h *handlers) status(ctx context.Context, _ *Command, _ *envelope.Message) (string, error) {
	s := h.bot.Status(ctx)
	mode := "Fallback Mode"
	if s.LLMAvailable {
		mode = "AI Ready"
	}
	backend := "none"
	if s.Provider != "" {
		backend = s.Provider + "/" + s.Model
	}
	return fmt.Sprintf("Status: %s | model: %s | vocabulary: %d words | uptime: %s | version: %s",
		mode, backend, s.VocabularySize, s.Uptime.Round(time.Second), s.Version), nil
}

func (h *handlers) help(_ context.Context, _ *Command, _ *envelope.Message) (string, error) {
	return h.router.Help(), nil
}
