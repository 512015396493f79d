package app

import (
	"context"
	"time"

	"github.com/bdobrica/gerald/common/spec/envelope"
	"github.com/bdobrica/gerald/common/version"
	"github.com/bdobrica/gerald/internal/gerald/commands"
	"github.com/bdobrica/gerald/internal/gerald/control"
	"github.com/bdobrica/gerald/internal/gerald/responder"
	"github.com/bdobrica/gerald/internal/gerald/vocab"
)

// The App is the commands.Bot the chat commands act on.
var _ commands.Bot = (*App)(nil)

func (a *App) Vocabulary() vocab.Reader { return a.vocab }

func (a *App) Learn(ctx context.Context, text string) int {
	return a.learner.Learn(ctx, text)
}

// ResetVocabulary restores the reset seed and returns the words now known.
func (a *App) ResetVocabulary(ctx context.Context) ([]string, error) {
	if err := a.learner.Reset(ctx); err != nil {
		return nil, err
	}
	return a.loader.Config().Vocabulary.ResetSeed, nil
}

func (a *App) Generate(topic string) string {
	return a.currentGenerator().Generate(a.vocab, topic)
}

// Ask runs the full responder path for msg, bypassing the reply policy.
func (a *App) Ask(ctx context.Context, msg *envelope.Message) string {
	c := a.loader.Config()
	reply := a.currentResponder().Respond(ctx, responder.Request{
		Sender:  msg.DisplayName(),
		Text:    msg.Text,
		History: a.history.Format(msg.ChannelID, c.MaxHistory, c.BotName),
	})
	return reply.Text
}

func (a *App) ClearHistory(channel string) { a.history.Clear(channel) }

func (a *App) Status(context.Context) commands.Status {
	resp := a.currentResponder()
	s := commands.Status{
		LLMAvailable:   resp.Available(),
		VocabularySize: a.vocab.Len(),
		Uptime:         time.Since(a.startedAt),
		Version:        version.Version,
	}
	if name := resp.ProviderName(); name != "none" {
		s.Provider = name
		s.Model = resp.ModelName()
	}
	return s
}

func (a *App) IsAdmin(sender string) bool {
	return a.loader.Config().IsAdmin(sender)
}

func (a *App) controlHandlers() control.Handlers {
	return control.Handlers{
		Version:    version.Version,
		StartedAt:  a.startedAt,
		Token:      a.cfg.ControlToken,
		Vocabulary: func() *vocab.Store { return a.vocab },
		ConfigHash: a.loader.Hash,
		LLM: func() (bool, string, string) {
			s := a.Status(context.Background())
			return s.LLMAvailable, s.Provider, s.Model
		},
		ReplyCounts: a.db.SourceCounts,
		Generate:    a.Generate,
		Validate: func(candidate string) string {
			var reason string
			a.vocab.View(func(v vocab.Reader) {
				reason = string(a.currentValidator().Check(candidate, v))
			})
			return reason
		},
		HandleMessage: a.Submit,
	}
}
