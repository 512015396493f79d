// Package app wires Gerald's subsystems and implements the message loop:
// message received → learn → policy decision → responder → reply.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/bdobrica/gerald/common/spec/envelope"
	"github.com/bdobrica/gerald/common/trace"
	"github.com/bdobrica/gerald/common/version"
	"github.com/bdobrica/gerald/internal/gerald/commands"
	"github.com/bdobrica/gerald/internal/gerald/config"
	"github.com/bdobrica/gerald/internal/gerald/control"
	"github.com/bdobrica/gerald/internal/gerald/generator"
	"github.com/bdobrica/gerald/internal/gerald/llm"
	"github.com/bdobrica/gerald/internal/gerald/matrix"
	"github.com/bdobrica/gerald/internal/gerald/memory"
	"github.com/bdobrica/gerald/internal/gerald/observability"
	"github.com/bdobrica/gerald/internal/gerald/persist"
	"github.com/bdobrica/gerald/internal/gerald/policy"
	"github.com/bdobrica/gerald/internal/gerald/responder"
	"github.com/bdobrica/gerald/internal/gerald/store"
	"github.com/bdobrica/gerald/internal/gerald/validator"
	"github.com/bdobrica/gerald/internal/gerald/vocab"
)

// DefaultFlushInterval is how often unsaved vocabulary and journal changes
// are written when no interval is configured.
const DefaultFlushInterval = 30 * time.Second

// Sender delivers reply text to a channel. *matrix.Client satisfies it.
type Sender interface {
	SendText(ctx context.Context, channelID, text string) error
}

// Rand is the randomness the generator and policy draw from.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// Config holds the process-level settings, typically read from the
// environment by the CLI. Behavioural tuning lives in the YAML file.
type Config struct {
	// ConfigFile is the YAML file to load and watch. When empty the last
	// applied config from the database is used, or the defaults.
	ConfigFile string
	// DatabasePath is the SQLite state database.
	DatabasePath string
	// VocabBackend is json, sqlite or bolt.
	VocabBackend string
	// VocabPath is the vocabulary file for the json and bolt backends.
	VocabPath string
	// JournalFile enables the conversation journal when non-empty.
	JournalFile string

	// Matrix is used when Matrix.Homeserver is set.
	Matrix matrix.Config

	// LLMAPIKey is passed to OpenAI-compatible providers.
	LLMAPIKey string
	// LLMOverrides replace the llm section's backend fields when set.
	LLMOverrides LLMOverrides

	// ControlAddr enables the control server when non-empty.
	ControlAddr  string
	ControlToken string

	FlushInterval time.Duration
}

// LLMOverrides are environment-level replacements for the YAML llm section.
type LLMOverrides struct {
	Provider string
	BaseURL  string
	Model    string
}

func (o LLMOverrides) apply(c *config.Config) *config.Config {
	if o.Provider == "" && o.BaseURL == "" && o.Model == "" {
		return c
	}
	out := *c
	if o.Provider != "" {
		out.LLM.Provider = o.Provider
	}
	if o.BaseURL != "" {
		out.LLM.BaseURL = o.BaseURL
	}
	if o.Model != "" {
		out.LLM.Model = o.Model
	}
	return &out
}

// Option customises an App; used mainly by tests.
type Option func(*App)

// WithSender replaces the Matrix client as the reply channel.
func WithSender(s Sender) Option {
	return func(a *App) { a.sender = s }
}

// WithProvider pins the language-model provider instead of building one
// from config. A nil provider selects fallback-only operation.
func WithProvider(p llm.Provider) Option {
	return func(a *App) {
		a.fixedProvider = true
		a.provider = p
	}
}

// WithRand makes generation and reply decisions deterministic.
func WithRand(r Rand) Option {
	return func(a *App) { a.rnd = r }
}

// WithClock overrides the time source used for policy decisions.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// App is a running Gerald instance.
type App struct {
	cfg       *Config
	loader    *config.Loader
	db        *store.Store
	persister persist.Persister
	vocab     *vocab.Store
	learner   *vocab.Learner
	history   *memory.History
	journal   *memory.Journal
	policy    *policy.Engine
	router    *commands.Router
	matrixCli *matrix.Client
	control   *control.Server
	sender    Sender
	rnd       Rand
	now       func() time.Time
	startedAt time.Time

	fixedProvider bool

	mu        sync.RWMutex // guards the fields rebuilt on config reload
	provider  llm.Provider
	gen       *generator.Generator
	val       *validator.Validator
	responder *responder.Responder

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New opens storage, restores the vocabulary and wires every subsystem.
// Nothing runs until Run is called.
func New(cfg *Config, opts ...Option) (*App, error) {
	db, err := store.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &App{
		cfg:       cfg,
		db:        db,
		loader:    config.NewLoader(),
		now:       time.Now,
		startedAt: time.Now(),
	}
	for _, o := range opts {
		o(a)
	}

	a.loadConfig()
	c := a.loader.Config()

	a.persister, err = persist.Open(cfg.VocabBackend, cfg.VocabPath, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open vocabulary backend: %w", err)
	}
	a.vocab, err = vocab.Load(context.Background(), a.persister, c.Vocabulary.Seed, vocab.WithCapacity(c.Vocabulary.Capacity))
	if err != nil {
		a.persister.Close()
		db.Close()
		return nil, err
	}
	a.learner = vocab.NewLearner(a.vocab, a.persister, vocab.LearnerConfig{
		SaveEvery: c.Vocabulary.SaveEvery,
		ResetSeed: c.Vocabulary.ResetSeed,
		Tokenizer: c.Tokenizer(),
	})
	slog.Info("vocabulary loaded", "words", a.vocab.Len(), "backend", backendName(cfg.VocabBackend))

	if cfg.JournalFile != "" {
		a.journal, err = memory.OpenJournal(cfg.JournalFile, c.JournalCap, c.Vocabulary.Roles[vocab.Topic])
		if err != nil {
			a.persister.Close()
			db.Close()
			return nil, fmt.Errorf("open journal: %w", err)
		}
	}

	a.history = memory.NewHistory(c.MaxHistory)
	a.policy = policy.New(c.Policy(), a.rnd)
	a.router = commands.NewRouter(c.CommandPrefix)
	commands.Register(a.router, a)

	if err := a.rebuild(c); err != nil {
		a.persister.Close()
		db.Close()
		return nil, err
	}

	if cfg.Matrix.Homeserver != "" {
		mcfg := cfg.Matrix
		mcfg.BotName = c.BotName
		mcfg.SyncState = db
		a.matrixCli, err = matrix.New(mcfg)
		if err != nil {
			a.persister.Close()
			db.Close()
			return nil, fmt.Errorf("init matrix: %w", err)
		}
		if a.sender == nil {
			a.sender = a.matrixCli
		}
	}
	if a.sender == nil {
		slog.Warn("no chat transport configured; replies are only logged")
		a.sender = logSender{}
	}

	if cfg.ControlAddr != "" {
		a.control = control.New(cfg.ControlAddr, a.controlHandlers())
	}
	return a, nil
}

// loadConfig applies the YAML file, or restores the last applied config
// from the database. Failures leave the defaults in place.
func (a *App) loadConfig() {
	if a.cfg.ConfigFile != "" {
		if err := a.loader.LoadFile(a.cfg.ConfigFile); err != nil {
			slog.Warn("could not load config file; using defaults", "file", a.cfg.ConfigFile, "err", err)
			return
		}
		a.saveAppliedConfig()
		return
	}
	hash, yaml, err := a.db.LoadAppliedConfig(context.Background())
	if err != nil {
		slog.Warn("could not load applied config from DB", "err", err)
		return
	}
	if yaml == "" {
		return
	}
	if err := a.loader.Apply([]byte(yaml)); err != nil {
		slog.Warn("stored config is invalid; using defaults", "hash", hash, "err", err)
	}
}

func (a *App) saveAppliedConfig() {
	if a.loader.YAML() == "" {
		return
	}
	if err := a.db.SaveAppliedConfig(context.Background(), a.loader.Hash(), a.loader.YAML()); err != nil {
		slog.Warn("could not persist applied config", "err", err)
	}
}

// rebuild replaces the generator, validator and responder for c. The
// provider is rebuilt too unless it was pinned with WithProvider.
func (a *App) rebuild(c *config.Config) error {
	c = a.cfg.LLMOverrides.apply(c)
	provider := a.currentProvider()
	if !a.fixedProvider {
		p, err := llm.New(c.LLMConfig(a.cfg.LLMAPIKey))
		if err != nil {
			return fmt.Errorf("build llm provider: %w", err)
		}
		provider = p
	}
	gen := generator.New(c.GeneratorConfig(), a.rnd)
	val := validator.New(c.ValidatorConfig())
	resp := responder.New(provider, a.vocab, gen, val, c.ResponderConfig())

	a.mu.Lock()
	a.provider = provider
	a.gen = gen
	a.val = val
	a.responder = resp
	a.mu.Unlock()
	return nil
}

// applyConfig pushes a reloaded config into every running subsystem.
func (a *App) applyConfig(c *config.Config) {
	a.policy.Update(c.Policy())
	a.history.SetCapacity(c.MaxHistory)
	a.vocab.SetCapacity(c.Vocabulary.Capacity)
	a.learner.SetSaveEvery(c.Vocabulary.SaveEvery)
	a.learner.SetResetSeed(c.Vocabulary.ResetSeed)
	a.learner.SetTokenizer(c.Tokenizer())
	a.router.SetPrefix(c.CommandPrefix)
	if a.journal != nil {
		a.journal.SetCap(c.JournalCap)
		a.journal.SetTopicWords(c.Vocabulary.Roles[vocab.Topic])
	}
	if err := a.rebuild(c); err != nil {
		slog.Error("config reload: keeping previous responder", "err", err)
	}
	a.saveAppliedConfig()
	slog.Info("config applied", "hash", shortHash(a.loader.Hash()))
}

// Run starts the transports and background workers and blocks until ctx
// is cancelled, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.control != nil {
		if err := a.control.Start(ctx); err != nil {
			return fmt.Errorf("start control server: %w", err)
		}
	}
	if a.matrixCli != nil {
		if err := a.matrixCli.Start(ctx, a.handleMessage); err != nil {
			return fmt.Errorf("start matrix: %w", err)
		}
	}

	a.goBackground(func() { a.flushLoop(ctx) })
	a.goBackground(func() { a.probeLLM(ctx) })
	if a.cfg.ConfigFile != "" {
		a.goBackground(func() {
			if err := a.loader.Watch(ctx, a.cfg.ConfigFile, config.DefaultDebounce, a.applyConfig); err != nil {
				slog.Warn("config watch stopped", "err", err)
			}
		})
	}

	slog.Info("Gerald started",
		"version", version.Version,
		"words", a.vocab.Len(),
		"llm", a.currentResponder().ProviderName(),
	)

	<-ctx.Done()
	slog.Info("shutting down")
	a.Stop()
	return nil
}

// Stop shuts down all subsystems and flushes state. It is safe to call
// more than once.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		if a.matrixCli != nil {
			a.matrixCli.Stop()
		}
		if a.control != nil {
			a.control.Stop()
		}
		a.wg.Wait()

		ctx := context.Background()
		if err := a.learner.Flush(ctx); err != nil {
			slog.Warn("final vocabulary save failed", "err", err)
		}
		if a.journal != nil {
			if err := a.journal.Save(ctx); err != nil {
				slog.Warn("final journal save failed", "err", err)
			}
		}
		a.persister.Close()
		a.db.Close()
	})
}

func (a *App) goBackground(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

func (a *App) flushLoop(ctx context.Context) {
	interval := a.cfg.FlushInterval
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.flush(ctx)
		}
	}
}

func (a *App) flush(ctx context.Context) {
	if err := a.learner.Flush(ctx); err != nil {
		slog.Warn("vocabulary save failed, keeping in-memory state", "err", err)
	}
	if a.journal != nil {
		if err := a.journal.Save(ctx); err != nil {
			slog.Warn("journal save failed", "err", err)
		}
	}
}

func (a *App) probeLLM(ctx context.Context) {
	resp := a.currentResponder()
	if resp.ProviderName() == "none" {
		slog.Info("no language model configured; using generated replies only")
		return
	}
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	h, err := resp.Ping(pctx)
	if err != nil {
		slog.Warn("language model unreachable; using generated replies until it answers",
			"provider", resp.ProviderName(), "err", err)
		return
	}
	if !h.ModelAvailable {
		slog.Warn("configured model not installed", "model", resp.ModelName(), "installed", h.Models)
		return
	}
	slog.Info("language model ready", "provider", resp.ProviderName(), "model", resp.ModelName())
}

func (a *App) currentProvider() llm.Provider {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.provider
}

func (a *App) currentResponder() *responder.Responder {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.responder
}

func (a *App) currentGenerator() *generator.Generator {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.gen
}

func (a *App) currentValidator() *validator.Validator {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.val
}

// Submit handles msg on its own goroutine. Stop waits for it.
func (a *App) Submit(ctx context.Context, msg *envelope.Message) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.handleMessage(ctx, msg)
	}()
}

// handleMessage is called for every inbound message, concurrently.
func (a *App) handleMessage(ctx context.Context, msg *envelope.Message) {
	if msg == nil || msg.FromBot {
		return
	}
	if !a.policy.ChannelAllowed(msg.ChannelID) {
		slog.Debug("message from disallowed channel; ignoring", "channel", msg.ChannelID)
		return
	}

	traceID := trace.GenerateID()
	ctx = trace.WithTraceID(ctx, traceID)
	log := observability.WithTrace(ctx)
	c := a.loader.Config()

	if a.router.IsCommand(msg.Text) {
		a.runCommand(ctx, traceID, msg)
		return
	}

	if added := a.learner.Learn(ctx, msg.Text); added > 0 {
		log.Debug("learned new words", "added", added, "total", a.vocab.Len())
	}
	if a.journal != nil {
		a.journal.Record(msg, mentionsIn(msg.Text))
	}

	// Prompt context is taken before this message joins the history.
	history := a.history.Format(msg.ChannelID, c.MaxHistory, c.BotName)
	a.history.Record(msg.ChannelID, memory.Exchange{
		Sender:    msg.DisplayName(),
		Text:      msg.Text,
		Timestamp: msg.ReceivedAt,
	})

	result := a.policy.Decide(msg, a.now())
	turnID, err := a.db.LogTurn(ctx, traceID, msg.ChannelID, msg.SenderID, msg.Text,
		result.Decision.String(), string(result.Reason))
	if err != nil {
		log.Warn("could not log turn", "err", err)
	}
	if !result.Respond() {
		log.Debug("not responding", "reason", result.Reason)
		return
	}

	start := time.Now()
	reply := a.currentResponder().Respond(ctx, responder.Request{
		Sender:  msg.DisplayName(),
		Text:    msg.Text,
		History: history,
	})
	errMsg := ""
	if err := a.sender.SendText(ctx, msg.ChannelID, reply.Text); err != nil {
		log.Error("could not send reply", "err", err)
		errMsg = err.Error()
	} else {
		a.history.AttachResponse(msg.ChannelID, reply.Text)
		log.Info("replied", "reason", result.Reason, "source", reply.Source, "attempts", reply.Attempts)
	}
	a.finishTurn(ctx, turnID, string(reply.Source), reply.Text, reply.Attempts, len(reply.Rejections), time.Since(start), errMsg)
}

func (a *App) runCommand(ctx context.Context, traceID string, msg *envelope.Message) {
	log := observability.WithTrace(ctx)
	cmd, err := a.router.Parse(msg.Text)
	if err != nil {
		log.Debug("unparseable command", "err", err)
		return
	}
	turnID, err := a.db.LogTurn(ctx, traceID, msg.ChannelID, msg.SenderID, msg.Text, "command", cmd.Name)
	if err != nil {
		log.Warn("could not log turn", "err", err)
	}

	start := time.Now()
	reply, err := a.router.Dispatch(ctx, cmd, msg)
	errMsg := ""
	switch {
	case errors.Is(err, commands.ErrUnknownCommand):
		log.Debug("unknown command; ignoring", "command", cmd.Name)
		a.finishTurn(ctx, turnID, "command", "", 0, 0, time.Since(start), err.Error())
		return
	case err != nil:
		log.Warn("command failed", "command", cmd.Name, "err", err)
		errMsg = err.Error()
		reply = "❌ " + err.Error()
	}
	if err := a.sender.SendText(ctx, msg.ChannelID, reply); err != nil {
		log.Error("could not send command reply", "err", err)
		errMsg = err.Error()
	}
	a.finishTurn(ctx, turnID, "command", reply, 0, 0, time.Since(start), errMsg)
}

func (a *App) finishTurn(ctx context.Context, turnID, source, response string, attempts, rejections int, d time.Duration, errMsg string) {
	if turnID == "" {
		return
	}
	if err := a.db.FinishTurn(ctx, turnID, source, response, attempts, rejections, d, errMsg); err != nil {
		observability.WithTrace(ctx).Warn("could not finish turn", "err", err)
	}
}

var mentionPattern = regexp.MustCompile(`@[A-Za-z0-9._=/+\-]+:[A-Za-z0-9.\-]+(?::[0-9]+)?`)

// mentionsIn returns the Matrix user IDs written in text.
func mentionsIn(text string) []string {
	return mentionPattern.FindAllString(text, -1)
}

type logSender struct{}

func (logSender) SendText(_ context.Context, channelID, text string) error {
	slog.Info("reply (no transport)", "channel", channelID, "text", text)
	return nil
}

func backendName(b string) string {
	if b == "" {
		return persist.BackendJSON
	}
	return b
}

func shortHash(h string) string {
	return h[:min(12, len(h))]
}
