package app

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/bdobrica/gerald/common/spec/envelope"
	"github.com/bdobrica/gerald/internal/gerald/config"
	"github.com/bdobrica/gerald/internal/gerald/llm"
	"github.com/bdobrica/gerald/internal/gerald/persist"
	"github.com/bdobrica/gerald/internal/gerald/vocab"
)

var t0 = time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)

const alwaysReply = `
response_chance: 1.0
cooldown_seconds: 3
trigger_words: []
llm:
  provider: none
`

func TestHandleMessage_CooldownAllowsOneReply(t *testing.T) {
	sender := &fakeSender{}
	a, _ := newTestApp(t, alwaysReply, WithSender(sender), WithRand(fixedRand(0)))

	a.now = func() time.Time { return t0 }
	a.handleMessage(context.Background(), chat("!pub", "tyler mate massive"))
	a.now = func() time.Time { return t0.Add(time.Second) }
	a.handleMessage(context.Background(), chat("!pub", "massive tyler mate"))

	if n := len(sender.sent()); n != 1 {
		t.Fatalf("sent %d replies, want 1", n)
	}
	turns, err := a.db.RecentTurns(context.Background(), "!pub", 10)
	if err != nil {
		t.Fatalf("RecentTurns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(turns))
	}
	if turns[0].Reason != "cooldown" || turns[1].Decision != "respond" {
		t.Errorf("unexpected turns: %+v", turns)
	}
	if turns[1].Source != "fallback" || turns[1].Response == "" {
		t.Errorf("responded turn not finished: %+v", turns[1])
	}
}

func TestHandleMessage_LearnsWithoutReplying(t *testing.T) {
	sender := &fakeSender{}
	a, _ := newTestApp(t, "response_chance: 0.0\ntrigger_words: []\nllm: {provider: none}\n",
		WithSender(sender), WithRand(fixedRand(0.5)))

	a.handleMessage(context.Background(), chat("!pub", "Tyler is absolutely MASSIVE today"))

	for _, w := range []string{"absolutely", "today"} {
		if !a.vocab.Contains(w) {
			t.Errorf("vocabulary missing %q", w)
		}
	}
	if got := a.vocab.Frequency("tyler"); got != 2 {
		t.Errorf("frequency(tyler) = %d, want 2", got)
	}
	if n := len(sender.sent()); n != 0 {
		t.Errorf("sent %d replies, want 0", n)
	}
}

func TestHandleMessage_Ignored(t *testing.T) {
	doc := alwaysReply + "allowed_channels: [\"!pub\"]\n"

	tests := []struct {
		name string
		msg  *envelope.Message
	}{
		{"from bot", &envelope.Message{SenderID: "@gerald:example.org", ChannelID: "!pub", Text: "proper geezer", FromBot: true, ReceivedAt: t0}},
		{"other channel", chat("!private", "proper geezer")},
		{"nil message", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			a, _ := newTestApp(t, doc, WithSender(sender), WithRand(fixedRand(0)))
			a.handleMessage(context.Background(), tt.msg)
			if a.vocab.Contains("geezer") {
				t.Error("ignored message was learned")
			}
			if n := len(sender.sent()); n != 0 {
				t.Errorf("sent %d replies, want 0", n)
			}
		})
	}
}

func TestHandleMessage_ModelReply(t *testing.T) {
	sender := &fakeSender{}
	prov := &fakeProvider{text: "Gerald: massive mate!"}
	a, _ := newTestApp(t, "response_chance: 1.0\ntrigger_words: []\n",
		WithSender(sender), WithRand(fixedRand(0)), WithProvider(prov))

	a.handleMessage(context.Background(), chat("!pub", "you alright mate"))

	sent := sender.sent()
	if len(sent) != 1 || sent[0].text != "massive mate" {
		t.Fatalf("sent = %+v, want one reply \"massive mate\"", sent)
	}
	if !strings.Contains(prov.lastPrompt(), "you alright mate") {
		t.Errorf("prompt missing user text:\n%s", prov.lastPrompt())
	}
	if got := a.history.Format("!pub", 10, "Gerald"); got != "User: you alright mate\nGerald: massive mate" {
		t.Errorf("history = %q", got)
	}
	counts, err := a.db.SourceCounts(context.Background())
	if err != nil {
		t.Fatalf("SourceCounts: %v", err)
	}
	if counts["llm"] != 1 {
		t.Errorf("source counts = %v, want llm:1", counts)
	}
}

func TestHandleMessage_SendFailureKeepsHistoryUnanswered(t *testing.T) {
	sender := &fakeSender{err: errors.New("homeserver down")}
	a, _ := newTestApp(t, alwaysReply, WithSender(sender), WithRand(fixedRand(0)))

	a.handleMessage(context.Background(), chat("!pub", "tyler mate"))

	if got := a.history.Format("!pub", 10, "Gerald"); got != "User: tyler mate" {
		t.Errorf("history = %q", got)
	}
	turns, _ := a.db.RecentTurns(context.Background(), "!pub", 1)
	if len(turns) != 1 || turns[0].ErrorMsg != "homeserver down" {
		t.Errorf("turn error not recorded: %+v", turns)
	}
}

func TestCommands(t *testing.T) {
	sender := &fakeSender{}
	a, _ := newTestApp(t, alwaysReply+"admins: [\"@boss:example.org\"]\n", WithSender(sender), WithRand(fixedRand(0)))
	ctx := context.Background()

	a.handleMessage(ctx, chat("!pub", "!teach proper geezer"))
	if !a.vocab.Contains("geezer") || !a.vocab.Contains("proper") {
		t.Error("teach did not learn")
	}

	before := a.vocab.Len()
	a.handleMessage(ctx, chat("!pub", "!vocabulary --top 3"))
	if a.vocab.Contains("vocabulary") || a.vocab.Len() != before {
		t.Error("command text was learned")
	}

	a.handleMessage(ctx, chat("!pub", "!clear_vocab"))
	if !a.vocab.Contains("geezer") {
		t.Error("non-admin cleared the vocabulary")
	}

	boss := chat("!pub", "!clear_vocab")
	boss.SenderID = "@boss:example.org"
	a.handleMessage(ctx, boss)
	if a.vocab.Len() != 3 || !a.vocab.Contains("massive") {
		t.Errorf("vocabulary after clear = %v", a.vocab.Words())
	}

	a.handleMessage(ctx, chat("!pub", "!nonsense"))

	replies := sender.sent()
	if len(replies) != 4 {
		t.Fatalf("sent %d replies, want 4: %+v", len(replies), replies)
	}
	wantPrefixes := []string{
		"Gerald learned from: proper geezer",
		"Gerald knows ",
		"❌ clear_vocab: not allowed",
		"Gerald's vocabulary cleared! He only knows: mate, tyler, massive",
	}
	for i, p := range wantPrefixes {
		if !strings.HasPrefix(replies[i].text, p) {
			t.Errorf("reply %d = %q, want prefix %q", i, replies[i].text, p)
		}
	}
}

func TestApplyConfig_Reload(t *testing.T) {
	a, _ := newTestApp(t, alwaysReply, WithSender(&fakeSender{}), WithRand(fixedRand(0)))

	if err := a.loader.Apply([]byte("command_prefix: \".\"\nmax_history: 2\nllm: {provider: none}\n")); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	a.applyConfig(a.loader.Config())

	if !a.router.IsCommand(".status") || a.router.IsCommand("!status") {
		t.Error("command prefix not reloaded")
	}
	hash, _, err := a.db.LoadAppliedConfig(context.Background())
	if err != nil || hash != a.loader.Hash() {
		t.Errorf("applied config not persisted: hash=%q err=%v", hash, err)
	}
}

func TestRun_FlushesOnShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	cfg := &Config{
		ConfigFile:   writeConfig(t, dir, alwaysReply),
		DatabasePath: filepath.Join(dir, "gerald.db"),
		VocabBackend: persist.BackendJSON,
		VocabPath:    filepath.Join(dir, "vocabulary.json"),
		JournalFile:  filepath.Join(dir, "journal.json"),
	}
	sender := &fakeSender{}
	a, err := New(cfg, WithSender(sender), WithRand(fixedRand(0)), WithProvider(nil))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.learner.SetSaveEvery(1000)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	a.Submit(ctx, chat("!pub", "proper geezer @tyler:example.org"))
	waitFor(t, func() bool { return len(sender.sent()) == 1 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	data, err := os.ReadFile(cfg.VocabPath)
	if err != nil {
		t.Fatalf("read vocabulary: %v", err)
	}
	var snap vocab.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("decode vocabulary: %v", err)
	}
	if snap.Frequency["geezer"] != 1 {
		t.Errorf("saved frequency(geezer) = %d, want 1", snap.Frequency["geezer"])
	}

	data, err = os.ReadFile(cfg.JournalFile)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	var doc struct {
		Conversations []struct {
			Mentions []string `json:"mentions"`
		} `json:"conversations"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode journal: %v", err)
	}
	if len(doc.Conversations) != 1 || len(doc.Conversations[0].Mentions) != 1 || doc.Conversations[0].Mentions[0] != "@tyler:example.org" {
		t.Errorf("journal = %s", data)
	}
}

func TestNew_RestoresAppliedConfigFromDB(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		ConfigFile:   writeConfig(t, dir, "bot_name: Gaz\nllm: {provider: none}\n"),
		DatabasePath: filepath.Join(dir, "gerald.db"),
		VocabBackend: persist.BackendSQLite,
	}
	a, err := New(cfg, WithSender(&fakeSender{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.Stop()

	cfg.ConfigFile = ""
	b, err := New(cfg, WithSender(&fakeSender{}))
	if err != nil {
		t.Fatalf("New (restart): %v", err)
	}
	defer b.Stop()
	if got := b.loader.Config().BotName; got != "Gaz" {
		t.Errorf("bot name after restart = %q, want Gaz", got)
	}
}

func TestLLMOverrides(t *testing.T) {
	base := config.Default()
	base.LLM.Provider = "ollama"
	base.LLM.Model = "llama3"

	if got := (LLMOverrides{}).apply(&base); got != &base {
		t.Error("empty overrides should return the config unchanged")
	}

	got := LLMOverrides{Provider: "openai", BaseURL: "http://llm:8080/v1"}.apply(&base)
	if got.LLM.Provider != "openai" || got.LLM.BaseURL != "http://llm:8080/v1" || got.LLM.Model != "llama3" {
		t.Errorf("overridden llm = %+v", got.LLM)
	}
	if base.LLM.Provider != "ollama" {
		t.Error("apply mutated its input")
	}
}

func TestMentionsIn(t *testing.T) {
	got := mentionsIn("oi @tyler:example.org and @gaz:matrix.org:8448, not @nobody")
	if len(got) != 2 || got[0] != "@tyler:example.org" || got[1] != "@gaz:matrix.org:8448" {
		t.Errorf("mentionsIn = %v", got)
	}
}

// ── helpers ──────────────────────────────────────────────────────────────────

type fixedRand float64

func (f fixedRand) Float64() float64 { return float64(f) }
func (fixedRand) IntN(int) int       { return 0 }

type sentMessage struct {
	channel string
	text    string
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []sentMessage
	err  error
}

func (s *fakeSender) SendText(_ context.Context, channelID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, sentMessage{channelID, text})
	return nil
}

func (s *fakeSender) sent() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.msgs...)
}

type fakeProvider struct {
	mu     sync.Mutex
	text   string
	prompt string
}

func (p *fakeProvider) Name() string  { return "fake" }
func (p *fakeProvider) Model() string { return "fake-1" }

func (p *fakeProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompt = req.Prompt
	return &llm.CompletionResponse{Text: p.text}, nil
}

func (p *fakeProvider) Ping(context.Context) (*llm.Health, error) {
	return &llm.Health{ModelAvailable: true}, nil
}

func (p *fakeProvider) lastPrompt() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prompt
}

func chat(channel, text string) *envelope.Message {
	return &envelope.Message{
		SenderID:   "@tyler:example.org",
		SenderName: "Tyler",
		ChannelID:  channel,
		Text:       text,
		ReceivedAt: t0,
	}
}

func writeConfig(t *testing.T, dir, doc string) string {
	t.Helper()
	path := filepath.Join(dir, "gerald.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// newTestApp builds an App over a temporary SQLite database without
// starting any transport. The vocabulary starts from the default seed.
func newTestApp(t *testing.T, doc string, opts ...Option) (*App, *Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := &Config{
		ConfigFile:   writeConfig(t, dir, doc),
		DatabasePath: filepath.Join(dir, "gerald.db"),
		VocabBackend: persist.BackendSQLite,
	}
	a, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Stop)
	return a, cfg
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
