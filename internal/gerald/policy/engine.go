// Package policy decides whether the bot answers a given message.
//
// Evaluation order, first match wins:
//
//  1. messages from bots (including this one) and ignored senders: skip
//  2. channels outside allowed_channels: skip
//  3. channel cooling down: skip
//  4. bot mentioned: respond
//  5. trigger word present: respond
//  6. question longer than QuestionMinLength: respond with QuestionChance
//  7. otherwise: respond with ResponseChance
//
// A positive decision reserves the channel's cooldown slot atomically.
package policy

import (
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/bdobrica/gerald/common/spec/envelope"
)

// Decision is the outcome of policy evaluation.
type Decision int

const (
	// DecisionSkip means the bot stays quiet. The message may still be learned from.
	DecisionSkip Decision = iota
	// DecisionRespond means the bot replies.
	DecisionRespond
)

func (d Decision) String() string {
	switch d {
	case DecisionSkip:
		return "skip"
	case DecisionRespond:
		return "respond"
	default:
		return "unknown"
	}
}

// Reason names the rule that produced a Decision.
type Reason string

const (
	ReasonFromBot  Reason = "from_bot"
	ReasonIgnored  Reason = "ignored_sender"
	ReasonChannel  Reason = "channel_not_allowed"
	ReasonCooldown Reason = "cooldown"
	ReasonMention  Reason = "mention"
	ReasonTrigger  Reason = "trigger_word"
	ReasonQuestion Reason = "question"
	ReasonChance   Reason = "chance"
	ReasonNoChance Reason = "chance_missed"
)

// Result is the full output of a policy evaluation.
type Result struct {
	Decision Decision
	Reason   Reason
}

// Respond is shorthand for Decision == DecisionRespond.
func (r Result) Respond() bool { return r.Decision == DecisionRespond }

// Config holds the tunables. Probabilities are in [0, 1].
type Config struct {
	ResponseChance    float64
	QuestionChance    float64
	QuestionMinLength int
	TriggerWords      []string
	// AllowedChannels restricts the bot to these channels; empty allows all.
	AllowedChannels []string
	IgnoreSenders   []string
	Cooldown        time.Duration
}

// DefaultConfig mirrors the stock bot settings.
func DefaultConfig() Config {
	return Config{
		ResponseChance:    0.25,
		QuestionChance:    0.6,
		QuestionMinLength: 10,
		TriggerWords:      []string{"gerald", "tyler"},
		Cooldown:          3 * time.Second,
	}
}

// Float64er is the randomness the engine consumes.
type Float64er interface {
	Float64() float64
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// Engine evaluates messages against the current Config.
type Engine struct {
	cooldown *Cooldown

	mu       sync.RWMutex
	cfg      Config
	allowed  map[string]struct{}
	ignored  map[string]struct{}
	triggers []string

	rndMu sync.Mutex
	rnd   Float64er
}

// New returns an Engine. A nil rnd uses the process-wide source.
func New(cfg Config, rnd Float64er) *Engine {
	if rnd == nil {
		rnd = globalRand{}
	}
	e := &Engine{cooldown: NewCooldown(cfg.Cooldown), rnd: rnd}
	e.Update(cfg)
	return e
}

// Update swaps in a new Config; used on config reload.
func (e *Engine) Update(cfg Config) {
	allowed := toSet(cfg.AllowedChannels)
	ignored := toSet(cfg.IgnoreSenders)
	triggers := make([]string, 0, len(cfg.TriggerWords))
	for _, w := range cfg.TriggerWords {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			triggers = append(triggers, w)
		}
	}

	e.mu.Lock()
	e.cfg = cfg
	e.allowed = allowed
	e.ignored = ignored
	e.triggers = triggers
	e.mu.Unlock()
	e.cooldown.SetWindow(cfg.Cooldown)
}

// Cooldown exposes the per-channel cooldown tracker.
func (e *Engine) Cooldown() *Cooldown { return e.cooldown }

// ChannelAllowed reports whether the bot operates in channel at all.
func (e *Engine) ChannelAllowed(channel string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.allowed) == 0 {
		return true
	}
	_, ok := e.allowed[channel]
	return ok
}

// Decide evaluates msg at now.
func (e *Engine) Decide(msg *envelope.Message, now time.Time) Result {
	if msg.FromBot {
		return Result{DecisionSkip, ReasonFromBot}
	}

	e.mu.RLock()
	cfg := e.cfg
	_, ignored := e.ignored[msg.SenderID]
	triggers := e.triggers
	e.mu.RUnlock()

	if ignored {
		return Result{DecisionSkip, ReasonIgnored}
	}
	if !e.ChannelAllowed(msg.ChannelID) {
		return Result{DecisionSkip, ReasonChannel}
	}
	if e.cooldown.Active(msg.ChannelID, now) {
		return Result{DecisionSkip, ReasonCooldown}
	}

	reason, ok := e.evaluate(msg, cfg, triggers)
	if !ok {
		return Result{DecisionSkip, reason}
	}
	if !e.cooldown.Reserve(msg.ChannelID, now) {
		return Result{DecisionSkip, ReasonCooldown}
	}
	return Result{DecisionRespond, reason}
}

func (e *Engine) evaluate(msg *envelope.Message, cfg Config, triggers []string) (Reason, bool) {
	if msg.Mentioned {
		return ReasonMention, true
	}
	lower := strings.ToLower(msg.Text)
	for _, w := range triggers {
		if strings.Contains(lower, w) {
			return ReasonTrigger, true
		}
	}
	if strings.Contains(msg.Text, "?") && len([]rune(msg.Text)) > cfg.QuestionMinLength {
		if e.roll() < cfg.QuestionChance {
			return ReasonQuestion, true
		}
		return ReasonNoChance, false
	}
	if e.roll() < cfg.ResponseChance {
		return ReasonChance, true
	}
	return ReasonNoChance, false
}

func (e *Engine) roll() float64 {
	e.rndMu.Lock()
	defer e.rndMu.Unlock()
	return e.rnd.Float64()
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			set[it] = struct{}{}
		}
	}
	return set
}
